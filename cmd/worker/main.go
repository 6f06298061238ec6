package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/stephane1109/mediaextract/internal/acquire"
	"github.com/stephane1109/mediaextract/internal/config"
	"github.com/stephane1109/mediaextract/internal/cookies"
	"github.com/stephane1109/mediaextract/internal/domain/repository"
	"github.com/stephane1109/mediaextract/internal/infrastructure/postgres"
	"github.com/stephane1109/mediaextract/internal/infrastructure/queue"
	"github.com/stephane1109/mediaextract/internal/infrastructure/storage"
	"github.com/stephane1109/mediaextract/internal/transcoder"
	"github.com/stephane1109/mediaextract/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Ensure temp directory exists
	if err := os.MkdirAll(cfg.Worker.TempDir, 0755); err != nil {
		return fmt.Errorf("failed to create temp directory: %w", err)
	}

	// Initialize infrastructure clients
	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO")

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	// Initialize the external tool chain. Resolution of the actual ffmpeg
	// binary is deferred until the first pipeline run.
	resolverCfg := transcoder.DefaultResolverConfig()
	resolverCfg.CacheDir = cfg.Worker.FFmpegCacheDir
	resolver := transcoder.NewResolver(resolverCfg)
	runner := transcoder.NewFFmpeg(resolver)

	ytdlpCfg := acquire.DefaultYtdlpConfig()
	ytdlpCfg.BinaryPath = cfg.Worker.YtdlpBinary
	tool := acquire.NewYtdlp(ytdlpCfg, resolver)

	// An operator-provided cookies.txt is copied into the canonical store
	// once; later runs reuse the stored copy.
	cookieStore := cookies.NewStore(cfg.Worker.TempDir)
	if cfg.Worker.CookieFile != "" {
		if err := importCookies(cookieStore, cfg.Worker.CookieFile); err != nil {
			return fmt.Errorf("failed to import cookie file: %w", err)
		}
	}
	logger.Info("cookie store", slog.String("status", cookieStore.Info()))

	// Initialize repository and service
	jobRepo := postgres.NewJobRepository(pgClient.Pool())
	extractSvc := usecase.NewExtractService(
		jobRepo,
		storageClient,
		runner,
		tool,
		usecase.ExtractServiceConfig{
			TempDir:    cfg.Worker.TempDir,
			MaxRetries: cfg.Worker.MaxRetries,
			CookieFile: cookieStore.Effective(),
		},
	)

	// Setup signal handling for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// WaitGroup to track in-flight tasks
	var wg sync.WaitGroup

	// Start consuming messages in a goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker, consuming extract tasks")
		err := queueClient.ConsumeExtractTasks(ctx, func(task repository.ExtractTask) error {
			wg.Add(1)
			defer wg.Done()

			logger.Info("processing task",
				slog.String("job_id", task.JobID.String()),
				slog.Int("retry_count", task.RetryCount),
			)

			if err := extractSvc.ProcessTask(ctx, task); err != nil {
				logger.Error("task processing failed",
					slog.String("job_id", task.JobID.String()),
					slog.Int("retry_count", task.RetryCount),
					slog.String("error", err.Error()),
				)
				return err
			}

			logger.Info("task completed successfully",
				slog.String("job_id", task.JobID.String()),
			)
			return nil
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	// Wait for shutdown signal or error
	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Cancel the main context to stop consuming new messages
	cancel()

	// Wait for in-flight tasks to complete (or timeout)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, some tasks may not have completed")
	}

	logger.Info("worker stopped")
	return nil
}

// importCookies copies the operator-provided cookies.txt into the store,
// replacing any earlier copy.
func importCookies(store *cookies.Store, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = store.Save(f, true)
	return err
}
