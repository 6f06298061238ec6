package transcoder

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/stephane1109/mediaextract/internal/infrastructure/metrics"
)

// Runner abstracts ffmpeg execution so pipeline stages can be tested with a
// recording fake.
type Runner interface {
	// Run executes one ffmpeg invocation with the given arguments.
	// A non-zero exit status is a hard failure for that invocation.
	Run(ctx context.Context, args ...string) error
}

// FFmpeg implements Runner by shelling out to the resolved binary.
type FFmpeg struct {
	resolver *Resolver
}

// Compile-time verification that FFmpeg implements Runner.
var _ Runner = (*FFmpeg)(nil)

// NewFFmpeg creates a Runner backed by the given resolver.
func NewFFmpeg(resolver *Resolver) *FFmpeg {
	return &FFmpeg{resolver: resolver}
}

// Run resolves the binary on first use and executes it. ffmpeg writes its
// diagnostics to stderr; the tail of it is attached to the error because a
// bare exit status is useless to the caller.
func (f *FFmpeg) Run(ctx context.Context, args ...string) error {
	bin, err := f.resolver.Resolve(ctx)
	if err != nil {
		return err
	}

	full := append([]string{"-hide_banner", "-loglevel", "error"}, args...)
	cmd := exec.CommandContext(ctx, bin, full...)

	var stderr bytes.Buffer
	cmd.Stdout = nil
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		metrics.FFmpegInvocationsTotal.WithLabelValues(metrics.StatusError).Inc()
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg interrupted: %w", ctx.Err())
		}
		return fmt.Errorf("ffmpeg execution failed: %w: %s", err, stderrTail(stderr.String()))
	}
	metrics.FFmpegInvocationsTotal.WithLabelValues(metrics.StatusSuccess).Inc()
	return nil
}

// stderrTail keeps the last few lines of ffmpeg's stderr, which is where
// the actual failure reason lives.
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	const keep = 4
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return strings.Join(lines, " | ")
}
