package acquire

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/stephane1109/mediaextract/internal/transcoder"
)

// YtdlpConfig holds configuration for the yt-dlp CLI wrapper.
type YtdlpConfig struct {
	// BinaryPath is the path to the yt-dlp binary.
	// If empty, "yt-dlp" is used (assumes it's in PATH).
	BinaryPath string

	// Retries and FragmentRetries are passed through to the tool.
	Retries         int
	FragmentRetries int

	// UserAgent is the browser identification presented upstream. A
	// realistic one reduces blocking.
	UserAgent string

	// PlayerClients are alternate client identities the extractor may
	// impersonate, again to reduce upstream blocking.
	PlayerClients []string
}

// DefaultYtdlpConfig returns a YtdlpConfig matching a stock desktop browser.
func DefaultYtdlpConfig() YtdlpConfig {
	return YtdlpConfig{
		BinaryPath:      "yt-dlp",
		Retries:         10,
		FragmentRetries: 10,
		UserAgent:       "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:115.0) Gecko/20100101 Firefox/115.0",
		PlayerClients:   []string{"android", "ios", "mweb", "web"},
	}
}

// Ytdlp implements DownloadTool by shelling out to yt-dlp. Stream merging
// needs ffmpeg, so the wrapper resolves the transcoder and hands its
// location to the tool.
type Ytdlp struct {
	cfg      YtdlpConfig
	resolver *transcoder.Resolver
}

// Compile-time verification that Ytdlp implements DownloadTool.
var _ DownloadTool = (*Ytdlp)(nil)

// NewYtdlp creates the CLI-backed download tool.
func NewYtdlp(cfg YtdlpConfig, resolver *transcoder.Resolver) *Ytdlp {
	return &Ytdlp{cfg: cfg, resolver: resolver}
}

// Download runs one yt-dlp invocation. On success it parses the remote ID,
// title and the tool-reported final file path from stdout.
func (y *Ytdlp) Download(ctx context.Context, req ToolRequest) (*ToolResult, error) {
	ffmpegPath, err := y.resolver.Resolve(ctx)
	if err != nil {
		return nil, err
	}

	args := y.buildArgs(req, ffmpegPath)

	cmd := exec.CommandContext(ctx, y.binary(), args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("download interrupted: %w", ctx.Err())
		}
		return nil, fmt.Errorf("yt-dlp failed: %w: %s", err, tail(stderr.String()))
	}

	return parseOutput(stdout.String()), nil
}

// buildArgs constructs the yt-dlp command arguments for one attempt.
func (y *Ytdlp) buildArgs(req ToolRequest, ffmpegPath string) []string {
	args := []string{
		"--no-playlist",
		"--output", filepath.Join(req.OutputDir, "%(id)s.%(ext)s"),
		"--merge-output-format", "mp4",
		"--format", req.Format,
		"--retries", fmt.Sprintf("%d", y.cfg.Retries),
		"--fragment-retries", fmt.Sprintf("%d", y.cfg.FragmentRetries),
		"--continue",
		"--concurrent-fragments", "1",
		"--restrict-filenames",
		"--trim-filenames", "80",
		"--no-check-certificates",
		"--geo-bypass",
		"--user-agent", y.cfg.UserAgent,
		"--add-headers", "Accept:*/*",
		"--add-headers", "Accept-Language:en-US,en;q=0.5",
		"--add-headers", "Referer:https://www.youtube.com/",
		"--ffmpeg-location", ffmpegPath,
		// Printed in this order: id and title at the video event, the
		// final path after post-processing has moved the file.
		"--print", "id",
		"--print", "title",
		"--print", "after_move:filepath",
		"--no-simulate",
	}

	if len(y.cfg.PlayerClients) > 0 {
		args = append(args,
			"--extractor-args", "youtube:player_client="+strings.Join(y.cfg.PlayerClients, ","),
		)
	}

	if req.Interval != nil {
		args = append(args,
			"--download-sections", fmt.Sprintf("*%d-%d", req.Interval.Start, req.Interval.End),
			"--force-keyframes-at-cuts",
		)
	}

	if req.CookieFile != "" {
		args = append(args, "--cookies", req.CookieFile)
	}

	if !req.Verbose {
		args = append(args, "--quiet", "--no-warnings")
	} else {
		args = append(args, "--verbose")
	}

	return args
}

func (y *Ytdlp) binary() string {
	if y.cfg.BinaryPath != "" {
		return y.cfg.BinaryPath
	}
	return "yt-dlp"
}

// tail keeps the last few stderr lines, where yt-dlp puts the actual
// failure reason (including the HTTP status the acquirer classifies on).
func tail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	const keep = 4
	if len(lines) > keep {
		lines = lines[len(lines)-keep:]
	}
	return strings.Join(lines, " | ")
}

// parseOutput picks the printed fields out of stdout. Missing lines leave
// the corresponding fields empty; the acquirer has fallbacks for both the
// path (directory scan) and the title (file stem).
func parseOutput(out string) *ToolResult {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	res := &ToolResult{}
	if len(lines) > 0 {
		res.Meta.ID = strings.TrimSpace(lines[0])
	}
	if len(lines) > 1 {
		res.Meta.Title = strings.TrimSpace(lines[1])
	}
	if len(lines) > 2 {
		res.Path = strings.TrimSpace(lines[len(lines)-1])
	}
	return res
}
