// Package acquire downloads a source video through a layered
// format-fallback strategy and hands later stages a predictably named file.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/stephane1109/mediaextract/internal/domain/model"
	"github.com/stephane1109/mediaextract/internal/naming"
)

var (
	// ErrAccessDeniedNeedCookies is returned on an upstream 403 when no
	// cookie file was supplied. The caller should ask the user for a
	// browser-exported cookies.txt.
	ErrAccessDeniedNeedCookies = errors.New("source denied access (HTTP 403); the video is restricted, supply a cookies.txt file and retry")

	// ErrCookiesRejected is returned when the 403 persists despite a
	// cookie file. Retrying further formats would not help.
	ErrCookiesRejected = errors.New("source denied access despite cookies; the cookies.txt file is invalid or expired")

	// ErrEmptyResult means the tool reported success but no output file
	// was found. It fails one format strategy, not the whole acquisition.
	ErrEmptyResult = errors.New("download finished but no media file was produced")
)

// formatFallbacks is the ordered list of format-selection strategies, most
// specific (capped-resolution MP4+AAC pairing) to most permissive (best
// available single stream).
var formatFallbacks = []string{
	"bv*[ext=mp4][height<=2160]+ba[ext=m4a]/b[ext=mp4]/b",
	"bv*+ba/b",
}

// mediaExtensions are the containers the output scan recognizes.
var mediaExtensions = []string{".mp4", ".mkv", ".webm", ".m4a", ".mp3"}

// Metadata describes the remote video as reported by the download tool.
type Metadata struct {
	ID    string
	Title string
}

// Request carries the acquisition parameters for one job.
type Request struct {
	URL        string
	CookieFile string // optional path to a browser-exported cookies.txt
	Interval   *model.Interval
	Verbose    bool
}

// Result is a successful acquisition.
type Result struct {
	// SourcePath is the downloaded file after the collision-safe rename to
	// "{baseID}_src{ext}". Later stages never see the tool's own naming.
	SourcePath string
	BaseID     string
	Meta       Metadata
}

// DownloadTool abstracts the external downloader. The single format string,
// retry options and cookie file are passed through to the tool verbatim.
type DownloadTool interface {
	Download(ctx context.Context, req ToolRequest) (*ToolResult, error)
}

// ToolRequest is one download attempt with a fixed format selector.
type ToolRequest struct {
	URL        string
	Format     string
	OutputDir  string
	CookieFile string
	Interval   *model.Interval
	Verbose    bool
}

// ToolResult is what the tool reports back on success.
type ToolResult struct {
	// Path is the tool-reported output path. May be empty when the tool
	// could not report one; the acquirer then falls back to scanning the
	// output directory.
	Path string
	Meta Metadata
}

// Acquirer runs the format-fallback download loop.
type Acquirer struct {
	tool      DownloadTool
	outputDir string
}

// NewAcquirer creates an Acquirer writing into outputDir.
func NewAcquirer(tool DownloadTool, outputDir string) *Acquirer {
	return &Acquirer{tool: tool, outputDir: outputDir}
}

// Acquire tries each format strategy in order and stops at the first
// success. Attempts are independent; only the final exhaustion is surfaced,
// with the last underlying error attached. Access-denial errors short-
// circuit the loop because no format selector fixes a 403.
func (a *Acquirer) Acquire(ctx context.Context, req Request) (*Result, error) {
	var lastErr error

	for _, format := range formatFallbacks {
		res, err := a.tool.Download(ctx, ToolRequest{
			URL:        req.URL,
			Format:     format,
			OutputDir:  a.outputDir,
			CookieFile: req.CookieFile,
			Interval:   req.Interval,
			Verbose:    req.Verbose,
		})
		if err != nil {
			if isAccessDenied(err) {
				if req.CookieFile == "" {
					return nil, fmt.Errorf("%w: %v", ErrAccessDeniedNeedCookies, err)
				}
				return nil, fmt.Errorf("%w: %v", ErrCookiesRejected, err)
			}
			lastErr = err
			continue
		}

		file, err := a.locateOutput(res.Path)
		if err != nil {
			lastErr = err
			continue
		}

		return a.finalize(file, res.Meta)
	}

	return nil, fmt.Errorf("all download strategies failed: %w", lastErr)
}

// locateOutput prefers the tool-reported path and falls back to scanning
// the output directory for the most recently modified media file. The scan
// is racy under concurrent jobs sharing a directory; the reported path is
// authoritative whenever the tool gives one.
func (a *Acquirer) locateOutput(reported string) (string, error) {
	if reported != "" {
		if _, err := os.Stat(reported); err == nil {
			return reported, nil
		}
		slog.Warn("tool-reported output path missing, scanning output directory",
			slog.String("reported", reported),
		)
	}
	return a.newestMediaFile()
}

func (a *Acquirer) newestMediaFile() (string, error) {
	entries, err := os.ReadDir(a.outputDir)
	if err != nil {
		return "", fmt.Errorf("read output directory: %w", err)
	}

	var (
		newest     string
		newestTime int64 = -1
	)
	for _, entry := range entries {
		if entry.IsDir() || !hasMediaExtension(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if mt := info.ModTime().UnixNano(); mt > newestTime {
			newest = filepath.Join(a.outputDir, entry.Name())
			newestTime = mt
		}
	}

	if newest == "" {
		return "", ErrEmptyResult
	}
	return newest, nil
}

// finalize derives the baseID and renames the raw download to
// "{baseID}_src{ext}" through the collision-avoidance scheme.
func (a *Acquirer) finalize(file string, meta Metadata) (*Result, error) {
	title := meta.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	}
	baseID := naming.ShortID(meta.ID, title)

	target := naming.UniquePath(a.outputDir, baseID+"_src", filepath.Ext(file))
	if err := os.Rename(file, target); err != nil {
		return nil, fmt.Errorf("rename source file: %w", err)
	}

	return &Result{
		SourcePath: target,
		BaseID:     baseID,
		Meta:       meta,
	}, nil
}

func hasMediaExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, m := range mediaExtensions {
		if ext == m {
			return true
		}
	}
	return false
}

// isAccessDenied classifies upstream rejection from the tool's error text.
// The tool surfaces the HTTP status inline, there is no structured error.
func isAccessDenied(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "403") || strings.Contains(msg, "Forbidden")
}
