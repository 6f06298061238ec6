// Package transcoder locates the external ffmpeg binary and runs it.
// Every pipeline stage that touches video delegates frame-level work to
// ffmpeg so no video data is ever held in process memory.
package transcoder

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ErrToolUnavailable means no resolution strategy produced a usable ffmpeg
// binary. It is fatal for every stage that needs the transcoder.
var ErrToolUnavailable = errors.New("ffmpeg unavailable")

// ResolverConfig holds configuration for binary resolution.
type ResolverConfig struct {
	// ExplicitPath is an operator-supplied path to ffmpeg.
	// Checked first; typically sourced from FFMPEG_BINARY.
	ExplicitPath string

	// SearchDirs are fixed standard installation directories checked after
	// a PATH lookup fails.
	SearchDirs []string

	// BundleDir is a directory shipped alongside this binary that may carry
	// its own ffmpeg copy.
	BundleDir string

	// CacheDir is where a downloaded static build is stored and reused.
	CacheDir string

	// DownloadURL points to a known-good static build: either a tar.gz
	// archive with an "ffmpeg" member or a raw standalone binary.
	// Empty disables the download tier.
	DownloadURL string

	// HTTPClient is used for the download tier. Defaults to a client with a
	// generous timeout; static builds are large.
	HTTPClient *http.Client
}

// DefaultResolverConfig returns a ResolverConfig with the standard tiers.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		ExplicitPath: os.Getenv("FFMPEG_BINARY"),
		SearchDirs: []string{
			"/usr/bin",
			"/usr/local/bin",
			"/opt/homebrew/bin",
		},
		CacheDir:    filepath.Join(os.TempDir(), "mediaextract", "bin"),
		DownloadURL: "https://github.com/eugeneware/ffmpeg-static/releases/download/b6.0/ffmpeg-linux-x64",
	}
}

// Resolver locates ffmpeg through a tiered strategy and memoizes the first
// success for the process lifetime. A Resolver instance is injected into
// every stage constructor; there is no package-level singleton.
type Resolver struct {
	cfg ResolverConfig

	mu   sync.Mutex
	path string
}

// NewResolver creates a Resolver with the given configuration.
func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Minute}
	}
	return &Resolver{cfg: cfg}
}

// Resolve returns the path to a usable ffmpeg binary, trying each strategy
// only if the previous one yields nothing. The result is cached after the
// first success; failures are not cached so a later call may succeed once
// the environment changes.
func (r *Resolver) Resolve(ctx context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.path != "" {
		return r.path, nil
	}

	path, err := r.locate(ctx)
	if err != nil {
		return "", err
	}
	r.path = path
	return path, nil
}

func (r *Resolver) locate(ctx context.Context) (string, error) {
	if p := r.cfg.ExplicitPath; p != "" && isExecutableFile(p) {
		return p, nil
	}

	if p, err := exec.LookPath("ffmpeg"); err == nil {
		return p, nil
	}

	for _, dir := range r.cfg.SearchDirs {
		if p := filepath.Join(dir, "ffmpeg"); isExecutableFile(p) {
			return p, nil
		}
	}

	if r.cfg.BundleDir != "" {
		if p := filepath.Join(r.cfg.BundleDir, "ffmpeg"); isExecutableFile(p) {
			return p, nil
		}
	}

	if r.cfg.DownloadURL != "" {
		p, err := r.provision(ctx)
		if err != nil {
			return "", fmt.Errorf("%w: static build download failed: %v", ErrToolUnavailable, err)
		}
		return p, nil
	}

	return "", fmt.Errorf("%w: not in PATH, standard directories or bundle", ErrToolUnavailable)
}

// provision downloads the static build archive into the cache directory,
// extracts the ffmpeg member and marks it executable. A previously
// provisioned binary is reused without touching the network.
func (r *Resolver) provision(ctx context.Context) (string, error) {
	target := filepath.Join(r.cfg.CacheDir, "ffmpeg")
	if isExecutableFile(target) {
		return target, nil
	}

	if err := os.MkdirAll(r.cfg.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.DownloadURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}

	if strings.HasSuffix(r.cfg.DownloadURL, ".tar.gz") || strings.HasSuffix(r.cfg.DownloadURL, ".tgz") {
		err = extractMember(resp.Body, "ffmpeg", target)
	} else {
		err = writeFile(resp.Body, target)
	}
	if err != nil {
		return "", err
	}
	if err := os.Chmod(target, 0o755); err != nil {
		return "", fmt.Errorf("chmod: %w", err)
	}
	return target, nil
}

func writeFile(src io.Reader, target string) error {
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
	if err != nil {
		return fmt.Errorf("create binary: %w", err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		_ = os.Remove(target)
		return fmt.Errorf("write binary: %w", err)
	}
	return out.Close()
}

// extractMember streams a gzip-compressed tar archive and writes the first
// member whose base name matches `name` to `target`.
func extractMember(archive io.Reader, name, target string) error {
	gz, err := gzip.NewReader(archive)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return fmt.Errorf("archive has no %q member", name)
		}
		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg || filepath.Base(hdr.Name) != name {
			continue
		}

		out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create binary: %w", err)
		}
		if _, err := io.Copy(out, tr); err != nil {
			_ = out.Close()
			_ = os.Remove(target)
			return fmt.Errorf("write binary: %w", err)
		}
		return out.Close()
	}
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	// On unix an install without the execute bit is as useless as a
	// missing one.
	return strings.HasSuffix(path, ".exe") || info.Mode()&0o111 != 0
}
