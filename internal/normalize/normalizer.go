// Package normalize converts an acquired source file into the canonical
// working MP4 that every extraction stage reads from.
package normalize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/stephane1109/mediaextract/internal/domain/model"
	"github.com/stephane1109/mediaextract/internal/transcoder"
)

// Encoding constants for the compressed profile. 1280px wide with an even
// height keeps the output broadly decodable; CRF 28 plus the slow preset
// trades encode time for size because disk is the scarce resource here.
const (
	compressedScale   = "scale=1280:-2"
	compressedPreset  = "slow"
	compressedCRF     = "28"
	compressedBitrate = "96k"

	hdFallbackPreset  = "veryfast"
	hdFallbackCRF     = "18"
	hdFallbackBitrate = "192k"
)

// Normalizer produces the canonical video for a job.
type Normalizer struct {
	runner    transcoder.Runner
	outputDir string
}

// NewNormalizer creates a Normalizer writing into outputDir.
func NewNormalizer(runner transcoder.Runner, outputDir string) *Normalizer {
	return &Normalizer{runner: runner, outputDir: outputDir}
}

// Normalize turns sourcePath into "{baseID}_video.mp4" at the requested
// quality, trimming to interval during the same pass when set. The source
// file is deleted afterwards on success and failure alike; intermediate
// files must never outlive the stage on ephemeral storage.
func (n *Normalizer) Normalize(ctx context.Context, sourcePath, baseID string, quality model.Quality, interval *model.Interval) (string, error) {
	defer func() {
		// Best-effort cleanup; its failure never masks the primary error.
		_ = os.Remove(sourcePath)
	}()

	target := filepath.Join(n.outputDir, baseID+"_video.mp4")

	switch quality {
	case model.QualityHD:
		return n.normalizeHD(ctx, sourcePath, target, interval)
	default:
		return n.normalizeCompressed(ctx, sourcePath, target, interval)
	}
}

// normalizeCompressed always re-encodes: capped width, fixed quality
// target, fixed audio bitrate, fast-start layout.
func (n *Normalizer) normalizeCompressed(ctx context.Context, source, target string, interval *model.Interval) (string, error) {
	args := []string{"-y"}
	args = append(args, trimArgs(interval)...)
	args = append(args,
		"-i", source,
		"-vf", compressedScale,
		"-c:v", "libx264",
		"-preset", compressedPreset,
		"-crf", compressedCRF,
		"-c:a", "aac",
		"-b:a", compressedBitrate,
		"-movflags", "+faststart",
		target,
	)

	if err := n.runner.Run(ctx, args...); err != nil {
		return "", fmt.Errorf("compression failed: %w", err)
	}
	return target, nil
}

// normalizeHD first attempts a zero-re-encode stream copy and only falls
// back to a fast, higher-quality transcode when the container or codecs
// are incompatible with MP4.
func (n *Normalizer) normalizeHD(ctx context.Context, source, target string, interval *model.Interval) (string, error) {
	copyArgs := []string{"-y"}
	copyArgs = append(copyArgs, trimArgs(interval)...)
	copyArgs = append(copyArgs,
		"-i", source,
		"-c", "copy",
		"-movflags", "+faststart",
		target,
	)

	if err := n.runner.Run(ctx, copyArgs...); err == nil {
		return target, nil
	}

	fallbackArgs := []string{"-y"}
	fallbackArgs = append(fallbackArgs, trimArgs(interval)...)
	fallbackArgs = append(fallbackArgs,
		"-i", source,
		"-c:v", "libx264",
		"-preset", hdFallbackPreset,
		"-crf", hdFallbackCRF,
		"-c:a", "aac",
		"-b:a", hdFallbackBitrate,
		"-movflags", "+faststart",
		target,
	)

	if err := n.runner.Run(ctx, fallbackArgs...); err != nil {
		return "", fmt.Errorf("remux/transcode failed: %w", err)
	}
	return target, nil
}

// trimArgs folds the interval into the encode as input seek options so the
// trim happens in the same single pass.
func trimArgs(interval *model.Interval) []string {
	if interval == nil {
		return nil
	}
	return []string{
		"-ss", strconv.Itoa(interval.Start),
		"-to", strconv.Itoa(interval.End),
	}
}
