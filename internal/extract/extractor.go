// Package extract derives the requested artifact set from the canonical
// video: MP4/MP3/WAV segments and timestamped JPEG sequences.
package extract

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/stephane1109/mediaextract/internal/domain/model"
	"github.com/stephane1109/mediaextract/internal/naming"
	"github.com/stephane1109/mediaextract/internal/transcoder"
)

// imageScale matches the fixed frame size of every JPEG sequence.
const imageScale = "scale=1920:1080"

// Extractor writes artifact files for a job into outputDir.
type Extractor struct {
	runner    transcoder.Runner
	outputDir string
}

// NewExtractor creates an Extractor writing into outputDir.
func NewExtractor(runner transcoder.Runner, outputDir string) *Extractor {
	return &Extractor{runner: runner, outputDir: outputDir}
}

// Extract produces every requested kind from the canonical video. Kinds are
// independent: each gets its own transcoder pass, bounded to interval when
// set. An empty set is a no-op. The first failing kind aborts the run.
func (e *Extractor) Extract(ctx context.Context, videoPath string, interval *model.Interval, kinds model.KindSet, baseID string) error {
	if kinds.IsEmpty() {
		return nil
	}

	if kinds.Has(model.KindMP4) {
		if err := e.extractMP4(ctx, videoPath, interval, baseID); err != nil {
			return fmt.Errorf("mp4 extraction failed: %w", err)
		}
	}
	if kinds.Has(model.KindMP3) {
		args := []string{"-vn", "-acodec", "libmp3lame", "-q:a", "5"}
		if err := e.extractAudio(ctx, videoPath, interval, baseID, ".mp3", args); err != nil {
			return fmt.Errorf("mp3 extraction failed: %w", err)
		}
	}
	if kinds.Has(model.KindWAV) {
		args := []string{"-vn", "-acodec", "adpcm_ima_wav"}
		if err := e.extractAudio(ctx, videoPath, interval, baseID, ".wav", args); err != nil {
			return fmt.Errorf("wav extraction failed: %w", err)
		}
	}
	for _, k := range []model.Kind{model.KindImages1, model.KindImages25} {
		if !kinds.Has(k) {
			continue
		}
		if err := e.extractImages(ctx, videoPath, interval, baseID, k.FPS()); err != nil {
			return fmt.Errorf("image extraction at %dfps failed: %w", k.FPS(), err)
		}
	}
	return nil
}

// scopeSuffix distinguishes a bounded run's subset from whole-video output.
func scopeSuffix(interval *model.Interval) string {
	if interval != nil {
		return "_seg"
	}
	return "_full"
}

// seekArgs bounds the invocation to the interval as input seek options.
func seekArgs(interval *model.Interval) []string {
	if interval == nil {
		return nil
	}
	return []string{
		"-ss", strconv.Itoa(interval.Start),
		"-to", strconv.Itoa(interval.End),
	}
}

// extractMP4 re-encodes the scoped range with the same capped-width profile
// the compressed canonical video uses, so segment artifacts stay small.
func (e *Extractor) extractMP4(ctx context.Context, videoPath string, interval *model.Interval, baseID string) error {
	target := naming.UniquePath(e.outputDir, baseID+scopeSuffix(interval), ".mp4")

	args := []string{"-y"}
	args = append(args, seekArgs(interval)...)
	args = append(args,
		"-i", videoPath,
		"-vf", "scale=1280:-2",
		"-c:v", "libx264",
		"-preset", "slow",
		"-crf", "28",
		"-c:a", "aac",
		"-b:a", "96k",
		"-movflags", "+faststart",
		target,
	)
	return e.runner.Run(ctx, args...)
}

func (e *Extractor) extractAudio(ctx context.Context, videoPath string, interval *model.Interval, baseID, ext string, codecArgs []string) error {
	target := naming.UniquePath(e.outputDir, baseID+scopeSuffix(interval), ext)

	args := []string{"-y"}
	args = append(args, seekArgs(interval)...)
	args = append(args, "-i", videoPath)
	args = append(args, codecArgs...)
	args = append(args, "-movflags", "+faststart", target)
	return e.runner.Run(ctx, args...)
}

// extractImages emits a dense JPEG sequence at the given rate under a
// per-kind directory, then renames each frame to a name encoding its
// absolute timestamp. The temporary sequential names exist only between
// the two passes.
func (e *Extractor) extractImages(ctx context.Context, videoPath string, interval *model.Interval, baseID string, fps int) error {
	dirName := fmt.Sprintf("img%d_%s", fps, baseID)
	if interval == nil {
		dirName = fmt.Sprintf("img%d_full_%s", fps, baseID)
	}
	dir := filepath.Join(e.outputDir, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	args := []string{"-y"}
	args = append(args, seekArgs(interval)...)
	args = append(args,
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=%d,%s", fps, imageScale),
		"-q:v", "1",
		filepath.Join(dir, "tmp_%06d.jpg"),
	)
	if err := e.runner.Run(ctx, args...); err != nil {
		return err
	}

	return renameFrames(dir, interval, fps)
}

// renameFrames converts the sequential tmp names into semantic timestamp
// names. The absolute timestamp starts at the interval's start second when
// bounded, at zero otherwise. subFrameIndex is the frame's position within
// its second, clamped to fps-1 to absorb rounding at second boundaries.
func renameFrames(dir string, interval *model.Interval, fps int) error {
	frames, err := filepath.Glob(filepath.Join(dir, "tmp_*.jpg"))
	if err != nil {
		return err
	}
	sort.Strings(frames)

	startOffset := 0
	if interval != nil {
		startOffset = interval.Start
	}

	for i, src := range frames {
		t := float64(startOffset) + float64(i)/float64(fps)
		sec := int(t)

		var base string
		if fps == 1 {
			base = fmt.Sprintf("i_%ds_1fps", sec)
		} else {
			subIdx := int(math.Round((t - float64(sec)) * float64(fps)))
			if subIdx >= fps {
				subIdx = fps - 1
			}
			base = fmt.Sprintf("i_%ds_%dfps_%02d", sec, fps, subIdx)
		}

		dst := naming.UniquePath(dir, base, ".jpg")
		if err := os.Rename(src, dst); err != nil {
			return err
		}
	}
	return nil
}
