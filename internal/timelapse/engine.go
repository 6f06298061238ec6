// Package timelapse re-samples a video at a low frame rate, optionally
// overlays a motion visualization, and assembles the sampled frames into a
// short video. Sampling checkpoints its position after every batch so an
// interrupted run resumes instead of restarting.
package timelapse

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"

	"gocv.io/x/gocv"

	"github.com/stephane1109/mediaextract/internal/domain/model"
	"github.com/stephane1109/mediaextract/internal/transcoder"
)

// ErrNoFrames is returned when sampling produced no images at all.
var ErrNoFrames = errors.New("no frames sampled from source video")

// fallbackFPS stands in when the container reports no frame rate.
const fallbackFPS = 25.0

// defaultBatchSize bounds how many frames are sampled between checkpoints.
const defaultBatchSize = 50

// Result describes the finished timelapse.
type Result struct {
	VideoPath  string
	FrameCount int
	Reencoded  bool
}

// frameSource is the slice of the capture surface the sampling loop needs.
// *gocv.VideoCapture satisfies it.
type frameSource interface {
	Read(m *gocv.Mat) bool
	Set(prop gocv.VideoCaptureProperties, value float64)
	Get(prop gocv.VideoCaptureProperties) float64
	Close() error
}

// Engine drives the sampling, assembly and reencoding stages.
type Engine struct {
	runner    transcoder.Runner
	outputDir string
	batchSize int

	openSource func(path string) (frameSource, error)
}

// NewEngine creates an Engine writing into outputDir.
func NewEngine(runner transcoder.Runner, outputDir string) *Engine {
	return &Engine{
		runner:    runner,
		outputDir: outputDir,
		batchSize: defaultBatchSize,
		openSource: func(path string) (frameSource, error) {
			return gocv.OpenVideoCapture(path)
		},
	}
}

// Generate runs the full pipeline for one parameter set. sourceID feeds the
// deterministic job identity, so identical parameters resume or reuse prior
// work in the same job directory. Reencode failure is non-fatal: the raw
// assembly is returned instead.
func (e *Engine) Generate(ctx context.Context, videoPath, baseID, sourceID string, spec model.TimelapseSpec, interval *model.Interval) (*Result, error) {
	jobDir := filepath.Join(e.outputDir, "timelapse_"+JobID(sourceID, spec.TargetFPS, interval))
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, err
	}

	if err := e.sample(ctx, videoPath, jobDir, spec, interval); err != nil {
		return nil, fmt.Errorf("sampling failed: %w", err)
	}

	rawPath := filepath.Join(e.outputDir, fmt.Sprintf("%s_timelapse_%dfps_raw.mp4", baseID, spec.TargetFPS))
	frameCount, err := assembleRaw(jobDir, rawPath, spec.TargetFPS)
	if err != nil {
		return nil, fmt.Errorf("assembly failed: %w", err)
	}

	finalPath := filepath.Join(e.outputDir, fmt.Sprintf("%s_timelapse_%dfps.mp4", baseID, spec.TargetFPS))
	reencodeArgs := []string{
		"-y",
		"-i", rawPath,
		"-vcodec", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-movflags", "+faststart",
		finalPath,
	}
	if err := e.runner.Run(ctx, reencodeArgs...); err != nil {
		slog.Warn("timelapse reencode failed, keeping raw assembly",
			slog.String("raw_path", rawPath),
			slog.String("error", err.Error()))
		return &Result{VideoPath: rawPath, FrameCount: frameCount, Reencoded: false}, nil
	}
	return &Result{VideoPath: finalPath, FrameCount: frameCount, Reencoded: true}, nil
}

// SkipRatio is the number of source frames consumed per sampled frame.
func SkipRatio(sourceFPS float64, targetFPS int) int {
	ratio := int(math.Round(sourceFPS / float64(targetFPS)))
	if ratio < 1 {
		return 1
	}
	return ratio
}

// sample walks the source frames in bounded batches, writing every step-th
// frame as image_%05d.jpg and persisting progress after each batch. It
// resumes from the last checkpoint when the job directory already holds one
// for the same parameters.
func (e *Engine) sample(ctx context.Context, videoPath, jobDir string, spec model.TimelapseSpec, interval *model.Interval) error {
	capture, err := e.openSource(videoPath)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer capture.Close()

	sourceFPS := capture.Get(gocv.VideoCaptureFPS)
	if sourceFPS <= 0 {
		sourceFPS = fallbackFPS
	}
	step := SkipRatio(sourceFPS, spec.TargetFPS)

	totalFrames := int(capture.Get(gocv.VideoCaptureFrameCount))
	start, end := 0, totalFrames
	if interval != nil {
		start = int(float64(interval.Start) * sourceFPS)
		end = int(float64(interval.End) * sourceFPS)
		if totalFrames > 0 && end > totalFrames {
			end = totalFrames
		}
	}

	prog, err := LoadProgress(jobDir)
	if err != nil {
		return err
	}
	if prog == nil || !prog.Matches(start, end, step) {
		prog = &Progress{SourceFPS: sourceFPS, FrameRangeStart: start, FrameRangeEnd: end, FrameStep: step}
	}

	pos := start + prog.ImagesSavedSoFar*step
	if pos > 0 {
		capture.Set(gocv.VideoCapturePosFrames, float64(pos))
	}

	frame := gocv.NewMat()
	defer frame.Close()
	pending := gocv.NewMat()
	defer pending.Close()
	havePending := false

	saved := prog.ImagesSavedSoFar
	batch := 0
	for end <= 0 || pos < end {
		if ok := capture.Read(&frame); !ok || frame.Empty() {
			break
		}
		if (pos-start)%step == 0 {
			if spec.MotionOverlay {
				// A frame is only written once its successor is known,
				// so the arrows always point at real motion. The final
				// frame is flushed unmodified after the loop.
				if havePending {
					vis := overlayMotion(pending, frame)
					err := writeFrame(jobDir, saved, vis)
					vis.Close()
					if err != nil {
						return err
					}
					saved++
					batch++
				}
				frame.CopyTo(&pending)
				havePending = true
			} else {
				if err := writeFrame(jobDir, saved, frame); err != nil {
					return err
				}
				saved++
				batch++
			}
		}
		pos++

		if batch >= e.batchSize {
			prog.ImagesSavedSoFar = saved
			if err := prog.Save(jobDir); err != nil {
				return err
			}
			batch = 0
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
	}

	if spec.MotionOverlay && havePending {
		if err := writeFrame(jobDir, saved, pending); err != nil {
			return err
		}
		saved++
	}

	prog.ImagesSavedSoFar = saved
	return prog.Save(jobDir)
}

func writeFrame(jobDir string, index int, frame gocv.Mat) error {
	name := filepath.Join(jobDir, fmt.Sprintf("image_%05d.jpg", index))
	if ok := gocv.IMWrite(name, frame); !ok {
		return fmt.Errorf("write frame %s", name)
	}
	return nil
}

// assembleRaw builds the raw assembly at the target rate sized to the first
// frame, resizing any straggler that differs. Returns the frame count.
func assembleRaw(jobDir, rawPath string, targetFPS int) (int, error) {
	names, err := filepath.Glob(filepath.Join(jobDir, "image_*.jpg"))
	if err != nil {
		return 0, err
	}
	sort.Strings(names)
	if len(names) == 0 {
		return 0, ErrNoFrames
	}

	first := gocv.IMRead(names[0], gocv.IMReadColor)
	if first.Empty() {
		first.Close()
		return 0, fmt.Errorf("read frame %s", names[0])
	}
	width, height := first.Cols(), first.Rows()
	first.Close()

	writer, err := gocv.VideoWriterFile(rawPath, "mp4v", float64(targetFPS), width, height, true)
	if err != nil {
		return 0, fmt.Errorf("open raw writer: %w", err)
	}
	defer writer.Close()

	written := 0
	for _, name := range names {
		img := gocv.IMRead(name, gocv.IMReadColor)
		if img.Empty() {
			img.Close()
			continue
		}
		if img.Cols() != width || img.Rows() != height {
			resized := gocv.NewMat()
			gocv.Resize(img, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
			img.Close()
			img = resized
		}
		err := writer.Write(img)
		img.Close()
		if err != nil {
			return written, fmt.Errorf("write raw frame: %w", err)
		}
		written++
	}
	return written, nil
}
