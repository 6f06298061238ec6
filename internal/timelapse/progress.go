package timelapse

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/stephane1109/mediaextract/internal/domain/model"
)

const progressFile = "progress.json"

// Progress is the sampling checkpoint persisted in the job directory. The
// frame at index FrameRangeStart + ImagesSavedSoFar*FrameStep is the next
// one to sample, so a restart never duplicates or skips a frame.
type Progress struct {
	SourceFPS        float64 `json:"sourceFps"`
	FrameRangeStart  int     `json:"frameRangeStart"`
	FrameRangeEnd    int     `json:"frameRangeEnd"`
	FrameStep        int     `json:"frameStep"`
	ImagesSavedSoFar int     `json:"imagesSavedSoFar"`
}

// JobID derives the deterministic identity of one parameter set, so
// re-submitting identical parameters reuses the same job directory.
func JobID(sourceID string, targetFPS int, interval *model.Interval) string {
	h := sha1.New()
	fmt.Fprintf(h, "%s|%d", sourceID, targetFPS)
	if interval != nil {
		fmt.Fprintf(h, "|%d-%d", interval.Start, interval.End)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// LoadProgress reads the checkpoint from jobDir. A missing file returns
// (nil, nil): the job starts from scratch.
func LoadProgress(jobDir string) (*Progress, error) {
	data, err := os.ReadFile(filepath.Join(jobDir, progressFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode checkpoint: %w", err)
	}
	return &p, nil
}

// Save writes the checkpoint atomically via a rename, so an interrupted
// write never leaves a truncated checkpoint behind.
func (p *Progress) Save(jobDir string) error {
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	tmp := filepath.Join(jobDir, progressFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	return os.Rename(tmp, filepath.Join(jobDir, progressFile))
}

// Matches reports whether a persisted checkpoint belongs to the same
// sampling parameters. A mismatch means the job directory was produced by
// different parameters and the checkpoint must be discarded.
func (p *Progress) Matches(start, end, step int) bool {
	return p.FrameRangeStart == start && p.FrameRangeEnd == end && p.FrameStep == step
}
