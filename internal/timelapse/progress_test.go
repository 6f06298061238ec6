package timelapse

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stephane1109/mediaextract/internal/domain/model"
)

func TestJobID(t *testing.T) {
	iv, _ := model.NewInterval(10, 20)

	a := JobID("dQw4w9Wg", 12, iv)
	b := JobID("dQw4w9Wg", 12, iv)
	if a != b {
		t.Errorf("identical parameters must map to the same job: %q vs %q", a, b)
	}
	if len(a) != 16 {
		t.Errorf("id length = %d, want 16", len(a))
	}
	for _, r := range a {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("id %q contains non-hex rune %q", a, r)
		}
	}

	tests := []struct {
		name  string
		other string
	}{
		{"different source", JobID("other_id", 12, iv)},
		{"different fps", JobID("dQw4w9Wg", 6, iv)},
		{"no interval", JobID("dQw4w9Wg", 12, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.other == a {
				t.Errorf("parameter change must change the id")
			}
		})
	}
}

func TestSkipRatio(t *testing.T) {
	tests := []struct {
		name      string
		sourceFPS float64
		targetFPS int
		want      int
	}{
		{"25 to 1", 25, 1, 25},
		{"25 to 12", 25, 12, 2},
		{"30 to 12", 30, 12, 3},
		{"24 to 12", 24, 12, 2},
		{"target above source clamps to 1", 12, 25, 1},
		{"equal rates", 25, 25, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SkipRatio(tt.sourceFPS, tt.targetFPS); got != tt.want {
				t.Errorf("SkipRatio(%v, %d) = %d, want %d", tt.sourceFPS, tt.targetFPS, got, tt.want)
			}
		})
	}
}

func TestProgressRoundTrip(t *testing.T) {
	dir := t.TempDir()

	loaded, err := LoadProgress(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loaded != nil {
		t.Fatal("missing checkpoint must load as nil")
	}

	p := &Progress{SourceFPS: 25, FrameRangeStart: 250, FrameRangeEnd: 500, FrameStep: 25, ImagesSavedSoFar: 4}
	if err := p.Save(dir); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err = LoadProgress(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *loaded != *p {
		t.Errorf("round trip changed the checkpoint: %+v vs %+v", loaded, p)
	}

	// The temporary file from the atomic rename must not linger.
	if _, err := os.Stat(filepath.Join(dir, "progress.json.tmp")); !os.IsNotExist(err) {
		t.Error("temporary checkpoint file left behind")
	}
}

func TestProgressMatches(t *testing.T) {
	p := &Progress{FrameRangeStart: 250, FrameRangeEnd: 500, FrameStep: 25}

	if !p.Matches(250, 500, 25) {
		t.Error("identical parameters must match")
	}
	for _, tt := range []struct {
		name             string
		start, end, step int
	}{
		{"different start", 0, 500, 25},
		{"different end", 250, 750, 25},
		{"different step", 250, 500, 2},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if p.Matches(tt.start, tt.end, tt.step) {
				t.Error("changed parameters must not match")
			}
		})
	}
}

func TestLoadProgressRejectsCorruptCheckpoint(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "progress.json"), []byte("{truncated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadProgress(dir); err == nil {
		t.Error("corrupt checkpoint must fail to load")
	}
}
