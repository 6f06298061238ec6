package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stephane1109/mediaextract/internal/domain/model"
)

// fakeRunner records invocations; writeFrames simulates the image pass by
// creating tmp frame files in the directory named by the output pattern.
type fakeRunner struct {
	calls       [][]string
	errs        []error
	writeFrames int
}

func (f *fakeRunner) Run(_ context.Context, args ...string) error {
	i := len(f.calls)
	f.calls = append(f.calls, args)
	if i < len(f.errs) && f.errs[i] != nil {
		return f.errs[i]
	}
	if f.writeFrames > 0 && len(args) > 0 {
		pattern := args[len(args)-1]
		if strings.HasSuffix(pattern, "tmp_%06d.jpg") {
			dir := filepath.Dir(pattern)
			for n := 1; n <= f.writeFrames; n++ {
				name := filepath.Join(dir, fmt.Sprintf("tmp_%06d.jpg", n))
				if err := os.WriteFile(name, []byte("jpeg"), 0o644); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func kinds(ks ...model.Kind) model.KindSet {
	set := model.KindSet{}
	for _, k := range ks {
		set[k] = true
	}
	return set
}

func TestExtract_EmptySetIsNoOp(t *testing.T) {
	runner := &fakeRunner{}
	e := NewExtractor(runner, t.TempDir())

	if err := e.Extract(context.Background(), "video.mp4", nil, model.KindSet{}, "abc_clip"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("expected no invocations, got %d", len(runner.calls))
	}
}

func TestExtract_ScopeSuffix(t *testing.T) {
	iv, _ := model.NewInterval(5, 15)

	tests := []struct {
		name     string
		interval *model.Interval
		want     string
	}{
		{"bounded uses seg", iv, "abc_clip_seg.mp4"},
		{"unbounded uses full", nil, "abc_clip_full.mp4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			runner := &fakeRunner{}
			e := NewExtractor(runner, dir)

			if err := e.Extract(context.Background(), "video.mp4", tt.interval, kinds(model.KindMP4), "abc_clip"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			args := runner.calls[0]
			target := args[len(args)-1]
			if target != filepath.Join(dir, tt.want) {
				t.Errorf("target = %q, want %q", target, tt.want)
			}
		})
	}
}

func TestExtract_AudioCodecArgs(t *testing.T) {
	tests := []struct {
		name string
		kind model.Kind
		want []string
	}{
		{"mp3 lossy at fixed quality", model.KindMP3, []string{"-vn -acodec libmp3lame -q:a 5", ".mp3"}},
		{"wav uncompressed pcm family", model.KindWAV, []string{"-vn -acodec adpcm_ima_wav", ".wav"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			e := NewExtractor(runner, t.TempDir())

			if err := e.Extract(context.Background(), "video.mp4", nil, kinds(tt.kind), "abc_clip"); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			joined := strings.Join(runner.calls[0], " ")
			for _, w := range tt.want {
				if !strings.Contains(joined, w) {
					t.Errorf("args missing %q: %q", w, joined)
				}
			}
		})
	}
}

func TestExtract_IntervalBoundsEveryKind(t *testing.T) {
	iv, _ := model.NewInterval(10, 20)
	runner := &fakeRunner{writeFrames: 1}
	e := NewExtractor(runner, t.TempDir())

	set := kinds(model.KindMP4, model.KindMP3, model.KindWAV, model.KindImages1)
	if err := e.Extract(context.Background(), "video.mp4", iv, set, "abc_clip"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(runner.calls) != 4 {
		t.Fatalf("expected one invocation per kind, got %d", len(runner.calls))
	}
	for i, call := range runner.calls {
		joined := strings.Join(call, " ")
		if !strings.Contains(joined, "-ss 10 -to 20") {
			t.Errorf("invocation %d missing interval bounds: %q", i, joined)
		}
	}
}

func TestExtract_ImageSequenceNaming(t *testing.T) {
	t.Run("1fps unbounded", func(t *testing.T) {
		dir := t.TempDir()
		runner := &fakeRunner{writeFrames: 3}
		e := NewExtractor(runner, dir)

		if err := e.Extract(context.Background(), "video.mp4", nil, kinds(model.KindImages1), "abc_clip"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		joined := strings.Join(runner.calls[0], " ")
		if !strings.Contains(joined, "fps=1,scale=1920:1080") || !strings.Contains(joined, "-q:v 1") {
			t.Errorf("sampling args wrong: %q", joined)
		}

		imgDir := filepath.Join(dir, "img1_full_abc_clip")
		for _, want := range []string{"i_0s_1fps.jpg", "i_1s_1fps.jpg", "i_2s_1fps.jpg"} {
			if _, err := os.Stat(filepath.Join(imgDir, want)); err != nil {
				t.Errorf("missing frame %s: %v", want, err)
			}
		}
		if left, _ := filepath.Glob(filepath.Join(imgDir, "tmp_*.jpg")); len(left) != 0 {
			t.Errorf("temporary names must not survive the rename pass: %v", left)
		}
	})

	t.Run("25fps bounded offsets timestamps by interval start", func(t *testing.T) {
		dir := t.TempDir()
		runner := &fakeRunner{writeFrames: 26}
		e := NewExtractor(runner, dir)

		iv, _ := model.NewInterval(10, 20)
		if err := e.Extract(context.Background(), "video.mp4", iv, kinds(model.KindImages25), "abc_clip"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		imgDir := filepath.Join(dir, "img25_abc_clip")
		for _, want := range []string{
			"i_10s_25fps_00.jpg",
			"i_10s_25fps_01.jpg",
			"i_10s_25fps_24.jpg",
			"i_11s_25fps_00.jpg",
		} {
			if _, err := os.Stat(filepath.Join(imgDir, want)); err != nil {
				t.Errorf("missing frame %s: %v", want, err)
			}
		}
	})
}

func TestExtract_SecondRunSuffixesInsteadOfOverwriting(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{writeFrames: 2}
	e := NewExtractor(runner, dir)

	set := kinds(model.KindImages1)
	for range 2 {
		if err := e.Extract(context.Background(), "video.mp4", nil, set, "abc_clip"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	imgDir := filepath.Join(dir, "img1_full_abc_clip")
	for _, want := range []string{"i_0s_1fps.jpg", "i_0s_1fps_1.jpg", "i_1s_1fps.jpg", "i_1s_1fps_1.jpg"} {
		if _, err := os.Stat(filepath.Join(imgDir, want)); err != nil {
			t.Errorf("missing frame %s: %v", want, err)
		}
	}
}

func TestExtract_FirstFailingKindAborts(t *testing.T) {
	runner := &fakeRunner{errs: []error{errors.New("encoder blew up")}}
	e := NewExtractor(runner, t.TempDir())

	err := e.Extract(context.Background(), "video.mp4", nil, kinds(model.KindMP4, model.KindMP3), "abc_clip")
	if err == nil || !strings.Contains(err.Error(), "mp4 extraction failed") {
		t.Fatalf("error = %v, want mp4 stage label", err)
	}
	if len(runner.calls) != 1 {
		t.Errorf("later kinds must not run after a failure, got %d invocations", len(runner.calls))
	}
}
