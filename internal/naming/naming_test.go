package naming

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
)

var safeCharset = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

func TestShortID(t *testing.T) {
	tests := []struct {
		name     string
		rawID    string
		rawTitle string
		want     string
	}{
		{
			name:     "plain title",
			rawID:    "dQw4w9WgXcQ",
			rawTitle: "Never Gonna Give You Up",
			want:     "dQw4w9Wg_Never_Gonna_Give_You_Up",
		},
		{
			name:     "accents and typographic quotes",
			rawID:    "abc123",
			rawTitle: "L’été « vidéo » : test",
			want:     "abc123_Lete_video_-_test",
		},
		{
			name:     "empty id and title fall back",
			rawID:    "",
			rawTitle: "",
			want:     "vid_video",
		},
		{
			name:     "emoji only title falls back",
			rawID:    "xyz",
			rawTitle: "\U0001f600\U0001f3a5",
			want:     "xyz_video",
		},
		{
			name:     "windows-reserved punctuation",
			rawID:    "id",
			rawTitle: `a/b\c|d?e*f<g>h`,
			want:     "id_a-b-c-defgh",
		},
		{
			name:     "multibyte id is filtered before the prefix cut",
			rawID:    "vidéo-série-0042",
			rawTitle: "clip",
			want:     "vido-sri_clip",
		},
		{
			name:     "id of only unsafe runes falls back",
			rawID:    "傳統中文",
			rawTitle: "clip",
			want:     "vid_clip",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShortID(tt.rawID, tt.rawTitle)
			if got != tt.want {
				t.Errorf("ShortID(%q, %q) = %q, want %q", tt.rawID, tt.rawTitle, got, tt.want)
			}
		})
	}
}

func TestShortID_Properties(t *testing.T) {
	titles := []string{
		"Mixed 中文 and русский scripts",
		"tabs\tand\nnewlines\rhere",
		"« Conférence » — partie 1/3",
		"emoji \U0001f600 inside a title",
		"a very long title that certainly exceeds the twenty-four character budget",
		"",
	}

	for _, title := range titles {
		got := ShortID("0123456789abcdef", title)
		if got == "" {
			t.Fatalf("empty result for title %q", title)
		}
		if len(got) > IDPrefixLen+1+MaxTitleLen {
			t.Errorf("ShortID too long for %q: %d chars (%q)", title, len(got), got)
		}
		if !safeCharset.MatchString(got) {
			t.Errorf("ShortID contains unsafe characters for %q: %q", title, got)
		}
		if again := ShortID("0123456789abcdef", title); again != got {
			t.Errorf("ShortID not stable for %q: %q vs %q", title, got, again)
		}
	}
}

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	first := UniquePath(dir, "clip_seg", ".mp4")
	if first != filepath.Join(dir, "clip_seg.mp4") {
		t.Fatalf("expected plain name when free, got %q", first)
	}

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		p := UniquePath(dir, "clip_seg", ".mp4")
		if seen[p] {
			t.Fatalf("UniquePath returned %q twice", p)
		}
		seen[p] = true
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	want := filepath.Join(dir, "clip_seg_4.mp4")
	if !seen[want] {
		t.Errorf("expected deterministic suffix sequence to include %q, got %v", want, seen)
	}
}

func TestSanitizeTitle_Truncation(t *testing.T) {
	got := SanitizeTitle("abcdefghijklmnopqrstuvwxyz0123456789")
	if len(got) != MaxTitleLen {
		t.Errorf("expected %d chars, got %d (%q)", MaxTitleLen, len(got), got)
	}
}
