package collect

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/stephane1109/mediaextract/internal/domain/repository"
)

// stubStorage records the last upload; other operations are unused here.
type stubStorage struct {
	key         string
	data        []byte
	contentType string
	uploadErr   error
}

var _ repository.ObjectStorage = (*stubStorage)(nil)

func (s *stubStorage) Upload(_ context.Context, key string, reader io.Reader, contentType string) error {
	if s.uploadErr != nil {
		return s.uploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	s.key, s.data, s.contentType = key, data, contentType
	return nil
}

func (s *stubStorage) GeneratePresignedUploadURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

func (s *stubStorage) GeneratePresignedDownloadURL(context.Context, string, time.Duration) (string, error) {
	return "", nil
}

func (s *stubStorage) Download(context.Context, string) (io.ReadCloser, error) {
	return nil, repository.ErrObjectNotFound
}

func (s *stubStorage) Delete(context.Context, string) error { return nil }

func (s *stubStorage) Exists(context.Context, string) (bool, error) { return false, nil }

func writeArtifact(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("data"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCollector_CollectBundlesAllArtifactFamilies(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"abc_clip_video.mp4",
		"abc_clip_seg.mp3",
		"abc_clip_full.wav",
		"abc_clip_timelapse_12fps.mp4",
		filepath.Join("img1_full_abc_clip", "i_0s_1fps.jpg"),
		filepath.Join("img25_abc_clip", "i_10s_25fps_00.jpg"),
		"other_job_video.mp4", // different base id, must stay out
	} {
		writeArtifact(t, filepath.Join(dir, name))
	}

	storage := &stubStorage{}
	c := NewCollector(storage, dir)

	key, err := c.Collect(context.Background(), "job-1", "abc_clip")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "bundles/job-1/resultats_abc_clip.zip" {
		t.Errorf("key = %q", key)
	}
	if storage.contentType != "application/zip" {
		t.Errorf("content type = %q", storage.contentType)
	}

	zr, err := zip.NewReader(bytes.NewReader(storage.data), int64(len(storage.data)))
	if err != nil {
		t.Fatalf("uploaded bundle is not a zip: %v", err)
	}
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	want := []string{
		"abc_clip_full.wav",
		"abc_clip_seg.mp3",
		"abc_clip_timelapse_12fps.mp4",
		"abc_clip_video.mp4",
		"img1_full_abc_clip/i_0s_1fps.jpg",
		"img25_abc_clip/i_10s_25fps_00.jpg",
	}
	if len(names) != len(want) {
		t.Fatalf("bundle entries = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, names[i], want[i])
		}
	}

	// The staging zip must not outlive the upload.
	if _, err := os.Stat(filepath.Join(dir, "resultats_abc_clip.zip")); !os.IsNotExist(err) {
		t.Error("staging zip left behind")
	}
}

func TestCollector_NoArtifacts(t *testing.T) {
	c := NewCollector(&stubStorage{}, t.TempDir())

	_, err := c.Collect(context.Background(), "job-1", "abc_clip")
	if !errors.Is(err, ErrNoArtifacts) {
		t.Errorf("error = %v, want ErrNoArtifacts", err)
	}
}

func TestCollector_UploadFailure(t *testing.T) {
	dir := t.TempDir()
	writeArtifact(t, filepath.Join(dir, "abc_clip_video.mp4"))

	storage := &stubStorage{uploadErr: errors.New("bucket gone")}
	c := NewCollector(storage, dir)

	_, err := c.Collect(context.Background(), "job-1", "abc_clip")
	if err == nil {
		t.Fatal("expected upload error")
	}
}
