// Package collect gathers a job's artifacts into a single zip bundle and
// ships it to object storage.
package collect

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/stephane1109/mediaextract/internal/domain/repository"
)

// ErrNoArtifacts is returned when a job produced nothing to bundle.
var ErrNoArtifacts = errors.New("no artifacts found for bundle")

// Collector bundles artifacts from outputDir into object storage.
type Collector struct {
	storage repository.ObjectStorage
	dir     string
}

// NewCollector creates a Collector reading artifacts from dir.
func NewCollector(storage repository.ObjectStorage, dir string) *Collector {
	return &Collector{storage: storage, dir: dir}
}

// artifactPatterns lists every file family one run can produce for a base
// id, relative to the output directory.
func artifactPatterns(baseID string) []string {
	return []string{
		baseID + "*.mp4",
		baseID + "*.mp3",
		baseID + "*.wav",
		filepath.Join("img1_"+baseID, "i_*.jpg"),
		filepath.Join("img25_"+baseID, "i_*.jpg"),
		filepath.Join("img1_full_"+baseID, "i_*.jpg"),
		filepath.Join("img25_full_"+baseID, "i_*.jpg"),
	}
}

// List returns every artifact file currently on disk for baseID.
func (c *Collector) List(baseID string) ([]string, error) {
	var files []string
	for _, pattern := range artifactPatterns(baseID) {
		matches, err := filepath.Glob(filepath.Join(c.dir, pattern))
		if err != nil {
			return nil, err
		}
		for _, m := range matches {
			info, err := os.Stat(m)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			files = append(files, m)
		}
	}
	return files, nil
}

// Collect zips every artifact for baseID, uploads the bundle under
// "bundles/{jobID}/resultats_{baseID}.zip" and returns that key. Image
// files keep a per-directory prefix inside the archive so identically
// named frames from different sequences never collide.
func (c *Collector) Collect(ctx context.Context, jobID, baseID string) (string, error) {
	files, err := c.List(baseID)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", ErrNoArtifacts
	}

	zipName := fmt.Sprintf("resultats_%s.zip", baseID)
	zipPath := filepath.Join(c.dir, zipName)
	if err := writeZip(zipPath, c.dir, files); err != nil {
		return "", fmt.Errorf("bundle artifacts: %w", err)
	}
	defer os.Remove(zipPath)

	f, err := os.Open(zipPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	key := fmt.Sprintf("bundles/%s/%s", jobID, zipName)
	if err := c.storage.Upload(ctx, key, f, "application/zip"); err != nil {
		return "", fmt.Errorf("upload bundle: %w", err)
	}
	return key, nil
}

func writeZip(zipPath, baseDir string, files []string) error {
	out, err := os.Create(zipPath)
	if err != nil {
		return err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, file := range files {
		rel, err := filepath.Rel(baseDir, file)
		if err != nil {
			rel = filepath.Base(file)
		}
		w, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(file)
		if err != nil {
			return err
		}
		_, err = io.Copy(w, in)
		in.Close()
		if err != nil {
			return err
		}
	}
	return zw.Close()
}
