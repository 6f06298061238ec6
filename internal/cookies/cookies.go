// Package cookies persists a browser-exported cookies.txt between runs so
// restricted sources keep working without re-uploading credentials.
// The file is consumed as an opaque path by the download tool; no parsing
// happens here.
package cookies

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const fileName = "cookies.txt"

// ErrAlreadyStored is returned when a cookie file exists and the caller did
// not ask to replace it.
var ErrAlreadyStored = errors.New("a cookies.txt is already stored; force replacement to overwrite")

// Store manages the canonical cookies.txt inside a work directory.
type Store struct {
	dir string
}

// NewStore creates a Store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Path returns the canonical location of the stored cookie file, whether or
// not it exists yet.
func (s *Store) Path() string {
	return filepath.Join(s.dir, fileName)
}

// Available reports whether a non-empty cookie file is stored.
func (s *Store) Available() bool {
	info, err := os.Stat(s.Path())
	return err == nil && info.Size() > 0
}

// Save writes uploaded cookie content. An existing file is only replaced
// when force is set.
func (s *Store) Save(content io.Reader, force bool) (string, error) {
	path := s.Path()
	if !force {
		if _, err := os.Stat(path); err == nil {
			return path, ErrAlreadyStored
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return "", fmt.Errorf("create cookie file: %w", err)
	}
	if _, err := io.Copy(f, content); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write cookie file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close cookie file: %w", err)
	}
	return path, nil
}

// Effective returns the cookie file path to hand to the download tool, or
// "" when none is stored.
func (s *Store) Effective() string {
	if s.Available() {
		return s.Path()
	}
	return ""
}

// Info returns a short human-readable status line for diagnostics.
func (s *Store) Info() string {
	info, err := os.Stat(s.Path())
	if err != nil {
		return "no cookies stored"
	}
	return fmt.Sprintf("cookies.txt present (%d bytes, updated %s)",
		info.Size(), info.ModTime().Format("2006-01-02 15:04:05"))
}
