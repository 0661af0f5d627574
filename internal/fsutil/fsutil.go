// Package fsutil wraps afero.Fs with the small set of helpers the wrapper
// and cache backend need: existence checks, atomic file writes, and
// extension-based path manipulation. Every exported function takes an
// afero.Fs explicitly so tests can swap in afero.NewMemMapFs.
package fsutil

import (
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// Exists reports whether path exists, treating a stat error other than
// not-exist as a hard failure.
func Exists(fs afero.Fs, path string) (bool, error) {
	return afero.Exists(fs, path)
}

// IsDir reports whether path exists and is a directory.
func IsDir(fs afero.Fs, path string) (bool, error) {
	return afero.DirExists(fs, path)
}

// ChangeExtension returns path with its extension (the suffix starting at
// the last '.' in its final path segment) replaced by newExt. newExt should
// include the leading dot, e.g. ".o". A path with no extension has newExt
// appended.
func ChangeExtension(path, newExt string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + newExt
}

// rngSource is process-local and seeded once at package initialisation; it is only used to
// make temp-file names unlikely to collide, never for anything
// security-sensitive.
var rngSource = rand.New(rand.NewSource(time.Now().UnixNano()))

// WriteFileAtomic writes data to path by first writing to a sibling
// temporary file and then renaming it into place, so concurrent readers
// never observe a partially written file. The temporary file is cleaned up
// if the rename fails.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm uint32) error {
	dir := filepath.Dir(path)
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("fsutil: mkdir %s: %w", dir, err)
	}

	tmpPath := filepath.Join(dir, fmt.Sprintf(".%s.tmp%d", filepath.Base(path), rngSource.Int63()))
	f, err := fs.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(perm))
	if err != nil {
		return fmt.Errorf("fsutil: create temp file for %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		fs.Remove(tmpPath)
		return fmt.Errorf("fsutil: write temp file for %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		fs.Remove(tmpPath)
		return fmt.Errorf("fsutil: close temp file for %s: %w", path, err)
	}

	if err := fs.Rename(tmpPath, path); err != nil {
		fs.Remove(tmpPath)
		return fmt.Errorf("fsutil: rename into place %s: %w", path, err)
	}
	return nil
}

// WalkExtension walks root and invokes fn for every regular file whose
// extension (case-sensitive, including the dot) equals ext.
func WalkExtension(fs afero.Fs, root, ext string, fn func(path string) error) error {
	return afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ext {
			return nil
		}
		return fn(path)
	})
}

// TempFile creates a new empty file under dir with the given name prefix and
// suffix, returning its path and a closer that removes it. Callers defer the
// closer to guarantee scratch files used for probing (e.g. a preprocessed
// source awaiting hashing) never outlive the call that created them.
func TempFile(fs afero.Fs, dir, prefix, suffix string) (path string, remove func() error, err error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return "", nil, fmt.Errorf("fsutil: mkdir %s: %w", dir, err)
	}
	name := fmt.Sprintf("%s%d%s", prefix, rngSource.Int63(), suffix)
	path = filepath.Join(dir, name)
	f, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("fsutil: create temp file %s: %w", path, err)
	}
	f.Close()
	return path, func() error { return fs.Remove(path) }, nil
}
