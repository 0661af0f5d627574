// Package fscache implements the default cache.Cache backend: a
// content-addressed filesystem store split into a manifests directory and
// an objects directory, sharded by the first two hex characters of the
// fingerprint, mirroring the manifest/objects layout of the pack's
// content-addressed cache library.
package fscache

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"

	"github.com/mbitsnbites/buildcache-go/internal/cache"
	"github.com/mbitsnbites/buildcache-go/internal/fsutil"
)

// manifest is the on-disk JSON record for one fingerprint. Output file
// bytes are stored separately under the objects directory so the manifest
// itself stays small and greppable.
type manifest struct {
	Fingerprint  string    `json:"fingerprint"`
	OutputNames  []string  `json:"output_names"`
	Stdout       []byte    `json:"stdout,omitempty"`
	Stderr       []byte    `json:"stderr,omitempty"`
	ExitCode     int       `json:"exit_code"`
	Capabilities []string  `json:"capabilities,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Backend is a filesystem-backed, content-addressed cache.Cache.
type Backend struct {
	root string
	fs   afero.Fs
	mu   sync.RWMutex
	now  func() time.Time
}

var _ cache.Cache = (*Backend)(nil)

// Option configures a Backend at construction.
type Option func(*Backend)

// WithFs overrides the filesystem, primarily for tests with
// afero.NewMemMapFs.
func WithFs(fs afero.Fs) Option {
	return func(b *Backend) { b.fs = fs }
}

// WithNowFunc overrides the clock, for deterministic tests.
func WithNowFunc(now func() time.Time) Option {
	return func(b *Backend) { b.now = now }
}

// Open creates (if necessary) and returns a Backend rooted at root.
func Open(root string, opts ...Option) (*Backend, error) {
	b := &Backend{root: root, fs: afero.NewOsFs(), now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	if err := b.fs.MkdirAll(b.manifestDir(), 0o755); err != nil {
		return nil, fmt.Errorf("fscache: create manifests dir: %w", err)
	}
	if err := b.fs.MkdirAll(b.objectsDir(), 0o755); err != nil {
		return nil, fmt.Errorf("fscache: create objects dir: %w", err)
	}
	return b, nil
}

func (b *Backend) manifestDir() string { return filepath.Join(b.root, "manifests") }
func (b *Backend) objectsDir() string  { return filepath.Join(b.root, "objects") }

func shard(fingerprint string) string {
	if len(fingerprint) < 2 {
		return fingerprint
	}
	return fingerprint[:2]
}

func (b *Backend) manifestPath(fingerprint string) string {
	return filepath.Join(b.manifestDir(), shard(fingerprint), fingerprint+".json")
}

func (b *Backend) objectDir(fingerprint string) string {
	return filepath.Join(b.objectsDir(), shard(fingerprint), fingerprint)
}

// Lookup implements cache.Cache.
func (b *Backend) Lookup(ctx context.Context, fingerprint string) (*cache.Entry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	exists, err := fsutil.Exists(b.fs, b.manifestPath(fingerprint))
	if err != nil {
		return nil, false, fmt.Errorf("fscache: check manifest: %w", err)
	}
	if !exists {
		return nil, false, nil
	}

	data, err := afero.ReadFile(b.fs, b.manifestPath(fingerprint))
	if err != nil {
		return nil, false, fmt.Errorf("fscache: read manifest: %w", err)
	}
	var m manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("fscache: corrupt manifest %s: %w", fingerprint, err)
	}

	files := make(map[string][]byte, len(m.OutputNames))
	objDir := b.objectDir(fingerprint)
	for _, name := range m.OutputNames {
		content, err := afero.ReadFile(b.fs, filepath.Join(objDir, name))
		if err != nil {
			return nil, false, fmt.Errorf("fscache: missing object %s for %s: %w", name, fingerprint, err)
		}
		files[name] = content
	}

	return &cache.Entry{
		Fingerprint:  fingerprint,
		Files:        files,
		Stdout:       m.Stdout,
		Stderr:       m.Stderr,
		ExitCode:     m.ExitCode,
		Capabilities: m.Capabilities,
	}, true, nil
}

// Store implements cache.Cache. It writes every object file, then the
// manifest, both via write-to-temp-then-rename so a concurrent Lookup
// never observes a partial entry.
func (b *Backend) Store(ctx context.Context, fingerprint string, entry *cache.Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	objDir := b.objectDir(fingerprint)
	names := make([]string, 0, len(entry.Files))
	for name, content := range entry.Files {
		names = append(names, name)
		path := filepath.Join(objDir, name)
		if err := fsutil.WriteFileAtomic(b.fs, path, content, 0o644); err != nil {
			return fmt.Errorf("fscache: write object %s: %w", name, err)
		}
	}

	m := manifest{
		Fingerprint:  fingerprint,
		OutputNames:  names,
		Stdout:       entry.Stdout,
		Stderr:       entry.Stderr,
		ExitCode:     entry.ExitCode,
		Capabilities: entry.Capabilities,
		CreatedAt:    b.now(),
	}
	data, err := json.MarshalIndent(&m, "", "  ")
	if err != nil {
		return fmt.Errorf("fscache: marshal manifest: %w", err)
	}
	if err := fsutil.WriteFileAtomic(b.fs, b.manifestPath(fingerprint), data, 0o644); err != nil {
		return fmt.Errorf("fscache: write manifest: %w", err)
	}
	return nil
}

// Clear removes every manifest and object, recreating empty directories.
func (b *Backend) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.fs.RemoveAll(b.manifestDir()); err != nil {
		return fmt.Errorf("fscache: clear manifests: %w", err)
	}
	if err := b.fs.RemoveAll(b.objectsDir()); err != nil {
		return fmt.Errorf("fscache: clear objects: %w", err)
	}
	if err := b.fs.MkdirAll(b.manifestDir(), 0o755); err != nil {
		return fmt.Errorf("fscache: recreate manifests: %w", err)
	}
	if err := b.fs.MkdirAll(b.objectsDir(), 0o755); err != nil {
		return fmt.Errorf("fscache: recreate objects: %w", err)
	}
	return nil
}
