// Package hasher computes the deterministic, content-only fingerprints used
// to identify a compiler invocation. Hashing ignores file metadata (mtime,
// permissions, owner) entirely: two files are indistinguishable to the
// hasher iff their bytes are identical.
package hasher

import (
	"fmt"
	"hash"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/afero"
)

// defaultBufferSize is the chunk size used when streaming file content
// through the hash.
const defaultBufferSize = 32 * 1024

var bufferPool = sync.Pool{
	New: func() interface{} {
		buf := make([]byte, defaultBufferSize)
		return &buf
	},
}

// Hasher accumulates a sequence of writes into a single running digest. It
// is not safe for concurrent use; callers needing concurrency should create
// one Hasher per goroutine and combine the resulting sums.
type Hasher struct {
	h hash.Hash64
}

// New returns a Hasher ready to accumulate input.
func New() *Hasher {
	return &Hasher{h: xxhash.New()}
}

// Update feeds raw bytes into the digest.
func (hr *Hasher) Update(p []byte) {
	hr.h.Write(p)
}

// UpdateString feeds a string into the digest without an intermediate copy.
func (hr *Hasher) UpdateString(s string) {
	io.WriteString(hr.h, s)
}

// UpdateFileDeterministic streams the content of path (read through fs) into
// the digest, buffer-pooled to avoid per-call allocation. Only file bytes
// participate in the digest; the path itself is not hashed here, since
// callers that care about path identity hash it explicitly alongside the
// content (see internal/wrapper/fingerprint).
func (hr *Hasher) UpdateFileDeterministic(fs afero.Fs, path string) error {
	f, err := fs.Open(path)
	if err != nil {
		return fmt.Errorf("hasher: open %s: %w", path, err)
	}
	defer f.Close()

	bufPtr := bufferPool.Get().(*[]byte)
	defer bufferPool.Put(bufPtr)

	if _, err := io.CopyBuffer(hr.h, f, *bufPtr); err != nil {
		return fmt.Errorf("hasher: read %s: %w", path, err)
	}
	return nil
}

// Finalize returns the accumulated digest as a lowercase hex string. It does
// not reset the Hasher; continuing to Update after Finalize is legal and
// simply extends the digest.
func (hr *Hasher) Finalize() string {
	return fmt.Sprintf("%016x", hr.h.Sum64())
}

// HashBytes is a convenience one-shot digest of a single byte slice.
func HashBytes(p []byte) string {
	hr := New()
	hr.Update(p)
	return hr.Finalize()
}

// HashFile is a convenience one-shot digest of a single file's content.
func HashFile(fs afero.Fs, path string) (string, error) {
	hr := New()
	if err := hr.UpdateFileDeterministic(fs, path); err != nil {
		return "", err
	}
	return hr.Finalize(), nil
}
