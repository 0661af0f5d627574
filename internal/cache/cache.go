// Package cache defines the port through which the orchestrator stores and
// retrieves compiled outputs keyed by fingerprint. internal/cache/fscache
// provides the default content-addressed filesystem implementation.
package cache

import "context"

// Entry is everything needed to replay a cached compilation without
// re-running the compiler: the produced files, the captured stdout/stderr,
// and the exit code the real compiler returned when they were produced.
type Entry struct {
	Fingerprint string
	// Files maps a wrapper's stable output label (see wrapper.ExpectedFile)
	// to the file's content.
	Files    map[string][]byte
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	// Capabilities records the wrapper capabilities in effect when the
	// entry was stored, so a restore can sanity-check it against the
	// capabilities of the wrapper performing the lookup.
	Capabilities []string
}

// Cache is the storage port the orchestrator depends on. Implementations
// must give a reader either the complete Entry or none at all: no partial
// entry is ever observable, even under concurrent writers.
type Cache interface {
	// Lookup returns the entry for fingerprint, if present. found=false
	// with err=nil is a normal cache miss. A non-nil err indicates a
	// backend failure (I/O, corruption); callers degrade to direct
	// compiler execution rather than treating it as fatal.
	Lookup(ctx context.Context, fingerprint string) (entry *Entry, found bool, err error)

	// Store persists entry under fingerprint. A non-nil err indicates a
	// backend failure; callers log and continue, since the compile itself
	// already succeeded by the time Store is called.
	Store(ctx context.Context, fingerprint string, entry *Entry) error
}
