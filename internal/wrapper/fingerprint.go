package wrapper

import (
	"fmt"
	"sort"

	"github.com/mbitsnbites/buildcache-go/internal/arglist"
	"github.com/mbitsnbites/buildcache-go/internal/hasher"
)

// segment identifies one label in the fixed fingerprint order.
type segment int

const (
	segVersion segment = iota
	segProgram
	segArgs
	segEnv
	segSource
	segInputs
	segWorkDir
	segCount
)

// FingerprintBuilder assembles a fingerprint from labeled segments in the
// one fixed order V, P, A, E, S, I, C. Adding a segment out of its relative
// order is a programmer error and panics immediately, rather than silently
// producing a fingerprint whose meaning depends on call order.
type FingerprintBuilder struct {
	h        *hasher.Hasher
	lastSeen segment
	started  bool
}

// NewFingerprintBuilder returns an empty builder.
func NewFingerprintBuilder() *FingerprintBuilder {
	return &FingerprintBuilder{h: hasher.New(), lastSeen: -1}
}

func (b *FingerprintBuilder) advance(s segment) {
	if b.started && s <= b.lastSeen {
		panic(fmt.Sprintf("wrapper: fingerprint segment %d added out of order after %d", s, b.lastSeen))
	}
	b.started = true
	b.lastSeen = s
}

// HashVersion feeds segment V: the per-wrapper hash-format version string.
func (b *FingerprintBuilder) HashVersion(version string) *FingerprintBuilder {
	b.advance(segVersion)
	b.h.UpdateString(version)
	return b
}

// ProgramIdentity feeds segment P: the compiler identity digest.
func (b *FingerprintBuilder) ProgramIdentity(id string) *FingerprintBuilder {
	b.advance(segProgram)
	b.h.UpdateString(id)
	return b
}

// Arguments feeds segment A: relevant arguments joined with NUL.
func (b *FingerprintBuilder) Arguments(args arglist.List) *FingerprintBuilder {
	b.advance(segArgs)
	b.h.UpdateString(args.Join("\x00", false))
	return b
}

// EnvVars feeds segment E: relevant env vars as NAME=VALUE pairs, sorted
// lexicographically by name, joined with NUL.
func (b *FingerprintBuilder) EnvVars(vars map[string]string) *FingerprintBuilder {
	b.advance(segEnv)
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)
	pairs := make(arglist.List, len(names))
	for i, name := range names {
		pairs[i] = name + "=" + vars[name]
	}
	b.h.UpdateString(pairs.Join("\x00", false))
	return b
}

// PreprocessedSource feeds segment S: preprocessed source bytes.
// Preprocessed-mode only.
func (b *FingerprintBuilder) PreprocessedSource(src []byte) *FingerprintBuilder {
	b.advance(segSource)
	b.h.Update(src)
	return b
}

// InputFileHash is one (path, content hash) pair contributing to segment I.
type InputFileHash struct {
	Path        string
	ContentHash string
}

// InputFiles feeds segment I: sorted (path, content hash) pairs.
// Direct-mode only.
func (b *FingerprintBuilder) InputFiles(files []InputFileHash) *FingerprintBuilder {
	b.advance(segInputs)
	sorted := append([]InputFileHash(nil), files...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })
	for _, f := range sorted {
		b.h.UpdateString(f.Path)
		b.h.UpdateString("\x00")
		b.h.UpdateString(f.ContentHash)
	}
	return b
}

// WorkDir feeds segment C: the absolute working directory. Only included
// when a wrapper declares working directory relevant.
func (b *FingerprintBuilder) WorkDir(dir string) *FingerprintBuilder {
	b.advance(segWorkDir)
	b.h.UpdateString(dir)
	return b
}

// Finalize returns the hex fingerprint digest.
func (b *FingerprintBuilder) Finalize() string {
	return b.h.Finalize()
}
