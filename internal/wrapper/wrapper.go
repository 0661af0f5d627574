// Package wrapper defines the polymorphic program-wrapper abstraction, the
// fixed-order fingerprint builder, the wrapper dispatcher, and the
// orchestrator that drives a wrapper through cache lookup, real-compiler
// execution, and cache store.
package wrapper

import (
	"github.com/mbitsnbites/buildcache-go/internal/arglist"
)

// Capability is a single declared behavioral trait of a wrapper.
type Capability string

const (
	// ForceDirectMode means preprocessed-mode hashing would be unsound for
	// this tool; the orchestrator must hash all inputs plus the full
	// command line instead.
	ForceDirectMode Capability = "force-direct-mode"
	// HardLinks means cached artifacts may be hard-linked to their
	// destination rather than copied, because the wrapper guarantees the
	// compiler never mutates its own output files in place.
	HardLinks Capability = "hard-links"
	// WorkDirRelevant means the compiler's output can depend on the
	// directory it was invoked from (e.g. relative paths baked into debug
	// info), so the orchestrator must fold the working directory into the
	// fingerprint as its own segment (segment C).
	WorkDirRelevant Capability = "workdir-relevant"
)

// CapabilitySet is the set of capabilities a wrapper declares.
type CapabilitySet map[Capability]bool

// Has reports whether the set declares cap.
func (s CapabilitySet) Has(cap Capability) bool {
	return s[cap]
}

// NewCapabilitySet builds a CapabilitySet from a list of capabilities.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = true
	}
	return s
}

// ExpectedFile describes one output file a successful compile must
// produce. Required=true means its absence after a successful compile is a
// protocol violation, not a soft miss.
type ExpectedFile struct {
	Path     string
	Required bool
}

// Wrapper is the polymorphic interface every concrete tool family
// (GCC-family, Rust, Cppcheck) implements. The orchestrator calls its hooks
// in the fixed order documented on Run.
type Wrapper interface {
	// CanHandleCommand inspects the executable basename and/or argv and
	// reports whether this wrapper claims the invocation.
	CanHandleCommand() bool

	// ResolveArgs performs one-shot normalization and classification of
	// the raw argv. It is called exactly once, before any other hook.
	// Errors are collected, not short-circuited; the returned error, if
	// non-nil, is a ParseErrors.
	ResolveArgs() error

	// Capabilities reports this wrapper's fixed behavioral traits.
	Capabilities() CapabilitySet

	// ProgramID returns a digest of the compiler's identity: its version
	// string and anything else that could silently change its output
	// (implicitly loaded libraries, sysroot). The working directory is not
	// part of it; see WorkingDirectory.
	ProgramID() (string, error)

	// RelevantArguments returns the subset of argv that affects output
	// semantics, in the order the hashing invariants require.
	RelevantArguments() arglist.List

	// RelevantEnvVars returns the subset of the environment relevant to
	// the compile's output, as a name->value map.
	RelevantEnvVars() map[string]string

	// InputFiles returns the explicit source/object inputs named on the
	// command line.
	InputFiles() []string

	// ImplicitInputFiles returns files the compiler reads that are not on
	// the command line (header dependencies, Rust .d file dependencies).
	// May invoke the compiler to discover them.
	ImplicitInputFiles() ([]string, error)

	// BuildFiles returns the output files the compiler will produce,
	// keyed by a stable label used as the cache-entry key.
	BuildFiles() map[string]ExpectedFile

	// PreprocessSource runs the preprocessor-only form of the command and
	// returns its stdout. Only called in preprocessed mode.
	PreprocessSource() ([]byte, error)

	// WorkingDirectory returns the directory the fingerprint should treat
	// as the invocation's working directory. Only called, and only folded
	// into the fingerprint (as segment C), when Capabilities declares
	// WorkDirRelevant.
	WorkingDirectory() (string, error)
}
