// Package envutil provides Unicode-safe process environment access with
// scoped, unconditionally-restoring mutation, and typed accessors with a
// fixed truthy/falsy vocabulary.
package envutil

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Env is the environment access port. A real process uses ProcessEnv; tests
// use a map-backed double.
type Env interface {
	// Get returns the value of name and whether it is defined. An empty
	// string is a valid defined value; absent is reported via ok=false.
	Get(name string) (value string, ok bool)
	Set(name, value string) error
	Unset(name string) error
	Defined(name string) bool
	// Environ returns all current entries as "NAME=VALUE" pairs, in
	// unspecified order.
	Environ() []string
}

// ProcessEnv is an Env backed by the real OS process environment.
type ProcessEnv struct{}

var _ Env = ProcessEnv{}

func (ProcessEnv) Get(name string) (string, bool) {
	return os.LookupEnv(name)
}

func (ProcessEnv) Set(name, value string) error {
	return os.Setenv(name, value)
}

func (ProcessEnv) Unset(name string) error {
	return os.Unsetenv(name)
}

func (ProcessEnv) Defined(name string) bool {
	_, ok := os.LookupEnv(name)
	return ok
}

func (ProcessEnv) Environ() []string {
	return os.Environ()
}

// scopedGuard restores a single variable to its prior state on Close.
type scopedGuard struct {
	env      Env
	name     string
	hadPrior bool
	prior    string
}

// Close restores the variable to the state recorded at construction. It is
// unconditional: it always attempts the restoration, regardless of how the
// scope is being exited. Close never panics; a failure to restore (which
// cannot happen for ProcessEnv) is reported as an error rather than left
// silent.
func (g *scopedGuard) Close() error {
	if g.hadPrior {
		return g.env.Set(g.name, g.prior)
	}
	return g.env.Unset(g.name)
}

// ScopedSet sets name to value, returning a guard whose Close restores
// whatever name was bound to before (absent or a prior string), for all
// UTF-8 names and values. Intended to be used with defer:
//
//	guard := envutil.ScopedSet(env, "FOO", "bar")
//	defer guard.Close()
func ScopedSet(env Env, name, value string) io.Closer {
	prior, hadPrior := env.Get(name)
	g := &scopedGuard{env: env, name: name, hadPrior: hadPrior, prior: prior}
	// Set may fail in theory (a faulty Env double); if so, there is
	// nothing prior to restore away from, so leave the guard harmless.
	_ = env.Set(name, value)
	return g
}

// ScopedUnset temporarily removes name, returning a guard whose Close
// restores it to its prior state (which may itself be absent).
func ScopedUnset(env Env, name string) io.Closer {
	prior, hadPrior := env.Get(name)
	g := &scopedGuard{env: env, name: name, hadPrior: hadPrior, prior: prior}
	_ = env.Unset(name)
	return g
}

// ScopedUnsetAll unsets every name in names, returning a single guard that
// restores all of them (in reverse order) on Close. Used for sandboxing a
// compiler version/sysroot probe behind a fixed denylist.
func ScopedUnsetAll(env Env, names ...string) io.Closer {
	guards := make([]io.Closer, len(names))
	for i, name := range names {
		guards[i] = ScopedUnset(env, name)
	}
	return multiGuard(guards)
}

type multiGuard []io.Closer

// Close restores variables in reverse (LIFO) order, mirroring nested scope
// exit, and returns the first error encountered (after attempting every
// restoration).
func (m multiGuard) Close() error {
	var firstErr error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// StringVar returns the value of name, or "" if undefined.
func StringVar(env Env, name string) string {
	v, _ := env.Get(name)
	return v
}

// Int64Var parses the value of name as a signed decimal integer. An
// undefined or empty variable parses as 0 with no error.
func Int64Var(env Env, name string) (int64, error) {
	v, ok := env.Get(name)
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("envutil: %s: %w", name, err)
	}
	return n, nil
}

// falsyValues is the fixed, case-insensitive falsy vocabulary. Anything
// else defined is truthy.
var falsyValues = map[string]bool{
	"0":     true,
	"off":   true,
	"no":    true,
	"false": true,
	"":      true,
}

// BoolVar parses the value of name using the fixed truthy/falsy vocabulary:
// "0", "off", "no", "false", empty, or undefined are falsy (case-
// insensitive); any other defined value is truthy.
func BoolVar(env Env, name string) bool {
	v, _ := env.Get(name)
	return !falsyValues[strings.ToLower(v)]
}

// DefinedNonEmpty reports whether name is defined with a non-empty value.
func DefinedNonEmpty(env Env, name string) bool {
	v, ok := env.Get(name)
	return ok && v != ""
}
