// Package gcc implements the wrapper.Wrapper for the GCC/Clang family,
// repurposing the teacher's argument-rewriting idiom from "build the real
// invocation" to "classify argv for hashing purposes".
package gcc

import "strings"

// excludedSearchFlags are include-search and macro-define/undef flags.
// Their effect on output is already captured by the preprocessed source, so
// both the flag and its value (two-part or glued) are dropped from the
// relevant-argument list entirely.
var excludedSearchFlags = []string{"-I", "-D", "-U", "-isystem", "-iquote", "-L"}

// outputPathFlags name flags whose value is a path the compiler writes to,
// not reads from; excluded because the path never changes what gets
// produced, only where it lands.
var outputPathFlags = []string{"-o", "-MF", "-MT", "-MQ"}

// twoPartFlags take their value as the following argv token, as opposed to
// a glued "-Ifoo" form. Every flag above that can appear two-part is listed
// here; "-o" is conventionally glued as "-ofoo" too but is overwhelmingly
// used two-part in practice, so it is included for completeness.
var twoPartFlags = unionSet(excludedSearchFlags, outputPathFlags)

func unionSet(lists ...[]string) map[string]bool {
	out := make(map[string]bool)
	for _, l := range lists {
		for _, s := range l {
			out[s] = true
		}
	}
	return out
}

func matchesAny(tok string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(tok, p) {
			return true
		}
	}
	return false
}

func isCosmeticFlag(tok string) bool {
	switch tok {
	case "-v", "--verbose", "-Q":
		return true
	}
	return strings.HasPrefix(tok, "-fdiagnostics-color")
}

// RelevantArguments scans argv (with argv[0], the compiler path itself,
// already stripped by the caller) and returns the subset that affects
// output semantics, preserving relative order. Two-part flag/value pairs
// and glued flag+value tokens are both handled; excluded categories drop
// both halves of a two-part pair.
func RelevantArguments(argv []string) []string {
	var out []string
	i := 0
	for i < len(argv) {
		tok := argv[i]

		if twoPartFlags[tok] {
			// "-I" "path" form: consume both tokens, emit neither
			// (search-path/macro) or neither (output path).
			i += 2
			continue
		}
		if matchesAny(tok, excludedSearchFlags) || matchesAny(tok, outputPathFlags) {
			// Glued form, e.g. "-Iinclude/", "-DFOO=1", "-ofoo.o".
			i++
			continue
		}
		if isCosmeticFlag(tok) {
			i++
			continue
		}
		out = append(out, tok)
		i++
	}
	return out
}
