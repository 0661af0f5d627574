// Package arglist provides the canonical ordered-string-list representation
// used throughout the wrapper for command lines, environment entries, and
// file lists.
package arglist

import (
	"sort"
	"strings"
)

// List is an ordered, 0-indexed sequence of strings. The zero value is an
// empty list.
type List []string

// Split splits s on every occurrence of sep, producing exactly k+1 fields
// for k separator occurrences. It is a thin wrapper over strings.Split; the
// name documents the exact-field, no-collapse contract the rest of the
// package depends on: empty fields are preserved.
func Split(s string, sep byte) List {
	return List(strings.Split(s, string(sep)))
}

// Join concatenates the list with sep between elements. When quote is true,
// any token containing whitespace or a shell metacharacter is wrapped in
// double quotes, with embedded '"' and '\' escaped.
func (l List) Join(sep string, quote bool) string {
	if !quote {
		return strings.Join(l, sep)
	}
	quoted := make([]string, len(l))
	for i, tok := range l {
		quoted[i] = quoteIfNeeded(tok)
	}
	return strings.Join(quoted, sep)
}

func quoteIfNeeded(tok string) string {
	if !needsQuoting(tok) {
		return tok
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range tok {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

const shellMetaChars = " \t\n\"'\\$`&|;<>(){}*?[]~!#"

func needsQuoting(tok string) bool {
	if tok == "" {
		return true
	}
	return strings.ContainsAny(tok, shellMetaChars)
}

// At returns the token at index i. It panics if i is out of range: an
// out-of-range index is a programmer error, not a recoverable condition.
func (l List) At(i int) string {
	return l[i]
}

// Append returns a new list with tokens appended.
func (l List) Append(tokens ...string) List {
	out := make(List, 0, len(l)+len(tokens))
	out = append(out, l...)
	out = append(out, tokens...)
	return out
}

// Concat concatenates two lists. Concat(nil, b) equals b.
func Concat(a, b List) List {
	if len(a) == 0 {
		return b
	}
	out := make(List, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}

// Equal reports whether two lists contain the same tokens in the same order.
func (l List) Equal(other List) bool {
	if len(l) != len(other) {
		return false
	}
	for i := range l {
		if l[i] != other[i] {
			return false
		}
	}
	return true
}

// Sorted returns a sorted copy of l. It does not modify l.
func (l List) Sorted() List {
	out := make(List, len(l))
	copy(out, l)
	sort.Strings(out)
	return out
}
