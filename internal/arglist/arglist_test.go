package arglist

import "testing"

func TestSplitJoinRoundTrip(t *testing.T) {
	cases := []string{"a", "a/b", "", "hello world", "-I/usr/include"}
	for _, tok := range cases {
		l := List{tok}
		got := Split(l.Join("/", false), '/')
		if !got.Equal(l) {
			t.Errorf("Split(Join([%q], '/'), '/') = %v, want %v", tok, got, l)
		}
	}
}

func TestSplitNeverCollapses(t *testing.T) {
	got := Split("a::b::", ':')
	want := List{"a", "", "b", "", ""}
	if !got.Equal(want) {
		t.Errorf("Split(%q, ':') = %v, want %v", "a::b::", got, want)
	}
}

func TestSplitEmptyString(t *testing.T) {
	got := Split("", ',')
	want := List{""}
	if !got.Equal(want) {
		t.Errorf("Split(\"\", ',') = %v, want %v", got, want)
	}
}

func TestJoinQuotesMetacharacters(t *testing.T) {
	l := List{"-DFOO=bar", "hello world", "plain"}
	got := l.Join(" ", true)
	want := `-DFOO=bar "hello world" plain`
	if got != want {
		t.Errorf("Join(quote=true) = %q, want %q", got, want)
	}
}

func TestJoinQuoteEscapesQuotesAndBackslashes(t *testing.T) {
	l := List{`say "hi"`, `back\slash`}
	got := l.Join(" ", true)
	want := `"say \"hi\"" "back\\slash"`
	if got != want {
		t.Errorf("Join(quote=true) = %q, want %q", got, want)
	}
}

func TestAtPanicsOutOfRange(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-range index")
		}
	}()
	List{"a"}.At(5)
}

func TestAppend(t *testing.T) {
	l := List{"a", "b"}
	got := l.Append("c", "d")
	want := List{"a", "b", "c", "d"}
	if !got.Equal(want) {
		t.Errorf("Append = %v, want %v", got, want)
	}
	// Original is untouched.
	if !l.Equal(List{"a", "b"}) {
		t.Errorf("Append mutated receiver: %v", l)
	}
}

func TestConcatEmptyLeftIdentity(t *testing.T) {
	b := List{"x", "y"}
	got := Concat(nil, b)
	if !got.Equal(b) {
		t.Errorf("Concat(nil, b) = %v, want %v", got, b)
	}
}

func TestConcat(t *testing.T) {
	a := List{"a"}
	b := List{"b", "c"}
	got := Concat(a, b)
	want := List{"a", "b", "c"}
	if !got.Equal(want) {
		t.Errorf("Concat(a, b) = %v, want %v", got, want)
	}
}

func TestEqual(t *testing.T) {
	if !(List{"a", "b"}).Equal(List{"a", "b"}) {
		t.Error("expected equal lists to compare equal")
	}
	if (List{"a", "b"}).Equal(List{"a"}) {
		t.Error("expected different-length lists to compare unequal")
	}
	if (List{"a", "b"}).Equal(List{"b", "a"}) {
		t.Error("expected elementwise equality, order matters")
	}
}

func TestSorted(t *testing.T) {
	l := List{"c", "a", "b"}
	got := l.Sorted()
	want := List{"a", "b", "c"}
	if !got.Equal(want) {
		t.Errorf("Sorted() = %v, want %v", got, want)
	}
	// Original is untouched.
	if !l.Equal(List{"c", "a", "b"}) {
		t.Errorf("Sorted mutated receiver: %v", l)
	}
}
