package rust

import (
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbitsnbites/buildcache-go/internal/procexec"
	"github.com/mbitsnbites/buildcache-go/internal/wrapper"
)

type mapEnv map[string]string

func (m mapEnv) Get(name string) (string, bool) { v, ok := m[name]; return v, ok }
func (m mapEnv) Set(name, value string) error   { m[name] = value; return nil }
func (m mapEnv) Unset(name string) error        { delete(m, name); return nil }
func (m mapEnv) Defined(name string) bool       { _, ok := m[name]; return ok }
func (m mapEnv) Environ() []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

func validArgs() []string {
	return []string{
		"foo.rs",
		"--crate-name", "foo",
		"--crate-type", "lib",
		"--emit", "link,metadata",
		"--out-dir", "/tmp/out",
		"-C", "opt-level=2",
	}
}

func TestCanHandleCommand(t *testing.T) {
	cases := []struct {
		exe  string
		want bool
	}{
		{"rustc", true},
		{"/usr/bin/rustc", true},
		{"gcc", false},
		{"rustc-wrapper", false},
	}
	for _, c := range cases {
		w := New(c.exe, nil, mapEnv{}, afero.NewMemMapFs(), &procexec.FakeRunner{})
		assert.Equalf(t, c.want, w.CanHandleCommand(), "CanHandleCommand(%q)", c.exe)
	}
}

func TestResolveArgsValidInvocationSucceeds(t *testing.T) {
	w := New("rustc", validArgs(), mapEnv{}, afero.NewMemMapFs(), &procexec.FakeRunner{})
	require.NoError(t, w.ResolveArgs())
	assert.Equal(t, "foo.rs", w.input)
	assert.Equal(t, "foo", w.crateName)
	assert.Equal(t, "/tmp/out", w.outputDir)
}

// TestResolveArgsRejectsUnsupportedSysroot exercises the S6 property: a
// --sysroot option must make ResolveArgs fail caching.
func TestResolveArgsRejectsUnsupportedSysroot(t *testing.T) {
	args := append(validArgs(), "--sysroot", "/opt/custom")
	w := New("rustc", args, mapEnv{}, afero.NewMemMapFs(), &procexec.FakeRunner{})
	assert.Error(t, w.ResolveArgs(), "expected ResolveArgs to reject --sysroot")
}

func TestResolveArgsMissingCrateNameFails(t *testing.T) {
	args := []string{"foo.rs", "--crate-type", "lib", "--emit", "link,metadata", "--out-dir", "/tmp/out"}
	w := New("rustc", args, mapEnv{}, afero.NewMemMapFs(), &procexec.FakeRunner{})
	assert.Error(t, w.ResolveArgs(), "expected ResolveArgs to require --crate-name")
}

func TestResolveArgsMultipleInputsFails(t *testing.T) {
	args := append(validArgs(), "bar.rs")
	w := New("rustc", args, mapEnv{}, afero.NewMemMapFs(), &procexec.FakeRunner{})
	assert.Error(t, w.ResolveArgs(), "expected ResolveArgs to reject multiple inputs")
}

// TestRelevantArgumentsExcludeLibraryPath checks that library search
// paths (-L) are not part of the relevant arguments (their
// effect is captured by hashing the static libraries they resolve to
// instead).
func TestRelevantArgumentsExcludeLibraryPath(t *testing.T) {
	args := append(validArgs(), "-L", "native=/some/path")
	w := New("rustc", args, mapEnv{}, afero.NewMemMapFs(), &procexec.FakeRunner{})
	require.NoError(t, w.ResolveArgs())
	rel := w.RelevantArguments()
	assert.NotContains(t, rel, "-L")
	assert.NotContains(t, rel, "native=/some/path")
}

func TestProgramIDIncludesHashVersionAndVersionOutput(t *testing.T) {
	runner := &procexec.FakeRunner{Result: procexec.Result{Stdout: []byte("rustc 1.75.0\n")}}
	w := New("rustc", validArgs(), mapEnv{}, afero.NewMemMapFs(), runner)
	require.NoError(t, w.ResolveArgs())
	id, err := w.ProgramID()
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.Len(t, runner.Invocations, 2)
	assert.Equal(t, "-vV", runner.Invocations[0].Args[0])
	assert.Equal(t, "--print=sysroot", runner.Invocations[1].Args[0])
}

func TestProgramIDSandboxesDenylistedEnvVars(t *testing.T) {
	env := mapEnv{"HOSTNAME": "should-not-leak", "PWD": "/home/x"}
	runner := &procexec.FakeRunner{Result: procexec.Result{Stdout: []byte("rustc 1.75.0\n")}}
	w := New("rustc", validArgs(), env, afero.NewMemMapFs(), runner)
	require.NoError(t, w.ResolveArgs())
	_, err := w.ProgramID()
	require.NoError(t, err)
	_, ok := env["HOSTNAME"]
	assert.True(t, ok, "expected HOSTNAME to be restored after the sandboxed probe")
}

// TestProgramIDHashesCompilerSharedLibraries exercises the sysroot/lib
// enumeration step: a change to a shared library rustc would load must
// change the program identity, even though neither argv nor -vV's output
// changed.
func TestProgramIDHashesCompilerSharedLibraries(t *testing.T) {
	newWrapperWithSysroot := func(fs afero.Fs) *Wrapper {
		runner := &procexec.FakeRunner{Result: procexec.Result{Stdout: []byte("/sysroot\n")}}
		w := New("rustc", validArgs(), mapEnv{}, fs, runner)
		require.NoError(t, w.ResolveArgs())
		return w
	}

	fsA := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsA, "/sysroot/lib/librustc_driver.so", []byte("v1"), 0o644))
	idA, err := newWrapperWithSysroot(fsA).ProgramID()
	require.NoError(t, err)

	fsB := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsB, "/sysroot/lib/librustc_driver.so", []byte("v2"), 0o644))
	idB, err := newWrapperWithSysroot(fsB).ProgramID()
	require.NoError(t, err)

	assert.NotEqual(t, idA, idB, "expected a changed shared library to change the program id")
}

func TestCapabilitiesDeclaresForceDirectModeAndHardLinks(t *testing.T) {
	w := New("rustc", validArgs(), mapEnv{}, afero.NewMemMapFs(), &procexec.FakeRunner{})
	caps := w.Capabilities()
	assert.True(t, caps.Has(wrapper.ForceDirectMode))
	assert.True(t, caps.Has(wrapper.HardLinks))
	assert.True(t, caps.Has(wrapper.WorkDirRelevant))
}

func TestWorkingDirectoryReadsPWD(t *testing.T) {
	env := mapEnv{"PWD": "/home/x/project"}
	w := New("rustc", validArgs(), env, afero.NewMemMapFs(), &procexec.FakeRunner{})
	require.NoError(t, w.ResolveArgs())
	dir, err := w.WorkingDirectory()
	require.NoError(t, err)
	assert.Equal(t, "/home/x/project", dir)
}
