package wrapper

import (
	"context"
	"errors"
	"testing"

	"github.com/mbitsnbites/buildcache-go/internal/arglist"
	"github.com/mbitsnbites/buildcache-go/internal/cache"
	"github.com/mbitsnbites/buildcache-go/internal/procexec"
	"github.com/spf13/afero"
)

// fakeWrapper is a fully scriptable Wrapper double for orchestrator tests.
type fakeWrapper struct {
	resolveErr      error
	caps            CapabilitySet
	programID       string
	programIDErr    error
	relevantArgs    arglist.List
	relevantEnv     map[string]string
	inputFiles      []string
	implicitFiles   []string
	implicitErr     error
	buildFiles      map[string]ExpectedFile
	preprocessed    []byte
	preprocessErr   error
	workingDir      string
	workingDirErr   error
}

func (f *fakeWrapper) CanHandleCommand() bool                { return true }
func (f *fakeWrapper) ResolveArgs() error                    { return f.resolveErr }
func (f *fakeWrapper) Capabilities() CapabilitySet           { return f.caps }
func (f *fakeWrapper) ProgramID() (string, error)            { return f.programID, f.programIDErr }
func (f *fakeWrapper) RelevantArguments() arglist.List       { return f.relevantArgs }
func (f *fakeWrapper) RelevantEnvVars() map[string]string    { return f.relevantEnv }
func (f *fakeWrapper) InputFiles() []string                  { return f.inputFiles }
func (f *fakeWrapper) ImplicitInputFiles() ([]string, error) { return f.implicitFiles, f.implicitErr }
func (f *fakeWrapper) BuildFiles() map[string]ExpectedFile   { return f.buildFiles }
func (f *fakeWrapper) PreprocessSource() ([]byte, error)     { return f.preprocessed, f.preprocessErr }
func (f *fakeWrapper) WorkingDirectory() (string, error)     { return f.workingDir, f.workingDirErr }

// memCache is a trivial in-memory cache.Cache double.
type memCache struct {
	entries map[string]*cache.Entry
}

func newMemCache() *memCache { return &memCache{entries: map[string]*cache.Entry{}} }

func (m *memCache) Lookup(ctx context.Context, fp string) (*cache.Entry, bool, error) {
	e, ok := m.entries[fp]
	return e, ok, nil
}

func (m *memCache) Store(ctx context.Context, fp string, entry *cache.Entry) error {
	m.entries[fp] = entry
	return nil
}

func newTestDeps(c cache.Cache, runner procexec.Runner) Deps {
	return Deps{
		Cache:  c,
		Runner: runner,
		FS:     afero.NewMemMapFs(),
	}
}

func TestRunCacheMissThenStore(t *testing.T) {
	w := &fakeWrapper{
		caps:         NewCapabilitySet(),
		programID:    "gcc-12",
		relevantArgs: arglist.List{"-c", "a.c"},
		preprocessed: []byte("int main(){}"),
		buildFiles:   map[string]ExpectedFile{},
	}
	runner := &procexec.FakeRunner{Result: procexec.Result{ExitCode: 0}}
	c := newMemCache()
	deps := newTestDeps(c, runner)

	code := Run(context.Background(), w, deps, procexec.Command{Path: "gcc"})
	if code != 0 {
		t.Fatalf("exit code = %d, want 0", code)
	}
	if len(c.entries) != 1 {
		t.Fatalf("expected one stored cache entry, got %d", len(c.entries))
	}
	if len(runner.Invocations) != 1 {
		t.Errorf("expected real compiler invoked once on miss, got %d", len(runner.Invocations))
	}
}

func TestRunCacheHitReplaysWithoutRunningCompiler(t *testing.T) {
	w := &fakeWrapper{
		caps:         NewCapabilitySet(),
		programID:    "gcc-12",
		relevantArgs: arglist.List{"-c", "a.c"},
		preprocessed: []byte("int main(){}"),
		buildFiles:   map[string]ExpectedFile{"obj": {Path: "/out/a.o", Required: true}},
	}
	runner := &procexec.FakeRunner{Result: procexec.Result{ExitCode: 0}}
	c := newMemCache()
	deps := newTestDeps(c, runner)
	// FakeRunner writes nothing, so put the required output where a real
	// compile would have left it.
	afero.WriteFile(deps.FS, "/out/a.o", []byte("object"), 0o644)

	// Prime the cache with a first run.
	Run(context.Background(), w, deps, procexec.Command{Path: "gcc"})
	if len(runner.Invocations) != 1 {
		t.Fatalf("priming run should invoke compiler once, got %d", len(runner.Invocations))
	}

	// Second identical invocation should hit cache, not invoke the runner again.
	code := Run(context.Background(), w, deps, procexec.Command{Path: "gcc"})
	if code != 0 {
		t.Errorf("exit code on hit = %d, want 0", code)
	}
	if len(runner.Invocations) != 1 {
		t.Errorf("expected compiler not invoked again on cache hit, invocations = %d", len(runner.Invocations))
	}
}

func TestRunResolveArgsErrorBypassesCache(t *testing.T) {
	w := &fakeWrapper{resolveErr: errors.New("bad args")}
	runner := &procexec.FakeRunner{Result: procexec.Result{ExitCode: 0}}
	c := newMemCache()
	deps := newTestDeps(c, runner)

	Run(context.Background(), w, deps, procexec.Command{Path: "gcc"})
	if len(c.entries) != 0 {
		t.Error("a ResolveArgs failure should never populate the cache")
	}
	if len(runner.Invocations) != 1 {
		t.Errorf("expected direct execution exactly once, got %d", len(runner.Invocations))
	}
}

func TestRunProgramIDFailureBypassesCache(t *testing.T) {
	w := &fakeWrapper{
		caps:         NewCapabilitySet(),
		programIDErr: errors.New("version probe failed"),
		preprocessed: []byte("x"),
	}
	runner := &procexec.FakeRunner{Result: procexec.Result{ExitCode: 0}}
	c := newMemCache()
	deps := newTestDeps(c, runner)

	Run(context.Background(), w, deps, procexec.Command{Path: "gcc"})
	if len(c.entries) != 0 {
		t.Error("a ProgramID failure should never populate the cache")
	}
}

func TestRunCompilerFailureNotCached(t *testing.T) {
	w := &fakeWrapper{
		caps:         NewCapabilitySet(),
		programID:    "gcc-12",
		preprocessed: []byte("x"),
		buildFiles:   map[string]ExpectedFile{},
	}
	runner := &procexec.FakeRunner{Result: procexec.Result{ExitCode: 1}, Err: nil}
	// Simulate a nonzero exit via a FakeRunner whose Result.ExitCode is 1
	// and an error implementing the exit-coder interface is not trivial to
	// construct here, so this test asserts the nonzero-exit-code Result
	// path: code != 0 after Run means no cache store should occur.
	c := newMemCache()
	deps := newTestDeps(c, runner)

	Run(context.Background(), w, deps, procexec.Command{Path: "gcc"})
	if len(c.entries) != 0 {
		t.Error("a nonzero-exit compile should not be cached")
	}
}

func TestRunDirectModeHashesInputFiles(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/src/a.rs", []byte("fn main(){}"), 0644)

	w := &fakeWrapper{
		caps:       NewCapabilitySet(ForceDirectMode),
		programID:  "rustc-1.0",
		inputFiles: []string{"/src/a.rs"},
		buildFiles: map[string]ExpectedFile{},
	}
	runner := &procexec.FakeRunner{Result: procexec.Result{ExitCode: 0}}
	c := newMemCache()
	deps := Deps{Cache: c, Runner: runner, FS: fs}

	code := Run(context.Background(), w, deps, procexec.Command{Path: "rustc"})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if len(c.entries) != 1 {
		t.Fatalf("expected direct-mode run to populate cache, got %d entries", len(c.entries))
	}
}
