package wrapper

import (
	"testing"

	"github.com/mbitsnbites/buildcache-go/internal/arglist"
	"github.com/mbitsnbites/buildcache-go/internal/envutil"
)

// stubWrapper is a minimal Wrapper double for dispatcher tests.
type stubWrapper struct {
	handles bool
}

func (s stubWrapper) CanHandleCommand() bool                      { return s.handles }
func (s stubWrapper) ResolveArgs() error                          { return nil }
func (s stubWrapper) Capabilities() CapabilitySet                 { return nil }
func (s stubWrapper) ProgramID() (string, error)                  { return "", nil }
func (s stubWrapper) RelevantArguments() arglist.List              { return nil }
func (s stubWrapper) RelevantEnvVars() map[string]string          { return nil }
func (s stubWrapper) InputFiles() []string                        { return nil }
func (s stubWrapper) ImplicitInputFiles() ([]string, error)       { return nil, nil }
func (s stubWrapper) BuildFiles() map[string]ExpectedFile         { return nil }
func (s stubWrapper) PreprocessSource() ([]byte, error)           { return nil, nil }
func (s stubWrapper) WorkingDirectory() (string, error)           { return "", nil }

func TestDispatcherFirstClaimerWins(t *testing.T) {
	d := NewDispatcher()
	var order []string
	d.Register(func(exe string, argv []string, env envutil.Env) Wrapper {
		order = append(order, "first")
		return stubWrapper{handles: false}
	})
	d.Register(func(exe string, argv []string, env envutil.Env) Wrapper {
		order = append(order, "second")
		return stubWrapper{handles: true}
	})
	d.Register(func(exe string, argv []string, env envutil.Env) Wrapper {
		order = append(order, "third")
		return stubWrapper{handles: true}
	})

	w, ok := d.Dispatch("cc", nil, nil)
	if !ok {
		t.Fatal("expected a wrapper to claim the invocation")
	}
	if !w.CanHandleCommand() {
		t.Error("dispatched wrapper should claim the command")
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("expected dispatch to stop at the first claimer, got order %v", order)
	}
}

func TestDispatcherNoneClaims(t *testing.T) {
	d := NewDispatcher()
	d.Register(func(exe string, argv []string, env envutil.Env) Wrapper {
		return stubWrapper{handles: false}
	})
	_, ok := d.Dispatch("cc", nil, nil)
	if ok {
		t.Error("expected no wrapper to claim the invocation")
	}
}
