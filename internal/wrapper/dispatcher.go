package wrapper

import (
	"github.com/mbitsnbites/buildcache-go/internal/envutil"
)

// Factory constructs a candidate Wrapper for one invocation. Construction
// must be cheap and side-effect-free: the dispatcher calls CanHandleCommand
// on every candidate in registration order until one claims the
// invocation, so a factory is instantiated even for tools it ultimately
// does not handle.
type Factory func(exe string, argv []string, env envutil.Env) Wrapper

// Dispatcher holds an ordered list of wrapper factories and picks the
// first one whose wrapper claims a given invocation.
type Dispatcher struct {
	factories []Factory
}

// NewDispatcher builds a Dispatcher with no registered factories.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{}
}

// Register appends a factory to the dispatch order. Earlier registrations
// take priority over later ones.
func (d *Dispatcher) Register(f Factory) {
	d.factories = append(d.factories, f)
}

// Dispatch constructs each registered wrapper in order and returns the
// first one whose CanHandleCommand reports true. ok is false if none
// claims the invocation, in which case the caller should fall through to
// direct execution without caching.
func (d *Dispatcher) Dispatch(exe string, argv []string, env envutil.Env) (w Wrapper, ok bool) {
	for _, factory := range d.factories {
		candidate := factory(exe, argv, env)
		if candidate.CanHandleCommand() {
			return candidate, true
		}
	}
	return nil, false
}
