package observable

import (
	"log/slog"
	"sync/atomic"
	"time"
)

// DebugMode enables debug logging of named transactions and lock violations.
// Set it at startup; it is not meant to be toggled while trees are in use.
var DebugMode bool

var logger atomic.Pointer[slog.Logger]

// SetLogger replaces the logger used by the package. A nil logger restores
// slog.Default().
func SetLogger(l *slog.Logger) {
	logger.Store(l)
}

func getLogger() *slog.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return slog.Default()
}

// Op names a mutation for errors and instrumentation.
type Op string

const (
	OpSet     Op = "set"
	OpAssign  Op = "assign"
	OpDelete  Op = "delete"
	OpToggle  Op = "toggle"
	OpResolve Op = "resolve"
)

// Hooks receives instrumentation callbacks from every tree in the process.
// Any field may be nil. Callbacks run synchronously on the mutating goroutine
// and must not mutate observables.
type Hooks struct {
	// OnMutation is called after a write was applied.
	OnMutation func(op Op, path []string)

	// OnNotify is called before listeners of one flush are invoked.
	OnNotify func(listeners int)

	// OnFlush is called once per outermost batch that delivered anything.
	OnFlush func(deliveries int)

	// OnCompute is called after each computed or effect evaluation.
	OnCompute func(d time.Duration)

	// OnError is called for every error returned by a mutation.
	OnError func(op Op, err error)
}

var hooks atomic.Pointer[Hooks]

// SetHooks installs instrumentation hooks. Pass nil to remove them.
func SetHooks(h *Hooks) {
	hooks.Store(h)
}

func recordMutation(op Op, path []string) {
	if h := hooks.Load(); h != nil && h.OnMutation != nil {
		h.OnMutation(op, path)
	}
}

func recordNotify(n int) {
	if h := hooks.Load(); h != nil && h.OnNotify != nil {
		h.OnNotify(n)
	}
}

func recordFlush(n int) {
	if h := hooks.Load(); h != nil && h.OnFlush != nil {
		h.OnFlush(n)
	}
}

func recordCompute(d time.Duration) {
	if h := hooks.Load(); h != nil && h.OnCompute != nil {
		h.OnCompute(d)
	}
}

func recordError(op Op, err error) {
	if h := hooks.Load(); h != nil && h.OnError != nil {
		h.OnError(op, err)
	}
}

// Dispatcher runs fn on the goroutine or loop that owns a tree. Promise
// settlements are routed through it so they re-enter the same synchronous
// mutation path as direct callers.
type Dispatcher func(fn func())

func inlineDispatch(fn func()) { fn() }

// Option configures a tree created by New or Computed.
type Option func(*tree)

// WithDispatcher routes promise settlements through d.
func WithDispatcher(d Dispatcher) Option {
	return func(t *tree) {
		if d != nil {
			t.dispatch = d
		}
	}
}

// WithRejectionHandler registers fn to receive rejected promises stored in
// the tree. The node keeps a nil value and no listener fires.
func WithRejectionHandler(fn func(path []string, err error)) Option {
	return func(t *tree) {
		t.onReject = fn
	}
}

// WithName labels the tree in log records.
func WithName(name string) Option {
	return func(t *tree) {
		t.name = name
	}
}
