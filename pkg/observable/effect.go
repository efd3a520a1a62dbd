package observable

import (
	"sync/atomic"
	"time"
)

// Effect runs fn immediately and again whenever an observable it read
// through Get changes. Dependencies are re-collected on every run. The
// returned Dispose stops the effect.
//
//	dispose := observable.Effect(func() {
//	    fmt.Println("count is", count.Get())
//	})
//	defer dispose()
func Effect(fn func()) Dispose {
	e := &effect{fn: fn}
	e.sub = newSubscription(func(Change) { e.run() })
	e.run()
	return e.dispose
}

type effect struct {
	fn       func()
	sub      *subscription
	running  atomic.Bool
	disposed atomic.Bool
}

func (e *effect) run() {
	if e.disposed.Load() || e.running.Swap(true) {
		return
	}
	defer e.running.Store(false)

	start := time.Now()
	deps := Collect(e.fn)
	recordCompute(time.Since(start))
	if !e.disposed.Load() {
		e.sub.update(deps, nil)
	}
}

func (e *effect) dispose() {
	if e.disposed.CompareAndSwap(false, true) {
		e.sub.close()
	}
}
