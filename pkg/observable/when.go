package observable

import "sync/atomic"

// When resolves the returned promise with the first truthy result of
// selector, calling each onTrue callback with it beforehand.
//
// selector runs immediately under a collector. If the result is already
// truthy the callbacks run synchronously and nothing is subscribed.
// Otherwise selector reruns whenever a dependency changes; the first truthy
// run unsubscribes everything before the callbacks fire, so they fire
// exactly once.
//
// Truthiness follows JavaScript: nil, false, zero numbers, NaN and "" are
// falsy. A selector returning a *Obs is treated as returning its value.
func When(selector func() any, onTrue ...func(v any)) *Promise {
	p, resolve, _ := NewPromise()
	w := &waiter{selector: selector, onTrue: onTrue, resolve: resolve}
	w.sub = newSubscription(func(Change) { w.run() })
	w.run()
	return p
}

type waiter struct {
	selector func() any
	onTrue   []func(any)
	resolve  func(any)
	sub      *subscription
	done     atomic.Bool
}

func (w *waiter) run() {
	if w.done.Load() {
		return
	}
	var v any
	deps := Collect(func() {
		v = w.selector()
		if o, ok := v.(*Obs); ok {
			v = o.Get()
		}
	})
	if !truthy(v) {
		w.sub.update(deps, nil)
		return
	}
	if !w.done.CompareAndSwap(false, true) {
		return
	}
	w.sub.close()
	for _, fn := range w.onTrue {
		fn(v)
	}
	w.resolve(v)
}
