package observable

import (
	"context"
	"fmt"
	"sync"
)

// Promise is a value that settles once, asynchronously. Storing a *Promise
// in an observable leaves the node nil until the promise resolves; the
// result is then written through the regular set path.
type Promise struct {
	mu        sync.Mutex
	done      chan struct{}
	settled   bool
	value     any
	err       error
	callbacks []func(any, error)
}

// NewPromise returns a pending promise and the functions that settle it.
// Only the first call to either function has an effect.
func NewPromise() (p *Promise, resolve func(any), reject func(error)) {
	p = &Promise{done: make(chan struct{})}
	return p, func(v any) { p.settle(v, nil) }, func(err error) { p.settle(nil, err) }
}

// Resolved returns a promise already resolved with v.
func Resolved(v any) *Promise {
	p, resolve, _ := NewPromise()
	resolve(v)
	return p
}

// Rejected returns a promise already rejected with err.
func Rejected(err error) *Promise {
	p, _, reject := NewPromise()
	reject(err)
	return p
}

// Go runs fn on a new goroutine and settles the promise with its result. A
// panic in fn rejects the promise.
func Go(ctx context.Context, fn func(ctx context.Context) (any, error)) *Promise {
	p, resolve, reject := NewPromise()
	go func() {
		defer cleanupGoroutineContext()
		defer func() {
			if r := recover(); r != nil {
				reject(fmt.Errorf("observable: promise panicked: %v", r))
			}
		}()
		v, err := fn(ctx)
		if err != nil {
			reject(err)
			return
		}
		resolve(v)
	}()
	return p
}

func (p *Promise) settle(v any, err error) {
	p.mu.Lock()
	if p.settled {
		p.mu.Unlock()
		return
	}
	p.settled = true
	p.value, p.err = v, err
	cbs := p.callbacks
	p.callbacks = nil
	close(p.done)
	p.mu.Unlock()

	for _, fn := range cbs {
		fn(v, err)
	}
}

// Done is closed when the promise settles.
func (p *Promise) Done() <-chan struct{} {
	return p.done
}

// Settled reports whether the promise has settled.
func (p *Promise) Settled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settled
}

// Result returns the settled value and error. Both are nil while pending.
func (p *Promise) Result() (any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Wait blocks until the promise settles or ctx is done.
func (p *Promise) Wait(ctx context.Context) (any, error) {
	select {
	case <-p.done:
		return p.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Then registers fn to run with the result once the promise settles. If it
// has already settled, fn runs synchronously.
func (p *Promise) Then(fn func(v any, err error)) {
	p.mu.Lock()
	if !p.settled {
		p.callbacks = append(p.callbacks, fn)
		p.mu.Unlock()
		return
	}
	v, err := p.value, p.err
	p.mu.Unlock()
	fn(v, err)
}
