package observable

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestPromiseValueResolves(t *testing.T) {
	obs := New(map[string]any{})
	p, resolve, _ := NewPromise()
	var rec recorder
	obs.Child("data").OnChange(rec.fn)

	obs.Child("data").Set(p)
	if obs.Child("data").Peek() != nil {
		t.Errorf("expected nil while pending, got %v", obs.Child("data").Peek())
	}

	resolve("loaded")
	expectValue(t, obs.Child("data").Peek(), "loaded")
	if rec.count() != 1 {
		t.Fatalf("expected 1 change, got %d", rec.count())
	}
	expectValue(t, rec.last(t).Value, "loaded")
}

func TestPromiseSupersededBySet(t *testing.T) {
	obs := New(map[string]any{})
	p, resolve, _ := NewPromise()
	obs.Child("data").Set(p)
	obs.Child("data").Set("manual")

	resolve("late")
	expectValue(t, obs.Child("data").Peek(), "manual")
}

func TestPromiseRejected(t *testing.T) {
	SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	defer SetLogger(nil)

	var gotPath []string
	var gotErr error
	obs := New(map[string]any{}, WithRejectionHandler(func(path []string, err error) {
		gotPath, gotErr = path, err
	}))
	var rec recorder
	obs.OnChange(rec.fn)

	p, _, reject := NewPromise()
	obs.Child("data").Set(p)
	calls := rec.count()

	boom := errors.New("boom")
	reject(boom)

	if obs.Child("data").Peek() != nil {
		t.Error("expected value to stay nil")
	}
	if rec.count() != calls {
		t.Error("expected no notification for a rejection")
	}
	expectPath(t, gotPath, "data")
	if !errors.Is(gotErr, ErrPromiseRejected) || !errors.Is(gotErr, boom) {
		t.Errorf("unexpected rejection error %v", gotErr)
	}
}

func TestPromiseRoot(t *testing.T) {
	obs := New(Resolved(map[string]any{"n": 5}))
	expectValue(t, obs.Child("n").Get(), 5)

	p, resolve, _ := NewPromise()
	pending := New(p)
	var rec recorder
	pending.OnChange(rec.fn)
	if pending.Peek() != nil {
		t.Error("expected nil root while pending")
	}
	resolve(1)
	expectValue(t, pending.Peek(), 1)
	if rec.count() != 1 {
		t.Errorf("expected 1 change, got %d", rec.count())
	}
}

func TestPromiseDispatcher(t *testing.T) {
	queue := make(chan func(), 1)
	obs := New(map[string]any{}, WithDispatcher(func(fn func()) { queue <- fn }))

	obs.Child("n").Set(Go(context.Background(), func(ctx context.Context) (any, error) {
		return 42, nil
	}))

	select {
	case fn := <-queue:
		fn()
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for settlement")
	}
	expectValue(t, obs.Child("n").Peek(), 42)
}

func TestPromiseWait(t *testing.T) {
	ctx := context.Background()
	p := Go(ctx, func(ctx context.Context) (any, error) { return "ok", nil })
	v, err := p.Wait(ctx)
	if v != "ok" || err != nil {
		t.Errorf("Wait = %v, %v", v, err)
	}

	failing := Go(ctx, func(ctx context.Context) (any, error) { panic("bad") })
	if _, err := failing.Wait(ctx); err == nil {
		t.Error("expected panic to reject the promise")
	}

	pending, _, _ := NewPromise()
	cctx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	if _, err := pending.Wait(cctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline error, got %v", err)
	}
}

func TestPromiseSettlesOnce(t *testing.T) {
	p, resolve, reject := NewPromise()
	resolve(1)
	resolve(2)
	reject(errors.New("late"))
	v, err := p.Result()
	if v != 1 || err != nil {
		t.Errorf("Result = %v, %v", v, err)
	}

	var got any
	p.Then(func(v any, err error) { got = v })
	if got != 1 {
		t.Error("expected Then on a settled promise to run synchronously")
	}
	if _, err := Rejected(errors.New("x")).Result(); err == nil {
		t.Error("expected Rejected to carry its error")
	}
}
