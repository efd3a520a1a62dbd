package observable

import (
	"errors"
	"testing"
)

func TestComputedBasic(t *testing.T) {
	obs := New(map[string]any{"test": 10, "test2": 20})
	comp := Computed(func() any {
		return obs.Child("test").Get().(int) + obs.Child("test2").Get().(int)
	})

	if got := comp.Get(); got != 30 {
		t.Errorf("expected 30, got %v", got)
	}
	obs.Child("test").Set(5)
	if got := comp.Get(); got != 25 {
		t.Errorf("expected 25, got %v", got)
	}
	if !comp.IsComputed() || obs.IsComputed() {
		t.Error("unexpected IsComputed result")
	}
}

func TestComputedIsLazy(t *testing.T) {
	a := New(1)
	calls := 0
	comp := Computed(func() any {
		calls++
		return a.Get().(int) * 2
	})

	if calls != 0 {
		t.Fatalf("expected no evaluation before first read, got %d", calls)
	}
	if comp.Get() != 2 {
		t.Errorf("expected 2, got %v", comp.Get())
	}
	comp.Get()
	comp.Peek()
	if calls != 1 {
		t.Errorf("expected 1 evaluation, got %d", calls)
	}

	a.Set(2)
	if calls != 2 || comp.Peek() != 4 {
		t.Errorf("expected recompute to 4, got %v after %d calls", comp.Peek(), calls)
	}
}

func TestComputedListenerActivates(t *testing.T) {
	a := New(1)
	comp := Computed(func() any { return a.Get().(int) + 1 })
	var rec recorder
	comp.OnChange(rec.fn)

	a.Set(5)
	if rec.count() != 1 {
		t.Fatalf("expected 1 change, got %d", rec.count())
	}
	expectValue(t, rec.last(t).Value, 6)
	expectValue(t, rec.last(t).Prev, 2)
}

func TestComputedSuppressesEqualResults(t *testing.T) {
	a := New(1)
	calls := 0
	comp := Computed(func() any {
		calls++
		return map[string]any{"positive": a.Get().(int) > 0}
	})
	var rec recorder
	comp.OnChange(rec.fn)

	a.Set(2)
	if calls != 2 {
		t.Errorf("expected recompute, got %d calls", calls)
	}
	if rec.count() != 0 {
		t.Errorf("expected equal result to be suppressed, got %d", rec.count())
	}

	a.Set(-1)
	if rec.count() != 1 {
		t.Errorf("expected 1 change, got %d", rec.count())
	}
	expectValue(t, comp.Peek(), map[string]any{"positive": false})
}

func TestComputedSeesInPlaceChildWrites(t *testing.T) {
	obs := New(map[string]any{"user": map[string]any{"name": "a"}})
	comp := Computed(func() any {
		return obs.Child("user").Get()
	})
	var rec recorder
	comp.OnChange(rec.fn)

	obs.At("user", "name").Set("b")
	if rec.count() != 1 {
		t.Fatalf("expected 1 notification, got %d", rec.count())
	}
	expectValue(t, comp.Get(), map[string]any{"name": "b"})

	obs.Child("user").Assign(map[string]any{"age": 3})
	if rec.count() != 2 {
		t.Errorf("expected 2 notifications, got %d", rec.count())
	}
	expectValue(t, rec.last(t).Value, map[string]any{"name": "b", "age": 3})
}

func TestComputedWithEquals(t *testing.T) {
	a := New(1)
	comp := Computed(func() any { return a.Get() }, WithEquals(func(x, y any) bool { return true }))
	comp.Get()
	a.Set(2)
	expectValue(t, comp.Peek(), 1)
}

func TestComputedResubscribes(t *testing.T) {
	obs := New(map[string]any{"useA": true, "a": 1, "b": 2})
	calls := 0
	comp := Computed(func() any {
		calls++
		if obs.Child("useA").Get() == true {
			return obs.Child("a").Get()
		}
		return obs.Child("b").Get()
	})
	comp.Get()
	if comp.Dependencies() != 2 {
		t.Errorf("expected 2 dependencies, got %d", comp.Dependencies())
	}

	obs.Child("b").Set(3)
	if calls != 1 {
		t.Errorf("expected b to be untracked, got %d calls", calls)
	}

	obs.Child("useA").Set(false)
	expectValue(t, comp.Peek(), 3)

	before := calls
	obs.Child("a").Set(10)
	if calls != before {
		t.Errorf("expected a to be unsubscribed, got %d calls", calls-before)
	}
	obs.Child("b").Set(4)
	expectValue(t, comp.Peek(), 4)
}

func TestComputedBatchRecomputesOnce(t *testing.T) {
	a, b := New(1), New(2)
	calls := 0
	comp := Computed(func() any {
		calls++
		return a.Get().(int) + b.Get().(int)
	})
	comp.Get()

	Batch(func() {
		a.Set(10)
		b.Set(20)
	})
	if calls != 2 {
		t.Errorf("expected 1 recompute for the batch, got %d", calls-1)
	}
	expectValue(t, comp.Peek(), 30)
}

func TestComputedChain(t *testing.T) {
	price := New(100.0)
	taxed := Computed(func() any { return price.Get().(float64) * 2 })
	final := Computed(func() any { return taxed.Get().(float64) + 1 })

	if final.Get() != 201.0 {
		t.Errorf("expected 201, got %v", final.Get())
	}
	price.Set(50.0)
	if final.Get() != 101.0 {
		t.Errorf("expected 101, got %v", final.Get())
	}
}

func TestComputedIsReadOnly(t *testing.T) {
	a := New(map[string]any{"x": 1})
	comp := Computed(func() any { return a.Get() })
	comp.Get()

	if err := comp.Set(1); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Set: expected ErrReadOnly, got %v", err)
	}
	if err := comp.Child("x").Set(2); !errors.Is(err, ErrReadOnly) {
		t.Errorf("child Set: expected ErrReadOnly, got %v", err)
	}
	if err := comp.Assign(map[string]any{"y": 1}); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Assign: expected ErrReadOnly, got %v", err)
	}
	if err := comp.Delete(); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Delete: expected ErrReadOnly, got %v", err)
	}
	expectValue(t, comp.Child("x").Get(), 1)
}

func TestComputedChildrenAreObservable(t *testing.T) {
	a := New(map[string]any{"first": "Ada", "last": "Lovelace"})
	full := Computed(func() any {
		return map[string]any{"name": a.Child("first").Get().(string) + " " + a.Child("last").Get().(string)}
	})
	var rec recorder
	full.Child("name").OnChange(rec.fn)

	a.Child("first").Set("Grace")
	if rec.count() != 1 {
		t.Fatalf("expected 1 change, got %d", rec.count())
	}
	expectValue(t, rec.last(t).Value, "Grace Lovelace")
}

func TestEffect(t *testing.T) {
	count := New(0)
	runs := 0
	var seen any
	dispose := Effect(func() {
		runs++
		seen = count.Get()
	})

	if runs != 1 {
		t.Fatalf("expected effect to run immediately, got %d", runs)
	}
	count.Set(1)
	if runs != 2 || seen != 1 {
		t.Errorf("expected rerun with 1, got runs=%d seen=%v", runs, seen)
	}

	dispose()
	dispose()
	count.Set(2)
	if runs != 2 {
		t.Errorf("expected no run after dispose, got %d", runs)
	}
	if listenerCount(count) != 0 {
		t.Errorf("expected listeners to be removed, got %d", listenerCount(count))
	}
}
