package observable

import (
	"sync"
	"sync/atomic"
	"testing"
)

func TestBatchCoalesces(t *testing.T) {
	obs := New(map[string]any{"n": 0})
	var rec recorder
	obs.Child("n").OnChange(rec.fn)

	BeginBatch()
	BeginBatch()
	obs.Child("n").Set(1)
	obs.Child("n").Set(2)
	EndBatch()
	if rec.count() != 0 {
		t.Errorf("expected no delivery inside the outer batch, got %d", rec.count())
	}
	obs.Child("n").Set(3)
	EndBatch()

	if rec.count() != 1 {
		t.Fatalf("expected 1 change, got %d", rec.count())
	}
	c := rec.last(t)
	expectValue(t, c.Prev, 0)
	expectValue(t, c.Value, 3)
	expectValue(t, c.PrevAtChange, 0)
	expectValue(t, c.ChangedValue, 3)
}

func TestBatchMergesDifferentPaths(t *testing.T) {
	obs := New(map[string]any{"a": 1, "b": 2})
	var rec recorder
	obs.OnChange(rec.fn)

	Batch(func() {
		obs.Child("a").Set(10)
		obs.Child("b").Set(20)
	})

	if rec.count() != 1 {
		t.Fatalf("expected 1 change, got %d", rec.count())
	}
	c := rec.last(t)
	expectPath(t, c.Path)
	expectValue(t, c.Prev, map[string]any{"a": 1, "b": 2})
	expectValue(t, c.Value, map[string]any{"a": 10, "b": 20})
	expectValue(t, c.ChangedValue, c.Value)
}

func TestBatchSkipsDisposedListeners(t *testing.T) {
	obs := New(map[string]any{"n": 0})
	var rec recorder
	dispose := obs.OnChange(rec.fn)

	Batch(func() {
		obs.Child("n").Set(1)
		dispose()
	})
	if rec.count() != 0 {
		t.Errorf("expected disposed listener to be skipped, got %d", rec.count())
	}
}

func TestEndBatchWithoutBegin(t *testing.T) {
	EndBatch()
	if inBatch() {
		t.Error("expected no open batch")
	}

	obs := New(1)
	var rec recorder
	obs.OnChange(rec.fn)
	obs.Set(2)
	if rec.count() != 1 {
		t.Errorf("expected immediate delivery, got %d", rec.count())
	}
}

func TestBatchReleasedOnPanic(t *testing.T) {
	func() {
		defer func() { recover() }()
		Batch(func() { panic("boom") })
	}()
	if inBatch() {
		t.Error("expected batch depth to be restored after panic")
	}
}

func TestListenerMutationDuringFlush(t *testing.T) {
	obs := New(map[string]any{"a": 0, "b": 0})
	obs.Child("a").OnChange(func(c Change) {
		obs.Child("b").Set(c.Value.(int) * 2)
	})
	var rec recorder
	obs.Child("b").OnChange(rec.fn)

	Batch(func() {
		obs.Child("a").Set(1)
		obs.Child("a").Set(2)
	})

	expectValue(t, obs.Child("b").Peek(), 4)
	if rec.count() != 1 {
		t.Errorf("expected 1 change for b, got %d", rec.count())
	}
}

func TestTxNamed(t *testing.T) {
	old := DebugMode
	DebugMode = true
	defer func() { DebugMode = old }()

	obs := New(map[string]any{"a": 0, "b": 0})
	var rec recorder
	obs.OnChange(rec.fn)

	TxNamed("update", func() {
		obs.Child("a").Set(1)
		obs.Child("b").Set(1)
	})
	Tx(func() {
		obs.Child("a").Set(2)
	})
	if rec.count() != 2 {
		t.Errorf("expected 2 changes, got %d", rec.count())
	}
}

func TestCollect(t *testing.T) {
	a := New(1)
	b := New(map[string]any{"x": 2})

	deps := Collect(func() {
		a.Get()
		a.Get()
		b.Child("x").GetShallow()
		b.Peek()
	})

	if len(deps) != 2 {
		t.Fatalf("expected 2 dependencies, got %d", len(deps))
	}
	if deps[0].Obs != a || deps[0].Track != TrackAll {
		t.Errorf("unexpected first dependency %+v", deps[0])
	}
	if deps[1].Obs != b.Child("x") || deps[1].Track != TrackShallow {
		t.Errorf("unexpected second dependency %+v", deps[1])
	}
}

func TestCollectNestsAndUntracked(t *testing.T) {
	a, b := New(1), New(2)
	var inner []Dependency
	outer := Collect(func() {
		a.Get()
		inner = Collect(func() { b.Get() })
		Untracked(func() { b.Get() })
	})
	if len(outer) != 1 || outer[0].Obs != a {
		t.Errorf("expected outer to hold only a, got %v", outer)
	}
	if len(inner) != 1 || inner[0].Obs != b {
		t.Errorf("expected inner to hold only b, got %v", inner)
	}
}

func TestSubscribe(t *testing.T) {
	a, b := New(1), New(2)
	deps := Collect(func() {
		a.Get()
		b.Get()
	})

	calls := 0
	dispose := Subscribe(deps, func(Change) { calls++ })

	Batch(func() {
		a.Set(10)
		b.Set(20)
	})
	if calls != 1 {
		t.Errorf("expected 1 call for the batch, got %d", calls)
	}

	a.Set(11)
	if calls != 2 {
		t.Errorf("expected 2 calls, got %d", calls)
	}

	dispose()
	a.Set(12)
	if calls != 2 {
		t.Errorf("expected no call after dispose, got %d", calls)
	}
}

func TestTrackingTypeString(t *testing.T) {
	if TrackOptimize.String() != "optimize" || TrackAll.String() != "all" {
		t.Error("unexpected tracking type names")
	}
}

func trackingContextCount() int {
	n := 0
	trackingContexts.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func TestTrackingContextsReleased(t *testing.T) {
	obs := New(map[string]any{"a": 0})
	var calls atomic.Int64
	obs.OnChange(func(Change) { calls.Add(1) })

	before := trackingContextCount()

	var wg sync.WaitGroup
	for i := 1; i <= 200; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			obs.Child("a").Set(i)
			obs.Keys()
			Batch(func() { obs.Child("b").Set(i) })
		}(i)
	}
	wg.Wait()

	Collect(func() { obs.Child("a").Get() })
	Untracked(func() { obs.Child("a").Get() })

	if calls.Load() == 0 {
		t.Fatal("expected listener calls")
	}
	if after := trackingContextCount(); after > before {
		t.Errorf("tracking contexts: before=%d after=%d", before, after)
	}
}
