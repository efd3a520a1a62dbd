package observable

import "testing"

func TestShallowListener(t *testing.T) {
	obs := New(map[string]any{"test": map[string]any{"test2": map[string]any{"test3": "hi"}}})
	var onTest, onRoot recorder
	obs.Child("test").OnChange(onTest.fn, TrackShallow)
	obs.OnChange(onRoot.fn, TrackShallow)

	obs.At("test", "test2", "test3").Set("hello")
	if onTest.count() != 0 {
		t.Errorf("expected deep change to be ignored, got %d", onTest.count())
	}

	obs.Child("test").Set(map[string]any{"test2": map[string]any{"test3": "hello"}})
	if onTest.count() != 1 {
		t.Errorf("expected set of the node to fire, got %d", onTest.count())
	}

	obs.Child("test").Assign(map[string]any{"test4": "hello"})
	if onTest.count() != 2 {
		t.Errorf("expected added key to fire, got %d", onTest.count())
	}
	if onRoot.count() != 0 {
		t.Errorf("expected root shallow listener to stay silent, got %d", onRoot.count())
	}
}

func TestShallowSetPrimitive(t *testing.T) {
	obs := New(map[string]any{"val": false})
	var rec recorder
	obs.OnChange(rec.fn, TrackShallow)

	obs.Child("val").Set(true)
	if rec.count() != 0 {
		t.Errorf("expected value change to be ignored, got %d", rec.count())
	}
	obs.Child("val2").Set(10)
	if rec.count() != 1 {
		t.Errorf("expected new key to fire, got %d", rec.count())
	}
	if !rec.last(t).Structural {
		t.Error("expected the change to be structural")
	}
}

func TestShallowArray(t *testing.T) {
	obs := New(map[string]any{"data": []any{}, "selected": 0})
	var rec recorder
	obs.Child("data").OnChange(rec.fn, TrackShallow)

	obs.Child("data").Set([]any{map[string]any{"text": 1}, map[string]any{"text": 2}})
	if rec.count() != 1 {
		t.Errorf("expected array set to fire, got %d", rec.count())
	}
	obs.Child("data").Index(0).Set(map[string]any{"text": 11})
	if rec.count() != 1 {
		t.Errorf("expected element set to be ignored, got %d", rec.count())
	}
}

func TestKeyDeleteNotifiesShallow(t *testing.T) {
	obs := New(map[string]any{"test": map[string]any{
		"key1": map[string]any{"text": "hello"},
		"key2": map[string]any{"text": "hello2"},
	}})
	var rec recorder
	obs.Child("test").OnChange(rec.fn, TrackShallow)

	obs.At("test", "key2").Delete()
	if rec.count() != 1 {
		t.Errorf("expected delete to fire, got %d", rec.count())
	}

	obs.At("test", "key1").Set(nil)
	if rec.count() != 1 {
		t.Errorf("expected set to nil to be ignored, got %d", rec.count())
	}

	obs.At("test", "key3").Set(map[string]any{"text": "hello3"})
	if rec.count() != 2 {
		t.Errorf("expected new key to fire, got %d", rec.count())
	}
}

func TestShallowTracksSetToNil(t *testing.T) {
	obs := New(map[string]any{"test": map[string]any{"text": "hi"}})
	var rec recorder
	obs.Child("test").OnChange(rec.fn, TrackShallow)

	obs.Child("test").Set(nil)
	if rec.count() != 1 {
		t.Errorf("expected 1 change, got %d", rec.count())
	}
}

func TestShallowTracksNewKeySetToNil(t *testing.T) {
	obs := New(map[string]any{"a": 1})
	var rec recorder
	obs.OnChange(rec.fn, TrackShallow)

	obs.Child("b").Set(nil)
	if rec.count() != 1 {
		t.Fatalf("expected added key to fire, got %d", rec.count())
	}
	if c := rec.last(t); !c.Structural {
		t.Errorf("expected structural change, got %+v", c)
	}
	expectValue(t, obs.Keys(), []string{"a", "b"})

	obs.Child("b").Set(nil)
	if rec.count() != 1 {
		t.Errorf("expected repeated nil write to be silent, got %d", rec.count())
	}
}
