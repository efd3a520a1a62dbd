package instrument

import (
	"context"
	"errors"
	"testing"

	"github.com/vango-dev/statetree/pkg/observable"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

func TestTxBatchesAndPropagatesContext(t *testing.T) {
	obs := observable.New(map[string]any{"a": 0, "b": 0})
	calls := 0
	obs.OnChange(func(observable.Change) { calls++ })

	tr := NewTracer(WithTracerName("test"), WithAttributes(attribute.String("test.attr", "ok")))
	err := tr.Tx(context.Background(), "update", func(ctx context.Context) error {
		if trace.SpanFromContext(ctx) == nil {
			t.Fatal("expected a span in the context")
		}
		obs.Child("a").Set(1)
		obs.Child("b").Set(2)
		if calls != 0 {
			t.Errorf("expected deliveries to wait for the end of the tx, got %d", calls)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 delivery, got %d", calls)
	}
}

func TestTxReturnsError(t *testing.T) {
	obs := observable.New(map[string]any{"a": 0})
	observable.LockObservable(obs, true)

	err := Tx(context.Background(), "locked", func(ctx context.Context) error {
		return obs.Child("a").Set(1)
	})
	if !errors.Is(err, observable.ErrLocked) {
		t.Errorf("expected ErrLocked, got %v", err)
	}
}
