package instrument

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/vango-dev/statetree/pkg/observable"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricHistogramCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	var m dto.Metric
	if err := h.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func TestPrometheusHooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := Prometheus(WithRegistry(reg), WithNamespace("test"))
	m.Install()
	defer observable.SetHooks(nil)

	obs := observable.New(map[string]any{"n": 1})
	obs.OnChange(func(observable.Change) {})
	obs.Child("n").OnChange(func(observable.Change) {})

	obs.Child("n").Set(2)
	obs.Child("n").Delete()

	if got := metricCounterValue(t, m.mutations.WithLabelValues("set")); got != 1 {
		t.Errorf("mutations_total(set)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.mutations.WithLabelValues("delete")); got != 1 {
		t.Errorf("mutations_total(delete)=%v, want 1", got)
	}
	if got := metricCounterValue(t, m.flushes); got != 2 {
		t.Errorf("batch_flushes_total=%v, want 2", got)
	}
	if got := metricCounterValue(t, m.deliveries); got != 4 {
		t.Errorf("listener_calls_total=%v, want 4", got)
	}

	observable.LockObservable(obs, true)
	obs.Child("n").Set(3)
	if got := metricCounterValue(t, m.errors.WithLabelValues("set", "locked")); got != 1 {
		t.Errorf("errors_total(set, locked)=%v, want 1", got)
	}

	c := observable.Computed(func() any { return obs.Child("n").Get() })
	c.Get()
	if got := metricHistogramCount(t, m.computeDuration); got != 1 {
		t.Errorf("compute_duration_seconds count=%d, want 1", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_mutations_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected test_mutations_total to be registered")
	}
}

func TestErrorKind(t *testing.T) {
	obs := observable.New(map[string]any{"s": "x"})
	_, err := obs.Child("s").Toggle()
	if kind := ErrorKind(err); kind != "invalid_toggle" {
		t.Errorf("ErrorKind = %q, want invalid_toggle", kind)
	}
	if kind := ErrorKind(errors.New("other")); kind != "internal" {
		t.Errorf("ErrorKind = %q, want internal", kind)
	}
}

func TestChain(t *testing.T) {
	var order []string
	h := Chain(
		&observable.Hooks{OnMutation: func(observable.Op, []string) { order = append(order, "a") }},
		nil,
		&observable.Hooks{OnMutation: func(observable.Op, []string) { order = append(order, "b") }},
	)
	h.OnMutation(observable.OpSet, nil)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("unexpected order %v", order)
	}
	if h.OnFlush != nil {
		t.Error("expected unset callbacks to stay nil")
	}
}
