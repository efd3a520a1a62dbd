package instrument

import (
	"errors"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/vango-dev/statetree/pkg/observable"
)

// MetricsConfig configures the Prometheus collectors.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "statetree").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for computed evaluation time.
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus collectors.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "statetree",
		// 1µs to ~260ms
		Buckets:  prometheus.ExponentialBuckets(1e-6, 4, 10),
		Registry: prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus collectors fed by observable hooks.
type Metrics struct {
	mutations       *prometheus.CounterVec
	notifications   prometheus.Counter
	flushes         prometheus.Counter
	deliveries      prometheus.Counter
	errors          *prometheus.CounterVec
	computeDuration prometheus.Histogram
}

// Prometheus registers the statetree collectors and returns them.
//
// Metrics collected:
//   - statetree_mutations_total: writes applied, by op
//   - statetree_notifications_total: listener deliveries queued for flush
//   - statetree_batch_flushes_total: outermost batches that delivered changes
//   - statetree_listener_calls_total: listener invocations
//   - statetree_errors_total: rejected mutations, by kind
//   - statetree_compute_duration_seconds: computed and effect evaluation time
//
// Registering twice with the same registry panics, as with promauto.
func Prometheus(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		mutations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "mutations_total",
			Help:        "Total number of observable writes applied",
			ConstLabels: config.ConstLabels,
		}, []string{"op"}),

		notifications: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total number of listener deliveries queued for flushing",
			ConstLabels: config.ConstLabels,
		}),

		flushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "batch_flushes_total",
			Help:        "Total number of batches that delivered changes",
			ConstLabels: config.ConstLabels,
		}),

		deliveries: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "listener_calls_total",
			Help:        "Total number of listener invocations",
			ConstLabels: config.ConstLabels,
		}),

		errors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "errors_total",
			Help:        "Total number of rejected mutations by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"op", "kind"}),

		computeDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "compute_duration_seconds",
			Help:        "Computed and effect evaluation duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}),
	}
}

// Hooks returns observable hooks that feed m.
func (m *Metrics) Hooks() *observable.Hooks {
	return &observable.Hooks{
		OnMutation: func(op observable.Op, _ []string) {
			m.mutations.WithLabelValues(string(op)).Inc()
		},
		OnNotify: func(n int) {
			m.notifications.Add(float64(n))
		},
		OnFlush: func(n int) {
			m.flushes.Inc()
			m.deliveries.Add(float64(n))
		},
		OnCompute: func(d time.Duration) {
			m.computeDuration.Observe(d.Seconds())
		},
		OnError: func(op observable.Op, err error) {
			m.errors.WithLabelValues(string(op), ErrorKind(err)).Inc()
		},
	}
}

// Install makes m the process-wide observable hooks.
func (m *Metrics) Install() {
	observable.SetHooks(m.Hooks())
}

// ErrorKind maps an observable error to a low-cardinality label value.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, observable.ErrLocked):
		return "locked"
	case errors.Is(err, observable.ErrReadOnly):
		return "read_only"
	case errors.Is(err, observable.ErrInvalidAssign):
		return "invalid_assign"
	case errors.Is(err, observable.ErrInvalidToggle):
		return "invalid_toggle"
	case errors.Is(err, observable.ErrInvalidIndex):
		return "invalid_index"
	case errors.Is(err, observable.ErrPromiseRejected):
		return "promise_rejected"
	default:
		return "internal"
	}
}

// Chain combines hooks so every non-nil callback runs in order.
func Chain(hooks ...*observable.Hooks) *observable.Hooks {
	var out observable.Hooks
	for _, h := range hooks {
		if h == nil {
			continue
		}
		if fn := h.OnMutation; fn != nil {
			prev := out.OnMutation
			out.OnMutation = func(op observable.Op, path []string) {
				if prev != nil {
					prev(op, path)
				}
				fn(op, path)
			}
		}
		if fn := h.OnNotify; fn != nil {
			prev := out.OnNotify
			out.OnNotify = func(n int) {
				if prev != nil {
					prev(n)
				}
				fn(n)
			}
		}
		if fn := h.OnFlush; fn != nil {
			prev := out.OnFlush
			out.OnFlush = func(n int) {
				if prev != nil {
					prev(n)
				}
				fn(n)
			}
		}
		if fn := h.OnCompute; fn != nil {
			prev := out.OnCompute
			out.OnCompute = func(d time.Duration) {
				if prev != nil {
					prev(d)
				}
				fn(d)
			}
		}
		if fn := h.OnError; fn != nil {
			prev := out.OnError
			out.OnError = func(op observable.Op, err error) {
				if prev != nil {
					prev(op, err)
				}
				fn(op, err)
			}
		}
	}
	return &out
}

// joinPath renders a path for span attributes and log records.
func joinPath(path []string) string {
	if len(path) == 0 {
		return "<root>"
	}
	return strings.Join(path, ".")
}
