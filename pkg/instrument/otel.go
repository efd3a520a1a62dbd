package instrument

import (
	"context"

	"github.com/vango-dev/statetree/pkg/observable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for statetree spans.
const defaultTracerName = "statetree"

// TracerConfig configures transaction tracing.
type TracerConfig struct {
	// TracerName is the name of the tracer (default: "statetree").
	TracerName string

	// Attributes are added to every span.
	Attributes []attribute.KeyValue

	tracer trace.Tracer
}

// TracerOption configures transaction tracing.
type TracerOption func(*TracerConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracerOption {
	return func(c *TracerConfig) {
		c.TracerName = name
	}
}

// WithAttributes adds attributes to every span.
func WithAttributes(attrs ...attribute.KeyValue) TracerOption {
	return func(c *TracerConfig) {
		c.Attributes = append(c.Attributes, attrs...)
	}
}

// Tracer opens spans around observable transactions.
type Tracer struct {
	config TracerConfig
}

// NewTracer creates a Tracer using the global OpenTelemetry tracer
// provider. Configure it with otel.SetTracerProvider before use.
func NewTracer(opts ...TracerOption) *Tracer {
	config := TracerConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.TracerName == "" {
		config.TracerName = defaultTracerName
	}
	config.tracer = otel.Tracer(config.TracerName)
	return &Tracer{config: config}
}

// Tx runs fn inside a named observable transaction and a span. Listener
// deliveries of the transaction happen before the span ends. An error from
// fn is recorded on the span and returned.
func (tr *Tracer) Tx(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	attrs := append([]attribute.KeyValue{attribute.String("statetree.tx", name)}, tr.config.Attributes...)
	ctx, span := tr.config.tracer.Start(ctx, "statetree.tx "+name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
	defer span.End()

	var err error
	observable.TxNamed(name, func() {
		err = fn(ctx)
	})

	if err != nil {
		span.RecordError(err)
		span.SetAttributes(attribute.String("statetree.error_kind", ErrorKind(err)))
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return err
}

// Tx runs fn with a Tracer built from the default configuration.
func Tx(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	return NewTracer().Tx(ctx, name, fn)
}
