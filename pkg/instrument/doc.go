// Package instrument connects observable trees to Prometheus and
// OpenTelemetry.
//
// Metrics are collected through observable.Hooks:
//
//	m := instrument.Prometheus(instrument.WithNamespace("myapp"))
//	m.Install()
//	http.Handle("/metrics", promhttp.Handler())
//
// Transactions can be traced as spans:
//
//	tr := instrument.NewTracer(instrument.WithTracerName("myapp"))
//	err := tr.Tx(ctx, "checkout", func(ctx context.Context) error {
//	    cart.Child("items").Set(nil)
//	    return order.Child("status").Set("placed")
//	})
package instrument
