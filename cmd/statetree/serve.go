package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/vango-dev/statetree/internal/config"
	"github.com/vango-dev/statetree/internal/errors"
	"github.com/vango-dev/statetree/pkg/inspect"
	"github.com/vango-dev/statetree/pkg/instrument"
	"github.com/vango-dev/statetree/pkg/observable"
	"github.com/vango-dev/statetree/pkg/script"
)

type serveOptions struct {
	configPath string
	statePath  string
	addr       string
	readOnly   bool
}

func serveCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a tree over HTTP",
		Long: `Serve an observable tree with the inspector.

The tree starts from --state (JSON or YAML) or an empty object.
Settings come from statetree.yaml in the working directory, or
--config; flags override them.

Endpoints:
  GET/PUT/PATCH/DELETE /state?path=a.b
  POST /patch            RFC 6902 JSON Patch
  GET  /ws               change stream
  GET  /metrics          Prometheus metrics

Examples:
  statetree serve
  statetree serve --state todos.json --addr :8080`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default: statetree.yaml in the working directory)")
	cmd.Flags().StringVarP(&opts.statePath, "state", "s", "", "Initial state file")
	cmd.Flags().StringVarP(&opts.addr, "addr", "a", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&opts.readOnly, "read-only", false, "Reject writes")

	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.LoadOrDefault(".")
}

func loadState(path string) (any, error) {
	if path == "" {
		return map[string]any{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New("S041").Wrap(err)
	}
	state, err := script.DecodeState(data)
	if err != nil {
		return nil, errors.New("S041").Wrap(err)
	}
	return state, nil
}

// newInspector wires the tree, instrumentation and the inspector from cfg.
func newInspector(cfg *config.Config, state any, logger *slog.Logger, registry *prometheus.Registry) (*inspect.Server, *observable.Obs) {
	observable.SetLogger(logger)
	observable.DebugMode = cfg.Debug

	metricsOpts := []instrument.MetricsOption{
		instrument.WithNamespace(cfg.Metrics.Namespace),
		instrument.WithSubsystem(cfg.Metrics.Subsystem),
		instrument.WithRegistry(registry),
	}
	if len(cfg.Metrics.Buckets) > 0 {
		metricsOpts = append(metricsOpts, instrument.WithBuckets(cfg.Metrics.Buckets))
	}
	hooks := []*observable.Hooks{
		instrument.LogHooks(logger, time.Duration(cfg.Log.SlowComputeMS)*time.Millisecond),
	}
	if !cfg.Metrics.Disabled {
		hooks = append(hooks, instrument.Prometheus(metricsOpts...).Hooks())
	}
	observable.SetHooks(instrument.Chain(hooks...))

	var srv *inspect.Server
	obs := observable.New(state,
		observable.WithName(cfg.Name),
		observable.WithDispatcher(func(fn func()) { srv.Dispatch(fn) }),
		observable.WithRejectionHandler(func(path []string, err error) {
			logger.Error("promise rejected", "path", path, "error", err)
		}),
	)

	inspectOpts := []inspect.Option{
		inspect.WithLogger(logger),
		inspect.WithGatherer(registry),
		inspect.WithMetricsPath(cfg.MetricsPath()),
		inspect.WithReadOnly(cfg.Inspect.ReadOnly),
		inspect.WithTracer(instrument.NewTracer(instrument.WithTracerName(cfg.Tracing.TracerName))),
	}
	if origins := cfg.Inspect.AllowedOrigins; len(origins) > 0 {
		inspectOpts = append(inspectOpts, inspect.WithCheckOrigin(func(r *http.Request) bool {
			return slices.Contains(origins, r.Header.Get("Origin"))
		}))
	}
	srv = inspect.NewServer(obs, inspectOpts...)
	return srv, obs
}

func runServe(ctx context.Context, opts serveOptions) error {
	cfg, err := loadConfig(opts.configPath)
	if err != nil {
		return err
	}
	if opts.readOnly {
		cfg.Inspect.ReadOnly = true
	}
	addr := cfg.InspectAddress()
	if opts.addr != "" {
		addr = opts.addr
	}

	state, err := loadState(opts.statePath)
	if err != nil {
		return err
	}

	logger := cfg.Logger(os.Stderr)
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, _ := newInspector(cfg, state, logger, registry)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	success("Inspecting on http://%s", addr)
	if path := cfg.MetricsPath(); path != "" {
		info("Metrics at http://%s%s", addr, path)
	}

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return errors.New("S040").Wrap(err)
		}
		return nil
	case <-ctx.Done():
	}

	fmt.Println("\n  Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return errors.New("S040").Wrap(err)
	}
	return nil
}
