package inspect

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/vango-dev/statetree/pkg/instrument"
	"github.com/vango-dev/statetree/pkg/observable"
)

// Config configures the inspector.
type Config struct {
	// MetricsPath is where Prometheus metrics are served (default:
	// "/metrics"). Empty disables the endpoint.
	MetricsPath string

	// Gatherer provides the metrics (default: prometheus.DefaultGatherer).
	Gatherer prometheus.Gatherer

	// ReadOnly rejects every write request with 405.
	ReadOnly bool

	// CheckOrigin validates websocket origins. Default allows all.
	CheckOrigin func(r *http.Request) bool

	// Logger receives request and stream logs (default: slog.Default()).
	Logger *slog.Logger

	// MaxBodyBytes limits request bodies (default: 1MB).
	MaxBodyBytes int64

	// Tracer, when set, wraps every write in a named transaction span.
	Tracer *instrument.Tracer
}

// Option configures the inspector.
type Option func(*Config)

// WithMetricsPath sets the metrics endpoint path.
func WithMetricsPath(path string) Option {
	return func(c *Config) {
		c.MetricsPath = path
	}
}

// WithGatherer sets the Prometheus gatherer served on the metrics path.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(c *Config) {
		c.Gatherer = g
	}
}

// WithReadOnly disables write endpoints.
func WithReadOnly(readOnly bool) Option {
	return func(c *Config) {
		c.ReadOnly = readOnly
	}
}

// WithCheckOrigin sets the websocket origin check.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(c *Config) {
		c.CheckOrigin = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTracer traces writes.
func WithTracer(tr *instrument.Tracer) Option {
	return func(c *Config) {
		c.Tracer = tr
	}
}

func defaultConfig() Config {
	return Config{
		MetricsPath:  "/metrics",
		Gatherer:     prometheus.DefaultGatherer,
		Logger:       slog.Default(),
		MaxBodyBytes: 1 << 20,
	}
}

// Server exposes an observable over HTTP: reads and writes by path, RFC 6902
// JSON Patch, a websocket change stream and Prometheus metrics.
//
// Routes:
//
//	GET    /state?path=a.b   current value
//	GET    /keys?path=a.b    child keys
//	PUT    /state?path=a.b   Set (JSON body)
//	PATCH  /state?path=a.b   Assign (JSON object body)
//	DELETE /state?path=a.b   Delete
//	POST   /toggle?path=a.b  Toggle
//	POST   /patch            apply a JSON Patch to the root
//	POST   /lock, DELETE /lock
//	GET    /ws               change stream
//
// All access to the tree is serialized by the server, so HTTP handlers never
// race with each other. Code that mutates the same tree outside the server
// should go through Dispatch.
type Server struct {
	obs     *observable.Obs
	config  Config
	logger  *slog.Logger
	mu      sync.Mutex
	router  chi.Router
	hub     *hub
	dispose observable.Dispose
}

// NewServer creates an inspector for o.
func NewServer(o *observable.Obs, opts ...Option) *Server {
	config := defaultConfig()
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	logger := config.Logger.With("component", "inspect")

	s := &Server{
		obs:    o,
		config: config,
		logger: logger,
		hub:    newHub(logger, config.CheckOrigin),
	}
	s.dispose = o.OnChange(s.onChange)
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/state", s.handleGet)
	r.Get("/keys", s.handleKeys)
	r.Get("/ws", s.handleWS)

	r.Group(func(r chi.Router) {
		r.Use(s.writable)
		r.Put("/state", s.handleSet)
		r.Patch("/state", s.handleAssign)
		r.Delete("/state", s.handleDelete)
		r.Post("/toggle", s.handleToggle)
		r.Post("/patch", s.handlePatch)
		r.Post("/lock", s.handleLock(true))
		r.Delete("/lock", s.handleLock(false))
	})

	if s.config.MetricsPath != "" {
		r.Handle(s.config.MetricsPath, promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Dispatch runs fn with exclusive access to the tree. It has the
// observable.Dispatcher signature, so it can route promise settlements.
func (s *Server) Dispatch(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn()
}

// Clients returns the number of connected change stream clients.
func (s *Server) Clients() int {
	return s.hub.count()
}

// Close detaches from the tree and disconnects stream clients.
func (s *Server) Close() {
	s.dispose()
	s.hub.close()
}

// onChange runs under s.mu for writes made through the server.
func (s *Server) onChange(c observable.Change) {
	data, err := json.Marshal(Message{
		Type:  MessageChange,
		Path:  strings.Join(c.Path, "."),
		Value: c.ChangedValue,
		Prev:  c.PrevAtChange,
	})
	if err != nil {
		s.logger.Warn("change not encodable", "path", strings.Join(c.Path, "."), "error", err)
		return
	}
	s.hub.broadcast(data)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request", "method", r.Method, "path", r.URL.Path,
			"state_path", r.URL.Query().Get("path"), "status", ww.Status())
	})
}

func (s *Server) writable(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.config.ReadOnly {
			writeError(w, http.StatusMethodNotAllowed, "read_only", errors.New("inspector is read-only"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// target resolves the path query parameter to a handle.
func (s *Server) target(r *http.Request) *observable.Obs {
	return s.obs.At(ParsePath(r.URL.Query().Get("path"))...)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	o := s.target(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, Message{Type: MessageSnapshot, Path: o.PathString(), Value: o.Peek()})
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	o := s.target(r)
	s.mu.Lock()
	keys := o.Keys()
	s.mu.Unlock()
	if keys == nil {
		keys = []string{}
	}
	writeJSON(w, http.StatusOK, keys)
}

func (s *Server) handleSet(w http.ResponseWriter, r *http.Request) {
	var v any
	if err := s.decode(r, &v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	s.mutate(w, r, func(o *observable.Obs) error { return o.Set(v) })
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var partial map[string]any
	if err := s.decode(r, &partial); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	s.mutate(w, r, func(o *observable.Obs) error { return o.Assign(partial) })
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(o *observable.Obs) error { return o.Delete() })
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	s.mutate(w, r, func(o *observable.Obs) error {
		_, err := o.Toggle()
		return err
	})
}

// mutate applies fn to the target and responds with its new value.
func (s *Server) mutate(w http.ResponseWriter, r *http.Request, fn func(o *observable.Obs) error) {
	o := s.target(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.tx(r, func() error { return fn(o) }); err != nil {
		writeObservableError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Message{Type: MessageSnapshot, Path: o.PathString(), Value: o.Peek()})
}

func (s *Server) handlePatch(w http.ResponseWriter, r *http.Request) {
	body, err := s.readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	patch, err := jsonpatch.DecodePatch(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_patch", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	next, err := ApplyPatch(s.obs.Peek(), patch)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "bad_patch", err)
		return
	}
	if err := s.tx(r, func() error { return s.obs.Set(next) }); err != nil {
		writeObservableError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Message{Type: MessageSnapshot, Value: s.obs.Peek()})
}

// tx runs a write, inside a traced transaction when a tracer is configured.
func (s *Server) tx(r *http.Request, fn func() error) error {
	if s.config.Tracer == nil {
		return fn()
	}
	name := r.Method + " " + r.URL.Path
	if p := r.URL.Query().Get("path"); p != "" {
		name += " " + p
	}
	return s.config.Tracer.Tx(r.Context(), name, func(context.Context) error { return fn() })
}

func (s *Server) handleLock(locked bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		observable.LockObservable(s.obs, locked)
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]bool{"locked": locked})
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	s.hub.serve(w, r, &s.mu, func() []byte {
		data, err := json.Marshal(Message{Type: MessageSnapshot, Value: s.obs.Peek()})
		if err != nil {
			s.logger.Warn("snapshot not encodable", "error", err)
			return nil
		}
		return data
	})
}

func (s *Server) readBody(r *http.Request) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r.Body, s.config.MaxBodyBytes))
}

func (s *Server) decode(r *http.Request, v any) error {
	body, err := s.readBody(r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// ApplyPatch applies an RFC 6902 patch to a JSON-compatible value and
// returns the decoded result.
func ApplyPatch(value any, patch jsonpatch.Patch) (any, error) {
	doc, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	patched, err := patch.Apply(doc)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(patched, &out); err != nil {
		return nil, fmt.Errorf("decode patched state: %w", err)
	}
	return out, nil
}

// ParsePath splits a dotted path. The empty string is the root.
func ParsePath(p string) []string {
	p = strings.Trim(p, ".")
	if p == "" {
		return nil
	}
	return strings.Split(p, ".")
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "encode", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writeError(w http.ResponseWriter, status int, kind string, err error) {
	data, _ := json.Marshal(errorBody{Error: err.Error(), Kind: kind})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// writeObservableError maps observable errors to HTTP statuses.
func writeObservableError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, observable.ErrLocked):
		status = http.StatusLocked
	case errors.Is(err, observable.ErrReadOnly):
		status = http.StatusConflict
	case errors.Is(err, observable.ErrInvalidAssign),
		errors.Is(err, observable.ErrInvalidToggle),
		errors.Is(err, observable.ErrInvalidIndex):
		status = http.StatusUnprocessableEntity
	}
	writeError(w, status, instrument.ErrorKind(err), err)
}
