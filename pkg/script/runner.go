package script

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sort"
	"strings"

	jsonpatch "github.com/evanphx/json-patch"
	"github.com/vango-dev/statetree/pkg/inspect"
	"github.com/vango-dev/statetree/pkg/instrument"
	"github.com/vango-dev/statetree/pkg/observable"
)

// Options configures Run.
type Options struct {
	// Out receives the report (default: io.Discard).
	Out io.Writer

	// Diff prints a state diff after every step that changed it.
	Diff bool

	// Color enables ANSI colors in the report.
	Color bool

	// Logger receives debug records for each step (default: slog.Default()).
	Logger *slog.Logger
}

// Option configures Run.
type Option func(*Options)

// WithOutput sets the report writer.
func WithOutput(w io.Writer) Option {
	return func(o *Options) {
		o.Out = w
	}
}

// WithDiff enables per-step state diffs.
func WithDiff(enabled bool) Option {
	return func(o *Options) {
		o.Diff = enabled
	}
}

// WithColor enables colored output.
func WithColor(enabled bool) Option {
	return func(o *Options) {
		o.Color = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) {
		o.Logger = l
	}
}

// Event is one notification received by a watch, a computed or a when step.
type Event struct {
	Step       int
	Watch      string
	Path       string
	Value      any
	Prev       any
	Structural bool
	Reorder    bool
}

func (e Event) String() string {
	label := e.Watch
	if e.Path != "" && e.Path != e.Watch {
		label += " " + e.Path
	}
	s := fmt.Sprintf("%s: %s -> %s", label, format(e.Prev), format(e.Value))
	if e.Structural {
		s += " [structural]"
	}
	if e.Reorder {
		s += " [reorder]"
	}
	return s
}

// Result is the outcome of a run.
type Result struct {
	Name   string
	Events []Event
	Final  any

	// Pending names the when steps whose condition never became true.
	Pending []string
}

// StepError reports the step a run stopped at. Index is 1-based.
type StepError struct {
	Index int
	Op    string
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %v", e.Index, e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

type runner struct {
	opts     Options
	paint    palette
	logger   *slog.Logger
	root     *observable.Obs
	computed map[string]*observable.Obs
	env      map[string]any
	disposes []observable.Dispose
	whens    map[string]*observable.Promise
	events   []Event
	evalErr  error
	step     int
}

// Run executes s against a fresh tree. On a failing step it returns the
// partial result together with a *StepError.
func Run(s *Scenario, opts ...Option) (*Result, error) {
	options := Options{Out: io.Discard}
	for _, opt := range opts {
		opt(&options)
	}
	if options.Out == nil {
		options.Out = io.Discard
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	r := &runner{
		opts:     options,
		paint:    newPalette(options.Color),
		logger:   options.Logger.With("scenario", s.Name),
		root:     observable.New(normalize(s.State), observable.WithName(s.Name)),
		computed: make(map[string]*observable.Obs),
		env:      map[string]any{},
		whens:    make(map[string]*observable.Promise),
	}
	defer r.dispose()

	res := &Result{Name: s.Name}
	err := r.run(s)
	res.Events = r.events
	res.Final = r.root.Peek()
	for name, p := range r.whens {
		if !p.Settled() {
			res.Pending = append(res.Pending, name)
		}
	}
	sort.Strings(res.Pending)
	return res, err
}

func (r *runner) run(s *Scenario) error {
	if s.Name != "" {
		r.printf("%s\n", r.paint.header("scenario %s", s.Name))
	}
	if err := r.setup(s); err != nil {
		return err
	}

	for i, st := range s.Steps {
		r.step = i + 1
		before := r.root.Peek()
		r.printf("%s\n", r.paint.header("[%d] %s", r.step, describe(st)))
		r.logger.Debug("step", "index", r.step, "op", st.Op, "path", st.Path)

		err := r.checkFailure(st, r.exec(st))
		if err == nil && r.evalErr != nil {
			err = r.evalErr
		}
		if err != nil {
			r.printf("    %s\n", r.paint.fail("error: %v", err))
			return &StepError{Index: r.step, Op: st.Op, Err: err}
		}
		if r.opts.Diff {
			if d := Diff(before, r.root.Peek(), r.opts.Color); d != "" {
				r.printf("%s", indent(d, "    "))
			}
		}
	}
	return nil
}

func (r *runner) setup(s *Scenario) error {
	for _, def := range s.Computed {
		prg, err := r.compile(def.Expr)
		if err != nil {
			return &StepError{Op: "computed", Err: err}
		}
		name := def.Name
		c := observable.Computed(func() any {
			v, err := r.eval(prg)
			if err != nil {
				r.fail(fmt.Errorf("computed %q: %w", name, err))
				return nil
			}
			return v
		})
		r.computed[name] = c
		r.disposes = append(r.disposes, c.OnChange(func(ch observable.Change) {
			r.emit(Event{Watch: name, Value: ch.Value, Prev: ch.Prev})
		}))
		r.printf("computed %s = %s\n", r.paint.name("%s", name), format(c.Peek()))
	}
	if r.evalErr != nil {
		return &StepError{Op: "computed", Err: r.evalErr}
	}

	for _, w := range s.Watch {
		track, err := ParseTracking(w.Track)
		if err != nil {
			return &StepError{Op: "watch", Err: err}
		}
		base := inspect.ParsePath(w.Path)
		name := w.Name
		if name == "" {
			name = strings.Join(base, ".")
		}
		if name == "" {
			name = "$"
		}
		r.disposes = append(r.disposes, r.root.At(base...).OnChange(func(ch observable.Change) {
			full := append(append([]string(nil), base...), ch.Path...)
			r.emit(Event{
				Watch:      name,
				Path:       strings.Join(full, "."),
				Value:      ch.ChangedValue,
				Prev:       ch.PrevAtChange,
				Structural: ch.Structural,
				Reorder:    ch.Reorder,
			})
		}, track))
	}
	return nil
}

func (r *runner) exec(st Step) error {
	target := r.at(st.Path)
	switch st.Op {
	case "set":
		v, err := r.value(st)
		if err != nil {
			return err
		}
		return target.Set(v)
	case "assign":
		v, err := r.value(st)
		if err != nil {
			return err
		}
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("%w: assign needs an object value, got %T", ErrBadStep, v)
		}
		return target.Assign(m)
	case "delete":
		return target.Delete()
	case "toggle":
		_, err := target.Toggle()
		return err
	case "push":
		return target.Push(normalize(st.Items).([]any)...)
	case "splice":
		_, err := target.Splice(st.Start, st.DeleteCount, normalize(st.Items).([]any)...)
		return err
	case "batch":
		var err error
		observable.Batch(func() {
			for _, sub := range st.Steps {
				if err = r.checkFailure(sub, r.exec(sub)); err != nil {
					return
				}
			}
		})
		return err
	case "when":
		return r.when(st)
	case "lock":
		observable.LockObservable(r.root, true)
		return nil
	case "unlock":
		observable.LockObservable(r.root, false)
		return nil
	case "patch":
		return r.patch(st)
	case "expect":
		want, err := r.value(st)
		if err != nil {
			return err
		}
		if got := target.Peek(); !reflect.DeepEqual(got, want) {
			return fmt.Errorf("%w: %s = %s, want %s", ErrExpectation, pathLabel(st.Path), format(got), format(want))
		}
		return nil
	}
	return fmt.Errorf("%w %q", ErrUnknownOp, st.Op)
}

// value returns the step's Expr result, or its Value.
func (r *runner) value(st Step) (any, error) {
	if st.Expr == "" {
		return normalize(st.Value), nil
	}
	prg, err := r.compile(st.Expr)
	if err != nil {
		return nil, err
	}
	return r.eval(prg)
}

func (r *runner) when(st Step) error {
	prg, err := r.compile(st.Expr)
	if err != nil {
		return err
	}
	name := st.Name
	if name == "" {
		name = st.Expr
	}
	r.whens[name] = observable.When(func() any {
		v, err := r.eval(prg)
		if err != nil {
			r.fail(fmt.Errorf("when %q: %w", name, err))
			return nil
		}
		return v
	}, func(v any) {
		r.emit(Event{Watch: "when " + name, Value: v})
	})
	return nil
}

func (r *runner) patch(st Step) error {
	data, err := json.Marshal(normalize(st.Patch))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadStep, err)
	}
	p, err := jsonpatch.DecodePatch(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadStep, err)
	}
	next, err := inspect.ApplyPatch(r.root.Peek(), p)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBadStep, err)
	}
	return r.root.Set(next)
}

// checkFailure matches a step's result against its declared error kind.
func (r *runner) checkFailure(st Step, err error) error {
	if st.Error == "" {
		return err
	}
	if err == nil {
		return fmt.Errorf("%w: want %s", ErrExpectedFailure, st.Error)
	}
	if kind := instrument.ErrorKind(err); kind != st.Error {
		return fmt.Errorf("%w: want %s, got %s (%v)", ErrExpectedFailure, st.Error, kind, err)
	}
	r.printf("    %s\n", r.paint.name("failed as expected: %v", err))
	return nil
}

func (r *runner) emit(e Event) {
	e.Step = r.step
	r.events = append(r.events, e)
	r.printf("    %s\n", e)
}

func (r *runner) fail(err error) {
	if r.evalErr == nil {
		r.evalErr = err
	}
}

func (r *runner) dispose() {
	for _, d := range r.disposes {
		d()
	}
}

func (r *runner) printf(format string, a ...any) {
	fmt.Fprintf(r.opts.Out, format, a...)
}

func describe(st Step) string {
	s := st.Op
	if st.Path != "" || opTakesPath(st.Op) {
		s += " " + pathLabel(st.Path)
	}
	switch {
	case st.Expr != "":
		s += " = " + st.Expr
	case st.Value != nil:
		s += " = " + format(normalize(st.Value))
	case len(st.Items) > 0:
		s += " " + format(normalize(st.Items))
	}
	return s
}

func opTakesPath(op string) bool {
	switch op {
	case "batch", "when", "lock", "unlock", "patch":
		return false
	}
	return true
}

func pathLabel(p string) string {
	if p == "" {
		return "$"
	}
	return p
}

func format(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}

func indent(s, prefix string) string {
	lines := splitLines(s)
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n") + "\n"
}

// IsExpectation reports whether err came from a failed expect step.
func IsExpectation(err error) bool {
	return errors.Is(err, ErrExpectation)
}
