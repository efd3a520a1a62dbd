package script

import (
	"errors"
	"fmt"
	"os"
	"reflect"

	"github.com/goccy/go-yaml"
	"github.com/vango-dev/statetree/pkg/observable"
)

var (
	// ErrParse is returned when a scenario document cannot be decoded.
	ErrParse = errors.New("script: invalid scenario document")

	// ErrInvalidScenario is returned when a decoded scenario fails validation.
	ErrInvalidScenario = errors.New("script: invalid scenario")

	// ErrUnknownOp is returned for a step with an unsupported op.
	ErrUnknownOp = errors.New("script: unknown op")

	// ErrBadStep is returned when a step's fields do not fit its op.
	ErrBadStep = errors.New("script: malformed step")

	// ErrExpectation is returned when an expect step does not match.
	ErrExpectation = errors.New("script: expectation failed")

	// ErrExpectedFailure is returned when a step declared an error but
	// succeeded, or failed with a different kind.
	ErrExpectedFailure = errors.New("script: expected failure did not occur")
)

// Scenario is a decoded scenario document.
type Scenario struct {
	Name     string        `yaml:"name"`
	State    any           `yaml:"state"`
	Watch    []Watch       `yaml:"watch"`
	Computed []ComputedDef `yaml:"computed"`
	Steps    []Step        `yaml:"steps"`
}

// Watch registers a listener on Path. Track is "all" (default), "shallow"
// or "optimize".
type Watch struct {
	Name  string `yaml:"name"`
	Path  string `yaml:"path"`
	Track string `yaml:"track"`
}

// ComputedDef declares a computed value. Its changes are reported like a
// watch named Name.
type ComputedDef struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// Step is one scenario operation.
//
// Ops: set, assign, delete, toggle, push, splice, batch, when, lock, unlock,
// patch and expect. Set and expect take Value or Expr. Error, when set,
// names the error kind the step must fail with (for example "locked").
type Step struct {
	Op          string `yaml:"op"`
	Path        string `yaml:"path"`
	Value       any    `yaml:"value"`
	Expr        string `yaml:"expr"`
	Name        string `yaml:"name"`
	Start       int    `yaml:"start"`
	DeleteCount int    `yaml:"delete"`
	Items       []any  `yaml:"items"`
	Steps       []Step `yaml:"steps"`
	Patch       []any  `yaml:"patch"`
	Error       string `yaml:"error"`
}

var knownOps = map[string]bool{
	"set": true, "assign": true, "delete": true, "toggle": true,
	"push": true, "splice": true, "batch": true, "when": true,
	"lock": true, "unlock": true, "patch": true, "expect": true,
}

// Load decodes and validates a scenario.
func Load(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.UnmarshalWithOptions(data, &s, yaml.DisallowUnknownField()); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile reads and decodes a scenario file.
func LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// Validate checks names, tracking modes and ops.
func (s *Scenario) Validate() error {
	seen := make(map[string]bool)
	for i, c := range s.Computed {
		if c.Name == "" || c.Expr == "" {
			return fmt.Errorf("%w: computed %d needs a name and an expr", ErrInvalidScenario, i)
		}
		if seen[c.Name] {
			return fmt.Errorf("%w: duplicate computed %q", ErrInvalidScenario, c.Name)
		}
		seen[c.Name] = true
	}
	for _, w := range s.Watch {
		if _, err := ParseTracking(w.Track); err != nil {
			return fmt.Errorf("%w: watch %q: %w", ErrInvalidScenario, w.Path, err)
		}
	}
	return validateSteps(s.Steps, "")
}

func validateSteps(steps []Step, prefix string) error {
	for i, st := range steps {
		at := fmt.Sprintf("%s%d", prefix, i+1)
		if !knownOps[st.Op] {
			return fmt.Errorf("%w: step %s: %w %q", ErrInvalidScenario, at, ErrUnknownOp, st.Op)
		}
		if st.Op == "batch" {
			if err := validateSteps(st.Steps, at+"."); err != nil {
				return err
			}
		}
		if st.Op == "when" && st.Expr == "" {
			return fmt.Errorf("%w: step %s: when needs an expr", ErrInvalidScenario, at)
		}
	}
	return nil
}

// ParseTracking parses a watch tracking mode. The empty string is "all".
func ParseTracking(s string) (observable.TrackingType, error) {
	switch s {
	case "", "all":
		return observable.TrackAll, nil
	case "shallow":
		return observable.TrackShallow, nil
	case "optimize":
		return observable.TrackOptimize, nil
	}
	return observable.TrackAll, fmt.Errorf("unknown tracking %q", s)
}

// normalize converts decoded YAML and expression results to the JSON data
// model: string-keyed maps, []any and float64 numbers.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, bool, string, float64:
		return x
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = normalize(e)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[fmt.Sprint(k)] = normalize(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = normalize(e)
		}
		return out
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32:
		return rv.Float()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = normalize(rv.Index(i).Interface())
		}
		return out
	}
	return v
}

// DecodeState decodes a YAML or JSON document into the tree's data model.
func DecodeState(data []byte) (any, error) {
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrParse, err)
	}
	return normalize(v), nil
}
