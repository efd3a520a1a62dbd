package script

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/vango-dev/statetree/pkg/inspect"
	"github.com/vango-dev/statetree/pkg/observable"
)

// compile compiles src with the state functions bound to r.
func (r *runner) compile(src string) (*vm.Program, error) {
	prg, err := expr.Compile(src, r.exprOptions()...)
	if err != nil {
		return nil, fmt.Errorf("%w: expr %q: %w", ErrBadStep, src, err)
	}
	return prg, nil
}

func (r *runner) eval(prg *vm.Program) (any, error) {
	v, err := expr.Run(prg, r.env)
	if err != nil {
		return nil, err
	}
	return normalize(v), nil
}

func (r *runner) exprOptions() []expr.Option {
	return []expr.Option{
		expr.Function("get", func(params ...any) (any, error) {
			return r.at(params[0].(string)).Get(), nil
		},
			new(func(string) any)),
		expr.Function("peek", func(params ...any) (any, error) {
			return r.at(params[0].(string)).Peek(), nil
		},
			new(func(string) any)),
		expr.Function("keys", func(params ...any) (any, error) {
			keys := r.at(params[0].(string)).Keys()
			if keys == nil {
				keys = []string{}
			}
			return keys, nil
		},
			new(func(string) []string)),
		expr.Function("computed", func(params ...any) (any, error) {
			name := params[0].(string)
			c, ok := r.computed[name]
			if !ok {
				return nil, fmt.Errorf("unknown computed %q", name)
			}
			return c.Get(), nil
		},
			new(func(string) any)),
	}
}

func (r *runner) at(path string) *observable.Obs {
	return r.root.At(inspect.ParsePath(path)...)
}
