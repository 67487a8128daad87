package model

import (
	"fmt"
	"math"

	"github.com/antonmedv/expr"
	"github.com/antonmedv/expr/vm"
)

var derivedFuncs = map[string]any{
	"exp":  math.Exp,
	"log":  math.Log,
	"sqrt": math.Sqrt,
	"pow":  math.Pow,
}

// derivedEvaluator compiles each derived parameter expression once per
// snippet and evaluates it against every group that uses the snippet.
type derivedEvaluator struct {
	dt       float64
	programs map[*Snippet][]*vm.Program
}

func newDerivedEvaluator(dt float64) *derivedEvaluator {
	return &derivedEvaluator{dt: dt, programs: make(map[*Snippet][]*vm.Program)}
}

func (e *derivedEvaluator) env(s *Snippet, params []float64) map[string]any {
	env := make(map[string]any, len(params)+len(derivedFuncs)+1)
	for name, fn := range derivedFuncs {
		env[name] = fn
	}
	for i, name := range s.ParamNames {
		env[name] = params[i]
	}
	env["DT"] = e.dt
	return env
}

func (e *derivedEvaluator) derive(s *Snippet, params []float64) ([]float64, error) {
	if len(params) != len(s.ParamNames) {
		return nil, fmt.Errorf("%s: %d params for %d names", s.Name, len(params), len(s.ParamNames))
	}
	if len(s.DerivedParams) == 0 {
		return nil, nil
	}
	env := e.env(s, params)
	programs, ok := e.programs[s]
	if !ok {
		programs = make([]*vm.Program, len(s.DerivedParams))
		for i, dp := range s.DerivedParams {
			program, err := expr.Compile(dp.Expr, expr.Env(env))
			if err != nil {
				return nil, fmt.Errorf("%s: compile derived param %s: %w", s.Name, dp.Name, err)
			}
			programs[i] = program
		}
		e.programs[s] = programs
	}

	values := make([]float64, len(s.DerivedParams))
	for i, program := range programs {
		out, err := expr.Run(program, env)
		if err != nil {
			return nil, fmt.Errorf("%s: evaluate derived param %s: %w", s.Name, s.DerivedParams[i].Name, err)
		}
		v, err := toFloat(out)
		if err != nil {
			return nil, fmt.Errorf("%s: derived param %s: %w", s.Name, s.DerivedParams[i].Name, err)
		}
		values[i] = v
	}
	return values, nil
}

func (e *derivedEvaluator) deriveVarInits(inits []VarInit) error {
	for i := range inits {
		vi := &inits[i]
		if vi.Snippet == nil {
			return fmt.Errorf("var initialiser %d has no snippet", i)
		}
		derived, err := e.derive(&vi.Snippet.Snippet, vi.Params)
		if err != nil {
			return err
		}
		vi.DerivedParams = derived
	}
	return nil
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	default:
		return 0, fmt.Errorf("non-numeric result %T", v)
	}
}
