//go:build js_eval

package filter

import (
	"fmt"

	"github.com/dop251/goja"
)

type jsEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewJSEvaluator constructs an Evaluator backed by goja. Each evaluation runs
// in a fresh runtime with the helpers bound as globals.
func NewJSEvaluator(opts ...EngineOption) Evaluator {
	cfg := newEngineConfig(opts)
	return &jsEvaluator{cache: cfg.cache, registry: cfg.functions}
}

func (e *jsEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("js", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(ctx.withDefaults(), expression, program)
}

func (e *jsEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("js", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &jsCompiledRule{evaluator: e, expression: expression, program: program}, nil
}

func (e *jsEvaluator) loadOrCompile(expression string) (*goja.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(expression); ok {
			if program, ok := cached.(*goja.Program); ok {
				return program, nil
			}
		}
	}
	program, err := goja.Compile("", fmt.Sprintf("(function(){ return (%s); })()", expression), false)
	if err != nil {
		return nil, wrapEvaluationError("js", expression, "", err)
	}
	if e.cache != nil {
		e.cache.Set(expression, program)
	}
	return program, nil
}

func (e *jsEvaluator) run(ctx RuleContext, expression string, program *goja.Program) (any, error) {
	vm := goja.New()
	for key, value := range ctx.variables() {
		if err := vm.Set(key, value); err != nil {
			return nil, wrapEvaluationError("js", expression, ctx.label(), err)
		}
	}
	_ = vm.Set("call", func(name string, arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	})
	for _, name := range e.registry.identifiers() {
		_ = vm.Set(name, func(arguments ...any) (any, error) {
			return e.registry.Call(name, arguments...)
		})
	}
	value, err := vm.RunProgram(program)
	if err != nil {
		return nil, wrapEvaluationError("js", expression, ctx.label(), err)
	}
	return value.Export(), nil
}

type jsCompiledRule struct {
	evaluator  *jsEvaluator
	expression string
	program    *goja.Program
}

func (r *jsCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	return r.evaluator.run(ctx.withDefaults(), r.expression, r.program)
}

func jsEvaluatorAvailable() bool { return true }
