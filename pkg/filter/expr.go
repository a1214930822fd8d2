package filter

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

type exprEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewExprEvaluator constructs an Evaluator backed by expr-lang/expr. It is
// the default engine of Rule. Helpers are callable by name and through
// call(name, args...).
func NewExprEvaluator(opts ...EngineOption) Evaluator {
	cfg := newEngineConfig(opts)
	return &exprEvaluator{cache: cfg.cache, registry: cfg.functions}
}

func (e *exprEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("expr", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(ctx.withDefaults(), expression, program)
}

func (e *exprEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("expr", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &exprCompiledRule{evaluator: e, program: program, expression: expression}, nil
}

func (e *exprEvaluator) loadOrCompile(expression string) (*exprvm.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(expression); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}
	options := []exprlang.Option{
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	}
	for _, name := range e.registry.identifiers() {
		options = append(options, exprlang.Function(name, e.registryFunction(name)))
	}
	program, err := exprlang.Compile(expression, options...)
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, "", err)
	}
	if e.cache != nil {
		e.cache.Set(expression, program)
	}
	return program, nil
}

func (e *exprEvaluator) run(ctx RuleContext, expression string, program *exprvm.Program) (any, error) {
	result, err := exprlang.Run(program, e.environment(ctx))
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, ctx.label(), err)
	}
	return result, nil
}

func (e *exprEvaluator) environment(ctx RuleContext) map[string]any {
	env := ctx.variables()
	env["call"] = func(name string, arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
	return env
}

func (e *exprEvaluator) registryFunction(name string) func(...any) (any, error) {
	return func(arguments ...any) (any, error) {
		return e.registry.Call(name, arguments...)
	}
}

type exprCompiledRule struct {
	evaluator  *exprEvaluator
	program    *exprvm.Program
	expression string
}

func (r *exprCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	return r.evaluator.run(ctx.withDefaults(), r.expression, r.program)
}
