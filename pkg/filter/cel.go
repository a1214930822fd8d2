package filter

import (
	"fmt"

	celgo "github.com/google/cel-go/cel"
	functions "github.com/google/cel-go/common/functions"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

type celEvaluator struct {
	cache    ProgramCache
	registry *FunctionRegistry
}

// NewCELEvaluator constructs an Evaluator backed by cel-go. The subject
// variables are declared dyn, so rules are checked once and cached per
// expression. Helpers are reached through call(name, arg) and
// call(name, arg, arg).
func NewCELEvaluator(opts ...EngineOption) Evaluator {
	cfg := newEngineConfig(opts)
	return &celEvaluator{cache: cfg.cache, registry: cfg.functions}
}

func (e *celEvaluator) Evaluate(ctx RuleContext, expression string) (any, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(ctx.withDefaults(), expression, program)
}

func (e *celEvaluator) Compile(expression string) (CompiledRule, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("cel", fmt.Errorf("expression must not be empty"))
	}
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &celCompiledRule{evaluator: e, expression: expression, program: program}, nil
}

func (e *celEvaluator) loadOrCompile(expression string) (celgo.Program, error) {
	if e.cache != nil {
		if cached, ok := e.cache.Get(expression); ok {
			if program, ok := cached.(celgo.Program); ok {
				return program, nil
			}
		}
	}

	env, err := e.buildEnv()
	if err != nil {
		return nil, wrapEvaluatorError("cel", err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError("cel", expression, "", issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, "", err)
	}
	if e.cache != nil {
		e.cache.Set(expression, program)
	}
	return program, nil
}

func (e *celEvaluator) buildEnv() (*celgo.Env, error) {
	opts := []celgo.EnvOption{
		celgo.Variable("typeName", celgo.StringType),
		celgo.Variable("property", celgo.StringType),
		celgo.Variable("kind", celgo.StringType),
		celgo.Variable("category", celgo.StringType),
		celgo.Variable("flags", celgo.StringType),
		celgo.Variable("owner", celgo.BoolType),
		celgo.Variable("embedded", celgo.BoolType),
		celgo.Variable("reference", celgo.BoolType),
		celgo.Variable("id", celgo.StringType),
		celgo.Variable("value", celgo.DynType),
		celgo.Variable("args", celgo.DynType),
		celgo.Variable("metadata", celgo.DynType),
		celgo.Variable("now", celgo.TimestampType),
	}
	binding := celgo.FunctionBinding(functions.FunctionOp(e.callBinding()))
	opts = append(opts, celgo.Function("call",
		celgo.Overload("call_dyn", []*celgo.Type{celgo.StringType, celgo.DynType}, celgo.DynType, binding),
		celgo.Overload("call_dyn_dyn", []*celgo.Type{celgo.StringType, celgo.DynType, celgo.DynType}, celgo.DynType, binding),
	))
	return celgo.NewEnv(opts...)
}

func (e *celEvaluator) run(ctx RuleContext, expression string, program celgo.Program) (any, error) {
	out, _, err := program.Eval(ctx.variables())
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, ctx.label(), err)
	}
	return out.Value(), nil
}

// callBinding dispatches call(name, arg) to the registry.
func (e *celEvaluator) callBinding() func(...ref.Val) ref.Val {
	return func(values ...ref.Val) ref.Val {
		if len(values) == 0 {
			return types.NewErr("filter: call requires function name")
		}
		name, ok := values[0].Value().(string)
		if !ok {
			return types.NewErr("filter: call name must be string")
		}
		args := make([]any, 0, len(values)-1)
		for _, val := range values[1:] {
			args = append(args, val.Value())
		}
		result, err := e.registry.Call(name, args...)
		if err != nil {
			return types.NewErr("%s", err.Error())
		}
		if result == nil {
			return types.NullValue
		}
		return types.DefaultTypeAdapter.NativeToValue(result)
	}
}

type celCompiledRule struct {
	evaluator  *celEvaluator
	expression string
	program    celgo.Program
}

func (r *celCompiledRule) Evaluate(ctx RuleContext) (any, error) {
	return r.evaluator.run(ctx.withDefaults(), r.expression, r.program)
}
