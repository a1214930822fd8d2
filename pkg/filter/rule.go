package filter

import (
	"fmt"
	"strings"
	"time"

	objgraph "github.com/goliatone/go-objgraph"
)

// RuleOption configures a rule filter.
type RuleOption func(*ruleConfig)

type ruleConfig struct {
	logger   Logger
	args     map[string]any
	metadata map[string]any
}

// WithLogger records every evaluation.
func WithLogger(logger Logger) RuleOption {
	return func(cfg *ruleConfig) {
		if logger == nil {
			cfg.logger = noopLogger{}
			return
		}
		cfg.logger = logger
	}
}

// WithArgs exposes args to the expression as the args variable.
func WithArgs(args map[string]any) RuleOption {
	return func(cfg *ruleConfig) {
		cfg.args = args
	}
}

// WithMetadata exposes metadata to the expression as the metadata variable.
func WithMetadata(metadata map[string]any) RuleOption {
	return func(cfg *ruleConfig) {
		cfg.metadata = metadata
	}
}

// NewEvaluator returns the evaluator for engine: "expr" (also the default
// for an empty name), "cel" or "js". js needs the js_eval build tag. A nil
// registry leaves the built-in helpers.
func NewEvaluator(engine string, cache ProgramCache, registry *FunctionRegistry) (Evaluator, error) {
	opts := []EngineOption{WithProgramCache(cache), WithFunctions(registry)}
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", "expr":
		return NewExprEvaluator(opts...), nil
	case "cel":
		return NewCELEvaluator(opts...), nil
	case "js", "javascript":
		if !jsEvaluatorAvailable() {
			return nil, fmt.Errorf("%w: js engine requires the js_eval build tag", ErrNoEvaluator)
		}
		return NewJSEvaluator(opts...), nil
	}
	return nil, fmt.Errorf("%w: unknown engine %q", ErrNoEvaluator, engine)
}

// Rule compiles expression once and returns a writer filter that keeps a
// property when the expression yields true. A failed evaluation or a
// non-boolean result is logged and keeps the property. A nil evaluator
// selects expr.
func Rule(evaluator Evaluator, expression string, opts ...RuleOption) (objgraph.Filter, error) {
	cfg := ruleConfig{logger: noopLogger{}}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if evaluator == nil {
		evaluator = NewExprEvaluator()
	}
	engine := evaluatorEngineName(evaluator)
	compiled, err := evaluator.Compile(expression)
	if err != nil {
		return nil, wrapEvaluationError(engine, expression, "", err)
	}

	return func(obj *objgraph.Object, prop *objgraph.Property) bool {
		ctx := SubjectContext(obj, prop)
		ctx.Args = cfg.args
		ctx.Metadata = cfg.metadata

		start := time.Now()
		result, err := compiled.Evaluate(ctx)
		keep := true
		if err == nil {
			switch typed := result.(type) {
			case bool:
				keep = typed
			default:
				err = fmt.Errorf("rule returned %T, want bool", result)
			}
		}
		err = wrapEvaluationError(engine, expression, ctx.label(), err)
		cfg.logger.LogEvaluation(LogEvent{
			Engine:   engine,
			Expr:     expression,
			Subject:  ctx.label(),
			Duration: time.Since(start),
			Err:      err,
		})
		return keep
	}, nil
}

// All keeps a property only when every non-nil filter keeps it.
func All(filters ...objgraph.Filter) objgraph.Filter {
	return func(obj *objgraph.Object, prop *objgraph.Property) bool {
		for _, f := range filters {
			if f != nil && !f(obj, prop) {
				return false
			}
		}
		return true
	}
}

func evaluatorEngineName(e Evaluator) string {
	switch fmt.Sprintf("%T", e) {
	case "*filter.exprEvaluator":
		return "expr"
	case "*filter.celEvaluator":
		return "cel"
	case "*filter.jsEvaluator":
		return "js"
	default:
		return "custom"
	}
}
