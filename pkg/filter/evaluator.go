package filter

import (
	"errors"
	"sync"
	"time"

	objgraph "github.com/goliatone/go-objgraph"
)

var ErrNoEvaluator = errors.New("filter: evaluator not configured")

// Evaluator executes rule expressions against a property subject.
type Evaluator interface {
	Evaluate(ctx RuleContext, expression string) (any, error)
	Compile(expression string) (CompiledRule, error)
}

// CompiledRule is an expression prepared once and evaluated per subject.
type CompiledRule interface {
	Evaluate(ctx RuleContext) (any, error)
}

// RuleContext is the subject a rule sees: one property of one object.
// Expressions reach the fields through variables of the same name in lower
// camel case, with id for ObjectID; helpers from the engine's
// FunctionRegistry are callable by name.
type RuleContext struct {
	TypeName  string
	Property  string
	Kind      string
	Category  string
	Flags     string
	Owner     bool
	Embedded  bool
	Reference bool
	ObjectID  string
	Value     any
	Args      map[string]any
	Metadata  map[string]any
	Now       *time.Time
}

// SubjectContext describes prop of obj.
func SubjectContext(obj *objgraph.Object, prop *objgraph.Property) RuleContext {
	value := obj.GetValue(prop.Name)
	return RuleContext{
		TypeName:  obj.Type().Name(),
		Property:  prop.Name,
		Kind:      value.Kind().String(),
		Category:  prop.Category.String(),
		Flags:     prop.Flags.String(),
		Owner:     prop.OwnsObjects(),
		Embedded:  prop.IsEmbedded(),
		Reference: prop.IsReference(),
		ObjectID:  obj.ID().String(),
		Value:     value.Interface(),
	}
}

func (c RuleContext) withDefaults() RuleContext {
	if c.Now == nil {
		now := time.Now()
		c.Now = &now
	}
	if c.Args == nil {
		c.Args = map[string]any{}
	}
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	return c
}

func (c RuleContext) timestamp() time.Time {
	if c.Now == nil {
		return time.Now()
	}
	return *c.Now
}

// label identifies the subject as Type/property in errors and logs.
func (c RuleContext) label() string {
	if c.TypeName == "" {
		return c.Property
	}
	return c.TypeName + "/" + c.Property
}

// variables lists the subject fields exposed to every engine.
func (c RuleContext) variables() map[string]any {
	return map[string]any{
		"typeName":  c.TypeName,
		"property":  c.Property,
		"kind":      c.Kind,
		"category":  c.Category,
		"flags":     c.Flags,
		"owner":     c.Owner,
		"embedded":  c.Embedded,
		"reference": c.Reference,
		"id":        c.ObjectID,
		"value":     c.Value,
		"args":      c.Args,
		"metadata":  c.Metadata,
		"now":       c.timestamp(),
	}
}

// EngineOption configures a rule engine.
type EngineOption func(*engineConfig)

type engineConfig struct {
	cache     ProgramCache
	functions *FunctionRegistry
}

// WithProgramCache shares compiled programs through cache.
func WithProgramCache(cache ProgramCache) EngineOption {
	return func(cfg *engineConfig) {
		cfg.cache = cache
	}
}

// WithFunctions exposes the helpers of registry instead of a fresh
// NewFunctionRegistry. Later registrations on registry are not seen.
func WithFunctions(registry *FunctionRegistry) EngineOption {
	return func(cfg *engineConfig) {
		if registry != nil {
			cfg.functions = registry.snapshot()
		}
	}
}

func newEngineConfig(opts []EngineOption) engineConfig {
	var cfg engineConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.functions == nil {
		cfg.functions = NewFunctionRegistry()
	}
	return cfg
}

// ProgramCache stores compiled programs keyed by expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

type memoryCache struct {
	programs sync.Map
}

// NewProgramCache returns an unbounded, concurrency-safe ProgramCache.
func NewProgramCache() ProgramCache {
	return &memoryCache{}
}

func (c *memoryCache) Get(key string) (any, bool) {
	return c.programs.Load(key)
}

func (c *memoryCache) Set(key string, value any) {
	c.programs.Store(key, value)
}

// LogEvent describes one rule evaluation.
type LogEvent struct {
	Engine   string
	Expr     string
	Subject  string
	Duration time.Duration
	Err      error
}

// Logger records rule evaluations.
type Logger interface {
	LogEvaluation(LogEvent)
}

// LoggerFunc adapts a function to Logger.
type LoggerFunc func(LogEvent)

// LogEvaluation implements Logger.
func (f LoggerFunc) LogEvaluation(event LogEvent) {
	if f != nil {
		f(event)
	}
}

type noopLogger struct{}

func (noopLogger) LogEvaluation(LogEvent) {}
