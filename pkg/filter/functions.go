package filter

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	objgraph "github.com/goliatone/go-objgraph"
)

// Function is a helper callable from rule expressions.
type Function func(args ...any) (any, error)

// FunctionRegistry holds the helpers rules may call, keyed by lowercase
// name. A new registry starts with the property helpers:
//
//	elements(value)          element count of an array or map value
//	convertible(value, kind) whether value converts to the named kind
//	asKind(value, kind)      value converted to the named kind
//	hasFlag(flags, name)     whether the flags variable carries name
//	globMatch(pattern, s)    doublestar match of s against pattern
type FunctionRegistry struct {
	mu    sync.RWMutex
	funcs map[string]namedFunction
}

type namedFunction struct {
	name string
	fn   Function
}

func NewFunctionRegistry() *FunctionRegistry {
	r := &FunctionRegistry{funcs: make(map[string]namedFunction, len(propertyHelpers))}
	for name, fn := range propertyHelpers {
		r.funcs[strings.ToLower(name)] = namedFunction{name: name, fn: fn}
	}
	return r
}

// Register adds fn under name. Names are unique ignoring case, built-in
// helpers included.
func (r *FunctionRegistry) Register(name string, fn Function) error {
	switch {
	case name == "":
		return fmt.Errorf("filter: function name must not be empty")
	case fn == nil:
		return fmt.Errorf("filter: function %q is nil", name)
	}
	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.funcs[key]; taken {
		return fmt.Errorf("filter: function %q already registered", name)
	}
	if r.funcs == nil {
		r.funcs = make(map[string]namedFunction)
	}
	r.funcs[key] = namedFunction{name: name, fn: fn}
	return nil
}

// snapshot copies the registry so an evaluator does not see later
// registrations.
func (r *FunctionRegistry) snapshot() *FunctionRegistry {
	if r == nil {
		return NewFunctionRegistry()
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := &FunctionRegistry{funcs: make(map[string]namedFunction, len(r.funcs))}
	for key, entry := range r.funcs {
		out.funcs[key] = entry
	}
	return out
}

// Call invokes the helper registered under name.
func (r *FunctionRegistry) Call(name string, args ...any) (any, error) {
	if r == nil {
		return nil, fmt.Errorf("filter: function registry is nil")
	}
	r.mu.RLock()
	entry, ok := r.funcs[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("filter: function %q not registered", name)
	}
	return entry.fn(args...)
}

// Names returns the names as registered, sorted.
func (r *FunctionRegistry) Names() []string {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	names := make([]string, 0, len(r.funcs))
	for _, entry := range r.funcs {
		names = append(names, entry.name)
	}
	r.mu.RUnlock()
	slices.Sort(names)
	return names
}

// identifiers lists the names engines bind: each registered name and its
// lowercase form.
func (r *FunctionRegistry) identifiers() []string {
	var out []string
	for _, name := range r.Names() {
		out = append(out, name)
		if lower := strings.ToLower(name); lower != name {
			out = append(out, lower)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

var propertyHelpers = map[string]Function{
	"elements":    elementsHelper,
	"convertible": convertibleHelper,
	"asKind":      asKindHelper,
	"hasFlag":     hasFlagHelper,
	"globMatch":   globMatchHelper,
}

func elementsHelper(args ...any) (any, error) {
	if err := arity("elements", args, 1); err != nil {
		return nil, err
	}
	return int64(objgraph.FromInterface(args[0]).Len()), nil
}

func convertibleHelper(args ...any) (any, error) {
	value, kind, err := valueAndKind("convertible", args)
	if err != nil {
		return nil, err
	}
	return value.CanConvertTo(kind), nil
}

func asKindHelper(args ...any) (any, error) {
	value, kind, err := valueAndKind("asKind", args)
	if err != nil {
		return nil, err
	}
	converted, ok := value.ConvertTo(kind)
	if !ok {
		return nil, fmt.Errorf("filter: asKind: %v does not convert to %s", args[0], kind)
	}
	return converted.Interface(), nil
}

func hasFlagHelper(args ...any) (any, error) {
	if err := arity("hasFlag", args, 2); err != nil {
		return nil, err
	}
	flags, _ := args[0].(string)
	name, _ := args[1].(string)
	want, ok := objgraph.ParseFlag(name)
	if !ok {
		return nil, fmt.Errorf("filter: hasFlag: unknown flag %q", name)
	}
	for _, part := range strings.Split(flags, "|") {
		if flag, ok := objgraph.ParseFlag(part); ok && flag == want {
			return true, nil
		}
	}
	return false, nil
}

func globMatchHelper(args ...any) (any, error) {
	if err := arity("globMatch", args, 2); err != nil {
		return nil, err
	}
	pattern, _ := args[0].(string)
	subject, _ := args[1].(string)
	matched, err := doublestar.Match(pattern, subject)
	if err != nil {
		return nil, fmt.Errorf("filter: globMatch: %w", err)
	}
	return matched, nil
}

func valueAndKind(name string, args []any) (objgraph.Value, objgraph.Kind, error) {
	if err := arity(name, args, 2); err != nil {
		return objgraph.Value{}, 0, err
	}
	kindName, _ := args[1].(string)
	kind, ok := objgraph.ParseKind(kindName)
	if !ok {
		return objgraph.Value{}, 0, fmt.Errorf("filter: %s: unknown kind %q", name, kindName)
	}
	return objgraph.FromInterface(args[0]), kind, nil
}

func arity(name string, args []any, want int) error {
	if len(args) != want {
		return fmt.Errorf("filter: %s expects %d arguments, got %d", name, want, len(args))
	}
	return nil
}
