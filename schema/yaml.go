// Package schema builds objgraph type descriptors from YAML definitions and
// from Go struct declarations.
package schema

import (
	"fmt"
	"os"
	"strings"

	objgraph "github.com/goliatone/go-objgraph"
	"gopkg.in/yaml.v3"
)

// Document is the YAML layout of a schema file.
type Document struct {
	Enums []EnumDef `yaml:"enums"`
	Types []TypeDef `yaml:"types"`
}

// EnumDef declares an enum or bitflags type.
type EnumDef struct {
	Name     string         `yaml:"name"`
	Bitflags bool           `yaml:"bitflags,omitempty"`
	Values   []EnumValueDef `yaml:"values"`
}

type EnumValueDef struct {
	Name  string `yaml:"name"`
	Value int64  `yaml:"value"`
}

// TypeDef declares a class type. Base names the parent type.
type TypeDef struct {
	Name       string        `yaml:"name"`
	Version    uint32        `yaml:"version,omitempty"`
	Base       string        `yaml:"base,omitempty"`
	Properties []PropertyDef `yaml:"properties"`
}

// PropertyDef declares one property. Category defaults to member. Type names
// the class or enum type of class, pointer and enum properties.
type PropertyDef struct {
	Name     string   `yaml:"name"`
	Category string   `yaml:"category,omitempty"`
	Kind     string   `yaml:"kind,omitempty"`
	Type     string   `yaml:"type,omitempty"`
	Flags    []string `yaml:"flags,omitempty"`
	Default  any      `yaml:"default,omitempty"`
}

// LoadYAMLFile reads path and applies it with LoadYAML.
func LoadYAMLFile(path string, registry *objgraph.TypeRegistry) ([]*objgraph.Type, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: reading %s: %w", path, err)
	}
	return LoadYAML(data, registry)
}

// LoadYAML parses data and applies it to registry. Types that are already
// registered are redefined in place, which hot reloads every live instance;
// new types are registered. Nothing is changed when any definition is
// invalid. The touched class types are returned in declaration order.
// Documents holding live objects need Document.SyncSchema afterwards so
// newly declared embedded members get their objects.
func LoadYAML(data []byte, registry *objgraph.TypeRegistry) ([]*objgraph.Type, error) {
	if registry == nil {
		return nil, fmt.Errorf("schema: type registry is required")
	}
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("schema: parsing yaml: %w", err)
	}
	return Apply(doc, registry)
}

// Apply validates doc against registry and then applies it, see LoadYAML.
func Apply(doc Document, registry *objgraph.TypeRegistry) ([]*objgraph.Type, error) {
	l := loader{registry: registry, pending: map[string]*objgraph.Type{}}

	var enums []*objgraph.Type
	for _, def := range doc.Enums {
		enum, err := l.enum(def)
		if err != nil {
			return nil, err
		}
		if enum != nil {
			enums = append(enums, enum)
		}
	}

	types, err := l.declare(doc.Types)
	if err != nil {
		return nil, err
	}

	props := make([][]objgraph.Property, len(doc.Types))
	for i, def := range doc.Types {
		if props[i], err = l.properties(def); err != nil {
			return nil, err
		}
	}

	for _, enum := range enums {
		if err := registry.Register(enum); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
	}
	for i, def := range doc.Types {
		version := def.Version
		if version == 0 {
			version = 1
		}
		types[i].Redefine(version, props[i]...)
		if err := registry.Register(types[i]); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
	}
	return types, nil
}

type loader struct {
	registry *objgraph.TypeRegistry
	pending  map[string]*objgraph.Type
}

func (l *loader) lookup(name string) *objgraph.Type {
	if t, ok := l.pending[name]; ok {
		return t
	}
	return l.registry.FindType(name)
}

// enum returns a new enum type, or nil when an identical one is registered.
func (l *loader) enum(def EnumDef) (*objgraph.Type, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("schema: enum name is required")
	}
	if len(def.Values) == 0 {
		return nil, fmt.Errorf("schema: enum %q declares no values", def.Name)
	}
	constants := make([]objgraph.EnumConstant, len(def.Values))
	for i, value := range def.Values {
		constants[i] = objgraph.EnumConstant{Name: value.Name, Value: value.Value}
	}

	if existing := l.lookup(def.Name); existing != nil {
		if !existing.IsEnum() || existing.IsBitflags() != def.Bitflags {
			return nil, fmt.Errorf("schema: enum %q conflicts with an existing type", def.Name)
		}
		for _, c := range constants {
			if v, ok := existing.EnumValue(c.Name); !ok || v != c.Value {
				return nil, fmt.Errorf("schema: enum %q cannot be redefined (constant %s)", def.Name, c.Name)
			}
		}
		return nil, nil
	}
	enum := objgraph.NewEnumType(def.Name, def.Bitflags, constants...)
	l.pending[def.Name] = enum
	return enum, nil
}

// declare resolves or creates the descriptor of every type definition.
// Bases must be declared earlier in the file or already registered.
func (l *loader) declare(defs []TypeDef) ([]*objgraph.Type, error) {
	out := make([]*objgraph.Type, len(defs))
	for i, def := range defs {
		if def.Name == "" {
			return nil, fmt.Errorf("schema: type name is required")
		}
		if _, dup := l.pending[def.Name]; dup {
			return nil, fmt.Errorf("schema: type %q declared twice", def.Name)
		}
		var base *objgraph.Type
		if def.Base != "" {
			if base = l.lookup(def.Base); base == nil {
				return nil, fmt.Errorf("schema: type %q: unknown base %q", def.Name, def.Base)
			}
		}
		if existing := l.registry.FindType(def.Name); existing != nil {
			if existing.IsEnum() {
				return nil, fmt.Errorf("schema: type %q is an enum", def.Name)
			}
			if existing.Parent() != base {
				return nil, fmt.Errorf("schema: type %q cannot change its base", def.Name)
			}
			out[i] = existing
		} else {
			out[i] = objgraph.NewType(def.Name, def.Version, base)
		}
		l.pending[def.Name] = out[i]
	}
	return out, nil
}

func (l *loader) properties(def TypeDef) ([]objgraph.Property, error) {
	props := make([]objgraph.Property, 0, len(def.Properties))
	seen := make(map[string]struct{}, len(def.Properties))
	for _, pd := range def.Properties {
		prop, err := l.property(pd)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.%s: %w", def.Name, pd.Name, err)
		}
		if _, dup := seen[prop.Name]; dup {
			return nil, fmt.Errorf("schema: %s.%s: declared twice", def.Name, pd.Name)
		}
		seen[prop.Name] = struct{}{}
		props = append(props, prop)
	}
	return props, nil
}

func (l *loader) property(pd PropertyDef) (objgraph.Property, error) {
	prop := objgraph.Property{Name: pd.Name}
	if pd.Name == "" {
		return prop, fmt.Errorf("name is required")
	}
	if pd.Category != "" {
		category, ok := objgraph.ParseCategory(pd.Category)
		if !ok {
			return prop, fmt.Errorf("unknown category %q", pd.Category)
		}
		prop.Category = category
	}
	for _, name := range pd.Flags {
		flag, ok := objgraph.ParseFlag(name)
		if !ok {
			return prop, fmt.Errorf("unknown flag %q", name)
		}
		prop.Flags |= flag
	}
	if pd.Kind != "" {
		kind, ok := objgraph.ParseKind(pd.Kind)
		if !ok {
			return prop, fmt.Errorf("unknown kind %q", pd.Kind)
		}
		prop.Kind = kind
	}
	if pd.Type != "" {
		t := l.lookup(pd.Type)
		if t == nil {
			return prop, fmt.Errorf("unknown type %q", pd.Type)
		}
		prop.Type = t
		if t.IsEnum() && !prop.Flags.Any(objgraph.FlagIsEnum|objgraph.FlagBitflags) {
			if t.IsBitflags() {
				prop.Flags |= objgraph.FlagBitflags
			} else {
				prop.Flags |= objgraph.FlagIsEnum
			}
		}
	}
	if prop.Flags.Any(objgraph.FlagPointer|objgraph.FlagPointerOwner) && !prop.Flags.Has(objgraph.FlagClass) {
		prop.Flags |= objgraph.FlagClass
	}
	if prop.Flags.Has(objgraph.FlagPointerOwner) {
		prop.Flags |= objgraph.FlagPointer
	}
	if prop.Kind == objgraph.KindInvalid && !prop.Flags.Any(objgraph.FlagClass|objgraph.FlagIsEnum|objgraph.FlagBitflags) {
		return prop, fmt.Errorf("kind or type is required")
	}
	if pd.Default != nil {
		prop.Default = objgraph.FromInterface(pd.Default)
		if !prop.Default.IsValid() {
			return prop, fmt.Errorf("unsupported default %v", pd.Default)
		}
	}
	return prop, nil
}

// Export describes types as a schema Document. Enum types referenced by
// properties are included ahead of the classes.
func Export(types ...*objgraph.Type) Document {
	var doc Document
	seenEnums := map[string]struct{}{}
	addEnum := func(t *objgraph.Type) {
		if _, ok := seenEnums[t.Name()]; ok {
			return
		}
		seenEnums[t.Name()] = struct{}{}
		def := EnumDef{Name: t.Name(), Bitflags: t.IsBitflags()}
		for _, c := range t.Constants() {
			def.Values = append(def.Values, EnumValueDef{Name: c.Name, Value: c.Value})
		}
		doc.Enums = append(doc.Enums, def)
	}

	for _, t := range types {
		if t.IsEnum() {
			addEnum(t)
			continue
		}
		def := TypeDef{Name: t.Name(), Version: t.Version()}
		if parent := t.Parent(); parent != nil {
			def.Base = parent.Name()
		}
		for _, prop := range t.DeclaredProperties() {
			pd := PropertyDef{Name: prop.Name, Flags: flagNames(prop.Flags)}
			if prop.Category != objgraph.CategoryMember {
				pd.Category = prop.Category.String()
			}
			if prop.Kind != objgraph.KindInvalid {
				pd.Kind = prop.Kind.String()
			}
			if prop.Type != nil {
				pd.Type = prop.Type.Name()
				if prop.Type.IsEnum() {
					addEnum(prop.Type)
				}
			}
			if prop.Default.IsValid() {
				pd.Default = prop.Default.Interface()
			}
			def.Properties = append(def.Properties, pd)
		}
		doc.Types = append(doc.Types, def)
	}
	return doc
}

// MarshalYAML renders types with Export.
func MarshalYAML(types ...*objgraph.Type) ([]byte, error) {
	out, err := yaml.Marshal(Export(types...))
	if err != nil {
		return nil, fmt.Errorf("schema: encoding yaml: %w", err)
	}
	return out, nil
}

func flagNames(flags objgraph.PropertyFlags) []string {
	if flags == 0 {
		return nil
	}
	return strings.Split(flags.String(), "|")
}
