package objgraph

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// Category determines the shape of a property's stored value.
type Category uint8

const (
	CategoryMember Category = iota
	CategoryArray
	CategorySet
	CategoryMap
	CategoryConstant
	CategoryFunction
)

func (c Category) String() string {
	switch c {
	case CategoryMember:
		return "member"
	case CategoryArray:
		return "array"
	case CategorySet:
		return "set"
	case CategoryMap:
		return "map"
	case CategoryConstant:
		return "constant"
	case CategoryFunction:
		return "function"
	}
	return fmt.Sprintf("category(%d)", uint8(c))
}

// ParseCategory resolves a category from its lowercase name.
func ParseCategory(name string) (Category, bool) {
	for c := CategoryMember; c <= CategoryFunction; c++ {
		if c.String() == strings.ToLower(strings.TrimSpace(name)) {
			return c, true
		}
	}
	return CategoryMember, false
}

// PropertyFlags describe ownership and interpretation of a property.
type PropertyFlags uint16

const (
	FlagStandardType PropertyFlags = 1 << iota
	FlagIsEnum
	FlagBitflags
	FlagClass
	FlagPointer
	FlagPointerOwner
	FlagReadOnly
	FlagHidden
)

var flagNames = []struct {
	flag PropertyFlags
	name string
}{
	{FlagStandardType, "standard"},
	{FlagIsEnum, "enum"},
	{FlagBitflags, "bitflags"},
	{FlagClass, "class"},
	{FlagPointer, "pointer"},
	{FlagPointerOwner, "owner"},
	{FlagReadOnly, "readonly"},
	{FlagHidden, "hidden"},
}

// Has reports whether every bit in flag is set.
func (f PropertyFlags) Has(flag PropertyFlags) bool { return f&flag == flag }

// Any reports whether at least one bit in flags is set.
func (f PropertyFlags) Any(flags PropertyFlags) bool { return f&flags != 0 }

func (f PropertyFlags) String() string {
	var parts []string
	for _, entry := range flagNames {
		if f.Has(entry.flag) {
			parts = append(parts, entry.name)
		}
	}
	return strings.Join(parts, "|")
}

// ParseFlag resolves a single flag name such as "class" or "owner".
func ParseFlag(name string) (PropertyFlags, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "pointerowner" {
		return FlagPointerOwner, true
	}
	for _, entry := range flagNames {
		if entry.name == name {
			return entry.flag, true
		}
	}
	return 0, false
}

// Property describes one reflected property of a Type.
//
// Kind is the value kind of primitive members and collection elements. Type
// references the specific type for class, pointer and enum properties; a
// class property with a nil Type accepts objects of any type. Default is
// converted to the storage kind when the type is mapped.
type Property struct {
	Name     string
	Category Category
	Flags    PropertyFlags
	Kind     Kind
	Type     *Type
	Default  Value
}

// IsValueType reports whether the property stores plain values rather than
// object references or enumerations.
func (p *Property) IsValueType() bool {
	return !p.Flags.Any(FlagClass | FlagPointer | FlagIsEnum | FlagBitflags)
}

// IsEnum reports whether the property holds an enum or bitflags value.
func (p *Property) IsEnum() bool {
	return p.Flags.Any(FlagIsEnum | FlagBitflags)
}

// IsEmbedded reports whether the property is a value-embedded class member.
func (p *Property) IsEmbedded() bool {
	return p.Category == CategoryMember && p.Flags.Has(FlagClass) && !p.Flags.Has(FlagPointer)
}

// IsReference reports whether the property stores a non-owning pointer.
func (p *Property) IsReference() bool {
	return p.Flags.Has(FlagPointer) && !p.Flags.Has(FlagPointerOwner)
}

// OwnsObjects reports whether the property holds identifiers of child objects
// whose lifetime is tied to the holder.
func (p *Property) OwnsObjects() bool {
	if p.Flags.Has(FlagPointer) {
		return p.Flags.Has(FlagPointerOwner)
	}
	return p.Flags.Has(FlagClass)
}

// TypeName returns the name of the specific type, or the kind name for
// primitive properties.
func (p *Property) TypeName() string {
	if p.Type != nil {
		return p.Type.Name()
	}
	return p.Kind.String()
}

// elementKind is the kind of a member value or of each collection element.
func (p *Property) elementKind() Kind {
	switch {
	case p.Flags.Any(FlagPointer | FlagClass):
		return KindUUID
	case p.IsEnum():
		return KindInt64
	}
	return p.Kind
}

// storageKind is the kind of the whole stored slot.
func (p *Property) storageKind() Kind {
	switch p.Category {
	case CategoryArray, CategorySet:
		return KindArray
	case CategoryMap:
		return KindDictionary
	case CategoryMember:
		return p.elementKind()
	}
	return KindInvalid
}

// storageDefault is the value a fresh slot is filled with.
func (p *Property) storageDefault() Value {
	kind := p.storageKind()
	switch kind {
	case KindArray, KindDictionary:
		if p.Default.Kind() == kind {
			return p.Default
		}
		return Zero(kind)
	case KindTypedObject:
		return p.Default
	}
	if p.IsEnum() && p.Default.IsA(KindString) && p.Type != nil {
		if i, ok := p.Type.EnumValue(p.Default.AsString()); ok {
			return Int64(i)
		}
	}
	if converted, ok := p.Default.ConvertTo(kind); ok {
		return converted
	}
	return Zero(kind)
}

// EnumConstant is one named value of an enum or bitflags type.
type EnumConstant struct {
	Name  string
	Value int64
}

var revisionCounter atomic.Uint64

// Type is a runtime reflection descriptor. Properties may be redefined while
// instances exist; every redefinition bumps the revision so storage mappings
// and accessors resync lazily.
type Type struct {
	name   string
	parent *Type

	mu         sync.RWMutex
	version    uint32
	properties []*Property
	constants  []EnumConstant
	bitflags   bool
	revision   uint64
}

// NewType builds a class descriptor. parent may be nil.
func NewType(name string, version uint32, parent *Type, props ...Property) *Type {
	t := &Type{name: name, parent: parent}
	t.Redefine(version, props...)
	return t
}

// NewEnumType builds an enum descriptor. When bitflags is true, values combine
// with "|" in their string spelling.
func NewEnumType(name string, bitflags bool, constants ...EnumConstant) *Type {
	t := &Type{name: name, bitflags: bitflags, version: 1}
	t.constants = append([]EnumConstant(nil), constants...)
	t.revision = revisionCounter.Add(1)
	return t
}

func (t *Type) Name() string  { return t.name }
func (t *Type) Parent() *Type { return t.parent }

func (t *Type) Version() uint32 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.version
}

// Revision changes whenever the property set of t is redefined.
func (t *Type) Revision() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.revision
}

// IsEnum reports whether t is an enum or bitflags type.
func (t *Type) IsEnum() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.constants) > 0
}

// IsBitflags reports whether t combines constants as flags.
func (t *Type) IsBitflags() bool { return t.bitflags }

// Redefine replaces the declared properties of t, as a schema hot reload does.
func (t *Type) Redefine(version uint32, props ...Property) {
	declared := make([]*Property, 0, len(props))
	for i := range props {
		prop := props[i]
		declared = append(declared, &prop)
	}
	t.mu.Lock()
	t.version = version
	t.properties = declared
	t.revision = revisionCounter.Add(1)
	t.mu.Unlock()
}

// DeclaredProperties returns the properties declared on t itself.
func (t *Type) DeclaredProperties() []*Property {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Property(nil), t.properties...)
}

// AllProperties returns inherited properties first, then the ones declared on t.
func (t *Type) AllProperties() []*Property {
	var chain []*Type
	for cur := t; cur != nil; cur = cur.parent {
		chain = append(chain, cur)
	}
	var out []*Property
	for i := len(chain) - 1; i >= 0; i-- {
		out = append(out, chain[i].DeclaredProperties()...)
	}
	return out
}

// FindProperty resolves name on t or any of its parents.
func (t *Type) FindProperty(name string) *Property {
	for cur := t; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		for _, prop := range cur.properties {
			if prop.Name == name {
				cur.mu.RUnlock()
				return prop
			}
		}
		cur.mu.RUnlock()
	}
	return nil
}

// IsDerivedFrom reports whether t equals other or inherits from it.
func (t *Type) IsDerivedFrom(other *Type) bool {
	for cur := t; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

// revisions returns the revision of every type in the inheritance chain.
func (t *Type) revisions() []uint64 {
	var out []uint64
	for cur := t; cur != nil; cur = cur.parent {
		out = append(out, cur.Revision())
	}
	return out
}

// Constants returns the enum constants in declaration order.
func (t *Type) Constants() []EnumConstant {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]EnumConstant(nil), t.constants...)
}

// EnumString spells value symbolically. Bitflags join every set constant with
// "|"; unknown values fall back to the decimal number.
func (t *Type) EnumString(value int64) string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.bitflags {
		for _, c := range t.constants {
			if c.Value == value {
				return c.Name
			}
		}
		return fmt.Sprint(value)
	}
	var parts []string
	for _, c := range t.constants {
		if c.Value != 0 && value&c.Value == c.Value {
			parts = append(parts, c.Name)
		}
	}
	return strings.Join(parts, "|")
}

// EnumValue parses a symbolic spelling produced by EnumString. Constant names
// may be qualified with the type name ("Color::Red").
func (t *Type) EnumValue(spelling string) (int64, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	lookup := func(name string) (int64, bool) {
		name = strings.TrimSpace(name)
		if idx := strings.LastIndex(name, "::"); idx >= 0 {
			name = name[idx+2:]
		}
		for _, c := range t.constants {
			if c.Name == name {
				return c.Value, true
			}
		}
		return 0, false
	}
	if !t.bitflags {
		return lookup(spelling)
	}
	var out int64
	if strings.TrimSpace(spelling) == "" {
		return 0, true
	}
	for _, part := range strings.Split(spelling, "|") {
		v, ok := lookup(part)
		if !ok {
			return 0, false
		}
		out |= v
	}
	return out, true
}

// TypeRegistry resolves type names to descriptors.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]*Type
}

// NewTypeRegistry returns a registry holding types.
func NewTypeRegistry(types ...*Type) *TypeRegistry {
	r := &TypeRegistry{types: make(map[string]*Type)}
	for _, t := range types {
		_ = r.Register(t)
	}
	return r
}

// Register adds t. Registering a different descriptor under a taken name fails.
func (r *TypeRegistry) Register(t *Type) error {
	if t == nil {
		return fmt.Errorf("objgraph: register: nil type")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.types[t.name]; ok && existing != t {
		return fmt.Errorf("register %q: %w", t.name, ErrDuplicateType)
	}
	r.types[t.name] = t
	return nil
}

// Unregister removes the named type and drops its storage mapping.
func (r *TypeRegistry) Unregister(name string) {
	r.mu.Lock()
	t, ok := r.types[name]
	delete(r.types, name)
	r.mu.Unlock()
	if ok {
		forgetMapping(t)
	}
}

// FindType returns the named type or nil.
func (r *TypeRegistry) FindType(name string) *Type {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[name]
}

// Types returns every registered type sorted by name.
func (r *TypeRegistry) Types() []*Type {
	r.mu.RLock()
	out := make([]*Type, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}
