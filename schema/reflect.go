package schema

import (
	"fmt"
	"reflect"
	"strings"

	objgraph "github.com/goliatone/go-objgraph"
	"github.com/google/uuid"
)

// StructOption configures FromStruct.
type StructOption func(*structConfig)

type structConfig struct {
	name    string
	version uint32
}

// WithTypeName overrides the Go type name of the root struct.
func WithTypeName(name string) StructOption {
	return func(cfg *structConfig) {
		cfg.name = name
	}
}

// WithVersion sets the version of the root type.
func WithVersion(version uint32) StructOption {
	return func(cfg *structConfig) {
		cfg.version = version
	}
}

var uuidType = reflect.TypeFor[uuid.UUID]()

// FromStruct derives a class type from the exported fields of struct T and
// registers it. Struct types reached through fields are derived and
// registered too unless the registry already knows their name. An embedded
// anonymous struct becomes the parent type.
//
// Property names come from the graph tag, then the json tag, then the field
// name. Options after the name:
//
//	owner      pointer fields and collections own their objects
//	set        slices become sets
//	const      the property is a constant
//	readonly   sets FlagReadOnly
//	hidden     sets FlagHidden
//	enum=Name  integer fields hold values of the registered enum Name
//
// The default tag holds the default value in its string spelling.
func FromStruct[T any](registry *objgraph.TypeRegistry, opts ...StructOption) (*objgraph.Type, error) {
	cfg := structConfig{version: 1}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if registry == nil {
		return nil, fmt.Errorf("schema: type registry is required")
	}
	rt := reflect.TypeFor[T]()
	if rt.Kind() != reflect.Struct {
		return nil, fmt.Errorf("schema: %s is not a struct", rt)
	}
	name := cfg.name
	if name == "" {
		name = rt.Name()
	}
	if registry.FindType(name) != nil {
		return nil, fmt.Errorf("schema: type %q: %w", name, objgraph.ErrDuplicateType)
	}

	d := deriver{registry: registry, pending: map[reflect.Type]*objgraph.Type{}}
	t, err := d.derive(rt, name, cfg.version)
	if err != nil {
		return nil, err
	}
	for _, derived := range d.order {
		if err := registry.Register(derived); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
	}
	return t, nil
}

type deriver struct {
	registry *objgraph.TypeRegistry
	pending  map[reflect.Type]*objgraph.Type
	order    []*objgraph.Type
}

func (d *deriver) classType(rt reflect.Type) (*objgraph.Type, error) {
	if t, ok := d.pending[rt]; ok {
		return t, nil
	}
	if rt.Name() == "" {
		return nil, fmt.Errorf("schema: anonymous struct %s needs a named type", rt)
	}
	if t := d.registry.FindType(rt.Name()); t != nil {
		return t, nil
	}
	return d.derive(rt, rt.Name(), 1)
}

func (d *deriver) derive(rt reflect.Type, name string, version uint32) (*objgraph.Type, error) {
	var parent *objgraph.Type
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct && field.Tag.Get("graph") == "" {
			if parent != nil {
				return nil, fmt.Errorf("schema: %s embeds more than one struct", rt)
			}
			base, err := d.classType(field.Type)
			if err != nil {
				return nil, err
			}
			parent = base
		}
	}

	// Registered before its fields so self references resolve.
	t := objgraph.NewType(name, version, parent)
	d.pending[rt] = t

	var props []objgraph.Property
	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if !field.IsExported() || (field.Anonymous && field.Type.Kind() == reflect.Struct && field.Tag.Get("graph") == "") {
			continue
		}
		prop, skip, err := d.property(field)
		if err != nil {
			return nil, fmt.Errorf("schema: %s.%s: %w", name, field.Name, err)
		}
		if !skip {
			props = append(props, prop)
		}
	}
	t.Redefine(version, props...)
	d.order = append(d.order, t)
	return t, nil
}

type fieldTag struct {
	name     string
	owner    bool
	set      bool
	constant bool
	enum     string
	flags    objgraph.PropertyFlags
}

func parseFieldTag(field reflect.StructField) (fieldTag, bool) {
	tag := fieldTag{name: field.Name}
	raw, ok := field.Tag.Lookup("graph")
	if !ok {
		if jsonTag := field.Tag.Get("json"); jsonTag != "" {
			raw = strings.Split(jsonTag, ",")[0]
		}
	}
	if raw == "-" {
		return tag, true
	}
	parts := strings.Split(raw, ",")
	if parts[0] != "" {
		tag.name = parts[0]
	}
	if !ok {
		return tag, false
	}
	for _, option := range parts[1:] {
		switch option = strings.TrimSpace(option); {
		case option == "owner":
			tag.owner = true
		case option == "set":
			tag.set = true
		case option == "const":
			tag.constant = true
		case option == "readonly":
			tag.flags |= objgraph.FlagReadOnly
		case option == "hidden":
			tag.flags |= objgraph.FlagHidden
		case strings.HasPrefix(option, "enum="):
			tag.enum = strings.TrimPrefix(option, "enum=")
		}
	}
	return tag, false
}

func (d *deriver) property(field reflect.StructField) (objgraph.Property, bool, error) {
	tag, skip := parseFieldTag(field)
	prop := objgraph.Property{Name: tag.name, Flags: tag.flags}
	if skip {
		return prop, true, nil
	}
	if tag.constant {
		prop.Category = objgraph.CategoryConstant
	}

	if tag.enum != "" {
		enum := d.registry.FindType(tag.enum)
		if enum == nil || !enum.IsEnum() {
			return prop, false, fmt.Errorf("unknown enum %q", tag.enum)
		}
		if _, ok := primitiveKind(field.Type); !ok {
			return prop, false, fmt.Errorf("enum field must be an integer")
		}
		prop.Type = enum
		if enum.IsBitflags() {
			prop.Flags |= objgraph.FlagBitflags
		} else {
			prop.Flags |= objgraph.FlagIsEnum
		}
		if def, ok := field.Tag.Lookup("default"); ok {
			prop.Default = objgraph.String(def)
		}
		return prop, false, nil
	}

	ft := field.Type
	switch {
	case ft.Kind() == reflect.Slice && ft.Elem().Kind() != reflect.Uint8:
		prop.Category = objgraph.CategoryArray
		if tag.set {
			prop.Category = objgraph.CategorySet
		}
		return d.element(prop, ft.Elem(), tag)

	case ft.Kind() == reflect.Map:
		if ft.Key().Kind() != reflect.String {
			return prop, false, fmt.Errorf("map keys must be strings")
		}
		prop.Category = objgraph.CategoryMap
		return d.element(prop, ft.Elem(), tag)

	case ft.Kind() == reflect.Pointer && ft.Elem().Kind() == reflect.Struct:
		t, err := d.classType(ft.Elem())
		if err != nil {
			return prop, false, err
		}
		prop.Type = t
		prop.Flags |= objgraph.FlagClass | objgraph.FlagPointer
		if tag.owner {
			prop.Flags |= objgraph.FlagPointerOwner
		}
		return prop, false, nil

	case ft.Kind() == reflect.Struct && ft != uuidType:
		t, err := d.classType(ft)
		if err != nil {
			return prop, false, err
		}
		prop.Type = t
		prop.Flags |= objgraph.FlagClass
		return prop, false, nil
	}

	kind, ok := primitiveKind(ft)
	if !ok {
		return prop, false, fmt.Errorf("unsupported field type %s", ft)
	}
	prop.Kind = kind
	if def, ok := field.Tag.Lookup("default"); ok {
		value, converted := objgraph.String(def).ConvertTo(kind)
		if !converted {
			return prop, false, fmt.Errorf("default %q is not a %s", def, kind)
		}
		prop.Default = value
	}
	return prop, false, nil
}

// element fills the element description of a collection property.
func (d *deriver) element(prop objgraph.Property, elem reflect.Type, tag fieldTag) (objgraph.Property, bool, error) {
	if elem.Kind() == reflect.Pointer && elem.Elem().Kind() == reflect.Struct {
		t, err := d.classType(elem.Elem())
		if err != nil {
			return prop, false, err
		}
		prop.Type = t
		prop.Flags |= objgraph.FlagClass | objgraph.FlagPointer
		if tag.owner {
			prop.Flags |= objgraph.FlagPointerOwner
		}
		return prop, false, nil
	}
	kind, ok := primitiveKind(elem)
	if !ok {
		return prop, false, fmt.Errorf("unsupported element type %s", elem)
	}
	prop.Kind = kind
	return prop, false, nil
}

func primitiveKind(rt reflect.Type) (objgraph.Kind, bool) {
	if rt == uuidType {
		return objgraph.KindUUID, true
	}
	switch rt.Kind() {
	case reflect.Bool:
		return objgraph.KindBool, true
	case reflect.Int8:
		return objgraph.KindInt8, true
	case reflect.Int16:
		return objgraph.KindInt16, true
	case reflect.Int32:
		return objgraph.KindInt32, true
	case reflect.Int, reflect.Int64:
		return objgraph.KindInt64, true
	case reflect.Uint8:
		return objgraph.KindUint8, true
	case reflect.Uint16:
		return objgraph.KindUint16, true
	case reflect.Uint32:
		return objgraph.KindUint32, true
	case reflect.Uint, reflect.Uint64:
		return objgraph.KindUint64, true
	case reflect.Float32:
		return objgraph.KindFloat32, true
	case reflect.Float64:
		return objgraph.KindFloat64, true
	case reflect.String:
		return objgraph.KindString, true
	}
	return objgraph.KindInvalid, false
}
