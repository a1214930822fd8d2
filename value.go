package objgraph

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Kind identifies the shape of data held by a Value.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindBool
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindString
	KindUUID
	KindArray
	KindDictionary
	KindTypedObject
)

var kindNames = map[Kind]string{
	KindInvalid:     "invalid",
	KindBool:        "bool",
	KindInt8:        "int8",
	KindInt16:       "int16",
	KindInt32:       "int32",
	KindInt64:       "int64",
	KindUint8:       "uint8",
	KindUint16:      "uint16",
	KindUint32:      "uint32",
	KindUint64:      "uint64",
	KindFloat32:     "float32",
	KindFloat64:     "float64",
	KindString:      "string",
	KindUUID:        "uuid",
	KindArray:       "array",
	KindDictionary:  "dictionary",
	KindTypedObject: "typed",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind resolves a kind from its lowercase name. "int", "uint", "float"
// and "guid" are accepted as aliases.
func ParseKind(name string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "int":
		return KindInt64, true
	case "uint":
		return KindUint64, true
	case "float", "double":
		return KindFloat64, true
	case "guid":
		return KindUUID, true
	case "map", "dict":
		return KindDictionary, true
	}
	for kind, kindName := range kindNames {
		if kindName == strings.ToLower(strings.TrimSpace(name)) {
			return kind, true
		}
	}
	return KindInvalid, false
}

func (k Kind) isSigned() bool {
	return k >= KindInt8 && k <= KindInt64
}

func (k Kind) isUnsigned() bool {
	return k >= KindUint8 && k <= KindUint64
}

func (k Kind) isFloat() bool {
	return k == KindFloat32 || k == KindFloat64
}

func (k Kind) isNumeric() bool {
	return k.isSigned() || k.isUnsigned() || k.isFloat()
}

// TypedObject is an opaque blob tagged with the name of its runtime type.
type TypedObject struct {
	TypeName string
	Data     any
}

// Value is an immutable tagged union. Signed integers are held as int64,
// unsigned integers as uint64 and floats as float64; the kind keeps the
// declared width. Collections are copied on construction and on read.
type Value struct {
	kind Kind
	data any
}

// Invalid returns the zero Value.
func Invalid() Value { return Value{} }

func Bool(b bool) Value       { return Value{kind: KindBool, data: b} }
func Int8(i int8) Value       { return Value{kind: KindInt8, data: int64(i)} }
func Int16(i int16) Value     { return Value{kind: KindInt16, data: int64(i)} }
func Int32(i int32) Value     { return Value{kind: KindInt32, data: int64(i)} }
func Int64(i int64) Value     { return Value{kind: KindInt64, data: i} }
func Uint8(u uint8) Value     { return Value{kind: KindUint8, data: uint64(u)} }
func Uint16(u uint16) Value   { return Value{kind: KindUint16, data: uint64(u)} }
func Uint32(u uint32) Value   { return Value{kind: KindUint32, data: uint64(u)} }
func Uint64(u uint64) Value   { return Value{kind: KindUint64, data: u} }
func Float32(f float32) Value { return Value{kind: KindFloat32, data: float64(f)} }
func Float64(f float64) Value { return Value{kind: KindFloat64, data: f} }
func String(s string) Value   { return Value{kind: KindString, data: s} }
func UUID(id uuid.UUID) Value { return Value{kind: KindUUID, data: id} }

// Int is shorthand for Int64.
func Int(i int64) Value { return Int64(i) }

// Array builds an ordered sequence value from a copy of values.
func Array(values ...Value) Value {
	out := make([]Value, len(values))
	copy(out, values)
	return Value{kind: KindArray, data: out}
}

// Dictionary builds a string keyed value from a copy of entries.
func Dictionary(entries map[string]Value) Value {
	out := make(map[string]Value, len(entries))
	for key, value := range entries {
		out[key] = value
	}
	return Value{kind: KindDictionary, data: out}
}

// Typed wraps data as an opaque blob of the named runtime type.
func Typed(typeName string, data any) Value {
	return Value{kind: KindTypedObject, data: TypedObject{TypeName: typeName, Data: data}}
}

// IDs builds an array of identifier values.
func IDs(ids ...uuid.UUID) Value {
	out := make([]Value, len(ids))
	for i, id := range ids {
		out[i] = UUID(id)
	}
	return Value{kind: KindArray, data: out}
}

func (v Value) Kind() Kind        { return v.kind }
func (v Value) IsValid() bool     { return v.kind != KindInvalid }
func (v Value) IsA(kind Kind) bool { return v.kind == kind }

// AsBool returns the stored bool, false for any other kind.
func (v Value) AsBool() bool {
	b, _ := v.data.(bool)
	return b
}

// AsInt returns the stored signed integer, 0 for any other kind.
func (v Value) AsInt() int64 {
	if !v.kind.isSigned() {
		return 0
	}
	return v.data.(int64)
}

// AsUint returns the stored unsigned integer, 0 for any other kind.
func (v Value) AsUint() uint64 {
	if !v.kind.isUnsigned() {
		return 0
	}
	return v.data.(uint64)
}

// AsFloat returns the stored float, 0 for any other kind.
func (v Value) AsFloat() float64 {
	if !v.kind.isFloat() {
		return 0
	}
	return v.data.(float64)
}

// AsString returns the stored string, "" for any other kind.
func (v Value) AsString() string {
	s, _ := v.data.(string)
	return s
}

// AsUUID returns the stored identifier, uuid.Nil for any other kind.
func (v Value) AsUUID() uuid.UUID {
	id, _ := v.data.(uuid.UUID)
	return id
}

// AsTypedObject returns the stored blob.
func (v Value) AsTypedObject() (TypedObject, bool) {
	obj, ok := v.data.(TypedObject)
	return obj, ok
}

// TypeName returns the runtime type of a typed blob, "" otherwise.
func (v Value) TypeName() string {
	if obj, ok := v.data.(TypedObject); ok {
		return obj.TypeName
	}
	return ""
}

// Len returns the element count of an array or dictionary, 0 otherwise.
func (v Value) Len() int {
	switch typed := v.data.(type) {
	case []Value:
		return len(typed)
	case map[string]Value:
		return len(typed)
	}
	return 0
}

// Index returns the array element at i or an invalid Value.
func (v Value) Index(i int) Value {
	values, ok := v.data.([]Value)
	if !ok || i < 0 || i >= len(values) {
		return Value{}
	}
	return values[i]
}

// Elements returns a copy of the array elements.
func (v Value) Elements() []Value {
	values, ok := v.data.([]Value)
	if !ok {
		return nil
	}
	out := make([]Value, len(values))
	copy(out, values)
	return out
}

// Lookup returns the dictionary entry stored under key.
func (v Value) Lookup(key string) (Value, bool) {
	entries, ok := v.data.(map[string]Value)
	if !ok {
		return Value{}, false
	}
	value, found := entries[key]
	return value, found
}

// Keys returns the dictionary keys sorted alphabetically.
func (v Value) Keys() []string {
	entries, ok := v.data.(map[string]Value)
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns a copy of the dictionary entries.
func (v Value) Entries() map[string]Value {
	entries, ok := v.data.(map[string]Value)
	if !ok {
		return nil
	}
	out := make(map[string]Value, len(entries))
	for key, value := range entries {
		out[key] = value
	}
	return out
}

// Equal reports deep equality including kind.
func (v Value) Equal(other Value) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindInvalid:
		return true
	case KindArray:
		left, right := v.data.([]Value), other.data.([]Value)
		if len(left) != len(right) {
			return false
		}
		for i := range left {
			if !left[i].Equal(right[i]) {
				return false
			}
		}
		return true
	case KindDictionary:
		left, right := v.data.(map[string]Value), other.data.(map[string]Value)
		if len(left) != len(right) {
			return false
		}
		for key, value := range left {
			otherValue, ok := right[key]
			if !ok || !value.Equal(otherValue) {
				return false
			}
		}
		return true
	case KindTypedObject:
		return reflect.DeepEqual(v.data, other.data)
	default:
		return v.data == other.data
	}
}

// Interface returns the value as plain Go data: scalars, uuid strings,
// []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindInvalid:
		return nil
	case KindFloat32:
		return float32(v.data.(float64))
	case KindUUID:
		return v.data.(uuid.UUID).String()
	case KindArray:
		values := v.data.([]Value)
		out := make([]any, len(values))
		for i, value := range values {
			out[i] = value.Interface()
		}
		return out
	case KindDictionary:
		entries := v.data.(map[string]Value)
		out := make(map[string]any, len(entries))
		for key, value := range entries {
			out[key] = value.Interface()
		}
		return out
	case KindTypedObject:
		return v.data.(TypedObject).Data
	default:
		return v.data
	}
}

// FromInterface converts plain Go data into a Value. Unsupported data yields
// an invalid Value.
func FromInterface(data any) Value {
	switch typed := data.(type) {
	case nil:
		return Value{}
	case Value:
		return typed
	case bool:
		return Bool(typed)
	case int:
		return Int64(int64(typed))
	case int8:
		return Int8(typed)
	case int16:
		return Int16(typed)
	case int32:
		return Int32(typed)
	case int64:
		return Int64(typed)
	case uint:
		return Uint64(uint64(typed))
	case uint8:
		return Uint8(typed)
	case uint16:
		return Uint16(typed)
	case uint32:
		return Uint32(typed)
	case uint64:
		return Uint64(typed)
	case float32:
		return Float32(typed)
	case float64:
		return Float64(typed)
	case string:
		return String(typed)
	case uuid.UUID:
		return UUID(typed)
	case TypedObject:
		return Typed(typed.TypeName, typed.Data)
	case []Value:
		return Array(typed...)
	case []any:
		values := make([]Value, len(typed))
		for i, item := range typed {
			values[i] = FromInterface(item)
		}
		return Value{kind: KindArray, data: values}
	case map[string]Value:
		return Dictionary(typed)
	case map[string]any:
		entries := make(map[string]Value, len(typed))
		for key, item := range typed {
			entries[key] = FromInterface(item)
		}
		return Value{kind: KindDictionary, data: entries}
	}
	return Value{}
}

func (v Value) String() string {
	switch v.kind {
	case KindInvalid:
		return "<invalid>"
	case KindBool:
		return strconv.FormatBool(v.data.(bool))
	case KindFloat32:
		return strconv.FormatFloat(v.data.(float64), 'g', -1, 32)
	case KindFloat64:
		return strconv.FormatFloat(v.data.(float64), 'g', -1, 64)
	case KindArray:
		values := v.data.([]Value)
		parts := make([]string, len(values))
		for i, value := range values {
			parts[i] = value.String()
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case KindDictionary:
		keys := v.Keys()
		parts := make([]string, len(keys))
		for i, key := range keys {
			value, _ := v.Lookup(key)
			parts[i] = key + ": " + value.String()
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case KindTypedObject:
		obj := v.data.(TypedObject)
		return fmt.Sprintf("%s(%v)", obj.TypeName, obj.Data)
	default:
		return fmt.Sprint(v.data)
	}
}
