package objgraph

import (
	"slices"
)

// Accessor stores the property values of one object instance in the slots of
// its type's StorageMapping. Collection writes replace the whole collection
// Value, so values returned earlier never observe later edits.
//
// Indices and keys are Values: arrays and sets accept anything convertible to
// an unsigned integer, maps require a string.
type Accessor struct {
	typ        *Type
	mapping    *StorageMapping
	generation uint64
	data       []Value
}

// NewAccessor allocates default filled storage for t.
func NewAccessor(t *Type) *Accessor {
	m := MappingFor(t)
	a := &Accessor{typ: t, mapping: m, generation: m.Generation()}
	for _, slot := range m.Slots() {
		a.data = append(a.data, slot.Default)
	}
	return a
}

// Type returns the type the storage is laid out for.
func (a *Accessor) Type() *Type { return a.typ }

// sync brings the storage up to date with the latest mapping generation:
// new slots get their default and values of changed slots are converted to
// the new kind, falling back to the default when conversion fails.
func (a *Accessor) sync() {
	a.mapping.refresh()
	generation := a.mapping.Generation()
	if generation == a.generation {
		return
	}
	slots := a.mapping.Slots()
	for len(a.data) < len(slots) {
		a.data = append(a.data, slots[len(a.data)].Default)
	}
	for _, slot := range slots {
		if !slot.Valid {
			continue
		}
		if prop := a.typ.FindProperty(slot.Name); prop != nil {
			a.data[slot.Index] = migrate(a.data[slot.Index], slot, prop)
		}
	}
	a.generation = generation
}

func migrate(v Value, slot StorageSlot, prop *Property) Value {
	switch slot.Kind {
	case KindArray:
		if !v.IsA(KindArray) {
			return slot.Default
		}
		elems := v.Elements()
		for i, elem := range elems {
			elems[i] = migrateElement(elem, prop)
		}
		return Value{kind: KindArray, data: elems}
	case KindDictionary:
		if !v.IsA(KindDictionary) {
			return slot.Default
		}
		entries := v.Entries()
		for key, elem := range entries {
			entries[key] = migrateElement(elem, prop)
		}
		return Value{kind: KindDictionary, data: entries}
	case KindTypedObject:
		if !v.IsA(KindTypedObject) || v.TypeName() != prop.blobTypeName() {
			return slot.Default
		}
		return v
	}
	if converted, ok := v.ConvertTo(slot.Kind); ok {
		return converted
	}
	return slot.Default
}

func migrateElement(elem Value, prop *Property) Value {
	kind := prop.elementKind()
	if converted, ok := coerce(prop, kind, elem); ok {
		return converted
	}
	if kind == KindTypedObject {
		return prop.Default
	}
	return Zero(kind)
}

// coerce is the single place where incoming values are made to fit a slot.
// Conversion is lenient so values recorded under an older schema still apply.
func coerce(prop *Property, kind Kind, value Value) (Value, bool) {
	if kind == KindTypedObject {
		if !value.IsA(KindTypedObject) || value.TypeName() != prop.blobTypeName() {
			return Value{}, false
		}
		return value, true
	}
	if prop.IsEnum() && value.IsA(KindString) && prop.Type != nil {
		if i, ok := prop.Type.EnumValue(value.AsString()); ok {
			return Int64(i).ConvertTo(kind)
		}
	}
	return value.ConvertTo(kind)
}

func (p *Property) blobTypeName() string {
	if p.Type != nil {
		return p.Type.Name()
	}
	return p.Default.TypeName()
}

func (a *Accessor) resolve(name string) (*Property, StorageSlot, bool) {
	a.sync()
	prop := a.typ.FindProperty(name)
	if prop == nil {
		return nil, StorageSlot{}, false
	}
	slot, ok := a.mapping.Lookup(name)
	if !ok {
		return nil, StorageSlot{}, false
	}
	return prop, slot, true
}

// GetValue returns the whole stored value of a property, or an invalid Value
// when the property is unknown.
func (a *Accessor) GetValue(name string) Value {
	_, slot, ok := a.resolve(name)
	if !ok {
		return Value{}
	}
	return a.data[slot.Index]
}

// GetValueAt returns one element of an array, set or map property. Members
// ignore index. Out of range indices and absent keys yield an invalid Value.
func (a *Accessor) GetValueAt(name string, index Value) Value {
	prop, slot, ok := a.resolve(name)
	if !ok {
		return Value{}
	}
	stored := a.data[slot.Index]
	switch prop.Category {
	case CategoryMember:
		return stored
	case CategoryArray, CategorySet:
		if !index.IsValid() {
			return stored
		}
		if i, ok := indexOf(index); ok {
			return stored.Index(i)
		}
	case CategoryMap:
		if !index.IsValid() {
			return stored
		}
		if index.IsA(KindString) {
			value, _ := stored.Lookup(index.AsString())
			return value
		}
	}
	return Value{}
}

// GetValues returns the elements of a collection property; map entries are
// ordered by key.
func (a *Accessor) GetValues(name string) []Value {
	prop, slot, ok := a.resolve(name)
	if !ok {
		return nil
	}
	stored := a.data[slot.Index]
	switch prop.Category {
	case CategoryArray, CategorySet:
		return stored.Elements()
	case CategoryMap:
		keys := stored.Keys()
		out := make([]Value, len(keys))
		for i, key := range keys {
			out[i], _ = stored.Lookup(key)
		}
		return out
	}
	return nil
}

// SetValue replaces a member value. It fails without mutation when the
// property is unknown or value cannot be made to fit the slot.
func (a *Accessor) SetValue(name string, value Value) bool {
	return a.SetValueAt(name, value, Value{})
}

// SetValueAt replaces a member value, or the existing element at index of a
// collection property. An invalid index replaces the whole collection.
// Embedded class members are owned by the document and cannot be set.
func (a *Accessor) SetValueAt(name string, value Value, index Value) bool {
	prop, _, ok := a.resolve(name)
	if !ok || prop.IsEmbedded() {
		return false
	}
	return a.setValueAt(name, value, index)
}

func (a *Accessor) setValueAt(name string, value Value, index Value) bool {
	prop, slot, ok := a.resolve(name)
	if !ok {
		return false
	}
	stored := a.data[slot.Index]
	switch prop.Category {
	case CategoryMember:
		converted, ok := coerce(prop, slot.Kind, value)
		if !ok {
			return false
		}
		a.data[slot.Index] = converted
		return true
	case CategoryArray, CategorySet:
		if !index.IsValid() {
			return a.replace(prop, slot, value)
		}
		i, ok := indexOf(index)
		if !ok || i >= stored.Len() {
			return false
		}
		converted, ok := coerce(prop, prop.elementKind(), value)
		if !ok {
			return false
		}
		elems := stored.Elements()
		elems[i] = converted
		a.data[slot.Index] = Value{kind: KindArray, data: elems}
		return true
	case CategoryMap:
		if !index.IsValid() {
			return a.replace(prop, slot, value)
		}
		if !index.IsA(KindString) {
			return false
		}
		if _, found := stored.Lookup(index.AsString()); !found {
			return false
		}
		converted, ok := coerce(prop, prop.elementKind(), value)
		if !ok {
			return false
		}
		entries := stored.Entries()
		entries[index.AsString()] = converted
		a.data[slot.Index] = Value{kind: KindDictionary, data: entries}
		return true
	}
	return false
}

// replace swaps a whole collection. Every element must fit or nothing is
// written.
func (a *Accessor) replace(prop *Property, slot StorageSlot, value Value) bool {
	if !value.IsA(slot.Kind) {
		return false
	}
	kind := prop.elementKind()
	if slot.Kind == KindArray {
		elems := value.Elements()
		for i, elem := range elems {
			converted, ok := coerce(prop, kind, elem)
			if !ok {
				return false
			}
			elems[i] = converted
		}
		a.data[slot.Index] = Value{kind: KindArray, data: elems}
		return true
	}
	entries := value.Entries()
	for key, elem := range entries {
		converted, ok := coerce(prop, kind, elem)
		if !ok {
			return false
		}
		entries[key] = converted
	}
	a.data[slot.Index] = Value{kind: KindDictionary, data: entries}
	return true
}

// GetCount returns the element count of a collection property, or -1 when
// the property is unknown or not a collection.
func (a *Accessor) GetCount(name string) int {
	prop, slot, ok := a.resolve(name)
	if !ok {
		return -1
	}
	switch prop.Category {
	case CategoryArray, CategorySet, CategoryMap:
		return a.data[slot.Index].Len()
	}
	return -1
}

// GetKeys returns 0..count-1 for arrays and sets, the sorted keys for maps,
// and nil for anything else.
func (a *Accessor) GetKeys(name string) []Value {
	prop, slot, ok := a.resolve(name)
	if !ok {
		return nil
	}
	stored := a.data[slot.Index]
	switch prop.Category {
	case CategoryArray, CategorySet:
		keys := make([]Value, stored.Len())
		for i := range keys {
			keys[i] = Uint32(uint32(i))
		}
		return keys
	case CategoryMap:
		keys := stored.Keys()
		out := make([]Value, len(keys))
		for i, key := range keys {
			out[i] = String(key)
		}
		return out
	}
	return nil
}

// InsertValue inserts at index (index <= count) of an array or set, or under
// a key not yet present in a map.
func (a *Accessor) InsertValue(name string, index Value, value Value) bool {
	prop, slot, ok := a.resolve(name)
	if !ok {
		return false
	}
	stored := a.data[slot.Index]
	switch prop.Category {
	case CategoryArray, CategorySet:
		i, ok := indexOf(index)
		if !ok || i > stored.Len() {
			return false
		}
		converted, ok := coerce(prop, prop.elementKind(), value)
		if !ok {
			return false
		}
		elems := slices.Insert(stored.Elements(), i, converted)
		a.data[slot.Index] = Value{kind: KindArray, data: elems}
		return true
	case CategoryMap:
		if !index.IsA(KindString) {
			return false
		}
		if _, found := stored.Lookup(index.AsString()); found {
			return false
		}
		converted, ok := coerce(prop, prop.elementKind(), value)
		if !ok {
			return false
		}
		entries := stored.Entries()
		entries[index.AsString()] = converted
		a.data[slot.Index] = Value{kind: KindDictionary, data: entries}
		return true
	}
	return false
}

// RemoveValue removes the element at index or the entry under key.
func (a *Accessor) RemoveValue(name string, index Value) bool {
	prop, slot, ok := a.resolve(name)
	if !ok {
		return false
	}
	stored := a.data[slot.Index]
	switch prop.Category {
	case CategoryArray, CategorySet:
		i, ok := indexOf(index)
		if !ok || i >= stored.Len() {
			return false
		}
		elems := slices.Delete(stored.Elements(), i, i+1)
		a.data[slot.Index] = Value{kind: KindArray, data: elems}
		return true
	case CategoryMap:
		if !index.IsA(KindString) {
			return false
		}
		if _, found := stored.Lookup(index.AsString()); !found {
			return false
		}
		entries := stored.Entries()
		delete(entries, index.AsString())
		a.data[slot.Index] = Value{kind: KindDictionary, data: entries}
		return true
	}
	return false
}

// MoveValue relocates one element. For arrays the element is removed and then
// inserted at to, or to-1 when moving towards the end, so every element in
// between shifts by exactly one. For maps the entry is re-keyed.
func (a *Accessor) MoveValue(name string, from, to Value) bool {
	prop, slot, ok := a.resolve(name)
	if !ok {
		return false
	}
	stored := a.data[slot.Index]
	switch prop.Category {
	case CategoryArray, CategorySet:
		oldIndex, okOld := indexOf(from)
		newIndex, okNew := indexOf(to)
		if !okOld || !okNew || oldIndex >= stored.Len() || newIndex > stored.Len() {
			return false
		}
		elems := stored.Elements()
		moved := elems[oldIndex]
		elems = slices.Delete(elems, oldIndex, oldIndex+1)
		if newIndex > oldIndex {
			newIndex--
		}
		elems = slices.Insert(elems, newIndex, moved)
		a.data[slot.Index] = Value{kind: KindArray, data: elems}
		return true
	case CategoryMap:
		if !from.IsA(KindString) || !to.IsA(KindString) {
			return false
		}
		moved, found := stored.Lookup(from.AsString())
		if !found {
			return false
		}
		if from.AsString() == to.AsString() {
			return true
		}
		entries := stored.Entries()
		entries[to.AsString()] = moved
		delete(entries, from.AsString())
		a.data[slot.Index] = Value{kind: KindDictionary, data: entries}
		return true
	}
	return false
}

// GetPropertyChildIndex returns the index or key whose element equals value,
// or an invalid Value when none does.
func (a *Accessor) GetPropertyChildIndex(name string, value Value) Value {
	prop, slot, ok := a.resolve(name)
	if !ok {
		return Value{}
	}
	needle, ok := coerce(prop, prop.elementKind(), value)
	if !ok {
		return Value{}
	}
	stored := a.data[slot.Index]
	switch prop.Category {
	case CategoryArray, CategorySet:
		for i := 0; i < stored.Len(); i++ {
			if stored.Index(i).Equal(needle) {
				return Uint32(uint32(i))
			}
		}
	case CategoryMap:
		for _, key := range stored.Keys() {
			if elem, _ := stored.Lookup(key); elem.Equal(needle) {
				return String(key)
			}
		}
	}
	return Value{}
}
