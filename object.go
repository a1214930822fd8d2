package objgraph

import (
	"slices"

	"github.com/google/uuid"
)

// Object is a live instance in a Document. Its parent is a handle resolved
// through the document, so destroying a parent never leaves a dangling
// pointer behind.
type Object struct {
	id             uuid.UUID
	typ            *Type
	doc            *Document
	accessor       *Accessor
	parent         uuid.UUID
	parentProperty string
	children       []*Object
	attached       bool
}

func (o *Object) ID() uuid.UUID          { return o.id }
func (o *Object) Type() *Type            { return o.typ }
func (o *Object) Document() *Document    { return o.doc }
func (o *Object) Accessor() *Accessor    { return o.accessor }
func (o *Object) ParentProperty() string { return o.parentProperty }

// IsAttached reports whether the object is reachable from the document root.
func (o *Object) IsAttached() bool { return o.attached }

// Parent returns the owning object, or nil for the root and for detached
// subtree roots.
func (o *Object) Parent() *Object {
	if o.parent == uuid.Nil {
		return nil
	}
	return o.doc.objects[o.parent]
}

// Children returns the owned sub-objects in insertion order.
func (o *Object) Children() []*Object {
	return slices.Clone(o.children)
}

// Child returns the direct child with id.
func (o *Object) Child(id uuid.UUID) *Object {
	for _, child := range o.children {
		if child.id == id {
			return child
		}
	}
	return nil
}

// PropertyIndex returns where the object is stored in its parent property:
// an array index, a map key, or an invalid Value for members.
func (o *Object) PropertyIndex() Value {
	parent := o.Parent()
	if parent == nil {
		return Value{}
	}
	return parent.accessor.GetPropertyChildIndex(o.parentProperty, UUID(o.id))
}

// GetValue is shorthand for Accessor().GetValue.
func (o *Object) GetValue(name string) Value { return o.accessor.GetValue(name) }

// SetValue is shorthand for Accessor().SetValue.
func (o *Object) SetValue(name string, value Value) bool { return o.accessor.SetValue(name, value) }

// InsertSubObject places child under property of o. When o is attached the
// change goes through Document.AddObject; otherwise child becomes part of the
// detached subtree rooted above o.
func (o *Object) InsertSubObject(child *Object, property string, index Value) error {
	if o.attached {
		return o.doc.AddObject(child, o, property, index)
	}
	if child.attached || child.parent != uuid.Nil {
		return structureError("insert", child.id, property, ErrObjectAttached)
	}
	if _, err := o.doc.checkPlacement(child, o, property, index); err != nil {
		return structureError("insert", child.id, property, err)
	}
	o.insertSubObject(child, property, index)
	return nil
}

func (o *Object) insertSubObject(child *Object, property string, index Value) {
	prop := o.typ.FindProperty(property)
	if prop != nil {
		switch prop.Category {
		case CategoryMember:
			o.accessor.setValueAt(property, UUID(child.id), Value{})
		case CategoryArray, CategorySet:
			o.accessor.InsertValue(property, Int(int64(o.appendIndex(property, index))), UUID(child.id))
		case CategoryMap:
			o.accessor.InsertValue(property, index, UUID(child.id))
		}
	}
	child.parent = o.id
	child.parentProperty = property
	o.children = append(o.children, child)
}

func (o *Object) removeSubObject(child *Object) {
	if prop := o.typ.FindProperty(child.parentProperty); prop != nil {
		switch prop.Category {
		case CategoryMember:
			o.accessor.setValueAt(child.parentProperty, UUID(uuid.Nil), Value{})
		case CategoryArray, CategorySet, CategoryMap:
			if index := o.accessor.GetPropertyChildIndex(child.parentProperty, UUID(child.id)); index.IsValid() {
				o.accessor.RemoveValue(child.parentProperty, index)
			}
		}
	}
	o.children = slices.DeleteFunc(o.children, func(c *Object) bool { return c == child })
	child.parent = uuid.Nil
	child.parentProperty = ""
}

// appendIndex resolves an invalid or -1 index to the current count.
func (o *Object) appendIndex(property string, index Value) int {
	if index.IsValid() {
		if i, ok := index.ConvertTo(KindInt64); ok && i.AsInt() >= 0 {
			return int(i.AsInt())
		}
	}
	return max(o.accessor.GetCount(property), 0)
}

func (o *Object) setAttached(attached bool) {
	o.attached = attached
	for _, child := range o.children {
		child.setAttached(attached)
	}
}

func (o *Object) walk(fn func(*Object)) {
	fn(o)
	for _, child := range slices.Clone(o.children) {
		child.walk(fn)
	}
}
