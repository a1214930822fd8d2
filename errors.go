package objgraph

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrObjectNotFound   = errors.New("objgraph: object not found")
	ErrObjectAttached   = errors.New("objgraph: object is attached")
	ErrObjectDetached   = errors.New("objgraph: object is not attached")
	ErrPropertyNotFound = errors.New("objgraph: property not found")
	ErrPropertyMismatch = errors.New("objgraph: property cannot hold object")
	ErrDuplicateObject  = errors.New("objgraph: duplicate object identifier")
	ErrDuplicateType    = errors.New("objgraph: duplicate type name")
	ErrUnknownType      = errors.New("objgraph: unknown type")
	ErrInvalidIndex     = errors.New("objgraph: invalid index")
	ErrSlotOccupied     = errors.New("objgraph: property slot already holds an object")
)

// StructureError describes a rejected structural change of the object tree.
// Its message leads with the operation; the wrapped sentinel carries the
// package prefix.
type StructureError struct {
	Op       string
	ObjectID uuid.UUID
	Property string
	Err      error
}

func (e *StructureError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Property == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.ObjectID, e.Err)
	}
	return fmt.Sprintf("%s %s property=%s: %v", e.Op, e.ObjectID, e.Property, e.Err)
}

func (e *StructureError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func structureError(op string, id uuid.UUID, property string, err error) error {
	if err == nil {
		return nil
	}
	var existing *StructureError
	if errors.As(err, &existing) {
		return err
	}
	return &StructureError{Op: op, ObjectID: id, Property: property, Err: err}
}
