package objgraph

import (
	"fmt"

	"github.com/google/uuid"
)

// DiffOp is the kind of a recorded change between two snapshots.
type DiffOp uint8

const (
	NodeAdded DiffOp = iota + 1
	NodeRemoved
	PropertyChanged
)

func (op DiffOp) String() string {
	switch op {
	case NodeAdded:
		return "node_added"
	case NodeRemoved:
		return "node_removed"
	case PropertyChanged:
		return "property_changed"
	}
	return fmt.Sprintf("diff_op(%d)", uint8(op))
}

// DiffOperation is one atomic change. NodeAdded carries the type of the new
// node, PropertyChanged carries the property name and its new value.
type DiffOperation struct {
	Op          DiffOp
	Node        uuid.UUID
	TypeName    string
	TypeVersion uint32
	Property    string
	Value       Value
}

// Diff is an ordered list of operations, assumed internally consistent.
type Diff []DiffOperation

// Added returns the NodeAdded operation for id, or nil.
func (d Diff) Added(id uuid.UUID) *DiffOperation {
	for i := range d {
		if d[i].Op == NodeAdded && d[i].Node == id {
			return &d[i]
		}
	}
	return nil
}

// Removed reports whether id is marked NodeRemoved.
func (d Diff) Removed(id uuid.UUID) bool {
	for i := range d {
		if d[i].Op == NodeRemoved && d[i].Node == id {
			return true
		}
	}
	return false
}

// Changes returns the PropertyChanged operations targeting id, in order.
func (d Diff) Changes(id uuid.UUID) []DiffOperation {
	var out []DiffOperation
	for _, op := range d {
		if op.Op == PropertyChanged && op.Node == id {
			out = append(out, op)
		}
	}
	return out
}
