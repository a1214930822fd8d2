package objgraph

import (
	"encoding/binary"
	"slices"

	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// NodeProperty is one serialized property of a Node.
type NodeProperty struct {
	Name  string
	Value Value
}

// Node is the serialized form of one object. Type is a name rather than a
// descriptor so snapshots survive schema and process boundaries.
type Node struct {
	ID         uuid.UUID
	Type       string
	Version    uint32
	Name       string
	Properties []NodeProperty
}

// FindProperty returns the named property or nil.
func (n *Node) FindProperty(name string) *NodeProperty {
	for i := range n.Properties {
		if n.Properties[i].Name == name {
			return &n.Properties[i]
		}
	}
	return nil
}

// Property returns the value of the named property, invalid when absent.
func (n *Node) Property(name string) Value {
	if prop := n.FindProperty(name); prop != nil {
		return prop.Value
	}
	return Value{}
}

// AddProperty appends a property without checking for duplicates.
func (n *Node) AddProperty(name string, value Value) {
	n.Properties = append(n.Properties, NodeProperty{Name: name, Value: value})
}

// ChangeProperty replaces the value of the named property, adding it when
// absent.
func (n *Node) ChangeProperty(name string, value Value) {
	if prop := n.FindProperty(name); prop != nil {
		prop.Value = value
		return
	}
	n.AddProperty(name, value)
}

// RenameProperty renames a property in place.
func (n *Node) RenameProperty(oldName, newName string) bool {
	prop := n.FindProperty(oldName)
	if prop == nil {
		return false
	}
	prop.Name = newName
	return true
}

// RemoveProperty deletes the named property.
func (n *Node) RemoveProperty(name string) bool {
	before := len(n.Properties)
	n.Properties = slices.DeleteFunc(n.Properties, func(p NodeProperty) bool { return p.Name == name })
	return len(n.Properties) != before
}

func (n *Node) clone() *Node {
	out := *n
	out.Properties = slices.Clone(n.Properties)
	return &out
}

// Graph is a flat collection of nodes. Structure is implicit in identifier
// valued properties.
type Graph struct {
	nodes  map[uuid.UUID]*Node
	order  []uuid.UUID
	byName map[string]uuid.UUID
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:  make(map[uuid.UUID]*Node),
		byName: make(map[string]uuid.UUID),
	}
}

// AddNode adds an empty node. Adding an id that already exists replaces the
// node but keeps its position.
func (g *Graph) AddNode(id uuid.UUID, typeName string, version uint32, name string) *Node {
	node := &Node{ID: id, Type: typeName, Version: version, Name: name}
	if existing, ok := g.nodes[id]; ok {
		if existing.Name != "" {
			delete(g.byName, existing.Name)
		}
	} else {
		g.order = append(g.order, id)
	}
	g.nodes[id] = node
	if name != "" {
		g.byName[name] = id
	}
	return node
}

// RemoveNode deletes the node with id.
func (g *Graph) RemoveNode(id uuid.UUID) {
	node, ok := g.nodes[id]
	if !ok {
		return
	}
	if node.Name != "" && g.byName[node.Name] == id {
		delete(g.byName, node.Name)
	}
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(candidate uuid.UUID) bool { return candidate == id })
}

// GetNode returns the node with id or nil.
func (g *Graph) GetNode(id uuid.UUID) *Node { return g.nodes[id] }

// GetNodeByName returns the node registered under a display name or nil.
func (g *Graph) GetNodeByName(name string) *Node {
	id, ok := g.byName[name]
	if !ok {
		return nil
	}
	return g.nodes[id]
}

// Nodes returns every node in insertion order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// CopyNodeIntoGraph adds a deep copy of node to g.
func (g *Graph) CopyNodeIntoGraph(node *Node) *Node {
	copied := g.AddNode(node.ID, node.Type, node.Version, node.Name)
	copied.Properties = slices.Clone(node.Properties)
	return copied
}

// NodePropertyFilter decides whether a property is copied by Clone.
type NodePropertyFilter func(node *Node, property *NodeProperty) bool

// Clone deep copies g. With a non-nil root only the transitive hull of root
// is copied. Properties rejected by filter are dropped.
func (g *Graph) Clone(root *Node, filter NodePropertyFilter) *Graph {
	out := NewGraph()
	var ids []uuid.UUID
	if root == nil {
		ids = g.order
	} else {
		hull := g.FindTransitiveHull(root.ID)
		for _, id := range g.order {
			if _, ok := hull[id]; ok {
				ids = append(ids, id)
			}
		}
	}
	for _, id := range ids {
		node := g.nodes[id]
		copied := out.AddNode(node.ID, node.Type, node.Version, node.Name)
		for i := range node.Properties {
			if filter != nil && !filter(node, &node.Properties[i]) {
				continue
			}
			copied.Properties = append(copied.Properties, node.Properties[i])
		}
	}
	return out
}

// FindTransitiveHull returns root and every node reachable from it through
// identifier values, including identifiers nested in collections.
func (g *Graph) FindTransitiveHull(root uuid.UUID) map[uuid.UUID]struct{} {
	hull := make(map[uuid.UUID]struct{})
	if _, ok := g.nodes[root]; !ok {
		return hull
	}
	hull[root] = struct{}{}
	queue := []uuid.UUID{root}
	for len(queue) > 0 {
		node := g.nodes[queue[0]]
		queue = queue[1:]
		for _, prop := range node.Properties {
			visitIDs(prop.Value, func(id uuid.UUID) {
				if _, seen := hull[id]; seen {
					return
				}
				if _, ok := g.nodes[id]; ok {
					hull[id] = struct{}{}
					queue = append(queue, id)
				}
			})
		}
	}
	return hull
}

// PruneGraph removes every node outside the transitive hull of root.
func (g *Graph) PruneGraph(root uuid.UUID) {
	hull := g.FindTransitiveHull(root)
	for _, id := range slices.Clone(g.order) {
		if _, ok := hull[id]; !ok {
			g.RemoveNode(id)
		}
	}
}

// RemapIDs derives new identifiers for every node from seed and rewrites
// references to them. References to identifiers outside the graph are kept.
// Remapping with inverse set undoes a forward remap with the same seed.
func (g *Graph) RemapIDs(seed uuid.UUID, inverse bool) {
	mask := blake3.Sum256(seed[:])
	mapping := make(map[uuid.UUID]uuid.UUID, len(g.nodes))
	for id := range g.nodes {
		mapping[id] = combineID(id, mask, inverse)
	}

	nodes := make(map[uuid.UUID]*Node, len(g.nodes))
	order := make([]uuid.UUID, len(g.order))
	byName := make(map[string]uuid.UUID, len(g.byName))
	for i, id := range g.order {
		node := g.nodes[id]
		node.ID = mapping[id]
		for j := range node.Properties {
			node.Properties[j].Value = remapValue(node.Properties[j].Value, mapping)
		}
		nodes[node.ID] = node
		order[i] = node.ID
		if node.Name != "" {
			byName[node.Name] = node.ID
		}
	}
	g.nodes, g.order, g.byName = nodes, order, byName
}

// combineID adds (or subtracts) the mask to both 64-bit halves of id.
func combineID(id uuid.UUID, mask [32]byte, inverse bool) uuid.UUID {
	var out uuid.UUID
	for half := 0; half < 2; half++ {
		v := binary.LittleEndian.Uint64(id[half*8:])
		m := binary.LittleEndian.Uint64(mask[half*8:])
		if inverse {
			v -= m
		} else {
			v += m
		}
		binary.LittleEndian.PutUint64(out[half*8:], v)
	}
	return out
}

func remapValue(v Value, mapping map[uuid.UUID]uuid.UUID) Value {
	switch v.Kind() {
	case KindUUID:
		if mapped, ok := mapping[v.AsUUID()]; ok {
			return UUID(mapped)
		}
	case KindArray:
		elems := v.Elements()
		for i := range elems {
			elems[i] = remapValue(elems[i], mapping)
		}
		return Value{kind: KindArray, data: elems}
	case KindDictionary:
		entries := v.Entries()
		for key, elem := range entries {
			entries[key] = remapValue(elem, mapping)
		}
		return Value{kind: KindDictionary, data: entries}
	}
	return v
}

func visitIDs(v Value, fn func(uuid.UUID)) {
	switch v.Kind() {
	case KindUUID:
		if id := v.AsUUID(); id != uuid.Nil {
			fn(id)
		}
	case KindArray:
		for _, elem := range v.Elements() {
			visitIDs(elem, fn)
		}
	case KindDictionary:
		for _, key := range v.Keys() {
			elem, _ := v.Lookup(key)
			visitIDs(elem, fn)
		}
	}
}

// ApplyDiff replays diff on the snapshot itself: nodes are added first, then
// properties changed, then nodes removed.
func (g *Graph) ApplyDiff(diff Diff) {
	for _, op := range diff {
		if op.Op == NodeAdded {
			g.AddNode(op.Node, op.TypeName, op.TypeVersion, "")
		}
	}
	for _, op := range diff {
		if op.Op != PropertyChanged {
			continue
		}
		if node := g.GetNode(op.Node); node != nil {
			node.ChangeProperty(op.Property, op.Value)
		}
	}
	for _, op := range diff {
		if op.Op == NodeRemoved {
			g.RemoveNode(op.Node)
		}
	}
}
