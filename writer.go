package objgraph

import (
	"github.com/google/uuid"
	"github.com/uber-go/tally/v4"
)

// Filter reports whether a property of an object should be serialized.
type Filter func(obj *Object, prop *Property) bool

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithFilter suppresses every property the filter rejects.
func WithFilter(filter Filter) WriterOption {
	return func(w *Writer) {
		w.filter = filter
	}
}

// WithWriterMetrics counts written nodes on scope.
func WithWriterMetrics(scope tally.Scope) WriterOption {
	return func(w *Writer) {
		w.written = scopeOrNoop(scope).Counter(metricGraphNodesWritten)
	}
}

// Writer serializes live objects into a Graph. Every object is written at
// most once per Writer, however many properties reference it.
type Writer struct {
	graph   *Graph
	filter  Filter
	written tally.Counter
	seen    map[uuid.UUID]struct{}
	queue   []*Object
}

// NewWriter writes into graph, or into a fresh graph when graph is nil.
func NewWriter(graph *Graph, opts ...WriterOption) *Writer {
	if graph == nil {
		graph = NewGraph()
	}
	w := &Writer{
		graph:   graph,
		written: tally.NoopScope.Counter(metricGraphNodesWritten),
		seen:    make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Graph returns the graph being written.
func (w *Writer) Graph() *Graph { return w.graph }

// AddObjectToGraph writes obj and every object it owns, breadth first, and
// returns the node of obj. name is an optional display name for the node.
func (w *Writer) AddObjectToGraph(obj *Object, name string) *Node {
	w.seen[obj.id] = struct{}{}
	node := w.addSubObject(obj, name)
	for len(w.queue) > 0 {
		next := w.queue[0]
		w.queue = w.queue[1:]
		w.addSubObject(next, "")
	}
	return node
}

func (w *Writer) addSubObject(obj *Object, name string) *Node {
	node := w.graph.AddNode(obj.id, obj.typ.Name(), obj.typ.Version(), name)
	for _, prop := range obj.typ.AllProperties() {
		w.addProperty(node, obj, prop)
	}
	w.written.Inc(1)
	return node
}

func (w *Writer) enqueue(obj *Object, id uuid.UUID) {
	if id == uuid.Nil {
		return
	}
	if _, ok := w.seen[id]; ok {
		return
	}
	target := obj.doc.LookupObject(id)
	if target == nil {
		return
	}
	w.seen[id] = struct{}{}
	w.queue = append(w.queue, target)
}

func (w *Writer) addProperty(node *Node, obj *Object, prop *Property) {
	if prop.Category == CategoryConstant || prop.Category == CategoryFunction {
		return
	}
	if w.filter != nil && !w.filter(obj, prop) {
		return
	}
	accessor := obj.accessor

	switch prop.Category {
	case CategoryMember:
		value := accessor.GetValue(prop.Name)
		switch {
		case prop.Flags.Has(FlagPointer):
			node.AddProperty(prop.Name, value)
			if prop.Flags.Has(FlagPointerOwner) {
				w.enqueue(obj, value.AsUUID())
			}
		case prop.IsEnum():
			node.AddProperty(prop.Name, enumSpelling(prop, value))
		case prop.IsEmbedded():
			node.AddProperty(prop.Name, value)
			w.enqueue(obj, value.AsUUID())
		default:
			node.AddProperty(prop.Name, value)
		}

	case CategoryArray, CategorySet, CategoryMap:
		value := accessor.GetValue(prop.Name)
		if prop.IsEnum() {
			value = mapElements(value, func(elem Value) Value { return enumSpelling(prop, elem) })
		}
		node.AddProperty(prop.Name, value)
		if prop.OwnsObjects() {
			visitIDs(value, func(id uuid.UUID) { w.enqueue(obj, id) })
		}
	}
}

func enumSpelling(prop *Property, value Value) Value {
	if prop.Type == nil {
		return value
	}
	i, ok := value.ConvertTo(KindInt64)
	if !ok {
		return value
	}
	return String(prop.Type.EnumString(i.AsInt()))
}

func mapElements(v Value, fn func(Value) Value) Value {
	switch v.Kind() {
	case KindArray:
		elems := v.Elements()
		for i := range elems {
			elems[i] = fn(elems[i])
		}
		return Value{kind: KindArray, data: elems}
	case KindDictionary:
		entries := v.Entries()
		for key, elem := range entries {
			entries[key] = fn(elem)
		}
		return Value{kind: KindDictionary, data: entries}
	}
	return v
}
