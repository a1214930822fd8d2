package objgraph

import (
	"sort"

	"github.com/goliatone/go-objgraph/pkg/activity"
	"github.com/google/uuid"
	"github.com/uber-go/tally/v4"
)

// ReaderMode selects how created objects are placed.
type ReaderMode uint8

const (
	// ReaderStandalone builds detached subtrees; the caller attaches the
	// top object. Children of attached parents are still registered.
	ReaderStandalone ReaderMode = iota
	// ReaderRegistered adds objects to the document as they are created
	// whenever their parent is attached.
	ReaderRegistered
)

// SurplusPolicy decides what happens to owned children that a snapshot or
// diff no longer lists and that no explicit NodeRemoved operation covers.
type SurplusPolicy uint8

const (
	// SurplusKeep leaves such children in place.
	SurplusKeep SurplusPolicy = iota
	// SurplusDelete detaches and destroys them.
	SurplusDelete
)

func (p SurplusPolicy) String() string {
	if p == SurplusDelete {
		return "delete"
	}
	return "keep"
}

// ReaderOption configures a Reader.
type ReaderOption func(*Reader)

// WithReaderLogger attaches a logger.
func WithReaderLogger(logger Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = loggerOrNoop(logger)
	}
}

// WithReaderMetrics counts dropped instances of unknown types on scope.
func WithReaderMetrics(scope tally.Scope) ReaderOption {
	return func(r *Reader) {
		r.unknownCounter = scopeOrNoop(scope).Counter(metricUnknownTypeInstances)
	}
}

// WithSurplusPolicy overrides the default SurplusDelete.
func WithSurplusPolicy(policy SurplusPolicy) ReaderOption {
	return func(r *Reader) {
		r.surplus = policy
	}
}

// Reader reconstructs live objects from a Graph. Nodes of unknown types are
// dropped with one warning per type name; loading continues.
type Reader struct {
	graph   *Graph
	doc     *Document
	types   *TypeRegistry
	mode    ReaderMode
	logger  Logger
	surplus SurplusPolicy

	unknownTypes     map[string]struct{}
	unknownInstances int
	unknownCounter   tally.Counter
}

// NewReader reads nodes of graph into doc, resolving type names via types.
func NewReader(graph *Graph, doc *Document, types *TypeRegistry, mode ReaderMode, opts ...ReaderOption) *Reader {
	r := &Reader{
		graph:          graph,
		doc:            doc,
		types:          types,
		mode:           mode,
		logger:         doc.logger,
		surplus:        SurplusDelete,
		unknownTypes:   make(map[string]struct{}),
		unknownCounter: doc.scope.Counter(metricUnknownTypeInstances),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// UnknownTypeInstances returns how many nodes were dropped so far.
func (r *Reader) UnknownTypeInstances() int { return r.unknownInstances }

// UnknownTypes returns the unresolved type names, sorted.
func (r *Reader) UnknownTypes() []string {
	out := make([]string, 0, len(r.unknownTypes))
	for name := range r.unknownTypes {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// CreateObjectFromNode creates a detached object for node, including its
// embedded members. It returns nil when the type is unknown or the
// identifier is taken.
func (r *Reader) CreateObjectFromNode(node *Node) *Object {
	t := r.types.FindType(node.Type)
	if t == nil {
		if _, warned := r.unknownTypes[node.Type]; !warned {
			r.unknownTypes[node.Type] = struct{}{}
			r.logger.Log(LogEvent{
				Level:     LevelWarn,
				Component: "reader",
				Message:   "cannot create node of unknown type",
				TypeName:  node.Type,
				ObjectID:  node.ID,
				Err:       ErrUnknownType,
			})
		}
		r.unknownInstances++
		r.unknownCounter.Inc(1)
		return nil
	}
	obj, err := r.doc.CreateObject(t, node.ID)
	if err != nil {
		r.logger.Log(LogEvent{Level: LevelError, Component: "reader", Message: "create object", TypeName: node.Type, ObjectID: node.ID, Err: err})
		return nil
	}
	return obj
}

// Load creates the object for node, applies its properties and places it
// under property of parent. A nil parent means the document root in
// registered mode and leaves the object detached in standalone mode.
func (r *Reader) Load(node *Node, parent *Object, property string, index Value) (*Object, error) {
	obj := r.CreateObjectFromNode(node)
	if obj == nil {
		err := ErrUnknownType
		if r.doc.LookupObject(node.ID) != nil {
			err = ErrDuplicateObject
		}
		return nil, structureError("load", node.ID, property, err)
	}
	r.ApplyPropertiesToObject(node, obj)
	if parent == nil && r.mode == ReaderRegistered {
		parent = r.doc.root
	}
	if parent != nil {
		parent, property = r.doc.orRoot(parent, property)
		if err := r.addObject(obj, parent, property, index); err != nil {
			_ = r.doc.DestroyObject(obj)
			return nil, err
		}
	}
	r.doc.emitGraph(activity.BuildGraphLoadedEvent, activity.GraphEventInput{
		RootID:       obj.id.String(),
		Nodes:        r.graph.Len(),
		UnknownTypes: r.unknownInstances,
	})
	return obj, nil
}

func (r *Reader) addObject(obj, parent *Object, property string, index Value) error {
	if r.mode == ReaderRegistered && parent.attached {
		return r.doc.AddObject(obj, parent, property, index)
	}
	return parent.InsertSubObject(obj, property, index)
}

// ApplyPropertiesToObject copies every property of node that the object's
// current type still declares. Properties only one side knows are skipped.
func (r *Reader) ApplyPropertiesToObject(node *Node, obj *Object) {
	for _, prop := range obj.typ.AllProperties() {
		source := node.FindProperty(prop.Name)
		if source == nil {
			continue
		}
		r.applyProperty(obj, prop, source.Value)
	}
}

func (r *Reader) subNode(obj *Object, prop *Property, id uuid.UUID) *Node {
	node := r.graph.GetNode(id)
	if node == nil {
		r.logger.Log(LogEvent{Level: LevelWarn, Component: "reader", Message: "referenced node missing from graph", TypeName: obj.typ.Name(), Property: prop.Name, ObjectID: id})
	}
	return node
}

// createChild builds a fully populated child before it is attached.
func (r *Reader) createChild(obj *Object, prop *Property, id uuid.UUID, index Value) {
	sub := r.subNode(obj, prop, id)
	if sub == nil {
		return
	}
	child := r.CreateObjectFromNode(sub)
	if child == nil {
		return
	}
	r.ApplyPropertiesToObject(sub, child)
	if err := r.addObject(child, obj, prop.Name, index); err != nil {
		r.logger.Log(LogEvent{Level: LevelError, Component: "reader", Message: "attach child", TypeName: obj.typ.Name(), Property: prop.Name, ObjectID: id, Err: err})
		_ = r.doc.DestroyObject(child)
	}
}

func (r *Reader) discard(obj *Object, prop *Property, child *Object) {
	if err := r.doc.discard(child); err != nil {
		r.logger.Log(LogEvent{Level: LevelError, Component: "reader", Message: "discard child", TypeName: obj.typ.Name(), Property: prop.Name, ObjectID: child.id, Err: err})
	}
}

func (r *Reader) applyProperty(obj *Object, prop *Property, value Value) {
	accessor := obj.accessor
	plain := prop.IsValueType() || prop.IsEnum() || prop.IsReference()

	switch prop.Category {
	case CategoryMember:
		switch {
		case plain:
			accessor.SetValue(prop.Name, value)
		case prop.IsEmbedded():
			id := asID(value)
			if id == uuid.Nil {
				return
			}
			child := obj.Child(accessor.GetValue(prop.Name).AsUUID())
			if child == nil {
				r.logger.Log(LogEvent{Level: LevelError, Component: "reader", Message: "embedded object missing", TypeName: obj.typ.Name(), Property: prop.Name, ObjectID: obj.id})
				return
			}
			if sub := r.subNode(obj, prop, id); sub != nil {
				r.ApplyPropertiesToObject(sub, child)
			}
		default:
			r.applyOwnedMember(obj, prop, value)
		}

	case CategoryArray, CategorySet:
		if plain {
			replaySequence(accessor, prop.Name, value.Elements())
			return
		}
		r.applyOwnedArray(obj, prop, value)

	case CategoryMap:
		if plain {
			replayDictionary(accessor, prop.Name, value)
			return
		}
		r.applyOwnedMap(obj, prop, value)
	}
}

func (r *Reader) applyOwnedMember(obj *Object, prop *Property, value Value) {
	id := asID(value)
	current := obj.Child(obj.accessor.GetValue(prop.Name).AsUUID())
	if current != nil && current.id == id {
		if sub := r.subNode(obj, prop, id); sub != nil {
			r.ApplyPropertiesToObject(sub, current)
		}
		return
	}
	if current != nil {
		if r.surplus == SurplusKeep {
			r.logger.Log(LogEvent{Level: LevelDebug, Component: "reader", Message: "keeping existing owned member", TypeName: obj.typ.Name(), Property: prop.Name, ObjectID: current.id})
			return
		}
		r.discard(obj, prop, current)
	}
	if id != uuid.Nil {
		r.createChild(obj, prop, id, Value{})
	}
}

func (r *Reader) applyOwnedArray(obj *Object, prop *Property, value Value) {
	elems := value.Elements()
	current := obj.accessor.GetValues(prop.Name)
	for i, elem := range elems {
		id := asID(elem)
		if id == uuid.Nil {
			continue
		}
		if i < len(current) {
			if existing := r.doc.LookupObject(current[i].AsUUID()); existing != nil {
				if sub := r.subNode(obj, prop, id); sub != nil {
					r.ApplyPropertiesToObject(sub, existing)
				}
			}
			continue
		}
		r.createChild(obj, prop, id, Int(-1))
	}
	if len(current) <= len(elems) {
		return
	}
	if r.surplus == SurplusKeep {
		r.logger.Log(LogEvent{Level: LevelDebug, Component: "reader", Message: "keeping surplus owned elements", TypeName: obj.typ.Name(), Property: prop.Name, ObjectID: obj.id})
		return
	}
	for i := len(current) - 1; i >= len(elems); i-- {
		if child := r.doc.LookupObject(current[i].AsUUID()); child != nil {
			r.discard(obj, prop, child)
		}
	}
}

func (r *Reader) applyOwnedMap(obj *Object, prop *Property, value Value) {
	for _, key := range value.Keys() {
		elem, _ := value.Lookup(key)
		id := asID(elem)
		if id == uuid.Nil {
			continue
		}
		existing := r.doc.LookupObject(obj.accessor.GetValueAt(prop.Name, String(key)).AsUUID())
		if existing != nil && existing.id == id {
			if sub := r.subNode(obj, prop, id); sub != nil {
				r.ApplyPropertiesToObject(sub, existing)
			}
			continue
		}
		if existing != nil {
			if r.surplus == SurplusKeep {
				continue
			}
			r.discard(obj, prop, existing)
		}
		r.createChild(obj, prop, id, String(key))
	}
	if r.surplus == SurplusKeep {
		return
	}
	for _, key := range obj.accessor.GetKeys(prop.Name) {
		if _, listed := value.Lookup(key.AsString()); listed {
			continue
		}
		if child := r.doc.LookupObject(obj.accessor.GetValueAt(prop.Name, key).AsUUID()); child != nil {
			r.discard(obj, prop, child)
		}
	}
}

// asID reads an identifier, accepting its string spelling.
func asID(v Value) uuid.UUID {
	converted, ok := v.ConvertTo(KindUUID)
	if !ok {
		return uuid.Nil
	}
	return converted.AsUUID()
}
