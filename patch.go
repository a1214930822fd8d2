package objgraph

import (
	"github.com/goliatone/go-objgraph/pkg/activity"
	"github.com/google/uuid"
	"github.com/uber-go/tally/v4"
)

// PatcherOption configures a Patcher.
type PatcherOption func(*Patcher)

// WithPatchLogger attaches a logger.
func WithPatchLogger(logger Logger) PatcherOption {
	return func(p *Patcher) {
		p.logger = loggerOrNoop(logger)
	}
}

// WithPatchSurplusPolicy overrides the default SurplusKeep.
func WithPatchSurplusPolicy(policy SurplusPolicy) PatcherOption {
	return func(p *Patcher) {
		p.surplus = policy
	}
}

// WithPatchMetrics counts applied operations on scope.
func WithPatchMetrics(scope tally.Scope) PatcherOption {
	return func(p *Patcher) {
		p.applied = scopeOrNoop(scope).Counter(metricPatchOperations)
	}
}

// Patcher applies diff operations to a live tree with minimal churn:
// children that survive an edit keep their identity and are moved rather
// than recreated. The graph must hold the nodes of every object the diff
// adds.
type Patcher struct {
	doc     *Document
	graph   *Graph
	types   *TypeRegistry
	reader  *Reader
	logger  Logger
	surplus SurplusPolicy
	applied tally.Counter

	// displaced holds owned children detached during the current pass.
	displaced []*Object
}

// NewPatcher patches objects of doc, creating added objects from graph.
func NewPatcher(doc *Document, graph *Graph, types *TypeRegistry, opts ...PatcherOption) *Patcher {
	p := &Patcher{
		doc:     doc,
		graph:   graph,
		types:   types,
		logger:  doc.logger,
		surplus: SurplusKeep,
		applied: doc.scope.Counter(metricPatchOperations),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	p.reader = NewReader(graph, doc, types, ReaderStandalone, WithReaderLogger(p.logger), WithSurplusPolicy(p.surplus))
	return p
}

// Apply patches the whole document and reports the number of property
// changes applied.
func (p *Patcher) Apply(diff Diff) int {
	applied := p.ApplyDiffToObject(p.doc.root, diff)
	p.doc.emitGraph(activity.BuildGraphPatchedEvent, activity.GraphEventInput{
		RootID:       p.doc.root.id.String(),
		Nodes:        p.graph.Len(),
		Operations:   applied,
		UnknownTypes: p.reader.UnknownTypeInstances(),
	})
	return applied
}

// ApplyDiffToObject applies every PropertyChanged operation targeting obj,
// then recurses into the children obj has afterwards. Operations naming
// properties the current type no longer declares are skipped. Owned children
// displaced along the way and never claimed again are destroyed under
// SurplusDelete or when the diff removes them, and left detached otherwise.
func (p *Patcher) ApplyDiffToObject(obj *Object, diff Diff) int {
	applied := p.applyTree(obj, diff)
	p.settle(diff)
	return applied
}

func (p *Patcher) applyTree(obj *Object, diff Diff) int {
	applied := 0
	for _, op := range diff.Changes(obj.id) {
		prop := obj.typ.FindProperty(op.Property)
		if prop == nil {
			p.debug(obj, op.Property, obj.id, "property no longer declared")
			continue
		}
		if p.apply(obj, prop, op, diff) {
			applied++
			p.applied.Inc(1)
		}
	}
	for _, child := range obj.Children() {
		if p.doc.objects[child.id] == child {
			applied += p.applyTree(child, diff)
		}
	}
	return applied
}

// ApplyDiff applies one PropertyChanged operation to prop of obj. diff is
// consulted for NodeAdded and NodeRemoved markers of the objects involved.
func (p *Patcher) ApplyDiff(obj *Object, prop *Property, op DiffOperation, diff Diff) bool {
	ok := p.apply(obj, prop, op, diff)
	p.settle(diff)
	return ok
}

func (p *Patcher) apply(obj *Object, prop *Property, op DiffOperation, diff Diff) bool {
	accessor := obj.accessor
	plain := prop.IsValueType() || prop.IsEnum() || prop.IsReference()

	switch prop.Category {
	case CategoryMember:
		switch {
		case plain:
			return accessor.SetValue(prop.Name, op.Value)
		case prop.IsEmbedded():
			// Embedded children live and die with obj.
			return true
		default:
			return p.patchOwnedMember(obj, prop, op.Value, diff)
		}

	case CategoryArray, CategorySet:
		if plain {
			return replaySequence(accessor, prop.Name, op.Value.Elements())
		}
		return p.patchOwnedSequence(obj, prop, op.Value, diff)

	case CategoryMap:
		if plain {
			return replayDictionary(accessor, prop.Name, op.Value)
		}
		return p.patchOwnedDictionary(obj, prop, op.Value, diff)
	}
	return false
}

func (p *Patcher) patchOwnedMember(obj *Object, prop *Property, value Value, diff Diff) bool {
	oldID := obj.accessor.GetValue(prop.Name).AsUUID()
	newID := asID(value)
	if oldID == newID {
		return true
	}
	if old := obj.Child(oldID); old != nil {
		if diff.Removed(oldID) {
			p.discard(obj, prop, old)
		} else if !p.displace(obj, prop, old) {
			return false
		}
	}
	if newID == uuid.Nil {
		return true
	}
	return p.bring(obj, prop, newID, Value{}, diff)
}

func (p *Patcher) patchOwnedSequence(obj *Object, prop *Property, value Value, diff Diff) bool {
	current := obj.accessor.GetValues(prop.Name)
	for i := len(current) - 1; i >= 0; i-- {
		id := current[i].AsUUID()
		if !diff.Removed(id) {
			continue
		}
		if child := p.doc.LookupObject(id); child != nil {
			p.discard(obj, prop, child)
		}
	}

	ok := true
	pos := 0
	for _, elem := range value.Elements() {
		id := asID(elem)
		if id == uuid.Nil {
			continue
		}
		if child := p.doc.LookupObject(id); child != nil && child.parent == obj.id && child.parentProperty == prop.Name {
			if at, _ := indexOf(child.PropertyIndex()); at == pos {
				pos++
				continue
			}
		}
		if p.bring(obj, prop, id, Int(int64(pos)), diff) {
			pos++
		} else {
			ok = false
		}
	}

	count := obj.accessor.GetCount(prop.Name)
	if count <= pos {
		return ok
	}
	if p.surplus == SurplusKeep {
		p.debug(obj, prop.Name, obj.id, "keeping surplus owned elements")
		return ok
	}
	surplus := obj.accessor.GetValues(prop.Name)
	for i := count - 1; i >= pos; i-- {
		if child := obj.Child(surplus[i].AsUUID()); child != nil && !p.displace(obj, prop, child) {
			ok = false
		}
	}
	return ok
}

func (p *Patcher) patchOwnedDictionary(obj *Object, prop *Property, value Value, diff Diff) bool {
	for _, key := range obj.accessor.GetKeys(prop.Name) {
		id := obj.accessor.GetValueAt(prop.Name, key).AsUUID()
		if !diff.Removed(id) {
			continue
		}
		if child := p.doc.LookupObject(id); child != nil {
			p.discard(obj, prop, child)
		}
	}

	// Free every slot whose occupant changes before placing anything, so
	// entries that swap or rotate keys find their target empty.
	ok := true
	for _, key := range obj.accessor.GetKeys(prop.Name) {
		occupant := obj.accessor.GetValueAt(prop.Name, key).AsUUID()
		child := obj.Child(occupant)
		if child == nil {
			continue
		}
		elem, listed := value.Lookup(key.AsString())
		switch {
		case listed && asID(elem) == occupant:
			continue
		case !listed && p.surplus == SurplusKeep:
			p.debug(obj, prop.Name, occupant, "keeping surplus owned entry")
			continue
		}
		if !p.displace(obj, prop, child) {
			ok = false
		}
	}

	for _, key := range value.Keys() {
		elem, _ := value.Lookup(key)
		id := asID(elem)
		if id == uuid.Nil || obj.accessor.GetValueAt(prop.Name, String(key)).AsUUID() == id {
			continue
		}
		if !p.bring(obj, prop, id, String(key), diff) {
			ok = false
		}
	}
	return ok
}

// bring makes the object with id live under prop of obj at index. Objects the
// diff adds are created and fully populated first; existing objects are moved.
func (p *Patcher) bring(obj *Object, prop *Property, id uuid.UUID, index Value, diff Diff) bool {
	if existing := p.doc.LookupObject(id); existing != nil {
		if existing != p.doc.root && !existing.attached && existing.parent == uuid.Nil {
			if err := p.doc.place(existing, obj, prop.Name, index); err != nil {
				p.fail(obj, prop.Name, id, "attach child", err)
				return false
			}
			return true
		}
		if err := p.doc.relocate(existing, obj, prop.Name, index); err != nil {
			p.fail(obj, prop.Name, id, "move child", err)
			return false
		}
		return true
	}
	added := diff.Added(id)
	if added == nil {
		p.debug(obj, prop.Name, id, "referenced object neither live nor added")
		return false
	}
	child := p.create(added)
	if child == nil {
		return false
	}
	if err := p.doc.place(child, obj, prop.Name, index); err != nil {
		p.fail(obj, prop.Name, id, "attach child", err)
		_ = p.doc.DestroyObject(child)
		return false
	}
	return true
}

func (p *Patcher) create(added *DiffOperation) *Object {
	if node := p.graph.GetNode(added.Node); node != nil {
		child := p.reader.CreateObjectFromNode(node)
		if child != nil {
			p.reader.ApplyPropertiesToObject(node, child)
		}
		return child
	}
	t := p.types.FindType(added.TypeName)
	if t == nil {
		return p.reader.CreateObjectFromNode(&Node{ID: added.Node, Type: added.TypeName, Version: added.TypeVersion})
	}
	child, err := p.doc.CreateObject(t, added.Node)
	if err != nil {
		p.fail(p.doc.root, "", added.Node, "create object", err)
		return nil
	}
	return child
}

// displace detaches child from prop of obj and keeps it alive until the pass
// settles, so a later operation can still claim it.
func (p *Patcher) displace(obj *Object, prop *Property, child *Object) bool {
	if child.attached {
		if err := p.doc.RemoveObject(child); err != nil {
			p.fail(obj, prop.Name, child.id, "detach child", err)
			return false
		}
	} else {
		obj.removeSubObject(child)
	}
	p.displaced = append(p.displaced, child)
	return true
}

// settle disposes of displaced children nothing claimed.
func (p *Patcher) settle(diff Diff) {
	displaced := p.displaced
	p.displaced = nil
	for _, child := range displaced {
		if p.doc.objects[child.id] != child || child.attached || child.parent != uuid.Nil {
			continue
		}
		if p.surplus == SurplusKeep && !diff.Removed(child.id) {
			p.logger.Log(LogEvent{Level: LevelDebug, Component: "patch", Message: "keeping displaced owned object", TypeName: child.typ.Name(), ObjectID: child.id})
			continue
		}
		if err := p.doc.DestroyObject(child); err != nil {
			p.logger.Log(LogEvent{Level: LevelError, Component: "patch", Message: "destroy displaced object", TypeName: child.typ.Name(), ObjectID: child.id, Err: err})
		}
	}
}

func (p *Patcher) discard(obj *Object, prop *Property, child *Object) {
	if err := p.doc.discard(child); err != nil {
		p.fail(obj, prop.Name, child.id, "discard child", err)
	}
}

func (p *Patcher) debug(obj *Object, property string, id uuid.UUID, msg string) {
	p.logger.Log(LogEvent{Level: LevelDebug, Component: "patch", Message: msg, TypeName: obj.typ.Name(), Property: property, ObjectID: id})
}

func (p *Patcher) fail(obj *Object, property string, id uuid.UUID, msg string, err error) {
	p.logger.Log(LogEvent{Level: LevelError, Component: "patch", Message: msg, TypeName: obj.typ.Name(), Property: property, ObjectID: id, Err: err})
}

// replaySequence rewrites a value sequence element by element: existing
// indices are set, new ones inserted, trailing ones removed.
func replaySequence(accessor *Accessor, name string, elems []Value) bool {
	ok := true
	current := accessor.GetCount(name)
	for i, elem := range elems {
		if i < current {
			ok = accessor.SetValueAt(name, elem, Int(int64(i))) && ok
		} else {
			ok = accessor.InsertValue(name, Int(int64(i)), elem) && ok
		}
	}
	for i := current - 1; i >= len(elems); i-- {
		accessor.RemoveValue(name, Int(int64(i)))
	}
	return ok
}

// replayDictionary removes keys value lacks, inserts new keys and sets the
// ones both share.
func replayDictionary(accessor *Accessor, name string, value Value) bool {
	for _, key := range accessor.GetKeys(name) {
		if _, ok := value.Lookup(key.AsString()); !ok {
			accessor.RemoveValue(name, key)
		}
	}
	ok := true
	for _, key := range value.Keys() {
		elem, _ := value.Lookup(key)
		if accessor.GetValueAt(name, String(key)).IsValid() {
			ok = accessor.SetValueAt(name, elem, String(key)) && ok
		} else {
			ok = accessor.InsertValue(name, String(key), elem) && ok
		}
	}
	return ok
}
