package objgraph

import (
	"sync"

	"github.com/goliatone/go-objgraph/pkg/activity"
	"github.com/google/uuid"
	"github.com/uber-go/tally/v4"
)

// RootChildrenProperty is the owning array of the default root type.
const RootChildrenProperty = "Children"

var (
	defaultRootOnce sync.Once
	defaultRootType *Type
)

// DefaultRootType returns the shared "DocumentRoot" type, which owns any
// class object through its Children array.
func DefaultRootType() *Type {
	defaultRootOnce.Do(func() {
		defaultRootType = NewType("DocumentRoot", 1, nil, Property{
			Name:     RootChildrenProperty,
			Category: CategoryArray,
			Flags:    FlagClass | FlagPointer | FlagPointerOwner,
		})
	})
	return defaultRootType
}

// DocumentOption configures a Document.
type DocumentOption func(*documentConfig)

type documentConfig struct {
	id       uuid.UUID
	rootType *Type
	logger   Logger
	scope    tally.Scope
	hooks    activity.Hooks
	channel  string
	actor    activity.Actor
	verbs    []string
}

// WithDocumentID fixes the root object identifier.
func WithDocumentID(id uuid.UUID) DocumentOption {
	return func(cfg *documentConfig) {
		cfg.id = id
	}
}

// WithRootType replaces DefaultRootType.
func WithRootType(t *Type) DocumentOption {
	return func(cfg *documentConfig) {
		if t != nil {
			cfg.rootType = t
		}
	}
}

// WithLogger attaches a logger to the document.
func WithLogger(logger Logger) DocumentOption {
	return func(cfg *documentConfig) {
		cfg.logger = loggerOrNoop(logger)
	}
}

// WithMetricsScope records lifecycle counters on scope.
func WithMetricsScope(scope tally.Scope) DocumentOption {
	return func(cfg *documentConfig) {
		cfg.scope = scopeOrNoop(scope)
	}
}

// WithActivityHooks emits lifecycle events to hooks on the given channel.
// Nil hooks are dropped.
func WithActivityHooks(hooks activity.Hooks, channel string) DocumentOption {
	return func(cfg *documentConfig) {
		cfg.hooks = hooks
		cfg.channel = channel
	}
}

// WithActivityActor stamps actor on emitted events.
func WithActivityActor(actor activity.Actor) DocumentOption {
	return func(cfg *documentConfig) {
		cfg.actor = actor
	}
}

// WithActivityVerbs limits emitted events to verbs.
func WithActivityVerbs(verbs ...string) DocumentOption {
	return func(cfg *documentConfig) {
		cfg.verbs = append(cfg.verbs, verbs...)
	}
}

// Document owns every live object created through it and the tree of
// attached objects below its root. It is not safe for concurrent mutation.
type Document struct {
	root    *Object
	objects map[uuid.UUID]*Object
	logger  Logger
	scope   tally.Scope
	emitter *activity.Emitter

	created   tally.Counter
	destroyed tally.Counter
	added     tally.Counter
	removed   tally.Counter
	moved     tally.Counter
}

// NewDocument creates an empty document with an attached root object.
func NewDocument(opts ...DocumentOption) *Document {
	cfg := documentConfig{
		rootType: DefaultRootType(),
		logger:   noopLogger{},
		scope:    tally.NoopScope,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.id == uuid.Nil {
		cfg.id = uuid.New()
	}

	d := &Document{
		objects: make(map[uuid.UUID]*Object),
		logger:  cfg.logger,
		scope:   cfg.scope,
		emitter: activity.NewEmitter(cfg.hooks, activity.Config{
			Enabled: len(cfg.hooks) > 0,
			Channel: cfg.channel,
			Actor:   cfg.actor,
			Verbs:   cfg.verbs,
		}),
	}
	d.created = d.scope.Counter(metricObjectsCreated)
	d.destroyed = d.scope.Counter(metricObjectsDestroyed)
	d.added = d.scope.Counter(metricObjectsAdded)
	d.removed = d.scope.Counter(metricObjectsRemoved)
	d.moved = d.scope.Counter(metricObjectsMoved)

	d.root = d.newObject(cfg.rootType, cfg.id)
	d.objects[d.root.id] = d.root
	d.patchEmbedded(d.root)
	d.root.setAttached(true)
	return d
}

// ID returns the root object identifier.
func (d *Document) ID() uuid.UUID { return d.root.id }

// Root returns the root object.
func (d *Document) Root() *Object { return d.root }

// Logger returns the configured logger.
func (d *Document) Logger() Logger { return d.logger }

// Len returns the number of live objects, attached or not, including the root.
func (d *Document) Len() int { return len(d.objects) }

// GetObject returns the attached object with id, or nil.
func (d *Document) GetObject(id uuid.UUID) *Object {
	obj := d.objects[id]
	if obj == nil || !obj.attached {
		return nil
	}
	return obj
}

// LookupObject returns any live object with id, attached or not.
func (d *Document) LookupObject(id uuid.UUID) *Object {
	return d.objects[id]
}

func (d *Document) newObject(t *Type, id uuid.UUID) *Object {
	return &Object{id: id, typ: t, doc: d, accessor: NewAccessor(t)}
}

// CreateObject allocates a detached object of type t. A nil id generates a
// random one. Embedded class members are created along with it.
func (d *Document) CreateObject(t *Type, id uuid.UUID) (*Object, error) {
	if t == nil {
		return nil, structureError("create", id, "", ErrUnknownType)
	}
	if id == uuid.Nil {
		id = uuid.New()
	}
	if _, exists := d.objects[id]; exists {
		return nil, structureError("create", id, "", ErrDuplicateObject)
	}
	obj := d.newObject(t, id)
	d.objects[id] = obj
	if err := d.patchEmbedded(obj); err != nil {
		for _, child := range obj.children {
			d.destroy(child)
		}
		delete(d.objects, id)
		return nil, err
	}
	d.created.Inc(1)
	d.emitObject(activity.BuildObjectCreatedEvent, obj, nil, "", Value{})
	return obj, nil
}

// embeddedID derives the stable identifier of an embedded member object.
func embeddedID(parent uuid.UUID, property string) uuid.UUID {
	return uuid.NewSHA1(parent, []byte(property))
}

// patchEmbedded makes sure every embedded class member of obj holds a child
// of the declared type. Children of a different type are replaced.
func (d *Document) patchEmbedded(obj *Object) error {
	for _, prop := range obj.typ.AllProperties() {
		if !prop.IsEmbedded() || prop.Type == nil {
			continue
		}
		if current := obj.Child(obj.accessor.GetValue(prop.Name).AsUUID()); current != nil {
			if current.typ == prop.Type {
				continue
			}
			obj.removeSubObject(current)
			d.destroy(current)
		}
		child, err := d.CreateObject(prop.Type, embeddedID(obj.id, prop.Name))
		if err != nil {
			return err
		}
		obj.insertSubObject(child, prop.Name, Value{})
		if obj.attached {
			child.setAttached(true)
			d.added.Inc(1)
		}
	}
	return nil
}

// checkPlacement validates that obj may be stored under property of parent at
// index and returns the property.
func (d *Document) checkPlacement(obj, parent *Object, property string, index Value) (*Property, error) {
	prop := parent.typ.FindProperty(property)
	if prop == nil {
		return nil, ErrPropertyNotFound
	}
	if !prop.OwnsObjects() || prop.IsEmbedded() {
		return nil, ErrPropertyMismatch
	}
	if prop.Type != nil && !obj.typ.IsDerivedFrom(prop.Type) {
		return nil, ErrPropertyMismatch
	}
	switch prop.Category {
	case CategoryArray, CategorySet:
		if !index.IsValid() {
			return prop, nil
		}
		i, ok := index.ConvertTo(KindInt64)
		if !ok || i.AsInt() < -1 || i.AsInt() > int64(parent.accessor.GetCount(property)) {
			return nil, ErrInvalidIndex
		}
	case CategoryMap:
		if !index.IsA(KindString) {
			return nil, ErrInvalidIndex
		}
		if current := parent.accessor.GetValueAt(property, index).AsUUID(); current != uuid.Nil && current != obj.id {
			return nil, ErrSlotOccupied
		}
	case CategoryMember:
		if current := parent.accessor.GetValue(property).AsUUID(); current != uuid.Nil && current != obj.id {
			return nil, ErrSlotOccupied
		}
	default:
		return nil, ErrPropertyMismatch
	}
	return prop, nil
}

func (d *Document) orRoot(parent *Object, property string) (*Object, string) {
	if parent == nil {
		parent = d.root
	}
	if parent == d.root && property == "" {
		property = RootChildrenProperty
	}
	return parent, property
}

// AddObject attaches a created, detached object under property of parent
// (nil means the root). Arrays and sets take an index in [0, count] or -1 to
// append; maps take a string key that is not yet occupied.
func (d *Document) AddObject(obj, parent *Object, property string, index Value) error {
	parent, property = d.orRoot(parent, property)
	if d.objects[obj.id] != obj {
		return structureError("add", obj.id, property, ErrObjectNotFound)
	}
	if obj.attached || obj.parent != uuid.Nil {
		return structureError("add", obj.id, property, ErrObjectAttached)
	}
	if !parent.attached {
		return structureError("add", obj.id, property, ErrObjectDetached)
	}
	if _, err := d.checkPlacement(obj, parent, property, index); err != nil {
		return structureError("add", obj.id, property, err)
	}
	parent.insertSubObject(obj, property, index)
	obj.setAttached(true)
	d.added.Inc(1)
	d.emitObject(activity.BuildObjectAddedEvent, obj, parent, property, obj.PropertyIndex())
	return nil
}

// RemoveObject detaches an attached object from its parent. The object and
// its subtree stay alive until destroyed. Embedded members cannot be removed.
func (d *Document) RemoveObject(obj *Object) error {
	if obj == d.root {
		return structureError("remove", obj.id, "", ErrPropertyMismatch)
	}
	if !obj.attached || d.objects[obj.id] != obj {
		return structureError("remove", obj.id, "", ErrObjectDetached)
	}
	parent := obj.Parent()
	if prop := parent.typ.FindProperty(obj.parentProperty); prop != nil && prop.IsEmbedded() {
		return structureError("remove", obj.id, obj.parentProperty, ErrPropertyMismatch)
	}
	property, index := obj.parentProperty, obj.PropertyIndex()
	parent.removeSubObject(obj)
	obj.setAttached(false)
	d.removed.Inc(1)
	d.emitObject(activity.BuildObjectRemovedEvent, obj, parent, property, index)
	return nil
}

// MoveObject relocates an attached object. For arrays the index addresses
// the position before the move, like Accessor.MoveValue. Moving an object
// before or after itself is a no-op.
func (d *Document) MoveObject(obj, newParent *Object, property string, index Value) error {
	newParent, property = d.orRoot(newParent, property)
	if !obj.attached || obj == d.root {
		return structureError("move", obj.id, property, ErrObjectDetached)
	}
	if !newParent.attached {
		return structureError("move", obj.id, property, ErrObjectDetached)
	}
	for cur := newParent; cur != nil; cur = cur.Parent() {
		if cur == obj {
			return structureError("move", obj.id, property, ErrInvalidIndex)
		}
	}
	oldParent := obj.Parent()
	if prop := oldParent.typ.FindProperty(obj.parentProperty); prop != nil && prop.IsEmbedded() {
		return structureError("move", obj.id, obj.parentProperty, ErrPropertyMismatch)
	}
	prop, err := d.checkPlacement(obj, newParent, property, index)
	if err != nil {
		return structureError("move", obj.id, property, err)
	}

	sameSlot := oldParent == newParent && obj.parentProperty == property
	target := index
	if prop.Category == CategoryArray || prop.Category == CategorySet {
		newIndex := newParent.appendIndex(property, index)
		if sameSlot {
			current, _ := indexOf(obj.PropertyIndex())
			if newIndex == current || newIndex == current+1 {
				return nil
			}
			if newIndex > current {
				newIndex--
			}
		}
		target = Int(int64(newIndex))
	} else if sameSlot && (prop.Category == CategoryMember || obj.PropertyIndex().Equal(index)) {
		return nil
	}

	oldProperty, oldIndex := obj.parentProperty, obj.PropertyIndex()
	oldParent.removeSubObject(obj)
	newParent.insertSubObject(obj, property, target)
	d.moved.Inc(1)
	d.emitObject(activity.BuildObjectMovedEvent, obj, newParent, property, obj.PropertyIndex(), map[string]any{
		"old_parent_id": oldParent.id.String(),
		"old_property":  oldProperty,
		"old_index":     oldIndex.Interface(),
	})
	return nil
}

// DestroyObject frees a detached object and its subtree. Attached objects and
// objects still held by a detached parent must be removed first.
func (d *Document) DestroyObject(obj *Object) error {
	if d.objects[obj.id] != obj {
		return structureError("destroy", obj.id, "", ErrObjectNotFound)
	}
	if obj.attached || obj.parent != uuid.Nil {
		return structureError("destroy", obj.id, "", ErrObjectAttached)
	}
	d.destroy(obj)
	return nil
}

func (d *Document) destroy(obj *Object) {
	for _, child := range obj.children {
		d.destroy(child)
	}
	obj.children = nil
	delete(d.objects, obj.id)
	d.destroyed.Inc(1)
	d.emitObject(activity.BuildObjectDestroyedEvent, obj, nil, "", Value{})
}

// DeleteObject removes an attached object and then destroys it.
func (d *Document) DeleteObject(obj *Object) error {
	if err := d.RemoveObject(obj); err != nil {
		return err
	}
	return d.DestroyObject(obj)
}

// discard detaches obj from its parent, attached or not, and destroys it.
func (d *Document) discard(obj *Object) error {
	if obj.attached {
		return d.DeleteObject(obj)
	}
	if parent := obj.Parent(); parent != nil {
		parent.removeSubObject(obj)
	}
	return d.DestroyObject(obj)
}

// place attaches child under property of parent at index, registering it
// with the document when parent is attached.
func (d *Document) place(child, parent *Object, property string, index Value) error {
	if parent.attached {
		return d.AddObject(child, parent, property, index)
	}
	return parent.InsertSubObject(child, property, index)
}

// relocate moves child to index of property on parent. Detached subtrees are
// rearranged directly.
func (d *Document) relocate(child, parent *Object, property string, index Value) error {
	if child.attached && parent.attached {
		return d.MoveObject(child, parent, property, index)
	}
	if child.attached != parent.attached {
		return structureError("move", child.id, property, ErrObjectDetached)
	}
	oldParent := child.Parent()
	if oldParent == parent && child.parentProperty == property {
		prop := parent.typ.FindProperty(property)
		if prop != nil && (prop.Category == CategoryArray || prop.Category == CategorySet) {
			from := child.PropertyIndex()
			if !parent.accessor.MoveValue(property, from, index) {
				return structureError("move", child.id, property, ErrInvalidIndex)
			}
			return nil
		}
	}
	if _, err := d.checkPlacement(child, parent, property, index); err != nil {
		return structureError("move", child.id, property, err)
	}
	if oldParent != nil {
		oldParent.removeSubObject(child)
	}
	parent.insertSubObject(child, property, index)
	return nil
}

// SyncSchema brings every live object up to date after types were
// redefined: storage is resynced and embedded members that appeared or
// changed type get their child objects.
func (d *Document) SyncSchema() error {
	live := make([]*Object, 0, len(d.objects))
	for _, obj := range d.objects {
		live = append(live, obj)
	}
	for _, obj := range live {
		if d.objects[obj.id] != obj {
			continue
		}
		obj.accessor.sync()
		if err := d.patchEmbedded(obj); err != nil {
			return err
		}
	}
	return nil
}
