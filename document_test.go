package objgraph

import (
	"errors"
	"testing"

	"github.com/goliatone/go-objgraph/pkg/activity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
)

func TestNewDocumentHasAttachedRoot(t *testing.T) {
	id := uuid.New()
	doc := NewDocument(WithDocumentID(id))
	require.Equal(t, id, doc.ID())
	require.True(t, doc.Root().IsAttached())
	require.Equal(t, 1, doc.Len())
	require.Same(t, doc.Root(), doc.GetObject(id))
	require.Equal(t, "DocumentRoot", doc.Root().Type().Name())
}

func TestCreateObjectBuildsEmbeddedMembers(t *testing.T) {
	s := newScene()
	doc := NewDocument()

	obj, err := doc.CreateObject(s.container, uuid.Nil)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, obj.ID())
	require.False(t, obj.IsAttached())
	require.Nil(t, doc.GetObject(obj.ID()), "detached objects are not visible through GetObject")
	require.Same(t, obj, doc.LookupObject(obj.ID()))

	transformID := obj.GetValue("transform").AsUUID()
	require.Equal(t, uuid.NewSHA1(obj.ID(), []byte("transform")), transformID)
	transform := obj.Child(transformID)
	require.NotNil(t, transform)
	require.Same(t, s.transform, transform.Type())
	require.Same(t, obj, transform.Parent())
	require.Equal(t, 3, doc.Len())

	_, err = doc.CreateObject(s.item, obj.ID())
	require.ErrorIs(t, err, ErrDuplicateObject)
	_, err = doc.CreateObject(nil, uuid.Nil)
	require.ErrorIs(t, err, ErrUnknownType)
}

func TestCreateObjectRollsBackOnEmbeddedFailure(t *testing.T) {
	s := newScene()
	scope := tally.NewTestScope("", nil)
	doc := NewDocument(WithMetricsScope(scope))
	frame := NewType("Frame", 1, nil,
		Property{Name: "front", Category: CategoryMember, Flags: FlagClass, Type: s.transform},
		Property{Name: "back", Category: CategoryMember, Flags: FlagClass, Type: s.transform},
	)

	id := uuid.New()
	blocker, err := doc.CreateObject(s.item, uuid.NewSHA1(id, []byte("back")))
	require.NoError(t, err)
	before := doc.Len()
	created := counterValue(scope, metricObjectsCreated)

	_, err = doc.CreateObject(frame, id)
	require.ErrorIs(t, err, ErrDuplicateObject)
	require.Equal(t, before, doc.Len())
	require.Nil(t, doc.LookupObject(id))
	require.Nil(t, doc.LookupObject(uuid.NewSHA1(id, []byte("front"))))
	require.Same(t, blocker, doc.LookupObject(blocker.ID()))
	require.Equal(t, created+1, counterValue(scope, metricObjectsCreated), "only the front member was counted")
	require.Equal(t, int64(1), counterValue(scope, metricObjectsDestroyed))

	require.NoError(t, doc.DestroyObject(blocker))
	obj, err := doc.CreateObject(frame, id)
	require.NoError(t, err)
	require.Same(t, obj, doc.LookupObject(id))
}

func TestStructureErrorMessage(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	obj, err := doc.CreateObject(s.item, uuid.Nil)
	require.NoError(t, err)

	_, err = doc.CreateObject(s.item, obj.ID())
	require.EqualError(t, err, "create "+obj.ID().String()+": objgraph: duplicate object identifier")

	err = NewTypeRegistry(s.item).Register(NewType("Item", 2, nil))
	require.EqualError(t, err, `register "Item": objgraph: duplicate type name`)
}

func TestAddObjectAttachesSubtree(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	container := s.attachedContainer(t, doc)

	require.True(t, container.IsAttached())
	require.Same(t, doc.Root(), container.Parent())
	require.Equal(t, RootChildrenProperty, container.ParentProperty())
	transform := container.Child(container.GetValue("transform").AsUUID())
	require.True(t, transform.IsAttached())

	items := s.addItems(t, doc, container, "a", "c")
	b := s.newItem(t, doc, "b")
	require.NoError(t, doc.AddObject(b, container, "items", Int(1)))
	require.Equal(t, []uuid.UUID{items[0].ID(), b.ID(), items[1].ID()}, itemIDs(container, "items"))
	require.Equal(t, Uint32(1), b.PropertyIndex())

	err := doc.AddObject(b, container, "items", Int(0))
	require.ErrorIs(t, err, ErrObjectAttached)
	var structErr *StructureError
	require.True(t, errors.As(err, &structErr))
	require.Equal(t, "add", structErr.Op)
	require.Equal(t, b.ID(), structErr.ObjectID)
}

func TestAddObjectRejectsBadPlacement(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	container := s.attachedContainer(t, doc)

	item := s.newItem(t, doc, "x")
	require.ErrorIs(t, doc.AddObject(item, container, "missing", Int(-1)), ErrPropertyNotFound)
	require.ErrorIs(t, doc.AddObject(item, container, "refs", Int(-1)), ErrPropertyMismatch, "non-owning pointers never own")
	require.ErrorIs(t, doc.AddObject(item, container, "transform", Value{}), ErrPropertyMismatch, "embedded slots are managed by the document")
	require.ErrorIs(t, doc.AddObject(item, container, "items", Int(5)), ErrInvalidIndex)
	require.ErrorIs(t, doc.AddObject(item, container, "slots", Int(0)), ErrInvalidIndex, "maps need string keys")

	other, err := doc.CreateObject(s.container, uuid.Nil)
	require.NoError(t, err)
	require.ErrorIs(t, doc.AddObject(other, container, "items", Int(-1)), ErrPropertyMismatch, "element type must match")

	require.NoError(t, doc.AddObject(item, container, "slots", String("main")))
	second := s.newItem(t, doc, "y")
	require.ErrorIs(t, doc.AddObject(second, container, "slots", String("main")), ErrSlotOccupied)
	require.NoError(t, doc.AddObject(second, container, "child", Value{}))
	third := s.newItem(t, doc, "z")
	require.ErrorIs(t, doc.AddObject(third, container, "child", Value{}), ErrSlotOccupied)

	detachedParent, err := doc.CreateObject(s.container, uuid.Nil)
	require.NoError(t, err)
	require.ErrorIs(t, doc.AddObject(third, detachedParent, "child", Value{}), ErrObjectDetached)
}

func TestRemoveAndDestroy(t *testing.T) {
	s := newScene()
	scope := tally.NewTestScope("", nil)
	doc := NewDocument(WithMetricsScope(scope))
	container := s.attachedContainer(t, doc)
	items := s.addItems(t, doc, container, "a", "b")

	require.ErrorIs(t, doc.DestroyObject(items[0]), ErrObjectAttached)
	require.NoError(t, doc.RemoveObject(items[0]))
	require.False(t, items[0].IsAttached())
	require.Nil(t, items[0].Parent())
	require.Equal(t, []uuid.UUID{items[1].ID()}, itemIDs(container, "items"))
	require.ErrorIs(t, doc.RemoveObject(items[0]), ErrObjectDetached)

	require.NoError(t, doc.DestroyObject(items[0]))
	require.Nil(t, doc.LookupObject(items[0].ID()))
	require.ErrorIs(t, doc.DestroyObject(items[0]), ErrObjectNotFound)

	transform := container.Child(container.GetValue("transform").AsUUID())
	require.ErrorIs(t, doc.RemoveObject(transform), ErrPropertyMismatch)
	require.ErrorIs(t, doc.RemoveObject(doc.Root()), ErrPropertyMismatch)

	before := doc.Len()
	require.NoError(t, doc.DeleteObject(container))
	require.Equal(t, before-3, doc.Len(), "container, transform and item go together")
	require.Nil(t, doc.LookupObject(transform.ID()))

	require.EqualValues(t, 4, counterValue(scope, metricObjectsCreated))
	require.EqualValues(t, 4, counterValue(scope, metricObjectsDestroyed))
	require.EqualValues(t, 2, counterValue(scope, metricObjectsRemoved))
}

func TestMoveObject(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	container := s.attachedContainer(t, doc)
	items := s.addItems(t, doc, container, "a", "b", "c", "d")
	a, b, c, d := items[0], items[1], items[2], items[3]

	require.NoError(t, doc.MoveObject(a, container, "items", Int(3)))
	require.Equal(t, []uuid.UUID{b.ID(), c.ID(), a.ID(), d.ID()}, itemIDs(container, "items"))

	require.NoError(t, doc.MoveObject(d, container, "items", Int(0)))
	require.Equal(t, []uuid.UUID{d.ID(), b.ID(), c.ID(), a.ID()}, itemIDs(container, "items"))

	require.NoError(t, doc.MoveObject(b, container, "items", Int(1)), "before itself")
	require.NoError(t, doc.MoveObject(b, container, "items", Int(2)), "after itself")
	require.Equal(t, []uuid.UUID{d.ID(), b.ID(), c.ID(), a.ID()}, itemIDs(container, "items"))

	require.NoError(t, doc.MoveObject(c, container, "slots", String("k")))
	require.Same(t, c, container.Child(container.Accessor().GetValueAt("slots", String("k")).AsUUID()))
	require.Equal(t, []uuid.UUID{d.ID(), b.ID(), a.ID()}, itemIDs(container, "items"))

	require.NoError(t, doc.MoveObject(c, container, "slots", String("j")))
	require.Equal(t, []Value{String("j")}, container.Accessor().GetKeys("slots"))

	other := s.attachedContainer(t, doc)
	require.NoError(t, doc.MoveObject(a, other, "child", Value{}))
	require.Same(t, other, a.Parent())
	require.Equal(t, a.ID(), other.GetValue("child").AsUUID())
}

func TestMoveObjectRejectsCycles(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	outer := s.attachedContainer(t, doc)
	inner, err := doc.CreateObject(s.container, uuid.Nil)
	require.NoError(t, err)
	require.NoError(t, doc.AddObject(inner, outer, "child", Value{}))

	require.ErrorIs(t, doc.MoveObject(outer, inner, "child", Value{}), ErrInvalidIndex)
	require.Same(t, doc.Root(), outer.Parent())
}

func TestDetachedSubtreeAssembly(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	container, err := doc.CreateObject(s.container, uuid.Nil)
	require.NoError(t, err)

	item := s.newItem(t, doc, "a")
	require.NoError(t, container.InsertSubObject(item, "items", Int(-1)))
	require.Same(t, container, item.Parent())
	require.False(t, item.IsAttached())
	require.ErrorIs(t, doc.DestroyObject(item), ErrObjectAttached, "still held by its detached parent")

	require.NoError(t, doc.AddObject(container, nil, "", Int(-1)))
	require.True(t, item.IsAttached())
}

func TestDocumentEmitsActivity(t *testing.T) {
	s := newScene()
	capture := &activity.CaptureHook{}
	doc := NewDocument(WithActivityHooks(activity.Hooks{capture}, "editor"))
	container := s.attachedContainer(t, doc)
	items := s.addItems(t, doc, container, "a", "b")
	require.NoError(t, doc.MoveObject(items[1], container, "items", Int(0)))
	require.NoError(t, doc.DeleteObject(items[0]))

	var verbs []string
	for _, event := range capture.Events {
		verbs = append(verbs, event.Verb)
		require.Equal(t, "editor", event.Channel)
	}
	require.Equal(t, []string{
		activity.VerbObjectCreated, activity.VerbObjectCreated, activity.VerbObjectAdded,
		activity.VerbObjectCreated, activity.VerbObjectAdded,
		activity.VerbObjectCreated, activity.VerbObjectAdded,
		activity.VerbObjectMoved,
		activity.VerbObjectRemoved, activity.VerbObjectDestroyed,
	}, verbs)

	moved := capture.Events[7]
	require.Equal(t, "Item", moved.ObjectType)
	require.Equal(t, items[1].ID().String(), moved.ObjectID)
	require.Equal(t, container.ID().String(), moved.Metadata["parent_id"])
	require.Equal(t, uint64(1), moved.Metadata["old_index"])
	require.Equal(t, uint64(0), moved.Metadata["index"])
}

func TestDocumentActivityActorAndVerbs(t *testing.T) {
	s := newScene()
	capture := &activity.CaptureHook{}
	doc := NewDocument(
		WithActivityHooks(activity.Hooks{capture}, ""),
		WithActivityActor(activity.Actor{UserID: "u-1", TenantID: "t-1"}),
		WithActivityVerbs(activity.VerbObjectAdded, activity.VerbObjectRemoved),
	)
	item := s.newItem(t, doc, "a")
	require.NoError(t, doc.AddObject(item, nil, "", Int(-1)))
	require.NoError(t, doc.DeleteObject(item))

	require.Equal(t, []string{activity.VerbObjectAdded, activity.VerbObjectRemoved}, capture.Verbs())
	for _, event := range capture.Events {
		require.Equal(t, "u-1", event.UserID)
		require.Equal(t, "t-1", event.TenantID)
		require.Equal(t, doc.ID().String(), event.DocumentID)
		require.Equal(t, activity.DefaultChannel, event.Channel)
	}
}

func TestHookFailureIsLogged(t *testing.T) {
	s := newScene()
	logger := &captureLogger{}
	capture := &activity.CaptureHook{Err: errors.New("sink down")}
	doc := NewDocument(WithLogger(logger), WithActivityHooks(activity.Hooks{capture}, ""))
	_, err := doc.CreateObject(s.item, uuid.Nil)
	require.NoError(t, err)
	require.Equal(t, 1, logger.count(LevelWarn))
}

func TestSyncSchemaCreatesNewEmbeddedMembers(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	holder, err := doc.CreateObject(s.holder, uuid.Nil)
	require.NoError(t, err)
	require.NoError(t, doc.AddObject(holder, nil, "", Int(-1)))

	s.holder.Redefine(2,
		Property{Name: "child", Category: CategoryMember, Flags: FlagClass | FlagPointer | FlagPointerOwner, Type: s.item},
		Property{Name: "transform", Category: CategoryMember, Flags: FlagClass, Type: s.transform},
	)
	require.NoError(t, doc.SyncSchema())

	transform := holder.Child(holder.GetValue("transform").AsUUID())
	require.NotNil(t, transform)
	require.True(t, transform.IsAttached())
	require.Same(t, s.transform, transform.Type())
}

func TestEmbeddedMemberIsNotWritable(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	container := s.attachedContainer(t, doc)
	transformID := container.GetValue("transform").AsUUID()

	require.False(t, container.SetValue("transform", UUID(uuid.New())))
	require.False(t, container.Accessor().SetValueAt("transform", UUID(uuid.Nil), Value{}))
	require.Equal(t, transformID, container.GetValue("transform").AsUUID())
	require.NotNil(t, container.Child(transformID))

	require.NoError(t, doc.SyncSchema())
	require.Equal(t, transformID, container.GetValue("transform").AsUUID())
	require.Len(t, container.Children(), 1)
}
