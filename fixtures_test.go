package objgraph

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
)

type scene struct {
	color     *Type
	access    *Type
	transform *Type
	item      *Type
	container *Type
	holder    *Type
	types     *TypeRegistry
}

func newScene() *scene {
	s := &scene{}
	s.color = NewEnumType("Color", false,
		EnumConstant{Name: "Red", Value: 1},
		EnumConstant{Name: "Green", Value: 2},
		EnumConstant{Name: "Blue", Value: 3},
	)
	s.access = NewEnumType("Access", true,
		EnumConstant{Name: "Read", Value: 1},
		EnumConstant{Name: "Write", Value: 2},
		EnumConstant{Name: "Exec", Value: 4},
	)
	s.transform = NewType("Transform", 1, nil,
		Property{Name: "x", Category: CategoryMember, Kind: KindFloat64},
		Property{Name: "y", Category: CategoryMember, Kind: KindFloat64},
	)
	s.item = NewType("Item", 1, nil,
		Property{Name: "name", Category: CategoryMember, Kind: KindString},
		Property{Name: "weight", Category: CategoryMember, Kind: KindFloat64},
	)
	owner := FlagClass | FlagPointer | FlagPointerOwner
	s.container = NewType("Container", 1, nil,
		Property{Name: "name", Category: CategoryMember, Kind: KindString},
		Property{Name: "size", Category: CategoryMember, Kind: KindInt32, Default: Int(1)},
		Property{Name: "color", Category: CategoryMember, Flags: FlagIsEnum, Type: s.color, Default: String("Red")},
		Property{Name: "access", Category: CategoryMember, Flags: FlagBitflags, Type: s.access},
		Property{Name: "transform", Category: CategoryMember, Flags: FlagClass, Type: s.transform},
		Property{Name: "child", Category: CategoryMember, Flags: owner},
		Property{Name: "link", Category: CategoryMember, Flags: FlagClass | FlagPointer, Type: s.item},
		Property{Name: "items", Category: CategoryArray, Flags: owner, Type: s.item},
		Property{Name: "slots", Category: CategoryMap, Flags: owner, Type: s.item},
		Property{Name: "refs", Category: CategoryArray, Flags: FlagClass | FlagPointer, Type: s.item},
		Property{Name: "labels", Category: CategoryMap, Kind: KindString},
		Property{Name: "scores", Category: CategoryArray, Kind: KindInt64},
		Property{Name: "revision", Category: CategoryConstant, Kind: KindInt32, Default: Int(7)},
	)
	s.holder = NewType("Holder", 1, nil,
		Property{Name: "child", Category: CategoryMember, Flags: owner, Type: s.item},
	)
	s.types = NewTypeRegistry(s.transform, s.item, s.container, s.holder)
	return s
}

func (s *scene) newItem(t *testing.T, doc *Document, name string) *Object {
	t.Helper()
	obj, err := doc.CreateObject(s.item, uuid.Nil)
	require.NoError(t, err)
	require.True(t, obj.SetValue("name", String(name)))
	return obj
}

// attachedContainer returns a container attached under the document root.
func (s *scene) attachedContainer(t *testing.T, doc *Document) *Object {
	t.Helper()
	obj, err := doc.CreateObject(s.container, uuid.Nil)
	require.NoError(t, err)
	require.NoError(t, doc.AddObject(obj, nil, "", Int(-1)))
	return obj
}

// attachedHolder returns a holder attached under the document root.
func (s *scene) attachedHolder(t *testing.T, doc *Document) *Object {
	t.Helper()
	holder, err := doc.CreateObject(s.holder, uuid.Nil)
	require.NoError(t, err)
	require.NoError(t, doc.AddObject(holder, nil, "", Int(-1)))
	return holder
}

// addItems appends one attached item per name to the items array.
func (s *scene) addItems(t *testing.T, doc *Document, container *Object, names ...string) []*Object {
	t.Helper()
	out := make([]*Object, 0, len(names))
	for _, name := range names {
		item := s.newItem(t, doc, name)
		require.NoError(t, doc.AddObject(item, container, "items", Int(-1)))
		out = append(out, item)
	}
	return out
}

func itemIDs(obj *Object, property string) []uuid.UUID {
	var out []uuid.UUID
	for _, v := range obj.Accessor().GetValues(property) {
		out = append(out, v.AsUUID())
	}
	return out
}

func counterValue(scope tally.TestScope, name string) int64 {
	var total int64
	for _, counter := range scope.Snapshot().Counters() {
		if counter.Name() == name {
			total += counter.Value()
		}
	}
	return total
}

type captureLogger struct {
	events []LogEvent
}

func (l *captureLogger) Log(event LogEvent) { l.events = append(l.events, event) }

func (l *captureLogger) count(level LogLevel) int {
	n := 0
	for _, event := range l.events {
		if event.Level == level {
			n++
		}
	}
	return n
}
