package objgraph

import (
	"testing"

	"github.com/goliatone/go-objgraph/pkg/activity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
)

// addedItem registers a node for a new item in g and returns the diff
// operations that introduce it.
func addedItem(g *Graph, name string) (uuid.UUID, Diff) {
	id := uuid.New()
	g.AddNode(id, "Item", 1, "").AddProperty("name", String(name))
	return id, Diff{
		{Op: NodeAdded, Node: id, TypeName: "Item", TypeVersion: 1},
		{Op: PropertyChanged, Node: id, Property: "name", Value: String(name)},
	}
}

func TestPatchReplacesOwnedMember(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	holder, err := doc.CreateObject(s.holder, uuid.Nil)
	require.NoError(t, err)
	require.NoError(t, doc.AddObject(holder, nil, "", Int(-1)))
	a := s.newItem(t, doc, "a")
	require.NoError(t, doc.AddObject(a, holder, "child", Value{}))

	g := NewGraph()
	b, diff := addedItem(g, "b")
	diff = append(diff,
		DiffOperation{Op: NodeRemoved, Node: a.ID()},
		DiffOperation{Op: PropertyChanged, Node: holder.ID(), Property: "child", Value: UUID(b)},
	)

	NewPatcher(doc, g, s.types).Apply(diff)

	require.Nil(t, doc.LookupObject(a.ID()))
	require.Equal(t, b, holder.GetValue("child").AsUUID())
	replacement := doc.GetObject(b)
	require.NotNil(t, replacement)
	require.True(t, replacement.IsAttached())
	require.Same(t, holder, replacement.Parent())
	require.Equal(t, "b", replacement.GetValue("name").AsString())
}

func TestPatchKeepsSurvivingChildren(t *testing.T) {
	s := newScene()
	scope := tally.NewTestScope("", nil)
	doc := NewDocument(WithMetricsScope(scope))
	container := s.attachedContainer(t, doc)
	items := s.addItems(t, doc, container, "a", "b", "c")
	a, b, c := items[0], items[1], items[2]

	g := NewGraph()
	d, diff := addedItem(g, "d")
	diff = append(diff,
		DiffOperation{Op: NodeRemoved, Node: b.ID()},
		DiffOperation{Op: PropertyChanged, Node: container.ID(), Property: "items", Value: IDs(a.ID(), d, c.ID())},
	)
	destroyed := counterValue(scope, metricObjectsDestroyed)

	applied := NewPatcher(doc, g, s.types).Apply(diff)

	require.Equal(t, 2, applied)
	require.Equal(t, []uuid.UUID{a.ID(), d, c.ID()}, itemIDs(container, "items"))
	require.Same(t, a, doc.GetObject(a.ID()), "survivors keep their identity")
	require.Same(t, c, doc.GetObject(c.ID()))
	require.Equal(t, Uint32(2), c.PropertyIndex())
	require.Nil(t, doc.LookupObject(b.ID()))
	require.Equal(t, "d", doc.GetObject(d).GetValue("name").AsString())
	require.EqualValues(t, 1, counterValue(scope, metricObjectsDestroyed)-destroyed)
	require.EqualValues(t, 2, counterValue(scope, metricPatchOperations))
}

func TestPatchReordersWithoutRecreating(t *testing.T) {
	s := newScene()
	scope := tally.NewTestScope("", nil)
	doc := NewDocument(WithMetricsScope(scope))
	container := s.attachedContainer(t, doc)
	items := s.addItems(t, doc, container, "a", "b", "c")
	created := counterValue(scope, metricObjectsCreated)

	diff := Diff{{Op: PropertyChanged, Node: container.ID(), Property: "items", Value: IDs(items[2].ID(), items[0].ID(), items[1].ID())}}
	require.Equal(t, 1, NewPatcher(doc, NewGraph(), s.types).Apply(diff))

	require.Equal(t, []uuid.UUID{items[2].ID(), items[0].ID(), items[1].ID()}, itemIDs(container, "items"))
	require.Equal(t, created, counterValue(scope, metricObjectsCreated))
	require.Zero(t, counterValue(scope, metricObjectsDestroyed))
}

func TestPatchSurplusPolicy(t *testing.T) {
	cases := []struct {
		name   string
		opts   []PatcherOption
		remain int
	}{
		{name: "keep by default", remain: 3},
		{name: "delete", opts: []PatcherOption{WithPatchSurplusPolicy(SurplusDelete)}, remain: 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newScene()
			doc := NewDocument()
			container := s.attachedContainer(t, doc)
			items := s.addItems(t, doc, container, "a", "b", "c")

			diff := Diff{{Op: PropertyChanged, Node: container.ID(), Property: "items", Value: IDs(items[0].ID())}}
			NewPatcher(doc, NewGraph(), s.types, tc.opts...).Apply(diff)

			require.Len(t, itemIDs(container, "items"), tc.remain)
			require.Equal(t, items[0].ID(), itemIDs(container, "items")[0])
			require.Equal(t, tc.remain == 3, doc.LookupObject(items[2].ID()) != nil)
		})
	}
}

func TestPatchOwnedMemberDisplacesUnmarkedOccupant(t *testing.T) {
	cases := []struct {
		name string
		opts []PatcherOption
		kept bool
	}{
		{name: "keep by default", kept: true},
		{name: "delete", opts: []PatcherOption{WithPatchSurplusPolicy(SurplusDelete)}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newScene()
			logger := &captureLogger{}
			doc := NewDocument()
			holder := s.attachedHolder(t, doc)
			a := s.newItem(t, doc, "a")
			require.NoError(t, doc.AddObject(a, holder, "child", Value{}))

			g := NewGraph()
			b, diff := addedItem(g, "b")
			diff = append(diff, DiffOperation{Op: PropertyChanged, Node: holder.ID(), Property: "child", Value: UUID(b)})

			opts := append([]PatcherOption{WithPatchLogger(logger)}, tc.opts...)
			NewPatcher(doc, g, s.types, opts...).Apply(diff)

			require.Equal(t, b, holder.GetValue("child").AsUUID())
			require.Same(t, holder, doc.GetObject(b).Parent())
			if tc.kept {
				require.Same(t, a, doc.LookupObject(a.ID()))
				require.False(t, a.IsAttached())
				require.Nil(t, a.Parent())
				require.Positive(t, logger.count(LevelDebug))
				return
			}
			require.Nil(t, doc.LookupObject(a.ID()))
		})
	}
}

func TestPatchOwnedMemberHandsChildToAnotherHolder(t *testing.T) {
	for _, order := range []string{"giver first", "taker first"} {
		t.Run(order, func(t *testing.T) {
			s := newScene()
			scope := tally.NewTestScope("", nil)
			doc := NewDocument(WithMetricsScope(scope))
			var giver, taker *Object
			if order == "giver first" {
				giver = s.attachedHolder(t, doc)
				taker = s.attachedHolder(t, doc)
			} else {
				taker = s.attachedHolder(t, doc)
				giver = s.attachedHolder(t, doc)
			}
			x := s.newItem(t, doc, "x")
			require.NoError(t, doc.AddObject(x, giver, "child", Value{}))

			g := NewGraph()
			y, diff := addedItem(g, "y")
			diff = append(diff,
				DiffOperation{Op: PropertyChanged, Node: giver.ID(), Property: "child", Value: UUID(y)},
				DiffOperation{Op: PropertyChanged, Node: taker.ID(), Property: "child", Value: UUID(x.ID())},
			)
			destroyed := counterValue(scope, metricObjectsDestroyed)

			NewPatcher(doc, g, s.types).Apply(diff)

			require.Equal(t, y, giver.GetValue("child").AsUUID())
			require.Equal(t, x.ID(), taker.GetValue("child").AsUUID())
			added := doc.GetObject(y)
			require.NotNil(t, added)
			require.Same(t, giver, added.Parent())
			require.Equal(t, "y", added.GetValue("name").AsString())
			require.Same(t, x, doc.GetObject(x.ID()), "handed over children keep their identity")
			require.Same(t, taker, x.Parent())
			require.Equal(t, destroyed, counterValue(scope, metricObjectsDestroyed))
		})
	}
}

func TestPatchOwnedDictionary(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	container := s.attachedContainer(t, doc)
	a := s.newItem(t, doc, "a")
	c := s.newItem(t, doc, "c")
	require.NoError(t, doc.AddObject(a, container, "slots", String("k")))
	require.NoError(t, doc.AddObject(c, container, "slots", String("m")))

	g := NewGraph()
	b, diff := addedItem(g, "b")
	diff = append(diff,
		DiffOperation{Op: NodeRemoved, Node: a.ID()},
		DiffOperation{Op: PropertyChanged, Node: container.ID(), Property: "slots", Value: Dictionary(map[string]Value{
			"k": UUID(b),
			"n": UUID(c.ID()),
		})},
	)

	NewPatcher(doc, g, s.types).Apply(diff)

	accessor := container.Accessor()
	require.Equal(t, []Value{String("k"), String("n")}, accessor.GetKeys("slots"))
	require.Equal(t, b, accessor.GetValueAt("slots", String("k")).AsUUID())
	require.Same(t, c, doc.GetObject(accessor.GetValueAt("slots", String("n")).AsUUID()), "re-keyed entries keep their object")
	require.Equal(t, String("n"), c.PropertyIndex())
	require.Nil(t, doc.LookupObject(a.ID()))
}

func TestPatchOwnedDictionaryRotatesKeys(t *testing.T) {
	cases := []struct {
		name string
		keys []string
		want []string
	}{
		{name: "swap", keys: []string{"k1", "k2"}, want: []string{"k2", "k1"}},
		{name: "rotate", keys: []string{"k1", "k2", "k3"}, want: []string{"k2", "k3", "k1"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newScene()
			scope := tally.NewTestScope("", nil)
			doc := NewDocument(WithMetricsScope(scope))
			container := s.attachedContainer(t, doc)
			objects := make([]*Object, len(tc.keys))
			for i, key := range tc.keys {
				objects[i] = s.newItem(t, doc, key)
				require.NoError(t, doc.AddObject(objects[i], container, "slots", String(key)))
			}

			// objects[i] moves to want[i].
			target := make(map[string]Value, len(tc.keys))
			for i, key := range tc.want {
				target[key] = UUID(objects[i].ID())
			}
			created := counterValue(scope, metricObjectsCreated)

			require.Equal(t, 1, NewPatcher(doc, NewGraph(), s.types).Apply(Diff{
				{Op: PropertyChanged, Node: container.ID(), Property: "slots", Value: Dictionary(target)},
			}))

			accessor := container.Accessor()
			for i, key := range tc.want {
				require.Equal(t, objects[i].ID(), accessor.GetValueAt("slots", String(key)).AsUUID(), key)
				require.Same(t, objects[i], doc.GetObject(objects[i].ID()))
				require.Equal(t, String(key), objects[i].PropertyIndex())
			}
			require.Len(t, accessor.GetKeys("slots"), len(tc.keys))
			require.Equal(t, created, counterValue(scope, metricObjectsCreated))
			require.Zero(t, counterValue(scope, metricObjectsDestroyed))
		})
	}
}

func TestPatchReplaysValueCollections(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	container := s.attachedContainer(t, doc)
	outsider := s.newItem(t, doc, "outsider")
	require.NoError(t, doc.AddObject(outsider, nil, "", Int(-1)))

	accessor := container.Accessor()
	for i, score := range []int64{1, 2, 3} {
		require.True(t, accessor.InsertValue("scores", Int(int64(i)), Int(score)))
	}
	require.True(t, accessor.InsertValue("labels", String("en"), String("hello")))
	require.True(t, accessor.InsertValue("labels", String("fr"), String("salut")))

	diff := Diff{
		{Op: PropertyChanged, Node: container.ID(), Property: "scores", Value: Array(Int(5))},
		{Op: PropertyChanged, Node: container.ID(), Property: "labels", Value: Dictionary(map[string]Value{
			"en": String("hi"),
			"de": String("hallo"),
		})},
		{Op: PropertyChanged, Node: container.ID(), Property: "link", Value: UUID(outsider.ID())},
		{Op: PropertyChanged, Node: container.ID(), Property: "color", Value: String("Blue")},
		{Op: PropertyChanged, Node: container.ID(), Property: "retired", Value: Int(1)},
	}
	require.Equal(t, 4, NewPatcher(doc, NewGraph(), s.types).Apply(diff), "undeclared properties are skipped")

	require.True(t, container.GetValue("scores").Equal(Array(Int64(5))))
	require.True(t, container.GetValue("labels").Equal(Dictionary(map[string]Value{
		"en": String("hi"),
		"de": String("hallo"),
	})))
	require.Equal(t, outsider.ID(), container.GetValue("link").AsUUID())
	require.Same(t, doc.Root(), outsider.Parent(), "non-owning pointers never move their target")
	require.Equal(t, int64(3), container.GetValue("color").AsInt())
}

func TestPatchEmitsGraphEvent(t *testing.T) {
	s := newScene()
	capture := &activity.CaptureHook{}
	doc := NewDocument(WithActivityHooks(activity.Hooks{capture}, ""))
	container := s.attachedContainer(t, doc)

	NewPatcher(doc, NewGraph(), s.types).Apply(Diff{
		{Op: PropertyChanged, Node: container.ID(), Property: "name", Value: String("renamed")},
	})

	last := capture.Events[len(capture.Events)-1]
	require.Equal(t, activity.VerbGraphPatched, last.Verb)
	require.Equal(t, 1, last.Metadata["operations"])
	require.Equal(t, doc.ID().String(), last.Metadata["root_id"])
}

func TestPatchDetachedSubtree(t *testing.T) {
	s := newScene()
	doc := NewDocument()
	container, err := doc.CreateObject(s.container, uuid.Nil)
	require.NoError(t, err)
	a := s.newItem(t, doc, "a")
	b := s.newItem(t, doc, "b")
	require.NoError(t, container.InsertSubObject(a, "items", Int(-1)))
	require.NoError(t, container.InsertSubObject(b, "items", Int(-1)))

	g := NewGraph()
	d, diff := addedItem(g, "d")
	diff = append(diff,
		DiffOperation{Op: NodeRemoved, Node: a.ID()},
		DiffOperation{Op: PropertyChanged, Node: container.ID(), Property: "items", Value: IDs(d, b.ID())},
	)

	p := NewPatcher(doc, g, s.types)
	require.Equal(t, 2, p.ApplyDiffToObject(container, diff))

	require.Equal(t, []uuid.UUID{d, b.ID()}, itemIDs(container, "items"))
	added := doc.LookupObject(d)
	require.NotNil(t, added)
	require.False(t, added.IsAttached())
	require.Same(t, container, added.Parent())
	require.Nil(t, doc.LookupObject(a.ID()))
}
