package objgraph

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newPointType() *Type {
	return NewType("Point", 1, nil,
		Property{Name: "x", Category: CategoryMember, Kind: KindInt32, Default: Int(0)},
		Property{Name: "tags", Category: CategorySet, Kind: KindString},
	)
}

func TestAccessorPointScenario(t *testing.T) {
	a := NewAccessor(newPointType())

	require.True(t, a.GetValue("x").Equal(Int32(0)))
	require.True(t, a.SetValue("x", Int(5)))
	require.Equal(t, int64(5), a.GetValue("x").AsInt())

	require.True(t, a.InsertValue("tags", Int(0), String("a")))
	require.True(t, a.InsertValue("tags", Int(1), String("b")))
	require.Equal(t, 2, a.GetCount("tags"))
	require.Equal(t, []Value{Uint32(0), Uint32(1)}, a.GetKeys("tags"))

	require.True(t, a.RemoveValue("tags", Int(0)))
	require.Equal(t, 1, a.GetCount("tags"))
	require.Equal(t, "b", a.GetValueAt("tags", Int(0)).AsString())
}

func TestAccessorUnknownAndMismatched(t *testing.T) {
	a := NewAccessor(newPointType())

	require.False(t, a.GetValue("missing").IsValid())
	require.False(t, a.SetValue("missing", Int(1)))
	require.Equal(t, -1, a.GetCount("missing"))
	require.Equal(t, -1, a.GetCount("x"), "members are not collections")
	require.Nil(t, a.GetKeys("x"))

	require.False(t, a.SetValue("x", String("five")), "unconvertible value")
	require.False(t, a.SetValue("x", Int(1<<40)), "out of range for int32")
	require.Equal(t, int64(0), a.GetValue("x").AsInt(), "failed writes leave the slot alone")

	require.True(t, a.SetValue("x", String("12")), "lenient string parse")
	require.True(t, a.SetValue("x", Float64(7.9)), "lenient float truncation")
	require.Equal(t, int64(7), a.GetValue("x").AsInt())
}

func TestAccessorCollectionBounds(t *testing.T) {
	a := NewAccessor(newPointType())
	require.False(t, a.InsertValue("tags", Int(1), String("a")), "index beyond count")
	require.False(t, a.InsertValue("tags", Int(-1), String("a")), "negative index")
	require.True(t, a.InsertValue("tags", Int(0), String("a")))

	require.False(t, a.GetValueAt("tags", Int(3)).IsValid())
	require.False(t, a.GetValueAt("tags", String("zero")).IsValid())
	require.Equal(t, 1, a.GetValueAt("tags", Value{}).Len(), "absent index yields the whole sequence")

	require.False(t, a.RemoveValue("tags", Int(1)))
	require.False(t, a.SetValueAt("tags", String("z"), Int(4)))
	require.True(t, a.SetValueAt("tags", String("z"), Uint8(0)))
	require.Equal(t, "z", a.GetValueAt("tags", Int(0)).AsString())
}

func TestAccessorMaps(t *testing.T) {
	s := newScene()
	a := NewAccessor(s.container)

	require.True(t, a.InsertValue("labels", String("en"), String("hello")))
	require.True(t, a.InsertValue("labels", String("de"), String("hallo")))
	require.False(t, a.InsertValue("labels", String("en"), String("again")), "key already present")
	require.False(t, a.InsertValue("labels", Int(0), String("x")), "maps need string keys")

	require.Equal(t, []Value{String("de"), String("en")}, a.GetKeys("labels"))
	require.Equal(t, "hallo", a.GetValueAt("labels", String("de")).AsString())
	require.False(t, a.GetValueAt("labels", String("fr")).IsValid())

	require.True(t, a.SetValueAt("labels", String("servus"), String("de")))
	require.False(t, a.SetValueAt("labels", String("salut"), String("fr")), "set needs an existing key")

	require.True(t, a.MoveValue("labels", String("de"), String("at")))
	require.Equal(t, "servus", a.GetValueAt("labels", String("at")).AsString())
	require.False(t, a.GetValueAt("labels", String("de")).IsValid())
	require.True(t, a.MoveValue("labels", String("at"), String("at")))

	require.Equal(t, String("en"), a.GetPropertyChildIndex("labels", String("hello")))
	require.True(t, a.RemoveValue("labels", String("en")))
	require.False(t, a.RemoveValue("labels", String("en")))
	require.Equal(t, 1, a.GetCount("labels"))
}

func TestAccessorMoveShiftsByOne(t *testing.T) {
	s := newScene()
	a := NewAccessor(s.container)
	for i, score := range []int64{10, 20, 30, 40} {
		require.True(t, a.InsertValue("scores", Int(int64(i)), Int(score)))
	}

	require.True(t, a.MoveValue("scores", Int(0), Int(3)))
	require.True(t, a.GetValue("scores").Equal(Array(Int(20), Int(30), Int(10), Int(40))))

	require.True(t, a.MoveValue("scores", Int(3), Int(0)))
	require.True(t, a.GetValue("scores").Equal(Array(Int(40), Int(20), Int(30), Int(10))))

	require.False(t, a.MoveValue("scores", Int(4), Int(0)))
	require.False(t, a.MoveValue("scores", Int(0), Int(5)))

	require.Equal(t, Uint32(2), a.GetPropertyChildIndex("scores", Int(30)))
	require.Equal(t, Uint32(2), a.GetPropertyChildIndex("scores", String("30")), "needle is converted like a write")
	require.False(t, a.GetPropertyChildIndex("scores", Int(99)).IsValid())
}

func TestAccessorCopyOnWrite(t *testing.T) {
	s := newScene()
	a := NewAccessor(s.container)
	require.True(t, a.InsertValue("scores", Int(0), Int(1)))

	held := a.GetValue("scores")
	require.True(t, a.InsertValue("scores", Int(1), Int(2)))
	require.True(t, a.SetValueAt("scores", Int(5), Int(0)))

	require.Equal(t, 1, held.Len())
	require.Equal(t, int64(1), held.Index(0).AsInt())
	require.Equal(t, 2, a.GetCount("scores"))
}

func TestAccessorEnums(t *testing.T) {
	s := newScene()
	a := NewAccessor(s.container)

	require.True(t, a.GetValue("color").Equal(Int64(1)), "string default resolves to the constant")
	require.True(t, a.SetValue("color", String("Blue")))
	require.Equal(t, int64(3), a.GetValue("color").AsInt())
	require.True(t, a.SetValue("color", String("Color::Green")))
	require.Equal(t, int64(2), a.GetValue("color").AsInt())
	require.False(t, a.SetValue("color", String("Purple")))
	require.True(t, a.SetValue("color", Int(1)))

	require.True(t, a.SetValue("access", String("Read|Exec")))
	require.Equal(t, int64(5), a.GetValue("access").AsInt())
	require.Equal(t, "Read|Exec", s.access.EnumString(5))
	require.Equal(t, "Green", s.color.EnumString(2))
	require.Equal(t, "9", s.color.EnumString(9))
}

func TestAccessorTypedBlobs(t *testing.T) {
	curve := NewType("CurveHolder", 1, nil,
		Property{Name: "curve", Category: CategoryMember, Kind: KindTypedObject, Default: Typed("Curve", nil)},
	)
	a := NewAccessor(curve)

	require.Equal(t, "Curve", a.GetValue("curve").TypeName())
	require.False(t, a.SetValue("curve", Typed("Mesh", []float64{1})), "blob type must match exactly")
	require.False(t, a.SetValue("curve", String("Curve")))
	require.True(t, a.SetValue("curve", Typed("Curve", []float64{0, 1})))
	blob, ok := a.GetValue("curve").AsTypedObject()
	require.True(t, ok)
	require.Equal(t, []float64{0, 1}, blob.Data)
}

func TestAccessorIgnoresConstants(t *testing.T) {
	s := newScene()
	a := NewAccessor(s.container)
	require.False(t, a.GetValue("revision").IsValid())
	require.False(t, a.SetValue("revision", Int(1)))
}
