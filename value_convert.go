package objgraph

import (
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ConvertTo converts v to the target kind. Numeric kinds convert between each
// other (floats truncate toward zero, out of range values fail), booleans map
// to 0/1, strings parse and format, and identifiers round-trip through their
// string spelling. Collections and typed blobs only convert to their own kind.
func (v Value) ConvertTo(target Kind) (Value, bool) {
	if v.kind == target {
		return v, v.kind != KindInvalid
	}
	if v.kind == KindInvalid || target == KindInvalid {
		return Value{}, false
	}

	switch {
	case target == KindBool:
		return v.toBool()
	case target.isSigned():
		return v.toSigned(target)
	case target.isUnsigned():
		return v.toUnsigned(target)
	case target.isFloat():
		return v.toFloat(target)
	case target == KindString:
		return v.toString()
	case target == KindUUID:
		if v.kind != KindString {
			return Value{}, false
		}
		id, err := uuid.Parse(strings.TrimSpace(v.data.(string)))
		if err != nil {
			return Value{}, false
		}
		return UUID(id), true
	}
	return Value{}, false
}

// CanConvertTo reports whether ConvertTo would succeed.
func (v Value) CanConvertTo(target Kind) bool {
	_, ok := v.ConvertTo(target)
	return ok
}

// Zero returns the zero value for kind: false, 0, "", uuid.Nil or an empty
// collection. Typed blobs and invalid kinds yield an invalid Value.
func Zero(kind Kind) Value {
	switch {
	case kind == KindBool:
		return Bool(false)
	case kind.isSigned():
		return Value{kind: kind, data: int64(0)}
	case kind.isUnsigned():
		return Value{kind: kind, data: uint64(0)}
	case kind.isFloat():
		return Value{kind: kind, data: float64(0)}
	case kind == KindString:
		return String("")
	case kind == KindUUID:
		return UUID(uuid.Nil)
	case kind == KindArray:
		return Array()
	case kind == KindDictionary:
		return Dictionary(nil)
	}
	return Value{}
}

func (v Value) toBool() (Value, bool) {
	switch {
	case v.kind.isSigned():
		return Bool(v.data.(int64) != 0), true
	case v.kind.isUnsigned():
		return Bool(v.data.(uint64) != 0), true
	case v.kind.isFloat():
		return Bool(v.data.(float64) != 0), true
	case v.kind == KindString:
		b, err := strconv.ParseBool(strings.TrimSpace(v.data.(string)))
		if err != nil {
			return Value{}, false
		}
		return Bool(b), true
	}
	return Value{}, false
}

func (v Value) toSigned(target Kind) (Value, bool) {
	switch {
	case v.kind == KindBool:
		if v.data.(bool) {
			return signedOf(target, 1)
		}
		return signedOf(target, 0)
	case v.kind.isSigned():
		return signedOf(target, v.data.(int64))
	case v.kind.isUnsigned():
		u := v.data.(uint64)
		if u > math.MaxInt64 {
			return Value{}, false
		}
		return signedOf(target, int64(u))
	case v.kind.isFloat():
		f, ok := truncate(v.data.(float64), math.MinInt64, math.MaxInt64)
		if !ok {
			return Value{}, false
		}
		return signedOf(target, int64(f))
	case v.kind == KindString:
		s := strings.TrimSpace(v.data.(string))
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return signedOf(target, i)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float64(f).toSigned(target)
		}
	}
	return Value{}, false
}

func (v Value) toUnsigned(target Kind) (Value, bool) {
	switch {
	case v.kind == KindBool:
		if v.data.(bool) {
			return unsignedOf(target, 1)
		}
		return unsignedOf(target, 0)
	case v.kind.isSigned():
		i := v.data.(int64)
		if i < 0 {
			return Value{}, false
		}
		return unsignedOf(target, uint64(i))
	case v.kind.isUnsigned():
		return unsignedOf(target, v.data.(uint64))
	case v.kind.isFloat():
		f, ok := truncate(v.data.(float64), 0, math.MaxUint64)
		if !ok {
			return Value{}, false
		}
		return unsignedOf(target, uint64(f))
	case v.kind == KindString:
		s := strings.TrimSpace(v.data.(string))
		if u, err := strconv.ParseUint(s, 10, 64); err == nil {
			return unsignedOf(target, u)
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return Float64(f).toUnsigned(target)
		}
	}
	return Value{}, false
}

func (v Value) toFloat(target Kind) (Value, bool) {
	var f float64
	switch {
	case v.kind == KindBool:
		if v.data.(bool) {
			f = 1
		}
	case v.kind.isSigned():
		f = float64(v.data.(int64))
	case v.kind.isUnsigned():
		f = float64(v.data.(uint64))
	case v.kind.isFloat():
		f = v.data.(float64)
	case v.kind == KindString:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.data.(string)), 64)
		if err != nil {
			return Value{}, false
		}
		f = parsed
	default:
		return Value{}, false
	}
	if target == KindFloat32 {
		if math.Abs(f) > math.MaxFloat32 && !math.IsInf(f, 0) {
			return Value{}, false
		}
		return Float32(float32(f)), true
	}
	return Float64(f), true
}

func (v Value) toString() (Value, bool) {
	switch {
	case v.kind == KindBool:
		return String(strconv.FormatBool(v.data.(bool))), true
	case v.kind.isSigned():
		return String(strconv.FormatInt(v.data.(int64), 10)), true
	case v.kind.isUnsigned():
		return String(strconv.FormatUint(v.data.(uint64), 10)), true
	case v.kind == KindFloat32:
		return String(strconv.FormatFloat(v.data.(float64), 'g', -1, 32)), true
	case v.kind == KindFloat64:
		return String(strconv.FormatFloat(v.data.(float64), 'g', -1, 64)), true
	case v.kind == KindUUID:
		return String(v.data.(uuid.UUID).String()), true
	}
	return Value{}, false
}

// truncate drops the fractional part and checks the result lies in [lo, hi].
func truncate(f, lo, hi float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	t := math.Trunc(f)
	if t < lo || t >= hi+1 {
		return 0, false
	}
	return t, true
}

func signedOf(kind Kind, i int64) (Value, bool) {
	var lo, hi int64
	switch kind {
	case KindInt8:
		lo, hi = math.MinInt8, math.MaxInt8
	case KindInt16:
		lo, hi = math.MinInt16, math.MaxInt16
	case KindInt32:
		lo, hi = math.MinInt32, math.MaxInt32
	default:
		lo, hi = math.MinInt64, math.MaxInt64
	}
	if i < lo || i > hi {
		return Value{}, false
	}
	return Value{kind: kind, data: i}, true
}

func unsignedOf(kind Kind, u uint64) (Value, bool) {
	var hi uint64
	switch kind {
	case KindUint8:
		hi = math.MaxUint8
	case KindUint16:
		hi = math.MaxUint16
	case KindUint32:
		hi = math.MaxUint32
	default:
		hi = math.MaxUint64
	}
	if u > hi {
		return Value{}, false
	}
	return Value{kind: kind, data: u}, true
}

// indexOf interprets v as an unsigned collection index.
func indexOf(v Value) (int, bool) {
	converted, ok := v.ConvertTo(KindUint32)
	if !ok {
		return 0, false
	}
	return int(converted.data.(uint64)), true
}
