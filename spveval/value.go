package spveval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// Value is a runtime value of the evaluator. Float scalars and vectors are
// held in Floats, integer and boolean scalars and vectors in Uints. Structs,
// matrices and arrays hold their members in Members.
type Value struct {
	Floats  []float32
	Uints   []uint32
	Members []Value
}

// Float returns a float scalar value.
func Float(v float32) Value { return Value{Floats: []float32{v}} }

// Uint returns an integer scalar value.
func Uint(v uint32) Value { return Value{Uints: []uint32{v}} }

// Vec2 returns a 2 component float vector value.
func Vec2(v ms2.Vec) Value { return Value{Floats: []float32{v.X, v.Y}} }

// Vec3 returns a 3 component float vector value.
func Vec3(v ms3.Vec) Value { return Value{Floats: []float32{v.X, v.Y, v.Z}} }

// Struct returns a composite of members.
func Struct(members ...Value) Value { return Value{Members: members} }

// Parameter returns the {hash, value} composite runtime parameters are
// passed as.
func Parameter(hash uint32, v Value) Value { return Struct(Uint(hash), v) }

// AsFloat returns the value of a float scalar.
func (v Value) AsFloat() (float32, error) {
	if len(v.Floats) != 1 {
		return 0, fmt.Errorf("want float scalar, got %s", v)
	}
	return v.Floats[0], nil
}

// AsVec2 returns the value of a 2 component float vector.
func (v Value) AsVec2() (ms2.Vec, error) {
	if len(v.Floats) != 2 {
		return ms2.Vec{}, fmt.Errorf("want 2 component vector, got %s", v)
	}
	return ms2.Vec{X: v.Floats[0], Y: v.Floats[1]}, nil
}

// AsVec3 returns the value of a 3 component float vector.
func (v Value) AsVec3() (ms3.Vec, error) {
	if len(v.Floats) != 3 {
		return ms3.Vec{}, fmt.Errorf("want 3 component vector, got %s", v)
	}
	return ms3.Vec{X: v.Floats[0], Y: v.Floats[1], Z: v.Floats[2]}, nil
}

// IsZero reports whether v holds nothing, as returned by void functions.
func (v Value) IsZero() bool {
	return len(v.Floats) == 0 && len(v.Uints) == 0 && len(v.Members) == 0
}

func (v Value) String() string {
	var sb strings.Builder
	v.appendString(&sb)
	return sb.String()
}

func (v Value) appendString(sb *strings.Builder) {
	switch {
	case v.Members != nil:
		sb.WriteByte('{')
		for i, m := range v.Members {
			if i > 0 {
				sb.WriteString(", ")
			}
			m.appendString(sb)
		}
		sb.WriteByte('}')
	case len(v.Floats) == 1:
		sb.WriteString(strconv.FormatFloat(float64(v.Floats[0]), 'g', -1, 32))
	case len(v.Floats) > 1:
		sb.WriteByte('(')
		for i, f := range v.Floats {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.FormatFloat(float64(f), 'g', -1, 32))
		}
		sb.WriteByte(')')
	case len(v.Uints) == 1:
		sb.WriteString(strconv.FormatUint(uint64(v.Uints[0]), 10))
	case len(v.Uints) > 1:
		sb.WriteByte('(')
		for i, u := range v.Uints {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(strconv.FormatUint(uint64(u), 10))
		}
		sb.WriteByte(')')
	default:
		sb.WriteString("void")
	}
}

// element returns the i'th component or member of a composite.
func (v Value) element(i uint32) (Value, error) {
	switch {
	case v.Members != nil:
		if int(i) < len(v.Members) {
			return v.Members[i], nil
		}
	case len(v.Floats) > 1:
		if int(i) < len(v.Floats) {
			return Float(v.Floats[i]), nil
		}
	case len(v.Uints) > 1:
		if int(i) < len(v.Uints) {
			return Uint(v.Uints[i]), nil
		}
	}
	return Value{}, fmt.Errorf("index %d out of range for %s", i, v)
}
