package algae

import (
	"fmt"

	"github.com/soypat/algae/spirv"
	"github.com/soypat/algae/spvfi"
	"github.com/soypat/geometry/ms3"
)

// Length computes the euclidean length of a float32 vector.
type Length[I, V any] struct {
	Of Operation[I, DataID[V]]
}

func (op Length[I, V]) Serialize(s *Serializer, input I) DataID[float32] {
	vectorType[V]("Length")
	v := op.Of.Serialize(s, input)
	return DataID[float32]{ID: s.extInst(s.TypeID(f32), spirv.GLSLLength, v.ID)}
}

// Normalize scales a float32 vector to unit length.
type Normalize[I, V any] struct {
	Of Operation[I, DataID[V]]
}

func (op Normalize[I, V]) Serialize(s *Serializer, input I) DataID[V] {
	vt := vectorType[V]("Normalize")
	v := op.Of.Serialize(s, input)
	return DataID[V]{ID: s.extInst(s.TypeID(vt), spirv.GLSLNormalize, v.ID)}
}

// Cross computes the cross product A × B of 3D vectors.
type Cross[I any] struct {
	A, B Operation[I, DataID[ms3.Vec]]
}

func (op Cross[I]) Serialize(s *Serializer, input I) DataID[ms3.Vec] {
	a := op.A.Serialize(s, input)
	b := op.B.Serialize(s, input)
	return DataID[ms3.Vec]{ID: s.extInst(s.TypeID(vec3), spirv.GLSLCross, a.ID, b.ID)}
}

// VectorElementSelect extracts the element at Index of a float32 vector.
// It panics if Index is not less than the vector's component count.
type VectorElementSelect[I, V any] struct {
	Of    Operation[I, DataID[V]]
	Index uint32
}

func (op VectorElementSelect[I, V]) Serialize(s *Serializer, input I) DataID[float32] {
	vt := vectorType[V]("VectorElementSelect")
	if op.Index >= vt.Count {
		panic(fmt.Sprintf("VectorElementSelect: index %d out of range for vector of %d elements", op.Index, vt.Count))
	}
	v := op.Of.Serialize(s, input)
	return DataID[float32]{ID: s.b.CompositeExtract(s.TypeID(f32), v.ID, op.Index)}
}

// vectorType returns the runtime type of V, which must be a vector of float32.
func vectorType[V any](op string) spvfi.Vector {
	t := RuntimeType[V]()
	vt, ok := t.(spvfi.Vector)
	if !ok || !spvfi.Equal(vt.Elem, f32) {
		panic(fmt.Sprintf("%s: want float32 vector, got %s", op, t))
	}
	return vt
}
