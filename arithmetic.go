package algae

import (
	"fmt"

	"github.com/soypat/algae/spirv"
	"github.com/soypat/algae/spvfi"
)

// Arithmetic nodes operate on float scalars and float vectors of matching
// type. Vector operands are combined component-wise by a single instruction.

// Addition computes A + B.
type Addition[I, T any] struct {
	A, B Operation[I, DataID[T]]
}

func (op Addition[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	a := op.A.Serialize(s, input)
	b := op.B.Serialize(s, input)
	return DataID[T]{ID: s.b.FAdd(floatTypeID[T](s, "Addition"), a.ID, b.ID)}
}

// Subtraction computes A - B.
type Subtraction[I, T any] struct {
	A, B Operation[I, DataID[T]]
}

func (op Subtraction[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	a := op.A.Serialize(s, input)
	b := op.B.Serialize(s, input)
	return DataID[T]{ID: s.b.FSub(floatTypeID[T](s, "Subtraction"), a.ID, b.ID)}
}

// Multiplication computes A * B.
type Multiplication[I, T any] struct {
	A, B Operation[I, DataID[T]]
}

func (op Multiplication[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	a := op.A.Serialize(s, input)
	b := op.B.Serialize(s, input)
	return DataID[T]{ID: s.b.FMul(floatTypeID[T](s, "Multiplication"), a.ID, b.ID)}
}

// Division computes A / B.
type Division[I, T any] struct {
	A, B Operation[I, DataID[T]]
}

func (op Division[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	a := op.A.Serialize(s, input)
	b := op.B.Serialize(s, input)
	return DataID[T]{ID: s.b.FDiv(floatTypeID[T](s, "Division"), a.ID, b.ID)}
}

// Square computes Of * Of, serializing Of once.
type Square[I, T any] struct {
	Of Operation[I, DataID[T]]
}

func (op Square[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	v := op.Of.Serialize(s, input)
	return DataID[T]{ID: s.b.FMul(floatTypeID[T](s, "Square"), v.ID, v.ID)}
}

// Sqrt computes the square root of Of.
type Sqrt[I, T any] struct {
	Of Operation[I, DataID[T]]
}

func (op Sqrt[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	return unaryExt[T](s, "Sqrt", spirv.GLSLSqrt, op.Of.Serialize(s, input))
}

// Abs computes the absolute value of Of.
type Abs[I, T any] struct {
	Of Operation[I, DataID[T]]
}

func (op Abs[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	return unaryExt[T](s, "Abs", spirv.GLSLFAbs, op.Of.Serialize(s, input))
}

// Max computes the larger of A and B, component-wise for vectors.
type Max[I, T any] struct {
	A, B Operation[I, DataID[T]]
}

func (op Max[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	a := op.A.Serialize(s, input)
	b := op.B.Serialize(s, input)
	return DataID[T]{ID: s.extInst(floatTypeID[T](s, "Max"), spirv.GLSLFMax, a.ID, b.ID)}
}

// Min computes the smaller of A and B, component-wise for vectors.
type Min[I, T any] struct {
	A, B Operation[I, DataID[T]]
}

func (op Min[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	a := op.A.Serialize(s, input)
	b := op.B.Serialize(s, input)
	return DataID[T]{ID: s.extInst(floatTypeID[T](s, "Min"), spirv.GLSLFMin, a.ID, b.ID)}
}

// Sine computes sin(Of) in radians.
type Sine[I, T any] struct {
	Of Operation[I, DataID[T]]
}

func (op Sine[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	return unaryExt[T](s, "Sine", spirv.GLSLSin, op.Of.Serialize(s, input))
}

// Cosine computes cos(Of) in radians.
type Cosine[I, T any] struct {
	Of Operation[I, DataID[T]]
}

func (op Cosine[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	return unaryExt[T](s, "Cosine", spirv.GLSLCos, op.Of.Serialize(s, input))
}

// Tangent computes tan(Of) in radians.
type Tangent[I, T any] struct {
	Of Operation[I, DataID[T]]
}

func (op Tangent[I, T]) Serialize(s *Serializer, input I) DataID[T] {
	return unaryExt[T](s, "Tangent", spirv.GLSLTan, op.Of.Serialize(s, input))
}

func unaryExt[T any](s *Serializer, name string, inst uint32, v DataID[T]) DataID[T] {
	return DataID[T]{ID: s.extInst(floatTypeID[T](s, name), inst, v.ID)}
}

// floatTypeID returns the type id of T, which must be a float scalar or a
// vector of floats.
func floatTypeID[T any](s *Serializer, op string) uint32 {
	t := RuntimeType[T]()
	if !isFloat(t) {
		panic(fmt.Sprintf("%s: want float scalar or vector operands, got %s", op, t))
	}
	return s.TypeID(t)
}

func isFloat(t spvfi.InstructionType) bool {
	switch t := t.(type) {
	case spvfi.Float:
		return true
	case spvfi.Vector:
		_, ok := t.Elem.(spvfi.Float)
		return ok
	}
	return false
}
