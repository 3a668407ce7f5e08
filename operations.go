// Package algae compiles trees of algebraic operations into SPIR-V
// instructions. Trees are built from [Operation] nodes and serialized
// through a [Serializer] into the function of a compiled module, where
// named [Variable] nodes bind to the function's runtime parameters.
package algae

// Constant is a leaf emitting Value as a constant. The input is ignored.
type Constant[I, T any] struct {
	Value T
}

func (op Constant[I, T]) Serialize(s *Serializer, _ I) DataID[T] {
	return ConstantOf(s, op.Value)
}

// Variable is a leaf reading the runtime parameter called Name from the
// function interface. When the function has no such parameter of type T
// Default is emitted as a constant instead.
type Variable[I, T any] struct {
	Name    string
	Default T
}

func (op Variable[I, T]) Serialize(s *Serializer, _ I) DataID[T] {
	return GetVariable(s, op.Name, op.Default)
}

// Ref is a leaf returning a previously computed result.
type Ref[I, T any] struct {
	Data DataID[T]
}

func (op Ref[I, T]) Serialize(*Serializer, I) DataID[T] { return op.Data }

// ReturnInput returns its input unchanged.
type ReturnInput[T any] struct{}

func (ReturnInput[T]) Serialize(_ *Serializer, input DataID[T]) DataID[T] { return input }

// Link serializes First with the input, then Second with First's result.
type Link[I, M, O any] struct {
	First  Operation[I, M]
	Second Operation[M, O]
}

func (op Link[I, M, O]) Serialize(s *Serializer, input I) O {
	return op.Second.Serialize(s, op.First.Serialize(s, input))
}

// MapInput transforms the input with Map before serializing Inner with it.
type MapInput[I, N, O any] struct {
	Inner Operation[N, O]
	Map   func(I) N
}

func (op MapInput[I, N, O]) Serialize(s *Serializer, input I) O {
	return op.Inner.Serialize(s, op.Map(input))
}

var _ Operation[struct{}, DataID[float32]] = Constant[struct{}, float32]{}
var _ Operation[struct{}, DataID[float32]] = Variable[struct{}, float32]{}
var _ Operation[struct{}, DataID[float32]] = Ref[struct{}, float32]{}
var _ Operation[DataID[float32], DataID[float32]] = ReturnInput[float32]{}
var _ Operation[struct{}, DataID[float32]] = Link[struct{}, DataID[float32], DataID[float32]]{}
var _ Operation[struct{}, DataID[float32]] = MapInput[struct{}, struct{}, DataID[float32]]{}
