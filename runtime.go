package algae

import (
	"fmt"
	"reflect"

	"github.com/soypat/algae/spvfi"
	"github.com/soypat/geometry/md2"
	"github.com/soypat/geometry/md3"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
)

// Vec4 is a 4 component float32 vector.
type Vec4 = [4]float32

var (
	f32  = spvfi.Float{Width: 32}
	f64  = spvfi.Float{Width: 64}
	i32  = spvfi.Int{Signed: true, Width: 32}
	i64  = spvfi.Int{Signed: true, Width: 64}
	u32  = spvfi.Int{Width: 32}
	u64  = spvfi.Int{Width: 64}
	vec2 = spvfi.Vector{Elem: f32, Count: 2}
	vec3 = spvfi.Vector{Elem: f32, Count: 3}
)

// RuntimeType returns the SPIR-V type Go values of type T are represented with.
// Supported are bool, float32, float64, int32, int64, uint32, uint64, the
// ms2/ms3/md2/md3 vectors, ms2.Mat2, ms3.Mat3, ms3.Mat4 and arrays of 2 to 4
// elements of the scalar types, i.e: [Vec4] or [3]int32.
// It panics for unsupported types.
func RuntimeType[T any]() spvfi.InstructionType {
	t, err := runtimeType(reflect.TypeFor[T]())
	if err != nil {
		panic(err.Error())
	}
	return t
}

func runtimeType(tp reflect.Type) (spvfi.InstructionType, error) {
	switch tp {
	case reflect.TypeOf(ms2.Vec{}):
		return vec2, nil
	case reflect.TypeOf(ms3.Vec{}):
		return vec3, nil
	case reflect.TypeOf(md2.Vec{}):
		return spvfi.Vector{Elem: f64, Count: 2}, nil
	case reflect.TypeOf(md3.Vec{}):
		return spvfi.Vector{Elem: f64, Count: 3}, nil
	case reflect.TypeOf(ms2.Mat2{}):
		return spvfi.Matrix{Elem: f32, Width: 2, Height: 2}, nil
	case reflect.TypeOf(ms3.Mat3{}):
		return spvfi.Matrix{Elem: f32, Width: 3, Height: 3}, nil
	case reflect.TypeOf(ms3.Mat4{}):
		return spvfi.Matrix{Elem: f32, Width: 4, Height: 4}, nil
	case nil:
		return nil, fmt.Errorf("nil type has no runtime equivalent")
	}
	switch tp.Kind() {
	case reflect.Bool:
		return spvfi.Bool{}, nil
	case reflect.Float32:
		return f32, nil
	case reflect.Float64:
		return f64, nil
	case reflect.Int32:
		return i32, nil
	case reflect.Int64:
		return i64, nil
	case reflect.Uint32:
		return u32, nil
	case reflect.Uint64:
		return u64, nil
	case reflect.Array:
		if tp.Len() < 2 || tp.Len() > 4 {
			break
		}
		elem, err := runtimeType(tp.Elem())
		if err != nil {
			return nil, err
		}
		switch elem.(type) {
		case spvfi.Float, spvfi.Int, spvfi.Bool:
			return spvfi.Vector{Elem: elem, Count: uint32(tp.Len())}, nil
		}
	}
	return nil, fmt.Errorf("equivalent type not implemented for %s", tp.String())
}

// ConstantOf emits v as a constant and returns a reference to it. Vectors
// become composite constants of their components, matrices composite
// constants of their column vectors.
func ConstantOf[T any](s *Serializer, v T) DataID[T] {
	return DataID[T]{ID: constantID(s, reflect.ValueOf(&v).Elem())}
}

func constantID(s *Serializer, v reflect.Value) uint32 {
	rt, err := runtimeType(v.Type())
	if err != nil {
		panic(err.Error())
	}
	typ := s.TypeID(rt)
	b := s.b
	switch v.Kind() {
	case reflect.Bool:
		return b.ConstantBool(typ, v.Bool())
	case reflect.Float32:
		return b.ConstantF32(typ, float32(v.Float()))
	case reflect.Float64:
		return b.ConstantF64(typ, v.Float())
	case reflect.Int32:
		return b.ConstantU32(typ, uint32(v.Int()))
	case reflect.Int64:
		return b.ConstantU64(typ, uint64(v.Int()))
	case reflect.Uint32:
		return b.ConstantU32(typ, uint32(v.Uint()))
	case reflect.Uint64:
		return b.ConstantU64(typ, v.Uint())
	}
	if m, ok := rt.(spvfi.Matrix); ok {
		return matrixConstant(s, typ, m, v)
	}
	vt, ok := rt.(spvfi.Vector)
	if !ok {
		panic("unsupported constant type " + v.Type().String())
	}
	// Geometry structs hold their components in the leading fields. The
	// 3D vectors carry a trailing padding field which is not a component.
	parts := make([]uint32, vt.Count)
	switch v.Kind() {
	case reflect.Struct:
		for i := range parts {
			parts[i] = constantID(s, v.Field(i))
		}
	case reflect.Array:
		for i := range parts {
			parts[i] = constantID(s, v.Index(i))
		}
	default:
		panic("unreachable constant kind " + v.Kind().String())
	}
	return b.ConstantComposite(typ, parts...)
}

// matrixConstant emits a matrix constant from the row major element array
// of the geometry matrix types.
func matrixConstant(s *Serializer, typ uint32, m spvfi.Matrix, v reflect.Value) uint32 {
	var elems []float32
	switch mat := v.Interface().(type) {
	case ms2.Mat2:
		arr := mat.Array()
		elems = arr[:]
	case ms3.Mat3:
		arr := mat.Array()
		elems = arr[:]
	case ms3.Mat4:
		arr := mat.Array()
		elems = arr[:]
	default:
		panic("unsupported matrix type " + v.Type().String())
	}
	b := s.b
	colType := s.TypeID(spvfi.Vector{Elem: m.Elem, Count: m.Height})
	elemType := s.TypeID(m.Elem)
	cols := make([]uint32, m.Width)
	rowLen := int(m.Width)
	for c := range cols {
		comps := make([]uint32, m.Height)
		for r := range comps {
			comps[r] = b.ConstantF32(elemType, elems[r*rowLen+c])
		}
		cols[c] = b.ConstantComposite(colType, comps...)
	}
	return b.ConstantComposite(typ, cols...)
}
