package spvfi

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/soypat/algae/spirv"
)

var (
	// ErrNoTypeInstruction is returned when parsing an instruction that
	// neither declares a type nor a scalar constant.
	ErrNoTypeInstruction = errors.New("instruction does not declare a type")
	// ErrTypeUnparsable is returned for type declarations with an unexpected
	// operand shape, unresolvable operand ids or no [InstructionType] equivalent.
	ErrTypeUnparsable = errors.New("type unparsable")
)

// InstructionType is the runtime representation of a SPIR-V type. It is
// either parsed from a module with [ParseType] or derived from a Go type.
// The literal variants carry the value of a scalar OpConstant.
type InstructionType interface {
	String() string
	instructionType()
}

type (
	Void struct{}
	Bool struct{}
	Int  struct {
		Signed bool
		// Width in bits.
		Width uint32
	}
	Float struct {
		// Width in bits.
		Width uint32
	}
	Vector struct {
		Elem  InstructionType
		Count uint32
	}
	// Matrix is a column major matrix of Width columns, each a vector of
	// Height elements of type Elem.
	Matrix struct {
		Elem   InstructionType
		Width  uint32
		Height uint32
	}
	Struct struct {
		Fields []InstructionType
	}
	Array struct {
		Elem  InstructionType
		Count uint32
	}
	LiteralFloat32 float32
	LiteralFloat64 float64
	LiteralInt32   uint32
	LiteralInt64   uint64
)

func (Void) instructionType()           {}
func (Bool) instructionType()           {}
func (Int) instructionType()            {}
func (Float) instructionType()          {}
func (Vector) instructionType()         {}
func (Matrix) instructionType()         {}
func (Struct) instructionType()         {}
func (Array) instructionType()          {}
func (LiteralFloat32) instructionType() {}
func (LiteralFloat64) instructionType() {}
func (LiteralInt32) instructionType()   {}
func (LiteralInt64) instructionType()   {}

func (Void) String() string { return "void" }
func (Bool) String() string { return "bool" }

func (t Int) String() string {
	if t.Signed {
		return "i" + strconv.Itoa(int(t.Width))
	}
	return "u" + strconv.Itoa(int(t.Width))
}

func (t Float) String() string { return "f" + strconv.Itoa(int(t.Width)) }

func (t Vector) String() string {
	return "vec" + strconv.Itoa(int(t.Count)) + "<" + typeString(t.Elem) + ">"
}

func (t Matrix) String() string {
	return "mat" + strconv.Itoa(int(t.Width)) + "x" + strconv.Itoa(int(t.Height)) + "<" + typeString(t.Elem) + ">"
}

func (t Struct) String() string {
	var sb strings.Builder
	sb.WriteString("struct{")
	for i, f := range t.Fields {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(typeString(f))
	}
	sb.WriteByte('}')
	return sb.String()
}

func (t Array) String() string {
	return "[" + strconv.Itoa(int(t.Count)) + "]" + typeString(t.Elem)
}

func (l LiteralFloat32) String() string {
	return "literal f32 " + strconv.FormatFloat(float64(l), 'g', -1, 32)
}
func (l LiteralFloat64) String() string {
	return "literal f64 " + strconv.FormatFloat(float64(l), 'g', -1, 64)
}
func (l LiteralInt32) String() string { return "literal i32 " + strconv.FormatUint(uint64(l), 10) }
func (l LiteralInt64) String() string { return "literal i64 " + strconv.FormatUint(uint64(l), 10) }

func typeString(t InstructionType) string {
	if t == nil {
		return "<nil>"
	}
	return t.String()
}

// Equal reports whether a and b describe the same type. Structs are equal
// when they have the same number of fields and their fields are pairwise
// equal. Literals are equal when they have the same variant and raw value.
func Equal(a, b InstructionType) bool {
	switch a := a.(type) {
	case Void:
		_, ok := b.(Void)
		return ok
	case Bool:
		_, ok := b.(Bool)
		return ok
	case Int:
		bb, ok := b.(Int)
		return ok && a == bb
	case Float:
		bb, ok := b.(Float)
		return ok && a == bb
	case Vector:
		bb, ok := b.(Vector)
		return ok && a.Count == bb.Count && Equal(a.Elem, bb.Elem)
	case Matrix:
		bb, ok := b.(Matrix)
		return ok && a.Width == bb.Width && a.Height == bb.Height && Equal(a.Elem, bb.Elem)
	case Struct:
		bb, ok := b.(Struct)
		if !ok || len(a.Fields) != len(bb.Fields) {
			return false
		}
		for i := range a.Fields {
			if !Equal(a.Fields[i], bb.Fields[i]) {
				return false
			}
		}
		return true
	case Array:
		bb, ok := b.(Array)
		return ok && a.Count == bb.Count && Equal(a.Elem, bb.Elem)
	case LiteralFloat32:
		bb, ok := b.(LiteralFloat32)
		return ok && math.Float32bits(float32(a)) == math.Float32bits(float32(bb))
	case LiteralFloat64:
		bb, ok := b.(LiteralFloat64)
		return ok && math.Float64bits(float64(a)) == math.Float64bits(float64(bb))
	case LiteralInt32:
		bb, ok := b.(LiteralInt32)
		return ok && a == bb
	case LiteralInt64:
		bb, ok := b.(LiteralInt64)
		return ok && a == bb
	}
	return false
}

// ParseType parses the type declared by inst in the context of module m.
// A scalar OpConstant parses into the literal variant matching its declared type.
func ParseType(m *spirv.Module, inst *spirv.Instruction) (InstructionType, error) {
	if !isTypeOrConstant(inst.Opcode) {
		return nil, fmt.Errorf("%w: %s", ErrNoTypeInstruction, inst.Opcode)
	}
	ops := inst.Operands
	switch inst.Opcode {
	case spirv.OpConstant:
		return parseLiteral(m, inst)
	case spirv.OpTypeVoid:
		return Void{}, nil
	case spirv.OpTypeBool:
		return Bool{}, nil
	case spirv.OpTypeInt:
		if len(ops) != 2 || ops[1] > 1 {
			return nil, unparsablef(inst, "want width and signedness 0 or 1")
		}
		return Int{Width: ops[0], Signed: ops[1] == 1}, nil
	case spirv.OpTypeFloat:
		if len(ops) < 1 {
			return nil, unparsablef(inst, "missing width")
		}
		return Float{Width: ops[0]}, nil
	case spirv.OpTypeVector:
		if len(ops) != 2 {
			return nil, unparsablef(inst, "want component type and count")
		}
		elem, err := parseID(m, ops[0])
		if err != nil {
			return nil, err
		}
		return Vector{Elem: elem, Count: ops[1]}, nil
	case spirv.OpTypeMatrix:
		if len(ops) != 2 {
			return nil, unparsablef(inst, "want column type and count")
		}
		col, err := parseID(m, ops[0])
		if err != nil {
			return nil, err
		}
		vec, ok := col.(Vector)
		if !ok {
			return nil, unparsablef(inst, "column type %s is not a vector", col)
		}
		return Matrix{Elem: vec.Elem, Width: ops[1], Height: vec.Count}, nil
	case spirv.OpTypeStruct:
		fields := make([]InstructionType, len(ops))
		for i, id := range ops {
			field, err := parseID(m, id)
			if err != nil {
				return nil, err
			}
			fields[i] = field
		}
		return Struct{Fields: fields}, nil
	case spirv.OpTypeArray:
		if len(ops) != 2 {
			return nil, unparsablef(inst, "want element type and length")
		}
		elem, err := parseID(m, ops[0])
		if err != nil {
			return nil, err
		}
		length, err := parseID(m, ops[1])
		if err != nil {
			return nil, err
		}
		n, ok := length.(LiteralInt32)
		if !ok {
			return nil, unparsablef(inst, "array length %s is not a 32 bit integer constant", length)
		}
		return Array{Elem: elem, Count: uint32(n)}, nil
	}
	return nil, unparsablef(inst, "no equivalent type")
}

func parseLiteral(m *spirv.Module, inst *spirv.Instruction) (InstructionType, error) {
	typ := m.Global(inst.ResultType)
	if typ == nil {
		return nil, unparsablef(inst, "constant type %%%d not found", inst.ResultType)
	}
	ops := inst.Operands
	if len(typ.Operands) == 0 || (len(ops) != 1 && len(ops) != 2) {
		return nil, unparsablef(inst, "bad literal shape")
	}
	width := typ.Operands[0]
	switch {
	case typ.Opcode == spirv.OpTypeFloat && width == 32 && len(ops) == 1:
		return LiteralFloat32(math.Float32frombits(ops[0])), nil
	case typ.Opcode == spirv.OpTypeFloat && width == 64 && len(ops) == 2:
		return LiteralFloat64(math.Float64frombits(uint64(ops[1])<<32 | uint64(ops[0]))), nil
	case typ.Opcode == spirv.OpTypeInt && width == 32 && len(ops) == 1:
		return LiteralInt32(ops[0]), nil
	case typ.Opcode == spirv.OpTypeInt && width == 64 && len(ops) == 2:
		return LiteralInt64(uint64(ops[1])<<32 | uint64(ops[0])), nil
	}
	return nil, unparsablef(inst, "constant is neither 32/64 bit int nor float")
}

func parseID(m *spirv.Module, id uint32) (InstructionType, error) {
	inst := m.Global(id)
	if inst == nil {
		return nil, fmt.Errorf("%w: operand %%%d not declared", ErrTypeUnparsable, id)
	}
	return ParseType(m, inst)
}

func unparsablef(inst *spirv.Instruction, format string, args ...any) error {
	return fmt.Errorf("%w: %s %%%d: %s", ErrTypeUnparsable, inst.Opcode, inst.ResultID, fmt.Sprintf(format, args...))
}

func isTypeOrConstant(op spirv.OpCode) bool {
	return op == spirv.OpConstant || (op >= spirv.OpTypeVoid && op <= spirv.OpTypeFunction)
}

// TypeID returns the id of t in the builder's module, declaring t and its
// component types if needed. Literal variants have no type id and return false.
func TypeID(t InstructionType, b *spirv.Builder) (uint32, bool) {
	switch t := t.(type) {
	case Void:
		return b.TypeVoid(), true
	case Bool:
		return b.TypeBool(), true
	case Int:
		return b.TypeInt(t.Width, t.Signed), true
	case Float:
		return b.TypeFloat(t.Width), true
	case Vector:
		elem, ok := TypeID(t.Elem, b)
		if !ok {
			return 0, false
		}
		return b.TypeVector(elem, t.Count), true
	case Matrix:
		col, ok := TypeID(Vector{Elem: t.Elem, Count: t.Height}, b)
		if !ok {
			return 0, false
		}
		return b.TypeMatrix(col, t.Width), true
	case Struct:
		members := make([]uint32, len(t.Fields))
		for i, f := range t.Fields {
			id, ok := TypeID(f, b)
			if !ok {
				return 0, false
			}
			members[i] = id
		}
		return b.TypeStruct(members...), true
	case Array:
		elem, ok := TypeID(t.Elem, b)
		if !ok {
			return 0, false
		}
		length := b.ConstantU32(b.TypeInt(32, false), t.Count)
		return b.TypeArray(elem, length), true
	}
	return 0, false
}
