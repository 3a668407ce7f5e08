// Package spveval evaluates SPIR-V functions on the CPU. It supports the
// subset of instructions generated by algae: float arithmetic, composite
// construction and extraction, GLSL.std.450 math, function calls,
// function storage variables and unconditional branches.
//
// It serves as a reference to check generated code numerically and is not
// meant to be fast.
package spveval

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/soypat/algae/spirv"
	"github.com/soypat/algae/spvfi"
)

var (
	// ErrUnsupported is returned for instructions the evaluator does not implement.
	ErrUnsupported = errors.New("unsupported instruction")
	// ErrUndefined is returned when an operand id has no value.
	ErrUndefined = errors.New("undefined id")
)

const (
	maxCallDepth = 64
	maxSteps     = 1 << 20
)

// Call evaluates the function at index fn of m with the given arguments,
// one per function parameter, and returns its result. Void functions
// return the zero Value.
func Call(m *spirv.Module, fn int, args ...Value) (Value, error) {
	e := evaluator{m: m, globals: make(map[uint32]Value)}
	return e.call(fn, args, 0)
}

// CallByName is like [Call] with the function selected by its debug name.
func CallByName(m *spirv.Module, name string, args ...Value) (Value, error) {
	fn, ok := m.FunctionByName(name)
	if !ok {
		return Value{}, fmt.Errorf("%w: %q", spvfi.ErrFunctionNotFound, name)
	}
	return Call(m, fn, args...)
}

type evaluator struct {
	m       *spirv.Module
	globals map[uint32]Value
	steps   int
}

type frame struct {
	values map[uint32]Value
	// memory holds the contents of function storage variables by pointer id.
	memory map[uint32]Value
}

func (e *evaluator) call(fnIdx int, args []Value, depth int) (Value, error) {
	if fnIdx < 0 || fnIdx >= len(e.m.Functions) {
		return Value{}, fmt.Errorf("function index %d out of range", fnIdx)
	} else if depth > maxCallDepth {
		return Value{}, errors.New("maximum call depth exceeded")
	}
	fn := &e.m.Functions[fnIdx]
	if len(args) != len(fn.Parameters) {
		return Value{}, fmt.Errorf("function %%%d takes %d arguments, got %d", fn.ID(), len(fn.Parameters), len(args))
	} else if len(fn.Blocks) == 0 {
		return Value{}, fmt.Errorf("function %%%d has no body", fn.ID())
	}
	f := frame{values: make(map[uint32]Value), memory: make(map[uint32]Value)}
	for i, p := range fn.Parameters {
		f.values[p.ResultID] = args[i]
	}
	blk := &fn.Blocks[0]
	for {
		next, ret, done, err := e.block(&f, blk, depth)
		if err != nil {
			return Value{}, fmt.Errorf("function %%%d block %%%d: %w", fn.ID(), blk.Label.ResultID, err)
		} else if done {
			return ret, nil
		}
		blk = nil
		for i := range fn.Blocks {
			if fn.Blocks[i].Label.ResultID == next {
				blk = &fn.Blocks[i]
				break
			}
		}
		if blk == nil {
			return Value{}, fmt.Errorf("branch target %%%d not found", next)
		}
	}
}

// block evaluates the instructions of blk. It returns either the label of
// the next block or the function's return value with done set.
func (e *evaluator) block(f *frame, blk *spirv.Block, depth int) (next uint32, ret Value, done bool, err error) {
	for i := range blk.Instructions {
		e.steps++
		if e.steps > maxSteps {
			return 0, Value{}, false, errors.New("step limit exceeded")
		}
		inst := &blk.Instructions[i]
		ops := inst.Operands
		var result Value
		switch inst.Opcode {
		case spirv.OpNop, spirv.OpLine, spirv.OpNoLine, spirv.OpSelectionMerge, spirv.OpLoopMerge:
			continue
		case spirv.OpBranch:
			return ops[0], Value{}, false, nil
		case spirv.OpReturn:
			return 0, Value{}, true, nil
		case spirv.OpReturnValue:
			ret, err = e.value(f, ops[0])
			return 0, ret, err == nil, err
		case spirv.OpVariable:
			if len(ops) < 2 {
				continue
			}
			f.memory[inst.ResultID], err = e.value(f, ops[1])
			if err != nil {
				return 0, Value{}, false, err
			}
			continue
		case spirv.OpStore:
			f.memory[ops[0]], err = e.value(f, ops[1])
			if err != nil {
				return 0, Value{}, false, err
			}
			continue
		case spirv.OpLoad:
			var ok bool
			result, ok = f.memory[ops[0]]
			if !ok {
				return 0, Value{}, false, fmt.Errorf("%w: load of uninitialized pointer %%%d", ErrUndefined, ops[0])
			}
		case spirv.OpFunctionCall:
			result, err = e.functionCall(f, ops, depth)
		case spirv.OpCompositeConstruct:
			result, err = e.composite(f, inst)
		case spirv.OpCompositeExtract:
			result, err = e.extract(f, ops)
		case spirv.OpFAdd, spirv.OpFSub, spirv.OpFMul, spirv.OpFDiv:
			result, err = e.binary(f, inst)
		case spirv.OpFNegate:
			result, err = e.value(f, ops[0])
			result = mapFloats(result, func(x float32) float32 { return -x })
		case spirv.OpExtInst:
			result, err = e.extInst(f, ops)
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupported, inst.Opcode)
		}
		if err != nil {
			return 0, Value{}, false, err
		}
		if inst.ResultID != 0 {
			f.values[inst.ResultID] = result
		}
	}
	return 0, Value{}, false, errors.New("block has no terminator")
}

// value returns the value of id, evaluating global constants on first use.
func (e *evaluator) value(f *frame, id uint32) (Value, error) {
	if v, ok := f.values[id]; ok {
		return v, nil
	}
	if v, ok := e.globals[id]; ok {
		return v, nil
	}
	inst := e.m.Global(id)
	if inst == nil {
		return Value{}, fmt.Errorf("%w: %%%d", ErrUndefined, id)
	}
	var v Value
	var err error
	switch inst.Opcode {
	case spirv.OpConstant:
		v, err = e.constant(inst)
	case spirv.OpConstantTrue:
		v = Uint(1)
	case spirv.OpConstantFalse:
		v = Uint(0)
	case spirv.OpConstantComposite:
		v, err = e.composite(f, inst)
	default:
		err = fmt.Errorf("%w: global %s %%%d", ErrUnsupported, inst.Opcode, id)
	}
	if err != nil {
		return Value{}, err
	}
	e.globals[id] = v
	return v, nil
}

func (e *evaluator) constant(inst *spirv.Instruction) (Value, error) {
	lit, err := spvfi.ParseType(e.m, inst)
	if err != nil {
		return Value{}, err
	}
	switch lit := lit.(type) {
	case spvfi.LiteralFloat32:
		return Float(float32(lit)), nil
	case spvfi.LiteralInt32:
		return Uint(uint32(lit)), nil
	}
	return Value{}, fmt.Errorf("%w: %s constant", ErrUnsupported, lit)
}

// composite builds the value of an OpCompositeConstruct or OpConstantComposite.
// Vector constituents are concatenated, other composites keep their members.
func (e *evaluator) composite(f *frame, inst *spirv.Instruction) (Value, error) {
	typ := e.m.Global(inst.ResultType)
	if typ == nil {
		return Value{}, fmt.Errorf("%w: type %%%d", ErrUndefined, inst.ResultType)
	}
	parts := make([]Value, len(inst.Operands))
	for i, id := range inst.Operands {
		v, err := e.value(f, id)
		if err != nil {
			return Value{}, err
		}
		parts[i] = v
	}
	if typ.Opcode != spirv.OpTypeVector {
		return Struct(parts...), nil
	}
	var v Value
	for _, p := range parts {
		if p.Members != nil {
			return Value{}, fmt.Errorf("vector constituent %s is not a scalar or vector", p)
		}
		v.Floats = append(v.Floats, p.Floats...)
		v.Uints = append(v.Uints, p.Uints...)
	}
	return v, nil
}

func (e *evaluator) extract(f *frame, ops []uint32) (Value, error) {
	v, err := e.value(f, ops[0])
	if err != nil {
		return Value{}, err
	}
	for _, idx := range ops[1:] {
		v, err = v.element(idx)
		if err != nil {
			return Value{}, err
		}
	}
	return v, nil
}

func (e *evaluator) functionCall(f *frame, ops []uint32, depth int) (Value, error) {
	callee, ok := e.m.FunctionByID(ops[0])
	if !ok {
		return Value{}, fmt.Errorf("%w: function %%%d", ErrUndefined, ops[0])
	}
	args := make([]Value, len(ops)-1)
	for i, id := range ops[1:] {
		v, err := e.value(f, id)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}
	return e.call(callee, args, depth+1)
}

func (e *evaluator) binary(f *frame, inst *spirv.Instruction) (Value, error) {
	a, err := e.value(f, inst.Operands[0])
	if err != nil {
		return Value{}, err
	}
	b, err := e.value(f, inst.Operands[1])
	if err != nil {
		return Value{}, err
	}
	var op func(x, y float32) float32
	switch inst.Opcode {
	case spirv.OpFAdd:
		op = func(x, y float32) float32 { return x + y }
	case spirv.OpFSub:
		op = func(x, y float32) float32 { return x - y }
	case spirv.OpFMul:
		op = func(x, y float32) float32 { return x * y }
	case spirv.OpFDiv:
		op = func(x, y float32) float32 { return x / y }
	}
	return zipFloats(a, b, op)
}

func (e *evaluator) extInst(f *frame, ops []uint32) (Value, error) {
	if len(ops) < 3 {
		return Value{}, errors.New("OpExtInst missing operands")
	}
	imp := e.m.Def(ops[0])
	if imp == nil || imp.Opcode != spirv.OpExtInstImport {
		return Value{}, fmt.Errorf("%w: extended instruction set %%%d", ErrUndefined, ops[0])
	}
	if set, _ := spirv.DecodeString(imp.Operands); set != spirv.GLSLStd450 {
		return Value{}, fmt.Errorf("%w: extended instruction set %q", ErrUnsupported, set)
	}
	args := make([]Value, len(ops)-2)
	for i, id := range ops[2:] {
		v, err := e.value(f, id)
		if err != nil {
			return Value{}, err
		}
		args[i] = v
	}
	inst := ops[1]
	switch inst {
	case spirv.GLSLFAbs:
		return mapFloats(args[0], math32.Abs), nil
	case spirv.GLSLSin:
		return mapFloats(args[0], math32.Sin), nil
	case spirv.GLSLCos:
		return mapFloats(args[0], math32.Cos), nil
	case spirv.GLSLTan:
		return mapFloats(args[0], math32.Tan), nil
	case spirv.GLSLSqrt:
		return mapFloats(args[0], math32.Sqrt), nil
	case spirv.GLSLFMin, spirv.GLSLFMax:
		if len(args) != 2 {
			break
		}
		if inst == spirv.GLSLFMin {
			return zipFloats(args[0], args[1], math32.Min)
		}
		return zipFloats(args[0], args[1], math32.Max)
	case spirv.GLSLLength:
		return Float(length(args[0].Floats)), nil
	case spirv.GLSLNormalize:
		l := length(args[0].Floats)
		return mapFloats(args[0], func(x float32) float32 { return x / l }), nil
	case spirv.GLSLCross:
		if len(args) != 2 || len(args[0].Floats) != 3 || len(args[1].Floats) != 3 {
			break
		}
		a, b := args[0].Floats, args[1].Floats
		return Value{Floats: []float32{
			a[1]*b[2] - a[2]*b[1],
			a[2]*b[0] - a[0]*b[2],
			a[0]*b[1] - a[1]*b[0],
		}}, nil
	default:
		return Value{}, fmt.Errorf("%w: %s instruction %d", ErrUnsupported, spirv.GLSLStd450, inst)
	}
	return Value{}, fmt.Errorf("bad operands for %s instruction %d", spirv.GLSLStd450, inst)
}

func length(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return math32.Sqrt(sum)
}

func mapFloats(v Value, fn func(float32) float32) Value {
	out := make([]float32, len(v.Floats))
	for i, x := range v.Floats {
		out[i] = fn(x)
	}
	return Value{Floats: out}
}

func zipFloats(a, b Value, fn func(x, y float32) float32) (Value, error) {
	if len(a.Floats) != len(b.Floats) || len(a.Floats) == 0 {
		return Value{}, fmt.Errorf("float operand mismatch: %s and %s", a, b)
	}
	out := make([]float32, len(a.Floats))
	for i := range out {
		out[i] = fn(a.Floats[i], b.Floats[i])
	}
	return Value{Floats: out}, nil
}
