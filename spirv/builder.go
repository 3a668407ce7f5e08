package spirv

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// Builder appends instructions to a [Module]. Types, constants and extended
// instruction set imports are deduplicated against the module's existing
// declarations. Function level instructions are appended to the selected
// block of the selected function; emitting them with no block selected panics.
type Builder struct {
	m     *Module
	fn    int
	block int
}

// NewBuilder returns a Builder that mutates m in place. Callers that need to
// keep m intact should pass a [Module.Clone].
func NewBuilder(m *Module) *Builder {
	if m == nil {
		panic("nil module")
	}
	return &Builder{m: m, fn: -1, block: -1}
}

// Module returns the module being built.
func (b *Builder) Module() *Module { return b.m }

// ID allocates a fresh result id.
func (b *Builder) ID() uint32 {
	id := b.m.Header.Bound
	b.m.Header.Bound++
	return id
}

// SelectFunction selects the function at index fn for subsequent block and
// instruction emission. The block selection is cleared.
func (b *Builder) SelectFunction(fn int) error {
	if fn < 0 || fn >= len(b.m.Functions) {
		return fmt.Errorf("function index %d out of range [0,%d)", fn, len(b.m.Functions))
	}
	b.fn = fn
	b.block = -1
	return nil
}

// SelectedFunction returns the index of the selected function or -1.
func (b *Builder) SelectedFunction() int { return b.fn }

// SelectedBlock returns the index of the selected block within the selected function or -1.
func (b *Builder) SelectedBlock() int { return b.block }

// SelectBlock selects an existing block of the selected function.
func (b *Builder) SelectBlock(block int) error {
	if b.fn < 0 {
		return errors.New("no function selected")
	}
	if block < 0 || block >= len(b.m.Functions[b.fn].Blocks) {
		return fmt.Errorf("block index %d out of range", block)
	}
	b.block = block
	return nil
}

// BeginBlock appends a new block to the selected function and selects it.
// It returns the block's label id and its index within the function.
func (b *Builder) BeginBlock() (label uint32, index int, err error) {
	if b.fn < 0 {
		return 0, -1, errors.New("no function selected")
	}
	label = b.ID()
	index, err = b.BeginBlockWithLabel(label)
	return label, index, err
}

// BeginBlockWithLabel is like BeginBlock but uses a label id allocated
// beforehand, i.e: the target of a forward branch.
func (b *Builder) BeginBlockWithLabel(label uint32) (index int, err error) {
	if b.fn < 0 {
		return -1, errors.New("no function selected")
	}
	fn := &b.m.Functions[b.fn]
	fn.Blocks = append(fn.Blocks, Block{Label: Instruction{Opcode: OpLabel, ResultID: label}})
	b.block = len(fn.Blocks) - 1
	return b.block, nil
}

// Block returns the selected block. It panics if no block is selected.
func (b *Builder) Block() *Block {
	if b.fn < 0 || b.block < 0 {
		panic("spirv: no block selected")
	}
	return &b.m.Functions[b.fn].Blocks[b.block]
}

// Insert appends inst to the selected block.
func (b *Builder) Insert(inst Instruction) {
	blk := b.Block()
	blk.Instructions = append(blk.Instructions, inst)
}

func (b *Builder) emit(op OpCode, resultType uint32, operands ...uint32) uint32 {
	id := b.ID()
	b.Insert(Instruction{Opcode: op, ResultType: resultType, ResultID: id, Operands: slices.Clone(operands)})
	return id
}

// global appends inst to the types and global values section unless an
// identical declaration exists, in which case its id is returned.
func (b *Builder) global(op OpCode, resultType uint32, operands ...uint32) uint32 {
	for i := range b.m.TypesGlobalValues {
		inst := &b.m.TypesGlobalValues[i]
		if inst.Opcode == op && inst.ResultType == resultType && slices.Equal(inst.Operands, operands) {
			return inst.ResultID
		}
	}
	id := b.ID()
	b.m.TypesGlobalValues = append(b.m.TypesGlobalValues, Instruction{
		Opcode:     op,
		ResultType: resultType,
		ResultID:   id,
		Operands:   slices.Clone(operands),
	})
	return id
}

func (b *Builder) TypeVoid() uint32 { return b.global(OpTypeVoid, 0) }
func (b *Builder) TypeBool() uint32 { return b.global(OpTypeBool, 0) }

// TypeInt declares an integer type. 64 bit widths also declare the Int64
// capability.
func (b *Builder) TypeInt(width uint32, signed bool) uint32 {
	if width == 64 {
		b.Capability(CapabilityInt64)
	}
	var s uint32
	if signed {
		s = 1
	}
	return b.global(OpTypeInt, 0, width, s)
}

func (b *Builder) TypeFloat(width uint32) uint32 {
	if width == 64 {
		b.Capability(CapabilityFloat64)
	}
	return b.global(OpTypeFloat, 0, width)
}

func (b *Builder) TypeVector(component, count uint32) uint32 {
	return b.global(OpTypeVector, 0, component, count)
}

// TypeMatrix declares a matrix type of count columns of the column vector type.
func (b *Builder) TypeMatrix(column, count uint32) uint32 {
	return b.global(OpTypeMatrix, 0, column, count)
}

// TypeArray declares an array type. length is the id of an integer constant.
func (b *Builder) TypeArray(element, length uint32) uint32 {
	return b.global(OpTypeArray, 0, element, length)
}

func (b *Builder) TypeStruct(members ...uint32) uint32 {
	return b.global(OpTypeStruct, 0, members...)
}

func (b *Builder) TypePointer(sc StorageClass, pointee uint32) uint32 {
	return b.global(OpTypePointer, 0, uint32(sc), pointee)
}

func (b *Builder) TypeFunction(ret uint32, params ...uint32) uint32 {
	return b.global(OpTypeFunction, 0, append([]uint32{ret}, params...)...)
}

// Constant declares a scalar constant from its literal words.
func (b *Builder) Constant(typ uint32, literal ...uint32) uint32 {
	return b.global(OpConstant, typ, literal...)
}

func (b *Builder) ConstantU32(typ, v uint32) uint32 { return b.Constant(typ, v) }

func (b *Builder) ConstantF32(typ uint32, v float32) uint32 {
	return b.Constant(typ, math.Float32bits(v))
}

// ConstantF64 declares a 64 bit float constant, low order word first.
func (b *Builder) ConstantF64(typ uint32, v float64) uint32 {
	u := math.Float64bits(v)
	return b.Constant(typ, uint32(u), uint32(u>>32))
}

// ConstantU64 declares a 64 bit integer constant, low order word first.
func (b *Builder) ConstantU64(typ uint32, v uint64) uint32 {
	return b.Constant(typ, uint32(v), uint32(v>>32))
}

func (b *Builder) ConstantBool(typ uint32, v bool) uint32 {
	if v {
		return b.global(OpConstantTrue, typ)
	}
	return b.global(OpConstantFalse, typ)
}

func (b *Builder) ConstantComposite(typ uint32, constituents ...uint32) uint32 {
	return b.global(OpConstantComposite, typ, constituents...)
}

// ExtInstImport returns the id of the extended instruction set import with
// the given name, declaring it if the module does not import it yet.
func (b *Builder) ExtInstImport(name string) uint32 {
	for i := range b.m.ExtInstImports {
		inst := &b.m.ExtInstImports[i]
		if got, _ := DecodeString(inst.Operands); got == name {
			return inst.ResultID
		}
	}
	id := b.ID()
	b.m.ExtInstImports = append(b.m.ExtInstImports, Instruction{
		Opcode:   OpExtInstImport,
		ResultID: id,
		Operands: EncodeString(name),
	})
	return id
}

func (b *Builder) Capability(c Capability) {
	for _, inst := range b.m.Capabilities {
		if len(inst.Operands) == 1 && inst.Operands[0] == uint32(c) {
			return
		}
	}
	b.m.Capabilities = append(b.m.Capabilities, Instruction{Opcode: OpCapability, Operands: []uint32{uint32(c)}})
}

func (b *Builder) MemoryModel(addressing AddressingModel, memory MemoryModel) {
	b.m.MemoryModel = &Instruction{Opcode: OpMemoryModel, Operands: []uint32{uint32(addressing), uint32(memory)}}
}

func (b *Builder) EntryPoint(model ExecutionModel, fn uint32, name string, interfaces ...uint32) {
	ops := append([]uint32{uint32(model), fn}, EncodeString(name)...)
	b.m.EntryPoints = append(b.m.EntryPoints, Instruction{Opcode: OpEntryPoint, Operands: append(ops, interfaces...)})
}

func (b *Builder) ExecutionMode(entry uint32, mode ExecutionMode, params ...uint32) {
	ops := append([]uint32{entry, uint32(mode)}, params...)
	b.m.ExecutionModes = append(b.m.ExecutionModes, Instruction{Opcode: OpExecutionMode, Operands: ops})
}

// Name assigns a debug name to id.
func (b *Builder) Name(id uint32, name string) {
	ops := append([]uint32{id}, EncodeString(name)...)
	b.m.DebugNames = append(b.m.DebugNames, Instruction{Opcode: OpName, Operands: ops})
}

// BeginFunction appends a new function definition and selects it.
// Parameters are added with FunctionParameter before the first BeginBlock.
func (b *Builder) BeginFunction(ret uint32, control FunctionControl, fnType uint32) uint32 {
	id := b.ID()
	b.m.Functions = append(b.m.Functions, Function{
		Def: Instruction{Opcode: OpFunction, ResultType: ret, ResultID: id, Operands: []uint32{uint32(control), fnType}},
		End: Instruction{Opcode: OpFunctionEnd},
	})
	b.fn = len(b.m.Functions) - 1
	b.block = -1
	return id
}

// FunctionParameter appends a parameter to the selected function.
func (b *Builder) FunctionParameter(typ uint32) uint32 {
	if b.fn < 0 {
		panic("spirv: no function selected")
	}
	fn := &b.m.Functions[b.fn]
	if len(fn.Blocks) > 0 {
		panic("spirv: function parameter after first block")
	}
	id := b.ID()
	fn.Parameters = append(fn.Parameters, Instruction{Opcode: OpFunctionParameter, ResultType: typ, ResultID: id})
	return id
}

// EndFunction clears the function and block selection.
func (b *Builder) EndFunction() {
	b.fn = -1
	b.block = -1
}

func (b *Builder) FAdd(typ, x, y uint32) uint32 { return b.emit(OpFAdd, typ, x, y) }
func (b *Builder) FSub(typ, x, y uint32) uint32 { return b.emit(OpFSub, typ, x, y) }
func (b *Builder) FMul(typ, x, y uint32) uint32 { return b.emit(OpFMul, typ, x, y) }
func (b *Builder) FDiv(typ, x, y uint32) uint32 { return b.emit(OpFDiv, typ, x, y) }

// ExtInst emits an extended instruction of the imported set.
func (b *Builder) ExtInst(typ, set, instruction uint32, operands ...uint32) uint32 {
	return b.emit(OpExtInst, typ, append([]uint32{set, instruction}, operands...)...)
}

func (b *Builder) CompositeConstruct(typ uint32, constituents ...uint32) uint32 {
	return b.emit(OpCompositeConstruct, typ, constituents...)
}

func (b *Builder) CompositeExtract(typ, composite uint32, indices ...uint32) uint32 {
	return b.emit(OpCompositeExtract, typ, append([]uint32{composite}, indices...)...)
}

func (b *Builder) FunctionCall(typ, fn uint32, args ...uint32) uint32 {
	return b.emit(OpFunctionCall, typ, append([]uint32{fn}, args...)...)
}

func (b *Builder) Variable(ptrType uint32, sc StorageClass) uint32 {
	return b.emit(OpVariable, ptrType, uint32(sc))
}

func (b *Builder) Load(typ, ptr uint32) uint32 { return b.emit(OpLoad, typ, ptr) }

func (b *Builder) Store(ptr, value uint32) {
	b.Insert(Instruction{Opcode: OpStore, Operands: []uint32{ptr, value}})
}

// Branch terminates the selected block with an unconditional branch.
func (b *Builder) Branch(target uint32) {
	b.Insert(Instruction{Opcode: OpBranch, Operands: []uint32{target}})
}

// ReturnValue terminates the selected block returning value.
func (b *Builder) ReturnValue(value uint32) {
	b.Insert(Instruction{Opcode: OpReturnValue, Operands: []uint32{value}})
}

// Return terminates the selected block.
func (b *Builder) Return() {
	b.Insert(Instruction{Opcode: OpReturn})
}
