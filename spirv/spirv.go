// Package spirv models a SPIR-V binary module as a mutable graph of
// instructions: functions, blocks and the logical layout sections. Modules
// parse from and assemble back to little endian 32 bit words. A [Builder]
// appends new types, constants and function instructions to a module.
package spirv

import "strconv"

// MagicNumber is the first word of every SPIR-V module.
const MagicNumber uint32 = 0x07230203

// Version represents a SPIR-V version.
type Version struct {
	Major uint8
	Minor uint8
}

// Common SPIR-V versions.
var (
	Version1_0 = Version{1, 0}
	Version1_3 = Version{1, 3}
	Version1_5 = Version{1, 5}
)

// Word returns the version as encoded in the module header.
func (v Version) Word() uint32 { return uint32(v.Major)<<16 | uint32(v.Minor)<<8 }

func versionFromWord(w uint32) Version {
	return Version{Major: uint8(w >> 16), Minor: uint8(w >> 8)}
}

func (v Version) String() string {
	return strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor))
}

// OpCode is a SPIR-V instruction opcode.
type OpCode uint16

const (
	OpNop                OpCode = 0
	OpUndef              OpCode = 1
	OpSourceContinued    OpCode = 2
	OpSource             OpCode = 3
	OpSourceExtension    OpCode = 4
	OpName               OpCode = 5
	OpMemberName         OpCode = 6
	OpString             OpCode = 7
	OpLine               OpCode = 8
	OpExtension          OpCode = 10
	OpExtInstImport      OpCode = 11
	OpExtInst            OpCode = 12
	OpMemoryModel        OpCode = 14
	OpEntryPoint         OpCode = 15
	OpExecutionMode      OpCode = 16
	OpCapability         OpCode = 17
	OpTypeVoid           OpCode = 19
	OpTypeBool           OpCode = 20
	OpTypeInt            OpCode = 21
	OpTypeFloat          OpCode = 22
	OpTypeVector         OpCode = 23
	OpTypeMatrix         OpCode = 24
	OpTypeImage          OpCode = 25
	OpTypeSampler        OpCode = 26
	OpTypeSampledImage   OpCode = 27
	OpTypeArray          OpCode = 28
	OpTypeRuntimeArray   OpCode = 29
	OpTypeStruct         OpCode = 30
	OpTypePointer        OpCode = 32
	OpTypeFunction       OpCode = 33
	OpConstantTrue       OpCode = 41
	OpConstantFalse      OpCode = 42
	OpConstant           OpCode = 43
	OpConstantComposite  OpCode = 44
	OpConstantNull       OpCode = 46
	OpSpecConstantTrue   OpCode = 48
	OpSpecConstantFalse  OpCode = 49
	OpSpecConstant       OpCode = 50
	OpSpecConstantComp   OpCode = 51
	OpSpecConstantOp     OpCode = 52
	OpFunction           OpCode = 54
	OpFunctionParameter  OpCode = 55
	OpFunctionEnd        OpCode = 56
	OpFunctionCall       OpCode = 57
	OpVariable           OpCode = 59
	OpLoad               OpCode = 61
	OpStore              OpCode = 62
	OpAccessChain        OpCode = 65
	OpDecorate           OpCode = 71
	OpMemberDecorate     OpCode = 72
	OpDecorationGroup    OpCode = 73
	OpGroupDecorate      OpCode = 74
	OpGroupMemberDecor   OpCode = 75
	OpVectorShuffle      OpCode = 79
	OpCompositeConstruct OpCode = 80
	OpCompositeExtract   OpCode = 81
	OpCompositeInsert    OpCode = 82
	OpCopyObject         OpCode = 83
	OpConvertFToU        OpCode = 109
	OpConvertFToS        OpCode = 110
	OpConvertSToF        OpCode = 111
	OpConvertUToF        OpCode = 112
	OpBitcast            OpCode = 124
	OpSNegate            OpCode = 126
	OpFNegate            OpCode = 127
	OpIAdd               OpCode = 128
	OpFAdd               OpCode = 129
	OpISub               OpCode = 130
	OpFSub               OpCode = 131
	OpIMul               OpCode = 132
	OpFMul               OpCode = 133
	OpUDiv               OpCode = 134
	OpSDiv               OpCode = 135
	OpFDiv               OpCode = 136
	OpVectorTimesScalar  OpCode = 142
	OpMatrixTimesVector  OpCode = 145
	OpDot                OpCode = 148
	OpSelect             OpCode = 169
	OpIEqual             OpCode = 170
	OpFOrdEqual          OpCode = 180
	OpFOrdLessThan       OpCode = 184
	OpFOrdGreaterThan    OpCode = 186
	OpPhi                OpCode = 245
	OpLoopMerge          OpCode = 246
	OpSelectionMerge     OpCode = 247
	OpLabel              OpCode = 248
	OpBranch             OpCode = 249
	OpBranchConditional  OpCode = 250
	OpKill               OpCode = 252
	OpReturn             OpCode = 253
	OpReturnValue        OpCode = 254
	OpUnreachable        OpCode = 255
	OpNoLine             OpCode = 317
	OpModuleProcessed    OpCode = 330
	OpExecutionModeID    OpCode = 331
	OpDecorateID         OpCode = 332
	OpDecorateString     OpCode = 5632
	OpMemberDecorString  OpCode = 5633
)

// operand layout of opcodes with a result: t is set when the first
// operand word is a result type id.
type resultLayout struct {
	t bool
}

var resultLayouts = map[OpCode]resultLayout{
	OpUndef: {t: true}, OpString: {}, OpExtInstImport: {}, OpExtInst: {t: true},
	OpTypeVoid: {}, OpTypeBool: {}, OpTypeInt: {}, OpTypeFloat: {}, OpTypeVector: {},
	OpTypeMatrix: {}, OpTypeImage: {}, OpTypeSampler: {}, OpTypeSampledImage: {},
	OpTypeArray: {}, OpTypeRuntimeArray: {}, OpTypeStruct: {}, OpTypePointer: {},
	OpTypeFunction: {},
	OpConstantTrue: {t: true}, OpConstantFalse: {t: true}, OpConstant: {t: true},
	OpConstantComposite: {t: true}, OpConstantNull: {t: true},
	OpSpecConstantTrue: {t: true}, OpSpecConstantFalse: {t: true}, OpSpecConstant: {t: true},
	OpSpecConstantComp: {t: true}, OpSpecConstantOp: {t: true},
	OpFunction: {t: true}, OpFunctionParameter: {t: true}, OpFunctionCall: {t: true},
	OpVariable: {t: true}, OpLoad: {t: true}, OpAccessChain: {t: true},
	OpDecorationGroup: {},
	OpVectorShuffle: {t: true}, OpCompositeConstruct: {t: true}, OpCompositeExtract: {t: true},
	OpCompositeInsert: {t: true}, OpCopyObject: {t: true},
	OpConvertFToU: {t: true}, OpConvertFToS: {t: true}, OpConvertSToF: {t: true}, OpConvertUToF: {t: true},
	OpBitcast: {t: true}, OpSNegate: {t: true}, OpFNegate: {t: true},
	OpIAdd: {t: true}, OpFAdd: {t: true}, OpISub: {t: true}, OpFSub: {t: true},
	OpIMul: {t: true}, OpFMul: {t: true}, OpUDiv: {t: true}, OpSDiv: {t: true}, OpFDiv: {t: true},
	OpVectorTimesScalar: {t: true}, OpMatrixTimesVector: {t: true}, OpDot: {t: true},
	OpSelect: {t: true}, OpIEqual: {t: true}, OpFOrdEqual: {t: true},
	OpFOrdLessThan: {t: true}, OpFOrdGreaterThan: {t: true}, OpPhi: {t: true},
	OpLabel: {},
}

// HasResult reports whether instructions with this opcode define a result id
// and whether that id is preceded by a result type id. Opcodes unknown to
// this package report false for both and keep all words as operands.
func (op OpCode) HasResult() (result, resultType bool) {
	layout, ok := resultLayouts[op]
	return ok, layout.t
}

var opNames = map[OpCode]string{
	OpNop: "OpNop", OpUndef: "OpUndef", OpSourceContinued: "OpSourceContinued",
	OpSource: "OpSource", OpSourceExtension: "OpSourceExtension", OpName: "OpName",
	OpMemberName: "OpMemberName", OpString: "OpString", OpLine: "OpLine",
	OpExtension: "OpExtension", OpExtInstImport: "OpExtInstImport", OpExtInst: "OpExtInst",
	OpMemoryModel: "OpMemoryModel", OpEntryPoint: "OpEntryPoint", OpExecutionMode: "OpExecutionMode",
	OpCapability: "OpCapability", OpTypeVoid: "OpTypeVoid", OpTypeBool: "OpTypeBool",
	OpTypeInt: "OpTypeInt", OpTypeFloat: "OpTypeFloat", OpTypeVector: "OpTypeVector",
	OpTypeMatrix: "OpTypeMatrix", OpTypeImage: "OpTypeImage", OpTypeSampler: "OpTypeSampler",
	OpTypeSampledImage: "OpTypeSampledImage", OpTypeArray: "OpTypeArray",
	OpTypeRuntimeArray: "OpTypeRuntimeArray", OpTypeStruct: "OpTypeStruct",
	OpTypePointer: "OpTypePointer", OpTypeFunction: "OpTypeFunction",
	OpConstantTrue: "OpConstantTrue", OpConstantFalse: "OpConstantFalse", OpConstant: "OpConstant",
	OpConstantComposite: "OpConstantComposite", OpConstantNull: "OpConstantNull",
	OpSpecConstantTrue: "OpSpecConstantTrue", OpSpecConstantFalse: "OpSpecConstantFalse",
	OpSpecConstant: "OpSpecConstant", OpSpecConstantComp: "OpSpecConstantComposite",
	OpSpecConstantOp: "OpSpecConstantOp", OpFunction: "OpFunction",
	OpFunctionParameter: "OpFunctionParameter", OpFunctionEnd: "OpFunctionEnd",
	OpFunctionCall: "OpFunctionCall", OpVariable: "OpVariable", OpLoad: "OpLoad",
	OpStore: "OpStore", OpAccessChain: "OpAccessChain", OpDecorate: "OpDecorate",
	OpMemberDecorate: "OpMemberDecorate", OpDecorationGroup: "OpDecorationGroup",
	OpGroupDecorate: "OpGroupDecorate", OpGroupMemberDecor: "OpGroupMemberDecorate",
	OpVectorShuffle: "OpVectorShuffle", OpCompositeConstruct: "OpCompositeConstruct",
	OpCompositeExtract: "OpCompositeExtract", OpCompositeInsert: "OpCompositeInsert",
	OpCopyObject: "OpCopyObject", OpConvertFToU: "OpConvertFToU", OpConvertFToS: "OpConvertFToS",
	OpConvertSToF: "OpConvertSToF", OpConvertUToF: "OpConvertUToF", OpBitcast: "OpBitcast",
	OpSNegate: "OpSNegate", OpFNegate: "OpFNegate", OpIAdd: "OpIAdd", OpFAdd: "OpFAdd",
	OpISub: "OpISub", OpFSub: "OpFSub", OpIMul: "OpIMul", OpFMul: "OpFMul",
	OpUDiv: "OpUDiv", OpSDiv: "OpSDiv", OpFDiv: "OpFDiv",
	OpVectorTimesScalar: "OpVectorTimesScalar", OpMatrixTimesVector: "OpMatrixTimesVector",
	OpDot: "OpDot", OpSelect: "OpSelect", OpIEqual: "OpIEqual", OpFOrdEqual: "OpFOrdEqual",
	OpFOrdLessThan: "OpFOrdLessThan", OpFOrdGreaterThan: "OpFOrdGreaterThan", OpPhi: "OpPhi",
	OpLoopMerge: "OpLoopMerge", OpSelectionMerge: "OpSelectionMerge", OpLabel: "OpLabel",
	OpBranch: "OpBranch", OpBranchConditional: "OpBranchConditional", OpKill: "OpKill",
	OpReturn: "OpReturn", OpReturnValue: "OpReturnValue", OpUnreachable: "OpUnreachable",
	OpNoLine: "OpNoLine", OpModuleProcessed: "OpModuleProcessed",
	OpExecutionModeID: "OpExecutionModeId", OpDecorateID: "OpDecorateId",
	OpDecorateString: "OpDecorateString", OpMemberDecorString: "OpMemberDecorateString",
}

func (op OpCode) String() string {
	if name, ok := opNames[op]; ok {
		return name
	}
	return "Op(" + strconv.Itoa(int(op)) + ")"
}

// Capability represents a SPIR-V capability.
type Capability uint32

const (
	CapabilityMatrix  Capability = 0
	CapabilityShader  Capability = 1
	CapabilityFloat64 Capability = 10
	CapabilityInt64   Capability = 11
)

// AddressingModel is the first operand of OpMemoryModel.
type AddressingModel uint32

const (
	AddressingLogical    AddressingModel = 0
	AddressingPhysical32 AddressingModel = 1
	AddressingPhysical64 AddressingModel = 2
)

// MemoryModel is the second operand of OpMemoryModel.
type MemoryModel uint32

const (
	MemoryModelSimple  MemoryModel = 0
	MemoryModelGLSL450 MemoryModel = 1
	MemoryModelVulkan  MemoryModel = 3
)

// ExecutionModel is the shader stage of an entry point.
type ExecutionModel uint32

const (
	ExecutionModelVertex    ExecutionModel = 0
	ExecutionModelFragment  ExecutionModel = 4
	ExecutionModelGLCompute ExecutionModel = 5
)

// ExecutionMode is declared for entry points with OpExecutionMode.
type ExecutionMode uint32

const (
	ExecutionModeOriginUpperLeft ExecutionMode = 7
	ExecutionModeLocalSize       ExecutionMode = 17
)

// StorageClass of pointers and variables.
type StorageClass uint32

const (
	StorageClassUniformConstant StorageClass = 0
	StorageClassInput           StorageClass = 1
	StorageClassUniform         StorageClass = 2
	StorageClassOutput          StorageClass = 3
	StorageClassPrivate         StorageClass = 6
	StorageClassFunction        StorageClass = 7
	StorageClassStorageBuffer   StorageClass = 12
)

// FunctionControl is the bit mask operand of OpFunction.
type FunctionControl uint32

const (
	FunctionControlNone       FunctionControl = 0
	FunctionControlInline     FunctionControl = 0x1
	FunctionControlDontInline FunctionControl = 0x2
	FunctionControlPure       FunctionControl = 0x4
	FunctionControlConst      FunctionControl = 0x8
)

// GLSLStd450 is the name of the GLSL extended instruction set.
const GLSLStd450 = "GLSL.std.450"

// GLSL.std.450 extended instruction numbers.
const (
	GLSLFAbs      uint32 = 4
	GLSLSin       uint32 = 13
	GLSLCos       uint32 = 14
	GLSLTan       uint32 = 15
	GLSLSqrt      uint32 = 31
	GLSLFMin      uint32 = 37
	GLSLFMax      uint32 = 40
	GLSLLength    uint32 = 66
	GLSLCross     uint32 = 68
	GLSLNormalize uint32 = 69
)
