package spirv

import (
	"bufio"
	"io"
	"strconv"
)

// operand decoding classes for disassembly.
const (
	operandLiteral = iota
	operandID
)

// idOperandOps lists opcodes whose operands, after result type and id, are all ids.
var idOperandOps = map[OpCode]bool{
	OpTypeStruct: true, OpTypeFunction: true, OpConstantComposite: true,
	OpFunctionCall: true, OpLoad: true, OpStore: true, OpAccessChain: true,
	OpCompositeConstruct: true, OpCopyObject: true, OpReturnValue: true, OpBranch: true,
	OpBranchConditional: true, OpSelect: true, OpPhi: true, OpBitcast: true,
	OpSNegate: true, OpFNegate: true, OpIAdd: true, OpFAdd: true, OpISub: true,
	OpFSub: true, OpIMul: true, OpFMul: true, OpUDiv: true, OpSDiv: true, OpFDiv: true,
	OpVectorTimesScalar: true, OpMatrixTimesVector: true, OpDot: true,
	OpIEqual: true, OpFOrdEqual: true, OpFOrdLessThan: true, OpFOrdGreaterThan: true,
	OpConvertFToU: true, OpConvertFToS: true, OpConvertSToF: true, OpConvertUToF: true,
	OpGroupDecorate: true,
}

var glslNames = map[uint32]string{
	GLSLFAbs: "FAbs", GLSLSin: "Sin", GLSLCos: "Cos", GLSLTan: "Tan", GLSLSqrt: "Sqrt",
	GLSLFMin: "FMin", GLSLFMax: "FMax", GLSLLength: "Length", GLSLCross: "Cross",
	GLSLNormalize: "Normalize",
}

// Disassemble writes a human readable listing of the module to w, one
// instruction per line in the style of spirv-dis.
func Disassemble(w io.Writer, m *Module) error {
	bw := bufio.NewWriter(w)
	var line []byte
	line = append(line, "; SPIR-V\n; Version: "...)
	line = append(line, m.Header.Version.String()...)
	line = append(line, "\n; Generator: "...)
	line = strconv.AppendUint(line, uint64(m.Header.Generator), 16)
	line = append(line, "\n; Bound: "...)
	line = strconv.AppendUint(line, uint64(m.Header.Bound), 10)
	line = append(line, "\n; Schema: "...)
	line = strconv.AppendUint(line, uint64(m.Header.Schema), 10)
	line = append(line, '\n')
	if _, err := bw.Write(line); err != nil {
		return err
	}
	for inst := range m.AllInstructions() {
		line = AppendInstruction(line[:0], inst)
		line = append(line, '\n')
		if _, err := bw.Write(line); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// AppendInstruction appends the textual form of a single instruction to b.
func AppendInstruction(b []byte, inst *Instruction) []byte {
	const resultColumn = 15
	pad := resultColumn
	if inst.ResultID != 0 {
		pad -= len(" = %") + len(strconv.FormatUint(uint64(inst.ResultID), 10))
	}
	for ; pad > 0; pad-- {
		b = append(b, ' ')
	}
	if inst.ResultID != 0 {
		b = appendID(b, inst.ResultID)
		b = append(b, " = "...)
	}
	b = append(b, inst.Opcode.String()...)
	if inst.ResultType != 0 {
		b = append(b, ' ')
		b = appendID(b, inst.ResultType)
	}
	ops := inst.Operands
	switch inst.Opcode {
	case OpName, OpMemberName:
		if len(ops) == 0 {
			break
		}
		b = append(b, ' ')
		b = appendID(b, ops[0])
		ops = ops[1:]
		if inst.Opcode == OpMemberName && len(ops) > 0 {
			b = append(b, ' ')
			b = strconv.AppendUint(b, uint64(ops[0]), 10)
			ops = ops[1:]
		}
		return appendStringOperand(b, ops)
	case OpExtInstImport, OpString, OpExtension, OpSourceExtension, OpModuleProcessed:
		return appendStringOperand(b, ops)
	case OpEntryPoint:
		if len(ops) < 2 {
			break
		}
		b = append(b, ' ')
		b = strconv.AppendUint(b, uint64(ops[0]), 10)
		b = append(b, ' ')
		b = appendID(b, ops[1])
		s, n := DecodeString(ops[2:])
		b = append(b, ' ')
		b = strconv.AppendQuote(b, s)
		return appendOperands(b, ops[2+n:], operandID)
	case OpExtInst:
		if len(ops) < 2 {
			break
		}
		b = append(b, ' ')
		b = appendID(b, ops[0])
		b = append(b, ' ')
		if name, ok := glslNames[ops[1]]; ok {
			b = append(b, name...)
		} else {
			b = strconv.AppendUint(b, uint64(ops[1]), 10)
		}
		return appendOperands(b, ops[2:], operandID)
	case OpCompositeExtract, OpCompositeInsert:
		n := 1
		if inst.Opcode == OpCompositeInsert {
			n = 2
		}
		if len(ops) < n {
			break
		}
		b = appendOperands(b, ops[:n], operandID)
		return appendOperands(b, ops[n:], operandLiteral)
	case OpTypeVector, OpTypeMatrix, OpTypeArray, OpTypeRuntimeArray:
		if len(ops) == 0 {
			break
		}
		b = appendOperands(b, ops[:1], operandID)
		if inst.Opcode == OpTypeArray {
			return appendOperands(b, ops[1:], operandID)
		}
		return appendOperands(b, ops[1:], operandLiteral)
	case OpTypePointer, OpFunction:
		if len(ops) < 2 {
			break
		}
		b = appendOperands(b, ops[:1], operandLiteral)
		return appendOperands(b, ops[1:], operandID)
	case OpDecorate, OpMemberDecorate, OpExecutionMode:
		if len(ops) == 0 {
			break
		}
		b = appendOperands(b, ops[:1], operandID)
		return appendOperands(b, ops[1:], operandLiteral)
	}
	if idOperandOps[inst.Opcode] {
		return appendOperands(b, ops, operandID)
	}
	return appendOperands(b, ops, operandLiteral)
}

func appendOperands(b []byte, ops []uint32, class int) []byte {
	for _, op := range ops {
		b = append(b, ' ')
		if class == operandID {
			b = appendID(b, op)
		} else {
			b = strconv.AppendUint(b, uint64(op), 10)
		}
	}
	return b
}

func appendStringOperand(b []byte, ops []uint32) []byte {
	s, _ := DecodeString(ops)
	b = append(b, ' ')
	return strconv.AppendQuote(b, s)
}

func appendID(b []byte, id uint32) []byte {
	b = append(b, '%')
	return strconv.AppendUint(b, uint64(id), 10)
}
