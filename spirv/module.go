package spirv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"math/bits"
)

var (
	ErrInvalidMagic = errors.New("spirv: invalid magic number")
	ErrTruncated    = errors.New("spirv: truncated word stream")
	ErrMalformed    = errors.New("spirv: malformed module")
)

// headerWords is the length of the module header in words.
const headerWords = 5

// Header is the five word preamble of a module.
type Header struct {
	Version   Version
	Generator uint32
	// Bound is one greater than the largest result id in the module.
	Bound  uint32
	Schema uint32
}

// Instruction is a single decoded instruction. ResultType and ResultID are
// zero when the opcode does not define them.
type Instruction struct {
	Opcode     OpCode
	ResultType uint32
	ResultID   uint32
	Operands   []uint32
}

// WordCount returns the number of words the instruction occupies when assembled.
func (inst *Instruction) WordCount() int {
	n := 1 + len(inst.Operands)
	if inst.ResultType != 0 {
		n++
	}
	if inst.ResultID != 0 {
		n++
	}
	return n
}

// AppendWords appends the binary encoding of the instruction to dst.
func (inst *Instruction) AppendWords(dst []uint32) []uint32 {
	dst = append(dst, uint32(inst.WordCount())<<16|uint32(inst.Opcode))
	if inst.ResultType != 0 {
		dst = append(dst, inst.ResultType)
	}
	if inst.ResultID != 0 {
		dst = append(dst, inst.ResultID)
	}
	return append(dst, inst.Operands...)
}

func (inst Instruction) clone() Instruction {
	if inst.Operands != nil {
		inst.Operands = append([]uint32(nil), inst.Operands...)
	}
	return inst
}

// Block is a basic block: a label followed by instructions, the last of which
// should be a block terminator.
type Block struct {
	Label        Instruction
	Instructions []Instruction
}

// Terminator returns the last instruction of the block or nil if the block is empty.
func (blk *Block) Terminator() *Instruction {
	if len(blk.Instructions) == 0 {
		return nil
	}
	return &blk.Instructions[len(blk.Instructions)-1]
}

// Function is a function definition: OpFunction, its parameters, its blocks and OpFunctionEnd.
type Function struct {
	Def        Instruction
	Parameters []Instruction
	Blocks     []Block
	End        Instruction
}

// ID returns the result id of the function.
func (fn *Function) ID() uint32 { return fn.Def.ResultID }

// Module is a SPIR-V module split into its logical layout sections.
// Instructions within a section keep the order they were parsed or added in.
type Module struct {
	Header         Header
	Capabilities   []Instruction
	Extensions     []Instruction
	ExtInstImports []Instruction
	MemoryModel    *Instruction
	EntryPoints    []Instruction
	ExecutionModes []Instruction
	DebugSources   []Instruction
	DebugNames     []Instruction
	DebugProcessed []Instruction
	Annotations    []Instruction
	// TypesGlobalValues holds types, constants, global variables and global OpUndef.
	TypesGlobalValues []Instruction
	Functions         []Function
}

// NewModule returns an empty module of the given version. Result ids
// start at 1.
func NewModule(version Version) *Module {
	return &Module{
		Header: Header{Version: version, Bound: 1},
	}
}

// ParseBytes parses a module from its binary representation. Both little and
// big endian encodings are accepted, the magic number decides which.
func ParseBytes(b []byte) (*Module, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("%w: byte length %d not a multiple of 4", ErrTruncated, len(b))
	}
	if len(b) < 4*headerWords {
		return nil, ErrTruncated
	}
	var order binary.ByteOrder = binary.LittleEndian
	if binary.LittleEndian.Uint32(b) != MagicNumber && binary.BigEndian.Uint32(b) == MagicNumber {
		order = binary.BigEndian
	}
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = order.Uint32(b[i*4:])
	}
	return Parse(words)
}

// Parse decodes a module from its word stream. The returned module does not
// alias words.
func Parse(words []uint32) (*Module, error) {
	if len(words) < headerWords {
		return nil, ErrTruncated
	}
	magic := words[0]
	if magic != MagicNumber {
		if bits.ReverseBytes32(magic) != MagicNumber {
			return nil, fmt.Errorf("%w: %#08x", ErrInvalidMagic, magic)
		}
		swapped := make([]uint32, len(words))
		for i, w := range words {
			swapped[i] = bits.ReverseBytes32(w)
		}
		words = swapped
	}
	m := &Module{
		Header: Header{
			Version:   versionFromWord(words[1]),
			Generator: words[2],
			Bound:     words[3],
			Schema:    words[4],
		},
	}
	var p parser
	for off := headerWords; off < len(words); {
		wc := int(words[off] >> 16)
		op := OpCode(words[off] & 0xffff)
		if wc == 0 {
			return nil, fmt.Errorf("%w: zero word count at word %d", ErrMalformed, off)
		}
		if off+wc > len(words) {
			return nil, fmt.Errorf("%w: %s at word %d needs %d words", ErrTruncated, op, off, wc)
		}
		inst, err := decodeInstruction(op, words[off+1:off+wc])
		if err != nil {
			return nil, fmt.Errorf("word %d: %w", off, err)
		}
		if err = p.add(m, inst); err != nil {
			return nil, fmt.Errorf("word %d: %w", off, err)
		}
		off += wc
	}
	if p.fn != nil {
		return nil, fmt.Errorf("%w: missing OpFunctionEnd", ErrMalformed)
	}
	return m, nil
}

func decodeInstruction(op OpCode, operands []uint32) (Instruction, error) {
	inst := Instruction{Opcode: op}
	hasResult, hasType := op.HasResult()
	if hasType {
		if len(operands) == 0 {
			return inst, fmt.Errorf("%w: %s missing result type", ErrMalformed, op)
		}
		inst.ResultType = operands[0]
		operands = operands[1:]
	}
	if hasResult {
		if len(operands) == 0 {
			return inst, fmt.Errorf("%w: %s missing result id", ErrMalformed, op)
		}
		inst.ResultID = operands[0]
		operands = operands[1:]
	}
	if len(operands) > 0 {
		inst.Operands = append([]uint32(nil), operands...)
	}
	return inst, nil
}

// parser tracks the function and block currently being decoded.
type parser struct {
	fn    *Function
	block *Block
}

func (p *parser) add(m *Module, inst Instruction) error {
	if p.fn != nil {
		return p.addToFunction(m, inst)
	}
	switch inst.Opcode {
	case OpCapability:
		m.Capabilities = append(m.Capabilities, inst)
	case OpExtension:
		m.Extensions = append(m.Extensions, inst)
	case OpExtInstImport:
		m.ExtInstImports = append(m.ExtInstImports, inst)
	case OpMemoryModel:
		if m.MemoryModel != nil {
			return fmt.Errorf("%w: duplicate OpMemoryModel", ErrMalformed)
		}
		m.MemoryModel = &inst
	case OpEntryPoint:
		m.EntryPoints = append(m.EntryPoints, inst)
	case OpExecutionMode, OpExecutionModeID:
		m.ExecutionModes = append(m.ExecutionModes, inst)
	case OpString, OpSource, OpSourceContinued, OpSourceExtension:
		m.DebugSources = append(m.DebugSources, inst)
	case OpName, OpMemberName:
		m.DebugNames = append(m.DebugNames, inst)
	case OpModuleProcessed:
		m.DebugProcessed = append(m.DebugProcessed, inst)
	case OpDecorate, OpMemberDecorate, OpDecorationGroup, OpGroupDecorate,
		OpGroupMemberDecor, OpDecorateID, OpDecorateString, OpMemberDecorString:
		m.Annotations = append(m.Annotations, inst)
	case OpFunction:
		m.Functions = append(m.Functions, Function{Def: inst})
		p.fn = &m.Functions[len(m.Functions)-1]
	case OpFunctionParameter, OpFunctionEnd, OpLabel:
		return fmt.Errorf("%w: %s outside of function", ErrMalformed, inst.Opcode)
	default:
		m.TypesGlobalValues = append(m.TypesGlobalValues, inst)
	}
	return nil
}

func (p *parser) addToFunction(m *Module, inst Instruction) error {
	switch inst.Opcode {
	case OpFunctionParameter:
		if len(p.fn.Blocks) > 0 {
			return fmt.Errorf("%w: OpFunctionParameter after first block", ErrMalformed)
		}
		p.fn.Parameters = append(p.fn.Parameters, inst)
	case OpLabel:
		p.fn.Blocks = append(p.fn.Blocks, Block{Label: inst})
		p.block = &p.fn.Blocks[len(p.fn.Blocks)-1]
	case OpFunctionEnd:
		p.fn.End = inst
		p.fn, p.block = nil, nil
	case OpFunction:
		return fmt.Errorf("%w: nested OpFunction", ErrMalformed)
	default:
		if p.block == nil {
			return fmt.Errorf("%w: %s outside of block", ErrMalformed, inst.Opcode)
		}
		p.block.Instructions = append(p.block.Instructions, inst)
	}
	return nil
}

// Assemble encodes the module into words in logical layout order.
func (m *Module) Assemble() []uint32 {
	return m.AppendWords(make([]uint32, 0, headerWords+m.instructionWords()))
}

// AppendWords appends the module's binary encoding to dst.
func (m *Module) AppendWords(dst []uint32) []uint32 {
	dst = append(dst, MagicNumber, m.Header.Version.Word(), m.Header.Generator, m.Header.Bound, m.Header.Schema)
	for inst := range m.AllInstructions() {
		dst = inst.AppendWords(dst)
	}
	return dst
}

// Bytes encodes the module into little endian bytes.
func (m *Module) Bytes() []byte {
	words := m.Assemble()
	b := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(b[i*4:], w)
	}
	return b
}

func (m *Module) instructionWords() (n int) {
	for inst := range m.AllInstructions() {
		n += inst.WordCount()
	}
	return n
}

// AllInstructions iterates over every instruction of the module in logical
// layout order, function bodies included.
func (m *Module) AllInstructions() iter.Seq[*Instruction] {
	return func(yield func(*Instruction) bool) {
		for _, section := range m.globalSections() {
			for i := range *section {
				if !yield(&(*section)[i]) {
					return
				}
			}
			if section == &m.ExtInstImports && m.MemoryModel != nil && !yield(m.MemoryModel) {
				return
			}
		}
		for i := range m.Functions {
			if !m.Functions[i].all(yield) {
				return
			}
		}
	}
}

func (fn *Function) all(yield func(*Instruction) bool) bool {
	if !yield(&fn.Def) {
		return false
	}
	for i := range fn.Parameters {
		if !yield(&fn.Parameters[i]) {
			return false
		}
	}
	for i := range fn.Blocks {
		blk := &fn.Blocks[i]
		if !yield(&blk.Label) {
			return false
		}
		for j := range blk.Instructions {
			if !yield(&blk.Instructions[j]) {
				return false
			}
		}
	}
	return yield(&fn.End)
}

func (m *Module) globalSections() []*[]Instruction {
	return []*[]Instruction{
		&m.Capabilities, &m.Extensions, &m.ExtInstImports, &m.EntryPoints,
		&m.ExecutionModes, &m.DebugSources, &m.DebugNames, &m.DebugProcessed,
		&m.Annotations, &m.TypesGlobalValues,
	}
}

// Clone returns a deep copy of the module sharing no memory with m.
func (m *Module) Clone() *Module {
	c := &Module{Header: m.Header}
	src, dst := m.globalSections(), c.globalSections()
	for i := range src {
		*dst[i] = cloneInstructions(*src[i])
	}
	if m.MemoryModel != nil {
		mm := m.MemoryModel.clone()
		c.MemoryModel = &mm
	}
	if m.Functions != nil {
		c.Functions = make([]Function, len(m.Functions))
		for i := range m.Functions {
			c.Functions[i] = m.Functions[i].clone()
		}
	}
	return c
}

func (fn *Function) clone() Function {
	c := Function{
		Def:        fn.Def.clone(),
		Parameters: cloneInstructions(fn.Parameters),
		End:        fn.End.clone(),
	}
	if fn.Blocks != nil {
		c.Blocks = make([]Block, len(fn.Blocks))
		for i := range fn.Blocks {
			c.Blocks[i] = Block{
				Label:        fn.Blocks[i].Label.clone(),
				Instructions: cloneInstructions(fn.Blocks[i].Instructions),
			}
		}
	}
	return c
}

func cloneInstructions(src []Instruction) []Instruction {
	if src == nil {
		return nil
	}
	dst := make([]Instruction, len(src))
	for i := range src {
		dst[i] = src[i].clone()
	}
	return dst
}

// Global returns the type, constant or global variable instruction with the
// given result id, or nil if not found.
func (m *Module) Global(id uint32) *Instruction {
	if id == 0 {
		return nil
	}
	for i := range m.TypesGlobalValues {
		if m.TypesGlobalValues[i].ResultID == id {
			return &m.TypesGlobalValues[i]
		}
	}
	return nil
}

// Def returns the instruction anywhere in the module defining the result id,
// or nil if not found.
func (m *Module) Def(id uint32) *Instruction {
	if id == 0 {
		return nil
	}
	for inst := range m.AllInstructions() {
		if inst.ResultID == id {
			return inst
		}
	}
	return nil
}

// Name returns the debug name assigned to id with OpName.
func (m *Module) Name(id uint32) (string, bool) {
	for i := range m.DebugNames {
		inst := &m.DebugNames[i]
		if inst.Opcode == OpName && len(inst.Operands) > 1 && inst.Operands[0] == id {
			name, _ := DecodeString(inst.Operands[1:])
			return name, true
		}
	}
	return "", false
}

// FunctionByName returns the index of the function whose OpName debug name
// equals name.
func (m *Module) FunctionByName(name string) (int, bool) {
	for i := range m.Functions {
		got, ok := m.Name(m.Functions[i].ID())
		if ok && got == name {
			return i, true
		}
	}
	return -1, false
}

// FunctionByID returns the index of the function with the given result id.
func (m *Module) FunctionByID(id uint32) (int, bool) {
	for i := range m.Functions {
		if m.Functions[i].ID() == id {
			return i, true
		}
	}
	return -1, false
}

// EncodeString encodes s as a null terminated literal string packed
// little endian into words.
func EncodeString(s string) []uint32 {
	words := make([]uint32, len(s)/4+1)
	for i := 0; i < len(s); i++ {
		words[i/4] |= uint32(s[i]) << ((i % 4) * 8)
	}
	return words
}

// DecodeString decodes a literal string from the start of words and returns
// it along with the number of words it occupied.
func DecodeString(words []uint32) (string, int) {
	buf := make([]byte, 0, 4*len(words))
	for i, w := range words {
		for j := 0; j < 4; j++ {
			c := byte(w >> (j * 8))
			if c == 0 {
				return string(buf), i + 1
			}
			buf = append(buf, c)
		}
	}
	return string(buf), len(words)
}
