package algae_test

import (
	"bytes"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/soypat/algae"
	"github.com/soypat/algae/internal/spvtest"
	"github.com/soypat/algae/spirv"
	"github.com/soypat/algae/spvfi"
	"github.com/soypat/geometry/md3"
	"github.com/soypat/geometry/ms2"
	"github.com/soypat/geometry/ms3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type none = struct{}

// newSerializer returns a serializer emitting into the first block of an
// empty f32 function of a new module.
func newSerializer(t *testing.T, log *slog.Logger) (*algae.Serializer, *spirv.Module) {
	t.Helper()
	m := spirv.NewModule(spirv.Version1_3)
	b := spirv.NewBuilder(m)
	tf32 := b.TypeFloat(32)
	b.BeginFunction(tf32, spirv.FunctionControlNone, b.TypeFunction(tf32))
	_, _, err := b.BeginBlock()
	require.NoError(t, err)
	if log == nil {
		log = quiet
	}
	return algae.NewSerializer(b, nil, algae.SerializerConfig{Logger: log}), m
}

func lastInstruction(t *testing.T, s *algae.Serializer) spirv.Instruction {
	t.Helper()
	insts := s.Builder().Block().Instructions
	require.NotEmpty(t, insts)
	return insts[len(insts)-1]
}

// counter counts how many times it is serialized.
type counter struct {
	n *int
	v float32
}

func (c counter) Serialize(s *algae.Serializer, _ none) algae.DataID[float32] {
	*c.n++
	return algae.ConstantOf(s, c.v)
}

func TestVariableFallbackMatchesConstant(t *testing.T) {
	var buf bytes.Buffer
	s, _ := newSerializer(t, slog.New(slog.NewTextHandler(&buf, nil)))
	v := algae.Variable[none, float32]{Name: "radius", Default: 2}.Serialize(s, none{})
	c := algae.Constant[none, float32]{Value: 2}.Serialize(s, none{})
	assert.Equal(t, c.ID, v.ID)
	assert.Contains(t, buf.String(), "radius")
	assert.Empty(t, s.Builder().Block().Instructions, "constants are global")
}

func TestVariableFromInterface(t *testing.T) {
	f := spvtest.New(spvtest.SDFSlots()...)
	fi, err := spvfi.Reflect(f.Module, spvtest.InjectorName, spvfi.WithLogger(quiet))
	require.NoError(t, err)
	b := spirv.NewBuilder(f.Module)
	require.NoError(t, b.SelectFunction(f.Injector))
	_, _, err = b.BeginBlock()
	require.NoError(t, err)
	s := algae.NewSerializer(b, fi, algae.SerializerConfig{Logger: quiet})

	offset := algae.Variable[none, ms2.Vec]{Name: "offset"}.Serialize(s, none{})
	inst := lastInstruction(t, s)
	assert.Equal(t, spirv.OpCompositeExtract, inst.Opcode)
	assert.Equal(t, offset.ID, inst.ResultID)
	assert.Equal(t, fi.Parameters[1].SpirvTypeID, inst.ResultType)
	assert.Equal(t, []uint32{fi.Parameters[1].CompositeID, 1}, inst.Operands)

	// Type mismatch falls back to the default.
	n := len(b.Block().Instructions)
	algae.Variable[none, ms3.Vec]{Name: "offset"}.Serialize(s, none{})
	assert.Len(t, b.Block().Instructions, n)
}

func TestArithmetic(t *testing.T) {
	s, m := newSerializer(t, nil)
	one := algae.Constant[none, ms2.Vec]{Value: ms2.Vec{X: 1, Y: 1}}
	two := algae.Constant[none, ms2.Vec]{Value: ms2.Vec{X: 2, Y: 2}}
	vec2 := s.TypeID(algae.RuntimeType[ms2.Vec]())
	for _, test := range []struct {
		op   algae.Operation[none, algae.DataID[ms2.Vec]]
		want spirv.OpCode
	}{
		{algae.Addition[none, ms2.Vec]{A: one, B: two}, spirv.OpFAdd},
		{algae.Subtraction[none, ms2.Vec]{A: one, B: two}, spirv.OpFSub},
		{algae.Multiplication[none, ms2.Vec]{A: one, B: two}, spirv.OpFMul},
		{algae.Division[none, ms2.Vec]{A: one, B: two}, spirv.OpFDiv},
	} {
		d := test.op.Serialize(s, none{})
		inst := lastInstruction(t, s)
		assert.Equal(t, test.want, inst.Opcode)
		assert.Equal(t, d.ID, inst.ResultID)
		assert.Equal(t, vec2, inst.ResultType)
		require.Len(t, inst.Operands, 2)
		assert.Equal(t, spirv.OpConstantComposite, m.Global(inst.Operands[0]).Opcode)
	}
	assert.Panics(t, func() {
		algae.Addition[none, int32]{
			A: algae.Constant[none, int32]{Value: 1},
			B: algae.Constant[none, int32]{Value: 1},
		}.Serialize(s, none{})
	})
}

func TestSquareSerializesOnce(t *testing.T) {
	s, _ := newSerializer(t, nil)
	var n int
	d := algae.Square[none, float32]{Of: counter{n: &n, v: 3}}.Serialize(s, none{})
	assert.Equal(t, 1, n)
	inst := lastInstruction(t, s)
	assert.Equal(t, spirv.OpFMul, inst.Opcode)
	assert.Equal(t, d.ID, inst.ResultID)
	assert.Equal(t, inst.Operands[0], inst.Operands[1])
}

func TestExtInstructions(t *testing.T) {
	s, m := newSerializer(t, nil)
	var n int
	x := counter{n: &n, v: 0.5}
	for _, test := range []struct {
		op   algae.Operation[none, algae.DataID[float32]]
		want uint32
	}{
		{algae.Sqrt[none, float32]{Of: x}, spirv.GLSLSqrt},
		{algae.Abs[none, float32]{Of: x}, spirv.GLSLFAbs},
		{algae.Sine[none, float32]{Of: x}, spirv.GLSLSin},
		{algae.Cosine[none, float32]{Of: x}, spirv.GLSLCos},
		{algae.Tangent[none, float32]{Of: x}, spirv.GLSLTan},
		{algae.Max[none, float32]{A: x, B: x}, spirv.GLSLFMax},
		{algae.Min[none, float32]{A: x, B: x}, spirv.GLSLFMin},
	} {
		d := test.op.Serialize(s, none{})
		inst := lastInstruction(t, s)
		assert.Equal(t, spirv.OpExtInst, inst.Opcode)
		assert.Equal(t, d.ID, inst.ResultID)
		assert.Equal(t, s.ExtInstSet(), inst.Operands[0])
		assert.Equal(t, test.want, inst.Operands[1])
	}
	assert.Equal(t, 9, n)
	require.Len(t, m.ExtInstImports, 1, "set imported once")
	name, _ := spirv.DecodeString(m.ExtInstImports[0].Operands)
	assert.Equal(t, spirv.GLSLStd450, name)
}

func TestVectorOperations(t *testing.T) {
	s, _ := newSerializer(t, nil)
	a := algae.Constant[none, ms3.Vec]{Value: ms3.Vec{X: 1}}
	b := algae.Constant[none, ms3.Vec]{Value: ms3.Vec{Y: 1}}

	algae.Length[none, ms3.Vec]{Of: a}.Serialize(s, none{})
	inst := lastInstruction(t, s)
	assert.Equal(t, spirv.GLSLLength, inst.Operands[1])
	assert.Equal(t, s.TypeID(spvfi.Float{Width: 32}), inst.ResultType)

	algae.Normalize[none, ms3.Vec]{Of: a}.Serialize(s, none{})
	inst = lastInstruction(t, s)
	assert.Equal(t, spirv.GLSLNormalize, inst.Operands[1])
	assert.Equal(t, s.TypeID(algae.RuntimeType[ms3.Vec]()), inst.ResultType)

	algae.Cross[none]{A: a, B: b}.Serialize(s, none{})
	inst = lastInstruction(t, s)
	assert.Equal(t, spirv.GLSLCross, inst.Operands[1])
	assert.Len(t, inst.Operands, 4)

	assert.Panics(t, func() {
		algae.Length[none, float32]{Of: algae.Constant[none, float32]{}}.Serialize(s, none{})
	})
}

func TestVectorElementSelect(t *testing.T) {
	s, _ := newSerializer(t, nil)
	var n int
	vec := algae.Link[none, algae.DataID[float32], algae.DataID[ms2.Vec]]{
		First: counter{n: &n, v: 1},
		Second: algae.MapInput[algae.DataID[float32], none, algae.DataID[ms2.Vec]]{
			Inner: algae.Constant[none, ms2.Vec]{Value: ms2.Vec{X: 1, Y: 2}},
			Map:   func(algae.DataID[float32]) none { return none{} },
		},
	}
	d := algae.VectorElementSelect[none, ms2.Vec]{Of: vec, Index: 1}.Serialize(s, none{})
	inst := lastInstruction(t, s)
	assert.Equal(t, spirv.OpCompositeExtract, inst.Opcode)
	assert.Equal(t, d.ID, inst.ResultID)
	assert.Equal(t, uint32(1), inst.Operands[1])
	assert.Equal(t, 1, n)

	assert.PanicsWithValue(t, "VectorElementSelect: index 2 out of range for vector of 2 elements", func() {
		algae.VectorElementSelect[none, ms2.Vec]{Of: vec, Index: 2}.Serialize(s, none{})
	})
	assert.Equal(t, 1, n, "child not serialized on out of range index")
}

func TestRuntimeType(t *testing.T) {
	f32 := spvfi.Float{Width: 32}
	for _, test := range []struct {
		got  spvfi.InstructionType
		want spvfi.InstructionType
	}{
		{algae.RuntimeType[float32](), f32},
		{algae.RuntimeType[float64](), spvfi.Float{Width: 64}},
		{algae.RuntimeType[int32](), spvfi.Int{Signed: true, Width: 32}},
		{algae.RuntimeType[uint64](), spvfi.Int{Width: 64}},
		{algae.RuntimeType[bool](), spvfi.Bool{}},
		{algae.RuntimeType[ms2.Vec](), spvfi.Vector{Elem: f32, Count: 2}},
		{algae.RuntimeType[ms3.Vec](), spvfi.Vector{Elem: f32, Count: 3}},
		{algae.RuntimeType[algae.Vec4](), spvfi.Vector{Elem: f32, Count: 4}},
		{algae.RuntimeType[[3]uint32](), spvfi.Vector{Elem: spvfi.Int{Width: 32}, Count: 3}},
		{algae.RuntimeType[ms3.Mat3](), spvfi.Matrix{Elem: f32, Width: 3, Height: 3}},
	} {
		assert.True(t, spvfi.Equal(test.want, test.got), "want %s, got %s", test.want, test.got)
	}
	assert.Panics(t, func() { algae.RuntimeType[string]() })
	assert.Panics(t, func() { algae.RuntimeType[[5]float32]() })
}

func TestVectorConstantComponents(t *testing.T) {
	s, m := newSerializer(t, nil)
	for _, test := range []struct {
		name string
		id   uint32
		want []float32
	}{
		{"ms2", algae.ConstantOf(s, ms2.Vec{X: 1, Y: 2}).ID, []float32{1, 2}},
		{"ms3", algae.ConstantOf(s, ms3.Vec{X: 1, Y: 2, Z: 3}).ID, []float32{1, 2, 3}},
		{"md3", algae.ConstantOf(s, md3.Vec{X: 4, Y: 5, Z: 6}).ID, []float32{4, 5, 6}},
		{"vec4", algae.ConstantOf(s, algae.Vec4{7, 8, 9, 10}).ID, []float32{7, 8, 9, 10}},
	} {
		decl := m.Global(test.id)
		require.NotNil(t, decl, test.name)
		require.Equal(t, spirv.OpConstantComposite, decl.Opcode, test.name)
		typ := m.Global(decl.ResultType)
		require.NotNil(t, typ, test.name)
		require.Equal(t, spirv.OpTypeVector, typ.Opcode, test.name)
		assert.Equal(t, uint32(len(test.want)), typ.Operands[1], test.name)
		require.Len(t, decl.Operands, len(test.want), test.name)
		for i, w := range test.want {
			comp := m.Global(decl.Operands[i])
			require.NotNil(t, comp, test.name)
			var got float32
			if len(comp.Operands) == 2 {
				got = float32(math.Float64frombits(uint64(comp.Operands[0]) | uint64(comp.Operands[1])<<32))
			} else {
				got = math.Float32frombits(comp.Operands[0])
			}
			assert.Equal(t, w, got, "%s component %d", test.name, i)
		}
	}
	var caps []uint32
	for _, inst := range m.Capabilities {
		caps = append(caps, inst.Operands[0])
	}
	assert.Contains(t, caps, uint32(spirv.CapabilityFloat64), "md3 constant declares 64 bit floats")
}

func TestMatrixConstantColumnMajor(t *testing.T) {
	s, m := newSerializer(t, nil)
	mat := ms2.RotationMat2(0.5)
	d := algae.ConstantOf(s, mat)
	decl := m.Global(d.ID)
	require.NotNil(t, decl)
	assert.Equal(t, spirv.OpConstantComposite, decl.Opcode)
	require.Len(t, decl.Operands, 2)
	for c, basis := range []ms2.Vec{{X: 1}, {Y: 1}} {
		want := ms2.MulMatVec(mat, basis)
		col := m.Global(decl.Operands[c])
		require.NotNil(t, col)
		require.Len(t, col.Operands, 2)
		for r, w := range []float32{want.X, want.Y} {
			comp := m.Global(col.Operands[r])
			got := math.Float32frombits(comp.Operands[0])
			assert.InDelta(t, w, got, 1e-6, "column %d row %d", c, r)
		}
	}
}

func TestOrderedOperations(t *testing.T) {
	s, _ := newSerializer(t, nil)
	type ctx = algae.ResultContext
	chain := algae.NewOrdered[float32]("a", algae.Constant[ctx, float32]{Value: 1})
	sum := algae.Then[float32](chain, "b", algae.Addition[ctx, float32]{
		A: algae.AccessResult[float32]{Name: "a"},
		B: algae.Constant[ctx, float32]{Value: 2},
	})
	d := sum.Serialize(s, ctx{})
	inst := lastInstruction(t, s)
	assert.Equal(t, spirv.OpFAdd, inst.Opcode)
	assert.Equal(t, d.ID, inst.ResultID)

	// Then does not modify the chain it extends.
	first := chain.Serialize(s, ctx{})
	assert.Equal(t, algae.ConstantOf(s, float32(1)).ID, first.ID)

	// Nested chains see the results of the enclosing chain.
	inner := algae.NewOrdered[float32]("c", algae.Sqrt[ctx, float32]{Of: algae.AccessResult[float32]{Name: "a"}})
	outer := algae.Then[float32](chain, "inner", inner)
	d = outer.Serialize(s, ctx{})
	inst = lastInstruction(t, s)
	assert.Equal(t, d.ID, inst.ResultID)
	assert.Equal(t, first.ID, inst.Operands[2])
}

func TestAccessResultPanics(t *testing.T) {
	s, _ := newSerializer(t, nil)
	type ctx = algae.ResultContext
	chain := algae.NewOrdered[float32]("a", algae.Constant[ctx, float32]{Value: 1})
	wrongType := algae.Then[ms2.Vec](chain, "b", algae.AccessResult[ms2.Vec]{Name: "a"})
	assert.PanicsWithValue(t, `expected result with name "a" of type ms2.Vec`, func() {
		wrongType.Serialize(s, ctx{})
	})
	missing := algae.Then[float32](chain, "b", algae.AccessResult[float32]{Name: "nope"})
	assert.Panics(t, func() { missing.Serialize(s, ctx{}) })
}

func TestOrderedOverwriteWarns(t *testing.T) {
	var buf bytes.Buffer
	s, _ := newSerializer(t, slog.New(slog.NewTextHandler(&buf, nil)))
	type ctx = algae.ResultContext
	chain := algae.NewOrdered[float32]("x", algae.Constant[ctx, float32]{Value: 1})
	chain = algae.Then[float32](chain, "x", algae.Constant[ctx, float32]{Value: 2})
	d := chain.Serialize(s, ctx{})
	assert.Equal(t, algae.ConstantOf(s, float32(2)).ID, d.ID)
	assert.Contains(t, buf.String(), "overwritten")
}

func TestDetachedAndWithInput(t *testing.T) {
	s, _ := newSerializer(t, nil)
	type ctx = algae.ResultContext
	chain := algae.NewOrdered[float32]("out", algae.Sqrt[ctx, float32]{
		Of: algae.AccessResult[float32]{Name: algae.InputName},
	})
	in := algae.ConstantOf(s, float32(4))
	d := algae.WithInput[float32](chain).Serialize(s, in)
	inst := lastInstruction(t, s)
	assert.Equal(t, d.ID, inst.ResultID)
	assert.Equal(t, in.ID, inst.Operands[2])

	assert.Panics(t, func() { algae.Detached(chain).Serialize(s, none{}) }, "no input in detached context")
	two := algae.NewOrdered[float32]("two", algae.Constant[ctx, float32]{Value: 2})
	assert.Equal(t, algae.ConstantOf(s, float32(2)).ID, algae.Detached(two).Serialize(s, none{}).ID)
}

func TestResultContext(t *testing.T) {
	var c algae.ResultContext
	assert.Equal(t, 0, c.Len())
	_, ok := algae.Get[float32](c, "a")
	assert.False(t, ok)
	_, _, ok = c.Lookup("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Clone().Len())
}
