// Package spvtest builds SPIR-V fixture modules that follow the parameter
// convention reflected by spvfi, and validates modules with spirv-val when
// it is installed.
package spvtest

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/soypat/algae/spirv"
	"github.com/soypat/algae/spvfi"
)

// InjectorName is the debug name of the injection target in fixture modules.
const InjectorName = "test_shader::injector"

// Slot describes one parameter of the injector function: a float
// (Size 1) or a float vector of Size components.
type Slot struct {
	Name  string
	Size  uint32
	Value []float32
}

// Fixture is a generated module along with the ids of interest.
type Fixture struct {
	Module *spirv.Module
	// Injector is the function index of the injection target.
	Injector int
	// Entry is the function index of the entry point calling the injector.
	Entry int
	// Default is the f32 constant the injector returns before injection.
	Default uint32
	Slots   []Slot
}

// SDFSlots are the slots of the signed distance field example: a 2D
// coordinate and offset.
func SDFSlots() []Slot {
	return []Slot{
		{Name: "coord", Size: 2, Value: []float32{1, 1}},
		{Name: "offset", Size: 2, Value: []float32{0.5, 0.25}},
	}
}

// New builds a compute shader module. Its entry point constructs one
// {hash, value} argument per slot right before calling the injector, which
// returns f32. The injector body spans two named blocks and returns a 0 constant.
func New(slots ...Slot) *Fixture {
	m := spirv.NewModule(spirv.Version1_3)
	b := spirv.NewBuilder(m)
	b.Capability(spirv.CapabilityShader)
	b.MemoryModel(spirv.AddressingLogical, spirv.MemoryModelGLSL450)

	tvoid := b.TypeVoid()
	tf32 := b.TypeFloat(32)
	tu32 := b.TypeInt(32, false)
	valueTypes := make([]uint32, len(slots))
	paramTypes := make([]uint32, len(slots))
	for i, s := range slots {
		valueTypes[i] = tf32
		if s.Size > 1 {
			valueTypes[i] = b.TypeVector(tf32, s.Size)
		}
		paramTypes[i] = b.TypeStruct(tu32, valueTypes[i])
	}
	tmain := b.TypeFunction(tvoid)
	tinjector := b.TypeFunction(tf32, paramTypes...)
	zero := b.ConstantF32(tf32, 0)

	f := &Fixture{Module: m, Default: zero, Slots: slots}

	injector := b.BeginFunction(tf32, spirv.FunctionControlDontInline, tinjector)
	f.Injector = b.SelectedFunction()
	for _, pt := range paramTypes {
		b.FunctionParameter(pt)
	}
	entry, _, err := b.BeginBlock()
	if err != nil {
		panic(err)
	}
	next := b.ID()
	b.Branch(next)
	if _, err := b.BeginBlockWithLabel(next); err != nil {
		panic(err)
	}
	b.ReturnValue(zero)
	b.EndFunction()
	b.Name(entry, "entry")
	b.Name(next, "bb1")

	main := b.BeginFunction(tvoid, spirv.FunctionControlNone, tmain)
	f.Entry = b.SelectedFunction()
	if _, _, err := b.BeginBlock(); err != nil {
		panic(err)
	}
	values := make([]uint32, len(slots))
	for i, s := range slots {
		comps := make([]uint32, len(s.Value))
		for j, v := range s.Value {
			comps[j] = b.ConstantF32(tf32, v)
		}
		if s.Size == 1 {
			values[i] = comps[0]
			continue
		}
		values[i] = b.CompositeConstruct(valueTypes[i], comps...)
	}
	args := make([]uint32, len(slots))
	for i, s := range slots {
		hash := b.ConstantU32(tu32, spvfi.SimpleHash(s.Name))
		args[i] = b.CompositeConstruct(paramTypes[i], hash, values[i])
	}
	b.FunctionCall(tf32, injector, args...)
	b.Return()
	b.EndFunction()

	b.EntryPoint(spirv.ExecutionModelGLCompute, main, "main")
	b.ExecutionMode(main, spirv.ExecutionModeLocalSize, 1, 1, 1)
	b.Name(injector, InjectorName)
	b.Name(main, "main")
	return f
}

// Validate runs spirv-val on words. The test is skipped when spirv-val is
// not found in PATH.
func Validate(tb testing.TB, words []uint32) {
	tb.Helper()
	path, err := exec.LookPath("spirv-val")
	if err != nil {
		tb.Skip("spirv-val not found in PATH")
	}
	m, err := spirv.Parse(words)
	if err != nil {
		tb.Fatal(err)
	}
	file := filepath.Join(tb.TempDir(), "module.spv")
	if err = os.WriteFile(file, m.Bytes(), 0o644); err != nil {
		tb.Fatal(err)
	}
	out, err := exec.Command(path, file).CombinedOutput()
	if err != nil {
		tb.Fatalf("spirv-val: %v\n%s", err, out)
	}
}
