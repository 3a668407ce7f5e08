package jit_test

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/soypat/algae"
	"github.com/soypat/algae/internal/spvtest"
	"github.com/soypat/algae/jit"
	"github.com/soypat/algae/spirv"
	"github.com/soypat/algae/spvfi"
	"github.com/soypat/geometry/ms2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type none = struct{}

// sdfTree is length(coord + offset) - 1.5.
var sdfTree algae.Operation[none, algae.DataID[float32]] = algae.Subtraction[none, float32]{
	A: algae.Length[none, ms2.Vec]{Of: algae.Addition[none, ms2.Vec]{
		A: algae.Variable[none, ms2.Vec]{Name: "coord"},
		B: algae.Variable[none, ms2.Vec]{Name: "offset"},
	}},
	B: algae.Constant[none, float32]{Value: 1.5},
}

func newInjector(t *testing.T, opts ...jit.Option) (*jit.Injector, *spvtest.Fixture) {
	t.Helper()
	f := spvtest.New(spvtest.SDFSlots()...)
	inj, err := jit.NewInjector(f.Module, spvtest.InjectorName, append([]jit.Option{jit.WithLogger(quiet)}, opts...)...)
	require.NoError(t, err)
	return inj, f
}

func writeFixture(t *testing.T) string {
	t.Helper()
	f := spvtest.New(spvtest.SDFSlots()...)
	path := filepath.Join(t.TempDir(), "sdf.spv")
	require.NoError(t, os.WriteFile(path, f.Module.Bytes(), 0o644))
	return path
}

func TestInjectReturnInput(t *testing.T) {
	inj, f := newInjector(t)
	require.Len(t, inj.Module().Functions[f.Injector].Blocks, 2)
	input := algae.ID[float32](f.Default)
	require.NoError(t, jit.Inject[algae.DataID[float32], float32](inj, input, algae.ReturnInput[float32]{}))

	fn := inj.Module().Functions[f.Injector]
	require.Len(t, fn.Blocks, 1)
	term := fn.Blocks[0].Terminator()
	require.NotNil(t, term)
	assert.Equal(t, spirv.OpReturnValue, term.Opcode)
	assert.Equal(t, []uint32{f.Default}, term.Operands)
	assert.Equal(t, uint64(1), inj.Generation())
}

func TestInjectSDF(t *testing.T) {
	var buf bytes.Buffer
	inj, f := newInjector(t, jit.WithLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))))
	before := inj.Interface()
	require.NoError(t, jit.Inject(inj, none{}, sdfTree))
	m := inj.Module()

	after, err := spvfi.Reflect(m, spvtest.InjectorName, spvfi.WithLogger(quiet))
	require.NoError(t, err)
	require.Len(t, after.Parameters, 2)
	for i, p := range after.Parameters {
		assert.Equal(t, before.Parameters[i].NameHash, p.NameHash)
		assert.True(t, spvfi.Equal(before.Parameters[i].Type, p.Type))
	}
	fn := m.Functions[f.Injector]
	require.Len(t, fn.Blocks, 1)
	assert.Equal(t, spirv.OpReturnValue, fn.Blocks[0].Terminator().Opcode)
	var extracts int
	for _, inst := range fn.Blocks[0].Instructions {
		if inst.Opcode == spirv.OpCompositeExtract {
			extracts++
		}
	}
	assert.Equal(t, 2, extracts, "both variables read from parameters")
	assert.Contains(t, buf.String(), "injection committed")
	assert.Contains(t, buf.String(), "OpReturnValue", "disassembly logged at debug level")

	words := m.Assemble()
	parsed, err := spirv.Parse(words)
	require.NoError(t, err)
	assert.Equal(t, words, parsed.Assemble())
	spvtest.Validate(t, words)
}

func TestInjectTwice(t *testing.T) {
	inj, f := newInjector(t)
	require.NoError(t, jit.Inject(inj, none{}, sdfTree))
	require.NoError(t, jit.Inject[none, float32](inj, none{}, algae.Tangent[none, float32]{Of: algae.Variable[none, float32]{Name: "missing", Default: 1}}))
	fn := inj.Module().Functions[f.Injector]
	require.Len(t, fn.Blocks, 1)
	assert.Equal(t, uint64(2), inj.Generation())
	spvtest.Validate(t, inj.Module().Assemble())
}

func TestInjectDropsDebugTargets(t *testing.T) {
	f := spvtest.New(spvtest.SDFSlots()...)
	body := f.Module.Functions[f.Injector].Blocks
	require.Len(t, body, 2)
	label := body[1].Label.ResultID
	_, ok := f.Module.Name(label)
	require.True(t, ok, "fixture names the body blocks")
	f.Module.Annotations = append(f.Module.Annotations, spirv.Instruction{
		Opcode:   spirv.OpDecorate,
		Operands: []uint32{label, 0}, // RelaxedPrecision.
	})
	inj, err := jit.NewInjector(f.Module, spvtest.InjectorName, jit.WithLogger(quiet))
	require.NoError(t, err)
	require.NoError(t, jit.Inject(inj, none{}, sdfTree))

	m := inj.Module()
	for _, section := range [][]spirv.Instruction{m.DebugNames, m.Annotations} {
		for _, inst := range section {
			require.NotEmpty(t, inst.Operands)
			assert.NotNil(t, m.Def(inst.Operands[0]), "%s targets undefined id %%%d", inst.Opcode, inst.Operands[0])
		}
	}
	assert.Empty(t, m.Annotations)
	name, ok := m.Name(m.Functions[f.Injector].ID())
	assert.True(t, ok)
	assert.Equal(t, spvtest.InjectorName, name)
	spvtest.Validate(t, m.Assemble())
}

func TestInjectPanicLeavesModule(t *testing.T) {
	inj, _ := newInjector(t)
	before := inj.Module().Assemble()
	assert.Panics(t, func() {
		jit.Inject[none, float32](inj, none{}, algae.VectorElementSelect[none, ms2.Vec]{
			Of:    algae.Variable[none, ms2.Vec]{Name: "coord"},
			Index: 5,
		})
	})
	assert.Equal(t, before, inj.Module().Assemble())
	assert.Equal(t, uint64(0), inj.Generation())
}

func TestInjectReturnTypeMismatch(t *testing.T) {
	inj, _ := newInjector(t)
	before := inj.Module().Assemble()
	err := jit.Inject[none, ms2.Vec](inj, none{}, algae.Variable[none, ms2.Vec]{Name: "coord"})
	assert.True(t, errors.Is(err, jit.ErrReturnType), err)
	assert.Equal(t, before, inj.Module().Assemble())
}

func TestNewInjectorFunctionNotFound(t *testing.T) {
	f := spvtest.New(spvtest.SDFSlots()...)
	_, err := jit.NewInjector(f.Module, "sdf", jit.WithLogger(quiet))
	assert.True(t, errors.Is(err, spvfi.ErrFunctionNotFound), err)
}

func TestJITModuleCache(t *testing.T) {
	path := writeFixture(t)
	j, err := jit.New(path, jit.WithLogger(quiet), jit.WithCapacity(1024))
	require.NoError(t, err)
	w1 := j.Module()
	w2 := j.Module()
	require.NotEmpty(t, w1)
	assert.Same(t, &w1[0], &w2[0], "cached until injection")
	assert.GreaterOrEqual(t, cap(w1), 1024)

	require.NoError(t, jit.Inject(j.Injector(), none{}, sdfTree))
	w3 := j.Module()
	assert.NotEqual(t, w1, w3)
	assert.Equal(t, j.Injector().Module().Assemble(), w3)

	out := filepath.Join(t.TempDir(), "out.spv")
	require.NoError(t, j.WriteFile(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Len(t, data, 4*len(w3))
	m, err := spirv.ParseBytes(data)
	require.NoError(t, err)
	assert.Equal(t, w3, m.Assemble())
}

func TestNewErrors(t *testing.T) {
	_, err := jit.New(filepath.Join(t.TempDir(), "missing.spv"), jit.WithLogger(quiet))
	assert.True(t, errors.Is(err, os.ErrNotExist), err)

	bad := filepath.Join(t.TempDir(), "bad.spv")
	require.NoError(t, os.WriteFile(bad, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, 0o644))
	_, err = jit.New(bad, jit.WithLogger(quiet))
	assert.True(t, errors.Is(err, spirv.ErrInvalidMagic), err)

	_, err = jit.New(writeFixture(t), jit.WithLogger(quiet), jit.WithFunction("sdf"))
	assert.True(t, errors.Is(err, spvfi.ErrFunctionNotFound), err)
}

func TestParseConfig(t *testing.T) {
	cfg, err := jit.ParseConfig(strings.NewReader(`
module: shader.spv
function: "sdf::injector"
ext_inst_set: GLSL.std.450
capacity: 256
log_level: warn
`))
	require.NoError(t, err)
	assert.Equal(t, jit.Config{
		Module:     "shader.spv",
		Function:   "sdf::injector",
		ExtInstSet: spirv.GLSLStd450,
		Capacity:   256,
		LogLevel:   "warn",
	}, cfg)
	opts, err := cfg.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 4)

	_, err = jit.ParseConfig(strings.NewReader("modul: shader.spv\n"))
	assert.Error(t, err, "unknown fields rejected")
	_, err = jit.ParseConfig(strings.NewReader("log_level: loud\n"))
	assert.Error(t, err)
	_, err = jit.ParseConfig(strings.NewReader("capacity: -1\n"))
	assert.Error(t, err)
	_, err = jit.Config{LogLevel: "loud"}.Options()
	assert.Error(t, err, "invalid level rejected without a prior Validate")
	_, err = jit.Config{Capacity: -1}.Options()
	assert.Error(t, err)
	opts, err = jit.Config{LogLevel: "debug+2"}.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 1)
	cfg, err = jit.ParseConfig(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, jit.Config{}, cfg)
}

func TestNewFromConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "algae.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("module: "+writeFixture(t)+"\nlog_level: error\n"), 0o644))
	cfg, err := jit.LoadConfig(cfgPath)
	require.NoError(t, err)
	j, err := jit.NewFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, jit.DefaultFunction, j.Injector().FunctionName())
	assert.Len(t, j.Injector().Interface().Parameters, 2)

	_, err = jit.NewFromConfig(jit.Config{})
	assert.Error(t, err, "module path required")
	_, err = jit.LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
