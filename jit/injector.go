// Package jit replaces the body of a function in a compiled SPIR-V module
// with code generated from an [algae.Operation] tree.
//
// The target function's runtime parameters are reflected once when the
// [Injector] is created. Each [Inject] call compiles a tree against them
// into a clone of the current module and commits the clone on success, so
// a failed or panicking injection never leaves a partially modified module.
package jit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/soypat/algae"
	"github.com/soypat/algae/spirv"
	"github.com/soypat/algae/spvfi"
)

// ErrReturnType is returned by [Inject] when the tree's result type differs
// from the return type of the target function.
var ErrReturnType = errors.New("tree result type does not match function return type")

// Injector holds the current module and the reflected interface of the
// function code is injected into. It is not safe for concurrent use.
type Injector struct {
	module     *spirv.Module
	fi         *spvfi.FunctionInterface
	fnID       uint32
	name       string
	log        *slog.Logger
	extInstSet string
	generation uint64
}

// NewInjector reflects the interface of the function with debug name
// function in m. m is owned by the Injector afterwards.
func NewInjector(m *spirv.Module, function string, opts ...Option) (*Injector, error) {
	o := newOptions(opts)
	fi, err := spvfi.Reflect(m, function, spvfi.WithLogger(o.log))
	if err != nil {
		return nil, err
	}
	inj := &Injector{
		module:     m,
		fi:         fi,
		fnID:       m.Functions[fi.Function].ID(),
		name:       function,
		log:        o.log,
		extInstSet: o.extInstSet,
	}
	o.log.Info("function interface reflected",
		slog.String("function", function), slog.Int("parameters", len(fi.Parameters)))
	return inj, nil
}

// Interface returns the reflected interface of the target function.
func (inj *Injector) Interface() *spvfi.FunctionInterface { return inj.fi }

// Module returns the current module. It must not be modified.
func (inj *Injector) Module() *spirv.Module { return inj.module }

// FunctionName returns the debug name of the target function.
func (inj *Injector) FunctionName() string { return inj.name }

// Generation is incremented each time an injection is committed.
func (inj *Injector) Generation() uint64 { return inj.generation }

// Inject compiles tree with input into the body of the target function. The
// function is left with a single block ending in a return of the tree's
// result. Panics raised by malformed trees propagate to the caller and the
// current module is left untouched.
func Inject[I, O any](inj *Injector, input I, tree algae.Operation[I, algae.DataID[O]]) error {
	m := inj.module.Clone()
	fnIdx, ok := m.FunctionByID(inj.fnID)
	if !ok {
		return fmt.Errorf("%w: %q", spvfi.ErrFunctionNotFound, inj.name)
	}
	if err := checkReturnType[O](m, fnIdx); err != nil {
		return err
	}
	b := spirv.NewBuilder(m)
	if err := b.SelectFunction(fnIdx); err != nil {
		return err
	}
	_, blk, err := b.BeginBlock()
	if err != nil {
		return err
	}
	s := algae.NewSerializer(b, inj.fi, algae.SerializerConfig{Logger: inj.log, ExtInstSet: inj.extInstSet})
	result := tree.Serialize(s, input)
	b.ReturnValue(result.ID)

	fn := &m.Functions[fnIdx]
	removeTargets(m, fn.Blocks[:blk])
	fn.Blocks[0] = fn.Blocks[blk]
	fn.Blocks = fn.Blocks[:1]
	inj.commit(m)
	return nil
}

// removeTargets deletes the debug names and decorations of ids defined in
// blocks, which are about to be dropped from the module.
func removeTargets(m *spirv.Module, blocks []spirv.Block) {
	defined := make(map[uint32]bool)
	for _, blk := range blocks {
		defined[blk.Label.ResultID] = true
		for _, inst := range blk.Instructions {
			if inst.ResultID != 0 {
				defined[inst.ResultID] = true
			}
		}
	}
	targetsDropped := func(inst spirv.Instruction) bool {
		return len(inst.Operands) > 0 && defined[inst.Operands[0]]
	}
	m.DebugNames = slices.DeleteFunc(m.DebugNames, targetsDropped)
	m.Annotations = slices.DeleteFunc(m.Annotations, targetsDropped)
}

func checkReturnType[O any](m *spirv.Module, fnIdx int) error {
	want := algae.RuntimeType[O]()
	decl := m.Global(m.Functions[fnIdx].Def.ResultType)
	if decl == nil {
		return fmt.Errorf("%w: return type declaration not found", ErrReturnType)
	}
	got, err := spvfi.ParseType(m, decl)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrReturnType, err)
	}
	if !spvfi.Equal(want, got) {
		return fmt.Errorf("%w: function returns %s, tree results in %s", ErrReturnType, got, want)
	}
	return nil
}

func (inj *Injector) commit(m *spirv.Module) {
	inj.module = m
	inj.generation++
	inj.log.Info("injection committed", slog.String("function", inj.name), slog.Uint64("generation", inj.generation))
	if inj.log.Enabled(context.Background(), slog.LevelDebug) {
		var sb strings.Builder
		if err := spirv.Disassemble(&sb, m); err == nil {
			inj.log.Debug("injected module", slog.String("disassembly", sb.String()))
		}
	}
}
