// Package spvfi reflects the interface of a function inside a compiled
// SPIR-V module: the runtime types of its parameters and the name hashes
// callers tag each parameter with.
//
// A reflectable parameter is a struct of exactly two fields, a u32 name
// hash and the value:
//
//	struct { hash u32, value T }
//
// Callers build each such struct with OpCompositeConstruct immediately
// before calling the function, so the hash constant can be recovered from
// the call site.
package spvfi

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/soypat/algae/spirv"
)

var (
	// ErrParameterNoVariableDescriptor is returned when a parameter is not
	// wrapped in the {hash, value} struct or its call site does not build it.
	ErrParameterNoVariableDescriptor = errors.New("parameter not wrapped in variable descriptor")
	// ErrFunctionNotFound is returned when no function carries the requested debug name.
	ErrFunctionNotFound = errors.New("function not found")
)

// Parameter is a bindable input slot of a reflected function.
type Parameter struct {
	// CompositeID is the result id of the OpFunctionParameter holding the {hash, value} struct.
	CompositeID uint32
	// SpirvTypeID is the type id of the value field.
	SpirvTypeID uint32
	// NameHash is the [SimpleHash] of the variable's name.
	NameHash uint32
	// Type is the parsed type of the value field.
	Type InstructionType
}

// FunctionInterface is the ordered list of parameters of a reflected function.
// It is not modified after [Reflect] returns.
type FunctionInterface struct {
	// Function is the index of the function in the module's function list.
	Function   int
	Parameters []Parameter
}

// Option configures [Reflect].
type Option func(*config)

type config struct {
	log *slog.Logger
}

// WithLogger sets the logger warnings about dropped parameters are written to.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.log = l }
}

// Reflect finds the function debug-named name in m and recovers its
// parameter interface. Parameters whose types cannot be parsed are dropped
// with a warning.
func Reflect(m *spirv.Module, name string, opts ...Option) (*FunctionInterface, error) {
	cfg := config{log: slog.Default()}
	for _, o := range opts {
		o(&cfg)
	}
	fnIdx, ok := m.FunctionByName(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrFunctionNotFound, name)
	}
	fn := &m.Functions[fnIdx]
	type slot struct {
		formal int
		param  Parameter
	}
	var slots []slot
	for i := range fn.Parameters {
		p := &fn.Parameters[i]
		valueType, err := parseParameter(m, p)
		if errors.Is(err, ErrParameterNoVariableDescriptor) {
			return nil, fmt.Errorf("parameter %d of %q: %w", i, name, err)
		} else if err != nil {
			cfg.log.Warn("dropping parameter", slog.String("function", name), slog.Int("index", i), slog.String("err", err.Error()))
			continue
		}
		slots = append(slots, slot{formal: i, param: Parameter{CompositeID: p.ResultID, Type: valueType}})
	}
	fi := &FunctionInterface{Function: fnIdx, Parameters: make([]Parameter, 0, len(slots))}
	if len(slots) == 0 {
		return fi, nil
	}
	args, err := callArguments(m, fn.ID(), len(fn.Parameters))
	if err != nil {
		return nil, fmt.Errorf("%q: %w", name, err)
	}
	for _, s := range slots {
		construct := args[s.formal]
		if construct.Opcode != spirv.OpCompositeConstruct || len(construct.Operands) != 2 {
			return nil, fmt.Errorf("%w: argument %d of %q built by %s", ErrParameterNoVariableDescriptor, s.formal, name, construct.Opcode)
		}
		s.param.NameHash, err = hashConstant(m, construct.Operands[0])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %q: %w", s.formal, name, err)
		}
		s.param.SpirvTypeID, err = valueTypeID(m, construct.Operands[1])
		if err != nil {
			return nil, fmt.Errorf("argument %d of %q: %w", s.formal, name, err)
		}
		fi.Parameters = append(fi.Parameters, s.param)
	}
	return fi, nil
}

// GetParameter returns the first parameter with the given name hash and a
// value type equal to t.
func (fi *FunctionInterface) GetParameter(hash uint32, t InstructionType) (Parameter, bool) {
	for _, p := range fi.Parameters {
		if p.NameHash == hash && Equal(p.Type, t) {
			return p, true
		}
	}
	return Parameter{}, false
}

// parseParameter parses the declared type of an OpFunctionParameter and
// returns the type of its value field.
func parseParameter(m *spirv.Module, p *spirv.Instruction) (InstructionType, error) {
	decl := m.Global(p.ResultType)
	if decl == nil {
		return nil, fmt.Errorf("%w: parameter type %%%d not declared", ErrTypeUnparsable, p.ResultType)
	}
	typ, err := ParseType(m, decl)
	if err != nil {
		return nil, err
	}
	st, ok := typ.(Struct)
	if !ok || len(st.Fields) != 2 || !Equal(st.Fields[0], Int{Width: 32}) {
		return nil, fmt.Errorf("%w: got %s", ErrParameterNoVariableDescriptor, typ)
	}
	return st.Fields[1], nil
}

// callArguments finds the first call of fnID in module order and returns the
// n instructions preceding it, which build the call's arguments in order.
func callArguments(m *spirv.Module, fnID uint32, n int) ([]*spirv.Instruction, error) {
	var window []*spirv.Instruction
	for inst := range m.AllInstructions() {
		if inst.Opcode == spirv.OpFunctionCall && len(inst.Operands) > 0 && inst.Operands[0] == fnID {
			if len(window) < n {
				break
			}
			return window[len(window)-n:], nil
		}
		window = append(window, inst)
	}
	return nil, fmt.Errorf("%w: no call site with %d preceding argument constructions", ErrParameterNoVariableDescriptor, n)
}

func hashConstant(m *spirv.Module, id uint32) (uint32, error) {
	inst := m.Global(id)
	if inst == nil || inst.Opcode != spirv.OpConstant || len(inst.Operands) != 1 {
		return 0, fmt.Errorf("%w: hash %%%d is not a 32 bit constant", ErrParameterNoVariableDescriptor, id)
	}
	decl := m.Global(inst.ResultType)
	if decl == nil {
		return 0, fmt.Errorf("%w: hash %%%d has undeclared type", ErrParameterNoVariableDescriptor, id)
	}
	typ, err := ParseType(m, decl)
	if err != nil {
		return 0, err
	}
	if !Equal(typ, Int{Width: 32}) {
		return 0, fmt.Errorf("%w: hash %%%d is %s, want u32", ErrParameterNoVariableDescriptor, id, typ)
	}
	return inst.Operands[0], nil
}

func valueTypeID(m *spirv.Module, id uint32) (uint32, error) {
	inst := m.Def(id)
	if inst == nil || inst.ResultType == 0 {
		return 0, fmt.Errorf("%w: value %%%d has no result type", ErrParameterNoVariableDescriptor, id)
	}
	return inst.ResultType, nil
}
