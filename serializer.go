package algae

import (
	"fmt"
	"log/slog"

	"github.com/soypat/algae/spirv"
	"github.com/soypat/algae/spvfi"
)

// Operation is a node of an operation tree. Serialize emits the node's
// instructions after serializing its children and returns a reference to
// the result. Children are serialized in post-order, left to right.
//
// Serialize panics on malformed trees such as an out of range vector element
// or an unresolved named result.
type Operation[I, O any] interface {
	Serialize(s *Serializer, input I) O
}

// DataID is a typed reference to the result id of an instruction holding a
// value of Go type T. T is only known at compile time.
type DataID[T any] struct {
	ID uint32
	_  [0]T
}

// ID returns a DataID referencing id.
func ID[T any](id uint32) DataID[T] { return DataID[T]{ID: id} }

// SerializerConfig configures a [Serializer].
type SerializerConfig struct {
	// Logger receives warnings such as variables falling back to their
	// default value. slog.Default() is used when nil.
	Logger *slog.Logger
	// ExtInstSet is the name of the extended instruction set imported for
	// math instructions. Defaults to [spirv.GLSLStd450].
	ExtInstSet string
}

// Serializer is the emission context operation trees are compiled through.
// It binds the builder instructions are appended to and the interface of
// the function being generated, against which variables are resolved.
type Serializer struct {
	b          *spirv.Builder
	fi         *spvfi.FunctionInterface
	log        *slog.Logger
	extSetName string
	extSet     uint32
}

// NewSerializer returns a Serializer emitting through b and resolving
// variables against fi. fi may be nil, in which case all variables resolve
// to their default value.
func NewSerializer(b *spirv.Builder, fi *spvfi.FunctionInterface, cfg SerializerConfig) *Serializer {
	if b == nil {
		panic("nil builder")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ExtInstSet == "" {
		cfg.ExtInstSet = spirv.GLSLStd450
	}
	if fi == nil {
		fi = &spvfi.FunctionInterface{Function: -1}
	}
	return &Serializer{b: b, fi: fi, log: cfg.Logger, extSetName: cfg.ExtInstSet}
}

// Builder returns the builder instructions are emitted through.
func (s *Serializer) Builder() *spirv.Builder { return s.b }

// Interface returns the function interface variables are resolved against.
func (s *Serializer) Interface() *spvfi.FunctionInterface { return s.fi }

// Logger returns the serializer's logger.
func (s *Serializer) Logger() *slog.Logger { return s.log }

// TypeID returns the id of t in the module being built, declaring it if
// needed. It panics for literal types, which have no type id.
func (s *Serializer) TypeID(t spvfi.InstructionType) uint32 {
	id, ok := spvfi.TypeID(t, s.b)
	if !ok {
		panic(fmt.Sprintf("type %s has no type id", t))
	}
	return id
}

// ExtInstSet returns the id of the extended instruction set import,
// importing it on first use.
func (s *Serializer) ExtInstSet() uint32 {
	if s.extSet == 0 {
		s.extSet = s.b.ExtInstImport(s.extSetName)
	}
	return s.extSet
}

// GetVariable resolves the runtime variable name of type T. When the
// function interface has a parameter with the name's hash and type T the
// value is extracted from the parameter. Otherwise def is emitted as a
// constant and a warning is logged.
func GetVariable[T any](s *Serializer, name string, def T) DataID[T] {
	typ := RuntimeType[T]()
	hash := spvfi.SimpleHash(name)
	p, ok := s.fi.GetParameter(hash, typ)
	if !ok {
		s.log.Warn("variable not in function interface, using default",
			slog.String("name", name), slog.String("type", typ.String()), slog.Any("default", def))
		return ConstantOf(s, def)
	}
	return DataID[T]{ID: s.b.CompositeExtract(p.SpirvTypeID, p.CompositeID, 1)}
}

// extInst emits an instruction of the extended instruction set.
func (s *Serializer) extInst(resultType, inst uint32, operands ...uint32) uint32 {
	return s.b.ExtInst(resultType, s.ExtInstSet(), inst, operands...)
}
