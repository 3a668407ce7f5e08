package spveval

import (
	"errors"
	"fmt"

	"github.com/soypat/algae/spirv"
	"github.com/soypat/algae/spvfi"
	"github.com/soypat/geometry/ms2"
)

var (
	errMismatchBufferLength = errors.New("position and distance buffer length mismatch")
	errEmptyBuffers         = errors.New("empty buffers")
)

// SDF2 evaluates a function returning a float over 2D positions. Each
// position is bound to one vec2 runtime parameter, the remaining parameters
// keep fixed values.
type SDF2 struct {
	m         *spirv.Module
	fn        int
	coord     int
	coordHash uint32
	args      []Value
}

// NewSDF2 returns an evaluator of the function described by fi. Positions
// are bound to the vec2 parameter called coord. values supplies the value
// of every other parameter by name.
func NewSDF2(m *spirv.Module, fi *spvfi.FunctionInterface, coord string, values map[string]Value) (*SDF2, error) {
	fn := &m.Functions[fi.Function]
	if len(fi.Parameters) != len(fn.Parameters) {
		return nil, fmt.Errorf("function has %d parameters but %d are runtime variables", len(fn.Parameters), len(fi.Parameters))
	}
	names := make(map[uint32]string, len(values))
	for name := range values {
		names[spvfi.SimpleHash(name)] = name
	}
	vec2 := spvfi.Vector{Elem: spvfi.Float{Width: 32}, Count: 2}
	sdf := &SDF2{m: m, fn: fi.Function, coord: -1, coordHash: spvfi.SimpleHash(coord), args: make([]Value, len(fi.Parameters))}
	for i, p := range fi.Parameters {
		if p.NameHash == sdf.coordHash && spvfi.Equal(p.Type, vec2) {
			sdf.coord = i
			continue
		}
		name, ok := names[p.NameHash]
		if !ok {
			return nil, fmt.Errorf("no value for parameter %d with hash %#x", i, p.NameHash)
		}
		sdf.args[i] = Parameter(p.NameHash, values[name])
	}
	if sdf.coord < 0 {
		return nil, fmt.Errorf("no vec2 parameter called %q", coord)
	}
	return sdf, nil
}

// Evaluate computes the function at each position and stores the results in dist.
func (sdf *SDF2) Evaluate(pos []ms2.Vec, dist []float32, _ any) error {
	if len(pos) != len(dist) {
		return errMismatchBufferLength
	} else if len(pos) == 0 {
		return errEmptyBuffers
	}
	args := make([]Value, len(sdf.args))
	copy(args, sdf.args)
	for i, p := range pos {
		args[sdf.coord] = Parameter(sdf.coordHash, Vec2(p))
		v, err := Call(sdf.m, sdf.fn, args...)
		if err != nil {
			return err
		}
		dist[i], err = v.AsFloat()
		if err != nil {
			return err
		}
	}
	return nil
}
