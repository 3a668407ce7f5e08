package jit

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"

	"github.com/soypat/algae/spirv"
)

// JIT loads a SPIR-V module from disk and serves its assembled words after
// each injection.
type JIT struct {
	inj      *Injector
	words    []uint32
	cacheGen uint64
	capacity int
}

// New loads the SPIR-V binary at path and reflects the target function,
// [DefaultFunction] unless [WithFunction] is given.
func New(path string, opts ...Option) (*JIT, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}
	m, err := spirv.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	o := newOptions(opts)
	o.log.Info("module loaded", slog.String("path", path), slog.String("version", m.Header.Version.String()),
		slog.Int("functions", len(m.Functions)), slog.Uint64("bound", uint64(m.Header.Bound)))
	return NewFromModule(m, opts...)
}

// NewFromConfig is like [New] with the module path and options taken from cfg.
func NewFromConfig(cfg Config) (*JIT, error) {
	if cfg.Module == "" {
		return nil, fmt.Errorf("invalid config: module path is required")
	}
	opts, err := cfg.Options()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return New(cfg.Module, opts...)
}

// NewFromModule returns a JIT over an already parsed module, which is owned
// by the JIT afterwards.
func NewFromModule(m *spirv.Module, opts ...Option) (*JIT, error) {
	o := newOptions(opts)
	inj, err := NewInjector(m, o.function, opts...)
	if err != nil {
		return nil, err
	}
	return &JIT{inj: inj, capacity: o.capacity}, nil
}

// Injector returns the injector modifying the JIT's module.
func (j *JIT) Injector() *Injector { return j.inj }

// Module returns the current module assembled into words. The result is
// cached until the next injection and must not be modified.
func (j *JIT) Module() []uint32 {
	if j.words != nil && j.cacheGen == j.inj.Generation() {
		return j.words
	}
	j.words = j.inj.Module().AppendWords(make([]uint32, 0, j.capacity))
	j.cacheGen = j.inj.Generation()
	return j.words
}

// Bytes returns the current module encoded as little endian bytes.
func (j *JIT) Bytes() []byte {
	words := j.Module()
	b := make([]byte, 0, 4*len(words))
	for _, w := range words {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}

// WriteFile writes the current module to path.
func (j *JIT) WriteFile(path string) error {
	return os.WriteFile(path, j.Bytes(), 0o644)
}
