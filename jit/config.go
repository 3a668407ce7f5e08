package jit

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFunction is the debug name of the function injected into when none
// is configured.
const DefaultFunction = "test_shader::injector"

// Config describes a JIT instance. It can be loaded from YAML:
//
//	module: shader.spv
//	function: "test_shader::injector"
//	ext_inst_set: GLSL.std.450
//	capacity: 4096
//	log_level: debug
type Config struct {
	// Module is the path of the SPIR-V binary to load.
	Module string `yaml:"module"`
	// Function is the debug name of the function to inject into.
	// Defaults to [DefaultFunction].
	Function string `yaml:"function,omitempty"`
	// ExtInstSet is the extended instruction set used for math instructions.
	ExtInstSet string `yaml:"ext_inst_set,omitempty"`
	// Capacity is the initial capacity in words of the assembled module buffer.
	Capacity int `yaml:"capacity,omitempty"`
	// LogLevel is one of debug, info, warn or error. When set a text logger
	// writing to stderr at that level is used.
	LogLevel string `yaml:"log_level,omitempty"`
}

// LoadConfig reads a YAML configuration file. Unknown fields are rejected.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}
	return ParseConfig(bytes.NewReader(data))
}

// ParseConfig decodes a YAML configuration from r. Unknown fields are rejected.
func ParseConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Validate checks field values. Module may be empty for configurations
// applied to an already loaded module.
func (cfg Config) Validate() error {
	if cfg.Capacity < 0 {
		return fmt.Errorf("negative capacity %d", cfg.Capacity)
	}
	_, err := cfg.level()
	return err
}

// level parses LogLevel. The zero level is returned for an empty LogLevel.
func (cfg Config) level() (slog.Level, error) {
	var lvl slog.Level
	if cfg.LogLevel == "" {
		return lvl, nil
	}
	if err := lvl.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return lvl, fmt.Errorf("log_level: %w", err)
	}
	return lvl, nil
}

// Options returns the options equivalent to cfg.
func (cfg Config) Options() ([]Option, error) {
	if cfg.Capacity < 0 {
		return nil, fmt.Errorf("negative capacity %d", cfg.Capacity)
	}
	lvl, err := cfg.level()
	if err != nil {
		return nil, err
	}
	var opts []Option
	if cfg.Function != "" {
		opts = append(opts, WithFunction(cfg.Function))
	}
	if cfg.ExtInstSet != "" {
		opts = append(opts, WithExtInstSet(cfg.ExtInstSet))
	}
	if cfg.Capacity > 0 {
		opts = append(opts, WithCapacity(cfg.Capacity))
	}
	if cfg.LogLevel != "" {
		opts = append(opts, WithLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))))
	}
	return opts, nil
}

// Option configures an [Injector] or [JIT].
type Option func(*options)

type options struct {
	log        *slog.Logger
	function   string
	extInstSet string
	capacity   int
}

func newOptions(opts []Option) options {
	o := options{function: DefaultFunction}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = slog.Default()
	}
	return o
}

// WithLogger sets the logger. slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithFunction sets the debug name of the function to inject into.
// Used by [New] and [NewFromConfig].
func WithFunction(name string) Option {
	return func(o *options) { o.function = name }
}

// WithExtInstSet sets the extended instruction set imported for math instructions.
func WithExtInstSet(name string) Option {
	return func(o *options) { o.extInstSet = name }
}

// WithCapacity sets the initial word capacity of the assembled module buffer.
func WithCapacity(words int) Option {
	return func(o *options) { o.capacity = words }
}
