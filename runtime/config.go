package runtime

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-executor/engine"
	"github.com/wippyai/wasm-executor/errors"
)

// DefaultHeapPages is the default initial linear memory size (128 MiB).
const DefaultHeapPages = 2048

// Config controls how a Runtime creates its instances.
type Config struct {
	// Logger receives debug events. Nil uses engine.Logger().
	Logger *zap.Logger `yaml:"-"`

	// MaxMemorySize caps linear memory in bytes. Nil leaves memory
	// unbounded within the 32-bit address space.
	MaxMemorySize *uint32 `yaml:"max_memory_size,omitempty"`

	// Engine selects the wazero compiler or interpreter; "auto" picks the
	// compiler where the platform supports it.
	Engine engine.EngineKind `yaml:"engine,omitempty"`

	// HeapPages is the initial linear memory size in 64 KiB pages.
	HeapPages uint32 `yaml:"heap_pages"`

	// AllowMissingImports links env functions without a host
	// implementation to stubs that trap when called.
	AllowMissingImports bool `yaml:"allow_missing_imports"`

	// ClearMemory zeroes the whole linear memory before every call, in
	// addition to restoring data segments and globals. It is on by default
	// so every call starts from the instantiation state. Turning it off
	// skips zeroing HeapPages worth of memory per call; bytes a call wrote
	// outside the data segments are then visible to the next call.
	ClearMemory bool `yaml:"clear_memory"`
}

// DefaultConfig returns the configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		HeapPages:   DefaultHeapPages,
		Engine:      engine.EngineAuto,
		ClearMemory: true,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.HeapPages > engine.MemoryLimitPages {
		return errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("heap_pages %d exceeds the %d page address space", c.HeapPages, engine.MemoryLimitPages))
	}
	if c.MaxMemorySize != nil && uint64(c.HeapPages)*engine.PageSize > uint64(*c.MaxMemorySize) {
		return errors.InvalidInput(errors.PhaseConfig,
			fmt.Sprintf("heap_pages %d (%d bytes) exceeds max_memory_size %d", c.HeapPages, uint64(c.HeapPages)*engine.PageSize, *c.MaxMemorySize))
	}
	switch c.Engine {
	case "", engine.EngineAuto, engine.EngineCompiler, engine.EngineInterpreter:
	default:
		return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("unknown engine %q", c.Engine))
	}
	return nil
}

func (c Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return engine.Logger()
}

// ParseConfig decodes YAML on top of DefaultConfig and validates the result.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "read config")
	}
	return ParseConfig(data)
}
