package runtime

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/blob"
	"github.com/wippyai/wasm-executor/engine"
	"github.com/wippyai/wasm-executor/errors"
)

// Runtime is a compiled guest module together with the state captured at
// load time: its data segments and the names of its mutable globals. It is
// immutable after Create and safe for concurrent use.
type Runtime struct {
	cache        wazero.CompilationCache
	data         *blob.DataSegmentsSnapshot
	logger       *zap.Logger
	code         []byte
	globals      blob.MutableGlobalsSet
	hosts        []wasmexecutor.HostFunction
	imports      []blob.FunctionImport
	cfg          Config
	memorySource blob.MemorySource
}

// Create loads code, which may be zstd-compressed, and compiles it. hosts
// are made available to the guest in the env namespace.
func Create(ctx context.Context, code []byte, cfg Config, hosts []wasmexecutor.HostFunction) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := engine.ValidateHostFunctions(hosts); err != nil {
		return nil, err
	}

	b, err := blob.New(code)
	if err != nil {
		return nil, err
	}
	if err := b.Validate(); err != nil {
		return nil, err
	}
	source, err := b.MemorySource()
	if err != nil {
		return nil, err
	}
	imports, err := b.FunctionImports()
	if err != nil {
		return nil, err
	}

	exposed := b.ExposeMutableGlobals()
	data, err := blob.TakeDataSegments(b)
	if err != nil {
		return nil, err
	}

	r := &Runtime{
		cache:        wazero.NewCompilationCache(),
		data:         data,
		logger:       cfg.logger(),
		code:         b.Serialize(),
		globals:      blob.CollectMutableGlobals(b),
		hosts:        append([]wasmexecutor.HostFunction(nil), hosts...),
		imports:      imports,
		cfg:          cfg,
		memorySource: source,
	}

	if err := r.precompile(ctx); err != nil {
		return nil, multierr.Append(err, r.cache.Close(ctx))
	}

	r.logger.Debug("runtime created",
		zap.Int("code_size", len(r.code)),
		zap.Stringer("memory", source),
		zap.Int("data_segments", len(data.Chunks())),
		zap.Int("data_bytes", data.Size()),
		zap.Int("mutable_globals", len(r.globals)),
		zap.Int("exposed_globals", exposed),
		zap.Int("env_imports", len(imports)))
	return r, nil
}

// precompile fills the compilation cache so instances only instantiate.
func (r *Runtime) precompile(ctx context.Context) error {
	rt := wazero.NewRuntimeWithConfig(ctx, r.wrapperConfig().RuntimeConfig())
	defer rt.Close(ctx)
	if _, err := rt.CompileModule(ctx, r.code); err != nil {
		return errors.Module(errors.PhaseLoad, "compile module", err)
	}
	return nil
}

func (r *Runtime) wrapperConfig() engine.WrapperConfig {
	return engine.WrapperConfig{
		CompilationCache:    r.cache,
		MaxMemorySize:       r.cfg.MaxMemorySize,
		Engine:              r.cfg.Engine,
		HeapPages:           r.cfg.HeapPages,
		AllowMissingImports: r.cfg.AllowMissingImports,
	}
}

// Instantiate creates a fresh instance with its own linear memory and
// globals, and captures the globals' initial values.
func (r *Runtime) Instantiate(ctx context.Context) (*Instance, error) {
	w, heapBase, globals, err := r.link(ctx)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("instance created",
		zap.Uint32("heap_base", heapBase),
		zap.Uint32("memory_size", w.Memory().Size()),
		zap.Strings("stubbed_imports", w.Stubbed()))

	return &Instance{
		runtime:    r,
		wrapper:    w,
		heapBase:   heapBase,
		globals:    globals,
		memorySize: w.Memory().Size(),
	}, nil
}

// link instantiates the guest and reads its heap base and mutable globals.
func (r *Runtime) link(ctx context.Context) (*engine.InstanceWrapper, uint32, *blob.GlobalsSnapshot[api.Global], error) {
	w, err := engine.NewInstanceWrapper(ctx, r.wrapperConfig(), r.code, r.hosts)
	if err != nil {
		return nil, 0, nil, err
	}

	heapBase, err := w.HeapBase()
	if err != nil {
		return nil, 0, nil, multierr.Append(err, w.Close(ctx))
	}
	globals, err := blob.TakeGlobals[api.Global](r.globals, w)
	if err != nil {
		return nil, 0, nil, multierr.Append(err, w.Close(ctx))
	}
	return w, heapBase, globals, nil
}

// NewInstance implements wasmexecutor.WasmModule.
func (r *Runtime) NewInstance(ctx context.Context) (wasmexecutor.WasmInstance, error) {
	inst, err := r.Instantiate(ctx)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Config returns the configuration the runtime was created with.
func (r *Runtime) Config() Config {
	return r.cfg
}

// MemorySource reports whether the guest imports or exports its memory.
func (r *Runtime) MemorySource() blob.MemorySource {
	return r.memorySource
}

// DataSegments returns the captured data segments.
func (r *Runtime) DataSegments() *blob.DataSegmentsSnapshot {
	return r.data
}

// MutableGlobals returns the names of the globals restored before each call.
func (r *Runtime) MutableGlobals() blob.MutableGlobalsSet {
	return r.globals
}

// Imports lists the env function imports of the guest.
func (r *Runtime) Imports() []blob.FunctionImport {
	return r.imports
}

// Close releases the compilation cache.
// All instances must be closed before calling this.
func (r *Runtime) Close(ctx context.Context) error {
	return r.cache.Close(ctx)
}

var _ wasmexecutor.WasmModule = (*Runtime)(nil)
