package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/blob"
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/wasm"
)

// MemoryLimitPages is the 32-bit address space in pages.
const MemoryLimitPages = 65536

// EngineKind selects the wazero execution engine.
type EngineKind string

const (
	EngineAuto        EngineKind = "auto"
	EngineCompiler    EngineKind = "compiler"
	EngineInterpreter EngineKind = "interpreter"
)

// WrapperConfig holds configuration for instance creation
type WrapperConfig struct {
	// CompilationCache is shared between wrappers of the same module so
	// only the first one pays for compilation. Nil disables caching.
	CompilationCache wazero.CompilationCache

	// MaxMemorySize caps linear memory in bytes. Nil means unbounded
	// within the 32-bit address space.
	MaxMemorySize *uint32

	// Name is the guest module name, "guest" if empty.
	Name string

	Engine EngineKind

	// HeapPages is the initial size of the linear memory in pages.
	HeapPages uint32

	// MemoryLimitPages sets the maximum memory per instance in pages (64KB each).
	// 0 means default (65536 pages = 4GB).
	MemoryLimitPages uint32

	// AllowMissingImports replaces env functions without a host
	// implementation by stubs that trap when called.
	AllowMissingImports bool
}

// RuntimeConfig builds the wazero configuration for a wrapper runtime.
func (c WrapperConfig) RuntimeConfig() wazero.RuntimeConfig {
	var rc wazero.RuntimeConfig
	switch c.Engine {
	case EngineCompiler:
		rc = wazero.NewRuntimeConfigCompiler()
	case EngineInterpreter:
		rc = wazero.NewRuntimeConfigInterpreter()
	default:
		rc = wazero.NewRuntimeConfig()
	}
	if c.MemoryLimitPages > 0 {
		rc = rc.WithMemoryLimitPages(c.MemoryLimitPages)
	}
	if c.CompilationCache != nil {
		rc = rc.WithCompilationCache(c.CompilationCache)
	}
	return rc
}

func (c WrapperConfig) limitPages() uint32 {
	limit := uint32(MemoryLimitPages)
	if c.MemoryLimitPages > 0 {
		limit = min(limit, c.MemoryLimitPages)
	}
	if c.MaxMemorySize != nil {
		limit = min(limit, *c.MaxMemorySize/PageSize)
	}
	return limit
}

// InstanceWrapper is one linked guest instance in its own wazero runtime,
// together with the env module that provides its memory and host functions.
type InstanceWrapper struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	module   api.Module
	memory   *Memory
	stubbed  []string
}

// NewInstanceWrapper compiles code, links it against hosts and a linear
// memory of cfg.HeapPages pages, and instantiates it.
func NewInstanceWrapper(ctx context.Context, cfg WrapperConfig, code []byte, hosts []wasmexecutor.HostFunction) (*InstanceWrapper, error) {
	guest, err := wasm.ParseModule(code)
	if err != nil {
		return nil, errors.Module(errors.PhaseInstantiate, "parse module", err)
	}
	if err := ValidateHostFunctions(hosts); err != nil {
		return nil, err
	}
	env, err := buildEnvModule(envRequest{
		guest:               guest,
		hosts:               hosts,
		heapPages:           cfg.HeapPages,
		maxMemoryBytes:      cfg.MaxMemorySize,
		allowMissingImports: cfg.AllowMissingImports,
	})
	if err != nil {
		return nil, err
	}

	w := &InstanceWrapper{runtime: wazero.NewRuntimeWithConfig(ctx, cfg.RuntimeConfig())}
	if err := w.instantiate(ctx, cfg, code, hosts, env); err != nil {
		err = multierr.Append(err, w.runtime.Close(ctx))
		return nil, err
	}
	return w, nil
}

func (w *InstanceWrapper) instantiate(ctx context.Context, cfg WrapperConfig, code []byte, hosts []wasmexecutor.HostFunction, env *envModule) error {
	if len(hosts) > 0 {
		if _, err := instantiateHostModule(ctx, w.runtime, hosts, w.resolveMemory(cfg.limitPages())); err != nil {
			return err
		}
	}
	if env != nil {
		w.stubbed = env.stubbed
		envCfg := wazero.NewModuleConfig().WithName(blob.ImportModule).WithStartFunctions()
		if _, err := w.runtime.InstantiateWithConfig(ctx, env.code, envCfg); err != nil {
			return errors.Wrap(errors.PhaseInstantiate, errors.KindImportBinding, err, "instantiate env module")
		}
		if len(env.stubbed) > 0 {
			Logger().Debug("stubbed missing imports", zap.Strings("names", env.stubbed))
		}
	}

	compiled, err := w.runtime.CompileModule(ctx, code)
	if err != nil {
		return errors.Module(errors.PhaseInstantiate, "compile module", err)
	}
	w.compiled = compiled

	name := cfg.Name
	if name == "" {
		name = "guest"
	}
	mod, err := w.runtime.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name).WithStartFunctions())
	if err != nil {
		return errors.Wrap(errors.PhaseInstantiate, errors.KindImportBinding, err, "link guest module")
	}
	w.module = mod

	mem := mod.Memory()
	if mem == nil {
		return errors.Module(errors.PhaseInstantiate, "instance has no linear memory", nil)
	}
	w.memory = NewMemory(mem, cfg.limitPages())

	// The guest's own memory starts at its declared minimum.
	if env == nil || env.memory == nil {
		pages := min(cfg.HeapPages, w.memory.Ceiling()/PageSize)
		if err := w.memory.EnsurePages(pages); err != nil {
			return errors.Wrap(errors.PhaseInstantiate, errors.KindModule, err, "grow exported memory to heap pages")
		}
	}
	return nil
}

func (w *InstanceWrapper) resolveMemory(limitPages uint32) memoryResolver {
	return func(caller api.Module) *Memory {
		if w.memory != nil {
			return w.memory
		}
		// Host calls from a start function run before the wrapper is complete.
		if caller != nil && caller.Memory() != nil {
			return NewMemory(caller.Memory(), limitPages)
		}
		return nil
	}
}

// HeapBase reads the exported __heap_base global as an unsigned pointer.
func (w *InstanceWrapper) HeapBase() (uint32, error) {
	if w.module == nil {
		return 0, errClosed()
	}
	g := w.module.ExportedGlobal(blob.HeapBaseExport)
	if g == nil {
		return 0, errors.New(errors.PhaseInstantiate, errors.KindModule).
			Name(blob.HeapBaseExport).
			Detail("heap base global is not exported").
			Build()
	}
	if g.Type() != api.ValueTypeI32 {
		return 0, errors.New(errors.PhaseInstantiate, errors.KindModule).
			Name(blob.HeapBaseExport).
			Detail("heap base global is %s, want i32", api.ValueTypeName(g.Type())).
			Build()
	}
	return uint32(g.Get()), nil
}

// Global returns the exported global name, false if absent or closed.
func (w *InstanceWrapper) Global(name string) (api.Global, bool) {
	if w.module == nil {
		return nil, false
	}
	g := w.module.ExportedGlobal(name)
	return g, g != nil
}

// GlobalValue returns the raw value of g.
func (w *InstanceWrapper) GlobalValue(g api.Global) uint64 {
	return g.Get()
}

// SetGlobalValue overwrites g, which must be mutable.
func (w *InstanceWrapper) SetGlobalValue(g api.Global, v uint64) {
	mg, ok := g.(api.MutableGlobal)
	if !ok {
		panic(fmt.Sprintf("engine: global %s is not mutable", g))
	}
	mg.Set(v)
}

// Memory returns the instance's linear memory, nil after Close.
func (w *InstanceWrapper) Memory() *Memory {
	return w.memory
}

// Exports lists the exported function names in sorted order.
func (w *InstanceWrapper) Exports() []string {
	defs := w.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stubbed lists the env imports replaced by trapping stubs.
func (w *InstanceWrapper) Stubbed() []string {
	return w.stubbed
}

// Signature returns the parameter and result types of an export. ok is
// false if the export is absent or the wrapper is closed.
func (w *InstanceWrapper) Signature(name string) (params, results []api.ValueType, ok bool) {
	if w.module == nil {
		return nil, nil, false
	}
	fn := w.module.ExportedFunction(name)
	if fn == nil {
		return nil, nil, false
	}
	def := fn.Definition()
	return def.ParamTypes(), def.ResultTypes(), true
}

// Call invokes the export name, which must return exactly one i64.
func (w *InstanceWrapper) Call(ctx context.Context, name string, params ...uint64) (uint64, error) {
	if w.module == nil {
		return 0, errClosed()
	}
	fn := w.module.ExportedFunction(name)
	if fn == nil {
		return 0, errors.Invocation(name, "export not found", nil)
	}
	def := fn.Definition()
	if len(def.ParamTypes()) != len(params) {
		return 0, errors.Invocation(name, fmt.Sprintf("export takes %d parameters, got %d", len(def.ParamTypes()), len(params)), nil)
	}
	if rt := def.ResultTypes(); len(rt) != 1 || rt[0] != api.ValueTypeI64 {
		return 0, errors.Invocation(name, fmt.Sprintf("export must return a single i64, has %s", typeList(rt)), nil)
	}

	results, err := fn.Call(ctx, params...)
	if err != nil {
		return 0, errors.Invocation(name, "call failed", err)
	}
	return results[0], nil
}

// Close releases the runtime and every module in it.
func (w *InstanceWrapper) Close(ctx context.Context) error {
	if w.runtime == nil {
		return nil
	}
	err := w.runtime.Close(ctx)
	w.runtime = nil
	w.module = nil
	w.memory = nil
	if err != nil {
		return errors.Wrap(errors.PhaseInstantiate, errors.KindModule, err, "close runtime")
	}
	return nil
}

func errClosed() error {
	return errors.InvalidInput(errors.PhaseInvoke, "instance wrapper is closed")
}

func typeList(ts []api.ValueType) string {
	s := "("
	for i, t := range ts {
		if i > 0 {
			s += ", "
		}
		s += api.ValueTypeName(t)
	}
	return s + ")"
}

var _ blob.InstanceGlobals[api.Global] = (*InstanceWrapper)(nil)
