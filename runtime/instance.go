package runtime

import (
	"context"
	"fmt"
	"math"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/allocator"
	"github.com/wippyai/wasm-executor/blob"
	"github.com/wippyai/wasm-executor/engine"
	"github.com/wippyai/wasm-executor/errors"
)

// InstanceStats describes an instance's usage.
type InstanceStats struct {
	// Allocator holds the heap statistics of the most recent call.
	Allocator  allocator.Stats
	Calls      uint64
	HeapBase   uint32
	MemorySize uint32
}

// Instance is one live guest instance that starts every call from the
// module's initial state. It is not safe for concurrent use.
type Instance struct {
	runtime  *Runtime
	wrapper  *engine.InstanceWrapper
	globals  *blob.GlobalsSnapshot[api.Global]
	stats    InstanceStats
	heapBase uint32

	// memorySize is the linear memory size right after instantiation.
	memorySize uint32
}

// Call resets the instance, copies data into guest memory, invokes the
// export selected by method with the (ptr, len) of the copy and returns a
// copy of the (ptr, len) range the export returns.
//
// The export must have the signature (i32, i32) -> i64; the result packs
// the pointer in the low and the length in the high 32 bits.
func (i *Instance) Call(ctx context.Context, method wasmexecutor.InvokeMethod, data []byte) ([]byte, error) {
	if i.wrapper == nil {
		return nil, errors.InvalidInput(errors.PhaseInvoke, "instance is closed")
	}
	name, ok := method.ExportName()
	if !ok {
		if _, isTable := method.TableIndex(); isTable {
			return nil, errors.Unsupported(errors.PhaseInvoke, "invocation by table index")
		}
		return nil, errors.InvalidInput(errors.PhaseInvoke, "no invoke method given")
	}
	if err := i.checkExport(name); err != nil {
		return nil, err
	}
	if uint64(len(data)) > math.MaxUint32 {
		return nil, errors.InvalidInput(errors.PhaseInject, fmt.Sprintf("input of %d bytes exceeds the 32-bit address space", len(data)))
	}

	if err := i.reset(ctx); err != nil {
		return nil, err
	}

	ptr, alloc, err := i.inject(data)
	if err != nil {
		return nil, err
	}

	packed, err := i.wrapper.Call(ctx, name, uint64(ptr), uint64(len(data)))
	if err != nil {
		return nil, err
	}

	outPtr, outLen := unpackPtrLen(packed)
	out, err := i.wrapper.Memory().Read(outPtr, outLen)
	if err != nil {
		return nil, errors.MemoryAccess(errors.PhaseExtract, outPtr, uint64(outLen), uint64(i.wrapper.Memory().Size()))
	}

	i.stats.Calls++
	i.stats.Allocator = alloc.Stats()
	i.runtime.logger.Debug("call finished",
		zap.String("export", name),
		zap.Int("input_size", len(data)),
		zap.Uint32("output_ptr", outPtr),
		zap.Uint32("output_size", outLen))
	return out, nil
}

func (i *Instance) checkExport(name string) error {
	params, results, ok := i.wrapper.Signature(name)
	if !ok {
		return errors.Invocation(name, "export not found", nil)
	}
	if len(params) != 2 || params[0] != api.ValueTypeI32 || params[1] != api.ValueTypeI32 ||
		len(results) != 1 || results[0] != api.ValueTypeI64 {
		return errors.Invocation(name, "export must have signature (i32, i32) -> (i64)", nil)
	}
	return nil
}

// reset restores the memory and globals captured when the module and the
// instance were created. Memory a previous call grew cannot be shrunk in
// place, so the guest is linked again instead.
func (i *Instance) reset(ctx context.Context) error {
	mem := i.wrapper.Memory()
	if mem.Size() != i.memorySize {
		return i.relink(ctx, mem.Size())
	}
	if i.runtime.cfg.ClearMemory {
		mem.Clear()
	}
	if err := i.runtime.data.Apply(mem.Write); err != nil {
		return errors.Wrap(errors.PhaseReset, errors.KindMemoryAccess, err, "restore data segments")
	}
	i.globals.Apply(i.wrapper)
	i.runtime.logger.Debug("instance reset",
		zap.Int("data_bytes", i.runtime.data.Size()),
		zap.Int("globals", i.globals.Len()))
	return nil
}

// relink replaces the wrapper with a freshly instantiated one. The instance
// is closed if that fails.
func (i *Instance) relink(ctx context.Context, grown uint32) error {
	closeErr := i.wrapper.Close(ctx)
	i.wrapper = nil

	w, _, globals, err := i.runtime.link(ctx)
	if err != nil {
		return errors.Wrap(errors.PhaseReset, errors.KindImportBinding, multierr.Append(err, closeErr), "relink grown instance")
	}
	if closeErr != nil {
		i.runtime.logger.Warn("close grown instance", zap.Error(closeErr))
	}
	i.wrapper = w
	i.globals = globals
	i.memorySize = w.Memory().Size()
	i.runtime.logger.Debug("instance relinked",
		zap.Uint32("grown_size", grown),
		zap.Uint32("memory_size", i.memorySize))
	return nil
}

// inject allocates room for data above the heap base and copies it in.
func (i *Instance) inject(data []byte) (uint32, *allocator.FreeingBump, error) {
	mem := i.wrapper.Memory()
	alloc := allocator.New(i.heapBase)
	size := uint32(len(data))

	ptr, err := alloc.Allocate(engine.NewAllocatorMemory(mem), size)
	if err != nil {
		return 0, nil, errors.Allocation(errors.PhaseInject, size, err)
	}
	if err := mem.Ensure(uint64(ptr) + uint64(size)); err != nil {
		return 0, nil, errors.Allocation(errors.PhaseInject, size, err)
	}
	if err := mem.Write(ptr, data); err != nil {
		return 0, nil, errors.Wrap(errors.PhaseInject, errors.KindMemoryAccess, err, "copy input")
	}
	return ptr, alloc, nil
}

func unpackPtrLen(v uint64) (ptr, length uint32) {
	return uint32(v), uint32(v >> 32)
}

// GlobalConst returns the current value of the exported global name, false
// if the instance exports no such global.
func (i *Instance) GlobalConst(name string) (wasmexecutor.Value, bool, error) {
	if i.wrapper == nil {
		return wasmexecutor.Value{}, false, errors.InvalidInput(errors.PhaseInvoke, "instance is closed")
	}
	g, ok := i.wrapper.Global(name)
	if !ok {
		return wasmexecutor.Value{}, false, nil
	}
	if _, ok := engine.ValueTypeOf(g.Type()); !ok {
		return wasmexecutor.Value{}, true, errors.UnsupportedValue(api.ValueTypeName(g.Type()))
	}
	return engine.ToValue(g.Type(), g.Get()), true, nil
}

// HeapBase returns the guest's __heap_base.
func (i *Instance) HeapBase() uint32 {
	return i.heapBase
}

// Exports lists the guest's exported functions.
func (i *Instance) Exports() []string {
	if i.wrapper == nil {
		return nil
	}
	return i.wrapper.Exports()
}

// Stats returns usage counters.
func (i *Instance) Stats() InstanceStats {
	s := i.stats
	s.HeapBase = i.heapBase
	if i.wrapper != nil {
		s.MemorySize = i.wrapper.Memory().Size()
	}
	return s
}

// Close releases the instance. Further calls fail.
func (i *Instance) Close(ctx context.Context) error {
	if i.wrapper == nil {
		return nil
	}
	err := i.wrapper.Close(ctx)
	i.wrapper = nil
	return err
}

var _ wasmexecutor.WasmInstance = (*Instance)(nil)
