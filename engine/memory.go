package engine

import (
	"math"

	"github.com/tetratelabs/wazero/api"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/allocator"
	"github.com/wippyai/wasm-executor/errors"
)

// PageSize is the WebAssembly page size in bytes.
const PageSize = 65536

// Memory wraps a wazero linear memory with bounds-checked access.
type Memory struct {
	mem      api.Memory
	maxPages uint32
}

// NewMemory wraps mem. maxPages bounds Grow and is usually the declared
// maximum of the memory or the runtime page limit.
func NewMemory(mem api.Memory, maxPages uint32) *Memory {
	if def := mem.Definition(); def != nil {
		if declared, ok := def.Max(); ok && declared < maxPages {
			maxPages = declared
		}
	}
	return &Memory{mem: mem, maxPages: maxPages}
}

// Read returns a copy of length bytes at offset.
func (m *Memory) Read(offset uint32, length uint32) ([]byte, error) {
	view, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.MemoryAccess(errors.PhaseHost, offset, uint64(length), uint64(m.mem.Size()))
	}
	out := make([]byte, len(view))
	copy(out, view)
	return out, nil
}

// Write copies data to offset.
func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.MemoryAccess(errors.PhaseHost, offset, uint64(len(data)), uint64(m.mem.Size()))
	}
	return nil
}

// Size returns the current memory size in bytes.
func (m *Memory) Size() uint32 {
	return m.mem.Size()
}

// Clear zeroes the whole memory.
func (m *Memory) Clear() {
	size := m.mem.Size()
	if size == 0 {
		return
	}
	view, ok := m.mem.Read(0, size)
	if !ok {
		return
	}
	clear(view)
}

// Ceiling returns the largest byte size the memory may grow to, capped at
// the 32-bit address space.
func (m *Memory) Ceiling() uint32 {
	limit := uint64(m.maxPages) * PageSize
	if limit > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(limit)
}

// Ensure grows the memory until [0, end) is addressable.
func (m *Memory) Ensure(end uint64) error {
	size := uint64(m.mem.Size())
	if end <= size {
		return nil
	}
	if end > uint64(m.Ceiling()) {
		return errors.MemoryAccess(errors.PhaseInject, uint32(min(size, math.MaxUint32)), end-size, size)
	}
	delta := (end - size + PageSize - 1) / PageSize
	if _, ok := m.mem.Grow(uint32(delta)); !ok {
		return errors.New(errors.PhaseInject, errors.KindMemoryAccess).
			Detail("grow memory by %d pages from %d bytes", delta, size).
			Build()
	}
	return nil
}

// EnsurePages grows the memory to at least pages pages.
func (m *Memory) EnsurePages(pages uint32) error {
	return m.Ensure(uint64(pages) * PageSize)
}

// API returns the underlying wazero memory.
func (m *Memory) API() api.Memory {
	return m.mem
}

// AllocatorMemory adapts a Memory to the allocator's header access.
// Size reports the growth ceiling, and header writes past the current end
// grow the memory on demand.
type AllocatorMemory struct {
	mem *Memory
}

// NewAllocatorMemory binds an allocator adapter to mem.
func NewAllocatorMemory(mem *Memory) *AllocatorMemory {
	return &AllocatorMemory{mem: mem}
}

func (a *AllocatorMemory) ReadLeU64(ptr uint32) (uint64, error) {
	v, ok := a.mem.mem.ReadUint64Le(ptr)
	if !ok {
		return 0, errors.MemoryAccess(errors.PhaseInject, ptr, 8, uint64(a.mem.Size()))
	}
	return v, nil
}

func (a *AllocatorMemory) WriteLeU64(ptr uint32, v uint64) error {
	if err := a.mem.Ensure(uint64(ptr) + 8); err != nil {
		return err
	}
	if !a.mem.mem.WriteUint64Le(ptr, v) {
		return errors.MemoryAccess(errors.PhaseInject, ptr, 8, uint64(a.mem.Size()))
	}
	return nil
}

func (a *AllocatorMemory) Size() uint32 {
	return a.mem.Ceiling()
}

var (
	_ wasmexecutor.Memory = (*Memory)(nil)
	_ allocator.Memory    = (*AllocatorMemory)(nil)
)
