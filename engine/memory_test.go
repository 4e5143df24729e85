package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-executor/allocator"
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/internal/testmodule"
)

func TestMemory_Bounds(t *testing.T) {
	w := newWrapper(t, WrapperConfig{HeapPages: 1}, testmodule.Standard(testmodule.DefaultHeapBase), nil)
	mem := w.Memory()

	require.NoError(t, mem.Write(PageSize-4, []byte{1, 2, 3, 4}))
	got, err := mem.Read(PageSize-4, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, got)

	_, err = mem.Read(PageSize-2, 4)
	assert.ErrorIs(t, err, errors.ErrMemoryAccess)
	assert.ErrorIs(t, mem.Write(PageSize, []byte{1}), errors.ErrMemoryAccess)

	// Read returns a copy.
	got[0] = 9
	again, err := mem.Read(PageSize-4, 1)
	require.NoError(t, err)
	assert.Equal(t, byte(1), again[0])

	mem.Clear()
	cleared, err := mem.Read(testmodule.DataOffset, 4)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 0, 0}, cleared)
}

func TestAllocatorMemory_GrowsOnWrite(t *testing.T) {
	w := newWrapper(t, WrapperConfig{HeapPages: 1}, testmodule.Standard(testmodule.DefaultHeapBase), nil)
	mem := w.Memory()
	am := NewAllocatorMemory(mem)

	require.NoError(t, am.WriteLeU64(PageSize+8, 42))
	assert.Equal(t, uint32(2*PageSize), mem.Size())
	v, err := am.ReadLeU64(PageSize + 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), v)

	_, err = am.ReadLeU64(4 * PageSize)
	assert.ErrorIs(t, err, errors.ErrMemoryAccess)
}

func TestAllocatorMemory_WithAllocator(t *testing.T) {
	w := newWrapper(t, WrapperConfig{HeapPages: 1}, testmodule.Standard(testmodule.DefaultHeapBase), nil)
	mem := w.Memory()
	a := allocator.New(PageSize - 16)

	ptr, err := a.Allocate(NewAllocatorMemory(mem), 4096)
	require.NoError(t, err)
	assert.Equal(t, uint32(PageSize-16+allocator.HeaderSize), ptr)
	require.NoError(t, mem.Ensure(uint64(ptr)+4096))
	assert.NoError(t, mem.Write(ptr, make([]byte, 4096)))
}
