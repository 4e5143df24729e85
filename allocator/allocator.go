// Package allocator implements a freeing-bump heap allocator over guest
// linear memory.
//
// Allocations are rounded up to a power of two between 8 bytes and 32 MiB
// and prefixed with an 8-byte header. Freed blocks go onto a per-size free
// list and are reused by later allocations of the same order, otherwise the
// bump pointer advances from the heap base. All bookkeeping lives in guest
// memory and is reached through the Memory interface.
package allocator

import (
	"errors"
	"fmt"
	"math/bits"
)

const (
	// Alignment of every returned pointer.
	Alignment = 8
	// HeaderSize precedes every allocation.
	HeaderSize = 8
	// MinAllocation is the smallest block size.
	MinAllocation = 8
	// MaxAllocation is the largest block size.
	MaxAllocation = 32 * 1024 * 1024
	// NumOrders is the number of block sizes between MinAllocation and MaxAllocation.
	NumOrders = 23

	nilMarker    = ^uint32(0)
	occupiedFlag = uint64(1) << 32
)

// Allocator errors.
var (
	ErrOutOfSpace      = errors.New("allocator out of space")
	ErrRequestTooLarge = errors.New("requested allocation size is too large")
	ErrPoisoned        = errors.New("allocator is poisoned by a previous failure")
	ErrInvalidPointer  = errors.New("invalid pointer for deallocation")
	ErrCorruptedHeader = errors.New("heap header is corrupted")
	ErrMemoryReadWrite = errors.New("heap memory access failed")
)

// Memory is the guest memory capability the allocator keeps its headers in.
type Memory interface {
	ReadLeU64(ptr uint32) (uint64, error)
	WriteLeU64(ptr uint32, v uint64) error
	// Size is the usable address-space ceiling, not the current memory size.
	Size() uint32
}

// Stats describes allocator usage.
type Stats struct {
	BytesAllocated     uint64
	BytesAllocatedPeak uint64
	BytesAllocatedSum  uint64
	AddressSpaceUsed   uint64
}

// FreeingBump is a heap allocator starting at a heap base. It is not safe
// for concurrent use and is meant to live for a single guest call.
type FreeingBump struct {
	originalHeapBase uint64
	bumper           uint64
	heads            [NumOrders]uint32
	poisoned         bool
	stats            Stats
}

// New creates an allocator whose first block header starts at heapBase
// rounded up to Alignment.
func New(heapBase uint32) *FreeingBump {
	a := &FreeingBump{
		originalHeapBase: uint64(heapBase),
		bumper:           alignUp(uint64(heapBase)),
	}
	for i := range a.heads {
		a.heads[i] = nilMarker
	}
	return a
}

// Stats returns a copy of the usage counters.
func (a *FreeingBump) Stats() Stats {
	return a.stats
}

// Allocate reserves size bytes and returns the pointer to the payload.
// Any failure poisons the allocator.
func (a *FreeingBump) Allocate(mem Memory, size uint32) (uint32, error) {
	if a.poisoned {
		return 0, ErrPoisoned
	}
	ptr, err := a.allocate(mem, size)
	if err != nil {
		a.poisoned = true
		return 0, err
	}
	return ptr, nil
}

func (a *FreeingBump) allocate(mem Memory, size uint32) (uint32, error) {
	order, err := orderFromSize(size)
	if err != nil {
		return 0, err
	}

	var headerPtr uint32
	if head := a.heads[order]; head != nilMarker {
		next, err := readHeader(mem, head)
		if err != nil {
			return 0, err
		}
		if next&occupiedFlag != 0 {
			return 0, fmt.Errorf("%w: free list entry at %d is marked occupied", ErrCorruptedHeader, head)
		}
		a.heads[order] = uint32(next)
		headerPtr = head
	} else {
		headerPtr, err = a.bump(blockSize(order)+HeaderSize, mem.Size())
		if err != nil {
			return 0, err
		}
	}

	if err := writeHeader(mem, headerPtr, occupiedFlag|uint64(order)); err != nil {
		return 0, err
	}

	a.stats.BytesAllocated += uint64(blockSize(order)) + HeaderSize
	a.stats.BytesAllocatedSum += uint64(blockSize(order)) + HeaderSize
	a.stats.BytesAllocatedPeak = max(a.stats.BytesAllocatedPeak, a.stats.BytesAllocated)
	a.stats.AddressSpaceUsed = a.bumper - a.originalHeapBase

	return headerPtr + HeaderSize, nil
}

// Deallocate returns the block at ptr to its free list.
// Any failure poisons the allocator.
func (a *FreeingBump) Deallocate(mem Memory, ptr uint32) error {
	if a.poisoned {
		return ErrPoisoned
	}
	if err := a.deallocate(mem, ptr); err != nil {
		a.poisoned = true
		return err
	}
	return nil
}

func (a *FreeingBump) deallocate(mem Memory, ptr uint32) error {
	if ptr < HeaderSize || uint64(ptr) < a.originalHeapBase+HeaderSize {
		return ErrInvalidPointer
	}
	headerPtr := ptr - HeaderSize

	header, err := readHeader(mem, headerPtr)
	if err != nil {
		return err
	}
	if header&occupiedFlag == 0 {
		return fmt.Errorf("%w: block at %d is not allocated", ErrInvalidPointer, ptr)
	}
	order := uint32(header)
	if order >= NumOrders {
		return fmt.Errorf("%w: order %d at %d", ErrCorruptedHeader, order, headerPtr)
	}

	if err := writeHeader(mem, headerPtr, uint64(a.heads[order])); err != nil {
		return err
	}
	a.heads[order] = headerPtr

	a.stats.BytesAllocated -= uint64(blockSize(order)) + HeaderSize
	return nil
}

func (a *FreeingBump) bump(size, ceiling uint32) (uint32, error) {
	if a.bumper+uint64(size) > uint64(ceiling) {
		return 0, fmt.Errorf("%w: need %d bytes at %d, ceiling %d", ErrOutOfSpace, size, a.bumper, ceiling)
	}
	ptr := uint32(a.bumper)
	a.bumper += uint64(size)
	return ptr, nil
}

func orderFromSize(size uint32) (uint32, error) {
	if size > MaxAllocation {
		return 0, fmt.Errorf("%w: %d bytes", ErrRequestTooLarge, size)
	}
	size = max(size, MinAllocation)
	// ceil(log2(size)) - log2(MinAllocation)
	return uint32(bits.Len32(size-1)) - 3, nil
}

func blockSize(order uint32) uint32 {
	return MinAllocation << order
}

func alignUp(v uint64) uint64 {
	return (v + Alignment - 1) &^ (Alignment - 1)
}

func readHeader(mem Memory, ptr uint32) (uint64, error) {
	v, err := mem.ReadLeU64(ptr)
	if err != nil {
		return 0, fmt.Errorf("%w: read header at %d: %w", ErrMemoryReadWrite, ptr, err)
	}
	return v, nil
}

func writeHeader(mem Memory, ptr uint32, v uint64) error {
	if err := mem.WriteLeU64(ptr, v); err != nil {
		return fmt.Errorf("%w: write header at %d: %w", ErrMemoryReadWrite, ptr, err)
	}
	return nil
}
