package runtime

import (
	"context"
	"fmt"
	goruntime "runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/errors"
)

// Pool distributes calls over several instances of one Runtime. Each
// instance is guarded by its own lock, so up to size calls run in parallel.
type Pool struct {
	children []*LockedInstance
	mu       sync.RWMutex

	// round robin counter
	rr atomic.Uint64

	// options
	size int
}

// PoolOption is an option for configuring a Pool.
type PoolOption func(*Pool) error

// WithPoolSize configures the number of instances in the Pool.
func WithPoolSize(instances int) PoolOption {
	return func(pool *Pool) error {
		if instances < 1 {
			return errors.InvalidInput(errors.PhaseConfig, fmt.Sprintf("pool size too low: %d", instances))
		}
		pool.size = instances
		return nil
	}
}

// NewPool creates a pool of instances of rt.
// By default, the pool size will match the number of available CPUs.
func NewPool(ctx context.Context, rt *Runtime, options ...PoolOption) (*Pool, error) {
	pool := &Pool{size: goruntime.NumCPU()}
	for _, opt := range options {
		if err := opt(pool); err != nil {
			return nil, err
		}
	}
	pool.children = make([]*LockedInstance, 0, pool.size)
	for range pool.size {
		inst, err := rt.Instantiate(ctx)
		if err != nil {
			return nil, multierr.Append(err, pool.Close(ctx))
		}
		pool.children = append(pool.children, NewLockedInstance(inst))
	}
	return pool, nil
}

func (pool *Pool) child() *LockedInstance {
	n := pool.rr.Add(1) % uint64(len(pool.children))
	return pool.children[n]
}

// Call runs method on the next instance in round-robin order.
func (pool *Pool) Call(ctx context.Context, method wasmexecutor.InvokeMethod, data []byte) ([]byte, error) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	if len(pool.children) == 0 {
		return nil, errors.InvalidInput(errors.PhaseInvoke, "pool is closed")
	}
	return pool.child().Call(ctx, method, data)
}

// GlobalConst reads an exported global from one of the instances.
func (pool *Pool) GlobalConst(name string) (wasmexecutor.Value, bool, error) {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	if len(pool.children) == 0 {
		return wasmexecutor.Value{}, false, errors.InvalidInput(errors.PhaseInvoke, "pool is closed")
	}
	return pool.child().GlobalConst(name)
}

// Size returns the number of instances.
func (pool *Pool) Size() int {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	return len(pool.children)
}

// Stats sums the call counts of all instances and reports the allocator
// statistics of the most recently used one.
func (pool *Pool) Stats() InstanceStats {
	pool.mu.RLock()
	defer pool.mu.RUnlock()
	var total InstanceStats
	if len(pool.children) == 0 {
		return total
	}
	for _, c := range pool.children {
		total.Calls += c.Stats().Calls
	}
	last := pool.children[pool.rr.Load()%uint64(len(pool.children))].Stats()
	total.Allocator = last.Allocator
	total.HeapBase = last.HeapBase
	total.MemorySize = last.MemorySize
	return total
}

// Close closes every instance and reports all failures.
func (pool *Pool) Close(ctx context.Context) error {
	pool.mu.Lock()
	defer pool.mu.Unlock()
	var err error
	for _, c := range pool.children {
		err = multierr.Append(err, c.Close(ctx))
	}
	pool.children = nil
	return err
}

var _ wasmexecutor.WasmInstance = (*Pool)(nil)
