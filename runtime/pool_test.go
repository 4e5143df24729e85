package runtime

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/internal/testmodule"
)

func TestPool_Concurrent(t *testing.T) {
	ctx := context.Background()
	rt, err := Create(ctx, testmodule.AddOne(), testConfig(), addOneHosts(t))
	require.NoError(t, err)
	defer rt.Close(ctx)

	pool, err := NewPool(ctx, rt, WithPoolSize(4))
	require.NoError(t, err)
	defer pool.Close(ctx)
	assert.Equal(t, 4, pool.Size())

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := range 64 {
		wg.Add(1)
		go func(v uint32) {
			defer wg.Done()
			out, err := pool.Call(ctx, wasmexecutor.Export("main"), le32(v))
			if err != nil {
				errs <- err
				return
			}
			if string(out) != string(le32(v+1)) {
				errs <- assert.AnError
			}
		}(uint32(i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assert.Equal(t, uint64(64), pool.Stats().Calls)
}

func TestPool_Options(t *testing.T) {
	ctx := context.Background()
	rt, err := Create(ctx, testmodule.Constant(), testConfig(), nil)
	require.NoError(t, err)
	defer rt.Close(ctx)

	_, err = NewPool(ctx, rt, WithPoolSize(0))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	pool, err := NewPool(ctx, rt)
	require.NoError(t, err)
	assert.Positive(t, pool.Size())

	v, ok, err := pool.GlobalConst("__heap_base")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Zero(t, v.I32())

	require.NoError(t, pool.Close(ctx))
	_, err = pool.Call(ctx, wasmexecutor.Export("main"), nil)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestPool_InstantiateFailure(t *testing.T) {
	ctx := context.Background()
	rt, err := Create(ctx, testmodule.AddOne(), testConfig(), nil)
	require.NoError(t, err)
	defer rt.Close(ctx)

	_, err = NewPool(ctx, rt, WithPoolSize(2))
	assert.ErrorIs(t, err, errors.ErrImportBinding)
}

func TestLockedInstance(t *testing.T) {
	ctx := context.Background()
	_, inst := newInstance(t, testmodule.Standard(testmodule.DefaultHeapBase), testConfig(), nil)
	locked := NewLockedInstance(inst)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := locked.Call(ctx, wasmexecutor.Export("counter"), nil)
			assert.NoError(t, err)
			assert.Equal(t, le32(1), out)
		}()
	}
	wg.Wait()

	assert.Equal(t, uint64(16), locked.Stats().Calls)
	v, ok, err := locked.GlobalConst("ticks")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(100), v.I32())
	assert.NoError(t, locked.Close(ctx))
}
