package runtime

import (
	"context"
	"sync"

	wasmexecutor "github.com/wippyai/wasm-executor"
)

// LockedInstance serializes access to an Instance so it can be shared
// between goroutines.
type LockedInstance struct {
	inst *Instance
	mu   sync.Mutex
}

// NewLockedInstance wraps inst. The caller must not use inst directly
// afterwards.
func NewLockedInstance(inst *Instance) *LockedInstance {
	return &LockedInstance{inst: inst}
}

// Call runs Instance.Call while holding the lock.
func (l *LockedInstance) Call(ctx context.Context, method wasmexecutor.InvokeMethod, data []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inst.Call(ctx, method, data)
}

// GlobalConst reads an exported global while holding the lock.
func (l *LockedInstance) GlobalConst(name string) (wasmexecutor.Value, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inst.GlobalConst(name)
}

// Stats returns the wrapped instance's usage counters.
func (l *LockedInstance) Stats() InstanceStats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inst.Stats()
}

// Close waits for any running call and closes the instance.
func (l *LockedInstance) Close(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inst.Close(ctx)
}

var _ wasmexecutor.WasmInstance = (*LockedInstance)(nil)
