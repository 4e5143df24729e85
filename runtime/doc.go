// Package runtime provides the high-level API for running a WebAssembly
// module against a byte payload with snapshot and replay semantics.
//
// # Quick Start
//
//	ctx := context.Background()
//	rt, err := runtime.Create(ctx, wasmBytes, runtime.DefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	// Create an instance
//	inst, err := rt.Instantiate(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	// Call an export with an input payload
//	out, err := inst.Call(ctx, wasmexecutor.Export("main"), []byte("input"))
//
// # Guest ABI
//
// The guest must export an i32 global named __heap_base and either import
// env.memory or export its own memory. Called exports take (ptr, len) of
// the input as two i32 and return an i64 whose low 32 bits are the output
// pointer and whose high 32 bits are the output length.
//
// # Call Lifecycle
//
// Every Instance.Call runs the same steps, each failing with its own phase:
//
//  1. reset   - linear memory is zeroed, then data segments and mutable
//     globals are restored to the values captured at load and
//     instantiation time; an instance whose memory grew is linked again
//  2. inject  - the input is allocated above __heap_base and copied in
//  3. invoke  - the export runs
//  4. extract - the returned range is copied out of guest memory
//
// Internal mutable globals are exported under the name
// exported_internal_global<index> at load time so they can be restored
// as well.
//
// # Host Functions
//
// Guests import host functions from the env namespace:
//
//	reg := runtime.NewHostRegistry()
//	reg.RegisterFunc("add_one", func(x int32) int32 { return x + 1 })
//	rt, err := runtime.Create(ctx, wasmBytes, cfg, reg.Functions())
//
// # Configuration
//
// Config can be loaded from YAML:
//
//	heap_pages: 2048
//	max_memory_size: 268435456
//	allow_missing_imports: false
//	clear_memory: true
//	engine: auto
//
// Setting clear_memory to false skips the zeroing step. Calls are faster on
// large memories but may observe bytes earlier calls left outside the data
// segments.
//
// # Concurrency
//
// A Runtime is safe for concurrent use. Instances are not; wrap one with
// NewLockedInstance or spread calls over a Pool.
package runtime
