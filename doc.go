// Package wasmexecutor runs exported functions of a WebAssembly module
// repeatedly, with every call starting from the module's pristine initial
// state.
//
// A module is compiled once into a Runtime, which captures the module's
// static data segments and the names of its mutable globals. Each Instance
// owns one live guest instance; before every call it writes the data
// segments and global values back, copies the input payload into guest
// memory above __heap_base, invokes the export with (ptr, len), and copies
// the (ptr, len) range packed into the i64 result back out.
//
// # Architecture Overview
//
//	wasmexecutor/        Root package with host value, memory and instance interfaces
//	├── runtime/         Runtime, Instance, Config, host registry and instance pool
//	├── engine/          wazero integration: instance wrapper, memory, value bridge
//	├── blob/            Code blob decompression, rewriting and state snapshots
//	├── allocator/       Freeing-bump heap allocator over guest memory
//	├── wasm/            Core WASM binary decoding and encoding
//	├── errors/          Structured error types
//	└── cmd/run/         CLI and interactive runner
//
// # Quick Start
//
//	rt, err := runtime.Create(ctx, code, runtime.DefaultConfig(), nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close(ctx)
//
//	inst, err := rt.NewInstance(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer inst.Close(ctx)
//
//	out, err := inst.Call(ctx, wasmexecutor.Export("main"), input)
//
// # Host Functions
//
// Guests import host functions from the "env" namespace:
//
//	reg := runtime.NewHostRegistry()
//	reg.Register("add_one", wasmexecutor.Signature{
//	    Params:  []wasmexecutor.ValueType{wasmexecutor.I32},
//	    Results: []wasmexecutor.ValueType{wasmexecutor.I32},
//	}, func(ctx context.Context, mem wasmexecutor.Memory, p []wasmexecutor.Value) ([]wasmexecutor.Value, error) {
//	    return []wasmexecutor.Value{wasmexecutor.ValueI32(p[0].I32() + 1)}, nil
//	})
//	rt, err := runtime.Create(ctx, code, cfg, reg.Functions())
//
// # Concurrency
//
// A Runtime is immutable and may be shared. An Instance is not safe for
// concurrent use; give each goroutine its own, or wrap it with
// runtime.NewLockedInstance or use a runtime.Pool.
package wasmexecutor
