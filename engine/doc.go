// Package engine provides the wazero integration of the executor.
//
// This package wraps wazero to link a guest core module against host
// functions and a host-sized linear memory, and gives the runtime package
// bounds-checked access to the instance's memory and globals.
//
// # Architecture
//
// The engine package provides three main types:
//
//	InstanceWrapper  - One guest instance in its own wazero runtime
//	Memory           - Bounds-checked view of the instance's linear memory
//	AllocatorMemory  - Header access for the heap allocator
//
// # Linking
//
// Every wrapper instantiates up to three modules into a fresh runtime:
//
//  1. "env.host" holds the Go host functions
//  2. "env" is synthesized per guest: it imports every host function from
//     "env.host" and re-exports it, defines the linear memory when the guest
//     imports env.memory, and adds trapping stubs for missing imports
//  3. the guest itself, linked against "env"
//
// Wrappers of the same module share a wazero.CompilationCache, so creating
// another instance costs an instantiation but not a compilation.
//
// # Value Bridge
//
// Host values map to wazero stack slots one to one:
//
//	Host type   wazero type   Encoding
//	─────────────────────────────────────────────
//	I32         i32           int32 bits, zero-extended
//	I64         i64           int64 bit pattern
//	F32         f32           IEEE-754 bits, zero-extended
//	F64         f64           IEEE-754 bits
//
// Reference and vector types have no host representation; converting one
// panics with an errors.KindUnsupportedValue error.
//
// # Host Function Failures
//
// A host function that returns an error traps the guest. The error is kept
// as the cause of the resulting invocation error, so an errors.HostCode can
// be recovered with errors.As.
package engine
