package testmodule

import (
	"github.com/wippyai/wasm-executor/wasm"
)

// Offsets used by fixture exports. All sit below DefaultHeapBase.
const (
	DefaultHeapBase = 20000
	ResultOffset    = 1024
	DataOffset      = 2048
	ScratchOffset   = 4096
)

// DataSegment is the static content placed at DataOffset by Standard.
var DataSegment = []byte("abcd")

var (
	i32ToI32 = wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}}
	noArgs   = wasm.FuncType{}
)

func ptrArg(c Code) Code { return c.LocalGet(0) }
func lenArg(c Code) Code { return c.LocalGet(1) }

// Standard builds a module that imports env.memory and exports:
//
//	echo       returns its input unchanged
//	counter    increments an internal mutable global, returns it as 4 bytes
//	tick       increments the exported mutable global "ticks", returns it
//	mutate     overwrites the data segment at DataOffset with "XXXX"
//	read       returns the 4 bytes at DataOffset
//	scribble   copies the first 4 input bytes to ScratchOffset
//	peek       returns the 4 bytes at ScratchOffset
//	overflow   returns a range that ends past the end of memory
//	trap       executes unreachable
//	bad_sig    has signature (i32, i32) -> i32
func Standard(heapBase uint32) []byte {
	b := New().ImportMemory(1).HeapBase(heapBase)

	counter := b.Global(wasm.ValI32, true, wasm.I32ConstExpr(0))
	ticks := b.Global(wasm.ValI32, true, wasm.I32ConstExpr(100))
	b.ExportGlobal("ticks", ticks)
	b.ExportGlobal("limit", b.Global(wasm.ValI64, false, wasm.I64ConstExpr(-7)))

	b.Data(DataOffset, DataSegment)

	b.Export("echo", CallSig, nil, Code{}.PackPtrLen(ptrArg, lenArg))
	b.Export("counter", CallSig, nil, incrementAndReturn(counter))
	b.Export("tick", CallSig, nil, incrementAndReturn(ticks))
	b.Export("mutate", CallSig, nil, Code{}.
		I32Const(DataOffset).I32Const(0x58585858).I32Store(0).
		ReturnPtrLen(DataOffset, uint32(len(DataSegment))))
	b.Export("read", CallSig, nil, Code{}.ReturnPtrLen(DataOffset, uint32(len(DataSegment))))
	b.Export("scribble", CallSig, nil, Code{}.
		I32Const(ScratchOffset).LocalGet(0).I32Load(0).I32Store(0).
		ReturnPtrLen(ScratchOffset, 4))
	b.Export("peek", CallSig, nil, Code{}.ReturnPtrLen(ScratchOffset, 4))
	b.Export("overflow", CallSig, nil, Code{}.PackPtrLen(
		func(c Code) Code { return c.MemorySize().I32Const(65536).I32Mul().I32Const(-2).I32Add() },
		func(c Code) Code { return c.I32Const(16) },
	))
	b.Export("trap", CallSig, nil, Code{}.Unreachable())
	b.Export("bad_sig", wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	}, nil, Code{}.I32Const(0))

	return b.Build()
}

func incrementAndReturn(global uint32) Code {
	return Code{}.
		GlobalGet(global).I32Const(1).I32Add().GlobalSet(global).
		I32Const(ResultOffset).GlobalGet(global).I32Store(0).
		ReturnPtrLen(ResultOffset, 4)
}

// AddOne imports env.add_one (i32) -> i32 and exports main, which applies it
// to the little-endian i32 input and returns the 4-byte result.
func AddOne() []byte {
	b := New()
	addOne := b.ImportFunc("add_one", i32ToI32)
	b.ImportMemory(1).HeapBase(DefaultHeapBase)
	b.Export("main", CallSig, nil, Code{}.
		I32Const(ResultOffset).LocalGet(0).I32Load(0).Call(addOne).I32Store(0).
		ReturnPtrLen(ResultOffset, 4))
	return b.Build()
}

// Constant defines and exports its own memory with heap base 0 and exports
// main, which stores 66666 at offset 100 and returns that 4-byte range.
func Constant() []byte {
	b := New().DefineMemory(1).HeapBase(0)
	b.Export("main", CallSig, nil, Code{}.
		I32Const(100).I32Const(66666).I32Store(0).
		ReturnPtrLen(100, 4))
	return b.Build()
}

// HostFail imports env.fail () -> () and exports main, which calls it.
func HostFail() []byte {
	b := New()
	fail := b.ImportFunc("fail", noArgs)
	b.ImportMemory(1).HeapBase(DefaultHeapBase)
	b.Export("main", CallSig, nil, Code{}.Call(fail).ReturnPtrLen(0, 0))
	return b.Build()
}

// HeapBaseOnly imports env.memory, exports __heap_base = base and an echo main.
func HeapBaseOnly(base uint32) []byte {
	b := New().ImportMemory(1).HeapBase(base)
	b.Export("main", CallSig, nil, Code{}.PackPtrLen(ptrArg, lenArg))
	return b.Build()
}
