package testmodule

import (
	"github.com/wippyai/wasm-executor/wasm"
)

// Code is a function body under construction. Each method returns the
// extended sequence, so bodies read in instruction order.
type Code []byte

func (c Code) op(b ...byte) Code {
	return append(c, b...)
}

func (c Code) memarg(op byte, align, offset uint32) Code {
	c = append(c, op)
	c = wasm.AppendU32(c, align)
	return wasm.AppendU32(c, offset)
}

// I32Const pushes v.
func (c Code) I32Const(v int32) Code {
	return wasm.AppendS32(c.op(wasm.OpI32Const), v)
}

// I64Const pushes v.
func (c Code) I64Const(v int64) Code {
	return wasm.AppendS64(c.op(wasm.OpI64Const), v)
}

// LocalGet pushes local idx.
func (c Code) LocalGet(idx uint32) Code {
	return wasm.AppendU32(c.op(wasm.OpLocalGet), idx)
}

// LocalSet pops into local idx.
func (c Code) LocalSet(idx uint32) Code {
	return wasm.AppendU32(c.op(wasm.OpLocalSet), idx)
}

// GlobalGet pushes global idx.
func (c Code) GlobalGet(idx uint32) Code {
	return wasm.AppendU32(c.op(wasm.OpGlobalGet), idx)
}

// GlobalSet pops into global idx.
func (c Code) GlobalSet(idx uint32) Code {
	return wasm.AppendU32(c.op(wasm.OpGlobalSet), idx)
}

// Call calls function idx.
func (c Code) Call(idx uint32) Code {
	return wasm.AppendU32(c.op(wasm.OpCall), idx)
}

// I32Load loads an i32 from the popped address plus offset.
func (c Code) I32Load(offset uint32) Code {
	return c.memarg(wasm.OpI32Load, 2, offset)
}

// I32Load8U loads a byte from the popped address plus offset.
func (c Code) I32Load8U(offset uint32) Code {
	return c.memarg(wasm.OpI32Load8U, 0, offset)
}

// I32Store stores an i32 value at address plus offset.
func (c Code) I32Store(offset uint32) Code {
	return c.memarg(wasm.OpI32Store, 2, offset)
}

// I32Store8 stores the low byte of an i32 at address plus offset.
func (c Code) I32Store8(offset uint32) Code {
	return c.memarg(wasm.OpI32Store8, 0, offset)
}

// I64Store stores an i64 value at address plus offset.
func (c Code) I64Store(offset uint32) Code {
	return c.memarg(wasm.OpI64Store, 3, offset)
}

// MemorySize pushes the current memory size in pages.
func (c Code) MemorySize() Code {
	return c.op(wasm.OpMemorySize, 0x00)
}

// I32Add adds the two top i32 values.
func (c Code) I32Add() Code {
	return c.op(wasm.OpI32Add)
}

// I32Mul multiplies the two top i32 values.
func (c Code) I32Mul() Code {
	return c.op(wasm.OpI32Mul)
}

// Drop discards the top value.
func (c Code) Drop() Code {
	return c.op(wasm.OpDrop)
}

// Unreachable traps.
func (c Code) Unreachable() Code {
	return c.op(wasm.OpUnreachable)
}

// PackPtrLen combines two i32 values already pushed as (ptr, len) into the
// i64 ptr | len<<32 expected as a call result. Both operands must be
// produced by the ptr and length callbacks in order.
func (c Code) PackPtrLen(ptr, length func(Code) Code) Code {
	c = ptr(c).op(wasm.OpI64ExtendI32U)
	c = length(c).op(wasm.OpI64ExtendI32U)
	c = c.I64Const(32).op(wasm.OpI64Shl)
	return c.op(wasm.OpI64Or)
}

// ReturnPtrLen packs constant ptr and length.
func (c Code) ReturnPtrLen(ptr, length uint32) Code {
	return c.PackPtrLen(
		func(c Code) Code { return c.I32Const(int32(ptr)) },
		func(c Code) Code { return c.I32Const(int32(length)) },
	)
}

// End terminates the body.
func (c Code) End() []byte {
	return append(c, wasm.OpEnd)
}
