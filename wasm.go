package wasmexecutor

import (
	"context"
	"fmt"
	"math"
)

// ValueType is the type tag of a host value.
type ValueType uint8

const (
	I32 ValueType = iota + 1
	I64
	F32
	F64
)

func (t ValueType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}
	return fmt.Sprintf("ValueType(%d)", uint8(t))
}

// Valid reports whether t is one of the four host value types.
func (t ValueType) Valid() bool {
	return t >= I32 && t <= F64
}

// Value is a typed host value. Floats are held as their IEEE-754 bit
// pattern, so NaN payloads survive a round trip through the guest.
type Value struct {
	bits uint64
	typ  ValueType
}

// ValueI32 creates an i32 value.
func ValueI32(v int32) Value { return Value{typ: I32, bits: uint64(uint32(v))} }

// ValueI64 creates an i64 value.
func ValueI64(v int64) Value { return Value{typ: I64, bits: uint64(v)} }

// ValueF32 creates an f32 value.
func ValueF32(v float32) Value { return ValueF32Bits(math.Float32bits(v)) }

// ValueF64 creates an f64 value.
func ValueF64(v float64) Value { return ValueF64Bits(math.Float64bits(v)) }

// ValueF32Bits creates an f32 value from its bit pattern.
func ValueF32Bits(bits uint32) Value { return Value{typ: F32, bits: uint64(bits)} }

// ValueF64Bits creates an f64 value from its bit pattern.
func ValueF64Bits(bits uint64) Value { return Value{typ: F64, bits: bits} }

// Type returns the value's type tag.
func (v Value) Type() ValueType { return v.typ }

// Bits returns the raw bit pattern, zero-extended for 32-bit types.
func (v Value) Bits() uint64 { return v.bits }

// I32 returns the value as int32.
func (v Value) I32() int32 { return int32(uint32(v.bits)) }

// I64 returns the value as int64.
func (v Value) I64() int64 { return int64(v.bits) }

// F32 returns the value as float32.
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.bits)) }

// F64 returns the value as float64.
func (v Value) F64() float64 { return math.Float64frombits(v.bits) }

func (v Value) String() string {
	switch v.typ {
	case I32:
		return fmt.Sprintf("i32:%d", v.I32())
	case I64:
		return fmt.Sprintf("i64:%d", v.I64())
	case F32:
		return fmt.Sprintf("f32:%g", v.F32())
	case F64:
		return fmt.Sprintf("f64:%g", v.F64())
	}
	return "invalid"
}

// Signature is a host function's parameter and result types.
type Signature struct {
	Params  []ValueType
	Results []ValueType
}

func (s Signature) String() string {
	return fmt.Sprintf("%v -> %v", s.Params, s.Results)
}

// Memory is bounded access to a guest linear memory.
type Memory interface {
	Read(offset uint32, length uint32) ([]byte, error)
	Write(offset uint32, data []byte) error
	// Size returns the current memory size in bytes.
	Size() uint32
}

// HostFunc implements an imported function. Returning an error traps the
// guest; an errors.HostCode is propagated to the caller unchanged.
type HostFunc func(ctx context.Context, mem Memory, params []Value) ([]Value, error)

// HostFunction is a named host function the guest may import from "env".
type HostFunction struct {
	Func      HostFunc
	Name      string
	Signature Signature
}

// InvokeMethod selects what Instance.Call executes.
type InvokeMethod struct {
	export     string
	tableIndex uint32
	kind       invokeKind
}

type invokeKind uint8

const (
	invokeExport invokeKind = iota + 1
	invokeTable
)

// Export invokes the exported function name.
func Export(name string) InvokeMethod {
	return InvokeMethod{kind: invokeExport, export: name}
}

// TableEntry invokes the function at index of the guest's function table.
// It is reserved and currently always fails with errors.KindUnsupported.
func TableEntry(index uint32) InvokeMethod {
	return InvokeMethod{kind: invokeTable, tableIndex: index}
}

// ExportName returns the export name, false for other methods.
func (m InvokeMethod) ExportName() (string, bool) {
	return m.export, m.kind == invokeExport
}

// TableIndex returns the table index, false for other methods.
func (m InvokeMethod) TableIndex() (uint32, bool) {
	return m.tableIndex, m.kind == invokeTable
}

func (m InvokeMethod) String() string {
	switch m.kind {
	case invokeExport:
		return "export " + m.export
	case invokeTable:
		return fmt.Sprintf("table[%d]", m.tableIndex)
	}
	return "invalid"
}

// WasmModule produces call-ready instances of one compiled module.
type WasmModule interface {
	NewInstance(ctx context.Context) (WasmInstance, error)
}

// WasmInstance calls into one live guest instance. Implementations are not
// safe for concurrent use unless documented otherwise.
type WasmInstance interface {
	Call(ctx context.Context, method InvokeMethod, data []byte) ([]byte, error)
	// GlobalConst returns the current value of an exported global.
	GlobalConst(name string) (Value, bool, error)
	Close(ctx context.Context) error
}
