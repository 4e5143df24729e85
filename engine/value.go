package engine

import (
	"github.com/tetratelabs/wazero/api"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/errors"
)

// ToValue converts a raw wazero stack slot of type t into a host value.
// It panics with an *errors.Error of KindUnsupportedValue for reference
// and vector types; host adapters let that panic trap the guest.
func ToValue(t api.ValueType, raw uint64) wasmexecutor.Value {
	switch t {
	case api.ValueTypeI32:
		return wasmexecutor.ValueI32(api.DecodeI32(raw))
	case api.ValueTypeI64:
		return wasmexecutor.ValueI64(int64(raw))
	case api.ValueTypeF32:
		return wasmexecutor.ValueF32Bits(uint32(raw))
	case api.ValueTypeF64:
		return wasmexecutor.ValueF64Bits(raw)
	}
	panic(errors.UnsupportedValue(api.ValueTypeName(t)))
}

// FromValue returns the raw stack slot encoding of v.
func FromValue(v wasmexecutor.Value) uint64 {
	switch v.Type() {
	case wasmexecutor.I32:
		return api.EncodeI32(v.I32())
	case wasmexecutor.F32:
		return uint64(uint32(v.Bits()))
	}
	return v.Bits()
}

// ValueTypeOf maps a wazero value type to a host value type.
func ValueTypeOf(t api.ValueType) (wasmexecutor.ValueType, bool) {
	switch t {
	case api.ValueTypeI32:
		return wasmexecutor.I32, true
	case api.ValueTypeI64:
		return wasmexecutor.I64, true
	case api.ValueTypeF32:
		return wasmexecutor.F32, true
	case api.ValueTypeF64:
		return wasmexecutor.F64, true
	}
	return 0, false
}

// APIValueType maps a host value type to its wazero value type.
func APIValueType(t wasmexecutor.ValueType) (api.ValueType, bool) {
	switch t {
	case wasmexecutor.I32:
		return api.ValueTypeI32, true
	case wasmexecutor.I64:
		return api.ValueTypeI64, true
	case wasmexecutor.F32:
		return api.ValueTypeF32, true
	case wasmexecutor.F64:
		return api.ValueTypeF64, true
	}
	return 0, false
}

func apiValueTypes(ts []wasmexecutor.ValueType) ([]api.ValueType, bool) {
	out := make([]api.ValueType, len(ts))
	for i, t := range ts {
		at, ok := APIValueType(t)
		if !ok {
			return nil, false
		}
		out[i] = at
	}
	return out, true
}
