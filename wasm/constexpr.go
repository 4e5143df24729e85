package wasm

import (
	"fmt"

	"github.com/wippyai/wasm-executor/wasm/internal/binary"
)

// ConstExpr is a decoded single-instruction constant expression.
type ConstExpr struct {
	Opcode byte
	// Value holds the raw 64-bit pattern for *.const and the global index for global.get.
	Value uint64
}

// DecodeConstExpr decodes an init expression consisting of exactly one
// instruction followed by end. Longer expressions return ErrUnsupported.
func DecodeConstExpr(expr []byte) (ConstExpr, error) {
	r := binary.NewReader(expr)
	op, err := r.ReadByte()
	if err != nil {
		return ConstExpr{}, err
	}

	c := ConstExpr{Opcode: op}
	switch op {
	case OpI32Const:
		v, err := r.ReadS32()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = uint64(uint32(v))
	case OpI64Const:
		v, err := r.ReadS64()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = uint64(v)
	case OpF32Const:
		v, err := r.ReadU32LE()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = uint64(v)
	case OpF64Const:
		if c.Value, err = r.ReadU64LE(); err != nil {
			return ConstExpr{}, err
		}
	case OpGlobalGet:
		idx, err := r.ReadU32()
		if err != nil {
			return ConstExpr{}, err
		}
		c.Value = uint64(idx)
	default:
		return ConstExpr{}, fmt.Errorf("%w: constant expression opcode 0x%02x", ErrUnsupported, op)
	}

	end, err := r.ReadByte()
	if err != nil {
		return ConstExpr{}, err
	}
	if end != OpEnd || r.Len() != 0 {
		return ConstExpr{}, fmt.Errorf("%w: multi-instruction constant expression", ErrUnsupported)
	}
	return c, nil
}

// I32ConstExpr encodes i32.const v; end.
func I32ConstExpr(v int32) []byte {
	return append(binary.AppendS64([]byte{OpI32Const}, int64(v)), OpEnd)
}

// I64ConstExpr encodes i64.const v; end.
func I64ConstExpr(v int64) []byte {
	return append(binary.AppendS64([]byte{OpI64Const}, v), OpEnd)
}

// GlobalGetExpr encodes global.get idx; end.
func GlobalGetExpr(idx uint32) []byte {
	return append(binary.AppendU64([]byte{OpGlobalGet}, uint64(idx)), OpEnd)
}

// AppendU32 appends v as unsigned LEB128.
func AppendU32(dst []byte, v uint32) []byte {
	return binary.AppendU64(dst, uint64(v))
}

// AppendS32 appends v as signed LEB128.
func AppendS32(dst []byte, v int32) []byte {
	return binary.AppendS64(dst, int64(v))
}

// AppendS64 appends v as signed LEB128.
func AppendS64(dst []byte, v int64) []byte {
	return binary.AppendS64(dst, v)
}
