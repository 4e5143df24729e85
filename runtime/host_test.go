package runtime

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wasmexecutor "github.com/wippyai/wasm-executor"
	"github.com/wippyai/wasm-executor/errors"
)

type mathHost struct{}

func (mathHost) AddOne(x int32) int32 { return x + 1 }

func (mathHost) MulF64(a, b float64) float64 { return a * b }

func (mathHost) CheckedDiv(ctx context.Context, a, b int64) (int64, error) {
	if b == 0 {
		return 0, errors.HostCode(1)
	}
	return a / b, nil
}

func TestHostRegistry_Register(t *testing.T) {
	reg := NewHostRegistry()
	noop := func(context.Context, wasmexecutor.Memory, []wasmexecutor.Value) ([]wasmexecutor.Value, error) {
		return nil, nil
	}

	require.NoError(t, reg.Register("a", wasmexecutor.Signature{}, noop))
	require.NoError(t, reg.Register("b", wasmexecutor.Signature{Params: []wasmexecutor.ValueType{wasmexecutor.F32}}, noop))

	assert.ErrorIs(t, reg.Register("a", wasmexecutor.Signature{}, noop), errors.ErrInvalidInput, "duplicate")
	assert.ErrorIs(t, reg.Register("", wasmexecutor.Signature{}, noop), errors.ErrInvalidInput, "empty name")
	assert.ErrorIs(t, reg.Register("c", wasmexecutor.Signature{}, nil), errors.ErrInvalidInput, "nil func")
	assert.ErrorIs(t, reg.Register("d", wasmexecutor.Signature{Results: []wasmexecutor.ValueType{9}}, noop),
		errors.ErrUnsupportedValue)

	funcs := reg.Functions()
	require.Len(t, funcs, 2)
	assert.Equal(t, "a", funcs[0].Name)
	assert.Equal(t, "b", funcs[1].Name)
	assert.Equal(t, 2, reg.Len())
}

func TestHostRegistry_RegisterHost(t *testing.T) {
	reg := NewHostRegistry()
	require.NoError(t, reg.RegisterHost(mathHost{}))

	byName := make(map[string]wasmexecutor.HostFunction)
	for _, f := range reg.Functions() {
		byName[f.Name] = f
	}
	require.Contains(t, byName, "add_one")
	require.Contains(t, byName, "mul_f64")
	require.Contains(t, byName, "checked_div")

	div := byName["checked_div"]
	assert.Equal(t, []wasmexecutor.ValueType{wasmexecutor.I64, wasmexecutor.I64}, div.Signature.Params)
	assert.Equal(t, []wasmexecutor.ValueType{wasmexecutor.I64}, div.Signature.Results)

	out, err := div.Func(context.Background(), nil, []wasmexecutor.Value{wasmexecutor.ValueI64(9), wasmexecutor.ValueI64(3)})
	require.NoError(t, err)
	assert.Equal(t, []wasmexecutor.Value{wasmexecutor.ValueI64(3)}, out)

	_, err = div.Func(context.Background(), nil, []wasmexecutor.Value{wasmexecutor.ValueI64(1), wasmexecutor.ValueI64(0)})
	assert.Equal(t, errors.HostCode(1), err)

	mul := byName["mul_f64"]
	out, err = mul.Func(context.Background(), nil, []wasmexecutor.Value{wasmexecutor.ValueF64(1.5), wasmexecutor.ValueF64(2)})
	require.NoError(t, err)
	assert.Equal(t, 3.0, out[0].F64())
}

func TestHostRegistry_RegisterFunc(t *testing.T) {
	reg := NewHostRegistry()

	require.NoError(t, reg.RegisterFunc("u32", func(x uint32) uint32 { return x * 2 }))
	f := reg.Functions()[0]
	out, err := f.Func(context.Background(), nil, []wasmexecutor.Value{wasmexecutor.ValueI32(-1)})
	require.NoError(t, err)
	assert.Equal(t, uint32(0xFFFFFFFE), uint32(out[0].I32()))

	assert.ErrorIs(t, reg.RegisterFunc("bad", "not a func"), errors.ErrInvalidInput)
	assert.ErrorIs(t, reg.RegisterFunc("str", func(s string) {}), errors.ErrInvalidInput)
	assert.ErrorIs(t, reg.RegisterFunc("var", func(xs ...int32) {}), errors.ErrInvalidInput)
	assert.ErrorIs(t, reg.RegisterFunc("", func() {}), errors.ErrInvalidInput)
}

func TestToSnakeCase(t *testing.T) {
	tests := []struct{ in, want string }{
		{"AddOne", "add_one"},
		{"GetHTTPServer", "get_http_server"},
		{"MulF64", "mul_f64"},
		{"X", "x"},
		{"", ""},
	}
	for _, tc := range tests {
		t.Run(fmt.Sprintf("%q", tc.in), func(t *testing.T) {
			assert.Equal(t, tc.want, toSnakeCase(tc.in))
		})
	}
}
