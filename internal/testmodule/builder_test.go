package testmodule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-executor/wasm"
)

func TestStandardParses(t *testing.T) {
	m, err := wasm.ParseModule(Standard(DefaultHeapBase))
	require.NoError(t, err)

	for _, name := range []string{"echo", "counter", "tick", "mutate", "read", "scribble", "peek", "overflow", "trap", "bad_sig"} {
		_, ok := m.FindExport(name, wasm.KindFunc)
		assert.True(t, ok, "export %s", name)
	}
	_, ok := m.FindImport("env", "memory", wasm.KindMemory)
	assert.True(t, ok)
	require.Len(t, m.Data, 1)
	assert.Equal(t, DataSegment, m.Data[0].Init)
}

func TestImportIndices(t *testing.T) {
	b := New()
	first := b.ImportFunc("a", i32ToI32)
	second := b.ImportFunc("b", noArgs)
	fn := b.Func(noArgs, nil, Code{})

	assert.Equal(t, uint32(0), first)
	assert.Equal(t, uint32(1), second)
	assert.Equal(t, uint32(2), fn)
	assert.Panics(t, func() { b.ImportFunc("c", noArgs) })
}

func TestHeapBaseEncoding(t *testing.T) {
	m, err := wasm.ParseModule(HeapBaseOnly(0xFFFFFFFF))
	require.NoError(t, err)

	c, err := wasm.DecodeConstExpr(m.Globals[0].Init)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xFFFFFFFF), c.Value)
}
