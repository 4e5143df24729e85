package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/wasm-executor/engine"
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/internal/testmodule"
)

func writeModule(t *testing.T, code []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "guest.wasm")
	require.NoError(t, os.WriteFile(path, code, 0o600))
	return path
}

func TestParseHex(t *testing.T) {
	tests := []struct {
		in   string
		want []byte
		ok   bool
	}{
		{"", nil, true},
		{"0x", nil, true},
		{"01020304", []byte{1, 2, 3, 4}, true},
		{"0xFF 00", []byte{0xff, 0}, true},
		{"0X0a", []byte{0x0a}, true},
		{"abc", nil, false},
		{"zz", nil, false},
	}
	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := parseHex(tc.in)
			if !tc.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestFormatHex(t *testing.T) {
	assert.Equal(t, "(empty)", formatHex(nil))
	assert.Equal(t, "0x0a0b", formatHex([]byte{0x0a, 0x0b}))
}

func TestOptionsConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "executor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("heap_pages: 8\nclear_memory: true\n"), 0o600))

	opts := &options{configFile: path, engine: "interpreter", maxMemory: 1 << 20}
	cfg, err := opts.config()
	require.NoError(t, err)
	assert.Equal(t, uint32(8), cfg.HeapPages)
	assert.True(t, cfg.ClearMemory)

	opts.keepMemory = true
	cfg, err = opts.config()
	require.NoError(t, err)
	assert.False(t, cfg.ClearMemory)
	assert.Equal(t, engine.EngineInterpreter, cfg.Engine)
	require.NotNil(t, cfg.MaxMemorySize)
	assert.Equal(t, uint32(1<<20), *cfg.MaxMemorySize)

	opts = &options{heapPages: 32, maxMemory: 65536}
	_, err = opts.config()
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRunCall(t *testing.T) {
	ctx := context.Background()
	file := writeModule(t, testmodule.Standard(testmodule.DefaultHeapBase))
	opts := &options{heapPages: 2}

	var out bytes.Buffer
	require.NoError(t, runCall(ctx, opts, file, "counter", nil, 5, &out))
	assert.Equal(t, "0x01000000\n", out.String())

	out.Reset()
	require.NoError(t, runCall(ctx, opts, file, "echo", []byte{9, 8, 7}, 1, &out))
	assert.Equal(t, "0x090807\n", out.String())

	err := runCall(ctx, opts, file, "trap", nil, 1, &out)
	assert.ErrorIs(t, err, errors.ErrInvocation)

	err = runCall(ctx, opts, file, "echo", nil, 0, &out)
	assert.Error(t, err)

	err = runCall(ctx, opts, filepath.Join(t.TempDir(), "missing.wasm"), "echo", nil, 1, &out)
	assert.Error(t, err)
}

func TestRunCall_MissingImportsHint(t *testing.T) {
	ctx := context.Background()
	file := writeModule(t, testmodule.AddOne())

	var out bytes.Buffer
	err := runCall(ctx, &options{heapPages: 2}, file, "main", []byte{1, 0, 0, 0}, 1, &out)
	require.ErrorIs(t, err, errors.ErrImportBinding)
	assert.Contains(t, err.Error(), "--allow-missing-imports")

	err = runCall(ctx, &options{heapPages: 2, allowMissingImports: true}, file, "main", []byte{1, 0, 0, 0}, 1, &out)
	require.ErrorIs(t, err, errors.ErrInvocation, "stubbed import traps when called")
	assert.NotContains(t, err.Error(), "--allow-missing-imports")
}

func TestRunInspect(t *testing.T) {
	file := writeModule(t, testmodule.AddOne())

	var out bytes.Buffer
	require.NoError(t, runInspect(context.Background(), &options{heapPages: 2}, file, &out))
	text := out.String()
	assert.Contains(t, text, "memory:      imported")
	assert.Contains(t, text, "heap base:   20000")
	assert.Contains(t, text, "env imports (1):\n  add_one\n")
	assert.Contains(t, text, "exports (1):\n  main\n")
}

func TestRootCommand(t *testing.T) {
	file := writeModule(t, testmodule.Constant())

	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"call", file, "--heap-pages", "1", "--engine", "interpreter", "-n", "3"})
	require.NoError(t, cmd.Execute())
	assert.Equal(t, "0x6a040100\n", out.String())

	cmd = newRootCommand()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"call"})
	assert.Error(t, cmd.Execute())
}
