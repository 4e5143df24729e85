// Package testmodule assembles small guest modules for tests.
package testmodule

import (
	"github.com/wippyai/wasm-executor/wasm"
)

// CallSig is the (ptr i32, len i32) -> i64 entry point signature.
var CallSig = wasm.FuncType{
	Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
	Results: []wasm.ValType{wasm.ValI64},
}

// Builder accumulates module definitions. Imports must be declared before
// functions or globals are defined so indices stay stable.
type Builder struct {
	m        *wasm.Module
	exported map[string]bool
	funcBase uint32
	defined  bool
}

// New creates an empty builder.
func New() *Builder {
	return &Builder{
		m:        &wasm.Module{Raw: map[byte][]byte{}},
		exported: map[string]bool{},
	}
}

// ImportMemory imports env.memory with the given minimum page count.
func (b *Builder) ImportMemory(minPages uint32) *Builder {
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: "env",
		Name:   "memory",
		Desc:   wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: uint64(minPages)}}},
	})
	return b
}

// ImportFunc imports env.name and returns its function index.
func (b *Builder) ImportFunc(name string, ft wasm.FuncType) uint32 {
	return b.ImportFuncFrom("env", name, ft)
}

// ImportFuncFrom imports module.name and returns its function index.
func (b *Builder) ImportFuncFrom(module, name string, ft wasm.FuncType) uint32 {
	if b.defined {
		panic("testmodule: imports must precede definitions")
	}
	b.m.Imports = append(b.m.Imports, wasm.Import{
		Module: module,
		Name:   name,
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: b.m.AddType(ft)},
	})
	idx := b.funcBase
	b.funcBase++
	return idx
}

// DefineMemory declares a memory and exports it as "memory".
func (b *Builder) DefineMemory(minPages uint32) *Builder {
	b.m.Memories = append(b.m.Memories, wasm.MemoryType{Limits: wasm.Limits{Min: uint64(minPages)}})
	b.export("memory", wasm.KindMemory, 0)
	return b
}

// Global defines a global and returns its index.
func (b *Builder) Global(vt wasm.ValType, mutable bool, init []byte) uint32 {
	b.defined = true
	b.m.Globals = append(b.m.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: vt, Mutable: mutable},
		Init: init,
	})
	return uint32(len(b.m.Globals) - 1)
}

// HeapBase defines and exports an immutable __heap_base global.
func (b *Builder) HeapBase(base uint32) *Builder {
	idx := b.Global(wasm.ValI32, false, wasm.I32ConstExpr(int32(base)))
	b.ExportGlobal("__heap_base", idx)
	return b
}

// ExportGlobal exports global idx as name.
func (b *Builder) ExportGlobal(name string, idx uint32) *Builder {
	b.export(name, wasm.KindGlobal, idx)
	return b
}

// Func defines a function and returns its index.
func (b *Builder) Func(ft wasm.FuncType, locals []wasm.LocalEntry, code Code) uint32 {
	b.defined = true
	b.m.Funcs = append(b.m.Funcs, b.m.AddType(ft))
	b.m.Code = append(b.m.Code, wasm.FuncBody{Locals: locals, Code: code.End()})
	return b.funcBase + uint32(len(b.m.Funcs)-1)
}

// Export defines a function and exports it as name.
func (b *Builder) Export(name string, ft wasm.FuncType, locals []wasm.LocalEntry, code Code) uint32 {
	idx := b.Func(ft, locals, code)
	b.export(name, wasm.KindFunc, idx)
	return idx
}

// Data adds an active data segment at a constant offset.
func (b *Builder) Data(offset uint32, data []byte) *Builder {
	return b.DataExpr(wasm.I32ConstExpr(int32(offset)), data)
}

// DataExpr adds an active data segment with an arbitrary offset expression.
func (b *Builder) DataExpr(offset []byte, data []byte) *Builder {
	b.m.Data = append(b.m.Data, wasm.DataSegment{Flags: 0, Offset: offset, Init: data})
	return b
}

// PassiveData adds a passive data segment.
func (b *Builder) PassiveData(data []byte) *Builder {
	b.m.Data = append(b.m.Data, wasm.DataSegment{Flags: 1, Init: data})
	return b
}

// Module returns the module under construction.
func (b *Builder) Module() *wasm.Module {
	return b.m
}

// Build encodes the module.
func (b *Builder) Build() []byte {
	return b.m.Encode()
}

func (b *Builder) export(name string, kind byte, idx uint32) {
	if b.exported[name] {
		panic("testmodule: duplicate export " + name)
	}
	b.exported[name] = true
	b.m.Exports = append(b.m.Exports, wasm.Export{Name: name, Kind: kind, Idx: idx})
}
