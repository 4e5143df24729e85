package blob

import (
	"fmt"

	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/wasm"
)

const (
	// HeapBaseExport is the global marking the start of the host-allocatable heap.
	HeapBaseExport = "__heap_base"

	// ImportModule is the namespace that memory and host functions are imported from.
	ImportModule = "env"

	// MemoryName is the import or export name of the linear memory.
	MemoryName = "memory"

	// ExposedGlobalPrefix names the exports added by ExposeMutableGlobals.
	ExposedGlobalPrefix = "exported_internal_global"
)

// MemorySource says where an instance's linear memory comes from.
type MemorySource int

const (
	// MemoryImported means the module imports env.memory and the host defines it.
	MemoryImported MemorySource = iota + 1
	// MemoryExported means the module defines and exports its own memory.
	MemoryExported
)

func (s MemorySource) String() string {
	switch s {
	case MemoryImported:
		return "imported"
	case MemoryExported:
		return "exported"
	}
	return "none"
}

// FunctionImport is an env function import with its signature.
type FunctionImport struct {
	Name string
	Type wasm.FuncType
}

// RuntimeBlob is a parsed guest module that can be analysed and rewritten
// before being serialized for instantiation.
type RuntimeBlob struct {
	module *wasm.Module
}

// New uncompresses and parses code.
func New(code []byte) (*RuntimeBlob, error) {
	raw, err := Uncompress(code, DefaultBombLimit)
	if err != nil {
		return nil, err
	}
	return FromWasm(raw)
}

// FromWasm parses an uncompressed module.
func FromWasm(raw []byte) (*RuntimeBlob, error) {
	m, err := wasm.ParseModule(raw)
	if err != nil {
		return nil, errors.Module(errors.PhaseLoad, "parse module", err)
	}
	return &RuntimeBlob{module: m}, nil
}

// Module returns the decoded module.
func (b *RuntimeBlob) Module() *wasm.Module {
	return b.module
}

// Serialize encodes the possibly rewritten module.
func (b *RuntimeBlob) Serialize() []byte {
	return b.module.Encode()
}

// ExposeMutableGlobals adds an export for every defined mutable global that
// is not already exported, so snapshots can reach internal state.
// It returns the number of exports added.
func (b *RuntimeBlob) ExposeMutableGlobals() int {
	m := b.module
	exported := make(map[uint32]bool)
	names := make(map[string]bool, len(m.Exports))
	for _, e := range m.Exports {
		names[e.Name] = true
		if e.Kind == wasm.KindGlobal {
			exported[e.Idx] = true
		}
	}

	imported := uint32(m.NumImportedGlobals())
	added := 0
	for i, g := range m.Globals {
		idx := imported + uint32(i)
		if !g.Type.Mutable || exported[idx] {
			continue
		}
		name := fmt.Sprintf("%s%d", ExposedGlobalPrefix, idx)
		if names[name] {
			continue
		}
		m.Exports = append(m.Exports, wasm.Export{Name: name, Kind: wasm.KindGlobal, Idx: idx})
		names[name] = true
		added++
	}
	return added
}

// MemorySource reports how the module obtains its linear memory.
func (b *RuntimeBlob) MemorySource() (MemorySource, error) {
	m := b.module
	if _, ok := m.FindImport(ImportModule, MemoryName, wasm.KindMemory); ok {
		return MemoryImported, nil
	}
	if m.NumImportedMemories() > 0 {
		imp := firstImport(m, wasm.KindMemory)
		return 0, errors.New(errors.PhaseLoad, errors.KindModule).
			Name(imp.Module + "." + imp.Name).
			Detail("memory must be imported as %s.%s", ImportModule, MemoryName).
			Build()
	}
	if e, ok := m.FindExport(MemoryName, wasm.KindMemory); ok && e.Idx == 0 {
		return MemoryExported, nil
	}
	return 0, errors.Module(errors.PhaseLoad, "module neither imports nor exports a linear memory", nil)
}

// HeapBase returns the constant initial value of the exported __heap_base
// global when it is statically known.
func (b *RuntimeBlob) HeapBase() (uint32, bool) {
	m := b.module
	e, ok := m.FindExport(HeapBaseExport, wasm.KindGlobal)
	if !ok {
		return 0, false
	}
	imported := uint32(m.NumImportedGlobals())
	if e.Idx < imported || int(e.Idx-imported) >= len(m.Globals) {
		return 0, false
	}
	g := m.Globals[e.Idx-imported]
	c, err := wasm.DecodeConstExpr(g.Init)
	if err != nil || c.Opcode != wasm.OpI32Const {
		return 0, false
	}
	return uint32(c.Value), true
}

// Validate checks that the module can be driven by the executor: it must
// have a usable linear memory and export an i32 __heap_base global.
func (b *RuntimeBlob) Validate() error {
	if _, err := b.MemorySource(); err != nil {
		return err
	}
	e, ok := b.module.FindExport(HeapBaseExport, wasm.KindGlobal)
	if !ok {
		return errors.New(errors.PhaseLoad, errors.KindModule).
			Name(HeapBaseExport).
			Detail("heap base global is not exported").
			Build()
	}
	gt := b.module.GlobalTypeAt(e.Idx)
	if gt == nil || gt.ValType != wasm.ValI32 {
		return errors.New(errors.PhaseLoad, errors.KindModule).
			Name(HeapBaseExport).
			Detail("heap base global must be an i32").
			Build()
	}
	return nil
}

// FunctionImports lists the env function imports in declaration order.
// Function imports from other namespaces are returned as an error.
func (b *RuntimeBlob) FunctionImports() ([]FunctionImport, error) {
	m := b.module
	var out []FunctionImport
	for _, imp := range m.Imports {
		if imp.Desc.Kind != wasm.KindFunc {
			continue
		}
		if imp.Module != ImportModule {
			return nil, errors.New(errors.PhaseLoad, errors.KindModule).
				Name(imp.Module + "." + imp.Name).
				Detail("function imports must come from the %s namespace", ImportModule).
				Build()
		}
		if int(imp.Desc.TypeIdx) >= len(m.Types) {
			return nil, errors.Module(errors.PhaseLoad, fmt.Sprintf("import %s has invalid type index %d", imp.Name, imp.Desc.TypeIdx), nil)
		}
		out = append(out, FunctionImport{Name: imp.Name, Type: m.Types[imp.Desc.TypeIdx]})
	}
	return out, nil
}

func firstImport(m *wasm.Module, kind byte) wasm.Import {
	for _, imp := range m.Imports {
		if imp.Desc.Kind == kind {
			return imp
		}
	}
	return wasm.Import{}
}
