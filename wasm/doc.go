// Package wasm decodes and re-encodes WebAssembly binary modules.
//
// The decoder covers the sections needed to inspect and rewrite a module
// before instantiation: types, imports, functions, memories, globals,
// exports, code and data. Table, start, element, data count and tag
// sections are preserved as raw bytes, and custom sections keep their
// position relative to known sections.
//
//	m, err := wasm.ParseModule(data)
//	if err != nil {
//	    return err
//	}
//	m.Exports = append(m.Exports, wasm.Export{Name: "g", Kind: wasm.KindGlobal, Idx: 0})
//	out := m.Encode()
//
// Constant expressions used by globals and data segment offsets are kept as
// raw bytes; DecodeConstExpr evaluates the single-instruction forms.
package wasm
