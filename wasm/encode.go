package wasm

import (
	"github.com/wippyai/wasm-executor/wasm/internal/binary"
)

// Encode encodes the module to WebAssembly binary format.
// Decoded sections are re-encoded from the struct fields, raw sections and
// custom sections are emitted at their original positions.
func (m *Module) Encode() []byte {
	w := binary.NewWriter()
	w.WriteU32LE(Magic)
	w.WriteU32LE(Version)

	m.writeCustomSections(w, 0)
	for _, id := range canonicalOrder {
		body, ok := m.sectionBody(id)
		if ok {
			w.Section(id, body)
		}
		m.writeCustomSections(w, id)
	}
	return w.Bytes()
}

func (m *Module) writeCustomSections(w *binary.Writer, after byte) {
	for _, cs := range m.CustomSections {
		if cs.After != after {
			continue
		}
		sec := binary.NewWriter()
		sec.WriteName(cs.Name)
		sec.WriteBytes(cs.Data)
		w.Section(SectionCustom, sec.Bytes())
	}
}

// sectionBody returns the encoded body for a section, false if the module has none.
func (m *Module) sectionBody(id byte) ([]byte, bool) {
	sec := binary.NewWriter()
	switch id {
	case SectionType:
		if len(m.Types) == 0 {
			return nil, false
		}
		sec.WriteU32(uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.Byte(FuncTypeByte)
			writeValTypes(sec, ft.Params)
			writeValTypes(sec, ft.Results)
		}
	case SectionImport:
		if len(m.Imports) == 0 {
			return nil, false
		}
		sec.WriteU32(uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			writeImport(sec, imp)
		}
	case SectionFunction:
		if len(m.Funcs) == 0 {
			return nil, false
		}
		sec.WriteU32(uint32(len(m.Funcs)))
		for _, idx := range m.Funcs {
			sec.WriteU32(idx)
		}
	case SectionMemory:
		if len(m.Memories) == 0 {
			return nil, false
		}
		sec.WriteU32(uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeLimits(sec, mem.Limits)
		}
	case SectionGlobal:
		if len(m.Globals) == 0 {
			return nil, false
		}
		sec.WriteU32(uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(sec, g.Type)
			sec.WriteBytes(g.Init)
		}
	case SectionExport:
		if len(m.Exports) == 0 {
			return nil, false
		}
		sec.WriteU32(uint32(len(m.Exports)))
		for _, e := range m.Exports {
			sec.WriteName(e.Name)
			sec.Byte(e.Kind)
			sec.WriteU32(e.Idx)
		}
	case SectionCode:
		if len(m.Code) == 0 {
			return nil, false
		}
		sec.WriteU32(uint32(len(m.Code)))
		for _, body := range m.Code {
			sec.WriteVec(encodeFuncBody(body))
		}
	case SectionData:
		if len(m.Data) == 0 {
			return nil, false
		}
		sec.WriteU32(uint32(len(m.Data)))
		for _, seg := range m.Data {
			sec.WriteU32(seg.Flags)
			if seg.Flags == 2 {
				sec.WriteU32(seg.MemIdx)
			}
			if seg.Flags != 1 {
				sec.WriteBytes(seg.Offset)
			}
			sec.WriteVec(seg.Init)
		}
	default:
		raw, ok := m.Raw[id]
		return raw, ok
	}
	return sec.Bytes(), true
}

func encodeFuncBody(body FuncBody) []byte {
	w := binary.NewWriter()
	w.WriteU32(uint32(len(body.Locals)))
	for _, l := range body.Locals {
		w.WriteU32(l.Count)
		w.Byte(byte(l.ValType))
	}
	w.WriteBytes(body.Code)
	return w.Bytes()
}

func writeImport(w *binary.Writer, imp Import) {
	w.WriteName(imp.Module)
	w.WriteName(imp.Name)
	w.Byte(imp.Desc.Kind)
	switch imp.Desc.Kind {
	case KindFunc:
		w.WriteU32(imp.Desc.TypeIdx)
	case KindTable:
		w.Byte(imp.Desc.Table.ElemType)
		writeLimits(w, imp.Desc.Table.Limits)
	case KindMemory:
		writeLimits(w, imp.Desc.Memory.Limits)
	case KindGlobal:
		writeGlobalType(w, *imp.Desc.Global)
	case KindTag:
		w.Byte(imp.Desc.TagAttr)
		w.WriteU32(imp.Desc.TypeIdx)
	}
}

func writeValTypes(w *binary.Writer, types []ValType) {
	w.WriteU32(uint32(len(types)))
	for _, t := range types {
		w.Byte(byte(t))
	}
}

func writeLimits(w *binary.Writer, l Limits) {
	var flags byte
	if l.Max != nil {
		flags |= LimitsHasMax
	}
	if l.Shared {
		flags |= LimitsShared
	}
	if l.Memory64 {
		flags |= LimitsMemory64
	}
	w.Byte(flags)

	write := func(v uint64) {
		if l.Memory64 {
			w.WriteU64(v)
		} else {
			w.WriteU32(uint32(v))
		}
	}
	write(l.Min)
	if l.Max != nil {
		write(*l.Max)
	}
}

func writeGlobalType(w *binary.Writer, g GlobalType) {
	w.Byte(byte(g.ValType))
	if g.Mutable {
		w.Byte(1)
	} else {
		w.Byte(0)
	}
}
