package wasm

import (
	"bytes"
	"errors"
	"testing"
)

func sampleModule() *Module {
	maxPages := uint64(32)
	return &Module{
		Types: []FuncType{
			{Params: []ValType{ValI32}, Results: []ValType{ValI32}},
			{Params: []ValType{ValI32, ValI32}, Results: []ValType{ValI64}},
		},
		Imports: []Import{
			{Module: "env", Name: "add_one", Desc: ImportDesc{Kind: KindFunc, TypeIdx: 0}},
			{Module: "env", Name: "memory", Desc: ImportDesc{Kind: KindMemory, Memory: &MemoryType{Limits: Limits{Min: 17, Max: &maxPages}}}},
		},
		Funcs: []uint32{1},
		Globals: []Global{
			{Type: GlobalType{ValType: ValI32, Mutable: false}, Init: I32ConstExpr(20000)},
			{Type: GlobalType{ValType: ValI64, Mutable: true}, Init: I64ConstExpr(-5)},
		},
		Exports: []Export{
			{Name: "main", Kind: KindFunc, Idx: 1},
			{Name: "__heap_base", Kind: KindGlobal, Idx: 0},
		},
		Code: []FuncBody{
			{Locals: []LocalEntry{{Count: 2, ValType: ValI32}}, Code: []byte{OpI64Const, 0x00, OpEnd}},
		},
		Data: []DataSegment{
			{Flags: 0, Offset: I32ConstExpr(1024), Init: []byte("hello")},
			{Flags: 1, Init: []byte{1, 2, 3}},
		},
		Raw: map[byte][]byte{SectionStart: {0x01}},
		CustomSections: []CustomSection{
			{Name: "name", Data: []byte{0x00, 0x01, 0x02}, After: SectionData},
		},
	}
}

func TestParseModule_RoundTrip(t *testing.T) {
	encoded := sampleModule().Encode()

	m, err := ParseModule(encoded)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(m.Types) != 2 || !m.Types[1].Equal(FuncType{Params: []ValType{ValI32, ValI32}, Results: []ValType{ValI64}}) {
		t.Errorf("types = %v", m.Types)
	}
	if m.NumImportedFuncs() != 1 || m.NumImportedMemories() != 1 {
		t.Errorf("imports = %+v", m.Imports)
	}
	mem := m.Imports[1].Desc.Memory
	if mem == nil || mem.Limits.Min != 17 || mem.Limits.Max == nil || *mem.Limits.Max != 32 {
		t.Errorf("memory import = %+v", mem)
	}
	if !m.Globals[1].Type.Mutable || m.Globals[1].Type.ValType != ValI64 {
		t.Errorf("global 1 = %+v", m.Globals[1])
	}
	if len(m.Code) != 1 || m.Code[0].Locals[0].Count != 2 {
		t.Errorf("code = %+v", m.Code)
	}
	if !m.Data[1].Passive() || m.Data[0].Passive() {
		t.Errorf("data flags = %d, %d", m.Data[0].Flags, m.Data[1].Flags)
	}
	if !bytes.Equal(m.Raw[SectionStart], []byte{0x01}) {
		t.Errorf("start section = %v", m.Raw[SectionStart])
	}
	if len(m.CustomSections) != 1 || m.CustomSections[0].After != SectionData {
		t.Errorf("custom sections = %+v", m.CustomSections)
	}

	if again := m.Encode(); !bytes.Equal(again, encoded) {
		t.Error("re-encoding a parsed module should be byte-identical")
	}
}

func TestParseModule_Header(t *testing.T) {
	if _, err := ParseModule([]byte{0x00, 0x61, 0x73, 0x6e, 0x01, 0, 0, 0}); !errors.Is(err, ErrInvalidMagic) {
		t.Errorf("bad magic: got %v", err)
	}
	if _, err := ParseModule([]byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0, 0, 0}); !errors.Is(err, ErrInvalidVersion) {
		t.Errorf("bad version: got %v", err)
	}
	if _, err := ParseModule([]byte{0x00, 0x61}); err == nil {
		t.Error("truncated header should fail")
	}
	m, err := ParseModule([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0, 0, 0})
	if err != nil {
		t.Fatalf("empty module: %v", err)
	}
	if len(m.Exports) != 0 {
		t.Errorf("empty module has exports: %v", m.Exports)
	}
}

func TestParseModule_SectionOrder(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0, 0, 0,
		SectionExport, 0x01, 0x00,
		SectionType, 0x01, 0x00,
	}
	if _, err := ParseModule(data); err == nil {
		t.Error("expected out of order error")
	}
}

func TestModuleLookups(t *testing.T) {
	m := sampleModule()

	if ft := m.GetFuncType(0); ft == nil || !ft.Equal(m.Types[0]) {
		t.Errorf("GetFuncType(0) = %v", ft)
	}
	if ft := m.GetFuncType(1); ft == nil || !ft.Equal(m.Types[1]) {
		t.Errorf("GetFuncType(1) = %v", ft)
	}
	if ft := m.GetFuncType(5); ft != nil {
		t.Errorf("GetFuncType(5) = %v, want nil", ft)
	}
	if gt := m.GlobalTypeAt(1); gt == nil || !gt.Mutable {
		t.Errorf("GlobalTypeAt(1) = %v", gt)
	}
	if _, ok := m.FindExport("__heap_base", KindGlobal); !ok {
		t.Error("FindExport(__heap_base) failed")
	}
	if _, ok := m.FindExport("__heap_base", KindFunc); ok {
		t.Error("FindExport should match kind")
	}
	if _, ok := m.FindImport("env", "memory", KindMemory); !ok {
		t.Error("FindImport(env.memory) failed")
	}
	if idx := m.AddType(FuncType{Params: []ValType{ValI32}, Results: []ValType{ValI32}}); idx != 0 {
		t.Errorf("AddType should reuse index 0, got %d", idx)
	}
	if idx := m.AddType(FuncType{}); idx != 2 {
		t.Errorf("AddType new = %d, want 2", idx)
	}
}

func TestDecodeConstExpr(t *testing.T) {
	tests := []struct {
		name   string
		expr   []byte
		opcode byte
		value  uint64
	}{
		{"i32", I32ConstExpr(-1), OpI32Const, 0xFFFFFFFF},
		{"i32 positive", I32ConstExpr(66666), OpI32Const, 66666},
		{"i64", I64ConstExpr(-5), OpI64Const, 0xFFFFFFFFFFFFFFFB},
		{"f32", []byte{OpF32Const, 0x00, 0x00, 0x80, 0x3f, OpEnd}, OpF32Const, 0x3f800000},
		{"global.get", GlobalGetExpr(3), OpGlobalGet, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := DecodeConstExpr(tt.expr)
			if err != nil {
				t.Fatalf("DecodeConstExpr: %v", err)
			}
			if c.Opcode != tt.opcode || c.Value != tt.value {
				t.Errorf("got %+v, want opcode 0x%02x value %d", c, tt.opcode, tt.value)
			}
		})
	}

	multi := []byte{OpI32Const, 0x01, OpI32Const, 0x02, OpI32Add, OpEnd}
	if _, err := DecodeConstExpr(multi); !errors.Is(err, ErrUnsupported) {
		t.Errorf("multi-instruction: got %v", err)
	}
}

func TestFuncTypeString(t *testing.T) {
	ft := FuncType{Params: []ValType{ValI32, ValI32}, Results: []ValType{ValI64}}
	if got := ft.String(); got != "(i32, i32) -> (i64)" {
		t.Errorf("String() = %q", got)
	}
}
