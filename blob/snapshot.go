package blob

import (
	"github.com/wippyai/wasm-executor/errors"
	"github.com/wippyai/wasm-executor/wasm"
)

// DataChunk is one static byte range of linear memory.
type DataChunk struct {
	Offset uint32
	Data   []byte
}

// DataSegmentsSnapshot holds the module's active data segments in
// declaration order. It is immutable once taken and shared by all instances.
type DataSegmentsSnapshot struct {
	chunks []DataChunk
}

// TakeDataSegments walks the module's data section. Only active segments for
// memory 0 with an i32.const offset are accepted.
func TakeDataSegments(b *RuntimeBlob) (*DataSegmentsSnapshot, error) {
	var chunks []DataChunk
	for i, seg := range b.module.Data {
		if seg.Passive() {
			return nil, errors.New(errors.PhaseLoad, errors.KindModule).
				Detail("data segment %d: passive segments are not supported", i).
				Build()
		}
		if seg.MemIdx != 0 {
			return nil, errors.New(errors.PhaseLoad, errors.KindModule).
				Detail("data segment %d: memory index %d is not supported", i, seg.MemIdx).
				Build()
		}

		c, err := wasm.DecodeConstExpr(seg.Offset)
		if err != nil {
			return nil, errors.New(errors.PhaseLoad, errors.KindModule).
				Detail("data segment %d: unsupported offset expression", i).
				Cause(err).
				Build()
		}
		switch c.Opcode {
		case wasm.OpI32Const:
		case wasm.OpGlobalGet:
			return nil, errors.New(errors.PhaseLoad, errors.KindModule).
				Detail("data segment %d: offsets from imported globals are not supported", i).
				Build()
		default:
			return nil, errors.New(errors.PhaseLoad, errors.KindModule).
				Detail("data segment %d: offset must be an i32.const", i).
				Build()
		}

		if len(seg.Init) == 0 {
			continue
		}
		chunks = append(chunks, DataChunk{
			Offset: uint32(c.Value),
			Data:   append([]byte(nil), seg.Init...),
		})
	}
	return &DataSegmentsSnapshot{chunks: chunks}, nil
}

// Chunks returns the captured ranges. Callers must not modify them.
func (s *DataSegmentsSnapshot) Chunks() []DataChunk {
	return s.chunks
}

// Size returns the total number of captured bytes.
func (s *DataSegmentsSnapshot) Size() int {
	n := 0
	for _, c := range s.chunks {
		n += len(c.Data)
	}
	return n
}

// Apply writes every chunk through write, stopping at the first error.
func (s *DataSegmentsSnapshot) Apply(write func(offset uint32, data []byte) error) error {
	for _, c := range s.chunks {
		if err := write(c.Offset, c.Data); err != nil {
			return err
		}
	}
	return nil
}

// MutableGlobalsSet is the list of exported mutable global names, collected
// once per module as the template for per-instance GlobalsSnapshot values.
type MutableGlobalsSet []string

// CollectMutableGlobals walks the export list in order.
func CollectMutableGlobals(b *RuntimeBlob) MutableGlobalsSet {
	m := b.module
	var set MutableGlobalsSet
	for _, e := range m.Exports {
		if e.Kind != wasm.KindGlobal {
			continue
		}
		if gt := m.GlobalTypeAt(e.Idx); gt != nil && gt.Mutable {
			set = append(set, e.Name)
		}
	}
	return set
}

// InstanceGlobals gives a snapshot access to the globals of a live instance.
type InstanceGlobals[G any] interface {
	// Global returns the handle of an exported global, false if absent.
	Global(name string) (G, bool)
	GlobalValue(g G) uint64
	SetGlobalValue(g G, value uint64)
}

type savedGlobal[G any] struct {
	handle G
	value  uint64
}

// GlobalsSnapshot holds the values of a MutableGlobalsSet as read from one
// live instance, ready to be written back before every call.
type GlobalsSnapshot[G any] struct {
	saved []savedGlobal[G]
}

// TakeGlobals reads the current value of every global in set.
func TakeGlobals[G any](set MutableGlobalsSet, globals InstanceGlobals[G]) (*GlobalsSnapshot[G], error) {
	s := &GlobalsSnapshot[G]{saved: make([]savedGlobal[G], 0, len(set))}
	for _, name := range set {
		g, ok := globals.Global(name)
		if !ok {
			return nil, errors.New(errors.PhaseInstantiate, errors.KindModule).
				Name(name).
				Detail("mutable global is not exported by the instance").
				Build()
		}
		s.saved = append(s.saved, savedGlobal[G]{handle: g, value: globals.GlobalValue(g)})
	}
	return s, nil
}

// Len returns the number of captured globals.
func (s *GlobalsSnapshot[G]) Len() int {
	return len(s.saved)
}

// Apply restores every captured global.
func (s *GlobalsSnapshot[G]) Apply(globals InstanceGlobals[G]) {
	for _, g := range s.saved {
		globals.SetGlobalValue(g.handle, g.value)
	}
}
