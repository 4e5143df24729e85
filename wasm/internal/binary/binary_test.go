package binary

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderBytes(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05})

	got, err := r.Bytes(3)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if !bytes.Equal(got, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("Bytes: got %v, want [1 2 3]", got)
	}
	if r.Len() != 2 {
		t.Errorf("Len: got %d, want 2", r.Len())
	}

	_, err = r.Bytes(10)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}

	if rest := r.Remaining(); !bytes.Equal(rest, []byte{0x04, 0x05}) {
		t.Errorf("Remaining: got %v", rest)
	}
}

func TestReaderReadU32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		got, err := NewReader(tt.encoded).ReadU32()
		if err != nil {
			t.Errorf("ReadU32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadU32(%v): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadU32Overflow(t *testing.T) {
	_, err := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}).ReadU32()
	if !errors.Is(err, ErrOverflow) {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestReaderReadS32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    int32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, -1},
		{[]byte{0x80, 0x7f}, -128},
		{[]byte{0xc0, 0xbb, 0x78}, -123456},
		{[]byte{0xea, 0x88, 0x04}, 66666},
	}

	for _, tt := range tests {
		got, err := NewReader(tt.encoded).ReadS32()
		if err != nil {
			t.Errorf("ReadS32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadS32(%v): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestWriterRoundTrip(t *testing.T) {
	u32s := []uint32{0, 1, 127, 128, 20000, 0xFFFFFFFF}
	s64s := []int64{0, -1, 63, 64, -65, 66666, -1 << 63, 1<<63 - 1}

	w := NewWriter()
	for _, v := range u32s {
		w.WriteU32(v)
	}
	for _, v := range s64s {
		w.WriteS64(v)
	}
	w.WriteName("memory")
	w.WriteU32LE(0x6D736100)

	r := NewReader(w.Bytes())
	for _, want := range u32s {
		got, err := r.ReadU32()
		if err != nil || got != want {
			t.Fatalf("ReadU32: got %d, %v; want %d", got, err, want)
		}
	}
	for _, want := range s64s {
		got, err := r.ReadS64()
		if err != nil || got != want {
			t.Fatalf("ReadS64: got %d, %v; want %d", got, err, want)
		}
	}
	name, err := r.ReadName()
	if err != nil || name != "memory" {
		t.Fatalf("ReadName: got %q, %v", name, err)
	}
	magic, err := r.ReadU32LE()
	if err != nil || magic != 0x6D736100 {
		t.Fatalf("ReadU32LE: got %x, %v", magic, err)
	}
	if r.Len() != 0 {
		t.Errorf("trailing bytes: %d", r.Len())
	}
}

func TestWriterSection(t *testing.T) {
	w := NewWriter()
	w.Section(7, []byte{0xaa, 0xbb})
	if !bytes.Equal(w.Bytes(), []byte{7, 2, 0xaa, 0xbb}) {
		t.Errorf("Section: got %v", w.Bytes())
	}
}

func TestParseError(t *testing.T) {
	r := NewReader([]byte{0x01})
	_, _ = r.ReadByte()
	err := r.WrapError("export", io.ErrUnexpectedEOF)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatal("expected ParseError")
	}
	if pe.Position != 1 || pe.Section != "export" {
		t.Errorf("got %+v", pe)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ParseError should unwrap")
	}
}
