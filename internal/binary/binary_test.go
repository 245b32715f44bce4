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

func TestReaderFixedWidth(t *testing.T) {
	r := NewReader([]byte{0x34, 0x12, 0x78, 0x56, 0x34, 0x12, 0x01, 0, 0, 0, 0, 0, 0, 0x80})
	u16, _ := r.ReadU16()
	u32, _ := r.ReadU32()
	u64, err := r.ReadU64()
	if err != nil {
		t.Fatalf("ReadU64: %v", err)
	}
	if u16 != 0x1234 || u32 != 0x12345678 || u64 != 0x8000000000000001 {
		t.Errorf("got %#x %#x %#x", u16, u32, u64)
	}
	if _, err := r.ReadU16(); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestReaderReadIndex(t *testing.T) {
	r := NewReader([]byte{0x02, 0x00, 0x03, 0x00, 0x01, 0x00})
	narrow, _ := r.ReadIndex(false)
	wide, err := r.ReadIndex(true)
	if err != nil {
		t.Fatal(err)
	}
	if narrow != 2 || wide != 0x00010003 {
		t.Errorf("got %d %#x", narrow, wide)
	}
}

// Values from ECMA-335 II.23.2.
func TestCompressedUnsigned(t *testing.T) {
	tests := []struct {
		value   uint32
		encoded []byte
	}{
		{0x03, []byte{0x03}},
		{0x7F, []byte{0x7F}},
		{0x80, []byte{0x80, 0x80}},
		{0x2E57, []byte{0xAE, 0x57}},
		{0x3FFF, []byte{0xBF, 0xFF}},
		{0x4000, []byte{0xC0, 0x00, 0x40, 0x00}},
		{0x1FFFFFFF, []byte{0xDF, 0xFF, 0xFF, 0xFF}},
	}

	for _, tt := range tests {
		w := NewWriter()
		w.WriteCompressedU32(tt.value)
		if !bytes.Equal(w.Bytes(), tt.encoded) {
			t.Errorf("encode %#x: got % x, want % x", tt.value, w.Bytes(), tt.encoded)
		}
		got, err := NewReader(tt.encoded).ReadCompressedU32()
		if err != nil {
			t.Fatalf("decode % x: %v", tt.encoded, err)
		}
		if got != tt.value {
			t.Errorf("decode % x: got %#x, want %#x", tt.encoded, got, tt.value)
		}
	}
}

func TestCompressedSigned(t *testing.T) {
	tests := []struct {
		value   int32
		encoded []byte
	}{
		{3, []byte{0x06}},
		{-3, []byte{0x7B}},
		{64, []byte{0x80, 0x80}},
		{-64, []byte{0x01}},
		{8191, []byte{0xBF, 0xFE}},
		{-8192, []byte{0x80, 0x01}},
		{268435455, []byte{0xDF, 0xFF, 0xFF, 0xFE}},
		{-268435456, []byte{0xC0, 0x00, 0x00, 0x01}},
	}

	for _, tt := range tests {
		w := NewWriter()
		w.WriteCompressedS32(tt.value)
		if !bytes.Equal(w.Bytes(), tt.encoded) {
			t.Errorf("encode %d: got % x, want % x", tt.value, w.Bytes(), tt.encoded)
		}
		got, err := NewReader(tt.encoded).ReadCompressedS32()
		if err != nil {
			t.Fatalf("decode % x: %v", tt.encoded, err)
		}
		if got != tt.value {
			t.Errorf("decode % x: got %d, want %d", tt.encoded, got, tt.value)
		}
	}
}

func TestCompressedInvalidLead(t *testing.T) {
	_, err := NewReader([]byte{0xE0, 0, 0, 0}).ReadCompressedU32()
	if !errors.Is(err, ErrBadCompressed) {
		t.Errorf("expected ErrBadCompressed, got %v", err)
	}
	_, err = NewReader([]byte{0xC0, 0}).ReadCompressedU32()
	if err == nil {
		t.Error("expected error for truncated 4-byte form")
	}
}

func TestSerString(t *testing.T) {
	w := NewWriter()
	w.WriteSerString("hello", false)
	w.WriteSerString("", true)
	w.WriteSerString("", false)

	r := NewReader(w.Bytes())
	s, ok, err := r.ReadSerString()
	if err != nil || !ok || s != "hello" {
		t.Errorf("first: %q %v %v", s, ok, err)
	}
	s, ok, err = r.ReadSerString()
	if err != nil || ok || s != "" {
		t.Errorf("null: %q %v %v", s, ok, err)
	}
	s, ok, err = r.ReadSerString()
	if err != nil || !ok || s != "" {
		t.Errorf("empty: %q %v %v", s, ok, err)
	}
}

func TestCStringAndAlign(t *testing.T) {
	w := NewWriter()
	w.WriteCString("#~")
	w.Align(4)
	w.WriteU32(7)
	if w.Len() != 8 {
		t.Fatalf("Len = %d, want 8", w.Len())
	}

	r := NewReader(w.Bytes())
	s, err := r.ReadCString()
	if err != nil || s != "#~" {
		t.Fatalf("ReadCString = %q, %v", s, err)
	}
	if err := r.Align(4); err != nil {
		t.Fatal(err)
	}
	v, _ := r.ReadU32()
	if v != 7 {
		t.Errorf("after align got %d", v)
	}

	if _, err := NewReader([]byte("abc")).ReadCString(); err == nil {
		t.Error("expected error for unterminated string")
	}
}

func TestPutU32At(t *testing.T) {
	w := NewWriter()
	w.WriteU32(0)
	w.WriteU32(0)
	w.PutU32At(4, 0xAABBCCDD)
	v, _ := NewReader(w.Bytes()[4:]).ReadU32()
	if v != 0xAABBCCDD {
		t.Errorf("got %#x", v)
	}
}

func TestParseError(t *testing.T) {
	r := NewReader([]byte{1, 2})
	_, _ = r.ReadByte()
	err := r.WrapError("#~", io.ErrUnexpectedEOF)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatal("expected ParseError")
	}
	if pe.Position != 1 || pe.Section != "#~" {
		t.Errorf("got %+v", pe)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("ParseError should unwrap")
	}
}
