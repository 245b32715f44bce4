package binary

import (
	"bytes"
	"encoding/binary"
	"math"
)

// Writer provides buffered writing utilities for metadata and signature encoding.
type Writer struct {
	buf *bytes.Buffer
}

// NewWriter creates a new Writer.
func NewWriter() *Writer {
	return &Writer{buf: &bytes.Buffer{}}
}

// Bytes returns the written bytes.
func (w *Writer) Bytes() []byte {
	return w.buf.Bytes()
}

// Len returns the number of bytes written.
func (w *Writer) Len() int {
	return w.buf.Len()
}

// Byte writes a single byte.
func (w *Writer) Byte(b byte) {
	w.buf.WriteByte(b)
}

// WriteBytes writes a byte slice.
func (w *Writer) WriteBytes(data []byte) {
	w.buf.Write(data)
}

// WriteString writes s without a terminator.
func (w *Writer) WriteString(s string) {
	w.buf.WriteString(s)
}

// WriteU16 writes a little-endian uint16.
func (w *Writer) WriteU16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	w.buf.Write(buf[:])
}

// WriteU32 writes a little-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.buf.Write(buf[:])
}

// WriteU64 writes a little-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	w.buf.Write(buf[:])
}

// WriteF32 writes a little-endian float32.
func (w *Writer) WriteF32(v float32) {
	w.WriteU32(math.Float32bits(v))
}

// WriteF64 writes a little-endian float64.
func (w *Writer) WriteF64(v float64) {
	w.WriteU64(math.Float64bits(v))
}

// WriteIndex writes a 2 or 4 byte table or heap index.
func (w *Writer) WriteIndex(v uint32, wide bool) {
	if wide {
		w.WriteU32(v)
		return
	}
	w.WriteU16(uint16(v))
}

// WriteCompressedU32 writes an ECMA-335 compressed unsigned integer.
// Values above 0x1FFFFFFF are not representable and are truncated.
func (w *Writer) WriteCompressedU32(v uint32) {
	switch {
	case v <= 0x7F:
		w.writeWidth(v, 1)
	case v <= 0x3FFF:
		w.writeWidth(v, 2)
	default:
		w.writeWidth(v&0x1FFFFFFF, 4)
	}
}

// WriteCompressedS32 writes an ECMA-335 compressed signed integer.
func (w *Writer) WriteCompressedS32(v int32) {
	var sign uint32
	if v < 0 {
		sign = 1
	}
	switch {
	case v >= -(1<<6) && v < 1<<6:
		w.writeWidth(uint32(v)&0x3F<<1|sign, 1)
	case v >= -(1<<13) && v < 1<<13:
		w.writeWidth(uint32(v)&0x1FFF<<1|sign, 2)
	default:
		w.writeWidth(uint32(v)&0x0FFFFFFF<<1|sign, 4)
	}
}

func (w *Writer) writeWidth(u uint32, width int) {
	switch width {
	case 1:
		w.buf.WriteByte(byte(u))
	case 2:
		w.buf.WriteByte(byte(u>>8) | 0x80)
		w.buf.WriteByte(byte(u))
	default:
		w.buf.WriteByte(byte(u>>24) | 0xC0)
		w.buf.WriteByte(byte(u >> 16))
		w.buf.WriteByte(byte(u >> 8))
		w.buf.WriteByte(byte(u))
	}
}

// WriteCString writes s followed by a NUL byte.
func (w *Writer) WriteCString(s string) {
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

// WriteSerString writes a custom attribute SerString; null writes 0xFF.
func (w *Writer) WriteSerString(s string, null bool) {
	if null {
		w.buf.WriteByte(NullString)
		return
	}
	w.WriteCompressedU32(uint32(len(s)))
	w.buf.WriteString(s)
}

// Align pads with zero bytes to the next multiple of n.
func (w *Writer) Align(n int) {
	for w.buf.Len()%n != 0 {
		w.buf.WriteByte(0)
	}
}

// PutU32At overwrites four bytes at pos with v.
func (w *Writer) PutU32At(pos int, v uint32) {
	binary.LittleEndian.PutUint32(w.buf.Bytes()[pos:], v)
}
