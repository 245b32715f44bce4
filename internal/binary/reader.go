package binary

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"
)

// ErrBadCompressed is returned when a compressed integer has an invalid lead byte.
var ErrBadCompressed = errors.New("compressed integer: invalid lead byte")

// NullString is the lead byte of a null SerString in custom attribute blobs.
const NullString = 0xFF

// Reader reads little-endian and ECMA-335 compressed values from an in-memory
// buffer with position tracking. Slices returned by ReadBytes alias the buffer.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a new Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Position returns the current byte position.
func (r *Reader) Position() int {
	return r.pos
}

// Len returns the number of unread bytes.
func (r *Reader) Len() int {
	return len(r.data) - r.pos
}

// Seek moves to an absolute position.
func (r *Reader) Seek(pos int) error {
	if pos < 0 || pos > len(r.data) {
		return r.wrapError(fmt.Errorf("seek to %d outside [0, %d]", pos, len(r.data)))
	}
	r.pos = pos
	return nil
}

// Skip advances n bytes.
func (r *Reader) Skip(n int) error {
	return r.Seek(r.pos + n)
}

// Align advances to the next multiple of n.
func (r *Reader) Align(n int) error {
	if rem := r.pos % n; rem != 0 {
		return r.Skip(n - rem)
	}
	return nil
}

// ReadByte reads a single byte and advances the position.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// PeekByte returns the next byte without advancing.
func (r *Reader) PeekByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	return r.data[r.pos], nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, r.wrapError(io.ErrUnexpectedEOF)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadF32 reads a little-endian IEEE 754 float32.
func (r *Reader) ReadF32() (float32, error) {
	v, err := r.ReadU32()
	return math.Float32frombits(v), err
}

// ReadF64 reads a little-endian IEEE 754 float64.
func (r *Reader) ReadF64() (float64, error) {
	v, err := r.ReadU64()
	return math.Float64frombits(v), err
}

// ReadIndex reads a 2 or 4 byte table or heap index.
func (r *Reader) ReadIndex(wide bool) (uint32, error) {
	if wide {
		return r.ReadU32()
	}
	v, err := r.ReadU16()
	return uint32(v), err
}

// ReadCompressedU32 reads an ECMA-335 II.23.2 compressed unsigned integer.
func (r *Reader) ReadCompressedU32() (uint32, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return 0, r.wrapError(io.ErrUnexpectedEOF)
	}
	switch {
	case b0&0x80 == 0:
		return uint32(b0), nil
	case b0&0xC0 == 0x80:
		b1, err := r.ReadByte()
		if err != nil {
			return 0, r.wrapError(io.ErrUnexpectedEOF)
		}
		return uint32(b0&0x3F)<<8 | uint32(b1), nil
	case b0&0xE0 == 0xC0:
		rest, err := r.ReadBytes(3)
		if err != nil {
			return 0, err
		}
		return uint32(b0&0x1F)<<24 | uint32(rest[0])<<16 | uint32(rest[1])<<8 | uint32(rest[2]), nil
	default:
		return 0, r.wrapError(ErrBadCompressed)
	}
}

// ReadCompressedS32 reads an ECMA-335 II.23.2 compressed signed integer.
func (r *Reader) ReadCompressedS32() (int32, error) {
	start := r.pos
	u, err := r.ReadCompressedU32()
	if err != nil {
		return 0, err
	}
	neg := u&1 != 0
	u >>= 1
	if neg {
		switch r.pos - start {
		case 1:
			u |= 0xFFFFFFC0
		case 2:
			u |= 0xFFFFE000
		default:
			u |= 0xF0000000
		}
	}
	return int32(u), nil
}

// ReadCString reads a NUL-terminated string.
func (r *Reader) ReadCString() (string, error) {
	for i := r.pos; i < len(r.data); i++ {
		if r.data[i] == 0 {
			s := string(r.data[r.pos:i])
			r.pos = i + 1
			return s, nil
		}
	}
	return "", r.wrapError(io.ErrUnexpectedEOF)
}

// ReadSerString reads a custom attribute SerString. The second result is false
// for the null string (lead byte 0xFF).
func (r *Reader) ReadSerString() (string, bool, error) {
	b, err := r.PeekByte()
	if err != nil {
		return "", false, r.wrapError(io.ErrUnexpectedEOF)
	}
	if b == NullString {
		r.pos++
		return "", false, nil
	}
	n, err := r.ReadCompressedU32()
	if err != nil {
		return "", false, err
	}
	data, err := r.ReadBytes(int(n))
	if err != nil {
		return "", false, err
	}
	if !utf8.Valid(data) {
		return "", false, r.wrapError(errors.New("invalid UTF-8 in string"))
	}
	return string(data), true, nil
}

// ReadRemaining reads all remaining bytes.
func (r *Reader) ReadRemaining() []byte {
	b := r.data[r.pos:]
	r.pos = len(r.data)
	return b
}

func (r *Reader) wrapError(err error) error {
	return fmt.Errorf("at position %d: %w", r.pos, err)
}

// ParseError represents an error during binary parsing with position information.
type ParseError struct {
	Err      error
	Section  string
	Position int
}

func (e *ParseError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("clrmeta: %s at position %d: %v", e.Section, e.Position, e.Err)
	}
	return fmt.Sprintf("clrmeta: at position %d: %v", e.Position, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WrapError creates a ParseError with the current position.
func (r *Reader) WrapError(section string, err error) error {
	return &ParseError{
		Position: r.pos,
		Section:  section,
		Err:      err,
	}
}
