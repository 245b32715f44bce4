package metadata

import (
	"fmt"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/internal/binary"
	"github.com/wippyai/clrmeta/signature"
)

// Constant is a decoded Constant row. Value holds a Go value of the
// matching kind: bool, rune for Char, the sized integer types, float32,
// float64, string, or nil for a null reference.
type Constant struct {
	Type  signature.ElementType
	Value any
}

// String renders the value as a literal. Char is told apart from I4 by the
// element type since both are held as int32.
func (c Constant) String() string {
	switch v := c.Value.(type) {
	case nil:
		return "null"
	case string:
		return fmt.Sprintf("%q", v)
	case rune:
		if c.Type == signature.ElementChar {
			return fmt.Sprintf("%q", v)
		}
	}
	return fmt.Sprint(c.Value)
}

func (m *Module) constantOf(parent Token) (Constant, bool) {
	r, ok := m.md.ConstantOf(parent)
	if !ok {
		return Constant{}, false
	}
	row := m.md.Constant(r)
	kind := signature.ElementType(row.Type)
	v, err := decodeConstant(kind, row.Value)
	if err != nil {
		m.host.log.Debug("malformed constant", zap.String("module", m.name), zap.Stringer("parent", parent), zap.Error(err))
		return Constant{}, false
	}
	return Constant{Type: kind, Value: v}, true
}

func decodeConstant(kind signature.ElementType, blob []byte) (any, error) {
	switch kind {
	case signature.ElementString:
		return decodeUTF16(blob)
	case signature.ElementClass:
		return nil, nil
	}
	return readPrimitive(binary.NewReader(blob), kind)
}

// readPrimitive reads one little-endian value of a primitive element type.
func readPrimitive(r *binary.Reader, kind signature.ElementType) (any, error) {
	switch kind {
	case signature.ElementBoolean:
		b, err := r.ReadByte()
		return b != 0, err
	case signature.ElementChar:
		v, err := r.ReadU16()
		return rune(v), err
	case signature.ElementI1:
		b, err := r.ReadByte()
		return int8(b), err
	case signature.ElementU1:
		return r.ReadByte()
	case signature.ElementI2:
		v, err := r.ReadU16()
		return int16(v), err
	case signature.ElementU2:
		return r.ReadU16()
	case signature.ElementI4:
		v, err := r.ReadU32()
		return int32(v), err
	case signature.ElementU4:
		return r.ReadU32()
	case signature.ElementI8:
		v, err := r.ReadU64()
		return int64(v), err
	case signature.ElementU8:
		return r.ReadU64()
	case signature.ElementR4:
		return r.ReadF32()
	case signature.ElementR8:
		return r.ReadF64()
	}
	return nil, errors.Unsupported(errors.PhaseParse, fmt.Sprintf("value of element type 0x%02x", byte(kind)))
}

// decodeUTF16 decodes little-endian UTF-16 without a terminator.
func decodeUTF16(b []byte) (string, error) {
	if len(b)%2 != 0 {
		return "", errors.InvalidData(errors.PhaseParse, []string{"Constant"}, "odd UTF-16 length")
	}
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	return string(utf16.Decode(units)), nil
}
