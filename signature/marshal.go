package signature

import (
	"fmt"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/internal/binary"
)

// NativeType is a marshalling descriptor type code (ECMA-335 II.23.4).
type NativeType byte

const (
	NativeBoolean         NativeType = 0x02
	NativeI1              NativeType = 0x03
	NativeU1              NativeType = 0x04
	NativeI2              NativeType = 0x05
	NativeU2              NativeType = 0x06
	NativeI4              NativeType = 0x07
	NativeU4              NativeType = 0x08
	NativeI8              NativeType = 0x09
	NativeU8              NativeType = 0x0A
	NativeR4              NativeType = 0x0B
	NativeR8              NativeType = 0x0C
	NativeCurrency        NativeType = 0x0F
	NativeBStr            NativeType = 0x13
	NativeLPStr           NativeType = 0x14
	NativeLPWStr          NativeType = 0x15
	NativeLPTStr          NativeType = 0x16
	NativeFixedSysString  NativeType = 0x17
	NativeIUnknown        NativeType = 0x19
	NativeIDispatch       NativeType = 0x1A
	NativeStruct          NativeType = 0x1B
	NativeInterface       NativeType = 0x1C
	NativeSafeArray       NativeType = 0x1D
	NativeFixedArray      NativeType = 0x1E
	NativeInt             NativeType = 0x1F
	NativeUInt            NativeType = 0x20
	NativeByValStr        NativeType = 0x22
	NativeAnsiBStr        NativeType = 0x23
	NativeTBStr           NativeType = 0x24
	NativeVariantBool     NativeType = 0x25
	NativeFunc            NativeType = 0x26
	NativeAsAny           NativeType = 0x28
	NativeArray           NativeType = 0x2A
	NativeLPStruct        NativeType = 0x2B
	NativeCustomMarshaler NativeType = 0x2C
	NativeError           NativeType = 0x2D
	NativeIInspectable    NativeType = 0x2E
	NativeHString         NativeType = 0x2F
	NativeLPUTF8Str       NativeType = 0x30
	NativeMax             NativeType = 0x50
)

// MarshalDescriptor is a decoded FieldMarshal blob. Optional numeric parts are
// -1 when absent.
type MarshalDescriptor struct {
	SafeArrayUserType string
	CustomGUID        string
	NativeTypeName    string
	CustomMarshaler   string
	Cookie            string
	ParamIndex        int32
	NumElements       int32
	IIDParamIndex     int32
	Size              uint32
	SafeArrayVariant  uint32
	Native            NativeType
	ElementType       NativeType
}

func (m *MarshalDescriptor) String() string {
	switch m.Native {
	case NativeArray:
		return fmt.Sprintf("array(0x%02x, param=%d, count=%d)", byte(m.ElementType), m.ParamIndex, m.NumElements)
	case NativeFixedArray, NativeFixedSysString:
		return fmt.Sprintf("fixed(0x%02x, size=%d)", byte(m.Native), m.Size)
	case NativeCustomMarshaler:
		return "custom(" + m.CustomMarshaler + ")"
	default:
		return fmt.Sprintf("native(0x%02x)", byte(m.Native))
	}
}

// ParseMarshal decodes a FieldMarshal native type blob.
func ParseMarshal(blob []byte) (*MarshalDescriptor, error) {
	r := binary.NewReader(blob)
	m := &MarshalDescriptor{ParamIndex: -1, NumElements: -1, IIDParamIndex: -1}
	b, err := r.ReadByte()
	if err != nil {
		return m, errors.Truncated(errors.PhaseSignature, []string{"MarshalSig"}, 1, 0)
	}
	m.Native = NativeType(b)

	optional := func() (uint32, bool) {
		if r.Len() == 0 {
			return 0, false
		}
		v, err := r.ReadCompressedU32()
		return v, err == nil
	}
	str := func() (string, error) {
		n, err := r.ReadCompressedU32()
		if err != nil {
			return "", err
		}
		s, err := r.ReadBytes(int(n))
		return string(s), err
	}

	switch m.Native {
	case NativeFixedSysString:
		if v, ok := optional(); ok {
			m.Size = v
		}
	case NativeFixedArray:
		if v, ok := optional(); ok {
			m.Size = v
		}
		if r.Len() > 0 {
			e, _ := r.ReadByte()
			m.ElementType = NativeType(e)
		}
	case NativeSafeArray:
		if v, ok := optional(); ok {
			m.SafeArrayVariant = v
		}
		if r.Len() > 0 {
			if m.SafeArrayUserType, err = str(); err != nil {
				return m, wrapMarshal(err)
			}
		}
	case NativeArray:
		if r.Len() > 0 {
			e, _ := r.ReadByte()
			m.ElementType = NativeType(e)
		}
		if v, ok := optional(); ok {
			m.ParamIndex = int32(v)
		}
		if v, ok := optional(); ok {
			m.NumElements = int32(v)
		}
	case NativeInterface, NativeIUnknown, NativeIDispatch:
		if v, ok := optional(); ok {
			m.IIDParamIndex = int32(v)
		}
	case NativeCustomMarshaler:
		for _, dst := range []*string{&m.CustomGUID, &m.NativeTypeName, &m.CustomMarshaler, &m.Cookie} {
			if *dst, err = str(); err != nil {
				return m, wrapMarshal(err)
			}
		}
	}
	return m, nil
}

func wrapMarshal(err error) error {
	return errors.Wrap(errors.PhaseSignature, errors.KindTruncated, err, "marshal descriptor")
}

// EncodeMarshal encodes a marshalling descriptor. Fields that ParseMarshal
// reports as absent are omitted.
func EncodeMarshal(m *MarshalDescriptor) []byte {
	w := binary.NewWriter()
	w.Byte(byte(m.Native))
	str := func(s string) {
		w.WriteCompressedU32(uint32(len(s)))
		w.WriteString(s)
	}
	switch m.Native {
	case NativeFixedSysString:
		w.WriteCompressedU32(m.Size)
	case NativeFixedArray:
		w.WriteCompressedU32(m.Size)
		if m.ElementType != 0 {
			w.Byte(byte(m.ElementType))
		}
	case NativeSafeArray:
		w.WriteCompressedU32(m.SafeArrayVariant)
		if m.SafeArrayUserType != "" {
			str(m.SafeArrayUserType)
		}
	case NativeArray:
		w.Byte(byte(m.ElementType))
		if m.ParamIndex >= 0 {
			w.WriteCompressedU32(uint32(m.ParamIndex))
			if m.NumElements >= 0 {
				w.WriteCompressedU32(uint32(m.NumElements))
			}
		}
	case NativeInterface, NativeIUnknown, NativeIDispatch:
		if m.IIDParamIndex >= 0 {
			w.WriteCompressedU32(uint32(m.IIDParamIndex))
		}
	case NativeCustomMarshaler:
		str(m.CustomGUID)
		str(m.NativeTypeName)
		str(m.CustomMarshaler)
		str(m.Cookie)
	}
	return w.Bytes()
}
