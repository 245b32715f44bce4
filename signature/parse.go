package signature

import (
	"fmt"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/internal/binary"
)

const (
	// maxDepth bounds nesting so crafted blobs cannot exhaust the stack.
	maxDepth = 64
	maxRank  = 32
	// maxCount bounds element counts read from a blob before allocation.
	maxCount = 0xFFFF
)

// decoder reads one blob. The first failure is kept in err; later slots still
// decode (usually to Invalid) so callers get partial results.
type decoder struct {
	r     *binary.Reader
	err   error
	what  string
	depth int
}

func newDecoder(blob []byte, what string) *decoder {
	return &decoder{r: binary.NewReader(blob), what: what}
}

func (d *decoder) fail(detail string, args ...any) Invalid {
	msg := fmt.Sprintf(detail, args...)
	if d.err == nil {
		d.err = errors.New(errors.PhaseSignature, errors.KindInvalidData).
			Path(d.what, fmt.Sprintf("offset %d", d.r.Position())).
			Entity(d.what).
			Detail("%s", msg).
			Build()
	}
	return Invalid{Reason: msg}
}

func (d *decoder) truncated() Invalid {
	if d.err == nil {
		d.err = errors.Truncated(errors.PhaseSignature, []string{d.what, fmt.Sprintf("offset %d", d.r.Position())}, 1, d.r.Len())
	}
	return Invalid{Reason: "truncated"}
}

func (d *decoder) u32() (uint32, bool) {
	v, err := d.r.ReadCompressedU32()
	if err != nil {
		d.truncated()
		return 0, false
	}
	return v, true
}

func (d *decoder) count() (uint32, bool) {
	n, ok := d.u32()
	if !ok {
		return 0, false
	}
	if n > maxCount || int(n) > d.r.Len() {
		d.fail("count %d exceeds remaining %d bytes", n, d.r.Len())
		return 0, false
	}
	return n, true
}

func (d *decoder) typeDefOrRef() (image.Token, bool) {
	v, ok := d.u32()
	if !ok {
		return image.NoToken, false
	}
	return DecodeTypeDefOrRef(v)
}

// DecodeTypeDefOrRef decodes a TypeDefOrRefOrSpecEncoded value.
func DecodeTypeDefOrRef(v uint32) (image.Token, bool) {
	row := v >> 2
	switch v & 3 {
	case 0:
		return image.NewToken(image.TableTypeDef, row), true
	case 1:
		return image.NewToken(image.TableTypeRef, row), true
	case 2:
		return image.NewToken(image.TableTypeSpec, row), true
	default:
		return image.NoToken, false
	}
}

// typ decodes one Type production, including leading custom modifiers.
func (d *decoder) typ() Type {
	d.depth++
	defer func() { d.depth-- }()
	if d.depth > maxDepth {
		return d.fail("nesting deeper than %d", maxDepth)
	}

	b, err := d.r.ReadByte()
	if err != nil {
		return d.truncated()
	}
	et := ElementType(b)

	if et.IsPrimitive() {
		return Primitive{Kind: et}
	}

	switch et {
	case ElementCModReqd, ElementCModOpt:
		tok, ok := d.typeDefOrRef()
		if !ok {
			return d.fail("bad custom modifier token")
		}
		return Modified{Required: et == ElementCModReqd, Modifier: tok, Elem: d.typ()}
	case ElementPinned:
		return Pinned{Elem: d.typ()}
	case ElementByRef:
		return ByRef{Elem: d.typ()}
	case ElementPtr:
		return Pointer{Elem: d.typ()}
	case ElementSZArray:
		return SZArray{Elem: d.typ()}
	case ElementClass, ElementValueType:
		tok, ok := d.typeDefOrRef()
		if !ok {
			return d.fail("bad type token")
		}
		return TypeDefOrRef{Token: tok, ValueType: et == ElementValueType}
	case ElementVar, ElementMVar:
		n, ok := d.u32()
		if !ok {
			return Invalid{Reason: "truncated"}
		}
		return GenericParam{Index: n, Method: et == ElementMVar}
	case ElementArray:
		return d.array()
	case ElementGenericInst:
		return d.genericInst()
	case ElementFnPtr:
		m := d.method()
		return FnPtr{Method: m}
	case ElementInternal:
		return d.fail("ELEMENT_TYPE_INTERNAL in persisted signature")
	default:
		return d.fail("unexpected element type 0x%02x", b)
	}
}

func (d *decoder) array() Type {
	elem := d.typ()
	rank, ok := d.u32()
	if !ok {
		return Invalid{Reason: "truncated"}
	}
	if rank == 0 || rank > maxRank {
		return d.fail("array rank %d", rank)
	}
	a := Array{Elem: elem, Rank: rank}
	n, ok := d.count()
	if !ok || n > rank {
		return d.fail("array sizes")
	}
	for i := uint32(0); i < n; i++ {
		v, ok := d.u32()
		if !ok {
			return Invalid{Reason: "truncated"}
		}
		a.Sizes = append(a.Sizes, v)
	}
	n, ok = d.count()
	if !ok || n > rank {
		return d.fail("array lower bounds")
	}
	for i := uint32(0); i < n; i++ {
		v, err := d.r.ReadCompressedS32()
		if err != nil {
			return d.truncated()
		}
		a.LowerBounds = append(a.LowerBounds, v)
	}
	return a
}

func (d *decoder) genericInst() Type {
	b, err := d.r.ReadByte()
	if err != nil {
		return d.truncated()
	}
	if et := ElementType(b); et != ElementClass && et != ElementValueType {
		return d.fail("generic instance of element type 0x%02x", b)
	}
	tok, ok := d.typeDefOrRef()
	if !ok {
		return d.fail("bad generic type token")
	}
	n, ok := d.count()
	if !ok {
		return Invalid{Reason: "bad argument count"}
	}
	if n == 0 {
		return d.fail("generic instance without arguments")
	}
	gi := GenericInst{
		Generic: TypeDefOrRef{Token: tok, ValueType: ElementType(b) == ElementValueType},
		Args:    make([]Type, n),
	}
	for i := range gi.Args {
		gi.Args[i] = d.typ()
	}
	return gi
}

// params decodes n parameter slots. A SENTINEL marks where vararg arguments start.
func (d *decoder) params(n uint32) ([]Type, int) {
	out := make([]Type, n)
	sentinel := -1
	for i := range out {
		if b, err := d.r.PeekByte(); err == nil && ElementType(b) == ElementSentinel {
			_, _ = d.r.ReadByte()
			if sentinel < 0 {
				sentinel = i
			}
		}
		out[i] = d.typ()
	}
	return out, sentinel
}

func (d *decoder) method() *MethodSig {
	b, err := d.r.ReadByte()
	if err != nil {
		d.truncated()
		return &MethodSig{Return: Invalid{Reason: "truncated"}, SentinelIndex: -1}
	}
	m := &MethodSig{CallConv: CallingConvention(b), SentinelIndex: -1}
	switch m.CallConv.Kind() {
	case CallField, CallLocalSig, CallProperty, CallGenericInst:
		m.Return = d.fail("calling convention 0x%02x is not a method", b)
		return m
	}
	if m.CallConv.IsGeneric() {
		n, ok := d.u32()
		if !ok {
			m.Return = Invalid{Reason: "truncated"}
			return m
		}
		m.GenericParamCount = n
	}
	n, ok := d.count()
	if !ok {
		m.Return = Invalid{Reason: "bad parameter count"}
		return m
	}
	m.Return = d.typ()
	m.Params, m.SentinelIndex = d.params(n)
	return m
}

// ParseMethod decodes a method signature blob. The result is never nil; slots
// that fail to decode are Invalid and the first failure is returned.
func ParseMethod(blob []byte) (*MethodSig, error) {
	d := newDecoder(blob, "MethodSig")
	m := d.method()
	return m, d.err
}

// ParseField decodes a field signature blob.
func ParseField(blob []byte) (*FieldSig, error) {
	d := newDecoder(blob, "FieldSig")
	b, err := d.r.ReadByte()
	if err != nil {
		return &FieldSig{Type: d.truncated()}, d.err
	}
	if CallingConvention(b).Kind() != CallField {
		return &FieldSig{Type: d.fail("field signature starts with 0x%02x", b)}, d.err
	}
	return &FieldSig{Type: d.typ()}, d.err
}

// ParseProperty decodes a property signature blob.
func ParseProperty(blob []byte) (*PropertySig, error) {
	d := newDecoder(blob, "PropertySig")
	b, err := d.r.ReadByte()
	if err != nil {
		return &PropertySig{Type: d.truncated()}, d.err
	}
	cc := CallingConvention(b)
	if cc.Kind() != CallProperty {
		return &PropertySig{Type: d.fail("property signature starts with 0x%02x", b)}, d.err
	}
	p := &PropertySig{HasThis: cc.HasThis()}
	n, ok := d.count()
	if !ok {
		p.Type = Invalid{Reason: "bad parameter count"}
		return p, d.err
	}
	p.Type = d.typ()
	p.Params, _ = d.params(n)
	return p, d.err
}

// ParseLocals decodes a LocalVarSig blob from a StandAloneSig row.
func ParseLocals(blob []byte) (*LocalVarSig, error) {
	d := newDecoder(blob, "LocalVarSig")
	b, err := d.r.ReadByte()
	if err != nil {
		d.truncated()
		return &LocalVarSig{}, d.err
	}
	if CallingConvention(b) != CallLocalSig {
		d.fail("local signature starts with 0x%02x", b)
		return &LocalVarSig{}, d.err
	}
	n, ok := d.count()
	if !ok {
		return &LocalVarSig{}, d.err
	}
	l := &LocalVarSig{Locals: make([]Type, n)}
	for i := range l.Locals {
		if b, err := d.r.PeekByte(); err == nil && ElementType(b) == ElementTypedByRef {
			_, _ = d.r.ReadByte()
			l.Locals[i] = Primitive{Kind: ElementTypedByRef}
			continue
		}
		l.Locals[i] = d.typ()
	}
	return l, d.err
}

// ParseTypeSpec decodes a TypeSpec blob.
func ParseTypeSpec(blob []byte) (Type, error) {
	d := newDecoder(blob, "TypeSpec")
	t := d.typ()
	return t, d.err
}

// ParseMethodSpec decodes the instantiation blob of a MethodSpec row.
func ParseMethodSpec(blob []byte) ([]Type, error) {
	d := newDecoder(blob, "MethodSpec")
	b, err := d.r.ReadByte()
	if err != nil {
		d.truncated()
		return nil, d.err
	}
	if CallingConvention(b) != CallGenericInst {
		d.fail("method instantiation starts with 0x%02x", b)
		return nil, d.err
	}
	n, ok := d.count()
	if !ok {
		return nil, d.err
	}
	args := make([]Type, n)
	for i := range args {
		args[i] = d.typ()
	}
	return args, d.err
}

// Convention returns the calling convention byte of a blob without decoding
// the rest. MemberRef rows use it to tell field references from method references.
func Convention(blob []byte) (CallingConvention, bool) {
	if len(blob) == 0 {
		return 0, false
	}
	return CallingConvention(blob[0]), true
}
