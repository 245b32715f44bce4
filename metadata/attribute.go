package metadata

import (
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/internal/binary"
	"github.com/wippyai/clrmeta/signature"
)

// attributeProlog opens every custom attribute value blob.
const attributeProlog = 0x0001

// nullArray is the element count of a null array argument.
const nullArray = 0xFFFFFFFF

// CustomAttribute is a CustomAttribute row: a constructor call whose
// arguments are serialized in a blob.
type CustomAttribute struct {
	module *Module
	row    uint32
	parent Token
	ctor   Token
	blob   []byte

	constructor once[MethodRef]
	args        once[*attributeArgs]
}

// AttributeArgument is one decoded value. Value holds a Go value for
// primitives and strings, a TypeReference for System.Type arguments, an
// []AttributeArgument for arrays, an AttributeArgument for boxed values, or
// nil for null.
type AttributeArgument struct {
	Type  TypeReference
	Value any
}

// NamedArgument sets a field or property after construction.
type NamedArgument struct {
	Name    string
	IsField bool
	AttributeArgument
}

type attributeArgs struct {
	fixed []AttributeArgument
	named []NamedArgument
	err   error
}

func (m *Module) attributesOf(parent Token) []*CustomAttribute {
	if parent.IsNil() {
		return nil
	}
	rows := m.md.CustomAttributesOf(parent)
	if len(rows) == 0 {
		return nil
	}
	out := make([]*CustomAttribute, 0, len(rows))
	for _, r := range rows {
		if a := m.attribute(r); a != nil {
			out = append(out, a)
		}
	}
	return out
}

func (m *Module) attribute(row uint32) *CustomAttribute {
	a, ok := m.attributes.get(row, func() *CustomAttribute {
		r := m.md.CustomAttribute(row)
		return &CustomAttribute{module: m, row: row, parent: r.Parent, ctor: r.Type, blob: r.Value}
	})
	if !ok {
		return nil
	}
	return a
}

func (a *CustomAttribute) Token() Token { return image.NewToken(image.TableCustomAttribute, a.row) }
func (a *CustomAttribute) Module() *Module { return a.module }
func (a *CustomAttribute) ParentToken() Token { return a.parent }
func (a *CustomAttribute) Blob() []byte { return a.blob }
func (a *CustomAttribute) Accept(v Visitor) { v.VisitCustomAttribute(a) }
func (a *CustomAttribute) CustomAttributes() []*CustomAttribute { return nil }

// Parent is the object the attribute is attached to.
func (a *CustomAttribute) Parent() Object { return a.module.ResolveToken(a.parent) }

// Constructor is the attribute constructor: a MethodDef or a MemberRef.
func (a *CustomAttribute) Constructor() MethodRef {
	return a.constructor.get(func() MethodRef {
		switch a.ctor.Table() {
		case image.TableMethodDef, image.TableMemberRef:
			return a.module.methodByToken(a.ctor)
		}
		return DummyMethod
	})
}

// Type is the attribute class.
func (a *CustomAttribute) Type() TypeReference { return a.Constructor().ContainingType() }

func (a *CustomAttribute) String() string { return a.Type().FullName() }

// FixedArguments returns the constructor arguments decoded up to the first
// malformed value.
func (a *CustomAttribute) FixedArguments() []AttributeArgument { return a.decoded().fixed }

// NamedArguments returns the field and property assignments decoded up to
// the first malformed value.
func (a *CustomAttribute) NamedArguments() []NamedArgument { return a.decoded().named }

// DecodeError reports why the value blob could not be fully decoded.
func (a *CustomAttribute) DecodeError() error { return a.decoded().err }

func (a *CustomAttribute) decoded() *attributeArgs {
	return a.args.get(func() *attributeArgs {
		out := &attributeArgs{}
		out.err = a.decode(out)
		if out.err != nil {
			a.module.host.log.Debug("malformed custom attribute value", zap.String("module", a.module.name),
				zap.Stringer("attribute", a.Token()), zap.Error(out.err))
		}
		return out
	})
}

func (a *CustomAttribute) decode(out *attributeArgs) error {
	params := a.Constructor().Signature().Parameters
	if len(a.blob) == 0 {
		if len(params) != 0 {
			return errors.Truncated(errors.PhaseAttribute, []string{"CustomAttribute"}, 2, 0)
		}
		return nil
	}
	d := &attributeDecoder{m: a.module, r: binary.NewReader(a.blob)}
	prolog, err := d.r.ReadU16()
	if err != nil {
		return err
	}
	if prolog != attributeProlog {
		return errors.InvalidData(errors.PhaseAttribute, []string{"CustomAttribute"}, "bad prolog")
	}
	for _, p := range params {
		v, err := d.value(p, 0)
		if err != nil {
			return err
		}
		out.fixed = append(out.fixed, AttributeArgument{Type: p, Value: v})
	}
	n, err := d.r.ReadU16()
	if err != nil {
		return err
	}
	for i := 0; i < int(n); i++ {
		kind, err := d.r.ReadByte()
		if err != nil {
			return err
		}
		if kind != byte(signature.ElementField) && kind != byte(signature.ElementProperty) {
			return errors.InvalidData(errors.PhaseAttribute, []string{"CustomAttribute", "NamedArg"}, "not a field or property")
		}
		t, err := d.fieldOrPropType(0)
		if err != nil {
			return err
		}
		name, _, err := d.r.ReadSerString()
		if err != nil {
			return err
		}
		v, err := d.value(t, 0)
		if err != nil {
			return err
		}
		out.named = append(out.named, NamedArgument{
			Name:              name,
			IsField:           kind == byte(signature.ElementField),
			AttributeArgument: AttributeArgument{Type: t, Value: v},
		})
	}
	return nil
}

type attributeDecoder struct {
	m *Module
	r *binary.Reader
}

// value reads one value of type t.
func (d *attributeDecoder) value(t TypeReference, depth int) (any, error) {
	if depth > maxTypeDepth {
		return nil, errors.Cycle(errors.PhaseAttribute, []string{"CustomAttribute"}, "nested argument types")
	}
	if kind, ok := elementOf(t.TypeCode()); ok {
		switch kind {
		case signature.ElementString:
			s, _, err := d.string()
			return s, err
		case signature.ElementObject:
			boxed, err := d.fieldOrPropType(depth + 1)
			if err != nil {
				return nil, err
			}
			v, err := d.value(boxed, depth+1)
			return AttributeArgument{Type: boxed, Value: v}, err
		}
		return readPrimitive(d.r, kind)
	}
	switch v := t.(type) {
	case *VectorTypeReference:
		n, err := d.r.ReadU32()
		if err != nil {
			return nil, err
		}
		if n == nullArray {
			return nil, nil
		}
		if int(n) > d.r.Len() {
			return nil, errors.Truncated(errors.PhaseAttribute, []string{"CustomAttribute", "array"}, int(n), d.r.Len())
		}
		elems := make([]AttributeArgument, 0, n)
		for i := uint32(0); i < n; i++ {
			e, err := d.value(v.ElementType(), depth+1)
			if err != nil {
				return nil, err
			}
			elems = append(elems, AttributeArgument{Type: v.ElementType(), Value: e})
		}
		return elems, nil
	case NamedTypeReference:
		if v.FullName() == "System.Type" {
			name, ok, err := d.string()
			if err != nil || !ok {
				return nil, err
			}
			return d.m.TypeByName(name.(string))
		}
		def := v.ResolvedType()
		if u := def.EnumUnderlyingType(); u != nil {
			return d.value(u, depth+1)
		}
		if IsDummy(def) {
			// Unresolved enums are assumed to be int32-backed.
			d.m.host.log.Debug("assuming int32 for unresolved attribute argument type",
				zap.String("module", d.m.name), zap.String("type", v.FullName()))
			return readPrimitive(d.r, signature.ElementI4)
		}
	}
	return nil, errors.Unsupported(errors.PhaseAttribute, "attribute argument of type "+t.FullName())
}

// string reads a SerString. The bool is false for a null string.
func (d *attributeDecoder) string() (any, bool, error) {
	s, ok, err := d.r.ReadSerString()
	if err != nil || !ok {
		return nil, false, err
	}
	return s, true, nil
}

// fieldOrPropType reads the type tag of a named argument or a boxed value.
func (d *attributeDecoder) fieldOrPropType(depth int) (TypeReference, error) {
	if depth > maxTypeDepth {
		return nil, errors.Cycle(errors.PhaseAttribute, []string{"CustomAttribute"}, "nested argument types")
	}
	b, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	kind := signature.ElementType(b)
	switch kind {
	case signature.ElementSystemType:
		return d.m.newNamespaceTypeRef(d.m.coreScope(), "System", "Type", NoToken), nil
	case signature.ElementBoxed:
		return d.m.primitive(signature.ElementObject), nil
	case signature.ElementEnum:
		name, ok, err := d.r.ReadSerString()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.InvalidData(errors.PhaseAttribute, []string{"CustomAttribute", "enum"}, "null enum type name")
		}
		return d.m.TypeByName(name)
	case signature.ElementSZArray:
		elem, err := d.fieldOrPropType(depth + 1)
		if err != nil {
			return nil, err
		}
		return &VectorTypeReference{module: d.m, elem: elem}, nil
	}
	if _, ok := primitiveNames[kind]; ok && kind != signature.ElementVoid && kind != signature.ElementTypedByRef {
		return d.m.primitive(kind), nil
	}
	return nil, errors.InvalidData(errors.PhaseAttribute, []string{"CustomAttribute"}, "bad argument type tag")
}

// elementOf maps a primitive type code back to its element type.
func elementOf(c TypeCode) (signature.ElementType, bool) {
	if c == TypeCodeNotPrimitive {
		return 0, false
	}
	for kind, name := range primitiveNames {
		if typeCodeNames[name] == c {
			return kind, true
		}
	}
	return 0, false
}
