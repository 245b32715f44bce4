package metadata

import (
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/signature"
)

// memberOwners maps member rows to the rows that own them. Owners come from
// the list columns of TypeDef, MethodDef, PropertyMap and EventMap.
type memberOwners struct {
	fields     []uint32
	methods    []uint32
	params     []uint32
	properties []uint32
	events     []uint32
}

func (m *Module) memberOwners() *memberOwners {
	return m.owners.get(func() *memberOwners {
		md := m.md
		o := &memberOwners{
			fields:     make([]uint32, md.RowCount(image.TableField)),
			methods:    make([]uint32, md.RowCount(image.TableMethodDef)),
			params:     make([]uint32, md.RowCount(image.TableParam)),
			properties: make([]uint32, md.RowCount(image.TableProperty)),
			events:     make([]uint32, md.RowCount(image.TableEvent)),
		}
		for t := uint32(1); t <= md.RowCount(image.TableTypeDef); t++ {
			setOwner(o.fields, md.TypeFields(t), t)
			setOwner(o.methods, md.TypeMethods(t), t)
		}
		for meth := uint32(1); meth <= md.RowCount(image.TableMethodDef); meth++ {
			setOwner(o.params, md.MethodParams(meth), meth)
		}
		for r := uint32(1); r <= md.RowCount(image.TablePropertyMap); r++ {
			setOwner(o.properties, md.PropertyMapProperties(r), md.PropertyMap(r).Parent)
		}
		for r := uint32(1); r <= md.RowCount(image.TableEventMap); r++ {
			setOwner(o.events, md.EventMapEvents(r), md.EventMap(r).Parent)
		}
		return o
	})
}

func setOwner(owners, rows []uint32, owner uint32) {
	for _, r := range rows {
		if r >= 1 && int(r) <= len(owners) && owners[r-1] == 0 {
			owners[r-1] = owner
		}
	}
}

func ownerOf(owners []uint32, row uint32) uint32 {
	if row == 0 || int(row) > len(owners) {
		return 0
	}
	return owners[row-1]
}

// FieldDefinition is a Field row.
type FieldDefinition struct {
	module *Module
	row    uint32
	name   string
	flags  FieldAttributes
	blob   []byte
	dummy  bool

	typ   once[TypeReference]
	attrs once[[]*CustomAttribute]
	key   cell[intern.Key]
}

// field returns the object for a Field row, or DummyField.
func (m *Module) field(row uint32) *FieldDefinition {
	f, ok := m.fields.get(row, func() *FieldDefinition {
		r := m.md.Field(row)
		return &FieldDefinition{module: m, row: row, name: r.Name, flags: FieldAttributes(r.Flags), blob: r.Signature}
	})
	if !ok {
		return DummyField
	}
	return f
}

func (f *FieldDefinition) Name() string { return f.name }
func (f *FieldDefinition) Module() *Module { return f.module }
func (f *FieldDefinition) Flags() FieldAttributes { return f.flags }
func (f *FieldDefinition) Visibility() Visibility { return memberVisibility(uint16(f.flags)) }
func (f *FieldDefinition) IsStatic() bool { return f.flags&FieldStatic != 0 }
func (f *FieldDefinition) IsLiteral() bool { return f.flags&FieldLiteral != 0 }
func (f *FieldDefinition) IsReadOnly() bool { return f.flags&FieldInitOnly != 0 }
func (f *FieldDefinition) IsSpecialName() bool { return f.flags&FieldSpecialName != 0 }
func (f *FieldDefinition) IsNotSerialized() bool { return f.flags&FieldNotSerialized != 0 }
func (f *FieldDefinition) Accept(v Visitor) { v.VisitFieldDefinition(f) }
func (f *FieldDefinition) ResolvedField() *FieldDefinition { return f }
func (f *FieldDefinition) String() string { return f.ContainingTypeDefinition().FullName() + "::" + f.name }

func (f *FieldDefinition) Token() Token {
	if f.dummy {
		return NoToken
	}
	return image.NewToken(image.TableField, f.row)
}

// ContainingTypeDefinition returns the declaring type, or DummyType for an
// orphan row.
func (f *FieldDefinition) ContainingTypeDefinition() *TypeDefinition {
	if f.dummy {
		return DummyType
	}
	return f.module.typeDef(ownerOf(f.module.memberOwners().fields, f.row))
}

func (f *FieldDefinition) ContainingType() TypeReference { return f.ContainingTypeDefinition() }

// Type decodes the field signature in the context of the declaring type.
func (f *FieldDefinition) Type() TypeReference {
	return f.typ.get(func() TypeReference {
		if f.dummy {
			return DummyType
		}
		sig, err := signature.ParseField(f.blob)
		if err != nil {
			f.module.host.log.Debug("malformed field signature", zap.String("field", f.name), zap.Error(err))
		}
		return f.module.typeFromSig(sig.Type, genericContext{typeDef: f.ContainingTypeDefinition()}, 0)
	})
}

func (f *FieldDefinition) CustomAttributes() []*CustomAttribute {
	return f.attrs.get(func() []*CustomAttribute { return f.module.attributesOf(f.Token()) })
}

// CompileTimeValue returns the Constant row of a literal field.
func (f *FieldDefinition) CompileTimeValue() (Constant, bool) {
	return f.module.constantOf(f.Token())
}

// Offset returns the explicit layout offset, if one is declared.
func (f *FieldDefinition) Offset() (uint32, bool) {
	r, ok := f.module.md.FieldLayoutOf(f.row)
	if !ok {
		return 0, false
	}
	return f.module.md.FieldLayout(r).Offset, true
}

// InitialData returns the bytes a FieldRVA row maps the field to, sized by
// the field's type. Types of unknown size yield the rest of the section.
func (f *FieldDefinition) InitialData() ([]byte, bool) {
	r, ok := f.module.md.FieldRVAOf(f.row)
	if !ok {
		return nil, false
	}
	data := f.module.img.SliceAtRVA(f.module.md.FieldRVA(r).RVA)
	if data == nil {
		return nil, false
	}
	if size := typeSize(f.Type()); size > 0 && size <= len(data) {
		data = data[:size]
	}
	return data, true
}

func typeSize(t TypeReference) int {
	if n := t.TypeCode().Size(); n > 0 {
		return n
	}
	named, ok := t.(NamedTypeReference)
	if !ok {
		return 0
	}
	if l, ok := named.ResolvedType().ClassLayout(); ok {
		return int(l.ClassSize)
	}
	return 0
}

// MarshallingInformation returns the FieldMarshal descriptor of the field.
func (f *FieldDefinition) MarshallingInformation() (*MarshallingInformation, bool) {
	return f.module.marshalOf(f.Token())
}

// InternedKey qualifies the name and type with the declaring type.
func (f *FieldDefinition) InternedKey() intern.Key {
	if f.dummy {
		return intern.Dummy
	}
	return cachedKey(f.module, &f.key, func() intern.Key {
		return f.module.host.intern.Intern(intern.Field(f.ContainingTypeDefinition().InternedKey(), f.name, f.Type().InternedKey()))
	})
}

// MethodDefinition is a MethodDef row.
type MethodDefinition struct {
	module    *Module
	row       uint32
	name      string
	flags     MethodAttributes
	implFlags MethodImplAttributes
	rva       uint32
	blob      []byte
	dummy     bool

	generics once[[]*GenericMethodParameter]
	instance once[MethodRef]
	sig      once[*MethodSignature]
	params   once[*methodParams]
	attrs    once[[]*CustomAttribute]
	key      cell[intern.Key]
}

type methodParams struct {
	ret    *ParameterDefinition
	params []*ParameterDefinition
}

// method returns the object for a MethodDef row, or DummyMethod.
func (m *Module) method(row uint32) *MethodDefinition {
	meth, ok := m.methods.get(row, func() *MethodDefinition {
		r := m.md.MethodDef(row)
		return &MethodDefinition{
			module:    m,
			row:       row,
			name:      r.Name,
			flags:     MethodAttributes(r.Flags),
			implFlags: MethodImplAttributes(r.ImplFlags),
			rva:       r.RVA,
			blob:      r.Signature,
		}
	})
	if !ok {
		return DummyMethod
	}
	return meth
}

func (d *MethodDefinition) Name() string { return d.name }
func (d *MethodDefinition) Module() *Module { return d.module }
func (d *MethodDefinition) Flags() MethodAttributes { return d.flags }
func (d *MethodDefinition) ImplFlags() MethodImplAttributes { return d.implFlags }
func (d *MethodDefinition) RVA() uint32 { return d.rva }
func (d *MethodDefinition) Visibility() Visibility { return memberVisibility(uint16(d.flags)) }
func (d *MethodDefinition) IsStatic() bool { return d.flags&MethodStatic != 0 }
func (d *MethodDefinition) IsVirtual() bool { return d.flags&MethodVirtual != 0 }
func (d *MethodDefinition) IsAbstract() bool { return d.flags&MethodAbstract != 0 }
func (d *MethodDefinition) IsSealed() bool { return d.flags&MethodFinal != 0 }
func (d *MethodDefinition) IsNewSlot() bool { return d.flags&MethodNewSlot != 0 }
func (d *MethodDefinition) IsHiddenBySignature() bool { return d.flags&MethodHideBySig != 0 }
func (d *MethodDefinition) IsSpecialName() bool { return d.flags&MethodSpecialName != 0 }
func (d *MethodDefinition) IsPlatformInvoke() bool { return d.flags&MethodPInvokeImpl != 0 }
func (d *MethodDefinition) IsExternal() bool { return d.rva == 0 && !d.IsAbstract() }
func (d *MethodDefinition) IsRuntimeImplemented() bool {
	return d.implFlags&MethodImplCodeTypeMask == MethodImplRuntime
}
func (d *MethodDefinition) Accept(v Visitor) { v.VisitMethodDefinition(d) }
func (d *MethodDefinition) ResolvedMethod() *MethodDefinition { return d }
func (d *MethodDefinition) memberRefParent() {}
func (d *MethodDefinition) String() string { return d.ContainingTypeDefinition().FullName() + "::" + d.name }

func (d *MethodDefinition) Token() Token {
	if d.dummy {
		return NoToken
	}
	return image.NewToken(image.TableMethodDef, d.row)
}

// IsConstructor reports an instance constructor.
func (d *MethodDefinition) IsConstructor() bool {
	return d.name == ".ctor" && d.flags&MethodRTSpecialName != 0
}

// IsStaticConstructor reports a type initializer.
func (d *MethodDefinition) IsStaticConstructor() bool {
	return d.name == ".cctor" && d.flags&MethodRTSpecialName != 0
}

// HasBody reports whether an IL body is present at the method's RVA.
func (d *MethodDefinition) HasBody() bool {
	return d.rva != 0 && d.implFlags&MethodImplCodeTypeMask == MethodImplIL && !d.dummy
}

func (d *MethodDefinition) ContainingTypeDefinition() *TypeDefinition {
	if d.dummy {
		return DummyType
	}
	return d.module.typeDef(ownerOf(d.module.memberOwners().methods, d.row))
}

func (d *MethodDefinition) ContainingType() TypeReference { return d.ContainingTypeDefinition() }

// GenericParameters returns the method's own parameters ordered by number.
func (d *MethodDefinition) GenericParameters() []*GenericMethodParameter {
	return d.generics.get(func() []*GenericMethodParameter {
		if d.dummy {
			return nil
		}
		rows := d.module.sortedGenericParams(d.Token())
		out := make([]*GenericMethodParameter, len(rows))
		for i, r := range rows {
			gp := d.module.md.GenericParam(r)
			out[i] = &GenericMethodParameter{owner: d, row: r, index: uint32(i), name: gp.Name, flags: GenericParamAttributes(gp.Flags)}
		}
		return out
	})
}

func (d *MethodDefinition) GenericParameterCount() int { return len(d.GenericParameters()) }
func (d *MethodDefinition) IsGeneric() bool { return d.GenericParameterCount() > 0 }

// GetGenericMethodParameter returns the parameter an MVAR ordinal refers to.
func (d *MethodDefinition) GetGenericMethodParameter(i int) (*GenericMethodParameter, bool) {
	ps := d.GenericParameters()
	if i < 0 || i >= len(ps) {
		return nil, false
	}
	return ps[i], true
}

// Signature decodes the method signature with the method and its type as
// the generic context.
func (d *MethodDefinition) Signature() *MethodSignature {
	return d.sig.get(func() *MethodSignature {
		if d.dummy {
			return d.module.methodSignature(nil, genericContext{}, 0)
		}
		return d.module.decodeMethodSig(d.blob, genericContext{typeDef: d.ContainingTypeDefinition(), method: d})
	})
}

func (d *MethodDefinition) ReturnType() TypeReference { return d.Signature().ReturnType }
func (d *MethodDefinition) HasThis() bool { return d.Signature().CallingConvention.HasThis() }
func (d *MethodDefinition) IsVarArg() bool {
	return d.Signature().CallingConvention.Kind() == signature.CallVarArg
}

func (d *MethodDefinition) paramInfo() *methodParams {
	return d.params.get(func() *methodParams {
		info := &methodParams{}
		sig := d.Signature()
		info.params = make([]*ParameterDefinition, len(sig.Parameters))
		if !d.dummy {
			for _, r := range d.module.md.MethodParams(d.row) {
				p := d.module.param(r)
				if p == nil {
					continue
				}
				switch {
				case p.sequence == 0:
					info.ret = p
				case int(p.sequence) <= len(info.params) && info.params[p.sequence-1] == nil:
					info.params[p.sequence-1] = p
				}
			}
		}
		for i := range info.params {
			if info.params[i] == nil {
				info.params[i] = &ParameterDefinition{module: d.module, method: d, sequence: uint16(i + 1)}
			}
		}
		return info
	})
}

// Parameters returns one parameter per signature slot. Slots without a
// Param row get an unnamed parameter with no token.
func (d *MethodDefinition) Parameters() []*ParameterDefinition { return d.paramInfo().params }

// ReturnValue returns the Param row with sequence 0, or nil.
func (d *MethodDefinition) ReturnValue() *ParameterDefinition { return d.paramInfo().ret }

func (d *MethodDefinition) CustomAttributes() []*CustomAttribute {
	return d.attrs.get(func() []*CustomAttribute { return d.module.attributesOf(d.Token()) })
}

// HasDeclarativeSecurity reports whether DeclSecurity rows target the method.
func (d *MethodDefinition) HasDeclarativeSecurity() bool {
	return d.flags&MethodHasSecurity != 0 || len(d.module.md.DeclSecurityOf(d.Token())) > 0
}

// PlatformInvokeData returns the ImplMap row of a P/Invoke method.
func (d *MethodDefinition) PlatformInvokeData() (*PlatformInvokeInformation, bool) {
	return d.module.implMapOf(d.Token())
}

// Body decodes the IL body through the host's body cache.
func (d *MethodDefinition) Body() (*MethodBody, error) {
	return d.module.host.bodies.get(d)
}

// InternedKey qualifies the name and signature with the declaring type.
func (d *MethodDefinition) InternedKey() intern.Key {
	if d.dummy {
		return intern.Dummy
	}
	return cachedKey(d.module, &d.key, func() intern.Key {
		return d.module.host.intern.Intern(intern.Method(d.ContainingTypeDefinition().InternedKey(), d.name, d.Signature().InternedKey()))
	})
}

// ParameterDefinition is a Param row, or a synthesized parameter for a
// signature slot without one.
type ParameterDefinition struct {
	module   *Module
	method   *MethodDefinition
	row      uint32
	name     string
	flags    ParamAttributes
	sequence uint16
	attrs    once[[]*CustomAttribute]
}

func (m *Module) param(row uint32) *ParameterDefinition {
	p, ok := m.params.get(row, func() *ParameterDefinition {
		r := m.md.Param(row)
		return &ParameterDefinition{
			module:   m,
			method:   m.method(ownerOf(m.memberOwners().params, row)),
			row:      row,
			name:     r.Name,
			flags:    ParamAttributes(r.Flags),
			sequence: r.Sequence,
		}
	})
	if !ok {
		return nil
	}
	return p
}

func (p *ParameterDefinition) Name() string { return p.name }
func (p *ParameterDefinition) Flags() ParamAttributes { return p.flags }
func (p *ParameterDefinition) Method() *MethodDefinition { return p.method }
func (p *ParameterDefinition) IsIn() bool { return p.flags&ParamIn != 0 }
func (p *ParameterDefinition) IsOut() bool { return p.flags&ParamOut != 0 }
func (p *ParameterDefinition) IsOptional() bool { return p.flags&ParamOptional != 0 }
func (p *ParameterDefinition) Accept(v Visitor) { v.VisitParameterDefinition(p) }

// Index is the zero-based slot in the signature; the return value is -1.
func (p *ParameterDefinition) Index() int { return int(p.sequence) - 1 }

func (p *ParameterDefinition) Token() Token {
	if p.row == 0 {
		return NoToken
	}
	return image.NewToken(image.TableParam, p.row)
}

// Type is the signature slot's type.
func (p *ParameterDefinition) Type() TypeReference {
	sig := p.method.Signature()
	if p.sequence == 0 {
		return sig.ReturnType
	}
	if int(p.sequence) > len(sig.Parameters) {
		return DummyType
	}
	return sig.Parameters[p.sequence-1]
}

func (p *ParameterDefinition) CustomAttributes() []*CustomAttribute {
	if p.row == 0 {
		return nil
	}
	return p.attrs.get(func() []*CustomAttribute { return p.module.attributesOf(p.Token()) })
}

// DefaultValue returns the Constant row of an optional parameter.
func (p *ParameterDefinition) DefaultValue() (Constant, bool) {
	if p.row == 0 {
		return Constant{}, false
	}
	return p.module.constantOf(p.Token())
}

func (p *ParameterDefinition) MarshallingInformation() (*MarshallingInformation, bool) {
	if p.row == 0 {
		return nil, false
	}
	return p.module.marshalOf(p.Token())
}

// accessors collects the MethodSemantics rows naming association.
func (m *Module) accessors(association Token) map[MethodSemanticsAttributes][]*MethodDefinition {
	out := make(map[MethodSemanticsAttributes][]*MethodDefinition)
	for _, r := range m.md.SemanticsOf(association) {
		row := m.md.MethodSemantics(r)
		sem := MethodSemanticsAttributes(row.Semantics)
		out[sem] = append(out[sem], m.method(row.Method))
	}
	return out
}

func firstOf(ms []*MethodDefinition) *MethodDefinition {
	if len(ms) == 0 {
		return nil
	}
	return ms[0]
}

// widest returns the most visible accessor's visibility.
func widest(ms map[MethodSemanticsAttributes][]*MethodDefinition) Visibility {
	v := VisibilityDefault
	for _, list := range ms {
		for _, m := range list {
			if mv := m.Visibility(); mv > v {
				v = mv
			}
		}
	}
	return v
}

// PropertyDefinition is a Property row.
type PropertyDefinition struct {
	module *Module
	row    uint32
	name   string
	flags  PropertyAttributes
	blob   []byte

	sig       once[*PropertySignature]
	accessors once[map[MethodSemanticsAttributes][]*MethodDefinition]
	attrs     once[[]*CustomAttribute]
}

// PropertySignature is a decoded property signature.
type PropertySignature struct {
	HasThis    bool
	Type       TypeReference
	Parameters []TypeReference
}

func (m *Module) property(row uint32) *PropertyDefinition {
	p, ok := m.properties.get(row, func() *PropertyDefinition {
		r := m.md.Property(row)
		return &PropertyDefinition{module: m, row: row, name: r.Name, flags: PropertyAttributes(r.Flags), blob: r.Signature}
	})
	if !ok {
		return nil
	}
	return p
}

func (p *PropertyDefinition) Name() string { return p.name }
func (p *PropertyDefinition) Token() Token { return image.NewToken(image.TableProperty, p.row) }
func (p *PropertyDefinition) Flags() PropertyAttributes { return p.flags }
func (p *PropertyDefinition) Accept(v Visitor) { v.VisitPropertyDefinition(p) }

func (p *PropertyDefinition) ContainingTypeDefinition() *TypeDefinition {
	return p.module.typeDef(ownerOf(p.module.memberOwners().properties, p.row))
}

func (p *PropertyDefinition) semantics() map[MethodSemanticsAttributes][]*MethodDefinition {
	return p.accessors.get(func() map[MethodSemanticsAttributes][]*MethodDefinition {
		return p.module.accessors(p.Token())
	})
}

func (p *PropertyDefinition) Getter() *MethodDefinition { return firstOf(p.semantics()[SemanticsGetter]) }
func (p *PropertyDefinition) Setter() *MethodDefinition { return firstOf(p.semantics()[SemanticsSetter]) }
func (p *PropertyDefinition) Others() []*MethodDefinition { return p.semantics()[SemanticsOther] }

// Visibility is the widest visibility among the accessors.
func (p *PropertyDefinition) Visibility() Visibility { return widest(p.semantics()) }

// Signature decodes the property signature in the declaring type's context.
func (p *PropertyDefinition) Signature() *PropertySignature {
	return p.sig.get(func() *PropertySignature {
		sig, err := signature.ParseProperty(p.blob)
		if err != nil {
			p.module.host.log.Debug("malformed property signature", zap.String("property", p.name), zap.Error(err))
		}
		ctx := genericContext{typeDef: p.ContainingTypeDefinition()}
		out := &PropertySignature{HasThis: sig.HasThis, Type: p.module.typeFromSig(sig.Type, ctx, 0)}
		for _, t := range sig.Params {
			out.Parameters = append(out.Parameters, p.module.typeFromSig(t, ctx, 0))
		}
		return out
	})
}

func (p *PropertyDefinition) Type() TypeReference { return p.Signature().Type }

func (p *PropertyDefinition) DefaultValue() (Constant, bool) {
	return p.module.constantOf(p.Token())
}

func (p *PropertyDefinition) CustomAttributes() []*CustomAttribute {
	return p.attrs.get(func() []*CustomAttribute { return p.module.attributesOf(p.Token()) })
}

// EventDefinition is an Event row.
type EventDefinition struct {
	module    *Module
	row       uint32
	name      string
	flags     EventAttributes
	eventType Token

	typ       once[TypeReference]
	accessors once[map[MethodSemanticsAttributes][]*MethodDefinition]
	attrs     once[[]*CustomAttribute]
}

func (m *Module) event(row uint32) *EventDefinition {
	e, ok := m.events.get(row, func() *EventDefinition {
		r := m.md.Event(row)
		return &EventDefinition{module: m, row: row, name: r.Name, flags: EventAttributes(r.Flags), eventType: r.EventType}
	})
	if !ok {
		return nil
	}
	return e
}

func (e *EventDefinition) Name() string { return e.name }
func (e *EventDefinition) Token() Token { return image.NewToken(image.TableEvent, e.row) }
func (e *EventDefinition) Flags() EventAttributes { return e.flags }
func (e *EventDefinition) Accept(v Visitor) { v.VisitEventDefinition(e) }

func (e *EventDefinition) ContainingTypeDefinition() *TypeDefinition {
	return e.module.typeDef(ownerOf(e.module.memberOwners().events, e.row))
}

func (e *EventDefinition) semantics() map[MethodSemanticsAttributes][]*MethodDefinition {
	return e.accessors.get(func() map[MethodSemanticsAttributes][]*MethodDefinition {
		return e.module.accessors(e.Token())
	})
}

func (e *EventDefinition) Adder() *MethodDefinition { return firstOf(e.semantics()[SemanticsAddOn]) }
func (e *EventDefinition) Remover() *MethodDefinition { return firstOf(e.semantics()[SemanticsRemoveOn]) }
func (e *EventDefinition) Caller() *MethodDefinition { return firstOf(e.semantics()[SemanticsFire]) }
func (e *EventDefinition) Others() []*MethodDefinition { return e.semantics()[SemanticsOther] }
func (e *EventDefinition) Visibility() Visibility { return widest(e.semantics()) }

// Type is the delegate type of the event.
func (e *EventDefinition) Type() TypeReference {
	return e.typ.get(func() TypeReference {
		return e.module.typeByToken(e.eventType, genericContext{typeDef: e.ContainingTypeDefinition()}, 0)
	})
}

func (e *EventDefinition) CustomAttributes() []*CustomAttribute {
	return e.attrs.get(func() []*CustomAttribute { return e.module.attributesOf(e.Token()) })
}
