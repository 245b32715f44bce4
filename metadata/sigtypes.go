package metadata

import (
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/signature"
)

// maxTypeDepth bounds signature nesting and TypeSpec indirection. Deeper
// chains are malformed and decode to DummyType.
const maxTypeDepth = 64

// genericContext binds VAR and MVAR ordinals while a signature is decoded.
// typeRef stands in for typeDef when the owner is only known by reference,
// as for the parent of a MemberRef.
type genericContext struct {
	typeDef *TypeDefinition
	typeRef NamedTypeReference
	method  *MethodDefinition
}

func (c genericContext) owner() NamedTypeReference {
	if c.typeRef != nil {
		return c.typeRef
	}
	if c.typeDef != nil {
		return c.typeDef
	}
	return nil
}

func (c genericContext) typeParam(m *Module, i uint32) TypeReference {
	if c.typeDef != nil {
		if p, ok := c.typeDef.GetGenericTypeParameterFromOrdinal(int(i)); ok {
			return p
		}
	}
	return &GenericTypeParameterReference{module: m, owner: c.owner(), index: i}
}

func (c genericContext) methodParam(m *Module, i uint32) TypeReference {
	if c.method != nil {
		if p, ok := c.method.GetGenericMethodParameter(int(i)); ok {
			return p
		}
	}
	return &GenericMethodParameterReference{module: m, index: i}
}

// typeByToken maps a TypeDefOrRef token to a type object.
func (m *Module) typeByToken(tok Token, ctx genericContext, depth int) TypeReference {
	if depth > maxTypeDepth {
		m.host.log.Debug("type nesting too deep", zap.String("module", m.name), zap.Stringer("token", tok))
		return DummyType
	}
	switch tok.Table() {
	case image.TableTypeDef:
		return m.typeDef(tok.Row())
	case image.TableTypeRef:
		return m.typeRef(tok.Row())
	case image.TableTypeSpec:
		if spec := m.typeSpec(tok.Row()); spec != nil {
			return spec.typeIn(ctx, depth+1)
		}
	}
	m.host.log.Debug("bad type token", zap.String("module", m.name), zap.Stringer("token", tok))
	return DummyType
}

// typeFromSig builds the type object for a decoded signature node. Invalid
// nodes become DummyType.
func (m *Module) typeFromSig(t signature.Type, ctx genericContext, depth int) TypeReference {
	if depth > maxTypeDepth {
		m.host.log.Debug("signature nesting too deep", zap.String("module", m.name))
		return DummyType
	}
	depth++
	switch v := t.(type) {
	case signature.Primitive:
		return m.primitive(v.Kind)
	case signature.TypeDefOrRef:
		return m.typeByToken(v.Token, ctx, depth)
	case signature.GenericParam:
		if v.Method {
			return ctx.methodParam(m, v.Index)
		}
		return ctx.typeParam(m, v.Index)
	case signature.Pointer:
		return &PointerTypeReference{module: m, target: m.typeFromSig(v.Elem, ctx, depth)}
	case signature.ByRef:
		return &ManagedPointerTypeReference{module: m, target: m.typeFromSig(v.Elem, ctx, depth)}
	case signature.SZArray:
		return &VectorTypeReference{module: m, elem: m.typeFromSig(v.Elem, ctx, depth)}
	case signature.Array:
		return &MatrixTypeReference{
			module:      m,
			elem:        m.typeFromSig(v.Elem, ctx, depth),
			rank:        v.Rank,
			sizes:       v.Sizes,
			lowerBounds: v.LowerBounds,
		}
	case signature.GenericInst:
		gen, ok := m.typeByToken(v.Generic.Token, ctx, depth).(NamedTypeReference)
		if !ok {
			m.host.log.Debug("generic instance of a constructed type", zap.String("module", m.name))
			return DummyType
		}
		args := make([]TypeReference, len(v.Args))
		for i, a := range v.Args {
			args[i] = m.typeFromSig(a, ctx, depth)
		}
		return &GenericTypeInstanceReference{module: m, generic: gen, args: args}
	case signature.FnPtr:
		return &FunctionPointerTypeReference{module: m, sig: m.methodSignature(v.Method, ctx, depth)}
	case signature.Modified:
		var mods []CustomModifier
		var cur signature.Type = v
		for {
			mod, ok := cur.(signature.Modified)
			if !ok {
				break
			}
			mods = append(mods, CustomModifier{
				Modifier: m.typeByToken(mod.Modifier, ctx, depth),
				Required: mod.Required,
			})
			cur = mod.Elem
		}
		return &ModifiedTypeReference{module: m, unmodified: m.typeFromSig(cur, ctx, depth), modifiers: mods}
	case signature.Pinned:
		return m.typeFromSig(v.Elem, ctx, depth)
	case signature.Invalid:
		m.host.log.Debug("invalid signature", zap.String("module", m.name), zap.String("reason", v.Reason))
	}
	return DummyType
}

// MethodSignature is a decoded method signature in the context of its owner.
type MethodSignature struct {
	module                *Module
	CallingConvention     signature.CallingConvention
	GenericParameterCount uint32
	ReturnType            TypeReference
	Parameters            []TypeReference
	// ExtraParameters are the vararg arguments after the sentinel of a call site.
	ExtraParameters []TypeReference
}

func (m *Module) methodSignature(sig *signature.MethodSig, ctx genericContext, depth int) *MethodSignature {
	if sig == nil {
		sig = &signature.MethodSig{Return: signature.Invalid{Reason: "missing"}, SentinelIndex: -1}
	}
	s := &MethodSignature{
		module:                m,
		CallingConvention:     sig.CallConv,
		GenericParameterCount: sig.GenericParamCount,
		ReturnType:            m.typeFromSig(sig.Return, ctx, depth),
	}
	for i, p := range sig.Params {
		t := m.typeFromSig(p, ctx, depth)
		if sig.SentinelIndex >= 0 && i >= sig.SentinelIndex {
			s.ExtraParameters = append(s.ExtraParameters, t)
			continue
		}
		s.Parameters = append(s.Parameters, t)
	}
	return s
}

// decodeMethodSig parses a method blob and logs a malformed one.
func (m *Module) decodeMethodSig(blob []byte, ctx genericContext) *MethodSignature {
	sig, err := signature.ParseMethod(blob)
	if err != nil {
		m.host.log.Debug("malformed method signature", zap.String("module", m.name), zap.Error(err))
	}
	return m.methodSignature(sig, ctx, 0)
}

// InternedKey covers the calling convention, generic arity, return type and
// fixed parameters. Vararg extras are call-site detail and do not take part.
func (s *MethodSignature) InternedKey() intern.Key {
	tbl := s.module.host.intern
	params := make([]intern.Key, len(s.Parameters))
	for i, p := range s.Parameters {
		params[i] = p.InternedKey()
	}
	return tbl.Intern(intern.Signature(uint8(s.CallingConvention), s.GenericParameterCount,
		s.ReturnType.InternedKey(), tbl.List(params...)))
}

func (s *MethodSignature) String() string {
	out := s.ReturnType.FullName() + "("
	for i, p := range s.Parameters {
		if i > 0 {
			out += ", "
		}
		out += p.FullName()
	}
	if len(s.ExtraParameters) > 0 {
		out += ", ..."
	}
	return out + ")"
}

// TypeSpecification is a TypeSpec row. Its type depends on the generic
// context it is used in when the blob mentions VAR or MVAR; Type decodes it
// without one.
type TypeSpecification struct {
	module      *Module
	row         uint32
	sig         signature.Type
	contextFree bool
	typ         cell[TypeReference]
	attrs       once[[]*CustomAttribute]
}

func (m *Module) typeSpec(row uint32) *TypeSpecification {
	s, ok := m.typeSpecs.get(row, func() *TypeSpecification {
		sig, err := signature.ParseTypeSpec(m.md.TypeSpec(row).Signature)
		if err != nil {
			m.host.log.Debug("malformed type spec", zap.String("module", m.name), zap.Uint32("row", row), zap.Error(err))
		}
		return &TypeSpecification{module: m, row: row, sig: sig, contextFree: !mentionsGenericParam(sig)}
	})
	if !ok {
		return nil
	}
	return s
}

func (s *TypeSpecification) Token() Token { return image.NewToken(image.TableTypeSpec, s.row) }
func (s *TypeSpecification) Signature() signature.Type { return s.sig }
func (s *TypeSpecification) Accept(v Visitor) { v.VisitTypeSpecification(s) }

func (s *TypeSpecification) CustomAttributes() []*CustomAttribute {
	return s.attrs.get(func() []*CustomAttribute { return s.module.attributesOf(s.Token()) })
}

// Type returns the specified type decoded without a generic context.
func (s *TypeSpecification) Type() TypeReference {
	return s.typeIn(genericContext{}, 0)
}

func (s *TypeSpecification) typeIn(ctx genericContext, depth int) TypeReference {
	if !s.contextFree && (ctx.typeDef != nil || ctx.typeRef != nil || ctx.method != nil) {
		return s.module.typeFromSig(s.sig, ctx, depth)
	}
	return s.typ.get(func() TypeReference { return s.module.typeFromSig(s.sig, genericContext{}, depth) })
}

func mentionsGenericParam(t signature.Type) bool {
	switch v := t.(type) {
	case signature.GenericParam:
		return true
	case signature.Pointer:
		return mentionsGenericParam(v.Elem)
	case signature.ByRef:
		return mentionsGenericParam(v.Elem)
	case signature.SZArray:
		return mentionsGenericParam(v.Elem)
	case signature.Array:
		return mentionsGenericParam(v.Elem)
	case signature.Pinned:
		return mentionsGenericParam(v.Elem)
	case signature.Modified:
		return mentionsGenericParam(v.Elem)
	case signature.GenericInst:
		for _, a := range v.Args {
			if mentionsGenericParam(a) {
				return true
			}
		}
	case signature.FnPtr:
		if v.Method == nil {
			return false
		}
		if mentionsGenericParam(v.Method.Return) {
			return true
		}
		for _, p := range v.Method.Params {
			if mentionsGenericParam(p) {
				return true
			}
		}
	}
	return false
}

// StandAloneSignature is a StandAloneSig row: a local variable signature or
// the method signature of an indirect call.
type StandAloneSignature struct {
	module *Module
	row    uint32
	blob   []byte
}

func (m *Module) standAloneSig(row uint32) *StandAloneSignature {
	s, ok := m.sigs.get(row, func() *StandAloneSignature {
		return &StandAloneSignature{module: m, row: row, blob: m.md.StandAloneSig(row).Signature}
	})
	if !ok {
		return nil
	}
	return s
}

func (s *StandAloneSignature) Token() Token { return image.NewToken(image.TableStandAloneSig, s.row) }
func (s *StandAloneSignature) Blob() []byte { return s.blob }
func (s *StandAloneSignature) Accept(v Visitor) { v.VisitStandAloneSignature(s) }

func (s *StandAloneSignature) CustomAttributes() []*CustomAttribute {
	return s.module.attributesOf(s.Token())
}

// IsLocals reports whether the blob is a LocalVarSig.
func (s *StandAloneSignature) IsLocals() bool {
	cc, ok := signature.Convention(s.blob)
	return ok && cc == signature.CallLocalSig
}

// Locals decodes the blob as a local variable signature in the context of method.
func (s *StandAloneSignature) Locals(method *MethodDefinition) []LocalDefinition {
	sig, err := signature.ParseLocals(s.blob)
	if err != nil {
		s.module.host.log.Debug("malformed local signature", zap.String("module", s.module.name), zap.Error(err))
	}
	ctx := genericContext{method: method}
	if method != nil {
		ctx.typeDef = method.ContainingTypeDefinition()
	}
	out := make([]LocalDefinition, len(sig.Locals))
	for i, l := range sig.Locals {
		_, pinned := l.(signature.Pinned)
		out[i] = LocalDefinition{Index: i, Type: s.module.typeFromSig(l, ctx, 0), Pinned: pinned}
	}
	return out
}

// MethodSignature decodes the blob as the signature of an indirect call.
func (s *StandAloneSignature) MethodSignature(method *MethodDefinition) *MethodSignature {
	ctx := genericContext{method: method}
	if method != nil {
		ctx.typeDef = method.ContainingTypeDefinition()
	}
	return s.module.decodeMethodSig(s.blob, ctx)
}

// LocalDefinition is one slot of a local variable signature.
type LocalDefinition struct {
	Index  int
	Type   TypeReference
	Pinned bool
}

// methodByToken maps a MethodDefOrRef or MethodSpec token to a method.
func (m *Module) methodByToken(tok Token) MethodRef {
	switch tok.Table() {
	case image.TableMethodDef:
		return m.method(tok.Row())
	case image.TableMemberRef:
		if ref, ok := m.memberRef(tok.Row()).(MethodRef); ok {
			return ref
		}
	case image.TableMethodSpec:
		if spec := m.methodSpec(tok.Row()); spec != nil {
			return spec
		}
	}
	m.host.log.Debug("bad method token", zap.String("module", m.name), zap.Stringer("token", tok))
	return DummyMethod
}

// fieldByToken maps a Field or MemberRef token to a field.
func (m *Module) fieldByToken(tok Token) FieldRef {
	switch tok.Table() {
	case image.TableField:
		return m.field(tok.Row())
	case image.TableMemberRef:
		if ref, ok := m.memberRef(tok.Row()).(FieldRef); ok {
			return ref
		}
	}
	return DummyField
}
