package metadata

import (
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/signature"
)

// memberRef returns the object for a MemberRef row: a *FieldReference when
// the signature is a field signature, a *MethodReference otherwise.
func (m *Module) memberRef(row uint32) Named {
	s, ok := m.memberRefs.get(row, func() *memberSlot { return &memberSlot{ref: m.newMemberRef(row)} })
	if !ok {
		return DummyMethod
	}
	return s.ref
}

func (m *Module) newMemberRef(row uint32) Named {
	r := m.md.MemberRef(row)
	base := memberRefBase{module: m, row: row, name: r.Name, blob: r.Signature, parentToken: r.Parent}
	if cc, ok := signature.Convention(r.Signature); ok && cc.Kind() == signature.CallField {
		return &FieldReference{memberRefBase: base}
	}
	return &MethodReference{memberRefBase: base}
}

// memberRefBase is the part of a MemberRef shared by fields and methods.
type memberRefBase struct {
	module      *Module
	row         uint32
	name        string
	blob        []byte
	parentToken Token

	parent once[MemberRefParent]
	attrs  once[[]*CustomAttribute]
}

func (b *memberRefBase) Name() string { return b.name }
func (b *memberRefBase) Token() Token { return image.NewToken(image.TableMemberRef, b.row) }
func (b *memberRefBase) Module() *Module { return b.module }

func (b *memberRefBase) CustomAttributes() []*CustomAttribute {
	return b.attrs.get(func() []*CustomAttribute { return b.module.attributesOf(b.Token()) })
}

// Parent decodes the MemberRefParent column. Bad tokens give DummyType.
func (b *memberRefBase) Parent() MemberRefParent {
	return b.parent.get(func() MemberRefParent {
		m, tok := b.module, b.parentToken
		var p Object
		switch tok.Table() {
		case image.TableTypeDef:
			p = m.typeDef(tok.Row())
		case image.TableTypeRef:
			p = m.typeRef(tok.Row())
		case image.TableModuleRef:
			if mr := m.moduleRef(tok.Row()); mr != nil {
				p = mr
			}
		case image.TableMethodDef:
			p = m.method(tok.Row())
		case image.TableTypeSpec:
			if spec := m.typeSpec(tok.Row()); spec != nil {
				p = spec.Type()
			}
		}
		if parent, ok := p.(MemberRefParent); ok {
			return parent
		}
		m.host.log.Debug("bad member reference parent", zap.String("module", m.name), zap.String("member", b.name), zap.Stringer("parent", tok))
		return DummyType
	})
}

// ContainingType is the type the member is looked up in. Global members of
// another module live in its <Module> type; a vararg call site's parent
// method stands for its declaring type.
func (b *memberRefBase) ContainingType() TypeReference {
	switch p := b.Parent().(type) {
	case TypeReference:
		return p
	case *ModuleReference:
		return p.ResolvedModule().ModuleType()
	case *MethodDefinition:
		return p.ContainingTypeDefinition()
	}
	return DummyType
}

// context is the generic context of the signature: VAR ordinals refer to
// the parameters of the parent's generic type.
func (b *memberRefBase) context() genericContext {
	t := b.ContainingType()
	if inst, ok := t.(*GenericTypeInstanceReference); ok {
		t = inst.GenericType()
	}
	switch v := t.(type) {
	case *TypeDefinition:
		return genericContext{typeDef: v}
	case NamedTypeReference:
		return genericContext{typeRef: v}
	}
	return genericContext{}
}

// definitionOf returns the definition a containing type stands for.
func definitionOf(t TypeReference) *TypeDefinition {
	switch v := t.(type) {
	case *GenericTypeInstanceReference:
		return v.GenericTypeDefinition()
	case NamedTypeReference:
		return v.ResolvedType()
	}
	return DummyType
}

// MethodReference is a MemberRef naming a method.
type MethodReference struct {
	memberRefBase
	sig      once[*MethodSignature]
	resolved cell[*MethodDefinition]
	key      cell[intern.Key]
}

func (r *MethodReference) Accept(v Visitor) { v.VisitMethodReference(r) }
func (r *MethodReference) String() string { return r.ContainingType().FullName() + "::" + r.name }

func (r *MethodReference) Signature() *MethodSignature {
	return r.sig.get(func() *MethodSignature { return r.module.decodeMethodSig(r.blob, r.context()) })
}

// InternedKey qualifies the name and signature with the containing type, so
// a reference shares the key of the definition it resolves to.
func (r *MethodReference) InternedKey() intern.Key {
	return cachedKey(r.module, &r.key, func() intern.Key {
		return r.module.host.intern.Intern(intern.Method(r.ContainingType().InternedKey(), r.name, r.Signature().InternedKey()))
	})
}

// ResolvedMethod finds the method of the containing type's definition with
// the same name and signature, or DummyMethod. Memoized.
func (r *MethodReference) ResolvedMethod() *MethodDefinition {
	return r.resolved.get(func() *MethodDefinition {
		if d, ok := r.Parent().(*MethodDefinition); ok {
			return d
		}
		def := definitionOf(r.ContainingType())
		tbl := r.module.host.intern
		want := tbl.Intern(intern.Method(def.InternedKey(), r.name, r.Signature().InternedKey()))
		for _, d := range ofType[*MethodDefinition](def.GetMembersNamed(r.name, false)) {
			if d.InternedKey() == want {
				return d
			}
		}
		r.module.host.log.Debug("unresolved method reference", zap.String("module", r.module.name), zap.String("method", r.String()))
		return DummyMethod
	})
}

// FieldReference is a MemberRef naming a field.
type FieldReference struct {
	memberRefBase
	typ      once[TypeReference]
	resolved cell[*FieldDefinition]
	key      cell[intern.Key]
}

func (r *FieldReference) Accept(v Visitor) { v.VisitFieldReference(r) }
func (r *FieldReference) String() string { return r.ContainingType().FullName() + "::" + r.name }

func (r *FieldReference) Type() TypeReference {
	return r.typ.get(func() TypeReference {
		sig, err := signature.ParseField(r.blob)
		if err != nil {
			r.module.host.log.Debug("malformed field signature", zap.String("field", r.name), zap.Error(err))
		}
		return r.module.typeFromSig(sig.Type, r.context(), 0)
	})
}

func (r *FieldReference) InternedKey() intern.Key {
	return cachedKey(r.module, &r.key, func() intern.Key {
		return r.module.host.intern.Intern(intern.Field(r.ContainingType().InternedKey(), r.name, r.Type().InternedKey()))
	})
}

// ResolvedField finds the field of the containing type's definition with
// the same name and type, or DummyField. Memoized.
func (r *FieldReference) ResolvedField() *FieldDefinition {
	return r.resolved.get(func() *FieldDefinition {
		def := definitionOf(r.ContainingType())
		tbl := r.module.host.intern
		want := tbl.Intern(intern.Field(def.InternedKey(), r.name, r.Type().InternedKey()))
		for _, f := range ofType[*FieldDefinition](def.GetMembersNamed(r.name, false)) {
			if f.InternedKey() == want {
				return f
			}
		}
		r.module.host.log.Debug("unresolved field reference", zap.String("module", r.module.name), zap.String("field", r.String()))
		return DummyField
	})
}

// GenericMethodInstanceReference is a MethodSpec row, or the instance built by
// MethodDefinition.InstanceMethod (row 0, NoToken): a generic method bound
// to arguments.
type GenericMethodInstanceReference struct {
	module *Module
	row    uint32
	method once[MethodRef]
	args   once[[]TypeReference]
	key    cell[intern.Key]
	attrs  once[[]*CustomAttribute]
}

func (m *Module) methodSpec(row uint32) *GenericMethodInstanceReference {
	s, ok := m.methodSpecs.get(row, func() *GenericMethodInstanceReference {
		return &GenericMethodInstanceReference{module: m, row: row}
	})
	if !ok {
		return nil
	}
	return s
}

func (r *GenericMethodInstanceReference) Token() Token {
	if r.row == 0 {
		return NoToken
	}
	return image.NewToken(image.TableMethodSpec, r.row)
}

func (r *GenericMethodInstanceReference) Name() string { return r.GenericMethod().Name() }
func (r *GenericMethodInstanceReference) Accept(v Visitor) { v.VisitGenericMethodInstanceReference(r) }
func (r *GenericMethodInstanceReference) ContainingType() TypeReference {
	return r.GenericMethod().ContainingType()
}
func (r *GenericMethodInstanceReference) Signature() *MethodSignature { return r.GenericMethod().Signature() }
func (r *GenericMethodInstanceReference) ResolvedMethod() *MethodDefinition {
	return r.GenericMethod().ResolvedMethod()
}

func (r *GenericMethodInstanceReference) CustomAttributes() []*CustomAttribute {
	return r.attrs.get(func() []*CustomAttribute {
		if r.row == 0 {
			return nil
		}
		return r.module.attributesOf(r.Token())
	})
}

// GenericMethod is the method being instantiated: a definition or a MemberRef.
func (r *GenericMethodInstanceReference) GenericMethod() MethodRef {
	return r.method.get(func() MethodRef {
		tok := r.module.md.MethodSpec(r.row).Method
		if tok.Table() == image.TableMethodSpec {
			return DummyMethod
		}
		return r.module.methodByToken(tok)
	})
}

// GenericArguments decodes the instantiation. Ordinals in it are bound to the
// instantiated method's type when it is a definition.
func (r *GenericMethodInstanceReference) GenericArguments() []TypeReference {
	return r.args.get(func() []TypeReference {
		blob := r.module.md.MethodSpec(r.row).Instantiation
		args, err := signature.ParseMethodSpec(blob)
		if err != nil {
			r.module.host.log.Debug("malformed method instantiation", zap.String("module", r.module.name), zap.Uint32("row", r.row), zap.Error(err))
		}
		var ctx genericContext
		if d, ok := r.GenericMethod().(*MethodDefinition); ok {
			ctx.typeDef = d.ContainingTypeDefinition()
		}
		out := make([]TypeReference, len(args))
		for i, a := range args {
			out[i] = r.module.typeFromSig(a, ctx, 0)
		}
		return out
	})
}

func (r *GenericMethodInstanceReference) InternedKey() intern.Key {
	return cachedKey(r.module, &r.key, func() intern.Key {
		tbl := r.module.host.intern
		return tbl.Intern(intern.GenericMethodInstance(r.GenericMethod().InternedKey(), tbl.List(typeKeys(r.GenericArguments())...)))
	})
}
