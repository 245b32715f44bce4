package metadata

import (
	"fmt"
	"strings"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/intern"
)

// GenericTypeInstanceReference is a generic type bound to arguments.
type GenericTypeInstanceReference struct {
	module  *Module
	generic NamedTypeReference
	args    []TypeReference
	key     cell[intern.Key]
}

// Instantiate binds generic to args. generic must come from a module of this
// package; anything else is a programming error and panics.
func (m *Module) Instantiate(generic NamedTypeReference, args ...TypeReference) *GenericTypeInstanceReference {
	switch generic.(type) {
	case *TypeDefinition, *NamespaceTypeReference, *NestedTypeReference:
	default:
		panic(errors.Misuse("Instantiate", fmt.Sprintf("%T", generic)))
	}
	return &GenericTypeInstanceReference{module: m, generic: generic, args: append([]TypeReference(nil), args...)}
}

func (r *GenericTypeInstanceReference) Name() string { return r.generic.Name() }
func (r *GenericTypeInstanceReference) Token() Token { return NoToken }
func (r *GenericTypeInstanceReference) GenericType() NamedTypeReference { return r.generic }
func (r *GenericTypeInstanceReference) GenericArguments() []TypeReference { return r.args }
func (r *GenericTypeInstanceReference) IsValueType() bool { return r.generic.IsValueType() }
func (r *GenericTypeInstanceReference) TypeCode() TypeCode { return TypeCodeNotPrimitive }
func (r *GenericTypeInstanceReference) CustomAttributes() []*CustomAttribute { return nil }
func (r *GenericTypeInstanceReference) Accept(v Visitor) { v.VisitGenericTypeInstanceReference(r) }
func (r *GenericTypeInstanceReference) memberRefParent() {}
func (r *GenericTypeInstanceReference) String() string { return r.FullName() }

// GenericTypeDefinition resolves the generic type.
func (r *GenericTypeInstanceReference) GenericTypeDefinition() *TypeDefinition {
	return r.generic.ResolvedType()
}

func (r *GenericTypeInstanceReference) FullName() string {
	var b strings.Builder
	b.WriteString(r.generic.FullName())
	b.WriteByte('<')
	for i, a := range r.args {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(a.FullName())
	}
	b.WriteByte('>')
	return b.String()
}

func (r *GenericTypeInstanceReference) InternedKey() intern.Key {
	return cachedKey(r.module, &r.key, func() intern.Key {
		tbl := r.module.host.intern
		return tbl.Intern(intern.GenericInstance(r.generic.InternedKey(), tbl.List(typeKeys(r.args)...)))
	})
}

func typeKeys(types []TypeReference) []intern.Key {
	keys := make([]intern.Key, len(types))
	for i, t := range types {
		keys[i] = t.InternedKey()
	}
	return keys
}

// PointerTypeReference is an unmanaged pointer.
type PointerTypeReference struct {
	module *Module
	target TypeReference
}

func (r *PointerTypeReference) Name() string { return r.FullName() }
func (r *PointerTypeReference) FullName() string { return r.target.FullName() + "*" }
func (r *PointerTypeReference) Token() Token { return NoToken }
func (r *PointerTypeReference) TargetType() TypeReference { return r.target }
func (r *PointerTypeReference) IsValueType() bool { return false }
func (r *PointerTypeReference) TypeCode() TypeCode { return TypeCodePointer }
func (r *PointerTypeReference) CustomAttributes() []*CustomAttribute { return nil }
func (r *PointerTypeReference) Accept(v Visitor) { v.VisitPointerTypeReference(r) }
func (r *PointerTypeReference) memberRefParent() {}

func (r *PointerTypeReference) InternedKey() intern.Key {
	return r.module.host.intern.Intern(intern.Pointer(r.target.InternedKey()))
}

// ManagedPointerTypeReference is a byref.
type ManagedPointerTypeReference struct {
	module *Module
	target TypeReference
}

func (r *ManagedPointerTypeReference) Name() string { return r.FullName() }
func (r *ManagedPointerTypeReference) FullName() string { return r.target.FullName() + "&" }
func (r *ManagedPointerTypeReference) Token() Token { return NoToken }
func (r *ManagedPointerTypeReference) TargetType() TypeReference { return r.target }
func (r *ManagedPointerTypeReference) IsValueType() bool { return false }
func (r *ManagedPointerTypeReference) TypeCode() TypeCode { return TypeCodeReference }
func (r *ManagedPointerTypeReference) CustomAttributes() []*CustomAttribute { return nil }
func (r *ManagedPointerTypeReference) Accept(v Visitor) { v.VisitManagedPointerTypeReference(r) }
func (r *ManagedPointerTypeReference) memberRefParent() {}

func (r *ManagedPointerTypeReference) InternedKey() intern.Key {
	return r.module.host.intern.Intern(intern.ManagedPointer(r.target.InternedKey()))
}

// VectorTypeReference is a single-dimensional zero-based array.
type VectorTypeReference struct {
	module *Module
	elem   TypeReference
}

func (r *VectorTypeReference) Name() string { return r.FullName() }
func (r *VectorTypeReference) FullName() string { return r.elem.FullName() + "[]" }
func (r *VectorTypeReference) Token() Token { return NoToken }
func (r *VectorTypeReference) ElementType() TypeReference { return r.elem }
func (r *VectorTypeReference) IsValueType() bool { return false }
func (r *VectorTypeReference) TypeCode() TypeCode { return TypeCodeNotPrimitive }
func (r *VectorTypeReference) CustomAttributes() []*CustomAttribute { return nil }
func (r *VectorTypeReference) Accept(v Visitor) { v.VisitVectorTypeReference(r) }
func (r *VectorTypeReference) memberRefParent() {}

func (r *VectorTypeReference) InternedKey() intern.Key {
	return r.module.host.intern.Intern(intern.Vector(r.elem.InternedKey()))
}

// MatrixTypeReference is a general array with a rank and optional bounds.
type MatrixTypeReference struct {
	module      *Module
	elem        TypeReference
	rank        uint32
	sizes       []uint32
	lowerBounds []int32
}

func (r *MatrixTypeReference) Name() string { return r.FullName() }
func (r *MatrixTypeReference) Token() Token { return NoToken }
func (r *MatrixTypeReference) ElementType() TypeReference { return r.elem }
func (r *MatrixTypeReference) Rank() uint32 { return r.rank }
func (r *MatrixTypeReference) Sizes() []uint32 { return r.sizes }
func (r *MatrixTypeReference) LowerBounds() []int32 { return r.lowerBounds }
func (r *MatrixTypeReference) IsValueType() bool { return false }
func (r *MatrixTypeReference) TypeCode() TypeCode { return TypeCodeNotPrimitive }
func (r *MatrixTypeReference) CustomAttributes() []*CustomAttribute { return nil }
func (r *MatrixTypeReference) Accept(v Visitor) { v.VisitMatrixTypeReference(r) }
func (r *MatrixTypeReference) memberRefParent() {}

func (r *MatrixTypeReference) FullName() string {
	if r.rank <= 1 {
		return r.elem.FullName() + "[*]"
	}
	return r.elem.FullName() + "[" + strings.Repeat(",", int(r.rank)-1) + "]"
}

// InternedKey encodes the shape as the size count, the sizes, then the
// lower bounds.
func (r *MatrixTypeReference) InternedKey() intern.Key {
	tbl := r.module.host.intern
	shape := make([]uint32, 0, 1+len(r.sizes)+len(r.lowerBounds))
	shape = append(shape, uint32(len(r.sizes)))
	shape = append(shape, r.sizes...)
	for _, lb := range r.lowerBounds {
		shape = append(shape, uint32(lb))
	}
	return tbl.Intern(intern.Matrix(r.elem.InternedKey(), r.rank, tbl.Values(shape...)))
}

// FunctionPointerTypeReference is a pointer to a method with a signature.
type FunctionPointerTypeReference struct {
	module *Module
	sig    *MethodSignature
}

func (r *FunctionPointerTypeReference) Name() string { return r.FullName() }
func (r *FunctionPointerTypeReference) FullName() string { return "method " + r.sig.String() }
func (r *FunctionPointerTypeReference) Token() Token { return NoToken }
func (r *FunctionPointerTypeReference) Signature() *MethodSignature { return r.sig }
func (r *FunctionPointerTypeReference) IsValueType() bool { return false }
func (r *FunctionPointerTypeReference) TypeCode() TypeCode { return TypeCodePointer }
func (r *FunctionPointerTypeReference) CustomAttributes() []*CustomAttribute { return nil }
func (r *FunctionPointerTypeReference) Accept(v Visitor) { v.VisitFunctionPointerTypeReference(r) }
func (r *FunctionPointerTypeReference) memberRefParent() {}

func (r *FunctionPointerTypeReference) InternedKey() intern.Key {
	return r.module.host.intern.Intern(intern.FunctionPointer(r.sig.InternedKey()))
}

// CustomModifier is one modreq or modopt.
type CustomModifier struct {
	Modifier TypeReference
	Required bool
}

// ModifiedTypeReference is a type carrying custom modifiers, outermost first.
type ModifiedTypeReference struct {
	module     *Module
	unmodified TypeReference
	modifiers  []CustomModifier
}

func (r *ModifiedTypeReference) Name() string { return r.unmodified.Name() }
func (r *ModifiedTypeReference) Token() Token { return NoToken }
func (r *ModifiedTypeReference) UnmodifiedType() TypeReference { return r.unmodified }
func (r *ModifiedTypeReference) Modifiers() []CustomModifier { return r.modifiers }
func (r *ModifiedTypeReference) IsValueType() bool { return r.unmodified.IsValueType() }
func (r *ModifiedTypeReference) TypeCode() TypeCode { return r.unmodified.TypeCode() }
func (r *ModifiedTypeReference) CustomAttributes() []*CustomAttribute { return nil }
func (r *ModifiedTypeReference) Accept(v Visitor) { v.VisitModifiedTypeReference(r) }
func (r *ModifiedTypeReference) memberRefParent() {}

func (r *ModifiedTypeReference) FullName() string {
	var b strings.Builder
	b.WriteString(r.unmodified.FullName())
	for _, mod := range r.modifiers {
		if mod.Required {
			b.WriteString(" modreq(")
		} else {
			b.WriteString(" modopt(")
		}
		b.WriteString(mod.Modifier.FullName())
		b.WriteByte(')')
	}
	return b.String()
}

func (r *ModifiedTypeReference) InternedKey() intern.Key {
	tbl := r.module.host.intern
	mods := make([]intern.Key, len(r.modifiers))
	for i, mod := range r.modifiers {
		k := mod.Modifier.InternedKey() << 1
		if mod.Required {
			k |= 1
		}
		mods[i] = k
	}
	return tbl.Intern(intern.Modified(r.unmodified.InternedKey(), tbl.List(mods...)))
}
