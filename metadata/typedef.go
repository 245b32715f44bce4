package metadata

import (
	"strconv"
	"strings"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
)

// TypeDefinition is a TypeDef row: a top-level or nested type. It owns its
// fields, methods, properties, events and nested types.
type TypeDefinition struct {
	scope[TypeMember]
	module    *Module
	name      string
	namespace string
	row       uint32
	flags     TypeAttributes
	dummy     bool

	generics   once[*genericInfo]
	base       once[TypeReference]
	interfaces once[[]TypeReference]
	impls      once[[]MethodImplementation]
	instance   once[TypeReference]
	attrs      once[[]*CustomAttribute]
	key        cell[intern.Key]
}

// ClassLayout is the explicit size and packing of a type.
type ClassLayout struct {
	ClassSize   uint32
	PackingSize uint16
}

// MethodImplementation is a MethodImpl row: Body implements Declaration.
type MethodImplementation struct {
	Body        MethodRef
	Declaration MethodRef
}

func (m *Module) typeDef(row uint32) *TypeDefinition {
	t, ok := m.typeDefs.get(row, func() *TypeDefinition {
		r := m.md.TypeDef(row)
		t := &TypeDefinition{module: m, row: row, name: r.Name, namespace: r.Namespace, flags: TypeAttributes(r.Flags)}
		t.init(t.loadMembers)
		return t
	})
	if !ok {
		return DummyType
	}
	return t
}

func (t *TypeDefinition) loadMembers() []TypeMember {
	if t.dummy {
		return nil
	}
	m, md := t.module, t.module.md
	var out []TypeMember
	for _, r := range md.TypeFields(t.row) {
		if f := m.field(r); f != DummyField {
			out = append(out, f)
		}
	}
	for _, r := range md.TypeMethods(t.row) {
		if meth := m.method(r); meth != DummyMethod {
			out = append(out, meth)
		}
	}
	if pm, ok := md.PropertyMapOf(t.row); ok {
		for _, r := range md.PropertyMapProperties(pm) {
			if p := m.property(r); p != nil {
				out = append(out, p)
			}
		}
	}
	if em, ok := md.EventMapOf(t.row); ok {
		for _, r := range md.EventMapEvents(em) {
			if e := m.event(r); e != nil {
				out = append(out, e)
			}
		}
	}
	for _, r := range m.nested[t.row] {
		out = append(out, m.typeDef(r))
	}
	return out
}

func (t *TypeDefinition) Name() string { return t.name }
func (t *TypeDefinition) Namespace() string { return t.namespace }
func (t *TypeDefinition) Module() *Module { return t.module }
func (t *TypeDefinition) Accept(v Visitor) { v.VisitTypeDefinition(t) }
func (t *TypeDefinition) namespaceMember() {}
func (t *TypeDefinition) memberRefParent() {}

func (t *TypeDefinition) Token() Token {
	if t.dummy {
		return NoToken
	}
	return image.NewToken(image.TableTypeDef, t.row)
}

func (t *TypeDefinition) Flags() TypeAttributes { return t.flags }
func (t *TypeDefinition) Visibility() Visibility { return typeVisibility(t.flags) }
func (t *TypeDefinition) IsInterface() bool { return t.flags&TypeInterface != 0 }
func (t *TypeDefinition) IsAbstract() bool { return t.flags&TypeAbstract != 0 }
func (t *TypeDefinition) IsSealed() bool { return t.flags&TypeSealed != 0 }
func (t *TypeDefinition) IsSpecialName() bool { return t.flags&TypeSpecialName != 0 }
func (t *TypeDefinition) IsBeforeFieldInit() bool {
	return t.flags&TypeBeforeFieldInit != 0
}

// FullName is Namespace.Name for top-level types and Container+Name for
// nested ones.
func (t *TypeDefinition) FullName() string {
	if enc := t.ContainingType(); enc != nil {
		return enc.FullName() + "+" + t.name
	}
	if t.namespace == "" {
		return t.name
	}
	return t.namespace + "." + t.name
}

func (t *TypeDefinition) String() string { return t.FullName() }

// IsNested reports whether the type is declared inside another type.
func (t *TypeDefinition) IsNested() bool {
	_, ok := t.module.enclosing[t.row]
	return ok
}

// ContainingType returns the enclosing type, or nil for top-level types.
func (t *TypeDefinition) ContainingType() *TypeDefinition {
	if enc, ok := t.module.enclosing[t.row]; ok {
		return t.module.typeDef(enc)
	}
	return nil
}

// ContainingTypeDefinition is ContainingType; it makes nested types TypeMembers.
func (t *TypeDefinition) ContainingTypeDefinition() *TypeDefinition {
	return t.ContainingType()
}

// ContainingNamespace returns the namespace of the outermost enclosing type.
func (t *TypeDefinition) ContainingNamespace() NamespaceDefinition {
	outer := t
	for enc := outer.ContainingType(); enc != nil; enc = enc.ContainingType() {
		outer = enc
	}
	if ns := t.module.namespaceNamed(outer.namespace); ns != nil {
		return ns
	}
	return DummyNamespace
}

// MangledArity parses the `N suffix of the name.
func (t *TypeDefinition) MangledArity() uint32 { return mangledArity(t.name) }

func mangledArity(name string) uint32 {
	i := strings.LastIndexByte(name, '`')
	if i < 0 {
		return 0
	}
	n, err := strconv.ParseUint(name[i+1:], 10, 16)
	if err != nil {
		return 0
	}
	return uint32(n)
}

// ResolvedType of a definition is the definition itself.
func (t *TypeDefinition) ResolvedType() *TypeDefinition { return t }
func (t *TypeDefinition) IsAlias() bool { return false }
func (t *TypeDefinition) AliasForType() AliasForType { return DummyAlias }

// BaseClass returns the Extends type, or nil for interfaces and System.Object.
func (t *TypeDefinition) BaseClass() TypeReference {
	return t.base.get(func() TypeReference {
		if t.dummy {
			return nil
		}
		ext := t.module.md.TypeDef(t.row).Extends
		if ext.IsNil() {
			return nil
		}
		return t.module.typeByToken(ext, genericContext{typeDef: t}, 0)
	})
}

func (t *TypeDefinition) baseIs(namespace, name string) bool {
	switch b := t.BaseClass().(type) {
	case *TypeDefinition:
		return b.namespace == namespace && b.name == name && !b.IsNested()
	case *NamespaceTypeReference:
		return b.namespace == namespace && b.name == name
	}
	return false
}

// IsEnum reports whether the type derives from System.Enum.
func (t *TypeDefinition) IsEnum() bool { return t.baseIs("System", "Enum") }

// IsDelegate reports whether the type derives from System.MulticastDelegate.
func (t *TypeDefinition) IsDelegate() bool { return t.baseIs("System", "MulticastDelegate") }

// IsValueType reports whether the type derives from System.ValueType or
// System.Enum. System.Enum itself is a reference type.
func (t *TypeDefinition) IsValueType() bool {
	if t.namespace == "System" && t.name == "Enum" {
		return false
	}
	return t.baseIs("System", "ValueType") || t.IsEnum()
}

// TypeCode is the primitive code of System types defined by the core assembly.
func (t *TypeDefinition) TypeCode() TypeCode {
	if t.IsNested() || !t.module.definesSystemObject() {
		return TypeCodeNotPrimitive
	}
	return systemTypeCode(t.namespace, t.name)
}

// EnumUnderlyingType returns the type of the instance field of an enum, or nil.
func (t *TypeDefinition) EnumUnderlyingType() TypeReference {
	if !t.IsEnum() {
		return nil
	}
	for _, f := range t.Fields() {
		if !f.IsStatic() {
			return f.Type()
		}
	}
	return nil
}

// Interfaces returns the directly implemented interfaces in table order.
func (t *TypeDefinition) Interfaces() []TypeReference {
	return t.interfaces.get(func() []TypeReference {
		md := t.module.md
		var out []TypeReference
		for _, r := range md.InterfaceImplsOf(t.row) {
			out = append(out, t.module.typeByToken(md.InterfaceImpl(r).Interface, genericContext{typeDef: t}, 0))
		}
		return out
	})
}

// ClassLayout returns the explicit layout of the type, if one is declared.
func (t *TypeDefinition) ClassLayout() (ClassLayout, bool) {
	r, ok := t.module.md.ClassLayoutOf(t.row)
	if !ok {
		return ClassLayout{}, false
	}
	row := t.module.md.ClassLayout(r)
	return ClassLayout{ClassSize: row.ClassSize, PackingSize: row.PackingSize}, true
}

// HasDeclarativeSecurity reports whether DeclSecurity rows target the type.
func (t *TypeDefinition) HasDeclarativeSecurity() bool {
	return t.flags&TypeHasSecurity != 0 || len(t.module.md.DeclSecurityOf(t.Token())) > 0
}

// ExplicitImplementations returns the MethodImpl rows of the type.
func (t *TypeDefinition) ExplicitImplementations() []MethodImplementation {
	return t.impls.get(func() []MethodImplementation {
		md := t.module.md
		var out []MethodImplementation
		for _, r := range md.MethodImplsOf(t.row) {
			row := md.MethodImpl(r)
			out = append(out, MethodImplementation{
				Body:        t.module.methodByToken(row.Body),
				Declaration: t.module.methodByToken(row.Declaration),
			})
		}
		return out
	})
}

func (t *TypeDefinition) Fields() []*FieldDefinition {
	return ofType[*FieldDefinition](t.members().all)
}

func (t *TypeDefinition) Methods() []*MethodDefinition {
	return ofType[*MethodDefinition](t.members().all)
}

func (t *TypeDefinition) Properties() []*PropertyDefinition {
	return ofType[*PropertyDefinition](t.members().all)
}

func (t *TypeDefinition) Events() []*EventDefinition {
	return ofType[*EventDefinition](t.members().all)
}

func (t *TypeDefinition) NestedTypes() []*TypeDefinition {
	return ofType[*TypeDefinition](t.members().all)
}

func (t *TypeDefinition) CustomAttributes() []*CustomAttribute {
	return t.attrs.get(func() []*CustomAttribute { return t.module.attributesOf(t.Token()) })
}

// InternedKey qualifies the name and arity with the containing type, or with
// the namespace and unit for top-level types.
func (t *TypeDefinition) InternedKey() intern.Key {
	if t.dummy {
		return intern.Dummy
	}
	return cachedKey(t.module, &t.key, func() intern.Key {
		tbl := t.module.host.intern
		if enc := t.ContainingType(); enc != nil {
			return tbl.Intern(intern.NestedType(enc.InternedKey(), t.name, t.MangledArity()))
		}
		ns := namespaceKey(tbl, t.module.unitKey(), t.namespace)
		return tbl.Intern(intern.NamespaceType(ns, t.name, t.MangledArity()))
	})
}
