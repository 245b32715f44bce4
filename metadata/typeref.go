package metadata

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/signature"
)

// typeLookup is the outcome of one lookup step: a definition, an exported
// type row to follow, or neither.
type typeLookup struct {
	def   *TypeDefinition
	alias AliasForType
}

// resolver is a reference that resolves one lookup at a time.
type resolver interface {
	NamedTypeReference
	hop() typeLookup
	structuralKey() intern.Key
}

// resolveChain follows lookups and aliases from start until a definition is
// found. Revisiting an alias ends the walk with DummyType. seen, when not
// nil, counts as already visited.
func resolveChain(log *zap.Logger, start NamedTypeReference, seen AliasForType) *TypeDefinition {
	visited := map[AliasForType]bool{}
	if seen != nil {
		visited[seen] = true
	}
	cur := start
	for {
		r, ok := cur.(resolver)
		if !ok {
			if def := cur.ResolvedType(); def != nil {
				return def
			}
			return DummyType
		}
		l := r.hop()
		switch {
		case l.def != nil:
			return l.def
		case l.alias == nil:
			log.Debug("unresolved type reference", zap.String("type", start.FullName()))
			return DummyType
		case visited[l.alias]:
			log.Debug("exported type cycle", zap.String("type", start.FullName()), zap.String("alias", l.alias.Name()))
			return DummyType
		}
		visited[l.alias] = true
		cur = l.alias.AliasedType()
	}
}

// chainKey is the key of the first reference along the alias chain whose
// lookup does not land on an alias. A cycle stops at the repeated step.
func chainKey(start resolver) intern.Key {
	visited := map[AliasForType]bool{}
	cur := start
	for {
		l := cur.hop()
		if l.alias == nil || visited[l.alias] {
			return cur.structuralKey()
		}
		visited[l.alias] = true
		target := l.alias.AliasedType()
		if IsDummy(target) {
			return cur.structuralKey()
		}
		next, ok := target.(resolver)
		if !ok {
			return target.InternedKey()
		}
		cur = next
	}
}

// NamespaceTypeReference names a top-level type in a unit: a TypeRef scoped
// by a module, module reference or assembly reference, the target of an
// exported type, or a primitive of the core assembly.
type NamespaceTypeReference struct {
	module    *Module
	scope     UnitReference
	ns        NamespaceReference
	namespace string
	name      string
	token     Token
	code      TypeCode

	lookup   cell[typeLookup]
	resolved cell[*TypeDefinition]
	key      cell[intern.Key]
	attrs    once[[]*CustomAttribute]
}

func (m *Module) newNamespaceTypeRef(scope UnitReference, namespace, name string, tok Token) *NamespaceTypeReference {
	return &NamespaceTypeReference{
		module:    m,
		scope:     scope,
		ns:        m.namespaceRef(scope, namespace),
		namespace: namespace,
		name:      name,
		token:     tok,
	}
}

func (r *NamespaceTypeReference) Name() string { return r.name }
func (r *NamespaceTypeReference) Namespace() string { return r.namespace }
func (r *NamespaceTypeReference) Token() Token { return r.token }
func (r *NamespaceTypeReference) Module() *Module { return r.module }
func (r *NamespaceTypeReference) Scope() UnitReference { return r.scope }
func (r *NamespaceTypeReference) ContainingNamespace() NamespaceReference { return r.ns }
func (r *NamespaceTypeReference) MangledArity() uint32 { return mangledArity(r.name) }
func (r *NamespaceTypeReference) Accept(v Visitor) { v.VisitNamespaceTypeReference(r) }
func (r *NamespaceTypeReference) memberRefParent() {}
func (r *NamespaceTypeReference) String() string { return r.FullName() }

func (r *NamespaceTypeReference) FullName() string {
	if r.namespace == "" {
		return r.name
	}
	return r.namespace + "." + r.name
}

func (r *NamespaceTypeReference) CustomAttributes() []*CustomAttribute {
	return r.attrs.get(func() []*CustomAttribute { return r.module.attributesOf(r.token) })
}

// TypeCode is known without resolution for System types of the core scope.
func (r *NamespaceTypeReference) TypeCode() TypeCode {
	if r.code != TypeCodeNotPrimitive {
		return r.code
	}
	if r.namespace == "System" && r.scope == r.module.coreScope() {
		return systemTypeCode(r.namespace, r.name)
	}
	return TypeCodeNotPrimitive
}

func (r *NamespaceTypeReference) IsValueType() bool {
	if r.TypeCode().IsPrimitiveValue() {
		return true
	}
	return r.ResolvedType().IsValueType()
}

func (r *NamespaceTypeReference) hop() typeLookup {
	return r.lookup.get(func() typeLookup {
		for _, mem := range r.ns.ResolvedUnitNamespace().GetMembersNamed(r.name, false) {
			switch v := mem.(type) {
			case *TypeDefinition:
				return typeLookup{def: v}
			case *NamespaceAliasForType:
				return typeLookup{alias: v}
			}
		}
		return typeLookup{}
	})
}

func (r *NamespaceTypeReference) IsAlias() bool { return r.hop().alias != nil }

func (r *NamespaceTypeReference) AliasForType() AliasForType {
	if a := r.hop().alias; a != nil {
		return a
	}
	return DummyAlias
}

// ResolvedType follows the scope and any exported types to the definition,
// or DummyType. Memoized, the dummy included.
func (r *NamespaceTypeReference) ResolvedType() *TypeDefinition {
	return r.resolved.get(func() *TypeDefinition { return resolveChain(r.module.host.log, r, nil) })
}

func (r *NamespaceTypeReference) structuralKey() intern.Key {
	return r.module.host.intern.Intern(intern.NamespaceType(r.ns.InternedKey(), r.name, r.MangledArity()))
}

// InternedKey equals the key of the definition the reference resolves to:
// aliases are followed before the structural key is taken.
func (r *NamespaceTypeReference) InternedKey() intern.Key {
	return cachedKey(r.module, &r.key, func() intern.Key { return chainKey(r) })
}

// NestedTypeReference names a type nested in another named type.
type NestedTypeReference struct {
	module    *Module
	container NamedTypeReference
	name      string
	token     Token

	lookup   cell[typeLookup]
	resolved cell[*TypeDefinition]
	key      cell[intern.Key]
	attrs    once[[]*CustomAttribute]
}

func (r *NestedTypeReference) Name() string { return r.name }
func (r *NestedTypeReference) Token() Token { return r.token }
func (r *NestedTypeReference) Module() *Module { return r.module }
func (r *NestedTypeReference) ContainingType() NamedTypeReference { return r.container }
func (r *NestedTypeReference) MangledArity() uint32 { return mangledArity(r.name) }
func (r *NestedTypeReference) FullName() string { return r.container.FullName() + "+" + r.name }
func (r *NestedTypeReference) TypeCode() TypeCode { return TypeCodeNotPrimitive }
func (r *NestedTypeReference) IsValueType() bool { return r.ResolvedType().IsValueType() }
func (r *NestedTypeReference) Accept(v Visitor) { v.VisitNestedTypeReference(r) }
func (r *NestedTypeReference) memberRefParent() {}
func (r *NestedTypeReference) String() string { return r.FullName() }

func (r *NestedTypeReference) CustomAttributes() []*CustomAttribute {
	return r.attrs.get(func() []*CustomAttribute { return r.module.attributesOf(r.token) })
}

// hop looks in the container's alias first when the container is one, then
// among the nested types of the container's definition.
func (r *NestedTypeReference) hop() typeLookup {
	return r.lookup.get(func() typeLookup {
		if alias := r.container.AliasForType(); alias != AliasForType(DummyAlias) {
			if nested := alias.GetMembersNamed(r.name, false); len(nested) > 0 {
				return typeLookup{alias: nested[0]}
			}
		}
		for _, mem := range r.container.ResolvedType().GetMembersNamed(r.name, false) {
			if t, ok := mem.(*TypeDefinition); ok {
				return typeLookup{def: t}
			}
		}
		return typeLookup{}
	})
}

func (r *NestedTypeReference) IsAlias() bool { return r.hop().alias != nil }

func (r *NestedTypeReference) AliasForType() AliasForType {
	if a := r.hop().alias; a != nil {
		return a
	}
	return DummyAlias
}

func (r *NestedTypeReference) ResolvedType() *TypeDefinition {
	return r.resolved.get(func() *TypeDefinition { return resolveChain(r.module.host.log, r, nil) })
}

func (r *NestedTypeReference) structuralKey() intern.Key {
	return r.module.host.intern.Intern(intern.NestedType(r.container.InternedKey(), r.name, r.MangledArity()))
}

func (r *NestedTypeReference) InternedKey() intern.Key {
	return cachedKey(r.module, &r.key, func() intern.Key { return chainKey(r) })
}

// typeRef returns the object for a TypeRef row, or DummyType.
func (m *Module) typeRef(row uint32) NamedTypeReference {
	s, ok := m.typeRefs.get(row, func() *typeSlot { return &typeSlot{ref: m.newTypeRef(row)} })
	if !ok {
		return DummyType
	}
	return s.ref
}

func (m *Module) newTypeRef(row uint32) NamedTypeReference {
	r := m.md.TypeRef(row)
	tok := image.NewToken(image.TableTypeRef, row)
	var ref NamedTypeReference
	scope := r.ResolutionScope
	switch {
	case scope.IsNil():
		var unit UnitReference = m
		if a := m.assembly.Load(); a != nil {
			unit = a
		}
		ref = m.newNamespaceTypeRef(unit, r.Namespace, r.Name, tok)
	case scope.Table() == image.TableTypeRef:
		parent, ok := m.typeRefParent[row]
		if !ok {
			m.host.log.Debug("type reference has no valid container", zap.String("module", m.name), zap.Uint32("typeref", row))
			return DummyType
		}
		ref = &NestedTypeReference{module: m, container: m.typeRef(parent), name: r.Name, token: tok}
	case scope.Table() == image.TableAssemblyRef:
		if a := m.assemblyRef(scope.Row()); a != nil {
			ref = m.newNamespaceTypeRef(a, r.Namespace, r.Name, tok)
		}
	case scope.Table() == image.TableModuleRef:
		if mr := m.moduleRef(scope.Row()); mr != nil {
			ref = m.newNamespaceTypeRef(mr, r.Namespace, r.Name, tok)
		}
	case scope.Table() == image.TableModule:
		ref = m.newNamespaceTypeRef(m, r.Namespace, r.Name, tok)
	}
	if ref == nil {
		m.host.log.Debug("bad resolution scope", zap.String("module", m.name), zap.Uint32("typeref", row), zap.Stringer("scope", scope))
		return DummyType
	}
	if p := m.host.opts.Projector; p != nil {
		ref = p.Project(ref)
	}
	return ref
}

// coreScope is the unit that defines the primitive types for this module:
// the module itself when it defines System.Object, otherwise the first
// assembly reference carrying a core library name. Without one a reference
// to the configured core name is synthesized.
func (m *Module) coreScope() UnitReference {
	return m.core.get(func() UnitReference {
		if m.definesSystemObject() {
			if a := m.assembly.Load(); a != nil {
				return a
			}
			return m
		}
		names := coreAssemblyNames
		if n := m.host.opts.CoreAssemblyName; n != "" {
			names = append([]string{n}, names...)
		}
		refs := m.AssemblyReferences()
		for _, name := range names {
			for _, r := range refs {
				if strings.EqualFold(r.Name(), name) {
					return r
				}
			}
		}
		name := m.host.opts.CoreAssemblyName
		if name == "" {
			name = "mscorlib"
		}
		return &AssemblyReference{module: m, token: NoToken, identity: AssemblyIdentity{Name: name}}
	})
}

// CoreAssemblyReference returns the unit primitive types resolve in.
func (m *Module) CoreAssemblyReference() UnitReference { return m.coreScope() }

var primitiveNames = map[signature.ElementType]string{
	signature.ElementVoid:       "Void",
	signature.ElementBoolean:    "Boolean",
	signature.ElementChar:       "Char",
	signature.ElementI1:         "SByte",
	signature.ElementU1:         "Byte",
	signature.ElementI2:         "Int16",
	signature.ElementU2:         "UInt16",
	signature.ElementI4:         "Int32",
	signature.ElementU4:         "UInt32",
	signature.ElementI8:         "Int64",
	signature.ElementU8:         "UInt64",
	signature.ElementR4:         "Single",
	signature.ElementR8:         "Double",
	signature.ElementString:     "String",
	signature.ElementTypedByRef: "TypedReference",
	signature.ElementI:          "IntPtr",
	signature.ElementU:          "UIntPtr",
	signature.ElementObject:     "Object",
}

// primitive returns the module's reference to a primitive type. A module
// hands out one object per element type.
func (m *Module) primitive(kind signature.ElementType) TypeReference {
	prims := m.primitives.get(func() map[signature.ElementType]*NamespaceTypeReference {
		core := m.coreScope()
		out := make(map[signature.ElementType]*NamespaceTypeReference, len(primitiveNames))
		for k, name := range primitiveNames {
			r := m.newNamespaceTypeRef(core, "System", name, NoToken)
			r.code = typeCodeNames[name]
			out[k] = r
		}
		return out
	})
	if r, ok := prims[kind]; ok {
		return r
	}
	m.host.log.Debug("not a primitive element type", zap.String("module", m.name), zap.Uint8("element", uint8(kind)))
	return DummyType
}

// PrimitiveType returns the module's reference to the primitive with code c.
func (m *Module) PrimitiveType(c TypeCode) TypeReference {
	for kind, name := range primitiveNames {
		if typeCodeNames[name] == c {
			return m.primitive(kind)
		}
	}
	return DummyType
}

// GenericTypeParameterReference is a VAR ordinal whose owner is known only
// by reference, or not at all.
type GenericTypeParameterReference struct {
	module *Module
	owner  NamedTypeReference
	index  uint32
	key    cell[intern.Key]
}

func (r *GenericTypeParameterReference) Name() string { return "!" + strconv.Itoa(int(r.index)) }
func (r *GenericTypeParameterReference) FullName() string { return r.Name() }
func (r *GenericTypeParameterReference) Token() Token { return NoToken }
func (r *GenericTypeParameterReference) Index() uint32 { return r.index }
func (r *GenericTypeParameterReference) Owner() NamedTypeReference { return r.owner }
func (r *GenericTypeParameterReference) TypeCode() TypeCode { return TypeCodeNotPrimitive }
func (r *GenericTypeParameterReference) CustomAttributes() []*CustomAttribute { return nil }
func (r *GenericTypeParameterReference) Accept(v Visitor) { v.VisitGenericTypeParameterReference(r) }
func (r *GenericTypeParameterReference) memberRefParent() {}

// ResolvedParameter returns the parameter of the resolved owner, or nil.
func (r *GenericTypeParameterReference) ResolvedParameter() *GenericTypeParameter {
	if r.owner == nil {
		return nil
	}
	if p, ok := r.owner.ResolvedType().GetGenericTypeParameterFromOrdinal(int(r.index)); ok {
		return p
	}
	return nil
}

func (r *GenericTypeParameterReference) IsValueType() bool {
	if p := r.ResolvedParameter(); p != nil {
		return p.IsValueType()
	}
	return false
}

// InternedKey is the key of the resolved parameter when there is one.
func (r *GenericTypeParameterReference) InternedKey() intern.Key {
	return cachedKey(r.module, &r.key, func() intern.Key {
		if p := r.ResolvedParameter(); p != nil {
			return p.InternedKey()
		}
		owner := intern.None
		if r.owner != nil {
			owner = r.owner.InternedKey()
		}
		return r.module.host.intern.Intern(intern.TypeParameter(owner, r.index))
	})
}

// GenericMethodParameterReference is an MVAR ordinal outside a method
// definition, as in a MemberRef signature.
type GenericMethodParameterReference struct {
	module *Module
	index  uint32
}

func (r *GenericMethodParameterReference) Name() string { return "!!" + strconv.Itoa(int(r.index)) }
func (r *GenericMethodParameterReference) FullName() string { return r.Name() }
func (r *GenericMethodParameterReference) Token() Token { return NoToken }
func (r *GenericMethodParameterReference) Index() uint32 { return r.index }
func (r *GenericMethodParameterReference) TypeCode() TypeCode { return TypeCodeNotPrimitive }
func (r *GenericMethodParameterReference) IsValueType() bool { return false }
func (r *GenericMethodParameterReference) CustomAttributes() []*CustomAttribute { return nil }
func (r *GenericMethodParameterReference) Accept(v Visitor) { v.VisitGenericMethodParameterReference(r) }
func (r *GenericMethodParameterReference) memberRefParent() {}

func (r *GenericMethodParameterReference) InternedKey() intern.Key {
	return r.module.host.intern.Intern(intern.MethodParameter(r.index))
}
