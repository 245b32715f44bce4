package metadata

import (
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/image"
)

// AliasForType is an ExportedType row: a name an assembly answers for while
// the type lives in another module or, for forwarders, another assembly.
// Exported types nested in an alias are its members.
type AliasForType interface {
	Named
	FullName() string
	// AliasedType is the reference the row points at, one hop away. It may
	// itself land on another alias.
	AliasedType() NamedTypeReference
	// ResolveAlias follows the chain to a definition, or DummyType when the
	// chain is broken or cyclic. Memoized.
	ResolveAlias() *TypeDefinition
	IsForwarder() bool
	Visibility() Visibility
	Members() []*NestedAliasForType
	GetMembersNamed(name string, ignoreCase bool) []*NestedAliasForType
}

// exportedType returns the alias for an ExportedType row, or DummyAlias.
func (m *Module) exportedType(row uint32) AliasForType {
	s, ok := m.exported.get(row, func() *aliasSlot { return &aliasSlot{alias: m.newAlias(row)} })
	if !ok {
		return DummyAlias
	}
	return s.alias
}

func (m *Module) newAlias(row uint32) AliasForType {
	r := m.md.ExportedType(row)
	if parent, ok := m.aliasParent[row]; ok {
		a := &NestedAliasForType{module: m, row: row, name: r.Name, flags: TypeAttributes(r.Flags), parent: m.exportedType(parent)}
		a.init(func() []*NestedAliasForType { return m.nestedAliasMembers(row) })
		return a
	}
	if r.Implementation.Table() == image.TableExportedType {
		m.host.log.Debug("exported type has no valid container", zap.String("module", m.name), zap.Uint32("exported", row))
		return DummyAlias
	}
	a := &NamespaceAliasForType{
		module:    m,
		row:       row,
		name:      r.Name,
		namespace: r.Namespace,
		flags:     TypeAttributes(r.Flags),
		impl:      r.Implementation,
	}
	a.init(func() []*NestedAliasForType { return m.nestedAliasMembers(row) })
	return a
}

func (m *Module) nestedAliasMembers(row uint32) []*NestedAliasForType {
	var out []*NestedAliasForType
	for _, r := range m.nestedAliases[row] {
		if n, ok := m.exportedType(r).(*NestedAliasForType); ok {
			out = append(out, n)
		}
	}
	return out
}

// NamespaceAliasForType is a top-level exported type. It is a member of the
// namespace it names.
type NamespaceAliasForType struct {
	scope[*NestedAliasForType]
	module    *Module
	row       uint32
	name      string
	namespace string
	flags     TypeAttributes
	impl      Token
	dummy     bool

	aliased  once[NamedTypeReference]
	resolved cell[*TypeDefinition]
	attrs    once[[]*CustomAttribute]
}

func (a *NamespaceAliasForType) Name() string { return a.name }
func (a *NamespaceAliasForType) Namespace() string { return a.namespace }
func (a *NamespaceAliasForType) Module() *Module { return a.module }
func (a *NamespaceAliasForType) Flags() TypeAttributes { return a.flags }
func (a *NamespaceAliasForType) Visibility() Visibility { return typeVisibility(a.flags) }
func (a *NamespaceAliasForType) IsForwarder() bool { return a.flags&TypeForwarder != 0 }
func (a *NamespaceAliasForType) Implementation() Token { return a.impl }
func (a *NamespaceAliasForType) Accept(v Visitor) { v.VisitNamespaceAliasForType(a) }
func (a *NamespaceAliasForType) namespaceMember() {}
func (a *NamespaceAliasForType) String() string { return a.FullName() }

func (a *NamespaceAliasForType) Token() Token {
	if a.dummy {
		return NoToken
	}
	return image.NewToken(image.TableExportedType, a.row)
}

func (a *NamespaceAliasForType) FullName() string {
	if a.namespace == "" {
		return a.name
	}
	return a.namespace + "." + a.name
}

func (a *NamespaceAliasForType) CustomAttributes() []*CustomAttribute {
	return a.attrs.get(func() []*CustomAttribute { return a.module.attributesOf(a.Token()) })
}

// AliasedType is a reference to the same name in the assembly or module
// file the row's Implementation names.
func (a *NamespaceAliasForType) AliasedType() NamedTypeReference {
	return a.aliased.get(func() NamedTypeReference {
		if a.dummy {
			return DummyType
		}
		m := a.module
		var scope UnitReference
		switch a.impl.Table() {
		case image.TableAssemblyRef:
			if r := m.assemblyRef(a.impl.Row()); r != nil {
				scope = r
			}
		case image.TableFile:
			if f := m.file(a.impl.Row()); f != nil {
				scope = f
			}
		}
		if scope == nil {
			m.host.log.Debug("exported type has a bad implementation", zap.String("module", m.name),
				zap.String("type", a.FullName()), zap.Stringer("implementation", a.impl))
			return DummyType
		}
		return m.newNamespaceTypeRef(scope, a.namespace, a.name, NoToken)
	})
}

func (a *NamespaceAliasForType) ResolveAlias() *TypeDefinition {
	return a.resolved.get(func() *TypeDefinition {
		return resolveChain(a.module.host.log, a.AliasedType(), a)
	})
}

// NestedAliasForType is an exported type nested in another exported type.
type NestedAliasForType struct {
	scope[*NestedAliasForType]
	module *Module
	row    uint32
	name   string
	flags  TypeAttributes
	parent AliasForType

	aliased  once[NamedTypeReference]
	resolved cell[*TypeDefinition]
	attrs    once[[]*CustomAttribute]
}

func (a *NestedAliasForType) Name() string { return a.name }
func (a *NestedAliasForType) Token() Token { return image.NewToken(image.TableExportedType, a.row) }
func (a *NestedAliasForType) Module() *Module { return a.module }
func (a *NestedAliasForType) Flags() TypeAttributes { return a.flags }
func (a *NestedAliasForType) Visibility() Visibility { return typeVisibility(a.flags) }
func (a *NestedAliasForType) ContainingAlias() AliasForType { return a.parent }
func (a *NestedAliasForType) IsForwarder() bool { return a.parent.IsForwarder() }
func (a *NestedAliasForType) FullName() string { return a.parent.FullName() + "+" + a.name }
func (a *NestedAliasForType) Accept(v Visitor) { v.VisitNestedAliasForType(a) }
func (a *NestedAliasForType) String() string { return a.FullName() }

func (a *NestedAliasForType) CustomAttributes() []*CustomAttribute {
	return a.attrs.get(func() []*CustomAttribute { return a.module.attributesOf(a.Token()) })
}

// AliasedType nests the name in the container alias's aliased type.
func (a *NestedAliasForType) AliasedType() NamedTypeReference {
	return a.aliased.get(func() NamedTypeReference {
		return &NestedTypeReference{module: a.module, container: a.parent.AliasedType(), name: a.name, token: NoToken}
	})
}

func (a *NestedAliasForType) ResolveAlias() *TypeDefinition {
	return a.resolved.get(func() *TypeDefinition {
		return resolveChain(a.module.host.log, a.AliasedType(), a)
	})
}
