package metadata

import (
	"strings"
	"sync"

	"github.com/wippyai/clrmeta/intern"
)

// NamespaceDefinition is a namespace of a unit: the root or a nested one.
// Members are nested namespaces, top-level types and exported-type aliases.
type NamespaceDefinition interface {
	Named
	FullName() string
	Unit() *Module
	Members() []NamespaceMember
	GetMembersNamed(name string, ignoreCase bool) []NamespaceMember
	Contains(m NamespaceMember) bool
	GetMatchingMembers(pred func(NamespaceMember) bool) []NamespaceMember
	GetMatchingMembersNamed(name string, ignoreCase bool, pred func(NamespaceMember) bool) []NamespaceMember
	InternedKey() intern.Key
}

// namespaceLoad collects the members of the namespace called full.
func (m *Module) namespaceLoad(full string, children []*NestedNamespace) []NamespaceMember {
	out := make([]NamespaceMember, 0, len(children)+len(m.nsTypes[full])+len(m.nsAliases[full]))
	for _, c := range children {
		out = append(out, c)
	}
	for _, r := range m.nsTypes[full] {
		out = append(out, m.typeDef(r))
	}
	for _, r := range m.nsAliases[full] {
		if a, ok := m.exportedType(r).(*NamespaceAliasForType); ok {
			out = append(out, a)
		}
	}
	return out
}

// namespaceKey qualifies a dotted namespace name with a unit key.
func namespaceKey(t *intern.Table, unit intern.Key, full string) intern.Key {
	key := unit
	if full == "" {
		return key
	}
	for _, part := range strings.Split(full, ".") {
		key = t.Intern(intern.Namespace(key, part))
	}
	return key
}

// RootNamespace is the unnamed namespace of a module.
type RootNamespace struct {
	scope[NamespaceMember]
	module   *Module
	children []*NestedNamespace
}

func (n *RootNamespace) load() []NamespaceMember {
	return n.module.namespaceLoad("", n.children)
}

func (n *RootNamespace) Name() string { return "" }
func (n *RootNamespace) FullName() string { return "" }
func (n *RootNamespace) Token() Token { return NoToken }
func (n *RootNamespace) Unit() *Module { return n.module }
func (n *RootNamespace) Accept(v Visitor) { v.VisitRootNamespace(n) }
func (n *RootNamespace) CustomAttributes() []*CustomAttribute { return nil }

// InternedKey is the key of the unit itself.
func (n *RootNamespace) InternedKey() intern.Key { return n.module.unitKey() }

// NestedNamespace is a named namespace. Its parent is the root or another
// nested namespace.
type NestedNamespace struct {
	scope[NamespaceMember]
	module   *Module
	parent   NamespaceDefinition
	name     string
	full     string
	children []*NestedNamespace
	key      cell[intern.Key]
}

func (n *NestedNamespace) load() []NamespaceMember {
	return n.module.namespaceLoad(n.full, n.children)
}

func (n *NestedNamespace) Name() string { return n.name }
func (n *NestedNamespace) FullName() string { return n.full }
func (n *NestedNamespace) Token() Token { return NoToken }
func (n *NestedNamespace) Unit() *Module { return n.module }
func (n *NestedNamespace) Accept(v Visitor) { v.VisitNestedNamespace(n) }
func (n *NestedNamespace) CustomAttributes() []*CustomAttribute { return nil }
func (n *NestedNamespace) namespaceMember() {}

// Parent returns the containing namespace.
func (n *NestedNamespace) Parent() NamespaceDefinition { return n.parent }

func (n *NestedNamespace) InternedKey() intern.Key {
	if n == DummyNamespace {
		return intern.Dummy
	}
	return cachedKey(n.module, &n.key, func() intern.Key {
		return namespaceKey(n.module.host.intern, n.module.unitKey(), n.full)
	})
}

// NamespaceReference names a namespace of some unit. It resolves
// structurally: the parent first, then the member of that name.
type NamespaceReference interface {
	Named
	FullName() string
	Scope() UnitReference
	ResolvedUnitNamespace() NamespaceDefinition
	InternedKey() intern.Key
}

// RootNamespaceReference refers to the root namespace of a unit.
type RootNamespaceReference struct {
	scope UnitReference
}

func (r *RootNamespaceReference) Name() string { return "" }
func (r *RootNamespaceReference) FullName() string { return "" }
func (r *RootNamespaceReference) Token() Token { return NoToken }
func (r *RootNamespaceReference) Scope() UnitReference { return r.scope }
func (r *RootNamespaceReference) Accept(v Visitor) { v.VisitRootNamespaceReference(r) }
func (r *RootNamespaceReference) CustomAttributes() []*CustomAttribute { return nil }
func (r *RootNamespaceReference) InternedKey() intern.Key { return r.scope.unitKey() }

// ResolvedUnitNamespace returns the root of the resolved unit.
func (r *RootNamespaceReference) ResolvedUnitNamespace() NamespaceDefinition {
	return r.scope.ResolvedUnit().NamespaceRoot()
}

// NestedNamespaceReference refers to a named namespace inside a parent reference.
type NestedNamespaceReference struct {
	module   *Module
	parent   NamespaceReference
	name     string
	full     string
	resolved cell[NamespaceDefinition]
	key      cell[intern.Key]
}

func (r *NestedNamespaceReference) Name() string { return r.name }
func (r *NestedNamespaceReference) FullName() string { return r.full }
func (r *NestedNamespaceReference) Token() Token { return NoToken }
func (r *NestedNamespaceReference) Parent() NamespaceReference { return r.parent }
func (r *NestedNamespaceReference) Scope() UnitReference { return r.parent.Scope() }
func (r *NestedNamespaceReference) Accept(v Visitor) { v.VisitNestedNamespaceReference(r) }
func (r *NestedNamespaceReference) CustomAttributes() []*CustomAttribute { return nil }

func (r *NestedNamespaceReference) InternedKey() intern.Key {
	return cachedKey(r.module, &r.key, func() intern.Key {
		return r.module.host.intern.Intern(intern.Namespace(r.parent.InternedKey(), r.name))
	})
}

// ResolvedUnitNamespace is ResolvedNestedUnitNamespace as a NamespaceDefinition.
func (r *NestedNamespaceReference) ResolvedUnitNamespace() NamespaceDefinition {
	return r.ResolvedNestedUnitNamespace()
}

// ResolvedNestedUnitNamespace resolves the parent reference and returns its
// nested namespace called Name, or DummyNamespace. Memoized.
func (r *NestedNamespaceReference) ResolvedNestedUnitNamespace() *NestedNamespace {
	ns := r.resolved.get(func() NamespaceDefinition {
		for _, m := range r.parent.ResolvedUnitNamespace().GetMembersNamed(r.name, false) {
			if nested, ok := m.(*NestedNamespace); ok {
				return nested
			}
		}
		return DummyNamespace
	})
	return ns.(*NestedNamespace)
}

// namespaceRefs caches namespace reference chains per unit reference, so a
// module hands out one reference object per (scope, namespace) pair.
type namespaceRefs struct {
	module *Module
	roots  map[UnitReference]*RootNamespaceReference
	nested map[nsRefKey]*NestedNamespaceReference
	mu     sync.Mutex
}

type nsRefKey struct {
	scope UnitReference
	full  string
}

// namespaceRef returns the reference to the dotted namespace full in scope.
func (m *Module) namespaceRef(scope UnitReference, full string) NamespaceReference {
	refs := m.nsRefs.get(func() *namespaceRefs {
		return &namespaceRefs{
			module: m,
			roots:  make(map[UnitReference]*RootNamespaceReference),
			nested: make(map[nsRefKey]*NestedNamespaceReference),
		}
	})
	refs.mu.Lock()
	defer refs.mu.Unlock()
	return refs.lookup(scope, full)
}

func (refs *namespaceRefs) lookup(scope UnitReference, full string) NamespaceReference {
	if full == "" {
		root, ok := refs.roots[scope]
		if !ok {
			root = &RootNamespaceReference{scope: scope}
			refs.roots[scope] = root
		}
		return root
	}
	k := nsRefKey{scope, full}
	if r, ok := refs.nested[k]; ok {
		return r
	}
	parentName, name := "", full
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		parentName, name = full[:i], full[i+1:]
	}
	r := &NestedNamespaceReference{module: refs.module, parent: refs.lookup(scope, parentName), name: name, full: full}
	refs.nested[k] = r
	return r
}
