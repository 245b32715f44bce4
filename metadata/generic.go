package metadata

import (
	"sort"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
)

// genericInfo is the parameter bookkeeping of a generic type. all is indexed
// by ordinal; its first inherited entries belong to the enclosing type.
// repeated holds the objects for this type's own rows that restate them.
type genericInfo struct {
	all       []*GenericTypeParameter
	own       []*GenericTypeParameter
	repeated  []*GenericTypeParameter
	inherited int
}

// sortedGenericParams returns the GenericParam rows of owner ordered by number.
func (m *Module) sortedGenericParams(owner Token) []uint32 {
	rows := m.md.GenericParamsOf(owner)
	sort.SliceStable(rows, func(i, j int) bool {
		return m.md.GenericParam(rows[i]).Number < m.md.GenericParam(rows[j]).Number
	})
	return rows
}

// genericInfo decides whether a nested type inherits its enclosing type's
// parameters. Compilers repeat the enclosing parameters on every nested type;
// when the first k rows match the enclosing type's k parameters by flags and
// constraint count they are taken as inherited and the remaining rows are the
// type's own. Any mismatch makes every row the type's own.
func (t *TypeDefinition) genericInfo() *genericInfo {
	return t.generics.get(func() *genericInfo {
		info := &genericInfo{}
		if t.dummy {
			return info
		}
		md := t.module.md
		rows := t.module.sortedGenericParams(t.Token())
		if enc := t.ContainingType(); enc != nil {
			parent := enc.genericInfo().all
			k := len(parent)
			if k > 0 && len(rows) >= k && matchesInherited(md, parent, rows[:k]) {
				info.inherited = k
				info.all = append(info.all, parent...)
				for i, r := range rows[:k] {
					p := t.module.newGenericTypeParameter(t, r, uint32(i))
					p.inherits = parent[i]
					info.repeated = append(info.repeated, p)
				}
				rows = rows[k:]
			}
		}
		for _, r := range rows {
			p := t.module.newGenericTypeParameter(t, r, uint32(len(info.all)))
			info.own = append(info.own, p)
			info.all = append(info.all, p)
		}
		return info
	})
}

func matchesInherited(md *image.Metadata, parent []*GenericTypeParameter, rows []uint32) bool {
	for i, r := range rows {
		p := parent[i]
		if GenericParamAttributes(md.GenericParam(r).Flags) != p.flags {
			return false
		}
		if len(md.ConstraintsOf(r)) != len(p.owner.module.md.ConstraintsOf(p.row)) {
			return false
		}
	}
	return true
}

// GenericParameterCount is the number of the type's own parameters, excluding
// any inherited from the enclosing type.
func (t *TypeDefinition) GenericParameterCount() int {
	return len(t.genericInfo().own)
}

// GenericParameters returns the type's own parameters.
func (t *TypeDefinition) GenericParameters() []*GenericTypeParameter {
	return t.genericInfo().own
}

// InheritedGenericParameterCount is the number of leading ordinals that refer
// to the enclosing type's parameters.
func (t *TypeDefinition) InheritedGenericParameterCount() int {
	return t.genericInfo().inherited
}

// IsGeneric reports whether any ordinal, own or inherited, is bound.
func (t *TypeDefinition) IsGeneric() bool {
	return len(t.genericInfo().all) > 0
}

// GetGenericTypeParameterFromOrdinal returns the parameter a VAR ordinal
// refers to inside this type. Ordinals below the inherited count return the
// enclosing type's parameter objects. ok is false when out of range.
func (t *TypeDefinition) GetGenericTypeParameterFromOrdinal(i int) (*GenericTypeParameter, bool) {
	all := t.genericInfo().all
	if i < 0 || i >= len(all) {
		return nil, false
	}
	return all[i], true
}

// InstanceType returns the type instantiated with its own parameters, built
// once. A non-generic type is its own instance type.
func (t *TypeDefinition) InstanceType() TypeReference {
	return t.instance.get(func() TypeReference {
		all := t.genericInfo().all
		if len(all) == 0 {
			return t
		}
		args := make([]TypeReference, len(all))
		for i, p := range all {
			args[i] = p
		}
		return &GenericTypeInstanceReference{module: t.module, generic: t, args: args}
	})
}

// InstanceMethod returns the method instantiated with its own parameters,
// built once. A non-generic method is returned as is.
func (d *MethodDefinition) InstanceMethod() MethodRef {
	return d.instance.get(func() MethodRef {
		params := d.GenericParameters()
		if len(params) == 0 {
			return d
		}
		args := make([]TypeReference, len(params))
		for i, p := range params {
			args[i] = p
		}
		r := &GenericMethodInstanceReference{module: d.module}
		r.method.get(func() MethodRef { return d })
		r.args.get(func() []TypeReference { return args })
		return r
	})
}

// GenericTypeParameter is a GenericParam row owned by a type.
type GenericTypeParameter struct {
	owner       *TypeDefinition
	name        string
	row         uint32
	index       uint32
	flags       GenericParamAttributes
	inherits    *GenericTypeParameter
	constraints once[[]TypeReference]
	attrs       once[[]*CustomAttribute]
	key         cell[intern.Key]
}

func (m *Module) newGenericTypeParameter(owner *TypeDefinition, row, index uint32) *GenericTypeParameter {
	r := m.md.GenericParam(row)
	return &GenericTypeParameter{owner: owner, row: row, index: index, name: r.Name, flags: GenericParamAttributes(r.Flags)}
}

func (p *GenericTypeParameter) Name() string { return p.name }
func (p *GenericTypeParameter) FullName() string { return p.name }
func (p *GenericTypeParameter) Token() Token { return image.NewToken(image.TableGenericParam, p.row) }
func (p *GenericTypeParameter) Index() uint32 { return p.index }
func (p *GenericTypeParameter) DefiningType() *TypeDefinition { return p.owner }
func (p *GenericTypeParameter) Flags() GenericParamAttributes { return p.flags }
func (p *GenericTypeParameter) TypeCode() TypeCode { return TypeCodeNotPrimitive }
func (p *GenericTypeParameter) Accept(v Visitor) { v.VisitGenericTypeParameter(p) }
func (p *GenericTypeParameter) memberRefParent() {}
func (p *GenericTypeParameter) String() string { return p.name }

// Inherits returns the enclosing type's parameter this row restates, or nil
// for a parameter the type declares itself. Ordinal lookups inside the
// nested type bind to the returned parameter.
func (p *GenericTypeParameter) Inherits() *GenericTypeParameter { return p.inherits }

// IsValueType reports the not-nullable-value-type constraint.
func (p *GenericTypeParameter) IsValueType() bool {
	return p.flags&GenericNotNullableValueType != 0
}

func (p *GenericTypeParameter) Variance() GenericParamAttributes { return p.flags & GenericVarianceMask }
func (p *GenericTypeParameter) MustBeReferenceType() bool { return p.flags&GenericReferenceType != 0 }
func (p *GenericTypeParameter) MustHaveDefaultConstructor() bool {
	return p.flags&GenericDefaultConstructor != 0
}

// Constraints returns the constraint types, decoded in the owner's context.
func (p *GenericTypeParameter) Constraints() []TypeReference {
	return p.constraints.get(func() []TypeReference {
		return p.owner.module.constraintTypes(p.row, genericContext{typeDef: p.owner})
	})
}

func (p *GenericTypeParameter) CustomAttributes() []*CustomAttribute {
	return p.attrs.get(func() []*CustomAttribute { return p.owner.module.attributesOf(p.Token()) })
}

func (p *GenericTypeParameter) InternedKey() intern.Key {
	return cachedKey(p.owner.module, &p.key, func() intern.Key {
		return p.owner.module.host.intern.Intern(intern.TypeParameter(p.owner.InternedKey(), p.index))
	})
}

func (m *Module) constraintTypes(gpRow uint32, ctx genericContext) []TypeReference {
	var out []TypeReference
	for _, r := range m.md.ConstraintsOf(gpRow) {
		out = append(out, m.typeByToken(m.md.GenericParamConstraint(r).Constraint, ctx, 0))
	}
	return out
}

// GenericMethodParameter is a GenericParam row owned by a method.
type GenericMethodParameter struct {
	owner       *MethodDefinition
	name        string
	row         uint32
	index       uint32
	flags       GenericParamAttributes
	constraints once[[]TypeReference]
	attrs       once[[]*CustomAttribute]
}

func (p *GenericMethodParameter) Name() string { return p.name }
func (p *GenericMethodParameter) FullName() string { return p.name }
func (p *GenericMethodParameter) Token() Token { return image.NewToken(image.TableGenericParam, p.row) }
func (p *GenericMethodParameter) Index() uint32 { return p.index }
func (p *GenericMethodParameter) DefiningMethod() *MethodDefinition { return p.owner }
func (p *GenericMethodParameter) Flags() GenericParamAttributes { return p.flags }
func (p *GenericMethodParameter) TypeCode() TypeCode { return TypeCodeNotPrimitive }
func (p *GenericMethodParameter) Accept(v Visitor) { v.VisitGenericMethodParameter(p) }
func (p *GenericMethodParameter) memberRefParent() {}
func (p *GenericMethodParameter) String() string { return "!!" + p.name }

func (p *GenericMethodParameter) IsValueType() bool {
	return p.flags&GenericNotNullableValueType != 0
}

func (p *GenericMethodParameter) Constraints() []TypeReference {
	return p.constraints.get(func() []TypeReference {
		return p.owner.module.constraintTypes(p.row, genericContext{typeDef: p.owner.ContainingTypeDefinition(), method: p.owner})
	})
}

func (p *GenericMethodParameter) CustomAttributes() []*CustomAttribute {
	return p.attrs.get(func() []*CustomAttribute { return p.owner.module.attributesOf(p.Token()) })
}

// InternedKey depends only on the index: a method's own key is derived from
// its signature, which may mention its parameters.
func (p *GenericMethodParameter) InternedKey() intern.Key {
	return p.owner.module.host.intern.Intern(intern.MethodParameter(p.index))
}
