package image

// Owner lookups over the tables that are keyed by a parent column.

func (md *Metadata) CustomAttributesOf(parent Token) []uint32 {
	return md.Lookup(TableCustomAttribute, 0, parent)
}

func (md *Metadata) ConstantOf(parent Token) (uint32, bool) {
	return first(md.Lookup(TableConstant, 1, parent))
}

func (md *Metadata) FieldMarshalOf(parent Token) (uint32, bool) {
	return first(md.Lookup(TableFieldMarshal, 0, parent))
}

func (md *Metadata) DeclSecurityOf(parent Token) []uint32 {
	return md.Lookup(TableDeclSecurity, 1, parent)
}

func (md *Metadata) ClassLayoutOf(typeDef uint32) (uint32, bool) {
	return first(md.Lookup(TableClassLayout, 2, NewToken(TableTypeDef, typeDef)))
}

func (md *Metadata) FieldLayoutOf(field uint32) (uint32, bool) {
	return first(md.Lookup(TableFieldLayout, 1, NewToken(TableField, field)))
}

func (md *Metadata) FieldRVAOf(field uint32) (uint32, bool) {
	return first(md.Lookup(TableFieldRVA, 1, NewToken(TableField, field)))
}

func (md *Metadata) ImplMapOf(member Token) (uint32, bool) {
	return first(md.Lookup(TableImplMap, 1, member))
}

func (md *Metadata) InterfaceImplsOf(typeDef uint32) []uint32 {
	return md.Lookup(TableInterfaceImpl, 0, NewToken(TableTypeDef, typeDef))
}

func (md *Metadata) MethodImplsOf(typeDef uint32) []uint32 {
	return md.Lookup(TableMethodImpl, 0, NewToken(TableTypeDef, typeDef))
}

func (md *Metadata) SemanticsOf(association Token) []uint32 {
	return md.Lookup(TableMethodSemantics, 2, association)
}

// SemanticsOfMethod scans MethodSemantics for rows naming method; the table is
// sorted by association, not by method.
func (md *Metadata) SemanticsOfMethod(method uint32) []uint32 {
	return md.scan(TableMethodSemantics, 1, method)
}

func (md *Metadata) GenericParamsOf(owner Token) []uint32 {
	return md.Lookup(TableGenericParam, 2, owner)
}

func (md *Metadata) ConstraintsOf(genericParam uint32) []uint32 {
	return md.Lookup(TableGenericParamConstraint, 0, NewToken(TableGenericParam, genericParam))
}

// EnclosingClassOf returns the enclosing TypeDef row of a nested TypeDef.
func (md *Metadata) EnclosingClassOf(typeDef uint32) (uint32, bool) {
	row, ok := first(md.Lookup(TableNestedClass, 0, NewToken(TableTypeDef, typeDef)))
	if !ok {
		return 0, false
	}
	return md.NestedClass(row).EnclosingClass, true
}

func (md *Metadata) EventMapOf(typeDef uint32) (uint32, bool) {
	return first(md.scan(TableEventMap, 0, typeDef))
}

func (md *Metadata) PropertyMapOf(typeDef uint32) (uint32, bool) {
	return first(md.scan(TablePropertyMap, 0, typeDef))
}

func (md *Metadata) scan(t Table, col int, want uint32) []uint32 {
	tbl := &md.tables[t]
	var out []uint32
	for i := 0; i < int(tbl.rows); i++ {
		if tbl.data[i*tbl.cols+col] == want {
			out = append(out, uint32(i+1))
		}
	}
	return out
}

func first(rows []uint32) (uint32, bool) {
	if len(rows) == 0 {
		return 0, false
	}
	return rows[0], true
}
