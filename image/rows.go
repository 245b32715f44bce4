package image

import "sort"

// Row types mirror the physical columns of each table. Strings, blobs and GUIDs
// are materialized from the heaps; coded indexes are decoded to tokens; simple
// indexes stay row numbers into their target table.

type ModuleRow struct {
	Name       string
	Mvid       GUID
	EncID      GUID
	EncBaseID  GUID
	Generation uint16
}

type TypeRefRow struct {
	ResolutionScope Token
	Name            string
	Namespace       string
}

type TypeDefRow struct {
	Name       string
	Namespace  string
	Flags      uint32
	Extends    Token
	FieldList  uint32
	MethodList uint32
}

type FieldRow struct {
	Name      string
	Signature []byte
	Flags     uint16
}

type MethodDefRow struct {
	Name      string
	Signature []byte
	RVA       uint32
	ParamList uint32
	ImplFlags uint16
	Flags     uint16
}

type ParamRow struct {
	Name     string
	Flags    uint16
	Sequence uint16
}

type InterfaceImplRow struct {
	Class     uint32
	Interface Token
}

type MemberRefRow struct {
	Name      string
	Signature []byte
	Parent    Token
}

type ConstantRow struct {
	Value  []byte
	Parent Token
	Type   uint8
}

type CustomAttributeRow struct {
	Value  []byte
	Parent Token
	Type   Token
}

type FieldMarshalRow struct {
	NativeType []byte
	Parent     Token
}

type DeclSecurityRow struct {
	PermissionSet []byte
	Parent        Token
	Action        uint16
}

type ClassLayoutRow struct {
	ClassSize   uint32
	Parent      uint32
	PackingSize uint16
}

type FieldLayoutRow struct {
	Offset uint32
	Field  uint32
}

type StandAloneSigRow struct {
	Signature []byte
}

type EventMapRow struct {
	Parent    uint32
	EventList uint32
}

type EventRow struct {
	Name      string
	EventType Token
	Flags     uint16
}

type PropertyMapRow struct {
	Parent       uint32
	PropertyList uint32
}

type PropertyRow struct {
	Name      string
	Signature []byte
	Flags     uint16
}

type MethodSemanticsRow struct {
	Method      uint32
	Association Token
	Semantics   uint16
}

type MethodImplRow struct {
	Class       uint32
	Body        Token
	Declaration Token
}

type ModuleRefRow struct {
	Name string
}

type TypeSpecRow struct {
	Signature []byte
}

type ImplMapRow struct {
	ImportName      string
	MemberForwarded Token
	ImportScope     uint32
	MappingFlags    uint16
}

type FieldRVARow struct {
	RVA   uint32
	Field uint32
}

type AssemblyRow struct {
	Name           string
	Culture        string
	PublicKey      []byte
	HashAlgID      uint32
	Flags          uint32
	MajorVersion   uint16
	MinorVersion   uint16
	BuildNumber    uint16
	RevisionNumber uint16
}

type AssemblyRefRow struct {
	Name             string
	Culture          string
	PublicKeyOrToken []byte
	HashValue        []byte
	Flags            uint32
	MajorVersion     uint16
	MinorVersion     uint16
	BuildNumber      uint16
	RevisionNumber   uint16
}

type FileRow struct {
	Name      string
	HashValue []byte
	Flags     uint32
}

type ExportedTypeRow struct {
	Name           string
	Namespace      string
	Flags          uint32
	TypeDefID      uint32
	Implementation Token
}

type ManifestResourceRow struct {
	Name           string
	Offset         uint32
	Flags          uint32
	Implementation Token
}

type NestedClassRow struct {
	NestedClass    uint32
	EnclosingClass uint32
}

type GenericParamRow struct {
	Name   string
	Owner  Token
	Number uint16
	Flags  uint16
}

type MethodSpecRow struct {
	Instantiation []byte
	Method        Token
}

type GenericParamConstraintRow struct {
	Owner      uint32
	Constraint Token
}

func (md *Metadata) coded(t Table, col int, v uint32) Token {
	return schemas[t][col].coded.decode(v)
}

func (md *Metadata) Module(row uint32) ModuleRow {
	c := md.raw(TableModule, row)
	if c == nil {
		return ModuleRow{}
	}
	return ModuleRow{
		Generation: uint16(c[0]),
		Name:       md.Strings.Get(c[1]),
		Mvid:       md.GUIDs.Get(c[2]),
		EncID:      md.GUIDs.Get(c[3]),
		EncBaseID:  md.GUIDs.Get(c[4]),
	}
}

func (md *Metadata) TypeRef(row uint32) TypeRefRow {
	c := md.raw(TableTypeRef, row)
	if c == nil {
		return TypeRefRow{ResolutionScope: NoToken}
	}
	return TypeRefRow{
		ResolutionScope: md.coded(TableTypeRef, 0, c[0]),
		Name:            md.Strings.Get(c[1]),
		Namespace:       md.Strings.Get(c[2]),
	}
}

func (md *Metadata) TypeDef(row uint32) TypeDefRow {
	c := md.raw(TableTypeDef, row)
	if c == nil {
		return TypeDefRow{Extends: NoToken}
	}
	return TypeDefRow{
		Flags:      c[0],
		Name:       md.Strings.Get(c[1]),
		Namespace:  md.Strings.Get(c[2]),
		Extends:    md.coded(TableTypeDef, 3, c[3]),
		FieldList:  c[4],
		MethodList: c[5],
	}
}

func (md *Metadata) Field(row uint32) FieldRow {
	c := md.raw(TableField, row)
	if c == nil {
		return FieldRow{}
	}
	return FieldRow{Flags: uint16(c[0]), Name: md.Strings.Get(c[1]), Signature: md.Blobs.Get(c[2])}
}

func (md *Metadata) MethodDef(row uint32) MethodDefRow {
	c := md.raw(TableMethodDef, row)
	if c == nil {
		return MethodDefRow{}
	}
	return MethodDefRow{
		RVA:       c[0],
		ImplFlags: uint16(c[1]),
		Flags:     uint16(c[2]),
		Name:      md.Strings.Get(c[3]),
		Signature: md.Blobs.Get(c[4]),
		ParamList: c[5],
	}
}

func (md *Metadata) Param(row uint32) ParamRow {
	c := md.raw(TableParam, row)
	if c == nil {
		return ParamRow{}
	}
	return ParamRow{Flags: uint16(c[0]), Sequence: uint16(c[1]), Name: md.Strings.Get(c[2])}
}

func (md *Metadata) InterfaceImpl(row uint32) InterfaceImplRow {
	c := md.raw(TableInterfaceImpl, row)
	if c == nil {
		return InterfaceImplRow{Interface: NoToken}
	}
	return InterfaceImplRow{Class: c[0], Interface: md.coded(TableInterfaceImpl, 1, c[1])}
}

func (md *Metadata) MemberRef(row uint32) MemberRefRow {
	c := md.raw(TableMemberRef, row)
	if c == nil {
		return MemberRefRow{Parent: NoToken}
	}
	return MemberRefRow{
		Parent:    md.coded(TableMemberRef, 0, c[0]),
		Name:      md.Strings.Get(c[1]),
		Signature: md.Blobs.Get(c[2]),
	}
}

func (md *Metadata) Constant(row uint32) ConstantRow {
	c := md.raw(TableConstant, row)
	if c == nil {
		return ConstantRow{Parent: NoToken}
	}
	return ConstantRow{
		Type:   uint8(c[0]),
		Parent: md.coded(TableConstant, 1, c[1]),
		Value:  md.Blobs.Get(c[2]),
	}
}

func (md *Metadata) CustomAttribute(row uint32) CustomAttributeRow {
	c := md.raw(TableCustomAttribute, row)
	if c == nil {
		return CustomAttributeRow{Parent: NoToken, Type: NoToken}
	}
	return CustomAttributeRow{
		Parent: md.coded(TableCustomAttribute, 0, c[0]),
		Type:   md.coded(TableCustomAttribute, 1, c[1]),
		Value:  md.Blobs.Get(c[2]),
	}
}

func (md *Metadata) FieldMarshal(row uint32) FieldMarshalRow {
	c := md.raw(TableFieldMarshal, row)
	if c == nil {
		return FieldMarshalRow{Parent: NoToken}
	}
	return FieldMarshalRow{Parent: md.coded(TableFieldMarshal, 0, c[0]), NativeType: md.Blobs.Get(c[1])}
}

func (md *Metadata) DeclSecurity(row uint32) DeclSecurityRow {
	c := md.raw(TableDeclSecurity, row)
	if c == nil {
		return DeclSecurityRow{Parent: NoToken}
	}
	return DeclSecurityRow{
		Action:        uint16(c[0]),
		Parent:        md.coded(TableDeclSecurity, 1, c[1]),
		PermissionSet: md.Blobs.Get(c[2]),
	}
}

func (md *Metadata) ClassLayout(row uint32) ClassLayoutRow {
	c := md.raw(TableClassLayout, row)
	if c == nil {
		return ClassLayoutRow{}
	}
	return ClassLayoutRow{PackingSize: uint16(c[0]), ClassSize: c[1], Parent: c[2]}
}

func (md *Metadata) FieldLayout(row uint32) FieldLayoutRow {
	c := md.raw(TableFieldLayout, row)
	if c == nil {
		return FieldLayoutRow{}
	}
	return FieldLayoutRow{Offset: c[0], Field: c[1]}
}

func (md *Metadata) StandAloneSig(row uint32) StandAloneSigRow {
	c := md.raw(TableStandAloneSig, row)
	if c == nil {
		return StandAloneSigRow{}
	}
	return StandAloneSigRow{Signature: md.Blobs.Get(c[0])}
}

func (md *Metadata) EventMap(row uint32) EventMapRow {
	c := md.raw(TableEventMap, row)
	if c == nil {
		return EventMapRow{}
	}
	return EventMapRow{Parent: c[0], EventList: c[1]}
}

func (md *Metadata) Event(row uint32) EventRow {
	c := md.raw(TableEvent, row)
	if c == nil {
		return EventRow{EventType: NoToken}
	}
	return EventRow{Flags: uint16(c[0]), Name: md.Strings.Get(c[1]), EventType: md.coded(TableEvent, 2, c[2])}
}

func (md *Metadata) PropertyMap(row uint32) PropertyMapRow {
	c := md.raw(TablePropertyMap, row)
	if c == nil {
		return PropertyMapRow{}
	}
	return PropertyMapRow{Parent: c[0], PropertyList: c[1]}
}

func (md *Metadata) Property(row uint32) PropertyRow {
	c := md.raw(TableProperty, row)
	if c == nil {
		return PropertyRow{}
	}
	return PropertyRow{Flags: uint16(c[0]), Name: md.Strings.Get(c[1]), Signature: md.Blobs.Get(c[2])}
}

func (md *Metadata) MethodSemantics(row uint32) MethodSemanticsRow {
	c := md.raw(TableMethodSemantics, row)
	if c == nil {
		return MethodSemanticsRow{Association: NoToken}
	}
	return MethodSemanticsRow{
		Semantics:   uint16(c[0]),
		Method:      c[1],
		Association: md.coded(TableMethodSemantics, 2, c[2]),
	}
}

func (md *Metadata) MethodImpl(row uint32) MethodImplRow {
	c := md.raw(TableMethodImpl, row)
	if c == nil {
		return MethodImplRow{Body: NoToken, Declaration: NoToken}
	}
	return MethodImplRow{
		Class:       c[0],
		Body:        md.coded(TableMethodImpl, 1, c[1]),
		Declaration: md.coded(TableMethodImpl, 2, c[2]),
	}
}

func (md *Metadata) ModuleRef(row uint32) ModuleRefRow {
	c := md.raw(TableModuleRef, row)
	if c == nil {
		return ModuleRefRow{}
	}
	return ModuleRefRow{Name: md.Strings.Get(c[0])}
}

func (md *Metadata) TypeSpec(row uint32) TypeSpecRow {
	c := md.raw(TableTypeSpec, row)
	if c == nil {
		return TypeSpecRow{}
	}
	return TypeSpecRow{Signature: md.Blobs.Get(c[0])}
}

func (md *Metadata) ImplMap(row uint32) ImplMapRow {
	c := md.raw(TableImplMap, row)
	if c == nil {
		return ImplMapRow{MemberForwarded: NoToken}
	}
	return ImplMapRow{
		MappingFlags:    uint16(c[0]),
		MemberForwarded: md.coded(TableImplMap, 1, c[1]),
		ImportName:      md.Strings.Get(c[2]),
		ImportScope:     c[3],
	}
}

func (md *Metadata) FieldRVA(row uint32) FieldRVARow {
	c := md.raw(TableFieldRVA, row)
	if c == nil {
		return FieldRVARow{}
	}
	return FieldRVARow{RVA: c[0], Field: c[1]}
}

func (md *Metadata) Assembly(row uint32) AssemblyRow {
	c := md.raw(TableAssembly, row)
	if c == nil {
		return AssemblyRow{}
	}
	return AssemblyRow{
		HashAlgID:      c[0],
		MajorVersion:   uint16(c[1]),
		MinorVersion:   uint16(c[2]),
		BuildNumber:    uint16(c[3]),
		RevisionNumber: uint16(c[4]),
		Flags:          c[5],
		PublicKey:      md.Blobs.Get(c[6]),
		Name:           md.Strings.Get(c[7]),
		Culture:        md.Strings.Get(c[8]),
	}
}

func (md *Metadata) AssemblyRef(row uint32) AssemblyRefRow {
	c := md.raw(TableAssemblyRef, row)
	if c == nil {
		return AssemblyRefRow{}
	}
	return AssemblyRefRow{
		MajorVersion:     uint16(c[0]),
		MinorVersion:     uint16(c[1]),
		BuildNumber:      uint16(c[2]),
		RevisionNumber:   uint16(c[3]),
		Flags:            c[4],
		PublicKeyOrToken: md.Blobs.Get(c[5]),
		Name:             md.Strings.Get(c[6]),
		Culture:          md.Strings.Get(c[7]),
		HashValue:        md.Blobs.Get(c[8]),
	}
}

func (md *Metadata) File(row uint32) FileRow {
	c := md.raw(TableFile, row)
	if c == nil {
		return FileRow{}
	}
	return FileRow{Flags: c[0], Name: md.Strings.Get(c[1]), HashValue: md.Blobs.Get(c[2])}
}

func (md *Metadata) ExportedType(row uint32) ExportedTypeRow {
	c := md.raw(TableExportedType, row)
	if c == nil {
		return ExportedTypeRow{Implementation: NoToken}
	}
	return ExportedTypeRow{
		Flags:          c[0],
		TypeDefID:      c[1],
		Name:           md.Strings.Get(c[2]),
		Namespace:      md.Strings.Get(c[3]),
		Implementation: md.coded(TableExportedType, 4, c[4]),
	}
}

func (md *Metadata) ManifestResource(row uint32) ManifestResourceRow {
	c := md.raw(TableManifestResource, row)
	if c == nil {
		return ManifestResourceRow{Implementation: NoToken}
	}
	return ManifestResourceRow{
		Offset:         c[0],
		Flags:          c[1],
		Name:           md.Strings.Get(c[2]),
		Implementation: md.coded(TableManifestResource, 3, c[3]),
	}
}

func (md *Metadata) NestedClass(row uint32) NestedClassRow {
	c := md.raw(TableNestedClass, row)
	if c == nil {
		return NestedClassRow{}
	}
	return NestedClassRow{NestedClass: c[0], EnclosingClass: c[1]}
}

func (md *Metadata) GenericParam(row uint32) GenericParamRow {
	c := md.raw(TableGenericParam, row)
	if c == nil {
		return GenericParamRow{Owner: NoToken}
	}
	return GenericParamRow{
		Number: uint16(c[0]),
		Flags:  uint16(c[1]),
		Owner:  md.coded(TableGenericParam, 2, c[2]),
		Name:   md.Strings.Get(c[3]),
	}
}

func (md *Metadata) MethodSpec(row uint32) MethodSpecRow {
	c := md.raw(TableMethodSpec, row)
	if c == nil {
		return MethodSpecRow{Method: NoToken}
	}
	return MethodSpecRow{Method: md.coded(TableMethodSpec, 0, c[0]), Instantiation: md.Blobs.Get(c[1])}
}

func (md *Metadata) GenericParamConstraint(row uint32) GenericParamConstraintRow {
	c := md.raw(TableGenericParamConstraint, row)
	if c == nil {
		return GenericParamConstraintRow{Constraint: NoToken}
	}
	return GenericParamConstraintRow{Owner: c[0], Constraint: md.coded(TableGenericParamConstraint, 1, c[1])}
}

// listRange returns the target rows owned by ownerRow through list column col.
// The list runs to the next owner's start or the end of the target table; in
// #- streams the indexes go through the target's pointer table when present.
func (md *Metadata) listRange(owner Table, ownerRow uint32, col int, target, ptr Table) []uint32 {
	c := md.raw(owner, ownerRow)
	if c == nil {
		return nil
	}
	limit := md.RowCount(target) + 1
	viaPtr := md.Uncompressed && md.RowCount(ptr) > 0
	if viaPtr {
		limit = md.RowCount(ptr) + 1
	}
	start := c[col]
	end := limit
	if next := md.raw(owner, ownerRow+1); next != nil {
		end = next[col]
	}
	if start == 0 {
		start = 1
	}
	if end > limit {
		end = limit
	}
	if start >= end {
		return nil
	}
	out := make([]uint32, 0, end-start)
	for i := start; i < end; i++ {
		if viaPtr {
			p := md.raw(ptr, i)
			if p == nil || p[0] == 0 || p[0] > md.RowCount(target) {
				continue
			}
			out = append(out, p[0])
			continue
		}
		out = append(out, i)
	}
	return out
}

// TypeFields returns the Field rows of a TypeDef.
func (md *Metadata) TypeFields(typeDef uint32) []uint32 {
	return md.listRange(TableTypeDef, typeDef, 4, TableField, TableFieldPtr)
}

// TypeMethods returns the MethodDef rows of a TypeDef.
func (md *Metadata) TypeMethods(typeDef uint32) []uint32 {
	return md.listRange(TableTypeDef, typeDef, 5, TableMethodDef, TableMethodPtr)
}

// MethodParams returns the Param rows of a MethodDef.
func (md *Metadata) MethodParams(method uint32) []uint32 {
	return md.listRange(TableMethodDef, method, 5, TableParam, TableParamPtr)
}

// EventMapEvents returns the Event rows of an EventMap row.
func (md *Metadata) EventMapEvents(eventMap uint32) []uint32 {
	return md.listRange(TableEventMap, eventMap, 1, TableEvent, TableEventPtr)
}

// PropertyMapProperties returns the Property rows of a PropertyMap row.
func (md *Metadata) PropertyMapProperties(propertyMap uint32) []uint32 {
	return md.listRange(TablePropertyMap, propertyMap, 1, TableProperty, TablePropertyPtr)
}

// Lookup returns the rows of t whose column col refers to key. Sorted tables
// are binary searched; unsorted ones are scanned.
func (md *Metadata) Lookup(t Table, col int, key Token) []uint32 {
	if int(t) >= numTables || col >= len(schemas[t]) {
		return nil
	}
	want, ok := rawKey(schemas[t][col], key)
	if !ok {
		return nil
	}
	tbl := &md.tables[t]
	at := func(i int) uint32 { return tbl.data[i*tbl.cols+col] }

	n := int(tbl.rows)
	if md.Sorted&(1<<uint(t)) != 0 {
		lo := sort.Search(n, func(i int) bool { return at(i) >= want })
		var out []uint32
		for i := lo; i < n && at(i) == want; i++ {
			out = append(out, uint32(i+1))
		}
		return out
	}
	var out []uint32
	for i := 0; i < n; i++ {
		if at(i) == want {
			out = append(out, uint32(i+1))
		}
	}
	return out
}

func rawKey(c column, key Token) (uint32, bool) {
	switch c.kind {
	case colCoded:
		if key.IsNil() {
			return 0, false
		}
		return c.coded.encode(key)
	case colIndex:
		if key.Table() != c.table || key.Row() == 0 {
			return 0, false
		}
		return key.Row(), true
	default:
		return 0, false
	}
}
