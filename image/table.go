package image

import "fmt"

// Table identifies a metadata table (ECMA-335 II.22).
type Table uint8

const (
	TableModule                 Table = 0x00
	TableTypeRef                Table = 0x01
	TableTypeDef                Table = 0x02
	TableFieldPtr               Table = 0x03
	TableField                  Table = 0x04
	TableMethodPtr              Table = 0x05
	TableMethodDef              Table = 0x06
	TableParamPtr               Table = 0x07
	TableParam                  Table = 0x08
	TableInterfaceImpl          Table = 0x09
	TableMemberRef              Table = 0x0A
	TableConstant               Table = 0x0B
	TableCustomAttribute        Table = 0x0C
	TableFieldMarshal           Table = 0x0D
	TableDeclSecurity           Table = 0x0E
	TableClassLayout            Table = 0x0F
	TableFieldLayout            Table = 0x10
	TableStandAloneSig          Table = 0x11
	TableEventMap               Table = 0x12
	TableEventPtr               Table = 0x13
	TableEvent                  Table = 0x14
	TablePropertyMap            Table = 0x15
	TablePropertyPtr            Table = 0x16
	TableProperty               Table = 0x17
	TableMethodSemantics        Table = 0x18
	TableMethodImpl             Table = 0x19
	TableModuleRef              Table = 0x1A
	TableTypeSpec               Table = 0x1B
	TableImplMap                Table = 0x1C
	TableFieldRVA               Table = 0x1D
	TableEncLog                 Table = 0x1E
	TableEncMap                 Table = 0x1F
	TableAssembly               Table = 0x20
	TableAssemblyProcessor      Table = 0x21
	TableAssemblyOS             Table = 0x22
	TableAssemblyRef            Table = 0x23
	TableAssemblyRefProcessor   Table = 0x24
	TableAssemblyRefOS          Table = 0x25
	TableFile                   Table = 0x26
	TableExportedType           Table = 0x27
	TableManifestResource       Table = 0x28
	TableNestedClass            Table = 0x29
	TableGenericParam           Table = 0x2A
	TableMethodSpec             Table = 0x2B
	TableGenericParamConstraint Table = 0x2C

	// TableUserString tags #US heap tokens; it is not a table.
	TableUserString Table = 0x70

	numTables = int(TableGenericParamConstraint) + 1
	noTable   = Table(0xFF)
)

var tableNames = [numTables]string{
	"Module", "TypeRef", "TypeDef", "FieldPtr", "Field", "MethodPtr", "MethodDef",
	"ParamPtr", "Param", "InterfaceImpl", "MemberRef", "Constant", "CustomAttribute",
	"FieldMarshal", "DeclSecurity", "ClassLayout", "FieldLayout", "StandAloneSig",
	"EventMap", "EventPtr", "Event", "PropertyMap", "PropertyPtr", "Property",
	"MethodSemantics", "MethodImpl", "ModuleRef", "TypeSpec", "ImplMap", "FieldRVA",
	"EncLog", "EncMap", "Assembly", "AssemblyProcessor", "AssemblyOS", "AssemblyRef",
	"AssemblyRefProcessor", "AssemblyRefOS", "File", "ExportedType", "ManifestResource",
	"NestedClass", "GenericParam", "MethodSpec", "GenericParamConstraint",
}

func (t Table) String() string {
	if int(t) < numTables {
		return tableNames[t]
	}
	if t == TableUserString {
		return "UserString"
	}
	return fmt.Sprintf("Table(0x%02x)", uint8(t))
}

// Token is a metadata token: table in the high byte, 1-based row in the low 24 bits.
type Token uint32

// NoToken marks objects that are not backed by a table row.
const NoToken Token = 0xFFFFFFFF

// NewToken builds a token for row of table t.
func NewToken(t Table, row uint32) Token {
	return Token(uint32(t)<<24 | row&0x00FFFFFF)
}

// Table returns the table part of the token.
func (t Token) Table() Table {
	return Table(t >> 24)
}

// Row returns the 1-based row number.
func (t Token) Row() uint32 {
	return uint32(t) & 0x00FFFFFF
}

// IsNil reports whether the token names no row (row 0 or NoToken).
func (t Token) IsNil() bool {
	return t == NoToken || t.Row() == 0
}

func (t Token) String() string {
	if t == NoToken {
		return "NoToken"
	}
	return fmt.Sprintf("0x%08x", uint32(t))
}

// codedIndex describes a coded index column (ECMA-335 II.24.2.6).
type codedIndex struct {
	name   string
	bits   uint
	tables []Table
}

var (
	codedTypeDefOrRef = &codedIndex{"TypeDefOrRef", 2,
		[]Table{TableTypeDef, TableTypeRef, TableTypeSpec}}
	codedHasConstant = &codedIndex{"HasConstant", 2,
		[]Table{TableField, TableParam, TableProperty}}
	codedHasCustomAttribute = &codedIndex{"HasCustomAttribute", 5, []Table{
		TableMethodDef, TableField, TableTypeRef, TableTypeDef, TableParam,
		TableInterfaceImpl, TableMemberRef, TableModule, TableDeclSecurity,
		TableProperty, TableEvent, TableStandAloneSig, TableModuleRef, TableTypeSpec,
		TableAssembly, TableAssemblyRef, TableFile, TableExportedType,
		TableManifestResource, TableGenericParam, TableGenericParamConstraint,
		TableMethodSpec,
	}}
	codedHasFieldMarshal = &codedIndex{"HasFieldMarshal", 1,
		[]Table{TableField, TableParam}}
	codedHasDeclSecurity = &codedIndex{"HasDeclSecurity", 2,
		[]Table{TableTypeDef, TableMethodDef, TableAssembly}}
	codedMemberRefParent = &codedIndex{"MemberRefParent", 3,
		[]Table{TableTypeDef, TableTypeRef, TableModuleRef, TableMethodDef, TableTypeSpec}}
	codedHasSemantics = &codedIndex{"HasSemantics", 1,
		[]Table{TableEvent, TableProperty}}
	codedMethodDefOrRef = &codedIndex{"MethodDefOrRef", 1,
		[]Table{TableMethodDef, TableMemberRef}}
	codedMemberForwarded = &codedIndex{"MemberForwarded", 1,
		[]Table{TableField, TableMethodDef}}
	codedImplementation = &codedIndex{"Implementation", 2,
		[]Table{TableFile, TableAssemblyRef, TableExportedType}}
	codedCustomAttributeType = &codedIndex{"CustomAttributeType", 3,
		[]Table{noTable, noTable, TableMethodDef, TableMemberRef, noTable}}
	codedResolutionScope = &codedIndex{"ResolutionScope", 2,
		[]Table{TableModule, TableModuleRef, TableAssemblyRef, TableTypeRef}}
	codedTypeOrMethodDef = &codedIndex{"TypeOrMethodDef", 1,
		[]Table{TableTypeDef, TableMethodDef}}
)

// wide reports whether the coded index needs four bytes given row counts.
func (c *codedIndex) wide(rows *[numTables]uint32) bool {
	limit := uint32(1) << (16 - c.bits)
	for _, t := range c.tables {
		if t != noTable && rows[t] >= limit {
			return true
		}
	}
	return false
}

// decode converts a raw coded value to a token. Unknown tags yield NoToken.
func (c *codedIndex) decode(v uint32) Token {
	tag := v & (1<<c.bits - 1)
	if int(tag) >= len(c.tables) || c.tables[tag] == noTable {
		return NoToken
	}
	return NewToken(c.tables[tag], v>>c.bits)
}

// encode converts a token to a raw coded value. Nil tokens encode as zero.
func (c *codedIndex) encode(t Token) (uint32, bool) {
	if t == 0 || t == NoToken {
		return 0, true
	}
	for i, tbl := range c.tables {
		if tbl == t.Table() && tbl != noTable {
			return t.Row()<<c.bits | uint32(i), true
		}
	}
	return 0, false
}

type colKind uint8

const (
	colU16 colKind = iota
	colU32
	colString
	colGUID
	colBlob
	colIndex
	colCoded
)

type column struct {
	kind  colKind
	table Table
	coded *codedIndex
}

func u16() column { return column{kind: colU16} }
func u32() column { return column{kind: colU32} }
func str() column { return column{kind: colString} }
func guid() column { return column{kind: colGUID} }
func blob() column { return column{kind: colBlob} }
func idx(t Table) column { return column{kind: colIndex, table: t} }
func coded(c *codedIndex) column { return column{kind: colCoded, coded: c} }

// schemas lists the columns of every table in physical order.
var schemas = [numTables][]column{
	TableModule:                 {u16(), str(), guid(), guid(), guid()},
	TableTypeRef:                {coded(codedResolutionScope), str(), str()},
	TableTypeDef:                {u32(), str(), str(), coded(codedTypeDefOrRef), idx(TableField), idx(TableMethodDef)},
	TableFieldPtr:               {idx(TableField)},
	TableField:                  {u16(), str(), blob()},
	TableMethodPtr:              {idx(TableMethodDef)},
	TableMethodDef:              {u32(), u16(), u16(), str(), blob(), idx(TableParam)},
	TableParamPtr:               {idx(TableParam)},
	TableParam:                  {u16(), u16(), str()},
	TableInterfaceImpl:          {idx(TableTypeDef), coded(codedTypeDefOrRef)},
	TableMemberRef:              {coded(codedMemberRefParent), str(), blob()},
	TableConstant:               {u16(), coded(codedHasConstant), blob()},
	TableCustomAttribute:        {coded(codedHasCustomAttribute), coded(codedCustomAttributeType), blob()},
	TableFieldMarshal:           {coded(codedHasFieldMarshal), blob()},
	TableDeclSecurity:           {u16(), coded(codedHasDeclSecurity), blob()},
	TableClassLayout:            {u16(), u32(), idx(TableTypeDef)},
	TableFieldLayout:            {u32(), idx(TableField)},
	TableStandAloneSig:          {blob()},
	TableEventMap:               {idx(TableTypeDef), idx(TableEvent)},
	TableEventPtr:               {idx(TableEvent)},
	TableEvent:                  {u16(), str(), coded(codedTypeDefOrRef)},
	TablePropertyMap:            {idx(TableTypeDef), idx(TableProperty)},
	TablePropertyPtr:            {idx(TableProperty)},
	TableProperty:               {u16(), str(), blob()},
	TableMethodSemantics:        {u16(), idx(TableMethodDef), coded(codedHasSemantics)},
	TableMethodImpl:             {idx(TableTypeDef), coded(codedMethodDefOrRef), coded(codedMethodDefOrRef)},
	TableModuleRef:              {str()},
	TableTypeSpec:               {blob()},
	TableImplMap:                {u16(), coded(codedMemberForwarded), str(), idx(TableModuleRef)},
	TableFieldRVA:               {u32(), idx(TableField)},
	TableEncLog:                 {u32(), u32()},
	TableEncMap:                 {u32()},
	TableAssembly:               {u32(), u16(), u16(), u16(), u16(), u32(), blob(), str(), str()},
	TableAssemblyProcessor:      {u32()},
	TableAssemblyOS:             {u32(), u32(), u32()},
	TableAssemblyRef:            {u16(), u16(), u16(), u16(), u32(), blob(), str(), str(), blob()},
	TableAssemblyRefProcessor:   {u32(), idx(TableAssemblyRef)},
	TableAssemblyRefOS:          {u32(), u32(), u32(), idx(TableAssemblyRef)},
	TableFile:                   {u32(), str(), blob()},
	TableExportedType:           {u32(), u32(), str(), str(), coded(codedImplementation)},
	TableManifestResource:       {u32(), u32(), str(), coded(codedImplementation)},
	TableNestedClass:            {idx(TableTypeDef), idx(TableTypeDef)},
	TableGenericParam:           {u16(), u16(), coded(codedTypeOrMethodDef), str()},
	TableMethodSpec:             {coded(codedMethodDefOrRef), blob()},
	TableGenericParamConstraint: {idx(TableGenericParam), coded(codedTypeDefOrRef)},
}

// layout holds the byte width of every column for one set of row counts.
type layout struct {
	wideString, wideGUID, wideBlob bool
	rows                           [numTables]uint32
}

func (l *layout) columnWide(c column) bool {
	switch c.kind {
	case colU32:
		return true
	case colString:
		return l.wideString
	case colGUID:
		return l.wideGUID
	case colBlob:
		return l.wideBlob
	case colIndex:
		return l.rows[c.table] > 0xFFFF
	case colCoded:
		return c.coded.wide(&l.rows)
	default:
		return false
	}
}
