package image

import (
	"bytes"
	"debug/pe"
	encbin "encoding/binary"
	"unicode/utf16"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/internal/binary"
)

// PE layout used by EncodePE: one .text section holding the CLI header,
// method bodies and field data, the metadata root and embedded resources.
const (
	peHeaderOffset   = 0x80
	fileAlignment    = 0x200
	sectionAlignment = 0x2000
	textRVA          = 0x2000
	cliHeaderSize    = 72
	bodiesRVA        = textRVA + cliHeaderSize
	imageBase        = 0x400000
)

// Builder assembles metadata tables and heaps and writes them as a metadata
// root or a complete PE image. Rows are appended in order; the token returned
// by each Add method is final. Pass 0 for a list column to give the row an
// empty list.
type Builder struct {
	err        error
	strings    *heapWriter
	blobs      *heapWriter
	us         *heapWriter
	data       *binary.Writer
	resources  *binary.Writer
	Version    string
	guids      []byte
	rows       [numTables][][]uint32
	EntryPoint Token
}

// NewBuilder creates an empty builder.
func NewBuilder() *Builder {
	return &Builder{
		strings:   newHeapWriter(),
		blobs:     newHeapWriter(),
		us:        newHeapWriter(),
		data:      binary.NewWriter(),
		resources: binary.NewWriter(),
		Version:   "v4.0.30319",
	}
}

type heapWriter struct {
	index map[string]uint32
	buf   []byte
}

func newHeapWriter() *heapWriter {
	return &heapWriter{index: make(map[string]uint32), buf: []byte{0}}
}

func (h *heapWriter) put(key string, encoded []byte) uint32 {
	if off, ok := h.index[key]; ok {
		return off
	}
	off := uint32(len(h.buf))
	h.buf = append(h.buf, encoded...)
	h.index[key] = off
	return off
}

func (b *Builder) str(s string) uint32 {
	if s == "" {
		return 0
	}
	return b.strings.put(s, append([]byte(s), 0))
}

func (b *Builder) blob(data []byte) uint32 {
	if len(data) == 0 {
		return 0
	}
	w := binary.NewWriter()
	w.WriteCompressedU32(uint32(len(data)))
	w.WriteBytes(data)
	return b.blobs.put(string(data), w.Bytes())
}

func (b *Builder) guid(g GUID) uint32 {
	if g == (GUID{}) {
		return 0
	}
	b.guids = append(b.guids, g[:]...)
	return uint32(len(b.guids) / 16)
}

func (b *Builder) code(t Table, col int, tok Token) uint32 {
	v, ok := schemas[t][col].coded.encode(tok)
	if !ok && b.err == nil {
		b.err = errors.New(errors.PhaseEncode, errors.KindInvalidInput).
			Path(t.String()).
			Entity(schemas[t][col].coded.name).
			Value(tok).
			Detail("token %s cannot be encoded as %s", tok, schemas[t][col].coded.name).
			Build()
	}
	return v
}

func (b *Builder) add(t Table, cols ...uint32) Token {
	b.rows[t] = append(b.rows[t], cols)
	return NewToken(t, uint32(len(b.rows[t])))
}

// NextRow returns the row number the next row added to t will get.
func (b *Builder) NextRow(t Table) uint32 {
	return uint32(len(b.rows[t])) + 1
}

// AddUserString appends s to the #US heap and returns its token.
func (b *Builder) AddUserString(s string) Token {
	units := utf16.Encode([]rune(s))
	w := binary.NewWriter()
	w.WriteCompressedU32(uint32(len(units)*2 + 1))
	var special byte
	for _, u := range units {
		w.WriteU16(u)
		if u >= 0x80 || (u >= 0x01 && u <= 0x08) || (u >= 0x0E && u <= 0x1F) || u == 0x27 || u == 0x2D || u == 0x7F {
			special = 1
		}
	}
	w.Byte(special)
	return NewToken(TableUserString, b.us.put(s, w.Bytes()))
}

// AddMethodBody appends an encoded method body and returns its RVA.
func (b *Builder) AddMethodBody(body []byte) uint32 {
	b.data.Align(4)
	rva := uint32(bodiesRVA + b.data.Len())
	b.data.WriteBytes(body)
	return rva
}

// AddFieldData appends initial field data and returns its RVA.
func (b *Builder) AddFieldData(data []byte) uint32 {
	return b.AddMethodBody(data)
}

// AddResource appends an embedded resource and returns its offset in the
// resources directory.
func (b *Builder) AddResource(data []byte) uint32 {
	b.resources.Align(8)
	off := uint32(b.resources.Len())
	b.resources.WriteU32(uint32(len(data)))
	b.resources.WriteBytes(data)
	return off
}

func (b *Builder) AddModule(r ModuleRow) Token {
	return b.add(TableModule, uint32(r.Generation), b.str(r.Name), b.guid(r.Mvid), b.guid(r.EncID), b.guid(r.EncBaseID))
}

func (b *Builder) AddTypeRef(r TypeRefRow) Token {
	return b.add(TableTypeRef, b.code(TableTypeRef, 0, r.ResolutionScope), b.str(r.Name), b.str(r.Namespace))
}

func (b *Builder) AddTypeDef(r TypeDefRow) Token {
	return b.add(TableTypeDef, r.Flags, b.str(r.Name), b.str(r.Namespace),
		b.code(TableTypeDef, 3, r.Extends), r.FieldList, r.MethodList)
}

func (b *Builder) AddField(r FieldRow) Token {
	return b.add(TableField, uint32(r.Flags), b.str(r.Name), b.blob(r.Signature))
}

func (b *Builder) AddMethodDef(r MethodDefRow) Token {
	return b.add(TableMethodDef, r.RVA, uint32(r.ImplFlags), uint32(r.Flags), b.str(r.Name), b.blob(r.Signature), r.ParamList)
}

func (b *Builder) AddParam(r ParamRow) Token {
	return b.add(TableParam, uint32(r.Flags), uint32(r.Sequence), b.str(r.Name))
}

func (b *Builder) AddInterfaceImpl(r InterfaceImplRow) Token {
	return b.add(TableInterfaceImpl, r.Class, b.code(TableInterfaceImpl, 1, r.Interface))
}

func (b *Builder) AddMemberRef(r MemberRefRow) Token {
	return b.add(TableMemberRef, b.code(TableMemberRef, 0, r.Parent), b.str(r.Name), b.blob(r.Signature))
}

func (b *Builder) AddConstant(r ConstantRow) Token {
	return b.add(TableConstant, uint32(r.Type), b.code(TableConstant, 1, r.Parent), b.blob(r.Value))
}

func (b *Builder) AddCustomAttribute(r CustomAttributeRow) Token {
	return b.add(TableCustomAttribute, b.code(TableCustomAttribute, 0, r.Parent),
		b.code(TableCustomAttribute, 1, r.Type), b.blob(r.Value))
}

func (b *Builder) AddFieldMarshal(r FieldMarshalRow) Token {
	return b.add(TableFieldMarshal, b.code(TableFieldMarshal, 0, r.Parent), b.blob(r.NativeType))
}

func (b *Builder) AddDeclSecurity(r DeclSecurityRow) Token {
	return b.add(TableDeclSecurity, uint32(r.Action), b.code(TableDeclSecurity, 1, r.Parent), b.blob(r.PermissionSet))
}

func (b *Builder) AddClassLayout(r ClassLayoutRow) Token {
	return b.add(TableClassLayout, uint32(r.PackingSize), r.ClassSize, r.Parent)
}

func (b *Builder) AddFieldLayout(r FieldLayoutRow) Token {
	return b.add(TableFieldLayout, r.Offset, r.Field)
}

func (b *Builder) AddStandAloneSig(r StandAloneSigRow) Token {
	return b.add(TableStandAloneSig, b.blob(r.Signature))
}

func (b *Builder) AddEventMap(r EventMapRow) Token {
	return b.add(TableEventMap, r.Parent, r.EventList)
}

func (b *Builder) AddEvent(r EventRow) Token {
	return b.add(TableEvent, uint32(r.Flags), b.str(r.Name), b.code(TableEvent, 2, r.EventType))
}

func (b *Builder) AddPropertyMap(r PropertyMapRow) Token {
	return b.add(TablePropertyMap, r.Parent, r.PropertyList)
}

func (b *Builder) AddProperty(r PropertyRow) Token {
	return b.add(TableProperty, uint32(r.Flags), b.str(r.Name), b.blob(r.Signature))
}

func (b *Builder) AddMethodSemantics(r MethodSemanticsRow) Token {
	return b.add(TableMethodSemantics, uint32(r.Semantics), r.Method, b.code(TableMethodSemantics, 2, r.Association))
}

func (b *Builder) AddMethodImpl(r MethodImplRow) Token {
	return b.add(TableMethodImpl, r.Class, b.code(TableMethodImpl, 1, r.Body), b.code(TableMethodImpl, 2, r.Declaration))
}

func (b *Builder) AddModuleRef(r ModuleRefRow) Token {
	return b.add(TableModuleRef, b.str(r.Name))
}

func (b *Builder) AddTypeSpec(r TypeSpecRow) Token {
	return b.add(TableTypeSpec, b.blob(r.Signature))
}

func (b *Builder) AddImplMap(r ImplMapRow) Token {
	return b.add(TableImplMap, uint32(r.MappingFlags), b.code(TableImplMap, 1, r.MemberForwarded),
		b.str(r.ImportName), r.ImportScope)
}

func (b *Builder) AddFieldRVA(r FieldRVARow) Token {
	return b.add(TableFieldRVA, r.RVA, r.Field)
}

func (b *Builder) AddAssembly(r AssemblyRow) Token {
	return b.add(TableAssembly, r.HashAlgID, uint32(r.MajorVersion), uint32(r.MinorVersion),
		uint32(r.BuildNumber), uint32(r.RevisionNumber), r.Flags, b.blob(r.PublicKey), b.str(r.Name), b.str(r.Culture))
}

func (b *Builder) AddAssemblyRef(r AssemblyRefRow) Token {
	return b.add(TableAssemblyRef, uint32(r.MajorVersion), uint32(r.MinorVersion), uint32(r.BuildNumber),
		uint32(r.RevisionNumber), r.Flags, b.blob(r.PublicKeyOrToken), b.str(r.Name), b.str(r.Culture), b.blob(r.HashValue))
}

func (b *Builder) AddFile(r FileRow) Token {
	return b.add(TableFile, r.Flags, b.str(r.Name), b.blob(r.HashValue))
}

func (b *Builder) AddExportedType(r ExportedTypeRow) Token {
	return b.add(TableExportedType, r.Flags, r.TypeDefID, b.str(r.Name), b.str(r.Namespace),
		b.code(TableExportedType, 4, r.Implementation))
}

func (b *Builder) AddManifestResource(r ManifestResourceRow) Token {
	return b.add(TableManifestResource, r.Offset, r.Flags, b.str(r.Name), b.code(TableManifestResource, 3, r.Implementation))
}

func (b *Builder) AddNestedClass(r NestedClassRow) Token {
	return b.add(TableNestedClass, r.NestedClass, r.EnclosingClass)
}

func (b *Builder) AddGenericParam(r GenericParamRow) Token {
	return b.add(TableGenericParam, uint32(r.Number), uint32(r.Flags), b.code(TableGenericParam, 2, r.Owner), b.str(r.Name))
}

func (b *Builder) AddMethodSpec(r MethodSpecRow) Token {
	return b.add(TableMethodSpec, b.code(TableMethodSpec, 0, r.Method), b.blob(r.Instantiation))
}

func (b *Builder) AddGenericParamConstraint(r GenericParamConstraintRow) Token {
	return b.add(TableGenericParamConstraint, r.Owner, b.code(TableGenericParamConstraint, 1, r.Constraint))
}

// sortKeys names the key column of every table that ECMA-335 requires sorted.
var sortKeys = map[Table]int{
	TableInterfaceImpl:          0,
	TableConstant:               1,
	TableCustomAttribute:        0,
	TableFieldMarshal:           0,
	TableDeclSecurity:           1,
	TableClassLayout:            2,
	TableFieldLayout:            1,
	TableMethodSemantics:        2,
	TableMethodImpl:             0,
	TableImplMap:                1,
	TableFieldRVA:               1,
	TableNestedClass:            0,
	TableGenericParam:           2,
	TableGenericParamConstraint: 0,
}

// listColumns names list columns fixed up by Encode when left at 0.
var listColumns = []struct {
	table, target Table
	col           int
}{
	{TableTypeDef, TableField, 4},
	{TableTypeDef, TableMethodDef, 5},
	{TableMethodDef, TableParam, 5},
	{TableEventMap, TableEvent, 1},
	{TablePropertyMap, TableProperty, 1},
}

func (b *Builder) fixLists() {
	for _, lc := range listColumns {
		rows := b.rows[lc.table]
		next := uint32(len(b.rows[lc.target])) + 1
		for i := len(rows) - 1; i >= 0; i-- {
			if rows[i][lc.col] == 0 {
				rows[i][lc.col] = next
			}
			next = rows[i][lc.col]
		}
	}
}

func (b *Builder) sortedMask() uint64 {
	var mask uint64
	for t, col := range sortKeys {
		rows := b.rows[t]
		sorted := true
		for i := 1; i < len(rows); i++ {
			if rows[i][col] < rows[i-1][col] {
				sorted = false
				break
			}
		}
		if sorted {
			mask |= 1 << uint(t)
		}
	}
	return mask
}

// Encode writes the metadata root.
func (b *Builder) Encode() ([]byte, error) {
	if b.err != nil {
		return nil, b.err
	}
	b.fixLists()

	l := layout{
		wideString: len(b.strings.buf) > 0xFFFF,
		wideGUID:   len(b.guids)/16 > 0xFFFF,
		wideBlob:   len(b.blobs.buf) > 0xFFFF,
	}
	var valid uint64
	for t := range b.rows {
		l.rows[t] = uint32(len(b.rows[t]))
		if l.rows[t] > 0 {
			valid |= 1 << uint(t)
		}
	}
	var heapSizes byte
	if l.wideString {
		heapSizes |= heapWideStrings
	}
	if l.wideGUID {
		heapSizes |= heapWideGUID
	}
	if l.wideBlob {
		heapSizes |= heapWideBlob
	}

	tw := binary.NewWriter()
	tw.WriteU32(0)
	tw.Byte(2)
	tw.Byte(0)
	tw.Byte(heapSizes)
	tw.Byte(1)
	tw.WriteU64(valid)
	tw.WriteU64(b.sortedMask())
	for t := range b.rows {
		if l.rows[t] > 0 {
			tw.WriteU32(l.rows[t])
		}
	}
	for t, rows := range b.rows {
		cols := schemas[t]
		for _, row := range rows {
			for i, c := range cols {
				tw.WriteIndex(row[i], l.columnWide(c))
			}
		}
	}
	tw.Align(4)

	streams := []struct {
		name string
		data []byte
	}{
		{"#~", tw.Bytes()},
		{"#Strings", b.strings.buf},
		{"#US", b.us.buf},
		{"#GUID", b.guids},
		{"#Blob", b.blobs.buf},
	}

	version := []byte(b.Version)
	vlen := (len(version) + 1 + 3) &^ 3

	headerSize := 16 + vlen + 4
	for _, s := range streams {
		headerSize += 8 + (len(s.name)+1+3)&^3
	}

	w := binary.NewWriter()
	w.WriteU32(MetadataSignature)
	w.WriteU16(1)
	w.WriteU16(1)
	w.WriteU32(0)
	w.WriteU32(uint32(vlen))
	w.WriteBytes(version)
	for i := len(version); i < vlen; i++ {
		w.Byte(0)
	}
	w.WriteU16(0)
	w.WriteU16(uint16(len(streams)))

	off := headerSize
	for _, s := range streams {
		size := (len(s.data) + 3) &^ 3
		w.WriteU32(uint32(off))
		w.WriteU32(uint32(size))
		w.WriteCString(s.name)
		w.Align(4)
		off += size
	}
	for _, s := range streams {
		w.WriteBytes(s.data)
		w.Align(4)
	}
	return w.Bytes(), nil
}

// Build encodes the metadata root and parses it back.
func (b *Builder) Build() (*Metadata, error) {
	root, err := b.Encode()
	if err != nil {
		return nil, err
	}
	return ParseMetadata(root)
}

// BuildImage encodes a PE image and parses it back.
func (b *Builder) BuildImage() (*Image, error) {
	data, err := b.EncodePE()
	if err != nil {
		return nil, err
	}
	return ParsePE(data)
}

// EncodePE writes a PE32 DLL with a single .text section.
func (b *Builder) EncodePE() ([]byte, error) {
	root, err := b.Encode()
	if err != nil {
		return nil, err
	}

	text := binary.NewWriter()
	text.WriteBytes(make([]byte, cliHeaderSize))
	text.WriteBytes(b.data.Bytes())
	text.Align(4)
	metaRVA := uint32(textRVA + text.Len())
	text.WriteBytes(root)
	text.Align(8)
	var resRVA, resSize uint32
	if b.resources.Len() > 0 {
		resRVA = uint32(textRVA + text.Len())
		resSize = uint32(b.resources.Len())
		text.WriteBytes(b.resources.Bytes())
	}

	entry := uint32(0)
	if b.EntryPoint != NoToken {
		entry = uint32(b.EntryPoint)
	}
	text.PutU32At(0, cliHeaderSize)
	putU16(text.Bytes()[4:], 2)
	putU16(text.Bytes()[6:], 5)
	text.PutU32At(8, metaRVA)
	text.PutU32At(12, uint32(len(root)))
	text.PutU32At(16, CLIFlagILOnly)
	text.PutU32At(20, entry)
	text.PutU32At(24, resRVA)
	text.PutU32At(28, resSize)

	virtualSize := uint32(text.Len())
	rawSize := (virtualSize + fileAlignment - 1) &^ (fileAlignment - 1)

	var out bytes.Buffer
	dos := make([]byte, peHeaderOffset)
	dos[0], dos[1] = 'M', 'Z'
	encbin.LittleEndian.PutUint32(dos[0x3C:], peHeaderOffset)
	out.Write(dos)
	out.WriteString("PE\x00\x00")

	fh := pe.FileHeader{
		Machine:              pe.IMAGE_FILE_MACHINE_I386,
		NumberOfSections:     1,
		SizeOfOptionalHeader: 0xE0,
		Characteristics: pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_32BIT_MACHINE |
			pe.IMAGE_FILE_DLL,
	}
	oh := pe.OptionalHeader32{
		Magic:                       0x10B,
		MajorLinkerVersion:          8,
		SizeOfCode:                  rawSize,
		BaseOfCode:                  textRVA,
		ImageBase:                   imageBase,
		SectionAlignment:            sectionAlignment,
		FileAlignment:               fileAlignment,
		MajorOperatingSystemVersion: 4,
		MajorSubsystemVersion:       4,
		SizeOfImage:                 textRVA + (virtualSize+sectionAlignment-1)&^(sectionAlignment-1),
		SizeOfHeaders:               fileAlignment,
		Subsystem:                   pe.IMAGE_SUBSYSTEM_WINDOWS_CUI,
		DllCharacteristics: pe.IMAGE_DLLCHARACTERISTICS_DYNAMIC_BASE |
			pe.IMAGE_DLLCHARACTERISTICS_NX_COMPAT | pe.IMAGE_DLLCHARACTERISTICS_NO_SEH,
		SizeOfStackReserve:  0x100000,
		SizeOfStackCommit:   0x1000,
		SizeOfHeapReserve:   0x100000,
		SizeOfHeapCommit:    0x1000,
		NumberOfRvaAndSizes: 16,
	}
	oh.DataDirectory[cliHeaderDirectory] = pe.DataDirectory{VirtualAddress: textRVA, Size: cliHeaderSize}

	sh := pe.SectionHeader32{
		VirtualSize:      virtualSize,
		VirtualAddress:   textRVA,
		SizeOfRawData:    rawSize,
		PointerToRawData: fileAlignment,
		Characteristics: pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE |
			pe.IMAGE_SCN_MEM_READ,
	}
	copy(sh.Name[:], ".text")

	for _, v := range []any{&fh, &oh, &sh} {
		if err := encbin.Write(&out, encbin.LittleEndian, v); err != nil {
			return nil, errors.Wrap(errors.PhaseEncode, errors.KindInvalidData, err, "write PE headers")
		}
	}
	out.Write(make([]byte, fileAlignment-out.Len()))
	out.Write(text.Bytes())
	out.Write(make([]byte, int(rawSize)-text.Len()))
	return out.Bytes(), nil
}

func putU16(b []byte, v uint16) {
	encbin.LittleEndian.PutUint16(b, v)
}
