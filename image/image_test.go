package image_test

import (
	"bytes"
	stderrors "errors"
	"testing"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
)

func buildSample(t *testing.T) (*image.Builder, map[string]image.Token) {
	t.Helper()
	b := image.NewBuilder()
	toks := map[string]image.Token{}

	b.AddModule(image.ModuleRow{Name: "Sample.dll", Mvid: image.GUID{1, 2, 3}})
	toks["asm"] = b.AddAssembly(image.AssemblyRow{Name: "Sample", MajorVersion: 1, MinorVersion: 2})
	toks["corlib"] = b.AddAssemblyRef(image.AssemblyRefRow{
		Name:             "mscorlib",
		MajorVersion:     4,
		PublicKeyOrToken: []byte{0xb7, 0x7a, 0x5c, 0x56, 0x19, 0x34, 0xe0, 0x89},
	})
	toks["object"] = b.AddTypeRef(image.TypeRefRow{
		ResolutionScope: toks["corlib"],
		Namespace:       "System",
		Name:            "Object",
	})

	b.AddTypeDef(image.TypeDefRow{Name: "<Module>"})
	toks["widget"] = b.AddTypeDef(image.TypeDefRow{
		Namespace:  "Demo",
		Name:       "Widget",
		Flags:      0x00100001,
		Extends:    toks["object"],
		FieldList:  b.NextRow(image.TableField),
		MethodList: b.NextRow(image.TableMethodDef),
	})
	toks["value"] = b.AddField(image.FieldRow{Name: "Value", Flags: 0x0006, Signature: []byte{0x06, 0x08}})
	toks["value2"] = b.AddField(image.FieldRow{Name: "value", Flags: 0x0001, Signature: []byte{0x06, 0x0e}})
	toks["ctor"] = b.AddMethodDef(image.MethodDefRow{
		Name:      ".ctor",
		Flags:     0x1886,
		Signature: []byte{0x20, 0x00, 0x01},
		ParamList: b.NextRow(image.TableParam),
	})
	toks["inner"] = b.AddTypeDef(image.TypeDefRow{Name: "Inner", Flags: 0x00100002})
	b.AddNestedClass(image.NestedClassRow{NestedClass: toks["inner"].Row(), EnclosingClass: toks["widget"].Row()})
	toks["gp"] = b.AddGenericParam(image.GenericParamRow{Owner: toks["widget"], Name: "T"})
	b.AddGenericParamConstraint(image.GenericParamConstraintRow{Owner: toks["gp"].Row(), Constraint: toks["object"]})
	toks["attrCtor"] = b.AddMemberRef(image.MemberRefRow{
		Parent:    toks["object"],
		Name:      ".ctor",
		Signature: []byte{0x20, 0x00, 0x01},
	})
	b.AddCustomAttribute(image.CustomAttributeRow{
		Parent: toks["widget"],
		Type:   toks["attrCtor"],
		Value:  []byte{0x01, 0x00, 0x00, 0x00},
	})
	b.AddConstant(image.ConstantRow{Type: 0x08, Parent: toks["value"], Value: []byte{42, 0, 0, 0}})
	return b, toks
}

func TestBuilderRoundTrip(t *testing.T) {
	b, toks := buildSample(t)
	md, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if got := md.RowCount(image.TableTypeDef); got != 3 {
		t.Errorf("TypeDef rows = %d, want 3", got)
	}
	if got := md.Module(1).Name; got != "Sample.dll" {
		t.Errorf("module name = %q", got)
	}
	if got := md.Module(1).Mvid; got != (image.GUID{1, 2, 3}) {
		t.Errorf("mvid = %v", got)
	}

	w := md.TypeDef(toks["widget"].Row())
	if w.Namespace != "Demo" || w.Name != "Widget" || w.Flags != 0x00100001 {
		t.Errorf("widget row = %+v", w)
	}
	if w.Extends != toks["object"] {
		t.Errorf("Extends = %v, want %v", w.Extends, toks["object"])
	}

	fields := md.TypeFields(toks["widget"].Row())
	if len(fields) != 2 || fields[0] != 1 || fields[1] != 2 {
		t.Errorf("TypeFields = %v, want [1 2]", fields)
	}
	if got := md.TypeFields(toks["inner"].Row()); len(got) != 0 {
		t.Errorf("inner fields = %v, want none", got)
	}
	if got := md.TypeMethods(toks["widget"].Row()); len(got) != 1 {
		t.Errorf("TypeMethods = %v", got)
	}
	if got := md.TypeFields(1); len(got) != 0 {
		t.Errorf("<Module> fields = %v", got)
	}

	f := md.Field(fields[0])
	if f.Name != "Value" || !bytes.Equal(f.Signature, []byte{0x06, 0x08}) {
		t.Errorf("field = %+v", f)
	}

	ref := md.TypeRef(toks["object"].Row())
	if ref.ResolutionScope != toks["corlib"] || ref.Name != "Object" {
		t.Errorf("typeref = %+v", ref)
	}
	ar := md.AssemblyRef(1)
	if ar.Name != "mscorlib" || ar.MajorVersion != 4 || len(ar.PublicKeyOrToken) != 8 {
		t.Errorf("assemblyref = %+v", ar)
	}
}

func TestOwnerLookups(t *testing.T) {
	b, toks := buildSample(t)
	md, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}

	enc, ok := md.EnclosingClassOf(toks["inner"].Row())
	if !ok || enc != toks["widget"].Row() {
		t.Errorf("EnclosingClassOf = %d, %v", enc, ok)
	}
	if _, ok := md.EnclosingClassOf(toks["widget"].Row()); ok {
		t.Error("Widget should not be nested")
	}

	gps := md.GenericParamsOf(toks["widget"])
	if len(gps) != 1 || md.GenericParam(gps[0]).Name != "T" {
		t.Fatalf("GenericParamsOf = %v", gps)
	}
	cs := md.ConstraintsOf(gps[0])
	if len(cs) != 1 || md.GenericParamConstraint(cs[0]).Constraint != toks["object"] {
		t.Errorf("ConstraintsOf = %v", cs)
	}

	cas := md.CustomAttributesOf(toks["widget"])
	if len(cas) != 1 {
		t.Fatalf("CustomAttributesOf = %v", cas)
	}
	ca := md.CustomAttribute(cas[0])
	if ca.Type != toks["attrCtor"] || ca.Parent != toks["widget"] {
		t.Errorf("custom attribute = %+v", ca)
	}

	c, ok := md.ConstantOf(toks["value"])
	if !ok || md.Constant(c).Type != 0x08 {
		t.Errorf("ConstantOf = %d, %v", c, ok)
	}
	if _, ok := md.ConstantOf(toks["value2"]); ok {
		t.Error("second field has no constant")
	}
}

func TestOutOfRangeRows(t *testing.T) {
	b, _ := buildSample(t)
	md, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if row := md.TypeDef(99); row.Name != "" || row.Extends != image.NoToken {
		t.Errorf("out of range TypeDef = %+v", row)
	}
	if md.Valid(image.NewToken(image.TableTypeDef, 99)) {
		t.Error("row 99 should be invalid")
	}
	if !md.Valid(image.NewToken(image.TableTypeDef, 1)) {
		t.Error("row 1 should be valid")
	}
	if md.Valid(image.NoToken) {
		t.Error("NoToken should be invalid")
	}
}

func TestUserStrings(t *testing.T) {
	b := image.NewBuilder()
	b.AddModule(image.ModuleRow{Name: "m"})
	hello := b.AddUserString("hello")
	uni := b.AddUserString("héllo")
	md, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if hello.Table() != image.TableUserString {
		t.Errorf("table = %v", hello.Table())
	}
	for tok, want := range map[image.Token]string{hello: "hello", uni: "héllo"} {
		got, ok := md.UserStrings.Get(tok.Row())
		if !ok || got != want {
			t.Errorf("UserStrings.Get(%v) = %q, %v; want %q", tok, got, ok, want)
		}
	}
}

func TestBuildImage(t *testing.T) {
	b, toks := buildSample(t)
	body := []byte{0x0A, 0x2A} // tiny header, ret
	rva := b.AddMethodBody(body)
	res := b.AddResource([]byte("payload"))
	b.EntryPoint = toks["ctor"]

	img, err := b.BuildImage()
	if err != nil {
		t.Fatalf("BuildImage: %v", err)
	}
	if img.Is64Bit() {
		t.Error("expected PE32")
	}
	if img.CLI.EntryPointToken != uint32(toks["ctor"]) {
		t.Errorf("entry point = %#x", img.CLI.EntryPointToken)
	}
	if img.CLI.Flags&image.CLIFlagILOnly == 0 {
		t.Error("expected IL-only flag")
	}
	if got := img.SliceAtRVA(rva); len(got) < 2 || !bytes.Equal(got[:2], body) {
		t.Errorf("SliceAtRVA = % x", got)
	}
	if img.SliceAtRVA(0x9000000) != nil {
		t.Error("unmapped RVA should yield nil")
	}

	data, err := img.Resource(res)
	if err != nil || string(data) != "payload" {
		t.Errorf("Resource = %q, %v", data, err)
	}
	if _, err := img.Resource(1 << 20); err == nil {
		t.Error("expected out of bounds error")
	}
	if img.Metadata.TypeDef(toks["widget"].Row()).Name != "Widget" {
		t.Error("metadata not reachable through PE")
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		kind errors.Kind
	}{
		{"empty", nil, errors.KindInvalidData},
		{"bad signature", []byte{1, 2, 3, 4, 0, 0, 0, 0}, errors.KindInvalidData},
		{"truncated version", []byte{0x42, 0x53, 0x4A, 0x42, 1, 0, 1, 0, 0, 0, 0, 0, 0xFF, 0, 0, 0}, errors.KindTruncated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := image.ParseMetadata(tt.data)
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("expected *errors.Error, got %v", err)
			}
			if e.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", e.Kind, tt.kind)
			}
		})
	}

	if _, err := image.ParsePE([]byte("not a pe file at all")); err == nil {
		t.Error("expected PE error")
	}
}

func TestBuilderRejectsBadCodedToken(t *testing.T) {
	b := image.NewBuilder()
	b.AddTypeRef(image.TypeRefRow{ResolutionScope: image.NewToken(image.TableField, 1), Name: "X"})
	_, err := b.Encode()
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Phase != errors.PhaseEncode {
		t.Errorf("expected encode error, got %v", err)
	}
}

func TestToken(t *testing.T) {
	tok := image.NewToken(image.TableTypeDef, 1)
	if uint32(tok) != 0x02000001 {
		t.Errorf("token = %#x", uint32(tok))
	}
	if tok.Table() != image.TableTypeDef || tok.Row() != 1 || tok.IsNil() {
		t.Errorf("decomposition wrong: %v %v %v", tok.Table(), tok.Row(), tok.IsNil())
	}
	if !image.NoToken.IsNil() || !image.NewToken(image.TableTypeRef, 0).IsNil() {
		t.Error("nil tokens not reported")
	}
	if image.NoToken.String() != "NoToken" || tok.String() != "0x02000001" {
		t.Errorf("String = %q %q", image.NoToken.String(), tok.String())
	}
	if image.TableGenericParamConstraint.String() != "GenericParamConstraint" {
		t.Errorf("table name = %q", image.TableGenericParamConstraint.String())
	}
}
