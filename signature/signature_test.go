package signature_test

import (
	"bytes"
	"reflect"
	"strings"
	"testing"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/signature"
)

var (
	i4     = signature.Primitive{Kind: signature.ElementI4}
	str    = signature.Primitive{Kind: signature.ElementString}
	void   = signature.Primitive{Kind: signature.ElementVoid}
	listTR = image.NewToken(image.TableTypeRef, 3)
)

func TestParseMethod(t *testing.T) {
	tests := []struct {
		name   string
		blob   []byte
		want   *signature.MethodSig
		String string
	}{
		{
			name: "static void(int32, string)",
			blob: []byte{0x00, 0x02, 0x01, 0x08, 0x0E},
			want: &signature.MethodSig{
				Return:        void,
				Params:        []signature.Type{i4, str},
				SentinelIndex: -1,
			},
			String: "void(int32,string)",
		},
		{
			name: "instance generic method",
			blob: []byte{0x30, 0x01, 0x01, 0x1E, 0x00, 0x1D, 0x1E, 0x00},
			want: &signature.MethodSig{
				CallConv:          signature.CallHasThis | signature.CallGeneric,
				GenericParamCount: 1,
				Return:            signature.GenericParam{Index: 0, Method: true},
				Params:            []signature.Type{signature.SZArray{Elem: signature.GenericParam{Method: true}}},
				SentinelIndex:     -1,
			},
			String: "instance !!0<1>(!!0[])",
		},
		{
			name: "vararg call site",
			blob: []byte{0x05, 0x02, 0x01, 0x08, 0x41, 0x0E},
			want: &signature.MethodSig{
				CallConv:      signature.CallVarArg,
				Return:        void,
				Params:        []signature.Type{i4, str},
				SentinelIndex: 1,
			},
			String: "void(int32,...,string)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := signature.ParseMethod(tt.blob)
			if err != nil {
				t.Fatalf("ParseMethod: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v\nwant %#v", got, tt.want)
			}
			if got.String() != tt.String {
				t.Errorf("String = %q, want %q", got.String(), tt.String)
			}
			if enc := signature.EncodeMethod(got); !bytes.Equal(enc, tt.blob) {
				t.Errorf("EncodeMethod = % x, want % x", enc, tt.blob)
			}
		})
	}
}

func TestParseMethodPartial(t *testing.T) {
	// Declares two parameters but only the first is present.
	sig, err := signature.ParseMethod([]byte{0x00, 0x02, 0x01, 0x08})
	if err == nil {
		t.Fatal("expected error for truncated blob")
	}
	if len(sig.Params) != 2 {
		t.Fatalf("Params = %d, want 2", len(sig.Params))
	}
	if sig.Params[0] != i4 {
		t.Errorf("first param = %v, want int32", sig.Params[0])
	}
	if _, ok := sig.Params[1].(signature.Invalid); !ok {
		t.Errorf("second param = %T, want Invalid", sig.Params[1])
	}

	// Field calling convention in a method slot.
	sig, err = signature.ParseMethod([]byte{0x06, 0x08})
	if err == nil || !signature.IsInvalid(sig.Return) {
		t.Errorf("expected invalid return, got %v, %v", sig.Return, err)
	}
}

func TestParseTypeSpec(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
		want signature.Type
	}{
		{
			name: "generic instance",
			blob: []byte{0x15, 0x12, 0x0D, 0x01, 0x08},
			want: signature.GenericInst{
				Generic: signature.TypeDefOrRef{Token: listTR},
				Args:    []signature.Type{i4},
			},
		},
		{
			name: "general array",
			blob: []byte{0x14, 0x08, 0x02, 0x01, 0x03, 0x01, 0x00},
			want: signature.Array{Elem: i4, Rank: 2, Sizes: []uint32{3}, LowerBounds: []int32{0}},
		},
		{
			name: "negative lower bound",
			blob: []byte{0x14, 0x08, 0x01, 0x00, 0x01, 0x7B},
			want: signature.Array{Elem: i4, Rank: 1, LowerBounds: []int32{-3}},
		},
		{
			name: "modreq",
			blob: []byte{0x1F, 0x09, 0x08},
			want: signature.Modified{Required: true, Modifier: image.NewToken(image.TableTypeRef, 2), Elem: i4},
		},
		{
			name: "pointer to valuetype",
			blob: []byte{0x0F, 0x11, 0x04},
			want: signature.Pointer{Elem: signature.TypeDefOrRef{Token: image.NewToken(image.TableTypeDef, 1), ValueType: true}},
		},
		{
			name: "function pointer",
			blob: []byte{0x1B, 0x00, 0x00, 0x01},
			want: signature.FnPtr{Method: &signature.MethodSig{Return: void, Params: []signature.Type{}, SentinelIndex: -1}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := signature.ParseTypeSpec(tt.blob)
			if err != nil {
				t.Fatalf("ParseTypeSpec: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %#v\nwant %#v", got, tt.want)
			}
			if enc := signature.EncodeType(got); !bytes.Equal(enc, tt.blob) {
				t.Errorf("EncodeType = % x, want % x", enc, tt.blob)
			}
		})
	}
}

func TestParseTypeSpecMalformed(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
	}{
		{"empty", nil},
		{"unknown element", []byte{0x99}},
		{"internal", []byte{0x21}},
		{"bad token tag", []byte{0x12, 0x03}},
		{"generic inst of primitive", []byte{0x15, 0x08, 0x01, 0x08}},
		{"zero rank", []byte{0x14, 0x08, 0x00}},
		{"deep nesting", append(bytes.Repeat([]byte{0x1D}, 100), 0x08)},
		{"huge count", []byte{0x15, 0x12, 0x0D, 0xC0, 0xFF, 0xFF, 0xFF}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := signature.ParseTypeSpec(tt.blob)
			if err == nil {
				t.Fatalf("expected error, got %v", got)
			}
			if !signature.IsInvalid(got) {
				t.Errorf("expected an Invalid node in %v", got)
			}
		})
	}
}

func TestParseField(t *testing.T) {
	sig, err := signature.ParseField([]byte{0x06, 0x12, 0x09})
	if err != nil {
		t.Fatal(err)
	}
	want := signature.TypeDefOrRef{Token: image.NewToken(image.TableTypeRef, 2)}
	if sig.Type != want {
		t.Errorf("Type = %v, want %v", sig.Type, want)
	}
	if _, err := signature.ParseField([]byte{0x00, 0x08}); err == nil {
		t.Error("expected error for method blob")
	}
	if got := signature.EncodeField(want); !bytes.Equal(got, []byte{0x06, 0x12, 0x09}) {
		t.Errorf("EncodeField = % x", got)
	}
}

func TestParseProperty(t *testing.T) {
	sig, err := signature.ParseProperty([]byte{0x28, 0x01, 0x0E, 0x08})
	if err != nil {
		t.Fatal(err)
	}
	if !sig.HasThis || sig.Type != str || len(sig.Params) != 1 || sig.Params[0] != i4 {
		t.Errorf("got %+v", sig)
	}
	if got := signature.EncodeProperty(sig); !bytes.Equal(got, []byte{0x28, 0x01, 0x0E, 0x08}) {
		t.Errorf("EncodeProperty = % x", got)
	}
}

func TestParseLocals(t *testing.T) {
	sig, err := signature.ParseLocals([]byte{0x07, 0x03, 0x08, 0x45, 0x10, 0x0E, 0x16})
	if err != nil {
		t.Fatal(err)
	}
	want := []signature.Type{
		i4,
		signature.Pinned{Elem: signature.ByRef{Elem: str}},
		signature.Primitive{Kind: signature.ElementTypedByRef},
	}
	if !reflect.DeepEqual(sig.Locals, want) {
		t.Errorf("Locals = %v, want %v", sig.Locals, want)
	}
	if got := signature.Unwrap(sig.Locals[1]); got != (signature.ByRef{Elem: str}) {
		t.Errorf("Unwrap = %v", got)
	}
}

func TestParseMethodSpec(t *testing.T) {
	args, err := signature.ParseMethodSpec([]byte{0x0A, 0x02, 0x08, 0x0E})
	if err != nil {
		t.Fatal(err)
	}
	if len(args) != 2 || args[0] != i4 || args[1] != str {
		t.Errorf("args = %v", args)
	}
	if got := signature.EncodeMethodSpec(args); !bytes.Equal(got, []byte{0x0A, 0x02, 0x08, 0x0E}) {
		t.Errorf("EncodeMethodSpec = % x", got)
	}
	if _, err := signature.ParseMethodSpec([]byte{0x00}); err == nil {
		t.Error("expected error for wrong prefix")
	}
}

func TestTypeStrings(t *testing.T) {
	tests := []struct {
		typ  signature.Type
		want string
	}{
		{signature.SZArray{Elem: str}, "string[]"},
		{signature.ByRef{Elem: i4}, "int32&"},
		{signature.GenericParam{Index: 2}, "!2"},
		{signature.Array{Elem: i4, Rank: 2, Sizes: []uint32{3}, LowerBounds: []int32{0}}, "int32[0...2,]"},
		{signature.Modified{Elem: i4, Modifier: image.NewToken(image.TableTypeRef, 2)}, "int32 modopt(0x01000002)"},
	}
	for _, tt := range tests {
		if got := tt.typ.String(); got != tt.want {
			t.Errorf("String = %q, want %q", got, tt.want)
		}
	}
	if !strings.HasPrefix(signature.Invalid{Reason: "x"}.String(), "<invalid") {
		t.Error("Invalid string")
	}
}

func TestMarshal(t *testing.T) {
	tests := []struct {
		name string
		blob []byte
		want signature.MarshalDescriptor
	}{
		{
			name: "simple",
			blob: []byte{0x14},
			want: signature.MarshalDescriptor{Native: signature.NativeLPStr, ParamIndex: -1, NumElements: -1, IIDParamIndex: -1},
		},
		{
			name: "array with size param",
			blob: []byte{0x2A, 0x07, 0x01, 0x02},
			want: signature.MarshalDescriptor{
				Native: signature.NativeArray, ElementType: signature.NativeI4,
				ParamIndex: 1, NumElements: 2, IIDParamIndex: -1,
			},
		},
		{
			name: "fixed string",
			blob: []byte{0x17, 0x20},
			want: signature.MarshalDescriptor{Native: signature.NativeFixedSysString, Size: 32, ParamIndex: -1, NumElements: -1, IIDParamIndex: -1},
		},
		{
			name: "custom marshaler",
			blob: []byte{0x2C, 0x00, 0x00, 0x03, 'F', 'o', 'o', 0x01, 'c'},
			want: signature.MarshalDescriptor{
				Native: signature.NativeCustomMarshaler, CustomMarshaler: "Foo", Cookie: "c",
				ParamIndex: -1, NumElements: -1, IIDParamIndex: -1,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := signature.ParseMarshal(tt.blob)
			if err != nil {
				t.Fatal(err)
			}
			if *got != tt.want {
				t.Errorf("got %+v\nwant %+v", *got, tt.want)
			}
			if enc := signature.EncodeMarshal(got); !bytes.Equal(enc, tt.blob) {
				t.Errorf("EncodeMarshal = % x, want % x", enc, tt.blob)
			}
		})
	}

	if _, err := signature.ParseMarshal([]byte{0x2C, 0x05}); err == nil {
		t.Error("expected error for truncated custom marshaler")
	}
}

func TestTypeDefOrRefEncoding(t *testing.T) {
	for _, tok := range []image.Token{
		image.NewToken(image.TableTypeDef, 7),
		image.NewToken(image.TableTypeRef, 0x1234),
		image.NewToken(image.TableTypeSpec, 1),
	} {
		got, ok := signature.DecodeTypeDefOrRef(signature.EncodeTypeDefOrRef(tok))
		if !ok || got != tok {
			t.Errorf("round trip %v = %v, %v", tok, got, ok)
		}
	}
	if _, ok := signature.DecodeTypeDefOrRef(0x03); ok {
		t.Error("tag 3 is invalid")
	}
}
