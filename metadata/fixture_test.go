package metadata_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

var ecmaToken = []byte{0xb7, 0x7a, 0x5c, 0x56, 0x19, 0x34, 0xe0, 0x89}

var (
	tVoid   signature.Type = signature.Primitive{Kind: signature.ElementVoid}
	tI4     signature.Type = signature.Primitive{Kind: signature.ElementI4}
	tI8     signature.Type = signature.Primitive{Kind: signature.ElementI8}
	tBool   signature.Type = signature.Primitive{Kind: signature.ElementBoolean}
	tString signature.Type = signature.Primitive{Kind: signature.ElementString}
	tObject signature.Type = signature.Primitive{Kind: signature.ElementObject}
)

// fixture builds one module: a Module row, an AssemblyRef to mscorlib and,
// unless built by newModuleFixture, an Assembly row.
type fixture struct {
	*image.Builder
	tok map[string]image.Token
}

func newFixture(name string) *fixture {
	f := newModuleFixture(name + ".dll")
	f.tok["assembly"] = f.AddAssembly(image.AssemblyRow{Name: name, MajorVersion: 1})
	return f
}

// newModuleFixture builds a module without an Assembly row.
func newModuleFixture(file string) *fixture {
	f := &fixture{Builder: image.NewBuilder(), tok: map[string]image.Token{}}
	f.AddModule(image.ModuleRow{Name: file, Mvid: image.GUID{byte(len(file)), 0xC1}})
	f.tok["mscorlib"] = f.AddAssemblyRef(image.AssemblyRefRow{
		Name:             "mscorlib",
		MajorVersion:     4,
		PublicKeyOrToken: ecmaToken,
	})
	return f
}

// typeRef returns the TypeRef row for a mscorlib type, adding it on first use.
func (f *fixture) typeRef(ns, name string) image.Token {
	key := ns + "." + name
	if tok, ok := f.tok[key]; ok {
		return tok
	}
	tok := f.AddTypeRef(image.TypeRefRow{ResolutionScope: f.tok["mscorlib"], Namespace: ns, Name: name})
	f.tok[key] = tok
	return tok
}

// assemblyRef adds a reference to another fixture assembly.
func (f *fixture) assemblyRef(name string) image.Token {
	if tok, ok := f.tok["ref:"+name]; ok {
		return tok
	}
	tok := f.AddAssemblyRef(image.AssemblyRefRow{Name: name, MajorVersion: 1})
	f.tok["ref:"+name] = tok
	return tok
}

// class adds a public class deriving from System.Object whose field and
// method lists start at the next rows.
func (f *fixture) class(ns, name string) image.Token {
	return f.AddTypeDef(image.TypeDefRow{
		Namespace:  ns,
		Name:       name,
		Flags:      uint32(metadata.TypePublic),
		Extends:    f.typeRef("System", "Object"),
		FieldList:  f.NextRow(image.TableField),
		MethodList: f.NextRow(image.TableMethodDef),
	})
}

// nestedClass adds a class nested in enclosing.
func (f *fixture) nestedClass(enclosing image.Token, name string) image.Token {
	tok := f.AddTypeDef(image.TypeDefRow{
		Name:       name,
		Flags:      uint32(metadata.TypeNestedPublic),
		Extends:    f.typeRef("System", "Object"),
		FieldList:  f.NextRow(image.TableField),
		MethodList: f.NextRow(image.TableMethodDef),
	})
	f.AddNestedClass(image.NestedClassRow{NestedClass: tok.Row(), EnclosingClass: enclosing.Row()})
	return tok
}

func (f *fixture) load(t *testing.T, h *metadata.Host) *metadata.Module {
	t.Helper()
	md, err := f.Build()
	require.NoError(t, err)
	m, err := h.LoadImage(image.FromMetadata(md))
	require.NoError(t, err)
	return m
}

// loadPE encodes a full image so that method bodies, field data and
// resources are reachable.
func (f *fixture) loadPE(t *testing.T, h *metadata.Host) *metadata.Module {
	t.Helper()
	img, err := f.BuildImage()
	require.NoError(t, err)
	m, err := h.LoadImage(img)
	require.NoError(t, err)
	return m
}

func newHost(t *testing.T) *metadata.Host {
	t.Helper()
	return metadata.NewHost(metadata.Options{Logger: zaptest.NewLogger(t), Intern: intern.New()})
}

func fieldSig(t signature.Type) []byte { return signature.EncodeField(t) }

func methodSig(ret signature.Type, params ...signature.Type) []byte {
	return signature.EncodeMethod(&signature.MethodSig{CallConv: signature.CallDefault, Return: ret, Params: params, SentinelIndex: -1})
}

func instanceSig(ret signature.Type, params ...signature.Type) []byte {
	return signature.EncodeMethod(&signature.MethodSig{CallConv: signature.CallHasThis, Return: ret, Params: params, SentinelIndex: -1})
}

func class(tok image.Token) signature.Type { return signature.TypeDefOrRef{Token: tok} }
func valueType(tok image.Token) signature.Type { return signature.TypeDefOrRef{Token: tok, ValueType: true} }

func typeDef(t *testing.T, m *metadata.Module, tok image.Token) *metadata.TypeDefinition {
	t.Helper()
	def, ok := m.ResolveToken(tok).(*metadata.TypeDefinition)
	require.True(t, ok, "token %s is not a type definition", tok)
	return def
}

func method(t *testing.T, m *metadata.Module, tok image.Token) *metadata.MethodDefinition {
	t.Helper()
	def, ok := m.ResolveToken(tok).(*metadata.MethodDefinition)
	require.True(t, ok, "token %s is not a method definition", tok)
	return def
}

// requireMisuse runs fn and requires it to panic with a misuse error.
func requireMisuse(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		err, ok := r.(error)
		require.True(t, ok, "expected a panic carrying an error, got %v", r)
		require.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindMisuse}), err.Error())
	}()
	fn()
}
