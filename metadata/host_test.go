package metadata_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/metadata"
)

func TestTokenRoundTrip(t *testing.T) {
	tables := []image.Table{
		image.TableModule, image.TableTypeRef, image.TableTypeDef, image.TableField,
		image.TableMethodDef, image.TableParam, image.TableMemberRef, image.TableCustomAttribute,
		image.TableStandAloneSig, image.TableProperty, image.TableModuleRef, image.TableTypeSpec,
		image.TableAssembly, image.TableAssemblyRef, image.TableGenericParam, image.TableMethodSpec,
	}
	fixtures := map[string]*fixture{
		"members":    newMemberFixture().fixture,
		"attributes": newAttributeFixture().fixture,
		"bodies":     newBodyFixture(t).fixture,
	}
	for name, f := range fixtures {
		t.Run(name, func(t *testing.T) {
			m := f.load(t, newHost(t))
			for _, tbl := range tables {
				for row := uint32(1); row <= m.Metadata().RowCount(tbl); row++ {
					tok := image.NewToken(tbl, row)
					o := m.ResolveToken(tok)
					require.NotNil(t, o, "token %s", tok)
					assert.Equal(t, tok, o.Token(), "token %s", tok)
					assert.Same(t, m, metadata.ModuleOf(o))
				}
			}
			assert.Nil(t, m.ResolveToken(image.NewToken(image.TableTypeDef, 999)))
		})
	}
}

func TestGenericTokensRoundTrip(t *testing.T) {
	f := newFixture("Demo")
	box := f.class("Demo", "Box`1")
	mapTok := f.AddMethodDef(image.MethodDefRow{Name: "Map", Flags: 0x0016, Signature: methodSig(tVoid)})
	params := append(genericParams(f, box, "T"), genericParams(f, mapTok, "R")...)
	m := f.load(t, newHost(t))

	for _, tok := range params {
		o := m.ResolveToken(tok)
		require.NotNil(t, o)
		assert.Equal(t, tok, o.Token())
	}
}

func TestResolveString(t *testing.T) {
	f := newFixture("Demo")
	hello := f.AddUserString("hello")
	m := f.load(t, newHost(t))

	s, ok := m.ResolveString(hello)
	require.True(t, ok)
	assert.Equal(t, "hello", s)
	_, ok = m.ResolveString(f.tok["assembly"])
	assert.False(t, ok)
}

func TestModuleOfForeignObject(t *testing.T) {
	type foreign struct{ metadata.Object }
	requireMisuse(t, func() { metadata.ModuleOf(foreign{}) })
}

func TestDummies(t *testing.T) {
	for _, o := range []metadata.Object{
		metadata.DummyModule, metadata.DummyAssembly, metadata.DummyNamespace, metadata.DummyType,
		metadata.DummyAlias, metadata.DummyMethod, metadata.DummyField,
	} {
		assert.True(t, metadata.IsDummy(o), "%T", o)
		assert.Equal(t, metadata.NoToken, o.Token(), "%T", o)
		assert.Empty(t, o.CustomAttributes(), "%T", o)
	}

	m := newFixture("Demo").load(t, newHost(t))
	assert.False(t, metadata.IsDummy(m))
	assert.False(t, metadata.IsDummy(m.Assembly()))

	assert.Empty(t, metadata.DummyMethod.Parameters())
	assert.Same(t, metadata.DummyType, metadata.DummyMethod.ContainingTypeDefinition())
	assert.Same(t, metadata.DummyType, metadata.DummyField.Type())
	_, err := metadata.DummyMethod.Body()
	assert.Error(t, err)
}

func TestSentinelKeysDoNotCollide(t *testing.T) {
	f := newFixture("Demo")
	foo := f.class("", "Foo")
	broken := f.AddField(image.FieldRow{Name: "broken", Flags: 0x0006, Signature: []byte{0x06}})
	m := f.load(t, newHost(t))

	fooDef := typeDef(t, m, foo)
	typ := m.ResolveToken(broken).(*metadata.FieldDefinition).Type()
	require.True(t, metadata.IsDummy(typ))
	assert.Equal(t, intern.Dummy, typ.InternedKey())
	assert.NotEqual(t, fooDef.InternedKey(), typ.InternedKey())

	for _, o := range []interface{ InternedKey() intern.Key }{
		metadata.DummyModule, metadata.DummyAssembly, metadata.DummyNamespace,
		metadata.DummyType, metadata.DummyMethod, metadata.DummyField,
	} {
		assert.Equal(t, intern.Dummy, o.InternedKey(), "%T", o)
	}
	for _, k := range []intern.Key{m.InternedKey(), m.Assembly().InternedKey(), fooDef.InternedKey()} {
		assert.NotEqual(t, intern.Dummy, k)
	}
}

func TestLoadImageErrors(t *testing.T) {
	h := newHost(t)
	_, err := h.LoadImage(nil)
	assert.Error(t, err)
	_, err = h.LoadImage(&image.Image{})
	assert.Error(t, err)
	assert.Empty(t, h.Modules())
}

func TestModuleWithoutAssembly(t *testing.T) {
	h := newHost(t)
	f := newModuleFixture("Part.netmodule")
	f.class("Demo", "Piece")
	m := f.load(t, h)

	assert.Same(t, metadata.DummyAssembly, m.Assembly())
	assert.Empty(t, h.Assemblies())
	require.Len(t, h.Modules(), 1)
	assert.Equal(t, "Part.netmodule", m.Name())
	assert.NotEqual(t, m.InternedKey(), newModuleFixture("Other.netmodule").load(t, h).InternedKey())
}

func TestConcurrentFirstAccess(t *testing.T) {
	f := newFixture("Demo")
	var toks []image.Token
	for i := 0; i < 20; i++ {
		tok := f.class(fmt.Sprintf("Demo.N%d", i%4), fmt.Sprintf("Type%d", i))
		f.AddField(image.FieldRow{Name: "value", Flags: 0x0006, Signature: fieldSig(class(tok))})
		f.AddMethodDef(image.MethodDefRow{Name: "Get", Flags: 0x0086, Signature: instanceSig(tString, tI4)})
		toks = append(toks, tok)
	}
	m := f.load(t, newHost(t))

	const workers = 16
	type seen struct {
		def    *metadata.TypeDefinition
		field  *metadata.FieldDefinition
		base   metadata.TypeReference
		ns     metadata.NamespaceDefinition
		name   string
		key    any
		fieldT metadata.TypeReference
	}
	results := make([][]seen, workers)
	var wg sync.WaitGroup
	start := make(chan struct{})
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			out := make([]seen, len(toks))
			for i := range toks {
				// Walk the rows in a different order per worker.
				j := (i*7 + w) % len(toks)
				def := m.ResolveToken(toks[j]).(*metadata.TypeDefinition)
				fields := def.Fields()
				out[j] = seen{
					def:    def,
					field:  fields[0],
					base:   def.BaseClass(),
					ns:     def.ContainingNamespace(),
					name:   def.FullName(),
					key:    def.InternedKey(),
					fieldT: fields[0].Type(),
				}
				def.Methods()[0].Signature()
			}
			results[w] = out
		}(w)
	}
	close(start)
	wg.Wait()

	for w := 1; w < workers; w++ {
		for i := range toks {
			a, b := results[0][i], results[w][i]
			assert.Same(t, a.def, b.def)
			assert.Same(t, a.field, b.field)
			assert.Same(t, a.base, b.base)
			assert.Same(t, a.ns, b.ns)
			assert.Same(t, a.def, b.fieldT)
			assert.Equal(t, a.name, b.name)
			assert.Equal(t, a.key, b.key)
		}
	}
	assert.Equal(t, "Demo.N3.Type7", results[0][7].name)
}

type counter struct {
	metadata.BaseVisitor
	types, fields, methods, params, namespaces, properties int
}

func (c *counter) VisitTypeDefinition(*metadata.TypeDefinition) { c.types++ }
func (c *counter) VisitFieldDefinition(*metadata.FieldDefinition) { c.fields++ }
func (c *counter) VisitMethodDefinition(*metadata.MethodDefinition) { c.methods++ }
func (c *counter) VisitParameterDefinition(*metadata.ParameterDefinition) { c.params++ }
func (c *counter) VisitNestedNamespace(*metadata.NestedNamespace) { c.namespaces++ }
func (c *counter) VisitPropertyDefinition(*metadata.PropertyDefinition) { c.properties++ }

func TestWalk(t *testing.T) {
	f := newMemberFixture()
	m := f.load(t, newHost(t))

	c := &counter{}
	metadata.Walk(m.Assembly(), c)
	assert.Equal(t, 2, c.types)
	assert.Equal(t, 8, c.fields)
	assert.Equal(t, 3, c.methods)
	assert.Equal(t, 2, c.params, "one per MessageBox signature slot")
	assert.Equal(t, 1, c.namespaces)
	assert.Equal(t, 1, c.properties)

	metadata.Walk(nil, c)
}
