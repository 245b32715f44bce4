package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

func genericParams(f *fixture, owner image.Token, names ...string) []image.Token {
	out := make([]image.Token, len(names))
	for i, n := range names {
		out[i] = f.AddGenericParam(image.GenericParamRow{Owner: owner, Number: uint16(i), Name: n})
	}
	return out
}

func TestNestedGenericInheritsEnclosingParameters(t *testing.T) {
	f := newFixture("Demo")
	outer := f.class("Demo", "Outer`2")
	inner := f.nestedClass(outer, "Inner`1")
	f.AddField(image.FieldRow{Name: "item", Flags: 0x0001, Signature: fieldSig(signature.GenericParam{Index: 2})})
	f.AddField(image.FieldRow{Name: "key", Flags: 0x0001, Signature: fieldSig(signature.GenericParam{Index: 0})})
	outerParams := genericParams(f, outer, "T", "U")
	innerParams := genericParams(f, inner, "T", "U", "V")
	m := f.load(t, newHost(t))

	outerDef := typeDef(t, m, outer)
	innerDef := typeDef(t, m, inner)

	assert.Equal(t, 2, outerDef.GenericParameterCount())
	assert.Equal(t, 1, innerDef.GenericParameterCount())
	assert.Equal(t, 2, innerDef.InheritedGenericParameterCount())
	assert.True(t, innerDef.IsGeneric())

	for i := 0; i < 3; i++ {
		p, ok := innerDef.GetGenericTypeParameterFromOrdinal(i)
		require.True(t, ok, "ordinal %d", i)
		assert.Equal(t, uint32(i), p.Index())
	}
	_, ok := innerDef.GetGenericTypeParameterFromOrdinal(3)
	assert.False(t, ok)

	for i := 0; i < 2; i++ {
		p, _ := innerDef.GetGenericTypeParameterFromOrdinal(i)
		assert.Same(t, outerDef.GenericParameters()[i], p)
		assert.Same(t, outerDef, p.DefiningType())
	}
	own := innerDef.GenericParameters()[0]
	assert.Equal(t, "V", own.Name())
	assert.Same(t, innerDef, own.DefiningType())

	// Field types bind ordinals through the same mapping.
	fields := innerDef.Fields()
	require.Len(t, fields, 2)
	assert.Same(t, own, fields[0].Type())
	assert.Same(t, outerDef.GenericParameters()[0], fields[1].Type())

	// Every row round-trips; restated rows point at the enclosing parameter.
	assert.Same(t, own, m.ResolveToken(innerParams[2]))
	assert.Nil(t, own.Inherits())
	assert.Same(t, outerDef.GenericParameters()[1], m.ResolveToken(outerParams[1]))
	for i, tok := range innerParams[:2] {
		p, ok := m.ResolveToken(tok).(*metadata.GenericTypeParameter)
		require.True(t, ok)
		assert.Equal(t, tok, p.Token())
		assert.Same(t, innerDef, p.DefiningType())
		assert.Equal(t, uint32(i), p.Index())
		assert.Same(t, outerDef.GenericParameters()[i], p.Inherits())
		assert.Same(t, p, m.ResolveToken(tok), "cached per row")
		ordinal, _ := innerDef.GetGenericTypeParameterFromOrdinal(i)
		assert.Same(t, p.Inherits(), ordinal)
	}
}

func TestNestedGenericMismatchKeepsOwnParameters(t *testing.T) {
	f := newFixture("Demo")
	outer := f.class("Demo", "Outer`2")
	flagged := f.nestedClass(outer, "Flagged`2")
	constrained := f.nestedClass(outer, "Constrained`3")
	genericParams(f, outer, "T", "U")
	f.AddGenericParam(image.GenericParamRow{Owner: flagged, Number: 0, Name: "T", Flags: uint16(metadata.GenericCovariant)})
	f.AddGenericParam(image.GenericParamRow{Owner: flagged, Number: 1, Name: "U"})
	first := genericParams(f, constrained, "T", "U", "W")[0]
	f.AddGenericParamConstraint(image.GenericParamConstraintRow{Owner: first.Row(), Constraint: f.typeRef("System", "IDisposable")})
	m := f.load(t, newHost(t))

	flaggedDef := typeDef(t, m, flagged)
	assert.Equal(t, 2, flaggedDef.GenericParameterCount())
	assert.Equal(t, 0, flaggedDef.InheritedGenericParameterCount())
	p, ok := flaggedDef.GetGenericTypeParameterFromOrdinal(0)
	require.True(t, ok)
	assert.Same(t, flaggedDef, p.DefiningType())
	assert.Equal(t, metadata.GenericCovariant, p.Variance())

	constrainedDef := typeDef(t, m, constrained)
	assert.Equal(t, 3, constrainedDef.GenericParameterCount())
	c := constrainedDef.GenericParameters()[0].Constraints()
	require.Len(t, c, 1)
	assert.Equal(t, "System.IDisposable", c[0].FullName())
}

func TestGenericMethodAndInstances(t *testing.T) {
	f := newFixture("Demo")
	box := f.class("Demo", "Box`1")
	spec := f.AddTypeSpec(image.TypeSpecRow{Signature: signature.EncodeType(signature.GenericInst{
		Generic: signature.TypeDefOrRef{Token: box},
		Args:    []signature.Type{tI4},
	})})
	mapTok := f.AddMethodDef(image.MethodDefRow{
		Name:  "Map",
		Flags: 0x0016,
		Signature: signature.EncodeMethod(&signature.MethodSig{
			CallConv:          signature.CallGeneric,
			GenericParamCount: 1,
			Return:            signature.SZArray{Elem: signature.GenericParam{Index: 0, Method: true}},
			Params:            []signature.Type{signature.GenericParam{Index: 0}},
			SentinelIndex:     -1,
		}),
	})
	genericParams(f, box, "T")
	genericParams(f, mapTok, "R")
	instance := f.AddMethodSpec(image.MethodSpecRow{Method: mapTok, Instantiation: signature.EncodeMethodSpec([]signature.Type{tString})})
	m := f.load(t, newHost(t))

	boxDef := typeDef(t, m, box)
	mapDef := method(t, m, mapTok)
	require.True(t, mapDef.IsGeneric())
	r := mapDef.GenericParameters()[0]
	assert.Equal(t, "R", r.Name())
	assert.Same(t, mapDef, r.DefiningMethod())

	ret, ok := mapDef.ReturnType().(*metadata.VectorTypeReference)
	require.True(t, ok)
	assert.Same(t, r, ret.ElementType())
	assert.Same(t, boxDef.GenericParameters()[0], mapDef.Parameters()[0].Type())

	ts, ok := m.ResolveToken(spec).(*metadata.TypeSpecification)
	require.True(t, ok)
	inst, ok := ts.Type().(*metadata.GenericTypeInstanceReference)
	require.True(t, ok)
	assert.Equal(t, "Demo.Box`1<System.Int32>", inst.FullName())
	assert.Same(t, boxDef, inst.GenericTypeDefinition())
	assert.Equal(t, m.Instantiate(boxDef, m.PrimitiveType(metadata.TypeCodeInt32)).InternedKey(), inst.InternedKey())

	mi, ok := m.ResolveToken(instance).(*metadata.GenericMethodInstanceReference)
	require.True(t, ok)
	assert.Same(t, mapDef, mi.ResolvedMethod())
	args := mi.GenericArguments()
	require.Len(t, args, 1)
	assert.Equal(t, metadata.TypeCodeString, args[0].TypeCode())
}

func TestInstanceTypes(t *testing.T) {
	f := newFixture("Demo")
	pair := f.class("Demo", "Pair`2")
	plain := f.class("Demo", "Plain")
	swap := f.AddMethodDef(image.MethodDefRow{
		Name:  "Swap",
		Flags: 0x0016,
		Signature: signature.EncodeMethod(&signature.MethodSig{
			CallConv:          signature.CallGeneric,
			GenericParamCount: 1,
			Return:            signature.GenericParam{Index: 0, Method: true},
			SentinelIndex:     -1,
		}),
	})
	run := f.AddMethodDef(image.MethodDefRow{Name: "Run", Flags: 0x0016, Signature: methodSig(tVoid)})
	genericParams(f, pair, "K", "V")
	genericParams(f, swap, "S")
	m := f.load(t, newHost(t))

	pairDef := typeDef(t, m, pair)
	inst, ok := pairDef.InstanceType().(*metadata.GenericTypeInstanceReference)
	require.True(t, ok)
	assert.Same(t, inst, pairDef.InstanceType(), "built once")
	assert.Equal(t, "Demo.Pair`2<K,V>", inst.FullName())
	require.Len(t, inst.GenericArguments(), 2)
	assert.Same(t, pairDef.GenericParameters()[1], inst.GenericArguments()[1])
	assert.Equal(t, m.Instantiate(pairDef, inst.GenericArguments()...).InternedKey(), inst.InternedKey())
	assert.NotEqual(t, pairDef.InternedKey(), inst.InternedKey())

	plainDef := typeDef(t, m, plain)
	assert.Same(t, plainDef, plainDef.InstanceType())

	swapDef := method(t, m, swap)
	mi, ok := swapDef.InstanceMethod().(*metadata.GenericMethodInstanceReference)
	require.True(t, ok)
	assert.Same(t, mi, swapDef.InstanceMethod())
	assert.Equal(t, metadata.NoToken, mi.Token())
	assert.Same(t, swapDef, mi.ResolvedMethod())
	require.Len(t, mi.GenericArguments(), 1)
	assert.Same(t, swapDef.GenericParameters()[0], mi.GenericArguments()[0])
	assert.Empty(t, mi.CustomAttributes())

	runDef := method(t, m, run)
	assert.Same(t, runDef, runDef.InstanceMethod())
}
