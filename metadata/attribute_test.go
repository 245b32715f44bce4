package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/internal/binary"
	"github.com/wippyai/clrmeta/metadata"
	"github.com/wippyai/clrmeta/signature"
)

type attributeFixture struct {
	*fixture
	color, info, target, infoCtor image.Token
	obsolete, usage, broken      image.Token
}

func newAttributeFixture() *attributeFixture {
	f := &attributeFixture{fixture: newFixture("Demo")}
	tI2 := signature.Primitive{Kind: signature.ElementI2}

	f.color = f.AddTypeDef(image.TypeDefRow{
		Namespace:  "Demo",
		Name:       "Color",
		Flags:      uint32(metadata.TypePublic) | 0x100,
		Extends:    f.typeRef("System", "Enum"),
		FieldList:  f.NextRow(image.TableField),
		MethodList: f.NextRow(image.TableMethodDef),
	})
	f.AddField(image.FieldRow{Name: "value__", Flags: 0x0606, Signature: fieldSig(tI2)})
	f.AddField(image.FieldRow{Name: "Red", Flags: 0x8056, Signature: fieldSig(valueType(f.color))})

	f.info = f.AddTypeDef(image.TypeDefRow{
		Namespace:  "Demo",
		Name:       "InfoAttribute",
		Flags:      uint32(metadata.TypePublic),
		Extends:    f.typeRef("System", "Attribute"),
		FieldList:  f.NextRow(image.TableField),
		MethodList: f.NextRow(image.TableMethodDef),
	})
	f.AddField(image.FieldRow{Name: "Tag", Flags: 0x0006, Signature: fieldSig(tString)})
	f.infoCtor = f.AddMethodDef(image.MethodDefRow{
		Name:  ".ctor",
		Flags: 0x1886,
		Signature: instanceSig(tVoid,
			tString,
			valueType(f.color),
			class(f.typeRef("System", "Type")),
			signature.SZArray{Elem: tI4},
			tObject,
		),
		ParamList: f.NextRow(image.TableParam),
	})

	f.target = f.class("Demo", "Target")

	w := binary.NewWriter()
	w.WriteU16(1)
	w.WriteSerString("hello", false)
	w.WriteU16(3)
	w.WriteSerString("Demo.Target", false)
	w.WriteU32(2)
	w.WriteU32(7)
	w.WriteU32(9)
	w.Byte(byte(signature.ElementI4))
	w.WriteU32(5)
	w.WriteU16(2)
	w.Byte(byte(signature.ElementField))
	w.Byte(byte(signature.ElementString))
	w.WriteSerString("Tag", false)
	w.WriteSerString("x", false)
	w.Byte(byte(signature.ElementProperty))
	w.Byte(byte(signature.ElementEnum))
	w.WriteSerString("Demo.Color", false)
	w.WriteSerString("Shade", false)
	w.WriteU16(2)
	f.AddCustomAttribute(image.CustomAttributeRow{Parent: f.target, Type: f.infoCtor, Value: w.Bytes()})

	obsoleteCtor := f.AddMemberRef(image.MemberRefRow{
		Parent:    f.typeRef("System", "ObsoleteAttribute"),
		Name:      ".ctor",
		Signature: instanceSig(tVoid, tString),
	})
	f.obsolete = f.AddCustomAttribute(image.CustomAttributeRow{Parent: f.info, Type: obsoleteCtor, Value: []byte{1, 0, 0xFF, 0, 0}})

	usageCtor := f.AddMemberRef(image.MemberRefRow{
		Parent:    f.typeRef("System", "AttributeUsageAttribute"),
		Name:      ".ctor",
		Signature: instanceSig(tVoid, valueType(f.typeRef("System", "AttributeTargets"))),
	})
	f.usage = f.AddCustomAttribute(image.CustomAttributeRow{Parent: f.color, Type: usageCtor, Value: []byte{1, 0, 4, 0, 0, 0, 0, 0}})
	f.broken = f.AddCustomAttribute(image.CustomAttributeRow{Parent: f.infoCtor, Type: obsoleteCtor, Value: []byte{2, 0, 0xFF, 0, 0}})
	return f
}

func TestCustomAttributeArguments(t *testing.T) {
	f := newAttributeFixture()
	m := f.load(t, newHost(t))

	target := typeDef(t, m, f.target)
	attrs := target.CustomAttributes()
	require.Len(t, attrs, 1)
	a := attrs[0]
	require.NoError(t, a.DecodeError())
	assert.Equal(t, "Demo.InfoAttribute", a.String())
	assert.Same(t, typeDef(t, m, f.info), a.Type())
	assert.Same(t, method(t, m, f.infoCtor), a.Constructor())
	assert.Same(t, target, a.Parent())

	fixed := a.FixedArguments()
	require.Len(t, fixed, 5)
	assert.Equal(t, "hello", fixed[0].Value)
	assert.Equal(t, int16(3), fixed[1].Value, "enum values take the underlying type")

	typ, ok := fixed[2].Value.(metadata.TypeReference)
	require.True(t, ok)
	assert.Equal(t, "Demo.Target", typ.FullName())
	assert.Same(t, target, typ.(metadata.NamedTypeReference).ResolvedType())

	elems, ok := fixed[3].Value.([]metadata.AttributeArgument)
	require.True(t, ok)
	require.Len(t, elems, 2)
	assert.Equal(t, int32(7), elems[0].Value)
	assert.Equal(t, int32(9), elems[1].Value)

	boxed, ok := fixed[4].Value.(metadata.AttributeArgument)
	require.True(t, ok)
	assert.Equal(t, metadata.TypeCodeInt32, boxed.Type.TypeCode())
	assert.Equal(t, int32(5), boxed.Value)

	named := a.NamedArguments()
	require.Len(t, named, 2)
	assert.Equal(t, "Tag", named[0].Name)
	assert.True(t, named[0].IsField)
	assert.Equal(t, "x", named[0].Value)
	assert.Equal(t, "Shade", named[1].Name)
	assert.False(t, named[1].IsField)
	assert.Equal(t, int16(2), named[1].Value)
	assert.Equal(t, "Demo.Color", named[1].Type.FullName())
}

func TestCustomAttributeEdgeCases(t *testing.T) {
	f := newAttributeFixture()
	m := f.load(t, newHost(t))

	obsolete, ok := m.ResolveToken(f.obsolete).(*metadata.CustomAttribute)
	require.True(t, ok)
	require.NoError(t, obsolete.DecodeError())
	assert.Equal(t, "System.ObsoleteAttribute", obsolete.String())
	require.Len(t, obsolete.FixedArguments(), 1)
	assert.Nil(t, obsolete.FixedArguments()[0].Value, "null string")
	assert.Empty(t, obsolete.NamedArguments())
	_, isRef := obsolete.Constructor().(*metadata.MethodReference)
	assert.True(t, isRef)

	// System.AttributeTargets does not resolve; the value reads as int32.
	usage := m.ResolveToken(f.usage).(*metadata.CustomAttribute)
	require.NoError(t, usage.DecodeError())
	require.Len(t, usage.FixedArguments(), 1)
	assert.Equal(t, int32(4), usage.FixedArguments()[0].Value)

	broken := m.ResolveToken(f.broken).(*metadata.CustomAttribute)
	assert.Error(t, broken.DecodeError())
	assert.Empty(t, broken.FixedArguments())
	assert.Same(t, method(t, m, f.infoCtor), broken.Parent())

	color := typeDef(t, m, f.color)
	assert.True(t, color.IsEnum())
	assert.True(t, color.IsValueType())
	assert.Equal(t, metadata.TypeCodeInt16, color.EnumUnderlyingType().TypeCode())
	require.Len(t, color.CustomAttributes(), 1)
	assert.Same(t, usage, color.CustomAttributes()[0])
}

func TestTypeByName(t *testing.T) {
	h := newHost(t)
	lib := newFixture("Lib")
	widgetTok := lib.class("Lib", "Widget")
	box := lib.class("Lib", "Box`1")
	lib.AddGenericParam(image.GenericParamRow{Owner: box, Name: "T"})
	libMod := lib.load(t, h)

	app := newFixture("App")
	app.assemblyRef("Lib")
	localTok := app.class("App", "Local")
	m := app.load(t, h)

	local, err := m.TypeByName("App.Local")
	require.NoError(t, err)
	assert.Same(t, typeDef(t, m, localTok), local.(metadata.NamedTypeReference).ResolvedType())

	widget, err := m.TypeByName("Lib.Widget, Lib, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null")
	require.NoError(t, err)
	assert.Equal(t, typeDef(t, libMod, widgetTok).InternedKey(), widget.InternedKey())

	inst, err := m.TypeByName("Lib.Box`1[[Lib.Widget, Lib]][], Lib")
	require.NoError(t, err)
	vec, ok := inst.(*metadata.VectorTypeReference)
	require.True(t, ok)
	gi, ok := vec.ElementType().(*metadata.GenericTypeInstanceReference)
	require.True(t, ok)
	require.Len(t, gi.GenericArguments(), 1)
	assert.Same(t, typeDef(t, libMod, box), gi.GenericTypeDefinition())
	assert.Equal(t, widget.InternedKey(), gi.GenericArguments()[0].InternedKey())

	str, err := m.TypeByName("System.String")
	require.NoError(t, err)
	assert.Equal(t, m.PrimitiveType(metadata.TypeCodeString).InternedKey(), str.InternedKey())

	_, err = m.TypeByName("Lib.Box`1[[Lib.Widget")
	assert.Error(t, err)
	_, err = m.TypeByName("")
	assert.Error(t, err)
}
