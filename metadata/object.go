package metadata

import "github.com/wippyai/clrmeta/intern"

// Object is implemented by every decoded entity.
type Object interface {
	// Token is the table row backing the object, or NoToken.
	Token() Token
	CustomAttributes() []*CustomAttribute
	Accept(v Visitor)
}

// Named is an Object with a simple name. Every container member is Named.
type Named interface {
	Object
	Name() string
}

// TypeReference is any node of the type graph: definitions, references to
// definitions in this or another unit, generic parameters and constructed types.
type TypeReference interface {
	Named
	FullName() string
	IsValueType() bool
	TypeCode() TypeCode
	InternedKey() intern.Key
}

// NamedTypeReference is a type that has a name in some unit: a type
// definition or a reference that must resolve to one.
type NamedTypeReference interface {
	TypeReference
	// MangledArity is the generic arity encoded in the name suffix (`N).
	MangledArity() uint32
	ResolvedType() *TypeDefinition
	// IsAlias reports whether the first lookup of this reference lands on an
	// exported-type row instead of a definition.
	IsAlias() bool
	// AliasForType is the exported-type row hit by the first lookup, or DummyAlias.
	AliasForType() AliasForType
}

// Unit is an assembly or a module: the root of a namespace tree.
type Unit interface {
	Named
	NamespaceRoot() *RootNamespace
	unitKey() intern.Key
}

// UnitReference is the resolution scope of a top-level type reference.
type UnitReference interface {
	Named
	ResolvedUnit() Unit
	unitKey() intern.Key
}

// NamespaceMember is a member of a namespace: a nested namespace, a top-level
// type definition or an exported-type alias.
type NamespaceMember interface {
	Named
	namespaceMember()
}

// TypeMember is a member of a type definition: a field, method, property,
// event or nested type.
type TypeMember interface {
	Named
	ContainingTypeDefinition() *TypeDefinition
	Visibility() Visibility
}

// MemberRefParent is the parent of a MemberRef row. The set is closed: any
// type reference produced by this package, a *ModuleReference for global
// members of another module, or a *MethodDefinition for vararg call sites.
type MemberRefParent interface {
	Object
	memberRefParent()
}

// MethodRef is a method definition or any reference that resolves to one.
type MethodRef interface {
	Named
	ContainingType() TypeReference
	Signature() *MethodSignature
	InternedKey() intern.Key
	ResolvedMethod() *MethodDefinition
}

// FieldRef is a field definition or a reference that resolves to one.
type FieldRef interface {
	Named
	ContainingType() TypeReference
	Type() TypeReference
	InternedKey() intern.Key
	ResolvedField() *FieldDefinition
}

// TypeCode classifies the platform primitive types.
type TypeCode uint8

const (
	TypeCodeNotPrimitive TypeCode = iota
	TypeCodeVoid
	TypeCodeBoolean
	TypeCodeChar
	TypeCodeInt8
	TypeCodeUInt8
	TypeCodeInt16
	TypeCodeUInt16
	TypeCodeInt32
	TypeCodeUInt32
	TypeCodeInt64
	TypeCodeUInt64
	TypeCodeFloat32
	TypeCodeFloat64
	TypeCodeString
	TypeCodeIntPtr
	TypeCodeUIntPtr
	TypeCodeObject
	TypeCodeTypedReference
	TypeCodePointer
	TypeCodeReference
	TypeCodeInvalid
)

var typeCodeNames = map[string]TypeCode{
	"Void":           TypeCodeVoid,
	"Boolean":        TypeCodeBoolean,
	"Char":           TypeCodeChar,
	"SByte":          TypeCodeInt8,
	"Byte":           TypeCodeUInt8,
	"Int16":          TypeCodeInt16,
	"UInt16":         TypeCodeUInt16,
	"Int32":          TypeCodeInt32,
	"UInt32":         TypeCodeUInt32,
	"Int64":          TypeCodeInt64,
	"UInt64":         TypeCodeUInt64,
	"Single":         TypeCodeFloat32,
	"Double":         TypeCodeFloat64,
	"String":         TypeCodeString,
	"IntPtr":         TypeCodeIntPtr,
	"UIntPtr":        TypeCodeUIntPtr,
	"Object":         TypeCodeObject,
	"TypedReference": TypeCodeTypedReference,
}

// systemTypeCode maps a System type name to its code.
func systemTypeCode(namespace, name string) TypeCode {
	if namespace != "System" {
		return TypeCodeNotPrimitive
	}
	return typeCodeNames[name]
}

// IsPrimitiveValue reports whether values of the code are unboxed primitives.
func (c TypeCode) IsPrimitiveValue() bool {
	return c >= TypeCodeBoolean && c <= TypeCodeFloat64 || c == TypeCodeIntPtr || c == TypeCodeUIntPtr
}

// Size returns the storage size in bytes of a fixed-size primitive, or 0.
func (c TypeCode) Size() int {
	switch c {
	case TypeCodeBoolean, TypeCodeInt8, TypeCodeUInt8:
		return 1
	case TypeCodeChar, TypeCodeInt16, TypeCodeUInt16:
		return 2
	case TypeCodeInt32, TypeCodeUInt32, TypeCodeFloat32:
		return 4
	case TypeCodeInt64, TypeCodeUInt64, TypeCodeFloat64:
		return 8
	}
	return 0
}
