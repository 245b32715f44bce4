package signature

import (
	"fmt"
	"strings"

	"github.com/wippyai/clrmeta/image"
)

// ElementType is an ECMA-335 II.23.1.16 element type code.
type ElementType byte

const (
	ElementEnd         ElementType = 0x00
	ElementVoid        ElementType = 0x01
	ElementBoolean     ElementType = 0x02
	ElementChar        ElementType = 0x03
	ElementI1          ElementType = 0x04
	ElementU1          ElementType = 0x05
	ElementI2          ElementType = 0x06
	ElementU2          ElementType = 0x07
	ElementI4          ElementType = 0x08
	ElementU4          ElementType = 0x09
	ElementI8          ElementType = 0x0A
	ElementU8          ElementType = 0x0B
	ElementR4          ElementType = 0x0C
	ElementR8          ElementType = 0x0D
	ElementString      ElementType = 0x0E
	ElementPtr         ElementType = 0x0F
	ElementByRef       ElementType = 0x10
	ElementValueType   ElementType = 0x11
	ElementClass       ElementType = 0x12
	ElementVar         ElementType = 0x13
	ElementArray       ElementType = 0x14
	ElementGenericInst ElementType = 0x15
	ElementTypedByRef  ElementType = 0x16
	ElementI           ElementType = 0x18
	ElementU           ElementType = 0x19
	ElementFnPtr       ElementType = 0x1B
	ElementObject      ElementType = 0x1C
	ElementSZArray     ElementType = 0x1D
	ElementMVar        ElementType = 0x1E
	ElementCModReqd    ElementType = 0x1F
	ElementCModOpt     ElementType = 0x20
	ElementInternal    ElementType = 0x21
	ElementSentinel    ElementType = 0x41
	ElementPinned      ElementType = 0x45

	// Custom attribute encodings (II.23.3).
	ElementSystemType ElementType = 0x50
	ElementBoxed      ElementType = 0x51
	ElementField      ElementType = 0x53
	ElementProperty   ElementType = 0x54
	ElementEnum       ElementType = 0x55
)

var primitiveNames = map[ElementType]string{
	ElementVoid:       "void",
	ElementBoolean:    "bool",
	ElementChar:       "char",
	ElementI1:         "int8",
	ElementU1:         "uint8",
	ElementI2:         "int16",
	ElementU2:         "uint16",
	ElementI4:         "int32",
	ElementU4:         "uint32",
	ElementI8:         "int64",
	ElementU8:         "uint64",
	ElementR4:         "float32",
	ElementR8:         "float64",
	ElementString:     "string",
	ElementTypedByRef: "typedref",
	ElementI:          "native int",
	ElementU:          "native uint",
	ElementObject:     "object",
}

// IsPrimitive reports whether e stands alone as a complete type.
func (e ElementType) IsPrimitive() bool {
	_, ok := primitiveNames[e]
	return ok
}

func (e ElementType) String() string {
	if n, ok := primitiveNames[e]; ok {
		return n
	}
	return fmt.Sprintf("element(0x%02x)", byte(e))
}

// CallingConvention is the first byte of a method, field, property or local signature.
type CallingConvention byte

const (
	CallDefault      CallingConvention = 0x0
	CallC            CallingConvention = 0x1
	CallStdCall      CallingConvention = 0x2
	CallThisCall     CallingConvention = 0x3
	CallFastCall     CallingConvention = 0x4
	CallVarArg       CallingConvention = 0x5
	CallField        CallingConvention = 0x6
	CallLocalSig     CallingConvention = 0x7
	CallProperty     CallingConvention = 0x8
	CallUnmanaged    CallingConvention = 0x9
	CallGenericInst  CallingConvention = 0xA
	CallNativeVarArg CallingConvention = 0xB

	CallKindMask     CallingConvention = 0x0F
	CallGeneric      CallingConvention = 0x10
	CallHasThis      CallingConvention = 0x20
	CallExplicitThis CallingConvention = 0x40
)

// Kind returns the convention with the flag bits cleared.
func (c CallingConvention) Kind() CallingConvention { return c & CallKindMask }

func (c CallingConvention) HasThis() bool { return c&CallHasThis != 0 }
func (c CallingConvention) ExplicitThis() bool { return c&CallExplicitThis != 0 }
func (c CallingConvention) IsGeneric() bool { return c&CallGeneric != 0 }

// Type is a node of a decoded signature type tree. The set of implementations
// is closed: Primitive, TypeDefOrRef, GenericParam, Pointer, ByRef, SZArray,
// Array, GenericInst, FnPtr, Modified, Pinned and Invalid.
type Type interface {
	fmt.Stringer
	sigType()
}

// Primitive is a built-in type identified only by its element type.
type Primitive struct {
	Kind ElementType
}

// TypeDefOrRef is CLASS or VALUETYPE followed by a TypeDef, TypeRef or TypeSpec token.
type TypeDefOrRef struct {
	Token     image.Token
	ValueType bool
}

// GenericParam is VAR (type parameter) or MVAR (method parameter).
type GenericParam struct {
	Index  uint32
	Method bool
}

type Pointer struct {
	Elem Type
}

type ByRef struct {
	Elem Type
}

// SZArray is a single-dimensional zero-based array (vector).
type SZArray struct {
	Elem Type
}

// Array is a general array with an explicit shape.
type Array struct {
	Elem        Type
	Sizes       []uint32
	LowerBounds []int32
	Rank        uint32
}

type GenericInst struct {
	Generic TypeDefOrRef
	Args    []Type
}

type FnPtr struct {
	Method *MethodSig
}

// Modified wraps Elem with a required (modreq) or optional (modopt) custom modifier.
type Modified struct {
	Elem     Type
	Modifier image.Token
	Required bool
}

type Pinned struct {
	Elem Type
}

// Invalid stands in for a slot that could not be decoded.
type Invalid struct {
	Reason string
}

func (Primitive) sigType() {}
func (TypeDefOrRef) sigType() {}
func (GenericParam) sigType() {}
func (Pointer) sigType() {}
func (ByRef) sigType() {}
func (SZArray) sigType() {}
func (Array) sigType() {}
func (GenericInst) sigType() {}
func (FnPtr) sigType() {}
func (Modified) sigType() {}
func (Pinned) sigType() {}
func (Invalid) sigType() {}

func (t Primitive) String() string { return t.Kind.String() }

func (t TypeDefOrRef) String() string {
	if t.ValueType {
		return "valuetype " + t.Token.String()
	}
	return "class " + t.Token.String()
}

func (t GenericParam) String() string {
	if t.Method {
		return fmt.Sprintf("!!%d", t.Index)
	}
	return fmt.Sprintf("!%d", t.Index)
}

func (t Pointer) String() string { return t.Elem.String() + "*" }
func (t ByRef) String() string { return t.Elem.String() + "&" }
func (t SZArray) String() string { return t.Elem.String() + "[]" }

func (t Array) String() string {
	dims := make([]string, t.Rank)
	for i := range dims {
		switch {
		case i < len(t.LowerBounds) && i < len(t.Sizes):
			dims[i] = fmt.Sprintf("%d...%d", t.LowerBounds[i], t.LowerBounds[i]+int32(t.Sizes[i])-1)
		case i < len(t.Sizes):
			dims[i] = fmt.Sprintf("%d", t.Sizes[i])
		}
	}
	return t.Elem.String() + "[" + strings.Join(dims, ",") + "]"
}

func (t GenericInst) String() string {
	args := make([]string, len(t.Args))
	for i, a := range t.Args {
		args[i] = a.String()
	}
	return t.Generic.String() + "<" + strings.Join(args, ",") + ">"
}

func (t FnPtr) String() string {
	if t.Method == nil {
		return "method *()"
	}
	return "method " + t.Method.String()
}

func (t Modified) String() string {
	kw := "modopt"
	if t.Required {
		kw = "modreq"
	}
	return fmt.Sprintf("%s %s(%s)", t.Elem, kw, t.Modifier)
}

func (t Pinned) String() string { return t.Elem.String() + " pinned" }
func (t Invalid) String() string { return "<invalid: " + t.Reason + ">" }

// MethodSig is a MethodDefSig, MethodRefSig or StandAloneMethodSig.
type MethodSig struct {
	Return            Type
	Params            []Type
	GenericParamCount uint32

	// SentinelIndex is the index in Params of the first vararg argument, or -1.
	SentinelIndex int

	CallConv CallingConvention
}

func (m *MethodSig) String() string {
	params := make([]string, 0, len(m.Params)+1)
	for i, p := range m.Params {
		if i == m.SentinelIndex {
			params = append(params, "...")
		}
		params = append(params, p.String())
	}
	prefix := ""
	if m.CallConv.HasThis() {
		prefix = "instance "
	}
	generic := ""
	if m.GenericParamCount > 0 {
		generic = fmt.Sprintf("<%d>", m.GenericParamCount)
	}
	return fmt.Sprintf("%s%s%s(%s)", prefix, m.Return, generic, strings.Join(params, ","))
}

// FieldSig is the type of a field.
type FieldSig struct {
	Type Type
}

// PropertySig is the type and index parameters of a property.
type PropertySig struct {
	Type    Type
	Params  []Type
	HasThis bool
}

// LocalVarSig lists the local variable types of a method body.
type LocalVarSig struct {
	Locals []Type
}

// Unwrap strips custom modifiers and pinning from t.
func Unwrap(t Type) Type {
	for {
		switch v := t.(type) {
		case Modified:
			t = v.Elem
		case Pinned:
			t = v.Elem
		default:
			return t
		}
	}
}

// IsInvalid reports whether t or any node below it is Invalid.
func IsInvalid(t Type) bool {
	switch v := t.(type) {
	case nil:
		return true
	case Invalid:
		return true
	case Pointer:
		return IsInvalid(v.Elem)
	case ByRef:
		return IsInvalid(v.Elem)
	case SZArray:
		return IsInvalid(v.Elem)
	case Array:
		return IsInvalid(v.Elem)
	case Modified:
		return IsInvalid(v.Elem)
	case Pinned:
		return IsInvalid(v.Elem)
	case GenericInst:
		for _, a := range v.Args {
			if IsInvalid(a) {
				return true
			}
		}
		return false
	case FnPtr:
		if v.Method == nil || IsInvalid(v.Method.Return) {
			return true
		}
		for _, p := range v.Method.Params {
			if IsInvalid(p) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
