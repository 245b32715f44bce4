package metadata

import "github.com/wippyai/clrmeta/image"

// Token is a metadata token; see image.Token.
type Token = image.Token

// NoToken marks objects that are not backed by a table row.
const NoToken = image.NoToken

// TypeAttributes are TypeDef and ExportedType flags (ECMA-335 II.23.1.15).
type TypeAttributes uint32

const (
	TypeVisibilityMask    TypeAttributes = 0x00000007
	TypeNotPublic         TypeAttributes = 0x00000000
	TypePublic            TypeAttributes = 0x00000001
	TypeNestedPublic      TypeAttributes = 0x00000002
	TypeNestedPrivate     TypeAttributes = 0x00000003
	TypeNestedFamily      TypeAttributes = 0x00000004
	TypeNestedAssembly    TypeAttributes = 0x00000005
	TypeNestedFamANDAssem TypeAttributes = 0x00000006
	TypeNestedFamORAssem  TypeAttributes = 0x00000007
	TypeLayoutMask        TypeAttributes = 0x00000018
	TypeSequentialLayout  TypeAttributes = 0x00000008
	TypeExplicitLayout    TypeAttributes = 0x00000010
	TypeInterface         TypeAttributes = 0x00000020
	TypeAbstract          TypeAttributes = 0x00000080
	TypeSealed            TypeAttributes = 0x00000100
	TypeSpecialName       TypeAttributes = 0x00000400
	TypeRTSpecialName     TypeAttributes = 0x00000800
	TypeImport            TypeAttributes = 0x00001000
	TypeSerializable      TypeAttributes = 0x00002000
	TypeWindowsRuntime    TypeAttributes = 0x00004000
	TypeStringFormatMask  TypeAttributes = 0x00030000
	TypeUnicodeClass      TypeAttributes = 0x00010000
	TypeAutoClass         TypeAttributes = 0x00020000
	TypeHasSecurity       TypeAttributes = 0x00040000
	TypeBeforeFieldInit   TypeAttributes = 0x00100000
	TypeForwarder         TypeAttributes = 0x00200000
)

// FieldAttributes are Field flags (II.23.1.5).
type FieldAttributes uint16

const (
	FieldAccessMask      FieldAttributes = 0x0007
	FieldStatic          FieldAttributes = 0x0010
	FieldInitOnly        FieldAttributes = 0x0020
	FieldLiteral         FieldAttributes = 0x0040
	FieldNotSerialized   FieldAttributes = 0x0080
	FieldHasFieldRVA     FieldAttributes = 0x0100
	FieldSpecialName     FieldAttributes = 0x0200
	FieldRTSpecialName   FieldAttributes = 0x0400
	FieldHasFieldMarshal FieldAttributes = 0x1000
	FieldPInvokeImpl     FieldAttributes = 0x2000
	FieldHasDefault      FieldAttributes = 0x8000
)

// MethodAttributes are MethodDef flags (II.23.1.10).
type MethodAttributes uint16

const (
	MethodAccessMask       MethodAttributes = 0x0007
	MethodUnmanagedExport  MethodAttributes = 0x0008
	MethodStatic           MethodAttributes = 0x0010
	MethodFinal            MethodAttributes = 0x0020
	MethodVirtual          MethodAttributes = 0x0040
	MethodHideBySig        MethodAttributes = 0x0080
	MethodNewSlot          MethodAttributes = 0x0100
	MethodStrict           MethodAttributes = 0x0200
	MethodAbstract         MethodAttributes = 0x0400
	MethodSpecialName      MethodAttributes = 0x0800
	MethodRTSpecialName    MethodAttributes = 0x1000
	MethodPInvokeImpl      MethodAttributes = 0x2000
	MethodHasSecurity      MethodAttributes = 0x4000
	MethodRequireSecObject MethodAttributes = 0x8000
)

// MethodImplAttributes are MethodDef implementation flags (II.23.1.11).
type MethodImplAttributes uint16

const (
	MethodImplCodeTypeMask       MethodImplAttributes = 0x0003
	MethodImplIL                 MethodImplAttributes = 0x0000
	MethodImplNative             MethodImplAttributes = 0x0001
	MethodImplRuntime            MethodImplAttributes = 0x0003
	MethodImplUnmanaged          MethodImplAttributes = 0x0004
	MethodImplNoInlining         MethodImplAttributes = 0x0008
	MethodImplForwardRef         MethodImplAttributes = 0x0010
	MethodImplSynchronized       MethodImplAttributes = 0x0020
	MethodImplNoOptimization     MethodImplAttributes = 0x0040
	MethodImplPreserveSig        MethodImplAttributes = 0x0080
	MethodImplAggressiveInlining MethodImplAttributes = 0x0100
	MethodImplInternalCall       MethodImplAttributes = 0x1000
)

// ParamAttributes are Param flags (II.23.1.13).
type ParamAttributes uint16

const (
	ParamIn              ParamAttributes = 0x0001
	ParamOut             ParamAttributes = 0x0002
	ParamOptional        ParamAttributes = 0x0010
	ParamHasDefault      ParamAttributes = 0x1000
	ParamHasFieldMarshal ParamAttributes = 0x2000
)

// GenericParamAttributes are GenericParam flags (II.23.1.7).
type GenericParamAttributes uint16

const (
	GenericVarianceMask          GenericParamAttributes = 0x0003
	GenericCovariant             GenericParamAttributes = 0x0001
	GenericContravariant         GenericParamAttributes = 0x0002
	GenericSpecialConstraintMask GenericParamAttributes = 0x001C
	GenericReferenceType         GenericParamAttributes = 0x0004
	GenericNotNullableValueType  GenericParamAttributes = 0x0008
	GenericDefaultConstructor    GenericParamAttributes = 0x0010
)

// PropertyAttributes are Property flags (II.23.1.14).
type PropertyAttributes uint16

const (
	PropertySpecialName   PropertyAttributes = 0x0200
	PropertyRTSpecialName PropertyAttributes = 0x0400
	PropertyHasDefault    PropertyAttributes = 0x1000
)

// EventAttributes are Event flags (II.23.1.4).
type EventAttributes uint16

const (
	EventSpecialName   EventAttributes = 0x0200
	EventRTSpecialName EventAttributes = 0x0400
)

// MethodSemanticsAttributes tie accessors to properties and events (II.23.1.12).
type MethodSemanticsAttributes uint16

const (
	SemanticsSetter   MethodSemanticsAttributes = 0x0001
	SemanticsGetter   MethodSemanticsAttributes = 0x0002
	SemanticsOther    MethodSemanticsAttributes = 0x0004
	SemanticsAddOn    MethodSemanticsAttributes = 0x0008
	SemanticsRemoveOn MethodSemanticsAttributes = 0x0010
	SemanticsFire     MethodSemanticsAttributes = 0x0020
)

// AssemblyFlags are Assembly and AssemblyRef flags (II.23.1.2).
type AssemblyFlags uint32

const (
	AssemblyPublicKey       AssemblyFlags = 0x0001
	AssemblyRetargetable    AssemblyFlags = 0x0100
	AssemblyContentTypeMask AssemblyFlags = 0x0E00
	AssemblyWindowsRuntime  AssemblyFlags = 0x0200
)

// Visibility is the accessibility of a type or member.
type Visibility uint8

const (
	VisibilityDefault Visibility = iota
	VisibilityPrivate
	VisibilityFamilyAndAssembly
	VisibilityAssembly
	VisibilityFamily
	VisibilityFamilyOrAssembly
	VisibilityPublic
)

var visibilityNames = [...]string{"default", "private", "famandassem", "assembly", "family", "famorassem", "public"}

func (v Visibility) String() string {
	if int(v) < len(visibilityNames) {
		return visibilityNames[v]
	}
	return "unknown"
}

// memberVisibility maps the three-bit member access field shared by fields and methods.
func memberVisibility(access uint16) Visibility {
	switch access & 0x7 {
	case 1:
		return VisibilityPrivate
	case 2:
		return VisibilityFamilyAndAssembly
	case 3:
		return VisibilityAssembly
	case 4:
		return VisibilityFamily
	case 5:
		return VisibilityFamilyOrAssembly
	case 6:
		return VisibilityPublic
	default:
		return VisibilityDefault
	}
}

func typeVisibility(flags TypeAttributes) Visibility {
	switch flags & TypeVisibilityMask {
	case TypePublic, TypeNestedPublic:
		return VisibilityPublic
	case TypeNestedPrivate:
		return VisibilityPrivate
	case TypeNestedFamily:
		return VisibilityFamily
	case TypeNestedFamANDAssem:
		return VisibilityFamilyAndAssembly
	case TypeNestedFamORAssem:
		return VisibilityFamilyOrAssembly
	default:
		return VisibilityAssembly
	}
}
