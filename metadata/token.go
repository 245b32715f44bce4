package metadata

import (
	"fmt"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
)

// ResolveToken returns the object for a token of this module, or nil when
// the token names no row or a table without objects (InterfaceImpl,
// MethodImpl and the other pure link tables). For any object o of this
// module backed by a row, ResolveToken(o.Token()) returns o.
//
// GenericParam rows that a nested type repeats from its enclosing type
// resolve to the enclosing type's parameter.
func (m *Module) ResolveToken(tok Token) Object {
	return m.resolveIn(tok, genericContext{})
}

// resolveIn is ResolveToken with a generic context for TypeSpec tokens.
func (m *Module) resolveIn(tok Token, ctx genericContext) Object {
	if !m.md.Valid(tok) {
		return nil
	}
	row := tok.Row()
	switch tok.Table() {
	case image.TableModule:
		return m
	case image.TableTypeRef:
		return m.typeRef(row)
	case image.TableTypeDef:
		return m.typeDef(row)
	case image.TableField:
		return m.field(row)
	case image.TableMethodDef:
		return m.method(row)
	case image.TableParam:
		if p := m.param(row); p != nil {
			return p
		}
	case image.TableMemberRef:
		return m.memberRef(row)
	case image.TableCustomAttribute:
		if a := m.attribute(row); a != nil {
			return a
		}
	case image.TableStandAloneSig:
		if s := m.standAloneSig(row); s != nil {
			return s
		}
	case image.TableEvent:
		if e := m.event(row); e != nil {
			return e
		}
	case image.TableProperty:
		if p := m.property(row); p != nil {
			return p
		}
	case image.TableModuleRef:
		if r := m.moduleRef(row); r != nil {
			return r
		}
	case image.TableTypeSpec:
		if s := m.typeSpec(row); s != nil {
			if ctx.typeDef != nil || ctx.method != nil {
				return s.typeIn(ctx, 0)
			}
			return s
		}
	case image.TableAssembly:
		if a := m.Assembly(); a != nil {
			return a
		}
	case image.TableAssemblyRef:
		if r := m.assemblyRef(row); r != nil {
			return r
		}
	case image.TableFile:
		if f := m.file(row); f != nil {
			return f
		}
	case image.TableExportedType:
		return m.exportedType(row)
	case image.TableManifestResource:
		if r := m.resource(row); r != nil {
			return r
		}
	case image.TableGenericParam:
		return m.genericParam(row)
	case image.TableMethodSpec:
		if s := m.methodSpec(row); s != nil {
			return s
		}
	}
	return nil
}

// genericParam finds the parameter object of a GenericParam row through its
// owner. Rows restating an enclosing parameter get their own object so the
// token round-trips.
func (m *Module) genericParam(row uint32) Object {
	r := m.md.GenericParam(row)
	switch r.Owner.Table() {
	case image.TableTypeDef:
		info := m.typeDef(r.Owner.Row()).genericInfo()
		for _, ps := range [][]*GenericTypeParameter{info.own, info.repeated} {
			for _, p := range ps {
				if p.row == row {
					return p
				}
			}
		}
	case image.TableMethodDef:
		for _, p := range m.method(r.Owner.Row()).GenericParameters() {
			if p.row == row {
				return p
			}
		}
	}
	return nil
}

// ResolveString returns the #US heap string a ldstr token names.
func (m *Module) ResolveString(tok Token) (string, bool) {
	if tok.Table() != image.TableUserString {
		return "", false
	}
	return m.md.UserStrings.Get(tok.Row())
}

// ModuleOf returns the module that produced o. It panics with a misuse error
// when o was not created by this package.
func ModuleOf(o Object) *Module {
	switch v := o.(type) {
	case *Module:
		return v
	case *Assembly:
		return v.manifest
	case interface{ Module() *Module }:
		return v.Module()
	case *RootNamespace:
		return v.module
	case *NestedNamespace:
		return v.module
	case *RootNamespaceReference:
		return ModuleOf(v.scope)
	case *NestedNamespaceReference:
		return v.module
	case *GenericTypeParameter:
		return v.owner.module
	case *GenericMethodParameter:
		return v.owner.module
	case *GenericTypeParameterReference:
		return v.module
	case *GenericMethodParameterReference:
		return v.module
	case *GenericTypeInstanceReference:
		return v.module
	case *PointerTypeReference:
		return v.module
	case *ManagedPointerTypeReference:
		return v.module
	case *VectorTypeReference:
		return v.module
	case *MatrixTypeReference:
		return v.module
	case *FunctionPointerTypeReference:
		return v.module
	case *ModifiedTypeReference:
		return v.module
	case *ParameterDefinition:
		return v.module
	case *PropertyDefinition:
		return v.module
	case *EventDefinition:
		return v.module
	case *GenericMethodInstanceReference:
		return v.module
	case *TypeSpecification:
		return v.module
	case *StandAloneSignature:
		return v.module
	case *FileReference:
		return v.module
	}
	panic(errors.Misuse("ModuleOf", fmt.Sprintf("%T", o)))
}
