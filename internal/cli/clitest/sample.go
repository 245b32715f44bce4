// Package clitest builds small assemblies for command line tests.
package clitest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/wippyai/clrmeta/il"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/signature"
)

var ecmaToken = []byte{0xb7, 0x7a, 0x5c, 0x56, 0x19, 0x34, 0xe0, 0x89}

var (
	tVoid   signature.Type = signature.Primitive{Kind: signature.ElementVoid}
	tI4     signature.Type = signature.Primitive{Kind: signature.ElementI4}
	tString signature.Type = signature.Primitive{Kind: signature.ElementString}
)

// Demo builds Demo.dll. It references mscorlib and Lib and defines:
//
//	Demo.Widget      class deriving from Lib.Base, a literal field Limit = 3
//	                 and a static method Run(string) with an IL body
//	Demo.Point       struct with an instance field X
//	Demo.Util.Helper class
func Demo() *image.Builder {
	b := image.NewBuilder()
	b.AddModule(image.ModuleRow{Name: "Demo.dll", Mvid: image.GUID{0xD0, 0x01}})
	b.AddAssembly(image.AssemblyRow{Name: "Demo", MajorVersion: 1, MinorVersion: 2})
	mscorlib := b.AddAssemblyRef(image.AssemblyRefRow{Name: "mscorlib", MajorVersion: 4, PublicKeyOrToken: ecmaToken})
	lib := b.AddAssemblyRef(image.AssemblyRefRow{Name: "Lib", MajorVersion: 1})
	object := b.AddTypeRef(image.TypeRefRow{ResolutionScope: mscorlib, Namespace: "System", Name: "Object"})
	valueType := b.AddTypeRef(image.TypeRefRow{ResolutionScope: mscorlib, Namespace: "System", Name: "ValueType"})
	base := b.AddTypeRef(image.TypeRefRow{ResolutionScope: lib, Namespace: "Lib", Name: "Base"})

	b.AddTypeDef(image.TypeDefRow{Name: "<Module>", FieldList: 1, MethodList: 1})

	b.AddTypeDef(image.TypeDefRow{
		Namespace:  "Demo",
		Name:       "Widget",
		Flags:      0x1,
		Extends:    base,
		FieldList:  b.NextRow(image.TableField),
		MethodList: b.NextRow(image.TableMethodDef),
	})
	limit := b.AddField(image.FieldRow{Name: "Limit", Flags: 0x8056, Signature: signature.EncodeField(tI4)})
	b.AddConstant(image.ConstantRow{Parent: limit, Type: uint8(signature.ElementI4), Value: []byte{3, 0, 0, 0}})
	hello := b.AddUserString("hello")
	code, err := il.Encode([]il.Instruction{
		{Opcode: il.OpLdstr, Imm: il.TokenImm{Token: hello}},
		{Opcode: il.OpPop},
		{Opcode: il.OpRet},
	})
	if err != nil {
		panic(err)
	}
	b.AddMethodDef(image.MethodDefRow{
		Name:      "Run",
		Flags:     0x0096,
		Signature: signature.EncodeMethod(&signature.MethodSig{CallConv: signature.CallDefault, Return: tVoid, Params: []signature.Type{tString}, SentinelIndex: -1}),
		RVA:       b.AddMethodBody(append([]byte{byte(len(code)<<2 | 0x2)}, code...)),
	})

	b.AddTypeDef(image.TypeDefRow{
		Namespace:  "Demo",
		Name:       "Point",
		Flags:      0x109,
		Extends:    valueType,
		FieldList:  b.NextRow(image.TableField),
		MethodList: b.NextRow(image.TableMethodDef),
	})
	b.AddField(image.FieldRow{Name: "X", Flags: 0x0006, Signature: signature.EncodeField(tI4)})

	b.AddTypeDef(image.TypeDefRow{
		Namespace:  "Demo.Util",
		Name:       "Helper",
		Flags:      0x0,
		Extends:    object,
		FieldList:  b.NextRow(image.TableField),
		MethodList: b.NextRow(image.TableMethodDef),
	})
	return b
}

// Lib builds Lib.dll defining Lib.Base.
func Lib() *image.Builder {
	b := image.NewBuilder()
	b.AddModule(image.ModuleRow{Name: "Lib.dll", Mvid: image.GUID{0x11, 0x01}})
	b.AddAssembly(image.AssemblyRow{Name: "Lib", MajorVersion: 1})
	mscorlib := b.AddAssemblyRef(image.AssemblyRefRow{Name: "mscorlib", MajorVersion: 4, PublicKeyOrToken: ecmaToken})
	object := b.AddTypeRef(image.TypeRefRow{ResolutionScope: mscorlib, Namespace: "System", Name: "Object"})
	b.AddTypeDef(image.TypeDefRow{Name: "<Module>", FieldList: 1, MethodList: 1})
	b.AddTypeDef(image.TypeDefRow{
		Namespace:  "Lib",
		Name:       "Base",
		Flags:      0x1,
		Extends:    object,
		FieldList:  b.NextRow(image.TableField),
		MethodList: b.NextRow(image.TableMethodDef),
	})
	return b
}

// Write encodes b as a PE file called name in dir and returns its path.
func Write(t testing.TB, dir, name string, b *image.Builder) string {
	t.Helper()
	data, err := b.EncodePE()
	if err != nil {
		t.Fatalf("encode %s: %v", name, err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}
