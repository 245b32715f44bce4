package metadata

import (
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
)

// Sentinels returned in place of objects that could not be resolved or
// decoded. Each is a valid object of its kind with no rows behind it: empty
// member lists, NoToken, and further sentinels from every navigation method.
// Compare against them with == or use IsDummy. Every sentinel's InternedKey
// is intern.Dummy, which no real entity receives.
var (
	DummyModule    *Module
	DummyAssembly  *Assembly
	DummyNamespace *NestedNamespace
	DummyType      *TypeDefinition
	DummyAlias     *NamespaceAliasForType
	DummyMethod    *MethodDefinition
	DummyField     *FieldDefinition
)

// The sentinels reach into loaders that return sentinels, so they are
// built in init instead of by variable initializers.
func init() {
	h := &Host{log: zap.NewNop(), intern: intern.New()}
	h.opts = DefaultOptions()
	h.opts.Intern = h.intern
	h.bodies = newBodyCache(1)

	DummyModule = newModule(h, image.FromMetadata(&image.Metadata{}))
	DummyModule.name = "<dummy>"
	DummyAssembly = &Assembly{manifest: DummyModule, identity: AssemblyIdentity{Name: "<dummy>"}}

	DummyNamespace = &NestedNamespace{module: DummyModule, parent: DummyModule.root}
	DummyNamespace.init(DummyNamespace.load)

	DummyType = &TypeDefinition{module: DummyModule, dummy: true}
	DummyType.init(DummyType.loadMembers)

	DummyAlias = &NamespaceAliasForType{module: DummyModule, dummy: true, impl: NoToken}
	DummyAlias.init(func() []*NestedAliasForType { return nil })

	DummyMethod = &MethodDefinition{module: DummyModule, dummy: true}
	DummyField = &FieldDefinition{module: DummyModule, dummy: true}
}

// IsDummy reports whether o is one of the sentinels.
func IsDummy(o Object) bool {
	switch v := o.(type) {
	case *TypeDefinition:
		return v.dummy
	case *MethodDefinition:
		return v.dummy
	case *FieldDefinition:
		return v.dummy
	case *NamespaceAliasForType:
		return v.dummy
	case *Module:
		return v == DummyModule
	case *Assembly:
		return v == DummyAssembly
	case *NestedNamespace:
		return v == DummyNamespace
	}
	return false
}
