package metadata_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/metadata"
)

func TestParseAssemblyIdentity(t *testing.T) {
	const display = "Lib, Version=1.2.3.4, Culture=neutral, PublicKeyToken=b77a5c561934e089, Retargetable=Yes"
	id, err := metadata.ParseAssemblyIdentity(display)
	require.NoError(t, err)
	assert.Equal(t, "Lib", id.Name)
	assert.Equal(t, "", id.Culture)
	assert.Equal(t, metadata.Version{Major: 1, Minor: 2, Build: 3, Revision: 4}, id.Version)
	assert.Equal(t, ecmaToken, id.PublicKeyToken)
	assert.True(t, id.Retargetable)
	assert.Equal(t, display, id.String())

	short, err := metadata.ParseAssemblyIdentity("System.Runtime")
	require.NoError(t, err)
	assert.Equal(t, "System.Runtime, Version=0.0.0.0, Culture=neutral, PublicKeyToken=null", short.String())

	for _, bad := range []string{"", " , Version=1.0", "Lib, Version=x", "Lib, PublicKeyToken=zz", "Lib, Culture"} {
		_, err := metadata.ParseAssemblyIdentity(bad)
		assert.Error(t, err, bad)
	}
}

func TestVersion(t *testing.T) {
	v, ok := metadata.ParseVersion("4.0")
	require.True(t, ok)
	assert.Equal(t, "4.0.0.0", v.String())

	for _, bad := range []string{"", "1.2.3.4.5", "1.x", "70000"} {
		_, ok := metadata.ParseVersion(bad)
		assert.False(t, ok, bad)
	}

	a := metadata.Version{Major: 1, Minor: 2}
	b := metadata.Version{Major: 1, Minor: 10}
	assert.Equal(t, -1, a.Compare(b))
	assert.Equal(t, 1, b.Compare(a))
	assert.Equal(t, 0, a.Compare(a))
}

func TestPublicKeyToken(t *testing.T) {
	ecmaKey := []byte{0, 0, 0, 0, 0, 0, 0, 0, 4, 0, 0, 0, 0, 0, 0, 0}
	assert.Equal(t, ecmaToken, metadata.PublicKeyToken(ecmaKey))
	assert.Equal(t, ecmaToken, metadata.PublicKeyToken(ecmaToken), "tokens pass through")
	assert.Empty(t, metadata.PublicKeyToken(nil))
}

// versioned builds an assembly called name with the given version.
func versioned(name string, major, minor uint16) *fixture {
	f := newModuleFixture(name + ".dll")
	f.tok["assembly"] = f.AddAssembly(image.AssemblyRow{Name: name, MajorVersion: major, MinorVersion: minor})
	return f
}

func TestFindAssembly(t *testing.T) {
	h := newHost(t)
	v1 := versioned("Lib", 1, 0).load(t, h).Assembly()
	v2 := versioned("Lib", 2, 0).load(t, h).Assembly()
	require.NotNil(t, v1)
	require.NotNil(t, v2)

	tests := []struct {
		name string
		id   metadata.AssemblyIdentity
		want *metadata.Assembly
	}{
		{"exact", metadata.AssemblyIdentity{Name: "Lib", Version: metadata.Version{Major: 1}}, v1},
		{"exact newer", metadata.AssemblyIdentity{Name: "lib", Version: metadata.Version{Major: 2}}, v2},
		{"highest in family", metadata.AssemblyIdentity{Name: "Lib", Version: metadata.Version{Major: 1, Minor: 5}}, v2},
		{"culture differs", metadata.AssemblyIdentity{Name: "Lib", Culture: "fr-FR"}, metadata.DummyAssembly},
		{"token differs", metadata.AssemblyIdentity{Name: "Lib", PublicKeyToken: ecmaToken}, metadata.DummyAssembly},
		{"unknown", metadata.AssemblyIdentity{Name: "Other"}, metadata.DummyAssembly},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Same(t, tt.want, h.FindAssembly(tt.id))
		})
	}
	assert.Len(t, h.Assemblies(), 2)
}

func TestAssemblyReferenceKeys(t *testing.T) {
	h := newHost(t)
	lib := versioned("Lib", 2, 0).load(t, h).Assembly()

	app := newFixture("App")
	old := app.AddAssemblyRef(image.AssemblyRefRow{Name: "Lib", MajorVersion: 1, MinorVersion: 5})
	cur := app.AddAssemblyRef(image.AssemblyRefRow{Name: "Lib", MajorVersion: 2})
	gone := app.AddAssemblyRef(image.AssemblyRefRow{Name: "Gone", MajorVersion: 1})
	m := app.load(t, h)

	r1 := m.ResolveToken(old).(*metadata.AssemblyReference)
	r2 := m.ResolveToken(cur).(*metadata.AssemblyReference)
	r3 := m.ResolveToken(gone).(*metadata.AssemblyReference)
	assert.Same(t, lib, r1.ResolvedAssembly())
	assert.Same(t, lib, r2.ResolvedAssembly())
	assert.Equal(t, lib.InternedKey(), r1.InternedKey())
	assert.Equal(t, r1.InternedKey(), r2.InternedKey())

	assert.Same(t, metadata.DummyAssembly, r3.ResolvedAssembly())
	assert.Equal(t, r3.Identity().Key(h.InternTable()), r3.InternedKey())
	assert.NotEqual(t, intern.None, r3.InternedKey())
	assert.Len(t, m.AssemblyReferences(), 4)
}

func TestUnifier(t *testing.T) {
	facade := metadata.UnifierFunc(func(id metadata.AssemblyIdentity) metadata.AssemblyIdentity {
		if id.Name == "System.Runtime" {
			return metadata.AssemblyIdentity{Name: "Core", Version: metadata.Version{Major: 1}}
		}
		return id
	})
	h := metadata.NewHost(metadata.Options{Logger: zaptest.NewLogger(t), Intern: intern.New(), Unifier: facade})
	core := newFixture("Core")
	object := core.AddTypeDef(image.TypeDefRow{Namespace: "System", Name: "Object", Flags: uint32(metadata.TypePublic)})
	coreMod := core.load(t, h)

	app := newFixture("App")
	rt := app.AddAssemblyRef(image.AssemblyRefRow{Name: "System.Runtime", MajorVersion: 4})
	objRef := app.AddTypeRef(image.TypeRefRow{ResolutionScope: rt, Namespace: "System", Name: "Object"})
	m := app.load(t, h)

	ref := m.ResolveToken(rt).(*metadata.AssemblyReference)
	assert.Equal(t, "System.Runtime", ref.Identity().Name)
	assert.Equal(t, "Core", ref.UnifiedIdentity().Name)
	assert.Same(t, coreMod.Assembly(), ref.ResolvedAssembly())

	r := m.ResolveToken(objRef).(metadata.NamedTypeReference)
	assert.Same(t, typeDef(t, coreMod, object), r.ResolvedType())
	assert.Same(t, coreMod.Assembly(), h.CoreAssembly(), "the assembly defining System.Object")
}

func TestCoreAssembly(t *testing.T) {
	h := newHost(t)
	assert.Same(t, metadata.DummyAssembly, h.CoreAssembly())
	mscorlib := versioned("mscorlib", 4, 0).load(t, h).Assembly()
	newFixture("App").load(t, h)
	assert.Same(t, mscorlib, h.CoreAssembly())

	named := metadata.NewHost(metadata.Options{Logger: zaptest.NewLogger(t), Intern: intern.New(), CoreAssemblyName: "Base"})
	versioned("mscorlib", 4, 0).load(t, named)
	assert.Same(t, metadata.DummyAssembly, named.CoreAssembly())
	base := versioned("Base", 1, 0).load(t, named).Assembly()
	assert.Same(t, base, named.CoreAssembly())
}
