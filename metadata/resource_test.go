package metadata_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/metadata"
)

func TestEmbeddedResources(t *testing.T) {
	f := newFixture("Demo")
	f.AddManifestResource(image.ManifestResourceRow{Name: "greeting.txt", Flags: uint32(metadata.ResourcePublic), Offset: f.AddResource([]byte("hello"))})
	f.AddManifestResource(image.ManifestResourceRow{Name: "blob.bin", Flags: uint32(metadata.ResourcePrivate), Offset: f.AddResource([]byte{1, 2, 3})})
	f.AddManifestResource(image.ManifestResourceRow{Name: "theirs.txt", Flags: uint32(metadata.ResourcePublic), Implementation: f.tok["mscorlib"]})
	m := f.loadPE(t, newHost(t))

	res := m.Assembly().ManifestResources()
	require.Len(t, res, 3)

	assert.Equal(t, "greeting.txt", res[0].Name())
	assert.True(t, res[0].IsEmbedded())
	assert.True(t, res[0].IsPublic())
	data, err := res[0].Data()
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)

	assert.False(t, res[1].IsPublic())
	data, err = res[1].Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)

	assert.False(t, res[2].IsEmbedded())
	require.NotNil(t, res[2].DefiningAssembly())
	assert.Equal(t, "mscorlib", res[2].DefiningAssembly().Name())
	assert.Nil(t, res[2].File())
	_, err = res[2].Data()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, &errors.Error{Phase: errors.PhaseResolve, Kind: errors.KindNotFound}))
}

func writeImage(t *testing.T, dir, name string, f *fixture) string {
	t.Helper()
	data, err := f.EncodePE()
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestMultiFileAssembly(t *testing.T) {
	dir := t.TempDir()

	part := newModuleFixture("Part.netmodule")
	piece := part.class("Demo", "Piece")
	writeImage(t, dir, "Part.netmodule", part)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("linked notes"), 0o644))

	f := newFixture("Demo")
	partFile := f.AddFile(image.FileRow{Name: "Part.netmodule"})
	notes := f.AddFile(image.FileRow{Name: "notes.txt", Flags: 1})
	f.AddManifestResource(image.ManifestResourceRow{Name: "notes", Flags: uint32(metadata.ResourcePublic), Implementation: notes, Offset: 7})
	exported := f.AddExportedType(image.ExportedTypeRow{
		Namespace:      "Demo",
		Name:           "Piece",
		Flags:          uint32(metadata.TypePublic),
		TypeDefID:      piece.Row(),
		Implementation: partFile,
	})
	path := writeImage(t, dir, "Demo.dll", f)

	h := newHost(t)
	m, err := h.Open(path)
	require.NoError(t, err)
	asm := m.Assembly()

	files := asm.Files()
	require.Len(t, files, 2)
	assert.True(t, files[0].ContainsMetadata())
	assert.False(t, files[1].ContainsMetadata())

	mods := asm.Modules()
	require.Len(t, mods, 2)
	assert.Same(t, m, mods[0])
	assert.Equal(t, "Part.netmodule", mods[1].Name())
	assert.Same(t, asm, mods[1].Assembly())
	assert.Same(t, mods[1], files[0].ResolvedModule())
	assert.Same(t, metadata.DummyModule, files[1].ResolvedModule())

	alias := m.ResolveToken(exported).(*metadata.NamespaceAliasForType)
	assert.False(t, alias.IsForwarder())
	def := alias.ResolveAlias()
	require.False(t, metadata.IsDummy(def))
	assert.Equal(t, "Demo.Piece", def.FullName())
	assert.Same(t, mods[1], def.Module())
	byName, err := m.TypeByName("Demo.Piece")
	require.NoError(t, err)
	assert.Equal(t, def.InternedKey(), byName.InternedKey(), "types of every module are qualified by the assembly")

	res := asm.ManifestResources()
	require.Len(t, res, 1)
	assert.Same(t, files[1], res[0].File())
	data, err := res[0].Data()
	require.NoError(t, err)
	assert.Equal(t, []byte("notes"), data)
}

func TestLinkedResourceWithoutPath(t *testing.T) {
	f := newFixture("Demo")
	notes := f.AddFile(image.FileRow{Name: "notes.txt", Flags: 1})
	f.AddManifestResource(image.ManifestResourceRow{Name: "notes", Implementation: notes})
	m := f.load(t, newHost(t))

	_, err := m.Assembly().ManifestResources()[0].Data()
	assert.Error(t, err)
}

// splitAssembly builds Demo.dll, whose File table names Part.netmodule
// defining Demo.Piece, and returns both fixtures.
func splitAssembly() (manifest, part *fixture, piece image.Token) {
	part = newModuleFixture("Part.netmodule")
	piece = part.class("Demo", "Piece")
	manifest = newFixture("Demo")
	file := manifest.AddFile(image.FileRow{Name: "Part.netmodule"})
	manifest.AddExportedType(image.ExportedTypeRow{
		Namespace:      "Demo",
		Name:           "Piece",
		Flags:          uint32(metadata.TypePublic),
		TypeDefID:      piece.Row(),
		Implementation: file,
	})
	return manifest, part, piece
}

func TestModuleLinksToLaterManifest(t *testing.T) {
	dir := t.TempDir()
	manifest, part, piece := splitAssembly()
	partPath := writeImage(t, dir, "Part.netmodule", part)
	demoPath := writeImage(t, dir, "Demo.dll", manifest)

	h := newHost(t)
	partMod, err := h.Open(partPath)
	require.NoError(t, err)
	def := typeDef(t, partMod, piece)
	standalone := def.InternedKey()
	assert.Same(t, metadata.DummyAssembly, partMod.Assembly())

	demo, err := h.Open(demoPath)
	require.NoError(t, err)
	assert.Same(t, demo.Assembly(), partMod.Assembly(), "linked when the manifest loads")

	app := newFixture("App")
	ref := app.AddTypeRef(image.TypeRefRow{ResolutionScope: app.assemblyRef("Demo"), Namespace: "Demo", Name: "Piece"})
	appMod := app.load(t, h)

	byName, err := demo.TypeByName("Demo.Piece")
	require.NoError(t, err)
	named, ok := byName.(metadata.NamedTypeReference)
	require.True(t, ok)
	assert.Same(t, def, named.ResolvedType())
	assert.Equal(t, def.InternedKey(), byName.InternedKey())
	assert.Equal(t, def.InternedKey(), appMod.ResolveToken(ref).(metadata.TypeReference).InternedKey())
	assert.NotEqual(t, standalone, def.InternedKey(), "keys taken before linking are not cached")
	mods := demo.Assembly().Modules()
	require.Len(t, mods, 2)
	assert.Same(t, partMod, mods[1])
}

func TestManifestAdoptsLaterModule(t *testing.T) {
	manifest, part, piece := splitAssembly()
	h := newHost(t)
	demo := manifest.load(t, h)
	assert.Len(t, demo.Assembly().Modules(), 1, "no path to probe next to")

	partMod := part.load(t, h)
	assert.Same(t, demo.Assembly(), partMod.Assembly())
	def := typeDef(t, partMod, piece)
	byName, err := demo.TypeByName("Demo.Piece")
	require.NoError(t, err)
	assert.Equal(t, byName.InternedKey(), def.InternedKey())
	assert.Len(t, demo.Assembly().Modules(), 2)
}
