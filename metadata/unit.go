package metadata

import (
	"path/filepath"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
	"github.com/wippyai/clrmeta/signature"
)

// Module is a loaded module: the owner of an image and of every object
// decoded from it. The namespace skeleton and the nesting indexes are built
// when the module is opened; everything else is built on first request.
type Module struct {
	host     *Host
	img      *image.Image
	md       *image.Metadata
	assembly atomic.Pointer[Assembly]
	root     *RootNamespace
	name     string
	id       uint64
	mvid     image.GUID

	namespaces    map[string]*NestedNamespace
	nsTypes       map[string][]uint32
	nsAliases     map[string][]uint32
	nested        map[uint32][]uint32
	enclosing     map[uint32]uint32
	nestedAliases map[uint32][]uint32
	aliasParent   map[uint32]uint32
	typeRefParent map[uint32]uint32

	typeDefs     rowCache[TypeDefinition]
	typeRefs     rowCache[typeSlot]
	typeSpecs    rowCache[TypeSpecification]
	fields       rowCache[FieldDefinition]
	methods      rowCache[MethodDefinition]
	params       rowCache[ParameterDefinition]
	properties   rowCache[PropertyDefinition]
	events       rowCache[EventDefinition]
	memberRefs   rowCache[memberSlot]
	methodSpecs  rowCache[GenericMethodInstanceReference]
	assemblyRefs rowCache[AssemblyReference]
	moduleRefs   rowCache[ModuleReference]
	exported     rowCache[aliasSlot]
	attributes   rowCache[CustomAttribute]
	resources    rowCache[ManifestResource]
	files        rowCache[FileReference]
	sigs         rowCache[StandAloneSignature]

	owners     once[*memberOwners]
	core       once[UnitReference]
	primitives once[map[signature.ElementType]*NamespaceTypeReference]
	nsRefs     once[*namespaceRefs]
	attrs      once[[]*CustomAttribute]
	key        cell[intern.Key]
}

type typeSlot struct{ ref NamedTypeReference }
type memberSlot struct{ ref Named }
type aliasSlot struct{ alias AliasForType }

func newModule(h *Host, img *image.Image) *Module {
	md := img.Metadata
	row := md.Module(1)
	m := &Module{
		host: h,
		img:  img,
		md:   md,
		name: row.Name,
		mvid: row.Mvid,
		id:   h.nextID.Add(1),

		typeDefs:     newRowCache[TypeDefinition](md.RowCount(image.TableTypeDef)),
		typeRefs:     newRowCache[typeSlot](md.RowCount(image.TableTypeRef)),
		typeSpecs:    newRowCache[TypeSpecification](md.RowCount(image.TableTypeSpec)),
		fields:       newRowCache[FieldDefinition](md.RowCount(image.TableField)),
		methods:      newRowCache[MethodDefinition](md.RowCount(image.TableMethodDef)),
		params:       newRowCache[ParameterDefinition](md.RowCount(image.TableParam)),
		properties:   newRowCache[PropertyDefinition](md.RowCount(image.TableProperty)),
		events:       newRowCache[EventDefinition](md.RowCount(image.TableEvent)),
		memberRefs:   newRowCache[memberSlot](md.RowCount(image.TableMemberRef)),
		methodSpecs:  newRowCache[GenericMethodInstanceReference](md.RowCount(image.TableMethodSpec)),
		assemblyRefs: newRowCache[AssemblyReference](md.RowCount(image.TableAssemblyRef)),
		moduleRefs:   newRowCache[ModuleReference](md.RowCount(image.TableModuleRef)),
		exported:     newRowCache[aliasSlot](md.RowCount(image.TableExportedType)),
		attributes:   newRowCache[CustomAttribute](md.RowCount(image.TableCustomAttribute)),
		resources:    newRowCache[ManifestResource](md.RowCount(image.TableManifestResource)),
		files:        newRowCache[FileReference](md.RowCount(image.TableFile)),
		sigs:         newRowCache[StandAloneSignature](md.RowCount(image.TableStandAloneSig)),
	}
	if m.name == "" && img.Path != "" {
		m.name = filepath.Base(img.Path)
	}
	m.buildNesting()
	m.buildNamespaces()
	return m
}

// buildNesting indexes NestedClass rows, nested ExportedType rows and TypeRef
// rows scoped by other TypeRefs. Links that would make an entry enclose
// itself are dropped.
func (m *Module) buildNesting() {
	md := m.md
	types := md.RowCount(image.TableTypeDef)
	m.enclosing = make(map[uint32]uint32)
	for r := uint32(1); r <= md.RowCount(image.TableNestedClass); r++ {
		nc := md.NestedClass(r)
		if nc.NestedClass == 0 || nc.NestedClass > types || nc.EnclosingClass == 0 || nc.EnclosingClass > types {
			continue
		}
		m.enclosing[nc.NestedClass] = nc.EnclosingClass
	}
	breakCycles(m.enclosing, func(row uint32) {
		m.host.log.Debug("dropping cyclic type nesting", zap.String("module", m.name), zap.Uint32("typedef", row))
	})
	m.nested = make(map[uint32][]uint32)
	for r := uint32(1); r <= types; r++ {
		if enc, ok := m.enclosing[r]; ok {
			m.nested[enc] = append(m.nested[enc], r)
		}
	}

	exported := md.RowCount(image.TableExportedType)
	m.aliasParent = make(map[uint32]uint32)
	for r := uint32(1); r <= exported; r++ {
		impl := md.ExportedType(r).Implementation
		if impl.Table() == image.TableExportedType && impl.Row() >= 1 && impl.Row() <= exported {
			m.aliasParent[r] = impl.Row()
		}
	}
	breakCycles(m.aliasParent, func(row uint32) {
		m.host.log.Debug("dropping cyclic exported type nesting", zap.String("module", m.name), zap.Uint32("exported", row))
	})
	m.nestedAliases = make(map[uint32][]uint32)
	for r := uint32(1); r <= exported; r++ {
		if p, ok := m.aliasParent[r]; ok {
			m.nestedAliases[p] = append(m.nestedAliases[p], r)
		}
	}

	refs := md.RowCount(image.TableTypeRef)
	m.typeRefParent = make(map[uint32]uint32)
	for r := uint32(1); r <= refs; r++ {
		scope := md.TypeRef(r).ResolutionScope
		if scope.Table() == image.TableTypeRef && scope.Row() >= 1 && scope.Row() <= refs {
			m.typeRefParent[r] = scope.Row()
		}
	}
	breakCycles(m.typeRefParent, func(row uint32) {
		m.host.log.Debug("dropping cyclic type reference scope", zap.String("module", m.name), zap.Uint32("typeref", row))
	})
}

// breakCycles removes parent links until the graph is a forest.
func breakCycles(parent map[uint32]uint32, dropped func(uint32)) {
	for start := range parent {
		seen := map[uint32]bool{start: true}
		for cur, ok := parent[start]; ok; cur, ok = parent[cur] {
			if seen[cur] {
				delete(parent, cur)
				dropped(cur)
				break
			}
			seen[cur] = true
		}
	}
}

func (m *Module) buildNamespaces() {
	md := m.md
	m.root = &RootNamespace{module: m}
	m.namespaces = make(map[string]*NestedNamespace)
	m.nsTypes = make(map[string][]uint32)
	m.nsAliases = make(map[string][]uint32)
	for r := uint32(1); r <= md.RowCount(image.TableTypeDef); r++ {
		if _, nested := m.enclosing[r]; nested {
			continue
		}
		ns := md.TypeDef(r).Namespace
		m.ensureNamespace(ns)
		m.nsTypes[ns] = append(m.nsTypes[ns], r)
	}
	for r := uint32(1); r <= md.RowCount(image.TableExportedType); r++ {
		if _, nested := m.aliasParent[r]; nested {
			continue
		}
		et := md.ExportedType(r)
		if et.Implementation.Table() == image.TableExportedType {
			continue
		}
		m.ensureNamespace(et.Namespace)
		m.nsAliases[et.Namespace] = append(m.nsAliases[et.Namespace], r)
	}
	m.root.init(m.root.load)
}

// ensureNamespace creates the nested namespace chain for a dotted name.
func (m *Module) ensureNamespace(full string) NamespaceDefinition {
	if full == "" {
		return m.root
	}
	if ns, ok := m.namespaces[full]; ok {
		return ns
	}
	parentName, name := "", full
	if i := strings.LastIndexByte(full, '.'); i >= 0 {
		parentName, name = full[:i], full[i+1:]
	}
	parent := m.ensureNamespace(parentName)
	ns := &NestedNamespace{module: m, parent: parent, name: name, full: full}
	ns.init(ns.load)
	m.namespaces[full] = ns
	switch p := parent.(type) {
	case *RootNamespace:
		p.children = append(p.children, ns)
	case *NestedNamespace:
		p.children = append(p.children, ns)
	}
	return ns
}

// namespaceNamed returns the namespace definition for a dotted name, or nil.
func (m *Module) namespaceNamed(full string) NamespaceDefinition {
	if full == "" {
		return m.root
	}
	if ns, ok := m.namespaces[full]; ok {
		return ns
	}
	return nil
}

func (m *Module) Name() string { return m.name }

func (m *Module) Token() Token {
	if m.md.RowCount(image.TableModule) == 0 {
		return NoToken
	}
	return image.NewToken(image.TableModule, 1)
}

func (m *Module) Accept(v Visitor) { v.VisitModule(m) }

func (m *Module) CustomAttributes() []*CustomAttribute {
	return m.attrs.get(func() []*CustomAttribute { return m.attributesOf(m.Token()) })
}

// Host returns the host the module was loaded into.
func (m *Module) Host() *Host { return m.host }

// Image returns the backing image.
func (m *Module) Image() *image.Image { return m.img }

// Metadata returns the raw tables and heaps.
func (m *Module) Metadata() *image.Metadata { return m.md }

// Mvid is the module version id.
func (m *Module) Mvid() image.GUID { return m.mvid }

// RuntimeVersion is the version string of the metadata root.
func (m *Module) RuntimeVersion() string { return m.md.Version }

// Assembly returns the assembly the module belongs to, or DummyAssembly for
// a module that no loaded manifest claims.
func (m *Module) Assembly() *Assembly {
	if a := m.assembly.Load(); a != nil {
		return a
	}
	return DummyAssembly
}

// NamespaceRoot returns the root of the module's namespace tree.
func (m *Module) NamespaceRoot() *RootNamespace { return m.root }

// ResolvedUnit makes a module usable as the resolution scope of its own TypeRefs.
func (m *Module) ResolvedUnit() Unit { return m }

// unitKey is the key types of this module are qualified with: the assembly
// identity when the module belongs to one, the module otherwise.
func (m *Module) unitKey() intern.Key {
	if m == DummyModule {
		return intern.Dummy
	}
	if a := m.assembly.Load(); a != nil {
		return a.InternedKey()
	}
	return m.InternedKey()
}

// cachedKey memoizes a key in c once m belongs to an assembly. A module
// without one is recomputed on every request: loading its manifest later
// changes the unit its keys are qualified with.
func cachedKey(m *Module, c *cell[intern.Key], compute func() intern.Key) intern.Key {
	if v, ok := c.peek(); ok {
		return v
	}
	if m.assembly.Load() == nil {
		return compute()
	}
	return c.get(compute)
}

// InternedKey identifies the module within its assembly.
func (m *Module) InternedKey() intern.Key {
	if m == DummyModule {
		return intern.Dummy
	}
	return cachedKey(m, &m.key, func() intern.Key {
		asm := intern.None
		if a := m.assembly.Load(); a != nil {
			asm = a.InternedKey()
		}
		return m.host.intern.Intern(intern.Module(asm, m.name))
	})
}

// Types returns every type definition in the module, nested ones included,
// in table order.
func (m *Module) Types() []*TypeDefinition {
	n := m.md.RowCount(image.TableTypeDef)
	out := make([]*TypeDefinition, 0, n)
	for r := uint32(1); r <= n; r++ {
		out = append(out, m.typeDef(r))
	}
	return out
}

// ModuleType returns the <Module> type holding global members, or DummyType.
func (m *Module) ModuleType() *TypeDefinition {
	return m.typeDef(1)
}

// AssemblyReferences returns the AssemblyRef rows in table order.
func (m *Module) AssemblyReferences() []*AssemblyReference {
	n := m.md.RowCount(image.TableAssemblyRef)
	out := make([]*AssemblyReference, 0, n)
	for r := uint32(1); r <= n; r++ {
		out = append(out, m.assemblyRef(r))
	}
	return out
}

// ModuleReferences returns the ModuleRef rows in table order.
func (m *Module) ModuleReferences() []*ModuleReference {
	n := m.md.RowCount(image.TableModuleRef)
	out := make([]*ModuleReference, 0, n)
	for r := uint32(1); r <= n; r++ {
		out = append(out, m.moduleRef(r))
	}
	return out
}

// TypeReferences returns the TypeRef rows in table order.
func (m *Module) TypeReferences() []NamedTypeReference {
	n := m.md.RowCount(image.TableTypeRef)
	out := make([]NamedTypeReference, 0, n)
	for r := uint32(1); r <= n; r++ {
		out = append(out, m.typeRef(r))
	}
	return out
}

// MemberReferences returns the MemberRef rows in table order. Each element
// is a *FieldReference or a *MethodReference.
func (m *Module) MemberReferences() []Named {
	n := m.md.RowCount(image.TableMemberRef)
	out := make([]Named, 0, n)
	for r := uint32(1); r <= n; r++ {
		out = append(out, m.memberRef(r))
	}
	return out
}

// EntryPoint returns the method named by the CLI header, or nil.
func (m *Module) EntryPoint() *MethodDefinition {
	tok := Token(m.img.CLI.EntryPointToken)
	if tok.Table() != image.TableMethodDef || tok.IsNil() {
		return nil
	}
	return m.method(tok.Row())
}

// definesSystemObject reports whether the module defines a root System.Object.
func (m *Module) definesSystemObject() bool {
	for _, r := range m.nsTypes["System"] {
		row := m.md.TypeDef(r)
		if row.Name == "Object" && row.Extends.IsNil() {
			return true
		}
	}
	return false
}

// moduleNamed finds a module of the same assembly by file name.
func (m *Module) moduleNamed(name string) *Module {
	if strings.EqualFold(name, m.name) {
		return m
	}
	if a := m.assembly.Load(); a != nil {
		for _, mod := range a.Modules() {
			if strings.EqualFold(mod.name, name) {
				return mod
			}
		}
		return nil
	}
	return m.host.unboundModule(name)
}

// loadFileModule finds or opens the module stored in file name next to this
// module's image.
func (m *Module) loadFileModule(name string) *Module {
	if mod := m.host.unboundModule(name); mod != nil {
		return mod
	}
	if m.img.Path == "" {
		return nil
	}
	mod, err := m.host.Open(filepath.Join(filepath.Dir(m.img.Path), name))
	if err != nil {
		m.host.log.Debug("cannot open module file", zap.String("file", name), zap.Error(err))
		return nil
	}
	return mod
}

// Assembly is a loaded assembly: a manifest module plus the modules its File
// table names.
type Assembly struct {
	manifest      *Module
	identity      AssemblyIdentity
	publicKey     []byte
	flags         AssemblyFlags
	hashAlgorithm uint32
	probed        once[struct{}]
	attrs         once[[]*CustomAttribute]
	key           cell[intern.Key]
}

func newAssembly(m *Module) *Assembly {
	row := m.md.Assembly(1)
	flags := AssemblyFlags(row.Flags)
	return &Assembly{
		manifest:      m,
		publicKey:     row.PublicKey,
		flags:         flags,
		hashAlgorithm: row.HashAlgID,
		identity: AssemblyIdentity{
			Name:           row.Name,
			Culture:        row.Culture,
			PublicKeyToken: PublicKeyToken(row.PublicKey),
			Version:        Version{row.MajorVersion, row.MinorVersion, row.BuildNumber, row.RevisionNumber},
			Retargetable:   flags&AssemblyRetargetable != 0,
			WindowsRuntime: flags&AssemblyContentTypeMask == AssemblyWindowsRuntime,
		},
	}
}

func (a *Assembly) Name() string { return a.identity.Name }

func (a *Assembly) Token() Token {
	if a.manifest.md.RowCount(image.TableAssembly) == 0 {
		return NoToken
	}
	return image.NewToken(image.TableAssembly, 1)
}

func (a *Assembly) Accept(v Visitor) { v.VisitAssembly(a) }

func (a *Assembly) CustomAttributes() []*CustomAttribute {
	return a.attrs.get(func() []*CustomAttribute { return a.manifest.attributesOf(a.Token()) })
}

func (a *Assembly) Identity() AssemblyIdentity { return a.identity }
func (a *Assembly) Flags() AssemblyFlags { return a.flags }
func (a *Assembly) PublicKey() []byte { return a.publicKey }
func (a *Assembly) HashAlgorithm() uint32 { return a.hashAlgorithm }

// ManifestModule returns the module holding the Assembly row.
func (a *Assembly) ManifestModule() *Module { return a.manifest }

// NamespaceRoot returns the manifest module's namespace root. Types of other
// modules appear there through exported-type aliases.
func (a *Assembly) NamespaceRoot() *RootNamespace { return a.manifest.root }

func (a *Assembly) ResolvedUnit() Unit { return a }

func (a *Assembly) unitKey() intern.Key { return a.InternedKey() }

// InternedKey identifies the assembly by its identity.
func (a *Assembly) InternedKey() intern.Key {
	if a == DummyAssembly {
		return intern.Dummy
	}
	return a.key.get(func() intern.Key { return a.identity.Key(a.manifest.host.intern) })
}

// Modules returns the manifest module followed by every module named in the
// File table that could be found among loaded modules or next to the
// manifest file. Missing modules are skipped.
func (a *Assembly) Modules() []*Module {
	a.probed.get(func() struct{} {
		for _, name := range a.moduleFiles() {
			if a.boundModule(name) != nil {
				continue
			}
			if mod := a.manifest.loadFileModule(name); mod != nil {
				a.bind(mod)
			}
		}
		return struct{}{}
	})
	mods := []*Module{a.manifest}
	for _, name := range a.moduleFiles() {
		if mod := a.boundModule(name); mod != nil {
			mods = append(mods, mod)
		}
	}
	return mods
}

// moduleFiles returns the File table names that hold metadata.
func (a *Assembly) moduleFiles() []string {
	var out []string
	for _, f := range a.Files() {
		if f.ContainsMetadata() {
			out = append(out, f.name)
		}
	}
	return out
}

// names reports whether the File table lists a metadata module called name.
func (a *Assembly) names(name string) bool {
	for _, n := range a.moduleFiles() {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

// boundModule returns the loaded module called name that belongs to a.
func (a *Assembly) boundModule(name string) *Module {
	for _, mod := range a.manifest.host.Modules() {
		if mod != a.manifest && mod.assembly.Load() == a && strings.EqualFold(mod.name, name) {
			return mod
		}
	}
	return nil
}

// bind attaches a module without an Assembly row to a. It reports whether
// mod belongs to a afterwards.
func (a *Assembly) bind(mod *Module) bool {
	if mod.assembly.CompareAndSwap(nil, a) {
		a.manifest.host.log.Debug("linked module", zap.String("module", mod.name), zap.Stringer("assembly", a.identity))
		return true
	}
	return mod.assembly.Load() == a
}

// Files returns the File table of the manifest.
func (a *Assembly) Files() []*FileReference {
	m := a.manifest
	n := m.md.RowCount(image.TableFile)
	out := make([]*FileReference, 0, n)
	for r := uint32(1); r <= n; r++ {
		out = append(out, m.file(r))
	}
	return out
}

// AssemblyReferences returns the manifest module's references.
func (a *Assembly) AssemblyReferences() []*AssemblyReference {
	return a.manifest.AssemblyReferences()
}

// ExportedTypes returns every exported-type row of the manifest, nested ones included.
func (a *Assembly) ExportedTypes() []AliasForType {
	m := a.manifest
	n := m.md.RowCount(image.TableExportedType)
	out := make([]AliasForType, 0, n)
	for r := uint32(1); r <= n; r++ {
		out = append(out, m.exportedType(r))
	}
	return out
}

// ManifestResources returns the manifest's resources.
func (a *Assembly) ManifestResources() []*ManifestResource {
	m := a.manifest
	n := m.md.RowCount(image.TableManifestResource)
	out := make([]*ManifestResource, 0, n)
	for r := uint32(1); r <= n; r++ {
		out = append(out, m.resource(r))
	}
	return out
}

// FileReference is a row of the File table.
type FileReference struct {
	module    *Module
	name      string
	hashValue []byte
	row       uint32
	flags     uint32
}

func (m *Module) file(row uint32) *FileReference {
	f, ok := m.files.get(row, func() *FileReference {
		r := m.md.File(row)
		return &FileReference{module: m, row: row, name: r.Name, hashValue: r.HashValue, flags: r.Flags}
	})
	if !ok {
		return nil
	}
	return f
}

func (f *FileReference) Name() string { return f.name }
func (f *FileReference) Token() Token { return image.NewToken(image.TableFile, f.row) }
func (f *FileReference) HashValue() []byte { return f.hashValue }
func (f *FileReference) Accept(v Visitor) { v.VisitFileReference(f) }

// ContainsMetadata reports whether the file is a module rather than a plain resource file.
func (f *FileReference) ContainsMetadata() bool { return f.flags&1 == 0 }

func (f *FileReference) CustomAttributes() []*CustomAttribute {
	return f.module.attributesOf(f.Token())
}

// ResolvedModule returns the module stored in the file, or DummyModule.
func (f *FileReference) ResolvedModule() *Module {
	if mod := f.module.moduleNamed(f.name); mod != nil {
		return mod
	}
	if f.ContainsMetadata() {
		if mod := f.module.loadFileModule(f.name); mod != nil {
			return mod
		}
	}
	return DummyModule
}

// ResolvedUnit makes a file the scope of the types exported from it.
func (f *FileReference) ResolvedUnit() Unit { return f.ResolvedModule() }

// unitKey is the key of the assembly the file belongs to.
func (f *FileReference) unitKey() intern.Key {
	if mod := f.ResolvedModule(); mod != DummyModule {
		return mod.unitKey()
	}
	return f.module.unitKey()
}
