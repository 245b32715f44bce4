package metadata

import (
	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
)

// AssemblyReference is an AssemblyRef row, or a synthesized reference to the
// core assembly when a module has none.
type AssemblyReference struct {
	module    *Module
	identity  AssemblyIdentity
	publicKey []byte
	hashValue []byte
	token     Token
	flags     AssemblyFlags
	resolved  cell[*Assembly]
	key       cell[intern.Key]
	attrs     once[[]*CustomAttribute]
}

func (m *Module) assemblyRef(row uint32) *AssemblyReference {
	r, ok := m.assemblyRefs.get(row, func() *AssemblyReference {
		ar := m.md.AssemblyRef(row)
		flags := AssemblyFlags(ar.Flags)
		token := ar.PublicKeyOrToken
		if flags&AssemblyPublicKey != 0 {
			token = PublicKeyToken(ar.PublicKeyOrToken)
		}
		return &AssemblyReference{
			module:    m,
			token:     image.NewToken(image.TableAssemblyRef, row),
			flags:     flags,
			publicKey: ar.PublicKeyOrToken,
			hashValue: ar.HashValue,
			identity: AssemblyIdentity{
				Name:           ar.Name,
				Culture:        ar.Culture,
				PublicKeyToken: token,
				Version:        Version{ar.MajorVersion, ar.MinorVersion, ar.BuildNumber, ar.RevisionNumber},
				Retargetable:   flags&AssemblyRetargetable != 0,
				WindowsRuntime: flags&AssemblyContentTypeMask == AssemblyWindowsRuntime,
			},
		}
	})
	if !ok {
		return nil
	}
	return r
}

func (r *AssemblyReference) Name() string { return r.identity.Name }
func (r *AssemblyReference) Token() Token { return r.token }
func (r *AssemblyReference) Accept(v Visitor) { v.VisitAssemblyReference(r) }
func (r *AssemblyReference) Identity() AssemblyIdentity { return r.identity }
func (r *AssemblyReference) Flags() AssemblyFlags { return r.flags }
func (r *AssemblyReference) HashValue() []byte { return r.hashValue }
func (r *AssemblyReference) Module() *Module { return r.module }
func (r *AssemblyReference) PublicKeyOrToken() []byte { return r.publicKey }
func (r *AssemblyReference) ResolvedUnit() Unit { return r.ResolvedAssembly() }
func (r *AssemblyReference) unitKey() intern.Key { return r.InternedKey() }
func (r *AssemblyReference) String() string { return r.identity.String() }
func (r *AssemblyReference) UnifiedIdentity() AssemblyIdentity {
	return r.module.host.unify(r.identity)
}

func (r *AssemblyReference) CustomAttributes() []*CustomAttribute {
	return r.attrs.get(func() []*CustomAttribute { return r.module.attributesOf(r.token) })
}

// ResolvedAssembly returns the loaded assembly the reference unifies to, or
// DummyAssembly. The result, including the dummy, is memoized.
func (r *AssemblyReference) ResolvedAssembly() *Assembly {
	return r.resolved.get(func() *Assembly {
		a := r.module.host.FindAssembly(r.identity)
		if a == DummyAssembly {
			r.module.host.log.Debug("unresolved assembly reference",
				zap.String("module", r.module.name), zap.Stringer("assembly", r.identity))
		}
		return a
	})
}

// InternedKey is the key of the resolved assembly's identity when the
// reference resolves, so references to one assembly with different literal
// versions share a key. Otherwise it is the key of the unified identity.
func (r *AssemblyReference) InternedKey() intern.Key {
	return r.key.get(func() intern.Key {
		if a := r.ResolvedAssembly(); a != DummyAssembly {
			return a.InternedKey()
		}
		return r.UnifiedIdentity().Key(r.module.host.intern)
	})
}

// ModuleReference is a ModuleRef row: another module of the same assembly,
// or a native library named by P/Invoke.
type ModuleReference struct {
	module   *Module
	name     string
	row      uint32
	resolved cell[*Module]
	attrs    once[[]*CustomAttribute]
}

func (m *Module) moduleRef(row uint32) *ModuleReference {
	r, ok := m.moduleRefs.get(row, func() *ModuleReference {
		return &ModuleReference{module: m, row: row, name: m.md.ModuleRef(row).Name}
	})
	if !ok {
		return nil
	}
	return r
}

func (r *ModuleReference) Name() string { return r.name }
func (r *ModuleReference) Token() Token { return image.NewToken(image.TableModuleRef, r.row) }
func (r *ModuleReference) Accept(v Visitor) { v.VisitModuleReference(r) }
func (r *ModuleReference) Module() *Module { return r.module }
func (r *ModuleReference) memberRefParent() {}

func (r *ModuleReference) CustomAttributes() []*CustomAttribute {
	return r.attrs.get(func() []*CustomAttribute { return r.module.attributesOf(r.Token()) })
}

// ResolvedModule returns the module of the same assembly with this name, or
// DummyModule. Native libraries never resolve.
func (r *ModuleReference) ResolvedModule() *Module {
	return r.resolved.get(func() *Module {
		if mod := r.module.moduleNamed(r.name); mod != nil {
			return mod
		}
		return DummyModule
	})
}

func (r *ModuleReference) ResolvedUnit() Unit { return r.ResolvedModule() }

// unitKey qualifies types found through a module reference with the
// referencing assembly: the target module belongs to it.
func (r *ModuleReference) unitKey() intern.Key {
	if mod := r.ResolvedModule(); mod != DummyModule {
		return mod.unitKey()
	}
	return r.module.host.intern.Intern(intern.Module(r.module.unitKey(), r.name))
}
