package metadata

import (
	"os"
	"path/filepath"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
)

// ManifestResourceAttributes are the flags of a ManifestResource row.
type ManifestResourceAttributes uint32

const (
	ResourceVisibilityMask ManifestResourceAttributes = 0x0007
	ResourcePublic         ManifestResourceAttributes = 0x0001
	ResourcePrivate        ManifestResourceAttributes = 0x0002
)

// ManifestResource is a named blob of data shipped with an assembly. It is
// embedded in the image, stored in a file of the assembly, or owned by
// another assembly.
type ManifestResource struct {
	module *Module
	row    uint32
	name   string
	offset uint32
	flags  ManifestResourceAttributes
	impl   Token
	attrs  once[[]*CustomAttribute]
}

func (m *Module) resource(row uint32) *ManifestResource {
	r, ok := m.resources.get(row, func() *ManifestResource {
		r := m.md.ManifestResource(row)
		return &ManifestResource{
			module: m,
			row:    row,
			name:   r.Name,
			offset: r.Offset,
			flags:  ManifestResourceAttributes(r.Flags),
			impl:   r.Implementation,
		}
	})
	if !ok {
		return nil
	}
	return r
}

func (r *ManifestResource) Name() string { return r.name }
func (r *ManifestResource) Token() Token { return image.NewToken(image.TableManifestResource, r.row) }
func (r *ManifestResource) Module() *Module { return r.module }
func (r *ManifestResource) Flags() ManifestResourceAttributes { return r.flags }
func (r *ManifestResource) Offset() uint32 { return r.offset }
func (r *ManifestResource) IsPublic() bool { return r.flags&ResourceVisibilityMask == ResourcePublic }
func (r *ManifestResource) Accept(v Visitor) { v.VisitManifestResource(r) }

// IsEmbedded reports whether the data lives in this image.
func (r *ManifestResource) IsEmbedded() bool { return r.impl.IsNil() }

func (r *ManifestResource) CustomAttributes() []*CustomAttribute {
	return r.attrs.get(func() []*CustomAttribute { return r.module.attributesOf(r.Token()) })
}

// File is the file holding the data, or nil.
func (r *ManifestResource) File() *FileReference {
	if r.impl.Table() != image.TableFile || r.impl.Row() == 0 {
		return nil
	}
	return r.module.file(r.impl.Row())
}

// DefiningAssembly is the assembly owning the data, or nil when the data
// belongs to this assembly.
func (r *ManifestResource) DefiningAssembly() *AssemblyReference {
	if r.impl.Table() != image.TableAssemblyRef || r.impl.Row() == 0 {
		return nil
	}
	return r.module.assemblyRef(r.impl.Row())
}

// Data reads the resource bytes. Linked files are read from the directory of
// the module's image. Resources of other assemblies are not read.
func (r *ManifestResource) Data() ([]byte, error) {
	if r.IsEmbedded() {
		return r.module.img.Resource(r.offset)
	}
	if f := r.File(); f != nil {
		if r.module.img.Path == "" {
			return nil, errors.NotFound(errors.PhaseOpen, "resource file", f.Name())
		}
		data, err := os.ReadFile(filepath.Join(filepath.Dir(r.module.img.Path), f.Name()))
		if err != nil {
			return nil, errors.Open("resource file "+f.Name(), err)
		}
		if int(r.offset) > len(data) {
			return nil, errors.OutOfBounds(errors.PhaseOpen, []string{"resources", r.name}, int(r.offset), len(data))
		}
		return data[r.offset:], nil
	}
	return nil, errors.NotFound(errors.PhaseResolve, "embedded resource", r.name)
}
