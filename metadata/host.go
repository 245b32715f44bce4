package metadata

import (
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/intern"
)

// Options configures a Host.
type Options struct {
	// Logger receives degradation reports: unresolved references, malformed
	// signatures, alias cycles. Defaults to the package logger.
	Logger *zap.Logger

	// Unifier rewrites assembly identities before matching. Optional.
	Unifier IdentityUnifier

	// Projector rewrites TypeRef objects as they are built. Optional.
	Projector TypeProjector

	// Intern is the key table. Defaults to intern.Default.
	Intern *intern.Table

	// CoreAssemblyName names the assembly that defines System.Object. When
	// empty the usual framework names are tried.
	CoreAssemblyName string

	// BodyCacheSize bounds the number of decoded method bodies kept alive.
	BodyCacheSize int
}

// DefaultOptions returns the default host configuration.
func DefaultOptions() Options {
	return Options{
		Intern:        intern.Default,
		BodyCacheSize: 1024,
	}
}

// coreAssemblyNames are tried in order when Options.CoreAssemblyName is empty.
var coreAssemblyNames = []string{"System.Private.CoreLib", "mscorlib", "System.Runtime", "netstandard"}

// Host owns loaded modules and assemblies and everything shared between them:
// options, the intern table and the method body cache. Thread-safe.
type Host struct {
	log        *zap.Logger
	intern     *intern.Table
	bodies     *bodyCache
	opts       Options
	assemblies []*Assembly
	modules    []*Module
	nextID     atomic.Uint64
	mu         sync.RWMutex
}

// NewHost creates a host. Zero option fields take their defaults.
func NewHost(opts Options) *Host {
	def := DefaultOptions()
	if opts.Intern == nil {
		opts.Intern = def.Intern
	}
	if opts.BodyCacheSize <= 0 {
		opts.BodyCacheSize = def.BodyCacheSize
	}
	log := opts.Logger
	if log == nil {
		log = Logger()
	}
	return &Host{
		log:    log,
		intern: opts.Intern,
		bodies: newBodyCache(opts.BodyCacheSize),
		opts:   opts,
	}
}

// Options returns the configuration.
func (h *Host) Options() Options {
	return h.opts
}

// InternTable returns the table interned keys come from.
func (h *Host) InternTable() *intern.Table {
	return h.intern
}

// Open reads and loads the assembly or module file at path.
func (h *Host) Open(path string) (*Module, error) {
	img, err := image.Open(path)
	if err != nil {
		return nil, err
	}
	return h.LoadImage(img)
}

// LoadImage loads an already parsed image. When the image carries an Assembly
// row the returned module is the manifest module of a new Assembly.
func (h *Host) LoadImage(img *image.Image) (*Module, error) {
	if img == nil || img.Metadata == nil {
		return nil, errors.InvalidInput(errors.PhaseOpen, "image has no metadata")
	}
	m := newModule(h, img)
	var asm *Assembly
	if img.Metadata.RowCount(image.TableAssembly) > 0 {
		asm = newAssembly(m)
		m.assembly.Store(asm)
	}

	h.mu.Lock()
	h.modules = append(h.modules, m)
	if asm != nil {
		h.assemblies = append(h.assemblies, asm)
	}
	h.mu.Unlock()
	h.link(m, asm)

	fields := []zap.Field{zap.String("module", m.name)}
	if asm != nil {
		fields = append(fields, zap.Stringer("assembly", asm.identity))
	}
	h.log.Debug("loaded module", fields...)
	return m, nil
}

// link binds file modules to their manifest as soon as both are loaded, so
// keys are never qualified with a module that later joins an assembly. A new
// manifest adopts the loaded modules its File table names; a new module
// without an Assembly row joins the first loaded manifest naming it.
func (h *Host) link(m *Module, asm *Assembly) {
	if asm != nil {
		for _, name := range asm.moduleFiles() {
			if mod := h.unboundModule(name); mod != nil {
				asm.bind(mod)
			}
		}
		return
	}
	for _, a := range h.Assemblies() {
		if a.names(m.name) && a.bind(m) {
			return
		}
	}
}

// Assemblies returns the loaded assemblies in load order.
func (h *Host) Assemblies() []*Assembly {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Assembly, len(h.assemblies))
	copy(out, h.assemblies)
	return out
}

// Modules returns every loaded module, including manifest modules.
func (h *Host) Modules() []*Module {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Module, len(h.modules))
	copy(out, h.modules)
	return out
}

// unify applies the configured identity unifier.
func (h *Host) unify(id AssemblyIdentity) AssemblyIdentity {
	if h.opts.Unifier != nil {
		return h.opts.Unifier.Unify(id)
	}
	return id
}

// FindAssembly returns the loaded assembly matching id after unification.
// An exact version match wins; otherwise the highest loaded version with the
// same name, culture and public key token is used. Returns DummyAssembly when
// nothing matches.
func (h *Host) FindAssembly(id AssemblyIdentity) *Assembly {
	id = h.unify(id)
	h.mu.RLock()
	defer h.mu.RUnlock()
	var best *Assembly
	for _, a := range h.assemblies {
		if !id.sameFamily(a.identity) {
			continue
		}
		if a.identity.Version == id.Version {
			return a
		}
		if best == nil || a.identity.Version.Compare(best.identity.Version) > 0 {
			best = a
		}
	}
	if best == nil {
		return DummyAssembly
	}
	return best
}

// findByName returns the first loaded assembly called name, or nil.
func (h *Host) findByName(name string) *Assembly {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, a := range h.assemblies {
		if strings.EqualFold(a.identity.Name, name) {
			return a
		}
	}
	return nil
}

// CoreAssembly returns the loaded assembly that defines System.Object, or
// DummyAssembly.
func (h *Host) CoreAssembly() *Assembly {
	if h.opts.CoreAssemblyName != "" {
		if a := h.findByName(h.opts.CoreAssemblyName); a != nil {
			return a
		}
		return DummyAssembly
	}
	for _, name := range coreAssemblyNames {
		if a := h.findByName(name); a != nil {
			return a
		}
	}
	for _, a := range h.Assemblies() {
		if a.manifest.definesSystemObject() {
			return a
		}
	}
	return DummyAssembly
}

// unboundModule returns a loaded module without an assembly whose name is
// name, or nil.
func (h *Host) unboundModule(name string) *Module {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, m := range h.modules {
		if m.assembly.Load() == nil && strings.EqualFold(m.name, name) {
			return m
		}
	}
	return nil
}

// ReleaseBodies drops every cached method body. Later requests decode again.
func (h *Host) ReleaseBodies() {
	h.bodies.purge()
}
