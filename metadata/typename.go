package metadata

import (
	"strings"

	"go.uber.org/zap"

	"github.com/wippyai/clrmeta/errors"
)

// typeName is a parsed serialized type name:
// Namespace.Outer+Inner`1[[Arg, Assembly]][], Assembly.
type typeName struct {
	name     string
	args     []*typeName
	vectors  int
	assembly string
}

type typeNameParser struct {
	s   string
	pos int
}

func parseTypeName(s string) (*typeName, error) {
	p := &typeNameParser{s: s}
	t, err := p.typ(true)
	if err != nil {
		return nil, err
	}
	if p.pos != len(p.s) {
		return nil, errors.InvalidInput(errors.PhaseAttribute, "trailing text in type name "+s)
	}
	return t, nil
}

func (p *typeNameParser) peek(prefix string) bool {
	return strings.HasPrefix(p.s[p.pos:], prefix)
}

func (p *typeNameParser) expect(c byte) error {
	if p.pos >= len(p.s) || p.s[p.pos] != c {
		return errors.InvalidInput(errors.PhaseAttribute, "malformed type name "+p.s)
	}
	p.pos++
	return nil
}

// typ parses one type. Only assembly-qualified positions may carry an
// assembly name after a comma.
func (p *typeNameParser) typ(qualified bool) (*typeName, error) {
	t := &typeName{}
	start := p.pos
	for p.pos < len(p.s) && !strings.ContainsRune("[],", rune(p.s[p.pos])) {
		p.pos++
	}
	t.name = strings.TrimSpace(p.s[start:p.pos])
	if t.name == "" {
		return nil, errors.InvalidInput(errors.PhaseAttribute, "empty type name in "+p.s)
	}
	if p.peek("[") && !p.peek("[]") {
		p.pos++
		for {
			var arg *typeName
			var err error
			if p.peek("[") {
				p.pos++
				if arg, err = p.typ(true); err != nil {
					return nil, err
				}
				if err := p.expect(']'); err != nil {
					return nil, err
				}
			} else if arg, err = p.typ(false); err != nil {
				return nil, err
			}
			t.args = append(t.args, arg)
			if p.peek(",") {
				p.pos++
				continue
			}
			if err := p.expect(']'); err != nil {
				return nil, err
			}
			break
		}
	}
	for p.peek("[]") {
		p.pos += 2
		t.vectors++
	}
	if qualified && p.peek(",") {
		p.pos++
		start := p.pos
		for p.pos < len(p.s) && p.s[p.pos] != ']' {
			p.pos++
		}
		t.assembly = strings.TrimSpace(p.s[start:p.pos])
	}
	return t, nil
}

// TypeByName builds a reference from a serialized type name. Names without
// an assembly are looked up in this module's unit first and then in the
// core assembly.
func (m *Module) TypeByName(name string) (TypeReference, error) {
	t, err := parseTypeName(name)
	if err != nil {
		return DummyType, err
	}
	return m.typeFromName(t)
}

func (m *Module) typeFromName(t *typeName) (TypeReference, error) {
	named, err := m.namedTypeByName(t.name, t.assembly)
	if err != nil {
		return DummyType, err
	}
	var out TypeReference = named
	if len(t.args) > 0 {
		args := make([]TypeReference, len(t.args))
		for i, a := range t.args {
			if args[i], err = m.typeFromName(a); err != nil {
				return DummyType, err
			}
		}
		out = m.Instantiate(named, args...)
	}
	for i := 0; i < t.vectors; i++ {
		out = &VectorTypeReference{module: m, elem: out}
	}
	return out, nil
}

func (m *Module) namedTypeByName(name, assembly string) (NamedTypeReference, error) {
	parts := strings.Split(name, "+")
	ns, top := "", parts[0]
	if i := strings.LastIndexByte(top, '.'); i >= 0 {
		ns, top = top[:i], top[i+1:]
	}

	var ref NamedTypeReference
	if assembly != "" {
		id, err := ParseAssemblyIdentity(assembly)
		if err != nil {
			return DummyType, err
		}
		ref = m.newNamespaceTypeRef(m.assemblyRefFor(id), ns, top, NoToken)
	} else {
		var unit UnitReference = m
		if a := m.assembly.Load(); a != nil {
			unit = a
		}
		ref = m.newNamespaceTypeRef(unit, ns, top, NoToken)
		if IsDummy(ref.ResolvedType()) {
			ref = m.newNamespaceTypeRef(m.coreScope(), ns, top, NoToken)
		}
	}
	for _, p := range parts[1:] {
		ref = &NestedTypeReference{module: m, container: ref, name: p, token: NoToken}
	}
	if IsDummy(ref.ResolvedType()) {
		m.host.log.Debug("type name does not resolve", zap.String("module", m.name), zap.String("type", name))
	}
	return ref, nil
}

// assemblyRefFor returns the module's AssemblyRef with the identity's name,
// or a reference synthesized for it.
func (m *Module) assemblyRefFor(id AssemblyIdentity) *AssemblyReference {
	for _, r := range m.AssemblyReferences() {
		if strings.EqualFold(r.Name(), id.Name) {
			return r
		}
	}
	return &AssemblyReference{module: m, token: NoToken, identity: id}
}
