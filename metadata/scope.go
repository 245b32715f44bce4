package metadata

import (
	"slices"

	"golang.org/x/text/cases"
)

// scope is the lazily built name index of a container. The loader runs once,
// on the first query; concurrent first queries wait for it. A loader only
// creates member objects and never queries its own scope, so the per-container
// lock cannot be re-entered.
type scope[M Named] struct {
	index once[*memberIndex[M]]
	load  func() []M
}

type memberIndex[M Named] struct {
	exact  map[string][]M
	folded map[string][]M
	all    []M
}

func (s *scope[M]) init(load func() []M) {
	s.load = load
}

func (s *scope[M]) members() *memberIndex[M] {
	return s.index.get(func() *memberIndex[M] {
		var all []M
		if s.load != nil {
			all = s.load()
		}
		fold := cases.Fold()
		idx := &memberIndex[M]{
			exact:  make(map[string][]M, len(all)),
			folded: make(map[string][]M, len(all)),
			all:    all,
		}
		for _, m := range all {
			name := m.Name()
			idx.exact[name] = append(idx.exact[name], m)
			f := fold.String(name)
			idx.folded[f] = append(idx.folded[f], m)
		}
		return idx
	})
}

// Members returns every member in declaration order. The slice is a copy.
func (s *scope[M]) Members() []M {
	return slices.Clone(s.members().all)
}

// GetMembersNamed returns the members called name. With ignoreCase the
// comparison uses Unicode case folding, so the result is a superset of the
// case-sensitive one. The slice is a copy.
func (s *scope[M]) GetMembersNamed(name string, ignoreCase bool) []M {
	return slices.Clone(s.named(name, ignoreCase))
}

func (s *scope[M]) named(name string, ignoreCase bool) []M {
	idx := s.members()
	if ignoreCase {
		return idx.folded[cases.Fold().String(name)]
	}
	return idx.exact[name]
}

// Contains reports whether m is a member of this container.
func (s *scope[M]) Contains(m M) bool {
	for _, c := range s.members().exact[m.Name()] {
		if any(c) == any(m) {
			return true
		}
	}
	return false
}

// GetMatchingMembers returns the members for which pred holds.
func (s *scope[M]) GetMatchingMembers(pred func(M) bool) []M {
	return filter(s.members().all, pred)
}

// GetMatchingMembersNamed returns the members called name for which pred holds.
func (s *scope[M]) GetMatchingMembersNamed(name string, ignoreCase bool, pred func(M) bool) []M {
	return filter(s.named(name, ignoreCase), pred)
}

func filter[M any](in []M, pred func(M) bool) []M {
	var out []M
	for _, m := range in {
		if pred(m) {
			out = append(out, m)
		}
	}
	return out
}

// ofType returns the members that are of concrete type T.
func ofType[T any, M any](in []M) []T {
	var out []T
	for _, m := range in {
		if t, ok := any(m).(T); ok {
			out = append(out, t)
		}
	}
	return out
}
