package metadata

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/intern"
)

// Version is a four-part assembly version.
type Version struct {
	Major    uint16
	Minor    uint16
	Build    uint16
	Revision uint16
}

// ParseVersion parses "1", "1.2", "1.2.3" or "1.2.3.4".
func ParseVersion(s string) (Version, bool) {
	if s == "" {
		return Version{}, false
	}
	parts := strings.Split(s, ".")
	if len(parts) > 4 {
		return Version{}, false
	}
	var v [4]uint16
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Version{}, false
		}
		v[i] = uint16(n)
	}
	return Version{v[0], v[1], v[2], v[3]}, true
}

// Compare returns -1, 0 or 1 ordering v against o part by part.
func (v Version) Compare(o Version) int {
	a := [4]uint16{v.Major, v.Minor, v.Build, v.Revision}
	b := [4]uint16{o.Major, o.Minor, o.Build, o.Revision}
	for i := range a {
		switch {
		case a[i] < b[i]:
			return -1
		case a[i] > b[i]:
			return 1
		}
	}
	return 0
}

func (v Version) String() string {
	return strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor)) + "." +
		strconv.Itoa(int(v.Build)) + "." + strconv.Itoa(int(v.Revision))
}

func (v Version) parts() [4]uint16 {
	return [4]uint16{v.Major, v.Minor, v.Build, v.Revision}
}

// AssemblyIdentity names an assembly.
type AssemblyIdentity struct {
	Name           string
	Culture        string
	PublicKeyToken []byte
	Version        Version
	Retargetable   bool
	WindowsRuntime bool
}

// String formats the identity as a display name.
func (id AssemblyIdentity) String() string {
	var b strings.Builder
	b.WriteString(id.Name)
	b.WriteString(", Version=")
	b.WriteString(id.Version.String())
	b.WriteString(", Culture=")
	if id.Culture == "" {
		b.WriteString("neutral")
	} else {
		b.WriteString(id.Culture)
	}
	b.WriteString(", PublicKeyToken=")
	if len(id.PublicKeyToken) == 0 {
		b.WriteString("null")
	} else {
		b.WriteString(hex.EncodeToString(id.PublicKeyToken))
	}
	if id.Retargetable {
		b.WriteString(", Retargetable=Yes")
	}
	if id.WindowsRuntime {
		b.WriteString(", ContentType=WindowsRuntime")
	}
	return b.String()
}

// Key interns the identity in t.
func (id AssemblyIdentity) Key(t *intern.Table) intern.Key {
	return t.Intern(intern.Assembly(id.Name, id.Culture, id.PublicKeyToken, id.Version.parts()))
}

// sameFamily reports whether o has the same name, culture and public key
// token as id, ignoring the version. An empty token on id matches any token.
func (id AssemblyIdentity) sameFamily(o AssemblyIdentity) bool {
	if !strings.EqualFold(id.Name, o.Name) || !strings.EqualFold(normalCulture(id.Culture), normalCulture(o.Culture)) {
		return false
	}
	return len(id.PublicKeyToken) == 0 || bytes.Equal(id.PublicKeyToken, o.PublicKeyToken)
}

func normalCulture(c string) string {
	if strings.EqualFold(c, "neutral") {
		return ""
	}
	return c
}

// PublicKeyToken derives the 8-byte token of a full public key: the last eight
// bytes of its SHA-1 hash, reversed. Blobs of eight bytes or fewer are
// already tokens and are returned as is.
func PublicKeyToken(publicKey []byte) []byte {
	if len(publicKey) <= 8 {
		return publicKey
	}
	sum := sha1.Sum(publicKey)
	token := make([]byte, 8)
	for i := range token {
		token[i] = sum[len(sum)-1-i]
	}
	return token
}

// IdentityUnifier rewrites an assembly identity before it is matched against
// loaded assemblies, for example to map framework facades onto one identity.
type IdentityUnifier interface {
	Unify(id AssemblyIdentity) AssemblyIdentity
}

// UnifierFunc adapts a function to IdentityUnifier.
type UnifierFunc func(AssemblyIdentity) AssemblyIdentity

func (f UnifierFunc) Unify(id AssemblyIdentity) AssemblyIdentity { return f(id) }

// TypeProjector substitutes one platform's type references for another's.
// It is called once for every TypeRef row when its object is first built.
type TypeProjector interface {
	Project(ref NamedTypeReference) NamedTypeReference
}

// ParseAssemblyIdentity parses a display name such as
// "Lib, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null". Unknown
// properties are ignored.
func ParseAssemblyIdentity(display string) (AssemblyIdentity, error) {
	parts := strings.Split(display, ",")
	id := AssemblyIdentity{Name: strings.TrimSpace(parts[0])}
	if id.Name == "" {
		return id, errors.InvalidInput(errors.PhaseResolve, "empty assembly name")
	}
	for _, p := range parts[1:] {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return id, errors.InvalidInput(errors.PhaseResolve, "malformed assembly name property "+strings.TrimSpace(p))
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		switch strings.ToLower(k) {
		case "version":
			ver, ok := ParseVersion(v)
			if !ok {
				return id, errors.InvalidInput(errors.PhaseResolve, "bad version "+v)
			}
			id.Version = ver
		case "culture":
			id.Culture = normalCulture(v)
		case "publickeytoken":
			if strings.EqualFold(v, "null") {
				continue
			}
			tok, err := hex.DecodeString(v)
			if err != nil {
				return id, errors.InvalidInput(errors.PhaseResolve, "bad public key token "+v)
			}
			id.PublicKeyToken = tok
		case "retargetable":
			id.Retargetable = strings.EqualFold(v, "yes")
		case "contenttype":
			id.WindowsRuntime = strings.EqualFold(v, "windowsruntime")
		}
	}
	return id, nil
}
