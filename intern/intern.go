// Package intern assigns small integer keys to structural identities.
//
// Two descriptors that are equal get the same key for the lifetime of the
// table, so callers compare keys instead of walking type trees. Keys are never
// reused or removed. The zero key means "no key". Key 1 is reserved in every
// table for sentinel objects, so a sentinel never shares a key with a real
// entity and keys built on top of it agree across tables.
package intern

import (
	"encoding/binary"
	"encoding/hex"
	"strings"
	"sync"
)

// Key is an interned identity. Real entities get keys from 2 on.
type Key uint32

// None is the zero key. Dummy is the key of every sentinel; interning a
// KindDummy descriptor returns it.
const (
	None  Key = 0
	Dummy Key = 1
)

// Kind tags the shape of a descriptor so different shapes never collide.
type Kind uint8

const (
	KindList Kind = iota + 1
	KindAssembly
	KindModule
	KindNamespace
	KindNamespaceType
	KindNestedType
	KindTypeParameter
	KindMethodParameter
	KindPointer
	KindManagedPointer
	KindVector
	KindMatrix
	KindGenericInstance
	KindModified
	KindFunctionPointer
	KindSignature
	KindMethod
	KindGenericMethodInstance
	KindField
	KindDummy
)

// Descriptor is the structural identity of one entity. It is comparable and
// used directly as a map key.
type Descriptor struct {
	S       string
	A, B, C uint32
	Kind    Kind
}

// Table is a concurrency-safe intern table.
type Table struct {
	keys map[Descriptor]Key
	mu   sync.Mutex
	next Key
}

// New creates an empty table. The first assigned key follows Dummy.
func New() *Table {
	return &Table{keys: make(map[Descriptor]Key), next: Dummy + 1}
}

// Default is the process-wide table used when a host is not given its own.
var Default = New()

// Intern returns the key of d, assigning the next key on first sight.
func (t *Table) Intern(d Descriptor) Key {
	if d.Kind == KindDummy {
		return Dummy
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if k, ok := t.keys[d]; ok {
		return k
	}
	k := t.next
	t.next++
	t.keys[d] = k
	return k
}

// Lookup returns the key of d without assigning one.
func (t *Table) Lookup(d Descriptor) (Key, bool) {
	if d.Kind == KindDummy {
		return Dummy, true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	k, ok := t.keys[d]
	return k, ok
}

// Len returns the number of assigned keys, not counting Dummy.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.keys)
}

// List interns an ordered list of keys as a single key. The empty list has a key too.
func (t *Table) List(keys ...Key) Key {
	buf := make([]byte, 4*len(keys))
	for i, k := range keys {
		binary.LittleEndian.PutUint32(buf[4*i:], uint32(k))
	}
	return t.Intern(Descriptor{Kind: KindList, A: uint32(len(keys)), S: string(buf)})
}

// Values interns an ordered list of plain numbers as a single key.
func (t *Table) Values(vals ...uint32) Key {
	keys := make([]Key, len(vals))
	for i, v := range vals {
		keys[i] = Key(v)
	}
	return t.List(keys...)
}

// Assembly describes an assembly identity. Names compare case-insensitively;
// the culture "neutral" equals the empty culture.
func Assembly(name, culture string, publicKeyToken []byte, version [4]uint16) Descriptor {
	c := strings.ToLower(culture)
	if c == "neutral" {
		c = ""
	}
	return Descriptor{
		Kind: KindAssembly,
		S:    strings.ToLower(name) + "\x00" + c + "\x00" + hex.EncodeToString(publicKeyToken),
		A:    uint32(version[0])<<16 | uint32(version[1]),
		B:    uint32(version[2])<<16 | uint32(version[3]),
	}
}

// Module describes a module of an assembly.
func Module(assembly Key, name string) Descriptor {
	return Descriptor{Kind: KindModule, A: uint32(assembly), S: strings.ToLower(name)}
}

// Namespace describes a namespace inside a unit or a parent namespace.
func Namespace(parent Key, name string) Descriptor {
	return Descriptor{Kind: KindNamespace, A: uint32(parent), S: name}
}

// NamespaceType describes a top-level type. genericCount is part of the identity.
func NamespaceType(namespace Key, name string, genericCount uint32) Descriptor {
	return Descriptor{Kind: KindNamespaceType, A: uint32(namespace), B: genericCount, S: name}
}

// NestedType describes a type nested in container.
func NestedType(container Key, name string, genericCount uint32) Descriptor {
	return Descriptor{Kind: KindNestedType, A: uint32(container), B: genericCount, S: name}
}

// TypeParameter describes generic type parameter index of owner.
func TypeParameter(owner Key, index uint32) Descriptor {
	return Descriptor{Kind: KindTypeParameter, A: uint32(owner), B: index}
}

// MethodParameter describes generic method parameter index. The owning method
// is not part of the identity: a method's key depends on its signature, which
// may mention its own parameters.
func MethodParameter(index uint32) Descriptor {
	return Descriptor{Kind: KindMethodParameter, B: index}
}

func Pointer(target Key) Descriptor { return Descriptor{Kind: KindPointer, A: uint32(target)} }
func ManagedPointer(target Key) Descriptor { return Descriptor{Kind: KindManagedPointer, A: uint32(target)} }
func Vector(elem Key) Descriptor { return Descriptor{Kind: KindVector, A: uint32(elem)} }

// Matrix describes a general array; shape is a list key of sizes then lower bounds.
func Matrix(elem Key, rank uint32, shape Key) Descriptor {
	return Descriptor{Kind: KindMatrix, A: uint32(elem), B: rank, C: uint32(shape)}
}

// GenericInstance describes generic bound to the list key args.
func GenericInstance(generic, args Key) Descriptor {
	return Descriptor{Kind: KindGenericInstance, A: uint32(generic), B: uint32(args)}
}

// Modified describes unmodified with the list key modifiers. Each modifier
// entry is a type key shifted left by one with the low bit set when required.
func Modified(unmodified, modifiers Key) Descriptor {
	return Descriptor{Kind: KindModified, A: uint32(unmodified), B: uint32(modifiers)}
}

// FunctionPointer describes a function pointer with signature key sig.
func FunctionPointer(sig Key) Descriptor {
	return Descriptor{Kind: KindFunctionPointer, A: uint32(sig)}
}

// Signature describes a method signature: convention and generic arity in A,
// return type in B and the parameter list key in C.
func Signature(callConv uint8, genericCount uint32, ret, params Key) Descriptor {
	return Descriptor{Kind: KindSignature, A: uint32(callConv)<<24 | genericCount&0xFFFFFF, B: uint32(ret), C: uint32(params)}
}

// Method describes a method by owning type, name and signature.
func Method(owner Key, name string, sig Key) Descriptor {
	return Descriptor{Kind: KindMethod, A: uint32(owner), B: uint32(sig), S: name}
}

// GenericMethodInstance describes method bound to the list key args.
func GenericMethodInstance(method, args Key) Descriptor {
	return Descriptor{Kind: KindGenericMethodInstance, A: uint32(method), B: uint32(args)}
}

// Field describes a field by owning type, name and type.
func Field(owner Key, name string, typ Key) Descriptor {
	return Descriptor{Kind: KindField, A: uint32(owner), B: uint32(typ), S: name}
}

// Sentinel describes a sentinel object. Every sentinel interns to Dummy.
func Sentinel() Descriptor { return Descriptor{Kind: KindDummy} }
