// Package metadata is the object model of a CLI assembly.
//
// A Host owns loaded modules. Each Module wraps one image and hands out one
// object per table row: TypeDefinition, MethodDefinition, FieldDefinition,
// NamespaceTypeReference, MethodReference and so on. Objects are created on
// first request and then reused, so == compares identity.
//
// # Containers
//
// Namespaces and type definitions are containers. Their member lists are
// built once, on the first query, and indexed by name:
//
//	t := mod.NamespaceRoot()
//	for _, m := range t.GetMembersNamed("System", false) { ... }
//
// A case-insensitive query returns a superset of the case-sensitive one.
//
// # Resolution
//
// References resolve to definitions in loaded units. ResolvedType follows
// exported-type aliases (type forwarders) with a visited set, so cyclic
// forwarders end at DummyType instead of looping. InternedKey gives every
// type, method and field a structural identity that a reference shares with
// the definition it names, without resolving anything.
//
// # Failure
//
// Broken references and malformed blobs yield sentinels (DummyType,
// DummyMethod, DummyField, DummyAlias, DummyAssembly, DummyModule,
// DummyNamespace); IsDummy tests for them. Handing an operation an object it
// cannot work with, such as a foreign Object to ModuleOf, panics with an
// *errors.Error of kind misuse.
package metadata
