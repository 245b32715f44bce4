// Package clrmeta reads CLI (ECMA-335) assemblies into a lazily resolved,
// thread-safe object model.
//
// The library is organized into several packages with distinct responsibilities:
//
//	clrmeta/             Root package with the Open shortcut
//	├── metadata/        Object model: units, namespaces, types, members, resolution
//	├── image/           PE container, metadata root, heaps and tables; image builder
//	├── signature/       Signature blob grammar (II.23.2) and marshalling descriptors
//	├── il/              CIL instruction decoding and encoding
//	├── intern/          Structural interning of type, method and field identities
//	├── errors/          Structured error types for debugging
//	└── cmd/mdview/      Command line inspector
//
// # Quick Start
//
//	mod, err := clrmeta.Open("Lib.dll")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, t := range mod.Types() {
//	    fmt.Println(t.FullName())
//	}
//
// Several assemblies that reference each other are loaded into one Host so
// references resolve across them:
//
//	host := metadata.NewHost(metadata.DefaultOptions())
//	core, _ := host.Open("System.Private.CoreLib.dll")
//	lib, _ := host.Open("Lib.dll")
//
// # Laziness
//
// Opening a module parses the tables and builds the namespace skeleton.
// Everything else (member lists, signatures, resolved references, method
// bodies) is decoded on first request and memoized. Unresolvable references
// and malformed blobs produce sentinel objects such as metadata.DummyType
// instead of errors; the degradation is logged at debug level.
//
// # Thread Safety
//
// Host, Module and every object reachable from them are safe for concurrent
// use. Concurrent first requests for the same lazily computed value observe
// the same result.
package clrmeta
