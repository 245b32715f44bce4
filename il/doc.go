// Package il decodes and encodes CIL instruction streams (ECMA-335
// Partition III).
//
// Decode turns the code bytes of a method body into instructions with typed
// immediates. Branch and switch targets are converted to absolute offsets
// within the stream; token operands are left as raw metadata tokens for the
// caller to resolve.
//
//	instrs, err := il.Decode(code)
//	for _, in := range instrs {
//	    fmt.Println(in)
//	}
//
// Encode is the inverse and is mostly used to build test fixtures.
package il
