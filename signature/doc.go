// Package signature decodes and encodes the blob grammars of ECMA-335 II.23.2:
// method, field, property, local variable, type specification and method
// instantiation signatures, plus the marshalling descriptors of II.23.4.
//
// Decoded types form a closed tree of Type values. Decoding never stops at the
// first malformed slot: the slot becomes an Invalid node, decoding continues
// with the remaining slots, and the first failure is returned alongside the
// partial result.
//
//	sig, err := signature.ParseMethod(blob)
//	if err != nil {
//	    log.Printf("partial signature: %v", err)
//	}
//	for _, p := range sig.Params {
//	    fmt.Println(p)
//	}
//
// Tokens inside signatures (CLASS, VALUETYPE, custom modifiers) are left as
// image.Token values; resolving them to types is the job of package metadata.
package signature
