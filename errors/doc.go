// Package errors provides structured error types for the clrmeta library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the metadata entity involved, a dotted path such as
// "TypeDef.row 12.Signature", and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseParse, errors.KindOutOfBounds).
//		Path("#~", "MethodDef", "row 7").
//		Entity("MethodDef").
//		Detail("blob offset 0x%x past heap end", off).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Truncated(errors.PhaseSignature, path, 4, 2)
//	err := errors.OutOfBounds(errors.PhaseParse, path, 10, 5)
//
// Decoding code absorbs unresolved-reference and malformed-data errors into
// sentinel values. Misuse errors are raised with panic because no local repair
// exists for them.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
