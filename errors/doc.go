// Package errors provides structured error types for the ffi runtime.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, Go/wire type names, and cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseEncode, errors.KindOverflow).
//		Path("user", "age").
//		GoType("int").
//		WireType("u8").
//		Detail("value 300 does not fit").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.OutOfBounds(errors.PhaseDecode, path, 10, 5)
//	err := errors.AlreadyReleased("Widget")
//
// Lifecycle and call failures have dedicated kinds so callers can branch on them
// without string matching:
//
//	if errors.IsKind(err, errors.KindAlreadyReleased) { ... }
//	if errors.IsFatal(err) { ... } // native panic, never retry
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
