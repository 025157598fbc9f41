// Package errors provides structured error types for the checkcast remover.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries a location path (class, method, attribute), a detail
// message, the offending value and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLoad, errors.KindMalformed).
//		Path("com.example.Foo", "bar", "Code").
//		Detail("branch target %d is not an instruction boundary", 17).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.TargetingViolation("handle %d still targeted", h)
//	err := errors.OutOfBounds(errors.PhaseParse, path, 10, 5)
//
// All errors implement the standard error interface and support errors.Is/As.
// The exported sentinels (ErrMalformedClassFile, ErrTargetingViolation, ...)
// match every Error with the same Phase and Kind.
package errors
