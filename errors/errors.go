package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse    Phase = "parse"    // class file to Go
	PhaseEncode   Phase = "encode"   // Go to class file
	PhaseLoad     Phase = "load"     // Code attribute to instruction list
	PhaseRewrite  Phase = "rewrite"  // instruction list editing
	PhaseFinalize Phase = "finalize" // instruction list to Code attribute
	PhaseIO       Phase = "io"       // file system access
	PhaseCLI      Phase = "cli"      // command line handling
)

// Kind categorizes the error
type Kind string

const (
	KindUsage              Kind = "usage"
	KindNotFound           Kind = "not_found"
	KindMalformed          Kind = "malformed"
	KindTargetingViolation Kind = "targeting_violation"
	KindOverflow           Kind = "overflow"
	KindUnsupported        Kind = "unsupported"
	KindOutOfBounds        Kind = "out_of_bounds"
	KindIO                 Kind = "io"
)

// Sentinels for errors.Is. They match any Error of the same Phase and Kind.
var (
	ErrUsage              = &Error{Phase: PhaseCLI, Kind: KindUsage}
	ErrFileNotFound       = &Error{Phase: PhaseIO, Kind: KindNotFound}
	ErrMalformedClassFile = &Error{Phase: PhaseParse, Kind: KindMalformed}
	ErrTargetingViolation = &Error{Phase: PhaseRewrite, Kind: KindTargetingViolation}
)

// Error is the structured error type used throughout the module
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Path   []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the location path, e.g. class, method, attribute
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// Usage creates a command line usage error
func Usage(detail string) *Error {
	return &Error{
		Phase:  PhaseCLI,
		Kind:   KindUsage,
		Detail: detail,
	}
}

// FileNotFound creates an error for a path that is not a regular file
func FileNotFound(path string, cause error) *Error {
	return &Error{
		Phase:  PhaseIO,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("no such file: %s", path),
		Value:  path,
		Cause:  cause,
	}
}

// Malformed creates a structural class file error
func Malformed(phase Phase, path []string, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMalformed,
		Path:   path,
		Detail: detail,
		Cause:  cause,
	}
}

// TargetingViolation creates an error for an edit that would leave a
// targeter referencing an instruction outside the list
func TargetingViolation(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseRewrite,
		Kind:   KindTargetingViolation,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, target string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOverflow,
		Path:   path,
		Detail: fmt.Sprintf("value %v overflows %s", value, target),
		Value:  value,
	}
}

// Unsupported creates an unsupported construct error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// IO wraps a file system failure
func IO(op, path string, cause error) *Error {
	return &Error{
		Phase:  PhaseIO,
		Kind:   KindIO,
		Detail: fmt.Sprintf("%s %s", op, path),
		Value:  path,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// WithPath returns a copy of err with path prepended when err is an *Error.
// Other errors are returned unchanged.
func WithPath(err error, path ...string) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	cp := *e
	cp.Path = append(append([]string(nil), path...), e.Path...)
	return &cp
}
