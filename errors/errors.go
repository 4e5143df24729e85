package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseLoad        Phase = "load"        // blob decoding and module analysis
	PhaseConfig      Phase = "config"      // configuration loading and validation
	PhaseInstantiate Phase = "instantiate" // compile, link and instantiate
	PhaseReset       Phase = "reset"       // snapshot restore before a call
	PhaseInject      Phase = "inject"      // input allocation and copy-in
	PhaseInvoke      Phase = "invoke"      // guest entry point execution
	PhaseExtract     Phase = "extract"     // result copy-out
	PhaseHost        Phase = "host"        // host function registration and dispatch
)

// Kind categorizes the error
type Kind string

const (
	KindModule           Kind = "module"
	KindImportBinding    Kind = "import_binding"
	KindMemoryAccess     Kind = "memory_access"
	KindInvocation       Kind = "invocation"
	KindAllocation       Kind = "allocation"
	KindUnsupportedValue Kind = "unsupported_value"
	KindUnsupported      Kind = "unsupported"
	KindInvalidInput     Kind = "invalid_input"
)

// Sentinels match any *Error of the same Kind regardless of phase.
var (
	ErrModule           = &Error{Kind: KindModule}
	ErrImportBinding    = &Error{Kind: KindImportBinding}
	ErrMemoryAccess     = &Error{Kind: KindMemoryAccess}
	ErrInvocation       = &Error{Kind: KindInvocation}
	ErrAllocation       = &Error{Kind: KindAllocation}
	ErrUnsupportedValue = &Error{Kind: KindUnsupportedValue}
	ErrUnsupported      = &Error{Kind: KindUnsupported}
	ErrInvalidInput     = &Error{Kind: KindInvalidInput}
)

// Error is the structured error type used throughout the executor
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Name   string // export, import or global the error refers to
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	if e.Phase != "" {
		b.WriteByte('[')
		b.WriteString(string(e.Phase))
		b.WriteString("] ")
	}
	b.WriteString(string(e.Kind))

	if e.Name != "" {
		b.WriteString(" at ")
		b.WriteString(e.Name)
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

// Is reports whether target matches this error.
// A target without a phase matches on kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Phase == "" {
		return e.Kind == t.Kind
	}
	return e.Phase == t.Phase && e.Kind == t.Kind
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

// Name sets the export, import or global name
func (b *Builder) Name(name string) *Builder {
	b.err.Name = name
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

// Module creates an error for a malformed or unusable module
func Module(phase Phase, detail string, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindModule,
		Detail: detail,
		Cause:  cause,
	}
}

// ImportBinding creates a linking error for an unresolved or mismatched import
func ImportBinding(name string, cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindImportBinding,
		Name:   name,
		Detail: "bind import",
		Cause:  cause,
	}
}

// MemoryAccess creates an out of bounds linear memory error
func MemoryAccess(phase Phase, offset uint32, length, size uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindMemoryAccess,
		Detail: fmt.Sprintf("range [%d, %d) outside memory of %d bytes", offset, uint64(offset)+length, size),
		Value:  offset,
	}
}

// Invocation creates an invocation error for a named export
func Invocation(name, detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindInvocation,
		Name:   name,
		Detail: detail,
		Cause:  cause,
	}
}

// Allocation creates an allocation failure error
func Allocation(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Value:  size,
		Cause:  cause,
	}
}

// UnsupportedValue creates an error for a foreign value with no host representation
func UnsupportedValue(typeName string) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindUnsupportedValue,
		Detail: fmt.Sprintf("value type %s has no host representation", typeName),
		Value:  typeName,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
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

// HostCode is an opaque failure code returned by a host function.
// It passes through the guest trap unchanged and can be recovered with errors.As.
type HostCode uint8

func (c HostCode) Error() string {
	return fmt.Sprintf("host function failed with code %d", uint8(c))
}
