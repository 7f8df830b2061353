package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase is the stage of a boundary crossing that failed.
type Phase string

const (
	PhaseEncode    Phase = "encode"    // host value to wire bytes
	PhaseDecode    Phase = "decode"    // wire bytes to host value
	PhaseValidate  Phase = "validate"  // data validation
	PhaseCall      Phase = "call"      // native call outcome
	PhaseLifecycle Phase = "lifecycle" // handle admission and release
	PhaseDispatch  Phase = "dispatch"  // reverse calls from native code
	PhaseReclaim   Phase = "reclaim"   // background reclamation
	PhaseLoad      Phase = "load"      // native library loading
	PhaseParse     Phase = "parse"     // type expression parsing
)

// Kind is what went wrong, independent of phase.
type Kind string

const (
	KindTypeMismatch     Kind = "type_mismatch"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindInvalidData      Kind = "invalid_data"
	KindUnsupported      Kind = "unsupported"
	KindAllocation       Kind = "allocation"
	KindInvalidUTF8      Kind = "invalid_utf8"
	KindOverflow         Kind = "overflow"
	KindNilPointer       Kind = "nil_pointer"
	KindInvalidVariant   Kind = "invalid_variant"
	KindTrailingBytes    Kind = "trailing_bytes"
	KindNotFound         Kind = "not_found"
	KindInvalidInput     Kind = "invalid_input"
	KindAlreadyReleased  Kind = "already_released"
	KindCounterExhausted Kind = "counter_exhausted"
	KindUnknownHandle    Kind = "unknown_handle"
	KindPanic            Kind = "panic"
	KindNativeError      Kind = "native_error"
	KindUnknownStatus    Kind = "unknown_status"
	KindCancelled        Kind = "cancelled"
)

// Error is the structured error type used throughout the runtime
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	WireType string
	Detail   string
	Path     []string
}

// Error renders "[phase] kind at path: types: detail: cause".
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

	if e.GoType != "" || e.WireType != "" {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.WireType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", wire type ")
			b.WriteString(e.WireType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("wire type ")
			b.WriteString(e.WireType)
		}
	}

	if e.Detail != "" {
		if e.GoType != "" || e.WireType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap exposes the cause to errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on phase and kind only.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder assembles an Error field by field.
type Builder struct {
	err Error
}

// New starts building an error.
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the field path from the outermost value inward.
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType records the Go side of the mismatch.
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WireType sets the wire type name
func (b *Builder) WireType(t string) *Builder {
	b.err.WireType = t
	return b
}

// Value records the value that failed.
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause records the error this one wraps.
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the message, formatting it when args are given.
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the error. The builder must not be reused.
func (b *Builder) Build() *Error {
	return &b.err
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsKind reports whether any *Error in err's chain has the given kind,
// regardless of phase.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// WithPath returns err with segs prepended to its field path. Errors that
// are not *Error are returned unchanged.
func WithPath(err error, segs ...string) error {
	e, ok := err.(*Error)
	if !ok {
		return err
	}
	cp := *e
	cp.Path = append(append([]string{}, segs...), e.Path...)
	return &cp
}

// IsFatal reports whether err is a native panic. Fatal errors must not be retried.
func IsFatal(err error) bool {
	return IsKind(err, KindPanic)
}

// Constructors for the common cases.

// TypeMismatch reports a Go value that does not match its wire type.
func TypeMismatch(phase Phase, path []string, goType, wireType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		WireType: wireType,
	}
}

// InvalidUTF8 reports string bytes that are not UTF-8. At most 32 bytes
// are shown in the detail.
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidUTF8,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// AllocationFailed reports a native allocator that refused size bytes.
func AllocationFailed(phase Phase, size uint32, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
		Cause:  cause,
	}
}

// InvalidDiscriminant creates an invalid discriminant error for variants/enums.
// Indexes are 1-based on the wire, so the valid range is [1, maxValid].
func InvalidDiscriminant(phase Phase, path []string, disc int32, maxValid int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidVariant,
		Path:   path,
		Detail: fmt.Sprintf("discriminant %d out of range [1, %d]", disc, maxValid),
		Value:  disc,
	}
}

// Unsupported reports a type or feature the runtime cannot map.
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds reports a read or write past the end of a buffer or memory.
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NilPointer reports a nil value where the wire format has no null.
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// Overflow reports a value that does not fit the target width.
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindOverflow,
		Path:     path,
		WireType: targetType,
		Detail:   fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:    value,
	}
}

// InvalidData reports bytes that decode to no valid value.
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// TrailingBytes reports junk left in a buffer after a value was fully read.
func TrailingBytes(remaining int) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindTrailingBytes,
		Detail: fmt.Sprintf("%d bytes remaining after read", remaining),
		Value:  remaining,
	}
}

// Wrap attaches a phase, kind and detail to an error from another layer.
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Lifecycle constructors

// AlreadyReleased is returned when a call is attempted on a released handle.
func AlreadyReleased(name string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindAlreadyReleased,
		GoType: name,
		Detail: "handle already released",
	}
}

// CounterExhausted is returned when the in-flight counter cannot be incremented.
func CounterExhausted(name string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindCounterExhausted,
		GoType: name,
		Detail: "in-flight call counter exhausted",
	}
}

// UnknownHandle is returned by handle tables for absent or removed handles.
func UnknownHandle(phase Phase, h uint64) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnknownHandle,
		Detail: fmt.Sprintf("handle %d not registered", h),
		Value:  h,
	}
}

// Call outcome constructors

// Panic reports an unrecoverable native failure. Message may be empty.
func Panic(message string) *Error {
	if message == "" {
		message = "native code panicked while handling a panic"
	}
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindPanic,
		Detail: message,
	}
}

// NativeError reports an error status for a call that declares no error type.
func NativeError(payload []byte) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindNativeError,
		Detail: fmt.Sprintf("native call failed with %d byte error payload", len(payload)),
		Value:  payload,
	}
}

// UnknownStatus reports a status code outside the protocol.
func UnknownStatus(code int8) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindUnknownStatus,
		Detail: fmt.Sprintf("unknown status code %d", code),
		Value:  code,
	}
}

// Cancelled reports an operation abandoned because its context ended.
func Cancelled(phase Phase, cause error) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCancelled,
		Detail: "operation cancelled",
		Cause:  cause,
	}
}

// NotFound reports a missing export, symbol or entry.
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// InvalidInput reports a malformed argument from the caller.
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Load creates a library loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed wraps a failure to parse a type expression or input.
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
