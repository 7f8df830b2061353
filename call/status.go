// Package call converts native call outcomes into Go results.
//
// Every native entry point receives a *Status it must fill in. Callers never
// build a Status by hand; they wrap the native invocation in Do or
// DoWithError, which run it with a fresh Status and translate the result.
package call

import (
	"fmt"

	"github.com/wippyai/ffi-runtime/errors"
)

// Code is the outcome code a native call writes into its Status.
type Code int8

const (
	CodeSuccess   Code = 0
	CodeError     Code = 1 // ErrorBuf holds the encoded error value
	CodePanic     Code = 2 // ErrorBuf holds a UTF-8 message, possibly empty
	CodeCancelled Code = 3 // async reverse call abandoned by its caller
)

func (c Code) String() string {
	switch c {
	case CodeSuccess:
		return "success"
	case CodeError:
		return "error"
	case CodePanic:
		return "panic"
	case CodeCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("code(%d)", int8(c))
	}
}

// Status is the status-out parameter of a native call.
type Status struct {
	Code     Code
	ErrorBuf []byte
}

// SetError marks the call as failed with an encoded error value.
func (s *Status) SetError(payload []byte) {
	s.Code = CodeError
	s.ErrorBuf = payload
}

// SetPanic marks the call as an unrecoverable failure.
func (s *Status) SetPanic(msg string) {
	s.Code = CodePanic
	s.ErrorBuf = []byte(msg)
}

// SetCancelled marks an async call abandoned before completion.
func (s *Status) SetCancelled() {
	s.Code = CodeCancelled
	s.ErrorBuf = nil
}

// Reset returns the status to success with no payload.
func (s *Status) Reset() {
	s.Code = CodeSuccess
	s.ErrorBuf = nil
}

// ErrorLifter decodes an error payload into the call's declared error type.
// If the payload cannot be decoded it returns the decode failure instead.
type ErrorLifter func(payload []byte) error

// Check converts a filled-in status into an error. lift may be nil for calls
// that declare no error type.
func Check(st *Status, lift ErrorLifter) error {
	switch st.Code {
	case CodeSuccess:
		return nil
	case CodeError:
		if lift == nil {
			return errors.NativeError(st.ErrorBuf)
		}
		if err := lift(st.ErrorBuf); err != nil {
			return err
		}
		return errors.NativeError(st.ErrorBuf)
	case CodePanic:
		return errors.Panic(string(st.ErrorBuf))
	case CodeCancelled:
		return errors.Cancelled(errors.PhaseCall, nil)
	default:
		return errors.UnknownStatus(int8(st.Code))
	}
}

// Do runs a native call that returns nothing and declares no error type.
func Do(fn func(st *Status)) error {
	var st Status
	fn(&st)
	return Check(&st, nil)
}

// DoWithError runs a native call and converts its status. On failure the
// returned value is the zero value regardless of what fn returned.
func DoWithError[T any](lift ErrorLifter, fn func(st *Status) T) (T, error) {
	var st Status
	v := fn(&st)
	if err := Check(&st, lift); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}
