package codec

import (
	stderrors "errors"

	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/errors"
)

// ErrorLifter adapts an error codec for call.DoWithError.
func ErrorLifter[E error](c Codec[E]) call.ErrorLifter {
	return func(payload []byte) error {
		v, err := LiftBuffer(c, payload)
		if err != nil {
			return errors.Wrap(errors.PhaseCall, errors.KindInvalidData, err, "lift error payload")
		}
		return v
	}
}

// LowerError encodes err into st if it is of the declared error type E and
// reports whether it did. Errors of other types are left to the caller.
func LowerError[E error](c Codec[E], err error, st *call.Status) (bool, error) {
	var e E
	if !stderrors.As(err, &e) {
		return false, nil
	}
	payload, lerr := LowerBuffer(c, e)
	if lerr != nil {
		return false, lerr
	}
	st.SetError(payload)
	return true, nil
}
