package dynamic

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/errors"
)

type integer interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

type float interface {
	~float32 | ~float64
}

func mismatch(v any, wireType string) *errors.Error {
	return errors.TypeMismatch(errors.PhaseEncode, nil, fmt.Sprintf("%T", v), wireType)
}

// magnitude splits an integral number into sign and absolute value. JSON
// decoded numbers arrive as float64 or json.Number and are accepted when
// they have no fractional part.
func magnitude(v any) (neg bool, mag uint64, ok bool) {
	switch x := v.(type) {
	case int:
		return signed(int64(x))
	case int8:
		return signed(int64(x))
	case int16:
		return signed(int64(x))
	case int32:
		return signed(int64(x))
	case int64:
		return signed(x)
	case uint:
		return false, uint64(x), true
	case uint8:
		return false, uint64(x), true
	case uint16:
		return false, uint64(x), true
	case uint32:
		return false, uint64(x), true
	case uint64:
		return false, x, true
	case ffiruntime.Handle:
		return false, uint64(x), true
	case float32:
		return integral(float64(x))
	case float64:
		return integral(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return signed(i)
		}
		if u, err := strconv.ParseUint(string(x), 10, 64); err == nil {
			return false, u, true
		}
		if f, err := x.Float64(); err == nil {
			return integral(f)
		}
	}
	return false, 0, false
}

func signed(i int64) (bool, uint64, bool) {
	if i < 0 {
		return true, uint64(-(i + 1)) + 1, true
	}
	return false, uint64(i), true
}

func integral(f float64) (bool, uint64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return false, 0, false
	}
	if f < 0 {
		if f < math.MinInt64 {
			return false, 0, false
		}
		return signed(int64(f))
	}
	if f >= math.MaxUint64 {
		return false, 0, false
	}
	return false, uint64(f), true
}

// coerceInt converts any integral number to T, rejecting values T cannot
// represent.
func coerceInt[T integer](wireType string) func(any) (T, error) {
	return func(v any) (T, error) {
		if x, ok := v.(T); ok {
			return x, nil
		}
		neg, mag, ok := magnitude(v)
		if !ok {
			return 0, mismatch(v, wireType)
		}
		if neg {
			if mag > 1<<63 {
				return 0, errors.Overflow(errors.PhaseEncode, nil, v, wireType)
			}
			i := -int64(mag - 1) - 1
			t := T(i)
			if t >= 0 || int64(t) != i {
				return 0, errors.Overflow(errors.PhaseEncode, nil, v, wireType)
			}
			return t, nil
		}
		t := T(mag)
		if t < 0 || uint64(t) != mag {
			return 0, errors.Overflow(errors.PhaseEncode, nil, v, wireType)
		}
		return t, nil
	}
}

func coerceFloat[T float](wireType string) func(any) (T, error) {
	return func(v any) (T, error) {
		switch x := v.(type) {
		case T:
			return x, nil
		case float32:
			return T(x), nil
		case float64:
			return T(x), nil
		case json.Number:
			f, err := x.Float64()
			if err != nil {
				return 0, mismatch(v, wireType)
			}
			return T(f), nil
		}
		neg, mag, ok := magnitude(v)
		if !ok {
			return 0, mismatch(v, wireType)
		}
		if neg {
			return -T(mag), nil
		}
		return T(mag), nil
	}
}

func coerceBool(v any) (bool, error) {
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, mismatch(v, "bool")
}

func coerceString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	}
	return "", mismatch(v, "string")
}

// coerceChar accepts a rune, a code point number or a one-rune string.
func coerceChar(v any) (uint32, error) {
	var r rune
	switch x := v.(type) {
	case rune:
		r = x
	case string:
		if utf8.RuneCountInString(x) != 1 {
			return 0, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("char needs exactly one rune, got %q", x))
		}
		r, _ = utf8.DecodeRuneInString(x)
	default:
		cp, err := coerceInt[uint32]("char")(v)
		if err != nil {
			return 0, err
		}
		r = rune(cp)
	}
	if !utf8.ValidRune(r) {
		return 0, errors.InvalidInput(errors.PhaseEncode, fmt.Sprintf("invalid code point %#x", r))
	}
	return uint32(r), nil
}

func liftChar(cp uint32) (any, error) {
	r := rune(cp)
	if cp > utf8.MaxRune || !utf8.ValidRune(r) {
		return nil, errors.InvalidData(errors.PhaseDecode, nil, fmt.Sprintf("invalid code point %#x", cp))
	}
	return r, nil
}

// coerceBytes accepts []byte, a string, or a list of byte values.
func coerceBytes(v any) ([]byte, error) {
	switch x := v.(type) {
	case []byte:
		return x, nil
	case string:
		return []byte(x), nil
	case []any:
		out := make([]byte, len(x))
		toByte := coerceInt[uint8]("u8")
		for i, e := range x {
			b, err := toByte(e)
			if err != nil {
				return nil, errors.WithPath(err, strconv.Itoa(i))
			}
			out[i] = b
		}
		return out, nil
	}
	return nil, mismatch(v, "list<u8>")
}

func coerceSlice(v any, wireType string) ([]any, error) {
	switch x := v.(type) {
	case []any:
		return x, nil
	case nil:
		return nil, nil
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out, nil
	}
	return nil, mismatch(v, wireType)
}
