package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:    PhaseEncode,
				Kind:     KindTypeMismatch,
				Path:     []string{"user", "address", "zip"},
				GoType:   "string",
				WireType: "u32",
				Detail:   "cannot convert",
			},
			contains: []string{"[encode]", "type_mismatch", "user.address.zip", "string", "u32", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseDecode,
				Kind:  KindOutOfBounds,
			},
			contains: []string{"[decode]", "out_of_bounds"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseLoad,
				Kind:   KindAllocation,
				Detail: "memory full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[load]", "allocation", "memory full", "caused by", "underlying error"},
		},
		{
			name:     "released handle",
			err:      AlreadyReleased("Counter"),
			contains: []string{"[lifecycle]", "already_released", "Counter"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseEncode,
		Kind:  KindTypeMismatch,
		Path:  []string{"foo"},
	}

	if !err.Is(&Error{Phase: PhaseEncode, Kind: KindTypeMismatch}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseDecode, Kind: KindTypeMismatch}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseEncode, Kind: KindOutOfBounds}) {
		t.Error("Is should not match different kind")
	}

	target := &Error{Phase: PhaseEncode, Kind: KindTypeMismatch}
	if !errors.Is(err, target) {
		t.Error("errors.Is should match")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseEncode, KindTypeMismatch).
		Path("user", "name").
		GoType("string").
		WireType("u32").
		Value(42).
		Cause(cause).
		Detail("expected %s, got %s", "string", "int").
		Build()

	if err.Phase != PhaseEncode {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseEncode)
	}
	if err.Kind != KindTypeMismatch {
		t.Errorf("Kind = %v, want %v", err.Kind, KindTypeMismatch)
	}
	if len(err.Path) != 2 || err.Path[0] != "user" || err.Path[1] != "name" {
		t.Errorf("Path = %v, want [user name]", err.Path)
	}
	if err.GoType != "string" {
		t.Errorf("GoType = %v, want 'string'", err.GoType)
	}
	if err.WireType != "u32" {
		t.Errorf("WireType = %v, want 'u32'", err.WireType)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected string, got int" {
		t.Errorf("Detail = %v, want 'expected string, got int'", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("InvalidDiscriminant", func(t *testing.T) {
		err := InvalidDiscriminant(PhaseDecode, []string{"variant"}, 5, 3)
		if err.Kind != KindInvalidVariant {
			t.Errorf("Kind = %v, want %v", err.Kind, KindInvalidVariant)
		}
		if !strings.Contains(err.Detail, "[1, 3]") {
			t.Errorf("Detail = %q, should name the 1-based range", err.Detail)
		}
	})

	t.Run("OutOfBounds", func(t *testing.T) {
		err := OutOfBounds(PhaseDecode, []string{"list"}, 10, 5)
		if err.Kind != KindOutOfBounds {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOutOfBounds)
		}
		if err.Value != 10 {
			t.Errorf("Value = %v, want 10", err.Value)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseEncode, []string{"val"}, 300, "u8")
		if err.Kind != KindOverflow {
			t.Errorf("Kind = %v, want %v", err.Kind, KindOverflow)
		}
	})

	t.Run("TrailingBytes", func(t *testing.T) {
		err := TrailingBytes(3)
		if err.Phase != PhaseDecode || err.Kind != KindTrailingBytes {
			t.Errorf("got [%s] %s", err.Phase, err.Kind)
		}
	})

	t.Run("UnknownHandle", func(t *testing.T) {
		err := UnknownHandle(PhaseDispatch, 42)
		if err.Kind != KindUnknownHandle {
			t.Errorf("Kind = %v, want %v", err.Kind, KindUnknownHandle)
		}
		if !strings.Contains(err.Error(), "42") {
			t.Errorf("message %q should name the handle", err.Error())
		}
	})

	t.Run("Panic with message", func(t *testing.T) {
		err := Panic("index out of range")
		if err.Detail != "index out of range" {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("Panic without message", func(t *testing.T) {
		err := Panic("")
		if !strings.Contains(err.Detail, "while handling a panic") {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("UnknownStatus", func(t *testing.T) {
		err := UnknownStatus(7)
		if err.Kind != KindUnknownStatus || err.Value != int8(7) {
			t.Errorf("got kind %s value %v", err.Kind, err.Value)
		}
	})
}

func TestIsKind(t *testing.T) {
	base := AlreadyReleased("Widget")
	wrapped := fmt.Errorf("calling widget: %w", base)

	if !IsKind(wrapped, KindAlreadyReleased) {
		t.Error("IsKind should see through fmt wrapping")
	}
	if IsKind(wrapped, KindUnknownHandle) {
		t.Error("IsKind matched the wrong kind")
	}
	if KindOf(wrapped) != KindAlreadyReleased {
		t.Errorf("KindOf = %q", KindOf(wrapped))
	}
	if KindOf(errors.New("plain")) != "" {
		t.Error("KindOf should be empty for foreign errors")
	}

	nested := Wrap(PhaseCall, KindNativeError, Panic("boom"), "outer")
	if !IsKind(nested, KindPanic) {
		t.Error("IsKind should find kinds deeper in the cause chain")
	}
}

func TestIsFatal(t *testing.T) {
	if !IsFatal(Panic("boom")) {
		t.Error("panic should be fatal")
	}
	if IsFatal(NativeError(nil)) {
		t.Error("native error should not be fatal")
	}
	if IsFatal(nil) {
		t.Error("nil should not be fatal")
	}
}

func TestWithPath(t *testing.T) {
	base := OutOfBounds(PhaseDecode, []string{"zip"}, 4, 2)
	got := WithPath(base, "user", "address")

	var e *Error
	if !errors.As(got, &e) {
		t.Fatalf("WithPath returned %T", got)
	}
	if strings.Join(e.Path, ".") != "user.address.zip" {
		t.Errorf("Path = %v", e.Path)
	}
	if len(base.Path) != 1 {
		t.Error("WithPath must not modify the original error")
	}

	plain := errors.New("plain")
	if WithPath(plain, "x") != plain {
		t.Error("foreign errors should pass through")
	}
}
