package codec

import (
	"unicode/utf8"

	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/wire"
)

// fixed is a codec for fixed-width numbers that cross the boundary as
// themselves.
type fixed[T any] struct {
	size  int
	read  func(*wire.Buffer) (T, error)
	write func(*wire.Buffer, T)
}

func (c fixed[T]) Read(b *wire.Buffer) (T, error) { return c.read(b) }

func (c fixed[T]) Write(v T, b *wire.Buffer) error {
	c.write(b, v)
	return nil
}

func (c fixed[T]) AllocationSize(T) int { return c.size }
func (c fixed[T]) Lift(a T) (T, error) { return a, nil }
func (c fixed[T]) Lower(v T) (T, error) { return v, nil }

var (
	Int8    Scalar[int8, int8]       = fixed[int8]{1, (*wire.Buffer).ReadI8, (*wire.Buffer).WriteI8}
	Int16   Scalar[int16, int16]     = fixed[int16]{2, (*wire.Buffer).ReadI16, (*wire.Buffer).WriteI16}
	Int32   Scalar[int32, int32]     = fixed[int32]{4, (*wire.Buffer).ReadI32, (*wire.Buffer).WriteI32}
	Int64   Scalar[int64, int64]     = fixed[int64]{8, (*wire.Buffer).ReadI64, (*wire.Buffer).WriteI64}
	Uint8   Scalar[uint8, uint8]     = fixed[uint8]{1, (*wire.Buffer).ReadU8, (*wire.Buffer).WriteU8}
	Uint16  Scalar[uint16, uint16]   = fixed[uint16]{2, (*wire.Buffer).ReadU16, (*wire.Buffer).WriteU16}
	Uint32  Scalar[uint32, uint32]   = fixed[uint32]{4, (*wire.Buffer).ReadU32, (*wire.Buffer).WriteU32}
	Uint64  Scalar[uint64, uint64]   = fixed[uint64]{8, (*wire.Buffer).ReadU64, (*wire.Buffer).WriteU64}
	Float32 Scalar[float32, float32] = fixed[float32]{4, (*wire.Buffer).ReadF32, (*wire.Buffer).WriteF32}
	Float64 Scalar[float64, float64] = fixed[float64]{8, (*wire.Buffer).ReadF64, (*wire.Buffer).WriteF64}

	// Bool is one byte on the wire and an int8 as a scalar. Any non-zero
	// byte lifts to true.
	Bool Scalar[bool, int8] = boolCodec{}

	// String is a u32 byte length followed by UTF-8. As a scalar it is the
	// raw UTF-8 bytes with no prefix.
	String Scalar[string, []byte] = stringCodec{}

	// Bytes is a u32 length followed by the bytes. As a scalar it is the raw
	// bytes with no prefix.
	Bytes Scalar[[]byte, []byte] = bytesCodec{}

	// Unit encodes nothing. It stands in for absent arguments and results.
	Unit Codec[struct{}] = unitCodec{}
)

type unitCodec struct{}

func (unitCodec) Read(*wire.Buffer) (struct{}, error) { return struct{}{}, nil }
func (unitCodec) Write(struct{}, *wire.Buffer) error { return nil }
func (unitCodec) AllocationSize(struct{}) int { return 0 }

type boolCodec struct{}

func (boolCodec) Read(b *wire.Buffer) (bool, error) {
	v, err := b.ReadI8()
	return v != 0, err
}

func (c boolCodec) Write(v bool, b *wire.Buffer) error {
	a, _ := c.Lower(v)
	b.WriteI8(a)
	return nil
}

func (boolCodec) AllocationSize(bool) int { return 1 }

func (boolCodec) Lift(a int8) (bool, error) { return a != 0, nil }

func (boolCodec) Lower(v bool) (int8, error) {
	if v {
		return 1, nil
	}
	return 0, nil
}

type stringCodec struct{}

func (stringCodec) Read(b *wire.Buffer) (string, error) {
	n, err := b.ReadLen(1)
	if err != nil {
		return "", err
	}
	p, err := b.ReadBytes(n)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(p) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, nil, p)
	}
	return string(p), nil
}

func (stringCodec) Write(v string, b *wire.Buffer) error {
	if !utf8.ValidString(v) {
		return errors.InvalidUTF8(errors.PhaseEncode, nil, []byte(v))
	}
	if err := b.WriteLen(len(v)); err != nil {
		return err
	}
	b.WriteBytes([]byte(v))
	return nil
}

func (stringCodec) AllocationSize(v string) int { return 4 + len(v) }

func (stringCodec) Lift(a []byte) (string, error) {
	if !utf8.Valid(a) {
		return "", errors.InvalidUTF8(errors.PhaseDecode, nil, a)
	}
	return string(a), nil
}

func (stringCodec) Lower(v string) ([]byte, error) {
	if !utf8.ValidString(v) {
		return nil, errors.InvalidUTF8(errors.PhaseEncode, nil, []byte(v))
	}
	return []byte(v), nil
}

type bytesCodec struct{}

func (bytesCodec) Read(b *wire.Buffer) ([]byte, error) {
	n, err := b.ReadLen(1)
	if err != nil {
		return nil, err
	}
	return b.ReadBytes(n)
}

func (bytesCodec) Write(v []byte, b *wire.Buffer) error {
	if err := b.WriteLen(len(v)); err != nil {
		return err
	}
	b.WriteBytes(v)
	return nil
}

func (bytesCodec) AllocationSize(v []byte) int { return 4 + len(v) }

func (bytesCodec) Lift(a []byte) ([]byte, error) {
	out := make([]byte, len(a))
	copy(out, a)
	return out, nil
}

func (bytesCodec) Lower(v []byte) ([]byte, error) { return v, nil }
