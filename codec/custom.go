package codec

import "github.com/wippyai/ffi-runtime/wire"

// Custom returns a codec for a host type T carried on the wire as a builtin
// B. from and to convert between the two; either may reject a value.
func Custom[T, B any](base Codec[B], from func(B) (T, error), to func(T) (B, error)) Codec[T] {
	return customCodec[T, B]{base: base, from: from, to: to}
}

type customCodec[T, B any] struct {
	base Codec[B]
	from func(B) (T, error)
	to   func(T) (B, error)
}

func (c customCodec[T, B]) Read(b *wire.Buffer) (T, error) {
	v, err := c.base.Read(b)
	if err != nil {
		var zero T
		return zero, err
	}
	return c.from(v)
}

func (c customCodec[T, B]) Write(v T, b *wire.Buffer) error {
	bv, err := c.to(v)
	if err != nil {
		return err
	}
	return c.base.Write(bv, b)
}

// AllocationSize converts v a second time; conversions must be pure. A
// value that fails to convert reports the size of the base zero value and
// Write reports the error.
func (c customCodec[T, B]) AllocationSize(v T) int {
	bv, err := c.to(v)
	if err != nil {
		var zero B
		return c.base.AllocationSize(zero)
	}
	return c.base.AllocationSize(bv)
}
