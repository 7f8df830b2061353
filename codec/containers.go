package codec

import (
	"strconv"

	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/wire"
)

// Sequence returns a codec for []T: a u32 count then each element in order.
func Sequence[T any](elem Codec[T]) Codec[[]T] {
	return sequenceCodec[T]{elem: elem}
}

type sequenceCodec[T any] struct {
	elem Codec[T]
}

func (c sequenceCodec[T]) Read(b *wire.Buffer) ([]T, error) {
	n, err := b.ReadLen(0)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, min(n, b.Remaining()))
	for i := range n {
		left := b.Remaining()
		v, err := c.elem.Read(b)
		if err != nil {
			return nil, withPath(err, strconv.Itoa(i))
		}
		if err := checkWidth(b, left, n-i); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (c sequenceCodec[T]) Write(v []T, b *wire.Buffer) error {
	if err := b.WriteLen(len(v)); err != nil {
		return err
	}
	for i, e := range v {
		if err := c.elem.Write(e, b); err != nil {
			return withPath(err, strconv.Itoa(i))
		}
	}
	return nil
}

func (c sequenceCodec[T]) AllocationSize(v []T) int {
	n := 4
	for _, e := range v {
		n += c.elem.AllocationSize(e)
	}
	return n
}

// checkWidth rejects a count of zero-width elements larger than the bytes
// that were left when the element started. Without it a four byte prefix
// can demand millions of empty values.
func checkWidth(b *wire.Buffer, left, pending int) error {
	if b.Remaining() != left || pending <= left {
		return nil
	}
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Value(pending).
		Detail("%d zero-width elements exceed the %d bytes left", pending, left).
		Build()
}

// Map returns a codec for map[K]V: a u32 count then key/value pairs in map
// iteration order. Readers make no assumption about pair order; a repeated
// key keeps its last value.
func Map[K comparable, V any](key Codec[K], val Codec[V]) Codec[map[K]V] {
	return mapCodec[K, V]{key: key, val: val}
}

type mapCodec[K comparable, V any] struct {
	key Codec[K]
	val Codec[V]
}

func (c mapCodec[K, V]) Read(b *wire.Buffer) (map[K]V, error) {
	n, err := b.ReadLen(0)
	if err != nil {
		return nil, err
	}
	out := make(map[K]V, min(n, b.Remaining()))
	for i := range n {
		left := b.Remaining()
		k, err := c.key.Read(b)
		if err != nil {
			return nil, withPath(err, strconv.Itoa(i), "key")
		}
		v, err := c.val.Read(b)
		if err != nil {
			return nil, withPath(err, strconv.Itoa(i), "value")
		}
		if err := checkWidth(b, left, n-i); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, nil
}

func (c mapCodec[K, V]) Write(v map[K]V, b *wire.Buffer) error {
	if err := b.WriteLen(len(v)); err != nil {
		return err
	}
	i := 0
	for k, e := range v {
		if err := c.key.Write(k, b); err != nil {
			return withPath(err, strconv.Itoa(i), "key")
		}
		if err := c.val.Write(e, b); err != nil {
			return withPath(err, strconv.Itoa(i), "value")
		}
		i++
	}
	return nil
}

func (c mapCodec[K, V]) AllocationSize(v map[K]V) int {
	n := 4
	for k, e := range v {
		n += c.key.AllocationSize(k) + c.val.AllocationSize(e)
	}
	return n
}

// Optional returns a codec for *T: one flag byte, then the value if the
// flag is 1. A nil pointer encodes as a single 0 byte.
func Optional[T any](inner Codec[T]) Codec[*T] {
	return optionalCodec[T]{inner: inner}
}

type optionalCodec[T any] struct {
	inner Codec[T]
}

func (c optionalCodec[T]) Read(b *wire.Buffer) (*T, error) {
	flag, err := b.ReadU8()
	if err != nil {
		return nil, err
	}
	switch flag {
	case 0:
		return nil, nil
	case 1:
		v, err := c.inner.Read(b)
		if err != nil {
			return nil, err
		}
		return &v, nil
	default:
		return nil, errors.New(errors.PhaseDecode, errors.KindInvalidData).
			Value(flag).
			Detail("optional flag %d is neither 0 nor 1", flag).
			Build()
	}
}

func (c optionalCodec[T]) Write(v *T, b *wire.Buffer) error {
	if v == nil {
		b.WriteU8(0)
		return nil
	}
	b.WriteU8(1)
	return c.inner.Write(*v, b)
}

func (c optionalCodec[T]) AllocationSize(v *T) int {
	if v == nil {
		return 1
	}
	return 1 + c.inner.AllocationSize(*v)
}
