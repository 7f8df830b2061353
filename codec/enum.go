package codec

import (
	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/wire"
)

// Integer is the set of types an enum can be declared as.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 | ~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Enum returns a codec for a fieldless enum whose constants are numbered
// 1 through count, matching their wire index.
func Enum[T Integer](name string, count int) Codec[T] {
	return enumCodec[T]{name: name, count: count}
}

type enumCodec[T Integer] struct {
	name  string
	count int
}

func (c enumCodec[T]) Read(b *wire.Buffer) (T, error) {
	idx, err := b.ReadI32()
	if err != nil {
		return 0, withPath(err, c.name)
	}
	if idx < 1 || int(idx) > c.count {
		return 0, errors.InvalidDiscriminant(errors.PhaseDecode, []string{c.name}, idx, c.count)
	}
	return T(idx), nil
}

func (c enumCodec[T]) Write(v T, b *wire.Buffer) error {
	if v < 1 || uint64(v) > uint64(c.count) {
		return errors.InvalidDiscriminant(errors.PhaseEncode, []string{c.name}, int32(v), c.count)
	}
	b.WriteI32(int32(v))
	return nil
}

func (enumCodec[T]) AllocationSize(T) int { return 4 }
