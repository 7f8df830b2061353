package codec

import (
	"github.com/wippyai/ffi-runtime/wire"
)

// Field is one field of a record codec.
type Field[T any] struct {
	Name    string
	read    func(*T, *wire.Buffer) error
	write   func(*T, *wire.Buffer) error
	size    func(*T) int
	release func(*T)
}

// FieldOf binds a field codec to the struct field that ref points at.
func FieldOf[T, F any](name string, c Codec[F], ref func(*T) *F) Field[T] {
	var release func(*T)
	if _, ok := c.(Releaser[F]); ok {
		release = func(r *T) { Release(c, *ref(r)) }
	}
	return Field[T]{
		Name: name,
		read: func(r *T, b *wire.Buffer) error {
			v, err := c.Read(b)
			if err != nil {
				return err
			}
			*ref(r) = v
			return nil
		},
		write: func(r *T, b *wire.Buffer) error {
			return c.Write(*ref(r), b)
		},
		size: func(r *T) int {
			return c.AllocationSize(*ref(r))
		},
		release: release,
	}
}

// Record returns a codec that concatenates field encodings in the given
// order, with no prefix.
func Record[T any](name string, fields ...Field[T]) Codec[T] {
	return recordCodec[T]{name: name, fields: fields}
}

type recordCodec[T any] struct {
	name   string
	fields []Field[T]
}

func (c recordCodec[T]) Read(b *wire.Buffer) (T, error) {
	var r T
	for _, f := range c.fields {
		if err := f.read(&r, b); err != nil {
			var zero T
			return zero, withPath(err, c.name, f.Name)
		}
	}
	return r, nil
}

func (c recordCodec[T]) Write(v T, b *wire.Buffer) error {
	for _, f := range c.fields {
		if err := f.write(&v, b); err != nil {
			return withPath(err, c.name, f.Name)
		}
	}
	return nil
}

func (c recordCodec[T]) AllocationSize(v T) int {
	n := 0
	for _, f := range c.fields {
		n += f.size(&v)
	}
	return n
}
