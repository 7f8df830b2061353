package codec

import (
	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/wire"
)

// Case describes one variant of a tagged union. Read, Write and Size handle
// only the case's fields; the index is handled by the variant codec.
// Release is optional and releases objects held by the case's fields.
type Case[T any] struct {
	Name    string
	Read    func(b *wire.Buffer) (T, error)
	Write   func(v T, b *wire.Buffer) error
	Size    func(v T) int
	Release func(v T)
}

// Variant returns a codec for a tagged union. index reports the 1-based
// position of v's case among cases.
func Variant[T any](name string, index func(v T) int, cases ...Case[T]) Codec[T] {
	return variantCodec[T]{name: name, index: index, cases: cases}
}

type variantCodec[T any] struct {
	name  string
	index func(T) int
	cases []Case[T]
}

func (c variantCodec[T]) Read(b *wire.Buffer) (T, error) {
	var zero T
	idx, err := b.ReadI32()
	if err != nil {
		return zero, withPath(err, c.name)
	}
	if idx < 1 || int(idx) > len(c.cases) {
		return zero, errors.InvalidDiscriminant(errors.PhaseDecode, []string{c.name}, idx, len(c.cases))
	}
	cs := c.cases[idx-1]
	if cs.Read == nil {
		return zero, nil
	}
	v, err := cs.Read(b)
	if err != nil {
		return zero, withPath(err, c.name, cs.Name)
	}
	return v, nil
}

func (c variantCodec[T]) caseOf(v T) (int, Case[T], error) {
	idx := c.index(v)
	if idx < 1 || idx > len(c.cases) {
		return 0, Case[T]{}, errors.InvalidDiscriminant(errors.PhaseEncode, []string{c.name}, int32(idx), len(c.cases))
	}
	return idx, c.cases[idx-1], nil
}

func (c variantCodec[T]) Write(v T, b *wire.Buffer) error {
	idx, cs, err := c.caseOf(v)
	if err != nil {
		return err
	}
	b.WriteI32(int32(idx))
	if cs.Write == nil {
		return nil
	}
	if err := cs.Write(v, b); err != nil {
		return withPath(err, c.name, cs.Name)
	}
	return nil
}

func (c variantCodec[T]) AllocationSize(v T) int {
	_, cs, err := c.caseOf(v)
	if err != nil || cs.Size == nil {
		return 4
	}
	return 4 + cs.Size(v)
}

// UnitCase is a case with no fields that always decodes to v.
func UnitCase[T any](name string, v T) Case[T] {
	return Case[T]{
		Name: name,
		Read: func(*wire.Buffer) (T, error) { return v, nil },
	}
}

// PayloadCase is a case whose fields are encoded by c. wrap builds the
// union value from the payload and unwrap extracts it.
func PayloadCase[T, P any](name string, c Codec[P], wrap func(P) T, unwrap func(T) P) Case[T] {
	var release func(T)
	if _, ok := c.(Releaser[P]); ok {
		release = func(v T) { Release(c, unwrap(v)) }
	}
	return Case[T]{
		Name: name,
		Read: func(b *wire.Buffer) (T, error) {
			p, err := c.Read(b)
			if err != nil {
				var zero T
				return zero, err
			}
			return wrap(p), nil
		},
		Write:   func(v T, b *wire.Buffer) error { return c.Write(unwrap(v), b) },
		Size:    func(v T) int { return c.AllocationSize(unwrap(v)) },
		Release: release,
	}
}

// MessageCase is a case of a flat error: the only field is a message string.
func MessageCase[T any](name string, wrap func(msg string) T, message func(T) string) Case[T] {
	return PayloadCase[T, string](name, String, wrap, message)
}
