// Package codec converts host values to and from wire bytes.
//
// Every type that crosses the boundary has one Codec. Codecs are stateless
// values and safe to share; composite codecs are built from the codecs of
// their parts:
//
//	type Point struct{ X, Y int32 }
//
//	var PointCodec = codec.Record("Point",
//	    codec.FieldOf("x", codec.Int32, func(p *Point) *int32 { return &p.X }),
//	    codec.FieldOf("y", codec.Int32, func(p *Point) *int32 { return &p.Y }),
//	)
//
//	var Points = codec.Sequence(PointCodec)
//
// The wire format is big-endian with u32 length and count prefixes. For every
// codec, Read(Write(v)) == v and Write consumes exactly AllocationSize(v)
// bytes.
package codec

import (
	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/wire"
)

// Codec reads and writes values of type T.
type Codec[T any] interface {
	Read(b *wire.Buffer) (T, error)
	Write(v T, b *wire.Buffer) error
	// AllocationSize returns the exact number of bytes Write will append.
	AllocationSize(v T) int
}

// Scalar is a codec for values that also cross the boundary directly as an
// ABI scalar A, without a buffer.
type Scalar[T, A any] interface {
	Codec[T]
	Lift(a A) (T, error)
	Lower(v T) (A, error)
}

// LowerBuffer encodes v into a buffer allocated once at its exact size.
func LowerBuffer[T any](c Codec[T], v T) ([]byte, error) {
	size := c.AllocationSize(v)
	b := wire.NewBuffer(size)
	if err := c.Write(v, b); err != nil {
		return nil, err
	}
	if b.Len() != size {
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Detail("codec wrote %d bytes, allocation size was %d", b.Len(), size).
			Build()
	}
	return b.Bytes(), nil
}

// LiftBuffer decodes a value that must occupy all of data.
func LiftBuffer[T any](c Codec[T], data []byte) (T, error) {
	b := wire.FromBytes(data)
	v, err := c.Read(b)
	if err != nil {
		var zero T
		return zero, err
	}
	if err := b.Finish(); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

func withPath(err error, segs ...string) error {
	return errors.WithPath(err, segs...)
}
