// Package wire implements the byte buffer shared by every codec.
//
// All multi-byte values are big-endian. A Buffer is written by one party and
// then handed to exactly one reader; it is not safe for concurrent mutation.
package wire

import (
	"encoding/binary"
	"math"

	"github.com/wippyai/ffi-runtime/errors"
)

// Buffer is an ordered byte sequence with a read cursor.
// Writes append at the end; reads consume from the cursor.
type Buffer struct {
	data []byte
	pos  int
}

// NewBuffer creates an empty Buffer with room for capacity bytes.
// Writing no more than capacity bytes never reallocates.
func NewBuffer(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{data: make([]byte, 0, capacity)}
}

// FromBytes wraps data for reading. The Buffer takes ownership of data.
func FromBytes(data []byte) *Buffer {
	return &Buffer{data: data}
}

// Bytes returns every byte written so far, including consumed ones.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of bytes written.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Cap returns the capacity of the underlying storage.
func (b *Buffer) Cap() int {
	return cap(b.data)
}

// Position returns the read cursor.
func (b *Buffer) Position() int {
	return b.pos
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int {
	return len(b.data) - b.pos
}

// Reset truncates the buffer and rewinds the cursor, keeping capacity.
func (b *Buffer) Reset() {
	b.data = b.data[:0]
	b.pos = 0
}

// Finish reports an error if unread bytes remain.
func (b *Buffer) Finish() error {
	if n := b.Remaining(); n != 0 {
		return errors.TrailingBytes(n)
	}
	return nil
}

func (b *Buffer) take(n int) ([]byte, error) {
	if n < 0 || n > b.Remaining() {
		return nil, errors.OutOfBounds(errors.PhaseDecode, nil, b.pos+n, len(b.data))
	}
	p := b.data[b.pos : b.pos+n]
	b.pos += n
	return p, nil
}

// WriteBytes appends raw bytes with no length prefix.
func (b *Buffer) WriteBytes(p []byte) {
	b.data = append(b.data, p...)
}

// ReadBytes consumes exactly n bytes and returns a copy.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	p, err := b.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, p)
	return out, nil
}

// WriteU8 appends one byte.
func (b *Buffer) WriteU8(v uint8) {
	b.data = append(b.data, v)
}

// ReadU8 consumes one byte.
func (b *Buffer) ReadU8() (uint8, error) {
	p, err := b.take(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

func (b *Buffer) WriteI8(v int8) { b.WriteU8(uint8(v)) }

func (b *Buffer) ReadI8() (int8, error) {
	v, err := b.ReadU8()
	return int8(v), err
}

func (b *Buffer) WriteU16(v uint16) {
	b.data = binary.BigEndian.AppendUint16(b.data, v)
}

func (b *Buffer) ReadU16() (uint16, error) {
	p, err := b.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(p), nil
}

func (b *Buffer) WriteI16(v int16) { b.WriteU16(uint16(v)) }

func (b *Buffer) ReadI16() (int16, error) {
	v, err := b.ReadU16()
	return int16(v), err
}

func (b *Buffer) WriteU32(v uint32) {
	b.data = binary.BigEndian.AppendUint32(b.data, v)
}

func (b *Buffer) ReadU32() (uint32, error) {
	p, err := b.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(p), nil
}

func (b *Buffer) WriteI32(v int32) { b.WriteU32(uint32(v)) }

func (b *Buffer) ReadI32() (int32, error) {
	v, err := b.ReadU32()
	return int32(v), err
}

func (b *Buffer) WriteU64(v uint64) {
	b.data = binary.BigEndian.AppendUint64(b.data, v)
}

func (b *Buffer) ReadU64() (uint64, error) {
	p, err := b.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

func (b *Buffer) WriteI64(v int64) { b.WriteU64(uint64(v)) }

func (b *Buffer) ReadI64() (int64, error) {
	v, err := b.ReadU64()
	return int64(v), err
}

// WriteF32 appends the IEEE 754 bits of v.
func (b *Buffer) WriteF32(v float32) { b.WriteU32(math.Float32bits(v)) }

func (b *Buffer) ReadF32() (float32, error) {
	v, err := b.ReadU32()
	return math.Float32frombits(v), err
}

// WriteF64 appends the IEEE 754 bits of v.
func (b *Buffer) WriteF64(v float64) { b.WriteU64(math.Float64bits(v)) }

func (b *Buffer) ReadF64() (float64, error) {
	v, err := b.ReadU64()
	return math.Float64frombits(v), err
}

// WriteLen appends a u32 count or byte-length prefix.
func (b *Buffer) WriteLen(n int) error {
	if n < 0 || uint64(n) > math.MaxUint32 {
		return errors.Overflow(errors.PhaseEncode, nil, n, "u32")
	}
	b.WriteU32(uint32(n))
	return nil
}

// ReadLen consumes a u32 prefix. Counts that cannot possibly fit in the
// remaining bytes are rejected before any allocation happens, assuming each
// element takes at least minElem bytes.
func (b *Buffer) ReadLen(minElem int) (int, error) {
	start := b.pos
	v, err := b.ReadU32()
	if err != nil {
		return 0, err
	}
	n := int(v)
	if minElem > 0 && uint64(v)*uint64(minElem) > uint64(b.Remaining()) {
		b.pos = start
		return 0, errors.OutOfBounds(errors.PhaseDecode, nil, n, b.Remaining())
	}
	return n, nil
}
