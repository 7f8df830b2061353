package codec

import (
	"math"
	"time"

	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/wire"
)

var (
	// Timestamp is i64 seconds from the Unix epoch followed by u32
	// nanoseconds. For instants before the epoch the seconds are negative
	// and the nanoseconds extend further into the past.
	Timestamp Codec[time.Time] = timestampCodec{}

	// Duration is u64 seconds followed by u32 nanoseconds. Negative
	// durations cannot be encoded.
	Duration Codec[time.Duration] = durationCodec{}
)

type timestampCodec struct{}

func (timestampCodec) Read(b *wire.Buffer) (time.Time, error) {
	secs, err := b.ReadI64()
	if err != nil {
		return time.Time{}, err
	}
	nanos, err := b.ReadU32()
	if err != nil {
		return time.Time{}, err
	}
	if nanos >= uint32(time.Second) {
		return time.Time{}, errors.InvalidData(errors.PhaseDecode, nil, "timestamp nanoseconds out of range")
	}
	if secs >= 0 {
		return time.Unix(secs, int64(nanos)).UTC(), nil
	}
	return time.Unix(secs, -int64(nanos)).UTC(), nil
}

func (timestampCodec) Write(v time.Time, b *wire.Buffer) error {
	secs := v.Unix()
	nanos := int64(v.Nanosecond())
	if secs < 0 && nanos > 0 {
		// Unix() floors; the wire counts backwards from the epoch.
		secs++
		nanos = int64(time.Second) - nanos
		if secs == 0 {
			return errors.InvalidInput(errors.PhaseEncode, "instant less than one second before the epoch is not representable")
		}
	}
	b.WriteI64(secs)
	b.WriteU32(uint32(nanos))
	return nil
}

func (timestampCodec) AllocationSize(time.Time) int { return 12 }

type durationCodec struct{}

func (durationCodec) Read(b *wire.Buffer) (time.Duration, error) {
	secs, err := b.ReadU64()
	if err != nil {
		return 0, err
	}
	nanos, err := b.ReadU32()
	if err != nil {
		return 0, err
	}
	if nanos >= uint32(time.Second) {
		return 0, errors.InvalidData(errors.PhaseDecode, nil, "duration nanoseconds out of range")
	}
	if secs > uint64(math.MaxInt64/int64(time.Second)) {
		return 0, errors.Overflow(errors.PhaseDecode, nil, secs, "time.Duration")
	}
	d := time.Duration(secs)*time.Second + time.Duration(nanos)
	if d < 0 {
		return 0, errors.Overflow(errors.PhaseDecode, nil, secs, "time.Duration")
	}
	return d, nil
}

func (durationCodec) Write(v time.Duration, b *wire.Buffer) error {
	if v < 0 {
		return errors.InvalidInput(errors.PhaseEncode, "negative duration")
	}
	b.WriteU64(uint64(v / time.Second))
	b.WriteU32(uint32(v % time.Second))
	return nil
}

func (durationCodec) AllocationSize(time.Duration) int { return 12 }
