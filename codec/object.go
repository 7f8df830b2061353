package codec

import (
	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/handle"
	"github.com/wippyai/ffi-runtime/wire"
)

// Object is the codec for host objects wrapping a native handle. On the
// wire an object is its 8-byte handle.
//
// Lowering never hands out the held handle: it admits a call on the guard
// and passes a fresh clone that native code consumes. Lifting takes
// ownership of the handle in a new guard, wraps it with New and tracks the
// result for background reclamation.
type Object[T any] struct {
	Name        string
	EntryPoints handle.EntryPoints
	New         func(g *handle.Guard) *T
	Guard       func(v *T) *handle.Guard
	// Reclaimer is optional; nil uses the default reclaimer.
	Reclaimer *handle.Reclaimer
}

var _ Scalar[*struct{}, ffiruntime.Handle] = Object[struct{}]{}

func (o Object[T]) Lift(h ffiruntime.Handle) (*T, error) {
	if h == 0 {
		return nil, errors.InvalidData(errors.PhaseDecode, []string{o.Name}, "null handle")
	}
	g := handle.NewGuard(o.Name, h, o.EntryPoints)
	v := o.New(g)
	handle.Track(o.Reclaimer, v, g)
	return v, nil
}

func (o Object[T]) Lower(v *T) (ffiruntime.Handle, error) {
	if v == nil {
		return 0, errors.NilPointer(errors.PhaseEncode, nil, "*"+o.Name)
	}
	return o.Guard(v).CloneHandle()
}

func (o Object[T]) Read(b *wire.Buffer) (*T, error) {
	h, err := b.ReadU64()
	if err != nil {
		return nil, err
	}
	return o.Lift(ffiruntime.Handle(h))
}

func (o Object[T]) Write(v *T, b *wire.Buffer) error {
	h, err := o.Lower(v)
	if err != nil {
		return err
	}
	b.WriteU64(uint64(h))
	return nil
}

func (Object[T]) AllocationSize(*T) int { return 8 }
