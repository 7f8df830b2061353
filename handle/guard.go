// Package handle manages the lifetime of native handles held by host objects.
//
// A Guard owns one native handle. Calls are admitted by incrementing an
// in-flight counter and retired by decrementing it; the native resource is
// destroyed exactly once, by whichever goroutine brings the counter to zero.
// The counter starts at one, the baseline reference owned by the host object,
// which is given up by Release. No locks are taken on any path.
package handle

import (
	"fmt"
	"math"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/errors"
)

// EntryPoints are the native functions managing one object type.
type EntryPoints struct {
	// Clone returns a new handle to the same native object. The clone is
	// consumed by whichever native call receives it. If nil, the owned
	// handle is lent to calls directly.
	Clone func(h ffiruntime.Handle, st *call.Status) ffiruntime.Handle
	// Free destroys the native object.
	Free func(h ffiruntime.Handle, st *call.Status)
}

// Guard owns one native handle and serializes its destruction against
// in-flight calls. A Guard must not be copied.
type Guard struct {
	name      string
	handle    ffiruntime.Handle
	ep        EntryPoints
	counter   atomic.Int64
	released  atomic.Bool
	destroyed atomic.Bool
	cleanup   atomic.Pointer[runtime.Cleanup]
}

// NewGuard takes ownership of h. name identifies the object type in errors
// and logs.
func NewGuard(name string, h ffiruntime.Handle, ep EntryPoints) *Guard {
	g := &Guard{name: name, handle: h, ep: ep}
	g.counter.Store(1)
	return g
}

func (g *Guard) Name() string { return g.name }

// Handle returns the owned handle. It must not be passed to native code;
// use Admit to obtain a clone.
func (g *Guard) Handle() ffiruntime.Handle { return g.handle }

// Released reports whether Release has been called.
func (g *Guard) Released() bool { return g.released.Load() }

// Destroyed reports whether the native resource has been freed.
func (g *Guard) Destroyed() bool { return g.destroyed.Load() }

// InFlight returns the number of admitted calls that have not retired.
func (g *Guard) InFlight() int64 {
	n := g.counter.Load()
	if !g.released.Load() {
		n--
	}
	return max(n, 0)
}

func (g *Guard) admit() error {
	for {
		c := g.counter.Load()
		if c == 0 {
			return errors.AlreadyReleased(g.name)
		}
		if c == math.MaxInt64 {
			return errors.CounterExhausted(g.name)
		}
		if g.counter.CompareAndSwap(c, c+1) {
			return nil
		}
	}
}

// Admit registers an in-flight call and returns a fresh clone of the handle
// for native code to consume. Every successful Admit must be paired with
// exactly one Retire. If cloning fails the admission is retired before the
// error is returned.
func (g *Guard) Admit() (ffiruntime.Handle, error) {
	if err := g.admit(); err != nil {
		return 0, err
	}
	if g.ep.Clone == nil {
		return g.handle, nil
	}
	var st call.Status
	h := g.ep.Clone(g.handle, &st)
	if err := call.Check(&st, nil); err != nil {
		g.Retire()
		return 0, fmt.Errorf("clone %s: %w", g.name, err)
	}
	return h, nil
}

// Retire ends an admitted call. The call that brings the counter to zero
// destroys the native resource; failures are logged and swallowed.
func (g *Guard) Retire() {
	if err := g.retire(); err != nil {
		Logger().Warn("destroy failed",
			zap.String("type", g.name),
			zap.Uint64("handle", uint64(g.handle)),
			zap.Error(err))
	}
}

func (g *Guard) retire() error {
	if g.counter.Add(-1) != 0 {
		return nil
	}
	return g.destroy()
}

func (g *Guard) destroy() (err error) {
	if !g.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	if g.ep.Free == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Panic(fmt.Sprint(r))
		}
	}()
	var st call.Status
	g.ep.Free(g.handle, &st)
	return call.Check(&st, nil)
}

// Release gives up the baseline reference. The native resource is destroyed
// now if no call is in flight, otherwise when the last one retires.
// Release is idempotent and safe to call from any goroutine.
func (g *Guard) Release() {
	if err := g.release(); err != nil {
		Logger().Warn("destroy failed",
			zap.String("type", g.name),
			zap.Uint64("handle", uint64(g.handle)),
			zap.Error(err))
	}
}

func (g *Guard) release() error {
	if !g.released.CompareAndSwap(false, true) {
		return nil
	}
	if c := g.cleanup.Load(); c != nil {
		c.Stop()
	}
	return g.retire()
}

// CloneHandle returns a clone of the handle without holding an admission
// open. Codecs use it to lower an object into an argument.
func (g *Guard) CloneHandle() (ffiruntime.Handle, error) {
	h, err := g.Admit()
	if err != nil {
		return 0, err
	}
	g.Retire()
	return h, nil
}

// With brackets fn in Admit and Retire.
func (g *Guard) With(fn func(h ffiruntime.Handle) error) error {
	h, err := g.Admit()
	if err != nil {
		return err
	}
	defer g.Retire()
	return fn(h)
}

// Call is the value-returning form of With.
func Call[T any](g *Guard, fn func(h ffiruntime.Handle) (T, error)) (T, error) {
	h, err := g.Admit()
	if err != nil {
		var zero T
		return zero, err
	}
	defer g.Retire()
	return fn(h)
}
