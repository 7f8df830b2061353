package callback

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/codec"
	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/resource"
)

// AsyncResult is what an async method reports through its completion.
type AsyncResult struct {
	Value  []byte
	Status call.Status
}

// Completion is the native-supplied function an async method reports
// through. data is the opaque value native code passed when starting the call.
type Completion func(data uint64, result AsyncResult)

// ForeignFuture acknowledges a started async call. Native code calls Free
// exactly once, when it no longer needs the result; freeing a call that has
// not finished cancels it.
type ForeignFuture struct {
	Handle ffiruntime.Handle
	Free   func(h ffiruntime.Handle)
}

type pendingCall struct {
	cancel context.CancelFunc
	once   sync.Once
	freed  atomic.Bool
}

var futures = resource.NewTable[*pendingCall]("ForeignFuture")

// FreeFuture releases an async call. If it has not finished, its context is
// cancelled and its completion is never invoked. FreeFuture does not wait
// for the call to stop.
func FreeFuture(h ffiruntime.Handle) {
	p, err := futures.Remove(h)
	if err != nil {
		if h != 0 {
			Logger().Warn("free of unknown foreign future", zap.Uint64("handle", uint64(h)), zap.Error(err))
		}
		return
	}
	p.freed.Store(true)
	p.cancel()
}

// PendingFutures returns the number of async calls native code has not freed.
func PendingFutures() int {
	return futures.Len()
}

// Async builds the entry for an asynchronous method. The trampoline resolves
// the handle and decodes its arguments before returning. If either fails,
// the completion runs on the calling goroutine and the returned future is
// empty. Otherwise fn starts on its own goroutine and the completion is
// invoked exactly once when it finishes, unless native code frees the
// future first.
func Async[T, A, R any](
	i *Interface[T],
	name string,
	args codec.Codec[A],
	ret codec.Codec[R],
	errs ErrorLowerer,
	fn func(ctx context.Context, impl T, a A) (R, error),
) Entry {
	return Entry{
		Name: name,
		Async: func(h ffiruntime.Handle, data []byte, complete Completion, cdata uint64) ForeignFuture {
			var early AsyncResult
			impl, a, ok := resolve(i, name, h, data, &early.Status, args)
			if !ok {
				complete(cdata, early)
				return ForeignFuture{}
			}

			ctx, cancel := context.WithCancel(i.ctx)
			p := &pendingCall{cancel: cancel}
			fh, err := futures.Insert(p)
			if err != nil {
				cancel()
				i.fail(name, h, &early.Status, err)
				complete(cdata, early)
				return ForeignFuture{}
			}

			go func() {
				defer cancel()
				var res AsyncResult
				res.Value = run(i, name, h, &res.Status, ret, errs, func() (R, error) {
					r, err := fn(ctx, impl, a)
					if err != nil && ctx.Err() != nil {
						return r, errors.Cancelled(errors.PhaseDispatch, ctx.Err())
					}
					return r, err
				})
				if res.Status.Code == call.CodePanic && ctx.Err() != nil {
					res.Value = nil
					res.Status.SetCancelled()
				}
				p.once.Do(func() {
					if p.freed.Load() {
						return
					}
					complete(cdata, res)
				})
			}()

			return ForeignFuture{Handle: fh, Free: FreeFuture}
		},
	}
}
