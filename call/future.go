package call

import (
	"context"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/errors"
)

// PollResult is what native code reports through a poll continuation.
type PollResult int8

const (
	PollReady PollResult = 0
	PollWake  PollResult = 1 // not ready, poll again
)

// FutureOps are the native entry points driving one native future type.
type FutureOps[T any] struct {
	// Poll asks the future to make progress. Native code calls wake exactly
	// once per Poll, possibly from another thread.
	Poll func(fut ffiruntime.Handle, wake func(PollResult))
	// Complete extracts the result of a ready future.
	Complete func(fut ffiruntime.Handle, st *Status) T
	// Free releases the future. Called exactly once by Await.
	Free func(fut ffiruntime.Handle)
	// Cancel is optional and asks native code to stop work early.
	Cancel func(fut ffiruntime.Handle)
}

// Await drives a native future to completion and converts its outcome.
// The future is always freed before Await returns. If ctx ends first, the
// future is cancelled and a cancelled error is returned.
func Await[T any](ctx context.Context, fut ffiruntime.Handle, ops FutureOps[T], lift ErrorLifter) (T, error) {
	defer ops.Free(fut)

	waiter := make(chan PollResult, 1)
	wake := func(r PollResult) {
		select {
		case waiter <- r:
		default:
		}
	}

	for ready := false; !ready; {
		ops.Poll(fut, wake)
		select {
		case r := <-waiter:
			ready = r == PollReady
		case <-ctx.Done():
			if ops.Cancel != nil {
				ops.Cancel(fut)
			}
			var zero T
			return zero, errors.Cancelled(errors.PhaseCall, ctx.Err())
		}
	}

	return DoWithError(lift, func(st *Status) T {
		return ops.Complete(fut, st)
	})
}
