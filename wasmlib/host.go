package wasmlib

import (
	"context"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/callback"
	"github.com/wippyai/ffi-runtime/errors"
)

// CallbackModule is the import module that exposes callback vtables to the
// guest. For a vtable named N it defines:
//
//	N.call(index i32, handle i64, argPtr i32, argLen i32, st i32) -> i64
//	N.call_async(index i32, handle i64, argPtr i32, argLen i32, data i64) -> i64
//	N.free(handle i64)
//	future_free(future i64)
//
// call fills the guest's status record and returns the result buffer packed
// as ptr<<32 | len; the guest owns both. call_async returns the future
// handle, or 0 when the call failed before it was scheduled. Either way the
// outcome arrives later through the guest's completion export:
//
//	ffi_complete(data i64, code i32, value i64, err i64)
//
// value and err are packed buffers the guest owns. Completions are
// delivered once no other call is running in the library.
const CallbackModule = "ffi_callbacks"

// DefaultCompleteSymbol is the guest export async completions go to.
const DefaultCompleteSymbol = "ffi_complete"

var (
	callParams      = []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI32}
	callAsyncParams = []api.ValueType{api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeI32, api.ValueTypeI32, api.ValueTypeI64}
	handleParams    = []api.ValueType{api.ValueTypeI64}
	packedResults   = []api.ValueType{api.ValueTypeI64}
)

func (l *Library) buildCallbacks(ctx context.Context, rt wazero.Runtime, vtables []*callback.VTable) error {
	builder := rt.NewHostModuleBuilder(CallbackModule)
	seen := make(map[string]bool, len(vtables))
	for _, vt := range vtables {
		if seen[vt.Name()] {
			return errors.InvalidInput(errors.PhaseLoad, "vtable "+vt.Name()+" registered twice")
		}
		seen[vt.Name()] = true

		builder.NewFunctionBuilder().
			WithGoModuleFunction(l.callHandler(vt), callParams, packedResults).
			Export(vt.Name() + ".call")
		builder.NewFunctionBuilder().
			WithGoModuleFunction(l.callAsyncHandler(vt), callAsyncParams, packedResults).
			Export(vt.Name() + ".call_async")
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
				vt.Free(ffiruntime.Handle(stack[0]))
			}), handleParams, nil).
			Export(vt.Name() + ".free")
	}
	builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			callback.FreeFuture(ffiruntime.Handle(stack[0]))
		}), handleParams, nil).
		Export("future_free")

	if _, err := builder.Instantiate(ctx); err != nil {
		return errors.Load("instantiate host module", err)
	}
	return nil
}

// Host functions run inside a guest call, so the library lock is already
// held by the calling goroutine and only the unlocked helpers may be used.
// A failure to write back into guest memory panics, which traps the guest
// call.

func (l *Library) callHandler(vt *callback.VTable) api.GoModuleFunc {
	return func(ctx context.Context, _ api.Module, stack []uint64) {
		idx := int(api.DecodeI32(stack[0]))
		h := ffiruntime.Handle(stack[1])
		rec := api.DecodeU32(stack[4])

		var st call.Status
		var out []byte
		args, err := l.readBuffer(api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
		if err != nil {
			st.SetPanic(err.Error())
		} else {
			out = vt.Call(idx, h, args, &st)
		}

		ptr, n, err := l.writeBuffer(ctx, out)
		if err != nil {
			panic(err)
		}
		if err := l.writeStatus(ctx, rec, &st); err != nil {
			l.free(ctx, ptr, n)
			panic(err)
		}
		stack[0] = Pack(ptr, n)
	}
}

func (l *Library) callAsyncHandler(vt *callback.VTable) api.GoModuleFunc {
	return func(_ context.Context, _ api.Module, stack []uint64) {
		idx := int(api.DecodeI32(stack[0]))
		h := ffiruntime.Handle(stack[1])
		data := stack[4]

		args, err := l.readBuffer(api.DecodeU32(stack[2]), api.DecodeU32(stack[3]))
		if err != nil {
			var res callback.AsyncResult
			res.Status.SetPanic(err.Error())
			l.complete(data, res)
			stack[0] = 0
			return
		}
		fut := vt.CallAsync(idx, h, args, l.complete, data)
		stack[0] = uint64(fut.Handle)
	}
}

// writeStatus fills the guest status record at rec. The error payload is
// copied into guest memory the guest then owns.
func (l *Library) writeStatus(ctx context.Context, rec uint32, st *call.Status) error {
	ptr, n, err := l.writeBuffer(ctx, st.ErrorBuf)
	if err != nil {
		return err
	}
	raw := make([]byte, statusSize)
	raw[0] = byte(st.Code)
	if err := l.memory.Write(rec, raw); err != nil {
		l.free(ctx, ptr, n)
		return err
	}
	if err := l.memory.WriteU32(rec+4, ptr); err != nil {
		return err
	}
	return l.memory.WriteU32(rec+8, n)
}

// complete is the completion handed to async trampolines. It may run inside
// the host function that started the call, so delivery always happens on a
// new goroutine that waits for the library lock.
func (l *Library) complete(data uint64, res callback.AsyncResult) {
	go func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.deliver(context.Background(), data, res)
	}()
}

func (l *Library) deliver(ctx context.Context, data uint64, res callback.AsyncResult) {
	if l.closed.Load() {
		l.log().Debug("completion dropped after close", zap.Uint64("data", data))
		return
	}
	if l.completeFn == nil {
		l.log().Warn("completion dropped, guest has no completion export", zap.Uint64("data", data))
		return
	}
	vptr, vlen, err := l.writeBuffer(ctx, res.Value)
	if err != nil {
		l.log().Warn("completion value not delivered", zap.Uint64("data", data), zap.Error(err))
		return
	}
	eptr, elen, err := l.writeBuffer(ctx, res.Status.ErrorBuf)
	if err != nil {
		l.free(ctx, vptr, vlen)
		l.log().Warn("completion error not delivered", zap.Uint64("data", data), zap.Error(err))
		return
	}
	code := api.EncodeI32(int32(res.Status.Code))
	if _, err := l.completeFn.Call(ctx, data, code, Pack(vptr, vlen), Pack(eptr, elen)); err != nil {
		l.log().Warn("completion trapped",
			zap.Uint64("data", data),
			zap.Int8("code", int8(res.Status.Code)),
			zap.Error(err))
	}
}
