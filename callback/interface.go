package callback

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/codec"
	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/resource"
	"github.com/wippyai/ffi-runtime/wire"
)

// Options configures an Interface. The zero value is usable.
type Options struct {
	// Context is the parent of every async method's context. Cancelling it
	// completes outstanding async calls with a cancelled status.
	Context context.Context
	// Logger defaults to the package logger.
	Logger *zap.Logger
	// Table overrides the handle table, which otherwise lives on the
	// process-wide backend.
	Table resource.Backend
}

// ErrorLowerer encodes a method's declared error into st. It reports false
// for errors it does not recognize.
type ErrorLowerer func(err error, st *call.Status) (bool, error)

// ErrorsOf adapts an error codec for Sync and Async.
func ErrorsOf[E error](c codec.Codec[E]) ErrorLowerer {
	return func(err error, st *call.Status) (bool, error) {
		return codec.LowerError(c, err, st)
	}
}

// Interface holds the registered implementations of one callback interface.
type Interface[T any] struct {
	name   string
	table  *resource.Table[T]
	ctx    context.Context
	logger *zap.Logger
}

// NewInterface creates the registry for a callback interface.
func NewInterface[T any](name string, opts *Options) *Interface[T] {
	if opts == nil {
		opts = &Options{}
	}
	i := &Interface[T]{
		name:   name,
		ctx:    opts.Context,
		logger: opts.Logger,
	}
	if i.ctx == nil {
		i.ctx = context.Background()
	}
	if opts.Table != nil {
		i.table = resource.NewTableWithBackend[T](name, opts.Table)
	} else {
		i.table = resource.NewTable[T](name)
	}
	return i
}

func (i *Interface[T]) Name() string { return i.name }

// Table returns the handle table of registered implementations.
func (i *Interface[T]) Table() *resource.Table[T] { return i.table }

func (i *Interface[T]) log() *zap.Logger {
	if i.logger != nil {
		return i.logger
	}
	return Logger()
}

// Register stores impl and returns the handle native code will use.
func (i *Interface[T]) Register(impl T) (ffiruntime.Handle, error) {
	return i.table.Insert(impl)
}

// Free unregisters h. Later dispatches to h fail with unknown_handle.
func (i *Interface[T]) Free(h ffiruntime.Handle) {
	if _, err := i.table.Remove(h); err != nil {
		i.log().Warn("free of unregistered callback handle",
			zap.String("interface", i.name),
			zap.Uint64("handle", uint64(h)),
			zap.Error(err))
	}
}

// Codec returns the codec that carries implementations across the boundary
// as handles. Lowering registers the implementation; lifting resolves a
// handle native code passed back.
func (i *Interface[T]) Codec() codec.Scalar[T, ffiruntime.Handle] {
	return interfaceCodec[T]{iface: i}
}

type interfaceCodec[T any] struct {
	iface *Interface[T]
}

func (c interfaceCodec[T]) Lift(h ffiruntime.Handle) (T, error) {
	return c.iface.table.Get(h)
}

func (c interfaceCodec[T]) Lower(v T) (ffiruntime.Handle, error) {
	return c.iface.Register(v)
}

func (c interfaceCodec[T]) Read(b *wire.Buffer) (T, error) {
	h, err := b.ReadU64()
	if err != nil {
		var zero T
		return zero, err
	}
	return c.Lift(ffiruntime.Handle(h))
}

func (c interfaceCodec[T]) Write(v T, b *wire.Buffer) error {
	h, err := c.Lower(v)
	if err != nil {
		return err
	}
	b.WriteU64(uint64(h))
	return nil
}

func (interfaceCodec[T]) AllocationSize(T) int { return 8 }

// fail records a dispatch failure as a panic status.
func (i *Interface[T]) fail(method string, h ffiruntime.Handle, st *call.Status, err error) {
	i.log().Warn("callback dispatch failed",
		zap.String("interface", i.name),
		zap.String("method", method),
		zap.Uint64("handle", uint64(h)),
		zap.Error(err))
	st.SetPanic(err.Error())
}

// resolve looks up the implementation and decodes args. On failure it
// records a panic status and reports false.
func resolve[T, A any](
	i *Interface[T],
	method string,
	h ffiruntime.Handle,
	args []byte,
	st *call.Status,
	argc codec.Codec[A],
) (impl T, a A, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
			i.fail(method, h, st, errors.Panic(fmt.Sprint(r)))
		}
	}()

	impl, err := i.table.Get(h)
	if err != nil {
		i.fail(method, h, st, err)
		return impl, a, false
	}
	a, err = codec.LiftBuffer(argc, args)
	if err != nil {
		i.fail(method, h, st, err)
		return impl, a, false
	}
	return impl, a, true
}

// run calls fn and encodes its outcome into st. It never panics.
func run[T, R any](
	i *Interface[T],
	method string,
	h ffiruntime.Handle,
	st *call.Status,
	retc codec.Codec[R],
	errs ErrorLowerer,
	fn func() (R, error),
) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			out = nil
			i.fail(method, h, st, errors.Panic(fmt.Sprint(r)))
		}
	}()

	r, err := fn()
	if err != nil {
		if errs != nil {
			ok, lerr := errs(err, st)
			if lerr != nil {
				i.fail(method, h, st, lerr)
				return nil
			}
			if ok {
				return nil
			}
		}
		i.fail(method, h, st, errors.Wrap(errors.PhaseDispatch, errors.KindNativeError, err, "undeclared error from "+method))
		return nil
	}

	out, err = codec.LowerBuffer(retc, r)
	if err != nil {
		i.fail(method, h, st, err)
		return nil
	}
	st.Reset()
	return out
}

// Sync builds the entry for a synchronous method. errs may be nil when the
// method declares no error type.
func Sync[T, A, R any](
	i *Interface[T],
	name string,
	args codec.Codec[A],
	ret codec.Codec[R],
	errs ErrorLowerer,
	fn func(impl T, a A) (R, error),
) Entry {
	return Entry{
		Name: name,
		Sync: func(h ffiruntime.Handle, data []byte, st *call.Status) []byte {
			impl, a, ok := resolve(i, name, h, data, st, args)
			if !ok {
				return nil
			}
			return run(i, name, h, st, ret, errs, func() (R, error) { return fn(impl, a) })
		},
	}
}
