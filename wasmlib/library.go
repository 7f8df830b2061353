// Package wasmlib loads a native library compiled to WebAssembly and exposes
// its exports as native entry points.
//
// Every entry point takes its ABI arguments followed by an i32 pointer to a
// 12-byte status record in guest memory:
//
//	offset 0  code    u8
//	offset 4  errPtr  u32 little-endian
//	offset 8  errLen  u32 little-endian
//
// The host zeroes the record before the call and copies it into a
// call.Status afterwards, releasing the error payload through the library's
// free export. Buffers travel as (ptr i32, len i32); a returned buffer is
// packed into one i64 as ptr<<32 | len. A trap is an unrecoverable native
// fault and is reported as a Panic status.
//
// Guest code is single-threaded, so a Library serializes every call into
// the module. Callback vtables listed in Config become host imports the
// guest calls back through (see CallbackModule). A callback runs while the
// guest call that reached it still holds the library, so it must not call
// into the same library synchronously.
package wasmlib

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/callback"
	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/handle"
)

const (
	DefaultAllocSymbol = "ffi_alloc"
	DefaultFreeSymbol  = "ffi_free"

	statusSize = 12
)

// Config holds configuration for loading a library
type Config struct {
	// MemoryLimitPages sets the maximum guest memory in pages (64KB each).
	// 0 means the wazero default.
	MemoryLimitPages uint32

	// AllocSymbol and FreeSymbol name the allocator exports.
	// Empty means DefaultAllocSymbol and DefaultFreeSymbol.
	AllocSymbol string
	FreeSymbol  string

	// Callbacks are exposed to the guest under CallbackModule. The guest
	// must export CompleteSymbol when any of them has async methods.
	Callbacks []*callback.VTable

	// CompleteSymbol names the async completion export.
	// Empty means DefaultCompleteSymbol.
	CompleteSymbol string

	// Logger defaults to the package logger.
	Logger *zap.Logger
}

// Library is an instantiated native library.
type Library struct {
	runtime wazero.Runtime
	module  api.Module
	memory  *Memory
	allocFn api.Function
	freeFn  api.Function
	// completeFn is nil when the guest has no completion export.
	completeFn api.Function
	logger     *zap.Logger
	mu         sync.Mutex
	closed     atomic.Bool
}

// Load compiles and instantiates wasm. The context is used for compilation
// and instantiation only.
func Load(ctx context.Context, wasm []byte, cfg *Config) (*Library, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	rt := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	lib, err := instantiate(ctx, rt, wasm, cfg)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	return lib, nil
}

func instantiate(ctx context.Context, rt wazero.Runtime, wasm []byte, cfg *Config) (*Library, error) {
	lib := &Library{runtime: rt, logger: cfg.Logger}
	if len(cfg.Callbacks) > 0 {
		if err := lib.buildCallbacks(ctx, rt, cfg.Callbacks); err != nil {
			return nil, err
		}
	}

	compiled, err := rt.CompileModule(ctx, wasm)
	if err != nil {
		return nil, errors.Load("compile module", err)
	}
	mod, err := rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(""))
	if err != nil {
		return nil, errors.Load("instantiate module", err)
	}

	mem := mod.Memory()
	if mem == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "export", "memory")
	}

	allocName, freeName := cfg.AllocSymbol, cfg.FreeSymbol
	if allocName == "" {
		allocName = DefaultAllocSymbol
	}
	if freeName == "" {
		freeName = DefaultFreeSymbol
	}
	allocFn := mod.ExportedFunction(allocName)
	if allocFn == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "allocator export", allocName)
	}
	freeFn := mod.ExportedFunction(freeName)
	if freeFn == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "allocator export", freeName)
	}

	completeName := cfg.CompleteSymbol
	if completeName == "" {
		completeName = DefaultCompleteSymbol
	}

	lib.module = mod
	lib.memory = &Memory{mem: mem}
	lib.allocFn = allocFn
	lib.freeFn = freeFn
	lib.completeFn = mod.ExportedFunction(completeName)
	lib.log().Debug("library loaded",
		zap.Uint32("memory_bytes", mem.Size()),
		zap.String("alloc", allocName),
		zap.String("free", freeName),
		zap.Int("callbacks", len(cfg.Callbacks)))
	return lib, nil
}

func (l *Library) log() *zap.Logger {
	if l.logger != nil {
		return l.logger
	}
	return Logger()
}

// Memory returns the library's linear memory.
func (l *Library) Memory() *Memory { return l.memory }

// Module returns the underlying wazero module.
func (l *Library) Module() api.Module { return l.module }

// Alloc allocates size bytes of guest memory.
func (l *Library) Alloc(size uint32) (uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alloc(context.Background(), size)
}

// Free releases guest memory obtained from Alloc.
func (l *Library) Free(ptr, size uint32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.free(context.Background(), ptr, size)
}

func (l *Library) alloc(ctx context.Context, size uint32) (uint32, error) {
	if l.closed.Load() {
		return 0, errors.AlreadyReleased("Library")
	}
	res, err := l.allocFn.Call(ctx, uint64(size))
	if err != nil {
		return 0, errors.AllocationFailed(errors.PhaseCall, size, err)
	}
	ptr := uint32(res[0])
	if ptr == 0 && size > 0 {
		return 0, errors.AllocationFailed(errors.PhaseCall, size, nil)
	}
	return ptr, nil
}

func (l *Library) free(ctx context.Context, ptr, size uint32) {
	if ptr == 0 || l.closed.Load() {
		return
	}
	if _, err := l.freeFn.Call(ctx, uint64(ptr), uint64(size)); err != nil {
		l.log().Warn("guest free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

// WriteBuffer copies data into freshly allocated guest memory.
func (l *Library) WriteBuffer(data []byte) (ptr, length uint32, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.writeBuffer(context.Background(), data)
}

func (l *Library) writeBuffer(ctx context.Context, data []byte) (uint32, uint32, error) {
	if uint64(len(data)) > 1<<32-1 {
		return 0, 0, errors.Overflow(errors.PhaseEncode, nil, len(data), "u32")
	}
	n := uint32(len(data))
	if n == 0 {
		return 0, 0, nil
	}
	ptr, err := l.alloc(ctx, n)
	if err != nil {
		return 0, 0, err
	}
	if err := l.memory.Write(ptr, data); err != nil {
		l.free(ctx, ptr, n)
		return 0, 0, err
	}
	return ptr, n, nil
}

// ReadBuffer copies length bytes at ptr out of guest memory.
func (l *Library) ReadBuffer(ptr, length uint32) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.readBuffer(ptr, length)
}

func (l *Library) readBuffer(ptr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	view, err := l.memory.Read(ptr, length)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), view...), nil
}

// FreeBuffer releases a buffer written by WriteBuffer or returned by the guest.
func (l *Library) FreeBuffer(ptr, length uint32) {
	l.Free(ptr, length)
}

// TakeBuffer copies out a buffer returned packed as ptr<<32 | len and
// releases it in the guest.
func (l *Library) TakeBuffer(packed uint64) ([]byte, error) {
	ptr, length := Unpack(packed)
	l.mu.Lock()
	defer l.mu.Unlock()
	data, err := l.readBuffer(ptr, length)
	l.free(context.Background(), ptr, length)
	return data, err
}

// Pack combines a buffer location into the i64 a guest returns.
func Pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// Unpack splits a packed buffer location.
func Unpack(packed uint64) (ptr, length uint32) {
	return uint32(packed >> 32), uint32(packed)
}

// Func is an exported entry point following the status record convention.
type Func struct {
	lib  *Library
	name string
	fn   api.Function
}

// Func looks up an exported entry point.
func (l *Library) Func(name string) (*Func, error) {
	fn := l.module.ExportedFunction(name)
	if fn == nil {
		return nil, errors.NotFound(errors.PhaseLoad, "export", name)
	}
	return &Func{lib: l, name: name, fn: fn}, nil
}

func (f *Func) Name() string { return f.name }

// Call invokes the entry point with args followed by a status record pointer
// and fills in st. The returned error covers host-side failures only (closed
// library, allocation, memory access); native outcomes, traps included, are
// reported through st.
func (f *Func) Call(ctx context.Context, st *call.Status, args ...uint64) ([]uint64, error) {
	l := f.lib
	l.mu.Lock()
	defer l.mu.Unlock()

	st.Reset()
	rec, err := l.alloc(ctx, statusSize)
	if err != nil {
		return nil, err
	}
	defer l.free(ctx, rec, statusSize)
	if err := l.memory.Write(rec, make([]byte, statusSize)); err != nil {
		return nil, err
	}

	params := make([]uint64, 0, len(args)+1)
	params = append(params, args...)
	params = append(params, uint64(rec))

	results, err := f.fn.Call(ctx, params...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, errors.Cancelled(errors.PhaseCall, ctxErr)
		}
		l.log().Warn("native trap",
			zap.String("func", f.name),
			zap.Error(err))
		st.SetPanic(err.Error())
		return nil, nil
	}

	if err := l.readStatus(ctx, rec, st); err != nil {
		return nil, err
	}
	return results, nil
}

func (l *Library) readStatus(ctx context.Context, rec uint32, st *call.Status) error {
	raw, err := l.memory.Read(rec, statusSize)
	if err != nil {
		return err
	}
	st.Code = call.Code(int8(raw[0]))
	errPtr, err := l.memory.ReadU32(rec + 4)
	if err != nil {
		return err
	}
	errLen, err := l.memory.ReadU32(rec + 8)
	if err != nil {
		return err
	}
	if errLen > 0 {
		payload, err := l.readBuffer(errPtr, errLen)
		l.free(ctx, errPtr, errLen)
		if err != nil {
			return err
		}
		st.ErrorBuf = payload
	}
	return nil
}

// EntryPoints binds an object type's clone and free exports. Both take
// (handle i64, status i32); clone returns the new handle as i64. An empty
// clone name lends the owned handle to calls directly.
func (l *Library) EntryPoints(clone, free string) (handle.EntryPoints, error) {
	freeFn, err := l.Func(free)
	if err != nil {
		return handle.EntryPoints{}, err
	}
	ep := handle.EntryPoints{
		Free: func(h ffiruntime.Handle, st *call.Status) {
			if _, err := freeFn.Call(context.Background(), st, uint64(h)); err != nil {
				st.SetPanic(err.Error())
			}
		},
	}
	if clone == "" {
		return ep, nil
	}
	cloneFn, err := l.Func(clone)
	if err != nil {
		return handle.EntryPoints{}, err
	}
	ep.Clone = func(h ffiruntime.Handle, st *call.Status) ffiruntime.Handle {
		res, err := cloneFn.Call(context.Background(), st, uint64(h))
		if err != nil {
			st.SetPanic(err.Error())
			return 0
		}
		if st.Code != call.CodeSuccess || len(res) == 0 {
			return 0
		}
		return ffiruntime.Handle(res[0])
	}
	return ep, nil
}

// Close releases the module and its runtime. Calls after Close fail with
// already_released.
func (l *Library) Close(ctx context.Context) error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.runtime.Close(ctx)
}

var _ ffiruntime.Allocator = (*Library)(nil)
