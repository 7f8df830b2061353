package wasmlib

import (
	"context"
	"strings"
	"testing"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/callback"
	"github.com/wippyai/ffi-runtime/errors"
	"github.com/wippyai/ffi-runtime/handle"
	"github.com/wippyai/ffi-runtime/internal/wasmtest"
)

func loadNative(t *testing.T) *Library {
	t.Helper()
	ctx := context.Background()
	lib, err := Load(ctx, wasmtest.NativeLibrary(), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	t.Cleanup(func() { lib.Close(ctx) })
	return lib
}

func global(t *testing.T, lib *Library, name string) uint64 {
	t.Helper()
	g := lib.Module().ExportedGlobal(name)
	if g == nil {
		t.Fatalf("global %q not exported", name)
	}
	return g.Get()
}

func mustFunc(t *testing.T, lib *Library, name string) *Func {
	t.Helper()
	fn, err := lib.Func(name)
	if err != nil {
		t.Fatal(err)
	}
	return fn
}

func TestLoadErrors(t *testing.T) {
	ctx := context.Background()
	noMemory := (&wasmtest.Module{
		Funcs: []wasmtest.Func{{Name: "ffi_alloc", Params: []byte{wasmtest.I32}, Results: []byte{wasmtest.I32}, Body: []byte{0x20, 0x00}}},
	}).Encode()
	noFree := (&wasmtest.Module{
		MemoryPages: 1,
		Funcs:       []wasmtest.Func{{Name: "ffi_alloc", Params: []byte{wasmtest.I32}, Results: []byte{wasmtest.I32}, Body: []byte{0x20, 0x00}}},
	}).Encode()

	counters := callback.NewVTable(callback.NewInterface[int]("Counter", nil))

	tests := []struct {
		name string
		wasm []byte
		cfg  *Config
		kind errors.Kind
	}{
		{"unresolved callbacks", wasmtest.CallbackLibrary("Counter"), nil, errors.KindInvalidData},
		{"wrong vtable", wasmtest.CallbackLibrary("Counter"), &Config{Callbacks: []*callback.VTable{
			callback.NewVTable(callback.NewInterface[int]("Other", nil)),
		}}, errors.KindInvalidData},
		{"duplicate vtable", wasmtest.CallbackLibrary("Counter"), &Config{Callbacks: []*callback.VTable{counters, counters}}, errors.KindInvalidInput},
		{"garbage", []byte("not wasm"), nil, errors.KindInvalidData},
		{"no memory", noMemory, nil, errors.KindNotFound},
		{"no free", noFree, nil, errors.KindNotFound},
		{"renamed allocator", wasmtest.NativeLibrary(), &Config{AllocSymbol: "malloc"}, errors.KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lib, err := Load(ctx, tt.wasm, tt.cfg)
			if err == nil {
				lib.Close(ctx)
				t.Fatal("expected error")
			}
			if !errors.IsKind(err, tt.kind) {
				t.Errorf("kind = %q, want %q (%v)", errors.KindOf(err), tt.kind, err)
			}
		})
	}
}

func TestCallSuccess(t *testing.T) {
	lib := loadNative(t)
	add := mustFunc(t, lib, "add")

	before := global(t, lib, wasmtest.GlobalBufferFrees)
	var st call.Status
	res, err := add.Call(context.Background(), &st, 2, 3)
	if err != nil {
		t.Fatal(err)
	}
	if st.Code != call.CodeSuccess || len(res) != 1 || uint32(res[0]) != 5 {
		t.Fatalf("status %v results %v", st.Code, res)
	}
	if got := global(t, lib, wasmtest.GlobalBufferFrees) - before; got != 1 {
		t.Errorf("status record frees = %d, want 1", got)
	}
}

func TestCallStatuses(t *testing.T) {
	lib := loadNative(t)

	tests := []struct {
		fn      string
		code    call.Code
		payload string
		kind    errors.Kind
	}{
		{"fail", call.CodeError, wasmtest.ErrorPayload, errors.KindNativeError},
		{"panic", call.CodePanic, wasmtest.ErrorPayload, errors.KindPanic},
		{"bad_status", call.Code(9), "", errors.KindUnknownStatus},
	}
	for _, tt := range tests {
		t.Run(tt.fn, func(t *testing.T) {
			fn := mustFunc(t, lib, tt.fn)
			var st call.Status
			if _, err := fn.Call(context.Background(), &st); err != nil {
				t.Fatal(err)
			}
			if st.Code != tt.code || string(st.ErrorBuf) != tt.payload {
				t.Fatalf("status = %v %q", st.Code, st.ErrorBuf)
			}
			if err := call.Check(&st, nil); !errors.IsKind(err, tt.kind) {
				t.Errorf("Check = %v, want kind %s", err, tt.kind)
			}
		})
	}
}

func TestErrorPayloadFreed(t *testing.T) {
	lib := loadNative(t)
	fail := mustFunc(t, lib, "fail")

	before := global(t, lib, wasmtest.GlobalBufferFrees)
	var st call.Status
	if _, err := fail.Call(context.Background(), &st); err != nil {
		t.Fatal(err)
	}
	if got := global(t, lib, wasmtest.GlobalBufferFrees) - before; got != 2 {
		t.Errorf("frees = %d, want 2 (status record and payload)", got)
	}
}

func TestTrapIsPanic(t *testing.T) {
	lib := loadNative(t)
	abort := mustFunc(t, lib, "abort")

	var st call.Status
	if _, err := abort.Call(context.Background(), &st); err != nil {
		t.Fatal(err)
	}
	if st.Code != call.CodePanic {
		t.Fatalf("status = %v, want panic", st.Code)
	}
	if !errors.IsFatal(call.Check(&st, nil)) {
		t.Error("trap should be fatal")
	}

	// The instance stays usable after a trap.
	res, err := mustFunc(t, lib, "add").Call(context.Background(), &st, 1, 1)
	if err != nil || st.Code != call.CodeSuccess || uint32(res[0]) != 2 {
		t.Fatalf("add after trap: %v %v %v", res, st.Code, err)
	}
}

func TestBuffers(t *testing.T) {
	lib := loadNative(t)
	echo := mustFunc(t, lib, "echo")

	ptr, n, err := lib.WriteBuffer([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 || ptr == 0 {
		t.Fatalf("WriteBuffer = (%d, %d)", ptr, n)
	}

	var st call.Status
	res, err := echo.Call(context.Background(), &st, uint64(ptr), uint64(n))
	if err != nil || st.Code != call.CodeSuccess {
		t.Fatalf("echo: %v %v", st.Code, err)
	}
	if p, l := Unpack(res[0]); p != ptr || l != n {
		t.Fatalf("packed = (%d, %d), want (%d, %d)", p, l, ptr, n)
	}

	before := global(t, lib, wasmtest.GlobalBufferFrees)
	data, err := lib.TakeBuffer(res[0])
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Errorf("data = %q", data)
	}
	if global(t, lib, wasmtest.GlobalBufferFrees) != before+1 {
		t.Error("TakeBuffer should free the guest buffer")
	}

	if _, n, err := lib.WriteBuffer(nil); err != nil || n != 0 {
		t.Errorf("empty WriteBuffer = %d, %v", n, err)
	}
}

func TestWriteBufferBeyondMemory(t *testing.T) {
	lib := loadNative(t)
	_, _, err := lib.WriteBuffer(make([]byte, 70000))
	if !errors.IsKind(err, errors.KindOutOfBounds) {
		t.Fatalf("err = %v, want out_of_bounds", err)
	}
}

func TestPack(t *testing.T) {
	tests := []struct{ ptr, n uint32 }{
		{0, 0},
		{1024, 5},
		{0xffffffff, 0xffffffff},
	}
	for _, tt := range tests {
		p, n := Unpack(Pack(tt.ptr, tt.n))
		if p != tt.ptr || n != tt.n {
			t.Errorf("Unpack(Pack(%d, %d)) = (%d, %d)", tt.ptr, tt.n, p, n)
		}
	}
}

func TestEntryPointsDriveGuard(t *testing.T) {
	lib := loadNative(t)
	ep, err := lib.EntryPoints("obj_clone", "obj_free")
	if err != nil {
		t.Fatal(err)
	}

	var st call.Status
	res, err := mustFunc(t, lib, "obj_new").Call(context.Background(), &st)
	if err != nil || st.Code != call.CodeSuccess {
		t.Fatalf("obj_new: %v %v", st.Code, err)
	}
	g := handle.NewGuard("Object", ffiruntime.Handle(res[0]), ep)

	err = g.With(func(h ffiruntime.Handle) error {
		if h != g.Handle() {
			t.Errorf("clone = %d, want %d", h, g.Handle())
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if global(t, lib, wasmtest.GlobalClones) != 1 {
		t.Errorf("clones = %d, want 1", global(t, lib, wasmtest.GlobalClones))
	}

	g.Release()
	if global(t, lib, wasmtest.GlobalObjectFrees) != 1 {
		t.Errorf("object frees = %d, want 1", global(t, lib, wasmtest.GlobalObjectFrees))
	}
}

func TestEntryPointsMissing(t *testing.T) {
	lib := loadNative(t)
	if _, err := lib.EntryPoints("obj_clone", "nope"); !errors.IsKind(err, errors.KindNotFound) {
		t.Errorf("err = %v", err)
	}
	ep, err := lib.EntryPoints("", "obj_free")
	if err != nil || ep.Clone != nil || ep.Free == nil {
		t.Errorf("lend-only entry points = %+v, %v", ep, err)
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	lib, err := Load(ctx, wasmtest.NativeLibrary(), &Config{MemoryLimitPages: 4})
	if err != nil {
		t.Fatal(err)
	}
	add := mustFunc(t, lib, "add")

	if err := lib.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if err := lib.Close(ctx); err != nil {
		t.Errorf("second Close = %v", err)
	}

	var st call.Status
	_, err = add.Call(ctx, &st, 1, 2)
	if !errors.IsKind(err, errors.KindAlreadyReleased) {
		t.Fatalf("call after close = %v", err)
	}
	if !strings.Contains(err.Error(), "Library") {
		t.Errorf("message %q should name the library", err.Error())
	}
}
