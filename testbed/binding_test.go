package testbed

import (
	"context"
	"testing"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/codec"
	"github.com/wippyai/ffi-runtime/handle"
	"github.com/wippyai/ffi-runtime/internal/wasmtest"
	"github.com/wippyai/ffi-runtime/wasmlib"
)

// object wraps one native object of the test library, shaped the way a
// generated binding shapes it.
type object struct {
	guard *handle.Guard
}

func (o *object) Release() { o.guard.Release() }

// native binds the exports of the test library.
type native struct {
	lib     *wasmlib.Library
	objects codec.Object[object]
	objNew  *wasmlib.Func
	echo    *wasmlib.Func
	fail    *wasmlib.Func
}

func openNative(t *testing.T, r *handle.Reclaimer) *native {
	t.Helper()
	ctx := context.Background()
	lib, err := wasmlib.Load(ctx, wasmtest.NativeLibrary(), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	t.Cleanup(func() { lib.Close(ctx) })

	ep, err := lib.EntryPoints("obj_clone", "obj_free")
	if err != nil {
		t.Fatalf("entry points: %v", err)
	}
	n := &native{
		lib: lib,
		objects: codec.Object[object]{
			Name:        "Object",
			EntryPoints: ep,
			New:         func(g *handle.Guard) *object { return &object{guard: g} },
			Guard:       func(o *object) *handle.Guard { return o.guard },
			Reclaimer:   r,
		},
	}
	for name, fn := range map[string]**wasmlib.Func{"obj_new": &n.objNew, "echo": &n.echo, "fail": &n.fail} {
		if *fn, err = lib.Func(name); err != nil {
			t.Fatalf("export %s: %v", name, err)
		}
	}
	return n
}

func (n *native) newObject(ctx context.Context) (*object, error) {
	var st call.Status
	res, err := n.objNew.Call(ctx, &st)
	if err != nil {
		return nil, err
	}
	if err := call.Check(&st, nil); err != nil {
		return nil, err
	}
	return n.objects.Lift(ffiruntime.Handle(res[0]))
}

// roundTrip lowers v into guest memory, passes it through the echo export
// and lifts what comes back.
func roundTrip[T any](ctx context.Context, n *native, c codec.Codec[T], v T) (T, error) {
	var zero T
	data, err := codec.LowerBuffer(c, v)
	if err != nil {
		return zero, err
	}
	ptr, size, err := n.lib.WriteBuffer(data)
	if err != nil {
		return zero, err
	}
	var st call.Status
	res, err := n.echo.Call(ctx, &st, uint64(ptr), uint64(size))
	if err != nil {
		return zero, err
	}
	if err := call.Check(&st, nil); err != nil {
		return zero, err
	}
	out, err := n.lib.TakeBuffer(res[0])
	if err != nil {
		return zero, err
	}
	return codec.LiftBuffer(c, out)
}

func (n *native) global(t *testing.T, name string) uint64 {
	t.Helper()
	g := n.lib.Module().ExportedGlobal(name)
	if g == nil {
		t.Fatalf("global %q not exported", name)
	}
	return g.Get()
}
