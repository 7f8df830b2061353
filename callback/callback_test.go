package callback

import (
	"context"
	stderrors "errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/codec"
	"github.com/wippyai/ffi-runtime/resource"
)

type listener interface {
	OnEvent(name string) (int32, error)
	Fetch(ctx context.Context, key string) ([]byte, error)
}

type rejectError struct{ Reason string }

func (e *rejectError) Error() string { return e.Reason }

var rejectCodec = codec.Variant("Reject",
	func(*rejectError) int { return 1 },
	codec.MessageCase("Rejected",
		func(m string) *rejectError { return &rejectError{Reason: m} },
		func(e *rejectError) string { return e.Reason }),
)

type fakeListener struct {
	calls   atomic.Int32
	release chan struct{}
	started chan struct{}
}

func (l *fakeListener) OnEvent(name string) (int32, error) {
	l.calls.Add(1)
	switch name {
	case "reject":
		return 0, &rejectError{Reason: "not today"}
	case "undeclared":
		return 0, stderrors.New("disk on fire")
	case "panic":
		panic("listener exploded")
	}
	return int32(len(name)), nil
}

func (l *fakeListener) Fetch(ctx context.Context, key string) ([]byte, error) {
	if l.started != nil {
		close(l.started)
	}
	select {
	case <-l.release:
		return []byte("value:" + key), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newListenerVTable(opts *Options) (*Interface[listener], *VTable) {
	if opts == nil {
		opts = &Options{}
	}
	opts.Table = resource.NewShardedBackend()
	iface := NewInterface[listener]("Listener", opts)
	vt := NewVTable(iface,
		Sync(iface, "on_event", codec.String, codec.Int32, ErrorsOf(rejectCodec),
			func(l listener, name string) (int32, error) { return l.OnEvent(name) }),
		Async(iface, "fetch", codec.String, codec.Bytes, nil,
			func(ctx context.Context, l listener, key string) ([]byte, error) { return l.Fetch(ctx, key) }),
	)
	return iface, vt
}

func mustLower[T any](t *testing.T, c codec.Codec[T], v T) []byte {
	t.Helper()
	b, err := codec.LowerBuffer(c, v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestSyncDispatch(t *testing.T) {
	iface, vt := newListenerVTable(nil)
	impl := &fakeListener{}
	h, err := iface.Register(impl)
	if err != nil {
		t.Fatal(err)
	}

	var st call.Status
	out := vt.Call(0, h, mustLower(t, codec.String, "hello"), &st)
	if st.Code != call.CodeSuccess {
		t.Fatalf("status = %v %q", st.Code, st.ErrorBuf)
	}
	n, err := codec.LiftBuffer(codec.Int32, out)
	if err != nil || n != 5 {
		t.Fatalf("result = %d, %v", n, err)
	}
}

func TestDispatchAfterUnregister(t *testing.T) {
	iface, vt := newListenerVTable(nil)
	impl := &fakeListener{}
	h, _ := iface.Register(impl)

	vt.Free(h)

	var st call.Status
	vt.Call(0, h, mustLower(t, codec.String, "hello"), &st)
	if st.Code != call.CodePanic {
		t.Fatalf("status = %v, want panic", st.Code)
	}
	if !strings.Contains(string(st.ErrorBuf), "unknown_handle") {
		t.Errorf("message %q should report unknown_handle", st.ErrorBuf)
	}
	if impl.calls.Load() != 0 {
		t.Error("implementation invoked after unregister")
	}
	if iface.Table().Len() != 0 {
		t.Errorf("table still holds %d entries", iface.Table().Len())
	}

	vt.Free(h) // double free is logged, not fatal
}

func TestDeclaredError(t *testing.T) {
	iface, vt := newListenerVTable(nil)
	h, _ := iface.Register(&fakeListener{})

	var st call.Status
	vt.Call(0, h, mustLower(t, codec.String, "reject"), &st)
	if st.Code != call.CodeError {
		t.Fatalf("status = %v, want error", st.Code)
	}
	_, err := call.DoWithError(codec.ErrorLifter(rejectCodec), func(s *call.Status) int {
		*s = st
		return 0
	})
	var re *rejectError
	if !stderrors.As(err, &re) || re.Reason != "not today" {
		t.Fatalf("lifted %v", err)
	}
}

func TestUndeclaredErrorAndPanic(t *testing.T) {
	iface, vt := newListenerVTable(nil)
	h, _ := iface.Register(&fakeListener{})

	for _, name := range []string{"undeclared", "panic"} {
		var st call.Status
		out := vt.Call(0, h, mustLower(t, codec.String, name), &st)
		if st.Code != call.CodePanic || out != nil {
			t.Errorf("%s: status = %v out = %v", name, st.Code, out)
		}
	}
}

func TestBadArguments(t *testing.T) {
	iface, vt := newListenerVTable(nil)
	h, _ := iface.Register(&fakeListener{})

	var st call.Status
	vt.Call(0, h, []byte{0, 0, 0, 9, 'x'}, &st)
	if st.Code != call.CodePanic {
		t.Fatalf("status = %v, want panic for truncated args", st.Code)
	}

	st.Reset()
	vt.Call(7, h, nil, &st)
	if st.Code != call.CodePanic {
		t.Fatalf("status = %v, want panic for bad index", st.Code)
	}
}

type recorder struct {
	calls  atomic.Int32
	result chan AsyncResult
}

func newRecorder() *recorder {
	return &recorder{result: make(chan AsyncResult, 4)}
}

func (r *recorder) complete(data uint64, res AsyncResult) {
	r.calls.Add(1)
	if data != 77 {
		res.Status.SetPanic("wrong callback data")
	}
	r.result <- res
}

func TestAsyncReturnsBeforeCompletion(t *testing.T) {
	iface, vt := newListenerVTable(nil)
	impl := &fakeListener{release: make(chan struct{}), started: make(chan struct{})}
	h, _ := iface.Register(impl)
	rec := newRecorder()

	args := mustLower(t, codec.String, "k1")
	fut := vt.CallAsync(1, h, args, rec.complete, 77)
	if fut.Handle == 0 || fut.Free == nil {
		t.Fatalf("future = %+v", fut)
	}
	args[4] = 'X' // the trampoline must have copied its arguments

	<-impl.started
	select {
	case <-rec.result:
		t.Fatal("completion ran before the operation finished")
	case <-time.After(10 * time.Millisecond):
	}

	close(impl.release)
	res := <-rec.result
	if res.Status.Code != call.CodeSuccess {
		t.Fatalf("status = %v %q", res.Status.Code, res.Status.ErrorBuf)
	}
	v, err := codec.LiftBuffer(codec.Bytes, res.Value)
	if err != nil || string(v) != "value:k1" {
		t.Fatalf("value = %q, %v", v, err)
	}

	fut.Free(fut.Handle)
	time.Sleep(10 * time.Millisecond)
	if rec.calls.Load() != 1 {
		t.Errorf("completion invoked %d times, want 1", rec.calls.Load())
	}
}

func TestAsyncFreeCancels(t *testing.T) {
	iface, vt := newListenerVTable(nil)
	impl := &fakeListener{release: make(chan struct{}), started: make(chan struct{})}
	h, _ := iface.Register(impl)
	rec := newRecorder()

	before := PendingFutures()
	fut := vt.CallAsync(1, h, mustLower(t, codec.String, "k"), rec.complete, 77)
	<-impl.started
	if PendingFutures() != before+1 {
		t.Errorf("pending = %d, want %d", PendingFutures(), before+1)
	}

	fut.Free(fut.Handle)
	if PendingFutures() != before {
		t.Errorf("pending after free = %d, want %d", PendingFutures(), before)
	}

	select {
	case res := <-rec.result:
		t.Fatalf("completion invoked after free: %+v", res)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestAsyncContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	iface, vt := newListenerVTable(&Options{Context: ctx})
	impl := &fakeListener{release: make(chan struct{}), started: make(chan struct{})}
	h, _ := iface.Register(impl)
	rec := newRecorder()

	fut := vt.CallAsync(1, h, mustLower(t, codec.String, "k"), rec.complete, 77)
	defer fut.Free(fut.Handle)
	<-impl.started
	cancel()

	res := <-rec.result
	if res.Status.Code != call.CodeCancelled {
		t.Fatalf("status = %v, want cancelled", res.Status.Code)
	}
}

func TestAsyncFailsBeforeScheduling(t *testing.T) {
	iface, vt := newListenerVTable(nil)
	h, _ := iface.Register(&fakeListener{})

	tests := []struct {
		name   string
		handle uint64
		args   []byte
		want   string
	}{
		{"unknown handle", 424242, mustLower(t, codec.String, "k"), "unknown_handle"},
		{"truncated args", uint64(h), []byte{0, 0, 0, 9, 'x'}, "out_of_bounds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := newRecorder()
			before := PendingFutures()

			fut := vt.CallAsync(1, ffiruntime.Handle(tt.handle), tt.args, rec.complete, 77)
			if fut.Handle != 0 || fut.Free != nil {
				t.Errorf("future = %+v, want empty", fut)
			}
			if PendingFutures() != before {
				t.Errorf("pending = %d, want %d", PendingFutures(), before)
			}
			if rec.calls.Load() != 1 {
				t.Fatalf("completion invoked %d times before return, want 1", rec.calls.Load())
			}
			res := <-rec.result
			if res.Status.Code != call.CodePanic || !strings.Contains(string(res.Status.ErrorBuf), tt.want) {
				t.Fatalf("status = %v %q", res.Status.Code, res.Status.ErrorBuf)
			}
		})
	}
}

func TestInterfaceCodec(t *testing.T) {
	iface, _ := newListenerVTable(nil)
	impl := &fakeListener{}
	c := iface.Codec()

	data, err := codec.LowerBuffer[listener](c, impl)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 8 {
		t.Fatalf("encoded %d bytes, want 8", len(data))
	}
	back, err := codec.LiftBuffer[listener](c, data)
	if err != nil {
		t.Fatal(err)
	}
	if back != listener(impl) {
		t.Error("lifted a different implementation")
	}

	h, _ := c.Lower(impl)
	iface.Free(h)
	if _, err := c.Lift(h); err == nil {
		t.Error("lift of a freed handle should fail")
	}
}
