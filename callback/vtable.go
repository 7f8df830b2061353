// Package callback lets native code call host implementations of callback
// interfaces.
//
// An Interface owns the handle table of its implementations. Each method is
// exposed to native code as a trampoline: a function taking the target
// handle and encoded arguments, filling in a call.Status and returning the
// encoded result. The trampolines of one interface, in declaration order,
// followed by a free entry, form its VTable.
//
//	var listeners = callback.NewInterface[Listener]("Listener", nil)
//
//	var listenerVTable = callback.NewVTable(listeners,
//	    callback.Sync(listeners, "on_event", eventCodec, codec.Bool, nil,
//	        func(l Listener, e Event) (bool, error) { return l.OnEvent(e) }),
//	    callback.Async(listeners, "fetch", codec.String, codec.Bytes, nil,
//	        func(ctx context.Context, l Listener, key string) ([]byte, error) {
//	            return l.Fetch(ctx, key)
//	        }),
//	)
//
// Trampolines never panic into native code: unknown handles, undecodable
// arguments, undeclared errors and Go panics all become a Panic status.
package callback

import (
	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/call"
	"github.com/wippyai/ffi-runtime/errors"
)

// Trampoline is the native-callable entry for a synchronous method.
type Trampoline func(h ffiruntime.Handle, args []byte, st *call.Status) []byte

// AsyncTrampoline starts an asynchronous method. It returns as soon as the
// work is scheduled; complete is invoked later with data and the outcome.
type AsyncTrampoline func(h ffiruntime.Handle, args []byte, complete Completion, data uint64) ForeignFuture

// Entry is one slot of a VTable. Exactly one of Sync and Async is set.
type Entry struct {
	Name  string
	Sync  Trampoline
	Async AsyncTrampoline
}

// Freer is implemented by interfaces whose handles native code can release.
type Freer interface {
	Name() string
	Free(h ffiruntime.Handle)
}

// VTable is the fixed, ordered set of entries native code uses to reach one
// callback interface. It is immutable once built.
type VTable struct {
	name    string
	entries []Entry
	free    func(h ffiruntime.Handle)
}

// NewVTable builds the vtable of an interface. Entries keep the order given.
func NewVTable(iface Freer, entries ...Entry) *VTable {
	return &VTable{
		name:    iface.Name(),
		entries: append([]Entry(nil), entries...),
		free:    iface.Free,
	}
}

func (v *VTable) Name() string { return v.name }

// Len returns the number of method entries, excluding free.
func (v *VTable) Len() int { return len(v.entries) }

// Entry returns the method entry at index i.
func (v *VTable) Entry(i int) (Entry, bool) {
	if i < 0 || i >= len(v.entries) {
		return Entry{}, false
	}
	return v.entries[i], true
}

// Call invokes the synchronous method at index i.
func (v *VTable) Call(i int, h ffiruntime.Handle, args []byte, st *call.Status) []byte {
	e, ok := v.Entry(i)
	if !ok || e.Sync == nil {
		st.SetPanic(errors.NotFound(errors.PhaseDispatch, "sync method of "+v.name, e.Name).Error())
		return nil
	}
	return e.Sync(h, args, st)
}

// CallAsync starts the asynchronous method at index i.
func (v *VTable) CallAsync(i int, h ffiruntime.Handle, args []byte, complete Completion, data uint64) ForeignFuture {
	e, ok := v.Entry(i)
	if !ok || e.Async == nil {
		var res AsyncResult
		res.Status.SetPanic(errors.NotFound(errors.PhaseDispatch, "async method of "+v.name, e.Name).Error())
		complete(data, res)
		return ForeignFuture{}
	}
	return e.Async(h, args, complete, data)
}

// Free is the trailing entry native code calls to release a handle.
func (v *VTable) Free(h ffiruntime.Handle) {
	v.free(h)
}
