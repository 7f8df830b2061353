// Package ffiruntime is the runtime half of generated bindings to native
// libraries that manage their own memory.
//
// Generated code for every exported object, record, enum and callback
// interface is thin; the protocol it relies on lives here.
//
// # Architecture Overview
//
//	ffiruntime/          Root package with the Handle type and memory interfaces
//	├── wire/            Big-endian byte buffer shared by all codecs
//	├── codec/           Codec framework: scalars, containers, records, variants, objects
//	│   └── dynamic/     Codecs built at runtime from WIT type descriptions
//	├── call/            Call status protocol and forward async futures
//	├── handle/          Lifetime guard for native handles and the reclaim worker
//	├── resource/        Handle table for host implementations
//	├── callback/        VTables and trampolines for reverse calls
//	├── wasmlib/         Native libraries compiled to WebAssembly (wazero)
//	├── errors/          Structured error types
//	└── cmd/wirecat/     Wire buffer inspection tool
//
// # Forward Calls
//
// A generated method admits the call on the object's guard, lowers its
// arguments, runs the native entry point with a fresh status and converts the
// outcome:
//
//	func (w *Widget) Rename(name string) error {
//	    return w.guard.With(func(h ffiruntime.Handle) error {
//	        arg, err := codec.LowerBuffer(codec.String, name)
//	        if err != nil {
//	            return err
//	        }
//	        _, err = call.DoWithError(widgetErrors, func(st *call.Status) struct{} {
//	            lib.WidgetRename(h, arg, st)
//	            return struct{}{}
//	        })
//	        return err
//	    })
//	}
//
// # Object Lifetime
//
// Every object wraps a handle.Guard. Release destroys the native resource once
// no call is in flight; an object dropped without Release is reclaimed by the
// background worker, best effort.
//
// # Reverse Calls
//
// Host implementations of callback interfaces are registered in a
// resource.Table and reached through a callback.VTable. Async methods return a
// ForeignFuture immediately and complete through a native-supplied callback.
//
// # Thread Safety
//
// Guards, tables, codecs and vtables are safe for concurrent use. A wire.Buffer
// belongs to one goroutine at a time.
package ffiruntime
