// Package resource provides handle tables for host values reached from
// native code.
//
// When a host implementation of a callback interface is passed to native
// code, it is registered in a Table and native code receives only its
// handle. Reverse calls look the implementation up by handle; native code
// unregisters it through the vtable's free entry.
//
// # Handle Table
//
// A Table maps handles to values of one Go type:
//
//	listeners := resource.NewTable[Listener]("Listener")
//
//	h, err := listeners.Insert(impl)
//	impl, err = listeners.Get(h)
//	impl, err = listeners.Remove(h)
//
// Get and Remove of a handle that was never issued, was already removed, or
// belongs to another table fail with an unknown_handle error.
//
// # Handle Allocation
//
// Handles come from a monotonically increasing counter starting at 1 and are
// never reused within the process lifetime, so a stale handle can never
// resolve to a newer registration. All tables created with NewTable share one
// sharded backend and therefore one handle space.
//
// # Observers
//
// Register observers to track lifecycle events:
//
//	type logObserver struct{}
//
//	func (logObserver) OnResourceEvent(e resource.Event) {
//	    log.Printf("%s %d %s", e.Table, e.Handle, e.Type)
//	}
//
//	listeners.Subscribe(logObserver{})
//
// # Memory Management
//
// Values stay registered until native code frees them or the table is
// closed. Values implementing Dropper are dropped on removal; Clear and
// Close also close values implementing io.Closer.
package resource
