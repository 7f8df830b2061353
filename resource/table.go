package resource

import (
	"io"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"

	"github.com/wippyai/ffi-runtime/errors"
)

var typeIDs atomic.Uint32

// Table maps handles to host values of one type. It is safe for concurrent
// use without external locking.
type Table[T any] struct {
	backend   Backend
	name      string
	observers []Observer
	obsMu     sync.RWMutex
	count     atomic.Int64
	typeID    uint32
	closed    atomic.Bool
}

// NewTable creates a table on the process-wide backend. name identifies the
// value type in errors and events.
func NewTable[T any](name string) *Table[T] {
	return NewTableWithBackend[T](name, SharedBackend())
}

// NewTableWithBackend creates a table storing its values in b. Tables
// sharing a backend never see each other's handles.
func NewTableWithBackend[T any](name string, b Backend) *Table[T] {
	return &Table[T]{
		backend: b,
		name:    name,
		typeID:  typeIDs.Add(1),
	}
}

// Name returns the table's value type name.
func (t *Table[T]) Name() string { return t.name }

// Insert registers v and returns its handle.
func (t *Table[T]) Insert(v T) (Handle, error) {
	if t.closed.Load() {
		return 0, ErrClosed
	}
	h, err := t.backend.Create(t.typeID, v)
	if err != nil {
		return 0, err
	}
	t.count.Add(1)
	t.notify(Event{
		Type:   EventInserted,
		Table:  t.name,
		Handle: h,
		TypeID: t.typeID,
		Value:  v,
	})
	return h, nil
}

// Get returns the value registered under h.
func (t *Table[T]) Get(h Handle) (T, error) {
	v, typeID, ok := t.backend.Get(h)
	if !ok || typeID != t.typeID {
		var zero T
		return zero, errors.UnknownHandle(errors.PhaseDispatch, uint64(h))
	}
	tv, _ := v.(T)
	return tv, nil
}

// Remove unregisters h and returns its value. Values implementing Dropper
// are dropped.
func (t *Table[T]) Remove(h Handle) (T, error) {
	v, ok := t.backend.Drop(h, t.typeID)
	if !ok {
		var zero T
		return zero, errors.UnknownHandle(errors.PhaseDispatch, uint64(h))
	}
	t.count.Add(-1)

	if d, ok := v.(Dropper); ok {
		d.Drop()
	}

	t.notify(Event{
		Type:   EventRemoved,
		Table:  t.name,
		Handle: h,
		TypeID: t.typeID,
		Value:  v,
	})
	tv, _ := v.(T)
	return tv, nil
}

// Subscribe adds an observer for lifecycle events.
func (t *Table[T]) Subscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	t.observers = append(t.observers, o)
}

// Unsubscribe removes an observer.
func (t *Table[T]) Unsubscribe(o Observer) {
	t.obsMu.Lock()
	defer t.obsMu.Unlock()
	for i, obs := range t.observers {
		if obs == o {
			t.observers = append(t.observers[:i], t.observers[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered values.
func (t *Table[T]) Len() int {
	return int(t.count.Load())
}

// Clear removes every value. Values implementing io.Closer are closed and
// their errors aggregated.
func (t *Table[T]) Clear() error {
	var handles []Handle
	t.backend.Each(func(h Handle, typeID uint32, _ any) bool {
		if typeID == t.typeID {
			handles = append(handles, h)
		}
		return true
	})

	var errs error
	for _, h := range handles {
		v, err := t.Remove(h)
		if err != nil {
			continue // removed concurrently
		}
		if c, ok := any(v).(io.Closer); ok {
			errs = multierr.Append(errs, c.Close())
		}
	}
	return errs
}

// Close clears the table and rejects further inserts. The backend is left
// open for other tables.
func (t *Table[T]) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	return t.Clear()
}

func (t *Table[T]) notify(e Event) {
	t.obsMu.RLock()
	defer t.obsMu.RUnlock()
	for _, o := range t.observers {
		o.OnResourceEvent(e)
	}
}
