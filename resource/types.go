package resource

import (
	ffiruntime "github.com/wippyai/ffi-runtime"
)

// Handle names a registered host value. Handle 0 is reserved and always
// invalid.
type Handle = ffiruntime.Handle

// EventType identifies a table lifecycle notification.
type EventType uint8

const (
	EventInserted EventType = iota
	EventRemoved
)

func (t EventType) String() string {
	switch t {
	case EventInserted:
		return "inserted"
	case EventRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Event represents a table lifecycle event.
type Event struct {
	Value  any
	Table  string
	Handle Handle
	TypeID uint32
	Type   EventType
}

// Observer receives notifications about table lifecycle events.
// Observers are called synchronously on the goroutine that changed the table.
type Observer interface {
	OnResourceEvent(Event)
}

// Backend stores type-erased values under process-unique handles.
type Backend interface {
	// Create stores a value and returns a handle that was never issued before.
	Create(typeID uint32, value any) (Handle, error)

	// Get retrieves a value and its type ID.
	Get(handle Handle) (any, uint32, bool)

	// Drop removes a value if it is stored under typeID.
	Drop(handle Handle, typeID uint32) (any, bool)

	// Each iterates over stored values until fn returns false.
	Each(fn func(Handle, uint32, any) bool)

	// Close releases all stored values and rejects further creates.
	Close() error
}

// Dropper is optionally implemented by values that need cleanup when they
// leave a table.
type Dropper interface {
	Drop()
}
