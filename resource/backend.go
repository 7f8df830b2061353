package resource

import (
	"sync"
	"sync/atomic"

	"github.com/wippyai/ffi-runtime/errors"
)

const numShards = 64

// ErrClosed is returned when inserting into a closed table or backend.
var ErrClosed = errors.New(errors.PhaseDispatch, errors.KindInvalidInput).
	Detail("handle table closed").
	Build()

type entry struct {
	value  any
	typeID uint32
}

type shard struct {
	mu      sync.RWMutex
	entries map[Handle]entry
}

// ShardedBackend is an in-memory Backend that spreads entries over
// independently locked shards. Handles come from a monotonically increasing
// counter and are never reused.
type ShardedBackend struct {
	shards [numShards]shard
	next   atomic.Uint64
	closed atomic.Bool
}

// NewShardedBackend creates an empty backend. The first handle issued is 1.
func NewShardedBackend() *ShardedBackend {
	b := &ShardedBackend{}
	for i := range b.shards {
		b.shards[i].entries = make(map[Handle]entry)
	}
	return b
}

var sharedBackend = sync.OnceValue(func() *ShardedBackend {
	return NewShardedBackend()
})

// SharedBackend returns the process-wide backend used by NewTable. Handles
// are unique across every table built on it.
func SharedBackend() *ShardedBackend {
	return sharedBackend()
}

func (b *ShardedBackend) shardOf(h Handle) *shard {
	return &b.shards[uint64(h)%numShards]
}

// Create stores a value and returns a handle.
func (b *ShardedBackend) Create(typeID uint32, value any) (Handle, error) {
	if b.closed.Load() {
		return 0, ErrClosed
	}
	h := Handle(b.next.Add(1))
	s := b.shardOf(h)
	s.mu.Lock()
	s.entries[h] = entry{value: value, typeID: typeID}
	s.mu.Unlock()
	return h, nil
}

// Get retrieves a value by handle.
func (b *ShardedBackend) Get(h Handle) (any, uint32, bool) {
	if h == 0 {
		return nil, 0, false
	}
	s := b.shardOf(h)
	s.mu.RLock()
	e, ok := s.entries[h]
	s.mu.RUnlock()
	return e.value, e.typeID, ok
}

// Drop removes a value if it is stored under typeID.
func (b *ShardedBackend) Drop(h Handle, typeID uint32) (any, bool) {
	if h == 0 {
		return nil, false
	}
	s := b.shardOf(h)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[h]
	if !ok || e.typeID != typeID {
		return nil, false
	}
	delete(s.entries, h)
	return e.value, true
}

// Len returns the number of stored values.
func (b *ShardedBackend) Len() int {
	n := 0
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.RLock()
		n += len(s.entries)
		s.mu.RUnlock()
	}
	return n
}

// Each iterates over a snapshot of each shard in turn.
func (b *ShardedBackend) Each(fn func(Handle, uint32, any) bool) {
	type item struct {
		h Handle
		e entry
	}
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.RLock()
		snapshot := make([]item, 0, len(s.entries))
		for h, e := range s.entries {
			snapshot = append(snapshot, item{h, e})
		}
		s.mu.RUnlock()
		for _, it := range snapshot {
			if !fn(it.h, it.e.typeID, it.e.value) {
				return
			}
		}
	}
}

// Close releases all values, calling Drop on those that implement Dropper.
func (b *ShardedBackend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	for i := range b.shards {
		s := &b.shards[i]
		s.mu.Lock()
		entries := s.entries
		s.entries = make(map[Handle]entry)
		s.mu.Unlock()
		for _, e := range entries {
			if d, ok := e.value.(Dropper); ok {
				d.Drop()
			}
		}
	}
	return nil
}
