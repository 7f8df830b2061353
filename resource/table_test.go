package resource

import (
	stderrors "errors"
	"sync"
	"testing"

	"github.com/wippyai/ffi-runtime/errors"
)

type testObserver struct {
	mu     sync.Mutex
	events []Event
}

func (o *testObserver) OnResourceEvent(e Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, e)
}

type dropCounter struct {
	count int
}

func (d *dropCounter) Drop() { d.count++ }

type failingCloser struct{}

func (failingCloser) Close() error { return stderrors.New("close failed") }

func TestTable_Basic(t *testing.T) {
	table := NewTableWithBackend[string]("Greeter", NewShardedBackend())

	h, err := table.Insert("test")
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if h == 0 {
		t.Fatal("Expected non-zero handle")
	}

	val, err := table.Get(h)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	val, err = table.Remove(h)
	if err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if val != "test" {
		t.Fatalf("Expected 'test', got %v", val)
	}

	if _, err := table.Get(h); !errors.IsKind(err, errors.KindUnknownHandle) {
		t.Fatalf("Get after Remove: expected unknown_handle, got %v", err)
	}
	if _, err := table.Remove(h); !errors.IsKind(err, errors.KindUnknownHandle) {
		t.Fatalf("second Remove: expected unknown_handle, got %v", err)
	}
	if table.Len() != 0 {
		t.Fatal("Expected Len() == 0 after Remove")
	}
}

func TestTable_HandlesNeverReused(t *testing.T) {
	table := NewTableWithBackend[int]("Counter", NewShardedBackend())

	seen := make(map[Handle]bool)
	var last Handle
	for i := range 100 {
		h, err := table.Insert(i)
		if err != nil {
			t.Fatal(err)
		}
		if seen[h] {
			t.Fatalf("handle %d reused", h)
		}
		if h <= last {
			t.Fatalf("handle %d not greater than previous %d", h, last)
		}
		seen[h] = true
		last = h
		if _, err := table.Remove(h); err != nil {
			t.Fatal(err)
		}
	}
}

func TestTable_FirstHandleIsOne(t *testing.T) {
	table := NewTableWithBackend[int]("Counter", NewShardedBackend())
	h, err := table.Insert(1)
	if err != nil {
		t.Fatal(err)
	}
	if h != 1 {
		t.Errorf("first handle = %d, want 1", h)
	}
	if _, err := table.Get(0); !errors.IsKind(err, errors.KindUnknownHandle) {
		t.Errorf("handle 0: %v", err)
	}
}

func TestTable_TypeIsolation(t *testing.T) {
	b := NewShardedBackend()
	strs := NewTableWithBackend[string]("Strings", b)
	ints := NewTableWithBackend[int]("Ints", b)

	h, _ := strs.Insert("x")
	if _, err := ints.Get(h); !errors.IsKind(err, errors.KindUnknownHandle) {
		t.Fatalf("handle leaked across tables: %v", err)
	}
	if _, err := ints.Remove(h); err == nil {
		t.Fatal("Remove through the wrong table succeeded")
	}
	if _, err := strs.Get(h); err != nil {
		t.Fatalf("value lost after foreign Remove: %v", err)
	}
}

func TestTable_Observer(t *testing.T) {
	table := NewTableWithBackend[string]("Greeter", NewShardedBackend())
	obs := &testObserver{}
	table.Subscribe(obs)

	h, _ := table.Insert("test")
	if len(obs.events) != 1 {
		t.Fatalf("Expected 1 event, got %d", len(obs.events))
	}
	if obs.events[0].Type != EventInserted || obs.events[0].Handle != h {
		t.Fatalf("unexpected event %+v", obs.events[0])
	}
	if obs.events[0].Table != "Greeter" {
		t.Errorf("event table = %q", obs.events[0].Table)
	}

	_, _ = table.Remove(h)
	if len(obs.events) != 2 || obs.events[1].Type != EventRemoved {
		t.Fatalf("expected a removed event, got %+v", obs.events)
	}

	table.Unsubscribe(obs)
	h, _ = table.Insert("again")
	_, _ = table.Remove(h)
	if len(obs.events) != 2 {
		t.Errorf("events after Unsubscribe: %d", len(obs.events))
	}
}

func TestTable_Dropper(t *testing.T) {
	table := NewTableWithBackend[*dropCounter]("Dropper", NewShardedBackend())
	d := &dropCounter{}

	h, _ := table.Insert(d)
	_, _ = table.Remove(h)
	if d.count != 1 {
		t.Errorf("Drop called %d times, want 1", d.count)
	}
}

func TestTable_ClearAndClose(t *testing.T) {
	b := NewShardedBackend()
	table := NewTableWithBackend[any]("Mixed", b)
	other := NewTableWithBackend[int]("Other", b)

	d := &dropCounter{}
	_, _ = table.Insert(d)
	_, _ = table.Insert(failingCloser{})
	oh, _ := other.Insert(5)

	if err := table.Close(); err == nil {
		t.Error("Close should report the failing closer")
	}
	if d.count != 1 {
		t.Errorf("Drop called %d times, want 1", d.count)
	}
	if table.Len() != 0 {
		t.Errorf("Len after Close = %d", table.Len())
	}
	if _, err := table.Insert(1); err != ErrClosed {
		t.Errorf("Insert after Close: %v", err)
	}
	if v, err := other.Get(oh); err != nil || v != 5 {
		t.Errorf("closing one table disturbed another: %v, %v", v, err)
	}
}

func TestTable_Concurrent(t *testing.T) {
	table := NewTableWithBackend[int]("Counter", NewShardedBackend())

	var wg sync.WaitGroup
	handles := make(chan Handle, 800)
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				h, err := table.Insert(w*1000 + i)
				if err != nil {
					t.Errorf("Insert: %v", err)
					return
				}
				if v, err := table.Get(h); err != nil || v != w*1000+i {
					t.Errorf("Get(%d) = %v, %v", h, v, err)
				}
				handles <- h
			}
		}()
	}
	wg.Wait()
	close(handles)

	seen := make(map[Handle]bool)
	for h := range handles {
		if seen[h] {
			t.Fatalf("duplicate handle %d", h)
		}
		seen[h] = true
	}
	if table.Len() != 800 {
		t.Errorf("Len = %d, want 800", table.Len())
	}
}

func TestSharedBackend(t *testing.T) {
	if SharedBackend() != SharedBackend() {
		t.Fatal("SharedBackend must return one instance")
	}
	a := NewTable[string]("A")
	b := NewTable[string]("B")
	ha, _ := a.Insert("a")
	hb, _ := b.Insert("b")
	if ha == hb {
		t.Fatal("tables on the shared backend issued the same handle")
	}
	_, _ = a.Remove(ha)
	_, _ = b.Remove(hb)
}

func TestBackendClose(t *testing.T) {
	b := NewShardedBackend()
	d := &dropCounter{}
	if _, err := b.Create(1, d); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
	if d.count != 1 || b.Len() != 0 {
		t.Errorf("count=%d len=%d", d.count, b.Len())
	}
	if _, err := b.Create(1, 1); err != ErrClosed {
		t.Errorf("Create after Close: %v", err)
	}
}
