package handle

import (
	"context"
	"runtime"
	"testing"
	"time"

	ffiruntime "github.com/wippyai/ffi-runtime"
	"github.com/wippyai/ffi-runtime/call"
)

type widget struct {
	guard *Guard
	label string
}

func newTrackedWidget(r *Reclaimer, n *nativeObject, h ffiruntime.Handle) *widget {
	w := &widget{guard: NewGuard("Widget", h, n.entryPoints()), label: "w"}
	Track(r, w, w.guard)
	return w
}

// collect runs the GC until cond holds or the deadline passes.
func collect(t *testing.T, r *Reclaimer, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for reclamation")
		}
		runtime.GC()
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		_ = r.Flush(ctx)
		cancel()
	}
}

func TestReclaimerReleasesUnreachableOwner(t *testing.T) {
	r := NewReclaimer(nil)
	defer r.Close()

	n := &nativeObject{}
	func() {
		w := newTrackedWidget(r, n, 1)
		_ = w.label
	}()

	collect(t, r, func() bool { return n.frees.Load() == 1 })

	if s := r.Stats(); s.Reclaimed != 1 || s.Failed != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestReclaimerSkipsExplicitlyReleased(t *testing.T) {
	r := NewReclaimer(nil)
	defer r.Close()

	n := &nativeObject{}
	func() {
		w := newTrackedWidget(r, n, 1)
		w.guard.Release()
	}()

	for range 5 {
		runtime.GC()
	}
	if err := r.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := n.frees.Load(); got != 1 {
		t.Fatalf("frees = %d, want 1", got)
	}
	if s := r.Stats(); s.Reclaimed != 0 {
		t.Errorf("explicit release should cancel reclamation, stats = %+v", s)
	}
}

func TestReclaimerCountsFailures(t *testing.T) {
	r := NewReclaimer(&ReclaimerConfig{QueueHint: 4})
	defer r.Close()

	n := &nativeObject{failFree: true}
	func() {
		_ = newTrackedWidget(r, n, 1)
	}()

	collect(t, r, func() bool { return r.Stats().Failed == 1 })
	if n.frees.Load() != 1 {
		t.Errorf("frees = %d, want 1", n.frees.Load())
	}
}

func TestReclaimerRecoversPanics(t *testing.T) {
	r := NewReclaimer(nil)
	defer r.Close()

	g := NewGuard("Widget", 1, EntryPoints{
		Free: func(ffiruntime.Handle, *call.Status) { panic("native crashed") },
	})
	r.enqueue(g)
	if err := r.Flush(context.Background()); err != nil {
		t.Fatal(err)
	}
	if s := r.Stats(); s.Failed != 1 {
		t.Errorf("stats = %+v, want one failure", s)
	}
}

func TestReclaimerCloseDrains(t *testing.T) {
	r := NewReclaimer(nil)
	n := &nativeObject{failFree: true}
	g := NewGuard("Widget", 1, n.entryPoints())

	r.mu.Lock()
	r.queue = append(r.queue, g)
	r.pending.Add(1)
	r.mu.Unlock()

	if err := r.Close(); err == nil {
		t.Error("Close should report the failed destroy")
	}
	if n.frees.Load() != 1 {
		t.Errorf("frees = %d, want 1", n.frees.Load())
	}
	if err := r.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}

	g2 := NewGuard("Widget", 2, n.entryPoints())
	r.enqueue(g2)
	if !g2.Destroyed() {
		t.Error("enqueue after Close should release inline")
	}
}

func TestDefaultReclaimerSingleton(t *testing.T) {
	if DefaultReclaimer() != DefaultReclaimer() {
		t.Fatal("DefaultReclaimer must return one instance")
	}
}
