package handle

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/wippyai/ffi-runtime/errors"
)

// ReclaimerConfig configures a Reclaimer. The zero value is usable.
type ReclaimerConfig struct {
	// Logger receives reclaim failures. Defaults to the package logger.
	Logger *zap.Logger
	// QueueHint pre-sizes the pending queue.
	QueueHint int
}

// ReclaimStats is a snapshot of reclaimer activity.
type ReclaimStats struct {
	Reclaimed uint64
	Failed    uint64
	Pending   int64
}

// Reclaimer releases guards whose owners were garbage collected without an
// explicit Release. It is a backstop: no ordering or timeliness is promised.
type Reclaimer struct {
	logger *zap.Logger

	mu      sync.Mutex
	queue   []*Guard
	closed  bool
	wake    chan struct{}
	done    chan struct{}
	stopped chan struct{}

	pending   atomic.Int64
	reclaimed atomic.Uint64
	failed    atomic.Uint64
}

var defaultReclaimer = sync.OnceValue(func() *Reclaimer {
	return NewReclaimer(nil)
})

// DefaultReclaimer returns the process-wide reclaimer, starting it on first use.
func DefaultReclaimer() *Reclaimer {
	return defaultReclaimer()
}

// NewReclaimer starts a reclaimer with its own worker goroutine.
func NewReclaimer(cfg *ReclaimerConfig) *Reclaimer {
	if cfg == nil {
		cfg = &ReclaimerConfig{}
	}
	r := &Reclaimer{
		logger:  cfg.Logger,
		queue:   make([]*Guard, 0, cfg.QueueHint),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Reclaimer) log() *zap.Logger {
	if r.logger != nil {
		return r.logger
	}
	return Logger()
}

// Track arranges for g to be released once owner becomes unreachable. The
// registered cleanup captures only g, so owner must hold g by pointer and g
// must not point back to owner. Release on g cancels the registration.
// A nil r uses the default reclaimer.
func Track[T any](r *Reclaimer, owner *T, g *Guard) {
	if r == nil {
		r = DefaultReclaimer()
	}
	c := runtime.AddCleanup(owner, r.enqueue, g)
	g.cleanup.Store(&c)
}

func (r *Reclaimer) enqueue(g *Guard) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.log().Debug("reclaimer closed, releasing inline", zap.String("type", g.name))
		r.reclaim(g)
		return
	}
	r.pending.Add(1)
	r.queue = append(r.queue, g)
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reclaimer) run() {
	defer close(r.stopped)
	for {
		select {
		case <-r.wake:
			r.drain()
		case <-r.done:
			return
		}
	}
}

func (r *Reclaimer) drain() error {
	var errs error
	for {
		r.mu.Lock()
		batch := r.queue
		r.queue = nil
		r.mu.Unlock()
		if len(batch) == 0 {
			return errs
		}
		for _, g := range batch {
			errs = multierr.Append(errs, r.reclaim(g))
			r.pending.Add(-1)
		}
	}
}

func (r *Reclaimer) reclaim(g *Guard) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = errors.Panic(fmt.Sprint(p))
		}
		if err != nil {
			r.failed.Add(1)
			r.log().Warn("reclaim failed",
				zap.String("type", g.name),
				zap.Uint64("handle", uint64(g.handle)),
				zap.Error(err))
			err = errors.Wrap(errors.PhaseReclaim, errors.KindNativeError, err, g.name)
			return
		}
		r.reclaimed.Add(1)
	}()
	return g.release()
}

// Stats returns a snapshot of reclaimer counters.
func (r *Reclaimer) Stats() ReclaimStats {
	return ReclaimStats{
		Reclaimed: r.reclaimed.Load(),
		Failed:    r.failed.Load(),
		Pending:   r.pending.Load(),
	}
}

// Flush waits until every queued guard has been processed.
func (r *Reclaimer) Flush(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for r.pending.Load() > 0 {
		select {
		case <-ctx.Done():
			return errors.Cancelled(errors.PhaseReclaim, ctx.Err())
		case <-ticker.C:
		}
	}
	return nil
}

// Close stops the worker and processes whatever is still queued on the
// calling goroutine. Guards collected after Close are released inline by the
// runtime's cleanup goroutine. The returned error aggregates destroy
// failures from the final drain.
func (r *Reclaimer) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.done)
	<-r.stopped
	return r.drain()
}
