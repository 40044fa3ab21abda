package events

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// emitTimeout bounds a single async emit.
const emitTimeout = 5 * time.Second

// Emitter publishes account events.
type Emitter interface {
	Emit(ctx context.Context, e *Event) error
}

// Noop discards events.
type Noop struct{}

func (Noop) Emit(context.Context, *Event) error { return nil }

// Fanout emits to every emitter and joins their errors.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, e *Event) error {
	var errs []error
	for _, em := range f {
		if em == nil {
			continue
		}
		if err := em.Emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Async runs each Emit of the wrapped emitter in its own goroutine with emitTimeout, so request
// handlers are never blocked by a slow sink. Errors are logged.
type Async struct {
	inner Emitter
	log   *zap.Logger
	wg    sync.WaitGroup
}

// NewAsync wraps inner.
func NewAsync(inner Emitter, log *zap.Logger) *Async {
	return &Async{inner: inner, log: log}
}

// Emit schedules e and returns immediately. The request context is not used so that request
// cancellation does not abort an in-flight emit.
func (a *Async) Emit(_ context.Context, e *Event) error {
	if a.inner == nil || e == nil {
		return nil
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := a.inner.Emit(ctx, e); err != nil {
			a.log.Warn("events: async emit failed", zap.String("type", string(e.Type)), zap.Error(err))
		}
	}()
	return nil
}

// Drain waits for in-flight emits or until ctx is done.
func (a *Async) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recorder keeps emitted events in memory. Used by tests.
type Recorder struct {
	mu     sync.Mutex
	events []*Event
}

func (r *Recorder) Emit(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Types returns the types of recorded events in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Type, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

// Has reports whether an event of type t was recorded.
func (r *Recorder) Has(t Type) bool {
	for _, got := range r.Types() {
		if got == t {
			return true
		}
	}
	return false
}
