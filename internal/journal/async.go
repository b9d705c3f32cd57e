package journal

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"option-monitor/internal/model"
	"option-monitor/internal/ringbuf"
)

// DefaultQueueSize is the ring capacity used when none is given.
const DefaultQueueSize = 1024

// Async decouples the caller from sink latency. Write enqueues the row on a
// ring buffer and returns immediately; Run drains it into the wrapped sink.
// A full ring drops the row and counts it.
type Async struct {
	sink Sink
	ring *ringbuf.Ring[model.LogRow]

	pushMu  sync.Mutex // Write may be called from more than one goroutine
	wake    chan struct{}
	dropped atomic.Uint64
	written atomic.Uint64

	// OnDrop is called for every dropped row (optional).
	OnDrop func()
}

// NewAsync wraps sink with a queue of at least size rows.
func NewAsync(sink Sink, size int) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Async{
		sink: sink,
		ring: ringbuf.New[model.LogRow](size),
		wake: make(chan struct{}, 1),
	}
}

func (a *Async) Name() string { return "async(" + a.sink.Name() + ")" }

// Write enqueues r. It never blocks and never fails.
func (a *Async) Write(_ context.Context, r model.LogRow) error {
	a.pushMu.Lock()
	ok := a.ring.Push(r)
	a.pushMu.Unlock()

	if !ok {
		a.dropped.Add(1)
		log.Printf("[journal] queue full, dropped %s %s", r.Kind, r.TradeID)
		if a.OnDrop != nil {
			a.OnDrop()
		}
		return nil
	}
	select {
	case a.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run drains the queue until ctx is cancelled, then flushes what is left.
func (a *Async) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			n := a.Flush(context.WithoutCancel(ctx))
			log.Printf("[journal] drained %d rows on shutdown", n)
			return nil
		case <-a.wake:
			a.Flush(ctx)
		}
	}
}

// Flush writes every queued row to the sink and returns how many were
// written. Only one goroutine may drain at a time.
func (a *Async) Flush(ctx context.Context) int {
	n := 0
	for {
		r, ok := a.ring.Pop()
		if !ok {
			return n
		}
		if err := a.sink.Write(ctx, r); err != nil {
			log.Printf("[journal] %s write failed for %s: %v", a.sink.Name(), r.TradeID, err)
		}
		a.written.Add(1)
		n++
	}
}

// Pending returns the number of queued rows.
func (a *Async) Pending() int { return a.ring.Len() }

// Dropped returns the number of rows lost to a full queue.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Written returns the number of rows handed to the sink.
func (a *Async) Written() uint64 { return a.written.Load() }
