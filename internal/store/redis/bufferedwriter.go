package redis

import (
	"context"
	"errors"
	"log"
	"sync"

	"option-monitor/internal/model"
)

// appender is the write side of Writer.
type appender interface {
	Append(ctx context.Context, r model.LogRow) error
}

// BufferedWriter wraps a Writer with a circuit breaker.
// During circuit-open state, rows are buffered locally and flushed
// on the first successful write after the circuit closes again.
type BufferedWriter struct {
	writer appender
	cb     *CircuitBreaker

	mu     sync.Mutex
	buffer []model.LogRow
	maxBuf int // max buffered rows before dropping oldest (default: 1000)

	// Callbacks
	OnBuffer func()          // called when a row is buffered (for metrics)
	OnFlush  func(count int) // called after flushing buffered rows
}

// NewBufferedWriter creates a BufferedWriter wrapping the given Writer.
func NewBufferedWriter(w *Writer, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	return newBufferedWriter(w, cb, maxBufferSize)
}

func newBufferedWriter(w appender, cb *CircuitBreaker, maxBufferSize int) *BufferedWriter {
	if maxBufferSize <= 0 {
		maxBufferSize = 1000
	}
	return &BufferedWriter{
		writer: w,
		cb:     cb,
		buffer: make([]model.LogRow, 0, 64),
		maxBuf: maxBufferSize,
	}
}

// Append writes a row through the circuit breaker. If the circuit is open
// the row is buffered locally and nil is returned. Other write errors are
// returned to the caller.
func (bw *BufferedWriter) Append(ctx context.Context, r model.LogRow) error {
	err := bw.cb.Execute(func() error {
		return bw.writer.Append(ctx, r)
	})
	switch {
	case errors.Is(err, ErrCircuitOpen):
		bw.bufferRow(r)
		return nil // buffered, not lost
	case err != nil:
		return err
	}
	bw.flush(ctx)
	return nil
}

func (bw *BufferedWriter) bufferRow(r model.LogRow) {
	bw.mu.Lock()
	defer bw.mu.Unlock()

	if len(bw.buffer) >= bw.maxBuf {
		// Buffer full: drop oldest
		bw.buffer = bw.buffer[1:]
	}
	bw.buffer = append(bw.buffer, r)

	if bw.OnBuffer != nil {
		bw.OnBuffer()
	}
}

// flush replays buffered rows in order. It stops at the first failure and
// keeps the unsent tail for the next attempt.
func (bw *BufferedWriter) flush(ctx context.Context) {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return
	}
	// Take ownership of the buffer
	toFlush := bw.buffer
	bw.buffer = make([]model.LogRow, 0, 64)
	bw.mu.Unlock()

	flushed := 0
	for i, r := range toFlush {
		if err := bw.writer.Append(ctx, r); err != nil {
			log.Printf("[buffered-writer] flush stopped after %d rows: %v", flushed, err)
			bw.mu.Lock()
			bw.buffer = append(toFlush[i:], bw.buffer...)
			bw.mu.Unlock()
			break
		}
		flushed++
	}

	if flushed > 0 {
		log.Printf("[buffered-writer] flushed %d buffered rows", flushed)
	}
	if bw.OnFlush != nil {
		bw.OnFlush(flushed)
	}
}

// PendingCount returns the number of buffered rows waiting to be flushed.
func (bw *BufferedWriter) PendingCount() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.buffer)
}

// State returns the circuit breaker state.
func (bw *BufferedWriter) State() State {
	return bw.cb.CurrentState()
}

// Breaker returns the circuit breaker guarding the writer.
func (bw *BufferedWriter) Breaker() *CircuitBreaker {
	return bw.cb
}
