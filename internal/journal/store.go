package journal

import (
	"context"
	"time"

	"option-monitor/internal/model"
	"option-monitor/internal/store/redis"
	"option-monitor/internal/store/sqlite"
)

// SQLiteSink appends rows to the SQLite actions table.
type SQLiteSink struct {
	w *sqlite.Writer
}

// NewSQLiteSink wraps an open writer. The sink owns it from here on.
func NewSQLiteSink(w *sqlite.Writer) *SQLiteSink { return &SQLiteSink{w: w} }

func (s *SQLiteSink) Name() string { return "sqlite" }

func (s *SQLiteSink) Write(ctx context.Context, r model.LogRow) error {
	return s.w.Insert(ctx, r)
}

func (s *SQLiteSink) Close() error { return s.w.Close() }

// RedisSink mirrors rows to the Redis actions stream. Writes go through a
// circuit breaker and are buffered while it is open.
type RedisSink struct {
	w  *redis.Writer
	bw *redis.BufferedWriter
}

// NewRedisSink wraps w with a breaker that opens after 3 consecutive
// failures and probes again after 30s.
func NewRedisSink(w *redis.Writer) *RedisSink {
	cb := redis.NewCircuitBreaker(3, 30*time.Second)
	return &RedisSink{w: w, bw: redis.NewBufferedWriter(w, cb, 0)}
}

// Buffered exposes the breaker-wrapped writer for callbacks and health.
func (s *RedisSink) Buffered() *redis.BufferedWriter { return s.bw }

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Write(ctx context.Context, r model.LogRow) error {
	return s.bw.Append(ctx, r)
}

func (s *RedisSink) Close() error { return s.w.Close() }
