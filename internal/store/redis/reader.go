package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"option-monitor/internal/model"

	goredis "github.com/go-redis/redis/v8"
)

// ReaderConfig configures the Redis reader.
type ReaderConfig struct {
	Addr     string
	Password string
	DB       int
	Stream   string
}

// Reader reads trade log rows back from the actions stream.
type Reader struct {
	client *goredis.Client
	stream string
}

// NewReader creates a new Redis Reader and pings the server.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	stream := cfg.Stream
	if stream == "" {
		stream = DefaultStream
	}

	log.Printf("[redis-reader] connected to %s (stream=%s)", cfg.Addr, stream)
	return &Reader{client: client, stream: stream}, nil
}

// Recent returns up to limit rows, newest first.
func (r *Reader) Recent(ctx context.Context, limit int) ([]model.LogRow, error) {
	msgs, err := r.client.XRevRangeN(ctx, r.stream, "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis XREVRANGE %s: %w", r.stream, err)
	}
	return decodeMessages(msgs), nil
}

// decodeMessages skips entries without a decodable data field.
func decodeMessages(msgs []goredis.XMessage) []model.LogRow {
	out := make([]model.LogRow, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["data"].(string)
		if !ok {
			continue
		}
		var row model.LogRow
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			log.Printf("[redis-reader] skip %s: %v", m.ID, err)
			continue
		}
		out = append(out, row)
	}
	return out
}

// Close closes the Redis client.
func (r *Reader) Close() error {
	return r.client.Close()
}
