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

const (
	// DefaultStream is the stream key used when none is configured.
	DefaultStream = "monitor:actions"

	// Stream trimming: a few days of actions at a handful of instruments.
	defaultMaxLen = 10000
)

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Stream   string // stream key, e.g. "monitor:actions"
	MaxLen   int64  // approximate stream cap
}

// Writer mirrors trade log rows to a capped Redis stream and publishes each
// row on the matching pubsub channel.
type Writer struct {
	client *goredis.Client
	stream string
	maxLen int64
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// Stream returns the stream key.
func (w *Writer) Stream() string { return w.stream }

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
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

	log.Printf("[redis] connected to %s", cfg.Addr)
	return newWriter(client, cfg), nil
}

func newWriter(client *goredis.Client, cfg WriterConfig) *Writer {
	w := &Writer{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}
	if w.stream == "" {
		w.stream = DefaultStream
	}
	if w.maxLen <= 0 {
		w.maxLen = defaultMaxLen
	}
	return w
}

// PubSubChannel returns the channel rows are published on.
func (w *Writer) PubSubChannel() string { return "pub:" + w.stream }

// Append writes one row with a single pipeline: XADD to the stream with
// approximate trimming, then PUBLISH for real-time subscribers.
func (w *Writer) Append(ctx context.Context, r model.LogRow) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("marshal row: %w", err)
	}

	pipe := w.client.Pipeline()
	pipe.XAdd(ctx, &goredis.XAddArgs{
		Stream: w.stream,
		MaxLen: w.maxLen,
		Approx: true,
		Values: streamValues(r, data),
	})
	pipe.Publish(ctx, w.PubSubChannel(), data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append %s: %w", r.TradeID, err)
	}
	return nil
}

func streamValues(r model.LogRow, data []byte) map[string]interface{} {
	return map[string]interface{}{
		"trade_id": r.TradeID,
		"kind":     r.Kind,
		"data":     string(data),
	}
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
