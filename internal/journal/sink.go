package journal

import (
	"context"
	"errors"
	"io"
	"log"

	"option-monitor/internal/model"
)

// Sink appends log rows somewhere durable.
type Sink interface {
	Name() string
	Write(ctx context.Context, r model.LogRow) error
}

// Multi writes every row to each sink in order. Failures are logged and
// reported through OnError; Write itself never fails.
type Multi struct {
	Sinks []Sink

	// OnError is called once per failed sink write (optional).
	OnError func(sink string, err error)
}

// NewMulti builds a Multi over sinks, skipping nil entries.
func NewMulti(sinks ...Sink) *Multi {
	m := &Multi{}
	for _, s := range sinks {
		if s != nil {
			m.Sinks = append(m.Sinks, s)
		}
	}
	return m
}

func (m *Multi) Name() string { return "multi" }

func (m *Multi) Write(ctx context.Context, r model.LogRow) error {
	for _, s := range m.Sinks {
		if err := s.Write(ctx, r); err != nil {
			log.Printf("[journal] %s write failed for %s: %v", s.Name(), r.TradeID, err)
			if m.OnError != nil {
				m.OnError(s.Name(), err)
			}
		}
	}
	return nil
}

// Close closes every sink that holds resources.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
