// Package resample aggregates base candles into a coarser resolution.
// A Builder keeps one forming bucket and updates it in O(1) per input
// candle. When a candle arrives in a new bucket the forming candle is
// finalized and a new one starts.
package resample

import (
	"log"
	"time"

	"option-monitor/internal/model"
)

// Builder resamples one time-ascending candle stream into resolution res.
// Not goroutine-safe: designed for a single consumer.
type Builder struct {
	res     model.Resolution
	bucket  int64 // bucket start = ts - ts%res (Unix seconds)
	candle  model.Candle
	started bool
	closed  []model.Candle

	// OnStale is called when an input candle falls in a bucket older than
	// the forming one and is dropped (optional).
	OnStale func(c model.Candle)
}

// New creates a Builder for resolution res.
func New(res model.Resolution) *Builder {
	return &Builder{res: res}
}

// Add merges one base candle.
func (b *Builder) Add(c model.Candle) {
	tf := b.res.Seconds()
	if tf <= 0 {
		tf = 1
	}
	ts := c.TS.Unix()
	bucket := ts - (ts % tf)

	if b.started && bucket < b.bucket {
		if b.OnStale != nil {
			b.OnStale(c)
		}
		log.Printf("[resample] dropping stale candle ts=%v (forming bucket %v)", c.TS, time.Unix(b.bucket, 0).UTC())
		return
	}

	if b.started && bucket > b.bucket {
		b.closed = append(b.closed, b.candle)
		b.started = false
	}

	if !b.started {
		b.bucket = bucket
		b.started = true
		b.candle = model.Candle{
			TS:     time.Unix(bucket, 0).UTC(),
			Open:   c.Open,
			High:   c.High,
			Low:    c.Low,
			Close:  c.Close,
			Volume: c.Volume,
		}
		return
	}

	// Same bucket: merge OHLCV
	fc := &b.candle
	if c.High > fc.High {
		fc.High = c.High
	}
	if c.Low < fc.Low {
		fc.Low = c.Low
	}
	fc.Close = c.Close
	fc.Volume += c.Volume
}

// Forming returns the in-progress candle, if any.
func (b *Builder) Forming() (model.Candle, bool) {
	return b.candle, b.started
}

// Closed returns the finalized candles so far.
func (b *Builder) Closed() []model.Candle {
	out := make([]model.Candle, len(b.closed))
	copy(out, b.closed)
	return out
}

// Series returns every finalized candle followed by the forming one.
func (b *Builder) Series() []model.Candle {
	out := b.Closed()
	if b.started {
		out = append(out, b.candle)
	}
	return out
}

// Resample aggregates a time-ascending series into res. The last bucket
// is included even if it is still forming.
func Resample(candles []model.Candle, res model.Resolution) []model.Candle {
	b := New(res)
	for _, c := range candles {
		b.Add(c)
	}
	return b.Series()
}
