// Package synthetic generates deterministic option-like candles so the
// monitor can run without network access. Every 1m bar is a pure function
// of (symbol, minute), so repeated fetches over overlapping windows agree
// with each other. Coarser resolutions are resampled from the 1m bars.
package synthetic

import (
	"context"
	"hash/fnv"
	"math"
	"time"

	"option-monitor/internal/marketdata/resample"
	"option-monitor/internal/markethours"
	"option-monitor/internal/model"
)

const (
	// minPrice keeps every generated price strictly positive.
	minPrice = 0.5
)

// Source is a synthetic marketdata.Source.
type Source struct {
	// Volatility scales the per-minute noise. Default: 0.004.
	Volatility float64

	now func() time.Time
}

// New creates a synthetic Source using the wall clock.
func New() *Source {
	return &Source{Volatility: 0.004, now: time.Now}
}

// WithClock returns a copy of s reading time from now.
func (s *Source) WithClock(now func() time.Time) *Source {
	cp := *s
	cp.now = now
	return &cp
}

// Candles implements marketdata.Source. The last bar is the one forming at
// the current time.
func (s *Source) Candles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, model.ErrNoData
	}
	perBar := int64(res.Duration() / time.Minute)
	if perBar < 1 {
		perBar = 1
	}

	now := s.now()
	end := markethours.BarEnd(now, res).Unix() / 60 // exclusive, in minutes
	start := end - int64(limit)*perBar
	nowMin := now.Unix() / 60

	seed := symbolSeed(symbol)
	base := 50 + float64(seed%200)

	b := resample.New(res)
	prev := s.price(seed, base, start-1)
	for m := start; m < end && m <= nowMin; m++ {
		cl := s.price(seed, base, m)
		wick := math.Abs(noise(seed, m, 2)) * 0.01
		b.Add(model.Candle{
			TS:     time.Unix(m*60, 0).UTC(),
			Open:   prev,
			High:   math.Max(prev, cl) * (1 + wick),
			Low:    math.Max(math.Min(prev, cl)*(1-wick), minPrice),
			Close:  cl,
			Volume: 1 + math.Abs(noise(seed, m, 3))*10,
		})
		prev = cl
	}
	out := b.Series()
	if len(out) == 0 {
		return nil, model.ErrNoData
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// price is the close of minute m: two slow waves with different periods
// plus bounded per-minute noise.
func (s *Source) price(seed uint64, base float64, m int64) float64 {
	phase := float64(seed%1000) / 1000 * 2 * math.Pi
	x := float64(m)
	wave := 0.25*math.Sin(2*math.Pi*x/240+phase) + 0.1*math.Sin(2*math.Pi*x/55+2*phase)
	p := base * (1 + wave + s.Volatility*noise(seed, m, 1)*10)
	return math.Max(p, minPrice)
}

// noise returns a deterministic value in [-1, 1) for (seed, m, stream).
func noise(seed uint64, m int64, stream byte) float64 {
	h := fnv.New64a()
	var buf [17]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(seed >> (8 * i))
		buf[8+i] = byte(uint64(m) >> (8 * i))
	}
	buf[16] = stream
	_, _ = h.Write(buf[:])
	return float64(h.Sum64()>>11)/float64(1<<53)*2 - 1
}

func symbolSeed(symbol string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(symbol))
	return h.Sum64()
}
