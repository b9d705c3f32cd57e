package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"
)

var (
	// ErrNoData is returned when a source has no candles for the request.
	ErrNoData = errors.New("no data available")

	// ErrInvalidSeries is returned when a candle series fails validation.
	ErrInvalidSeries = errors.New("invalid candle series")
)

// Candle is one OHLCV bar of an instrument's own chart.
// TS is the bar start time (UTC, resolution-aligned).
type Candle struct {
	TS     time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// JSON returns the JSON-encoded candle (ignoring errors for logging usage).
func (c *Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Validate checks that every field is finite and non-negative and that the
// close is strictly positive.
func (c *Candle) Validate() error {
	for _, v := range [...]float64{c.Open, c.High, c.Low, c.Close, c.Volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: bad value %v at %s", ErrInvalidSeries, v, c.TS.Format(time.RFC3339))
		}
	}
	if c.Close <= 0 {
		return fmt.Errorf("%w: non-positive close at %s", ErrInvalidSeries, c.TS.Format(time.RFC3339))
	}
	return nil
}

// NormalizeSeries sorts candles ascending by time and drops duplicate
// timestamps (the last occurrence wins). The input slice is not modified.
// Returns ErrNoData for an empty series and ErrInvalidSeries if any candle
// fails Validate.
func NormalizeSeries(candles []Candle) ([]Candle, error) {
	if len(candles) == 0 {
		return nil, ErrNoData
	}
	out := make([]Candle, len(candles))
	copy(out, candles)
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.Before(out[j].TS) })

	n := 0
	for i := range out {
		if err := out[i].Validate(); err != nil {
			return nil, err
		}
		if n > 0 && out[n-1].TS.Equal(out[i].TS) {
			out[n-1] = out[i]
			continue
		}
		out[n] = out[i]
		n++
	}
	return out[:n], nil
}

// Closes extracts the close prices of a series.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
