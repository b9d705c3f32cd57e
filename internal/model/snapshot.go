package model

import "time"

// Snapshot is the indicator reading of the latest closed bar of a series.
// It is rebuilt on every evaluation and never mutated.
type Snapshot struct {
	TS        time.Time `json:"ts"`
	Trend     Trend     `json:"trend"`
	Momentum  float64   `json:"momentum"`  // RSI, [0,100]
	Histogram float64   `json:"histogram"` // MACD histogram
	LastClose float64   `json:"last_close"`
}
