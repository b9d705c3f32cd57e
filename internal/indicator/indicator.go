// Package indicator provides technical indicator calculations over candle data.
//
// Smoothers (EMA, SMMA) and the RSI are incremental: they receive one value
// at a time and are folded over a series by Compute. The trend-band
// classifier (SuperTrend) is an explicit fold over {line, direction}.
// Everything here is pure: no state survives beyond the input series.
package indicator

import (
	"math"
	"time"

	"option-monitor/internal/model"
)

// Default indicator parameters.
const (
	DefaultRSIPeriod  = 14
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
	DefaultSTPeriod   = 10
	DefaultSTMult     = 3.0
)

// Params configures Compute. Zero values fall back to the defaults.
type Params struct {
	RSIPeriod  int     `json:"rsi_period" yaml:"rsi_period"`
	MACDFast   int     `json:"macd_fast" yaml:"macd_fast"`
	MACDSlow   int     `json:"macd_slow" yaml:"macd_slow"`
	MACDSignal int     `json:"macd_signal" yaml:"macd_signal"`
	STPeriod   int     `json:"st_period" yaml:"st_period"`
	STMult     float64 `json:"st_mult" yaml:"st_mult"`
}

// withDefaults fills unset fields.
func (p Params) withDefaults() Params {
	if p.RSIPeriod <= 0 {
		p.RSIPeriod = DefaultRSIPeriod
	}
	if p.MACDFast <= 0 {
		p.MACDFast = DefaultMACDFast
	}
	if p.MACDSlow <= 0 {
		p.MACDSlow = DefaultMACDSlow
	}
	if p.MACDSignal <= 0 {
		p.MACDSignal = DefaultMACDSignal
	}
	if p.STPeriod <= 0 {
		p.STPeriod = DefaultSTPeriod
	}
	if p.STMult <= 0 {
		p.STMult = DefaultSTMult
	}
	return p
}

// Point is one candle enriched with its indicator values.
// RSI is NaN on the first bar (no price difference yet).
type Point struct {
	TS       time.Time   `json:"ts"`
	Close    float64     `json:"close"`
	RSI      float64     `json:"rsi"`
	MACDHist float64     `json:"macd_hist"`
	STLine   float64     `json:"st_line"`
	STDir    model.Trend `json:"st_dir"`
}

// Compute enriches a time-ascending, non-empty candle series with RSI, MACD
// histogram and SuperTrend. Returns nil for an empty series.
func Compute(candles []model.Candle, p Params) []Point {
	if len(candles) == 0 {
		return nil
	}
	p = p.withDefaults()
	closes := model.Closes(candles)

	rsi := RSISeries(closes, p.RSIPeriod)
	hist := MACDHistogram(closes, p.MACDFast, p.MACDSlow, p.MACDSignal)
	bands := SuperTrend(candles, p.STPeriod, p.STMult)

	out := make([]Point, len(candles))
	for i, c := range candles {
		out[i] = Point{
			TS:       c.TS,
			Close:    c.Close,
			RSI:      rsi[i],
			MACDHist: hist[i],
			STLine:   bands[i].Line,
			STDir:    bands[i].Dir,
		}
	}
	return out
}

// defined reports whether v is a usable number.
func defined(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
