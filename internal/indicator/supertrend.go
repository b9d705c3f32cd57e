package indicator

import (
	"math"

	talib "github.com/markcheno/go-talib"

	"option-monitor/internal/model"
)

// Band is the SuperTrend output for one bar.
type Band struct {
	Line float64
	Dir  model.Trend
}

// bandState is the fold state of the trend-band classifier.
type bandState struct {
	line float64
	dir  model.Trend
}

// seedBand starts in an uptrend at the upper band. The seed is a convention
// and only affects the first bar's signal.
func seedBand(upper float64) bandState {
	return bandState{line: upper, dir: model.TrendUp}
}

// step advances the classifier by one bar. In an uptrend the line trails
// down towards the upper band unless the close drops below it (flip down,
// snap to the lower band); in a downtrend it trails up towards the lower
// band unless the close rises above it (flip up, snap to the upper band).
func (s bandState) step(close, upper, lower float64) bandState {
	if s.dir == model.TrendUp {
		if close < s.line {
			return bandState{line: lower, dir: model.TrendDown}
		}
		return bandState{line: math.Min(upper, s.line), dir: model.TrendUp}
	}
	if close > s.line {
		return bandState{line: upper, dir: model.TrendUp}
	}
	return bandState{line: math.Max(lower, s.line), dir: model.TrendDown}
}

// TrueRange returns the true range of every bar. The first bar has no
// previous close, so its range is high - low.
func TrueRange(candles []model.Candle) []float64 {
	n := len(candles)
	if n == 0 {
		return nil
	}
	highs := make([]float64, n)
	lows := make([]float64, n)
	closes := make([]float64, n)
	for i, c := range candles {
		highs[i], lows[i], closes[i] = c.High, c.Low, c.Close
	}
	tr := talib.TRange(highs, lows, closes)
	tr[0] = highs[0] - lows[0]
	return tr
}

// SuperTrend classifies every bar as up or down trend using ATR bands
// around the bar midpoint. ATR uses 1/period smoothing of the true range.
func SuperTrend(candles []model.Candle, period int, mult float64) []Band {
	if len(candles) == 0 {
		return nil
	}
	atr := SMMASeries(TrueRange(candles), period)

	out := make([]Band, len(candles))
	var st bandState
	for i, c := range candles {
		mid := (c.High + c.Low) / 2
		upper := mid + mult*atr[i]
		lower := mid - mult*atr[i]
		if i == 0 {
			st = seedBand(upper)
		} else {
			st = st.step(c.Close, upper, lower)
		}
		out[i] = Band{Line: st.line, Dir: st.dir}
	}
	return out
}
