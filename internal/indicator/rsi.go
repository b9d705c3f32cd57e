package indicator

import "math"

// lossEpsilon replaces a zero smoothed loss so the ratio stays finite.
const lossEpsilon = 1e-9

// RSI calculates the Relative Strength Index with 1/period smoothing of
// gains and losses, seeded from the first price difference.
// Update is O(1) per value, without history scans.
type RSI struct {
	period    int
	count     int
	prevClose float64
	gain      *EMA
	loss      *EMA
}

// NewRSI creates a new RSI indicator with the given period (typically 14).
func NewRSI(period int) *RSI {
	return &RSI{
		period: period,
		gain:   NewSMMA(period),
		loss:   NewSMMA(period),
	}
}

func (r *RSI) Name() string { return "RSI" }

// Update feeds the next close price.
func (r *RSI) Update(price float64) {
	r.count++
	if r.count == 1 {
		// First close: record price, no delta yet
		r.prevClose = price
		return
	}

	delta := price - r.prevClose
	r.prevClose = price
	r.gain.Update(math.Max(delta, 0))
	r.loss.Update(math.Max(-delta, 0))
}

// Ready returns true once at least one price difference has been seen.
func (r *RSI) Ready() bool { return r.count > 1 }

// Value returns the current RSI in [0,100], or NaN before Ready.
func (r *RSI) Value() float64 {
	if !r.Ready() {
		return math.NaN()
	}
	return rsiFrom(r.gain.Value(), r.loss.Value())
}

// Peek computes what RSI would be after price without mutating state.
func (r *RSI) Peek(price float64) float64 {
	if r.count == 0 {
		return math.NaN()
	}
	delta := price - r.prevClose
	return rsiFrom(r.gain.Peek(math.Max(delta, 0)), r.loss.Peek(math.Max(-delta, 0)))
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		avgLoss = lossEpsilon
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

// RSISeries folds an RSI over closes. The first element is NaN.
func RSISeries(closes []float64, period int) []float64 {
	r := NewRSI(period)
	out := make([]float64, len(closes))
	for i, c := range closes {
		r.Update(c)
		out[i] = r.Value()
	}
	return out
}
