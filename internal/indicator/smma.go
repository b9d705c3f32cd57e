package indicator

// NewSMMA creates a Wilder-style smoothed average, alpha = 1/period,
// seeded with the first value. Used for RSI gains/losses and ATR.
func NewSMMA(period int) *EMA {
	if period < 1 {
		period = 1
	}
	return &EMA{alpha: 1.0 / float64(period)}
}

// SMMASeries folds an SMMA over values and returns one output per input.
func SMMASeries(values []float64, period int) []float64 {
	s := NewSMMA(period)
	out := make([]float64, len(values))
	for i, v := range values {
		s.Update(v)
		out[i] = s.Value()
	}
	return out
}
