package indicator

// MACDHistogram returns (EMA(fast) - EMA(slow)) - EMA(signal) of that line,
// one value per close. All EMAs are seeded with their first input, so the
// first histogram value is always 0.
func MACDHistogram(closes []float64, fast, slow, signal int) []float64 {
	fastEMA := NewEMA(fast)
	slowEMA := NewEMA(slow)
	sigEMA := NewEMA(signal)

	out := make([]float64, len(closes))
	for i, c := range closes {
		fastEMA.Update(c)
		slowEMA.Update(c)
		line := fastEMA.Value() - slowEMA.Value()
		sigEMA.Update(line)
		out[i] = line - sigEMA.Value()
	}
	return out
}
