package indicator

// EMA is an exponentially weighted mean seeded with the first value
// (no SMA warm-up): v0 = x0, vt = alpha*xt + (1-alpha)*v(t-1).
// O(1) per update, no window storage.
type EMA struct {
	alpha   float64
	current float64
	count   int
}

// NewEMA creates an EMA with span-style smoothing, alpha = 2/(span+1).
func NewEMA(span int) *EMA {
	return &EMA{alpha: 2.0 / float64(span+1)}
}

// Update feeds the next value.
func (e *EMA) Update(x float64) {
	e.count++
	if e.count == 1 {
		e.current = x
		return
	}
	e.current = x*e.alpha + e.current*(1-e.alpha)
}

func (e *EMA) Value() float64 { return e.current }
func (e *EMA) Ready() bool    { return e.count > 0 }

// Peek computes what Value() would be after x without mutating state.
func (e *EMA) Peek(x float64) float64 {
	if e.count == 0 {
		return x
	}
	return x*e.alpha + e.current*(1-e.alpha)
}

// Reset clears the EMA state for reuse.
func (e *EMA) Reset() {
	e.current = 0
	e.count = 0
}

// EMASeries folds an EMA over values and returns one output per input.
func EMASeries(values []float64, span int) []float64 {
	e := NewEMA(span)
	out := make([]float64, len(values))
	for i, v := range values {
		e.Update(v)
		out[i] = e.Value()
	}
	return out
}
