package indicator

import (
	"time"

	"option-monitor/internal/model"
)

// Neutral values substituted when an indicator is undefined (warm-up).
const (
	NeutralMomentum  = 50.0
	NeutralHistogram = 0.0
)

// Latest reduces an enriched series to a snapshot of its most recent fully
// closed bar: the last point whose start+resolution is not after now. If no
// point has closed yet (or now is zero) the last point is used. Returns
// false for an empty series.
func Latest(points []Point, now time.Time, res model.Resolution) (model.Snapshot, bool) {
	if len(points) == 0 {
		return model.Snapshot{}, false
	}
	idx := len(points) - 1
	if !now.IsZero() {
		for i := len(points) - 1; i >= 0; i-- {
			if !points[i].TS.Add(res.Duration()).After(now) {
				idx = i
				break
			}
		}
	}
	p := points[idx]

	snap := model.Snapshot{
		TS:        p.TS,
		Trend:     p.STDir,
		Momentum:  p.RSI,
		Histogram: p.MACDHist,
		LastClose: p.Close,
	}
	if !defined(snap.Momentum) {
		snap.Momentum = NeutralMomentum
	}
	if !defined(snap.Histogram) {
		snap.Histogram = NeutralHistogram
	}
	if snap.Trend != model.TrendDown {
		snap.Trend = model.TrendUp
	}
	return snap, true
}

// Snapshot computes indicators over candles and returns the latest closed
// bar snapshot. Returns model.ErrNoData for an empty series.
func Snapshot(candles []model.Candle, p Params, now time.Time, res model.Resolution) (model.Snapshot, error) {
	snap, ok := Latest(Compute(candles, p), now, res)
	if !ok {
		return model.Snapshot{}, model.ErrNoData
	}
	return snap, nil
}
