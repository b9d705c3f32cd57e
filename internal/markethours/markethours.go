// Package markethours provides bar-boundary arithmetic for a market that
// trades around the clock, plus the IST wall clock used for display.
// Boundaries are aligned to the UTC epoch, the way exchanges bucket candles.
package markethours

import (
	"fmt"
	"time"

	"option-monitor/internal/model"
)

// IST is the Indian Standard Time location (UTC+5:30).
var IST = time.FixedZone("IST", 5*3600+30*60)

// ISTLayout is the layout used by FormatIST.
const ISTLayout = "2006-01-02 15:04:05 IST"

// BarStart returns the start of the bar of resolution res containing t.
func BarStart(t time.Time, res model.Resolution) time.Time {
	d := res.Duration()
	if d <= 0 {
		return t.UTC()
	}
	return t.UTC().Truncate(d)
}

// BarEnd returns the exclusive end of the bar containing t.
func BarEnd(t time.Time, res model.Resolution) time.Time {
	return BarStart(t, res).Add(res.Duration())
}

// NextBoundary returns the first bar boundary strictly after t.
func NextBoundary(t time.Time, res model.Resolution) time.Time {
	return BarEnd(t, res)
}

// SinceBarStart returns how far t is into its bar.
func SinceBarStart(t time.Time, res model.Resolution) time.Duration {
	return t.Sub(BarStart(t, res))
}

// FormatIST renders t on the IST wall clock.
func FormatIST(t time.Time) string {
	return t.In(IST).Format(ISTLayout)
}

// StatusString returns a human-readable bar status, e.g. "5m bar 10:05 IST, closes in 3m".
func StatusString(t time.Time, res model.Resolution) string {
	start := BarStart(t, res)
	return fmt.Sprintf("%s bar %s IST, closes in %s",
		res, start.In(IST).Format("15:04"), fmtDur(BarEnd(t, res).Sub(t)))
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	if m == 0 {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	return fmt.Sprintf("%dm", m)
}
