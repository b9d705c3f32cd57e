// Package journal turns routed actions into trade log rows and appends them
// to the configured sinks.
package journal

import (
	"github.com/google/uuid"

	"option-monitor/internal/markethours"
	"option-monitor/internal/model"
)

// NewRunID returns a fresh identifier for one process run.
func NewRunID() string { return uuid.NewString() }

// Context is the market and session context an action was emitted in.
type Context struct {
	RunID      string
	Session    string
	Symbol     string
	Expiry     string
	Instrument string
	Short      model.Snapshot
	Long       model.Snapshot
}

// NewRow builds the log row for a stamped action. Momentum and histogram
// come from the short-term snapshot.
func NewRow(a model.Action, c Context) model.LogRow {
	ts := a.TS.UTC()
	return model.LogRow{
		TSEpoch:    ts.Unix(),
		Date:       ts.Format("2006-01-02"),
		TimeUTC:    ts.Format("15:04:05") + " UTC",
		TimeIST:    markethours.FormatIST(ts),
		RunID:      c.RunID,
		TradeID:    a.TradeID,
		Session:    c.Session,
		Symbol:     c.Symbol,
		Expiry:     c.Expiry,
		Instrument: c.Instrument,
		Kind:       string(a.Kind),
		Direction:  a.Direction,
		Side:       string(a.Side),
		Strike:     int64(a.Strike),
		Stage:      a.Stage,
		Size:       a.SizeDelta,
		Mark:       a.Mark,
		Note:       a.Note,
		STShortDir: int(c.Short.Trend),
		STLongDir:  int(c.Long.Trend),
		RSI:        c.Short.Momentum,
		MACDHist:   c.Short.Histogram,
	}
}
