package model

import (
	"strconv"

	"github.com/shopspring/decimal"
)

// LogRowHeader is the column order of the trade log.
var LogRowHeader = []string{
	"ts_epoch", "date", "time_utc", "time_ist", "run_id", "trade_id",
	"session", "symbol", "expiry", "instrument", "kind", "direction",
	"side", "strike", "stage", "size", "mark", "note",
	"st_short_dir", "st_long_dir", "rsi", "macd_hist",
}

// LogRow is one routed action together with the market context it was
// emitted in. Stage is nil when the action carries no stage.
type LogRow struct {
	TSEpoch    int64   `json:"ts_epoch"`
	Date       string  `json:"date"`
	TimeUTC    string  `json:"time_utc"`
	TimeIST    string  `json:"time_ist"`
	RunID      string  `json:"run_id"`
	TradeID    string  `json:"trade_id"`
	Session    string  `json:"session"`
	Symbol     string  `json:"symbol"`
	Expiry     string  `json:"expiry"`
	Instrument string  `json:"instrument"`
	Kind       string  `json:"kind"`
	Direction  string  `json:"direction"`
	Side       string  `json:"side"`
	Strike     int64   `json:"strike"`
	Stage      *int    `json:"stage"`
	Size       float64 `json:"size"`
	Mark       float64 `json:"mark"`
	Note       string  `json:"note"`
	STShortDir int     `json:"st_short_dir"`
	STLongDir  int     `json:"st_long_dir"`
	RSI        float64 `json:"rsi"`
	MACDHist   float64 `json:"macd_hist"`
}

// SizeString renders the size with 6 decimals.
func (r *LogRow) SizeString() string {
	return decimal.NewFromFloat(r.Size).StringFixed(6)
}

// MarkString renders the mark with 2 decimals.
func (r *LogRow) MarkString() string {
	return decimal.NewFromFloat(r.Mark).StringFixed(2)
}

// StageString renders the stage, or "" when absent.
func (r *LogRow) StageString() string {
	if r.Stage == nil {
		return ""
	}
	return strconv.Itoa(*r.Stage)
}

// Record returns the row as strings in LogRowHeader order.
func (r *LogRow) Record() []string {
	return []string{
		strconv.FormatInt(r.TSEpoch, 10),
		r.Date,
		r.TimeUTC,
		r.TimeIST,
		r.RunID,
		r.TradeID,
		r.Session,
		r.Symbol,
		r.Expiry,
		r.Instrument,
		r.Kind,
		r.Direction,
		r.Side,
		strconv.FormatInt(r.Strike, 10),
		r.StageString(),
		r.SizeString(),
		r.MarkString(),
		r.Note,
		strconv.Itoa(r.STShortDir),
		strconv.Itoa(r.STLongDir),
		decimal.NewFromFloat(r.RSI).StringFixed(2),
		decimal.NewFromFloat(r.MACDHist).StringFixed(4),
	}
}
