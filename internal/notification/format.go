package notification

import (
	"fmt"
	"time"

	"option-monitor/internal/markethours"
	"option-monitor/internal/model"
)

var actionHeads = map[model.ActionKind]string{
	model.ActionEntryInitial:  "🎟️",
	model.ActionAddTranche:    "🎟️",
	model.ActionExitStop:      "❌",
	model.ActionTakeProfitHit: "✅",
	model.ActionTrailUpdate:   "ℹ️",
	model.ActionTrailExit:     "🏁",
}

// FormatAction renders the human-readable alert for an action:
//
//	🎟️ ENTRY_INITIAL | CALL K60000 | 0.005000 BTC @ ~120.50 | 2025-09-20 15:35:00 IST
//	short-term trend flip (option chart)
//	trade_id: forward_test::BTC-2025-09-21-BULL-CALL-K60000
//
// Zero size or mark render as "-".
func FormatAction(a model.Action, now time.Time) string {
	head, ok := actionHeads[a.Kind]
	if !ok {
		head = "ℹ️"
	}
	size := "-"
	if a.SizeDelta != 0 {
		size = fmt.Sprintf("%.6f BTC", a.SizeDelta)
	}
	mark := "-"
	if a.Mark != 0 {
		mark = fmt.Sprintf("~%.2f", a.Mark)
	}
	return fmt.Sprintf("%s %s | %s K%d | %s @ %s | %s\n%s\ntrade_id: %s",
		head, a.Kind, a.Side, int64(a.Strike), size, mark, markethours.FormatIST(now), a.Note, a.TradeID)
}

// ActionAlert wraps FormatAction in an Alert. Full exits are warnings.
func ActionAlert(a model.Action, now time.Time) Alert {
	level := AlertInfo
	if a.Kind == model.ActionExitStop {
		level = AlertWarning
	}
	return Alert{
		Level:   level,
		Message: FormatAction(a, now),
		Kind:    string(a.Kind),
		TradeID: a.TradeID,
	}
}

// StartupAlert is the one-off ping sent when the daemon starts.
func StartupAlert(service string, now time.Time) Alert {
	return Alert{
		Level:   AlertInfo,
		Message: fmt.Sprintf("🤖 %s started at %s", service, markethours.FormatIST(now)),
	}
}
