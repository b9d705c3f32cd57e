package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ActionKind discriminates the trade actions a monitor can emit.
type ActionKind string

const (
	ActionEntryInitial  ActionKind = "ENTRY_INITIAL"
	ActionAddTranche    ActionKind = "ADD_TRANCHE"
	ActionExitStop      ActionKind = "EXIT_STOP"
	ActionTakeProfitHit ActionKind = "TAKE_PROFIT_HIT"
	ActionTrailUpdate   ActionKind = "TRAIL_UPDATE"
	ActionTrailExit     ActionKind = "TRAIL_EXIT"
)

// Exits reports whether the action closes the whole position.
func (k ActionKind) Exits() bool {
	return k == ActionExitStop || k == ActionTrailExit
}

// Action is an append-only fact emitted by a monitor. Stage is set only on
// ENTRY_INITIAL and ADD_TRANCHE. TradeID and Direction are stamped by the
// orchestrator before the action is routed.
type Action struct {
	Kind      ActionKind `json:"kind"`
	Side      Side       `json:"side"`
	Strike    float64    `json:"strike"`
	SizeDelta float64    `json:"size_delta"`
	Mark      float64    `json:"mark"`
	Note      string     `json:"note"`
	Stage     *int       `json:"stage,omitempty"`
	TS        time.Time  `json:"ts"`

	TradeID   string `json:"trade_id,omitempty"`
	Direction string `json:"direction,omitempty"`
}

// StageValue returns the stage and whether it is present.
func (a *Action) StageValue() (int, bool) {
	if a.Stage == nil {
		return 0, false
	}
	return *a.Stage, true
}

// JSON returns the JSON-encoded action.
func (a *Action) JSON() []byte {
	b, _ := json.Marshal(a)
	return b
}

// TradeID builds the deterministic identifier of one monitored option:
// "{session}::{symbol}-{expiry}-{direction}-{side}-K{strike}".
func TradeID(session, symbol, expiry string, side Side, strike float64) string {
	return fmt.Sprintf("%s::%s-%s-%s-%s-K%d", session, symbol, expiry, side.Direction(), side, int64(strike))
}
