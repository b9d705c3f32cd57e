package orchestrator

import (
	"time"

	"option-monitor/internal/model"
	"option-monitor/internal/monitor"
)

// MonitorStatus is the observable state of one monitor after a pass.
type MonitorStatus struct {
	Name          string          `json:"name"`
	TradeID       string          `json:"trade_id"`
	Contract      string          `json:"contract"`
	Side          model.Side      `json:"side"`
	Strike        float64         `json:"strike"`
	State         monitor.State   `json:"state"`
	Short         *model.Snapshot `json:"short,omitempty"`
	Long          *model.Snapshot `json:"long,omitempty"`
	LastError     string          `json:"last_error,omitempty"`
	LastEvaluated time.Time       `json:"last_evaluated"`
}

// Status is an immutable copy of the registry published after every pass.
// Readers never touch live monitors.
type Status struct {
	RunID        string          `json:"run_id"`
	Session      string          `json:"session"`
	Symbol       string          `json:"symbol"`
	Expiry       string          `json:"expiry"`
	Passes       uint64          `json:"passes"`
	PassAt       time.Time       `json:"pass_at"`
	PassDuration time.Duration   `json:"pass_duration_ns"`
	Failed       int             `json:"failed"`
	Actions      int             `json:"actions"`
	Monitors     []MonitorStatus `json:"monitors"`
}
