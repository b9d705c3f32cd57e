// Package monitor implements the per-instrument position state machine.
//
// A Monitor consumes one indicator snapshot per evaluation and emits the
// trade actions that snapshot triggers: entry, scale-in, stop exit,
// take-profit latch and trailing exit. It owns a single synthetic position
// that lives only in memory. A Monitor is mutated by exactly one caller in
// strict sequence and carries no locks.
package monitor

import (
	"errors"
	"fmt"
	"math"
	"time"

	"option-monitor/internal/model"
)

// Action notes.
const (
	NoteEntry = "short-term trend flip (option chart)"
	NoteAdd   = "long-term confirm + momentum/convergence agree"
	NoteStop  = "short-term trend flip against (option chart)"
)

// ErrInvalidParams is returned by Params.Validate.
var ErrInvalidParams = errors.New("invalid monitor params")

// Params are the construction-time settings of a Monitor. They never change
// for the lifetime of the instance.
type Params struct {
	Side                     model.Side `json:"side" mapstructure:"side"`
	Strike                   float64    `json:"strike" mapstructure:"strike"`
	InitialTrancheSize       float64    `json:"initial_tranche_size" mapstructure:"initial_tranche_size"`
	RewardMultiplier         float64    `json:"reward_multiplier" mapstructure:"reward_multiplier"`
	TrailingDropFraction     float64    `json:"trailing_drop_fraction" mapstructure:"trailing_drop_fraction"`
	MomentumConfirmThreshold float64    `json:"momentum_confirm_threshold" mapstructure:"momentum_confirm_threshold"`
	ActOnlyOnClosedBars      bool       `json:"act_only_on_closed_bars" mapstructure:"act_only_on_closed_bars"`
}

// DefaultParams returns the parameter defaults for a CALL at strike 0.
func DefaultParams() Params {
	return Params{
		Side:                     model.SideCall,
		InitialTrancheSize:       0.005,
		RewardMultiplier:         1.0,
		TrailingDropFraction:     0.25,
		MomentumConfirmThreshold: 55,
		ActOnlyOnClosedBars:      true,
	}
}

// Validate checks parameter ranges.
func (p Params) Validate() error {
	switch {
	case p.Side != model.SideCall && p.Side != model.SidePut:
		return fmt.Errorf("%w: side %q", ErrInvalidParams, p.Side)
	case !finite(p.Strike) || p.Strike < 0:
		return fmt.Errorf("%w: strike %v", ErrInvalidParams, p.Strike)
	case !finite(p.InitialTrancheSize) || p.InitialTrancheSize <= 0:
		return fmt.Errorf("%w: initial_tranche_size must be > 0, got %v", ErrInvalidParams, p.InitialTrancheSize)
	case !finite(p.RewardMultiplier) || p.RewardMultiplier < 0:
		return fmt.Errorf("%w: reward_multiplier must be >= 0, got %v", ErrInvalidParams, p.RewardMultiplier)
	case !finite(p.TrailingDropFraction) || p.TrailingDropFraction < 0 || p.TrailingDropFraction > 1:
		return fmt.Errorf("%w: trailing_drop_fraction must be in [0,1], got %v", ErrInvalidParams, p.TrailingDropFraction)
	case !finite(p.MomentumConfirmThreshold) || p.MomentumConfirmThreshold < 0 || p.MomentumConfirmThreshold > 100:
		return fmt.Errorf("%w: momentum_confirm_threshold must be in [0,100], got %v", ErrInvalidParams, p.MomentumConfirmThreshold)
	}
	return nil
}

// State is the position owned by a Monitor.
// stage == 0 implies every other field is zero.
type State struct {
	Stage         int     `json:"stage"`
	Size          float64 `json:"size"`
	WAP           float64 `json:"wap"`
	TakeProfitHit bool    `json:"take_profit_hit"`
	Peak          float64 `json:"peak"`
}

// Flat reports whether no position is held.
func (s State) Flat() bool { return s.Stage == 0 }

// Monitor is the state machine for one instrument.
type Monitor struct {
	params Params
	state  State
	now    func() time.Time
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the clock used to timestamp actions.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// New creates a flat Monitor. Params are assumed valid; callers that load
// them from configuration should call Validate first.
func New(p Params, opts ...Option) *Monitor {
	m := &Monitor{params: p, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Params returns the construction parameters.
func (m *Monitor) Params() Params { return m.params }

// State returns a copy of the current position.
func (m *Monitor) State() State { return m.state }

// Update evaluates one snapshot and returns the actions it triggers, in
// order. shortTerm drives entry and stop, longTerm gates the scale-in.
// barClosed tells whether this evaluation falls on a closed bar.
func (m *Monitor) Update(snap model.Snapshot, shortTerm, longTerm model.Trend, barClosed bool) []model.Action {
	var acts []model.Action
	mark := snap.LastClose
	ts := m.now()
	s := &m.state

	// Forming bar: peak tracking only, and only once take-profit is latched.
	if m.params.ActOnlyOnClosedBars && !barClosed {
		if s.TakeProfitHit && mark > s.Peak {
			s.Peak = mark
			acts = append(acts, m.action(model.ActionTrailUpdate, 0, mark, fmt.Sprintf("peak %.2f", s.Peak), nil, ts))
		}
		return acts
	}

	if s.Stage == 0 {
		if shortTerm.Bullish() {
			s.Stage = 1
			s.Size = m.params.InitialTrancheSize
			s.WAP = mark
			s.Peak = mark
			acts = append(acts, m.action(model.ActionEntryInitial, m.params.InitialTrancheSize, mark, NoteEntry, stage(1), ts))
		}
		return acts
	}

	if s.Stage == 1 && longTerm.Bullish() {
		if snap.Momentum >= m.params.MomentumConfirmThreshold && snap.Histogram > 0 {
			tranche := m.params.InitialTrancheSize
			s.WAP = (s.WAP*s.Size + mark*tranche) / (s.Size + tranche)
			s.Size += tranche
			s.Stage = 2
			s.Peak = math.Max(s.Peak, mark)
			acts = append(acts, m.action(model.ActionAddTranche, tranche, mark, NoteAdd, stage(2), ts))
		}
	}

	if shortTerm.Bearish() {
		acts = append(acts, m.action(model.ActionExitStop, s.Size, mark, NoteStop, nil, ts))
		m.reset()
		return acts
	}

	if mark > s.Peak {
		s.Peak = mark
	}
	target := s.WAP * (1 + m.params.RewardMultiplier)
	if !s.TakeProfitHit && mark >= target {
		s.TakeProfitHit = true
		acts = append(acts, m.action(model.ActionTakeProfitHit, 0, mark, fmt.Sprintf("target %.2f reached", target), nil, ts))
	}
	if s.TakeProfitHit {
		if mark <= s.Peak*(1-m.params.TrailingDropFraction) {
			note := fmt.Sprintf("drop %.0f%% from peak", m.params.TrailingDropFraction*100)
			acts = append(acts, m.action(model.ActionTrailExit, s.Size, mark, note, nil, ts))
			m.reset()
		} else {
			acts = append(acts, m.action(model.ActionTrailUpdate, 0, mark, fmt.Sprintf("peak %.2f", s.Peak), nil, ts))
		}
	}
	return acts
}

func (m *Monitor) action(kind model.ActionKind, size, mark float64, note string, stage *int, ts time.Time) model.Action {
	return model.Action{
		Kind:      kind,
		Side:      m.params.Side,
		Strike:    m.params.Strike,
		SizeDelta: size,
		Mark:      mark,
		Note:      note,
		Stage:     stage,
		TS:        ts,
	}
}

func (m *Monitor) reset() {
	m.state = State{}
}

func stage(n int) *int { return &n }

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
