package model

import (
	"fmt"
	"strings"
)

// Side is the option side of a monitored instrument. It only labels the
// position: both sides enter on bullish flips of their own chart.
type Side string

const (
	SideCall Side = "CALL"
	SidePut  Side = "PUT"
)

// ParseSide accepts CALL/PUT in any case (C/P shorthand included).
func ParseSide(s string) (Side, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C", "CE":
		return SideCall, nil
	case "PUT", "P", "PE":
		return SidePut, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

// Direction is the directional bias label carried on actions:
// BULL for calls, BEAR for puts.
func (s Side) Direction() string {
	if s == SidePut {
		return "BEAR"
	}
	return "BULL"
}

// Trend is a trend-band direction: +1 bullish, -1 bearish.
type Trend int

const (
	TrendDown Trend = -1
	TrendUp   Trend = 1
)

// Bullish reports whether the trend is up.
func (t Trend) Bullish() bool { return t > 0 }

// Bearish reports whether the trend is down.
func (t Trend) Bearish() bool { return t < 0 }

// Instrument identifies one monitored option within a session.
type Instrument struct {
	Name     string  `json:"name"`
	Side     Side    `json:"side"`
	Strike   float64 `json:"strike"`
	Contract string  `json:"contract"` // market-data symbol of the option's own chart
}
