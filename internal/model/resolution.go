package model

import (
	"fmt"
	"strings"
	"time"
)

// Resolution is a bar period. Its string form follows the exchange
// convention ("1m", "5m", "15m", "1h", "1d").
type Resolution time.Duration

// Supported resolutions.
const (
	Res1m  = Resolution(time.Minute)
	Res3m  = Resolution(3 * time.Minute)
	Res5m  = Resolution(5 * time.Minute)
	Res15m = Resolution(15 * time.Minute)
	Res30m = Resolution(30 * time.Minute)
	Res1h  = Resolution(time.Hour)
	Res2h  = Resolution(2 * time.Hour)
	Res4h  = Resolution(4 * time.Hour)
	Res6h  = Resolution(6 * time.Hour)
	Res1d  = Resolution(24 * time.Hour)
)

var resolutionNames = map[string]Resolution{
	"1m":  Res1m,
	"3m":  Res3m,
	"5m":  Res5m,
	"15m": Res15m,
	"30m": Res30m,
	"1h":  Res1h,
	"2h":  Res2h,
	"4h":  Res4h,
	"6h":  Res6h,
	"1d":  Res1d,
}

// ParseResolution parses "5m", "1h", ... into a Resolution.
func ParseResolution(s string) (Resolution, error) {
	r, ok := resolutionNames[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("unknown resolution %q", s)
	}
	return r, nil
}

// Duration returns the resolution as a time.Duration.
func (r Resolution) Duration() time.Duration { return time.Duration(r) }

// Seconds returns the resolution length in whole seconds.
func (r Resolution) Seconds() int64 { return int64(time.Duration(r) / time.Second) }

func (r Resolution) String() string {
	d := time.Duration(r)
	switch {
	case d >= 24*time.Hour && d%(24*time.Hour) == 0:
		return fmt.Sprintf("%dd", d/(24*time.Hour))
	case d >= time.Hour && d%time.Hour == 0:
		return fmt.Sprintf("%dh", d/time.Hour)
	default:
		return fmt.Sprintf("%dm", d/time.Minute)
	}
}

// UnmarshalText lets Resolution be decoded from YAML/JSON strings.
func (r *Resolution) UnmarshalText(b []byte) error {
	v, err := ParseResolution(string(b))
	if err != nil {
		return err
	}
	*r = v
	return nil
}

// MarshalText renders the exchange form.
func (r Resolution) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}
