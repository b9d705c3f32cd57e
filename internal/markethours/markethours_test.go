package markethours

import (
	"testing"
	"time"

	"option-monitor/internal/model"
)

func TestBarStart(t *testing.T) {
	ts := time.Date(2025, 9, 20, 10, 7, 42, 0, time.UTC)
	tests := []struct {
		res  model.Resolution
		want time.Time
	}{
		{model.Res1m, time.Date(2025, 9, 20, 10, 7, 0, 0, time.UTC)},
		{model.Res5m, time.Date(2025, 9, 20, 10, 5, 0, 0, time.UTC)},
		{model.Res15m, time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC)},
		{model.Res1h, time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC)},
		{model.Res1d, time.Date(2025, 9, 20, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		if got := BarStart(ts, tt.res); !got.Equal(tt.want) {
			t.Errorf("BarStart(%s) = %v, want %v", tt.res, got, tt.want)
		}
	}
}

func TestBarStart_IgnoresLocation(t *testing.T) {
	// 15:37 IST is 10:07 UTC; 5m bars align to the UTC epoch.
	ts := time.Date(2025, 9, 20, 15, 37, 0, 0, IST)
	want := time.Date(2025, 9, 20, 10, 5, 0, 0, time.UTC)
	if got := BarStart(ts, model.Res5m); !got.Equal(want) {
		t.Errorf("BarStart = %v, want %v", got, want)
	}
}

func TestBarEndAndNextBoundary(t *testing.T) {
	ts := time.Date(2025, 9, 20, 10, 5, 0, 0, time.UTC)
	want := time.Date(2025, 9, 20, 10, 10, 0, 0, time.UTC)
	if got := BarEnd(ts, model.Res5m); !got.Equal(want) {
		t.Errorf("BarEnd = %v, want %v", got, want)
	}
	// exactly on a boundary: the next boundary is one bar later
	if got := NextBoundary(ts, model.Res5m); !got.Equal(want) {
		t.Errorf("NextBoundary = %v, want %v", got, want)
	}
}

func TestSinceBarStart(t *testing.T) {
	ts := time.Date(2025, 9, 20, 10, 5, 59, 0, time.UTC)
	if got := SinceBarStart(ts, model.Res5m); got != 59*time.Second {
		t.Errorf("SinceBarStart = %v, want 59s", got)
	}
}

func TestFormatIST(t *testing.T) {
	ts := time.Date(2025, 9, 20, 10, 0, 0, 0, time.UTC)
	if got := FormatIST(ts); got != "2025-09-20 15:30:00 IST" {
		t.Errorf("FormatIST = %q", got)
	}
}

func TestStatusString(t *testing.T) {
	ts := time.Date(2025, 9, 20, 10, 7, 0, 0, time.UTC)
	want := "5m bar 15:35 IST, closes in 3m"
	if got := StatusString(ts, model.Res5m); got != want {
		t.Errorf("StatusString = %q, want %q", got, want)
	}
}
