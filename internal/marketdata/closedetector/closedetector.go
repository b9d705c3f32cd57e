// Package closedetector decides whether an evaluation falls on a freshly
// closed bar. Polling is not aligned to bar boundaries, so a bar counts as
// closed for the first Window after its successor starts. With OncePerBar
// the signal fires at most once per bar for each key, so a fast poll
// interval cannot act twice on the same close.
package closedetector

import (
	"log"
	"sync"
	"time"

	"option-monitor/internal/markethours"
	"option-monitor/internal/model"
)

// DefaultWindow is how long after a boundary a tick still counts as closed.
const DefaultWindow = 60 * time.Second

// Gate observes evaluation times and reports bar-close ticks.
type Gate struct {
	// Resolution is the bar period whose boundaries are watched.
	Resolution model.Resolution

	// Window is the span after a boundary treated as "just closed".
	// Default: 60 seconds.
	Window time.Duration

	// OncePerBar suppresses repeated signals for the same key and bar.
	// Default: true.
	OncePerBar bool

	mu    sync.Mutex
	fired map[string]time.Time // key → bar start of the last signal
}

// New creates a Gate for the given resolution with default settings.
func New(res model.Resolution) *Gate {
	return &Gate{
		Resolution: res,
		Window:     DefaultWindow,
		OncePerBar: true,
		fired:      make(map[string]time.Time),
	}
}

// InWindow reports whether now is within Window of the latest boundary,
// regardless of earlier signals.
func (g *Gate) InWindow(now time.Time) bool {
	return markethours.SinceBarStart(now, g.Resolution) < g.Window
}

// Observe returns true if now is a bar-close tick for key.
func (g *Gate) Observe(key string, now time.Time) bool {
	if !g.InWindow(now) {
		return false
	}
	if !g.OncePerBar {
		return true
	}

	bar := markethours.BarStart(now, g.Resolution)
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fired == nil {
		g.fired = make(map[string]time.Time)
	}
	if last, ok := g.fired[key]; ok && last.Equal(bar) {
		return false
	}
	g.fired[key] = bar
	log.Printf("[closedetector] %s bar closed for %s (boundary %s)", g.Resolution, key, bar.Format(time.RFC3339))
	return true
}

// Forget drops the remembered bar for key, e.g. when an instrument is removed.
func (g *Gate) Forget(key string) {
	g.mu.Lock()
	delete(g.fired, key)
	g.mu.Unlock()
}
