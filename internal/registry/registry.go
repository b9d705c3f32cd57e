// Package registry owns the live monitors, keyed by instrument name, and
// reconciles them against the declared instruments document. It is not
// goroutine-safe: only the orchestrator goroutine touches it.
package registry

import (
	"log"
	"sort"

	"option-monitor/internal/instruments"
	"option-monitor/internal/model"
	"option-monitor/internal/monitor"
)

// Entry is one live monitor and the metadata captured when it was created.
type Entry struct {
	Name       string
	Instrument model.Instrument
	Session    string
	Symbol     string
	Expiry     string
	TradeID    string
	Monitor    *monitor.Monitor
}

// Diff reports what a Reconcile changed. Names are sorted.
type Diff struct {
	Added   []string
	Removed []string
	Kept    []string
	Skipped []string // declared but invalid, never registered
}

// Empty reports whether the reconcile added or removed nothing.
func (d Diff) Empty() bool { return len(d.Added) == 0 && len(d.Removed) == 0 }

// Registry maps instrument names to live entries.
type Registry struct {
	entries map[string]*Entry
	opts    []monitor.Option

	// OnRemove is called for every discarded entry (optional).
	OnRemove func(e *Entry)
}

// New creates an empty Registry. opts are passed to every monitor created.
func New(opts ...monitor.Option) *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
		opts:    opts,
	}
}

// Reconcile brings the registry in line with doc. Names no longer declared
// are discarded without any final report. New names get a fresh flat
// monitor. Existing names are left untouched even when their parameters
// changed; the change only applies after the instrument is removed and
// declared again.
func (r *Registry) Reconcile(doc *instruments.Document) Diff {
	var diff Diff
	declared := make(map[string]instruments.Spec, len(doc.Instruments))
	for _, s := range doc.Instruments {
		declared[s.Name] = s
	}

	for name, e := range r.entries {
		if _, ok := declared[name]; ok {
			continue
		}
		delete(r.entries, name)
		diff.Removed = append(diff.Removed, name)
		if r.OnRemove != nil {
			r.OnRemove(e)
		}
		log.Printf("[registry] removed monitor %s", name)
	}

	for name, spec := range declared {
		if e, ok := r.entries[name]; ok {
			diff.Kept = append(diff.Kept, name)
			if spec.Err != nil {
				log.Printf("[registry] %s: keeping live monitor, new declaration is invalid: %v", name, spec.Err)
			} else if spec.Params != e.Monitor.Params() || spec.Contract != e.Instrument.Contract {
				log.Printf("[registry] %s: parameter change ignored until the instrument is re-added", name)
			}
			continue
		}
		if spec.Err != nil {
			diff.Skipped = append(diff.Skipped, name)
			log.Printf("[registry] skipping %s: %v", name, spec.Err)
			continue
		}
		inst := spec.Instrument()
		r.entries[name] = &Entry{
			Name:       name,
			Instrument: inst,
			Session:    doc.Session,
			Symbol:     doc.Symbol,
			Expiry:     doc.Expiry,
			TradeID:    model.TradeID(doc.Session, doc.Symbol, doc.Expiry, inst.Side, inst.Strike),
			Monitor:    monitor.New(spec.Params, r.opts...),
		}
		diff.Added = append(diff.Added, name)
		log.Printf("[registry] added %s -> %s %v (%s)", name, inst.Side, inst.Strike, inst.Contract)
	}

	sort.Strings(diff.Added)
	sort.Strings(diff.Removed)
	sort.Strings(diff.Kept)
	sort.Strings(diff.Skipped)
	return diff
}

// Get returns the entry for name.
func (r *Registry) Get(name string) (*Entry, bool) {
	e, ok := r.entries[name]
	return e, ok
}

// Len returns the number of live entries.
func (r *Registry) Len() int { return len(r.entries) }

// Entries returns the live entries sorted by name.
func (r *Registry) Entries() []*Entry {
	out := make([]*Entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
