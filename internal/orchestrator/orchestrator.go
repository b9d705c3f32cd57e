// Package orchestrator drives the evaluation loop: it keeps the registry in
// line with the instruments file, evaluates every monitor once per pass and
// routes the resulting actions to alerts, the journal and the dashboard.
//
// All monitor mutation happens on the goroutine running Run. Other
// goroutines interact through RequestReload and Status only.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"option-monitor/internal/indicator"
	"option-monitor/internal/instruments"
	"option-monitor/internal/journal"
	"option-monitor/internal/logger"
	"option-monitor/internal/marketdata"
	"option-monitor/internal/marketdata/closedetector"
	"option-monitor/internal/markethours"
	"option-monitor/internal/metrics"
	"option-monitor/internal/model"
	"option-monitor/internal/monitor"
	"option-monitor/internal/notification"
	"option-monitor/internal/registry"
)

// Defaults applied by New for unset Config fields.
const (
	DefaultFetchTimeout = 10 * time.Second
	DefaultErrorBackoff = 5 * time.Second
	DefaultCloseOffset  = 2 * time.Second
)

// ErrNotInitialized is returned by Run when Init has not succeeded.
var ErrNotInitialized = errors.New("orchestrator not initialized")

// DocumentLoader loads the instruments document and reports whether the
// file changed since the last successful load.
type DocumentLoader interface {
	Load() (*instruments.Document, error)
	Changed() bool
}

// Publisher streams actions and status to dashboards.
type Publisher interface {
	PublishAction(a model.Action) int64
	PublishStatus(v any)
}

// Config tunes the service.
type Config struct {
	RunID        string
	Indicator    indicator.Params
	FetchTimeout time.Duration // per candle request
	CloseWindow  time.Duration // bar-close gate window
	ErrorBackoff time.Duration // sleep after a failed reload
	CloseOffset  time.Duration // wake this long after each short-term boundary

	// Now is the clock used for gating, snapshots and action timestamps.
	Now func() time.Time
}

// Deps are the collaborators of the service. Source and Loader are
// required; the rest fall back to console alerts and no-op sinks.
type Deps struct {
	Source    marketdata.Source
	Loader    DocumentLoader
	Notifier  notification.Notifier
	Journal   journal.Sink
	Publisher Publisher
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
}

type snapPair struct {
	short, long model.Snapshot
	err         error
	at          time.Time
}

// Service is the tick orchestrator.
type Service struct {
	cfg  Config
	deps Deps

	reg  *registry.Registry
	doc  *instruments.Document
	gate *closedetector.Gate
	last map[string]snapPair

	reloadCh chan string
	passes   uint64
	status   atomic.Pointer[Status]
}

// New builds a service. Call Init before Run.
func New(cfg Config, deps Deps) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.CloseWindow <= 0 {
		cfg.CloseWindow = closedetector.DefaultWindow
	}
	if cfg.ErrorBackoff <= 0 {
		cfg.ErrorBackoff = DefaultErrorBackoff
	}
	if cfg.CloseOffset <= 0 || cfg.CloseOffset >= cfg.CloseWindow {
		cfg.CloseOffset = min(DefaultCloseOffset, cfg.CloseWindow/2)
	}
	if cfg.RunID == "" {
		cfg.RunID = journal.NewRunID()
	}
	if deps.Notifier == nil {
		deps.Notifier = notification.NewLogNotifier()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics(prometheus.NewRegistry())
	}

	s := &Service{
		cfg:      cfg,
		deps:     deps,
		reg:      registry.New(monitor.WithClock(cfg.Now)),
		last:     make(map[string]snapPair),
		reloadCh: make(chan string, 1),
	}
	s.reg.OnRemove = func(e *registry.Entry) {
		delete(s.last, e.Name)
		if s.gate != nil {
			s.gate.Forget(e.Name)
		}
	}
	s.status.Store(&Status{RunID: cfg.RunID})
	return s
}

// RunID returns the identifier stamped on every journal row.
func (s *Service) RunID() string { return s.cfg.RunID }

// Init performs the first load of the instruments document. A failure
// here is fatal for the process.
func (s *Service) Init() error {
	if err := s.reload("startup"); err != nil {
		return err
	}
	s.publishStatus(s.cfg.Now(), 0, 0, 0)
	return nil
}

// RequestReload asks the loop to reload the instruments document before
// its next pass and wakes it if it is sleeping. Returns false when a
// request is already pending.
func (s *Service) RequestReload(reason string) bool {
	select {
	case s.reloadCh <- reason:
		return true
	default:
		return false
	}
}

// Status returns the status published after the latest pass.
func (s *Service) Status() Status { return *s.status.Load() }

// Run loops until ctx is cancelled: reload if due, run one pass, sleep
// for the document's reload interval. A failed reload keeps the previous
// registry and shortens the sleep to the error backoff. The sleep never
// crosses a short-term bar boundary, so every bar close gets a pass
// inside the close window.
func (s *Service) Run(ctx context.Context) error {
	if s.doc == nil {
		return ErrNotInitialized
	}
	pending := ""
	for {
		wait := s.doc.ReloadEvery
		if pending == "" && s.deps.Loader.Changed() {
			pending = "modified"
		}
		if pending != "" {
			if err := s.reload(pending); err != nil {
				wait = s.cfg.ErrorBackoff
			}
			pending = ""
		}

		s.Pass(ctx)

		select {
		case <-ctx.Done():
			slog.Info("orchestrator stopped", "passes", s.passes)
			return nil
		case pending = <-s.reloadCh:
		case <-time.After(s.NextWait(s.cfg.Now(), wait)):
		}
	}
}

func (s *Service) reload(reason string) error {
	doc, err := s.deps.Loader.Load()
	if err != nil {
		s.deps.Metrics.ReloadsTotal.WithLabelValues("error").Inc()
		slog.Error("instruments reload failed, keeping previous registry", "reason", reason, "error", err)
		return fmt.Errorf("reload instruments: %w", err)
	}
	s.deps.Metrics.ReloadsTotal.WithLabelValues("ok").Inc()

	if s.gate == nil || s.gate.Resolution != doc.ShortResolution {
		s.gate = closedetector.New(doc.ShortResolution)
		s.gate.Window = s.cfg.CloseWindow
	}
	s.doc = doc
	diff := s.reg.Reconcile(doc)
	s.deps.Metrics.LiveMonitors.Set(float64(s.reg.Len()))

	slog.Info("instruments reloaded",
		"reason", reason,
		"added", diff.Added,
		"removed", diff.Removed,
		"kept", len(diff.Kept),
		"skipped", diff.Skipped,
	)
	return nil
}

// NextWait caps interval so the next pass lands CloseOffset after the
// upcoming short-term bar boundary when that comes first.
func (s *Service) NextWait(now time.Time, interval time.Duration) time.Duration {
	if s.doc == nil {
		return interval
	}
	untilClose := markethours.NextBoundary(now, s.doc.ShortResolution).Sub(now) + s.cfg.CloseOffset
	if untilClose < interval {
		return untilClose
	}
	return interval
}

// Pass evaluates every live monitor once, in name order. Failures are
// contained per instrument. The bar-close decision is taken against the
// pass start, so slow fetches cannot push later instruments out of the
// close window.
func (s *Service) Pass(ctx context.Context) {
	start := s.cfg.Now()
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID("pass", start))

	failed, emitted := 0, 0
	for _, e := range s.reg.Entries() {
		if ctx.Err() != nil {
			break
		}
		n, err := s.evaluate(ctx, e, start)
		emitted += n
		if err != nil {
			failed++
		}
	}

	elapsed := s.cfg.Now().Sub(start)
	s.passes++
	s.deps.Metrics.PassesTotal.Inc()
	s.deps.Metrics.PassDuration.Observe(elapsed.Seconds())
	if s.deps.Health != nil {
		s.deps.Health.RecordPass(start, s.reg.Len(), failed)
	}
	s.publishStatus(start, elapsed, failed, emitted)

	slog.Debug("pass complete", append(logger.LogWithTrace(ctx),
		"monitors", s.reg.Len(), "failed", failed, "actions", emitted, "elapsed", elapsed)...)
}

// evaluate runs one instrument inside a fault boundary and returns the
// number of actions it emitted.
func (s *Service) evaluate(ctx context.Context, e *registry.Entry, passStart time.Time) (n int, err error) {
	ctx = logger.WithTradeID(ctx, e.TradeID)
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.deps.Metrics.PanicsTotal.WithLabelValues(e.Name).Inc()
		}
		if err != nil {
			s.last[e.Name] = snapPair{err: err, at: s.cfg.Now(), short: s.last[e.Name].short, long: s.last[e.Name].long}
			slog.Warn("instrument skipped", append(logger.LogWithTrace(ctx), "instrument", e.Name, "error", err)...)
		}
	}()

	short, long, err := s.snapshots(ctx, e)
	if err != nil {
		s.deps.Metrics.FetchErrors.WithLabelValues(e.Name).Inc()
		return 0, err
	}

	now := s.cfg.Now()
	barClosed := s.gate.Observe(e.Name, passStart)
	if barClosed {
		s.deps.Metrics.BarCloseFired.Inc()
	} else {
		s.deps.Metrics.GatedTicks.Inc()
	}

	acts := e.Monitor.Update(short, short.Trend, long.Trend, barClosed)
	s.last[e.Name] = snapPair{short: short, long: long, at: now}

	for _, a := range acts {
		a.TradeID = e.TradeID
		a.Direction = a.Side.Direction()
		s.route(ctx, e, a, short, long)
	}
	return len(acts), nil
}

func (s *Service) snapshots(ctx context.Context, e *registry.Entry) (short, long model.Snapshot, err error) {
	now := s.cfg.Now()
	short, err = s.snapshot(ctx, e.Instrument.Contract, s.doc.ShortResolution, now)
	if err != nil {
		return short, long, fmt.Errorf("short-term %s: %w", s.doc.ShortResolution, err)
	}
	long, err = s.snapshot(ctx, e.Instrument.Contract, s.doc.LongResolution, now)
	if err != nil {
		return short, long, fmt.Errorf("long-term %s: %w", s.doc.LongResolution, err)
	}
	return short, long, nil
}

func (s *Service) snapshot(ctx context.Context, contract string, res model.Resolution, now time.Time) (model.Snapshot, error) {
	fctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	start := time.Now()
	candles, err := s.deps.Source.Candles(fctx, contract, res, s.doc.CandleLimit)
	s.deps.Metrics.FetchDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return model.Snapshot{}, err
	}
	return indicator.Snapshot(candles, s.cfg.Indicator, now, res)
}

// route forwards one stamped action to every collaborator. Delivery
// failures are logged and counted, never propagated.
func (s *Service) route(ctx context.Context, e *registry.Entry, a model.Action, short, long model.Snapshot) {
	s.deps.Metrics.ActionsTotal.WithLabelValues(string(a.Kind)).Inc()
	slog.Info("action", append(logger.LogWithTrace(ctx),
		"instrument", e.Name, "kind", a.Kind, "size", a.SizeDelta, "mark", a.Mark, "note", a.Note)...)

	if err := s.deps.Notifier.Send(ctx, notification.ActionAlert(a, s.cfg.Now())); err != nil {
		s.deps.Metrics.NotifyFailures.Inc()
		slog.Warn("alert delivery failed", append(logger.LogWithTrace(ctx), "error", err)...)
	}

	if s.deps.Journal != nil {
		row := journal.NewRow(a, journal.Context{
			RunID:      s.cfg.RunID,
			Session:    e.Session,
			Symbol:     e.Symbol,
			Expiry:     e.Expiry,
			Instrument: e.Name,
			Short:      short,
			Long:       long,
		})
		if err := s.deps.Journal.Write(ctx, row); err != nil {
			s.deps.Metrics.JournalFailures.WithLabelValues(s.deps.Journal.Name()).Inc()
			slog.Warn("journal write failed", append(logger.LogWithTrace(ctx), "error", err)...)
		}
	}

	if s.deps.Publisher != nil {
		s.deps.Publisher.PublishAction(a)
	}
}

func (s *Service) publishStatus(at time.Time, elapsed time.Duration, failed, emitted int) {
	st := &Status{
		RunID:        s.cfg.RunID,
		Passes:       s.passes,
		PassAt:       at,
		PassDuration: elapsed,
		Failed:       failed,
		Actions:      emitted,
	}
	if s.doc != nil {
		st.Session, st.Symbol, st.Expiry = s.doc.Session, s.doc.Symbol, s.doc.Expiry
	}
	for _, e := range s.reg.Entries() {
		ms := MonitorStatus{
			Name:     e.Name,
			TradeID:  e.TradeID,
			Contract: e.Instrument.Contract,
			Side:     e.Instrument.Side,
			Strike:   e.Instrument.Strike,
			State:    e.Monitor.State(),
		}
		if p, ok := s.last[e.Name]; ok {
			ms.LastEvaluated = p.at
			if !p.short.TS.IsZero() {
				short, long := p.short, p.long
				ms.Short, ms.Long = &short, &long
			}
			if p.err != nil {
				ms.LastError = p.err.Error()
			}
		}
		st.Monitors = append(st.Monitors, ms)
	}
	s.status.Store(st)
	if s.deps.Publisher != nil {
		s.deps.Publisher.PublishStatus(st)
	}
}
