package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-monitor/internal/instruments"
	"option-monitor/internal/markethours"
	"option-monitor/internal/metrics"
	"option-monitor/internal/model"
	"option-monitor/internal/notification"
)

const testYAML = `
session: forward_test
symbol: BTC
expiry: "2025-09-26"
reload_secs: 0.05
instruments:
  - name: bad
    side: CALL
    strike: 61000
    contract: BAD
  - name: good
    side: CALL
    strike: 60000
    contract: GOOD
`

// t0 is 10s after a 5m (and 15m) boundary.
var t0 = time.Date(2025, 9, 20, 10, 0, 10, 0, time.UTC)

// flatSource serves 21 flat closed bars ending at the last closed bar, so
// the trend-band classifier reads up on the latest bar. Contracts listed
// in fail return an error; contracts in boom panic.
type flatSource struct {
	now  func() time.Time
	fail map[string]bool
	boom map[string]bool

	// onFetch runs before every request (optional).
	onFetch func()

	mu    sync.Mutex
	calls int
}

func (f *flatSource) Candles(_ context.Context, symbol string, res model.Resolution, _ int) ([]model.Candle, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.onFetch != nil {
		f.onFetch()
	}
	if f.boom[symbol] {
		panic("malformed payload")
	}
	if f.fail[symbol] {
		return nil, model.ErrNoData
	}
	last := markethours.BarStart(f.now(), res).Add(-res.Duration())
	out := make([]model.Candle, 21)
	for i := range out {
		out[i] = model.Candle{
			TS:   last.Add(-time.Duration(20-i) * res.Duration()),
			Open: 100, High: 101, Low: 99, Close: 100, Volume: 1,
		}
	}
	return out, nil
}

type staticLoader struct {
	mu   sync.Mutex
	yaml string
	err  error
}

func (l *staticLoader) Load() (*instruments.Document, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	return instruments.Parse([]byte(l.yaml))
}

func (l *staticLoader) Changed() bool { return false }

type recorder struct {
	mu       sync.Mutex
	alerts   []notification.Alert
	rows     []model.LogRow
	actions  []model.Action
	statuses int
}

func (r *recorder) Send(_ context.Context, a notification.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Write(_ context.Context, row model.LogRow) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows = append(r.rows, row)
	return nil
}

func (r *recorder) PublishAction(a model.Action) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, a)
	return int64(len(r.actions))
}

func (r *recorder) PublishStatus(any) {
	r.mu.Lock()
	r.statuses++
	r.mu.Unlock()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestService(t *testing.T, src *flatSource, loader *staticLoader) (*Service, *recorder, *metrics.Metrics) {
	t.Helper()
	return newClockedService(t, src, loader, &fakeClock{t: t0})
}

func newClockedService(t *testing.T, src *flatSource, loader *staticLoader, clk *fakeClock) (*Service, *recorder, *metrics.Metrics) {
	t.Helper()
	now := clk.Now
	src.now = now

	rec := &recorder{}
	m := metrics.NewMetrics(prometheus.NewRegistry())
	svc := New(Config{RunID: "run-1", Now: now}, Deps{
		Source:    src,
		Loader:    loader,
		Notifier:  rec,
		Journal:   rec,
		Publisher: rec,
		Metrics:   m,
		Health:    metrics.NewHealthStatus(time.Minute),
	})
	require.NoError(t, svc.Init())
	return svc, rec, m
}

func TestPass_IsolatesFailingInstrument(t *testing.T) {
	src := &flatSource{fail: map[string]bool{"BAD": true}}
	svc, rec, m := newTestService(t, src, &staticLoader{yaml: testYAML})

	svc.Pass(context.Background())

	require.Len(t, rec.actions, 1)
	a := rec.actions[0]
	assert.Equal(t, model.ActionEntryInitial, a.Kind)
	assert.Equal(t, "forward_test::BTC-2025-09-26-BULL-CALL-K60000", a.TradeID)
	assert.Equal(t, "BULL", a.Direction)
	assert.Equal(t, 100.0, a.Mark)
	assert.Equal(t, t0, a.TS)

	require.Len(t, rec.alerts, 1)
	assert.Contains(t, rec.alerts[0].Message, "ENTRY_INITIAL")
	require.Len(t, rec.rows, 1)
	assert.Equal(t, "run-1", rec.rows[0].RunID)
	assert.Equal(t, "good", rec.rows[0].Instrument)
	assert.Equal(t, 1, rec.rows[0].STShortDir)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.FetchErrors.WithLabelValues("bad")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ActionsTotal.WithLabelValues("ENTRY_INITIAL")))

	st := svc.Status()
	assert.Equal(t, uint64(1), st.Passes)
	assert.Equal(t, 1, st.Failed)
	require.Len(t, st.Monitors, 2)
	assert.Equal(t, "bad", st.Monitors[0].Name)
	assert.Contains(t, st.Monitors[0].LastError, "no data")
	assert.Equal(t, 0, st.Monitors[0].State.Stage, "failed instrument state untouched")
	assert.Equal(t, 1, st.Monitors[1].State.Stage)
	require.NotNil(t, st.Monitors[1].Short)
	assert.Equal(t, model.TrendUp, st.Monitors[1].Short.Trend)
}

func TestPass_GateFiresOncePerBar(t *testing.T) {
	src := &flatSource{}
	svc, rec, m := newTestService(t, src, &staticLoader{yaml: testYAML})

	svc.Pass(context.Background())
	svc.Pass(context.Background())

	assert.Len(t, rec.actions, 2, "one entry per instrument, second pass gated")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.GatedTicks))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.BarCloseFired))
}

func TestPass_RecoversPanics(t *testing.T) {
	src := &flatSource{boom: map[string]bool{"BAD": true}}
	svc, rec, m := newTestService(t, src, &staticLoader{yaml: testYAML})

	require.NotPanics(t, func() { svc.Pass(context.Background()) })
	assert.Len(t, rec.actions, 1, "good instrument still evaluated")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PanicsTotal.WithLabelValues("bad")))
	assert.Contains(t, svc.Status().Monitors[0].LastError, "panic")
}

func TestInit_FailsOnMissingDocument(t *testing.T) {
	svc := New(Config{}, Deps{
		Source: &flatSource{},
		Loader: &staticLoader{err: errors.New("stat instruments file: no such file")},
	})
	assert.Error(t, svc.Init())
	assert.ErrorIs(t, svc.Run(context.Background()), ErrNotInitialized)
}

func TestRun_FailedReloadKeepsRegistry(t *testing.T) {
	loader := &staticLoader{yaml: testYAML}
	svc, _, m := newTestService(t, &flatSource{}, loader)

	loader.mu.Lock()
	loader.err = errors.New("yaml: line 3: mapping values are not allowed")
	loader.mu.Unlock()
	require.True(t, svc.RequestReload("test"))
	assert.False(t, svc.RequestReload("again"), "one request pending at a time")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.ReloadsTotal.WithLabelValues("error")) >= 1
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	st := svc.Status()
	assert.Len(t, st.Monitors, 2)
	assert.GreaterOrEqual(t, st.Passes, uint64(1))
}

func TestReload_RemovesAndAdds(t *testing.T) {
	loader := &staticLoader{yaml: testYAML}
	svc, _, _ := newTestService(t, &flatSource{}, loader)
	svc.Pass(context.Background())

	loader.mu.Lock()
	loader.yaml = `
expiry: "2025-09-26"
instruments:
  - name: good
    side: CALL
    strike: 60000
    contract: GOOD
  - name: fresh
    side: PUT
    strike: 59000
    contract: FRESH
`
	loader.mu.Unlock()
	require.NoError(t, svc.reload("test"))
	svc.publishStatus(t0, 0, 0, 0)

	st := svc.Status()
	require.Len(t, st.Monitors, 2)
	assert.Equal(t, "fresh", st.Monitors[0].Name)
	assert.Equal(t, 0, st.Monitors[0].State.Stage)
	assert.Equal(t, "good", st.Monitors[1].Name)
	assert.Equal(t, 1, st.Monitors[1].State.Stage, "kept monitor keeps its position")
	assert.NotContains(t, svc.last, "bad")
}

func TestNextWait_StopsAtBarBoundary(t *testing.T) {
	svc, _, _ := newTestService(t, &flatSource{}, &staticLoader{yaml: testYAML})

	at := func(hms string) time.Time {
		ts, err := time.Parse("15:04:05", hms)
		require.NoError(t, err)
		return time.Date(2025, 9, 20, ts.Hour(), ts.Minute(), ts.Second(), 0, time.UTC)
	}
	assert.Equal(t, 30*time.Second, svc.NextWait(at("10:00:10"), 30*time.Second))
	assert.Equal(t, 12*time.Second, svc.NextWait(at("10:04:50"), 30*time.Second))
	assert.Equal(t, 52*time.Second, svc.NextWait(at("10:04:10"), 2*time.Minute))
	assert.Equal(t, 5*time.Minute, svc.NextWait(at("10:00:02"), 10*time.Minute))
}

func TestPass_LongIntervalSeesEveryBarClose(t *testing.T) {
	yaml := strings.Replace(testYAML, "reload_secs: 0.05", "reload_secs: 120", 1)
	clk := &fakeClock{t: t0}
	svc, _, m := newClockedService(t, &flatSource{}, &staticLoader{yaml: yaml}, clk)
	require.Equal(t, 2*time.Minute, svc.doc.ReloadEvery)

	end := time.Date(2025, 9, 20, 11, 0, 0, 0, time.UTC)
	passes := 0
	for clk.Now().Before(end) {
		svc.Pass(context.Background())
		passes++
		clk.Add(svc.NextWait(clk.Now(), svc.doc.ReloadEvery))
	}

	// 12 five-minute bars, two instruments, one close tick each.
	assert.Equal(t, 24.0, testutil.ToFloat64(m.BarCloseFired))
	assert.Equal(t, float64(2*passes-24), testutil.ToFloat64(m.GatedTicks))
}

func TestPass_SlowFetchesStillCloseTheBar(t *testing.T) {
	clk := &fakeClock{t: t0}
	src := &flatSource{onFetch: func() { clk.Add(40 * time.Second) }}
	svc, rec, m := newClockedService(t, src, &staticLoader{yaml: testYAML}, clk)

	svc.Pass(context.Background())

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BarCloseFired), "second instrument is evaluated after the window but in the same pass")
	assert.Len(t, rec.actions, 2)
}
