package journal

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-monitor/internal/model"
	"option-monitor/internal/store/sqlite"
)

func stampedAction() model.Action {
	stage := 1
	return model.Action{
		Kind:      model.ActionEntryInitial,
		Side:      model.SideCall,
		Strike:    60000,
		SizeDelta: 0.005,
		Mark:      250.5,
		Note:      "short-term trend flip (option chart)",
		Stage:     &stage,
		TS:        time.Date(2025, 9, 20, 10, 5, 3, 0, time.UTC),
		TradeID:   "forward_test::BTC-2025-09-26-BULL-CALL-K60000",
		Direction: "BULL",
	}
}

func testContext() Context {
	return Context{
		RunID:      "run-1",
		Session:    "forward_test",
		Symbol:     "BTC",
		Expiry:     "2025-09-26",
		Instrument: "c60k",
		Short:      model.Snapshot{Trend: model.TrendUp, Momentum: 58.25, Histogram: 1.5},
		Long:       model.Snapshot{Trend: model.TrendDown, Momentum: 40, Histogram: -2},
	}
}

func TestNewRow(t *testing.T) {
	r := NewRow(stampedAction(), testContext())

	assert.Equal(t, int64(1758362703), r.TSEpoch)
	assert.Equal(t, "2025-09-20", r.Date)
	assert.Equal(t, "10:05:03 UTC", r.TimeUTC)
	assert.Equal(t, "2025-09-20 15:35:03 IST", r.TimeIST)
	assert.Equal(t, "ENTRY_INITIAL", r.Kind)
	assert.Equal(t, "BULL", r.Direction)
	assert.Equal(t, "CALL", r.Side)
	assert.Equal(t, int64(60000), r.Strike)
	require.NotNil(t, r.Stage)
	assert.Equal(t, 1, *r.Stage)
	assert.Equal(t, 1, r.STShortDir)
	assert.Equal(t, -1, r.STLongDir)
	assert.Equal(t, 58.25, r.RSI, "momentum comes from the short-term snapshot")
	assert.Equal(t, 1.5, r.MACDHist)
	assert.Equal(t, "c60k", r.Instrument)
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestCSVSink_HeaderOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trades.csv")
	s, err := NewCSVSink(path)
	require.NoError(t, err)

	ctx := context.Background()
	row := NewRow(stampedAction(), testContext())
	require.NoError(t, s.Write(ctx, row))
	row.Kind = "EXIT_STOP"
	row.Stage = nil
	require.NoError(t, s.Write(ctx, row))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	recs, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	require.Len(t, recs, 3)
	assert.Equal(t, model.LogRowHeader, recs[0])
	assert.Equal(t, "ENTRY_INITIAL", recs[1][10])
	assert.Equal(t, "0.005000", recs[1][15])
	assert.Equal(t, "250.50", recs[1][16])
	assert.Equal(t, "EXIT_STOP", recs[2][10])
	assert.Equal(t, "", recs[2][14])
}

func TestJSONLSink_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	s, err := NewJSONLSink(path)
	require.NoError(t, err)

	ctx := context.Background()
	row := NewRow(stampedAction(), testContext())
	require.NoError(t, s.Write(ctx, row))
	require.NoError(t, s.Write(ctx, row))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines int
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var got model.LogRow
		require.NoError(t, json.Unmarshal(sc.Bytes(), &got))
		assert.Equal(t, row.TradeID, got.TradeID)
		lines++
	}
	assert.Equal(t, 2, lines)
}

func TestSQLiteSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.db")
	w, err := sqlite.New(sqlite.WriterConfig{DBPath: path})
	require.NoError(t, err)
	s := NewSQLiteSink(w)

	ctx := context.Background()
	require.NoError(t, s.Write(ctx, NewRow(stampedAction(), testContext())))
	require.NoError(t, s.Close())

	r, err := sqlite.NewReader(path)
	require.NoError(t, err)
	defer r.Close()
	got, err := r.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].RunID)
}

type memSink struct {
	mu   sync.Mutex
	name string
	err  error
	rows []model.LogRow
}

func (m *memSink) Name() string { return m.name }

func (m *memSink) Write(_ context.Context, r model.LogRow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows = append(m.rows, r)
	return nil
}

func (m *memSink) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rows)
}

func TestMulti_ContainsFailures(t *testing.T) {
	bad := &memSink{name: "bad", err: errors.New("disk full")}
	good := &memSink{name: "good"}

	var failed []string
	m := NewMulti(bad, nil, good)
	m.OnError = func(sink string, err error) { failed = append(failed, sink) }

	require.NoError(t, m.Write(context.Background(), model.LogRow{TradeID: "t"}))
	assert.Equal(t, 1, good.count(), "later sinks still receive the row")
	assert.Equal(t, []string{"bad"}, failed)
	assert.Len(t, m.Sinks, 2)
	assert.NoError(t, m.Close())
}

func TestAsync_DrainsInOrderAndFlushesOnShutdown(t *testing.T) {
	sink := &memSink{name: "mem"}
	a := NewAsync(sink, 16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	for i := 0; i < 10; i++ {
		require.NoError(t, a.Write(ctx, model.LogRow{TSEpoch: int64(i)}))
	}
	cancel()
	<-done

	require.Equal(t, 10, sink.count())
	for i, r := range sink.rows {
		assert.Equal(t, int64(i), r.TSEpoch)
	}
	assert.Zero(t, a.Pending())
	assert.Equal(t, uint64(10), a.Written())
}

func TestAsync_DropsOnOverflow(t *testing.T) {
	sink := &memSink{name: "mem"}
	a := NewAsync(sink, 4)

	drops := 0
	a.OnDrop = func() { drops++ }

	ctx := context.Background()
	for i := 0; i < 6; i++ {
		require.NoError(t, a.Write(ctx, model.LogRow{TSEpoch: int64(i)}))
	}
	assert.Equal(t, uint64(2), a.Dropped())
	assert.Equal(t, 2, drops)

	assert.Equal(t, 4, a.Flush(ctx))
	assert.Equal(t, int64(3), sink.rows[3].TSEpoch, "oldest rows are kept")
	assert.Equal(t, "async(mem)", a.Name())
}
