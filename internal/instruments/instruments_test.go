package instruments

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-monitor/internal/model"
)

const sampleYAML = `
session: forward_test
symbol: BTC
expiry: 2025-09-21
reload_secs: 15
defaults:
  initial_tranche_size: 0.01
  reward_multiplier: 1.5
instruments:
  - name: btc_c_60000
    side: CALL
    strike: 60000
  - name: btc_p_58000
    side: put
    strike: "58000"
    trail_drop_pct: 0.3
    act_only_on_closed_bars: false
  - name: custom
    side: C
    strike: 61000
    contract: C-BTC-61000-280925
    initial_tranche_size: 0.002
`

func TestParse_DefaultsAndOverrides(t *testing.T) {
	doc, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "forward_test", doc.Session)
	assert.Equal(t, "BTC", doc.Symbol)
	assert.Equal(t, "2025-09-21", doc.Expiry)
	assert.Equal(t, 15*time.Second, doc.ReloadEvery)
	assert.Equal(t, model.Res5m, doc.ShortResolution)
	assert.Equal(t, model.Res15m, doc.LongResolution)
	assert.Equal(t, DefaultCandleLimit, doc.CandleLimit)
	require.Len(t, doc.Instruments, 3)

	call := doc.Instruments[0]
	require.NoError(t, call.Err)
	assert.Equal(t, "btc_c_60000", call.Name)
	assert.Equal(t, "C-BTC-60000-210925", call.Contract)
	assert.Equal(t, model.SideCall, call.Params.Side)
	assert.Equal(t, 60000.0, call.Params.Strike)
	assert.Equal(t, 0.01, call.Params.InitialTrancheSize)
	assert.Equal(t, 1.5, call.Params.RewardMultiplier)
	assert.Equal(t, 0.25, call.Params.TrailingDropFraction)
	assert.Equal(t, 55.0, call.Params.MomentumConfirmThreshold)
	assert.True(t, call.Params.ActOnlyOnClosedBars)

	put := doc.Instruments[1]
	require.NoError(t, put.Err)
	assert.Equal(t, model.SidePut, put.Params.Side)
	assert.Equal(t, 58000.0, put.Params.Strike)
	assert.Equal(t, 0.3, put.Params.TrailingDropFraction, "legacy key maps to trailing_drop_fraction")
	assert.False(t, put.Params.ActOnlyOnClosedBars)
	assert.Equal(t, "P-BTC-58000-210925", put.Contract)

	custom := doc.Instruments[2]
	require.NoError(t, custom.Err)
	assert.Equal(t, "C-BTC-61000-280925", custom.Contract)
	assert.Equal(t, 0.002, custom.Params.InitialTrancheSize)
}

func TestParse_EmptyDocumentUsesDefaults(t *testing.T) {
	doc, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSession, doc.Session)
	assert.Equal(t, DefaultSymbol, doc.Symbol)
	assert.Equal(t, DefaultReloadSecs*time.Second, doc.ReloadEvery)
	assert.Empty(t, doc.Instruments)
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := map[string]string{
		"missing name":     "instruments:\n  - side: CALL\n    strike: 1\n",
		"bad side":         "instruments:\n  - name: a\n    side: STRADDLE\n    strike: 1\n",
		"negative reload":  "reload_secs: -5\n",
		"instruments map":  "instruments:\n  a: 1\n",
		"malformed yaml":   "instruments: [\n",
		"bad resolution":   "short_resolution: 7m\n",
		"tiny candle_limit": "candle_limit: 1\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.ErrorIs(t, err, ErrInvalidDocument)
		})
	}
}

func TestParse_InvalidInstrumentIsIsolated(t *testing.T) {
	body := `
expiry: "2025-09-21"
instruments:
  - name: ok
    side: CALL
    strike: 60000
  - name: bad_tranche
    side: CALL
    strike: 60000
    initial_tranche_size: 0
  - name: no_strike
    side: PUT
`
	doc, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, doc.Instruments, 3)
	assert.NoError(t, doc.Instruments[0].Err)
	assert.ErrorIs(t, doc.Instruments[1].Err, ErrInvalidInstrument)
	assert.ErrorIs(t, doc.Instruments[2].Err, ErrInvalidInstrument)

	valid := doc.Valid()
	require.Len(t, valid, 1)
	assert.Equal(t, "ok", valid[0].Name)
}

func TestParse_MissingExpiryNeedsContract(t *testing.T) {
	body := `
instruments:
  - name: derived
    side: CALL
    strike: 60000
  - name: explicit
    side: CALL
    strike: 60000
    contract: BTCUSD
`
	doc, err := Parse([]byte(body))
	require.NoError(t, err)
	assert.ErrorIs(t, doc.Instruments[0].Err, ErrInvalidInstrument)
	assert.NoError(t, doc.Instruments[1].Err)
}

func TestParse_DuplicateNameLastWins(t *testing.T) {
	body := `
expiry: "2025-09-21"
instruments:
  - {name: a, side: CALL, strike: 1}
  - {name: a, side: PUT, strike: 2}
`
	doc, err := Parse([]byte(body))
	require.NoError(t, err)
	require.Len(t, doc.Instruments, 1)
	assert.Equal(t, model.SidePut, doc.Instruments[0].Params.Side)
	assert.Equal(t, 2.0, doc.Instruments[0].Params.Strike)
}

func TestLoader_Changed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	l := NewLoader(path)
	assert.True(t, l.Changed(), "never loaded")
	_, err := l.Load()
	require.NoError(t, err)
	assert.False(t, l.Changed())

	later := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(path, later, later))
	assert.True(t, l.Changed())
}

func TestLoader_MissingFile(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "nope.yaml"))
	_, err := l.Load()
	assert.Error(t, err)
	assert.False(t, l.Changed())
}

func TestWatch_SignalsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "instruments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, ch) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML+"\n"), 0o644))

	select {
	case <-ch:
	case <-time.After(3 * time.Second):
		t.Fatal("no reload signal")
	}
	cancel()
	assert.NoError(t, <-done)
}
