// Package marketdata defines the candle source contract shared by the
// Delta Exchange client and the synthetic generator.
package marketdata

import (
	"context"
	"fmt"
	"strings"
	"time"

	"option-monitor/internal/model"
)

// Source returns the most recent limit candles of symbol at resolution
// res, time-ascending and free of duplicates. The last candle may still
// be forming. An empty result is reported as model.ErrNoData.
type Source interface {
	Candles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error)

// Candles implements Source.
func (f SourceFunc) Candles(ctx context.Context, symbol string, res model.Resolution, limit int) ([]model.Candle, error) {
	return f(ctx, symbol, res, limit)
}

// ContractSymbol builds the exchange symbol of an option's own chart,
// e.g. C-BTC-60000-210925 for a BTC 60000 call expiring 2025-09-21.
// expiry is YYYY-MM-DD.
func ContractSymbol(side model.Side, underlying string, strike float64, expiry string) (string, error) {
	exp, err := time.Parse("2006-01-02", strings.TrimSpace(expiry))
	if err != nil {
		return "", fmt.Errorf("contract symbol: expiry %q: %w", expiry, err)
	}
	prefix := "C"
	if side == model.SidePut {
		prefix = "P"
	}
	return fmt.Sprintf("%s-%s-%d-%s", prefix, strings.ToUpper(underlying), int64(strike), exp.Format("020106")), nil
}
