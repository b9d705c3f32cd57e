package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strconv"

	"option-monitor/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to the actions table for the HTTP API.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

const selectCols = `ts_epoch, date, time_utc, time_ist, run_id, trade_id, session, symbol, expiry,
	instrument, kind, direction, side, strike, stage, size, mark, note, st_short_dir, st_long_dir, rsi, macd_hist`

// Recent returns up to limit rows, newest first.
func (r *Reader) Recent(ctx context.Context, limit int) ([]model.LogRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectCols+` FROM actions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query actions: %w", err)
	}
	return scanRows(rows)
}

// ByTradeID returns every row of one trade id in insertion order.
func (r *Reader) ByTradeID(ctx context.Context, tradeID string) ([]model.LogRow, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectCols+` FROM actions WHERE trade_id = ? ORDER BY id ASC`, tradeID)
	if err != nil {
		return nil, fmt.Errorf("sqlite query actions by trade_id: %w", err)
	}
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]model.LogRow, error) {
	defer rows.Close()

	var out []model.LogRow
	for rows.Next() {
		var (
			row        model.LogRow
			stage      sql.NullInt64
			size, mark string
			note       sql.NullString
		)
		if err := rows.Scan(&row.TSEpoch, &row.Date, &row.TimeUTC, &row.TimeIST, &row.RunID, &row.TradeID,
			&row.Session, &row.Symbol, &row.Expiry, &row.Instrument, &row.Kind, &row.Direction, &row.Side,
			&row.Strike, &stage, &size, &mark, &note, &row.STShortDir, &row.STLongDir, &row.RSI, &row.MACDHist); err != nil {
			return nil, fmt.Errorf("sqlite scan actions: %w", err)
		}
		if stage.Valid {
			s := int(stage.Int64)
			row.Stage = &s
		}
		row.Size, _ = strconv.ParseFloat(size, 64)
		row.Mark, _ = strconv.ParseFloat(mark, 64)
		row.Note = note.String
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close closes the database.
func (r *Reader) Close() error {
	return r.db.Close()
}
