package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"option-monitor/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "logs/trades.db"
}

// Writer appends trade log rows to the actions table. It holds a single
// connection so inserts are serialized.
type Writer struct {
	db *sql.DB
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.DBPath))
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS actions (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			ts_epoch     INTEGER NOT NULL,
			date         TEXT    NOT NULL,
			time_utc     TEXT    NOT NULL,
			time_ist     TEXT    NOT NULL,
			run_id       TEXT    NOT NULL,
			trade_id     TEXT    NOT NULL,
			session      TEXT    NOT NULL,
			symbol       TEXT    NOT NULL,
			expiry       TEXT    NOT NULL,
			instrument   TEXT    NOT NULL,
			kind         TEXT    NOT NULL,
			direction    TEXT    NOT NULL,
			side         TEXT    NOT NULL,
			strike       INTEGER NOT NULL,
			stage        INTEGER,
			size         TEXT    NOT NULL,
			mark         TEXT    NOT NULL,
			note         TEXT,
			st_short_dir INTEGER,
			st_long_dir  INTEGER,
			rsi          REAL,
			macd_hist    REAL
		);

		CREATE INDEX IF NOT EXISTS idx_actions_trade_id ON actions(trade_id);
		CREATE INDEX IF NOT EXISTS idx_actions_ts ON actions(ts_epoch);
	`)
	return err
}

const insertSQL = `
	INSERT INTO actions (ts_epoch, date, time_utc, time_ist, run_id, trade_id, session, symbol, expiry,
		instrument, kind, direction, side, strike, stage, size, mark, note, st_short_dir, st_long_dir, rsi, macd_hist)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`

// Insert appends one row.
func (w *Writer) Insert(ctx context.Context, r model.LogRow) error {
	if _, err := w.db.ExecContext(ctx, insertSQL, args(r)...); err != nil {
		return fmt.Errorf("sqlite insert action: %w", err)
	}
	return nil
}

// InsertBatch appends rows in a single transaction.
func (w *Writer) InsertBatch(ctx context.Context, rows []model.LogRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, args(r)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("sqlite insert action batch: %w", err)
		}
	}

	return tx.Commit()
}

func args(r model.LogRow) []any {
	var stage sql.NullInt64
	if r.Stage != nil {
		stage = sql.NullInt64{Int64: int64(*r.Stage), Valid: true}
	}
	return []any{
		r.TSEpoch, r.Date, r.TimeUTC, r.TimeIST, r.RunID, r.TradeID, r.Session, r.Symbol, r.Expiry,
		r.Instrument, r.Kind, r.Direction, r.Side, r.Strike, stage, r.SizeString(), r.MarkString(), r.Note,
		r.STShortDir, r.STLongDir, r.RSI, r.MACDHist,
	}
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}
