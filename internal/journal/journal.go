// Package journal persists completed trades to SQLite for analysis and
// audit. It is the engine's trade sink: an exit is only confirmed once
// its row is written.
package journal

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"oibreakout/internal/model"
)

// Journal is the SQLite-backed trade sink.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (or creates) the journal database.
func Open(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS trades (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		trace_id      TEXT NOT NULL DEFAULT '',
		symbol        TEXT NOT NULL,
		direction     TEXT NOT NULL,
		qty           INTEGER NOT NULL,
		entry_qty     INTEGER NOT NULL,
		entry_price   REAL NOT NULL,
		exit_price    REAL NOT NULL,
		entry_time    DATETIME NOT NULL,
		exit_time     DATETIME NOT NULL,
		cause         TEXT NOT NULL,
		gross_pnl     REAL NOT NULL,
		charges       REAL NOT NULL,
		net_pnl       REAL NOT NULL,
		trailing_stop REAL NOT NULL,
		max_up        REAL NOT NULL,
		max_down      REAL NOT NULL,
		duration_sec  INTEGER NOT NULL,
		paper_trade   INTEGER NOT NULL,
		partial       INTEGER NOT NULL,
		created_at    DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_trades_symbol ON trades(symbol);
	CREATE INDEX IF NOT EXISTS idx_trades_exit_time ON trades(exit_time);
	CREATE INDEX IF NOT EXISTS idx_trades_cause ON trades(cause);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened trade journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// Record persists one completed trade (full exit or partial slice).
func (j *Journal) Record(rec model.CompletedTrade) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO trades (trace_id, symbol, direction, qty, entry_qty, entry_price, exit_price,
			entry_time, exit_time, cause, gross_pnl, charges, net_pnl,
			trailing_stop, max_up, max_down, duration_sec, paper_trade, partial)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID,
		rec.Symbol,
		rec.Direction,
		rec.Qty,
		rec.EntryQty,
		rec.EntryPrice,
		rec.ExitPrice,
		rec.EntryTime.Format(time.RFC3339),
		rec.ExitTime.Format(time.RFC3339),
		string(rec.Cause),
		rec.GrossPnL,
		rec.Charges,
		rec.NetPnL,
		rec.TrailingStop,
		rec.MaxUp,
		rec.MaxDown,
		int64(rec.Duration.Seconds()),
		rec.PaperTrade,
		rec.Partial,
	)
	return err
}

// Recent returns the last n trades, newest first.
func (j *Journal) Recent(n int) ([]model.CompletedTrade, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT trace_id, symbol, direction, qty, entry_qty, entry_price, exit_price,
			entry_time, exit_time, cause, gross_pnl, charges, net_pnl,
			trailing_stop, max_up, max_down, duration_sec, paper_trade, partial
		 FROM trades ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.CompletedTrade
	for rows.Next() {
		var rec model.CompletedTrade
		var entryTime, exitTime, cause string
		var durationSec int64
		if err := rows.Scan(
			&rec.TraceID, &rec.Symbol, &rec.Direction, &rec.Qty, &rec.EntryQty,
			&rec.EntryPrice, &rec.ExitPrice, &entryTime, &exitTime, &cause,
			&rec.GrossPnL, &rec.Charges, &rec.NetPnL,
			&rec.TrailingStop, &rec.MaxUp, &rec.MaxDown,
			&durationSec, &rec.PaperTrade, &rec.Partial,
		); err != nil {
			return nil, err
		}
		rec.EntryTime, _ = time.Parse(time.RFC3339, entryTime)
		rec.ExitTime, _ = time.Parse(time.RFC3339, exitTime)
		rec.Cause = model.ExitCause(cause)
		rec.Duration = time.Duration(durationSec) * time.Second
		out = append(out, rec)
	}
	return out, rows.Err()
}

// DailyPnL sums net P&L for trades exited on the given date (by the
// date's own timezone).
func (j *Journal) DailyPnL(day time.Time) (float64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)

	var pnl sql.NullFloat64
	err := j.db.QueryRow(
		`SELECT SUM(net_pnl) FROM trades WHERE exit_time >= ? AND exit_time < ?`,
		start.Format(time.RFC3339), end.Format(time.RFC3339),
	).Scan(&pnl)
	if err != nil {
		return 0, err
	}
	return pnl.Float64, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
