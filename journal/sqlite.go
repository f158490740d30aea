package journal

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/finbeat/macdbot/pkg/id"
)

// SQLite journals decisions and trades into two tables. The marker store
// can share the same database file via DB().
type SQLite struct {
	db    *sql.DB
	owned bool
}

func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: create schema: %w", err)
	}
	return &SQLite{db: db, owned: true}, nil
}

// DB exposes the underlying handle so the marker store can share the file.
func (j *SQLite) DB() *sql.DB {
	return j.db
}

func (j *SQLite) RecordDecision(d DecisionRecord) error {
	if d.ID == "" {
		d.ID = id.New()
	}
	_, err := j.db.Exec(`
		INSERT INTO decisions
		(decision_id, time, symbol, kind, outcome, marker_ts, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Time, d.Symbol, d.Kind, d.Outcome, d.MarkerTS, d.Detail,
	)
	return err
}

func (j *SQLite) RecordTrade(t TradeRecord) error {
	if t.ID == "" {
		t.ID = id.New()
	}
	_, err := j.db.Exec(`
		INSERT INTO trades
		(trade_id, time, symbol, side, qty, avg_price, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Time, t.Symbol, t.Side, t.Qty, t.AvgPrice, t.Detail,
	)
	return err
}

func (j *SQLite) Close() error {
	if !j.owned {
		return nil
	}
	return j.db.Close()
}
