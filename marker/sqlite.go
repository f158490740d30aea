package marker

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/finbeat/macdbot/signal"
)

const schema = `
CREATE TABLE IF NOT EXISTS cross_marker (
	symbol TEXT PRIMARY KEY,
	timestamp INTEGER NOT NULL,
	kind TEXT NOT NULL,
	outcome TEXT NOT NULL
);
`

// SQLiteStore keeps the marker in a single SQLite row per symbol. A one-row
// upsert is a single transaction, which gives the crash atomicity the
// marker contract requires.
type SQLiteStore struct {
	db     *sql.DB
	symbol string
	owned  bool
}

// NewSQLite opens (creating if needed) the marker table at path, scoped to
// one trading symbol.
func NewSQLite(path, symbol string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("marker: open %s: %w", path, err)
	}
	s, err := NewSQLiteWithDB(db, symbol)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewSQLiteWithDB uses an existing database handle, for callers that share
// one file between the marker and the journal. Close leaves the handle open.
func NewSQLiteWithDB(db *sql.DB, symbol string) (*SQLiteStore, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("marker: create schema: %w", err)
	}
	return &SQLiteStore{db: db, symbol: symbol}, nil
}

func (s *SQLiteStore) Load() (Marker, bool, error) {
	var (
		ts            int64
		kind, outcome string
	)
	err := s.db.QueryRow(
		`SELECT timestamp, kind, outcome FROM cross_marker WHERE symbol = ?`, s.symbol,
	).Scan(&ts, &kind, &outcome)
	if errors.Is(err, sql.ErrNoRows) {
		return Marker{}, false, nil
	}
	if err != nil {
		return Marker{}, false, fmt.Errorf("marker: load: %w", err)
	}

	k, err := signal.ParseKind(kind)
	if err != nil {
		return Marker{}, false, fmt.Errorf("marker: corrupt kind: %w", err)
	}
	st, err := signal.ParseStatus(outcome)
	if err != nil {
		return Marker{}, false, fmt.Errorf("marker: corrupt outcome: %w", err)
	}

	return Marker{Timestamp: ts, Kind: k, Outcome: st}, true, nil
}

func (s *SQLiteStore) Save(m Marker) error {
	_, err := s.db.Exec(`
		INSERT INTO cross_marker (symbol, timestamp, kind, outcome)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			timestamp = excluded.timestamp,
			kind = excluded.kind,
			outcome = excluded.outcome`,
		s.symbol, m.Timestamp, m.Kind.String(), m.Outcome.String(),
	)
	if err != nil {
		return fmt.Errorf("marker: save: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
