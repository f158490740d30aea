// Package journal records the engine's decisions and executed trades for
// later review. Journaling is best-effort: a write failure is logged by the
// caller and never blocks a trade decision.
package journal

import (
	"time"
)

// DecisionRecord is one state-machine verdict on a crossover.
type DecisionRecord struct {
	ID        string // ULID, time-sortable
	Time      time.Time
	Symbol    string
	Kind      string // crossover kind
	Outcome   string // decision outcome
	MarkerTS  int64  // marker timestamp after the decision
	Detail    string
}

// TradeRecord is one executed market order.
type TradeRecord struct {
	ID       string
	Time     time.Time
	Symbol   string
	Side     string // "buy" or "sell"
	Qty      float64
	AvgPrice float64
	Detail   string
}

// Journal persists decision and trade records.
type Journal interface {
	RecordDecision(DecisionRecord) error
	RecordTrade(TradeRecord) error
	Close() error
}

// Noop discards all records; used when journaling is disabled.
type Noop struct{}

func (Noop) RecordDecision(DecisionRecord) error { return nil }
func (Noop) RecordTrade(TradeRecord) error       { return nil }
func (Noop) Close() error                        { return nil }
