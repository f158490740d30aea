package signal

import (
	"fmt"

	"go.uber.org/zap"
)

// Status is the lifecycle of a recorded crossover. A record starts Ignored
// and mutates exactly once to a terminal value when the engine acts on it.
type Status int

const (
	StatusIgnored Status = iota
	StatusBought
	StatusSold
	StatusFailed
	StatusHandled
)

func (s Status) String() string {
	switch s {
	case StatusIgnored:
		return "ignored"
	case StatusBought:
		return "bought"
	case StatusSold:
		return "sold"
	case StatusFailed:
		return "failed"
	case StatusHandled:
		return "handled"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ParseStatus restores a Status from its string form.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusIgnored, StatusBought, StatusSold, StatusFailed, StatusHandled} {
		if st.String() == s {
			return st, nil
		}
	}
	return 0, fmt.Errorf("signal: unknown status %q", s)
}

// Record is one ledger entry in the crossover history.
type Record struct {
	ID        int // window index at observation time
	Kind      Kind
	Status    Status
	Timestamp int64
}

// Action is History.Observe's verdict on a candidate crossover.
type Action int

const (
	// FirstEver: history was empty, candidate appended.
	FirstEver Action = iota
	// Appended: candidate is newer and the opposite polarity of the last
	// record, appended.
	Appended
	// SamePolarityIgnored: candidate repeats the last record's polarity
	// without an intervening opposite cross; suppressed as flicker.
	SamePolarityIgnored
	// Stale: candidate is not newer than the last record; nothing changed.
	Stale
)

func (a Action) String() string {
	switch a {
	case FirstEver:
		return "first-ever"
	case Appended:
		return "appended"
	case SamePolarityIgnored:
		return "same-polarity-ignored"
	case Stale:
		return "stale"
	}
	return fmt.Sprintf("Action(%d)", int(a))
}

// History is the ordered, capacity-bounded ledger of crossovers observed
// over a window's lifetime. Not safe for concurrent use; the engine is the
// single writer.
type History struct {
	maxCount int
	records  []Record
	log      *zap.Logger
}

// NewHistory creates a history retaining at most maxCount records.
func NewHistory(maxCount int, log *zap.Logger) *History {
	if log == nil {
		log = zap.NewNop()
	}
	return &History{maxCount: maxCount, log: log}
}

// Observe folds one detected crossover into the ledger.
//
// Ordering is judged on candle timestamps rather than window indexes:
// eviction slides every index left, so only the timestamp stays monotonic
// over a window's lifetime.
//
// The polarity comparison deliberately ignores the zero-axis qualifier: a
// bull-above-zero immediately after a bull-below-zero is still suppressed as
// the same trend leg.
func (h *History) Observe(c Crossover) Action {
	if len(h.records) == 0 {
		h.append(c)
		return FirstEver
	}

	last := h.records[len(h.records)-1]
	switch {
	case c.Timestamp > last.Timestamp && c.Kind.Bullish() != last.Kind.Bullish():
		h.append(c)
		return Appended

	case c.Timestamp > last.Timestamp:
		h.log.Error("duplicate-direction crossover suppressed",
			zap.Int64("timestamp", c.Timestamp),
			zap.Stringer("kind", c.Kind),
			zap.Int64("lastTimestamp", last.Timestamp),
			zap.Stringer("lastKind", last.Kind))
		return SamePolarityIgnored

	case c.Timestamp == last.Timestamp:
		return Stale

	default:
		// The detector should never hand us an older crossover than it
		// already has. Suspicious but not worth killing the run over.
		h.log.Error("out-of-order crossover observation",
			zap.Int64("timestamp", c.Timestamp),
			zap.Int64("lastTimestamp", last.Timestamp))
		return Stale
	}
}

func (h *History) append(c Crossover) {
	h.records = append(h.records, Record{
		ID:        c.Index,
		Kind:      c.Kind,
		Status:    StatusIgnored,
		Timestamp: c.Timestamp,
	})
	if h.maxCount > 0 && len(h.records) > h.maxCount {
		h.records = h.records[len(h.records)-h.maxCount:]
	}
}

// Last returns the most recent record, if any.
func (h *History) Last() (Record, bool) {
	if len(h.records) == 0 {
		return Record{}, false
	}
	return h.records[len(h.records)-1], true
}

// MarkLast moves the most recent record from Ignored to a terminal status.
// A record's status mutates at most once; later calls are rejected.
func (h *History) MarkLast(s Status) error {
	if len(h.records) == 0 {
		return fmt.Errorf("signal: no record to mark")
	}
	last := &h.records[len(h.records)-1]
	if last.Status != StatusIgnored {
		return fmt.Errorf("signal: record %d already %s", last.ID, last.Status)
	}
	last.Status = s
	return nil
}

// Len returns the number of retained records.
func (h *History) Len() int {
	return len(h.records)
}

// Records returns a copy of the ledger in observation order.
func (h *History) Records() []Record {
	out := make([]Record, len(h.records))
	copy(out, h.records)
	return out
}
