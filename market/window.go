package market

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrEmptyCandles is returned when a window is initialized with no data.
	ErrEmptyCandles = errors.New("market: empty candle slice")

	// ErrIndexOutOfRange is returned by At for indexes outside the window.
	ErrIndexOutOfRange = errors.New("market: candle index out of range")

	// ErrOutOfOrder is returned when an upserted candle is neither an update
	// of the newest bar nor the next contiguous bar. It signals a gap in the
	// feed and the current cycle must be aborted.
	ErrOutOfOrder = errors.New("market: candle out of order")
)

// UpsertResult classifies what Upsert did with a candle.
type UpsertResult int

const (
	// Added means the candle was appended as a new bar.
	Added UpsertResult = iota
	// Updated means the candle replaced the still-forming newest bar.
	Updated
	// OutOfOrder means the candle does not follow the newest bar.
	OutOfOrder
)

func (r UpsertResult) String() string {
	switch r {
	case Added:
		return "added"
	case Updated:
		return "updated"
	case OutOfOrder:
		return "out-of-order"
	}
	return fmt.Sprintf("UpsertResult(%d)", int(r))
}

// Window is a time-ordered, capacity-bounded sequence of fixed-interval
// candles for one (symbol, interval) pair. It is owned by a single engine
// instance and is not safe for concurrent use.
type Window struct {
	interval time.Duration
	capacity int // 0 = unbounded
	candles  []Candle
}

// NewWindow creates an empty window. capacity 0 means unbounded.
func NewWindow(interval time.Duration, capacity int) *Window {
	return &Window{
		interval: interval,
		capacity: capacity,
		candles:  make([]Candle, 0, capacity),
	}
}

// Init replaces all window state with the given candles, keeping only the
// most recent capacity bars when over capacity. It returns the retained
// count. The input must be non-empty, strictly ordered and contiguous.
func (w *Window) Init(candles []Candle) (int, error) {
	if len(candles) == 0 {
		return 0, ErrEmptyCandles
	}
	for i := 1; i < len(candles); i++ {
		if candles[i].OpenTime != candles[i-1].CloseTime+1 {
			return 0, fmt.Errorf("%w: gap between open %d and open %d",
				ErrOutOfOrder, candles[i-1].OpenTime, candles[i].OpenTime)
		}
	}

	if w.capacity > 0 && len(candles) > w.capacity {
		candles = candles[len(candles)-w.capacity:]
	}
	w.candles = append(w.candles[:0], candles...)
	return len(w.candles), nil
}

// Upsert folds one candle into the window.
//
// An empty window always accepts the candle. Otherwise the candle must
// either share the newest bar's open time (the still-forming bar being
// refreshed, Updated) or start exactly one interval later (a freshly closed
// bar, Added). Anything else is OutOfOrder and fatal to the caller's cycle.
func (w *Window) Upsert(c Candle) (UpsertResult, error) {
	if len(w.candles) == 0 {
		w.candles = append(w.candles, c)
		return Added, nil
	}

	last := w.candles[len(w.candles)-1]
	switch {
	case c.OpenTime == last.OpenTime:
		w.candles[len(w.candles)-1] = c
		return Updated, nil

	case c.OpenTime == last.OpenTime+w.interval.Milliseconds() && c.OpenTime == last.CloseTime+1:
		w.candles = append(w.candles, c)
		if w.capacity > 0 && len(w.candles) > w.capacity {
			w.candles = w.candles[1:]
		}
		return Added, nil

	default:
		return OutOfOrder, fmt.Errorf("%w: last open %d, got open %d",
			ErrOutOfOrder, last.OpenTime, c.OpenTime)
	}
}

// At returns the candle at index i. Negative indexes count from the end, so
// At(-1) is the newest bar. An index outside the window is a contract
// violation, not a silent default.
func (w *Window) At(i int) (Candle, error) {
	n := len(w.candles)
	if i < 0 {
		i += n
	}
	if i < 0 || i >= n {
		return Candle{}, fmt.Errorf("%w: index %d, length %d", ErrIndexOutOfRange, i, n)
	}
	return w.candles[i], nil
}

// Last returns the newest candle.
func (w *Window) Last() (Candle, error) {
	return w.At(-1)
}

// Len returns the number of candles currently held.
func (w *Window) Len() int {
	return len(w.candles)
}

// Closes returns the closing prices of all candles in window order. The
// slice is freshly allocated; callers may keep it.
func (w *Window) Closes() []float64 {
	closes := make([]float64, len(w.candles))
	for i, c := range w.candles {
		closes[i] = c.Close
	}
	return closes
}

// OpenTimes returns the open timestamps of all candles in window order.
func (w *Window) OpenTimes() []int64 {
	ts := make([]int64, len(w.candles))
	for i, c := range w.candles {
		ts[i] = c.OpenTime
	}
	return ts
}
