package backtest

import (
	"fmt"

	"github.com/finbeat/macdbot/market"
	"github.com/finbeat/macdbot/market/archive"
)

// CandleFeed yields candles (typically from a dataset) one at a time.
// Implementations should be deterministic and return (ok=false, err=nil) at EOF.
type CandleFeed interface {
	Next() (c market.Candle, ok bool, err error)
	Close() error
}

// SliceFeed replays an in-memory candle slice.
type SliceFeed struct {
	candles []market.Candle
	pos     int
}

// NewSliceFeed wraps candles in a feed. The slice is not copied.
func NewSliceFeed(candles []market.Candle) *SliceFeed {
	return &SliceFeed{candles: candles}
}

// NewArchiveFeed loads every candle CSV under dir, in lexical file order.
func NewArchiveFeed(dir string) (*SliceFeed, error) {
	candles, err := archive.LoadAll(dir)
	if err != nil {
		return nil, fmt.Errorf("backtest: load archive: %w", err)
	}
	return NewSliceFeed(candles), nil
}

func (f *SliceFeed) Next() (market.Candle, bool, error) {
	if f.pos >= len(f.candles) {
		return market.Candle{}, false, nil
	}
	c := f.candles[f.pos]
	f.pos++
	return c, true, nil
}

func (f *SliceFeed) Close() error { return nil }
