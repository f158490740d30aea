package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbeat/macdbot/exchange"
	"github.com/finbeat/macdbot/exchange/sim"
	"github.com/finbeat/macdbot/market"
	"github.com/finbeat/macdbot/marker"
	"github.com/finbeat/macdbot/signal"
)

// flakySource fails every fetch and counts the attempts.
type flakySource struct {
	calls int
	err   error
}

func (f *flakySource) Candles(context.Context, string, string, int64, int) ([]market.Candle, error) {
	f.calls++
	return nil, f.err
}

// failSaveStore loads normally but refuses every write.
type failSaveStore struct {
	marker.Store
	saves int
}

func (s *failSaveStore) Save(marker.Marker) error {
	s.saves++
	return errors.New("disk full")
}

func newRunnerEngine(t *testing.T, source exchange.CandleSource, broker *sim.Broker, store marker.Store) *Engine {
	t.Helper()

	sm := newTestMachine(t, broker, store)
	e, err := New(Config{
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Interval:   "1m",
	}, source, sm, nil, nil, nil)
	require.NoError(t, err)
	return e
}

// flatThenRiseCandles is warmup-length flat history plus one rising close,
// so the bullish crossover lands exactly on the newest bar.
func flatThenRiseCandles() []market.Candle {
	closes := make([]float64, 42)
	for i := range closes {
		closes[i] = 100
	}
	closes[41] = 101
	return minuteCandles(closes)
}

func TestRunnerRetriesTransientErrors(t *testing.T) {
	source := &flakySource{err: errors.New("rate limited")}
	e := newRunnerEngine(t, source, newTestBroker(1000), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := NewRunner(e, 5*time.Millisecond, nil).Run(ctx)
	require.NoError(t, err, "transient fetch errors never stop the loop")
	assert.Greater(t, source.calls, 1, "loop kept ticking after the failure")
}

func TestRunnerStopsOnMarkerWriteError(t *testing.T) {
	candles := flatThenRiseCandles()
	source := &fakeSource{batches: [][]market.Candle{
		candles[:41],
		{candles[40], candles[41]},
	}}
	broker := newTestBroker(1000)
	broker.SetPrice(101)
	store := &failSaveStore{Store: marker.NewMemoryStore()}
	e := newRunnerEngine(t, source, broker, store)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := NewRunner(e, 5*time.Millisecond, nil).Run(ctx)
	require.ErrorIs(t, err, ErrMarkerWrite)
	assert.Equal(t, 1, store.saves, "loop stopped after the first failed write")
}

func TestRunnerStopsWhenMarkerAhead(t *testing.T) {
	candles := flatThenRiseCandles()
	source := &fakeSource{batches: [][]market.Candle{
		candles[:41],
		{candles[40], candles[41]},
	}}
	broker := newTestBroker(1000)
	broker.SetPrice(101)

	store := marker.NewMemoryStore()
	require.NoError(t, store.Save(marker.Marker{
		Timestamp: 9_999_999_999_999,
		Kind:      signal.BearAboveZero,
		Outcome:   signal.StatusSold,
	}))
	e := newRunnerEngine(t, source, broker, store)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := NewRunner(e, 5*time.Millisecond, nil).Run(ctx)
	require.ErrorIs(t, err, ErrMarkerAhead)
	assert.InDelta(t, 0.0, broker.Holding().Amount, 1e-9, "no order placed")
}

func TestRunnerCancelExitsBetweenTicks(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = 100
	}
	source := &fakeSource{batches: [][]market.Candle{minuteCandles(closes)}}
	e := newRunnerEngine(t, source, newTestBroker(1000), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewRunner(e, time.Hour, nil).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls, "the in-flight tick completes before the stop is honored")
}
