package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finbeat/macdbot/exchange"
	"github.com/finbeat/macdbot/exchange/sim"
	"github.com/finbeat/macdbot/marker"
	"github.com/finbeat/macdbot/signal"
)

// stubExec returns a canned order result and counts calls.
type stubExec struct {
	res   exchange.OrderResult
	err   error
	buys  int
	sells int
}

func (s *stubExec) BuyMarket(context.Context, string, float64) (exchange.OrderResult, error) {
	s.buys++
	return s.res, s.err
}

func (s *stubExec) SellMarket(context.Context, string, float64) (exchange.OrderResult, error) {
	s.sells++
	return s.res, s.err
}

func newTestMachine(t *testing.T, broker *sim.Broker, store marker.Store) *StateMachine {
	t.Helper()

	if store == nil {
		store = marker.NewMemoryStore()
	}
	m, err := NewStateMachine(StateMachineConfig{
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Executor:   broker,
		Balances:   broker,
		Params:     broker,
		Store:      store,
	})
	require.NoError(t, err)
	return m
}

func newTestBroker(cash float64) *sim.Broker {
	return sim.NewBroker("BTCUSDT", "BTC", "USDT", cash, exchange.Params{MinQty: 0.001})
}

func TestDecideNoSignal(t *testing.T) {
	m := newTestMachine(t, newTestBroker(1000), nil)

	d, err := m.Decide(context.Background(), nil, 100)
	require.NoError(t, err)
	assert.Equal(t, NoSignal, d.Outcome)
	assert.False(t, d.MarkerWritten)
	_, set := m.Marker()
	assert.False(t, set, "no marker written without a signal")
}

func TestDecideFirstBullishBuys(t *testing.T) {
	broker := newTestBroker(1000)
	broker.SetPrice(100)
	store := marker.NewMemoryStore()
	m := newTestMachine(t, broker, store)

	cand := &signal.Crossover{Index: 50, Kind: signal.BullBelowZero, Timestamp: 1700000000000}
	d, err := m.Decide(context.Background(), cand, 100)
	require.NoError(t, err)

	assert.Equal(t, Bought, d.Outcome)
	require.NotNil(t, d.Order)
	assert.Equal(t, exchange.Filled, d.Order.Status)
	// Full quote balance at price 100, stepped to the 0.001 lot.
	assert.InDelta(t, 10.0, d.Order.ExecutedQty, 1e-9)
	assert.True(t, d.MarkerWritten)

	got, ok, err := store.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cand.Timestamp, got.Timestamp)
	assert.Equal(t, signal.BullBelowZero, got.Kind)
	assert.Equal(t, signal.StatusBought, got.Outcome)
}

func TestDecideBearishSellsHoldings(t *testing.T) {
	broker := newTestBroker(1000)
	broker.SetPrice(100)
	_, err := broker.BuyMarket(context.Background(), "BTCUSDT", 5)
	require.NoError(t, err)

	m := newTestMachine(t, broker, nil)

	cand := &signal.Crossover{Index: 51, Kind: signal.BearAboveZero, Timestamp: 1700000060000}
	d, err := m.Decide(context.Background(), cand, 100)
	require.NoError(t, err)

	assert.Equal(t, Sold, d.Outcome)
	assert.InDelta(t, 5.0, d.Order.ExecutedQty, 1e-9)
	assert.Equal(t, 0.0, broker.Holding().Amount)
}

func TestDecideInsufficientBalanceStillAdvancesMarker(t *testing.T) {
	// No holdings to sell: the sized quantity steps to zero and the signal
	// is consumed without an order, so the same signal cannot retrigger.
	broker := newTestBroker(1000)
	broker.SetPrice(100)
	store := marker.NewMemoryStore()
	m := newTestMachine(t, broker, store)

	cand := &signal.Crossover{Index: 10, Kind: signal.BearBelowZero, Timestamp: 1700000000000}
	d, err := m.Decide(context.Background(), cand, 100)
	require.NoError(t, err)

	assert.Equal(t, Ignored, d.Outcome)
	assert.Equal(t, exchange.InsufficientBalance, d.Order.Status)
	assert.True(t, d.MarkerWritten)

	got, ok, _ := store.Load()
	require.True(t, ok)
	assert.Equal(t, signal.StatusHandled, got.Outcome)
}

func TestDecideRejectedOrderIsFailedButHandled(t *testing.T) {
	broker := newTestBroker(1000)
	broker.SetPrice(100)
	store := marker.NewMemoryStore()

	m, err := NewStateMachine(StateMachineConfig{
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Executor:   &stubExec{res: exchange.OrderResult{Status: exchange.Rejected, Message: "filter failure"}},
		Balances:   broker,
		Params:     broker,
		Store:      store,
	})
	require.NoError(t, err)

	cand := &signal.Crossover{Index: 10, Kind: signal.BullAboveZero, Timestamp: 42}
	d, err := m.Decide(context.Background(), cand, 100)
	require.NoError(t, err)

	assert.Equal(t, Failed, d.Outcome)
	assert.True(t, d.MarkerWritten, "a structurally failing order is recorded as handled")

	got, ok, _ := store.Load()
	require.True(t, ok)
	assert.Equal(t, signal.StatusFailed, got.Outcome)
}

func TestDecideTransportErrorLeavesMarkerUntouched(t *testing.T) {
	broker := newTestBroker(1000)
	store := marker.NewMemoryStore()

	m, err := NewStateMachine(StateMachineConfig{
		Symbol:     "BTCUSDT",
		BaseAsset:  "BTC",
		QuoteAsset: "USDT",
		Executor:   &stubExec{err: errors.New("connection reset")},
		Balances:   broker,
		Params:     broker,
		Store:      store,
	})
	require.NoError(t, err)

	cand := &signal.Crossover{Index: 10, Kind: signal.BullAboveZero, Timestamp: 42}
	_, err = m.Decide(context.Background(), cand, 100)
	require.Error(t, err)

	_, ok, _ := store.Load()
	assert.False(t, ok, "transport failures are retryable, no marker advance")
}

func TestDecideAlreadyHandled(t *testing.T) {
	broker := newTestBroker(1000)
	broker.SetPrice(100)
	m := newTestMachine(t, broker, nil)

	cand := &signal.Crossover{Index: 50, Kind: signal.BullBelowZero, Timestamp: 1000}
	d, err := m.Decide(context.Background(), cand, 100)
	require.NoError(t, err)
	require.Equal(t, Bought, d.Outcome)

	// Replaying the same crossover is idempotent: no order, no write.
	d, err = m.Decide(context.Background(), cand, 100)
	require.NoError(t, err)
	assert.Equal(t, AlreadyHandled, d.Outcome)
	assert.False(t, d.MarkerWritten)
	assert.InDelta(t, 10.0, broker.Holding().Amount, 1e-9, "holdings unchanged on replay")
}

func TestDecideMarkerAheadIsFatal(t *testing.T) {
	broker := newTestBroker(1000)
	store := marker.NewMemoryStore()
	require.NoError(t, store.Save(marker.Marker{
		Timestamp: 2000, Kind: signal.BullAboveZero, Outcome: signal.StatusBought,
	}))

	m := newTestMachine(t, broker, store)

	cand := &signal.Crossover{Index: 10, Kind: signal.BearAboveZero, Timestamp: 1000}
	_, err := m.Decide(context.Background(), cand, 100)
	require.ErrorIs(t, err, ErrMarkerAhead)
}

func TestDecideMarkerTimestampsMonotonic(t *testing.T) {
	broker := newTestBroker(1000)
	broker.SetPrice(100)
	m := newTestMachine(t, broker, nil)

	var prev int64 = -1
	steps := []struct {
		kind signal.Kind
		ts   int64
	}{
		{signal.BullBelowZero, 1000},
		{signal.BearAboveZero, 2000},
		{signal.BullAboveZero, 3000},
	}
	for _, s := range steps {
		d, err := m.Decide(context.Background(), &signal.Crossover{Kind: s.kind, Timestamp: s.ts}, 100)
		require.NoError(t, err)
		require.True(t, d.MarkerWritten)

		got, ok := m.Marker()
		require.True(t, ok)
		assert.Greater(t, got.Timestamp, prev)
		prev = got.Timestamp
	}
}

func TestDecideFixedQuoteAmount(t *testing.T) {
	broker := newTestBroker(10000)
	broker.SetPrice(200)

	m, err := NewStateMachine(StateMachineConfig{
		Symbol:      "BTCUSDT",
		BaseAsset:   "BTC",
		QuoteAsset:  "USDT",
		QuoteAmount: 500, // cap the buy instead of spending full balance
		Executor:    broker,
		Balances:    broker,
		Params:      broker,
		Store:       marker.NewMemoryStore(),
	})
	require.NoError(t, err)

	d, err := m.Decide(context.Background(), &signal.Crossover{Kind: signal.BullAboveZero, Timestamp: 1}, 200)
	require.NoError(t, err)
	assert.Equal(t, Bought, d.Outcome)
	assert.InDelta(t, 2.5, d.Order.ExecutedQty, 1e-9)
	assert.InDelta(t, 9500.0, broker.Cash(), 1e-6)
}
