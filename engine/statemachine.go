package engine

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/finbeat/macdbot/exchange"
	"github.com/finbeat/macdbot/marker"
	"github.com/finbeat/macdbot/signal"
)

// ErrMarkerAhead means the newest candle's crossover is older than the
// persisted marker. Under single-writer, monotonic-time operation that is
// impossible, so it points at clock skew, out-of-order delivery or marker
// corruption; the engine stops rather than risk a double trade.
var ErrMarkerAhead = errors.New("engine: persisted marker is newer than candidate crossover")

// ErrMarkerWrite means a decision reached a terminal outcome but its marker
// could not be persisted. The engine must stop: without the marker the next
// tick would re-execute the same crossover.
var ErrMarkerWrite = errors.New("engine: marker write failed")

// Outcome is the state machine's verdict for one tick.
type Outcome int

const (
	// NoSignal: no crossover at the newest candle.
	NoSignal Outcome = iota
	// Ignored: the signal was consumed without a fill (insufficient
	// balance); the marker still advances so the same signal never
	// retriggers.
	Ignored
	Bought
	Sold
	// Failed: the exchange refused the order. The marker still advances;
	// retrying a structurally failing order every tick helps nobody.
	Failed
	// AlreadyHandled: the marker already records this crossover.
	AlreadyHandled
)

func (o Outcome) String() string {
	switch o {
	case NoSignal:
		return "no-signal"
	case Ignored:
		return "ignored"
	case Bought:
		return "bought"
	case Sold:
		return "sold"
	case Failed:
		return "failed"
	case AlreadyHandled:
		return "already-handled"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Decision is the result of one tick through the state machine.
type Decision struct {
	Outcome       Outcome
	Crossover     *signal.Crossover
	Order         *exchange.OrderResult
	MarkerWritten bool
}

// StateMachineConfig wires the state machine's collaborators and sizing.
type StateMachineConfig struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string

	// QuoteAmount caps each buy in quote currency; 0 means spend the full
	// free quote balance. BaseAmount likewise for sells.
	QuoteAmount float64
	BaseAmount  float64

	Executor exchange.Executor
	Balances exchange.Balances
	Params   exchange.ParamsSource
	Store    marker.Store
	Log      *zap.Logger
}

// StateMachine converts the newest candle's crossover into at most one
// order, guarded by the persisted marker. Single-writer: one instance per
// (symbol, interval), no concurrent calls.
type StateMachine struct {
	cfg StateMachineConfig
	log *zap.Logger

	cur    marker.Marker
	curSet bool
}

// NewStateMachine loads the persisted marker and returns a ready machine.
func NewStateMachine(cfg StateMachineConfig) (*StateMachine, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	m := &StateMachine{cfg: cfg, log: cfg.Log}

	cur, ok, err := cfg.Store.Load()
	if err != nil {
		return nil, fmt.Errorf("engine: load marker: %w", err)
	}
	m.cur, m.curSet = cur, ok
	if ok {
		m.log.Info("loaded persisted marker",
			zap.Int64("timestamp", cur.Timestamp),
			zap.Stringer("kind", cur.Kind),
			zap.Stringer("outcome", cur.Outcome))
	}
	return m, nil
}

// Marker returns the in-memory copy of the persisted marker.
func (m *StateMachine) Marker() (marker.Marker, bool) {
	return m.cur, m.curSet
}

// Decide runs one crossover-at-newest-candle event through the transition
// table. lastPrice is the newest close, used to size buys.
//
// A non-nil error means the decision could not reach a terminal state (no
// marker was written): transport failures are retryable next tick, while
// ErrMarkerAhead and marker-write failures must stop the engine.
func (m *StateMachine) Decide(ctx context.Context, cand *signal.Crossover, lastPrice float64) (Decision, error) {
	if cand == nil {
		return Decision{Outcome: NoSignal}, nil
	}

	if m.curSet {
		switch {
		case m.cur.Timestamp == cand.Timestamp:
			m.log.Debug("crossover already handled",
				zap.Int64("timestamp", cand.Timestamp),
				zap.Stringer("kind", cand.Kind))
			return Decision{Outcome: AlreadyHandled, Crossover: cand}, nil

		case m.cur.Timestamp > cand.Timestamp:
			return Decision{}, fmt.Errorf("%w: marker %d, candidate %d",
				ErrMarkerAhead, m.cur.Timestamp, cand.Timestamp)
		}
	}

	var (
		result exchange.OrderResult
		err    error
	)
	if cand.Kind.Bullish() {
		result, err = m.buy(ctx, lastPrice)
	} else {
		result, err = m.sell(ctx)
	}
	if err != nil {
		return Decision{}, err
	}

	var outcome Outcome
	var status signal.Status
	switch result.Status {
	case exchange.Filled:
		if cand.Kind.Bullish() {
			outcome, status = Bought, signal.StatusBought
		} else {
			outcome, status = Sold, signal.StatusSold
		}
	case exchange.InsufficientBalance:
		outcome, status = Ignored, signal.StatusHandled
	default:
		outcome, status = Failed, signal.StatusFailed
	}

	next := marker.Marker{Timestamp: cand.Timestamp, Kind: cand.Kind, Outcome: status}
	if err := m.cfg.Store.Save(next); err != nil {
		return Decision{}, fmt.Errorf("%w: %v", ErrMarkerWrite, err)
	}
	m.cur, m.curSet = next, true

	m.log.Info("trade decision",
		zap.Stringer("outcome", outcome),
		zap.Stringer("kind", cand.Kind),
		zap.Int64("timestamp", cand.Timestamp),
		zap.Stringer("orderStatus", result.Status),
		zap.Float64("executedQty", result.ExecutedQty),
		zap.String("orderMessage", result.Message))

	return Decision{
		Outcome:       outcome,
		Crossover:     cand,
		Order:         &result,
		MarkerWritten: true,
	}, nil
}

// buy sizes and places a market buy: the configured quote amount (or the
// full free quote balance), converted at lastPrice and stepped to the lot.
func (m *StateMachine) buy(ctx context.Context, lastPrice float64) (exchange.OrderResult, error) {
	if lastPrice <= 0 {
		return exchange.OrderResult{}, fmt.Errorf("engine: invalid price %v for buy sizing", lastPrice)
	}

	params, err := m.cfg.Params.SymbolParams(ctx, m.cfg.Symbol)
	if err != nil {
		return exchange.OrderResult{}, fmt.Errorf("engine: symbol params: %w", err)
	}

	quote := m.cfg.QuoteAmount
	if quote == 0 {
		if quote, err = m.cfg.Balances.FreeBalance(ctx, m.cfg.QuoteAsset); err != nil {
			return exchange.OrderResult{}, fmt.Errorf("engine: quote balance: %w", err)
		}
	}

	qty := params.StepQty(quote / lastPrice)
	if qty == 0 {
		return exchange.OrderResult{
			Status: exchange.InsufficientBalance,
			Message: fmt.Sprintf("quote %.8f %s steps below minimum lot %.8f",
				quote, m.cfg.QuoteAsset, params.MinQty),
		}, nil
	}

	return m.cfg.Executor.BuyMarket(ctx, m.cfg.Symbol, qty)
}

// sell sizes and places a market sell of the configured base amount (or the
// full free base balance), stepped to the lot.
func (m *StateMachine) sell(ctx context.Context) (exchange.OrderResult, error) {
	params, err := m.cfg.Params.SymbolParams(ctx, m.cfg.Symbol)
	if err != nil {
		return exchange.OrderResult{}, fmt.Errorf("engine: symbol params: %w", err)
	}

	base := m.cfg.BaseAmount
	if base == 0 {
		if base, err = m.cfg.Balances.FreeBalance(ctx, m.cfg.BaseAsset); err != nil {
			return exchange.OrderResult{}, fmt.Errorf("engine: base balance: %w", err)
		}
	}

	qty := params.StepQty(base)
	if qty == 0 {
		return exchange.OrderResult{
			Status: exchange.InsufficientBalance,
			Message: fmt.Sprintf("base %.8f %s steps below minimum lot %.8f",
				base, m.cfg.BaseAsset, params.MinQty),
		}, nil
	}

	return m.cfg.Executor.SellMarket(ctx, m.cfg.Symbol, qty)
}
