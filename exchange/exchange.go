// Package exchange defines the contracts the decision engine holds against
// the outside world: candle data, order execution, balances and symbol
// metadata. Implementations live in subpackages (binance, sim, stream).
package exchange

import (
	"context"
	"fmt"
	"math"

	"github.com/finbeat/macdbot/market"
)

// CandleSource serves historical and recent candles for a symbol/interval.
type CandleSource interface {
	// Candles returns up to limit candles starting at startTime (unix ms,
	// 0 = most recent window), oldest first.
	Candles(ctx context.Context, symbol, interval string, startTime int64, limit int) ([]market.Candle, error)
}

// OrderStatus is the engine-visible outcome of a market order attempt.
type OrderStatus int

const (
	// Filled: the order executed.
	Filled OrderStatus = iota
	// InsufficientBalance: the account cannot fund the order. Benign; the
	// engine records the signal as handled without retrying.
	InsufficientBalance
	// Rejected: the exchange refused the order for any other reason.
	Rejected
)

func (s OrderStatus) String() string {
	switch s {
	case Filled:
		return "filled"
	case InsufficientBalance:
		return "insufficient-balance"
	case Rejected:
		return "rejected"
	}
	return fmt.Sprintf("OrderStatus(%d)", int(s))
}

// Fill is one execution slice of a market order.
type Fill struct {
	Price float64
	Qty   float64
}

// OrderResult is the structured outcome of a market order. It replaces the
// loose code/message dictionaries common in exchange SDKs with a closed
// status plus typed fills.
type OrderResult struct {
	Status      OrderStatus
	Message     string
	OrigQty     float64
	ExecutedQty float64
	Fills       []Fill
}

// AvgPrice returns the volume-weighted fill price, or 0 with no fills.
func (r OrderResult) AvgPrice() float64 {
	var qty, notional float64
	for _, f := range r.Fills {
		qty += f.Qty
		notional += f.Qty * f.Price
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// Executor places market orders. A non-nil error means the attempt itself
// could not be made (transport, auth); exchange-side refusals come back as
// an OrderResult with a non-Filled status and a nil error.
type Executor interface {
	BuyMarket(ctx context.Context, symbol string, qty float64) (OrderResult, error)
	SellMarket(ctx context.Context, symbol string, qty float64) (OrderResult, error)
}

// Balances reports the free (spendable) balance of a single asset.
type Balances interface {
	FreeBalance(ctx context.Context, asset string) (float64, error)
}

// Params carries the exchange-mandated order constraints for a symbol.
type Params struct {
	MinPrice float64
	MinQty   float64 // also the lot step
}

// ParamsSource serves per-symbol order constraints.
type ParamsSource interface {
	SymbolParams(ctx context.Context, symbol string) (Params, error)
}

// StepQty rounds qty down to a whole multiple of the symbol's minimum lot.
// A result below the minimum is not tradable and comes back as 0.
func (p Params) StepQty(qty float64) float64 {
	if p.MinQty <= 0 {
		return qty
	}
	stepped := math.Floor(qty/p.MinQty) * p.MinQty
	if stepped < p.MinQty {
		return 0
	}
	return stepped
}
