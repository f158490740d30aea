// Package sim is an in-memory paper broker used by backtests and paper
// trading. It implements the same contracts as the live exchange client so
// the decision engine cannot tell the difference.
package sim

import (
	"context"
	"fmt"

	"github.com/finbeat/macdbot/exchange"
)

// Position is a held amount of one base asset and its average cost.
type Position struct {
	Amount    float64
	CostBasis float64
}

// Broker simulates a spot account: quote-currency cash plus base-asset
// holdings, filled at whatever price the caller last published.
type Broker struct {
	quoteAsset string
	baseAsset  string
	symbol     string

	cash     float64
	holdings map[string]Position

	price  float64
	params exchange.Params
}

// NewBroker creates a paper account holding cash units of quoteAsset.
func NewBroker(symbol, baseAsset, quoteAsset string, cash float64, params exchange.Params) *Broker {
	return &Broker{
		symbol:     symbol,
		baseAsset:  baseAsset,
		quoteAsset: quoteAsset,
		cash:       cash,
		holdings:   make(map[string]Position),
		params:     params,
	}
}

// SetPrice publishes the price the next fill executes at. Backtests call
// this with each candle close before driving the engine.
func (b *Broker) SetPrice(p float64) {
	b.price = p
}

// FreeBalance implements exchange.Balances.
func (b *Broker) FreeBalance(_ context.Context, asset string) (float64, error) {
	if asset == b.quoteAsset {
		return b.cash, nil
	}
	return b.holdings[asset].Amount, nil
}

// SymbolParams implements exchange.ParamsSource.
func (b *Broker) SymbolParams(_ context.Context, symbol string) (exchange.Params, error) {
	if symbol != b.symbol {
		return exchange.Params{}, fmt.Errorf("sim: unknown symbol %s", symbol)
	}
	return b.params, nil
}

// BuyMarket implements exchange.Executor. qty is in the base asset.
func (b *Broker) BuyMarket(_ context.Context, symbol string, qty float64) (exchange.OrderResult, error) {
	if symbol != b.symbol {
		return exchange.OrderResult{}, fmt.Errorf("sim: unknown symbol %s", symbol)
	}
	if b.price <= 0 {
		return exchange.OrderResult{}, fmt.Errorf("sim: no price published for %s", symbol)
	}

	cost := qty * b.price
	if qty <= 0 || cost > b.cash {
		return exchange.OrderResult{
			Status:  exchange.InsufficientBalance,
			Message: fmt.Sprintf("need %.8f %s, have %.8f", cost, b.quoteAsset, b.cash),
			OrigQty: qty,
		}, nil
	}

	b.cash -= cost
	pos := b.holdings[b.baseAsset]
	total := pos.Amount + qty
	pos.CostBasis = (pos.CostBasis*pos.Amount + cost) / total
	pos.Amount = total
	b.holdings[b.baseAsset] = pos

	return exchange.OrderResult{
		Status:      exchange.Filled,
		OrigQty:     qty,
		ExecutedQty: qty,
		Fills:       []exchange.Fill{{Price: b.price, Qty: qty}},
	}, nil
}

// SellMarket implements exchange.Executor. qty is in the base asset.
func (b *Broker) SellMarket(_ context.Context, symbol string, qty float64) (exchange.OrderResult, error) {
	if symbol != b.symbol {
		return exchange.OrderResult{}, fmt.Errorf("sim: unknown symbol %s", symbol)
	}
	if b.price <= 0 {
		return exchange.OrderResult{}, fmt.Errorf("sim: no price published for %s", symbol)
	}

	pos := b.holdings[b.baseAsset]
	if qty <= 0 || qty > pos.Amount {
		return exchange.OrderResult{
			Status:  exchange.InsufficientBalance,
			Message: fmt.Sprintf("need %.8f %s, have %.8f", qty, b.baseAsset, pos.Amount),
			OrigQty: qty,
		}, nil
	}

	pos.Amount -= qty
	if pos.Amount == 0 {
		pos.CostBasis = 0
	}
	b.holdings[b.baseAsset] = pos
	b.cash += qty * b.price

	return exchange.OrderResult{
		Status:      exchange.Filled,
		OrigQty:     qty,
		ExecutedQty: qty,
		Fills:       []exchange.Fill{{Price: b.price, Qty: qty}},
	}, nil
}

// Cash returns the quote-currency balance.
func (b *Broker) Cash() float64 {
	return b.cash
}

// Holding returns the base-asset position.
func (b *Broker) Holding() Position {
	return b.holdings[b.baseAsset]
}

// Equity values the account at the given price: cash plus holdings.
func (b *Broker) Equity(price float64) float64 {
	return b.cash + b.holdings[b.baseAsset].Amount*price
}
