// Package backtest replays historical candles through the decision engine
// against the paper broker, reporting what the strategy would have done.
package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finbeat/macdbot/engine"
	"github.com/finbeat/macdbot/exchange"
	"github.com/finbeat/macdbot/exchange/sim"
	"github.com/finbeat/macdbot/journal"
	"github.com/finbeat/macdbot/marker"
)

// Result is the outcome summary of one replay.
type Result struct {
	Candles int

	Buys   int
	Sells  int
	Failed int
	// Ignored counts signals consumed without an order (balance too small).
	Ignored int

	StartCash   float64
	FinalEquity float64

	Start time.Time
	End   time.Time
}

// Runner drives an engine forward using a candle feed and the paper broker.
type Runner struct {
	Engine *engine.Engine
	Broker *sim.Broker
	Feed   CandleFeed
}

// New wires a complete replay stack: paper broker funded with cash, an
// in-memory marker, and an engine configured from cfg.
func New(cfg engine.Config, cash float64, params exchange.Params, feed CandleFeed, jn journal.Journal, log *zap.Logger) (*Runner, error) {
	broker := sim.NewBroker(cfg.Symbol, cfg.BaseAsset, cfg.QuoteAsset, cash, params)

	sm, err := engine.NewStateMachine(engine.StateMachineConfig{
		Symbol:      cfg.Symbol,
		BaseAsset:   cfg.BaseAsset,
		QuoteAsset:  cfg.QuoteAsset,
		QuoteAmount: cfg.QuoteAmount,
		BaseAmount:  cfg.BaseAmount,
		Executor:    broker,
		Balances:    broker,
		Params:      broker,
		Store:       marker.NewMemoryStore(),
		Log:         log,
	})
	if err != nil {
		return nil, err
	}

	e, err := engine.New(cfg, nil, sm, jn, nil, log)
	if err != nil {
		return nil, err
	}

	return &Runner{Engine: e, Broker: broker, Feed: feed}, nil
}

// Run executes the replay loop:
//  1. read next candle
//  2. publish its close as the fill price
//  3. engine.Ingest
//
// The feed is closed on return.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	if r.Engine == nil {
		return Result{}, fmt.Errorf("backtest: Engine is required")
	}
	if r.Broker == nil {
		return Result{}, fmt.Errorf("backtest: Broker is required")
	}
	if r.Feed == nil {
		return Result{}, fmt.Errorf("backtest: Feed is required")
	}
	defer r.Feed.Close()

	res := Result{StartCash: r.Broker.Cash()}
	var lastClose float64

	for {
		c, ok, err := r.Feed.Next()
		if err != nil {
			return Result{}, err
		}
		if !ok {
			break
		}

		if res.Start.IsZero() {
			res.Start = time.UnixMilli(c.OpenTime).UTC()
		}
		res.End = time.UnixMilli(c.CloseTime).UTC()
		res.Candles++
		lastClose = c.Close

		r.Broker.SetPrice(c.Close)
		d, err := r.Engine.Ingest(ctx, c)
		if err != nil {
			return Result{}, err
		}

		switch d.Outcome {
		case engine.Bought:
			res.Buys++
		case engine.Sold:
			res.Sells++
		case engine.Failed:
			res.Failed++
		case engine.Ignored:
			res.Ignored++
		}
	}

	res.FinalEquity = r.Broker.Equity(lastClose)
	return res, nil
}
