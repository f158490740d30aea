// Package engine ties the candle window, MACD computation, crossover
// detection and the trade state machine into the per-tick decision
// pipeline.
package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/finbeat/macdbot/exchange"
	"github.com/finbeat/macdbot/indicators"
	"github.com/finbeat/macdbot/journal"
	"github.com/finbeat/macdbot/market"
	"github.com/finbeat/macdbot/notify"
	"github.com/finbeat/macdbot/signal"
)

// Config holds the engine parameters for one (symbol, interval) pair.
type Config struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Interval   string

	// WindowSize bounds the candle window; 0 = unbounded.
	WindowSize int
	// HistoryMax bounds the crossover ledger.
	HistoryMax int

	FastPeriod   int
	SlowPeriod   int
	SignalPeriod int

	QuoteAmount float64
	BaseAmount  float64
}

func (c *Config) applyDefaults() {
	if c.WindowSize == 0 {
		c.WindowSize = 120
	}
	if c.HistoryMax == 0 {
		c.HistoryMax = 200
	}
	if c.FastPeriod == 0 {
		c.FastPeriod = 12
	}
	if c.SlowPeriod == 0 {
		c.SlowPeriod = 26
	}
	if c.SignalPeriod == 0 {
		c.SignalPeriod = 9
	}
}

// Engine drives the ingest -> detect -> decide -> persist pipeline.
// Single-threaded: one logical caller per instance, no internal locking.
type Engine struct {
	cfg      Config
	interval time.Duration

	window   *market.Window
	detector *signal.Detector
	history  *signal.History
	sm       *StateMachine

	source   exchange.CandleSource
	journal  journal.Journal
	notifier notify.Notifier
	log      *zap.Logger

	// warm flips after the first full-history scan; warm ticks only scan
	// the newest bar.
	warm bool
}

// New builds an engine. sm must be constructed with NewStateMachine so the
// persisted marker is already loaded.
func New(cfg Config, source exchange.CandleSource, sm *StateMachine, jn journal.Journal, notifier notify.Notifier, log *zap.Logger) (*Engine, error) {
	cfg.applyDefaults()

	interval, err := market.ParseInterval(cfg.Interval)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	if cfg.WindowSize > 0 && cfg.WindowSize < cfg.SlowPeriod+cfg.SignalPeriod {
		return nil, fmt.Errorf("engine: window size %d below indicator lookback %d",
			cfg.WindowSize, cfg.SlowPeriod+cfg.SignalPeriod)
	}
	if jn == nil {
		jn = journal.Noop{}
	}
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Engine{
		cfg:      cfg,
		interval: interval,
		window:   market.NewWindow(interval, cfg.WindowSize),
		detector: signal.NewDetector(log),
		history:  signal.NewHistory(cfg.HistoryMax, log),
		sm:       sm,
		source:   source,
		journal:  jn,
		notifier: notifier,
		log:      log,
	}, nil
}

// Tick fetches the latest candles and runs the decision pipeline once.
//
// Data errors (gaps, empty fetch) abort the tick before any history or
// marker mutation; the next scheduled tick retries from clean state.
func (e *Engine) Tick(ctx context.Context) (Decision, error) {
	if err := e.ingest(ctx); err != nil {
		return Decision{}, err
	}
	return e.process(ctx)
}

// ingest pulls candles from the source and folds them into the window.
func (e *Engine) ingest(ctx context.Context) error {
	if e.window.Len() == 0 {
		candles, err := e.source.Candles(ctx, e.cfg.Symbol, e.cfg.Interval, 0, e.cfg.WindowSize)
		if err != nil {
			return fmt.Errorf("engine: fetch history: %w", err)
		}
		n, err := e.window.Init(candles)
		if err != nil {
			return fmt.Errorf("engine: init window: %w", err)
		}
		e.log.Info("candle window initialized",
			zap.String("symbol", e.cfg.Symbol),
			zap.String("interval", e.cfg.Interval),
			zap.Int("candles", n))
		return nil
	}

	last, err := e.window.Last()
	if err != nil {
		return err
	}

	// Re-fetch from the newest bar's open: the first row refreshes the
	// still-forming bar, later rows append freshly closed ones.
	candles, err := e.source.Candles(ctx, e.cfg.Symbol, e.cfg.Interval, last.OpenTime, 3)
	if err != nil {
		return fmt.Errorf("engine: fetch latest: %w", err)
	}
	if len(candles) == 0 {
		return fmt.Errorf("engine: %w from source", market.ErrEmptyCandles)
	}

	for _, c := range candles {
		res, err := e.window.Upsert(c)
		if err != nil {
			return fmt.Errorf("engine: ingest candle: %w", err)
		}
		e.log.Debug("candle ingested",
			zap.Int64("openTime", c.OpenTime),
			zap.Float64("close", c.Close),
			zap.Stringer("result", res))
	}
	return nil
}

// Ingest folds a single externally supplied candle into the window and runs
// the pipeline; replay and stream feeds use this instead of Tick.
func (e *Engine) Ingest(ctx context.Context, c market.Candle) (Decision, error) {
	if e.window.Len() == 0 {
		if _, err := e.window.Init([]market.Candle{c}); err != nil {
			return Decision{}, err
		}
	} else if _, err := e.window.Upsert(c); err != nil {
		return Decision{}, fmt.Errorf("engine: ingest candle: %w", err)
	}
	return e.process(ctx)
}

// process recomputes the indicator, detects crossovers and drives the state
// machine for the newest candle.
func (e *Engine) process(ctx context.Context) (Decision, error) {
	lookback := e.cfg.SlowPeriod + e.cfg.SignalPeriod
	if e.window.Len() < lookback {
		e.log.Debug("window below indicator lookback",
			zap.Int("have", e.window.Len()), zap.Int("need", lookback))
		return Decision{Outcome: NoSignal}, nil
	}

	macd, sigLine, hist, err := indicators.MACD(
		e.window.Closes(), e.cfg.FastPeriod, e.cfg.SlowPeriod, e.cfg.SignalPeriod)
	if err != nil {
		return Decision{}, fmt.Errorf("engine: %w", err)
	}

	onlyLast := e.warm
	crossovers := e.detector.Scan(macd, sigLine, hist, e.window.OpenTimes(), onlyLast)
	e.warm = true

	// Cold start replays the whole window through the ledger so the
	// flicker guard has context; only a crossover on the newest bar can
	// become a trade candidate.
	var candidate *signal.Crossover
	lastIdx := e.window.Len() - 1
	for _, c := range crossovers {
		act := e.history.Observe(c)
		e.log.Debug("crossover observed",
			zap.Stringer("kind", c.Kind),
			zap.Int64("timestamp", c.Timestamp),
			zap.Stringer("action", act))

		if c.Index == lastIdx && act != signal.SamePolarityIgnored {
			cc := c
			candidate = &cc
		}
	}

	lastCandle, err := e.window.Last()
	if err != nil {
		return Decision{}, err
	}

	decision, err := e.sm.Decide(ctx, candidate, lastCandle.Close)
	if err != nil {
		return Decision{}, err
	}

	e.finish(ctx, decision)
	return decision, nil
}

// finish applies the decision's side effects outside the correctness path:
// ledger status, journal rows and notifications. Failures here are logged
// and never unwind the decision.
func (e *Engine) finish(ctx context.Context, d Decision) {
	if !d.MarkerWritten {
		return
	}

	var status signal.Status
	switch d.Outcome {
	case Bought:
		status = signal.StatusBought
	case Sold:
		status = signal.StatusSold
	case Failed:
		status = signal.StatusFailed
	case Ignored:
		status = signal.StatusHandled
	default:
		return
	}
	if err := e.history.MarkLast(status); err != nil {
		e.log.Warn("ledger status not updated", zap.Error(err))
	}

	now := time.Now().UTC()
	rec := journal.DecisionRecord{
		Time:     now,
		Symbol:   e.cfg.Symbol,
		Kind:     d.Crossover.Kind.String(),
		Outcome:  d.Outcome.String(),
		MarkerTS: d.Crossover.Timestamp,
	}
	if d.Order != nil {
		rec.Detail = d.Order.Message
	}
	if err := e.journal.RecordDecision(rec); err != nil {
		e.log.Warn("decision not journaled", zap.Error(err))
	}

	switch d.Outcome {
	case Bought, Sold:
		side := "buy"
		if d.Outcome == Sold {
			side = "sell"
		}
		if err := e.journal.RecordTrade(journal.TradeRecord{
			Time:     now,
			Symbol:   e.cfg.Symbol,
			Side:     side,
			Qty:      d.Order.ExecutedQty,
			AvgPrice: d.Order.AvgPrice(),
		}); err != nil {
			e.log.Warn("trade not journaled", zap.Error(err))
		}
		e.send(ctx, fmt.Sprintf("%s %s", e.cfg.Symbol, d.Outcome),
			fmt.Sprintf("%s %.8f at avg %.8f on %s crossover",
				side, d.Order.ExecutedQty, d.Order.AvgPrice(), d.Crossover.Kind))

	case Failed:
		e.send(ctx, fmt.Sprintf("%s order failed", e.cfg.Symbol),
			fmt.Sprintf("%s crossover at %d: %s", d.Crossover.Kind, d.Crossover.Timestamp, d.Order.Message))
	}
}

// send delivers a notification, logging failures; delivery never blocks or
// fails a decision.
func (e *Engine) send(ctx context.Context, subject, body string) {
	if err := e.notifier.Notify(ctx, subject, body); err != nil {
		e.log.Warn("notification failed", zap.Error(err))
	}
}

// Window exposes the candle window for inspection (CLI, tests).
func (e *Engine) Window() *market.Window {
	return e.window
}

// History exposes the crossover ledger for inspection.
func (e *Engine) History() *signal.History {
	return e.history
}
