package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Runner drives an Engine on a fixed cadence. Stop is cooperative and only
// honored between ticks: a decision that has started always reaches a
// terminal status and a persisted marker before the loop exits.
type Runner struct {
	engine  *Engine
	cadence time.Duration
	log     *zap.Logger
}

func NewRunner(e *Engine, cadence time.Duration, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{engine: e, cadence: cadence, log: log}
}

// Run ticks until ctx is cancelled or the engine hits a fatal error.
//
// Transient data and transport errors are logged and retried on the next
// tick. Contract violations (ErrMarkerAhead) and marker persistence
// failures stop the loop: continuing could double-trade.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("runner started", zap.Duration("cadence", r.cadence))

	ticker := time.NewTicker(r.cadence)
	defer ticker.Stop()

	// First tick immediately rather than waiting a full cadence.
	if err := r.tick(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			r.log.Info("runner stopped", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
			if err := r.tick(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) tick(ctx context.Context) error {
	// The tick runs under a context that survives cancellation so an
	// in-flight decision completes its order call and marker write; the
	// stop signal is only consulted between ticks.
	decision, err := r.engine.Tick(context.WithoutCancel(ctx))
	if err != nil {
		if errors.Is(err, ErrMarkerAhead) || errors.Is(err, ErrMarkerWrite) {
			r.log.Error("marker invariant broken, stopping", zap.Error(err))
			return err
		}
		r.log.Warn("tick failed, retrying next cadence", zap.Error(err))
		return nil
	}

	if decision.Outcome != NoSignal {
		r.log.Info("tick complete", zap.Stringer("outcome", decision.Outcome))
	}
	return nil
}
