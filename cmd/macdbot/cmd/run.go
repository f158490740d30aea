package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/finbeat/macdbot/config"
	"github.com/finbeat/macdbot/engine"
	"github.com/finbeat/macdbot/exchange/binance"
	"github.com/finbeat/macdbot/exchange/stream"
	"github.com/finbeat/macdbot/journal"
	"github.com/finbeat/macdbot/marker"
	"github.com/finbeat/macdbot/notify"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live decision loop from a config file",
	Long: `Run the MACD crossover loop against binance using settings from a
configuration file. Credentials default to the testnet; set exchange.testnet
to false for real trading.

Example:
  macdbot run -f bot.yaml`,
	RunE: runRun,
}

var runConfigPath string

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	runCmd.MarkFlagRequired("config")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	lvl, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(runConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	client := binance.NewClient(cfg.Exchange.APIKey, cfg.Exchange.SecretKey, cfg.Exchange.Testnet)

	var (
		jn    journal.Journal = journal.Noop{}
		store marker.Store    = marker.NewMemoryStore()
	)
	if cfg.Journal.DBPath != "" {
		sj, err := journal.NewSQLite(cfg.Journal.DBPath)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer sj.Close()
		jn = sj

		// Marker rows live in the journal database so one file carries
		// the bot's full persistent state.
		store, err = marker.NewSQLiteWithDB(sj.DB(), cfg.Strategy.Symbol)
		if err != nil {
			return fmt.Errorf("open marker store: %w", err)
		}
	} else {
		log.Warn("journal disabled, crossover marker will not survive restarts")
	}

	var notifier notify.Notifier = notify.NewLog(log)
	if cfg.Notify.WebhookURL != "" {
		notifier = notify.NewWebhook(cfg.Notify.WebhookURL)
	}

	sm, err := engine.NewStateMachine(engine.StateMachineConfig{
		Symbol:      cfg.Strategy.Symbol,
		BaseAsset:   cfg.Strategy.BaseAsset,
		QuoteAsset:  cfg.Strategy.QuoteAsset,
		QuoteAmount: cfg.Sizing.QuoteAmount,
		BaseAmount:  cfg.Sizing.BaseAmount,
		Executor:    client,
		Balances:    client,
		Params:      client,
		Store:       store,
		Log:         log,
	})
	if err != nil {
		return err
	}

	e, err := engine.New(engine.Config{
		Symbol:       cfg.Strategy.Symbol,
		BaseAsset:    cfg.Strategy.BaseAsset,
		QuoteAsset:   cfg.Strategy.QuoteAsset,
		Interval:     cfg.Strategy.Interval,
		WindowSize:   cfg.Strategy.WindowSize,
		HistoryMax:   cfg.Strategy.HistoryMax,
		FastPeriod:   cfg.Strategy.FastPeriod,
		SlowPeriod:   cfg.Strategy.SlowPeriod,
		SignalPeriod: cfg.Strategy.SignalPeriod,
		QuoteAmount:  cfg.Sizing.QuoteAmount,
		BaseAmount:   cfg.Sizing.BaseAmount,
	}, client, sm, jn, notifier, log)
	if err != nil {
		return err
	}

	ctx, stop := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("starting decision loop",
		zap.String("symbol", cfg.Strategy.Symbol),
		zap.String("interval", cfg.Strategy.Interval),
		zap.Bool("testnet", cfg.Exchange.Testnet),
		zap.Bool("stream", cfg.Exchange.UseStream))

	if cfg.Exchange.UseStream {
		return streamLoop(ctx, cfg, e, log)
	}
	return engine.NewRunner(e, cfg.Strategy.Cadence(), log).Run(ctx)
}

// streamLoop seeds the window over REST, then feeds websocket kline updates
// into the engine until the context is cancelled.
func streamLoop(ctx context.Context, cfg *config.Config, e *engine.Engine, log *zap.Logger) error {
	if _, err := e.Tick(ctx); err != nil {
		return fmt.Errorf("seed candle window: %w", err)
	}

	s, err := stream.New("", cfg.Strategy.Symbol, cfg.Strategy.Interval, log)
	if err != nil {
		return err
	}
	go s.Run(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-s.Updates():
			if !ok {
				return nil
			}
			// An in-flight decision finishes its marker write even if
			// shutdown arrives mid-candle.
			if _, err := e.Ingest(context.WithoutCancel(ctx), u.Candle); err != nil {
				if errors.Is(err, engine.ErrMarkerAhead) || errors.Is(err, engine.ErrMarkerWrite) {
					log.Error("marker invariant broken, stopping", zap.Error(err))
					return err
				}
				log.Warn("stream candle not ingested, refreshing over REST", zap.Error(err))
				if _, err := e.Tick(ctx); err != nil {
					log.Warn("window refresh failed", zap.Error(err))
				}
			}
		}
	}
}
