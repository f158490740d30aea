package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/finbeat/macdbot/backtest"
	"github.com/finbeat/macdbot/config"
	"github.com/finbeat/macdbot/engine"
	"github.com/finbeat/macdbot/exchange"
	"github.com/finbeat/macdbot/journal"
	"github.com/finbeat/macdbot/market/archive"
)

var backtestCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Replay a candle dataset through the strategy",
	Long: `Replay historical candles through the MACD crossover strategy against
the paper broker and report what it would have done.

The dataset is a directory of kline CSV files, as produced by 'macdbot import'.

Example:
  macdbot backtest -f bot.yaml -d ./data/BTCUSDT-1h --cash 10000`,
	RunE: runBacktest,
}

var (
	backtestConfigPath string
	backtestDataDir    string
	backtestZipPath    string
	backtestCash       float64
	backtestMinQty     float64
	backtestJournalDB  string
)

func init() {
	rootCmd.AddCommand(backtestCmd)

	backtestCmd.Flags().StringVarP(&backtestConfigPath, "config", "f", "", "path to config file (YAML or JSON) (required)")
	backtestCmd.Flags().StringVarP(&backtestDataDir, "data", "d", "", "directory of kline CSV files")
	backtestCmd.Flags().StringVarP(&backtestZipPath, "zip", "z", "", "kline archive zip (extracted to a temp dir)")
	backtestCmd.Flags().Float64Var(&backtestCash, "cash", 10000, "starting quote-currency balance")
	backtestCmd.Flags().Float64Var(&backtestMinQty, "min-qty", 0.00001, "minimum lot size for the paper broker")
	backtestCmd.Flags().StringVar(&backtestJournalDB, "journal", "", "optional sqlite file to journal replay decisions into")
	backtestCmd.MarkFlagRequired("config")
}

func runBacktest(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(backtestConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	dir := backtestDataDir
	if backtestZipPath != "" {
		tmp, err := os.MkdirTemp("", "macdbot-backtest-*")
		if err != nil {
			return err
		}
		defer os.RemoveAll(tmp)
		if _, err := archive.Extract(backtestZipPath, tmp); err != nil {
			return fmt.Errorf("extract archive: %w", err)
		}
		dir = tmp
	}
	if dir == "" {
		return fmt.Errorf("either --data or --zip is required")
	}

	feed, err := backtest.NewArchiveFeed(dir)
	if err != nil {
		return err
	}

	var jn journal.Journal = journal.Noop{}
	if backtestJournalDB != "" {
		sj, err := journal.NewSQLite(backtestJournalDB)
		if err != nil {
			return fmt.Errorf("open journal: %w", err)
		}
		defer sj.Close()
		jn = sj
	}

	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	r, err := backtest.New(engine.Config{
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
	}, backtestCash, exchange.Params{MinQty: backtestMinQty}, feed, jn, log)
	if err != nil {
		return err
	}

	res, err := r.Run(context.Background())
	if err != nil {
		return fmt.Errorf("replay: %w", err)
	}

	fmt.Printf("Backtest %s %s, %d candles (%s to %s)\n",
		cfg.Strategy.Symbol, cfg.Strategy.Interval, res.Candles,
		res.Start.Format("2006-01-02 15:04"), res.End.Format("2006-01-02 15:04"))
	fmt.Printf("  Buys: %d  Sells: %d  Failed: %d  Ignored: %d\n",
		res.Buys, res.Sells, res.Failed, res.Ignored)
	fmt.Printf("  Start cash:   %.2f %s\n", res.StartCash, cfg.Strategy.QuoteAsset)
	fmt.Printf("  Final equity: %.2f %s (%+.2f%%)\n",
		res.FinalEquity, cfg.Strategy.QuoteAsset,
		(res.FinalEquity-res.StartCash)/res.StartCash*100)
	return nil
}
