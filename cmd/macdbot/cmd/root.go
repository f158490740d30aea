package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "macdbot",
	Short: "A MACD crossover trading bot for binance spot markets",
	Long: `Macdbot watches one trading pair, computes the MACD indicator over a
rolling candle window and trades signal-line crossovers.

It provides tools for:
  - Running the live decision loop against binance (or the testnet)
  - Backtesting the strategy over historical candle archives
  - Importing exchange kline archives into local CSV datasets
  - Inspecting the trade journal and the persisted crossover marker

Complete documentation is available at https://github.com/finbeat/macdbot`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
