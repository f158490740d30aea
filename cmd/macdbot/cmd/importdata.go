package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finbeat/macdbot/market/archive"
)

var importCmd = &cobra.Command{
	Use:   "import <archive.zip>",
	Short: "Extract a kline archive into a local dataset directory",
	Long: `Extract a monthly or daily kline zip, as published on
https://data.binance.vision, into a directory of CSV files that
'macdbot backtest' can replay.

Example:
  macdbot import BTCUSDT-1h-2026-01.zip -o ./data/BTCUSDT-1h`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var importOutDir string

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().StringVarP(&importOutDir, "output", "o", ".", "directory to extract into")
}

func runImport(cmd *cobra.Command, args []string) error {
	files, err := archive.Extract(args[0], importOutDir)
	if err != nil {
		return fmt.Errorf("extract %s: %w", args[0], err)
	}

	candles, err := archive.LoadAll(importOutDir)
	if err != nil {
		return fmt.Errorf("verify dataset: %w", err)
	}

	fmt.Printf("Extracted %s into %s (%d files, %d candles)\n",
		args[0], importOutDir, len(files), len(candles))
	return nil
}
