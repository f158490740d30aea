package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/finbeat/macdbot/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage configuration files for the bot.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  macdbot config init -o bot.yaml
  macdbot config validate -f bot.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	RunE:  runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	RunE:  runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "bot.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  macdbot run -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Pair: %s (%s/%s) on %s candles\n",
		cfg.Strategy.Symbol, cfg.Strategy.BaseAsset, cfg.Strategy.QuoteAsset, cfg.Strategy.Interval)
	fmt.Printf("  MACD: %d/%d/%d over a %d-candle window\n",
		cfg.Strategy.FastPeriod, cfg.Strategy.SlowPeriod, cfg.Strategy.SignalPeriod, cfg.Strategy.WindowSize)
	if cfg.Journal.DBPath != "" {
		fmt.Printf("  Journal: %s\n", cfg.Journal.DBPath)
	} else {
		fmt.Println("  Journal: disabled")
	}
	return nil
}
