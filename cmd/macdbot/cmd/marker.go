package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/finbeat/macdbot/marker"
)

var markerCmd = &cobra.Command{
	Use:   "marker <symbol>",
	Short: "Show the persisted crossover marker for a symbol",
	Long: `Show which crossover the bot last handled for a symbol. The marker is
what keeps a restarted bot from re-trading a crossover it already acted on.

Example:
  macdbot marker BTCUSDT -d ./macdbot.db`,
	Args: cobra.ExactArgs(1),
	RunE: runMarker,
}

var markerDBPath string

func init() {
	rootCmd.AddCommand(markerCmd)

	markerCmd.Flags().StringVarP(&markerDBPath, "db", "d", "./macdbot.db", "path to sqlite journal DB")
}

func runMarker(cmd *cobra.Command, args []string) error {
	store, err := marker.NewSQLite(markerDBPath, args[0])
	if err != nil {
		return fmt.Errorf("open marker store: %w", err)
	}
	defer store.Close()

	m, ok, err := store.Load()
	if err != nil {
		return fmt.Errorf("load marker: %w", err)
	}
	if !ok {
		fmt.Printf("No marker for %s: the next crossover will be the first ever handled\n", args[0])
		return nil
	}

	fmt.Printf("Marker for %s:\n", args[0])
	fmt.Printf("  Crossover: %s\n", m.Kind)
	fmt.Printf("  Candle:    %s (%d)\n", time.UnixMilli(m.Timestamp).UTC().Format(time.RFC3339), m.Timestamp)
	fmt.Printf("  Outcome:   %s\n", m.Outcome)
	return nil
}
