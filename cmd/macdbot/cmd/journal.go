package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/finbeat/macdbot/journal"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Query journaled decisions and trades",
	Long: `Query and display records from the sqlite journal.

Subcommands:
  trade     - Get details of a specific trade by ID
  today     - List trades executed today
  day       - List trades executed on a specific day
  decisions - List decisions made on a specific day

Examples:
  macdbot journal trade 01HV...
  macdbot journal today
  macdbot journal decisions 2026-08-01`,
}

var journalTradeCmd = &cobra.Command{
	Use:   "trade <trade-id>",
	Short: "Get details of a specific trade",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalTrade,
}

var journalTodayCmd = &cobra.Command{
	Use:   "today",
	Short: "List trades executed today",
	Args:  cobra.NoArgs,
	RunE:  runJournalToday,
}

var journalDayCmd = &cobra.Command{
	Use:   "day <YYYY-MM-DD>",
	Short: "List trades executed on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDay,
}

var journalDecisionsCmd = &cobra.Command{
	Use:   "decisions <YYYY-MM-DD>",
	Short: "List decisions made on a specific day",
	Args:  cobra.ExactArgs(1),
	RunE:  runJournalDecisions,
}

var journalDBPath string

func init() {
	rootCmd.AddCommand(journalCmd)
	journalCmd.AddCommand(journalTradeCmd)
	journalCmd.AddCommand(journalTodayCmd)
	journalCmd.AddCommand(journalDayCmd)
	journalCmd.AddCommand(journalDecisionsCmd)

	journalCmd.PersistentFlags().StringVarP(&journalDBPath, "db", "d", "./macdbot.db", "path to sqlite journal DB")
}

func runJournalTrade(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	rec, err := j.GetTrade(args[0])
	if err != nil {
		return fmt.Errorf("get trade: %w", err)
	}

	printTrade(rec)
	return nil
}

func runJournalToday(cmd *cobra.Command, args []string) error {
	return listTradesDay(time.Now().Format("2006-01-02"))
}

func runJournalDay(cmd *cobra.Command, args []string) error {
	return listTradesDay(args[0])
}

func listTradesDay(day string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	start, end, err := dayBounds(time.Local, day)
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	recs, err := j.ListTradesBetween(start, end)
	if err != nil {
		return fmt.Errorf("query trades: %w", err)
	}
	if len(recs) == 0 {
		fmt.Printf("No trades on %s\n", day)
		return nil
	}
	for _, rec := range recs {
		printTrade(rec)
	}
	return nil
}

func runJournalDecisions(cmd *cobra.Command, args []string) error {
	j, err := journal.NewSQLite(journalDBPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer j.Close()

	start, end, err := dayBounds(time.Local, args[0])
	if err != nil {
		return fmt.Errorf("date: %w", err)
	}

	recs, err := j.ListDecisionsBetween(start, end)
	if err != nil {
		return fmt.Errorf("query decisions: %w", err)
	}
	if len(recs) == 0 {
		fmt.Printf("No decisions on %s\n", args[0])
		return nil
	}
	for _, rec := range recs {
		fmt.Printf("%s  %-10s %-18s %-10s marker=%d %s\n",
			rec.Time.Local().Format("15:04:05"),
			rec.Symbol, rec.Kind, rec.Outcome, rec.MarkerTS, rec.Detail)
	}
	return nil
}

func printTrade(rec journal.TradeRecord) {
	fmt.Printf("%s  %s %-4s %.8f @ %.8f  [%s]\n",
		rec.Time.Local().Format("2006-01-02 15:04:05"),
		rec.Symbol, rec.Side, rec.Qty, rec.AvgPrice, rec.ID)
	if rec.Detail != "" {
		fmt.Printf("  %s\n", rec.Detail)
	}
}

func dayBounds(loc *time.Location, day string) (time.Time, time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", day, loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
	end := start.Add(24 * time.Hour)
	return start, end, nil
}
