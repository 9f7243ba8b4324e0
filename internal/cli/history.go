package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vetter/internal/history"
	"github.com/ppiankov/vetter/internal/model"
)

var (
	historyDB     string
	historyUserID int64
	historyLimit  int
	historyFormat string
)

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().StringVar(&historyDB, "history-db", "", "History database path (default ~/.vetter/history.db)")
	historyCmd.Flags().Int64Var(&historyUserID, "user-id", 0, "Show every verification of this account id")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of recent verifications to show")
	historyCmd.Flags().StringVarP(&historyFormat, "format", "f", "text", "Output format: text or json")
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past verifications",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	path, err := dataPath(historyDB, "history.db")
	if err != nil {
		return err
	}
	if path == "" {
		return fmt.Errorf("history is disabled")
	}
	store, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open history: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	var recs []history.Record
	if historyUserID != 0 {
		recs, err = store.ForUser(ctx, historyUserID)
	} else {
		recs, err = store.Recent(ctx, historyLimit)
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if historyFormat == "json" {
		data, err := json.MarshalIndent(recs, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	if len(recs) == 0 {
		fmt.Fprintln(out, "No verifications recorded.")
		return nil
	}
	fmt.Fprintf(out, "%-19s  %-10s  %-12s  %-20s  %s\n", "CHECKED (UTC)", "STATUS", "USER ID", "USERNAME", "RULES")
	for _, r := range recs {
		ids := make([]string, len(r.Flags))
		for i, f := range r.Flags {
			ids[i] = f.RuleID
		}
		rules := "-"
		if len(ids) > 0 {
			rules = strings.Join(ids, ",")
		}
		fmt.Fprintf(out, "%-19s  %-10s  %-12d  %-20s  %s\n",
			r.CheckedAt.UTC().Format("2006-01-02 15:04:05"), r.Status, r.UserID, r.Username, rules)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, formatTotals(counts))
	return nil
}

// formatTotals summarizes every stored verification, not just the rows shown.
func formatTotals(counts map[model.Status]int) string {
	total := counts[model.Verified] + counts[model.Flagged] + counts[model.Dismissed]
	return fmt.Sprintf("All time: %d total | %d verified, %d flagged, %d dismissed",
		total, counts[model.Verified], counts[model.Flagged], counts[model.Dismissed])
}
