package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/report"
	"github.com/ppiankov/vetter/internal/rules"
	"github.com/ppiankov/vetter/internal/vetting"
)

var (
	verifyRemote    bool
	verifyRemoteURL string
	verifyFormat    string
	verifyReportDir string
	verifyAuditLog  string
	verifyHistoryDB string
	verifyRules     []string
	verifySkipRules []string
	verifyParallel  bool
	verifyNoCache   bool
	verifyNoRecord  bool
	verifyEndpoint  string
)

func init() {
	rootCmd.AddCommand(verifyCmd)
	verifyCmd.Flags().BoolVar(&verifyRemote, "remote", false, "Merge the remote CSV denylist from the reference file")
	verifyCmd.Flags().StringVar(&verifyRemoteURL, "remote-denylist", "", "Remote CSV denylist URL (implies --remote)")
	verifyCmd.Flags().StringVarP(&verifyFormat, "format", "f", "text", "Output format: text or json")
	verifyCmd.Flags().StringVar(&verifyReportDir, "report-dir", "", "Also write the JSON report into this directory")
	verifyCmd.Flags().StringVar(&verifyAuditLog, "audit-log", "", "Audit log path (default ~/.vetter/audit.jsonl, \"off\" disables)")
	verifyCmd.Flags().StringVar(&verifyHistoryDB, "history-db", "", "History database path (default ~/.vetter/history.db, \"off\" disables)")
	verifyCmd.Flags().StringSliceVar(&verifyRules, "rules", nil, "Only evaluate these rule ids (comma-separated)")
	verifyCmd.Flags().StringSliceVar(&verifySkipRules, "skip-rules", nil, "Skip these rule ids (comma-separated)")
	verifyCmd.Flags().BoolVar(&verifyParallel, "parallel", false, "Evaluate rules concurrently")
	verifyCmd.Flags().BoolVar(&verifyNoCache, "no-cache", false, "Always fetch a fresh profile")
	verifyCmd.Flags().BoolVar(&verifyNoRecord, "no-record", false, "Do not write audit log or history")
	verifyCmd.Flags().StringVar(&verifyEndpoint, "endpoint", "", "Serve every platform API from this base URL")
	_ = verifyCmd.Flags().MarkHidden("endpoint")
}

var verifyCmd = &cobra.Command{
	Use:   "verify <username>",
	Short: "Verify an account",
	Long: `Fetches the account profile and evaluates every rule in order.

Exit codes:
  0  VERIFIED or FLAGGED
  1  error (account not found, platform unavailable, bad reference data)
  2  DISMISSED`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

// ruleSet builds the rule set from --rules and --skip-rules.
func ruleSet(only, skip []string) (rules.Set, error) {
	rs := rules.Default()
	if len(only) > 0 {
		var err error
		if rs, err = rules.Select(only); err != nil {
			return nil, err
		}
	}
	for _, id := range skip {
		if _, ok := rules.Lookup(strings.TrimSpace(id)); !ok {
			return nil, fmt.Errorf("unknown rule %q", id)
		}
	}
	rs = rs.Without(skip...)
	if len(rs) == 0 {
		return nil, fmt.Errorf("no rules left to evaluate")
	}
	return rs, nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	if verifyFormat != "text" && verifyFormat != "json" {
		return fmt.Errorf("unknown format %q: use text or json", verifyFormat)
	}
	rs, err := ruleSet(verifyRules, verifySkipRules)
	if err != nil {
		return err
	}

	cfg := runtimeConfig{UseCache: !verifyNoCache, Endpoint: verifyEndpoint}
	if !verifyNoRecord {
		if cfg.AuditLogPath, err = dataPath(verifyAuditLog, "audit.jsonl"); err != nil {
			return err
		}
		if cfg.HistoryPath, err = dataPath(verifyHistoryDB, "history.db"); err != nil {
			return err
		}
	}
	rt, err := newRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := rt.svc.Verify(ctx, args[0], vetting.Options{
		Remote:    verifyRemote || verifyRemoteURL != "",
		RemoteURL: verifyRemoteURL,
		Parallel:  verifyParallel,
		Rules:     rs,
		Source:    "cli",
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch verifyFormat {
	case "json":
		s, err := report.FormatJSON(rep)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, report.FormatText(rep))
	}

	if verifyReportDir != "" {
		path, err := report.WriteFile(verifyReportDir, rep)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", path)
	}

	if rep.Verdict.Status == model.Dismissed {
		return &exitError{code: 2}
	}
	return nil
}
