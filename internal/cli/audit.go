package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vetter/internal/audit"
)

var (
	auditUserID   int64
	auditUsername string
	auditStatus   string
	auditSince    time.Duration
	auditLines    int
	auditFormat   string
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditShowCmd)
	auditShowCmd.Flags().Int64Var(&auditUserID, "user-id", 0, "Only entries for this account id")
	auditShowCmd.Flags().StringVar(&auditUsername, "username", "", "Only entries for this username")
	auditShowCmd.Flags().StringVar(&auditStatus, "status", "", "Only entries with this status (VERIFIED, FLAGGED, DISMISSED)")
	auditShowCmd.Flags().DurationVar(&auditSince, "since", 0, "Only entries newer than this (e.g. 24h)")
	auditShowCmd.Flags().IntVarP(&auditLines, "lines", "n", 0, "Show only the last N matching entries")
	auditShowCmd.Flags().StringVarP(&auditFormat, "format", "f", "text", "Output format: text or json")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and inspecting the hash-chained verification log.\nThe path defaults to ~/.vetter/audit.jsonl.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditVerify,
}

var auditShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Show verifications recorded in the audit log",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuditShow,
}

func auditPath(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	return dataPath("", "audit.jsonl")
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	result := audit.Verify(path)
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	return &exitError{code: 1}
}

func runAuditShow(cmd *cobra.Command, args []string) error {
	path, err := auditPath(args)
	if err != nil {
		return err
	}
	f := audit.Filter{
		UserID:   auditUserID,
		Username: auditUsername,
		Status:   auditStatus,
	}
	if auditSince > 0 {
		f.From = time.Now().Add(-auditSince)
	}

	res, err := audit.Query(path, f)
	if err != nil {
		return err
	}
	res = res.Tail(auditLines)

	out := cmd.OutOrStdout()
	if auditFormat == "json" {
		s, err := audit.FormatJSON(res)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
		return nil
	}
	fmt.Fprint(out, audit.FormatTimeline(res))
	return nil
}
