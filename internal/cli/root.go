package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	referencePath string
	logLevel      string
	logFormat     string
	alertWebhooks []string
	alertFormat   string
	alertOn       []string
)

var rootCmd = &cobra.Command{
	Use:   "vetter",
	Short: "Rule-based account vetting",
	Long: "Fetches a public account profile and checks it against denylists, impersonation\n" +
		"names and activity thresholds. Every verification ends VERIFIED, FLAGGED or DISMISSED\n" +
		"with the full list of triggered rules.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&referencePath, "reference", "", "Path to reference YAML (default ~/.vetter/reference.yaml or $VETTER_REFERENCE)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "console", "Log format: console or json")
	rootCmd.PersistentFlags().StringSliceVar(&alertWebhooks, "alert-webhook", nil, "Webhook URL notified of verdicts (repeatable)")
	rootCmd.PersistentFlags().StringVar(&alertFormat, "alert-format", "generic", "Webhook payload format: generic, slack or pagerduty")
	rootCmd.PersistentFlags().StringSliceVar(&alertOn, "alert-on", []string{"DISMISSED", "FLAGGED"}, "Verdict statuses that trigger a webhook")
}

// exitError carries a process exit code without an error message.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// Execute runs the root command.
// Exit codes: 0 success, 1 error, 2 account dismissed.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
