package cli

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ppiankov/vetter/internal/refdata"
	"github.com/ppiankov/vetter/internal/rules"
)

var configFormat string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().StringVarP(&configFormat, "format", "f", "text", "Output format: text or json")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Validate the reference file and print a summary",
	Long:  "Loads the reference file with the same checks verify uses and prints list sizes,\nthresholds, the rule order and the file hash. Exits 1 if the file is invalid.",
	Args:  cobra.NoArgs,
	RunE:  runConfig,
}

type configSummary struct {
	Path       string             `json:"path"`
	Hash       string             `json:"hash"`
	Lists      map[string]int     `json:"lists"`
	Thresholds refdata.Thresholds `json:"thresholds"`
	RemoteURL  string             `json:"remote_denylist_url,omitempty"`
	Rules      []string           `json:"rules"`
}

func runConfig(cmd *cobra.Command, args []string) error {
	path := referencePath
	if path == "" {
		p, err := refdata.DefaultPath()
		if err != nil {
			return err
		}
		path = p
	}
	rd, hash, err := refdata.LoadWithHash(path)
	if err != nil {
		return err
	}

	sum := configSummary{
		Path:       path,
		Hash:       hash,
		Lists:      rd.Summary(),
		Thresholds: rd.Thresholds(),
		RemoteURL:  rd.RemoteDenylistURL(),
		Rules:      rules.Default().IDs(),
	}

	out := cmd.OutOrStdout()
	if configFormat == "json" {
		data, err := json.MarshalIndent(sum, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Reference: %s\n", sum.Path)
	fmt.Fprintf(out, "Hash:      %s\n", sum.Hash)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Lists:")
	keys := make([]string, 0, len(sum.Lists))
	for k := range sum.Lists {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(out, "  %-28s %d\n", k, sum.Lists[k])
	}
	fmt.Fprintln(out)
	th := sum.Thresholds
	fmt.Fprintln(out, "Thresholds:")
	fmt.Fprintf(out, "  %-28s %d\n", "min_account_age_days", th.MinAccountAgeDays)
	fmt.Fprintf(out, "  %-28s %d\n", "min_friends", th.MinFriends)
	fmt.Fprintf(out, "  %-28s %d\n", "min_non_trusted_groups", th.MinNonTrustedGroups)
	fmt.Fprintf(out, "  %-28s %d\n", "min_badges", th.MinBadges)
	fmt.Fprintf(out, "  %-28s %d\n", "username_digit_threshold", th.UsernameDigitThreshold)
	fmt.Fprintf(out, "  %-28s %d\n", "impersonation_max_distance", th.ImpersonationMaxDistance)
	fmt.Fprintf(out, "  %-28s %d\n", "oldest_badges_to_check", th.OldestBadgesToCheck)
	if sum.RemoteURL != "" {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "Remote denylist: %s\n", sum.RemoteURL)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Rules (in order):")
	for i, id := range sum.Rules {
		fmt.Fprintf(out, "  %2d. %s\n", i+1, id)
	}
	return nil
}
