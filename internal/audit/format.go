package audit

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const separator = "──────────────────────────────────────────────────────────────────"

// FormatTimeline renders a query result as a text table, one line per
// verification.
func FormatTimeline(res *Result) string {
	if len(res.Entries) == 0 {
		return "No verifications found.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Verifications %s to %s UTC\n",
		formatStamp(res.Summary.FirstTimestamp, "2006-01-02 15:04:05"),
		formatStamp(res.Summary.LastTimestamp, "2006-01-02 15:04:05"))
	b.WriteString(separator + "\n")

	for _, e := range res.Entries {
		fmt.Fprintf(&b, "%-19s %-10s %-12d %-20s %s\n",
			formatStamp(e.Timestamp, "2006-01-02 15:04:05"),
			e.Status,
			e.UserID,
			truncate(e.Username, 20),
			ruleList(e.Flags))
	}

	b.WriteString(separator + "\n")
	s := res.Summary
	fmt.Fprintf(&b, "Summary: %d total | %d verified, %d flagged, %d dismissed\n",
		s.Total, s.Verified, s.Flagged, s.Dismissed)
	return b.String()
}

// FormatJSON renders a query result as indented JSON.
func FormatJSON(res *Result) (string, error) {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal audit result: %w", err)
	}
	return string(data), nil
}

func ruleList(flags []FlagRecord) string {
	if len(flags) == 0 {
		return "-"
	}
	ids := make([]string, len(flags))
	for i, f := range flags {
		ids[i] = f.RuleID
	}
	return strings.Join(ids, ",")
}

func formatStamp(ts, layout string) string {
	t, err := time.Parse(TimestampFormat, ts)
	if err != nil {
		return ts
	}
	return t.Format(layout)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
