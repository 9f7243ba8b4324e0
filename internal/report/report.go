// Package report renders verdicts for terminals and persists them as JSON.
// It only serializes; every decision has already been made by the engine.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/refdata"
)

const separator = "──────────────────────────────────────────────────────────────────"

// RemoteStatus describes the optional remote denylist used for a run.
type RemoteStatus struct {
	URL    string `json:"url"`
	Loaded bool   `json:"loaded"`
	IDs    int    `json:"ids"`
}

// PreviousCheck is the most recent earlier verification of the same account.
type PreviousCheck struct {
	Status    model.Status `json:"status"`
	CheckedAt time.Time    `json:"checked_at"`
	RefHash   string       `json:"ref_hash,omitempty"`
}

// Report is a verdict together with the snapshot it was computed from.
type Report struct {
	GeneratedAt      time.Time          `json:"generated_at"`
	Profile          *model.Profile     `json:"profile"`
	ProfileURL       string             `json:"profile_url"`
	AvatarURL        string             `json:"avatar_url,omitempty"`
	NonTrustedGroups int                `json:"non_trusted_groups"`
	Verdict          model.Verdict      `json:"verdict"`
	RefHash          string             `json:"ref_hash"`
	Thresholds       refdata.Thresholds `json:"thresholds"`
	Reference        map[string]int     `json:"reference"`
	Remote           *RemoteStatus      `json:"remote_denylist,omitempty"`
	Previous         *PreviousCheck     `json:"previous,omitempty"`
}

// New assembles a report. rd is the snapshot the verdict was computed with.
func New(p *model.Profile, v model.Verdict, rd *refdata.ReferenceData, refHash string, at time.Time) Report {
	r := Report{
		GeneratedAt: at.UTC(),
		Profile:     p,
		Verdict:     v,
		RefHash:     refHash,
	}
	if p != nil {
		r.ProfileURL = p.ProfileURL()
	}
	if rd != nil {
		r.Thresholds = rd.Thresholds()
		r.Reference = rd.Summary()
		if p != nil {
			r.NonTrustedGroups = p.NonTrustedGroupCount(rd.IsTrustedGroup)
		}
	}
	return r
}

// FormatText renders r for a terminal.
func FormatText(r Report) string {
	var b strings.Builder
	p := r.Profile
	if p == nil {
		p = &model.Profile{}
	}

	fmt.Fprintf(&b, "Account: %s (%d)\n", p.Username, p.UserID)
	if p.DisplayName != "" && p.DisplayName != p.Username {
		fmt.Fprintf(&b, "Display name: %s\n", p.DisplayName)
	}
	if r.ProfileURL != "" {
		fmt.Fprintf(&b, "Profile: %s\n", r.ProfileURL)
	}
	fmt.Fprintf(&b, "Status: %s\n", r.Verdict.Status)
	if r.Previous != nil {
		fmt.Fprintf(&b, "Previous: %s (%s)\n", r.Previous.Status, r.Previous.CheckedAt.UTC().Format(time.RFC3339))
	}
	b.WriteString(separator + "\n")

	fmt.Fprintf(&b, "Account age:  %d days\n", p.AccountAgeDays)
	fmt.Fprintf(&b, "Friends:      %d\n", p.FriendCount)
	fmt.Fprintf(&b, "Groups:       %d (%d non-trusted)\n", len(p.Groups), r.NonTrustedGroups)
	badges := fmt.Sprintf("%d", p.BadgeCount)
	if r.Thresholds.MinBadges > 0 && p.BadgeCount >= r.Thresholds.MinBadges {
		badges = fmt.Sprintf("%d+", p.BadgeCount)
	}
	fmt.Fprintf(&b, "Badges:       %s\n", badges)
	if !p.DataComplete {
		b.WriteString("Data:         incomplete\n")
	}
	b.WriteString(separator + "\n")

	writeFlags(&b, "Disqualifying", r.Verdict, model.Disqualifying)
	writeFlags(&b, "Review", r.Verdict, model.Advisory)
	if len(r.Verdict.Flags) == 0 {
		b.WriteString("No rules triggered.\n")
	}

	b.WriteString(separator + "\n")
	if r.Remote != nil {
		state := "loaded"
		if !r.Remote.Loaded {
			state = "unavailable, local lists only"
		}
		fmt.Fprintf(&b, "Remote denylist: %s (%d ids)\n", state, r.Remote.IDs)
	}
	fmt.Fprintf(&b, "Reference: %s\n", r.RefHash)
	fmt.Fprintf(&b, "Generated: %s\n", r.GeneratedAt.Format(time.RFC3339))
	return b.String()
}

func writeFlags(b *strings.Builder, title string, v model.Verdict, sev model.Severity) {
	if v.Count(sev) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", title)
	for _, f := range v.Flags {
		if f.Severity == sev {
			fmt.Fprintf(b, "  [%s] %s\n", f.RuleID, f.Message)
		}
	}
}

// FormatJSON renders r as indented JSON.
func FormatJSON(r Report) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}
	return string(data), nil
}

// Filename returns the report file name for r.
func Filename(r Report) string {
	id := "unknown"
	if r.Profile != nil && r.Profile.UserID > 0 {
		id = fmt.Sprintf("%d", r.Profile.UserID)
	}
	return SafeFilename(fmt.Sprintf("report_%s_%s.json", id, r.GeneratedAt.UTC().Format("20060102T150405Z")))
}

// WriteFile writes r as JSON into dir using a temp file and rename, and
// returns the final path.
func WriteFile(dir string, r Report) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal report: %w", err)
	}

	final := filepath.Join(dir, Filename(r))
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o600); err != nil {
		return "", fmt.Errorf("write temp: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("rename report: %w", err)
	}
	return final, nil
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// SafeFilename replaces anything outside [A-Za-z0-9_.-] with '_' and caps
// the result at 200 bytes.
func SafeFilename(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
