// Package alert posts verification verdicts to webhook endpoints.
package alert

import (
	"time"

	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/report"
)

// Config defines a webhook alert destination.
type Config struct {
	URL      string            `yaml:"url"      json:"url"`
	Format   string            `yaml:"format"   json:"format"`   // "generic", "slack", "pagerduty"
	Statuses []string          `yaml:"statuses" json:"statuses"` // ["DISMISSED", "FLAGGED"]
	Headers  map[string]string `yaml:"headers"  json:"headers"`
}

// Event is the payload sent to webhook endpoints.
type Event struct {
	Timestamp     string   `json:"timestamp"`
	UserID        int64    `json:"user_id"`
	Username      string   `json:"username"`
	Status        string   `json:"status"`
	Disqualifying []string `json:"disqualifying,omitempty"`
	Review        []string `json:"review,omitempty"`
	Rules         []string `json:"rules,omitempty"`
	ProfileURL    string   `json:"profile_url"`
	RefHash       string   `json:"ref_hash"`
	Source        string   `json:"source,omitempty"`
}

// NewEvent builds the alert payload for a finished verification.
func NewEvent(r report.Report, source string) Event {
	e := Event{
		Timestamp:     r.GeneratedAt.UTC().Format(time.RFC3339),
		Status:        string(r.Verdict.Status),
		Disqualifying: r.Verdict.Messages(model.Disqualifying),
		Review:        r.Verdict.Messages(model.Advisory),
		Rules:         r.Verdict.RuleIDs(),
		ProfileURL:    r.ProfileURL,
		RefHash:       r.RefHash,
		Source:        source,
	}
	if r.Profile != nil {
		e.UserID = r.Profile.UserID
		e.Username = r.Profile.Username
	}
	return e
}
