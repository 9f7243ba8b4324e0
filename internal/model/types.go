package model

import "time"

// Severity classifies how much weight a triggered rule carries.
type Severity string

const (
	Disqualifying Severity = "disqualifying"
	Advisory      Severity = "advisory"
)

// Status is the verification outcome.
type Status string

const (
	Dismissed Status = "DISMISSED"
	Flagged   Status = "FLAGGED"
	Verified  Status = "VERIFIED"
)

// Group is one group membership of the account.
// OwnerID is 0 when the platform did not report an owner.
type Group struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	OwnerID int64  `json:"owner_id,omitempty"`
	Role    string `json:"role,omitempty"`
}

// Profile is the snapshot of everything fetched about one account.
// It is built once per verification and treated as read-only afterwards.
//
// The zero value of DataComplete means incomplete. A Profile built
// anywhere other than the fetcher (a literal, or JSON without the
// data_complete key) is reported as incomplete until DataComplete is set
// to true, which raises the data_incomplete advisory under the default
// rule set.
type Profile struct {
	UserID         int64   `json:"user_id"`
	Username       string  `json:"username"`
	DisplayName    string  `json:"display_name"`
	AccountAgeDays int     `json:"account_age_days"`
	FriendCount    int     `json:"friend_count"`
	Groups         []Group `json:"groups"`
	BadgeCount     int     `json:"badge_count"`

	// BadgeIDs holds the oldest badges only (see BadgesSampled). Badge
	// denylist matches are therefore limited to that sample.
	BadgeIDs      []int64 `json:"badge_ids"`
	BadgesSampled bool    `json:"badges_sampled"`

	// DataComplete is true only when the fetcher collected everything.
	// It is false when the fetcher stopped early (page cap, repeated
	// cursor) and counts may be lower than the real values, and also when
	// it was never set.
	DataComplete bool `json:"data_complete"`

	Created   time.Time `json:"created,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

// Flag is one triggered rule.
type Flag struct {
	RuleID   string   `json:"rule_id"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Verdict is the structured outcome of one verification run.
type Verdict struct {
	Status        Status `json:"status"`
	Flags         []Flag `json:"flags"`
	Disqualifying bool   `json:"disqualifying"`
}
