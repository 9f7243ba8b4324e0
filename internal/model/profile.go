package model

import (
	"fmt"
	"strings"
)

// ProfileError reports a snapshot that breaks the fetcher contract.
type ProfileError struct {
	Field  string
	Reason string
}

func (e *ProfileError) Error() string {
	return fmt.Sprintf("invalid profile: %s: %s", e.Field, e.Reason)
}

// Validate checks that the snapshot is fully populated.
// Absent values are never read as zero: a snapshot without an id or a
// username, or with negative counts, is rejected.
func (p *Profile) Validate() error {
	if p == nil {
		return &ProfileError{Field: "profile", Reason: "is nil"}
	}
	if p.UserID <= 0 {
		return &ProfileError{Field: "user_id", Reason: fmt.Sprintf("must be positive, got %d", p.UserID)}
	}
	if strings.TrimSpace(p.Username) == "" {
		return &ProfileError{Field: "username", Reason: "is empty"}
	}
	if p.AccountAgeDays < 0 {
		return &ProfileError{Field: "account_age_days", Reason: fmt.Sprintf("must be non-negative, got %d", p.AccountAgeDays)}
	}
	if p.FriendCount < 0 {
		return &ProfileError{Field: "friend_count", Reason: fmt.Sprintf("must be non-negative, got %d", p.FriendCount)}
	}
	if p.BadgeCount < 0 {
		return &ProfileError{Field: "badge_count", Reason: fmt.Sprintf("must be non-negative, got %d", p.BadgeCount)}
	}

	seenGroups := make(map[int64]bool, len(p.Groups))
	for i, g := range p.Groups {
		if g.ID <= 0 {
			return &ProfileError{Field: fmt.Sprintf("groups[%d].id", i), Reason: fmt.Sprintf("must be positive, got %d", g.ID)}
		}
		if seenGroups[g.ID] {
			return &ProfileError{Field: fmt.Sprintf("groups[%d].id", i), Reason: fmt.Sprintf("duplicate group %d", g.ID)}
		}
		seenGroups[g.ID] = true
	}

	seenBadges := make(map[int64]bool, len(p.BadgeIDs))
	for i, id := range p.BadgeIDs {
		if id <= 0 {
			return &ProfileError{Field: fmt.Sprintf("badge_ids[%d]", i), Reason: fmt.Sprintf("must be positive, got %d", id)}
		}
		if seenBadges[id] {
			return &ProfileError{Field: fmt.Sprintf("badge_ids[%d]", i), Reason: fmt.Sprintf("duplicate badge %d", id)}
		}
		seenBadges[id] = true
	}

	return nil
}

// NonTrustedGroupCount counts groups for which isTrusted returns false.
func (p *Profile) NonTrustedGroupCount(isTrusted func(int64) bool) int {
	n := 0
	for _, g := range p.Groups {
		if !isTrusted(g.ID) {
			n++
		}
	}
	return n
}

// ProfileURL returns the public profile page for the account.
func (p *Profile) ProfileURL() string {
	return fmt.Sprintf("https://www.roblox.com/users/%d/profile", p.UserID)
}
