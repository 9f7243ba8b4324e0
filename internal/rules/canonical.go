package rules

import (
	"fmt"
	"strings"

	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/refdata"
)

// DenylistedUser fires when the account id is on the local or merged remote denylist.
func DenylistedUser() Rule {
	return New(IDDenylistedUser, model.Disqualifying, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		if rd.IsDenylistedUser(p.UserID) {
			return fmt.Sprintf("User %d is on the denylist.", p.UserID), true
		}
		return "", false
	})
}

// DenylistedGroup fires when the account belongs to any denylisted group.
func DenylistedGroup() Rule {
	return New(IDDenylistedGroup, model.Disqualifying, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		var hits []string
		for _, g := range p.Groups {
			if rd.IsDenylistedGroup(g.ID) {
				hits = append(hits, groupLabel(g))
			}
		}
		if len(hits) == 0 {
			return "", false
		}
		return "User is in a denylisted group: " + strings.Join(hits, ", ") + ".", true
	})
}

// DenylistedBadge fires when a held badge is denylisted. Only the sampled
// (oldest) badges are visible to this rule.
func DenylistedBadge() Rule {
	return New(IDDenylistedBadge, model.Disqualifying, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		var hits []string
		for _, id := range p.BadgeIDs {
			if rd.IsDenylistedBadge(id) {
				hits = append(hits, fmt.Sprintf("%d", id))
			}
		}
		if len(hits) == 0 {
			return "", false
		}
		scope := "held badges"
		if p.BadgesSampled {
			scope = fmt.Sprintf("the %d oldest badges", len(p.BadgeIDs))
		}
		return fmt.Sprintf("Denylisted badge found among %s (ID: %s).", scope, strings.Join(hits, ", ")), true
	})
}

// BannedWord fires when the username or display name contains a banned word.
func BannedWord() Rule {
	return New(IDBannedWord, model.Disqualifying, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		if w, ok := rd.ContainsBannedWord(p.Username); ok {
			return fmt.Sprintf("Username contains banned term: '%s'.", w), true
		}
		if w, ok := rd.ContainsBannedWord(p.DisplayName); ok {
			return fmt.Sprintf("Display name contains banned term: '%s'.", w), true
		}
		return "", false
	})
}

// Impersonation fires when the display name or username matches a protected
// name and the account is not a trusted owner.
func Impersonation() Rule {
	return New(IDImpersonation, model.Disqualifying, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		if rd.IsTrustedOwner(p.UserID) {
			return "", false
		}
		if name, ok := rd.MatchesImpersonation(p.DisplayName); ok {
			return fmt.Sprintf("Display name %q impersonates protected member %q.", p.DisplayName, name), true
		}
		if name, ok := rd.MatchesImpersonation(p.Username); ok {
			return fmt.Sprintf("Username %q impersonates protected member %q.", p.Username, name), true
		}
		return "", false
	})
}

// MinAge fires when the account is younger than the configured minimum.
func MinAge() Rule {
	return New(IDMinAge, model.Advisory, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		limit := rd.Thresholds().MinAccountAgeDays
		if p.AccountAgeDays < limit {
			return fmt.Sprintf("Account is %d days old (under %d).", p.AccountAgeDays, limit), true
		}
		return "", false
	})
}

// MinFriends fires when the friend count is below the configured minimum.
func MinFriends() Rule {
	return New(IDMinFriends, model.Advisory, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		limit := rd.Thresholds().MinFriends
		if p.FriendCount < limit {
			return fmt.Sprintf("Fewer than %d friends (%d).", limit, p.FriendCount), true
		}
		return "", false
	})
}

// MinGroups fires when too few groups remain after excluding trusted groups.
func MinGroups() Rule {
	return New(IDMinGroups, model.Advisory, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		limit := rd.Thresholds().MinNonTrustedGroups
		n := p.NonTrustedGroupCount(rd.IsTrustedGroup)
		if n < limit {
			return fmt.Sprintf("Fewer than %d non-trusted groups (%d).", limit, n), true
		}
		return "", false
	})
}

// MinBadges fires when the badge count is below the configured minimum.
func MinBadges() Rule {
	return New(IDMinBadges, model.Advisory, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		limit := rd.Thresholds().MinBadges
		if p.BadgeCount < limit {
			return fmt.Sprintf("Fewer than %d badges (%d total).", limit, p.BadgeCount), true
		}
		return "", false
	})
}

func groupLabel(g model.Group) string {
	if g.Name == "" {
		return fmt.Sprintf("%d", g.ID)
	}
	return fmt.Sprintf("%s (%d)", g.Name, g.ID)
}
