package rules

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/refdata"
)

// UnofficialGroup fires when the account is in a group whose name carries a
// protected keyword but which is neither trusted nor owned by a trusted owner.
func UnofficialGroup() Rule {
	return New(IDUnofficialGroup, model.Disqualifying, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		var hits []string
		for _, g := range p.Groups {
			if rd.IsTrustedGroup(g.ID) || rd.IsTrustedOwner(g.OwnerID) {
				continue
			}
			if _, ok := rd.MatchesProtectedGroup(g.Name); ok {
				hits = append(hits, groupLabel(g))
			}
		}
		if len(hits) == 0 {
			return "", false
		}
		return "User is in an unofficial copy of a protected group: " + strings.Join(hits, ", ") + ".", true
	})
}

// UsernameDigits fires when the username has at least the configured number
// of digits. A threshold of 0 disables the rule.
func UsernameDigits() Rule {
	return New(IDUsernameDigits, model.Advisory, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		limit := rd.Thresholds().UsernameDigitThreshold
		if limit == 0 {
			return "", false
		}
		digits := 0
		for _, r := range p.Username {
			if unicode.IsDigit(r) {
				digits++
			}
		}
		if digits >= limit {
			return fmt.Sprintf("Username contains %d digits (>= %d).", digits, limit), true
		}
		return "", false
	})
}

// SuspiciousUsername fires when the username contains an advisory word such as "alt".
func SuspiciousUsername() Rule {
	return New(IDSuspiciousUsername, model.Advisory, func(p *model.Profile, rd *refdata.ReferenceData) (string, bool) {
		if w, ok := rd.ContainsSuspiciousWord(p.Username); ok {
			return fmt.Sprintf("Username contains '%s'.", w), true
		}
		return "", false
	})
}

// DataIncomplete fires when the fetcher could not collect complete data, so
// count-based rules may have scored against partial numbers.
func DataIncomplete() Rule {
	return New(IDDataIncomplete, model.Advisory, func(p *model.Profile, _ *refdata.ReferenceData) (string, bool) {
		if !p.DataComplete {
			return "Profile data is incomplete (pagination cap reached); counts may be understated. Manual review required.", true
		}
		return "", false
	})
}
