// Package rules holds the independent predicates the engine runs against a
// profile. Every rule reads only its inputs: no I/O, no shared state, and no
// dependency on the outcome of other rules.
package rules

import (
	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/refdata"
)

// Rule ids in canonical evaluation order.
const (
	IDDenylistedUser  = "denylisted_user"
	IDDenylistedGroup = "denylisted_group"
	IDDenylistedBadge = "denylisted_badge"
	IDBannedWord      = "banned_word"
	IDImpersonation   = "impersonation"
	IDMinAge          = "min_age"
	IDMinFriends      = "min_friends"
	IDMinGroups       = "min_groups"
	IDMinBadges       = "min_badges"

	IDUnofficialGroup    = "unofficial_group"
	IDUsernameDigits     = "username_digits"
	IDSuspiciousUsername = "suspicious_username"
	IDDataIncomplete     = "data_incomplete"
)

// Rule is one named predicate. Evaluate returns a flag and true when the
// rule fires, and the zero Flag and false when the profile passes.
type Rule interface {
	ID() string
	Severity() model.Severity
	Evaluate(p *model.Profile, rd *refdata.ReferenceData) (model.Flag, bool)
}

// checkFunc returns the human message when the rule fires.
type checkFunc func(p *model.Profile, rd *refdata.ReferenceData) (string, bool)

type rule struct {
	id       string
	severity model.Severity
	check    checkFunc
}

func (r rule) ID() string               { return r.id }
func (r rule) Severity() model.Severity { return r.severity }

func (r rule) Evaluate(p *model.Profile, rd *refdata.ReferenceData) (model.Flag, bool) {
	msg, fired := r.check(p, rd)
	if !fired {
		return model.Flag{}, false
	}
	return model.Flag{RuleID: r.id, Severity: r.severity, Message: msg}, true
}

// New builds a rule from a check function. It lets callers add rules without
// touching the engine.
func New(id string, severity model.Severity, check func(p *model.Profile, rd *refdata.ReferenceData) (string, bool)) Rule {
	return rule{id: id, severity: severity, check: check}
}
