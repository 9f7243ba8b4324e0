package rules

import (
	"fmt"
	"strings"
)

// Set is an ordered list of rules. Flags are always reported in Set order.
type Set []Rule

// Canonical returns the nine core rules in their fixed order.
func Canonical() Set {
	return Set{
		DenylistedUser(),
		DenylistedGroup(),
		DenylistedBadge(),
		BannedWord(),
		Impersonation(),
		MinAge(),
		MinFriends(),
		MinGroups(),
		MinBadges(),
	}
}

// Default returns the canonical rules followed by the supplementary checks.
func Default() Set {
	return append(Canonical(),
		UnofficialGroup(),
		UsernameDigits(),
		SuspiciousUsername(),
		DataIncomplete(),
	)
}

// IDs returns the rule ids in order.
func (s Set) IDs() []string {
	ids := make([]string, len(s))
	for i, r := range s {
		ids[i] = r.ID()
	}
	return ids
}

// Without returns a copy of the set minus the given ids.
func (s Set) Without(ids ...string) Set {
	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	out := make(Set, 0, len(s))
	for _, r := range s {
		if !drop[r.ID()] {
			out = append(out, r)
		}
	}
	return out
}

// Lookup finds a rule of the default set by id.
func Lookup(id string) (Rule, bool) {
	for _, r := range Default() {
		if r.ID() == id {
			return r, true
		}
	}
	return nil, false
}

// Select returns the default rules whose ids are listed, keeping the
// default order regardless of the order of ids. Unknown ids are an error.
func Select(ids []string) (Set, error) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := Lookup(id); !ok {
			return nil, fmt.Errorf("unknown rule %q (known: %s)", id, strings.Join(Default().IDs(), ", "))
		}
		want[id] = true
	}
	if len(want) == 0 {
		return nil, fmt.Errorf("no rules selected")
	}

	var out Set
	for _, r := range Default() {
		if want[r.ID()] {
			out = append(out, r)
		}
	}
	return out, nil
}
