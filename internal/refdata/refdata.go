package refdata

import (
	"fmt"
	"sort"
	"strings"
)

type idSet map[int64]struct{}

func (s idSet) has(id int64) bool {
	_, ok := s[id]
	return ok
}

type protectedName struct {
	raw        string
	normalized string
}

// ReferenceData is an immutable snapshot of denylists, allowlists and
// thresholds. All lookups are read-only and safe for concurrent use.
// Use WithRemoteUsers to derive a new snapshot; never mutate one in place.
type ReferenceData struct {
	trustedOwners idSet
	trustedGroups idSet
	deniedGroups  idSet
	deniedUsers   idSet
	deniedBadges  idSet

	bannedWords     []string // lowercase, sorted
	suspiciousWords []string // lowercase, sorted
	groupKeywords   []string // lowercase, sorted
	impersonation   []protectedName

	remoteUsers int
	remoteURL   string
	thresholds  Thresholds
}

// New validates the lists and thresholds and builds a snapshot.
// Duplicates inside a list are collapsed; conflicting entries are rejected.
func New(l Lists, th Thresholds) (*ReferenceData, error) {
	if err := validateThresholds(th); err != nil {
		return nil, err
	}

	rd := &ReferenceData{thresholds: th, remoteURL: strings.TrimSpace(l.RemoteDenylistURL)}

	var err error
	if rd.trustedOwners, err = buildIDSet("trusted_owner_ids", l.TrustedOwnerIDs); err != nil {
		return nil, err
	}
	if rd.trustedGroups, err = buildIDSet("trusted_group_ids", l.TrustedGroupIDs); err != nil {
		return nil, err
	}
	if rd.deniedGroups, err = buildIDSet("denylisted_group_ids", l.DenylistedGroupIDs); err != nil {
		return nil, err
	}
	if rd.deniedUsers, err = buildIDSet("denylisted_user_ids", l.DenylistedUserIDs); err != nil {
		return nil, err
	}
	if rd.deniedBadges, err = buildIDSet("denylisted_badge_ids", l.DenylistedBadgeIDs); err != nil {
		return nil, err
	}

	for id := range rd.trustedGroups {
		if rd.deniedGroups.has(id) {
			return nil, &ConfigError{Field: "trusted_group_ids", Reason: fmt.Sprintf("group %d is also in denylisted_group_ids", id)}
		}
	}
	for id := range rd.trustedOwners {
		if rd.deniedUsers.has(id) {
			return nil, &ConfigError{Field: "trusted_owner_ids", Reason: fmt.Sprintf("owner %d is also in denylisted_user_ids", id)}
		}
	}

	if rd.bannedWords, err = buildWordList("banned_username_words", l.BannedUsernameWords); err != nil {
		return nil, err
	}
	if rd.suspiciousWords, err = buildWordList("suspicious_username_words", l.SuspiciousUsernameWords); err != nil {
		return nil, err
	}
	if rd.groupKeywords, err = buildWordList("protected_group_keywords", l.ProtectedGroupKeywords); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	for i, name := range l.ImpersonationNames {
		n := NormalizeName(name)
		if n == "" {
			return nil, &ConfigError{Field: fmt.Sprintf("impersonation_names[%d]", i), Reason: "name is empty after normalisation"}
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		rd.impersonation = append(rd.impersonation, protectedName{raw: strings.TrimSpace(name), normalized: n})
	}
	sort.Slice(rd.impersonation, func(i, j int) bool {
		return rd.impersonation[i].normalized < rd.impersonation[j].normalized
	})

	return rd, nil
}

func validateThresholds(th Thresholds) error {
	fields := []struct {
		key string
		v   int
	}{
		{"thresholds.min_account_age_days", th.MinAccountAgeDays},
		{"thresholds.min_friends", th.MinFriends},
		{"thresholds.min_non_trusted_groups", th.MinNonTrustedGroups},
		{"thresholds.min_badges", th.MinBadges},
		{"thresholds.username_digit_threshold", th.UsernameDigitThreshold},
		{"thresholds.impersonation_max_distance", th.ImpersonationMaxDistance},
		{"thresholds.oldest_badges_to_check", th.OldestBadgesToCheck},
	}
	for _, f := range fields {
		if f.v < 0 {
			return &ConfigError{Field: f.key, Reason: fmt.Sprintf("must be non-negative, got %d", f.v)}
		}
	}
	if th.ImpersonationMaxDistance > 3 {
		return &ConfigError{Field: "thresholds.impersonation_max_distance", Reason: fmt.Sprintf("must be at most 3, got %d", th.ImpersonationMaxDistance)}
	}
	return nil
}

func buildIDSet(field string, ids []int64) (idSet, error) {
	s := make(idSet, len(ids))
	for i, id := range ids {
		if id <= 0 {
			return nil, &ConfigError{Field: fmt.Sprintf("%s[%d]", field, i), Reason: fmt.Sprintf("id must be positive, got %d", id)}
		}
		s[id] = struct{}{}
	}
	return s, nil
}

func buildWordList(field string, words []string) ([]string, error) {
	seen := make(map[string]bool, len(words))
	out := make([]string, 0, len(words))
	for i, w := range words {
		lw := strings.ToLower(strings.TrimSpace(w))
		if lw == "" {
			return nil, &ConfigError{Field: fmt.Sprintf("%s[%d]", field, i), Reason: "word is empty"}
		}
		if seen[lw] {
			continue
		}
		seen[lw] = true
		out = append(out, lw)
	}
	sort.Strings(out)
	return out, nil
}

// Thresholds returns the configured numeric limits.
func (rd *ReferenceData) Thresholds() Thresholds {
	return rd.thresholds
}

// RemoteDenylistURL returns the configured remote CSV source, if any.
func (rd *ReferenceData) RemoteDenylistURL() string {
	return rd.remoteURL
}

// IsTrustedOwner reports whether id is a trusted owner.
func (rd *ReferenceData) IsTrustedOwner(id int64) bool {
	return rd.trustedOwners.has(id)
}

// IsTrustedGroup reports whether the group is neutral for group counting.
func (rd *ReferenceData) IsTrustedGroup(id int64) bool {
	return rd.trustedGroups.has(id)
}

// IsDenylistedGroup reports whether the group is on the denylist.
func (rd *ReferenceData) IsDenylistedGroup(id int64) bool {
	return rd.deniedGroups.has(id)
}

// IsDenylistedUser reports whether the account is on the local or remote denylist.
func (rd *ReferenceData) IsDenylistedUser(id int64) bool {
	return rd.deniedUsers.has(id)
}

// IsDenylistedBadge reports whether the badge is on the denylist.
func (rd *ReferenceData) IsDenylistedBadge(id int64) bool {
	return rd.deniedBadges.has(id)
}

// ContainsBannedWord reports the first banned word (in sorted order) found
// in text, case-insensitively.
func (rd *ReferenceData) ContainsBannedWord(text string) (string, bool) {
	return firstSubstring(rd.bannedWords, text)
}

// ContainsSuspiciousWord reports the first advisory word found in text.
func (rd *ReferenceData) ContainsSuspiciousWord(text string) (string, bool) {
	return firstSubstring(rd.suspiciousWords, text)
}

// MatchesProtectedGroup reports the first protected keyword found in a group name.
func (rd *ReferenceData) MatchesProtectedGroup(name string) (string, bool) {
	return firstSubstring(rd.groupKeywords, name)
}

func firstSubstring(words []string, text string) (string, bool) {
	if text == "" {
		return "", false
	}
	lower := strings.ToLower(text)
	for _, w := range words {
		if strings.Contains(lower, w) {
			return w, true
		}
	}
	return "", false
}

// Shorter names collide with unrelated real names after a single edit
// (Jason/Mason, Smith/Smiths).
const nearMatchMinRunes = 8

// MatchesImpersonation reports the protected name that name equals or
// nearly equals after normalisation. Near matches are only considered when
// impersonation_max_distance is set, and only for protected names of at
// least nearMatchMinRunes characters.
func (rd *ReferenceData) MatchesImpersonation(name string) (string, bool) {
	n := NormalizeName(name)
	if n == "" {
		return "", false
	}
	for _, p := range rd.impersonation {
		if n == p.normalized {
			return p.raw, true
		}
	}
	maxDist := rd.thresholds.ImpersonationMaxDistance
	if maxDist == 0 {
		return "", false
	}
	for _, p := range rd.impersonation {
		if runeLen(p.normalized) < nearMatchMinRunes {
			continue
		}
		if levenshtein(n, p.normalized, maxDist) <= maxDist {
			return p.raw, true
		}
	}
	return "", false
}

// WithRemoteUsers returns a new snapshot whose user denylist is the union of
// the receiver's list and ids. The receiver is left untouched, so in-flight
// verifications holding it keep a consistent view.
func (rd *ReferenceData) WithRemoteUsers(ids map[int64]struct{}) *ReferenceData {
	if len(ids) == 0 {
		return rd
	}
	merged := *rd
	merged.deniedUsers = make(idSet, len(rd.deniedUsers)+len(ids))
	for id := range rd.deniedUsers {
		merged.deniedUsers[id] = struct{}{}
	}
	added := 0
	for id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := merged.deniedUsers[id]; !ok {
			added++
		}
		merged.deniedUsers[id] = struct{}{}
	}
	merged.remoteUsers = rd.remoteUsers + added
	return &merged
}

// Summary returns list sizes for display.
func (rd *ReferenceData) Summary() map[string]int {
	return map[string]int{
		"trusted_owner_ids":          len(rd.trustedOwners),
		"trusted_group_ids":          len(rd.trustedGroups),
		"denylisted_group_ids":       len(rd.deniedGroups),
		"denylisted_user_ids":        len(rd.deniedUsers),
		"denylisted_badge_ids":       len(rd.deniedBadges),
		"remote_denylisted_user_ids": rd.remoteUsers,
		"banned_username_words":      len(rd.bannedWords),
		"impersonation_names":        len(rd.impersonation),
		"protected_group_keywords":   len(rd.groupKeywords),
		"suspicious_username_words":  len(rd.suspiciousWords),
	}
}
