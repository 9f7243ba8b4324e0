package refdata

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// EnvPath overrides the default reference file location.
const EnvPath = "VETTER_REFERENCE"

// Thresholds holds the numeric limits used by the advisory rules.
type Thresholds struct {
	MinAccountAgeDays        int `yaml:"min_account_age_days" json:"min_account_age_days"`
	MinFriends               int `yaml:"min_friends" json:"min_friends"`
	MinNonTrustedGroups      int `yaml:"min_non_trusted_groups" json:"min_non_trusted_groups"`
	MinBadges                int `yaml:"min_badges" json:"min_badges"`
	UsernameDigitThreshold   int `yaml:"username_digit_threshold" json:"username_digit_threshold"`
	ImpersonationMaxDistance int `yaml:"impersonation_max_distance" json:"impersonation_max_distance"`
	OldestBadgesToCheck      int `yaml:"oldest_badges_to_check" json:"oldest_badges_to_check"`
}

// DefaultThresholds returns the built-in limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinAccountAgeDays:        60,
		MinFriends:               30,
		MinNonTrustedGroups:      13,
		MinBadges:                300,
		UsernameDigitThreshold:   4,
		ImpersonationMaxDistance: 0,
		OldestBadgesToCheck:      90,
	}
}

// Lists holds the raw identifier and word lists.
type Lists struct {
	TrustedOwnerIDs         []int64
	TrustedGroupIDs         []int64
	DenylistedGroupIDs      []int64
	DenylistedUserIDs       []int64
	DenylistedBadgeIDs      []int64
	BannedUsernameWords     []string
	ImpersonationNames      []string
	ProtectedGroupKeywords  []string
	SuspiciousUsernameWords []string
	RemoteDenylistURL       string
}

// fileConfig is the on-disk shape. Security-relevant lists are pointers so
// that an absent key can be told apart from an explicitly empty list.
type fileConfig struct {
	TrustedOwnerIDs         []int64    `yaml:"trusted_owner_ids"`
	TrustedGroupIDs         []int64    `yaml:"trusted_group_ids"`
	DenylistedGroupIDs      *[]int64   `yaml:"denylisted_group_ids"`
	DenylistedUserIDs       *[]int64   `yaml:"denylisted_user_ids"`
	DenylistedBadgeIDs      *[]int64   `yaml:"denylisted_badge_ids"`
	BannedUsernameWords     *[]string  `yaml:"banned_username_words"`
	ImpersonationNames      *[]string  `yaml:"impersonation_names"`
	ProtectedGroupKeywords  []string   `yaml:"protected_group_keywords"`
	SuspiciousUsernameWords []string   `yaml:"suspicious_username_words"`
	RemoteDenylistURL       string     `yaml:"remote_denylist_url"`
	Thresholds              Thresholds `yaml:"thresholds"`
}

// DefaultPath returns ~/.vetter/reference.yaml, or $VETTER_REFERENCE when set.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".vetter", "reference.yaml"), nil
}

// Load reads reference data from a YAML file.
// Empty path falls back to DefaultPath. Unlike thresholds, the denylists are
// never defaulted: a missing file or a missing list is a *ConfigError.
func Load(path string) (*ReferenceData, error) {
	rd, _, err := LoadWithHash(path)
	return rd, err
}

// LoadWithHash loads reference data and returns the SHA-256 of the raw file.
func LoadWithHash(path string) (*ReferenceData, string, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, "", &ConfigError{Field: "path", Reason: "cannot determine home directory", Err: err}
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", &ConfigError{Field: "path", Reason: fmt.Sprintf("reference file %s not found (run `vetter init`)", path), Err: err}
		}
		return nil, "", &ConfigError{Field: "path", Reason: "failed to read reference file", Err: err}
	}

	rd, err := Parse(data)
	if err != nil {
		return nil, "", err
	}
	return rd, HashBytes(data), nil
}

// Parse decodes and validates reference data from raw YAML.
func Parse(data []byte) (*ReferenceData, error) {
	cfg := fileConfig{Thresholds: DefaultThresholds()}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &ConfigError{Field: "file", Reason: "reference file is empty"}
		}
		return nil, &ConfigError{Field: "file", Reason: "failed to parse reference file", Err: err}
	}

	required := []struct {
		key     string
		present bool
	}{
		{"denylisted_group_ids", cfg.DenylistedGroupIDs != nil},
		{"denylisted_user_ids", cfg.DenylistedUserIDs != nil},
		{"denylisted_badge_ids", cfg.DenylistedBadgeIDs != nil},
		{"banned_username_words", cfg.BannedUsernameWords != nil},
		{"impersonation_names", cfg.ImpersonationNames != nil},
	}
	for _, r := range required {
		if !r.present {
			return nil, &ConfigError{Field: r.key, Reason: "required list is missing (use [] for an empty list)"}
		}
	}

	lists := Lists{
		TrustedOwnerIDs:         cfg.TrustedOwnerIDs,
		TrustedGroupIDs:         cfg.TrustedGroupIDs,
		DenylistedGroupIDs:      *cfg.DenylistedGroupIDs,
		DenylistedUserIDs:       *cfg.DenylistedUserIDs,
		DenylistedBadgeIDs:      *cfg.DenylistedBadgeIDs,
		BannedUsernameWords:     *cfg.BannedUsernameWords,
		ImpersonationNames:      *cfg.ImpersonationNames,
		ProtectedGroupKeywords:  cfg.ProtectedGroupKeywords,
		SuspiciousUsernameWords: cfg.SuspiciousUsernameWords,
		RemoteDenylistURL:       cfg.RemoteDenylistURL,
	}
	return New(lists, cfg.Thresholds)
}

// HashBytes returns "sha256:<hex>" of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(h[:])
}

// DefaultYAML returns a commented reference file for `vetter init`.
func DefaultYAML() string {
	return `# vetter reference data
# Generated by: vetter init
#
# Rule order (cannot be changed):
#   denylisted_user, denylisted_group, denylisted_badge, banned_word,
#   impersonation                                   -> DISMISSED
#   min_age, min_friends, min_groups, min_badges   -> FLAGGED
#   unofficial_group                               -> DISMISSED
#   username_digits, suspicious_username,
#   data_incomplete                                -> FLAGGED
#
# The five denylist/word lists below are required. Use [] for an empty list;
# vetter refuses to run when one of them is missing.

# Owners whose groups and display names are trusted.
trusted_owner_ids: []

# Groups that do not count towards min_non_trusted_groups.
trusted_group_ids: []

denylisted_group_ids: []
denylisted_user_ids: []
denylisted_badge_ids: []

# Case-insensitive substrings matched against username and display name.
banned_username_words: []

# Protected names. Exact and near matches (edit distance, see thresholds)
# are disqualifying unless the account is a trusted owner.
impersonation_names: []

# Group names containing one of these keywords must be a trusted group or be
# owned by a trusted owner.
protected_group_keywords: []

# Advisory substrings, e.g. "alt".
suspicious_username_words:
  - alt

# Optional CSV export merged into denylisted_user_ids at run time.
# Only https://docs.google.com URLs are accepted.
remote_denylist_url: ""

thresholds:
  min_account_age_days: 60
  min_friends: 30
  min_non_trusted_groups: 13
  min_badges: 300
  username_digit_threshold: 4   # 0 disables
  impersonation_max_distance: 0 # >0 allows edits on names of 8+ characters
  oldest_badges_to_check: 90
`
}
