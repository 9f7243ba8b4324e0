package rules

import (
	"strings"
	"testing"

	"github.com/ppiankov/vetter/internal/model"
	"github.com/ppiankov/vetter/internal/refdata"
)

func testRef(t *testing.T) *refdata.ReferenceData {
	t.Helper()
	rd, err := refdata.New(refdata.Lists{
		TrustedOwnerIDs:         []int64{1000},
		TrustedGroupIDs:         []int64{1, 2},
		DenylistedGroupIDs:      []int64{666},
		DenylistedUserIDs:       []int64{13},
		DenylistedBadgeIDs:      []int64{999},
		BannedUsernameWords:     []string{"nsfw"},
		ImpersonationNames:      []string{"General Smith"},
		ProtectedGroupKeywords:  []string{"british army"},
		SuspiciousUsernameWords: []string{"alt"},
	}, refdata.DefaultThresholds())
	if err != nil {
		t.Fatalf("refdata.New: %v", err)
	}
	return rd
}

// cleanProfile passes every default rule against testRef.
func cleanProfile() *model.Profile {
	groups := []model.Group{{ID: 1, Name: "Trusted One"}, {ID: 2, Name: "Trusted Two"}}
	for i := int64(100); i < 115; i++ {
		groups = append(groups, model.Group{ID: i, Name: "Hobby group"})
	}
	return &model.Profile{
		UserID:         42,
		Username:       "builderman",
		DisplayName:    "Builder",
		AccountAgeDays: 100,
		FriendCount:    50,
		Groups:         groups,
		BadgeCount:     400,
		BadgeIDs:       []int64{10, 11, 12},
		DataComplete:   true,
	}
}

func TestCleanProfilePassesEveryRule(t *testing.T) {
	rd := testRef(t)
	p := cleanProfile()
	for _, r := range Default() {
		if f, fired := r.Evaluate(p, rd); fired {
			t.Errorf("rule %s fired on clean profile: %s", r.ID(), f.Message)
		}
	}
}

func TestRulesInIsolation(t *testing.T) {
	tests := []struct {
		rule    Rule
		mut     func(p *model.Profile)
		wantMsg string
	}{
		{DenylistedUser(), func(p *model.Profile) { p.UserID = 13 }, "User 13 is on the denylist."},
		{DenylistedGroup(), func(p *model.Profile) { p.Groups = append(p.Groups, model.Group{ID: 666, Name: "Raiders"}) }, "Raiders (666)"},
		{DenylistedBadge(), func(p *model.Profile) { p.BadgeIDs = append(p.BadgeIDs, 999) }, "ID: 999"},
		{BannedWord(), func(p *model.Profile) { p.Username = "xNSFWx" }, "Username contains banned term: 'nsfw'."},
		{BannedWord(), func(p *model.Profile) { p.DisplayName = "nsfw fan" }, "Display name contains banned term"},
		{Impersonation(), func(p *model.Profile) { p.DisplayName = "General_Smith" }, `impersonates protected member "General Smith"`},
		{Impersonation(), func(p *model.Profile) { p.Username = "G3neralSmith" }, "Username"},
		{MinAge(), func(p *model.Profile) { p.AccountAgeDays = 5 }, "Account is 5 days old (under 60)."},
		{MinFriends(), func(p *model.Profile) { p.FriendCount = 10 }, "Fewer than 30 friends (10)."},
		{MinGroups(), func(p *model.Profile) { p.Groups = p.Groups[:10] }, "Fewer than 13 non-trusted groups (8)."},
		{MinBadges(), func(p *model.Profile) { p.BadgeCount = 299 }, "Fewer than 300 badges (299 total)."},
		{UnofficialGroup(), func(p *model.Profile) {
			p.Groups = append(p.Groups, model.Group{ID: 700, Name: "British Army Reborn", OwnerID: 5})
		}, "British Army Reborn (700)"},
		{UsernameDigits(), func(p *model.Profile) { p.Username = "builder2024" }, "Username contains 4 digits (>= 4)."},
		{SuspiciousUsername(), func(p *model.Profile) { p.Username = "builder_alt" }, "Username contains 'alt'."},
		{DataIncomplete(), func(p *model.Profile) { p.DataComplete = false }, "incomplete"},
	}

	rd := testRef(t)
	for _, tt := range tests {
		t.Run(tt.rule.ID(), func(t *testing.T) {
			p := cleanProfile()
			tt.mut(p)
			f, fired := tt.rule.Evaluate(p, rd)
			if !fired {
				t.Fatalf("expected %s to fire", tt.rule.ID())
			}
			if f.RuleID != tt.rule.ID() {
				t.Errorf("expected rule id %s, got %s", tt.rule.ID(), f.RuleID)
			}
			if f.Severity != tt.rule.Severity() {
				t.Errorf("expected severity %s, got %s", tt.rule.Severity(), f.Severity)
			}
			if !strings.Contains(f.Message, tt.wantMsg) {
				t.Errorf("expected message containing %q, got %q", tt.wantMsg, f.Message)
			}
		})
	}
}

func TestBoundaryValuesPass(t *testing.T) {
	rd := testRef(t)
	p := cleanProfile()
	p.AccountAgeDays = 60
	p.FriendCount = 30
	p.BadgeCount = 300
	p.Groups = p.Groups[:15] // 2 trusted + 13 non-trusted

	for _, r := range []Rule{MinAge(), MinFriends(), MinGroups(), MinBadges()} {
		if f, fired := r.Evaluate(p, rd); fired {
			t.Errorf("%s fired at its threshold: %s", r.ID(), f.Message)
		}
	}
}

func TestTrustedOwnerExemptFromImpersonation(t *testing.T) {
	rd := testRef(t)
	p := cleanProfile()
	p.UserID = 1000
	p.DisplayName = "General Smith"

	if f, fired := Impersonation().Evaluate(p, rd); fired {
		t.Fatalf("trusted owner must not be flagged: %s", f.Message)
	}
}

func TestUnofficialGroupExemptions(t *testing.T) {
	rd := testRef(t)

	trustedOwner := cleanProfile()
	trustedOwner.Groups = append(trustedOwner.Groups, model.Group{ID: 701, Name: "British Army Academy", OwnerID: 1000})
	if _, fired := UnofficialGroup().Evaluate(trustedOwner, rd); fired {
		t.Error("group owned by a trusted owner must not fire")
	}

	trustedGroup := cleanProfile()
	trustedGroup.Groups[0].Name = "British Army"
	if _, fired := UnofficialGroup().Evaluate(trustedGroup, rd); fired {
		t.Error("trusted group must not fire")
	}
}

func TestUsernameDigitsDisabled(t *testing.T) {
	th := refdata.DefaultThresholds()
	th.UsernameDigitThreshold = 0
	rd, err := refdata.New(refdata.Lists{}, th)
	if err != nil {
		t.Fatalf("refdata.New: %v", err)
	}
	p := cleanProfile()
	p.Username = "user12345678"
	if _, fired := UsernameDigits().Evaluate(p, rd); fired {
		t.Error("expected rule disabled at threshold 0")
	}
}

func TestDenylistedBadgeMentionsSample(t *testing.T) {
	rd := testRef(t)
	p := cleanProfile()
	p.BadgeIDs = []int64{999, 10}
	p.BadgesSampled = true

	f, fired := DenylistedBadge().Evaluate(p, rd)
	if !fired {
		t.Fatal("expected denylisted_badge to fire")
	}
	if !strings.Contains(f.Message, "the 2 oldest badges") {
		t.Errorf("expected sample size in message, got %q", f.Message)
	}
}

func TestRulesDoNotMutateProfile(t *testing.T) {
	rd := testRef(t)
	p := cleanProfile()
	p.UserID = 13
	p.Username = "nsfw_alt_1234"
	before := *p
	groupsBefore := append([]model.Group(nil), p.Groups...)

	for _, r := range Default() {
		r.Evaluate(p, rd)
	}

	if p.UserID != before.UserID || p.Username != before.Username || len(p.Groups) != len(groupsBefore) {
		t.Fatal("rules mutated the profile")
	}
	for i := range groupsBefore {
		if p.Groups[i] != groupsBefore[i] {
			t.Fatalf("rules mutated group %d", i)
		}
	}
}
