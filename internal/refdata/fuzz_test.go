package refdata

import "testing"

func FuzzMatchesImpersonation(f *testing.F) {
	rd, err := New(Lists{
		ImpersonationNames:  []string{"General Smith", "Commander"},
		BannedUsernameWords: []string{"nsfw"},
	}, DefaultThresholds())
	if err != nil {
		f.Fatalf("New: %v", err)
	}

	seeds := []string{
		"General Smith",
		"g3n3ral_5m1th",
		"Cómmander",
		"",
		"ＦＵＬＬＷＩＤＴＨ",
		"\x00\xff",
	}
	for _, s := range seeds {
		f.Add(s)
	}

	f.Fuzz(func(t *testing.T, name string) {
		// Must not panic on any input
		rd.MatchesImpersonation(name)
		rd.ContainsBannedWord(name)
	})
}
