package refdata

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bob", "bob"},
		{"  B0B  ", "bob"},
		{"Mr_Bob.Smith-Jr", "mrbobsmlthjr"},
		{"J@$0n", "jason"},
		{"Zoë", "zoe"},
		{"ＦＵＬＬＷＩＤＴＨ", "fullwldth"},
		{"___", ""},
	}

	for _, tt := range tests {
		if got := NormalizeName(tt.in); got != tt.want {
			t.Errorf("NormalizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b  string
		limit int
		want  int
	}{
		{"kitten", "kitten", 2, 0},
		{"kitten", "sitten", 2, 1},
		{"kitten", "sitting", 3, 3},
		{"kitten", "sitting", 1, 2},
		{"abc", "abcdef", 1, 2},
		{"", "ab", 2, 2},
	}

	for _, tt := range tests {
		if got := levenshtein(tt.a, tt.b, tt.limit); got != tt.want {
			t.Errorf("levenshtein(%q, %q, %d) = %d, want %d", tt.a, tt.b, tt.limit, got, tt.want)
		}
	}
}
