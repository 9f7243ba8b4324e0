package refdata

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// lookalikes folds characters commonly swapped in to dodge exact matching.
var lookalikes = map[rune]rune{
	'0': 'o',
	'1': 'l',
	'i': 'l',
	'!': 'l',
	'|': 'l',
	'3': 'e',
	'4': 'a',
	'@': 'a',
	'5': 's',
	'$': 's',
	'7': 't',
}

// NormalizeName reduces a display name to a comparison key: compatibility
// decomposition with combining marks dropped, lowercase, lookalikes folded,
// and everything except letters and digits removed.
// "B0b_The.Builder" and "bob the builder" share the key "bobthebullder".
func NormalizeName(name string) string {
	decomposed := norm.NFKD.String(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		r = unicode.ToLower(r)
		if f, ok := lookalikes[r]; ok {
			r = f
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// levenshtein returns the edit distance between a and b, or limit+1 as soon as
// the distance is known to exceed limit.
func levenshtein(a, b string, limit int) int {
	ra, rb := []rune(a), []rune(b)
	if d := len(ra) - len(rb); d > limit || -d > limit {
		return limit + 1
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		rowMin := curr[0]
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
			if curr[j] < rowMin {
				rowMin = curr[j]
			}
		}
		if rowMin > limit {
			return limit + 1
		}
		prev, curr = curr, prev
	}
	if d := prev[len(rb)]; d > limit {
		return limit + 1
	}
	return prev[len(rb)]
}
