package dedup

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// NormalizeTitle folds accents and case, drops punctuation and collapses
// whitespace.
func NormalizeTitle(title string) string {
	title = strings.ToLower(FoldAccents(title))

	var sb strings.Builder
	sb.Grow(len(title))
	prevSpace := true
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '/':
			if !prevSpace {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimRight(sb.String(), " ")
}

// TitleSimilarity returns 1 minus the edit distance of the normalized titles
// relative to the longer one.
func TitleSimilarity(a, b string) float64 {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == nb {
		if na == "" && strings.TrimSpace(a) != strings.TrimSpace(b) {
			return 0.0
		}
		return 1.0
	}
	longest := utf8.RuneCountInString(na)
	if n := utf8.RuneCountInString(nb); n > longest {
		longest = n
	}
	if longest == 0 {
		return 0.0
	}
	d := levenshtein.ComputeDistance(na, nb)
	return 1.0 - float64(d)/float64(longest)
}
