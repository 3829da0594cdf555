// Package dedup provides the fuzzy name and title comparison used to resolve
// free-text authors to registered persons, and the duplicate person
// clustering pass that feeds merge review.
package dedup

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// nameParticles stay attached to the last name when splitting "First Last".
var nameParticles = map[string]bool{
	"van": true, "von": true, "der": true, "den": true, "de": true, "del": true,
	"della": true, "di": true, "da": true, "du": true, "la": true, "le": true,
	"ten": true, "ter": true,
}

// FoldAccents strips combining marks, so "Müller" becomes "Muller".
func FoldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// NormalizeName normalizes a person name for comparison:
//   - Folds accents and converts to lowercase
//   - Detects and reorders "Last, First" format to "First Last"
//   - Removes all non-letter, non-space characters (apostrophes, periods, hyphens, etc.)
//   - Collapses multiple spaces to a single space
//   - Trims leading and trailing whitespace
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToLower(FoldAccents(name))

	if idx := strings.Index(name, ","); idx >= 0 {
		last := strings.TrimSpace(name[:idx])
		first := strings.TrimSpace(name[idx+1:])
		if first != "" {
			name = first + " " + last
		} else {
			name = last
		}
	}

	var sb strings.Builder
	sb.Grow(len(name))
	prevSpace := false

	for _, r := range name {
		if unicode.IsLetter(r) {
			sb.WriteRune(r)
			prevSpace = false
		} else if unicode.IsSpace(r) || r == '.' {
			// "J.K." is two initials.
			if !prevSpace && sb.Len() > 0 {
				sb.WriteRune(' ')
				prevSpace = true
			}
		}
	}

	return strings.TrimRight(sb.String(), " ")
}

// SplitName splits a free-text author into first and last name. It accepts
// "Last, First" and "First [Middle] Last"; lowercase particles such as "van"
// or "de" are kept with the last name. Case is preserved.
func SplitName(name string) (first, last string) {
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return "", ""
	}

	if idx := strings.Index(name, ","); idx >= 0 {
		return strings.TrimSpace(name[idx+1:]), strings.TrimSpace(name[:idx])
	}

	tokens := strings.Fields(name)
	if len(tokens) == 1 {
		return "", tokens[0]
	}

	split := len(tokens) - 1
	for i := 1; i < len(tokens)-1; i++ {
		if nameParticles[strings.ToLower(tokens[i])] {
			split = i
			break
		}
	}
	return strings.Join(tokens[:split], " "), strings.Join(tokens[split:], " ")
}

// NameSimilarity compares two names and returns a similarity score between
// 0.0 and 1.0. Both names are normalized first.
//
// Scoring rules:
//   - Exact match: 1.0
//   - Same last name, same first name: 1.0
//   - Same last name, one first name is an initial that matches: 0.9
//   - Last names one typo apart (six letters or more), same first name: 0.85
//   - Same last name, one or both have only a last name: 0.7
//   - Same last name, different first names: 0.3
//   - Different last names: 0.0
func NameSimilarity(a, b string) float64 {
	return nameSimilarity(NormalizeName(a), NormalizeName(b))
}

func nameSimilarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0.0
	}
	if a == b {
		return 1.0
	}

	partsA := strings.Fields(a)
	partsB := strings.Fields(b)

	lastA := partsA[len(partsA)-1]
	lastB := partsB[len(partsB)-1]
	firstA := partsA[:len(partsA)-1]
	firstB := partsB[:len(partsB)-1]

	if lastA != lastB {
		if len(firstA) > 0 && strings.Join(firstA, " ") == strings.Join(firstB, " ") && isTypo(lastA, lastB) {
			return 0.85
		}
		return 0.0
	}

	if len(firstA) == 0 || len(firstB) == 0 {
		return 0.7
	}

	if strings.Join(firstA, " ") == strings.Join(firstB, " ") {
		return 1.0
	}

	if isInitialMatch(firstA[0], firstB[0]) {
		return 0.9
	}

	return 0.3
}

// isInitialMatch returns true if one token is a single-character initial that
// matches the first character of the other token.
func isInitialMatch(a, b string) bool {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 || len(rb) == 0 {
		return false
	}
	if len(ra) == 1 && len(rb) > 1 && ra[0] == rb[0] {
		return true
	}
	if len(rb) == 1 && len(ra) > 1 && rb[0] == ra[0] {
		return true
	}
	return false
}

func isTypo(a, b string) bool {
	if len([]rune(a)) < 6 || len([]rune(b)) < 6 {
		return false
	}
	return levenshtein.ComputeDistance(a, b) <= 1
}
