package util

import (
	"regexp"
	"strings"
)

var (
	reQuotes     = regexp.MustCompile(`["'` + "`" + `«»]`)
	reNonAllowed = regexp.MustCompile(`[^a-zа-я0-9\-/\s.,%]`)
	reSpaces     = regexp.MustCompile(`\s+`)
)

// NormalizeName lowercases and strips noise from a raw item, supplier or
// unit string so equal-for-matching-purposes inputs compare equal.
func NormalizeName(input string) string {
	s := strings.ToLower(input)
	s = strings.ReplaceAll(s, "ё", "е")
	s = reQuotes.ReplaceAllString(s, " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// NormalizeUnit is NormalizeName without punctuation survivors; units are
// compared as bare lowercase tokens.
func NormalizeUnit(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	return strings.TrimRight(s, ".")
}

func Tokenize(input string) []string {
	norm := NormalizeName(input)
	parts := strings.Split(norm, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, ".,")
		if len([]rune(p)) >= 2 {
			out = append(out, p)
		}
	}
	return out
}

// DiceCoefficient is the bigram similarity of two strings in [0,1].
func DiceCoefficient(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	pairs := func(s string) []string {
		r := []rune(s)
		if len(r) < 2 {
			return nil
		}
		out := make([]string, 0, len(r)-1)
		for i := 0; i < len(r)-1; i++ {
			out = append(out, string(r[i:i+2]))
		}
		return out
	}

	aPairs := pairs(a)
	bPairs := pairs(b)
	if len(aPairs) == 0 || len(bPairs) == 0 {
		return 0
	}

	bCount := map[string]int{}
	for _, p := range bPairs {
		bCount[p]++
	}
	inter := 0
	for _, p := range aPairs {
		if bCount[p] > 0 {
			inter++
			bCount[p]--
		}
	}

	return float64(2*inter) / float64(len(aPairs)+len(bPairs))
}

// Similarity blends bigram overlap with token overlap; both inputs are
// expected to be already normalized. Result is in [0,1].
func Similarity(query, candidate string) float64 {
	dice := DiceCoefficient(query, candidate)
	queryTokens := Tokenize(query)
	candidateTokens := Tokenize(candidate)
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return dice
	}

	// Token overlap is soft: a misspelled token still contributes its
	// best bigram similarity instead of dropping to zero.
	overlap := 0.0
	for _, qt := range queryTokens {
		best := 0.0
		for _, ct := range candidateTokens {
			if s := DiceCoefficient(qt, ct); s > best {
				best = s
			}
		}
		overlap += best
	}
	tokenScore := overlap / float64(len(queryTokens))
	return 0.65*dice + 0.35*tokenScore
}

func StringPtr(v string) *string { return &v }

func FloatPtr(v float64) *float64 { return &v }
