package domain

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// Scoring weights
	ScoreExactMatch     = 100.0
	ScorePrefixMatch    = 75.0
	ScoreSubstringMatch = 50.0
	ScoreFuzzyMatch     = 25.0

	// Position bonus (earlier is better)
	ScorePositionBonus = 10.0

	// maxSuggestions bounds NotFoundError.Suggestions.
	maxSuggestions = 3
)

// Suggest returns up to limit candidates that look like name, best first.
// Ties keep alphabetical order.
func Suggest(name string, candidates []string, limit int) []string {
	type scored struct {
		name  string
		score float64
	}

	query := normalizeName(name)
	var ranked []scored
	for _, c := range candidates {
		if s := scoreName(query, normalizeName(c)); s > 0 {
			ranked = append(ranked, scored{name: c, score: s})
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].name < ranked[j].name
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	out := make([]string, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, r.name)
	}
	return out
}

// scoreName scores candidate against query, both normalized. Zero means no match.
func scoreName(query, candidate string) float64 {
	if query == "" || candidate == "" {
		return 0.0
	}

	if query == candidate {
		return ScoreExactMatch
	}

	if strings.HasPrefix(candidate, query) || strings.HasPrefix(query, candidate) {
		return ScorePrefixMatch + lengthBonus(query, candidate)
	}

	if i := strings.Index(candidate, query); i >= 0 {
		// Earlier substring matches get higher score
		pos := utf8.RuneCountInString(candidate[:i])
		return ScoreSubstringMatch + ScorePositionBonus*(1.0-float64(pos)/float64(utf8.RuneCountInString(candidate)))
	}

	if similarity := calculateSimilarity(query, candidate); similarity > 0.6 {
		return ScoreFuzzyMatch * similarity
	}

	return 0.0
}

// lengthBonus favours candidates whose length is close to the query's.
func lengthBonus(a, b string) float64 {
	diff := math.Abs(float64(utf8.RuneCountInString(a) - utf8.RuneCountInString(b)))
	return ScorePositionBonus * math.Exp(-diff*0.3)
}

// calculateSimilarity is the share of a's characters found in b, weighted
// by how close the lengths are.
func calculateSimilarity(a, b string) float64 {
	matches := 0
	for _, c := range a {
		if strings.ContainsRune(b, c) {
			matches++
		}
	}
	la, lb := utf8.RuneCountInString(a), utf8.RuneCountInString(b)
	ratio := float64(matches) / float64(la)
	longest := math.Max(float64(la), float64(lb))
	return ratio * (1.0 - math.Abs(float64(la-lb))/longest)
}

// normalizeName keeps letters and digits, lowercased.
func normalizeName(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return -1
	}, s)
}

func mapKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
