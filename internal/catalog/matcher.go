package catalog

import (
	"sort"

	"github.com/ggasparott/FastMission/internal/rules"
)

const (
	// CodeLength is the number of digits of a full NCM code.
	CodeLength = 8

	DefaultSuggestionLimit = 5
	DefaultMaxDistance     = 2

	// candidateLimit bounds how many prefix matches are scored per lookup.
	candidateLimit = 100
)

// Suggestion is a catalog entry close to a queried code.
type Suggestion struct {
	Code              string  `json:"code"`
	Description       string  `json:"description"`
	Distance          int     `json:"distance"`
	SimilarityPercent float64 `json:"similarityPercent"`
}

// NormalizeCode keeps only the digits of raw, so "1006.30.21" becomes "10063021".
func NormalizeCode(raw string) string {
	return rules.Digits(raw)
}

// ValidFormat reports whether code is a normalized eight-digit code.
func ValidFormat(code string) bool {
	return len(code) == CodeLength && NormalizeCode(code) == code
}

// Distance returns the Levenshtein edit distance between a and b.
func Distance(a, b string) int {
	s1, s2 := []rune(a), []rune(b)
	if len(s1) < len(s2) {
		s1, s2 = s2, s1
	}
	if len(s2) == 0 {
		return len(s1)
	}

	previous := make([]int, len(s2)+1)
	current := make([]int, len(s2)+1)
	for j := range previous {
		previous[j] = j
	}

	for i, c1 := range s1 {
		current[0] = i + 1
		for j, c2 := range s2 {
			cost := 1
			if c1 == c2 {
				cost = 0
			}
			current[j+1] = min(previous[j+1]+1, current[j]+1, previous[j]+cost)
		}
		previous, current = current, previous
	}
	return previous[len(s2)]
}

// Suggest ranks catalog codes within maxDistance edits of rawCode.
// Candidates share the first four digits, or the first two when the four-digit
// heading has no entries. Results are ordered by distance, then code.
func Suggest(rawCode string, snap *Snapshot, limit, maxDistance int) []Suggestion {
	code := NormalizeCode(rawCode)
	if !ValidFormat(code) || snap == nil || snap.Len() == 0 || limit <= 0 {
		return []Suggestion{}
	}

	candidates := snap.WithPrefix(code[:4], candidateLimit)
	if len(candidates) == 0 {
		candidates = snap.WithPrefix(code[:2], candidateLimit)
	}

	results := make([]Suggestion, 0, len(candidates))
	for _, entry := range candidates {
		d := Distance(code, entry.Code)
		if d > maxDistance {
			continue
		}
		results = append(results, Suggestion{
			Code:              entry.Code,
			Description:       entry.Description,
			Distance:          d,
			SimilarityPercent: similarity(code, entry.Code, d),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].Code < results[j].Code
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results
}

func similarity(a, b string, distance int) float64 {
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 100
	}
	return (1 - float64(distance)/float64(longest)) * 100
}
