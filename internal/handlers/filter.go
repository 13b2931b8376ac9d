package handlers

import (
	"sort"
	"strings"
	"unicode"
)

// Match scores in descending order of confidence: anchored matches
// beat word-boundary matches beat plain subsequences.
const (
	scorePrefix      = 100.0
	scoreCapitals    = 90.0
	scoreInitials    = 80.0
	scoreSubstring   = 60.0
	scoreSubsequence = 30.0
	subseqGapPenalty = 0.5
)

// Filter returns the items whose search key matches query, best first.
// An empty query returns the items unchanged.
func Filter[T any](query string, items []T, key func(T) string) []T {
	query = strings.TrimSpace(query)
	if query == "" {
		return items
	}

	type scored struct {
		item  T
		score float64
	}

	var matched []scored
	for _, item := range items {
		if score := matchScore(query, key(item)); score > 0 {
			matched = append(matched, scored{item: item, score: score})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})

	result := make([]T, 0, len(matched))
	for _, m := range matched {
		result = append(result, m.item)
	}
	return result
}

func matchScore(query, searchKey string) float64 {
	q := strings.ToLower(query)
	k := strings.ToLower(searchKey)

	if strings.HasPrefix(k, q) {
		return scorePrefix
	}

	if strings.HasPrefix(capitals(searchKey), q) {
		return scoreCapitals
	}

	if strings.HasPrefix(initials(searchKey), q) {
		return scoreInitials
	}

	if idx := strings.Index(k, q); idx >= 0 {
		// Earlier hits rank higher
		return scoreSubstring - float64(idx)/float64(len(k))*10
	}

	if isSubsequence(q, k) {
		return scoreSubsequence - float64(len(k)-len(q))*subseqGapPenalty/10
	}

	return 0
}

// capitals extracts the uppercase letters of a key ("MyProject" -> "mp").
func capitals(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsUpper(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

// initials extracts the first letter of each word ("foo bar" -> "fb").
func initials(s string) string {
	var b strings.Builder
	for _, word := range strings.Fields(s) {
		for _, r := range word {
			b.WriteRune(unicode.ToLower(r))
			break
		}
	}
	return b.String()
}

func isSubsequence(needle, haystack string) bool {
	runes := []rune(needle)
	if len(runes) == 0 {
		return true
	}
	i := 0
	for _, r := range haystack {
		if runes[i] == r {
			i++
			if i == len(runes) {
				return true
			}
		}
	}
	return false
}
