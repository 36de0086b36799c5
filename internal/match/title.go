// Package match scores and filters source candidates against a product query.
package match

import (
	"regexp"
	"strings"
)

var punctPattern = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)

// Tokens normalizes a string into its significant lowercase tokens:
// punctuation stripped, whitespace split.
func Tokens(s string) []string {
	cleaned := punctPattern.ReplaceAllString(strings.ToLower(s), " ")
	return strings.Fields(cleaned)
}

// TitleScore computes token-set overlap between a candidate title and the
// product query: |intersection| / |query tokens|, in [0,1]. Primary sort
// key for price candidates and the 40%-threshold gate for non-high-value
// products.
func TitleScore(candidateTitle, productQuery string) float64 {
	queryTokens := Tokens(productQuery)
	if len(queryTokens) == 0 {
		return 0
	}
	titleSet := make(map[string]struct{})
	for _, tok := range Tokens(candidateTitle) {
		titleSet[tok] = struct{}{}
	}
	matches := 0
	for _, tok := range queryTokens {
		if _, ok := titleSet[tok]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(queryTokens))
}

// StrictTitleMatch requires every significant query token (longer than two
// characters) to appear in the title. "iPhone 16 Pro Max" only matches
// titles containing iphone AND pro AND max.
func StrictTitleMatch(productQuery, candidateTitle string) bool {
	titleLower := strings.ToLower(candidateTitle)
	for _, w := range strings.Fields(strings.ToLower(productQuery)) {
		if len(w) <= 2 {
			continue
		}
		if !strings.Contains(titleLower, w) {
			return false
		}
	}
	return true
}
