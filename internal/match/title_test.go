package match

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitleScore(t *testing.T) {
	tests := []struct {
		name  string
		title string
		query string
		want  float64
	}{
		{"exact", "iPhone 15", "iPhone 15", 1.0},
		{"superset title", "iPhone 15 128GB Blue", "iPhone 15", 1.0},
		{"half overlap", "iPhone 14", "iPhone 15", 0.5},
		{"no overlap", "Galaxy S24 Ultra", "iPhone 15", 0.0},
		{"punctuation ignored", "Apple iPhone-15 (Blue)", "iphone 15", 1.0},
		{"empty query", "anything", "", 0.0},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.InDelta(t, tc.want, TitleScore(tc.title, tc.query), 0.001)
		})
	}
}

func TestTitleScore_AboveSoftThreshold(t *testing.T) {
	// A listing title that contains the whole query clears the soft gate.
	got := TitleScore("iPhone 15 128GB Blue", "iPhone 15")
	assert.Greater(t, got, SoftThreshold)
}

func TestStrictTitleMatch(t *testing.T) {
	tests := []struct {
		name  string
		query string
		title string
		want  bool
	}{
		{"all tokens present", "iPhone 16 Pro Max", "Apple iPhone 16 Pro Max 256GB", true},
		{"missing token", "iPhone 16 Pro Max", "Apple iPhone 16 Pro 256GB", false},
		{"short tokens skipped", "iPhone 16", "Apple iPhone 256GB", true}, // "16" is <= 2 chars
		{"case insensitive", "MacBook Air", "APPLE MACBOOK AIR M3", true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, StrictTitleMatch(tc.query, tc.title))
		})
	}
}
