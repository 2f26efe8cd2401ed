package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevenshtein(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"", "abc", 3},
		{"abc", "", 3},
		{"kitten", "sitting", 3},
		{"saturday", "sunday", 3},
		{"widgets", "widgets", 0},
		{"naïve", "naive", 1},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, Levenshtein(tt.a, tt.b))
		})
	}
}

func TestFindSimilar(t *testing.T) {
	candidates := []string{"widgets", "Gadgets", "orders", "customers"}

	tests := []struct {
		name        string
		target      string
		maxDistance int
		want        []string
	}{
		{"typo", "widgts", 1, []string{"widgets"}},
		{"case insensitive", "GADGETS", 1, []string{"Gadgets"}},
		{"closest first", "gidgets", 1, []string{"widgets", "Gadgets"}},
		{"nothing close", "invoices", 1, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FindSimilar(tt.target, candidates, tt.maxDistance))
		})
	}
}

func TestFindSimilarLimitsSuggestions(t *testing.T) {
	got := FindSimilar("a", []string{"b", "c", "d", "e"}, 1)
	assert.Len(t, got, 3)
}
