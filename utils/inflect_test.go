package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPluralize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple_s", "user", "users"},
		{"consonant_y", "category", "categories"},
		{"vowel_y", "day", "days"},
		{"sibilant_s", "bus", "buses"},
		{"sibilant_x", "box", "boxes"},
		{"sibilant_ch", "church", "churches"},
		{"lf_suffix", "wolf", "wolves"},
		{"irregular", "person", "people"},
		{"irregular_child", "child", "children"},
		{"uncountable", "sheep", "sheep"},
		{"capitalized", "Category", "Categories"},
		{"capitalized_irregular", "Person", "People"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Pluralize(tt.input))
		})
	}
}

func TestSingularize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple_s", "users", "user"},
		{"ies", "categories", "category"},
		{"sibilant", "boxes", "box"},
		{"ves", "wolves", "wolf"},
		{"irregular", "people", "person"},
		{"uncountable", "fish", "fish"},
		{"already_singular", "user", "user"},
		{"capitalized", "Categories", "Category"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Singularize(tt.input))
		})
	}
}

func TestPluralizeSingularizeRoundTrip(t *testing.T) {
	words := []string{"user", "category", "box", "wolf", "person", "entry", "tag"}
	for _, word := range words {
		assert.Equal(t, word, Singularize(Pluralize(word)), "round trip for %q", word)
	}
}

func TestIsPlural(t *testing.T) {
	assert.True(t, IsPlural("users"))
	assert.True(t, IsPlural("people"))
	assert.False(t, IsPlural("user"))
	assert.False(t, IsPlural("person"))
	assert.False(t, IsPlural(""))
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase_passthrough", "posts", "posts"},
		{"uppercase", "MyPosts", "myposts"},
		{"spaces_and_dashes", "my posts-v2", "my_posts_v2"},
		{"underscores_kept", "user_profiles", "user_profiles"},
		{"symbols", "a.b/c", "a_b_c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SanitizeName(tt.input))
		})
	}
}
