// Package utils provides the small naming helpers the schema pipeline relies
// on: English pluralization for relation-target inference and filesystem-safe
// name sanitizing for migration filenames.
package utils

import (
	"strings"
	"unicode"
)

// irregulars maps singular nouns to plurals that no suffix rule produces.
// Singularize inverts this table, so round-tripping irregulars works for the
// entries listed here; unlisted irregular nouns fall back to the suffix rules
// and are a documented exception.
var irregulars = map[string]string{
	"person": "people",
	"child":  "children",
	"man":    "men",
	"woman":  "women",
	"mouse":  "mice",
	"goose":  "geese",
	"foot":   "feet",
	"tooth":  "teeth",
}

var irregularPlurals = func() map[string]string {
	out := make(map[string]string, len(irregulars))
	for singular, plural := range irregulars {
		out[plural] = singular
	}
	return out
}()

// uncountables are nouns whose singular and plural forms are identical.
var uncountables = map[string]struct{}{
	"sheep":       {},
	"fish":        {},
	"deer":        {},
	"series":      {},
	"species":     {},
	"data":        {},
	"information": {},
	"equipment":   {},
	"media":       {},
}

// Pluralize returns the plural form of a singular English noun, preserving
// the capitalization of the first letter ("Category" -> "Categories").
func Pluralize(word string) string {
	if word == "" {
		return word
	}
	lower := strings.ToLower(word)
	if _, ok := uncountables[lower]; ok {
		return word
	}
	if plural, ok := irregulars[lower]; ok {
		return matchCase(word, plural)
	}

	var plural string
	switch {
	case hasAnySuffix(lower, "s", "x", "z", "ch", "sh"):
		plural = lower + "es"
	case strings.HasSuffix(lower, "y") && len(lower) > 1 && !isVowel(rune(lower[len(lower)-2])):
		plural = lower[:len(lower)-1] + "ies"
	case strings.HasSuffix(lower, "fe"):
		plural = lower[:len(lower)-2] + "ves"
	case strings.HasSuffix(lower, "lf") || strings.HasSuffix(lower, "af"):
		plural = lower[:len(lower)-1] + "ves"
	default:
		plural = lower + "s"
	}
	return matchCase(word, plural)
}

// Singularize returns the singular form of a plural English noun. It is the
// inverse of Pluralize for regular nouns and for the irregulars table; other
// irregular nouns are not guaranteed to round-trip.
func Singularize(word string) string {
	if word == "" {
		return word
	}
	lower := strings.ToLower(word)
	if _, ok := uncountables[lower]; ok {
		return word
	}
	if singular, ok := irregularPlurals[lower]; ok {
		return matchCase(word, singular)
	}

	var singular string
	switch {
	case strings.HasSuffix(lower, "ies") && len(lower) > 3:
		singular = lower[:len(lower)-3] + "y"
	case strings.HasSuffix(lower, "ves") && len(lower) > 3:
		singular = lower[:len(lower)-3] + "f"
	case hasAnySuffix(lower, "ses", "xes", "zes", "ches", "shes"):
		singular = lower[:len(lower)-2]
	case strings.HasSuffix(lower, "s") && !strings.HasSuffix(lower, "ss"):
		singular = lower[:len(lower)-1]
	default:
		singular = lower
	}
	return matchCase(word, singular)
}

// IsPlural reports whether a word is already in plural form.
func IsPlural(word string) bool {
	if word == "" {
		return false
	}
	return strings.EqualFold(Pluralize(Singularize(word)), word)
}

// SanitizeName lowercases a collection name and replaces every character that
// is not a letter, digit or underscore, producing a filename-safe token.
func SanitizeName(name string) string {
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			sb.WriteRune(r)
		} else {
			sb.WriteRune('_')
		}
	}
	return sb.String()
}

func hasAnySuffix(s string, suffixes ...string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(s, suffix) {
			return true
		}
	}
	return false
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

func matchCase(original, transformed string) string {
	if original == "" || transformed == "" {
		return transformed
	}
	if unicode.IsUpper(rune(original[0])) {
		return strings.ToUpper(transformed[:1]) + transformed[1:]
	}
	return transformed
}
