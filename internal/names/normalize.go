// Package names compares student names the way people type them.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// RemoveDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func RemoveDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// Normalize lowercases a name, strips diacritics and treats dashes as spaces.
func Normalize(name string) string {
	name = RemoveDiacritics(name)
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, "-", " ")
	return strings.Join(strings.Fields(name), " ")
}

// Matches reports whether every word of query appears in name, ignoring
// case and diacritics. An empty query matches everything.
func Matches(name, query string) bool {
	haystack := Normalize(name)
	for word := range strings.FieldsSeq(Normalize(query)) {
		if !strings.Contains(haystack, word) {
			return false
		}
	}
	return true
}
