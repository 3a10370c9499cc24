package region

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var titleCaser = cases.Title(language.Und)

// Normalize canonicalizes an administrative name as the boundary loaders
// store it: surrounding whitespace trimmed, runs of inner whitespace
// collapsed, words title-cased.
func Normalize(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	return titleCaser.String(strings.Join(fields, " "))
}

// UniqueName builds the dataset-style composite key for a village:
// the four hierarchy names joined with spaces, lower-cased.
func UniqueName(state, district, subdistrict, village string) string {
	parts := []string{state, district, subdistrict, village}
	for i, p := range parts {
		parts[i] = strings.ToLower(strings.TrimSpace(p))
	}
	return strings.Join(parts, " ")
}
