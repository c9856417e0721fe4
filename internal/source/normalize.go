package source

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Text columns are canonicalized once, at ingest. Everything downstream
// (merge keys, material-scoped lookup, drift sets) compares the canonical
// forms and never re-normalizes.

var (
	titleCaser = cases.Title(language.English)
	lowerCaser = cases.Lower(language.English)
)

// NormalizeMaterial returns the canonical material spelling:
// NFC-normalized, trimmed, Title-cased ("granite" -> "Granite").
func NormalizeMaterial(s string) string {
	return titleCaser.String(norm.NFC.String(strings.TrimSpace(s)))
}

// NormalizeStoneType returns the canonical operator stone-type spelling:
// NFC-normalized, trimmed, lower-cased.
func NormalizeStoneType(s string) string {
	return lowerCaser.String(norm.NFC.String(strings.TrimSpace(s)))
}

// NormalizeToolID returns the canonical tool identifier: trimmed and
// upper-cased. Tool codes are ASCII catalog keys, compared exactly.
func NormalizeToolID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
