package util

import (
	"regexp"
	"strings"
)

var (
	reQuotes     = regexp.MustCompile(`["'` + "`" + `«»]`)
	reNonAllowed = regexp.MustCompile(`[^a-z0-9\-/\s.]`)
	reSpaces     = regexp.MustCompile(`\s+`)

	accentFold = strings.NewReplacer(
		"á", "a", "é", "e", "í", "i", "ó", "o", "ú", "u", "ü", "u",
		"Á", "a", "É", "e", "Í", "i", "Ó", "o", "Ú", "u", "Ü", "u",
		"ñ", "n", "Ñ", "n",
	)
)

// NormalizeName lowercases, folds Spanish accents and strips everything
// but letters, digits and a few separators. Both catalog names and email
// product text go through this before any comparison.
func NormalizeName(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = accentFold.Replace(s)
	s = reQuotes.ReplaceAllString(s, " ")
	s = reNonAllowed.ReplaceAllString(s, " ")
	s = reSpaces.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Tokenize splits a normalized name into tokens longer than two
// characters. Short connectives ("de", "la") carry no signal for
// product matching.
func Tokenize(input string) []string {
	norm := NormalizeName(input)
	parts := strings.Split(norm, " ")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if len([]rune(p)) > 2 {
			out = append(out, p)
		}
	}
	return out
}

// NormalizeSpaces collapses runs of whitespace to single spaces.
func NormalizeSpaces(input string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(input, " "))
}

// SplitLines breaks text into trimmed, non-empty lines.
func SplitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := strings.Split(text, "\n")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
