package usecase

import (
	"regexp"
	"strings"
)

// nonAlphanumericRegex matches everything that is not an ASCII letter or digit
var nonAlphanumericRegex = regexp.MustCompile(`[^A-Za-z0-9]`)

// CleanCode removes all non-alphanumeric characters and uppercases the rest.
// "abc-12.3" becomes "ABC123".
func CleanCode(id string) string {
	return strings.ToUpper(nonAlphanumericRegex.ReplaceAllString(id, ""))
}

// StripLeadingZeros removes leading "0" characters. A string made only of zeros
// collapses to "0" so it never turns into an empty key.
func StripLeadingZeros(id string) string {
	trimmed := strings.TrimLeft(id, "0")
	if trimmed == "" && id != "" {
		return "0"
	}
	return trimmed
}

// BasePrefix returns the text before the first dash, or the input unchanged
// when it has no dash. "123-RED" becomes "123".
func BasePrefix(id string) string {
	if idx := strings.Index(id, "-"); idx >= 0 {
		return id[:idx]
	}
	return id
}

// NoZerosKey is the comparison key used by the leading-zeros strategy
func NoZerosKey(id string) string {
	return StripLeadingZeros(CleanCode(id))
}
