package domain

import "strings"

// NormalizeHumanName trims leading/trailing whitespace and collapses internal whitespace runs.
// It is used for first/last name normalization.
func NormalizeHumanName(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// NormalizeEmail trims whitespace and lowercases an email address for comparisons.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
