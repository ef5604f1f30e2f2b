package utils

import "strings"

// NormalizeToken lowercases and trims a user supplied token such as a catapult
// target ("Palace ", "CLAY:4") so lookups are case-insensitive.
func NormalizeToken(input string) string {
	return strings.ToLower(strings.TrimSpace(input))
}

// UpperKey turns a token into the upper snake case form used for building types.
func UpperKey(input string) string {
	replacer := strings.NewReplacer(" ", "_", "-", "_")
	return strings.ToUpper(replacer.Replace(strings.TrimSpace(input)))
}
