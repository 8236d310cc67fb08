package identity

import "strings"

// NormalizeUsername performs case-insensitive canonicalization.
// Only trim + lower-case for now; confusable folding would need a stored policy version.
func NormalizeUsername(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
