package util

import "regexp"

var markupPattern = regexp.MustCompile(`(?i)</?[a-z!][^>]*>|javascript\s*:|\bon[a-z]+\s*=`)

// ContainsMarkup reports whether s carries embedded HTML tags, inline event
// handlers or javascript: URLs.
func ContainsMarkup(s string) bool {
	return markupPattern.MatchString(s)
}
