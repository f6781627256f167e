// Package normalize canonicalizes free text typed by users: search queries,
// pin titles and collection titles.
package normalize

import "strings"

// Text trims s and collapses every run of whitespace to a single space.
func Text(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Query normalizes a search query. Queries that differ only in spacing or
// case share a cache entry.
func Query(s string) string {
	return strings.ToLower(Text(s))
}
