// internal/domain/models/color.go
package models

import "strings"

// DefaultColor is used for every pin whose collection has no valid color,
// and for pins whose collection cannot be resolved.
const DefaultColor = "#4285f4"

// ValidColor reports whether s is a "#rrggbb" hex color.
func ValidColor(s string) bool {
	if len(s) != 7 || s[0] != '#' {
		return false
	}
	for i := 1; i < 7; i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// ResolveColor normalizes a collection color, falling back to DefaultColor.
func ResolveColor(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if !ValidColor(s) {
		return DefaultColor
	}
	return s
}
