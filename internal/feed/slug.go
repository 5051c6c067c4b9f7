package feed

import "strings"

// NormalizeGroupName lowercases and trims a group name so every entry point
// agrees on the registry key.
func NormalizeGroupName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// SlugFromURL derives the filesystem-safe slug that identifies a location
// within a group. The scheme and trailing slashes are stripped before
// sanitizing, so scheme and trailing-slash variants of the same URL collide
// on one slug instead of creating duplicate locations.
func SlugFromURL(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	if i := strings.Index(s, "://"); i >= 0 {
		s = s[i+3:]
	}
	s = strings.Trim(s, "/")
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}
