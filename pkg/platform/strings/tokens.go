// Package strings normalises free-form request values into comparable tokens.
package strings

import (
	"slices"
	"strings"
)

// Unique trims and lowercases values, drops empties and duplicates, and
// returns the rest sorted so that input order never matters.
//
// Example:
//
//	Unique([]string{"  FOO ", "bar", "Foo", ""})
//	// Returns: []string{"bar", "foo"}
func Unique(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		normalized := strings.ToLower(strings.TrimSpace(v))
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	slices.Sort(result)
	return result
}

// HeaderTokens splits a comma separated header such as Accept-Language into
// its values, discarding quality parameters.
//
// Example:
//
//	HeaderTokens("en-US,en;q=0.9, de;q=0.8")
//	// Returns: []string{"de", "en", "en-us"}
func HeaderTokens(header string) []string {
	if strings.TrimSpace(header) == "" {
		return nil
	}
	parts := strings.Split(header, ",")
	for i, p := range parts {
		if semi := strings.IndexByte(p, ';'); semi >= 0 {
			parts[i] = p[:semi]
		}
	}
	return Unique(parts)
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
