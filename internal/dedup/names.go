package dedup

import (
	"strings"
)

// NormalizeName prepares a person name for comparison:
//   - "Last, First" is reordered to "First Last"
//   - whitespace is collapsed and surrounding whitespace trimmed
//
// Case, accents and punctuation are left to the similarity processor.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	// Handle "Last, First" format: split on the first comma, swap parts.
	if idx := strings.Index(name, ","); idx >= 0 {
		last := strings.TrimSpace(name[:idx])
		first := strings.TrimSpace(name[idx+1:])
		if first != "" && last != "" {
			name = first + " " + last
		} else {
			name = last + first
		}
	}

	return strings.Join(strings.Fields(name), " ")
}

// isInitialMatch returns true if one token is a single-character initial
// (optionally followed by a period) that matches the first character of
// the other token.
func isInitialMatch(a, b string) bool {
	a = strings.TrimSuffix(strings.ToLower(a), ".")
	b = strings.TrimSuffix(strings.ToLower(b), ".")
	if len(a) == 1 && len(b) > 1 && a[0] == b[0] {
		return true
	}
	if len(b) == 1 && len(a) > 1 && b[0] == a[0] {
		return true
	}
	return false
}

// expandInitials rewrites initials of a in terms of b when the remaining
// tokens line up: "J. Smith" against "John Smith" becomes "John Smith".
// Names whose token counts differ are returned unchanged.
func expandInitials(a, b string) string {
	ta, tb := strings.Fields(a), strings.Fields(b)
	if len(ta) != len(tb) || len(ta) < 2 {
		return a
	}
	out := make([]string, len(ta))
	expanded := false
	for i := range ta {
		switch {
		case strings.EqualFold(ta[i], tb[i]):
			out[i] = ta[i]
		case isInitialMatch(ta[i], tb[i]) && len(strings.TrimSuffix(ta[i], ".")) == 1:
			out[i] = tb[i]
			expanded = true
		default:
			return a
		}
	}
	if !expanded {
		return a
	}
	return strings.Join(out, " ")
}
