// Package strings holds small helpers for cleaning list-valued settings.
package strings

import "strings"

// DedupeAndTrim trims each value, drops empties and keeps the first
// occurrence of each remaining value.
func DedupeAndTrim(values []string) []string {
	return DedupeFunc(values, strings.TrimSpace)
}

// DedupeFunc is DedupeAndTrim with a caller-chosen normalization applied
// before comparison. Values normalized to "" are dropped.
func DedupeFunc(values []string, normalize func(string) string) []string {
	if len(values) == 0 {
		return values
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		n := normalize(v)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}
