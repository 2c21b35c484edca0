package members

import "strings"

// Filter returns the members whose value for every field in spec contains
// the paired needle. Matching is case-sensitive; missing fields read as "".
// Input order is preserved and an empty spec returns ms as is.
func Filter(ms []*Member, spec FilterSpec) []*Member {
	if len(spec) == 0 {
		return ms
	}
	out := make([]*Member, 0, len(ms))
	for _, m := range ms {
		if Matches(m, spec) {
			out = append(out, m)
		}
	}
	return out
}

// Matches reports whether m satisfies every pair in spec.
func Matches(m *Member, spec FilterSpec) bool {
	for field, needle := range spec {
		if !strings.Contains(m.Value(field), needle) {
			return false
		}
	}
	return true
}
