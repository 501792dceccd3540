package mentions

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Filter returns the candidates whose handle or display name starts with
// query, ignoring case. An empty query matches everyone. The result keeps
// the input order and is never nil.
func Filter(query string, candidates []Candidate) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	if query == "" {
		return append(out, candidates...)
	}

	// A Caser carries transform state and must not be shared.
	lower := cases.Lower(language.Und)
	prefix := lower.String(query)

	for _, c := range candidates {
		if strings.HasPrefix(lower.String(c.Handle), prefix) ||
			strings.HasPrefix(lower.String(c.DisplayName), prefix) {
			out = append(out, c)
		}
	}
	return out
}
