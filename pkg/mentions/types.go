// Package mentions implements the @-mention engine used by the comment
// composer: detecting an in-progress "@query" at the caret, filtering the
// scope's candidates, splicing the chosen candidate back into the text and
// parsing finalized text into renderable segments.
//
// Everything in this package is a pure function. Text indices (caret,
// anchor) are rune offsets; out-of-range carets are clamped.
package mentions

// Candidate is an entity that may be mentioned within a scope.
type Candidate struct {
	ID          string  `json:"id" yaml:"id"`
	Handle      string  `json:"handle" yaml:"handle"`
	DisplayName string  `json:"display_name" yaml:"display_name"`
	AvatarRef   *string `json:"avatar_ref,omitempty" yaml:"avatar_ref,omitempty"`
}

// Label is the text inserted after "@" when the candidate is chosen.
func (c Candidate) Label() string {
	switch {
	case c.Handle != "":
		return c.Handle
	case c.DisplayName != "":
		return c.DisplayName
	default:
		return "user"
	}
}

// ActiveMention is the in-progress trigger under the caret.
type ActiveMention struct {
	Query  string `json:"query"`
	Anchor int    `json:"anchor"`
}

// SegmentKind distinguishes plain text from mention segments.
type SegmentKind string

const (
	SegmentText    SegmentKind = "text"
	SegmentMention SegmentKind = "mention"
)

// Segment is a contiguous run of finalized text. Concatenating the Content
// of every segment returned by Parse reproduces the input exactly.
type Segment struct {
	Kind          SegmentKind `json:"kind" yaml:"kind"`
	Content       string      `json:"content" yaml:"content"`
	Handle        string      `json:"handle,omitempty" yaml:"handle,omitempty"`
	IsFirst       bool        `json:"is_first,omitempty" yaml:"is_first,omitempty"`
	BoundEntityID *string     `json:"bound_entity_id,omitempty" yaml:"bound_entity_id,omitempty"`
}

// Strategy records which lookup located the span replaced by Insert.
type Strategy string

const (
	StrategyRememberedQuery Strategy = "remembered_query"
	StrategyLiveCaret       Strategy = "live_caret"
	StrategyNone            Strategy = "none"
)

// Insertion is the composer text and caret after a candidate is chosen.
type Insertion struct {
	Text     string   `json:"text"`
	Caret    int      `json:"caret"`
	Strategy Strategy `json:"strategy"`
}

// Dedupe returns candidates with duplicate IDs removed, keeping the first
// occurrence and the original order.
func Dedupe(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}
