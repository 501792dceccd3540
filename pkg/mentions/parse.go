package mentions

import (
	"regexp"
	"strings"
)

// mentionPattern matches "@" followed by word characters. regexp.Regexp
// keeps no match cursor between calls, so Parse is re-entrant.
var mentionPattern = regexp.MustCompile(`@(\w+)`)

// Parse splits finalized text into alternating text and mention segments.
//
// Unlike Detect, Parse applies no boundary rule: any "@word" in persisted
// text is a mention, whatever precedes it. Composition and display use
// different rules on purpose and existing content depends on it.
//
// The first mention is flagged IsFirst and, when boundEntityID is not
// empty, carries it as BoundEntityID (the comment a reply threads to).
// Later mentions are never bound.
func Parse(text, boundEntityID string) []Segment {
	matches := mentionPattern.FindAllStringSubmatchIndex(text, -1)
	segments := make([]Segment, 0, 2*len(matches)+1)

	last := 0
	for i, m := range matches {
		if m[0] > last {
			segments = append(segments, Segment{Kind: SegmentText, Content: text[last:m[0]]})
		}

		seg := Segment{
			Kind:    SegmentMention,
			Content: text[m[0]:m[1]],
			Handle:  text[m[2]:m[3]],
		}
		if i == 0 {
			seg.IsFirst = true
			if boundEntityID != "" {
				id := boundEntityID
				seg.BoundEntityID = &id
			}
		}
		segments = append(segments, seg)
		last = m[1]
	}

	if last < len(text) {
		segments = append(segments, Segment{Kind: SegmentText, Content: text[last:]})
	}
	return segments
}

// Join concatenates segment contents.
func Join(segments []Segment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Content)
	}
	return b.String()
}

// Handles returns the distinct mentioned handles in order of first appearance.
func Handles(segments []Segment) []string {
	seen := make(map[string]struct{})
	var handles []string
	for _, s := range segments {
		if s.Kind != SegmentMention {
			continue
		}
		if _, ok := seen[s.Handle]; ok {
			continue
		}
		seen[s.Handle] = struct{}{}
		handles = append(handles, s.Handle)
	}
	return handles
}
