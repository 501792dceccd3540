package mentions

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestParse_RepliesBindFirstMention(t *testing.T) {
	got := Parse("hi @bob and @carol", "c1")
	want := []Segment{
		{Kind: SegmentText, Content: "hi "},
		{Kind: SegmentMention, Content: "@bob", Handle: "bob", IsFirst: true, BoundEntityID: strPtr("c1")},
		{Kind: SegmentText, Content: " and "},
		{Kind: SegmentMention, Content: "@carol", Handle: "carol"},
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Segment
	}{
		{
			name: "empty text",
			text: "",
			want: []Segment{},
		},
		{
			name: "no mentions",
			text: "just words",
			want: []Segment{{Kind: SegmentText, Content: "just words"}},
		},
		{
			name: "mention only",
			text: "@dan",
			want: []Segment{{Kind: SegmentMention, Content: "@dan", Handle: "dan", IsFirst: true}},
		},
		{
			name: "embedded at still parses",
			text: "user@handle",
			want: []Segment{
				{Kind: SegmentText, Content: "user"},
				{Kind: SegmentMention, Content: "@handle", Handle: "handle", IsFirst: true},
			},
		},
		{
			name: "bare at is text",
			text: "a @ b",
			want: []Segment{{Kind: SegmentText, Content: "a @ b"}},
		},
		{
			name: "adjacent mentions",
			text: "@a@b_2",
			want: []Segment{
				{Kind: SegmentMention, Content: "@a", Handle: "a", IsFirst: true},
				{Kind: SegmentMention, Content: "@b_2", Handle: "b_2"},
			},
		},
		{
			name: "punctuation ends handle",
			text: "thanks @eve!",
			want: []Segment{
				{Kind: SegmentText, Content: "thanks "},
				{Kind: SegmentMention, Content: "@eve", Handle: "eve", IsFirst: true},
				{Kind: SegmentText, Content: "!"},
			},
		},
		{
			name: "non-ascii letters end handle",
			text: "@joé",
			want: []Segment{
				{Kind: SegmentMention, Content: "@jo", Handle: "jo", IsFirst: true},
				{Kind: SegmentText, Content: "é"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Parse(tt.text, "")
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Parse(%q) mismatch (-want +got):\n%s", tt.text, diff)
			}
		})
	}
}

func TestParse_Lossless(t *testing.T) {
	extra := []string{"@a@b", "x@y z", "@@@", "émoji 🎉 @ok", "\n@n\n"}
	for _, text := range append(append([]string{}, corpus...), extra...) {
		assert.Equal(t, text, Join(Parse(text, "id")), "text %q", text)
	}
}

func TestParse_FirstMentionBinding(t *testing.T) {
	for _, text := range corpus {
		var first int
		for _, seg := range Parse(text, "bound") {
			if seg.Kind != SegmentMention {
				assert.Nil(t, seg.BoundEntityID)
				assert.False(t, seg.IsFirst)
				continue
			}
			first++
			if first == 1 {
				assert.True(t, seg.IsFirst, "text %q", text)
				if assert.NotNil(t, seg.BoundEntityID) {
					assert.Equal(t, "bound", *seg.BoundEntityID)
				}
			} else {
				assert.False(t, seg.IsFirst, "text %q", text)
				assert.Nil(t, seg.BoundEntityID, "text %q", text)
			}
		}
	}
}

func TestParse_NoBindingWithoutEntity(t *testing.T) {
	segs := Parse("@bob", "")
	if assert.Len(t, segs, 1) {
		assert.True(t, segs[0].IsFirst)
		assert.Nil(t, segs[0].BoundEntityID)
	}
}

func TestParse_Reentrant(t *testing.T) {
	first := Parse("@one and @two", "x")
	_ = Parse("@other", "y")
	again := Parse("@one and @two", "x")
	assert.Empty(t, cmp.Diff(first, again))
}

func TestHandles(t *testing.T) {
	segs := Parse("@bob hi @carol and @bob again", "")
	assert.Equal(t, []string{"bob", "carol"}, Handles(segs))
	assert.Empty(t, Handles(Parse("none here", "")))
}

func TestDedupe(t *testing.T) {
	in := []Candidate{alice, bob, {ID: "u1", Handle: "alice2"}, charlie, bob}
	got := Dedupe(in)
	assert.Equal(t, []Candidate{alice, bob, charlie}, got)
}

func TestCandidate_Label(t *testing.T) {
	assert.Equal(t, "alice", alice.Label())
	assert.Equal(t, "Zed", Candidate{DisplayName: "Zed"}.Label())
	assert.Equal(t, "user", Candidate{}.Label())
}
