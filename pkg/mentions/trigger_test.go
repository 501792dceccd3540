package mentions

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		caret     int
		wantOK    bool
		wantQuery string
		wantAnch  int
	}{
		{"empty text", "", 0, false, "", 0},
		{"caret at zero", "@al", 0, false, "", 0},
		{"bare at sign", "@", 1, true, "", 0},
		{"query at start", "@al", 3, true, "al", 0},
		{"after space", "hi @bo", 6, true, "bo", 3},
		{"after newline", "line\n@ch", 8, true, "ch", 5},
		{"embedded in word", "user@handle", 11, false, "", 0},
		{"closed by space", "@al ", 4, false, "", 0},
		{"space inside query", "@al ice", 7, false, "", 0},
		{"nearest at wins", "@al @bo", 7, true, "bo", 4},
		{"nearest at invalid", "@al x@bo", 8, false, "", 0},
		{"punctuation stays in query", "@a.b-c", 6, true, "a.b-c", 0},
		{"caret mid query", "@alice", 3, true, "al", 0},
		{"caret before at", "hi @bob", 3, false, "", 0},
		{"no at sign", "hello", 5, false, "", 0},
		{"tab is not a boundary", "tab\t@x", 6, false, "", 0},
		{"caret past end is clamped", "@al", 99, true, "al", 0},
		{"negative caret", "@al", -1, false, "", 0},
		{"non-ascii query", "ça va @élo", 10, true, "élo", 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Detect(tt.text, tt.caret)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, ActiveMention{Query: tt.wantQuery, Anchor: tt.wantAnch}, got)
			} else {
				assert.Equal(t, ActiveMention{}, got)
			}
		})
	}
}

func TestDetect_BoundaryProperty(t *testing.T) {
	for _, text := range corpus {
		runes := []rune(text)
		for caret := 0; caret <= len(runes); caret++ {
			anchor := lastIndexRune(runes[:caret], '@')
			if anchor <= 0 {
				continue
			}
			prev := runes[anchor-1]
			if prev == ' ' || prev == '\n' {
				continue
			}
			_, ok := Detect(text, caret)
			assert.False(t, ok, "text %q caret %d: '@' preceded by %q must not trigger", text, caret, prev)
		}
	}
}

func TestDetect_Idempotent(t *testing.T) {
	for _, text := range corpus {
		for caret := 0; caret <= len([]rune(text)); caret++ {
			a1, ok1 := Detect(text, caret)
			a2, ok2 := Detect(text, caret)
			assert.Equal(t, ok1, ok2)
			assert.Equal(t, a1, a2)
		}
	}
}

func TestDetect_QueryMatchesSpan(t *testing.T) {
	for _, text := range corpus {
		runes := []rune(text)
		for caret := 0; caret <= len(runes); caret++ {
			active, ok := Detect(text, caret)
			if !ok {
				continue
			}
			assert.Equal(t, '@', runes[active.Anchor])
			assert.Equal(t, string(runes[active.Anchor+1:caret]), active.Query)
			assert.NotContains(t, active.Query, " ")
		}
	}
}
