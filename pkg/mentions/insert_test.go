package mentions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mkerrors "github.com/otherjamesbrown/mentionkit/pkg/errors"
)

func TestInsert(t *testing.T) {
	tests := []struct {
		name      string
		candidate Candidate
		text      string
		remember  string
		caret     int
		wantText  string
		wantCaret int
		wantStrat Strategy
	}{
		{
			name:      "remembered query at start",
			candidate: alice, text: "@al", remember: "al", caret: 3,
			wantText: "@alice ", wantCaret: 7, wantStrat: StrategyRememberedQuery,
		},
		{
			name:      "remembered query survives caret move",
			candidate: bob, text: "hey @bo there", remember: "bo", caret: 0,
			wantText: "hey @bob  there", wantCaret: 9, wantStrat: StrategyRememberedQuery,
		},
		{
			name:      "last occurrence wins",
			candidate: bob, text: "@bo and @bo", remember: "bo", caret: 11,
			wantText: "@bo and @bob ", wantCaret: 13, wantStrat: StrategyRememberedQuery,
		},
		{
			name:      "empty remembered query falls back to caret",
			candidate: alice, text: "hi @", remember: "", caret: 4,
			wantText: "hi @alice ", wantCaret: 10, wantStrat: StrategyLiveCaret,
		},
		{
			name:      "stale remembered query falls back to caret",
			candidate: charlie, text: "x @ch", remember: "zz", caret: 5,
			wantText: "x @charlie ", wantCaret: 11, wantStrat: StrategyLiveCaret,
		},
		{
			name:      "fallback keeps text after caret",
			candidate: alice, text: "@al tail", remember: "", caret: 3,
			wantText: "@alice  tail", wantCaret: 7, wantStrat: StrategyLiveCaret,
		},
		{
			name:      "unanchored remembered occurrence falls back",
			candidate: alice, text: "@al x@al", remember: "al", caret: 3,
			wantText: "@alice  x@al", wantCaret: 7, wantStrat: StrategyLiveCaret,
		},
		{
			name:      "display name used when handle empty",
			candidate: Candidate{ID: "u9", DisplayName: "Zed"}, text: "@z", remember: "z", caret: 2,
			wantText: "@Zed ", wantCaret: 5, wantStrat: StrategyRememberedQuery,
		},
		{
			name:      "placeholder label",
			candidate: Candidate{ID: "u0"}, text: "@", remember: "", caret: 1,
			wantText: "@user ", wantCaret: 6, wantStrat: StrategyLiveCaret,
		},
		{
			name:      "non-ascii prefix uses rune offsets",
			candidate: Candidate{ID: "u4", Handle: "élodie"}, text: "ça @él", remember: "él", caret: 6,
			wantText: "ça @élodie ", wantCaret: 11, wantStrat: StrategyRememberedQuery,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Insert(tt.candidate, tt.text, tt.remember, tt.caret)
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, got.Text)
			assert.Equal(t, tt.wantCaret, got.Caret)
			assert.Equal(t, tt.wantStrat, got.Strategy)
		})
	}
}

func TestInsert_NoActiveMention(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		remember string
		caret    int
	}{
		{"plain text", "hello", "", 5},
		{"embedded at", "user@al", "al", 7},
		{"closed query", "@al done", "", 8},
		{"empty text", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Insert(alice, tt.text, tt.remember, tt.caret)
			require.Error(t, err)
			assert.True(t, mkerrors.IsNoActiveMention(err))
			assert.Equal(t, tt.text, got.Text)
			assert.Equal(t, tt.caret, got.Caret)
			assert.Equal(t, StrategyNone, got.Strategy)
		})
	}
}

func TestInsert_RoundTrip(t *testing.T) {
	candidates := append(seedCandidates(), Candidate{ID: "u4", Handle: "élodie"})

	for _, text := range corpus {
		runes := []rune(text)
		for caret := 0; caret <= len(runes); caret++ {
			active, ok := Detect(text, caret)
			if !ok {
				continue
			}
			for _, c := range candidates {
				got, err := Insert(c, text, active.Query, caret)
				require.NoError(t, err, "text %q caret %d", text, caret)

				handle := []rune(c.Label())
				assert.Equal(t, active.Anchor+len(handle)+2, got.Caret,
					"text %q caret %d candidate %s", text, caret, c.Handle)

				out := []rune(got.Text)
				require.GreaterOrEqual(t, len(out), got.Caret)
				assert.Equal(t, "@"+c.Label()+" ", string(out[active.Anchor:got.Caret]))
				assert.Equal(t, string(runes[:active.Anchor]), string(out[:active.Anchor]))
				tail := active.Anchor + 1 + len([]rune(active.Query))
				assert.Equal(t, string(runes[tail:]), string(out[got.Caret:]))
			}
		}
	}
}
