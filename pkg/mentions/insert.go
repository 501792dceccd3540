package mentions

import (
	"fmt"

	mkerrors "github.com/otherjamesbrown/mentionkit/pkg/errors"
)

// Insert replaces the in-progress "@query" span with "@label " and returns
// the new text with the caret placed right after the inserted space.
//
// The span is located in two stages. First by the remembered query: the
// last occurrence of "@"+rememberedQuery, which must start a token. The
// remembered query survives caret moves between a keystroke and an
// asynchronous selection. If it is empty or no longer found, the live
// caret is re-run through Detect and the span is [anchor, fallbackCaret).
//
// When neither stage finds a span the input is returned unchanged together
// with an error wrapping ErrNoActiveMention.
func Insert(c Candidate, text, rememberedQuery string, fallbackCaret int) (Insertion, error) {
	runes := []rune(text)

	start, end, strategy := locateSpan(runes, rememberedQuery, fallbackCaret)
	if strategy == StrategyNone {
		return Insertion{Text: text, Caret: fallbackCaret, Strategy: StrategyNone},
			fmt.Errorf("inserting @%s (query %q, caret %d): %w",
				c.Label(), rememberedQuery, fallbackCaret, mkerrors.ErrNoActiveMention)
	}

	replacement := []rune("@" + c.Label() + " ")

	out := make([]rune, 0, len(runes)-(end-start)+len(replacement))
	out = append(out, runes[:start]...)
	out = append(out, replacement...)
	out = append(out, runes[end:]...)

	return Insertion{
		Text:     string(out),
		Caret:    start + len(replacement),
		Strategy: strategy,
	}, nil
}

func locateSpan(runes []rune, rememberedQuery string, fallbackCaret int) (start, end int, strategy Strategy) {
	if start, end, ok := findRemembered(runes, rememberedQuery); ok {
		return start, end, StrategyRememberedQuery
	}

	caret := clampCaret(fallbackCaret, len(runes))
	if active, ok := detectRunes(runes, caret); ok {
		return active.Anchor, caret, StrategyLiveCaret
	}

	return 0, 0, StrategyNone
}

// findRemembered validates only the last occurrence of "@"+query; an
// earlier anchored occurrence is not a substitute for it.
func findRemembered(runes []rune, query string) (start, end int, ok bool) {
	if query == "" {
		return 0, 0, false
	}

	needle := []rune("@" + query)
	for i := len(runes) - len(needle); i >= 0; i-- {
		if !hasPrefixAt(runes, needle, i) {
			continue
		}
		if !anchoredAt(runes, i) {
			return 0, 0, false
		}
		return i, i + len(needle), true
	}
	return 0, 0, false
}

func hasPrefixAt(runes, needle []rune, i int) bool {
	for j, r := range needle {
		if runes[i+j] != r {
			return false
		}
	}
	return true
}
