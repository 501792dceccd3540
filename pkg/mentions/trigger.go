package mentions

import "slices"

// Detect reports the in-progress mention ending at caret, if any.
//
// The nearest '@' before the caret starts the trigger. It only counts when
// it sits at the start of the text or right after a space or newline, so
// "user@handle" never triggers. A query that already contains a space has
// been closed by the user and is not active.
func Detect(text string, caret int) (ActiveMention, bool) {
	runes := []rune(text)
	return detectRunes(runes, clampCaret(caret, len(runes)))
}

func detectRunes(runes []rune, caret int) (ActiveMention, bool) {
	if caret == 0 {
		return ActiveMention{}, false
	}

	anchor := lastIndexRune(runes[:caret], '@')
	if anchor < 0 || !anchoredAt(runes, anchor) {
		return ActiveMention{}, false
	}

	query := runes[anchor+1 : caret]
	if slices.Contains(query, ' ') {
		return ActiveMention{}, false
	}

	return ActiveMention{Query: string(query), Anchor: anchor}, true
}

// anchoredAt reports whether an '@' at index i starts a token.
func anchoredAt(runes []rune, i int) bool {
	if i == 0 {
		return true
	}
	prev := runes[i-1]
	return prev == ' ' || prev == '\n'
}

func lastIndexRune(runes []rune, r rune) int {
	for i := len(runes) - 1; i >= 0; i-- {
		if runes[i] == r {
			return i
		}
	}
	return -1
}

func clampCaret(caret, n int) int {
	if caret < 0 {
		return 0
	}
	if caret > n {
		return n
	}
	return caret
}
