package services

import "strings"

// ellipsis is appended to any text truncated by a word budget.
const ellipsis = "…"

// NormalizeText removes carriage returns, collapses runs of horizontal
// whitespace, strips trailing whitespace before newlines, and trims the whole
// string. Pure and total.
func NormalizeText(text string) string {
	text = strings.ReplaceAll(text, "\r", "")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// truncateWords keeps at most limit whitespace-separated tokens of s, never
// cutting mid-word, and marks truncation with an ellipsis on the last token.
func truncateWords(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	words := strings.Fields(s)
	if len(words) <= limit {
		return s
	}
	return strings.Join(words[:limit], " ") + ellipsis
}

// wordCount counts whitespace-separated tokens.
func wordCount(s string) int {
	return len(strings.Fields(s))
}

// sanitizeForPrompt collapses whitespace and caps the rune length of a value
// embedded into a prompt.
func sanitizeForPrompt(input string, limit int) string {
	collapsed := strings.Join(strings.Fields(strings.TrimSpace(input)), " ")
	if limit <= 0 {
		return collapsed
	}
	runes := []rune(collapsed)
	if len(runes) <= limit {
		return collapsed
	}
	if limit > 3 {
		return string(runes[:limit-3]) + "..."
	}
	return string(runes[:limit])
}

// clipText caps the rune length of source material embedded into a prompt
// while preserving line structure.
func clipText(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + ellipsis
}
