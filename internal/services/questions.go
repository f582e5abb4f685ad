package services

import (
	"regexp"
	"strings"
)

// Line starters that begin a new question: "1)", "1.", "(1)", "Q1:", "Q:",
// and bullet markers.
var (
	numberedStarter = regexp.MustCompile(`^\(?\d{1,3}[.)]\s*`)
	parenStarter    = regexp.MustCompile(`^\(\d{1,3}\)\s*`)
	qStarter        = regexp.MustCompile(`^[Qq](?:uestion)?\s*\d{0,3}\s*[:.)]\s*`)
	bulletStarter   = regexp.MustCompile(`^[-*•]\s+`)
)

// ExtractQuestions pulls discrete question strings out of free-form assignment
// text without any model call, so the exact original wording survives into the
// journey. Non-matching lines are treated as preamble, not dropped questions.
// Never returns an empty list for non-empty input: it falls back to
// `?`-terminated sentences, then to the whole text as a single question.
func ExtractQuestions(text string) []string {
	normalized := NormalizeText(text)
	if normalized == "" {
		return nil
	}

	var questions []string
	var buffer []string
	open := false

	flush := func() {
		if !open {
			return
		}
		q := strings.TrimSpace(strings.Join(buffer, " "))
		if q != "" {
			questions = append(questions, q)
		}
		buffer = buffer[:0]
		open = false
	}

	for _, line := range strings.Split(normalized, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if rest, ok := stripStarter(line); ok {
			flush()
			open = true
			if rest != "" {
				buffer = append(buffer, rest)
			}
			continue
		}
		if open {
			// Continuation of a multi-line question.
			buffer = append(buffer, line)
			continue
		}
		if strings.HasSuffix(line, "?") {
			questions = append(questions, line)
		}
	}
	flush()

	if len(questions) > 0 {
		return questions
	}

	// No structural markers anywhere: fall back to sentences ending in "?".
	flat := strings.Join(strings.Split(normalized, "\n"), " ")
	for _, sentence := range splitQuestionSentences(flat) {
		if sentence != "" {
			questions = append(questions, sentence)
		}
	}
	if len(questions) > 0 {
		return questions
	}

	return []string{normalized}
}

func stripStarter(line string) (string, bool) {
	for _, re := range []*regexp.Regexp{parenStarter, numberedStarter, qStarter, bulletStarter} {
		if loc := re.FindStringIndex(line); loc != nil && loc[0] == 0 {
			return strings.TrimSpace(line[loc[1]:]), true
		}
	}
	return "", false
}

func splitQuestionSentences(text string) []string {
	var out []string
	start := 0
	for i, r := range text {
		if r != '?' {
			continue
		}
		sentence := strings.TrimSpace(text[start : i+1])
		if sentence != "" {
			out = append(out, sentence)
		}
		start = i + 1
	}
	return out
}
