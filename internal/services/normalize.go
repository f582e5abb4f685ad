package services

import (
	"strings"

	"journey-ai/internal/models"
)

// Verbosity selects the word budgets applied to generated prose.
type Verbosity string

const (
	VerbosityShort Verbosity = "short"
	VerbosityLong  Verbosity = "long"
)

// Per-field caps. Array caps are fixed; word budgets vary with verbosity.
const (
	maxKeyPoints       = 4
	maxQuizQuestions   = 2
	maxTestQuestions   = 4
	maxOptions         = 4
	maxMatchingPairs   = 4
	maxImagePromptWords = 25
	maxInstructionWords = 20
)

type wordBudgets struct {
	summary     int
	keyPoint    int
	explanation int
	definition  int
}

func budgetsFor(v Verbosity) wordBudgets {
	if v == VerbosityShort {
		return wordBudgets{summary: 60, keyPoint: 12, explanation: 25, definition: 12}
	}
	return wordBudgets{summary: 120, keyPoint: 16, explanation: 40, definition: 16}
}

// NormalizeJourney enforces every length and shape cap on a generated journey.
// Idempotent: a second pass leaves the result unchanged. Missing arrays become
// empty, never nil; over-length fields are capped, never grown beyond their
// budget.
func NormalizeJourney(j models.Journey, verbosity Verbosity) models.Journey {
	b := budgetsFor(verbosity)

	j.Title = strings.TrimSpace(j.Title)
	if j.Modules == nil {
		j.Modules = []models.Module{}
	}
	for i := range j.Modules {
		j.Modules[i] = normalizeModule(j.Modules[i], b)
	}
	return j
}

func normalizeModule(m models.Module, b wordBudgets) models.Module {
	m.Title = strings.TrimSpace(m.Title)

	switch m.Type {
	case models.ModuleLearn:
		if m.Learn == nil {
			m.Learn = &models.LearnContent{}
		}
		m.Learn.Summary = truncateWords(strings.TrimSpace(m.Learn.Summary), b.summary)
		m.Learn.ImagePrompt = truncateWords(strings.TrimSpace(m.Learn.ImagePrompt), maxImagePromptWords)
		m.Learn.KeyPoints = normalizeStringList(m.Learn.KeyPoints, maxKeyPoints, b.keyPoint)
	case models.ModuleQuiz, models.ModuleTest:
		if m.Quiz == nil {
			m.Quiz = &models.QuizContent{}
		}
		limit := maxQuizQuestions
		if m.Type == models.ModuleTest {
			limit = maxTestQuestions
		}
		m.Quiz.Questions = normalizeQuestions(m.Quiz.Questions, limit, b)
	case models.ModuleMatchingGame:
		if m.Matching == nil {
			m.Matching = &models.MatchingContent{}
		}
		m.Matching.Instructions = truncateWords(strings.TrimSpace(m.Matching.Instructions), maxInstructionWords)
		if len(m.Matching.Pairs) > maxMatchingPairs {
			m.Matching.Pairs = m.Matching.Pairs[:maxMatchingPairs]
		}
		if m.Matching.Pairs == nil {
			m.Matching.Pairs = []models.MatchingPair{}
		}
		for i := range m.Matching.Pairs {
			m.Matching.Pairs[i].Term = strings.TrimSpace(m.Matching.Pairs[i].Term)
			m.Matching.Pairs[i].Definition = truncateWords(strings.TrimSpace(m.Matching.Pairs[i].Definition), b.definition)
		}
	case models.ModuleAssignment:
		if m.Assignment == nil {
			m.Assignment = &models.AssignmentContent{}
		}
		if len(m.Assignment.Questions) > 1 {
			m.Assignment.Questions = m.Assignment.Questions[:1]
		}
		if m.Assignment.Questions == nil {
			m.Assignment.Questions = []models.AssignmentQuestion{}
		}
		for i := range m.Assignment.Questions {
			if !validQuestionType(m.Assignment.Questions[i].QuestionType) {
				m.Assignment.Questions[i].QuestionType = models.QuestionText
			}
		}
	}
	return m
}

func normalizeQuestions(questions []models.Question, limit int, b wordBudgets) []models.Question {
	if len(questions) > limit {
		questions = questions[:limit]
	}
	if questions == nil {
		questions = []models.Question{}
	}
	for i := range questions {
		q := &questions[i]
		q.Question = strings.TrimSpace(q.Question)
		q.Explanation = truncateWords(strings.TrimSpace(q.Explanation), b.explanation)
		if len(q.Options) > maxOptions {
			q.Options = q.Options[:maxOptions]
		}
		// The presentation layer renders exactly four choice buttons.
		for len(q.Options) < maxOptions {
			q.Options = append(q.Options, "")
		}
		if q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= maxOptions {
			q.CorrectAnswerIndex = 0
		}
	}
	return questions
}

func normalizeStringList(items []string, maxItems, budget int) []string {
	if len(items) > maxItems {
		items = items[:maxItems]
	}
	if items == nil {
		items = []string{}
	}
	for i := range items {
		items[i] = truncateWords(strings.TrimSpace(items[i]), budget)
	}
	return items
}

func validQuestionType(t models.QuestionType) bool {
	switch t {
	case models.QuestionText, models.QuestionCode, models.QuestionMath:
		return true
	}
	return false
}
