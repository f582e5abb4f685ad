package services

import (
	"encoding/json"
	"fmt"
	"strings"

	"journey-ai/internal/models"
)

// The raw* types mirror the loosely-typed JSON the model emits: one object
// with every variant field optional. They exist only at the decode boundary;
// everything after conversion works with the models.Module tagged union.

type rawJourney struct {
	Title   string      `json:"title"`
	Modules []rawModule `json:"modules"`
}

type rawModule struct {
	Type         string                `json:"type"`
	Title        string                `json:"title"`
	Summary      string                `json:"summary"`
	KeyPoints    []string              `json:"keyPoints"`
	ImagePrompt  string                `json:"imagePrompt"`
	Questions    []rawQuestion         `json:"questions"`
	Instructions string                `json:"instructions"`
	Pairs        []models.MatchingPair `json:"pairs"`

	// Nested variants, as marshalled by models.Module. Preferred over the flat
	// fields when present.
	Learn      *models.LearnContent      `json:"learn"`
	Quiz       *models.QuizContent       `json:"quiz"`
	Matching   *models.MatchingContent   `json:"matching"`
	Assignment *models.AssignmentContent `json:"assignment"`
}

type rawQuestion struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
	QuestionType       string   `json:"questionType"`
}

type rawPlan struct {
	Title string    `json:"title"`
	Stubs []rawStub `json:"plan"`
}

type rawStub struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Focus string `json:"focus"`
}

// DecodeJourney parses loosely-typed journey JSON into the tagged union.
// It tolerates surrounding prose, code fences, flat module objects, and a bare
// top-level module array.
func DecodeJourney(raw string) (models.Journey, error) {
	slice, err := extractJSON(raw)
	if err != nil {
		return models.Journey{}, err
	}
	var rj rawJourney
	if err := json.Unmarshal([]byte(slice), &rj); err != nil {
		return models.Journey{}, fmt.Errorf("decode journey: %w", err)
	}
	journey := models.Journey{Title: strings.TrimSpace(rj.Title)}
	for _, rm := range rj.Modules {
		journey.Modules = append(journey.Modules, moduleFromRaw(rm))
	}
	return journey, nil
}

// coerceModuleType maps the model's free-form type labels onto the enum,
// defaulting unknown or missing values to Learn.
func coerceModuleType(s string) models.ModuleType {
	switch strings.ToLower(strings.ReplaceAll(strings.ReplaceAll(strings.TrimSpace(s), " ", ""), "_", "")) {
	case "learn", "lesson", "explain":
		return models.ModuleLearn
	case "quiz":
		return models.ModuleQuiz
	case "test", "assessment", "exam":
		return models.ModuleTest
	case "matchinggame", "matching", "match":
		return models.ModuleMatchingGame
	case "assignment":
		return models.ModuleAssignment
	default:
		return models.ModuleLearn
	}
}

func coerceQuestionType(s string) models.QuestionType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "code":
		return models.QuestionCode
	case "math":
		return models.QuestionMath
	default:
		return models.QuestionText
	}
}

// moduleFromRaw converts one loose wire module into the tagged union,
// discarding fields that do not belong to the coerced type.
func moduleFromRaw(raw rawModule) models.Module {
	m := models.Module{
		Type:  coerceModuleType(raw.Type),
		Title: strings.TrimSpace(raw.Title),
	}
	switch m.Type {
	case models.ModuleLearn:
		if raw.Learn != nil {
			m.Learn = raw.Learn
		} else {
			m.Learn = &models.LearnContent{
				Summary:     raw.Summary,
				KeyPoints:   raw.KeyPoints,
				ImagePrompt: raw.ImagePrompt,
			}
		}
	case models.ModuleQuiz, models.ModuleTest:
		if raw.Quiz != nil {
			m.Quiz = raw.Quiz
		} else {
			m.Quiz = &models.QuizContent{Questions: choiceQuestionsFromRaw(raw.Questions)}
		}
	case models.ModuleMatchingGame:
		if raw.Matching != nil {
			m.Matching = raw.Matching
		} else {
			m.Matching = &models.MatchingContent{
				Instructions: raw.Instructions,
				Pairs:        raw.Pairs,
			}
		}
	case models.ModuleAssignment:
		if raw.Assignment != nil {
			m.Assignment = raw.Assignment
		} else {
			m.Assignment = &models.AssignmentContent{Questions: assignmentQuestionsFromRaw(raw.Questions)}
		}
	}
	return m
}

func choiceQuestionsFromRaw(raw []rawQuestion) []models.Question {
	out := make([]models.Question, 0, len(raw))
	for _, q := range raw {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		out = append(out, models.Question{
			Question:           strings.TrimSpace(q.Question),
			Options:            q.Options,
			CorrectAnswerIndex: q.CorrectAnswerIndex,
			Explanation:        q.Explanation,
		})
	}
	return out
}

func assignmentQuestionsFromRaw(raw []rawQuestion) []models.AssignmentQuestion {
	out := make([]models.AssignmentQuestion, 0, len(raw))
	for _, q := range raw {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		out = append(out, models.AssignmentQuestion{
			Question:     strings.TrimSpace(q.Question),
			QuestionType: coerceQuestionType(q.QuestionType),
		})
	}
	return out
}

func stubFromRaw(raw rawStub) models.Stub {
	return models.Stub{
		Type:  coerceModuleType(raw.Type),
		Title: strings.TrimSpace(raw.Title),
		Focus: strings.TrimSpace(raw.Focus),
	}
}
