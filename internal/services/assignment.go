package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"journey-ai/internal/models"
)

// AssignmentOptions configures PlanAssignment.
type AssignmentOptions struct {
	MaxModules    int
	MinLearnFirst int
	TitleHint     string
	Concurrency   int
	Verbosity     Verbosity
}

func DefaultAssignmentOptions() AssignmentOptions {
	return AssignmentOptions{
		MaxModules:    40,
		MinLearnFirst: 1,
		Concurrency:   8,
		Verbosity:     VerbosityLong,
	}
}

func (o AssignmentOptions) withDefaults() AssignmentOptions {
	def := DefaultAssignmentOptions()
	if o.MaxModules <= 0 {
		o.MaxModules = def.MaxModules
	}
	if o.MinLearnFirst <= 0 {
		o.MinLearnFirst = def.MinLearnFirst
	}
	if o.Concurrency <= 0 {
		o.Concurrency = def.Concurrency
	}
	if o.Verbosity != VerbosityShort && o.Verbosity != VerbosityLong {
		o.Verbosity = def.Verbosity
	}
	return o
}

// PlanAssignment builds a journey around an assignment. The questions come
// from deterministic extraction, never from the model, so the learner always
// answers the exact questions as written. Only the teaching content and the
// title involve model calls, and both degrade gracefully.
func (s *PlannerService) PlanAssignment(ctx context.Context, text string, opts AssignmentOptions, progress ProgressCallback) models.Journey {
	opts = opts.withDefaults()
	source := clipText(NormalizeText(text), maxSourceRunes)

	if progress != nil {
		progress("extract", "Reading the assignment questions", 0, 100)
	}
	questions := ExtractQuestions(source)
	stubs := buildAssignmentStubs(questions, opts)

	if progress != nil {
		progress("title", "Naming the journey", 10, 100)
	}
	title := s.generateTitle(ctx, source, opts.TitleHint)

	if progress != nil {
		progress("generate", fmt.Sprintf("Generating %d modules", len(stubs)), 15, 100)
	}

	var completed int
	var mu sync.Mutex
	journeyOpts := JourneyOptions{Verbosity: opts.Verbosity}.withDefaults()
	modules := mapWithLimit(ctx, stubs, opts.Concurrency, func(ctx context.Context, idx int, stub models.Stub) models.Module {
		var module models.Module
		if stub.Type == models.ModuleAssignment {
			module = s.buildAssignmentModule(ctx, stub)
		} else {
			module = s.generateModule(ctx, stub, source, journeyOpts)
		}
		mu.Lock()
		completed++
		if progress != nil {
			pct := 15 + (80 * completed / len(stubs))
			progress("generate", fmt.Sprintf("Generated module %d of %d", completed, len(stubs)), pct, 100)
		}
		mu.Unlock()
		return module
	})

	if progress != nil {
		progress("normalize", "Polishing content", 95, 100)
	}
	journey := NormalizeJourney(models.Journey{Title: title, Modules: modules}, opts.Verbosity)
	if progress != nil {
		progress("complete", "Journey ready", 100, 100)
	}
	return journey
}

// buildAssignmentStubs lays out the fixed alternation: prerequisite Learn
// stubs, then one Learn plus one Assignment stub per extracted question, as
// many as fit the module cap.
func buildAssignmentStubs(questions []string, opts AssignmentOptions) []models.Stub {
	var stubs []models.Stub

	if len(questions) == 0 {
		return []models.Stub{
			{Type: models.ModuleLearn, Title: "Getting Started", Focus: "Introduce the concepts behind this assignment"},
			{Type: models.ModuleAssignment, Title: "Your Assignment", Focus: "Complete the assignment in your own words"},
		}
	}

	for i := 0; i < opts.MinLearnFirst && len(stubs) < opts.MaxModules; i++ {
		stubs = append(stubs, models.Stub{
			Type:  models.ModuleLearn,
			Title: "Before You Start",
			Focus: "Teach the background knowledge this assignment assumes",
		})
	}

	for i, question := range questions {
		if len(stubs)+2 > opts.MaxModules {
			break
		}
		stubs = append(stubs,
			models.Stub{
				Type:  models.ModuleLearn,
				Title: fmt.Sprintf("Preparing for Question %d", i+1),
				Focus: "Teach the concepts needed to answer: " + question,
			},
			models.Stub{
				Type:  models.ModuleAssignment,
				Title: fmt.Sprintf("Question %d", i+1),
				Focus: question,
			},
		)
	}
	return stubs
}

// buildAssignmentModule constructs an Assignment module directly from the
// stub's focus. The question text is copied verbatim; only its content-type
// label comes from a lightweight classification call.
func (s *PlannerService) buildAssignmentModule(ctx context.Context, stub models.Stub) models.Module {
	return models.Module{
		Type:  models.ModuleAssignment,
		Title: stub.Title,
		Assignment: &models.AssignmentContent{
			Questions: []models.AssignmentQuestion{{
				Question:     stub.Focus,
				QuestionType: s.classifyQuestion(ctx, stub.Focus),
			}},
		},
	}
}

// classifyQuestion labels the expected answer form of a question. Any failure
// defaults to plain text.
func (s *PlannerService) classifyQuestion(ctx context.Context, question string) models.QuestionType {
	prompt := fmt.Sprintf(`Classify how the following question is best answered.

Respond with a JSON object {"questionType":""} where "questionType" is one of
"text" (prose), "code" (a program or snippet), or "math" (mathematical notation).

Question: %s`, sanitizeForPrompt(question, 400))

	var raw struct {
		QuestionType string `json:"questionType"`
	}
	generateJSON(ctx, s.gw, prompt, GenerationConfig{
		Temperature: 0,
		MaxTokens:   50,
		JSONOnly:    true,
	}, &raw, `{"questionType":"text"}`)
	return coerceQuestionType(raw.QuestionType)
}

// generateTitle asks for a short journey title. Failure falls back to the
// hint, then to a generic default, so it never aborts the pipeline.
func (s *PlannerService) generateTitle(ctx context.Context, source, hint string) string {
	prompt := "Suggest a creative 3-5 word title for a learning journey built from this assignment. " +
		"Respond with the title only, no quotes.\n\nAssignment:\n---\n" + clipText(source, 2000) + "\n---"

	resp, err := s.gw.Complete(ctx, prompt, GenerationConfig{
		Temperature: 0.8,
		MaxTokens:   30,
	})
	if err == nil {
		title := strings.Trim(strings.TrimSpace(resp), `"'`)
		if title != "" {
			return truncateWords(title, 8)
		}
	}
	return firstNonEmpty(strings.TrimSpace(hint), defaultAssignmentTitle)
}
