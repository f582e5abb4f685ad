package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"journey-ai/internal/models"
)

// ProgressCallback is called during journey generation to report progress.
type ProgressCallback func(step, message string, current, total int)

const (
	defaultJourneyTitle    = "Your Learning Journey"
	defaultAssignmentTitle = "Assignment Helper Journey"

	// How much source material a single prompt carries.
	maxSourceRunes = 12000

	minPlannedModules = 6
)

// JourneyOptions configures PlanJourney. The zero value is not useful; start
// from DefaultJourneyOptions.
type JourneyOptions struct {
	MaxModules    int
	IncludeTest   bool
	AllowMatching bool
	MinLearnFirst int
	TitleHint     string
	Concurrency   int
	Verbosity     Verbosity
}

func DefaultJourneyOptions() JourneyOptions {
	return JourneyOptions{
		MaxModules:    12,
		IncludeTest:   true,
		AllowMatching: true,
		MinLearnFirst: 2,
		Concurrency:   6,
		Verbosity:     VerbosityLong,
	}
}

func (o JourneyOptions) withDefaults() JourneyOptions {
	def := DefaultJourneyOptions()
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

// PlannerService orchestrates the plan-then-expand generation of journeys.
type PlannerService struct {
	gw     Completer
	images ImageGenerator // optional; nil skips visuals
}

func NewPlannerService(gw Completer, images ImageGenerator) *PlannerService {
	return &PlannerService{gw: gw, images: images}
}

const plannerSystemPrompt = "You are an expert instructional designer creating bite-sized, " +
	"ADHD-friendly learning journeys. Every module focuses on a single concept."

// PlanJourney transforms study material into a complete journey. It never
// fails: transport, parse and structural failures all degrade to placeholder
// content inside a structurally valid journey.
func (s *PlannerService) PlanJourney(ctx context.Context, text string, opts JourneyOptions, progress ProgressCallback) models.Journey {
	opts = opts.withDefaults()
	source := clipText(NormalizeText(text), maxSourceRunes)

	if progress != nil {
		progress("plan", "Outlining the journey", 0, 100)
	}

	plan := s.requestPlan(ctx, source, opts)
	stubs := applyPlanPolicy(plan.Stubs, opts)

	if progress != nil {
		progress("generate", fmt.Sprintf("Generating %d modules", len(stubs)), 15, 100)
	}

	var completed int
	var mu sync.Mutex
	modules := mapWithLimit(ctx, stubs, opts.Concurrency, func(ctx context.Context, idx int, stub models.Stub) models.Module {
		module := s.generateModule(ctx, stub, source, opts)
		mu.Lock()
		completed++
		if progress != nil {
			pct := 15 + (80 * completed / len(stubs))
			progress("generate", fmt.Sprintf("Generated module %d of %d", completed, len(stubs)), pct, 100)
		}
		mu.Unlock()
		return module
	})

	title := firstNonEmpty(strings.TrimSpace(plan.Title), strings.TrimSpace(opts.TitleHint), defaultJourneyTitle)

	if progress != nil {
		progress("normalize", "Polishing content", 95, 100)
	}
	journey := NormalizeJourney(models.Journey{Title: title, Modules: modules}, opts.Verbosity)
	if progress != nil {
		progress("complete", "Journey ready", 100, 100)
	}
	return journey
}

func (s *PlannerService) requestPlan(ctx context.Context, source string, opts JourneyOptions) models.Plan {
	var sb strings.Builder
	sb.WriteString("Plan a learning journey for the study material below.\n\n")
	sb.WriteString(`Respond with a JSON object {"title":"","plan":[{"type":"","title":"","focus":""}]}.` + "\n")
	sb.WriteString("Rules for the plan:\n")
	fmt.Fprintf(&sb, "- \"type\" is one of %q, %q", models.ModuleLearn, models.ModuleQuiz)
	if opts.AllowMatching {
		fmt.Fprintf(&sb, ", %q", models.ModuleMatchingGame)
	}
	if opts.IncludeTest {
		fmt.Fprintf(&sb, ", %q", models.ModuleTest)
	}
	sb.WriteString(".\n")
	fmt.Fprintf(&sb, "- Start with at least %d foundational %q modules.\n", opts.MinLearnFirst, models.ModuleLearn)
	sb.WriteString("- After that, alternate groups of 2-3 \"Learn\" modules with one interactive module.\n")
	if opts.IncludeTest {
		fmt.Fprintf(&sb, "- End with exactly one comprehensive %q module.\n", models.ModuleTest)
	}
	fmt.Fprintf(&sb, "- Total between %d and %d modules.\n", minPlannedModules, opts.MaxModules)
	sb.WriteString("- \"focus\" states what that module should teach or assess.\n")
	sb.WriteString("- \"title\" of the journey is creative and 3-5 words.\n\n")
	sb.WriteString("Study Material:\n---\n" + source + "\n---")

	var raw rawPlan
	generateJSON(ctx, s.gw, sb.String(), GenerationConfig{
		Temperature: 0.6,
		MaxTokens:   2048,
		JSONOnly:    true,
		System:      plannerSystemPrompt,
	}, &raw, `{"title":"","plan":[]}`)

	plan := models.Plan{Title: raw.Title}
	for _, stub := range raw.Stubs {
		plan.Stubs = append(plan.Stubs, stubFromRaw(stub))
	}
	return plan
}

// applyPlanPolicy enforces structural policy on the model's plan: rewrite
// disallowed types, drop or add the terminal assessment, cap the length, and
// synthesize a minimal plan when nothing usable came back.
func applyPlanPolicy(stubs []models.Stub, opts JourneyOptions) []models.Stub {
	kept := make([]models.Stub, 0, len(stubs))
	for _, stub := range stubs {
		switch stub.Type {
		case models.ModuleMatchingGame:
			if !opts.AllowMatching {
				stub.Type = models.ModuleQuiz
			}
		case models.ModuleTest:
			if !opts.IncludeTest {
				continue
			}
		case models.ModuleAssignment:
			// Assignment modules belong to the assignment flow only.
			stub.Type = models.ModuleQuiz
		}
		if stub.Title == "" {
			stub.Title = string(stub.Type)
		}
		kept = append(kept, stub)
	}

	if len(kept) > opts.MaxModules {
		kept = kept[:opts.MaxModules]
	}

	if len(kept) == 0 {
		kept = []models.Stub{
			{Type: models.ModuleLearn, Title: "Getting Started", Focus: "Introduce the core ideas of the material"},
			{Type: models.ModuleQuiz, Title: "Check Your Understanding", Focus: "Review the core ideas of the material"},
		}
		if opts.IncludeTest {
			kept = append(kept, models.Stub{Type: models.ModuleTest, Title: "Final Assessment", Focus: "Assess the whole material"})
		}
		return kept
	}

	// A plan that ends on an explanatory module gets a wrap-up interactive one.
	if last := kept[len(kept)-1]; last.Type == models.ModuleLearn && len(kept) < opts.MaxModules {
		kept = append(kept, models.Stub{Type: models.ModuleQuiz, Title: "Wrap-Up Quiz", Focus: "Review what the journey covered"})
	}
	return kept
}

// generateModule expands one stub into a full module using a schema scoped to
// the stub's type. Unparsable output degrades to an empty-but-valid module.
func (s *PlannerService) generateModule(ctx context.Context, stub models.Stub, source string, opts JourneyOptions) models.Module {
	module := models.Module{Type: stub.Type, Title: stub.Title}

	switch stub.Type {
	case models.ModuleLearn:
		module.Learn = s.generateLearn(ctx, stub, source, opts)
		if s.images != nil && module.Learn.ImagePrompt != "" {
			image, err := s.images.GenerateImage(ctx, module.Learn.ImagePrompt)
			if err != nil {
				fmt.Fprintf(os.Stderr, "image generation skipped for %q: %v\n", stub.Title, err)
			} else {
				module.Learn.Image = image
			}
		}
	case models.ModuleQuiz:
		module.Quiz = s.generateQuestions(ctx, stub, source, 2, "Write 1-2 multiple-choice questions testing specific facts.")
	case models.ModuleTest:
		module.Quiz = s.generateQuestions(ctx, stub, source, 4, "Write 3-4 multiple-choice questions for a comprehensive final assessment.")
	case models.ModuleMatchingGame:
		module.Matching = s.generateMatching(ctx, stub, source)
	case models.ModuleAssignment:
		module.Assignment = &models.AssignmentContent{
			Questions: []models.AssignmentQuestion{{Question: stub.Focus, QuestionType: models.QuestionText}},
		}
	}
	return module
}

func (s *PlannerService) generateLearn(ctx context.Context, stub models.Stub, source string, opts JourneyOptions) *models.LearnContent {
	budget := budgetsFor(opts.Verbosity)
	prompt := fmt.Sprintf(`Write the content of one learning card titled %q.%s

Respond with a JSON object {"summary":"","keyPoints":[""],"imagePrompt":""}.
- "summary": a concise explanation of about %d words, focused on a single concept.
- "keyPoints": 2-4 short takeaways.
- "imagePrompt": a descriptive prompt for an image model to draw a helpful diagram or illustration.

Study Material:
---
%s
---`, stub.Title, focusLine(stub), budget.summary, source)

	content := &models.LearnContent{}
	generateJSON(ctx, s.gw, prompt, GenerationConfig{
		Temperature: 0.7,
		MaxTokens:   1024,
		JSONOnly:    true,
		System:      plannerSystemPrompt,
	}, content, `{"summary":"","keyPoints":[],"imagePrompt":""}`)
	return content
}

func (s *PlannerService) generateQuestions(ctx context.Context, stub models.Stub, source string, count int, instruction string) *models.QuizContent {
	prompt := fmt.Sprintf(`Create the questions for a module titled %q.%s

%s
Respond with a JSON object {"questions":[{"question":"","options":["","","",""],"correctAnswerIndex":0,"explanation":""}]}.
- Every question MUST have exactly 4 options.
- "correctAnswerIndex" is the 0-based index of the right option.
- "explanation" briefly explains the right answer.
- At most %d questions.

Study Material:
---
%s
---`, stub.Title, focusLine(stub), instruction, count, source)

	var raw struct {
		Questions []rawQuestion `json:"questions"`
	}
	generateJSON(ctx, s.gw, prompt, GenerationConfig{
		Temperature: 0.6,
		MaxTokens:   1536,
		JSONOnly:    true,
		System:      plannerSystemPrompt,
	}, &raw, `{"questions":[]}`)
	return &models.QuizContent{Questions: choiceQuestionsFromRaw(raw.Questions)}
}

func (s *PlannerService) generateMatching(ctx context.Context, stub models.Stub, source string) *models.MatchingContent {
	prompt := fmt.Sprintf(`Create a matching game for a module titled %q.%s

Respond with a JSON object {"instructions":"","pairs":[{"term":"","definition":""}]}.
- 3-4 term/definition pairs reinforcing terminology from the material.
- "instructions" is one short sentence.

Study Material:
---
%s
---`, stub.Title, focusLine(stub), source)

	content := &models.MatchingContent{}
	generateJSON(ctx, s.gw, prompt, GenerationConfig{
		Temperature: 0.6,
		MaxTokens:   1024,
		JSONOnly:    true,
		System:      plannerSystemPrompt,
	}, content, `{"instructions":"","pairs":[]}`)
	return content
}

func focusLine(stub models.Stub) string {
	if stub.Focus == "" {
		return ""
	}
	return fmt.Sprintf(" Focus: %s.", sanitizeForPrompt(stub.Focus, 400))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
