package models

import (
	"database/sql"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"
)

// ModuleType discriminates the variants of a journey module.
type ModuleType string

const (
	ModuleLearn        ModuleType = "Learn"
	ModuleQuiz         ModuleType = "Quiz"
	ModuleTest         ModuleType = "Test"
	ModuleMatchingGame ModuleType = "MatchingGame"
	ModuleAssignment   ModuleType = "Assignment"
)

// QuestionType labels the expected answer form of a free-response question.
type QuestionType string

const (
	QuestionText QuestionType = "text"
	QuestionCode QuestionType = "code"
	QuestionMath QuestionType = "math"
)

// Question is a multiple-choice question used by Quiz and Test modules.
type Question struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
}

// MatchingPair is one term/definition pair of a matching game.
type MatchingPair struct {
	Term       string `json:"term"`
	Definition string `json:"definition"`
}

// AssignmentQuestion is a single free-response question, kept verbatim from the
// learner's assignment text.
type AssignmentQuestion struct {
	Question     string       `json:"question"`
	QuestionType QuestionType `json:"questionType"`
}

// LearnContent is the payload of a Learn module.
type LearnContent struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"keyPoints"`
	ImagePrompt string   `json:"imagePrompt"`
	// Image holds an encoded visual (data URI) when the image service produced
	// one. Absent otherwise.
	Image string `json:"image,omitempty"`
}

// QuizContent is the payload of Quiz and Test modules.
type QuizContent struct {
	Questions []Question `json:"questions"`
}

// MatchingContent is the payload of a MatchingGame module.
type MatchingContent struct {
	Instructions string         `json:"instructions"`
	Pairs        []MatchingPair `json:"pairs"`
}

// AssignmentContent is the payload of an Assignment module.
type AssignmentContent struct {
	Questions []AssignmentQuestion `json:"questions"`
}

// Module is a tagged union: exactly the variant field matching Type is set,
// everything else is nil. Code downstream of normalization switches on Type and
// never inspects raw optional fields.
type Module struct {
	Type       ModuleType         `json:"type"`
	Title      string             `json:"title"`
	Learn      *LearnContent      `json:"learn,omitempty"`
	Quiz       *QuizContent       `json:"quiz,omitempty"`
	Matching   *MatchingContent   `json:"matching,omitempty"`
	Assignment *AssignmentContent `json:"assignment,omitempty"`
}

// Journey is the complete curriculum handed to the presentation layer. Module
// order is the traversal order shown to the learner.
type Journey struct {
	Title   string   `json:"title"`
	Modules []Module `json:"modules"`
}

// Stub is the plan-time placeholder for a module, fanned out to per-module
// generation. Focus carries steering text: for Learn, what to teach; for
// Assignment, the exact question to ask.
type Stub struct {
	Type  ModuleType `json:"type"`
	Title string     `json:"title"`
	Focus string     `json:"focus,omitempty"`
}

// Plan is the output of the planning phase.
type Plan struct {
	Title string `json:"title"`
	Stubs []Stub `json:"plan"`
}

// SavedJourney is a persisted journey row.
type SavedJourney struct {
	ID        string
	Title     string
	Journey   Journey
	CreatedAt time.Time
}

// AssignmentAnswer is the learner's stored answer to one assignment question.
type AssignmentAnswer struct {
	JourneyID string
	Question  string
	Answer    string
	UpdatedAt time.Time
}

// ReviewItem is a quiz question the learner missed, scheduled for spaced
// review with FSRS.
type ReviewItem struct {
	ID            int64
	JourneyID     sql.NullString
	Topic         string
	Question      string
	Due           sql.NullTime
	Stability     float64
	Difficulty    float64
	ElapsedDays   int
	ScheduledDays int
	Reps          int
	Lapses        int
	State         int
	LastReview    sql.NullTime
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r *ReviewItem) ToFSRSCard() fsrs.Card {
	card := fsrs.Card{
		Stability:     r.Stability,
		Difficulty:    r.Difficulty,
		ElapsedDays:   uint64(max(r.ElapsedDays, 0)),
		ScheduledDays: uint64(max(r.ScheduledDays, 0)),
		Reps:          uint64(max(r.Reps, 0)),
		Lapses:        uint64(max(r.Lapses, 0)),
		State:         fsrs.State(max(r.State, 0)),
	}
	if r.Due.Valid {
		card.Due = r.Due.Time
	}
	if r.LastReview.Valid {
		card.LastReview = r.LastReview.Time
	}
	return card
}

func (r *ReviewItem) ApplyFSRSCard(f fsrs.Card) {
	r.Due = sql.NullTime{Time: f.Due, Valid: !f.Due.IsZero()}
	r.Stability = f.Stability
	r.Difficulty = f.Difficulty
	r.ElapsedDays = int(f.ElapsedDays)
	r.ScheduledDays = int(f.ScheduledDays)
	r.Reps = int(f.Reps)
	r.Lapses = int(f.Lapses)
	r.State = int(f.State)
	r.LastReview = sql.NullTime{Time: f.LastReview, Valid: !f.LastReview.IsZero()}
}

func max[T ~int | ~int32 | ~int64](a, b T) T {
	if a > b {
		return a
	}
	return b
}
