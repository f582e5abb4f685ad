package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"journey-ai/internal/models"
)

var (
	// ErrJourneyNotFound is returned for unknown journey IDs.
	ErrJourneyNotFound = errors.New("journey not found")
)

// JourneyService persists generated journeys and the learner's assignment
// answers.
type JourneyService struct {
	db *sql.DB
}

func NewJourneyService(db *sql.DB) *JourneyService {
	return &JourneyService{db: db}
}

// Save stores a journey and returns its new ID.
func (s *JourneyService) Save(ctx context.Context, journey models.Journey) (string, error) {
	if strings.TrimSpace(journey.Title) == "" || len(journey.Modules) == 0 {
		return "", errors.New("journey must have a title and at least one module")
	}

	payload, err := json.Marshal(journey)
	if err != nil {
		return "", fmt.Errorf("marshal journey: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO journeys (id, title, payload, created_at)
		VALUES (?, ?, ?, ?);
	`, id, journey.Title, string(payload), now); err != nil {
		return "", fmt.Errorf("insert journey: %w", err)
	}
	return id, nil
}

// List returns all saved journeys, newest first.
func (s *JourneyService) List(ctx context.Context) ([]models.SavedJourney, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, payload, created_at
		FROM journeys
		ORDER BY created_at DESC;
	`)
	if err != nil {
		return nil, fmt.Errorf("query journeys: %w", err)
	}
	defer rows.Close()

	var saved []models.SavedJourney
	for rows.Next() {
		var (
			sj      models.SavedJourney
			payload string
		)
		if err := rows.Scan(&sj.ID, &sj.Title, &payload, &sj.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journey: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &sj.Journey); err != nil {
			return nil, fmt.Errorf("decode journey %s: %w", sj.ID, err)
		}
		saved = append(saved, sj)
	}
	return saved, rows.Err()
}

// Get loads one saved journey by ID.
func (s *JourneyService) Get(ctx context.Context, id string) (*models.SavedJourney, error) {
	var (
		sj      models.SavedJourney
		payload string
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, payload, created_at
		FROM journeys WHERE id = ?;
	`, id).Scan(&sj.ID, &sj.Title, &payload, &sj.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJourneyNotFound
		}
		return nil, fmt.Errorf("query journey: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &sj.Journey); err != nil {
		return nil, fmt.Errorf("decode journey %s: %w", sj.ID, err)
	}
	return &sj, nil
}

// SaveAnswer upserts the learner's answer to one assignment question.
func (s *JourneyService) SaveAnswer(ctx context.Context, journeyID, question, answer string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return errors.New("question is required")
	}

	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assignment_answers (journey_id, question, answer, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(journey_id, question) DO UPDATE SET
			answer = excluded.answer,
			updated_at = excluded.updated_at;
	`, journeyID, question, answer, now)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

// ListAnswers returns a journey's answers in the order they were first saved.
func (s *JourneyService) ListAnswers(ctx context.Context, journeyID string) ([]models.AssignmentAnswer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT journey_id, question, answer, updated_at
		FROM assignment_answers
		WHERE journey_id = ?
		ORDER BY rowid ASC;
	`, journeyID)
	if err != nil {
		return nil, fmt.Errorf("query answers: %w", err)
	}
	defer rows.Close()

	var answers []models.AssignmentAnswer
	for rows.Next() {
		var a models.AssignmentAnswer
		if err := rows.Scan(&a.JourneyID, &a.Question, &a.Answer, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan answer: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, rows.Err()
}
