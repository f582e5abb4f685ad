package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs"

	"journey-ai/internal/models"
)

var (
	// ErrNoDueReviews indicates that no missed questions are ready for review.
	ErrNoDueReviews = errors.New("no due reviews")
)

// ReviewService handles everything around missed quiz questions: refresher
// hints, free-response answer checking, and FSRS-scheduled spaced review.
type ReviewService struct {
	gw     Completer
	db     *sql.DB
	params fsrs.Parameters
}

func NewReviewService(gw Completer, db *sql.DB) *ReviewService {
	return &ReviewService{gw: gw, db: db, params: fsrs.DefaultParam()}
}

// GenerateRefresher produces a short, encouraging hint for a question the
// learner got wrong, without giving away the answer.
func (s *ReviewService) GenerateRefresher(ctx context.Context, topic, failedQuestion string) (string, error) {
	prompt := fmt.Sprintf(`A user is struggling with a quiz question on the topic of %q. The question they got wrong was: %q.

Please provide a very simple, encouraging, and easy-to-understand explanation or hint to help them understand the core concept without giving away the direct answer. Use an analogy or a real-world example if possible. Keep it under 50 words.`,
		sanitizeForPrompt(topic, 120), sanitizeForPrompt(failedQuestion, 400))

	resp, err := s.gw.Complete(ctx, prompt, GenerationConfig{
		Temperature: 0.7,
		MaxTokens:   200,
	})
	if err != nil {
		return "", fmt.Errorf("generate refresher: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// CheckAnswer asks the model to judge a free-response answer and returns the
// verdict plus feedback. The verdict is derived from a case-insensitive
// "correct" substring match on the feedback text, so feedback that merely
// mentions the word (including "incorrect") counts as a pass.
func (s *ReviewService) CheckAnswer(ctx context.Context, question, answer string) (bool, string, error) {
	prompt := fmt.Sprintf(`A user has answered the following question: %q with the following answer: %q.

Please determine if the answer is correct. If it is, respond with "Correct!". If it is not, please provide a short, helpful feedback on how to improve the answer.`,
		sanitizeForPrompt(question, 400), sanitizeForPrompt(answer, 1000))

	feedback, err := s.gw.Complete(ctx, prompt, GenerationConfig{
		Temperature: 0.3,
		MaxTokens:   300,
	})
	if err != nil {
		return false, "", fmt.Errorf("check answer: %w", err)
	}
	feedback = strings.TrimSpace(feedback)
	correct := strings.Contains(strings.ToLower(feedback), "correct")
	return correct, feedback, nil
}

// RecordMiss stores a missed quiz question as a new review item due
// immediately. Recording the same topic/question pair twice keeps the
// existing schedule.
func (s *ReviewService) RecordMiss(ctx context.Context, journeyID, topic, question string) (*models.ReviewItem, error) {
	topic = strings.TrimSpace(topic)
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errors.New("question is required")
	}

	now := time.Now().UTC()
	jid := sql.NullString{String: journeyID, Valid: journeyID != ""}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO review_items (journey_id, topic, question, due, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(topic, question) DO UPDATE SET updated_at = excluded.updated_at;
	`, jid, topic, question, now, int(fsrs.New), now, now)
	if err != nil {
		return nil, fmt.Errorf("insert review item: %w", err)
	}

	return s.fetchItem(ctx, `
		SELECT id, journey_id, topic, question, due, stability, difficulty,
		       elapsed_days, scheduled_days, reps, lapses, state, last_review,
		       created_at, updated_at
		FROM review_items WHERE topic = ? AND question = ?;
	`, topic, question)
}

// NextDue returns the review item with the earliest due date that is due now.
func (s *ReviewService) NextDue(ctx context.Context) (*models.ReviewItem, error) {
	item, err := s.fetchItem(ctx, `
		SELECT id, journey_id, topic, question, due, stability, difficulty,
		       elapsed_days, scheduled_days, reps, lapses, state, last_review,
		       created_at, updated_at
		FROM review_items
		WHERE due IS NOT NULL AND due <= ?
		ORDER BY due ASC
		LIMIT 1;
	`, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoDueReviews
		}
		return nil, err
	}
	return item, nil
}

// ListDue returns up to limit review items that are due now, earliest first.
func (s *ReviewService) ListDue(ctx context.Context, limit int) ([]models.ReviewItem, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, journey_id, topic, question, due, stability, difficulty,
		       elapsed_days, scheduled_days, reps, lapses, state, last_review,
		       created_at, updated_at
		FROM review_items
		WHERE due IS NOT NULL AND due <= ?
		ORDER BY due ASC
		LIMIT ?;
	`, time.Now().UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query due reviews: %w", err)
	}
	defer rows.Close()

	var items []models.ReviewItem
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	return items, rows.Err()
}

// Review applies an FSRS rating to a review item and persists the new
// schedule.
func (s *ReviewService) Review(ctx context.Context, id int64, rating fsrs.Rating) (*models.ReviewItem, error) {
	item, err := s.fetchItem(ctx, `
		SELECT id, journey_id, topic, question, due, stability, difficulty,
		       elapsed_days, scheduled_days, reps, lapses, state, last_review,
		       created_at, updated_at
		FROM review_items WHERE id = ?;
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("review item %d not found", id)
		}
		return nil, err
	}

	now := time.Now().UTC()
	scheduling := s.params.Repeat(item.ToFSRSCard(), now)
	item.ApplyFSRSCard(scheduling[rating].Card)
	item.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		UPDATE review_items
		SET due = ?, stability = ?, difficulty = ?, elapsed_days = ?,
		    scheduled_days = ?, reps = ?, lapses = ?, state = ?,
		    last_review = ?, updated_at = ?
		WHERE id = ?;
	`, item.Due, item.Stability, item.Difficulty, item.ElapsedDays,
		item.ScheduledDays, item.Reps, item.Lapses, item.State,
		item.LastReview, item.UpdatedAt, item.ID)
	if err != nil {
		return nil, fmt.Errorf("update review item: %w", err)
	}
	return item, nil
}

// ParseRating maps the API's rating strings onto FSRS ratings.
func ParseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again":
		return fsrs.Again, nil
	case "hard":
		return fsrs.Hard, nil
	case "good":
		return fsrs.Good, nil
	case "easy":
		return fsrs.Easy, nil
	default:
		return 0, fmt.Errorf("unknown rating %q", raw)
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ReviewService) fetchItem(ctx context.Context, query string, args ...any) (*models.ReviewItem, error) {
	return scanItem(s.db.QueryRowContext(ctx, query, args...))
}

func scanItem(row rowScanner) (*models.ReviewItem, error) {
	item := &models.ReviewItem{}
	if err := row.Scan(
		&item.ID,
		&item.JourneyID,
		&item.Topic,
		&item.Question,
		&item.Due,
		&item.Stability,
		&item.Difficulty,
		&item.ElapsedDays,
		&item.ScheduledDays,
		&item.Reps,
		&item.Lapses,
		&item.State,
		&item.LastReview,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return item, nil
}
