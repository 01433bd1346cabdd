// Package postgres is the bun-backed system of record for attempts, answers
// and every gamification table.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
)

// Store implements the app repository interfaces over one bun.DB.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// errLostCompletionRace aborts the finalize transaction when the conditional
// completion update matches zero rows.
var errLostCompletionRace = errors.New("attempt already completed")

// ---- app.AttemptRepository ----

func (s *Store) GetAttempt(ctx context.Context, id string) (*domain.Attempt, error) {
	attempt := new(domain.Attempt)
	err := s.db.NewSelect().Model(attempt).Where("a.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAttemptNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select attempt: %w", err)
	}
	return attempt, nil
}

func (s *Store) ListAnswers(ctx context.Context, attemptID string) ([]domain.AnswerRecord, error) {
	var records []domain.AnswerRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("ar.attempt_id = ?", attemptID).
		Order("ar.created_at ASC", "ar.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	return records, nil
}

func (s *Store) InsertAnswers(ctx context.Context, records []domain.AnswerRecord) error {
	if len(records) == 0 {
		return nil
	}
	// Conflicting rows are dropped, keeping the first write per question.
	_, err := s.db.NewInsert().
		Model(&records).
		On("CONFLICT (attempt_id, question_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}
	return nil
}

// FinalizeAttempt commits the computed answer fields and the attempt's
// completion fields together. The completed_at IS NULL guard gives mutual
// exclusion: exactly one caller performs the transition.
func (s *Store) FinalizeAttempt(ctx context.Context, attempt *domain.Attempt, answers []domain.AnswerRecord) (bool, error) {
	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().
			Model(attempt).
			Column("completed_at", "score", "correct_answers", "total_questions",
				"total_points", "passed", "average_response_time", "total_time_spent").
			Where("a.id = ?", attempt.ID).
			Where("a.completed_at IS NULL").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("complete attempt: %w", err)
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if rows == 0 {
			return errLostCompletionRace
		}

		for i := range answers {
			if _, err := tx.NewUpdate().
				Model(&answers[i]).
				Column("is_correct", "was_skipped", "time_spent",
					"base_points", "time_bonus", "streak_bonus", "total_points").
				Where("ar.attempt_id = ?", answers[i].AttemptID).
				Where("ar.question_id = ?", answers[i].QuestionID).
				Exec(ctx); err != nil {
				return fmt.Errorf("persist answer %s: %w", answers[i].QuestionID, err)
			}
		}
		return nil
	})
	if errors.Is(err, errLostCompletionRace) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// CreateAttempt registers a new open attempt; used by seeding and tests.
// An empty ID gets a generated one.
func (s *Store) CreateAttempt(ctx context.Context, attempt *domain.Attempt) error {
	if attempt.ID == "" {
		attempt.ID = uuid.NewString()
	}
	if _, err := s.db.NewInsert().Model(attempt).Exec(ctx); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

var _ app.AttemptRepository = (*Store)(nil)
