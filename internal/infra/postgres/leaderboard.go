package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
)

// ---- app.LeaderboardRepository ----

func (s *Store) GetEntry(ctx context.Context, quizID, userID string) (*domain.LeaderboardEntry, error) {
	entry := new(domain.LeaderboardEntry)
	err := s.db.NewSelect().
		Model(entry).
		Where("le.quiz_id = ?", quizID).
		Where("le.user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select leaderboard entry: %w", err)
	}
	return entry, nil
}

func (s *Store) CreateEntry(ctx context.Context, entry *domain.LeaderboardEntry) error {
	if _, err := s.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("insert leaderboard entry: %w", err)
	}
	return nil
}

func (s *Store) UpdateEntry(ctx context.Context, entry *domain.LeaderboardEntry) error {
	_, err := s.db.NewUpdate().
		Model(entry).
		Column("best_score", "best_time", "best_points",
			"average_response_time", "attempts", "updated_at").
		Where("le.quiz_id = ?", entry.QuizID).
		Where("le.user_id = ?", entry.UserID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update leaderboard entry: %w", err)
	}
	return nil
}

// ListTop derives rank at read time via a window function; the rank column is
// never written.
func (s *Store) ListTop(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error) {
	var entries []domain.LeaderboardEntry
	err := s.db.NewSelect().
		Model(&entries).
		ColumnExpr("le.*").
		ColumnExpr("RANK() OVER (ORDER BY le.best_points DESC, le.average_response_time ASC) AS rank").
		Where("le.quiz_id = ?", quizID).
		OrderExpr("le.best_points DESC, le.average_response_time ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select leaderboard: %w", err)
	}
	return entries, nil
}

var _ app.LeaderboardRepository = (*Store)(nil)
