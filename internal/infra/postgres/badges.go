package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
)

// ---- app.BadgeRepository ----

func (s *Store) ListCatalog(ctx context.Context) ([]domain.Badge, error) {
	var badges []domain.Badge
	if err := s.db.NewSelect().Model(&badges).Order("b.id ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select badge catalog: %w", err)
	}
	return badges, nil
}

func (s *Store) EarnedBadgeIDs(ctx context.Context, userID string) ([]int64, error) {
	var ids []int64
	err := s.db.NewSelect().
		Model((*domain.UserBadge)(nil)).
		Column("ub.badge_id").
		Where("ub.user_id = ?", userID).
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("select earned badges: %w", err)
	}
	return ids, nil
}

// Award is create-if-absent on (user_id, badge_id); it reports whether a row
// was actually created.
func (s *Store) Award(ctx context.Context, badge *domain.UserBadge) (bool, error) {
	res, err := s.db.NewInsert().
		Model(badge).
		On("CONFLICT (user_id, badge_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("insert user badge: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return rows > 0, nil
}

// ---- app.BadgeFactsRepository ----
// One query per fact category; the badge engine fetches only the categories
// its remaining predicates need.

func (s *Store) CountCompletedAttempts(ctx context.Context, userID string) (int, error) {
	count, err := s.db.NewSelect().
		Model((*domain.Attempt)(nil)).
		Where("a.user_id = ?", userID).
		Where("a.completed_at IS NOT NULL").
		Where("NOT a.is_practice_mode").
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return count, nil
}

func (s *Store) HasPerfectScore(ctx context.Context, userID string) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*domain.Attempt)(nil)).
		Where("a.user_id = ?", userID).
		Where("a.completed_at IS NOT NULL").
		Where("a.score >= 100").
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("perfect score lookup: %w", err)
	}
	return exists, nil
}

func (s *Store) CurrentStreak(ctx context.Context, userID string) (int, error) {
	progress, err := s.GetProgress(ctx, userID)
	if err == domain.ErrProgressNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return progress.CurrentStreak, nil
}

func (s *Store) FriendCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.NewRaw(
		`SELECT COUNT(*) FROM friendships WHERE user_id = ?`, userID,
	).Scan(ctx, &count)
	if err != nil {
		return 0, fmt.Errorf("count friends: %w", err)
	}
	return count, nil
}

func (s *Store) ChallengeWins(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.NewRaw(
		`SELECT COUNT(*) FROM challenge_results WHERE user_id = ? AND won`, userID,
	).Scan(ctx, &count)
	if err != nil {
		return 0, fmt.Errorf("count challenge wins: %w", err)
	}
	return count, nil
}

func (s *Store) ReviewCount(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.NewRaw(
		`SELECT COUNT(*) FROM question_reviews WHERE user_id = ?`, userID,
	).Scan(ctx, &count)
	if err != nil {
		return 0, fmt.Errorf("count reviews: %w", err)
	}
	return count, nil
}

func (s *Store) FastestCorrectAnswerSeconds(ctx context.Context, userID string) (int, error) {
	var fastest int
	err := s.db.NewRaw(
		`SELECT COALESCE(MIN(ar.time_spent), -1)
		 FROM answer_records ar
		 JOIN attempts a ON a.id = ar.attempt_id
		 WHERE a.user_id = ? AND a.completed_at IS NOT NULL AND ar.is_correct`,
		userID,
	).Scan(ctx, &fastest)
	if err != nil {
		return 0, fmt.Errorf("fastest answer lookup: %w", err)
	}
	return fastest, nil
}

func (s *Store) AttemptsBySport(ctx context.Context, userID string) (map[string]int, error) {
	var rows []struct {
		Sport string `bun:"sport"`
		Count int    `bun:"count"`
	}
	err := s.db.NewRaw(
		`SELECT q.data->>'sport' AS sport, COUNT(*) AS count
		 FROM attempts a
		 JOIN quizzes q ON q.id = a.quiz_id
		 WHERE a.user_id = ? AND a.completed_at IS NOT NULL
		 GROUP BY 1`,
		userID,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("attempts by sport: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		if row.Sport != "" {
			counts[row.Sport] = row.Count
		}
	}
	return counts, nil
}

func (s *Store) CorrectByTopic(ctx context.Context, userID string) (map[string]int, error) {
	var rows []struct {
		Topic string `bun:"topic"`
		Count int    `bun:"count"`
	}
	err := s.db.NewRaw(
		`SELECT qq->>'topic' AS topic, COUNT(*) AS count
		 FROM answer_records ar
		 JOIN attempts a ON a.id = ar.attempt_id
		 JOIN quizzes q ON q.id = a.quiz_id
		 JOIN LATERAL jsonb_array_elements(q.data->'questions') qq
		   ON qq->>'id' = ar.question_id
		 WHERE a.user_id = ? AND ar.is_correct
		 GROUP BY 1`,
		userID,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("correct by topic: %w", err)
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		if row.Topic != "" {
			counts[row.Topic] = row.Count
		}
	}
	return counts, nil
}

func (s *Store) AttemptsByHour(ctx context.Context, userID string) (map[int]int, error) {
	var rows []struct {
		Hour  int `bun:"hour"`
		Count int `bun:"count"`
	}
	err := s.db.NewRaw(
		`SELECT EXTRACT(HOUR FROM a.completed_at)::int AS hour, COUNT(*) AS count
		 FROM attempts a
		 WHERE a.user_id = ? AND a.completed_at IS NOT NULL
		 GROUP BY 1`,
		userID,
	).Scan(ctx, &rows)
	if err != nil {
		return nil, fmt.Errorf("attempts by hour: %w", err)
	}
	counts := make(map[int]int, len(rows))
	for _, row := range rows {
		counts[row.Hour] = row.Count
	}
	return counts, nil
}

func (s *Store) WeekendAttempts(ctx context.Context, userID string) (int, error) {
	var count int
	err := s.db.NewRaw(
		`SELECT COUNT(*) FROM attempts a
		 WHERE a.user_id = ? AND a.completed_at IS NOT NULL
		   AND EXTRACT(ISODOW FROM a.completed_at) IN (6, 7)`,
		userID,
	).Scan(ctx, &count)
	if err != nil {
		return 0, fmt.Errorf("weekend attempts: %w", err)
	}
	return count, nil
}

func (s *Store) RecentPassedAttempts(ctx context.Context, userID string, limit int) ([]app.AttemptAnswers, error) {
	var attempts []domain.Attempt
	err := s.db.NewSelect().
		Model(&attempts).
		Where("a.user_id = ?", userID).
		Where("a.completed_at IS NOT NULL").
		Where("a.passed").
		Where("NOT a.is_practice_mode").
		Order("a.completed_at DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("recent passed attempts: %w", err)
	}
	if len(attempts) == 0 {
		return nil, nil
	}

	ids := make([]string, len(attempts))
	for i, a := range attempts {
		ids[i] = a.ID
	}
	var records []domain.AnswerRecord
	err = s.db.NewSelect().
		Model(&records).
		Where("ar.attempt_id IN (?)", bun.In(ids)).
		Order("ar.created_at ASC", "ar.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("answers for recent attempts: %w", err)
	}

	byAttempt := make(map[string][]domain.AnswerRecord, len(attempts))
	for _, record := range records {
		byAttempt[record.AttemptID] = append(byAttempt[record.AttemptID], record)
	}
	result := make([]app.AttemptAnswers, 0, len(attempts))
	for _, a := range attempts {
		result = append(result, app.AttemptAnswers{Attempt: a, Answers: byAttempt[a.ID]})
	}
	return result, nil
}

var (
	_ app.BadgeRepository      = (*Store)(nil)
	_ app.BadgeFactsRepository = (*Store)(nil)
)
