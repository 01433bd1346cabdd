package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
)

// ---- app.ProgressionRepository ----

func (s *Store) GetProgress(ctx context.Context, userID string) (*domain.UserProgress, error) {
	progress := new(domain.UserProgress)
	err := s.db.NewSelect().Model(progress).Where("up.user_id = ?", userID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProgressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select progress: %w", err)
	}
	return progress, nil
}

// SaveProgress upserts the streak and tier fields. total_points is excluded
// from the update set on purpose: points are only ever written through the
// atomic AddPoints increment, so a stale in-memory copy can never revert a
// concurrent credit.
func (s *Store) SaveProgress(ctx context.Context, progress *domain.UserProgress) error {
	progress.UpdatedAt = time.Now()
	_, err := s.db.NewInsert().
		Model(progress).
		On("CONFLICT (user_id) DO UPDATE").
		Set("current_streak = EXCLUDED.current_streak").
		Set("longest_streak = EXCLUDED.longest_streak").
		Set("last_active_date = EXCLUDED.last_active_date").
		Set("tier_id = EXCLUDED.tier_id").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}
	return nil
}

// AddPoints credits points atomically in the database so concurrent deferred
// runs cannot lose an increment.
func (s *Store) AddPoints(ctx context.Context, userID string, delta int) (*domain.UserProgress, error) {
	progress := &domain.UserProgress{
		UserID:      userID,
		TotalPoints: delta,
		UpdatedAt:   time.Now(),
	}
	_, err := s.db.NewInsert().
		Model(progress).
		On("CONFLICT (user_id) DO UPDATE").
		Set("total_points = up.total_points + EXCLUDED.total_points").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("add points: %w", err)
	}
	return progress, nil
}

func (s *Store) ListLevels(ctx context.Context) ([]domain.LevelDefinition, error) {
	var levels []domain.LevelDefinition
	if err := s.db.NewSelect().Model(&levels).Order("ld.level ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select levels: %w", err)
	}
	return levels, nil
}

func (s *Store) ListTiers(ctx context.Context) ([]domain.TierDefinition, error) {
	var tiers []domain.TierDefinition
	if err := s.db.NewSelect().Model(&tiers).Order("td.sort_order ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("select tiers: %w", err)
	}
	return tiers, nil
}

func (s *Store) LatestLevel(ctx context.Context, userID string) (int, error) {
	entry := new(domain.UserLevelHistory)
	err := s.db.NewSelect().
		Model(entry).
		Where("ulh.user_id = ?", userID).
		Order("ulh.achieved_at DESC", "ulh.id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select latest level: %w", err)
	}
	return entry.Level, nil
}

func (s *Store) AppendLevelHistory(ctx context.Context, entry *domain.UserLevelHistory) error {
	if _, err := s.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("insert level history: %w", err)
	}
	return nil
}

func (s *Store) LatestTier(ctx context.Context, userID string) (int64, error) {
	entry := new(domain.UserTierHistory)
	err := s.db.NewSelect().
		Model(entry).
		Where("uth.user_id = ?", userID).
		Order("uth.achieved_at DESC", "uth.id DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("select latest tier: %w", err)
	}
	return entry.TierID, nil
}

func (s *Store) AppendTierHistory(ctx context.Context, entry *domain.UserTierHistory) error {
	if _, err := s.db.NewInsert().Model(entry).Exec(ctx); err != nil {
		return fmt.Errorf("insert tier history: %w", err)
	}
	return nil
}

// ---- app.NotificationRepository ----

func (s *Store) Create(ctx context.Context, notification *domain.Notification) error {
	if _, err := s.db.NewInsert().Model(notification).Exec(ctx); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *Store) ExistsRecent(ctx context.Context, userID, kind, reference string, since time.Time) (bool, error) {
	exists, err := s.db.NewSelect().
		Model((*domain.Notification)(nil)).
		Where("n.user_id = ?", userID).
		Where("n.kind = ?", kind).
		Where("n.reference = ?", reference).
		Where("n.created_at >= ?", since).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("notification dedup lookup: %w", err)
	}
	return exists, nil
}

var (
	_ app.ProgressionRepository  = (*Store)(nil)
	_ app.NotificationRepository = (*Store)(nil)
)
