package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/logger"
)

// notificationDedupWindow absorbs duplicate level-up/tier-upgrade emissions
// from overlapping deferred runs.
const notificationDedupWindow = time.Hour

// ProgressionRepository abstracts progress, level/tier catalogs and history.
type ProgressionRepository interface {
	GetProgress(ctx context.Context, userID string) (*domain.UserProgress, error)
	// SaveProgress persists streak and tier fields. Implementations must not
	// write TotalPoints from the passed value: points flow exclusively
	// through AddPoints so concurrent credits are never reverted by a stale
	// read-modify-write.
	SaveProgress(ctx context.Context, progress *domain.UserProgress) error
	// AddPoints atomically credits points and returns the updated row.
	AddPoints(ctx context.Context, userID string, delta int) (*domain.UserProgress, error)
	ListLevels(ctx context.Context) ([]domain.LevelDefinition, error)
	ListTiers(ctx context.Context) ([]domain.TierDefinition, error)
	LatestLevel(ctx context.Context, userID string) (int, error)
	AppendLevelHistory(ctx context.Context, entry *domain.UserLevelHistory) error
	LatestTier(ctx context.Context, userID string) (int64, error)
	AppendTierHistory(ctx context.Context, entry *domain.UserTierHistory) error
}

// NotificationRepository is the abstract "create notification" surface; a
// separate delivery subsystem consumes the rows.
type NotificationRepository interface {
	Create(ctx context.Context, notification *domain.Notification) error
	ExistsRecent(ctx context.Context, userID, kind, reference string, since time.Time) (bool, error)
}

// ProgressionService recomputes level and tier from cumulative points and
// tracks the daily streak. Levels and tiers are designed to be monotonic
// because points never decrease in this flow.
type ProgressionService struct {
	progress      ProgressionRepository
	notifications NotificationRepository
	log           *logger.Logger
	now           func() time.Time
}

func NewProgressionService(progress ProgressionRepository, notifications NotificationRepository, log *logger.Logger) *ProgressionService {
	return &ProgressionService{
		progress:      progress,
		notifications: notifications,
		log:           log.With("component", "progression"),
		now:           time.Now,
	}
}

// AddPoints credits points to the user and returns the new total.
func (s *ProgressionService) AddPoints(ctx context.Context, userID string, delta int) (int, error) {
	if delta < 0 {
		return 0, fmt.Errorf("%w: negative point delta", domain.ErrValidation)
	}
	progress, err := s.progress.AddPoints(ctx, userID, delta)
	if err != nil {
		return 0, fmt.Errorf("add points: %w", err)
	}
	return progress.TotalPoints, nil
}

// Recompute derives the achieved level from current total points, appends
// level/tier history on change and emits notifications on strict increases
// only. First assignments are recorded silently.
func (s *ProgressionService) Recompute(ctx context.Context, userID string) (domain.ProgressionResult, error) {
	progress, err := s.ensureProgress(ctx, userID)
	if err != nil {
		return domain.ProgressionResult{}, err
	}

	levels, err := s.progress.ListLevels(ctx)
	if err != nil {
		return domain.ProgressionResult{}, fmt.Errorf("list levels: %w", err)
	}
	achieved := AchievedLevel(progress.TotalPoints, levels)

	latest, err := s.progress.LatestLevel(ctx, userID)
	if err != nil {
		return domain.ProgressionResult{}, fmt.Errorf("latest level: %w", err)
	}
	if achieved != latest {
		if err := s.progress.AppendLevelHistory(ctx, &domain.UserLevelHistory{
			UserID:     userID,
			Level:      achieved,
			AchievedAt: s.now(),
		}); err != nil {
			return domain.ProgressionResult{}, fmt.Errorf("append level history: %w", err)
		}
		if latest > 0 && achieved > latest {
			s.notify(ctx, userID, domain.NotificationLevelUp, strconv.Itoa(achieved),
				fmt.Sprintf("You reached level %d!", achieved))
		}
	}

	result := domain.ProgressionResult{Level: achieved}

	tiers, err := s.progress.ListTiers(ctx)
	if err != nil {
		return domain.ProgressionResult{}, fmt.Errorf("list tiers: %w", err)
	}
	tier, ok := TierForLevel(achieved, tiers)
	if ok {
		result.TierID = &tier.ID
		latestTier, err := s.progress.LatestTier(ctx, userID)
		if err != nil {
			return domain.ProgressionResult{}, fmt.Errorf("latest tier: %w", err)
		}
		if latestTier != tier.ID {
			if err := s.progress.AppendTierHistory(ctx, &domain.UserTierHistory{
				UserID:     userID,
				TierID:     tier.ID,
				AchievedAt: s.now(),
			}); err != nil {
				return domain.ProgressionResult{}, fmt.Errorf("append tier history: %w", err)
			}
			if latestTier != 0 && tierOrder(latestTier, tiers) < tier.Order {
				s.notify(ctx, userID, domain.NotificationTierUpgrade, strconv.FormatInt(tier.ID, 10),
					fmt.Sprintf("You advanced to the %s tier!", tier.Name))
			}
		}
		progress.TierID = &tier.ID
		if err := s.progress.SaveProgress(ctx, progress); err != nil {
			return domain.ProgressionResult{}, fmt.Errorf("save progress: %w", err)
		}
	}

	return result, nil
}

// TouchStreak updates the daily streak from lastActiveDate: yesterday
// increments, today is a no-op, anything older resets to 1.
func (s *ProgressionService) TouchStreak(ctx context.Context, userID string, at time.Time) error {
	progress, err := s.ensureProgress(ctx, userID)
	if err != nil {
		return err
	}

	today := midnight(at)
	switch {
	case progress.LastActiveDate == nil:
		progress.CurrentStreak = 1
	case midnight(*progress.LastActiveDate).Equal(today):
		// Already counted today.
	case midnight(*progress.LastActiveDate).Equal(today.AddDate(0, 0, -1)):
		progress.CurrentStreak++
	default:
		progress.CurrentStreak = 1
	}
	if progress.CurrentStreak > progress.LongestStreak {
		progress.LongestStreak = progress.CurrentStreak
	}
	progress.LastActiveDate = &today

	if err := s.progress.SaveProgress(ctx, progress); err != nil {
		return fmt.Errorf("save streak: %w", err)
	}
	return nil
}

func (s *ProgressionService) ensureProgress(ctx context.Context, userID string) (*domain.UserProgress, error) {
	progress, err := s.progress.GetProgress(ctx, userID)
	if errors.Is(err, domain.ErrProgressNotFound) {
		progress = &domain.UserProgress{UserID: userID}
		return progress, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load progress: %w", err)
	}
	return progress, nil
}

func (s *ProgressionService) notify(ctx context.Context, userID, kind, reference, body string) {
	since := s.now().Add(-notificationDedupWindow)
	exists, err := s.notifications.ExistsRecent(ctx, userID, kind, reference, since)
	if err != nil {
		s.log.Warn("notification dedup lookup failed", "userId", userID, "kind", kind, "error", err)
		return
	}
	if exists {
		return
	}
	if err := s.notifications.Create(ctx, &domain.Notification{
		UserID:    userID,
		Kind:      kind,
		Reference: reference,
		Body:      body,
		CreatedAt: s.now(),
	}); err != nil {
		s.log.Warn("notification create failed", "userId", userID, "kind", kind, "error", err)
	}
}

// AchievedLevel returns the highest active level whose threshold is covered by
// the points, floored at 1. With no seeded catalog it falls back to the
// quadratic bootstrap curve pointsRequired(L) = 25*L*(L-1).
func AchievedLevel(totalPoints int, levels []domain.LevelDefinition) int {
	active := levels[:0:0]
	for _, l := range levels {
		if l.IsActive {
			active = append(active, l)
		}
	}
	if len(active) == 0 {
		return fallbackLevel(totalPoints)
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Level < active[j].Level })
	achieved := 1
	for _, l := range active {
		if l.PointsRequired <= totalPoints && l.Level > achieved {
			achieved = l.Level
		}
	}
	return achieved
}

// TierForLevel finds the band containing the level.
func TierForLevel(level int, tiers []domain.TierDefinition) (domain.TierDefinition, bool) {
	for _, t := range tiers {
		if t.Contains(level) {
			return t, true
		}
	}
	return domain.TierDefinition{}, false
}

func tierOrder(tierID int64, tiers []domain.TierDefinition) int {
	for _, t := range tiers {
		if t.ID == tierID {
			return t.Order
		}
	}
	return 0
}

// fallbackLevel inverts pointsRequired(L) = 25*L*(L-1): the largest L with
// L*(L-1) <= points/25.
func fallbackLevel(totalPoints int) int {
	if totalPoints <= 0 {
		return 1
	}
	level := int(math.Floor((1 + math.Sqrt(1+4*float64(totalPoints)/25)) / 2))
	if level < 1 {
		return 1
	}
	return level
}

func midnight(t time.Time) time.Time {
	year, month, day := t.Local().Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Local().Location())
}
