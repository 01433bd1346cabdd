package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/logger"
)

// recentAttemptsForComeback bounds the comeback scan to the user's last
// passed, non-practice attempts.
const recentAttemptsForComeback = 5

// BadgeRepository abstracts the badge catalog and awards.
type BadgeRepository interface {
	ListCatalog(ctx context.Context) ([]domain.Badge, error)
	EarnedBadgeIDs(ctx context.Context, userID string) ([]int64, error)
	// Award creates the user badge if absent; it reports whether a row was
	// actually created, making awards idempotent on (userId, badgeId).
	Award(ctx context.Context, badge *domain.UserBadge) (bool, error)
}

// AttemptAnswers pairs a completed attempt with its answers in chronological
// order, as needed by the comeback predicate.
type AttemptAnswers struct {
	Attempt domain.Attempt
	Answers []domain.AnswerRecord
}

// BadgeFactsRepository fetches one aggregate-fact batch per category.
type BadgeFactsRepository interface {
	CountCompletedAttempts(ctx context.Context, userID string) (int, error)
	HasPerfectScore(ctx context.Context, userID string) (bool, error)
	CurrentStreak(ctx context.Context, userID string) (int, error)
	FriendCount(ctx context.Context, userID string) (int, error)
	ChallengeWins(ctx context.Context, userID string) (int, error)
	ReviewCount(ctx context.Context, userID string) (int, error)
	// FastestCorrectAnswerSeconds returns -1 when the user has no correct answers.
	FastestCorrectAnswerSeconds(ctx context.Context, userID string) (int, error)
	AttemptsBySport(ctx context.Context, userID string) (map[string]int, error)
	CorrectByTopic(ctx context.Context, userID string) (map[string]int, error)
	AttemptsByHour(ctx context.Context, userID string) (map[int]int, error)
	WeekendAttempts(ctx context.Context, userID string) (int, error)
	RecentPassedAttempts(ctx context.Context, userID string, limit int) ([]AttemptAnswers, error)
}

// BadgeContext carries the triggering attempt, purely as diagnostics; every
// predicate evaluates against aggregate facts, not the single attempt.
type BadgeContext struct {
	QuizID    string
	AttemptID string
}

// BadgeService batch-evaluates the badge catalog against a shared fact
// bundle and awards all newly qualifying badges.
type BadgeService struct {
	badges        BadgeRepository
	facts         BadgeFactsRepository
	notifications NotificationRepository
	log           *logger.Logger
	now           func() time.Time
}

func NewBadgeService(badges BadgeRepository, facts BadgeFactsRepository, notifications NotificationRepository, log *logger.Logger) *BadgeService {
	return &BadgeService{
		badges:        badges,
		facts:         facts,
		notifications: notifications,
		log:           log.With("component", "badges"),
		now:           time.Now,
	}
}

// CheckAndAward evaluates every not-yet-earned badge and returns the names of
// the newly awarded ones. Already-earned badges are excluded up front and each
// award is create-if-absent, so repeated calls award nothing new.
func (s *BadgeService) CheckAndAward(ctx context.Context, userID string, bctx BadgeContext) ([]string, error) {
	catalog, err := s.badges.ListCatalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("list badge catalog: %w", err)
	}
	earnedIDs, err := s.badges.EarnedBadgeIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list earned badges: %w", err)
	}
	earned := make(map[int64]struct{}, len(earnedIDs))
	for _, id := range earnedIDs {
		earned[id] = struct{}{}
	}

	var remaining []domain.Badge
	needed := make(map[FactCategory]struct{})
	for _, b := range catalog {
		if _, ok := earned[b.ID]; ok {
			continue
		}
		crit, ok := criteria[b.Kind]
		if !ok {
			s.log.Warn("badge with unknown kind skipped", "badge", b.Name, "kind", b.Kind)
			continue
		}
		remaining = append(remaining, b)
		for _, f := range crit.facts {
			needed[f] = struct{}{}
		}
	}
	if len(remaining) == 0 {
		return nil, nil
	}

	bundle, err := s.fetchFacts(ctx, userID, needed)
	if err != nil {
		return nil, err
	}

	var qualifying []domain.Badge
	for _, b := range remaining {
		if criteria[b.Kind].qualifies(b, bundle) {
			qualifying = append(qualifying, b)
		}
	}
	if len(qualifying) == 0 {
		return nil, nil
	}

	return s.awardAll(ctx, userID, qualifying)
}

// fetchFacts loads exactly the needed fact categories, one batch each, in
// parallel.
func (s *BadgeService) fetchFacts(ctx context.Context, userID string, needed map[FactCategory]struct{}) (*FactBundle, error) {
	bundle := &FactBundle{FastestCorrectAnswer: -1}
	g, gctx := errgroup.WithContext(ctx)

	for category := range needed {
		switch category {
		case FactAttempts:
			g.Go(func() error {
				n, err := s.facts.CountCompletedAttempts(gctx, userID)
				bundle.CompletedAttempts = n
				return err
			})
		case FactPerfect:
			g.Go(func() error {
				ok, err := s.facts.HasPerfectScore(gctx, userID)
				bundle.HasPerfectScore = ok
				return err
			})
		case FactStreak:
			g.Go(func() error {
				n, err := s.facts.CurrentStreak(gctx, userID)
				bundle.CurrentStreak = n
				return err
			})
		case FactFriends:
			g.Go(func() error {
				n, err := s.facts.FriendCount(gctx, userID)
				bundle.FriendCount = n
				return err
			})
		case FactChallenges:
			g.Go(func() error {
				n, err := s.facts.ChallengeWins(gctx, userID)
				bundle.ChallengeWins = n
				return err
			})
		case FactReviews:
			g.Go(func() error {
				n, err := s.facts.ReviewCount(gctx, userID)
				bundle.ReviewCount = n
				return err
			})
		case FactSpeed:
			g.Go(func() error {
				n, err := s.facts.FastestCorrectAnswerSeconds(gctx, userID)
				bundle.FastestCorrectAnswer = n
				return err
			})
		case FactSportAttempts:
			g.Go(func() error {
				m, err := s.facts.AttemptsBySport(gctx, userID)
				bundle.AttemptsBySport = m
				return err
			})
		case FactTopicCorrect:
			g.Go(func() error {
				m, err := s.facts.CorrectByTopic(gctx, userID)
				bundle.CorrectByTopic = m
				return err
			})
		case FactTimeOfDay:
			g.Go(func() error {
				m, err := s.facts.AttemptsByHour(gctx, userID)
				bundle.AttemptsByHour = m
				return err
			})
		case FactWeekend:
			g.Go(func() error {
				n, err := s.facts.WeekendAttempts(gctx, userID)
				bundle.WeekendAttempts = n
				return err
			})
		case FactComeback:
			g.Go(func() error {
				attempts, err := s.facts.RecentPassedAttempts(gctx, userID, recentAttemptsForComeback)
				if err != nil {
					return err
				}
				bundle.HasComeback = HasComebackPattern(attempts)
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch badge facts: %w", err)
	}
	return bundle, nil
}

// awardAll inserts every qualifying award and its notification in one
// parallel batch. Races with concurrent runs collapse to a single award per
// badge via create-if-absent.
func (s *BadgeService) awardAll(ctx context.Context, userID string, qualifying []domain.Badge) ([]string, error) {
	var (
		mu      sync.Mutex
		awarded []string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, badge := range qualifying {
		badge := badge
		g.Go(func() error {
			created, err := s.badges.Award(gctx, &domain.UserBadge{
				UserID:    userID,
				BadgeID:   badge.ID,
				AwardedAt: s.now(),
			})
			if err != nil {
				return fmt.Errorf("award badge %q: %w", badge.Name, err)
			}
			if !created {
				return nil
			}
			mu.Lock()
			awarded = append(awarded, badge.Name)
			mu.Unlock()
			if err := s.notifications.Create(gctx, &domain.Notification{
				UserID:    userID,
				Kind:      domain.NotificationBadgeAwarded,
				Reference: badge.Name,
				Body:      fmt.Sprintf("Badge earned: %s", badge.Name),
				CreatedAt: s.now(),
			}); err != nil {
				s.log.Warn("badge notification failed", "userId", userID, "badge", badge.Name, "error", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return awarded, err
	}
	return awarded, nil
}
