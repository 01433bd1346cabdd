package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/logger"
)

// LeaderboardRepository abstracts how best-attempt entries are stored.
type LeaderboardRepository interface {
	GetEntry(ctx context.Context, quizID, userID string) (*domain.LeaderboardEntry, error)
	CreateEntry(ctx context.Context, entry *domain.LeaderboardEntry) error
	UpdateEntry(ctx context.Context, entry *domain.LeaderboardEntry) error
	ListTop(ctx context.Context, quizID string, limit int) ([]domain.LeaderboardEntry, error)
}

// AttemptSummary is the finalized-attempt slice the reconciler consumes.
type AttemptSummary struct {
	QuizID              string
	UserID              string
	Score               float64
	Points              int
	AverageResponseTime float64
	TotalTimeSpent      int
}

// LeaderboardReconciler merges finalized attempts into per-user-per-quiz
// best-attempt records. It runs outside the finalization transaction; the
// "only overwrite if strictly better" rule keeps concurrent merges convergent
// without a lock.
type LeaderboardReconciler struct {
	entries LeaderboardRepository
	hub     *LeaderboardHub
	log     *logger.Logger
	now     func() time.Time
}

func NewLeaderboardReconciler(entries LeaderboardRepository, hub *LeaderboardHub, log *logger.Logger) *LeaderboardReconciler {
	return &LeaderboardReconciler{
		entries: entries,
		hub:     hub,
		log:     log.With("component", "leaderboard"),
		now:     time.Now,
	}
}

// Reconcile applies one finalized attempt. The attempts counter always
// increments; best fields move only when the new attempt is strictly better.
// Practice-mode attempts must be filtered out by the caller.
func (r *LeaderboardReconciler) Reconcile(ctx context.Context, summary AttemptSummary) error {
	existing, err := r.entries.GetEntry(ctx, summary.QuizID, summary.UserID)
	switch {
	case errors.Is(err, domain.ErrEntryNotFound):
		entry := &domain.LeaderboardEntry{
			QuizID:              summary.QuizID,
			UserID:              summary.UserID,
			BestScore:           summary.Score,
			BestTime:            summary.TotalTimeSpent,
			BestPoints:          summary.Points,
			AverageResponseTime: summary.AverageResponseTime,
			Attempts:            1,
			UpdatedAt:           r.now(),
		}
		if err := r.entries.CreateEntry(ctx, entry); err != nil {
			return fmt.Errorf("create leaderboard entry: %w", err)
		}
	case err != nil:
		return fmt.Errorf("load leaderboard entry: %w", err)
	default:
		if betterAttempt(summary, existing) {
			existing.BestScore = summary.Score
			existing.BestTime = summary.TotalTimeSpent
			existing.BestPoints = summary.Points
			existing.AverageResponseTime = summary.AverageResponseTime
		}
		existing.Attempts++
		existing.UpdatedAt = r.now()
		if err := r.entries.UpdateEntry(ctx, existing); err != nil {
			return fmt.Errorf("update leaderboard entry: %w", err)
		}
	}

	r.publish(ctx, summary.QuizID)
	return nil
}

// Top returns the ranked leaderboard for a quiz. Rank is derived here at read
// time, never written on the reconcile path.
func (r *LeaderboardReconciler) Top(ctx context.Context, quizID string, limit int) (domain.LeaderboardSnapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	entries, err := r.entries.ListTop(ctx, quizID, limit)
	if err != nil {
		return domain.LeaderboardSnapshot{}, fmt.Errorf("list leaderboard: %w", err)
	}
	return domain.LeaderboardSnapshot{
		QuizID:    quizID,
		Entries:   entries,
		UpdatedAt: r.now(),
	}, nil
}

func (r *LeaderboardReconciler) publish(ctx context.Context, quizID string) {
	if r.hub == nil || !r.hub.HasWatchers(quizID) {
		return
	}
	snapshot, err := r.Top(ctx, quizID, 50)
	if err != nil {
		r.log.Warn("leaderboard snapshot for broadcast failed", "quizId", quizID, "error", err)
		return
	}
	r.hub.Broadcast(snapshot)
}

// betterAttempt is the strict "better attempt" comparison: more points wins;
// on equal points a zero-sentinel best time or a faster average response wins.
func betterAttempt(summary AttemptSummary, existing *domain.LeaderboardEntry) bool {
	if summary.Points > existing.BestPoints {
		return true
	}
	if summary.Points == existing.BestPoints {
		if existing.BestTime == 0 {
			return true
		}
		return summary.AverageResponseTime < existing.AverageResponseTime
	}
	return false
}
