package app_test

import (
	"context"
	"testing"
	"time"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/infra/memory"
	"quiz-progression-service/internal/logger"
)

func newReconciler(t *testing.T) (*app.LeaderboardReconciler, *memory.Store, *app.LeaderboardHub) {
	t.Helper()
	store := memory.NewStore()
	hub := app.NewLeaderboardHub()
	return app.NewLeaderboardReconciler(store, hub, logger.NewNop()), store, hub
}

func summary(userID string, points int, avg float64, total int) app.AttemptSummary {
	return app.AttemptSummary{
		QuizID:              "quiz-1",
		UserID:              userID,
		Score:               80,
		Points:              points,
		AverageResponseTime: avg,
		TotalTimeSpent:      total,
	}
}

func TestReconcileMergeIsOrderIndependent(t *testing.T) {
	attempts := []app.AttemptSummary{
		summary("u1", 100, 12, 60),
		summary("u1", 150, 20, 100),
		summary("u1", 150, 8, 40),
	}
	orders := [][]int{
		{0, 1, 2}, {2, 1, 0}, {1, 0, 2}, {2, 0, 1},
	}
	for _, order := range orders {
		reconciler, store, _ := newReconciler(t)
		for _, idx := range order {
			if err := reconciler.Reconcile(context.Background(), attempts[idx]); err != nil {
				t.Fatalf("reconcile: %v", err)
			}
		}
		entry, err := store.GetEntry(context.Background(), "quiz-1", "u1")
		if err != nil {
			t.Fatalf("get entry: %v", err)
		}
		if entry.Attempts != 3 {
			t.Fatalf("order %v: expected 3 attempts, got %d", order, entry.Attempts)
		}
		if entry.BestPoints != 150 || entry.AverageResponseTime != 8 {
			t.Fatalf("order %v: converged wrong: %+v", order, entry)
		}
	}
}

func TestReconcileKeepsBestOnWorseAttempt(t *testing.T) {
	reconciler, store, _ := newReconciler(t)

	if err := reconciler.Reconcile(context.Background(), summary("u1", 150, 8, 40)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	// Fewer points, faster: best fields stay, attempts still counts.
	if err := reconciler.Reconcile(context.Background(), summary("u1", 100, 2, 10)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	entry, err := store.GetEntry(context.Background(), "quiz-1", "u1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.BestPoints != 150 || entry.BestTime != 40 {
		t.Fatalf("best overwritten by worse attempt: %+v", entry)
	}
	if entry.Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", entry.Attempts)
	}
}

func TestReconcileEqualPointsFasterWins(t *testing.T) {
	reconciler, store, _ := newReconciler(t)

	if err := reconciler.Reconcile(context.Background(), summary("u1", 100, 12, 60)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if err := reconciler.Reconcile(context.Background(), summary("u1", 100, 15, 70)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	entry, _ := store.GetEntry(context.Background(), "quiz-1", "u1")
	if entry.AverageResponseTime != 12 {
		t.Fatalf("slower equal-points attempt overwrote best: %+v", entry)
	}

	if err := reconciler.Reconcile(context.Background(), summary("u1", 100, 9, 45)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	entry, _ = store.GetEntry(context.Background(), "quiz-1", "u1")
	if entry.AverageResponseTime != 9 || entry.BestTime != 45 {
		t.Fatalf("faster equal-points attempt did not overwrite: %+v", entry)
	}
}

func TestReconcileZeroBestTimeIsOverwritten(t *testing.T) {
	reconciler, store, _ := newReconciler(t)

	// A legacy row with BestTime 0 is treated as unset and always loses an
	// equal-points comparison.
	if err := store.CreateEntry(context.Background(), &domain.LeaderboardEntry{
		QuizID:              "quiz-1",
		UserID:              "u1",
		BestPoints:          100,
		BestTime:            0,
		AverageResponseTime: 1,
		Attempts:            4,
	}); err != nil {
		t.Fatalf("create entry: %v", err)
	}

	if err := reconciler.Reconcile(context.Background(), summary("u1", 100, 30, 90)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	entry, _ := store.GetEntry(context.Background(), "quiz-1", "u1")
	if entry.BestTime != 90 || entry.AverageResponseTime != 30 {
		t.Fatalf("zero-sentinel best time not replaced: %+v", entry)
	}
	if entry.Attempts != 5 {
		t.Fatalf("expected 5 attempts, got %d", entry.Attempts)
	}
}

func TestTopDerivesRanks(t *testing.T) {
	reconciler, _, _ := newReconciler(t)

	for _, s := range []app.AttemptSummary{
		summary("u1", 100, 12, 60),
		summary("u2", 150, 8, 40),
		summary("u3", 100, 9, 45),
	} {
		if err := reconciler.Reconcile(context.Background(), s); err != nil {
			t.Fatalf("reconcile: %v", err)
		}
	}

	snapshot, err := reconciler.Top(context.Background(), "quiz-1", 2)
	if err != nil {
		t.Fatalf("top: %v", err)
	}
	if len(snapshot.Entries) != 2 {
		t.Fatalf("limit not applied: %d entries", len(snapshot.Entries))
	}
	if snapshot.Entries[0].UserID != "u2" || snapshot.Entries[0].Rank != 1 {
		t.Fatalf("unexpected first place: %+v", snapshot.Entries[0])
	}
	// Equal points break on faster average response.
	if snapshot.Entries[1].UserID != "u3" || snapshot.Entries[1].Rank != 2 {
		t.Fatalf("unexpected second place: %+v", snapshot.Entries[1])
	}
}

func TestReconcileBroadcastsToWatchers(t *testing.T) {
	reconciler, _, hub := newReconciler(t)

	updates, cancel := hub.Subscribe("quiz-1")
	defer cancel()

	if err := reconciler.Reconcile(context.Background(), summary("u1", 100, 12, 60)); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	select {
	case snapshot := <-updates:
		if snapshot.QuizID != "quiz-1" || len(snapshot.Entries) != 1 {
			t.Fatalf("unexpected snapshot: %+v", snapshot)
		}
	case <-time.After(time.Second):
		t.Fatalf("no broadcast received")
	}
}
