package app_test

import (
	"context"
	"sort"
	"testing"
	"time"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/infra/memory"
	"quiz-progression-service/internal/logger"
)

func newBadges(t *testing.T) (*app.BadgeService, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return app.NewBadgeService(store, store, store, logger.NewNop()), store
}

func seedCompletedAttempt(store *memory.Store, id, userID string, completedAt time.Time, opts func(*domain.Attempt)) {
	attempt := domain.Attempt{
		ID:          id,
		QuizID:      "quiz-1",
		UserID:      userID,
		StartedAt:   completedAt.Add(-time.Minute),
		CompletedAt: &completedAt,
		Score:       80,
		Passed:      true,
	}
	if opts != nil {
		opts(&attempt)
	}
	store.SeedAttempt(attempt)
}

func TestCheckAndAwardThresholdAndIdempotence(t *testing.T) {
	svc, store := newBadges(t)
	store.SeedBadges([]domain.Badge{
		{ID: 1, Name: "Getting Started", Kind: domain.BadgeAttemptCount, Threshold: 1},
		{ID: 2, Name: "Regular", Kind: domain.BadgeAttemptCount, Threshold: 3},
	})
	seedCompletedAttempt(store, "a1", "u1", time.Now(), nil)

	awarded, err := svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(awarded) != 1 || awarded[0] != "Getting Started" {
		t.Fatalf("expected Getting Started only, got %v", awarded)
	}

	// Nothing changed, so a re-run awards nothing.
	again, err := svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{})
	if err != nil {
		t.Fatalf("re-check: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no new awards, got %v", again)
	}

	seedCompletedAttempt(store, "a2", "u1", time.Now(), nil)
	seedCompletedAttempt(store, "a3", "u1", time.Now(), nil)
	third, err := svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{})
	if err != nil {
		t.Fatalf("third check: %v", err)
	}
	if len(third) != 1 || third[0] != "Regular" {
		t.Fatalf("expected Regular, got %v", third)
	}
}

func TestCheckAndAwardMultipleAtOnce(t *testing.T) {
	svc, store := newBadges(t)
	store.SeedBadges([]domain.Badge{
		{ID: 1, Name: "Getting Started", Kind: domain.BadgeAttemptCount, Threshold: 1},
		{ID: 2, Name: "Flawless", Kind: domain.BadgePerfectScore},
		{ID: 3, Name: "Social", Kind: domain.BadgeFriendCount, Threshold: 5},
	})
	seedCompletedAttempt(store, "a1", "u1", time.Now(), func(a *domain.Attempt) {
		a.Score = 100
	})
	store.SetSocialCounts("u1", 5, 0, 0)

	awarded, err := svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	sort.Strings(awarded)
	want := []string{"Flawless", "Getting Started", "Social"}
	if len(awarded) != len(want) {
		t.Fatalf("expected %v, got %v", want, awarded)
	}
	for i := range want {
		if awarded[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, awarded)
		}
	}

	// One notification per new award.
	var badgeNotes int
	for _, n := range store.Notifications() {
		if n.Kind == domain.NotificationBadgeAwarded {
			badgeNotes++
		}
	}
	if badgeNotes != 3 {
		t.Fatalf("expected 3 badge notifications, got %d", badgeNotes)
	}
}

func TestCheckAndAwardScopedKinds(t *testing.T) {
	svc, store := newBadges(t)
	store.SeedQuiz(domain.Quiz{
		ID:    "quiz-1",
		Sport: "football",
		Questions: []domain.Question{
			{ID: "q1", Topic: "history", Options: []domain.Option{{ID: "o1", Correct: true}}},
		},
	})
	store.SeedBadges([]domain.Badge{
		{ID: 1, Name: "Football Fan", Kind: domain.BadgeSportAttempts, Threshold: 2, Scope: "football"},
		{ID: 2, Name: "Tennis Fan", Kind: domain.BadgeSportAttempts, Threshold: 2, Scope: "tennis"},
		{ID: 3, Name: "Historian", Kind: domain.BadgeTopicCorrect, Threshold: 1, Scope: "history"},
	})
	now := time.Now()
	seedCompletedAttempt(store, "a1", "u1", now, nil)
	seedCompletedAttempt(store, "a2", "u1", now, nil)
	if err := store.InsertAnswers(context.Background(), []domain.AnswerRecord{
		{AttemptID: "a1", QuestionID: "q1", IsCorrect: true, CreatedAt: now},
	}); err != nil {
		t.Fatalf("insert answers: %v", err)
	}

	awarded, err := svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	sort.Strings(awarded)
	if len(awarded) != 2 || awarded[0] != "Football Fan" || awarded[1] != "Historian" {
		t.Fatalf("expected Football Fan and Historian, got %v", awarded)
	}
}

func TestCheckAndAwardTimeOfDay(t *testing.T) {
	svc, store := newBadges(t)
	store.SeedBadges([]domain.Badge{
		{ID: 1, Name: "Night Owl", Kind: domain.BadgeNightOwl, Threshold: 2},
		{ID: 2, Name: "Early Bird", Kind: domain.BadgeEarlyBird, Threshold: 1},
	})
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.Local)
	// 23:00 and 01:00 both land in the wrap-around night window.
	seedCompletedAttempt(store, "a1", "u1", day.Add(23*time.Hour), nil)
	seedCompletedAttempt(store, "a2", "u1", day.Add(25*time.Hour), nil)
	// 12:00 is in neither window.
	seedCompletedAttempt(store, "a3", "u1", day.Add(12*time.Hour), nil)

	awarded, err := svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(awarded) != 1 || awarded[0] != "Night Owl" {
		t.Fatalf("expected Night Owl only, got %v", awarded)
	}
}

func TestCheckAndAwardFastestAnswer(t *testing.T) {
	svc, store := newBadges(t)
	store.SeedBadges([]domain.Badge{
		{ID: 1, Name: "Lightning", Kind: domain.BadgeFastestAnswer, Threshold: 3},
	})

	// No correct answers at all: the -1 sentinel must not qualify against
	// any threshold.
	awarded, err := svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(awarded) != 0 {
		t.Fatalf("expected no award without correct answers, got %v", awarded)
	}

	now := time.Now()
	seedCompletedAttempt(store, "a1", "u1", now, nil)
	if err := store.InsertAnswers(context.Background(), []domain.AnswerRecord{
		{AttemptID: "a1", QuestionID: "q1", IsCorrect: true, TimeSpent: 2, CreatedAt: now},
	}); err != nil {
		t.Fatalf("insert answers: %v", err)
	}
	awarded, err = svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(awarded) != 1 || awarded[0] != "Lightning" {
		t.Fatalf("expected Lightning, got %v", awarded)
	}
}

func TestHasComebackPattern(t *testing.T) {
	wrong := domain.AnswerRecord{IsCorrect: false}
	right := domain.AnswerRecord{IsCorrect: true}
	skipped := domain.AnswerRecord{WasSkipped: true}

	cases := []struct {
		name    string
		answers []domain.AnswerRecord
		want    bool
	}{
		{"two misses then recovery", []domain.AnswerRecord{wrong, wrong, right}, true},
		{"split misses still accumulate", []domain.AnswerRecord{wrong, right, wrong, right}, true},
		{"skips are not misses", []domain.AnswerRecord{skipped, skipped, right}, false},
		{"recovery after skips still counts", []domain.AnswerRecord{wrong, skipped, wrong, skipped, right}, true},
		{"no recovery", []domain.AnswerRecord{wrong, wrong, wrong}, false},
		{"single miss", []domain.AnswerRecord{wrong, right}, false},
	}
	for _, tc := range cases {
		got := app.HasComebackPattern([]app.AttemptAnswers{{Answers: tc.answers}})
		if got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestCheckAndAwardComeback(t *testing.T) {
	svc, store := newBadges(t)
	store.SeedBadges([]domain.Badge{
		{ID: 1, Name: "Comeback Kid", Kind: domain.BadgeComeback},
	})
	now := time.Now()
	seedCompletedAttempt(store, "a1", "u1", now, nil)
	base := now.Add(-time.Minute)
	if err := store.InsertAnswers(context.Background(), []domain.AnswerRecord{
		{AttemptID: "a1", QuestionID: "q1", IsCorrect: false, CreatedAt: base},
		{AttemptID: "a1", QuestionID: "q2", IsCorrect: false, CreatedAt: base.Add(10 * time.Second)},
		{AttemptID: "a1", QuestionID: "q3", IsCorrect: true, CreatedAt: base.Add(20 * time.Second)},
	}); err != nil {
		t.Fatalf("insert answers: %v", err)
	}

	awarded, err := svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(awarded) != 1 || awarded[0] != "Comeback Kid" {
		t.Fatalf("expected Comeback Kid, got %v", awarded)
	}
}

// countingFacts wraps the store to observe which fact batches get fetched.
type countingFacts struct {
	*memory.Store
	attemptCalls int
	friendCalls  int
}

func (c *countingFacts) CountCompletedAttempts(ctx context.Context, userID string) (int, error) {
	c.attemptCalls++
	return c.Store.CountCompletedAttempts(ctx, userID)
}

func (c *countingFacts) FriendCount(ctx context.Context, userID string) (int, error) {
	c.friendCalls++
	return c.Store.FriendCount(ctx, userID)
}

func TestCheckAndAwardFetchesOnlyNeededFacts(t *testing.T) {
	store := memory.NewStore()
	facts := &countingFacts{Store: store}
	svc := app.NewBadgeService(store, facts, store, logger.NewNop())

	store.SeedBadges([]domain.Badge{
		{ID: 1, Name: "Getting Started", Kind: domain.BadgeAttemptCount, Threshold: 1},
	})

	if _, err := svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{}); err != nil {
		t.Fatalf("check: %v", err)
	}
	if facts.attemptCalls != 1 {
		t.Fatalf("expected 1 attempt-count fetch, got %d", facts.attemptCalls)
	}
	// No friend badge in the catalog, so the friend batch is never fetched.
	if facts.friendCalls != 0 {
		t.Fatalf("unneeded friend fetch ran %d times", facts.friendCalls)
	}
}

func TestCheckAndAwardIgnoresPracticeAttempts(t *testing.T) {
	svc, store := newBadges(t)
	store.SeedBadges([]domain.Badge{
		{ID: 1, Name: "Getting Started", Kind: domain.BadgeAttemptCount, Threshold: 1},
	})
	seedCompletedAttempt(store, "a1", "u1", time.Now(), func(a *domain.Attempt) {
		a.IsPracticeMode = true
	})

	awarded, err := svc.CheckAndAward(context.Background(), "u1", app.BadgeContext{})
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if len(awarded) != 0 {
		t.Fatalf("practice attempt counted toward badge: %v", awarded)
	}
}
