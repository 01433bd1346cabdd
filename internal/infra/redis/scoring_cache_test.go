package redis

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/infra/memory"
)

func TestScoringCacheCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	store := memory.NewStore()
	store.SeedQuiz(sampleQuiz())
	loader := &countingLoader{QuizLoader: store}
	cache := NewScoringCache(newClient(mr), loader, time.Minute)

	quiz, err := cache.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}
	if quiz.CompletionBonus != 100 || len(quiz.Questions) != 2 {
		t.Fatalf("unexpected quiz from loader: %+v", quiz)
	}
	if !mr.Exists("quiz:quiz-1:scoring") {
		t.Fatalf("expected scoring hash to be cached")
	}

	// Second call hits the cache and keeps the scoring view intact.
	cached, err := cache.GetQuiz(context.Background(), "quiz-1")
	if err != nil {
		t.Fatalf("get cached quiz: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if cached.PassingScore != 70 {
		t.Fatalf("expected passing score preserved, got %f", cached.PassingScore)
	}
	question, ok := cached.QuestionByID("q1")
	if !ok {
		t.Fatalf("expected q1 in cached quiz")
	}
	if question.CorrectOptionID() != "o2" || question.Difficulty != domain.DifficultyHard {
		t.Fatalf("cached question lost scoring fields: %+v", question)
	}
}

func TestScoringCacheMissPropagatesNotFound(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	cache := NewScoringCache(newClient(mr), memory.NewStore(), time.Minute)
	if _, err := cache.GetQuiz(context.Background(), "missing"); err != domain.ErrQuizNotFound {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	memory.QuizLoader
	calls int
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls++
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-1",
		Sport:           "football",
		CompletionBonus: 100,
		PassingScore:    70,
		Questions: []domain.Question{
			{
				ID:               "q1",
				Topic:            "rules",
				Difficulty:       domain.DifficultyHard,
				TimeLimitSeconds: 60,
				Options: []domain.Option{
					{ID: "o1", Correct: false},
					{ID: "o2", Correct: true},
				},
			},
			{
				ID:               "q2",
				Topic:            "history",
				Difficulty:       domain.DifficultyHard,
				TimeLimitSeconds: 60,
				Options: []domain.Option{
					{ID: "o1", Correct: true},
					{ID: "o2", Correct: false},
				},
			},
		},
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}
