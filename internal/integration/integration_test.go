package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/domain"
	pginfra "quiz-progression-service/internal/infra/postgres"
	pgmigrations "quiz-progression-service/internal/infra/postgres/migrations"
	infraredis "quiz-progression-service/internal/infra/redis"
	"quiz-progression-service/internal/logger"
)

func TestCompleteAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, pgURL)
	defer db.Close()
	runMigrations(t, ctx, db)
	seedQuiz(t, ctx, db, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	store := pginfra.NewStore(db)
	quizzes := infraredis.NewScoringCache(redisClient, pginfra.NewQuizLoader(pool), 5*time.Minute)

	log := logger.NewNop()
	hub := app.NewLeaderboardHub()
	reconciler := app.NewLeaderboardReconciler(store, hub, log)
	progression := app.NewProgressionService(store, store, log)
	badges := app.NewBadgeService(store, store, store, log)
	completion := app.NewCompletionService(store, quizzes, reconciler, progression, badges, log, app.CompletionConfig{})

	started := time.Now().Add(-time.Minute)
	if err := store.CreateAttempt(ctx, &domain.Attempt{
		ID:        "attempt-1",
		QuizID:    "quiz-1",
		UserID:    "u1",
		StartedAt: started,
	}); err != nil {
		t.Fatalf("create attempt: %v", err)
	}

	answers := []domain.SubmittedAnswer{
		{QuestionID: "q1", AnswerID: strPtr("o2"), TimeSpent: 4},
		{QuestionID: "q2", AnswerID: strPtr("o1"), TimeSpent: 12},
	}
	result, err := completion.CompleteAttempt(ctx, "attempt-1", "u1", answers)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if result.Score != 100 || !result.Passed {
		t.Fatalf("unexpected result: %+v", result)
	}
	if result.BonusStatus != domain.BonusAwarded {
		t.Fatalf("expected bonus awarded, got %s", result.BonusStatus)
	}

	completion.Wait()

	attempt, err := store.GetAttempt(ctx, "attempt-1")
	if err != nil {
		t.Fatalf("reload attempt: %v", err)
	}
	if !attempt.IsCompleted() || attempt.TotalPoints <= 0 {
		t.Fatalf("attempt not finalized: %+v", attempt)
	}

	top, err := store.ListTop(ctx, "quiz-1", 10)
	if err != nil {
		t.Fatalf("list top: %v", err)
	}
	if len(top) != 1 || top[0].UserID != "u1" || top[0].Rank != 1 {
		t.Fatalf("unexpected leaderboard: %+v", top)
	}
	if top[0].BestPoints != attempt.TotalPoints {
		t.Fatalf("leaderboard points %d != attempt points %d", top[0].BestPoints, attempt.TotalPoints)
	}

	progress, err := store.GetProgress(ctx, "u1")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	if progress.TotalPoints != attempt.TotalPoints {
		t.Fatalf("progress points %d != attempt points %d", progress.TotalPoints, attempt.TotalPoints)
	}
	if progress.CurrentStreak != 1 {
		t.Fatalf("expected streak 1, got %d", progress.CurrentStreak)
	}

	// The seeded catalog includes a first-completion badge.
	earned, err := store.EarnedBadgeIDs(ctx, "u1")
	if err != nil {
		t.Fatalf("earned badges: %v", err)
	}
	if len(earned) == 0 {
		t.Fatalf("expected at least one badge after first completion")
	}

	// Resubmitting must be a no-op returning the committed result.
	again, err := completion.CompleteAttempt(ctx, "attempt-1", "u1", answers)
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if again != result {
		t.Fatalf("resubmission changed the result: %+v vs %+v", again, result)
	}
	completion.Wait()
	entry, err := store.GetEntry(ctx, "quiz-1", "u1")
	if err != nil {
		t.Fatalf("get entry: %v", err)
	}
	if entry.Attempts != 1 {
		t.Fatalf("resubmission re-counted the attempt: %d", entry.Attempts)
	}
}

func TestScoringCacheWarmsFromPostgres(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, pgURL)
	defer db.Close()
	runMigrations(t, ctx, db)
	seedQuiz(t, ctx, db, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	cache := infraredis.NewScoringCache(redisClient, pginfra.NewQuizLoader(pool), 5*time.Minute)

	quiz, err := cache.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("first get: %v", err)
	}
	if quiz.CompletionBonus != 100 || len(quiz.Questions) != 2 {
		t.Fatalf("unexpected quiz: %+v", quiz)
	}

	exists, err := redisClient.Exists(ctx, "quiz:quiz-1:scoring").Result()
	if err != nil || exists != 1 {
		t.Fatalf("expected warmed cache key, exists=%d err=%v", exists, err)
	}

	// The cached view keeps enough to score: correctness survives.
	cached, err := cache.GetQuiz(ctx, "quiz-1")
	if err != nil {
		t.Fatalf("cached get: %v", err)
	}
	q, ok := cached.QuestionByID("q1")
	if !ok || q.CorrectOptionID() != "o2" {
		t.Fatalf("correct option lost in cache: %+v", q)
	}
}

func openBun(t *testing.T, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func runMigrations(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}

func seedQuiz(t *testing.T, ctx context.Context, db *bun.DB, quiz domain.Quiz) {
	t.Helper()
	data, err := json.Marshal(quiz)
	if err != nil {
		t.Fatalf("marshal quiz: %v", err)
	}
	if _, err := db.ExecContext(ctx,
		`INSERT INTO quizzes (id, data) VALUES (?, ?::jsonb) ON CONFLICT (id) DO UPDATE SET data=EXCLUDED.data`,
		quiz.ID, string(data)); err != nil {
		t.Fatalf("insert quiz: %v", err)
	}
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:              "quiz-1",
		Sport:           "football",
		CompletionBonus: 100,
		PassingScore:    60,
		Questions: []domain.Question{
			{
				ID:               "q1",
				Prompt:           "How long is a half?",
				Topic:            "rules",
				Sport:            "football",
				Difficulty:       domain.DifficultyEasy,
				TimeLimitSeconds: 30,
				Options: []domain.Option{
					{ID: "o1", Text: "40 minutes", Correct: false},
					{ID: "o2", Text: "45 minutes", Correct: true},
				},
			},
			{
				ID:               "q2",
				Prompt:           "Who won the 1998 World Cup?",
				Topic:            "history",
				Sport:            "football",
				Difficulty:       domain.DifficultyHard,
				TimeLimitSeconds: 60,
				Options: []domain.Option{
					{ID: "o1", Text: "France", Correct: true},
					{ID: "o2", Text: "Brazil", Correct: false},
				},
			},
		},
	}
}

func strPtr(s string) *string { return &s }

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
