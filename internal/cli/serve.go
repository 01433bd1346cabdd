package cli

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-progression-service/internal/app"
	"quiz-progression-service/internal/config"
	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/infra/memory"
	pginfra "quiz-progression-service/internal/infra/postgres"
	redisinfra "quiz-progression-service/internal/infra/redis"
	"quiz-progression-service/internal/logger"
	transport "quiz-progression-service/internal/transport/http"
)

// NewServeCmd builds the CLI subcommand to start the server.
func NewServeCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the completion and gamification server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := logger.New(cfg.Server.Mode)
	if err != nil {
		return err
	}
	defer log.Sync()

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)

	// The memory store backs the no-postgres dev mode and doubles as the
	// static content loader there.
	memStore := memory.NewStore()

	var (
		attempts      app.AttemptRepository      = memStore
		leaderboards  app.LeaderboardRepository  = memStore
		progression   app.ProgressionRepository  = memStore
		notifications app.NotificationRepository = memStore
		badges        app.BadgeRepository        = memStore
		facts         app.BadgeFactsRepository   = memStore
		loader        memory.QuizLoader          = memStore
	)

	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		bundb := bun.NewDB(sqldb, pgdialect.New())
		defer bundb.Close()

		store := pginfra.NewStore(bundb)
		attempts = store
		leaderboards = store
		progression = store
		notifications = store
		badges = store
		facts = store
		loader = pginfra.NewQuizLoader(pool)
	} else {
		seedDevData(memStore)
	}

	var quizzes app.QuizContentRepository
	if redisClient != nil {
		quizzes = redisinfra.NewScoringCache(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewScoringCache(loader, quizTTL)
	}

	hub := app.NewLeaderboardHub()
	reconciler := app.NewLeaderboardReconciler(leaderboards, hub, log)
	progressionSvc := app.NewProgressionService(progression, notifications, log)
	badgeSvc := app.NewBadgeService(badges, facts, notifications, log)
	completion := app.NewCompletionService(attempts, quizzes, reconciler, progressionSvc, badgeSvc, log, app.CompletionConfig{
		FinalizeTimeout: config.TTLDuration(cfg.Completion.FinalizeTimeout, 15*time.Second),
		EffectTimeout:   config.TTLDuration(cfg.Completion.EffectTimeout, 30*time.Second),
	})

	handler := transport.NewHandler(completion, progressionSvc, badgeSvc, reconciler, log)
	wsHandler := transport.NewWSHandler(hub, reconciler, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("/ws/leaderboard", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info("starting server", "port", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info("shutting down server")
	case <-ctx.Done():
		log.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = server.Shutdown(shutdownCtx)
	// Let in-flight deferred gamification effects drain.
	completion.Wait()
	return err
}

// seedDevData gives the in-memory mode a quiz, the catalogs and one open
// attempt so the full completion flow can be exercised without a database.
func seedDevData(store *memory.Store) {
	store.SeedQuiz(domain.Quiz{
		ID:              "quiz-1",
		Sport:           "football",
		CompletionBonus: 100,
		PassingScore:    70,
		Questions: []domain.Question{
			{
				ID:               "q1",
				Prompt:           "How long is a standard half?",
				Topic:            "rules",
				Difficulty:       domain.DifficultyEasy,
				TimeLimitSeconds: 30,
				Options: []domain.Option{
					{ID: "o1", Text: "30 minutes", Correct: false},
					{ID: "o2", Text: "45 minutes", Correct: true},
				},
			},
			{
				ID:               "q2",
				Prompt:           "Which country won the first World Cup?",
				Topic:            "history",
				Difficulty:       domain.DifficultyHard,
				TimeLimitSeconds: 60,
				Options: []domain.Option{
					{ID: "o1", Text: "Uruguay", Correct: true},
					{ID: "o2", Text: "Brazil", Correct: false},
				},
			},
		},
	})
	store.SeedAttempt(domain.Attempt{
		ID:        "attempt-1",
		QuizID:    "quiz-1",
		UserID:    "user-1",
		StartedAt: time.Now(),
	})
	store.SeedTiers([]domain.TierDefinition{
		{ID: 1, Name: "Rookie", StartLevel: 1, EndLevel: 10, Order: 1},
		{ID: 2, Name: "Amateur", StartLevel: 11, EndLevel: 20, Order: 2},
		{ID: 3, Name: "Pro", StartLevel: 21, EndLevel: 50, Order: 3},
	})
	store.SeedBadges([]domain.Badge{
		{Name: "First Whistle", Kind: domain.BadgeAttemptCount, Threshold: 1},
		{Name: "Flawless", Kind: domain.BadgePerfectScore},
		{Name: "Comeback Kid", Kind: domain.BadgeComeback},
	})
}
