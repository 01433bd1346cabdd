package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"quiz-progression-service/internal/domain"
	"quiz-progression-service/internal/logger"
	"quiz-progression-service/internal/scoring"
)

// AttemptRepository abstracts attempt and answer persistence.
type AttemptRepository interface {
	GetAttempt(ctx context.Context, id string) (*domain.Attempt, error)
	// ListAnswers returns the attempt's answer records ordered by creation.
	ListAnswers(ctx context.Context, attemptID string) ([]domain.AnswerRecord, error)
	// InsertAnswers inserts new records, silently dropping any that would
	// violate the (attemptId, questionId) uniqueness invariant.
	InsertAnswers(ctx context.Context, answers []domain.AnswerRecord) error
	// FinalizeAttempt atomically persists the computed answer fields and the
	// attempt's completion fields, conditioned on completedAt still being
	// null. It reports false when another caller already completed it.
	FinalizeAttempt(ctx context.Context, attempt *domain.Attempt, answers []domain.AnswerRecord) (bool, error)
}

// QuizContentRepository loads quiz content from the content subsystem,
// usually through the scoring-config cache.
type QuizContentRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// CompletionService validates and atomically finalizes attempts, then fans
// the gamification side effects out as deferred best-effort tasks.
type CompletionService struct {
	attempts    AttemptRepository
	quizzes     QuizContentRepository
	leaderboard *LeaderboardReconciler
	progression *ProgressionService
	badges      *BadgeService
	log         *logger.Logger

	finalizeTimeout time.Duration
	effectTimeout   time.Duration
	effects         sync.WaitGroup
	now             func() time.Time
}

type CompletionConfig struct {
	FinalizeTimeout time.Duration
	EffectTimeout   time.Duration
}

func NewCompletionService(
	attempts AttemptRepository,
	quizzes QuizContentRepository,
	leaderboard *LeaderboardReconciler,
	progression *ProgressionService,
	badges *BadgeService,
	log *logger.Logger,
	cfg CompletionConfig,
) *CompletionService {
	if cfg.FinalizeTimeout <= 0 {
		cfg.FinalizeTimeout = 15 * time.Second
	}
	if cfg.EffectTimeout <= 0 {
		cfg.EffectTimeout = 30 * time.Second
	}
	return &CompletionService{
		attempts:        attempts,
		quizzes:         quizzes,
		leaderboard:     leaderboard,
		progression:     progression,
		badges:          badges,
		log:             log.With("component", "completion"),
		finalizeTimeout: cfg.FinalizeTimeout,
		effectTimeout:   cfg.EffectTimeout,
		now:             time.Now,
	}
}

// CompleteAttempt finalizes the attempt exactly once. Resubmissions and
// concurrent completions return the already-committed result as a success.
// Submitted answers for questions outside the attempt's selected set are
// silently ignored.
func (s *CompletionService) CompleteAttempt(ctx context.Context, attemptID, callerUserID string, submitted []domain.SubmittedAnswer) (domain.CompletionResult, error) {
	if attemptID == "" || callerUserID == "" {
		return domain.CompletionResult{}, fmt.Errorf("%w: attempt id and caller required", domain.ErrValidation)
	}

	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return domain.CompletionResult{}, err
	}
	if attempt.UserID != callerUserID {
		return domain.CompletionResult{}, domain.ErrForbidden
	}
	if attempt.IsCompleted() {
		return completionResult(attempt), nil
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("load quiz %s: %w", attempt.QuizID, err)
	}

	fctx, cancel := context.WithTimeout(ctx, s.finalizeTimeout)
	defer cancel()

	if err := s.recordSubmittedAnswers(fctx, attempt, quiz, submitted); err != nil {
		return domain.CompletionResult{}, err
	}

	answers, err := s.loadScorableAnswers(fctx, attemptID)
	if err != nil {
		return domain.CompletionResult{}, err
	}

	scoreAnswers(quiz, answers)
	fillCompletion(attempt, quiz, answers, s.now())

	committed, err := s.attempts.FinalizeAttempt(fctx, attempt, answers)
	if err != nil {
		return domain.CompletionResult{}, fmt.Errorf("finalize attempt: %w", err)
	}
	if !committed {
		// Another caller won the completion race; surface their result.
		existing, err := s.attempts.GetAttempt(ctx, attemptID)
		if err != nil {
			return domain.CompletionResult{}, err
		}
		return completionResult(existing), nil
	}

	s.dispatchEffects(*attempt)
	return completionResult(attempt), nil
}

// Wait drains in-flight deferred effects; called on shutdown.
func (s *CompletionService) Wait() {
	s.effects.Wait()
}

// recordSubmittedAnswers dedupes the batch by question id keeping the first
// occurrence, resolves correctness, and inserts the new rows. Conflicting
// rows are dropped by the store, which makes resubmission idempotent.
func (s *CompletionService) recordSubmittedAnswers(ctx context.Context, attempt *domain.Attempt, quiz domain.Quiz, submitted []domain.SubmittedAnswer) error {
	seen := make(map[string]struct{}, len(submitted))
	var records []domain.AnswerRecord
	now := s.now()
	for _, sub := range submitted {
		if sub.QuestionID == "" {
			return fmt.Errorf("%w: answer without question id", domain.ErrValidation)
		}
		if sub.TimeSpent < 0 {
			return fmt.Errorf("%w: negative time spent for question %s", domain.ErrValidation, sub.QuestionID)
		}
		if _, dup := seen[sub.QuestionID]; dup {
			continue
		}
		seen[sub.QuestionID] = struct{}{}

		question, ok := quiz.QuestionByID(sub.QuestionID)
		if !ok {
			continue // outside the attempt's selected set
		}

		record := domain.AnswerRecord{
			AttemptID:  attempt.ID,
			QuestionID: sub.QuestionID,
			AnswerID:   sub.AnswerID,
			TimeSpent:  sub.TimeSpent,
			CreatedAt:  now,
		}
		if sub.AnswerID == nil {
			record.WasSkipped = true
		} else {
			record.IsCorrect = *sub.AnswerID == question.CorrectOptionID()
		}
		records = append(records, record)
	}
	if len(records) == 0 {
		return nil
	}
	if err := s.attempts.InsertAnswers(ctx, records); err != nil {
		return fmt.Errorf("insert answers: %w", err)
	}
	return nil
}

// loadScorableAnswers reloads all records and dedupes again by question id
// keeping the earliest created, defending against insert races.
func (s *CompletionService) loadScorableAnswers(ctx context.Context, attemptID string) ([]domain.AnswerRecord, error) {
	all, err := s.attempts.ListAnswers(ctx, attemptID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byQuestion := make(map[string]int, len(all))
	var answers []domain.AnswerRecord
	for _, record := range all {
		if idx, ok := byQuestion[record.QuestionID]; ok {
			if record.CreatedAt.Before(answers[idx].CreatedAt) {
				answers[idx] = record
			}
			continue
		}
		byQuestion[record.QuestionID] = len(answers)
		answers = append(answers, record)
	}
	return answers, nil
}

// scoreAnswers computes the quiz scale once and every answer's points.
// BasePoints is the floor-guaranteed part, TimeBonus the speed-dependent rest.
func scoreAnswers(quiz domain.Quiz, answers []domain.AnswerRecord) {
	cfg := quiz.ScoringConfig()
	scale := scoring.ComputeQuizScale(cfg.CompletionBonus, cfg.Questions)
	for i := range answers {
		question, ok := quiz.QuestionByID(answers[i].QuestionID)
		if !ok {
			continue
		}
		limit := scoring.EffectiveTimeLimit(question.TimeLimitSeconds)
		total := scoring.ComputeQuestionScore(answers[i].IsCorrect, answers[i].TimeSpent, limit, question.Difficulty, scale)
		floor := 0
		if total > 0 {
			// The floor is the score at the effective limit, not the raw
			// configured one, or short limits would overstate it.
			floor = scoring.ComputeQuestionScore(answers[i].IsCorrect, limit, limit, question.Difficulty, scale)
			if floor > total {
				floor = total
			}
		}
		answers[i].BasePoints = floor
		answers[i].TimeBonus = total - floor
		answers[i].TotalPoints = total
	}
}

// fillCompletion accumulates the attempt-level totals and completion fields.
func fillCompletion(attempt *domain.Attempt, quiz domain.Quiz, answers []domain.AnswerRecord, completedAt time.Time) {
	totalPoints, totalTime, correct := 0, 0, 0
	for _, a := range answers {
		totalPoints += a.TotalPoints
		totalTime += a.TimeSpent
		if a.IsCorrect {
			correct++
		}
	}
	attempt.TotalQuestions = len(quiz.Questions)
	attempt.CorrectAnswers = correct
	attempt.TotalPoints = totalPoints
	attempt.TotalTimeSpent = totalTime
	if len(answers) > 0 {
		attempt.AverageResponseTime = float64(totalTime) / float64(len(answers))
	}
	attempt.Score = scoring.ScorePercentage(correct, attempt.TotalQuestions)
	attempt.Passed = attempt.Score >= quiz.PassingScore
	attempt.CompletedAt = &completedAt
}

func completionResult(attempt *domain.Attempt) domain.CompletionResult {
	status := domain.BonusNone
	switch {
	case attempt.IsPracticeMode:
		status = domain.BonusPractice
	case attempt.TotalPoints > 0:
		status = domain.BonusAwarded
	}
	return domain.CompletionResult{
		AttemptID:   attempt.ID,
		QuizID:      attempt.QuizID,
		Score:       attempt.Score,
		Passed:      attempt.Passed,
		BonusStatus: status,
	}
}

// dispatchEffects fires the gamification side effects after the response is
// on its way. Each task is isolated: failures are logged, never retried and
// never surfaced to the caller.
func (s *CompletionService) dispatchEffects(attempt domain.Attempt) {
	s.runEffect("progression", func(ctx context.Context) error {
		if !attempt.IsPracticeMode {
			if _, err := s.progression.AddPoints(ctx, attempt.UserID, attempt.TotalPoints); err != nil {
				return err
			}
		}
		if err := s.progression.TouchStreak(ctx, attempt.UserID, *attempt.CompletedAt); err != nil {
			return err
		}
		_, err := s.progression.Recompute(ctx, attempt.UserID)
		return err
	})

	if !attempt.IsPracticeMode {
		s.runEffect("leaderboard", func(ctx context.Context) error {
			return s.leaderboard.Reconcile(ctx, AttemptSummary{
				QuizID:              attempt.QuizID,
				UserID:              attempt.UserID,
				Score:               attempt.Score,
				Points:              attempt.TotalPoints,
				AverageResponseTime: attempt.AverageResponseTime,
				TotalTimeSpent:      attempt.TotalTimeSpent,
			})
		})
	}

	s.runEffect("badges", func(ctx context.Context) error {
		_, err := s.badges.CheckAndAward(ctx, attempt.UserID, BadgeContext{
			QuizID:    attempt.QuizID,
			AttemptID: attempt.ID,
		})
		return err
	})
}

func (s *CompletionService) runEffect(name string, fn func(ctx context.Context) error) {
	s.effects.Add(1)
	go func() {
		defer s.effects.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("deferred effect panicked", "effect", name, "panic", r)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), s.effectTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Error("deferred effect failed", "effect", name, "error", err)
		}
	}()
}
