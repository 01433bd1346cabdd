package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quiz-progression-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (content subsystem).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ScoringCache keeps the scoring-relevant projection of quiz content in
// process memory; it is the local counterpart of the redis-backed cache.
// Only what finalization needs survives the projection: quiz meta and, per
// question, difficulty, time limit, topic and the correct option. Prompts
// and distractor options are dropped at fill time. Loads are deduplicated
// via singleflight and entries expire on a jittered TTL.
type ScoringCache struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	rnd   *rand.Rand // guarded by mu; rand.Rand is not goroutine-safe
	views map[string]scoringView
}

type scoringView struct {
	sport           string
	completionBonus int
	passingScore    float64
	questions       []scoringQuestion
	expiresAt       time.Time
}

type scoringQuestion struct {
	id               string
	topic            string
	difficulty       domain.Difficulty
	timeLimitSeconds int
	correctOptionID  string
}

func NewScoringCache(loader QuizLoader, ttl time.Duration) *ScoringCache {
	return &ScoringCache{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
		views:  make(map[string]scoringView),
	}
}

func (c *ScoringCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := c.cached(quizID); ok {
		return quiz, nil
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		if quiz, ok := c.cached(quizID); ok {
			return quiz, nil
		}

		quiz, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		view := projectQuiz(quiz)
		c.mu.Lock()
		view.expiresAt = c.clock().Add(c.ttlWithJitterLocked())
		c.views[quizID] = view
		c.mu.Unlock()
		return view.toQuiz(quizID), nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *ScoringCache) cached(quizID string) (domain.Quiz, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	view, ok := c.views[quizID]
	if !ok || !view.expiresAt.After(c.clock()) {
		return domain.Quiz{}, false
	}
	return view.toQuiz(quizID), true
}

func (c *ScoringCache) ttlWithJitterLocked() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

// projectQuiz strips the quiz down to its scoring view.
func projectQuiz(quiz domain.Quiz) scoringView {
	view := scoringView{
		sport:           quiz.Sport,
		completionBonus: quiz.CompletionBonus,
		passingScore:    quiz.PassingScore,
		questions:       make([]scoringQuestion, 0, len(quiz.Questions)),
	}
	for _, q := range quiz.Questions {
		view.questions = append(view.questions, scoringQuestion{
			id:               q.ID,
			topic:            q.Topic,
			difficulty:       q.Difficulty,
			timeLimitSeconds: q.TimeLimitSeconds,
			correctOptionID:  q.CorrectOptionID(),
		})
	}
	return view
}

// toQuiz rebuilds the lightweight quiz: each question carries only its
// correct option.
func (v scoringView) toQuiz(quizID string) domain.Quiz {
	quiz := domain.Quiz{
		ID:              quizID,
		Sport:           v.sport,
		CompletionBonus: v.completionBonus,
		PassingScore:    v.passingScore,
		Questions:       make([]domain.Question, 0, len(v.questions)),
	}
	for _, q := range v.questions {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:               q.id,
			Topic:            q.topic,
			Difficulty:       q.difficulty,
			TimeLimitSeconds: q.timeLimitSeconds,
			Options: []domain.Option{
				{ID: q.correctOptionID, Correct: true},
			},
		})
	}
	return quiz
}
