package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quiz-progression-service/internal/domain"
)

// QuizLoader fetches quiz content from a backing store (content subsystem).
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ScoringCache caches the scoring-relevant view of a quiz in one Redis hash
// per quiz and falls back to the loader on a miss:
//
//	HSET quiz:{quizID}:scoring meta        {completionBonus, passingScore, sport}
//	HSET quiz:{quizID}:scoring q:{qid}     {difficulty, timeLimit, topic, correct}
//
// The cached form is enough for finalization (correctness, limits, weights)
// without re-reading the content store on every completion.
type ScoringCache struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	sf     singleflight.Group

	mu  sync.Mutex
	rnd *rand.Rand // guarded by mu; rand.Rand is not goroutine-safe
}

func NewScoringCache(client *redis.Client, loader QuizLoader, ttl time.Duration) *ScoringCache {
	return &ScoringCache{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

type cachedMeta struct {
	CompletionBonus int     `json:"completionBonus"`
	PassingScore    float64 `json:"passingScore"`
	Sport           string  `json:"sport"`
}

type cachedQuestion struct {
	Difficulty       domain.Difficulty `json:"difficulty"`
	TimeLimitSeconds int               `json:"timeLimitSeconds"`
	Topic            string            `json:"topic"`
	CorrectOptionID  string            `json:"correctOptionId"`
}

func (c *ScoringCache) GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	key := c.key(quizID)

	fields, err := c.client.HGetAll(ctx, key).Result()
	if err == nil && len(fields) > 0 {
		return buildQuizFromCache(quizID, fields)
	}

	result, err, _ := c.sf.Do(quizID, func() (interface{}, error) {
		// Re-check in case another goroutine filled the cache.
		fields, err := c.client.HGetAll(ctx, key).Result()
		if err == nil && len(fields) > 0 {
			return buildQuizFromCacheAny(quizID, fields)
		}

		quiz, err := c.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}

		c.fill(ctx, key, quiz)
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (c *ScoringCache) fill(ctx context.Context, key string, quiz domain.Quiz) {
	meta, err := json.Marshal(cachedMeta{
		CompletionBonus: quiz.CompletionBonus,
		PassingScore:    quiz.PassingScore,
		Sport:           quiz.Sport,
	})
	if err != nil {
		return
	}

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, "meta", meta)
	for _, q := range quiz.Questions {
		encoded, err := json.Marshal(cachedQuestion{
			Difficulty:       q.Difficulty,
			TimeLimitSeconds: q.TimeLimitSeconds,
			Topic:            q.Topic,
			CorrectOptionID:  q.CorrectOptionID(),
		})
		if err != nil {
			continue
		}
		pipe.HSet(ctx, key, "q:"+q.ID, encoded)
	}
	if ttl := c.ttlWithJitter(); ttl > 0 {
		pipe.Expire(ctx, key, ttl)
	}
	// Cache writes are best effort.
	_, _ = pipe.Exec(ctx)
}

func (c *ScoringCache) key(quizID string) string {
	return "quiz:" + quizID + ":scoring"
}

func (c *ScoringCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	c.mu.Lock()
	jitter := c.rnd.Int63n(jitterMax + 1)
	c.mu.Unlock()
	return c.ttl + time.Duration(jitter)
}

func buildQuizFromCacheAny(quizID string, fields map[string]string) (interface{}, error) {
	return buildQuizFromCache(quizID, fields)
}

// buildQuizFromCache reconstructs the lightweight scoring view: each question
// carries only its correct option.
func buildQuizFromCache(quizID string, fields map[string]string) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	if raw, ok := fields["meta"]; ok {
		var meta cachedMeta
		if err := json.Unmarshal([]byte(raw), &meta); err != nil {
			return domain.Quiz{}, fmt.Errorf("decode cached quiz meta: %w", err)
		}
		quiz.CompletionBonus = meta.CompletionBonus
		quiz.PassingScore = meta.PassingScore
		quiz.Sport = meta.Sport
	}
	for field, raw := range fields {
		questionID, ok := strings.CutPrefix(field, "q:")
		if !ok {
			continue
		}
		var cached cachedQuestion
		if err := json.Unmarshal([]byte(raw), &cached); err != nil {
			return domain.Quiz{}, fmt.Errorf("decode cached question %s: %w", questionID, err)
		}
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:               questionID,
			Topic:            cached.Topic,
			Difficulty:       cached.Difficulty,
			TimeLimitSeconds: cached.TimeLimitSeconds,
			Options: []domain.Option{
				{ID: cached.CorrectOptionID, Correct: true},
			},
		})
	}
	return quiz, nil
}
