package domain

// Difficulty buckets configured per question by content authors.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "EASY"
	DifficultyMedium Difficulty = "MEDIUM"
	DifficultyHard   Difficulty = "HARD"
	DifficultyExpert Difficulty = "EXPERT"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question is the read view of content-subsystem data this core consumes:
// correctness, topic, difficulty and the configured time limit.
type Question struct {
	ID               string     `json:"id"`
	Prompt           string     `json:"prompt"`
	Topic            string     `json:"topic"`
	Sport            string     `json:"sport"`
	Difficulty       Difficulty `json:"difficulty"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"`
	Options          []Option   `json:"options"`
}

// Quiz is the content view of a quiz plus its scoring knobs.
type Quiz struct {
	ID              string     `json:"id"`
	Sport           string     `json:"sport"`
	CompletionBonus int        `json:"completionBonus"`
	PassingScore    float64    `json:"passingScore"`
	Questions       []Question `json:"questions"`
}

// CorrectOptionID returns the id of the question's correct option, or "".
func (q Question) CorrectOptionID() string {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt.ID
		}
	}
	return ""
}

// QuestionByID finds a question in the quiz's selected set.
func (qz Quiz) QuestionByID(id string) (Question, bool) {
	for _, q := range qz.Questions {
		if q.ID == id {
			return q, true
		}
	}
	return Question{}, false
}

// QuestionScoringConfig is the scoring-relevant slice of one question.
type QuestionScoringConfig struct {
	QuestionID       string     `json:"questionId"`
	Difficulty       Difficulty `json:"difficulty"`
	TimeLimitSeconds int        `json:"timeLimitSeconds"`
}

// QuizScoringConfig carries everything the scoring engine needs for one quiz.
type QuizScoringConfig struct {
	QuizID          string                  `json:"quizId"`
	CompletionBonus int                     `json:"completionBonus"`
	PassingScore    float64                 `json:"passingScore"`
	Questions       []QuestionScoringConfig `json:"questions"`
}

// ScoringConfig derives the scoring view from full quiz content.
func (qz Quiz) ScoringConfig() QuizScoringConfig {
	cfg := QuizScoringConfig{
		QuizID:          qz.ID,
		CompletionBonus: qz.CompletionBonus,
		PassingScore:    qz.PassingScore,
	}
	for _, q := range qz.Questions {
		cfg.Questions = append(cfg.Questions, QuestionScoringConfig{
			QuestionID:       q.ID,
			Difficulty:       q.Difficulty,
			TimeLimitSeconds: q.TimeLimitSeconds,
		})
	}
	return cfg
}
