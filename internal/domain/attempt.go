package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// Attempt is one user's run through a quiz's selected questions.
// CompletedAt transitions nil -> non-nil exactly once; the conditional update
// in the store enforces that.
type Attempt struct {
	bun.BaseModel `bun:"table:attempts,alias:a"`

	ID                  string     `bun:"id,pk" json:"id"`
	QuizID              string     `bun:"quiz_id,notnull" json:"quizId"`
	UserID              string     `bun:"user_id,notnull" json:"userId"`
	StartedAt           time.Time  `bun:"started_at,notnull" json:"startedAt"`
	CompletedAt         *time.Time `bun:"completed_at" json:"completedAt,omitempty"`
	Score               float64    `bun:"score" json:"score"`
	CorrectAnswers      int        `bun:"correct_answers" json:"correctAnswers"`
	TotalQuestions      int        `bun:"total_questions" json:"totalQuestions"`
	TotalPoints         int        `bun:"total_points" json:"totalPoints"`
	Passed              bool       `bun:"passed" json:"passed"`
	AverageResponseTime float64    `bun:"average_response_time" json:"averageResponseTime"`
	TotalTimeSpent      int        `bun:"total_time_spent" json:"totalTimeSpent"`
	IsPracticeMode      bool       `bun:"is_practice_mode" json:"isPracticeMode"`
}

// IsCompleted reports whether the attempt reached its terminal state.
func (a *Attempt) IsCompleted() bool {
	return a.CompletedAt != nil
}

// AnswerRecord is one scored answer within an attempt, unique per
// (attemptId, questionId). Duplicate inserts are dropped, never overwritten.
type AnswerRecord struct {
	bun.BaseModel `bun:"table:answer_records,alias:ar"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	AttemptID    string    `bun:"attempt_id,notnull" json:"attemptId"`
	QuestionID   string    `bun:"question_id,notnull" json:"questionId"`
	AnswerID     *string   `bun:"answer_id" json:"answerId,omitempty"`
	IsCorrect    bool      `bun:"is_correct" json:"isCorrect"`
	WasSkipped   bool      `bun:"was_skipped" json:"wasSkipped"`
	TimeSpent    int       `bun:"time_spent" json:"timeSpent"`
	BasePoints   int       `bun:"base_points" json:"basePoints"`
	TimeBonus    int       `bun:"time_bonus" json:"timeBonus"`
	StreakBonus  int       `bun:"streak_bonus" json:"streakBonus"`
	TotalPoints  int       `bun:"total_points" json:"totalPoints"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}

// SubmittedAnswer is one element of the completion request batch.
type SubmittedAnswer struct {
	QuestionID string  `json:"questionId"`
	AnswerID   *string `json:"answerId"`
	TimeSpent  int     `json:"timeSpent"`
}

// BonusStatus reports what happened to the quiz completion bonus.
type BonusStatus string

const (
	BonusAwarded  BonusStatus = "awarded"
	BonusPractice BonusStatus = "practice"
	BonusNone     BonusStatus = "none"
)

// CompletionResult is the caller-visible outcome of finalizing an attempt.
type CompletionResult struct {
	AttemptID   string      `json:"attemptId"`
	QuizID      string      `json:"quizId"`
	Score       float64     `json:"score"`
	Passed      bool        `json:"passed"`
	BonusStatus BonusStatus `json:"bonusStatus"`
}
