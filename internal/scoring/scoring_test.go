package scoring

import (
	"math"
	"testing"

	"quiz-progression-service/internal/domain"
)

func TestComputeQuizScaleNormalizesBonus(t *testing.T) {
	questions := []domain.QuestionScoringConfig{
		{QuestionID: "q1", Difficulty: domain.DifficultyHard, TimeLimitSeconds: 60},
		{QuestionID: "q2", Difficulty: domain.DifficultyHard, TimeLimitSeconds: 60},
	}
	scale := ComputeQuizScale(100, questions)
	// sumWeights = 3*60 + 3*60 = 360
	if math.Abs(scale*360-100) > 1e-9 {
		t.Fatalf("expected scale*sumWeights ~= 100, got %f", scale*360)
	}
}

func TestComputeQuizScaleZeroCases(t *testing.T) {
	questions := []domain.QuestionScoringConfig{
		{QuestionID: "q1", Difficulty: domain.DifficultyEasy, TimeLimitSeconds: 30},
	}
	if s := ComputeQuizScale(0, questions); s != 0 {
		t.Fatalf("expected 0 for zero bonus, got %f", s)
	}
	if s := ComputeQuizScale(-5, questions); s != 0 {
		t.Fatalf("expected 0 for negative bonus, got %f", s)
	}
	unknown := []domain.QuestionScoringConfig{
		{QuestionID: "q1", Difficulty: "LEGENDARY", TimeLimitSeconds: 30},
	}
	if s := ComputeQuizScale(100, unknown); s != 0 {
		t.Fatalf("expected 0 when all weights are zero, got %f", s)
	}
	if s := ComputeQuizScale(100, nil); s != 0 {
		t.Fatalf("expected 0 for empty question set, got %f", s)
	}
}

func TestComputeQuestionScoreZeroCases(t *testing.T) {
	if p := ComputeQuestionScore(false, 0, 60, domain.DifficultyHard, 0.5); p != 0 {
		t.Fatalf("incorrect answer must score 0, got %d", p)
	}
	if p := ComputeQuestionScore(true, 61, 60, domain.DifficultyHard, 0.5); p != 0 {
		t.Fatalf("over-limit answer must score 0, got %d", p)
	}
	if p := ComputeQuestionScore(true, 10, 60, "LEGENDARY", 0.5); p != 0 {
		t.Fatalf("unknown difficulty must score 0, got %d", p)
	}
	if p := ComputeQuestionScore(true, 10, 60, domain.DifficultyHard, 0); p != 0 {
		t.Fatalf("zero scale must score 0, got %d", p)
	}
}

func TestComputeQuestionScoreNonIncreasingInTime(t *testing.T) {
	const limit = 60
	scale := 0.3
	prev := math.MaxInt
	for rt := 0; rt <= limit; rt++ {
		p := ComputeQuestionScore(true, rt, limit, domain.DifficultyMedium, scale)
		if p > prev {
			t.Fatalf("score increased from %d to %d at t=%d", prev, p, rt)
		}
		prev = p
	}
}

func TestComputeQuestionScoreFloorAtLimit(t *testing.T) {
	const limit = 60
	scale := 0.5
	weight := DifficultyWeight(domain.DifficultyHard)
	want := int(math.Round(scale * weight * limit * FloorPortion))
	got := ComputeQuestionScore(true, limit, limit, domain.DifficultyHard, scale)
	if got != want {
		t.Fatalf("expected floor score %d at t=limit, got %d", want, got)
	}
	if got == 0 {
		t.Fatalf("correct answer at the limit must never score zero")
	}
}

func TestComputeQuestionScoreFlooredTimeLimit(t *testing.T) {
	// Configured 0s limit is floored to MinTimeLimitSeconds, so an answer at
	// t=3 is still within the window.
	p := ComputeQuestionScore(true, 3, 0, domain.DifficultyEasy, 1.0)
	if p <= 0 {
		t.Fatalf("expected positive score under floored limit, got %d", p)
	}
}

func TestHardQuizScenario(t *testing.T) {
	// completionBonus=100, two HARD 60s questions: scale ~= 0.278,
	// instant correct answers earn ~50 each, 100 total.
	questions := []domain.QuestionScoringConfig{
		{QuestionID: "q1", Difficulty: domain.DifficultyHard, TimeLimitSeconds: 60},
		{QuestionID: "q2", Difficulty: domain.DifficultyHard, TimeLimitSeconds: 60},
	}
	scale := ComputeQuizScale(100, questions)
	total := 0
	for _, q := range questions {
		total += ComputeQuestionScore(true, 0, q.TimeLimitSeconds, q.Difficulty, scale)
	}
	if total != 100 {
		t.Fatalf("expected 100 total points, got %d", total)
	}
}

func TestScorePercentageBoundary(t *testing.T) {
	got := ScorePercentage(7, 10)
	if got != 70.0 {
		t.Fatalf("expected 70.0, got %f", got)
	}
	if ScorePercentage(0, 0) != 0 {
		t.Fatalf("expected 0 for empty attempt")
	}
}
