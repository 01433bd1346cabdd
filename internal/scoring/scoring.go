// Package scoring holds the pure quiz scoring formulas. Everything here is
// deterministic and side-effect free; persistence and orchestration live in app.
package scoring

import (
	"math"

	"quiz-progression-service/internal/domain"
)

// Balance constants. These materially affect game balance; change them only
// together with a rebalance of the badge and level catalogs.
const (
	// MinTimeLimitSeconds floors every configured time limit so degenerate
	// content (0s or negative limits) cannot zero out question weights.
	MinTimeLimitSeconds = 5
	// FloorPortion is the fraction of a question's max points guaranteed for
	// any correct answer, even one given at the time limit.
	FloorPortion = 0.2
)

// DifficultyWeight returns the configured multiplier per difficulty tier.
// Unknown difficulties weigh zero and are excluded from scoring.
func DifficultyWeight(d domain.Difficulty) float64 {
	switch d {
	case domain.DifficultyEasy:
		return 1
	case domain.DifficultyMedium:
		return 2
	case domain.DifficultyHard:
		return 3
	case domain.DifficultyExpert:
		return 4
	default:
		return 0
	}
}

// ComputeQuizScale translates a quiz's fixed completion-bonus pool into a
// per-weight-unit point factor. Authors set one knob (the bonus) and the
// scale normalizes it over the question count and difficulty mix.
// Returns 0 when the bonus or the summed weights are not positive.
func ComputeQuizScale(completionBonus int, questions []domain.QuestionScoringConfig) float64 {
	if completionBonus <= 0 {
		return 0
	}
	sum := 0.0
	for _, q := range questions {
		w := DifficultyWeight(q.Difficulty)
		if w <= 0 {
			continue
		}
		sum += w * float64(effectiveLimit(q.TimeLimitSeconds))
	}
	if sum <= 0 {
		return 0
	}
	return float64(completionBonus) / sum
}

// ComputeQuestionScore returns the rounded points for one answer.
// Zero for incorrect answers, answers over the effective time limit, and
// questions whose weight or scale is not positive. Otherwise the max points
// (scale * weight * limit) decay quadratically with response time, with
// FloorPortion of the max guaranteed at the limit.
func ComputeQuestionScore(isCorrect bool, responseTime, timeLimit int, d domain.Difficulty, scale float64) int {
	if !isCorrect || scale <= 0 {
		return 0
	}
	w := DifficultyWeight(d)
	if w <= 0 {
		return 0
	}
	limit := effectiveLimit(timeLimit)
	if responseTime > limit {
		return 0
	}
	t := float64(responseTime)
	if t < 0 {
		t = 0
	}
	l := float64(limit)
	pMax := scale * w * l
	timeFactor := (1 - t/l) * (1 - t/l)
	factor := FloorPortion + (1-FloorPortion)*timeFactor
	return int(math.Round(pMax * factor))
}

// ScorePercentage is the attempt-level percentage score, 0 when the attempt
// has no questions.
func ScorePercentage(correctAnswers, totalQuestions int) float64 {
	if totalQuestions <= 0 {
		return 0
	}
	return float64(correctAnswers) / float64(totalQuestions) * 100
}

// EffectiveTimeLimit is the configured limit floored at MinTimeLimitSeconds,
// the limit the scoring formulas actually apply.
func EffectiveTimeLimit(timeLimit int) int {
	return effectiveLimit(timeLimit)
}

func effectiveLimit(timeLimit int) int {
	if timeLimit < MinTimeLimitSeconds {
		return MinTimeLimitSeconds
	}
	return timeLimit
}
