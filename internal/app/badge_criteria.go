package app

import (
	"quiz-progression-service/internal/domain"
)

// FactCategory identifies one batch of aggregate facts a badge predicate can
// read. Fetch cost is proportional to the distinct categories needed by the
// not-yet-earned badges, not to catalog size.
type FactCategory int

const (
	FactAttempts FactCategory = iota
	FactPerfect
	FactStreak
	FactFriends
	FactChallenges
	FactReviews
	FactSpeed
	FactSportAttempts
	FactTopicCorrect
	FactTimeOfDay
	FactWeekend
	FactComeback
)

// Time-of-day windows for the night-owl and early-bird badges, local hours.
const (
	nightOwlFromHour  = 22
	nightOwlToHour    = 5 // exclusive, wraps midnight
	earlyBirdFromHour = 5
	earlyBirdToHour   = 8 // exclusive
)

// FactBundle is the shared in-memory snapshot every remaining predicate is
// evaluated against. Only the fields for fetched categories are populated.
type FactBundle struct {
	CompletedAttempts    int
	HasPerfectScore      bool
	CurrentStreak        int
	FriendCount          int
	ChallengeWins        int
	ReviewCount          int
	FastestCorrectAnswer int // seconds; -1 when the user has no correct answers
	AttemptsBySport      map[string]int
	CorrectByTopic       map[string]int
	AttemptsByHour       map[int]int
	WeekendAttempts      int
	HasComeback          bool
}

type badgeCriterion struct {
	facts     []FactCategory
	qualifies func(badge domain.Badge, facts *FactBundle) bool
}

// criteria is the closed dispatch table keyed by badge kind. Badge.Threshold
// and Badge.Scope parameterize each predicate.
var criteria = map[domain.BadgeKind]badgeCriterion{
	domain.BadgeAttemptCount: {
		facts: []FactCategory{FactAttempts},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.CompletedAttempts >= b.Threshold
		},
	},
	domain.BadgePerfectScore: {
		facts: []FactCategory{FactPerfect},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.HasPerfectScore
		},
	},
	domain.BadgeStreakDays: {
		facts: []FactCategory{FactStreak},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.CurrentStreak >= b.Threshold
		},
	},
	domain.BadgeFriendCount: {
		facts: []FactCategory{FactFriends},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.FriendCount >= b.Threshold
		},
	},
	domain.BadgeChallengeWins: {
		facts: []FactCategory{FactChallenges},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.ChallengeWins >= b.Threshold
		},
	},
	domain.BadgeReviewCount: {
		facts: []FactCategory{FactReviews},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.ReviewCount >= b.Threshold
		},
	},
	domain.BadgeFastestAnswer: {
		facts: []FactCategory{FactSpeed},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.FastestCorrectAnswer >= 0 && f.FastestCorrectAnswer <= b.Threshold
		},
	},
	domain.BadgeSportAttempts: {
		facts: []FactCategory{FactSportAttempts},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.AttemptsBySport[b.Scope] >= b.Threshold
		},
	},
	domain.BadgeTopicCorrect: {
		facts: []FactCategory{FactTopicCorrect},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.CorrectByTopic[b.Scope] >= b.Threshold
		},
	},
	domain.BadgeNightOwl: {
		facts: []FactCategory{FactTimeOfDay},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return countHours(f.AttemptsByHour, nightOwlFromHour, nightOwlToHour) >= b.Threshold
		},
	},
	domain.BadgeEarlyBird: {
		facts: []FactCategory{FactTimeOfDay},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return countHours(f.AttemptsByHour, earlyBirdFromHour, earlyBirdToHour) >= b.Threshold
		},
	},
	domain.BadgeWeekendPlayer: {
		facts: []FactCategory{FactWeekend},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.WeekendAttempts >= b.Threshold
		},
	},
	domain.BadgeComeback: {
		facts: []FactCategory{FactComeback},
		qualifies: func(b domain.Badge, f *FactBundle) bool {
			return f.HasComeback
		},
	},
}

// countHours sums a wrap-around [from, to) window of the hour histogram.
func countHours(byHour map[int]int, from, to int) int {
	total := 0
	for h, n := range byHour {
		if from <= to {
			if h >= from && h < to {
				total += n
			}
		} else if h >= from || h < to {
			total += n
		}
	}
	return total
}

// HasComebackPattern reports whether any of the attempts qualifies: scanning
// its answers chronologically, once two incorrect non-skipped answers have
// accumulated, a later correct non-skipped answer makes the attempt qualify.
func HasComebackPattern(attempts []AttemptAnswers) bool {
	for _, aa := range attempts {
		misses := 0
		for _, ans := range aa.Answers {
			if ans.WasSkipped {
				continue
			}
			if !ans.IsCorrect {
				misses++
				continue
			}
			if misses >= 2 {
				return true
			}
		}
	}
	return false
}
