package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// LeaderboardEntry is the best-ever attempt summary for one user on one quiz,
// unique per (quizId, userId). Rank is derived at read time and never written.
type LeaderboardEntry struct {
	bun.BaseModel `bun:"table:leaderboard_entries,alias:le"`

	ID                  int64     `bun:"id,pk,autoincrement" json:"id"`
	QuizID              string    `bun:"quiz_id,notnull" json:"quizId"`
	UserID              string    `bun:"user_id,notnull" json:"userId"`
	BestScore           float64   `bun:"best_score" json:"bestScore"`
	BestTime            int       `bun:"best_time" json:"bestTime"`
	BestPoints          int       `bun:"best_points" json:"bestPoints"`
	AverageResponseTime float64   `bun:"average_response_time" json:"averageResponseTime"`
	Attempts            int       `bun:"attempts" json:"attempts"`
	Rank                int       `bun:"rank,scanonly" json:"rank,omitempty"`
	UpdatedAt           time.Time `bun:"updated_at" json:"updatedAt"`
}

// LeaderboardSnapshot is a read-time ranked view of one quiz's leaderboard.
type LeaderboardSnapshot struct {
	QuizID    string             `json:"quizId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// UserProgress accumulates a user's points and daily streak.
// TotalPoints never decreases within this core's flow.
type UserProgress struct {
	bun.BaseModel `bun:"table:user_progress,alias:up"`

	UserID         string     `bun:"user_id,pk" json:"userId"`
	TotalPoints    int        `bun:"total_points" json:"totalPoints"`
	CurrentStreak  int        `bun:"current_streak" json:"currentStreak"`
	LongestStreak  int        `bun:"longest_streak" json:"longestStreak"`
	LastActiveDate *time.Time `bun:"last_active_date" json:"lastActiveDate,omitempty"`
	TierID         *int64     `bun:"tier_id" json:"tierId,omitempty"`
	UpdatedAt      time.Time  `bun:"updated_at" json:"updatedAt"`
}

// LevelDefinition is one step of the configured level curve.
type LevelDefinition struct {
	bun.BaseModel `bun:"table:level_definitions,alias:ld"`

	Level          int  `bun:"level,pk" json:"level"`
	PointsRequired int  `bun:"points_required,notnull" json:"pointsRequired"`
	IsActive       bool `bun:"is_active" json:"isActive"`
}

// TierDefinition is a contiguous, non-overlapping [StartLevel, EndLevel] band.
type TierDefinition struct {
	bun.BaseModel `bun:"table:tier_definitions,alias:td"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	Name       string `bun:"name,notnull" json:"name"`
	StartLevel int    `bun:"start_level,notnull" json:"startLevel"`
	EndLevel   int    `bun:"end_level,notnull" json:"endLevel"`
	Order      int    `bun:"sort_order,notnull" json:"order"`
}

// Contains reports whether the band covers the given level.
func (t TierDefinition) Contains(level int) bool {
	return level >= t.StartLevel && level <= t.EndLevel
}

// UserLevelHistory is an append-only record of achieved levels.
type UserLevelHistory struct {
	bun.BaseModel `bun:"table:user_level_history,alias:ulh"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID     string    `bun:"user_id,notnull" json:"userId"`
	Level      int       `bun:"level,notnull" json:"level"`
	AchievedAt time.Time `bun:"achieved_at,notnull,default:current_timestamp" json:"achievedAt"`
}

// UserTierHistory is an append-only record of achieved tiers.
type UserTierHistory struct {
	bun.BaseModel `bun:"table:user_tier_history,alias:uth"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID     string    `bun:"user_id,notnull" json:"userId"`
	TierID     int64     `bun:"tier_id,notnull" json:"tierId"`
	AchievedAt time.Time `bun:"achieved_at,notnull,default:current_timestamp" json:"achievedAt"`
}

// ProgressionResult is the outcome of a progress recomputation.
type ProgressionResult struct {
	Level  int    `json:"level"`
	TierID *int64 `json:"tierId,omitempty"`
}

// BadgeKind is the closed enumeration of badge criteria.
type BadgeKind string

const (
	BadgeAttemptCount  BadgeKind = "attempt_count"
	BadgePerfectScore  BadgeKind = "perfect_score"
	BadgeStreakDays    BadgeKind = "streak_days"
	BadgeFriendCount   BadgeKind = "friend_count"
	BadgeChallengeWins BadgeKind = "challenge_wins"
	BadgeReviewCount   BadgeKind = "review_count"
	BadgeFastestAnswer BadgeKind = "fastest_answer"
	BadgeSportAttempts BadgeKind = "sport_attempts"
	BadgeTopicCorrect  BadgeKind = "topic_correct"
	BadgeNightOwl      BadgeKind = "night_owl"
	BadgeEarlyBird     BadgeKind = "early_bird"
	BadgeWeekendPlayer BadgeKind = "weekend_player"
	BadgeComeback      BadgeKind = "comeback"
)

// Badge is one catalog entry. Kind selects the predicate; Threshold and Scope
// are its parameters (Scope carries the sport or topic for scoped kinds).
type Badge struct {
	bun.BaseModel `bun:"table:badges,alias:b"`

	ID          int64     `bun:"id,pk,autoincrement" json:"id"`
	Name        string    `bun:"name,notnull,unique" json:"name"`
	Description string    `bun:"description" json:"description"`
	Kind        BadgeKind `bun:"kind,notnull" json:"kind"`
	Threshold   int       `bun:"threshold" json:"threshold"`
	Scope       string    `bun:"scope" json:"scope"`
}

// UserBadge marks a badge as earned, unique per (userId, badgeId).
type UserBadge struct {
	bun.BaseModel `bun:"table:user_badges,alias:ub"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	BadgeID   int64     `bun:"badge_id,notnull" json:"badgeId"`
	AwardedAt time.Time `bun:"awarded_at,notnull,default:current_timestamp" json:"awardedAt"`
}

// Notification kinds emitted by this core. Delivery is a separate subsystem.
const (
	NotificationLevelUp      = "level_up"
	NotificationTierUpgrade  = "tier_upgrade"
	NotificationBadgeAwarded = "badge_awarded"
)

// Notification is the abstract "create notification" record this core emits.
type Notification struct {
	bun.BaseModel `bun:"table:notifications,alias:n"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	Kind      string    `bun:"kind,notnull" json:"kind"`
	Reference string    `bun:"reference" json:"reference"`
	Body      string    `bun:"body" json:"body"`
	CreatedAt time.Time `bun:"created_at,notnull,default:current_timestamp" json:"createdAt"`
}
