package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

//go:embed 0002_gamification.sql
var gamificationSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(gamificationSQL)
			return err
		},
		func(ctx context.Context, db *bun.DB) error {
			_, err := db.Exec(`DROP TABLE IF EXISTS question_reviews, challenge_results, friendships,
				notifications, user_badges, badges, user_tier_history, user_level_history,
				tier_definitions, level_definitions, user_progress, leaderboard_entries`)
			return err
		},
	)
}
