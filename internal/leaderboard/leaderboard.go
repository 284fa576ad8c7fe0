package leaderboard

import (
	"github.com/google/uuid"

	"loyaltyLedgerAPI/internal/tier"
)

type LeaderboardEntry struct {
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	Username      string    `json:"username" db:"username"`
	ImageURL      *string   `json:"image_url" db:"image_url"`
	Points        int       `json:"points" db:"points"`
	TotalEarned   int       `json:"total_earned" db:"total_earned"`
	Tier          tier.Tier `json:"tier" db:"tier"`
	CurrentStreak int       `json:"current_streak" db:"current_streak"`
	Rank          int       `json:"rank" db:"rank"`
}

type Leaderboard struct {
	Entries      []*LeaderboardEntry `json:"entries"`
	UserPosition *LeaderboardEntry   `json:"user_position"`
	TotalUsers   int                 `json:"total_users"`
}
