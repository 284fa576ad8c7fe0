package stats

import "loyaltyLedgerAPI/internal/tier"

// UserStats is the dashboard summary for one user.
type UserStats struct {
	Points            int       `json:"points"`
	TotalEarned       int       `json:"total_earned"`
	TotalSpent        int       `json:"total_spent"`
	Tier              tier.Tier `json:"tier"`
	NextTier          tier.Tier `json:"next_tier,omitempty"`
	PointsToNextTier  int       `json:"points_to_next_tier,omitempty"`
	CheckedInToday    bool      `json:"checked_in_today"`
	CurrentStreak     int       `json:"current_streak"`
	LongestStreak     int       `json:"longest_streak"`
	AchievementsCount int       `json:"achievements_count"`
	ReferralsCount    int       `json:"referrals_count"`
	RedemptionsCount  int       `json:"redemptions_count"`
	Rank              int       `json:"rank"`
}

// DailyPoints is one day of the admin KPI series.
type DailyPoints struct {
	Day     string `json:"day"` // YYYY-MM-DD
	Awarded int    `json:"awarded" db:"awarded"`
	Spent   int    `json:"spent" db:"spent"`
}

// AdminKPIs is the read-only aggregate over ledger events. It is a
// consumer of the event log, never a writer.
type AdminKPIs struct {
	TotalUsers          int            `json:"total_users"`
	TotalPointsAwarded  int            `json:"total_points_awarded"`
	TotalPointsSpent    int            `json:"total_points_spent"`
	ActiveStreaks       int            `json:"active_streaks"`
	PointsByDay         []DailyPoints  `json:"points_by_day"`
	EventTypeBreakdown  map[string]int `json:"event_type_breakdown"`
	TierDistribution    map[string]int `json:"tier_distribution"`
	RedemptionsByStatus map[string]int `json:"redemptions_by_status"`
}
