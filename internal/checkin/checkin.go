package checkin

import (
	"time"

	"github.com/google/uuid"
)

// Point values for daily check-ins. The weekly and monthly bonuses are
// mutually exclusive: a single check-in pays out at most one bonus.
const (
	BasePoints    = 10
	WeeklyBonus   = 50
	MonthlyBonus  = 200
	WeeklyDay     = 7
	MonthlyDay    = 30
)

// CheckIn is one record per (user, UTC calendar day). The uniqueness
// constraint on that pair is what makes retries and concurrent
// check-ins idempotent.
type CheckIn struct {
	ID           uuid.UUID `json:"id" db:"id"`
	UserID       uuid.UUID `json:"user_id" db:"user_id"`
	Day          time.Time `json:"day" db:"day"`
	StreakDay    int       `json:"streak_day" db:"streak_day"`
	PointsEarned int       `json:"points_earned" db:"points_earned"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Result is returned from the check-in operation. Exactly one of the
// two shapes applies: AlreadyCheckedIn with the existing record, or a
// successful check-in with the points earned today.
type Result struct {
	AlreadyCheckedIn bool      `json:"already_checked_in"`
	Existing         *CheckIn  `json:"existing,omitempty"`
	PointsEarned     int       `json:"points_earned,omitempty"`
	BonusEarned      int       `json:"bonus_earned,omitempty"`
	StreakDay        int       `json:"streak_day,omitempty"`
	LongestStreak    int       `json:"longest_streak,omitempty"`
}

// DateUTC truncates a moment to its UTC calendar date. All day-scoped
// logic in the ledger uses this boundary.
func DateUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// NextStreak computes the streak length for a check-in on day `today`
// given the previous check-in date. A gap of exactly one day extends
// the streak; anything else resets it to 1.
func NextStreak(lastCheckIn *time.Time, today time.Time, currentStreak int) int {
	if lastCheckIn == nil {
		return 1
	}
	yesterday := DateUTC(today).AddDate(0, 0, -1)
	if DateUTC(*lastCheckIn).Equal(yesterday) {
		return currentStreak + 1
	}
	return 1
}

// BonusFor returns the milestone bonus owed at a given streak length,
// and the milestone day it corresponds to. Zero means no bonus.
func BonusFor(streakDay int) (points int, milestone int) {
	switch streakDay {
	case WeeklyDay:
		return WeeklyBonus, WeeklyDay
	case MonthlyDay:
		return MonthlyBonus, MonthlyDay
	default:
		return 0, 0
	}
}
