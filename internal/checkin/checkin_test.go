package checkin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextStreakFirstCheckIn(t *testing.T) {
	assert.Equal(t, 1, NextStreak(nil, date(2025, 3, 10), 0))
}

func TestNextStreakConsecutiveDay(t *testing.T) {
	last := date(2025, 3, 9)
	assert.Equal(t, 5, NextStreak(&last, date(2025, 3, 10), 4))
}

func TestNextStreakMissedDayResets(t *testing.T) {
	last := date(2025, 3, 7)
	assert.Equal(t, 1, NextStreak(&last, date(2025, 3, 10), 12))
}

func TestNextStreakIgnoresTimeOfDay(t *testing.T) {
	last := time.Date(2025, 3, 9, 23, 50, 0, 0, time.UTC)
	now := time.Date(2025, 3, 10, 0, 5, 0, 0, time.UTC)
	assert.Equal(t, 2, NextStreak(&last, now, 1))
}

func TestDateUTCNormalizesZones(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 08:30 on March 11 in UTC+9 is still March 10 in UTC.
	local := time.Date(2025, 3, 11, 8, 30, 0, 0, loc)
	assert.Equal(t, date(2025, 3, 10), DateUTC(local))
}

func TestBonusFor(t *testing.T) {
	points, milestone := BonusFor(7)
	assert.Equal(t, WeeklyBonus, points)
	assert.Equal(t, 7, milestone)

	points, milestone = BonusFor(30)
	assert.Equal(t, MonthlyBonus, points)
	assert.Equal(t, 30, milestone)

	// Only one bonus per check-in, and only on the milestone day itself.
	points, _ = BonusFor(14)
	assert.Zero(t, points)
	points, _ = BonusFor(31)
	assert.Zero(t, points)
	points, _ = BonusFor(1)
	assert.Zero(t, points)
}
