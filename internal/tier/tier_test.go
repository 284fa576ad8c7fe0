package tier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromTotalEarned(t *testing.T) {
	assert.Equal(t, Bronze, FromTotalEarned(0))
	assert.Equal(t, Bronze, FromTotalEarned(499))
	assert.Equal(t, Silver, FromTotalEarned(500))
	assert.Equal(t, Silver, FromTotalEarned(1999))
	assert.Equal(t, Gold, FromTotalEarned(2000))
	assert.Equal(t, Platinum, FromTotalEarned(5000))
	assert.Equal(t, Diamond, FromTotalEarned(15000))
	assert.Equal(t, Diamond, FromTotalEarned(1000000))
}

func TestFromTotalEarnedMonotonic(t *testing.T) {
	prev := FromTotalEarned(0)
	for earned := 0; earned <= 20000; earned += 7 {
		cur := FromTotalEarned(earned)
		assert.GreaterOrEqual(t, Rank(cur), Rank(prev), "tier dropped at totalEarned=%d", earned)
		prev = cur
	}
}

func TestAtLeast(t *testing.T) {
	assert.True(t, AtLeast(Gold, Silver))
	assert.True(t, AtLeast(Gold, Gold))
	assert.False(t, AtLeast(Silver, Gold))
	assert.True(t, AtLeast(Diamond, Bronze))

	// A corrupt label never satisfies a restriction.
	assert.False(t, AtLeast(Tier("mythril"), Bronze))
}

func TestNext(t *testing.T) {
	next, needed, ok := Next(0)
	assert.True(t, ok)
	assert.Equal(t, Silver, next)
	assert.Equal(t, 500, needed)

	next, needed, ok = Next(4990)
	assert.True(t, ok)
	assert.Equal(t, Platinum, next)
	assert.Equal(t, 10, needed)

	_, _, ok = Next(15000)
	assert.False(t, ok)
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(Bronze))
	assert.True(t, Valid(Diamond))
	assert.False(t, Valid(Tier("")))
	assert.False(t, Valid(Tier("mythril")))
}
