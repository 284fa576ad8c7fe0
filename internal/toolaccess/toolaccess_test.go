package toolaccess

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var now = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

func expiring(at time.Time) *time.Time { return &at }

func TestResolveSubscriptionWins(t *testing.T) {
	subs := []Grant{{ToolID: "mastering-suite", Source: SourceSubscription}}
	reds := []Grant{{ToolID: "mastering-suite", Source: SourceRedemption, ExpiresAt: expiring(now.AddDate(0, 1, 0))}}

	access := Resolve("mastering-suite", subs, reds, now)
	assert.True(t, access.Granted)
	assert.Equal(t, SourceSubscription, access.Source)
	assert.Nil(t, access.ExpiresAt)
}

func TestResolveFallsBackToRedemption(t *testing.T) {
	reds := []Grant{{ToolID: "stem-splitter", Source: SourceRedemption, ExpiresAt: expiring(now.AddDate(0, 1, 0))}}

	access := Resolve("stem-splitter", nil, reds, now)
	assert.True(t, access.Granted)
	assert.Equal(t, SourceRedemption, access.Source)
}

func TestResolveExpiredGrantIsInactive(t *testing.T) {
	// Expiry is decided by the clock, regardless of stored flags.
	subs := []Grant{{ToolID: "stem-splitter", Source: SourceSubscription, ExpiresAt: expiring(now.Add(-time.Hour))}}
	reds := []Grant{{ToolID: "stem-splitter", Source: SourceRedemption, ExpiresAt: expiring(now.Add(-time.Minute))}}

	access := Resolve("stem-splitter", subs, reds, now)
	assert.False(t, access.Granted)
}

func TestResolveNoGrants(t *testing.T) {
	access := Resolve("sample-vault", nil, nil, now)
	assert.False(t, access.Granted)
}

func TestMergePrecedenceAndExpiry(t *testing.T) {
	subs := []Grant{
		{ToolID: "mastering-suite", Source: SourceSubscription},
		{ToolID: "sample-vault", Source: SourceSubscription, ExpiresAt: expiring(now.Add(-time.Hour))},
	}
	reds := []Grant{
		{ToolID: "mastering-suite", Source: SourceRedemption, ExpiresAt: expiring(now.AddDate(0, 1, 0))},
		{ToolID: "stem-splitter", Source: SourceRedemption, ExpiresAt: expiring(now.AddDate(0, 1, 0))},
	}

	merged := Merge(subs, reds, now)
	assert.Len(t, merged, 2)
	assert.Equal(t, SourceSubscription, merged["mastering-suite"].Source)
	assert.Equal(t, SourceRedemption, merged["stem-splitter"].Source)
	_, ok := merged["sample-vault"]
	assert.False(t, ok)
}
