package achievement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"loyaltyLedgerAPI/internal/tier"
)

func TestSatisfiedThresholdKinds(t *testing.T) {
	snap := Snapshot{
		LongestStreak:        7,
		SocialShares:         3,
		ReferralSignups:      1,
		Submissions:          0,
		LifetimeRevenueCents: 49_99,
		FeedbackCount:        10,
	}

	assert.True(t, Satisfied(Criteria{Kind: CriteriaCheckInStreak, Threshold: 7}, snap))
	assert.False(t, Satisfied(Criteria{Kind: CriteriaCheckInStreak, Threshold: 8}, snap))

	assert.True(t, Satisfied(Criteria{Kind: CriteriaSocialShares, Threshold: 3}, snap))
	assert.False(t, Satisfied(Criteria{Kind: CriteriaReferrals, Threshold: 2}, snap))

	assert.False(t, Satisfied(Criteria{Kind: CriteriaFirstSubmission}, snap))
	snap.Submissions = 1
	assert.True(t, Satisfied(Criteria{Kind: CriteriaFirstSubmission}, snap))

	assert.False(t, Satisfied(Criteria{Kind: CriteriaLifetimeRevenue, Threshold: 50_00}, snap))
	assert.True(t, Satisfied(Criteria{Kind: CriteriaFeedbackCount, Threshold: 10}, snap))
}

func TestSatisfiedBooleanKinds(t *testing.T) {
	snap := Snapshot{ProfileComplete: true}
	assert.True(t, Satisfied(Criteria{Kind: CriteriaProfileComplete}, snap))
	assert.False(t, Satisfied(Criteria{Kind: CriteriaOnboardingComplete}, snap))
}

func TestSatisfiedAccountTier(t *testing.T) {
	snap := Snapshot{AccountTier: tier.Gold}
	assert.True(t, Satisfied(Criteria{Kind: CriteriaAccountTier, MinTier: tier.Silver}, snap))
	assert.True(t, Satisfied(Criteria{Kind: CriteriaAccountTier, MinTier: tier.Gold}, snap))
	assert.False(t, Satisfied(Criteria{Kind: CriteriaAccountTier, MinTier: tier.Platinum}, snap))
}

func TestSatisfiedUnknownKind(t *testing.T) {
	// A criteria kind from a newer catalog never unlocks on this build.
	snap := Snapshot{LongestStreak: 100}
	assert.False(t, Satisfied(Criteria{Kind: CriteriaKind("moon_landing"), Threshold: 1}, snap))
}

func TestVisibleTo(t *testing.T) {
	open := Achievement{Name: "Week One"}
	assert.True(t, open.VisibleTo("member"))
	assert.True(t, open.VisibleTo("producer"))

	gated := Achievement{Name: "First Upload", Criteria: Criteria{Kind: CriteriaFirstSubmission, RequiredRole: "producer"}}
	assert.True(t, gated.VisibleTo("producer"))
	assert.False(t, gated.VisibleTo("member"))
}
