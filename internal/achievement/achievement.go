package achievement

import (
	"time"

	"github.com/google/uuid"

	"loyaltyLedgerAPI/internal/tier"
)

// CriteriaKind tags the criteria variant. Evaluation switches
// exhaustively on this tag; kinds this build does not recognize are
// treated as never satisfied rather than as errors, so a newer catalog
// row cannot break an older evaluator.
type CriteriaKind string

const (
	CriteriaCheckInStreak      CriteriaKind = "check_in_streak"
	CriteriaSocialShares       CriteriaKind = "social_shares"
	CriteriaReferrals          CriteriaKind = "referrals"
	CriteriaProfileComplete    CriteriaKind = "profile_complete"
	CriteriaOnboardingComplete CriteriaKind = "onboarding_complete"
	CriteriaFirstSubmission    CriteriaKind = "first_submission"
	CriteriaLifetimeRevenue    CriteriaKind = "lifetime_revenue"
	CriteriaAccountTier        CriteriaKind = "account_tier"
	CriteriaFeedbackCount      CriteriaKind = "feedback_count"
)

// Criteria is the tagged variant stored on each achievement row. Only
// the parameters relevant to the kind are set.
type Criteria struct {
	Kind         CriteriaKind `json:"kind"`
	Threshold    int          `json:"threshold,omitempty"`     // days, counts, or revenue cents
	MinTier      tier.Tier    `json:"min_tier,omitempty"`      // account_tier only
	RequiredRole string       `json:"required_role,omitempty"` // hides the entry from other roles in listings
}

// Achievement is a catalog definition. Tier here is a rarity label
// (bronze/silver/gold) and is unrelated to the account tier.
type Achievement struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	Icon         string    `json:"icon" db:"icon"`
	Category     string    `json:"category" db:"category"`
	Tier         string    `json:"tier" db:"tier"`
	Criteria     Criteria  `json:"criteria" db:"criteria"`
	PointsReward int       `json:"points_reward" db:"points_reward"`
	BadgeID      *string   `json:"badge_id,omitempty" db:"badge_id"`
	BorderID     *string   `json:"border_id,omitempty" db:"border_id"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Unlock joins a user to an achievement. At most one row exists per
// (user, achievement); the database constraint is the idempotency guard.
type Unlock struct {
	ID            uuid.UUID `json:"id" db:"id"`
	UserID        uuid.UUID `json:"user_id" db:"user_id"`
	AchievementID uuid.UUID `json:"achievement_id" db:"achievement_id"`
	UnlockedAt    time.Time `json:"unlocked_at" db:"unlocked_at"`
}

type WithStatus struct {
	Achievement
	Unlocked   bool       `json:"unlocked"`
	UnlockedAt *time.Time `json:"unlocked_at,omitempty"`
}

// Snapshot is the read-only view of user state the evaluator runs
// against, gathered once per evaluation pass.
type Snapshot struct {
	CurrentStreak        int
	LongestStreak        int
	SocialShares         int
	ReferralSignups      int
	ProfileComplete      bool
	OnboardingComplete   bool
	Submissions          int
	LifetimeRevenueCents int
	AccountTier          tier.Tier
	FeedbackCount        int
}

// Satisfied evaluates one criteria variant against the snapshot.
func Satisfied(c Criteria, s Snapshot) bool {
	switch c.Kind {
	case CriteriaCheckInStreak:
		return s.LongestStreak >= c.Threshold
	case CriteriaSocialShares:
		return s.SocialShares >= c.Threshold
	case CriteriaReferrals:
		return s.ReferralSignups >= c.Threshold
	case CriteriaProfileComplete:
		return s.ProfileComplete
	case CriteriaOnboardingComplete:
		return s.OnboardingComplete
	case CriteriaFirstSubmission:
		return s.Submissions >= 1
	case CriteriaLifetimeRevenue:
		return s.LifetimeRevenueCents >= c.Threshold
	case CriteriaAccountTier:
		return tier.AtLeast(s.AccountTier, c.MinTier)
	case CriteriaFeedbackCount:
		return s.FeedbackCount >= c.Threshold
	default:
		return false
	}
}

// VisibleTo reports whether a catalog listing should include this
// achievement for a user with the given role. Unlock evaluation ignores
// this; it only shapes what the catalog shows.
func (a *Achievement) VisibleTo(role string) bool {
	return a.Criteria.RequiredRole == "" || a.Criteria.RequiredRole == role
}
