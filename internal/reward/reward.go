package reward

import (
	"time"

	"github.com/google/uuid"

	"loyaltyLedgerAPI/internal/tier"
)

// Type determines both the benefit semantics and the approval policy
// of a reward.
type Type string

const (
	TypeCommissionReduction Type = "commission_reduction"
	TypePayoutSpeed         Type = "payout_speed"
	TypeToolAccess          Type = "tool_access"
	TypeProfileFlair        Type = "profile_flair"
	TypePhysicalItem        Type = "physical_item"
	TypeCustom              Type = "custom"
)

type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusDenied   Status = "DENIED"
)

// Reward is a catalog entry. Inventory nil means unlimited; a finite
// inventory is decremented atomically on redemption and never goes
// negative. MinTier and RequiredRole are eligibility restrictions,
// empty when unrestricted.
type Reward struct {
	ID           uuid.UUID `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Description  string    `json:"description" db:"description"`
	Type         Type      `json:"type" db:"type"`
	CostPoints   int       `json:"cost_points" db:"cost_points"`
	Inventory    *int      `json:"inventory" db:"inventory"`
	MinTier      tier.Tier `json:"min_tier,omitempty" db:"min_tier"`
	RequiredRole string    `json:"required_role,omitempty" db:"required_role"`
	ToolID       *string   `json:"tool_id,omitempty" db:"tool_id"`
	DurationDays *int      `json:"duration_days,omitempty" db:"duration_days"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Redemption records one exchange of points for a reward. PointsCost
// snapshots the cost at redemption time; later catalog edits do not
// change what a denial refunds.
type Redemption struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	UserID     uuid.UUID  `json:"user_id" db:"user_id"`
	RewardID   uuid.UUID  `json:"reward_id" db:"reward_id"`
	PointsCost int        `json:"points_cost" db:"points_cost"`
	Status     Status     `json:"status" db:"status"`
	IsActive   bool       `json:"is_active" db:"is_active"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	AdminID    *uuid.UUID `json:"admin_id,omitempty" db:"admin_id"`
	AdminNotes *string    `json:"admin_notes,omitempty" db:"admin_notes"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// WithReward is the listing shape: a redemption joined to the catalog
// entry it was made against.
type WithReward struct {
	Redemption
	RewardName string `json:"reward_name"`
	RewardType Type   `json:"reward_type"`
}

// AutoApproved reports whether a reward type is self-service. Physical
// and custom rewards always wait for an admin; everything else grants
// immediately.
func AutoApproved(t Type) bool {
	switch t {
	case TypeCommissionReduction, TypePayoutSpeed, TypeToolAccess, TypeProfileFlair:
		return true
	default:
		return false
	}
}

// ExpiryFor computes the grant expiry at approval time. Rewards without
// a duration never expire.
func ExpiryFor(approvedAt time.Time, durationDays *int) *time.Time {
	if durationDays == nil {
		return nil
	}
	at := approvedAt.AddDate(0, 0, *durationDays)
	return &at
}
