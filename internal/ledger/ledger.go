package ledger

import (
	"time"

	"github.com/google/uuid"

	"loyaltyLedgerAPI/internal/tier"
)

// EventType is the closed enumeration of point-changing actions. Every
// balance mutation writes exactly one event of one of these types, in
// the same transaction as the balance update.
type EventType string

const (
	EventCheckIn            EventType = "check_in"
	EventStreakBonus        EventType = "streak_bonus"
	EventSocialShare        EventType = "social_share"
	EventAchievementUnlock  EventType = "achievement_unlocked"
	EventReferralSignup     EventType = "referral_signup"
	EventReferralConversion EventType = "referral_conversion"
	EventRewardRedeemed     EventType = "reward_redeemed"
	EventRewardRefunded     EventType = "reward_refunded"
	EventAdminAward         EventType = "admin_award"
	EventAdminDeduct        EventType = "admin_deduct"
	// EventTierLevelUp is synthetic: zero point delta, written alongside
	// the award that crossed a tier threshold.
	EventTierLevelUp EventType = "tier_level_up"
)

// Account is the per-user balance record. The invariant
// Points == TotalEarned - TotalSpent holds after every mutation.
type Account struct {
	UserID        uuid.UUID  `json:"user_id" db:"user_id"`
	Points        int        `json:"points" db:"points"`
	TotalEarned   int        `json:"total_earned" db:"total_earned"`
	TotalSpent    int        `json:"total_spent" db:"total_spent"`
	Tier          tier.Tier  `json:"tier" db:"tier"`
	CurrentStreak int        `json:"current_streak" db:"current_streak"`
	LongestStreak int        `json:"longest_streak" db:"longest_streak"`
	LastCheckIn   *time.Time `json:"last_check_in" db:"last_check_in"`
	ReferralCode  string     `json:"referral_code" db:"referral_code"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// Event is one immutable line of the audit trail. Never updated or
// deleted once written.
type Event struct {
	ID          uuid.UUID  `json:"id" db:"id"`
	UserID      uuid.UUID  `json:"user_id" db:"user_id"`
	EventType   EventType  `json:"event_type" db:"event_type"`
	PointsDelta int        `json:"points_delta" db:"points_delta"`
	Description string     `json:"description" db:"description"`
	Metadata    Metadata   `json:"metadata,omitempty"`
	AdminID     *uuid.UUID `json:"admin_id,omitempty" db:"admin_id"`
	AdminReason *string    `json:"admin_reason,omitempty" db:"admin_reason"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
}

// AdminAttribution is attached to manually-triggered mutations and
// stored on the resulting event for audit purposes.
type AdminAttribution struct {
	AdminID uuid.UUID
	Reason  string
}
