package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"loyaltyLedgerAPI/internal/tier"
)

// Metadata is the closed set of per-event-type payloads stored on a
// ledger event. Keeping one typed struct per event type (instead of an
// open map) keeps the audit log queryable without losing type safety.
// The unexported method pins the set of implementations to this package.
type Metadata interface {
	eventType() EventType
}

type CheckInMeta struct {
	Day       string `json:"day"` // UTC calendar date, YYYY-MM-DD
	StreakDay int    `json:"streak_day"`
}

type StreakBonusMeta struct {
	Milestone int `json:"milestone"` // 7 or 30
	StreakDay int `json:"streak_day"`
}

type SocialShareMeta struct {
	Platform string `json:"platform"`
}

type AchievementMeta struct {
	AchievementID uuid.UUID `json:"achievement_id"`
	Name          string    `json:"name"`
}

type ReferralSignupMeta struct {
	ReferredUserID uuid.UUID `json:"referred_user_id"`
	ReferralCode   string    `json:"referral_code"`
}

type ReferralConversionMeta struct {
	ConvertedUserID uuid.UUID `json:"converted_user_id"`
}

type RedemptionMeta struct {
	RedemptionID uuid.UUID `json:"redemption_id"`
	RewardID     uuid.UUID `json:"reward_id"`
	RewardName   string    `json:"reward_name"`
	ToolID       string    `json:"tool_id,omitempty"` // set for tool_access rewards
}

type RefundMeta struct {
	RedemptionID uuid.UUID `json:"redemption_id"`
	RewardID     uuid.UUID `json:"reward_id"`
}

type AdminAdjustmentMeta struct {
	Note string `json:"note,omitempty"`
}

type TierLevelUpMeta struct {
	PreviousTier tier.Tier `json:"previous_tier"`
	NewTier      tier.Tier `json:"new_tier"`
}

func (CheckInMeta) eventType() EventType            { return EventCheckIn }
func (StreakBonusMeta) eventType() EventType        { return EventStreakBonus }
func (SocialShareMeta) eventType() EventType        { return EventSocialShare }
func (AchievementMeta) eventType() EventType        { return EventAchievementUnlock }
func (ReferralSignupMeta) eventType() EventType     { return EventReferralSignup }
func (ReferralConversionMeta) eventType() EventType { return EventReferralConversion }
func (RedemptionMeta) eventType() EventType         { return EventRewardRedeemed }
func (RefundMeta) eventType() EventType             { return EventRewardRefunded }
func (AdminAdjustmentMeta) eventType() EventType    { return EventAdminAward }
func (TierLevelUpMeta) eventType() EventType        { return EventTierLevelUp }

// MarshalMetadata serializes a payload for the event's JSONB column.
// A nil payload becomes SQL NULL.
func MarshalMetadata(m Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// UnmarshalMetadata decodes a stored payload back into its typed form,
// keyed by the event type. Events without metadata return nil.
func UnmarshalMetadata(t EventType, raw []byte) (Metadata, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var m Metadata
	switch t {
	case EventCheckIn:
		m = &CheckInMeta{}
	case EventStreakBonus:
		m = &StreakBonusMeta{}
	case EventSocialShare:
		m = &SocialShareMeta{}
	case EventAchievementUnlock:
		m = &AchievementMeta{}
	case EventReferralSignup:
		m = &ReferralSignupMeta{}
	case EventReferralConversion:
		m = &ReferralConversionMeta{}
	case EventRewardRedeemed:
		m = &RedemptionMeta{}
	case EventRewardRefunded:
		m = &RefundMeta{}
	case EventAdminAward, EventAdminDeduct:
		m = &AdminAdjustmentMeta{}
	case EventTierLevelUp:
		m = &TierLevelUpMeta{}
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}

	if err := json.Unmarshal(raw, m); err != nil {
		return nil, fmt.Errorf("failed to decode %s metadata: %w", t, err)
	}
	return m, nil
}
