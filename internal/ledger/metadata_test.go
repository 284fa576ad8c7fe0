package ledger

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyaltyLedgerAPI/internal/tier"
)

func TestMetadataRoundTrip(t *testing.T) {
	achievementID := uuid.New()

	raw, err := MarshalMetadata(AchievementMeta{AchievementID: achievementID, Name: "First Submission"})
	require.NoError(t, err)

	decoded, err := UnmarshalMetadata(EventAchievementUnlock, raw)
	require.NoError(t, err)

	meta, ok := decoded.(*AchievementMeta)
	require.True(t, ok)
	assert.Equal(t, achievementID, meta.AchievementID)
	assert.Equal(t, "First Submission", meta.Name)
}

func TestMetadataTierLevelUp(t *testing.T) {
	raw, err := MarshalMetadata(TierLevelUpMeta{PreviousTier: tier.Bronze, NewTier: tier.Silver})
	require.NoError(t, err)

	decoded, err := UnmarshalMetadata(EventTierLevelUp, raw)
	require.NoError(t, err)

	meta := decoded.(*TierLevelUpMeta)
	assert.Equal(t, tier.Bronze, meta.PreviousTier)
	assert.Equal(t, tier.Silver, meta.NewTier)
}

func TestMetadataNil(t *testing.T) {
	raw, err := MarshalMetadata(nil)
	require.NoError(t, err)
	assert.Nil(t, raw)

	decoded, err := UnmarshalMetadata(EventCheckIn, nil)
	require.NoError(t, err)
	assert.Nil(t, decoded)
}

func TestMetadataUnknownEventType(t *testing.T) {
	_, err := UnmarshalMetadata(EventType("gift_card"), []byte(`{}`))
	assert.Error(t, err)
}
