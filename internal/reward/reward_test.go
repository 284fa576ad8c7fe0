package reward

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAutoApproved(t *testing.T) {
	assert.True(t, AutoApproved(TypeCommissionReduction))
	assert.True(t, AutoApproved(TypePayoutSpeed))
	assert.True(t, AutoApproved(TypeToolAccess))
	assert.True(t, AutoApproved(TypeProfileFlair))

	assert.False(t, AutoApproved(TypePhysicalItem))
	assert.False(t, AutoApproved(TypeCustom))
	assert.False(t, AutoApproved(Type("mystery_box")))
}

func TestExpiryFor(t *testing.T) {
	approved := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	assert.Nil(t, ExpiryFor(approved, nil))

	days := 30
	expires := ExpiryFor(approved, &days)
	require.NotNil(t, expires)
	assert.Equal(t, time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC), *expires)
}
