package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyaltyLedgerAPI/internal/user"
	"loyaltyLedgerAPI/services"
	"loyaltyLedgerAPI/tests/helpers"
)

// TestProfileCompletion pins the completion rule: a profile is complete
// once username, first name, and last name are all set. Avatar changes
// alone do not flip the flag.
func TestProfileCompletion(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notifier := services.NewNotificationService(pool, nil)
	ledgerService := services.NewLedgerService(pool, notifier)
	referralService := services.NewReferralService(pool, "https://producertour.test/signup")
	userService := services.NewUserService(pool, ledgerService, referralService)

	ctx := context.Background()
	clerkID := "user_test_profile_" + time.Now().Format("20060102150405")

	created, err := userService.CreateUser(ctx, &user.CreateUserRequest{
		ClerkID:  clerkID,
		Email:    "testprofile@example.com",
		Username: "testprofile",
	})
	require.NoError(t, err)
	assert.False(t, created.ProfileComplete)

	updated, err := userService.UpdateProfileByClerkID(ctx, clerkID, &user.UpdateProfileRequest{
		ImageURL: "https://cdn.producertour.test/avatars/testprofile.png",
	})
	require.NoError(t, err)
	assert.False(t, updated.ProfileComplete)

	updated, err = userService.UpdateProfileByClerkID(ctx, clerkID, &user.UpdateProfileRequest{
		FirstName: "Ada",
		LastName:  "Lovelace",
	})
	require.NoError(t, err)
	assert.True(t, updated.ProfileComplete)
	assert.Equal(t, "testprofile", updated.Username)
}
