package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyaltyLedgerAPI/internal/apperrors"
	"loyaltyLedgerAPI/internal/ledger"
	"loyaltyLedgerAPI/internal/reward"
	"loyaltyLedgerAPI/internal/user"
	"loyaltyLedgerAPI/services"
	"loyaltyLedgerAPI/tests/helpers"
)

// TestRedemptionLifecycle drives a single-unit reward through redeem
// and deny: the debit and the stock decrement commit together, a
// failed redeem leaves no trace in the ledger, and a denial refunds
// exactly the snapshotted cost without touching lifetime earnings.
func TestRedemptionLifecycle(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notifier := services.NewNotificationService(pool, nil)
	ledgerService := services.NewLedgerService(pool, notifier)
	referralService := services.NewReferralService(pool, "https://producertour.test/signup")
	userService := services.NewUserService(pool, ledgerService, referralService)
	streakService := services.NewStreakService(pool, notifier)
	rewardService := services.NewRewardService(pool, notifier)

	ctx := context.Background()
	stamp := time.Now().Format("20060102150405")

	newUser := func(suffix string, role user.Role) (*user.User, string) {
		clerkID := "user_test_" + suffix + "_" + stamp
		u, err := userService.CreateUser(ctx, &user.CreateUserRequest{
			ClerkID:   clerkID,
			Email:     "test" + suffix + "@example.com",
			Username:  "test" + suffix,
			FirstName: "Test",
			LastName:  suffix,
			Role:      role,
		})
		require.NoError(t, err)
		return u, clerkID
	}

	_, buyerClerkID := newUser("buyer", user.RoleMember)
	_, rivalClerkID := newUser("rival", user.RoleMember)
	admin, _ := newUser("rewardadmin", user.RoleAdmin)
	adminID, err := uuid.Parse(admin.ID)
	require.NoError(t, err)

	one := 1
	merch, err := rewardService.CreateReward(ctx, &services.UpsertRewardRequest{
		Name:       "Tour hoodie",
		Type:       reward.TypePhysicalItem,
		CostPoints: 10,
		Inventory:  &one,
	})
	require.NoError(t, err)

	t.Log("an unfunded redeem fails before any mutation")
	_, err = rewardService.Redeem(ctx, rivalClerkID, merch.ID)
	var insufficient *apperrors.InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)

	_, total, err := ledgerService.GetEvents(ctx, rivalClerkID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	t.Log("a funded redeem debits and takes the last unit")
	_, err = streakService.CheckIn(ctx, buyerClerkID)
	require.NoError(t, err)

	redemption, err := rewardService.Redeem(ctx, buyerClerkID, merch.ID)
	require.NoError(t, err)
	assert.Equal(t, reward.StatusPending, redemption.Status)
	assert.False(t, redemption.IsActive)
	assert.Equal(t, 10, redemption.PointsCost)

	account, err := ledgerService.GetAccount(ctx, buyerClerkID)
	require.NoError(t, err)
	assert.Equal(t, 0, account.Points)
	assert.Equal(t, 10, account.TotalEarned)
	assert.Equal(t, 10, account.TotalSpent)

	t.Log("the exhausted reward floors at zero and an out-of-stock redeem writes no event")
	_, err = streakService.CheckIn(ctx, rivalClerkID)
	require.NoError(t, err)

	_, err = rewardService.Redeem(ctx, rivalClerkID, merch.ID)
	var ineligible *apperrors.IneligibleError
	require.ErrorAs(t, err, &ineligible)

	var remaining int
	require.NoError(t, pool.QueryRow(ctx, `SELECT inventory FROM rewards WHERE id = $1`, merch.ID).Scan(&remaining))
	assert.Equal(t, 0, remaining)

	events, total, err := ledgerService.GetEvents(ctx, rivalClerkID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, events, 1)
	assert.Equal(t, ledger.EventCheckIn, events[0].EventType)

	rivalAccount, err := ledgerService.GetAccount(ctx, rivalClerkID)
	require.NoError(t, err)
	assert.Equal(t, 10, rivalAccount.Points)
	assert.Equal(t, 0, rivalAccount.TotalSpent)

	t.Log("a denial refunds the cost and records the refund event")
	denied, err := rewardService.Deny(ctx, redemption.ID, adminID, "hoodies are gone for this run")
	require.NoError(t, err)
	assert.Equal(t, reward.StatusDenied, denied.Status)

	account, err = ledgerService.GetAccount(ctx, buyerClerkID)
	require.NoError(t, err)
	assert.Equal(t, 10, account.Points)
	assert.Equal(t, 10, account.TotalEarned)
	assert.Equal(t, 0, account.TotalSpent)
	assert.Equal(t, account.TotalEarned-account.TotalSpent, account.Points)

	events, _, err = ledgerService.GetEvents(ctx, buyerClerkID, 1, 10)
	require.NoError(t, err)
	var refund *ledger.Event
	for _, e := range events {
		if e.EventType == ledger.EventRewardRefunded {
			refund = e
		}
	}
	require.NotNil(t, refund)
	assert.Equal(t, 10, refund.PointsDelta)

	t.Log("a second decision hits the PENDING guard")
	_, err = rewardService.Deny(ctx, redemption.ID, adminID, "already decided")
	var conflict *apperrors.ConflictError
	assert.ErrorAs(t, err, &conflict)

	t.Log("an auto-approved tool reward activates with its duration-based expiry")
	days := 7
	toolID := "stem-splitter"
	toolReward, err := rewardService.CreateReward(ctx, &services.UpsertRewardRequest{
		Name:         "Stem splitter week",
		Type:         reward.TypeToolAccess,
		CostPoints:   10,
		ToolID:       &toolID,
		DurationDays: &days,
	})
	require.NoError(t, err)

	granted, err := rewardService.Redeem(ctx, buyerClerkID, toolReward.ID)
	require.NoError(t, err)
	assert.Equal(t, reward.StatusApproved, granted.Status)
	assert.True(t, granted.IsActive)
	require.NotNil(t, granted.ExpiresAt)
	assert.WithinDuration(t, time.Now().AddDate(0, 0, days), *granted.ExpiresAt, time.Minute)
}
