package integration

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyaltyLedgerAPI/handlers"
	"loyaltyLedgerAPI/internal/checkin"
	"loyaltyLedgerAPI/internal/tier"
	"loyaltyLedgerAPI/services"
	"loyaltyLedgerAPI/tests/helpers"
)

// TestFullSignupAndCheckInFlow walks the happy path end to end: Clerk
// signup webhook, ledger initialization, first check-in, balance.
func TestFullSignupAndCheckInFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notifier := services.NewNotificationService(pool, nil)
	ledgerService := services.NewLedgerService(pool, notifier)
	referralService := services.NewReferralService(pool, "https://producertour.test/signup")
	userService := services.NewUserService(pool, ledgerService, referralService)
	streakService := services.NewStreakService(pool, notifier)
	toolService := services.NewToolAccessService(pool)
	subscriptionService := services.NewSubscriptionService(pool, nil, toolService, referralService)
	webhookHandler := handlers.NewWebhookHandler(userService, subscriptionService)

	os.Setenv("CLERK_WEBHOOK_SECRET", "")
	defer os.Unsetenv("CLERK_WEBHOOK_SECRET")

	clerkID := "user_test_" + time.Now().Format("20060102150405")
	ctx := context.Background()

	t.Log("Step 1: signup webhook creates the user")
	createPayload := helpers.MockClerkWebhookPayload("user.created", clerkID)
	req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(createPayload))
	rr := httptest.NewRecorder()
	webhookHandler.HandleClerkWebhook(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	created, err := userService.GetUserByClerkID(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, "test.user@example.com", created.Email)
	assert.True(t, created.EmailVerified)

	t.Log("Step 2: the ledger starts empty at bronze")
	account, err := ledgerService.GetAccount(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, 0, account.Points)
	assert.Equal(t, 0, account.TotalEarned)
	assert.Equal(t, tier.Bronze, account.Tier)
	assert.NotEmpty(t, account.ReferralCode)

	t.Log("Step 3: first check-in pays the base amount")
	result, err := streakService.CheckIn(ctx, clerkID)
	require.NoError(t, err)
	assert.False(t, result.AlreadyCheckedIn)
	assert.Equal(t, checkin.BasePoints, result.PointsEarned)
	assert.Equal(t, 1, result.StreakDay)

	account, err = ledgerService.GetAccount(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, checkin.BasePoints, account.Points)
	assert.Equal(t, checkin.BasePoints, account.TotalEarned)
	assert.Equal(t, account.TotalEarned-account.TotalSpent, account.Points)

	t.Log("Step 4: a repeat check-in is a no-op")
	repeat, err := streakService.CheckIn(ctx, clerkID)
	require.NoError(t, err)
	assert.True(t, repeat.AlreadyCheckedIn)
	require.NotNil(t, repeat.Existing)
	assert.Equal(t, 1, repeat.Existing.StreakDay)

	account, err = ledgerService.GetAccount(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, checkin.BasePoints, account.Points)

	t.Log("Step 5: the events feed records the earn")
	events, total, err := ledgerService.GetEvents(ctx, clerkID, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, events, 1)
	assert.Equal(t, checkin.BasePoints, events[0].PointsDelta)
}
