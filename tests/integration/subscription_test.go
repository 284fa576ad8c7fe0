package integration

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyaltyLedgerAPI/internal/referral"
	"loyaltyLedgerAPI/internal/subscription"
	"loyaltyLedgerAPI/internal/toolaccess"
	"loyaltyLedgerAPI/internal/user"
	"loyaltyLedgerAPI/services"
	"loyaltyLedgerAPI/tests/helpers"
)

// TestSubscriptionUpsertFlow covers the billing webhook path: the
// checkout payload identifies the subscriber by either Clerk id or our
// own user id, an active subscription grants the plan tools and
// credits the referral conversion, and a lapse revokes the grants.
func TestSubscriptionUpsertFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notifier := services.NewNotificationService(pool, nil)
	ledgerService := services.NewLedgerService(pool, notifier)
	referralService := services.NewReferralService(pool, "https://producertour.test/signup")
	userService := services.NewUserService(pool, ledgerService, referralService)
	toolService := services.NewToolAccessService(pool)
	planTools := subscription.PlanTools{"price_pro": {"mastering-suite", "stem-splitter"}}
	subscriptionService := services.NewSubscriptionService(pool, planTools, toolService, referralService)

	ctx := context.Background()
	stamp := time.Now().Format("20060102150405")

	referrerClerkID := "user_test_referrer_" + stamp
	_, err := userService.CreateUser(ctx, &user.CreateUserRequest{
		ClerkID:   referrerClerkID,
		Email:     "testreferrer@example.com",
		Username:  "testreferrer",
		FirstName: "Test",
		LastName:  "Referrer",
	})
	require.NoError(t, err)

	referrerAccount, err := ledgerService.GetAccount(ctx, referrerClerkID)
	require.NoError(t, err)

	subscriberClerkID := "user_test_subscriber_" + stamp
	subscriber, err := userService.CreateUser(ctx, &user.CreateUserRequest{
		ClerkID:      subscriberClerkID,
		Email:        "testsubscriber@example.com",
		Username:     "testsubscriber",
		FirstName:    "Test",
		LastName:     "Subscriber",
		ReferralCode: referrerAccount.ReferralCode,
	})
	require.NoError(t, err)

	t.Log("checkout resolves the subscriber by Clerk id")
	periodEnd := time.Now().Add(30 * 24 * time.Hour)
	err = subscriptionService.Upsert(ctx, &subscription.Subscription{
		UserID:               subscriberClerkID,
		StripeCustomerID:     "cus_test_" + stamp,
		StripeSubscriptionID: "sub_test_" + stamp,
		StripePriceID:        "price_pro",
		Status:               "active",
		CurrentPeriodEnd:     periodEnd,
	})
	require.NoError(t, err)

	stored, err := subscriptionService.Get(ctx, subscriberClerkID)
	require.NoError(t, err)
	assert.Equal(t, "price_pro", stored.StripePriceID)
	assert.Equal(t, "active", stored.Status)

	t.Log("the plan tools are granted for the paid period")
	access, err := toolService.HasAccess(ctx, subscriberClerkID, "mastering-suite")
	require.NoError(t, err)
	assert.True(t, access.Granted)
	assert.Equal(t, toolaccess.SourceSubscription, access.Source)

	t.Log("the first paid period credits the referral conversion")
	referrerAccount, err = ledgerService.GetAccount(ctx, referrerClerkID)
	require.NoError(t, err)
	assert.Equal(t, referral.SignupPoints+referral.ConversionPoints, referrerAccount.Points)

	t.Log("a lapse identified by our own user id revokes the grants")
	err = subscriptionService.Upsert(ctx, &subscription.Subscription{
		UserID:               subscriber.ID,
		StripeCustomerID:     "cus_test_" + stamp,
		StripeSubscriptionID: "sub_test_" + stamp,
		StripePriceID:        "price_pro",
		Status:               "canceled",
		CurrentPeriodEnd:     periodEnd,
	})
	require.NoError(t, err)

	access, err = toolService.HasAccess(ctx, subscriberClerkID, "mastering-suite")
	require.NoError(t, err)
	assert.False(t, access.Granted)

	t.Log("a renewal webhook does not double-credit the conversion")
	err = subscriptionService.Upsert(ctx, &subscription.Subscription{
		StripeCustomerID:     "cus_test_" + stamp,
		StripeSubscriptionID: "sub_test_" + stamp,
		StripePriceID:        "price_pro",
		Status:               "active",
		CurrentPeriodEnd:     periodEnd.Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)

	referrerAccount, err = ledgerService.GetAccount(ctx, referrerClerkID)
	require.NoError(t, err)
	assert.Equal(t, referral.SignupPoints+referral.ConversionPoints, referrerAccount.Points)
}
