package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyaltyLedgerAPI/handlers"
	"loyaltyLedgerAPI/internal/user"
	"loyaltyLedgerAPI/services"
	"loyaltyLedgerAPI/tests/helpers"
)

func buildWebhookHandler(t *testing.T) (*handlers.WebhookHandler, *services.UserService, func()) {
	pool := helpers.SetupTestDB(t)

	notifier := services.NewNotificationService(pool, nil)
	ledgerService := services.NewLedgerService(pool, notifier)
	referralService := services.NewReferralService(pool, "https://producertour.test/signup")
	userService := services.NewUserService(pool, ledgerService, referralService)
	toolService := services.NewToolAccessService(pool)
	subscriptionService := services.NewSubscriptionService(pool, nil, toolService, referralService)

	cleanup := func() { helpers.CleanupTestDB(t, pool) }
	return handlers.NewWebhookHandler(userService, subscriptionService), userService, cleanup
}

func TestWebhookUserCreated(t *testing.T) {
	webhookHandler, userService, cleanup := buildWebhookHandler(t)
	defer cleanup()

	os.Setenv("CLERK_WEBHOOK_SECRET", "")
	defer os.Unsetenv("CLERK_WEBHOOK_SECRET")

	clerkID := "user_test_" + time.Now().Format("20060102150405")
	payload := helpers.MockClerkWebhookPayload("user.created", clerkID)

	req := httptest.NewRequest(http.MethodPost, "/webhooks/clerk", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()

	webhookHandler.HandleClerkWebhook(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var response map[string]bool
	err := json.Unmarshal(rr.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.True(t, response["success"])

	ctx := context.Background()
	created, err := userService.GetUserByClerkID(ctx, clerkID)
	require.NoError(t, err, "User should be created")
	assert.Equal(t, clerkID, created.ClerkID)
	assert.Equal(t, "test.user@example.com", created.Email)
	assert.Equal(t, user.RoleProducer, created.Role)
}

func TestWebhookUserUpdated(t *testing.T) {
	webhookHandler, userService, cleanup := buildWebhookHandler(t)
	defer cleanup()

	os.Setenv("CLERK_WEBHOOK_SECRET", "")
	defer os.Unsetenv("CLERK_WEBHOOK_SECRET")

	clerkID := "user_test_" + time.Now().Format("20060102150405")

	createReq := httptest.NewRequest(http.MethodPost, "/webhooks/clerk",
		bytes.NewReader(helpers.MockClerkWebhookPayload("user.created", clerkID)))
	createRR := httptest.NewRecorder()
	webhookHandler.HandleClerkWebhook(createRR, createReq)
	require.Equal(t, http.StatusOK, createRR.Code)

	updateReq := httptest.NewRequest(http.MethodPost, "/webhooks/clerk",
		bytes.NewReader(helpers.MockClerkWebhookPayload("user.updated", clerkID)))
	updateRR := httptest.NewRecorder()
	webhookHandler.HandleClerkWebhook(updateRR, updateReq)
	require.Equal(t, http.StatusOK, updateRR.Code)

	ctx := context.Background()
	updated, err := userService.GetUserByClerkID(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, "updateduser", updated.Username)
	assert.Equal(t, "Updated", updated.FirstName)
}

func TestWebhookUserDeleted(t *testing.T) {
	webhookHandler, userService, cleanup := buildWebhookHandler(t)
	defer cleanup()

	os.Setenv("CLERK_WEBHOOK_SECRET", "")
	defer os.Unsetenv("CLERK_WEBHOOK_SECRET")

	clerkID := "user_test_" + time.Now().Format("20060102150405")

	createReq := httptest.NewRequest(http.MethodPost, "/webhooks/clerk",
		bytes.NewReader(helpers.MockClerkWebhookPayload("user.created", clerkID)))
	createRR := httptest.NewRecorder()
	webhookHandler.HandleClerkWebhook(createRR, createReq)
	require.Equal(t, http.StatusOK, createRR.Code)

	deleteReq := httptest.NewRequest(http.MethodPost, "/webhooks/clerk",
		bytes.NewReader(helpers.MockClerkWebhookPayload("user.deleted", clerkID)))
	deleteRR := httptest.NewRecorder()
	webhookHandler.HandleClerkWebhook(deleteRR, deleteReq)
	require.Equal(t, http.StatusOK, deleteRR.Code)

	ctx := context.Background()
	_, err := userService.GetUserByClerkID(ctx, clerkID)
	assert.Error(t, err, "Deleted user should not resolve")
}
