package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyaltyLedgerAPI/handlers"
	"loyaltyLedgerAPI/internal/user"
	"loyaltyLedgerAPI/middleware"
	"loyaltyLedgerAPI/services"
	"loyaltyLedgerAPI/tests/helpers"
)

func TestGetProfile_Authenticated(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notifier := services.NewNotificationService(pool, nil)
	ledgerService := services.NewLedgerService(pool, notifier)
	referralService := services.NewReferralService(pool, "https://producertour.test/signup")
	userService := services.NewUserService(pool, ledgerService, referralService)
	toolService := services.NewToolAccessService(pool)
	subscriptionService := services.NewSubscriptionService(pool, nil, toolService, referralService)
	userHandler := handlers.NewUserHandler(userService, subscriptionService)

	clerkID := "user_test_" + time.Now().Format("20060102150405")
	ctx := context.Background()

	createReq := &user.CreateUserRequest{
		ClerkID:   clerkID,
		Email:     "testauth@example.com",
		Username:  "testauth",
		FirstName: "Test",
		LastName:  "Auth",
		ImageURL:  "https://example.com/image.jpg",
	}

	createdUser, err := userService.CreateUser(ctx, createReq)
	require.NoError(t, err)

	// Inject the identity directly, the way the auth middleware would
	// after verifying the token.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
	ctx = context.WithValue(req.Context(), middleware.ClerkIDKey, clerkID)
	req = req.WithContext(ctx)

	rr := httptest.NewRecorder()
	userHandler.GetProfile(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)

	var response user.User
	err = json.Unmarshal(rr.Body.Bytes(), &response)
	require.NoError(t, err)

	assert.Equal(t, createdUser.ID, response.ID)
	assert.Equal(t, clerkID, response.ClerkID)
	assert.Equal(t, "testauth@example.com", response.Email)
	assert.Equal(t, user.RoleMember, response.Role)
}

func TestGetProfile_Unauthenticated(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notifier := services.NewNotificationService(pool, nil)
	ledgerService := services.NewLedgerService(pool, notifier)
	referralService := services.NewReferralService(pool, "https://producertour.test/signup")
	userService := services.NewUserService(pool, ledgerService, referralService)
	toolService := services.NewToolAccessService(pool)
	subscriptionService := services.NewSubscriptionService(pool, nil, toolService, referralService)
	userHandler := handlers.NewUserHandler(userService, subscriptionService)

	// No identity on the context at all.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
	rr := httptest.NewRecorder()

	userHandler.GetProfile(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestAuthMiddleware_RejectsBadTokens(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be reached")
	})
	protected := middleware.ClerkAuthMiddleware(next)

	t.Run("missing header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
		rr := httptest.NewRecorder()

		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("wrong scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
		req.Header.Set("Authorization", "Token abc123")
		rr := httptest.NewRecorder()

		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("self-signed token", func(t *testing.T) {
		// Signed with a key Clerk has never seen, so verification fails.
		token, err := helpers.GenerateMockClerkJWT("user_forged")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/api/v1/user", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()

		protected.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}
