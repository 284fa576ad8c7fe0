package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyaltyLedgerAPI/internal/notification"
	"loyaltyLedgerAPI/internal/user"
	"loyaltyLedgerAPI/services"
	"loyaltyLedgerAPI/tests/helpers"
)

// TestNotificationFlow writes a notification, reads it back and walks
// the read-state transitions. Push is disabled (nil FCM), so only the
// stored rows are in play.
func TestNotificationFlow(t *testing.T) {
	pool := helpers.SetupTestDB(t)
	defer helpers.CleanupTestDB(t, pool)

	notifier := services.NewNotificationService(pool, nil)
	ledgerService := services.NewLedgerService(pool, notifier)
	referralService := services.NewReferralService(pool, "https://producertour.test/signup")
	userService := services.NewUserService(pool, ledgerService, referralService)

	ctx := context.Background()
	clerkID := "user_test_" + time.Now().Format("20060102150405")

	created, err := userService.CreateUser(ctx, &user.CreateUserRequest{
		ClerkID:   clerkID,
		Email:     "testnotif@example.com",
		Username:  "testnotif",
		FirstName: "Test",
		LastName:  "Notif",
	})
	require.NoError(t, err)

	userID, err := uuid.Parse(created.ID)
	require.NoError(t, err)

	err = notifier.Notify(ctx, userID, notification.NotificationStreakMilestone,
		"Streak milestone!", "7 days in a row", map[string]any{"milestone": 7})
	require.NoError(t, err)

	count, err := notifier.GetUnreadCount(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	list, err := notifier.GetNotifications(ctx, clerkID, 1, 10, false)
	require.NoError(t, err)
	require.Len(t, list.Notifications, 1)
	assert.Equal(t, notification.NotificationStreakMilestone, list.Notifications[0].Type)
	assert.False(t, list.Notifications[0].IsRead)

	err = notifier.MarkAsRead(ctx, list.Notifications[0].ID, clerkID)
	require.NoError(t, err)

	count, err = notifier.GetUnreadCount(ctx, clerkID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	// Marking someone else's notification must not succeed.
	err = notifier.MarkAsRead(ctx, list.Notifications[0].ID, "user_somebody_else")
	assert.Error(t, err)
}
