package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	clerk "github.com/clerk/clerk-sdk-go/v2"
	gorilllaHandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stripe/stripe-go/v76"

	"loyaltyLedgerAPI/handlers"
	"loyaltyLedgerAPI/internal/notification"
	"loyaltyLedgerAPI/internal/subscription"
	"loyaltyLedgerAPI/middleware"
	"loyaltyLedgerAPI/services"

	_ "net/http/pprof"
)

var (
	dbPool              *pgxpool.Pool
	notificationService *services.NotificationService
	ledgerService       *services.LedgerService
	streakService       *services.StreakService
	referralService     *services.ReferralService
	achievementService  *services.AchievementService
	rewardService       *services.RewardService
	toolAccessService   *services.ToolAccessService
	userService         *services.UserService
	subscriptionService *services.SubscriptionService
	analyticsService    *services.AnalyticsService
)

func init() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	clerkSecretKey := os.Getenv("CLERK_SECRET_KEY")
	if clerkSecretKey == "" {
		log.Fatal("CLERK_SECRET_KEY environment variable is not set")
	}
	clerk.SetKey(clerkSecretKey)
	log.Println("Clerk initialized successfully")

	stripe.Key = os.Getenv("STRIPE_SECRET_KEY")
	if stripe.Key == "" {
		log.Println("STRIPE_SECRET_KEY not set, billing webhooks will fail")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		log.Fatal("Failed to parse database URL:", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	dbPool, err = pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Fatal("Failed to create connection pool:", err)
	}

	if err := dbPool.Ping(ctx); err != nil {
		log.Fatal("Failed to ping database:", err)
	}

	log.Println("Successfully connected to Postgres")

	fcmService, err := notification.NewFCMService("./serviceAccountKey.json")
	if err != nil {
		log.Printf("Warning: Could not initialize FCM, push disabled: %v", err)
		fcmService = nil
	} else {
		log.Println("FCM push initialized successfully")
	}

	signupURL := os.Getenv("SIGNUP_URL")
	if signupURL == "" {
		signupURL = "https://producertour.app/signup"
	}
	planTools := subscription.ParsePlanTools(os.Getenv("PLAN_TOOLS"))

	notificationService = services.NewNotificationService(dbPool, fcmService)
	ledgerService = services.NewLedgerService(dbPool, notificationService)
	streakService = services.NewStreakService(dbPool, notificationService)
	referralService = services.NewReferralService(dbPool, signupURL)
	achievementService = services.NewAchievementService(dbPool, notificationService)
	rewardService = services.NewRewardService(dbPool, notificationService)
	toolAccessService = services.NewToolAccessService(dbPool)
	userService = services.NewUserService(dbPool, ledgerService, referralService)
	subscriptionService = services.NewSubscriptionService(dbPool, planTools, toolAccessService, referralService)
	analyticsService = services.NewAnalyticsService(dbPool)

	middleware.InitPrometheus()
}

func main() {
	defer func() {
		log.Println("Closing database connection pool...")
		dbPool.Close()
	}()

	ledgerHandler := handlers.NewLedgerHandler(ledgerService)
	streakHandler := handlers.NewStreakHandler(streakService)
	referralHandler := handlers.NewReferralHandler(referralService)
	achievementHandler := handlers.NewAchievementHandler(achievementService)
	rewardHandler := handlers.NewRewardHandler(rewardService)
	toolAccessHandler := handlers.NewToolAccessHandler(toolAccessService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	userHandler := handlers.NewUserHandler(userService, subscriptionService)
	adminHandler := handlers.NewAdminHandler(userService, ledgerService, rewardService, achievementService, toolAccessService, analyticsService)
	webhookHandler := handlers.NewWebhookHandler(userService, subscriptionService)

	r := mux.NewRouter()

	go middleware.CleanupStaleClients()

	r.Use(middleware.RateLimitMiddleware)
	r.Use(middleware.MonitorMiddleware)

	r.Handle("/metrics", middleware.BasicAuthMiddleware(promhttp.Handler()))
	r.PathPrefix("/debug/pprof/").Handler(middleware.PprofSecurityMiddleware(http.DefaultServeMux))

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := dbPool.Ping(ctx); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status": "unhealthy", "error": "database connection failed"}`))
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "healthy", "service": "loyalty-ledger-api"}`))
	}).Methods("GET")

	r.HandleFunc("/webhooks/clerk", webhookHandler.HandleClerkWebhook).Methods("POST")
	r.HandleFunc("/webhooks/stripe", webhookHandler.HandleStripeWebhook).Methods("POST")

	// -------------------------------------------------------------------------
	// PROTECTED ROUTES (REQUIRE AUTH HEADER)
	// -------------------------------------------------------------------------
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.ClerkAuthMiddleware)

	api.HandleFunc("/points/balance", ledgerHandler.GetBalance).Methods("GET")
	api.HandleFunc("/points/events", ledgerHandler.GetEvents).Methods("GET")
	api.HandleFunc("/points/social-share", ledgerHandler.TrackSocialShare).Methods("POST")

	api.HandleFunc("/check-in", streakHandler.CheckIn).Methods("POST")
	api.HandleFunc("/check-in/history", streakHandler.GetHistory).Methods("GET")

	api.HandleFunc("/referral", referralHandler.GetMyReferral).Methods("GET")
	api.HandleFunc("/referral/qr", referralHandler.GetReferralQR).Methods("GET")

	api.HandleFunc("/achievements", achievementHandler.ListAchievements).Methods("GET")
	api.HandleFunc("/achievements/evaluate", achievementHandler.Evaluate).Methods("POST")

	api.HandleFunc("/rewards", rewardHandler.ListRewards).Methods("GET")
	api.HandleFunc("/rewards/{rewardId}/redeem", rewardHandler.Redeem).Methods("POST")
	api.HandleFunc("/rewards/redemptions", rewardHandler.MyRedemptions).Methods("GET")

	api.HandleFunc("/tools/access", toolAccessHandler.ListAccess).Methods("GET")
	api.HandleFunc("/tools/{toolId}/access", toolAccessHandler.CheckAccess).Methods("GET")

	api.HandleFunc("/notifications", notificationHandler.GetNotifications).Methods("GET")
	api.HandleFunc("/notifications/unread-count", notificationHandler.GetUnreadCount).Methods("GET")
	api.HandleFunc("/notifications/{notificationId}/read", notificationHandler.MarkAsRead).Methods("PUT")
	api.HandleFunc("/notifications/read-all", notificationHandler.MarkAllAsRead).Methods("PUT")
	api.HandleFunc("/notifications/register-device", notificationHandler.RegisterDevice).Methods("POST")

	api.HandleFunc("/user", userHandler.GetProfile).Methods("GET")
	api.HandleFunc("/user/update-profile", userHandler.UpdateProfile).Methods("PUT")
	api.HandleFunc("/user/delete-account", userHandler.DeleteAccount).Methods("DELETE")
	api.HandleFunc("/user/onboarding-complete", userHandler.CompleteOnboarding).Methods("POST")
	api.HandleFunc("/user/stats", userHandler.GetStats).Methods("GET")
	api.HandleFunc("/user/subscription", userHandler.GetSubscription).Methods("GET")
	api.HandleFunc("/user/submissions", userHandler.RecordSubmission).Methods("POST")
	api.HandleFunc("/user/feedback", userHandler.SubmitFeedback).Methods("POST")

	api.HandleFunc("/leaderboard", userHandler.GetLeaderboard).Methods("GET")

	// -------------------------------------------------------------------------
	// ADMIN ROUTES (ROLE CHECKED AGAINST THE DATABASE PER REQUEST)
	// -------------------------------------------------------------------------
	admin := api.PathPrefix("/admin").Subrouter()

	admin.HandleFunc("/points/adjust", adminHandler.AdjustPoints).Methods("POST")
	admin.HandleFunc("/redemptions/pending", adminHandler.PendingRedemptions).Methods("GET")
	admin.HandleFunc("/redemptions/{redemptionId}/approve", adminHandler.ApproveRedemption).Methods("POST")
	admin.HandleFunc("/redemptions/{redemptionId}/deny", adminHandler.DenyRedemption).Methods("POST")
	admin.HandleFunc("/rewards", adminHandler.CreateReward).Methods("POST")
	admin.HandleFunc("/rewards/{rewardId}", adminHandler.UpdateReward).Methods("PUT")
	admin.HandleFunc("/achievements", adminHandler.CreateAchievement).Methods("POST")
	admin.HandleFunc("/achievements/{achievementId}", adminHandler.UpdateAchievement).Methods("PUT")
	admin.HandleFunc("/tools/grant", adminHandler.GrantTool).Methods("POST")
	admin.HandleFunc("/tools/revoke", adminHandler.RevokeTool).Methods("POST")
	admin.HandleFunc("/tools/bulk-grant", adminHandler.BulkGrantTool).Methods("POST")
	admin.HandleFunc("/kpis", adminHandler.GetKPIs).Methods("GET")
	admin.HandleFunc("/ledger/integrity", adminHandler.VerifyIntegrity).Methods("GET")

	// CORS configuration
	corsHandler := gorilllaHandlers.CORS(
		gorilllaHandlers.AllowedOrigins([]string{"*"}),
		gorilllaHandlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		gorilllaHandlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-Pprof-Secret"}),
		gorilllaHandlers.ExposedHeaders([]string{"Content-Length"}),
		gorilllaHandlers.AllowCredentials(),
	)

	port := os.Getenv("PORT")
	if port == "" {
		port = "3333"
	}
	port = ":" + port

	server := http.Server{
		Addr:         port,
		Handler:      corsHandler(r),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on port %s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Error starting server:", err)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)

	sig := <-sigChan
	log.Println("Got signal:", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server shutdown complete")
}
