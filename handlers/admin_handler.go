package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"loyaltyLedgerAPI/internal/ledger"
	"loyaltyLedgerAPI/internal/user"
	"loyaltyLedgerAPI/middleware"
	"loyaltyLedgerAPI/services"
)

// AdminHandler groups every operator-facing mutation. Each endpoint
// resolves the caller and re-checks the admin role against the
// database; the role claim is never taken from the token.
type AdminHandler struct {
	userService        *services.UserService
	ledgerService      *services.LedgerService
	rewardService      *services.RewardService
	achievementService *services.AchievementService
	toolAccessService  *services.ToolAccessService
	analyticsService   *services.AnalyticsService
}

func NewAdminHandler(
	userService *services.UserService,
	ledgerService *services.LedgerService,
	rewardService *services.RewardService,
	achievementService *services.AchievementService,
	toolAccessService *services.ToolAccessService,
	analyticsService *services.AnalyticsService,
) *AdminHandler {
	return &AdminHandler{
		userService:        userService,
		ledgerService:      ledgerService,
		rewardService:      rewardService,
		achievementService: achievementService,
		toolAccessService:  toolAccessService,
		analyticsService:   analyticsService,
	}
}

// requireAdmin resolves the authenticated caller and verifies the admin
// role. On failure it writes the response itself and reports false.
func (h *AdminHandler) requireAdmin(ctx context.Context, w http.ResponseWriter) (uuid.UUID, bool) {
	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return uuid.Nil, false
	}

	caller, err := h.userService.GetUserByClerkID(ctx, clerkID)
	if err != nil {
		respondWithAppError(w, err)
		return uuid.Nil, false
	}
	if caller.Role != user.RoleAdmin {
		respondWithError(w, http.StatusForbidden, "Admin access required")
		return uuid.Nil, false
	}

	adminID, err := uuid.Parse(caller.ID)
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return uuid.Nil, false
	}
	return adminID, true
}

func (h *AdminHandler) AdjustPoints(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	adminID, ok := h.requireAdmin(ctx, w)
	if !ok {
		return
	}

	var body struct {
		UserID string `json:"user_id"`
		Amount int    `json:"amount"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	targetID, err := uuid.Parse(body.UserID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	account, err := h.ledgerService.AdminAdjust(ctx, adminID, targetID, body.Amount, body.Reason)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	if body.Amount > 0 {
		middleware.CountLedgerEvent(string(ledger.EventAdminAward))
	} else {
		middleware.CountLedgerEvent(string(ledger.EventAdminDeduct))
	}
	respondWithJSON(w, http.StatusOK, account)
}

func (h *AdminHandler) PendingRedemptions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.requireAdmin(ctx, w); !ok {
		return
	}

	pending, err := h.rewardService.PendingRedemptions(ctx)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"redemptions": pending})
}

func (h *AdminHandler) ApproveRedemption(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	adminID, ok := h.requireAdmin(ctx, w)
	if !ok {
		return
	}

	redemptionID, err := uuid.Parse(mux.Vars(r)["redemptionId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid redemption ID")
		return
	}

	var body struct {
		Notes string `json:"notes"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	redemption, err := h.rewardService.Approve(ctx, redemptionID, adminID, body.Notes)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	middleware.CountRedemption(string(redemption.Status))
	respondWithJSON(w, http.StatusOK, redemption)
}

func (h *AdminHandler) DenyRedemption(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	adminID, ok := h.requireAdmin(ctx, w)
	if !ok {
		return
	}

	redemptionID, err := uuid.Parse(mux.Vars(r)["redemptionId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid redemption ID")
		return
	}

	var body struct {
		Notes string `json:"notes"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	redemption, err := h.rewardService.Deny(ctx, redemptionID, adminID, body.Notes)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	middleware.CountRedemption(string(redemption.Status))
	respondWithJSON(w, http.StatusOK, redemption)
}

func (h *AdminHandler) CreateReward(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.requireAdmin(ctx, w); !ok {
		return
	}

	var req services.UpsertRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.rewardService.CreateReward(ctx, &req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *AdminHandler) UpdateReward(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.requireAdmin(ctx, w); !ok {
		return
	}

	rewardID, err := uuid.Parse(mux.Vars(r)["rewardId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid reward ID")
		return
	}

	var req services.UpsertRewardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.rewardService.UpdateReward(ctx, rewardID, &req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) CreateAchievement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.requireAdmin(ctx, w); !ok {
		return
	}

	var req services.UpsertAchievementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	created, err := h.achievementService.CreateAchievement(ctx, &req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, created)
}

func (h *AdminHandler) UpdateAchievement(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.requireAdmin(ctx, w); !ok {
		return
	}

	achievementID, err := uuid.Parse(mux.Vars(r)["achievementId"])
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid achievement ID")
		return
	}

	var req services.UpsertAchievementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	updated, err := h.achievementService.UpdateAchievement(ctx, achievementID, &req)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, updated)
}

func (h *AdminHandler) GrantTool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	adminID, ok := h.requireAdmin(ctx, w)
	if !ok {
		return
	}

	var body struct {
		UserID    string     `json:"user_id"`
		ToolID    string     `json:"tool_id"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	targetID, err := uuid.Parse(body.UserID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}
	if body.ToolID == "" {
		respondWithError(w, http.StatusBadRequest, "tool_id is required")
		return
	}

	if err := h.toolAccessService.Grant(ctx, &adminID, targetID, body.ToolID, body.ExpiresAt); err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]string{"message": "Tool access granted"})
}

func (h *AdminHandler) RevokeTool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if _, ok := h.requireAdmin(ctx, w); !ok {
		return
	}

	var body struct {
		UserID string `json:"user_id"`
		ToolID string `json:"tool_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	targetID, err := uuid.Parse(body.UserID)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	if err := h.toolAccessService.Revoke(ctx, targetID, body.ToolID); err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"message": "Tool access revoked"})
}

func (h *AdminHandler) BulkGrantTool(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	adminID, ok := h.requireAdmin(ctx, w)
	if !ok {
		return
	}

	var body struct {
		UserIDs   []string   `json:"user_ids"`
		ToolID    string     `json:"tool_id"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(body.UserIDs) == 0 || body.ToolID == "" {
		respondWithError(w, http.StatusBadRequest, "user_ids and tool_id are required")
		return
	}

	userIDs := make([]uuid.UUID, 0, len(body.UserIDs))
	for _, raw := range body.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid user ID: "+raw)
			return
		}
		userIDs = append(userIDs, id)
	}

	if err := h.toolAccessService.BulkGrant(ctx, &adminID, userIDs, body.ToolID, body.ExpiresAt); err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, map[string]any{
		"message": "Tool access granted",
		"granted": len(userIDs),
	})
}

func (h *AdminHandler) GetKPIs(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	if _, ok := h.requireAdmin(ctx, w); !ok {
		return
	}

	days, _ := strconv.Atoi(r.URL.Query().Get("days"))

	kpis, err := h.analyticsService.GetKPIs(ctx, days)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, kpis)
}

// VerifyIntegrity scans every ledger row for balance drift. Meant to be
// hit from a cron or by hand after incidents.
func (h *AdminHandler) VerifyIntegrity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if _, ok := h.requireAdmin(ctx, w); !ok {
		return
	}

	if err := h.analyticsService.VerifyLedgerIntegrity(ctx); err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
