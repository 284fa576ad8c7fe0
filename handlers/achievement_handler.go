package handlers

import (
	"context"
	"net/http"
	"time"

	"loyaltyLedgerAPI/internal/ledger"
	"loyaltyLedgerAPI/middleware"
	"loyaltyLedgerAPI/services"
)

type AchievementHandler struct {
	achievementService *services.AchievementService
}

func NewAchievementHandler(achievementService *services.AchievementService) *AchievementHandler {
	return &AchievementHandler{
		achievementService: achievementService,
	}
}

func (h *AchievementHandler) ListAchievements(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	achievements, err := h.achievementService.ListForUser(ctx, clerkID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"achievements": achievements})
}

// Evaluate re-checks every locked achievement against the caller's
// current progress and unlocks the ones now satisfied. Clients call it
// after actions that move progress counters.
func (h *AchievementHandler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	unlocked, err := h.achievementService.Evaluate(ctx, clerkID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	for range unlocked {
		middleware.CountLedgerEvent(string(ledger.EventAchievementUnlock))
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"unlocked": unlocked})
}
