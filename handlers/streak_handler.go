package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"loyaltyLedgerAPI/internal/ledger"
	"loyaltyLedgerAPI/middleware"
	"loyaltyLedgerAPI/services"
)

type StreakHandler struct {
	streakService *services.StreakService
}

func NewStreakHandler(streakService *services.StreakService) *StreakHandler {
	return &StreakHandler{
		streakService: streakService,
	}
}

func (h *StreakHandler) CheckIn(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	result, err := h.streakService.CheckIn(ctx, clerkID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	if result.AlreadyCheckedIn {
		respondWithJSON(w, http.StatusOK, result)
		return
	}

	middleware.CountLedgerEvent(string(ledger.EventCheckIn))
	respondWithJSON(w, http.StatusCreated, result)
}

func (h *StreakHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	history, err := h.streakService.GetHistory(ctx, clerkID, limit)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"check_ins": history})
}
