package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"loyaltyLedgerAPI/middleware"
	"loyaltyLedgerAPI/services"
)

type ToolAccessHandler struct {
	toolAccessService *services.ToolAccessService
}

func NewToolAccessHandler(toolAccessService *services.ToolAccessService) *ToolAccessHandler {
	return &ToolAccessHandler{
		toolAccessService: toolAccessService,
	}
}

// CheckAccess answers whether the caller may use one tool right now.
// The gating services poll this endpoint, so it stays a single cheap
// read.
func (h *ToolAccessHandler) CheckAccess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	toolID := mux.Vars(r)["toolId"]
	if toolID == "" {
		respondWithError(w, http.StatusBadRequest, "Tool ID is required")
		return
	}

	access, err := h.toolAccessService.HasAccess(ctx, clerkID, toolID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, access)
}

func (h *ToolAccessHandler) ListAccess(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	clerkID, ok := middleware.GetClerkID(ctx)
	if !ok {
		respondWithError(w, http.StatusUnauthorized, "User not authenticated")
		return
	}

	tools, err := h.toolAccessService.ListAccess(ctx, clerkID)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]any{"tools": tools})
}
