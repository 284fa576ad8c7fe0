package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"loyaltyLedgerAPI/internal/apperrors"
)

func TestRespondWithAppError_StatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"validation", apperrors.Validation("amount must be positive"), http.StatusBadRequest},
		{"not found", apperrors.NotFound("reward"), http.StatusNotFound},
		{"insufficient balance", apperrors.InsufficientBalance(10, 50), http.StatusPaymentRequired},
		{"ineligible", apperrors.Ineligible("requires gold tier"), http.StatusForbidden},
		{"conflict", apperrors.Conflict("redemption is APPROVED, not PENDING"), http.StatusConflict},
		{"internal", apperrors.Internal("balance drift"), http.StatusInternalServerError},
		{"plain error", errors.New("connection reset"), http.StatusInternalServerError},
		{"wrapped taxonomy error", fmt.Errorf("redeem: %w", apperrors.NotFound("reward")), http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			respondWithAppError(rr, tc.err)

			assert.Equal(t, tc.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

			var body map[string]any
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestRespondWithAppError_HidesInternalDetail(t *testing.T) {
	rr := httptest.NewRecorder()
	respondWithAppError(rr, errors.New("pq: relation point_ledgers does not exist"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body["error"])
}

func TestRespondWithAppError_BalancePayload(t *testing.T) {
	rr := httptest.NewRecorder()
	respondWithAppError(rr, apperrors.InsufficientBalance(120, 500))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(120), body["balance"])
	assert.Equal(t, float64(500), body["required"])
}
