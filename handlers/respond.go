package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"loyaltyLedgerAPI/internal/apperrors"
)

func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": "Internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

// respondWithAppError translates the service error taxonomy into HTTP
// statuses. Anything outside the taxonomy is logged and reported as a
// plain 500 so internals never leak into responses.
func respondWithAppError(w http.ResponseWriter, err error) {
	var (
		validation *apperrors.ValidationError
		notFound   *apperrors.NotFoundError
		balance    *apperrors.InsufficientBalanceError
		ineligible *apperrors.IneligibleError
		conflict   *apperrors.ConflictError
	)

	switch {
	case errors.As(err, &validation):
		respondWithError(w, http.StatusBadRequest, validation.Message)
	case errors.As(err, &notFound):
		respondWithError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &balance):
		respondWithJSON(w, http.StatusPaymentRequired, map[string]any{
			"error":    balance.Error(),
			"balance":  balance.Balance,
			"required": balance.Required,
		})
	case errors.As(err, &ineligible):
		respondWithError(w, http.StatusForbidden, ineligible.Reason)
	case errors.As(err, &conflict):
		respondWithError(w, http.StatusConflict, conflict.Message)
	default:
		log.Printf("unhandled service error: %v", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
	}
}
