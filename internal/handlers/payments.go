package handlers

import (
	"encoding/json"
	"net/http"

	"lms/internal/middleware"
	"lms/internal/services"
)

func (h *Handler) PendingTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	pending, err := h.service.PendingPaymentsFor(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, transactionsToJSON(pending))
}

type claimRequest struct {
	TransactionID string `json:"transaction_id"`
	Secret        string `json:"secret"`
}

func (h *Handler) ClaimPayment(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req claimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.TransactionID == "" || req.Secret == "" {
		respondError(w, http.StatusBadRequest, "transaction_id and secret are required")
		return
	}
	result, err := h.service.Claim(r.Context(), services.ClaimRequest{
		UserID:        userID,
		TransactionID: req.TransactionID,
		Secret:        req.Secret,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"transaction_id":  result.TransactionID,
		"amount_received": valueToMoney(result.AmountReceived),
		"new_balance":     valueToMoney(result.NewBalance),
	})
}
