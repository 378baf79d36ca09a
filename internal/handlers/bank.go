package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"lms/internal/auth"
	"lms/internal/middleware"
	"lms/internal/money"
	"lms/internal/services"
	"lms/internal/validator"
	"lms/internal/websocket"

	"github.com/go-chi/chi/v5"
)

type bankSetupRequest struct {
	AccountNumber  string `json:"account_number"`
	Secret         string `json:"secret"`
	InitialBalance string `json:"initial_balance"`
}

func (h *Handler) SetupBankAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req bankSetupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if err := validator.ValidateAccountNumber(req.AccountNumber); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateAccountSecret(req.Secret); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	initialMinor := int64(500000)
	if req.InitialBalance != "" {
		parsed, err := money.ParseMinor(req.InitialBalance)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_amount")
			return
		}
		initialMinor = parsed
	}
	result, err := h.service.SetupAccount(r.Context(), services.SetupAccountRequest{
		UserID:        userID,
		AccountNumber: req.AccountNumber,
		Secret:        req.Secret,
		InitialMinor:  initialMinor,
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"account_number": result.AccountNumber,
		"balance":        valueToMoney(result.Balance),
	})
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	account, err := h.service.AccountForUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account_number": account.AccountNumber,
		"balance":        valueToMoney(account.Balance),
	})
}

func (h *Handler) GetAccountByNumber(w http.ResponseWriter, r *http.Request) {
	number := chi.URLParam(r, "number")
	account, err := h.service.AccountByNumber(r.Context(), number)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"account_number": account.AccountNumber,
		"balance":        valueToMoney(account.Balance),
	})
}

type bankTransactionRequest struct {
	FromAccount string `json:"from_account"`
	ToAccount   string `json:"to_account"`
	Amount      string `json:"amount"`
	Secret      string `json:"secret"`
}

// ProcessTransaction is the simulated bank's own transfer API: any holder of
// an account number and its secret can move funds.
func (h *Handler) ProcessTransaction(w http.ResponseWriter, r *http.Request) {
	var req bankTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.FromAccount == "" || req.ToAccount == "" || req.Secret == "" {
		respondError(w, http.StatusBadRequest, "all fields are required")
		return
	}
	amountMinor, err := money.ParseMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_amount")
		return
	}
	secret := req.Secret
	result, err := h.service.Transfer(r.Context(), services.TransferRequest{
		FromAccount: req.FromAccount,
		ToAccount:   req.ToAccount,
		AmountMinor: amountMinor,
		Secret:      &secret,
		Description: "Bank transfer",
	})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	sides := []struct {
		number  string
		balance int64
	}{
		{req.FromAccount, result.FromBalance},
		{req.ToAccount, result.ToBalance},
	}
	for _, side := range sides {
		account, err := h.accounts.GetByNumber(r.Context(), side.number)
		if err != nil || account.UserID == nil {
			continue
		}
		h.hub.BroadcastBalance(*account.UserID, websocket.BalanceUpdate{
			AccountNumber: side.number,
			Balance:       valueToMoney(side.balance),
			Reason:        "transfer",
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"from_account": req.FromAccount,
		"to_account":   req.ToAccount,
		"amount":       valueToMoney(amountMinor),
		"new_balance":  valueToMoney(result.FromBalance),
	})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserIDFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	account, err := h.service.AccountForUser(r.Context(), userID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	query := r.URL.Query()
	txType := query.Get("type")
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 20)
	offset := (page - 1) * limit
	transactions, err := h.transactions.ListForAccount(r.Context(), account.AccountNumber, txType, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, transactionsToJSON(transactions))
}

func (h *Handler) WSBalances(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, http.StatusUnauthorized, "missing token")
		return
	}
	claims, err := auth.ParseToken(h.cfg.JWTSecret, token)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "invalid token")
		return
	}
	websocket.ServeWS(w, r, h.hub, claims.UserID)
}

func respondServiceError(w http.ResponseWriter, err error) {
	var reconciliation *services.ReconciliationError
	if errors.As(err, &reconciliation) {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error":       "reconciliation_required",
			"transfer_id": reconciliation.TransferID,
		})
		return
	}
	switch {
	case errors.Is(err, services.ErrInvalidAmount), errors.Is(err, services.ErrSameAccountTransfer):
		respondError(w, http.StatusBadRequest, "invalid_amount")
	case errors.Is(err, services.ErrInvalidSecret):
		respondError(w, http.StatusUnauthorized, "invalid_secret")
	case errors.Is(err, services.ErrAccountNotFound):
		respondError(w, http.StatusNotFound, "account_not_found")
	case errors.Is(err, services.ErrCourseNotFound):
		respondError(w, http.StatusNotFound, "course_not_found")
	case errors.Is(err, services.ErrPaymentNotFound):
		respondError(w, http.StatusNotFound, "payment_not_found")
	case errors.Is(err, services.ErrAccountExists):
		respondError(w, http.StatusConflict, "account_already_exists")
	case errors.Is(err, services.ErrAlreadyEnrolled):
		respondError(w, http.StatusConflict, "already_enrolled")
	case errors.Is(err, services.ErrInsufficientFunds):
		respondError(w, http.StatusBadRequest, "insufficient_funds")
	case errors.Is(err, services.ErrNotYourPayment):
		respondError(w, http.StatusForbidden, "payment_not_addressed_to_you")
	case errors.Is(err, services.ErrStalePayment):
		respondError(w, http.StatusConflict, "payment_already_processed")
	case errors.Is(err, services.ErrCourseCapacity):
		respondError(w, http.StatusBadRequest, "course_capacity_reached")
	case errors.Is(err, services.ErrConcurrencyConflict):
		respondError(w, http.StatusConflict, "concurrency_conflict")
	default:
		respondError(w, http.StatusInternalServerError, "operation_failed")
	}
}

func parseInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
