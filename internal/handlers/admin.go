package handlers

import (
	"net/http"

	"lms/internal/money"
)

func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stats")
		return
	}
	courses, err := h.courses.Count(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stats")
		return
	}
	pendingEnrollments, err := h.enrollments.CountByStatus(r.Context(), "pending")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stats")
		return
	}
	activeEnrollments, err := h.enrollments.CountByStatus(r.Context(), "enrolled")
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stats")
		return
	}
	volume, err := h.transactions.CompletedVolume(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stats")
		return
	}
	total, err := h.accounts.TotalBalance(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load stats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"total_users":         users,
		"total_courses":       courses,
		"pending_enrollments": pendingEnrollments,
		"active_enrollments":  activeEnrollments,
		"completed_volume":    money.FormatMinor(volume),
		"total_balance":       money.FormatMinor(total),
	})
}

func (h *Handler) AdminListTransactions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 50)
	offset := (page - 1) * limit
	transactions, err := h.transactions.ListAll(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load transactions")
		return
	}
	respondJSON(w, http.StatusOK, transactionsToJSON(transactions))
}

func (h *Handler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page := parseInt(query.Get("page"), 1)
	limit := parseInt(query.Get("limit"), 50)
	offset := (page - 1) * limit
	logs, err := h.audit.List(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to load audit logs")
		return
	}
	respondJSON(w, http.StatusOK, logs)
}

// Reconcile compares every account's stored balance against the sum of its
// double-entry rows and reports any drift.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.accounts.ListBalanceSummaries(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "unable to reconcile")
		return
	}
	mismatches := make([]map[string]any, 0)
	for _, s := range summaries {
		if s.Difference == 0 {
			continue
		}
		mismatches = append(mismatches, map[string]any{
			"account_number": s.AccountNumber,
			"stored_balance": money.FormatMinor(s.StoredBalance),
			"ledger_sum":     money.FormatMinor(s.LedgerSum),
			"difference":     money.FormatMinor(s.Difference),
		})
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"accounts_checked": len(summaries),
		"balanced":         len(mismatches) == 0,
		"mismatches":       mismatches,
	})
}
