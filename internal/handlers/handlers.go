package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"lms/internal/money"
	"lms/internal/store"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func valueToString(value any) string {
	if value == nil {
		return ""
	}
	switch v := value.(type) {
	case string:
		return v
	case *string:
		if v == nil {
			return ""
		}
		return *v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}

func valueToMoney(value any) string {
	return money.FormatMinor(money.ValueToInt64(value))
}

func transactionToJSON(txn store.Transaction) map[string]any {
	out := map[string]any{
		"id":           txn.ID,
		"to_account":   txn.ToAccount,
		"amount":       valueToMoney(txn.Amount),
		"type":         txn.Type,
		"reference_id": txn.ReferenceID,
		"status":       txn.Status,
		"created_at":   txn.CreatedAt,
	}
	if txn.FromAccount != nil {
		out["from_account"] = *txn.FromAccount
	}
	if txn.FailureReason != nil {
		out["failure_reason"] = *txn.FailureReason
	}
	return out
}

func transactionsToJSON(transactions []store.Transaction) []map[string]any {
	out := make([]map[string]any, 0, len(transactions))
	for _, txn := range transactions {
		out = append(out, transactionToJSON(txn))
	}
	return out
}
