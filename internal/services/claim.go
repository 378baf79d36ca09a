package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"lms/internal/auth"
	"lms/internal/money"
	"lms/internal/store"
	"lms/internal/websocket"

	"github.com/jmoiron/sqlx"
)

type ClaimRequest struct {
	UserID        string
	TransactionID string
	Secret        string
}

type ClaimResult struct {
	TransactionID  string
	AmountReceived int64
	NewBalance     int64
}

// Claim converts a pending receivable into a funded transfer out of the
// clearing account. The amount moved is the one frozen on the transaction at
// enrollment time, never the current course price.
func (s *LedgerService) Claim(ctx context.Context, req ClaimRequest) (ClaimResult, error) {
	account, err := s.accounts.GetByUser(ctx, req.UserID)
	if err != nil {
		return ClaimResult{}, notFoundAsAccountErr(err)
	}
	if !auth.CheckSecret(account.SecretHash, req.Secret) {
		return ClaimResult{}, ErrInvalidSecret
	}

	var result ClaimResult
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		txn, err := s.transactions.GetForUpdate(ctx, tx, req.TransactionID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrPaymentNotFound
			}
			return err
		}
		if txn.ToAccount != account.AccountNumber {
			return ErrNotYourPayment
		}
		if txn.Status != "pending" {
			return ErrStalePayment
		}
		fromAccount := s.clearingNumber
		if txn.FromAccount != nil {
			fromAccount = *txn.FromAccount
		}
		transfer, err := s.transferLocked(ctx, tx, TransferRequest{
			FromAccount: fromAccount,
			ToAccount:   account.AccountNumber,
			AmountMinor: txn.Amount,
			Description: "Instructor payment",
		})
		if err != nil {
			return err
		}
		affected, err := s.transactions.MarkCompleted(ctx, tx, txn.ID)
		if err != nil {
			return err
		}
		if affected == 0 {
			return ErrStalePayment
		}
		if affected, err := s.enrollments.MarkEnrolled(ctx, tx, txn.ReferenceID); err != nil {
			return err
		} else if affected == 0 {
			return errors.New("no pending enrollment for payment " + txn.ID)
		}
		data, _ := json.Marshal(map[string]string{
			"transfer_id": transfer.TransferID,
			"amount":      money.FormatMinor(txn.Amount),
		})
		if err := s.audit.Log(ctx, tx, req.UserID, "claim", "transaction", txn.ID, string(data)); err != nil {
			return err
		}
		result = ClaimResult{
			TransactionID:  txn.ID,
			AmountReceived: txn.Amount,
			NewBalance:     transfer.ToBalance,
		}
		return nil
	})
	if err != nil {
		return ClaimResult{}, mapConflict(err)
	}

	s.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
		AccountNumber: account.AccountNumber,
		Balance:       money.FormatMinor(result.NewBalance),
		Reason:        "instructor_payment",
	})
	return result, nil
}

// PendingPaymentsFor lists pending transactions addressed to a user's
// account. Callers may re-issue the query freely; it never mutates state.
func (s *LedgerService) PendingPaymentsFor(ctx context.Context, userID string) ([]store.Transaction, error) {
	account, err := s.accounts.GetByUser(ctx, userID)
	if err != nil {
		return nil, notFoundAsAccountErr(err)
	}
	return s.transactions.ListPendingFor(ctx, account.AccountNumber)
}
