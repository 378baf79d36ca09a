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

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type SetupAccountRequest struct {
	UserID        string
	AccountNumber string
	Secret        string
	InitialMinor  int64
}

type SetupAccountResult struct {
	AccountID     string
	AccountNumber string
	Balance       int64
}

// SetupAccount creates a user's single bank account. An initial balance is
// an external injection recorded as a completed topup transaction, not a
// transfer from any other account.
func (s *LedgerService) SetupAccount(ctx context.Context, req SetupAccountRequest) (SetupAccountResult, error) {
	if req.InitialMinor < 0 {
		return SetupAccountResult{}, ErrInvalidAmount
	}
	if _, err := s.accounts.GetByUser(ctx, req.UserID); err == nil {
		return SetupAccountResult{}, ErrAccountExists
	} else if !errors.Is(err, sql.ErrNoRows) {
		return SetupAccountResult{}, err
	}
	secretHash, err := auth.HashSecret(req.Secret)
	if err != nil {
		return SetupAccountResult{}, err
	}
	accountID := uuid.NewString()
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.accounts.Create(ctx, tx, accountID, &req.UserID, req.AccountNumber, secretHash, req.InitialMinor, false); err != nil {
			return err
		}
		if req.InitialMinor > 0 {
			topupID := uuid.NewString()
			if err := s.transactions.Create(ctx, tx, store.TransactionInput{
				ID:          topupID,
				FromAccount: nil,
				ToAccount:   req.AccountNumber,
				Amount:      req.InitialMinor,
				Type:        "topup",
				ReferenceID: accountID,
				Status:      "completed",
			}); err != nil {
				return err
			}
			if err := s.ledger.InsertEntries(ctx, tx, []store.LedgerEntryInput{{
				ID:            uuid.NewString(),
				TransferID:    topupID,
				AccountNumber: req.AccountNumber,
				Amount:        req.InitialMinor,
				Description:   "Initial topup credit",
			}}); err != nil {
				return err
			}
		}
		data, _ := json.Marshal(map[string]string{
			"account_number": req.AccountNumber,
			"balance":        money.FormatMinor(req.InitialMinor),
		})
		return s.audit.Log(ctx, tx, req.UserID, "bank_setup", "account", accountID, string(data))
	})
	if err != nil {
		if pgErr, ok := asPQError(err); ok && pgErr.Code == "23505" {
			return SetupAccountResult{}, ErrAccountExists
		}
		return SetupAccountResult{}, mapConflict(err)
	}
	s.hub.BroadcastBalance(req.UserID, websocket.BalanceUpdate{
		AccountNumber: req.AccountNumber,
		Balance:       money.FormatMinor(req.InitialMinor),
		Reason:        "setup",
	})
	return SetupAccountResult{
		AccountID:     accountID,
		AccountNumber: req.AccountNumber,
		Balance:       req.InitialMinor,
	}, nil
}

func (s *LedgerService) AccountForUser(ctx context.Context, userID string) (store.Account, error) {
	account, err := s.accounts.GetByUser(ctx, userID)
	if err != nil {
		return store.Account{}, notFoundAsAccountErr(err)
	}
	return account, nil
}

func (s *LedgerService) AccountByNumber(ctx context.Context, accountNumber string) (store.Account, error) {
	account, err := s.accounts.GetByNumber(ctx, accountNumber)
	if err != nil {
		return store.Account{}, notFoundAsAccountErr(err)
	}
	return account, nil
}

func asPQError(err error) (*pq.Error, bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr, true
	}
	return nil, false
}
