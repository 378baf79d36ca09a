package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"lms/internal/auth"
	"lms/internal/db"
	"lms/internal/store"
	"lms/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrSameAccountTransfer = errors.New("cannot transfer to same account")
	ErrInvalidSecret       = errors.New("invalid account secret")
	ErrAccountNotFound     = errors.New("account not found")
	ErrAccountExists       = errors.New("account already exists")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrCourseNotFound      = errors.New("course not found")
	ErrAlreadyEnrolled     = errors.New("already enrolled in this course")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrNotYourPayment      = errors.New("payment is addressed to another account")
	ErrStalePayment        = errors.New("payment is not pending")
	ErrCourseCapacity      = errors.New("course capacity reached")
	ErrConcurrencyConflict = errors.New("too much contention, please retry")
)

// ReconciliationError reports a fund movement that committed while a
// dependent bookkeeping write failed. The transfer stands; the caller must
// not treat this as a clean failure.
type ReconciliationError struct {
	TransferID string
	Step       string
	Err        error
}

func (e *ReconciliationError) Error() string {
	return fmt.Sprintf("transfer %s committed but %s failed: %v", e.TransferID, e.Step, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

// LedgerService owns every balance mutation. Account rows are only ever
// written through it, under row locks taken in ascending account-number
// order.
type LedgerService struct {
	txRunner     db.TxRunner
	accounts     AccountStore
	transactions TransactionStore
	ledger       LedgerStore
	courses      CourseStore
	enrollments  EnrollmentStore
	audit        AuditStore
	hub          BalanceHub

	clearingNumber string
	courseCapacity int
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Execer, id string, userID *string, accountNumber, secretHash string, balance int64, isClearing bool) error
	GetByNumber(ctx context.Context, accountNumber string) (store.Account, error)
	GetByUser(ctx context.Context, userID string) (store.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountNumber string) (store.Account, error)
	UpdateBalance(ctx context.Context, tx store.Execer, accountNumber string, balance int64) error
}

type TransactionStore interface {
	Create(ctx context.Context, tx store.Execer, input store.TransactionInput) error
	GetForUpdate(ctx context.Context, tx store.Getter, transactionID string) (store.Transaction, error)
	MarkCompleted(ctx context.Context, tx store.Execer, transactionID string) (int64, error)
	MarkFailed(ctx context.Context, tx store.Execer, transactionID, reason string) (int64, error)
	ListPendingFor(ctx context.Context, accountNumber string) ([]store.Transaction, error)
}

type LedgerStore interface {
	InsertEntries(ctx context.Context, tx store.Execer, entries []store.LedgerEntryInput) error
}

type CourseStore interface {
	Create(ctx context.Context, tx store.Execer, input store.CourseInput) error
	CountActive(ctx context.Context, tx store.Getter) (int, error)
	GetByID(ctx context.Context, courseID string) (store.Course, error)
}

type EnrollmentStore interface {
	Create(ctx context.Context, tx store.Execer, id, learnerID, courseID, status string) error
	GetByLearnerAndCourse(ctx context.Context, learnerID, courseID string) (store.Enrollment, error)
	MarkEnrolled(ctx context.Context, tx store.Execer, id string) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type BalanceHub interface {
	BroadcastBalance(userID string, update websocket.BalanceUpdate)
}

func NewLedgerService(txRunner db.TxRunner, accounts AccountStore, transactions TransactionStore, ledger LedgerStore, courses CourseStore, enrollments EnrollmentStore, audit AuditStore, hub BalanceHub, clearingNumber string, courseCapacity int) *LedgerService {
	return &LedgerService{
		txRunner:       txRunner,
		accounts:       accounts,
		transactions:   transactions,
		ledger:         ledger,
		courses:        courses,
		enrollments:    enrollments,
		audit:          audit,
		hub:            hub,
		clearingNumber: clearingNumber,
		courseCapacity: courseCapacity,
	}
}

type TransferRequest struct {
	FromAccount string
	ToAccount   string
	AmountMinor int64
	// Secret, when set, must match the source account's secret. Internal
	// movements out of the clearing account pass nil.
	Secret      *string
	Description string
}

type TransferResult struct {
	TransferID  string
	FromBalance int64
	ToBalance   int64
}

// Transfer is the sole balance-mutating primitive: debit and credit commit
// together or not at all, and both post-transfer balances are returned.
func (s *LedgerService) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	var result TransferResult
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		result, err = s.transferLocked(ctx, tx, req)
		return err
	})
	if err != nil {
		return TransferResult{}, mapConflict(err)
	}
	return result, nil
}

// transferLocked moves funds inside an already-open transaction so that
// workflows can combine a transfer with their own bookkeeping writes.
func (s *LedgerService) transferLocked(ctx context.Context, tx *sqlx.Tx, req TransferRequest) (TransferResult, error) {
	if req.AmountMinor <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	if req.FromAccount == req.ToAccount {
		return TransferResult{}, ErrSameAccountTransfer
	}
	fromAccount, toAccount, err := s.lockTwoAccounts(ctx, tx, req.FromAccount, req.ToAccount)
	if err != nil {
		return TransferResult{}, notFoundAsAccountErr(err)
	}
	if req.Secret != nil && !auth.CheckSecret(fromAccount.SecretHash, *req.Secret) {
		return TransferResult{}, ErrInvalidSecret
	}
	if fromAccount.Balance < req.AmountMinor {
		return TransferResult{}, ErrInsufficientFunds
	}
	newFrom := fromAccount.Balance - req.AmountMinor
	newTo := toAccount.Balance + req.AmountMinor
	if err := s.accounts.UpdateBalance(ctx, tx, req.FromAccount, newFrom); err != nil {
		return TransferResult{}, err
	}
	if err := s.accounts.UpdateBalance(ctx, tx, req.ToAccount, newTo); err != nil {
		return TransferResult{}, err
	}
	transferID := uuid.NewString()
	entries := []store.LedgerEntryInput{
		{
			ID:            uuid.NewString(),
			TransferID:    transferID,
			AccountNumber: req.FromAccount,
			Amount:        -req.AmountMinor,
			Description:   req.Description + " debit",
		},
		{
			ID:            uuid.NewString(),
			TransferID:    transferID,
			AccountNumber: req.ToAccount,
			Amount:        req.AmountMinor,
			Description:   req.Description + " credit",
		},
	}
	if err := ensureBalanced(entries); err != nil {
		return TransferResult{}, err
	}
	if err := s.ledger.InsertEntries(ctx, tx, entries); err != nil {
		return TransferResult{}, err
	}
	return TransferResult{
		TransferID:  transferID,
		FromBalance: newFrom,
		ToBalance:   newTo,
	}, nil
}

func (s *LedgerService) lockTwoAccounts(ctx context.Context, tx store.Getter, firstNumber, secondNumber string) (store.Account, store.Account, error) {
	leftNumber, rightNumber := orderedNumbers(firstNumber, secondNumber)
	leftAccount, err := s.accounts.GetForUpdate(ctx, tx, leftNumber)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}
	rightAccount, err := s.accounts.GetForUpdate(ctx, tx, rightNumber)
	if err != nil {
		return store.Account{}, store.Account{}, err
	}
	if firstNumber == leftNumber {
		return leftAccount, rightAccount, nil
	}
	return rightAccount, leftAccount, nil
}

// orderedNumbers fixes the global lock order: every call site locks the
// lower account number first, so transfers sharing an account cannot
// deadlock each other.
func orderedNumbers(firstNumber, secondNumber string) (string, string) {
	if firstNumber <= secondNumber {
		return firstNumber, secondNumber
	}
	return secondNumber, firstNumber
}

func ensureBalanced(entries []store.LedgerEntryInput) error {
	var sum int64
	for _, entry := range entries {
		sum += entry.Amount
	}
	if sum != 0 {
		return errors.New("ledger entries are not balanced")
	}
	return nil
}

func notFoundAsAccountErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAccountNotFound
	}
	return err
}

func mapConflict(err error) error {
	if errors.Is(err, db.ErrRetryExhausted) {
		return ErrConcurrencyConflict
	}
	return err
}

func stringPtr(value string) *string {
	return &value
}
