package store

import (
	"context"
	"fmt"
)

type TransactionStore struct {
	db DB
}

type Transaction struct {
	ID            string  `db:"id"`
	FromAccount   *string `db:"from_account"`
	ToAccount     string  `db:"to_account"`
	Amount        int64   `db:"amount"`
	Type          string  `db:"type"`
	ReferenceID   string  `db:"reference_id"`
	Status        string  `db:"status"`
	FailureReason *string `db:"failure_reason"`
	CreatedAt     any     `db:"created_at"`
	ValidatedAt   any     `db:"validated_at"`
	CompletedAt   any     `db:"completed_at"`
}

type TransactionInput struct {
	ID          string
	FromAccount *string
	ToAccount   string
	Amount      int64
	Type        string
	ReferenceID string
	Status      string
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Create(ctx context.Context, tx Execer, input TransactionInput) error {
	query := `
		INSERT INTO transactions (id, from_account, to_account, amount, type, reference_id, status, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CASE WHEN $7 = 'completed' THEN NOW() ELSE NULL END)
	`
	_, err := tx.ExecContext(ctx, query,
		input.ID, input.FromAccount, input.ToAccount, input.Amount,
		input.Type, input.ReferenceID, input.Status,
	)
	return err
}

func (s *TransactionStore) GetForUpdate(ctx context.Context, tx Getter, transactionID string) (Transaction, error) {
	var row Transaction
	err := tx.GetContext(ctx, &row, `
		SELECT id, from_account, to_account, amount, type, reference_id, status, failure_reason,
		       created_at, validated_at, completed_at
		FROM transactions
		WHERE id = $1
		FOR UPDATE
	`, transactionID)
	if err != nil {
		return Transaction{}, err
	}
	return row, nil
}

// MarkCompleted transitions a pending transaction to completed. The status
// guard in the WHERE clause makes the transition monotonic: zero rows
// affected means the row was no longer pending.
func (s *TransactionStore) MarkCompleted(ctx context.Context, tx Execer, transactionID string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'completed', validated_at = NOW(), completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, transactionID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) MarkFailed(ctx context.Context, tx Execer, transactionID, reason string) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = 'failed', failure_reason = $2, completed_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`, transactionID, reason)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *TransactionStore) ListPendingFor(ctx context.Context, accountNumber string) ([]Transaction, error) {
	var rows []Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, from_account, to_account, amount, type, reference_id, status, failure_reason,
		       created_at, validated_at, completed_at
		FROM transactions
		WHERE to_account = $1 AND status = 'pending'
		ORDER BY created_at
	`, accountNumber)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListForAccount(ctx context.Context, accountNumber, txType string, limit, offset int) ([]Transaction, error) {
	var rows []Transaction
	query := `
		SELECT id, from_account, to_account, amount, type, reference_id, status, failure_reason,
		       created_at, validated_at, completed_at
		FROM transactions
		WHERE (from_account = $1 OR to_account = $1)
	`
	args := []any{accountNumber}
	param := 2
	if txType != "" {
		query += " AND type = $2"
		args = append(args, txType)
		param = 3
	}
	query += " ORDER BY created_at DESC LIMIT $" + itoa(param) + " OFFSET $" + itoa(param+1)
	args = append(args, limit, offset)
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) ListAll(ctx context.Context, limit, offset int) ([]Transaction, error) {
	var rows []Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, from_account, to_account, amount, type, reference_id, status, failure_reason,
		       created_at, validated_at, completed_at
		FROM transactions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *TransactionStore) CompletedVolume(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(amount), 0)
		FROM transactions
		WHERE status = 'completed'
	`)
	return total, err
}

func itoa(value int) string {
	return fmt.Sprintf("%d", value)
}
