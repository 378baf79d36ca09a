package store

import "context"

type AccountStore struct {
	db DB
}

type Account struct {
	ID            string  `db:"id"`
	UserID        *string `db:"user_id"`
	AccountNumber string  `db:"account_number"`
	SecretHash    string  `db:"secret_hash"`
	Balance       int64   `db:"balance"`
	IsClearing    bool    `db:"is_clearing"`
	CreatedAt     any     `db:"created_at"`
}

type AccountBalanceSummary struct {
	AccountNumber string  `db:"account_number"`
	UserID        *string `db:"user_id"`
	StoredBalance int64   `db:"stored_balance"`
	LedgerSum     int64   `db:"ledger_sum"`
	Difference    int64   `db:"difference"`
	IsClearing    bool    `db:"is_clearing"`
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Create(ctx context.Context, tx Execer, id string, userID *string, accountNumber, secretHash string, balance int64, isClearing bool) error {
	query := `
		INSERT INTO accounts (id, user_id, account_number, secret_hash, balance, is_clearing)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := tx.ExecContext(ctx, query, id, userID, accountNumber, secretHash, balance, isClearing)
	return err
}

func (s *AccountStore) GetByNumber(ctx context.Context, accountNumber string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, account_number, secret_hash, balance, is_clearing, created_at
		FROM accounts
		WHERE account_number = $1
	`, accountNumber)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetByUser(ctx context.Context, userID string) (Account, error) {
	var row Account
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, account_number, secret_hash, balance, is_clearing, created_at
		FROM accounts
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountNumber string) (Account, error) {
	var row Account
	err := tx.GetContext(ctx, &row, `
		SELECT id, user_id, account_number, secret_hash, balance, is_clearing
		FROM accounts
		WHERE account_number = $1
		FOR UPDATE
	`, accountNumber)
	if err != nil {
		return Account{}, err
	}
	return row, nil
}

func (s *AccountStore) UpdateBalance(ctx context.Context, tx Execer, accountNumber string, balance int64) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = $1, updated_at = NOW()
		WHERE account_number = $2
	`, balance, accountNumber)
	return err
}

func (s *AccountStore) ListBalanceSummaries(ctx context.Context) ([]AccountBalanceSummary, error) {
	var rows []AccountBalanceSummary
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.account_number,
		       a.user_id,
		       a.balance AS stored_balance,
		       COALESCE(SUM(l.amount), 0) AS ledger_sum,
		       (a.balance - COALESCE(SUM(l.amount), 0)) AS difference,
		       a.is_clearing
		FROM accounts a
		LEFT JOIN ledger_entries l ON l.account_number = a.account_number
		GROUP BY a.account_number, a.user_id, a.balance, a.is_clearing
		ORDER BY a.account_number
	`)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) TotalBalance(ctx context.Context) (int64, error) {
	var total int64
	err := s.db.GetContext(ctx, &total, `SELECT COALESCE(SUM(balance), 0) FROM accounts`)
	return total, err
}
