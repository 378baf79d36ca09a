package main

import (
	"bufio"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"lms/internal/config"
	"lms/internal/db"

	"github.com/google/uuid"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		log.Fatalf("failed to ensure schema_migrations: %v", err)
	}

	files, err := filepath.Glob("migrations/*.sql")
	if err != nil {
		log.Fatalf("failed to read migrations: %v", err)
	}
	sort.Strings(files)

	for _, file := range files {
		filename := filepath.Base(file)
		var exists bool
		if err := database.Get(&exists, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE filename = $1)`, filename); err != nil {
			log.Fatalf("failed to read migration state: %v", err)
		}
		if exists {
			continue
		}
		if err := applyFile(database, file); err != nil {
			log.Fatalf("failed to apply %s: %v", filename, err)
		}
		if _, err := database.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, filename); err != nil {
			log.Fatalf("failed to record migration %s: %v", filename, err)
		}
		fmt.Printf("applied %s\n", filename)
	}

	seedClearingAccount(database, cfg)
}

// seedClearingAccount guarantees the platform's central account exists with
// its configured opening balance, recorded as a completed topup so the
// ledger matches the stored balance. Re-running is a no-op.
func seedClearingAccount(database execGetter, cfg config.Config) {
	accountID := uuid.NewString()
	result, err := database.Exec(`
		INSERT INTO accounts (id, user_id, account_number, secret_hash, balance, is_clearing)
		VALUES ($1, NULL, $2, '', $3, TRUE)
		ON CONFLICT (account_number) DO NOTHING
	`, accountID, cfg.ClearingAccountNumber, cfg.ClearingInitialBalance)
	if err != nil {
		log.Fatalf("failed to seed clearing account: %v", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		log.Fatalf("failed to seed clearing account: %v", err)
	}
	if inserted == 0 {
		fmt.Printf("clearing account %s already present\n", cfg.ClearingAccountNumber)
		return
	}
	transferID := uuid.NewString()
	if _, err := database.Exec(`
		INSERT INTO transactions (id, from_account, to_account, amount, type, reference_id, status, completed_at)
		VALUES ($1, NULL, $2, $3, 'topup', $4, 'completed', NOW())
	`, transferID, cfg.ClearingAccountNumber, cfg.ClearingInitialBalance, accountID); err != nil {
		log.Fatalf("failed to record clearing topup: %v", err)
	}
	if _, err := database.Exec(`
		INSERT INTO ledger_entries (id, transfer_id, account_number, amount, description)
		VALUES ($1, $2, $3, $4, 'Initial topup credit')
	`, uuid.NewString(), transferID, cfg.ClearingAccountNumber, cfg.ClearingInitialBalance); err != nil {
		log.Fatalf("failed to record clearing ledger credit: %v", err)
	}
	fmt.Printf("clearing account %s ready\n", cfg.ClearingAccountNumber)
}

func applyFile(db execGetter, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	sections := strings.Split(string(content), "-- +migrate Down")
	if len(sections) == 0 {
		return nil
	}
	up := sections[0]
	statements := splitSQL(up)
	for _, stmt := range statements {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func splitSQL(sqlText string) []string {
	var statements []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(sqlText))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		current.WriteString(line)
		current.WriteRune('\n')
		if strings.Contains(line, ";") {
			statements = append(statements, current.String())
			current.Reset()
		}
	}
	if strings.TrimSpace(current.String()) != "" {
		statements = append(statements, current.String())
	}
	return statements
}

type execGetter interface {
	Exec(query string, args ...any) (sql.Result, error)
	Get(dest any, query string, args ...any) error
}
