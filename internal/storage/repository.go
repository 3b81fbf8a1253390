package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"financeflow/internal/core"

	_ "modernc.org/sqlite"
)

// Timestamps are stored as fixed-width UTC text so that lexical comparison
// in SQL matches chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// querier is the subset of *sql.DB and *sql.Tx used by the repository.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type SQLiteRepository struct {
	db *sql.DB
	q  querier
}

var _ Store = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db, q: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks that the database is reachable.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(repo Repository) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&SQLiteRepository{db: r.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Users

func (r *SQLiteRepository) CreateUser(ctx context.Context, u *core.User) error {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO users (username, email, password_hash, full_name, monthly_budget, currency, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.Username, u.Email, u.PasswordHash, u.FullName, u.MonthlyBudget, u.Currency,
		formatTime(now), formatTime(now))
	if err != nil {
		return fmt.Errorf("create user: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	u.ID, u.CreatedAt, u.UpdatedAt = id, now, now

	slog.InfoContext(ctx, "User saved to SQLite", "id", u.ID, "username", u.Username)
	return nil
}

const userColumns = `id, username, email, password_hash, full_name, monthly_budget, currency, created_at, updated_at`

func (r *SQLiteRepository) GetUser(ctx context.Context, id int64) (core.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NewNotFound("user", id)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

func (r *SQLiteRepository) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, core.NewNotFound("user", username)
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user %q: %w", username, err)
	}
	return u, nil
}

func (r *SQLiteRepository) UpdateUser(ctx context.Context, u *core.User) error {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		UPDATE users SET email = ?, password_hash = ?, full_name = ?, monthly_budget = ?, currency = ?, updated_at = ?
		WHERE id = ?`,
		u.Email, u.PasswordHash, u.FullName, u.MonthlyBudget, u.Currency, formatTime(now), u.ID)
	if err != nil {
		return fmt.Errorf("update user %d: %w", u.ID, mapConstraint(err))
	}
	if err := expectRow(res, "user", u.ID); err != nil {
		return err
	}
	u.UpdatedAt = now
	return nil
}

func scanUser(row *sql.Row) (core.User, error) {
	var u core.User
	var created, updated string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.FullName,
		&u.MonthlyBudget, &u.Currency, &created, &updated); err != nil {
		return core.User{}, err
	}
	u.CreatedAt = parseTime(created)
	u.UpdatedAt = parseTime(updated)
	return u, nil
}

// Accounts

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a *core.Account) error {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO accounts (user_id, account_number, name, bank_name, balance, currency, external_id, access_token, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.AccountNumber, a.Name, a.BankName, a.Balance, a.Currency,
		nullString(a.ExternalID), a.AccessToken, formatTime(now))
	if err != nil {
		return fmt.Errorf("create account: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	a.ID, a.CreatedAt = id, now

	slog.InfoContext(ctx, "Account saved to SQLite", "id", a.ID, "user_id", a.UserID, "name", a.Name)
	return nil
}

const accountColumns = `id, user_id, account_number, name, bank_name, balance, currency, external_id, access_token, created_at`

func (r *SQLiteRepository) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id)
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}
	accounts, err := scanAccounts(rows)
	if err != nil {
		return core.Account{}, fmt.Errorf("get account %d: %w", id, err)
	}
	if len(accounts) == 0 {
		return core.Account{}, core.NewNotFound("account", id)
	}
	return accounts[0], nil
}

func (r *SQLiteRepository) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE user_id = ? ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("list accounts for user %d: %w", userID, err)
	}
	accounts, err := scanAccounts(rows)
	if err != nil {
		return nil, fmt.Errorf("list accounts for user %d: %w", userID, err)
	}
	return accounts, nil
}

func (r *SQLiteRepository) UpdateAccount(ctx context.Context, a *core.Account) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE accounts SET name = ?, bank_name = ?, balance = ?, currency = ?, external_id = ?, access_token = ?
		WHERE id = ?`,
		a.Name, a.BankName, a.Balance, a.Currency, nullString(a.ExternalID), a.AccessToken, a.ID)
	if err != nil {
		return fmt.Errorf("update account %d: %w", a.ID, mapConstraint(err))
	}
	return expectRow(res, "account", a.ID)
}

func scanAccounts(rows *sql.Rows) ([]core.Account, error) {
	defer rows.Close()
	var out []core.Account
	for rows.Next() {
		var a core.Account
		var ext sql.NullString
		var created string
		if err := rows.Scan(&a.ID, &a.UserID, &a.AccountNumber, &a.Name, &a.BankName,
			&a.Balance, &a.Currency, &ext, &a.AccessToken, &created); err != nil {
			return nil, err
		}
		a.ExternalID = ext.String
		a.CreatedAt = parseTime(created)
		out = append(out, a)
	}
	return out, rows.Err()
}

// Transactions

func (r *SQLiteRepository) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	now := time.Now().UTC()
	res, err := r.q.ExecContext(ctx, `
		INSERT INTO transactions (account_id, description, amount, transaction_type, category, date, merchant, external_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.AccountID, t.Description, t.Amount, string(t.Type), string(t.Category),
		formatTime(t.Date), t.Merchant, nullString(t.ExternalID), formatTime(now))
	if err != nil {
		return fmt.Errorf("create transaction: %w", mapConstraint(err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	t.ID, t.CreatedAt = id, now

	slog.DebugContext(ctx, "Transaction saved to SQLite",
		"id", t.ID,
		"account_id", t.AccountID,
		"amount", t.Amount,
		"type", t.Type,
		"category", t.Category)
	return nil
}

const transactionColumns = `id, account_id, description, amount, transaction_type, category, date, merchant, external_id, created_at`

func (r *SQLiteRepository) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	txs, err := scanTransactions(rows)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("get transaction %d: %w", id, err)
	}
	if len(txs) == 0 {
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}
	return txs[0], nil
}

func (r *SQLiteRepository) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	res, err := r.q.ExecContext(ctx, `
		UPDATE transactions SET description = ?, amount = ?, transaction_type = ?, category = ?, date = ?, merchant = ?
		WHERE id = ?`,
		t.Description, t.Amount, string(t.Type), string(t.Category), formatTime(t.Date), t.Merchant, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction %d: %w", t.ID, err)
	}
	return expectRow(res, "transaction", t.ID)
}

func (r *SQLiteRepository) DeleteTransaction(ctx context.Context, id int64) (bool, error) {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete transaction %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete transaction %d: %w", id, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ExternalIDExists(ctx context.Context, externalID string) (bool, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(1) FROM transactions WHERE external_id = ?`, externalID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check external id %q: %w", externalID, err)
	}
	return n > 0, nil
}

func (r *SQLiteRepository) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	var (
		where []string
		args  []any
	)
	if f.AccountIDs != nil {
		if len(f.AccountIDs) == 0 {
			return nil, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.AccountIDs)), ",")
		where = append(where, "account_id IN ("+placeholders+")")
		for _, id := range f.AccountIDs {
			args = append(args, id)
		}
	}
	if !f.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, formatTime(f.From))
	}
	if !f.To.IsZero() {
		where = append(where, "date < ?")
		args = append(args, formatTime(f.To))
	}
	if f.Type != "" {
		where = append(where, "transaction_type = ?")
		args = append(args, string(f.Type))
	}
	if f.Category != "" {
		where = append(where, "category = ?")
		args = append(args, string(f.Category))
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, id DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	txs, err := scanTransactions(rows)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	defer rows.Close()
	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var typ, cat, date, created string
		var ext sql.NullString
		if err := rows.Scan(&t.ID, &t.AccountID, &t.Description, &t.Amount, &typ, &cat,
			&date, &t.Merchant, &ext, &created); err != nil {
			return nil, err
		}
		t.Type = core.TransactionType(typ)
		t.Category = core.Category(cat)
		t.Date = parseTime(date)
		t.ExternalID = ext.String
		t.CreatedAt = parseTime(created)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Budgets

func (r *SQLiteRepository) UpsertBudget(ctx context.Context, b *core.Budget) error {
	now := time.Now().UTC()
	row := r.q.QueryRowContext(ctx, `
		INSERT INTO budgets (user_id, category, monthly_limit, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, category) DO UPDATE SET monthly_limit = excluded.monthly_limit
		RETURNING id, created_at`,
		b.UserID, string(b.Category), b.MonthlyLimit, formatTime(now))
	var created string
	if err := row.Scan(&b.ID, &created); err != nil {
		return fmt.Errorf("upsert budget %s: %w", b.Category, err)
	}
	b.CreatedAt = parseTime(created)

	slog.InfoContext(ctx, "Budget saved to SQLite",
		"id", b.ID, "user_id", b.UserID, "category", b.Category, "limit", b.MonthlyLimit)
	return nil
}

func (r *SQLiteRepository) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, user_id, category, monthly_limit, created_at FROM budgets WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list budgets for user %d: %w", userID, err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var b core.Budget
		var cat, created string
		if err := rows.Scan(&b.ID, &b.UserID, &cat, &b.MonthlyLimit, &created); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		b.Category = core.Category(cat)
		b.CreatedAt = parseTime(created)
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list budgets for user %d: %w", userID, err)
	}
	SortBudgets(out)
	return out, nil
}

// SortBudgets orders budgets by category ordinal.
func SortBudgets(budgets []core.Budget) {
	sort.SliceStable(budgets, func(i, j int) bool {
		return budgets[i].Category.Ordinal() < budgets[j].Category.Ordinal()
	})
}

func expectRow(res sql.Result, kind string, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s %d: %w", kind, id, err)
	}
	if n == 0 {
		return core.NewNotFound(kind, id)
	}
	return nil
}

// mapConstraint turns unique constraint violations into core.ErrDuplicate.
func mapConstraint(err error) error {
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return fmt.Errorf("%w: %v", core.ErrDuplicate, err)
	}
	return err
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t.UTC()
}
