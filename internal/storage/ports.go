package storage

import (
	"context"

	"financeflow/internal/core"
)

// Ports implemented by every store.
type (
	UserStore interface {
		CreateUser(ctx context.Context, u *core.User) error
		GetUser(ctx context.Context, id int64) (core.User, error)
		GetUserByUsername(ctx context.Context, username string) (core.User, error)
		UpdateUser(ctx context.Context, u *core.User) error
	}

	AccountStore interface {
		CreateAccount(ctx context.Context, a *core.Account) error
		GetAccount(ctx context.Context, id int64) (core.Account, error)
		// ListAccounts returns the user's accounts ordered by id.
		ListAccounts(ctx context.Context, userID int64) ([]core.Account, error)
		UpdateAccount(ctx context.Context, a *core.Account) error
	}

	TransactionStore interface {
		CreateTransaction(ctx context.Context, t *core.Transaction) error
		GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
		UpdateTransaction(ctx context.Context, t *core.Transaction) error
		// DeleteTransaction reports whether a row was removed.
		DeleteTransaction(ctx context.Context, id int64) (bool, error)
		ExternalIDExists(ctx context.Context, externalID string) (bool, error)
		// ListTransactions returns matches ordered by date, newest first.
		ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error)
	}

	BudgetStore interface {
		// UpsertBudget creates or updates the budget for (user, category).
		UpsertBudget(ctx context.Context, b *core.Budget) error
		// ListBudgets returns the user's budgets in category order.
		ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error)
	}

	// Repository is the full read/write surface of a store.
	Repository interface {
		UserStore
		AccountStore
		TransactionStore
		BudgetStore
	}

	// Store is a Repository with a scoped unit of work. WithTx commits when
	// fn returns nil and rolls back every write made through repo otherwise.
	Store interface {
		Repository
		WithTx(ctx context.Context, fn func(repo Repository) error) error
		Close() error
	}
)
