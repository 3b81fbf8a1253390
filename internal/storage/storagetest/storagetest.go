// Package storagetest holds behavioural tests shared by every storage.Store
// implementation.
package storagetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/storage"
)

// Run exercises the Store contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Helper()
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, newStore(t)) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, newStore(t)) })
	t.Run("ExternalIDUnique", func(t *testing.T) { testExternalIDUnique(t, newStore(t)) })
	t.Run("Budgets", func(t *testing.T) { testBudgets(t, newStore(t)) })
	t.Run("WithTxRollback", func(t *testing.T) { testWithTxRollback(t, newStore(t)) })
	t.Run("WithTxCommit", func(t *testing.T) { testWithTxCommit(t, newStore(t)) })
}

// SeedAccount creates a user and one account and returns both.
func SeedAccount(t *testing.T, s storage.Repository) (core.User, core.Account) {
	t.Helper()
	ctx := context.Background()
	u := core.User{Username: "alice", Email: "alice@example.com", PasswordHash: "x", MonthlyBudget: 3000, Currency: "EUR"}
	if err := s.CreateUser(ctx, &u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	a := core.Account{UserID: u.ID, AccountNumber: "ACC-1", Name: "Main", Currency: "EUR", Balance: 100}
	if err := s.CreateAccount(ctx, &a); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return u, a
}

func day(d int) time.Time {
	return time.Date(2025, 3, d, 12, 0, 0, 0, time.UTC)
}

func testUsers(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u := core.User{Username: "bob", Email: "bob@example.com", PasswordHash: "h", FullName: "Bob", MonthlyBudget: 3000, Currency: "EUR"}
	if err := s.CreateUser(ctx, &u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if u.ID == 0 {
		t.Fatalf("expected id to be assigned")
	}

	dup := core.User{Username: "bob", Email: "other@example.com", PasswordHash: "h", Currency: "EUR"}
	if err := s.CreateUser(ctx, &dup); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := s.GetUserByUsername(ctx, "bob")
	if err != nil || got.ID != u.ID || got.FullName != "Bob" {
		t.Fatalf("get by username: %+v, %v", got, err)
	}

	got.FullName = "Robert"
	got.MonthlyBudget = 1500
	if err := s.UpdateUser(ctx, &got); err != nil {
		t.Fatalf("update user: %v", err)
	}
	again, err := s.GetUser(ctx, u.ID)
	if err != nil || again.FullName != "Robert" || again.MonthlyBudget != 1500 {
		t.Fatalf("after update: %+v, %v", again, err)
	}

	if _, err := s.GetUser(ctx, 9999); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testAccounts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u, a := SeedAccount(t, s)

	second := core.Account{UserID: u.ID, AccountNumber: "ACC-2", Name: "Savings", Currency: "EUR", ExternalID: "ext-acc"}
	if err := s.CreateAccount(ctx, &second); err != nil {
		t.Fatalf("create second account: %v", err)
	}
	dup := core.Account{UserID: u.ID, AccountNumber: "ACC-1", Name: "Dup", Currency: "EUR"}
	if err := s.CreateAccount(ctx, &dup); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate for account number, got %v", err)
	}

	accounts, err := s.ListAccounts(ctx, u.ID)
	if err != nil {
		t.Fatalf("list accounts: %v", err)
	}
	if len(accounts) != 2 || accounts[0].ID != a.ID || accounts[1].ExternalID != "ext-acc" {
		t.Fatalf("unexpected accounts: %+v", accounts)
	}

	second.Balance = 250.5
	if err := s.UpdateAccount(ctx, &second); err != nil {
		t.Fatalf("update account: %v", err)
	}
	got, err := s.GetAccount(ctx, second.ID)
	if err != nil || got.Balance != 250.5 {
		t.Fatalf("after update: %+v, %v", got, err)
	}

	none, err := s.ListAccounts(ctx, 4242)
	if err != nil || len(none) != 0 {
		t.Fatalf("expected no accounts, got %+v, %v", none, err)
	}
	if _, err := s.GetAccount(ctx, 4242); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testTransactions(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, a := SeedAccount(t, s)

	txs := []core.Transaction{
		{AccountID: a.ID, Description: "groceries", Amount: 10, Type: core.Expense, Category: core.Food, Date: day(1)},
		{AccountID: a.ID, Description: "salary", Amount: 2500, Type: core.Income, Category: core.Salary, Date: day(5)},
		{AccountID: a.ID, Description: "bus", Amount: 2.5, Type: core.Expense, Category: core.Transport, Date: day(10)},
	}
	for i := range txs {
		if err := s.CreateTransaction(ctx, &txs[i]); err != nil {
			t.Fatalf("create transaction %d: %v", i, err)
		}
	}

	all, err := s.ListTransactions(ctx, core.TransactionFilter{AccountIDs: []int64{a.ID}})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 || all[0].Description != "bus" || all[2].Description != "groceries" {
		t.Fatalf("expected newest first, got %+v", all)
	}

	window, err := s.ListTransactions(ctx, core.TransactionFilter{From: day(1), To: day(10)})
	if err != nil {
		t.Fatalf("list window: %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("expected half-open window to hold 2, got %d", len(window))
	}

	expenses, err := s.ListTransactions(ctx, core.TransactionFilter{Type: core.Expense, Category: core.Food})
	if err != nil || len(expenses) != 1 || expenses[0].Amount != 10 {
		t.Fatalf("filter by type/category: %+v, %v", expenses, err)
	}

	empty, err := s.ListTransactions(ctx, core.TransactionFilter{AccountIDs: []int64{}})
	if err != nil || len(empty) != 0 {
		t.Fatalf("empty account set should match nothing: %+v, %v", empty, err)
	}

	got, err := s.GetTransaction(ctx, txs[0].ID)
	if err != nil || !got.Date.Equal(day(1)) || got.Category != core.Food {
		t.Fatalf("get: %+v, %v", got, err)
	}

	got.Category = core.Shopping
	got.Amount = 12
	if err := s.UpdateTransaction(ctx, &got); err != nil {
		t.Fatalf("update: %v", err)
	}
	updated, _ := s.GetTransaction(ctx, got.ID)
	if updated.Category != core.Shopping || updated.Amount != 12 {
		t.Fatalf("after update: %+v", updated)
	}

	ok, err := s.DeleteTransaction(ctx, got.ID)
	if err != nil || !ok {
		t.Fatalf("delete: %v, %v", ok, err)
	}
	ok, err = s.DeleteTransaction(ctx, got.ID)
	if err != nil || ok {
		t.Fatalf("second delete should report false: %v, %v", ok, err)
	}
	if _, err := s.GetTransaction(ctx, got.ID); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func testExternalIDUnique(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, a := SeedAccount(t, s)

	tx := core.Transaction{AccountID: a.ID, Amount: 1, Type: core.Expense, Category: core.Other, Date: day(2), ExternalID: "ext-1"}
	if err := s.CreateTransaction(ctx, &tx); err != nil {
		t.Fatalf("create: %v", err)
	}
	exists, err := s.ExternalIDExists(ctx, "ext-1")
	if err != nil || !exists {
		t.Fatalf("expected ext-1 to exist: %v, %v", exists, err)
	}
	exists, _ = s.ExternalIDExists(ctx, "ext-2")
	if exists {
		t.Fatalf("ext-2 should not exist")
	}

	again := core.Transaction{AccountID: a.ID, Amount: 1, Type: core.Expense, Category: core.Other, Date: day(2), ExternalID: "ext-1"}
	if err := s.CreateTransaction(ctx, &again); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	// Transactions without an external id never collide.
	for i := 0; i < 2; i++ {
		plain := core.Transaction{AccountID: a.ID, Amount: 1, Type: core.Expense, Category: core.Other, Date: day(3)}
		if err := s.CreateTransaction(ctx, &plain); err != nil {
			t.Fatalf("create plain %d: %v", i, err)
		}
	}
}

func testBudgets(t *testing.T, s storage.Store) {
	ctx := context.Background()
	u, _ := SeedAccount(t, s)

	b := core.Budget{UserID: u.ID, Category: core.Transport, MonthlyLimit: 100}
	if err := s.UpsertBudget(ctx, &b); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	food := core.Budget{UserID: u.ID, Category: core.Food, MonthlyLimit: 300}
	if err := s.UpsertBudget(ctx, &food); err != nil {
		t.Fatalf("upsert food: %v", err)
	}
	update := core.Budget{UserID: u.ID, Category: core.Transport, MonthlyLimit: 150}
	if err := s.UpsertBudget(ctx, &update); err != nil {
		t.Fatalf("upsert update: %v", err)
	}
	if update.ID != b.ID {
		t.Fatalf("upsert should keep id %d, got %d", b.ID, update.ID)
	}

	budgets, err := s.ListBudgets(ctx, u.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(budgets) != 2 {
		t.Fatalf("expected 2 budgets, got %d", len(budgets))
	}
	if budgets[0].Category != core.Food || budgets[1].MonthlyLimit != 150 {
		t.Fatalf("unexpected budgets: %+v", budgets)
	}
}

func testWithTxRollback(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, a := SeedAccount(t, s)

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(repo storage.Repository) error {
		tx := core.Transaction{AccountID: a.ID, Amount: 5, Type: core.Expense, Category: core.Food, Date: day(4), ExternalID: "rolled-back"}
		if err := repo.CreateTransaction(ctx, &tx); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	exists, err := s.ExternalIDExists(ctx, "rolled-back")
	if err != nil || exists {
		t.Fatalf("rolled back write is visible: %v, %v", exists, err)
	}
}

func testWithTxCommit(t *testing.T, s storage.Store) {
	ctx := context.Background()
	_, a := SeedAccount(t, s)

	err := s.WithTx(ctx, func(repo storage.Repository) error {
		for _, ext := range []string{"c-1", "c-2"} {
			tx := core.Transaction{AccountID: a.ID, Amount: 5, Type: core.Expense, Category: core.Food, Date: day(4), ExternalID: ext}
			if err := repo.CreateTransaction(ctx, &tx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("with tx: %v", err)
	}
	txs, err := s.ListTransactions(ctx, core.TransactionFilter{AccountIDs: []int64{a.ID}})
	if err != nil || len(txs) != 2 {
		t.Fatalf("expected 2 committed transactions, got %d, %v", len(txs), err)
	}
}
