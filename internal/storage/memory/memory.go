// Package memory is an in-process implementation of storage.Store used by
// tests and by DATA_BACKEND=memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"financeflow/internal/core"
	"financeflow/internal/storage"
)

type Store struct {
	mu sync.Mutex
	st *state
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: newState()}
}

// WithTx runs fn against a private copy of the data and publishes the copy
// only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(repo storage.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	draft := s.st.clone()
	if err := fn(draft); err != nil {
		return err
	}
	s.st = draft
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) CreateUser(ctx context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateUser(ctx, u)
}

func (s *Store) GetUser(ctx context.Context, id int64) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUser(ctx, id)
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetUserByUsername(ctx, username)
}

func (s *Store) UpdateUser(ctx context.Context, u *core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateUser(ctx, u)
}

func (s *Store) CreateAccount(ctx context.Context, a *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateAccount(ctx, a)
}

func (s *Store) GetAccount(ctx context.Context, id int64) (core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetAccount(ctx, id)
}

func (s *Store) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListAccounts(ctx, userID)
}

func (s *Store) UpdateAccount(ctx context.Context, a *core.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateAccount(ctx, a)
}

func (s *Store) CreateTransaction(ctx context.Context, t *core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.CreateTransaction(ctx, t)
}

func (s *Store) GetTransaction(ctx context.Context, id int64) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.GetTransaction(ctx, id)
}

func (s *Store) UpdateTransaction(ctx context.Context, t *core.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpdateTransaction(ctx, t)
}

func (s *Store) DeleteTransaction(ctx context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.DeleteTransaction(ctx, id)
}

func (s *Store) ExternalIDExists(ctx context.Context, externalID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ExternalIDExists(ctx, externalID)
}

func (s *Store) ListTransactions(ctx context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListTransactions(ctx, f)
}

func (s *Store) UpsertBudget(ctx context.Context, b *core.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.UpsertBudget(ctx, b)
}

func (s *Store) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.st.ListBudgets(ctx, userID)
}

// state holds the data and implements storage.Repository without locking.
type state struct {
	nextID       int64
	users        map[int64]core.User
	accounts     map[int64]core.Account
	transactions map[int64]core.Transaction
	budgets      map[int64]core.Budget
	externalIDs  map[string]int64
}

func newState() *state {
	return &state{
		users:        map[int64]core.User{},
		accounts:     map[int64]core.Account{},
		transactions: map[int64]core.Transaction{},
		budgets:      map[int64]core.Budget{},
		externalIDs:  map[string]int64{},
	}
}

func (st *state) clone() *state {
	c := newState()
	c.nextID = st.nextID
	for k, v := range st.users {
		c.users[k] = v
	}
	for k, v := range st.accounts {
		c.accounts[k] = v
	}
	for k, v := range st.transactions {
		c.transactions[k] = v
	}
	for k, v := range st.budgets {
		c.budgets[k] = v
	}
	for k, v := range st.externalIDs {
		c.externalIDs[k] = v
	}
	return c
}

func (st *state) id() int64 {
	st.nextID++
	return st.nextID
}

func (st *state) CreateUser(_ context.Context, u *core.User) error {
	for _, existing := range st.users {
		if existing.Username == u.Username || strings.EqualFold(existing.Email, u.Email) {
			return core.ErrDuplicate
		}
	}
	now := time.Now().UTC()
	u.ID, u.CreatedAt, u.UpdatedAt = st.id(), now, now
	st.users[u.ID] = *u
	return nil
}

func (st *state) GetUser(_ context.Context, id int64) (core.User, error) {
	u, ok := st.users[id]
	if !ok {
		return core.User{}, core.NewNotFound("user", id)
	}
	return u, nil
}

func (st *state) GetUserByUsername(_ context.Context, username string) (core.User, error) {
	for _, u := range st.users {
		if u.Username == username {
			return u, nil
		}
	}
	return core.User{}, core.NewNotFound("user", username)
}

func (st *state) UpdateUser(_ context.Context, u *core.User) error {
	prev, ok := st.users[u.ID]
	if !ok {
		return core.NewNotFound("user", u.ID)
	}
	for id, existing := range st.users {
		if id != u.ID && strings.EqualFold(existing.Email, u.Email) {
			return core.ErrDuplicate
		}
	}
	u.Username, u.CreatedAt = prev.Username, prev.CreatedAt
	u.UpdatedAt = time.Now().UTC()
	st.users[u.ID] = *u
	return nil
}

func (st *state) CreateAccount(_ context.Context, a *core.Account) error {
	if _, ok := st.users[a.UserID]; !ok {
		return core.NewNotFound("user", a.UserID)
	}
	for _, existing := range st.accounts {
		if existing.AccountNumber == a.AccountNumber {
			return core.ErrDuplicate
		}
	}
	a.ID, a.CreatedAt = st.id(), time.Now().UTC()
	st.accounts[a.ID] = *a
	return nil
}

func (st *state) GetAccount(_ context.Context, id int64) (core.Account, error) {
	a, ok := st.accounts[id]
	if !ok {
		return core.Account{}, core.NewNotFound("account", id)
	}
	return a, nil
}

func (st *state) ListAccounts(_ context.Context, userID int64) ([]core.Account, error) {
	var out []core.Account
	for _, a := range st.accounts {
		if a.UserID == userID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (st *state) UpdateAccount(_ context.Context, a *core.Account) error {
	prev, ok := st.accounts[a.ID]
	if !ok {
		return core.NewNotFound("account", a.ID)
	}
	a.UserID, a.AccountNumber, a.CreatedAt = prev.UserID, prev.AccountNumber, prev.CreatedAt
	st.accounts[a.ID] = *a
	return nil
}

func (st *state) CreateTransaction(_ context.Context, t *core.Transaction) error {
	if _, ok := st.accounts[t.AccountID]; !ok {
		return core.NewNotFound("account", t.AccountID)
	}
	if t.ExternalID != "" {
		if _, dup := st.externalIDs[t.ExternalID]; dup {
			return core.ErrDuplicate
		}
	}
	t.ID, t.CreatedAt = st.id(), time.Now().UTC()
	t.Date = t.Date.UTC()
	st.transactions[t.ID] = *t
	if t.ExternalID != "" {
		st.externalIDs[t.ExternalID] = t.ID
	}
	return nil
}

func (st *state) GetTransaction(_ context.Context, id int64) (core.Transaction, error) {
	t, ok := st.transactions[id]
	if !ok {
		return core.Transaction{}, core.NewNotFound("transaction", id)
	}
	return t, nil
}

func (st *state) UpdateTransaction(_ context.Context, t *core.Transaction) error {
	prev, ok := st.transactions[t.ID]
	if !ok {
		return core.NewNotFound("transaction", t.ID)
	}
	// account and external id are immutable
	t.AccountID, t.ExternalID, t.CreatedAt = prev.AccountID, prev.ExternalID, prev.CreatedAt
	t.Date = t.Date.UTC()
	st.transactions[t.ID] = *t
	return nil
}

func (st *state) DeleteTransaction(_ context.Context, id int64) (bool, error) {
	t, ok := st.transactions[id]
	if !ok {
		return false, nil
	}
	delete(st.transactions, id)
	if t.ExternalID != "" {
		delete(st.externalIDs, t.ExternalID)
	}
	return true, nil
}

func (st *state) ExternalIDExists(_ context.Context, externalID string) (bool, error) {
	_, ok := st.externalIDs[externalID]
	return ok, nil
}

func (st *state) ListTransactions(_ context.Context, f core.TransactionFilter) ([]core.Transaction, error) {
	var accounts map[int64]bool
	if f.AccountIDs != nil {
		accounts = make(map[int64]bool, len(f.AccountIDs))
		for _, id := range f.AccountIDs {
			accounts[id] = true
		}
	}

	var out []core.Transaction
	for _, t := range st.transactions {
		if accounts != nil && !accounts[t.AccountID] {
			continue
		}
		if !f.From.IsZero() && t.Date.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !t.Date.Before(f.To) {
			continue
		}
		if f.Type != "" && t.Type != f.Type {
			continue
		}
		if f.Category != "" && t.Category != f.Category {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (st *state) UpsertBudget(_ context.Context, b *core.Budget) error {
	for id, existing := range st.budgets {
		if existing.UserID == b.UserID && existing.Category == b.Category {
			existing.MonthlyLimit = b.MonthlyLimit
			st.budgets[id] = existing
			*b = existing
			return nil
		}
	}
	b.ID, b.CreatedAt = st.id(), time.Now().UTC()
	st.budgets[b.ID] = *b
	return nil
}

func (st *state) ListBudgets(_ context.Context, userID int64) ([]core.Budget, error) {
	var out []core.Budget
	for _, b := range st.budgets {
		if b.UserID == userID {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	storage.SortBudgets(out)
	return out, nil
}
