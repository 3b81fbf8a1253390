// Package services exposes the application façade used by the HTTP API and
// the CLI. It owns the session, orchestrates the importer, the analytics
// engine and the report exporter, and publishes best-effort events.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/analytics"
	"financeflow/internal/bank"
	"financeflow/internal/cache"
	"financeflow/internal/core"
	"financeflow/internal/importer"
	"financeflow/internal/log"
	"financeflow/internal/report"
	"financeflow/internal/security"
	"financeflow/internal/storage"

	"github.com/google/uuid"
)

const (
	dashboardTrendMonths = 6
	dashboardWindowDays  = 30
	syncConcurrency      = 4
)

// EventPublisher is satisfied by *amqp.Client.
type EventPublisher interface {
	Publish(ctx context.Context, ev *amqp.Event) error
}

// Settings are the user-facing defaults and analytics thresholds.
type Settings struct {
	Currency             string
	DefaultMonthlyBudget float64
	SyncDaysBack         int
	HighSpendThreshold   float64
	MaterialityThreshold float64
}

func DefaultSettings() Settings {
	return Settings{
		Currency:             core.DefaultCurrency,
		DefaultMonthlyBudget: core.DefaultMonthlyBudget,
		SyncDaysBack:         30,
		HighSpendThreshold:   analytics.DefaultHighSpendThreshold,
		MaterialityThreshold: analytics.DefaultMaterialityThreshold,
	}
}

type Option func(*FinanceService)

func WithSettings(s Settings) Option {
	return func(f *FinanceService) { f.settings = s }
}

// WithEvents enables event publication. A nil publisher disables it.
func WithEvents(p EventPublisher) Option {
	return func(f *FinanceService) { f.events = p }
}

func WithSecretKey(secret string) Option {
	return func(f *FinanceService) { f.cipher = security.NewCipher(secret) }
}

func WithSnapshotCache(c cache.Cache[core.MonthSnapshot]) Option {
	return func(f *FinanceService) { f.snapshots = c }
}

func WithClock(now func() time.Time) Option {
	return func(f *FinanceService) { f.now = now }
}

func WithLogger(l *log.Logger) Option {
	return func(f *FinanceService) { f.logger = l }
}

// WithCloser registers a resource released by Close, after the store.
func WithCloser(c io.Closer) Option {
	return func(f *FinanceService) { f.closers = append(f.closers, c) }
}

// FinanceService is the single entry point of the application.
type FinanceService struct {
	store     storage.Store
	feed      bank.Feed
	events    EventPublisher
	hasher    *security.Hasher
	cipher    *security.Cipher
	snapshots cache.Cache[core.MonthSnapshot]
	now       func() time.Time
	settings  Settings
	logger    *log.Logger
	closers   []io.Closer

	importer *importer.Importer
	engine   *analytics.Engine
	exporter *report.Exporter

	mu      sync.Mutex
	current *core.User
}

func NewFinanceService(store storage.Store, feed bank.Feed, opts ...Option) *FinanceService {
	f := &FinanceService{
		store:    store,
		feed:     feed,
		hasher:   security.NewHasher(),
		now:      time.Now,
		settings: DefaultSettings(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = log.Wrap(slog.Default(), log.ComponentService)
	}
	if f.cipher == nil {
		f.cipher = security.NewCipher("")
	}

	engineOpts := []analytics.Option{
		analytics.WithClock(f.now),
		analytics.WithThresholds(f.settings.HighSpendThreshold, f.settings.MaterialityThreshold),
		analytics.WithLogger(f.logger.Logger),
	}
	if f.snapshots != nil {
		engineOpts = append(engineOpts, analytics.WithSnapshotCache(f.snapshots))
	}
	f.engine = analytics.New(store, engineOpts...)
	f.importer = importer.New(store, f.logger.Logger)
	f.exporter = report.New(f.engine).WithClock(f.now)
	return f
}

// Engine exposes the analytics engine for read-only callers.
func (f *FinanceService) Engine() *analytics.Engine { return f.engine }

// Ping checks the store when it supports it.
func (f *FinanceService) Ping(ctx context.Context) error {
	if p, ok := f.store.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}

// Close releases the store and every registered closer, joining errors.
func (f *FinanceService) Close() error {
	var errs []error
	if err := f.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	for _, c := range f.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ===================== Users & session =====================

type NewUser struct {
	Username string
	Email    string
	Password string
	FullName string
}

func (f *FinanceService) CreateUser(ctx context.Context, in NewUser) (core.User, error) {
	if !security.ValidEmail(in.Email) {
		return core.User{}, &core.ValidationError{Field: "email", Reason: "not a valid address"}
	}
	if !security.StrongPassword(in.Password) {
		return core.User{}, &core.ValidationError{Field: "password", Reason: "needs 8+ characters with upper, lower, digit and special character"}
	}
	digest, err := f.hasher.Hash(in.Password)
	if err != nil {
		return core.User{}, fmt.Errorf("hash password: %w", err)
	}
	u := core.User{
		Username:      strings.TrimSpace(in.Username),
		Email:         strings.TrimSpace(in.Email),
		PasswordHash:  digest,
		FullName:      strings.TrimSpace(in.FullName),
		MonthlyBudget: f.settings.DefaultMonthlyBudget,
		Currency:      f.settings.Currency,
	}
	if err := u.Validate(); err != nil {
		return core.User{}, err
	}
	if err := f.store.CreateUser(ctx, &u); err != nil {
		return core.User{}, fmt.Errorf("create user: %w", err)
	}
	f.logger.InfoContext(ctx, "User created", log.FieldUserID, u.ID, "username", u.Username)
	return u, nil
}

// Authenticate verifies the credentials and makes the user the current
// session. Unknown users and wrong passwords are indistinguishable.
func (f *FinanceService) Authenticate(ctx context.Context, username, password string) (core.User, error) {
	u, err := f.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if errors.Is(err, core.ErrNotFound) {
		f.logger.WarnContext(ctx, "Authentication failed", "username", username)
		return core.User{}, core.ErrInvalidCredentials
	}
	if err != nil {
		return core.User{}, fmt.Errorf("authenticate: %w", err)
	}
	if !f.hasher.Verify(password, u.PasswordHash) {
		f.logger.WarnContext(ctx, "Authentication failed", "username", username)
		return core.User{}, core.ErrInvalidCredentials
	}

	f.mu.Lock()
	f.current = &u
	f.mu.Unlock()
	f.logger.InfoContext(ctx, "User authenticated", log.FieldUserID, u.ID)
	return u, nil
}

func (f *FinanceService) CurrentUser() (core.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return core.User{}, core.ErrNotAuthenticated
	}
	return *f.current, nil
}

func (f *FinanceService) Logout() {
	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()
}

// UserUpdate holds the settings to change; nil fields are left alone.
type UserUpdate struct {
	Email         *string
	FullName      *string
	Password      *string
	MonthlyBudget *float64
	Currency      *string
}

func (f *FinanceService) UpdateUser(ctx context.Context, userID int64, in UserUpdate) (core.User, error) {
	u, err := f.store.GetUser(ctx, userID)
	if err != nil {
		return core.User{}, err
	}
	if in.Email != nil {
		if !security.ValidEmail(*in.Email) {
			return core.User{}, &core.ValidationError{Field: "email", Reason: "not a valid address"}
		}
		u.Email = strings.TrimSpace(*in.Email)
	}
	if in.FullName != nil {
		u.FullName = strings.TrimSpace(*in.FullName)
	}
	if in.Password != nil {
		if !security.StrongPassword(*in.Password) {
			return core.User{}, &core.ValidationError{Field: "password", Reason: "needs 8+ characters with upper, lower, digit and special character"}
		}
		if u.PasswordHash, err = f.hasher.Hash(*in.Password); err != nil {
			return core.User{}, fmt.Errorf("hash password: %w", err)
		}
	}
	if in.MonthlyBudget != nil {
		if *in.MonthlyBudget < 0 {
			return core.User{}, &core.ValidationError{Field: "monthly_budget", Reason: "must not be negative"}
		}
		u.MonthlyBudget = *in.MonthlyBudget
	}
	if in.Currency != nil {
		c := strings.ToUpper(strings.TrimSpace(*in.Currency))
		if len(c) != 3 {
			return core.User{}, &core.ValidationError{Field: "currency", Reason: "must be a 3-letter code"}
		}
		u.Currency = c
	}
	u.UpdatedAt = f.now().UTC()
	if err := f.store.UpdateUser(ctx, &u); err != nil {
		return core.User{}, fmt.Errorf("update user: %w", err)
	}

	f.mu.Lock()
	if f.current != nil && f.current.ID == u.ID {
		cp := u
		f.current = &cp
	}
	f.mu.Unlock()
	return u, nil
}

// ===================== Accounts =====================

type NewAccount struct {
	Name          string
	AccountNumber string // generated when empty
	BankName      string
	Balance       float64
	Currency      string
	ExternalID    string
}

func (f *FinanceService) AddAccount(ctx context.Context, userID int64, in NewAccount) (core.Account, error) {
	if _, err := f.store.GetUser(ctx, userID); err != nil {
		return core.Account{}, err
	}
	a := core.Account{
		UserID:        userID,
		AccountNumber: strings.TrimSpace(in.AccountNumber),
		Name:          strings.TrimSpace(in.Name),
		BankName:      strings.TrimSpace(in.BankName),
		Balance:       in.Balance,
		Currency:      strings.ToUpper(strings.TrimSpace(in.Currency)),
		ExternalID:    strings.TrimSpace(in.ExternalID),
	}
	if a.AccountNumber == "" {
		a.AccountNumber = "FF-" + strings.ToUpper(uuid.NewString()[:8])
	}
	if a.Currency == "" {
		a.Currency = f.settings.Currency
	}
	if err := a.Validate(); err != nil {
		return core.Account{}, err
	}
	if err := f.store.CreateAccount(ctx, &a); err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}
	f.logger.InfoContext(ctx, "Account created", log.FieldUserID, userID, log.FieldAccountID, a.ID, "name", a.Name)
	return a, nil
}

func (f *FinanceService) ListAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	if _, err := f.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return f.store.ListAccounts(ctx, userID)
}

// LinkAccount attaches a provider account id and stores the provider access
// token encrypted.
func (f *FinanceService) LinkAccount(ctx context.Context, accountID int64, externalID, accessToken string) (core.Account, error) {
	a, err := f.store.GetAccount(ctx, accountID)
	if err != nil {
		return core.Account{}, err
	}
	a.ExternalID = strings.TrimSpace(externalID)
	if a.ExternalID == "" {
		return core.Account{}, &core.ValidationError{Field: "external_id", Reason: "must be set"}
	}
	a.AccessToken = ""
	if accessToken != "" {
		if a.AccessToken, err = f.cipher.Encrypt(accessToken); err != nil {
			return core.Account{}, fmt.Errorf("encrypt token: %w", err)
		}
	}
	if err := f.store.UpdateAccount(ctx, &a); err != nil {
		return core.Account{}, fmt.Errorf("link account: %w", err)
	}
	f.logger.InfoContext(ctx, "Account linked", log.FieldAccountID, a.ID, "external_id", a.ExternalID)
	return a, nil
}

// ProviderToken returns the decrypted provider token of an account, or ""
// when none is stored.
func (f *FinanceService) ProviderToken(ctx context.Context, accountID int64) (string, error) {
	a, err := f.store.GetAccount(ctx, accountID)
	if err != nil {
		return "", err
	}
	if a.AccessToken == "" {
		return "", nil
	}
	return f.cipher.Decrypt(a.AccessToken)
}

// ===================== Budgets =====================

func (f *FinanceService) SetBudget(ctx context.Context, userID int64, category string, limit float64) (core.Budget, error) {
	cat, err := core.ParseCategory(category)
	if err != nil {
		return core.Budget{}, &core.ValidationError{Field: "category", Reason: err.Error()}
	}
	if _, err := f.store.GetUser(ctx, userID); err != nil {
		return core.Budget{}, err
	}
	b := core.Budget{UserID: userID, Category: cat, MonthlyLimit: limit}
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	if err := f.store.UpsertBudget(ctx, &b); err != nil {
		return core.Budget{}, fmt.Errorf("set budget: %w", err)
	}
	f.logger.InfoContext(ctx, "Budget set", log.FieldUserID, userID, log.FieldCategory, cat, "limit", limit)
	return b, nil
}

func (f *FinanceService) ListBudgets(ctx context.Context, userID int64) ([]core.Budget, error) {
	if _, err := f.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return f.store.ListBudgets(ctx, userID)
}

// ===================== Analytics =====================

func (f *FinanceService) DashboardData(ctx context.Context, userID int64) (core.Dashboard, error) {
	if _, err := f.store.GetUser(ctx, userID); err != nil {
		return core.Dashboard{}, err
	}
	balance, err := f.engine.TotalBalance(ctx, userID)
	if err != nil {
		return core.Dashboard{}, err
	}
	insights, err := f.engine.Insights(ctx, userID)
	if err != nil {
		return core.Dashboard{}, err
	}
	spending, err := f.engine.SpendingByCategory(ctx, userID, dashboardWindowDays)
	if err != nil {
		return core.Dashboard{}, err
	}
	for c, v := range spending {
		spending[c] = core.Round2(v)
	}
	statuses, err := f.engine.BudgetStatus(ctx, userID)
	if err != nil {
		return core.Dashboard{}, err
	}
	trend, err := analytics.CollectTrend(f.engine.MonthlyBalanceTrend(ctx, userID, dashboardTrendMonths))
	if err != nil {
		return core.Dashboard{}, err
	}
	for i := range trend {
		trend[i].Income = core.Round2(trend[i].Income)
		trend[i].Expenses = core.Round2(trend[i].Expenses)
		trend[i].Net = core.Round2(trend[i].Net)
	}
	return core.Dashboard{
		TotalBalance:       core.Round2(balance),
		Insights:           insights,
		SpendingByCategory: spending,
		BudgetStatus:       statuses,
		BalanceTrend:       trend,
	}, nil
}

func (f *FinanceService) MonthlyReport(ctx context.Context, userID int64, year, month int) (report.Document, error) {
	if _, err := f.store.GetUser(ctx, userID); err != nil {
		return report.Document{}, err
	}
	return f.exporter.Export(ctx, userID, year, month)
}

// MonthSnapshot returns the rounded income and expense totals of one
// calendar month across the user's accounts.
func (f *FinanceService) MonthSnapshot(ctx context.Context, userID int64, year, month int) (core.MonthSnapshot, error) {
	if _, err := f.store.GetUser(ctx, userID); err != nil {
		return core.MonthSnapshot{}, err
	}
	s, err := f.engine.Snapshot(ctx, userID, year, month)
	if err != nil {
		return core.MonthSnapshot{}, err
	}
	s.Income = core.Round2(s.Income)
	s.Expenses = core.Round2(s.Expenses)
	s.Net = core.Round2(s.Net)
	return s, nil
}

func (f *FinanceService) CategoryAnalysis(ctx context.Context, userID int64, daysBack int) (core.CategoryAnalysis, error) {
	if _, err := f.store.GetUser(ctx, userID); err != nil {
		return core.CategoryAnalysis{}, err
	}
	if daysBack <= 0 {
		daysBack = dashboardWindowDays
	}
	return f.engine.CategoryAnalysis(ctx, userID, daysBack)
}

func (f *FinanceService) publish(ctx context.Context, ev *amqp.Event) {
	if f.events == nil {
		f.logger.DebugContext(ctx, "Event publisher not configured, skipping event", "type", ev.Type)
		return
	}
	if err := f.events.Publish(ctx, ev); err != nil {
		f.logger.WarnContext(ctx, "Failed to publish event", "type", ev.Type, log.FieldError, err)
	}
}

func (f *FinanceService) GetAccount(ctx context.Context, accountID int64) (core.Account, error) {
	return f.store.GetAccount(ctx, accountID)
}
