// Package bank defines the bank feed port and its providers.
package bank

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"financeflow/internal/core"
)

// ErrNotImplemented is returned by providers whose remote API is not wired.
var ErrNotImplemented = errors.New("bank provider not implemented")

type Provider string

const (
	ProviderMock       Provider = "mock"
	ProviderPlaid      Provider = "plaid"
	ProviderGoCardless Provider = "gocardless"
)

func (p Provider) IsValid() bool {
	switch p {
	case ProviderMock, ProviderPlaid, ProviderGoCardless:
		return true
	}
	return false
}

// RemoteAccount is an account as listed by a provider.
type RemoteAccount struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Bank     string  `json:"bank"`
	Balance  float64 `json:"balance"`
	Currency string  `json:"currency"`
}

// Feed is a source of raw transactions for externally linked accounts.
type Feed interface {
	FetchTransactions(ctx context.Context, accountExternalID string, daysBack int) ([]core.RawRecord, error)
	Balance(ctx context.Context, accountExternalID string) (float64, error)
	Accounts(ctx context.Context) ([]RemoteAccount, error)
}

type Config struct {
	Provider  Provider
	APIKey    string
	APISecret string
	// Seed perturbs the mock generator. Equal seeds give equal feeds.
	Seed   int64
	Now    func() time.Time
	Logger *slog.Logger
}

// New builds the feed selected by cfg.Provider. An empty provider selects
// the mock.
func New(cfg Config) (Feed, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case ProviderMock, "":
		logger.Info("Using mock bank feed", "seed", cfg.Seed)
		m := NewMock(cfg.Seed)
		if cfg.Now != nil {
			m.now = cfg.Now
		}
		return m, nil
	case ProviderPlaid:
		return newRemote("plaid", cfg.APIKey, logger)
	case ProviderGoCardless:
		return newRemote("gocardless", cfg.APIKey, logger)
	default:
		return nil, fmt.Errorf("unsupported bank provider: %s", cfg.Provider)
	}
}
