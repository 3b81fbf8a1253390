package bank

import (
	"context"
	"fmt"
	"log/slog"

	"financeflow/internal/core"
)

// remote is a provider backed by a hosted aggregation API. None of them is
// wired yet; every call fails with ErrNotImplemented.
type remote struct {
	name   string
	apiKey string
	logger *slog.Logger
}

func newRemote(name, apiKey string, logger *slog.Logger) (*remote, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("create %s feed: api key is required", name)
	}
	return &remote{name: name, apiKey: apiKey, logger: logger.With("provider", name)}, nil
}

func (r *remote) FetchTransactions(ctx context.Context, accountExternalID string, _ int) ([]core.RawRecord, error) {
	r.logger.WarnContext(ctx, "Bank feed transactions not available", "account", accountExternalID)
	return nil, fmt.Errorf("%s fetch transactions: %w", r.name, ErrNotImplemented)
}

func (r *remote) Balance(ctx context.Context, accountExternalID string) (float64, error) {
	r.logger.WarnContext(ctx, "Bank feed balance not available", "account", accountExternalID)
	return 0, fmt.Errorf("%s balance: %w", r.name, ErrNotImplemented)
}

func (r *remote) Accounts(ctx context.Context) ([]RemoteAccount, error) {
	r.logger.WarnContext(ctx, "Bank feed accounts not available")
	return nil, fmt.Errorf("%s accounts: %w", r.name, ErrNotImplemented)
}
