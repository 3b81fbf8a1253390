package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/core"
	"financeflow/internal/log"

	"golang.org/x/sync/errgroup"
)

// feedKey is the identifier the bank feed knows an account by: the linked
// provider id, or the account number for unlinked accounts.
func feedKey(a core.Account) string {
	if a.ExternalID != "" {
		return a.ExternalID
	}
	return a.AccountNumber
}

// SyncTransactions pulls the bank feed of every account of the user and
// imports it, returning the number of new transactions per account.
//
// Feeds are fetched concurrently; a fetch failure aborts the sync before
// anything is written. Imports then run one atomic batch per account, in
// account order. Linked accounts get their balance refreshed from the
// provider afterwards. When an import fails, the counts of the accounts
// already imported are returned with the error.
func (f *FinanceService) SyncTransactions(ctx context.Context, userID int64) (map[int64]int, error) {
	start := time.Now()
	accounts, err := f.ListAccounts(ctx, userID)
	if err != nil {
		return nil, err
	}
	results := make(map[int64]int, len(accounts))
	if len(accounts) == 0 {
		return results, nil
	}

	feeds := make([][]core.RawRecord, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(syncConcurrency)
	for i, a := range accounts {
		g.Go(func() error {
			records, err := f.feed.FetchTransactions(gctx, feedKey(a), f.settings.SyncDaysBack)
			if err != nil {
				return fmt.Errorf("fetch transactions for account %d: %w", a.ID, err)
			}
			feeds[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("sync transactions: %w", err)
	}

	// Batches of earlier accounts stay committed when a later one fails.
	defer f.engine.Invalidate(userID)
	for i, a := range accounts {
		res, err := f.importer.Import(ctx, a.ID, feeds[i])
		if err != nil {
			return results, err
		}
		results[a.ID] = len(res.Created)

		if a.ExternalID != "" {
			f.refreshBalance(ctx, a)
		}
		if len(res.Created) > 0 {
			f.publish(ctx, amqp.NewTransactionsImported(userID, a.ID, len(res.Created)))
		}
	}

	f.logger.Fields(ctx, slog.LevelInfo, "Synced transactions", log.NewFields().
		WithOperation(log.OpSync).
		WithUser(userID).
		WithDuration(time.Since(start)).
		WithCount(total(results)))
	return results, nil
}

// refreshBalance replaces the cached balance with the provider's figure.
// Failures are logged and leave the old balance in place.
func (f *FinanceService) refreshBalance(ctx context.Context, a core.Account) {
	balance, err := f.feed.Balance(ctx, a.ExternalID)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to refresh balance", log.FieldAccountID, a.ID, log.FieldError, err)
		return
	}
	fresh, err := f.store.GetAccount(ctx, a.ID)
	if err != nil {
		f.logger.WarnContext(ctx, "Failed to refresh balance", log.FieldAccountID, a.ID, log.FieldError, err)
		return
	}
	fresh.Balance = balance
	if err := f.store.UpdateAccount(ctx, &fresh); err != nil {
		f.logger.WarnContext(ctx, "Failed to refresh balance", log.FieldAccountID, a.ID, log.FieldError, err)
	}
}

func total(m map[int64]int) int {
	n := 0
	for _, v := range m {
		n += v
	}
	return n
}
