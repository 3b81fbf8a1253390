// Package worker reacts to transaction events published by the façade.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"financeflow/internal/amqp"
	"financeflow/internal/core"
)

// BudgetSource reports per-category budget consumption for the current month.
type BudgetSource interface {
	BudgetStatus(ctx context.Context, userID int64) ([]core.BudgetStatus, error)
	Invalidate(userID int64)
}

// Notifier receives budgets that crossed their limit.
type Notifier interface {
	BudgetExceeded(ctx context.Context, userID int64, status core.BudgetStatus) error
}

// LogNotifier writes alerts to the structured log.
type LogNotifier struct{ Logger *slog.Logger }

func (n LogNotifier) BudgetExceeded(ctx context.Context, userID int64, s core.BudgetStatus) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "Budget exceeded",
		"user_id", userID,
		"category", s.Category,
		"limit", s.Limit,
		"spent", core.Round2(s.Spent))
	return nil
}

// BudgetWorker checks budgets whenever transactions are imported or saved and notifies
// each exceeded budget once per calendar month.
type BudgetWorker struct {
	source   BudgetSource
	notifier Notifier
	now      func() time.Time

	mu      sync.Mutex
	alerted map[string]struct{}
}

func NewBudgetWorker(source BudgetSource, notifier Notifier) *BudgetWorker {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &BudgetWorker{
		source:   source,
		notifier: notifier,
		now:      time.Now,
		alerted:  make(map[string]struct{}),
	}
}

// HandleEvent processes one event from the queue. Returning an error
// requeues the delivery.
func (w *BudgetWorker) HandleEvent(ctx context.Context, ev *amqp.Event) error {
	slog.InfoContext(ctx, "Processing event",
		"type", ev.Type,
		"user_id", ev.UserID,
		"account_id", ev.AccountID)

	// Snapshots in this process may predate the writer's change.
	w.source.Invalidate(ev.UserID)

	switch ev.Type {
	case amqp.EventTransactionsImported, amqp.EventTransactionSaved:
		if err := w.checkBudgets(ctx, ev.UserID); err != nil {
			return fmt.Errorf("check budgets: %w", err)
		}
	case amqp.EventTransactionDeleted:
		w.forget(ev.UserID)
	}
	return nil
}

func (w *BudgetWorker) checkBudgets(ctx context.Context, userID int64) error {
	statuses, err := w.source.BudgetStatus(ctx, userID)
	if err != nil {
		return err
	}
	month := w.now().UTC().Format("2006-01")
	for _, s := range statuses {
		if !s.Exceeded {
			continue
		}
		key := alertKey(userID, month, s.Category)
		w.mu.Lock()
		_, seen := w.alerted[key]
		w.mu.Unlock()
		if seen {
			continue
		}
		if err := w.notifier.BudgetExceeded(ctx, userID, s); err != nil {
			return fmt.Errorf("notify %s: %w", s.Category, err)
		}
		w.mu.Lock()
		w.alerted[key] = struct{}{}
		w.mu.Unlock()
	}
	return nil
}

// forget clears the user's alerts so a budget that drops back under its
// limit and crosses again is reported again.
func (w *BudgetWorker) forget(userID int64) {
	prefix := fmt.Sprintf("%d|", userID)
	w.mu.Lock()
	defer w.mu.Unlock()
	for k := range w.alerted {
		if strings.HasPrefix(k, prefix) {
			delete(w.alerted, k)
		}
	}
}

func alertKey(userID int64, month string, c core.Category) string {
	return fmt.Sprintf("%d|%s|%s", userID, month, c)
}
