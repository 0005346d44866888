package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/dataservice"
	"gastos/internal/sheets"
)

// ExpenseSource is what the worker reads committed expenses from.
type ExpenseSource interface {
	GetExpense(ctx context.Context, id string) (core.Expense, error)
	ListAll(ctx context.Context) ([]core.Expense, error)
}

// Notifier delivers shared expense notifications.
type Notifier interface {
	NotifyShared(ctx context.Context, e core.Expense, owner core.User) error
}

// SyncWorker handles the messages the API publishes: it mirrors expenses to
// the spreadsheet and notifies counterparties of shared expenses.
type SyncWorker struct {
	expenses ExpenseSource
	mirror   sheets.Mirror
	notifier Notifier
}

// NewSyncWorker creates a worker. mirror may be nil when no spreadsheet is configured.
func NewSyncWorker(expenses ExpenseSource, mirror sheets.Mirror, notifier Notifier) *SyncWorker {
	return &SyncWorker{expenses: expenses, mirror: mirror, notifier: notifier}
}

// Handlers wires the worker to an AMQP consumer.
func (w *SyncWorker) Handlers() amqp.Handlers {
	return amqp.Handlers{
		Sync:   w.HandleSyncMessage,
		Delete: w.HandleDeleteMessage,
		Shared: w.HandleSharedMessage,
	}
}

// HandleSyncMessage mirrors one committed expense.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.ExpenseSyncMessage) error {
	if w.mirror == nil {
		return nil
	}
	e, err := w.expenses.GetExpense(ctx, msg.ExpenseID)
	if errors.Is(err, dataservice.ErrNotFound) {
		slog.InfoContext(ctx, "Expense gone before sync, skipping", "id", msg.ExpenseID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("get expense: %w", err)
	}

	ref, err := w.mirror.Append(ctx, e)
	if err != nil {
		return fmt.Errorf("sync expense to sheets: %w", err)
	}
	slog.InfoContext(ctx, "Synced expense to Google Sheets", "id", e.ID, "sheets_ref", ref)
	return nil
}

// HandleDeleteMessage removes a mirrored expense.
func (w *SyncWorker) HandleDeleteMessage(ctx context.Context, msg *amqp.ExpenseDeleteMessage) error {
	if w.mirror == nil {
		slog.WarnContext(ctx, "No mirror configured, skipping Google Sheets deletion", "id", msg.ExpenseID)
		return nil
	}
	if err := w.mirror.DeleteExpense(ctx, msg.ExpenseID); err != nil {
		return fmt.Errorf("delete expense from Google Sheets: %w", err)
	}
	slog.InfoContext(ctx, "Deleted expense from Google Sheets", "id", msg.ExpenseID, "timestamp", msg.Timestamp)
	return nil
}

// HandleSharedMessage notifies the counterparty of a shared expense.
func (w *SyncWorker) HandleSharedMessage(ctx context.Context, msg *amqp.SharedExpenseMessage) error {
	if w.notifier == nil {
		return nil
	}
	if err := w.notifier.NotifyShared(ctx, msg.Expense, msg.Owner); err != nil {
		return fmt.Errorf("notify shared expense %s: %w", msg.Expense.ID, err)
	}
	return nil
}

// StartupSyncCheck appends every committed expense missing from the mirror.
// It recovers from lost messages and worker downtime.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	if w.mirror == nil {
		return nil
	}
	all, err := w.expenses.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list expenses: %w", err)
	}
	mirrored, err := w.mirror.ListExpenses(ctx)
	if err != nil {
		return fmt.Errorf("list mirrored expenses: %w", err)
	}

	seen := make(map[string]struct{}, len(mirrored))
	for _, e := range mirrored {
		seen[e.ID] = struct{}{}
	}

	synced, failed := 0, 0
	for _, e := range all {
		if _, ok := seen[e.ID]; ok {
			continue
		}
		if _, err := w.mirror.Append(ctx, e); err != nil {
			slog.ErrorContext(ctx, "Failed to sync expense during startup", "id", e.ID, "error", err)
			failed++
			continue
		}
		synced++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(all),
		"synced", synced,
		"errors", failed)
	return nil
}
