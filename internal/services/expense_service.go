package services

import (
	"context"
	"fmt"
	"log/slog"

	"gastos/internal/core"
	"gastos/internal/dataservice"
)

// SyncPublisher announces committed changes to the worker.
type SyncPublisher interface {
	PublishExpenseSync(ctx context.Context, id string, version int64) error
	PublishExpenseDelete(ctx context.Context, id, userID string) error
}

// ExpenseService wraps the data service and publishes a sync message after
// every successful write. It satisfies store.Remote.
type ExpenseService struct {
	dataservice.Service
	publisher SyncPublisher
}

func NewExpenseService(svc dataservice.Service, publisher SyncPublisher) *ExpenseService {
	return &ExpenseService{Service: svc, publisher: publisher}
}

// CreateExpense saves an expense and publishes a sync message.
func (s *ExpenseService) CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	saved, err := s.Service.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}

	if s.publisher == nil {
		slog.DebugContext(ctx, "AMQP publisher not available, skipping sync message")
		return saved, nil
	}
	if err := s.publisher.PublishExpenseSync(ctx, saved.ID, 1); err != nil {
		// The expense is saved; the mirror catches up on the next sync.
		slog.ErrorContext(ctx, "Failed to publish sync message", "id", saved.ID, "error", err)
	}
	return saved, nil
}

// DeleteExpense deletes an expense and publishes a delete message.
func (s *ExpenseService) DeleteExpense(ctx context.Context, userID, email, id string) error {
	if err := s.Service.DeleteExpense(ctx, userID, email, id); err != nil {
		return err
	}

	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.PublishExpenseDelete(ctx, id, userID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish delete message", "id", id, "error", err)
	}
	return nil
}
