package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gastos/internal/calculator"
	"gastos/internal/core"
	"gastos/internal/dataservice"
	"gastos/internal/mail"
)

// NotificationRepo is what NotificationService needs from the data service.
type NotificationRepo interface {
	dataservice.EmailResolver
	dataservice.NotificationRepository
	dataservice.EmailOutbox
	GetPerson(ctx context.Context, id string) (core.Person, error)
}

// NotificationService tells the counterparty of a shared expense about it:
// an in-app notification when they have an account, and an email.
type NotificationService struct {
	repo   NotificationRepo
	sender mail.Sender
	now    func() time.Time
}

func NewNotificationService(repo NotificationRepo, sender mail.Sender) *NotificationService {
	return &NotificationService{repo: repo, sender: sender, now: time.Now}
}

// NotifyShared records and sends the notifications for e. An email that
// cannot be sent right away stays in the outbox for the email processor.
func (s *NotificationService) NotifyShared(ctx context.Context, e core.Expense, owner core.User) error {
	if !e.Shared || e.CounterpartyEmail == "" {
		return nil
	}

	ownerName := s.ownerName(ctx, e, owner)
	title, message := core.SharedExpenseNotification(e, ownerName)

	var errs []error
	if err := s.notifyInApp(ctx, e, title, message); err != nil {
		errs = append(errs, err)
	}
	if err := s.email(ctx, e, ownerName, title); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ownerName prefers the name of the person the expense is booked under.
func (s *NotificationService) ownerName(ctx context.Context, e core.Expense, owner core.User) string {
	if p, err := s.repo.GetPerson(ctx, e.PersonID); err == nil && p.Name != "" {
		return p.Name
	}
	if owner.Name != "" {
		return owner.Name
	}
	return owner.Email
}

func (s *NotificationService) notifyInApp(ctx context.Context, e core.Expense, title, message string) error {
	recipient, err := s.repo.UserIDByEmail(ctx, e.CounterpartyEmail)
	if errors.Is(err, dataservice.ErrNotFound) {
		slog.DebugContext(ctx, "Counterparty has no account, skipping in-app notification",
			"expense_id", e.ID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve counterparty: %w", err)
	}

	_, err = s.repo.InsertNotification(ctx, core.Notification{
		ID:        uuid.NewString(),
		UserID:    recipient,
		Title:     title,
		Message:   message,
		CreatedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (s *NotificationService) email(ctx context.Context, e core.Expense, ownerName, title string) error {
	_, share := calculator.ShareOf(e)
	html, err := mail.RenderSharedExpense(mail.SharedExpense{
		Title:       title,
		Owner:       ownerName,
		Description: e.Description,
		Month:       string(e.Month),
		Amount:      e.Amount.StringFixed(2),
		Percent:     e.Pct2,
		Share:       share.StringFixed(2),
	})
	if err != nil {
		return err
	}

	queued, err := s.repo.EnqueueEmail(ctx, core.OutboxEmail{
		ID:      uuid.NewString(),
		To:      e.CounterpartyEmail,
		Subject: title,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	if s.sender == nil {
		return nil
	}
	deliver(ctx, s.repo, s.sender, queued)
	return nil
}

// deliver sends one outbox email and records the outcome.
func deliver(ctx context.Context, outbox dataservice.EmailOutbox, sender mail.Sender, e core.OutboxEmail) bool {
	err := sender.Send(ctx, mail.Message{To: e.To, Subject: e.Subject, HTML: e.HTML})
	if err != nil {
		slog.WarnContext(ctx, "Email delivery failed", "email_id", e.ID, "attempt", e.Attempts+1, "error", err)
		if markErr := outbox.MarkEmailFailed(ctx, e.ID, err); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark email as failed", "email_id", e.ID, "error", markErr)
		}
		return false
	}
	if err := outbox.MarkEmailSent(ctx, e.ID); err != nil {
		slog.ErrorContext(ctx, "Failed to mark email as sent", "email_id", e.ID, "error", err)
	}
	return true
}

// SharedPublisher hands shared expenses to the worker.
type SharedPublisher interface {
	PublishSharedExpense(ctx context.Context, e core.Expense, owner core.User) error
}

// Notifier is implemented by NotificationService and AsyncNotifier.
type Notifier interface {
	NotifyShared(ctx context.Context, e core.Expense, owner core.User) error
}

// AsyncNotifier queues notifications on the broker and falls back to
// notifying inline when publishing fails.
type AsyncNotifier struct {
	publisher SharedPublisher
	fallback  Notifier
}

func NewAsyncNotifier(publisher SharedPublisher, fallback Notifier) *AsyncNotifier {
	return &AsyncNotifier{publisher: publisher, fallback: fallback}
}

func (n *AsyncNotifier) NotifyShared(ctx context.Context, e core.Expense, owner core.User) error {
	err := n.publisher.PublishSharedExpense(ctx, e, owner)
	if err == nil {
		return nil
	}
	slog.WarnContext(ctx, "Failed to queue shared expense notification, notifying inline",
		"expense_id", e.ID, "error", err)
	if n.fallback == nil {
		return err
	}
	return n.fallback.NotifyShared(ctx, e, owner)
}
