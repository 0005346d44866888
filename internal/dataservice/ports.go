// Package dataservice defines the remote data service the expense store reads
// from and writes to. Implementations live in dataservice/memory and storage.
package dataservice

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrPermissionDenied = errors.New("permission denied")
)

// Ports for outbound adapters.
type (
	ExpenseReader interface {
		// ListOwned returns the expenses created by userID.
		ListOwned(ctx context.Context, userID string) ([]core.Expense, error)
		// ListSharedWith returns shared expenses whose counterparty is email.
		ListSharedWith(ctx context.Context, email string) ([]core.Expense, error)
		GetExpense(ctx context.Context, id string) (core.Expense, error)
	}

	ExpenseWriter interface {
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
	}

	// ExpenseDeleter removes an expense on behalf of its owner or counterparty.
	// Deleting an id that does not exist is not an error.
	ExpenseDeleter interface {
		DeleteExpense(ctx context.Context, userID, email, id string) error
	}

	PersonRepository interface {
		ListPeople(ctx context.Context, userID string) ([]core.Person, error)
		GetPerson(ctx context.Context, id string) (core.Person, error)
		CreatePerson(ctx context.Context, p core.Person) (core.Person, error)
		UpdatePersonSalary(ctx context.Context, id string, salary decimal.Decimal) error
		UpdatePersonName(ctx context.Context, id, name string) error
	}

	// EmailResolver maps identifiers to addresses the way the hosted RPC did.
	EmailResolver interface {
		EmailForPerson(ctx context.Context, personID string) (string, error)
		UserIDByEmail(ctx context.Context, email string) (string, error)
	}

	UserRepository interface {
		UpsertUser(ctx context.Context, u core.User) error
		GetUser(ctx context.Context, id string) (core.User, error)
	}

	NotificationRepository interface {
		InsertNotification(ctx context.Context, n core.Notification) (core.Notification, error)
		// ListNotifications returns the user's notifications, newest first.
		ListNotifications(ctx context.Context, userID string) ([]core.Notification, error)
		MarkNotificationRead(ctx context.Context, userID, id string) error
	}

	// PreferenceRepository stores one preferences blob per user.
	// found is false when the user never saved any.
	PreferenceRepository interface {
		GetPreferences(ctx context.Context, userID string) (p core.Preferences, found bool, err error)
		SetPreferences(ctx context.Context, userID string, p core.Preferences) error
	}

	// EmailOutbox keeps emails until the dispatch function accepts them.
	EmailOutbox interface {
		EnqueueEmail(ctx context.Context, e core.OutboxEmail) (core.OutboxEmail, error)
		// PendingEmails returns up to limit emails that are pending, or failed
		// with fewer than maxAttempts attempts, oldest first.
		PendingEmails(ctx context.Context, limit, maxAttempts int) ([]core.OutboxEmail, error)
		MarkEmailSent(ctx context.Context, id string) error
		MarkEmailFailed(ctx context.Context, id string, cause error) error
	}

	// Service is everything a backend provides.
	Service interface {
		ExpenseReader
		ExpenseWriter
		ExpenseDeleter
		PersonRepository
		EmailResolver
		UserRepository
		NotificationRepository
		PreferenceRepository
		EmailOutbox
	}
)
