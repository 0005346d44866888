package core

import (
	"fmt"
	"time"
)

// Notification is an in-app message addressed to a user.
type Notification struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
}

// SharedExpenseNotification builds the message sent to the counterparty of a shared expense.
func SharedExpenseNotification(e Expense, ownerName string) (title, message string) {
	title = fmt.Sprintf("Nuevo gasto compartido de %s", ownerName)
	message = fmt.Sprintf("%s - Monto: %s - Tu porcentaje: %d%%", e.Description, e.Amount.StringFixed(2), e.Pct2)
	return title, message
}

// EmailStatus tracks delivery of an outbox email.
type EmailStatus string

const (
	EmailPending EmailStatus = "pending"
	EmailSent    EmailStatus = "sent"
	EmailFailed  EmailStatus = "failed"
)

// OutboxEmail is an email queued for delivery through the email dispatch function.
type OutboxEmail struct {
	ID        string      `json:"id"`
	To        string      `json:"to"`
	Subject   string      `json:"subject"`
	HTML      string      `json:"html"`
	Status    EmailStatus `json:"status"`
	Attempts  int         `json:"attempts"`
	LastError string      `json:"last_error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
