package amqp

import (
	"encoding/json"
	"time"

	"gastos/internal/core"
)

// Message types, carried in the AMQP Type property.
const (
	TypeExpenseSync   = "expense.sync"
	TypeExpenseDelete = "expense.delete"
	TypeSharedExpense = "expense.shared"
)

// ExpenseSyncMessage asks the worker to mirror a committed expense. Only the
// id travels; the worker reads the expense from the data service.
type ExpenseSyncMessage struct {
	ExpenseID string    `json:"expense_id"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// ExpenseDeleteMessage asks the worker to drop a mirrored expense. The row is
// gone from the data service by then, so the message is self-contained.
type ExpenseDeleteMessage struct {
	ExpenseID string    `json:"expense_id"`
	UserID    string    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SharedExpenseMessage asks the worker to notify the counterparty of a
// shared expense.
type SharedExpenseMessage struct {
	Expense   core.Expense `json:"expense"`
	Owner     core.User    `json:"owner"`
	Timestamp time.Time    `json:"timestamp"`
}

func NewExpenseSyncMessage(id string, version int64) *ExpenseSyncMessage {
	return &ExpenseSyncMessage{ExpenseID: id, Version: version, Timestamp: time.Now()}
}

func NewExpenseDeleteMessage(id, userID string) *ExpenseDeleteMessage {
	return &ExpenseDeleteMessage{ExpenseID: id, UserID: userID, Timestamp: time.Now()}
}

func NewSharedExpenseMessage(e core.Expense, owner core.User) *SharedExpenseMessage {
	return &SharedExpenseMessage{Expense: e, Owner: owner, Timestamp: time.Now()}
}

// decode unmarshals body into a fresh T.
func decode[T any](body []byte) (*T, error) {
	var msg T
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
