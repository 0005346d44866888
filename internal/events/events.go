// Package events carries store changes to the components that render them.
//
// Each event kind has its own payload type and topic, so subscribers get the
// payload they expect without type assertions. SubscribeAll exposes every
// event through the Event interface for transports such as server-sent events.
package events

import (
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// Event is implemented by every payload published on a Bus.
type Event interface {
	// Name is the wire name used in HX-Trigger headers and SSE event fields.
	Name() string
}

type (
	ExpenseCreated struct {
		UserID  string       `json:"user_id"`
		Expense core.Expense `json:"expense"`
	}

	ExpenseDeleted struct {
		UserID    string `json:"user_id"`
		ExpenseID string `json:"expense_id"`
	}

	// ExpensePreview is a draft projected onto charts before it is submitted.
	ExpensePreview struct {
		UserID string     `json:"user_id"`
		Draft  core.Draft `json:"draft"`
	}

	ExpensesReloaded struct {
		UserID string    `json:"user_id"`
		Count  int       `json:"count"`
		Stale  bool      `json:"stale"`
		At     time.Time `json:"at"`
	}

	TotalsUpdated struct {
		UserID   string                         `json:"user_id"`
		Total    decimal.Decimal                `json:"total"`
		ByMonth  map[core.Month]decimal.Decimal `json:"by_month"`
		ByPerson map[string]decimal.Decimal     `json:"by_person"`
	}

	PeopleUpdated struct {
		UserID string      `json:"user_id"`
		Person core.Person `json:"person"`
	}
)

func (ExpenseCreated) Name() string   { return "expense:created" }
func (ExpenseDeleted) Name() string   { return "expense:deleted" }
func (ExpensePreview) Name() string   { return "expense:preview" }
func (ExpensesReloaded) Name() string { return "expenses:reloaded" }
func (TotalsUpdated) Name() string    { return "totals:updated" }
func (PeopleUpdated) Name() string    { return "people:updated" }

// UserOf returns the user an event belongs to, or "" for unknown kinds.
func UserOf(e Event) string {
	switch v := e.(type) {
	case ExpenseCreated:
		return v.UserID
	case ExpenseDeleted:
		return v.UserID
	case ExpensePreview:
		return v.UserID
	case ExpensesReloaded:
		return v.UserID
	case TotalsUpdated:
		return v.UserID
	case PeopleUpdated:
		return v.UserID
	}
	return ""
}
