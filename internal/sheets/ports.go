package sheets

import (
	"context"

	"gastos/internal/core"
)

// Ports for the spreadsheet mirror of committed expenses.
type (
	ExpenseWriter interface {
		Append(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	// ExpenseDeleter removes the mirrored row of an expense. Removing an id
	// that was never mirrored is not an error.
	ExpenseDeleter interface {
		DeleteExpense(ctx context.Context, id string) error
	}

	ExpenseLister interface {
		ListExpenses(ctx context.Context) ([]core.Expense, error)
	}

	Mirror interface {
		ExpenseWriter
		ExpenseDeleter
		ExpenseLister
	}
)
