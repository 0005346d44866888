package chart

import (
	"strings"

	"github.com/shopspring/decimal"

	"gastos/internal/calculator"
	"gastos/internal/core"
)

// PreviewID marks the projected draft inside a projected expense list.
const PreviewID = "preview"

// Project returns expenses with the draft appended when the draft is
// previewable. The input slice is never modified.
func Project(expenses []core.Expense, draft *core.Draft) []core.Expense {
	out := make([]core.Expense, len(expenses), len(expenses)+1)
	copy(out, expenses)
	if draft == nil || !draft.Previewable() {
		return out
	}
	d := draft.Normalize()
	if d.Shared && core.ValidateSplit(d.Pct1, d.Pct2) != nil {
		d.Pct1, d.Pct2 = 100, 0
		d.Shared = false
	}
	return append(out, core.Expense{
		ID:                PreviewID,
		Month:             d.Month,
		Description:       d.Description,
		Amount:            d.Amount,
		Date:              d.Date,
		PersonID:          d.PersonID,
		Shared:            d.Shared,
		Pct1:              d.Pct1,
		Pct2:              d.Pct2,
		CounterpartyEmail: d.CounterpartyEmail,
	})
}

// Line is one expense in a detail breakdown with the amount it contributes to the key.
type Line struct {
	Expense    core.Expense    `json:"expense"`
	Attributed decimal.Decimal `json:"attributed"`
	Color      string          `json:"color"`
}

// Breakdown lists the expenses behind one slice or bar.
func Breakdown(expenses []core.Expense, by GroupBy, key string) []Line {
	var out []Line
	if by == ByPerson {
		for _, e := range expenses {
			own, other := calculator.ShareOf(e)
			switch {
			case e.PersonID == key:
				out = append(out, Line{Expense: e, Attributed: own})
			case e.Shared && strings.EqualFold(calculator.CounterpartyKey(e), key):
				out = append(out, Line{Expense: e, Attributed: other})
			}
		}
		return out
	}

	month, err := core.ParseMonth(key)
	if err != nil {
		return nil
	}
	inMonth := calculator.FilterMonth(expenses, month)
	base := MonthColor(month)
	for i, e := range inMonth {
		out = append(out, Line{Expense: e, Attributed: e.Amount, Color: ExpenseShade(base, i, len(inMonth))})
	}
	return out
}

// FilterPerson keeps expenses that attribute any amount to the person key.
func FilterPerson(expenses []core.Expense, key string) []core.Expense {
	var out []core.Expense
	for _, e := range expenses {
		if e.PersonID == key || (e.Shared && e.Pct2 > 0 && strings.EqualFold(calculator.CounterpartyKey(e), key)) {
			out = append(out, e)
		}
	}
	return out
}
