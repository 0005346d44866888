package google

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// Column layout of the expenses sheet.
var header = []any{
	"ID", "Mes", "Fecha", "Descripción", "Monto", "Persona",
	"Compartido", "Porcentaje 1", "Porcentaje 2", "Email otra persona", "Usuario",
}

// expenseToRow renders e as a sheet row matching header.
func expenseToRow(e core.Expense) []any {
	shared := "no"
	if e.Shared {
		shared = "sí"
	}
	date := ""
	if !e.Date.IsZero() {
		date = e.Date.Format("2006-01-02")
	}
	return []any{
		e.ID,
		string(e.Month),
		date,
		e.Description,
		e.Amount.StringFixed(2),
		e.PersonID,
		shared,
		e.Pct1,
		e.Pct2,
		e.CounterpartyEmail,
		e.UserID,
	}
}

// rowToExpense parses a row written by expenseToRow. Rows that do not carry
// an id and a month are rejected.
func rowToExpense(row []any) (core.Expense, error) {
	cols := toStrings(row)
	for len(cols) < len(header) {
		cols = append(cols, "")
	}
	if cols[0] == "" {
		return core.Expense{}, fmt.Errorf("row without id")
	}
	month, err := core.ParseMonth(cols[1])
	if err != nil {
		return core.Expense{}, fmt.Errorf("row %s: %w", cols[0], err)
	}
	amount, err := decimal.NewFromString(strings.ReplaceAll(cols[4], ",", "."))
	if err != nil {
		return core.Expense{}, fmt.Errorf("row %s: invalid amount %q", cols[0], cols[4])
	}

	e := core.Expense{
		ID:                cols[0],
		Month:             month,
		Description:       cols[3],
		Amount:            amount,
		PersonID:          cols[5],
		Shared:            parseBool(cols[6]),
		CounterpartyEmail: cols[9],
		UserID:            cols[10],
	}
	if cols[2] != "" {
		if t, err := time.Parse("2006-01-02", cols[2]); err == nil {
			e.Date = core.Date{Time: t}
		}
	}
	e.Pct1, _ = strconv.Atoi(cols[7])
	e.Pct2, _ = strconv.Atoi(cols[8])
	return e, nil
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "sí", "si", "yes", "true", "1":
		return true
	}
	return false
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}

// findRow returns the 1-based sheet row whose first column equals id, or 0.
func findRow(ids [][]any, id string) int {
	for i, row := range ids {
		if len(row) == 0 {
			continue
		}
		if strings.TrimSpace(fmt.Sprint(row[0])) == id {
			return i + 1
		}
	}
	return 0
}
