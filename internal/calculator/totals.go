// Package calculator reduces expense lists into the totals, percentages and
// splits shown on the dashboard.
package calculator

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// CounterpartyFallbackKey is the person key used for the second side of a
// shared expense that has no counterparty email.
const CounterpartyFallbackKey = "persona2"

var hundred = decimal.NewFromInt(100)

// MonthTotal is one entry of a month-ordered total list.
type MonthTotal struct {
	Month core.Month      `json:"month"`
	Total decimal.Decimal `json:"total"`
}

// KeyTotal is one entry of a key-ordered total list.
type KeyTotal struct {
	Key   string          `json:"key"`
	Total decimal.Decimal `json:"total"`
}

// Sum adds up the amounts of all expenses.
func Sum(expenses []core.Expense) decimal.Decimal {
	total := decimal.Zero
	for _, e := range expenses {
		total = total.Add(e.Amount)
	}
	return total
}

// TotalByMonth groups expenses by month and sums their amounts.
func TotalByMonth(expenses []core.Expense) map[core.Month]decimal.Decimal {
	out := make(map[core.Month]decimal.Decimal)
	for _, e := range expenses {
		out[e.Month] = out[e.Month].Add(e.Amount)
	}
	return out
}

// TotalByPerson attributes each expense to the people that carry it. Personal
// expenses go entirely to the owning person; shared ones are split by pct1/pct2
// between the owning person and the counterparty.
func TotalByPerson(expenses []core.Expense) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, e := range expenses {
		if !e.Shared {
			out[e.PersonID] = out[e.PersonID].Add(e.Amount)
			continue
		}
		own, other := ShareOf(e)
		out[e.PersonID] = out[e.PersonID].Add(own)
		key := CounterpartyKey(e)
		out[key] = out[key].Add(other)
	}
	return out
}

// ShareOf returns the amounts attributed to the owning person and the counterparty.
func ShareOf(e core.Expense) (own, other decimal.Decimal) {
	if !e.Shared {
		return e.Amount, decimal.Zero
	}
	own = e.Amount.Mul(decimal.NewFromInt(int64(e.Pct1))).Div(hundred)
	other = e.Amount.Mul(decimal.NewFromInt(int64(e.Pct2))).Div(hundred)
	return own, other
}

// CounterpartyKey is the person key the counterparty share is booked under.
// Emails compare case-insensitively, so the key is lower-cased.
func CounterpartyKey(e core.Expense) string {
	if email := strings.TrimSpace(e.CounterpartyEmail); email != "" {
		return strings.ToLower(email)
	}
	return CounterpartyFallbackKey
}

// PercentageOfTotal scales each value to its share of the sum, 0-100. It
// returns an empty map when the values add up to zero.
func PercentageOfTotal[K comparable](totals map[K]decimal.Decimal) map[K]float64 {
	out := make(map[K]float64, len(totals))
	sum := decimal.Zero
	for _, v := range totals {
		sum = sum.Add(v)
	}
	if sum.IsZero() {
		return map[K]float64{}
	}
	for k, v := range totals {
		out[k] = v.Div(sum).Mul(hundred).InexactFloat64()
	}
	return out
}

// OrderedMonths returns the month totals in calendar order, skipping months with no entry.
func OrderedMonths(totals map[core.Month]decimal.Decimal) []MonthTotal {
	out := make([]MonthTotal, 0, len(totals))
	for _, m := range core.Months {
		if v, ok := totals[m]; ok {
			out = append(out, MonthTotal{Month: m, Total: v})
		}
	}
	return out
}

// OrderedKeys returns key totals sorted by descending total, then by key.
func OrderedKeys(totals map[string]decimal.Decimal) []KeyTotal {
	out := make([]KeyTotal, 0, len(totals))
	for k, v := range totals {
		out = append(out, KeyTotal{Key: k, Total: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// FilterMonth keeps the expenses filed under m.
func FilterMonth(expenses []core.Expense, m core.Month) []core.Expense {
	var out []core.Expense
	for _, e := range expenses {
		if e.Month == m {
			out = append(out, e)
		}
	}
	return out
}
