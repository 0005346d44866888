package calculator

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// Balance summarises the shared expenses between the viewer and one other party.
type Balance struct {
	Counterparty string          `json:"counterparty"`
	TheyOwe      decimal.Decimal `json:"they_owe"`
	YouOwe       decimal.Decimal `json:"you_owe"`
	Net          decimal.Decimal `json:"net"` // positive: the counterparty owes the viewer
	Expenses     int             `json:"expenses"`
}

// SharedBalances nets shared expenses for the user identified by userID/email.
// Expenses the user owns put the counterparty share on the other side; expenses
// shared with the user put their share on the user.
func SharedBalances(expenses []core.Expense, userID, email string) []Balance {
	byParty := make(map[string]*Balance)
	get := func(key string) *Balance {
		b, ok := byParty[key]
		if !ok {
			b = &Balance{Counterparty: key, TheyOwe: decimal.Zero, YouOwe: decimal.Zero}
			byParty[key] = b
		}
		return b
	}
	for _, e := range expenses {
		if !e.Shared {
			continue
		}
		_, other := ShareOf(e)
		switch {
		case e.UserID == userID:
			b := get(CounterpartyKey(e))
			b.TheyOwe = b.TheyOwe.Add(other)
			b.Expenses++
		case email != "" && strings.EqualFold(e.CounterpartyEmail, email):
			b := get(e.UserID)
			b.YouOwe = b.YouOwe.Add(other)
			b.Expenses++
		}
	}

	out := make([]Balance, 0, len(byParty))
	for _, b := range byParty {
		b.Net = b.TheyOwe.Sub(b.YouOwe)
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Counterparty < out[j].Counterparty })
	return out
}
