package calculator

import (
	"testing"

	"gastos/internal/core"
)

func TestSharedBalances(t *testing.T) {
	expenses := []core.Expense{
		// owned by u1, shared with ana: ana owes 40
		{ID: "1", UserID: "u1", Amount: dec("100"), Shared: true, Pct1: 60, Pct2: 40, CounterpartyEmail: "ana@example.com"},
		// owned by u1, personal: ignored
		{ID: "2", UserID: "u1", Amount: dec("70")},
		// owned by u2, shared with u1's email: u1 owes 25
		{ID: "3", UserID: "u2", Amount: dec("50"), Shared: true, Pct1: 50, Pct2: 50, CounterpartyEmail: "me@example.com"},
		// unrelated
		{ID: "4", UserID: "u3", Amount: dec("10"), Shared: true, Pct1: 50, Pct2: 50, CounterpartyEmail: "x@example.com"},
	}
	got := SharedBalances(expenses, "u1", "me@example.com")
	if len(got) != 2 {
		t.Fatalf("expected 2 balances, got %+v", got)
	}
	if got[0].Counterparty != "ana@example.com" || !got[0].TheyOwe.Equal(dec("40")) || !got[0].Net.Equal(dec("40")) {
		t.Fatalf("unexpected balance for ana: %+v", got[0])
	}
	if got[1].Counterparty != "u2" || !got[1].YouOwe.Equal(dec("25")) || !got[1].Net.Equal(dec("-25")) {
		t.Fatalf("unexpected balance for u2: %+v", got[1])
	}
}
