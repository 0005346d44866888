package calculator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func scenario() []core.Expense {
	return []core.Expense{
		{ID: "1", Month: core.Enero, Amount: dec("100"), PersonID: "persona1"},
		{ID: "2", Month: core.Enero, Amount: dec("200"), PersonID: "persona1", Shared: true, Pct1: 60, Pct2: 40},
	}
}

func TestTotalByMonth_Scenario(t *testing.T) {
	got := TotalByMonth(scenario())
	if len(got) != 1 {
		t.Fatalf("expected one month, got %v", got)
	}
	if !got[core.Enero].Equal(dec("300")) {
		t.Fatalf("expected enero=300, got %s", got[core.Enero])
	}
}

func TestTotalByPerson_Scenario(t *testing.T) {
	got := TotalByPerson(scenario())
	if !got["persona1"].Equal(dec("220")) {
		t.Fatalf("expected persona1=220, got %s", got["persona1"])
	}
	if !got[CounterpartyFallbackKey].Equal(dec("80")) {
		t.Fatalf("expected counterparty=80, got %s", got[CounterpartyFallbackKey])
	}
}

func TestTotalByPerson_CounterpartyEmail(t *testing.T) {
	expenses := []core.Expense{
		{Month: core.Marzo, Amount: dec("50"), PersonID: "p1", Shared: true, Pct1: 50, Pct2: 50, CounterpartyEmail: "ana@example.com"},
		{Month: core.Marzo, Amount: dec("30"), PersonID: "p2"},
	}
	got := TotalByPerson(expenses)
	want := map[string]string{"p1": "25", "ana@example.com": "25", "p2": "30"}
	if len(got) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), got)
	}
	for k, v := range want {
		if !got[k].Equal(dec(v)) {
			t.Errorf("%s = %s, want %s", k, got[k], v)
		}
	}
}

func TestTotalByPerson_CounterpartyEmailIgnoresCase(t *testing.T) {
	expenses := []core.Expense{
		{Month: core.Abril, Amount: dec("100"), PersonID: "p1", Shared: true, Pct1: 50, Pct2: 50, CounterpartyEmail: "Bea@example.com"},
		{Month: core.Abril, Amount: dec("100"), PersonID: "p1", Shared: true, Pct1: 50, Pct2: 50, CounterpartyEmail: " bea@EXAMPLE.com"},
	}
	got := TotalByPerson(expenses)
	if len(got) != 2 {
		t.Fatalf("expected one key per person, got %v", got)
	}
	if !got["bea@example.com"].Equal(dec("100")) {
		t.Errorf("bea@example.com = %s, want 100", got["bea@example.com"])
	}
	if !got["p1"].Equal(dec("100")) {
		t.Errorf("p1 = %s, want 100", got["p1"])
	}
}

func TestTotals_Empty(t *testing.T) {
	if got := TotalByMonth(nil); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
	if got := TotalByPerson(nil); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
	if got := PercentageOfTotal(map[string]decimal.Decimal{}); len(got) != 0 {
		t.Fatalf("expected empty map, got %v", got)
	}
}

func TestPercentageOfTotal_ZeroTotal(t *testing.T) {
	got := PercentageOfTotal(map[string]decimal.Decimal{"a": decimal.Zero, "b": decimal.Zero})
	if len(got) != 0 {
		t.Fatalf("expected empty map for zero total, got %v", got)
	}
}

func TestPercentageOfTotal(t *testing.T) {
	got := PercentageOfTotal(map[core.Month]decimal.Decimal{core.Enero: dec("25"), core.Febrero: dec("75")})
	if math.Abs(got[core.Enero]-25) > 1e-9 || math.Abs(got[core.Febrero]-75) > 1e-9 {
		t.Fatalf("unexpected percentages %v", got)
	}
}

func randomExpenses(r *rand.Rand, n int) []core.Expense {
	out := make([]core.Expense, n)
	for i := range out {
		pct1 := r.Intn(101)
		out[i] = core.Expense{
			Month:    core.Months[r.Intn(len(core.Months))],
			Amount:   decimal.New(int64(r.Intn(1_000_000)+1), -2),
			PersonID: "p1",
			Shared:   r.Intn(2) == 0,
			Pct1:     pct1,
			Pct2:     100 - pct1,
		}
	}
	return out
}

func TestProperty_TotalByMonthPreservesSum(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		expenses := randomExpenses(r, r.Intn(40)+1)
		total := decimal.Zero
		for _, v := range TotalByMonth(expenses) {
			total = total.Add(v)
		}
		if !total.Equal(Sum(expenses)) {
			t.Fatalf("iteration %d: month totals %s != sum %s", i, total, Sum(expenses))
		}
	}
}

func TestProperty_TotalByPersonPreservesSum(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		expenses := randomExpenses(r, r.Intn(40)+1)
		total := decimal.Zero
		for _, v := range TotalByPerson(expenses) {
			total = total.Add(v)
		}
		if !total.Equal(Sum(expenses)) {
			t.Fatalf("iteration %d: person totals %s != sum %s", i, total, Sum(expenses))
		}
	}
}

func TestProperty_PercentagesSumTo100(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 200; i++ {
		expenses := randomExpenses(r, r.Intn(40)+1)
		pcts := PercentageOfTotal(TotalByMonth(expenses))
		sum := 0.0
		for _, p := range pcts {
			sum += p
		}
		if math.Abs(sum-100) > 1e-6 {
			t.Fatalf("iteration %d: percentages sum to %f", i, sum)
		}
	}
}

func TestOrderedMonths(t *testing.T) {
	totals := map[core.Month]decimal.Decimal{
		core.Diciembre: dec("1"),
		core.Enero:     dec("2"),
		core.Junio:     dec("3"),
	}
	got := OrderedMonths(totals)
	want := []core.Month{core.Enero, core.Junio, core.Diciembre}
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for i, m := range want {
		if got[i].Month != m {
			t.Fatalf("position %d: expected %s, got %s", i, m, got[i].Month)
		}
	}
}

func TestOrderedKeys(t *testing.T) {
	got := OrderedKeys(map[string]decimal.Decimal{"b": dec("5"), "a": dec("5"), "c": dec("9")})
	if got[0].Key != "c" || got[1].Key != "a" || got[2].Key != "b" {
		t.Fatalf("unexpected order %+v", got)
	}
}
