package chart

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func scenario() []core.Expense {
	return []core.Expense{
		{ID: "1", Month: core.Enero, Description: "cena", Amount: d("100"), PersonID: "p1", Pct1: 100},
		{ID: "2", Month: core.Enero, Description: "super", Amount: d("200"), PersonID: "p1", Shared: true, Pct1: 60, Pct2: 40},
		{ID: "3", Month: core.Marzo, Description: "luz", Amount: d("100"), PersonID: "p1", Pct1: 100},
	}
}

func TestPieCoversCircle(t *testing.T) {
	slices := Pie(Data(scenario(), ByMonth, nil, nil))
	if len(slices) != 2 {
		t.Fatalf("expected 2 slices, got %d", len(slices))
	}
	if slices[0].Key != string(core.Enero) || slices[1].Key != string(core.Marzo) {
		t.Fatalf("unexpected order: %s, %s", slices[0].Key, slices[1].Key)
	}
	if slices[0].Start != 0 || slices[1].End != 2*math.Pi {
		t.Fatalf("slices do not cover the circle: %+v", slices)
	}
	if math.Abs(slices[0].Percent-75) > 1e-9 {
		t.Errorf("expected 75%%, got %f", slices[0].Percent)
	}
	if slices[0].Color != "#FF6384" || slices[1].Color != "#FFCE56" {
		t.Errorf("unexpected colours %s %s", slices[0].Color, slices[1].Color)
	}
}

func TestPieEmpty(t *testing.T) {
	if got := Pie(nil); got != nil {
		t.Fatalf("expected no slices, got %v", got)
	}
	zero := []Datum{{Key: "a", Value: decimal.Zero}}
	if got := Pie(zero); got != nil {
		t.Fatalf("expected no slices for zero data, got %v", got)
	}
}

func TestPieHitTest(t *testing.T) {
	slices := Pie(Data(scenario(), ByMonth, nil, nil))
	// Enero covers 0..270 degrees clockwise from 12 o'clock, Marzo the rest.
	tests := []struct {
		name   string
		x, y   float64
		want   string
		wantOK bool
	}{
		{"right of centre", 150, 100, "Enero", true},
		{"below centre", 100, 150, "Enero", true},
		{"left of centre", 50, 90, "Marzo", true},
		{"upper left", 70, 70, "Marzo", true},
		{"outside radius", 100, 300, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := PieHitTest(slices, tt.x, tt.y, 100, 100, 80)
			if ok != tt.wantOK {
				t.Fatalf("hit = %v, want %v", ok, tt.wantOK)
			}
			if ok && s.Key != tt.want {
				t.Errorf("got %s, want %s", s.Key, tt.want)
			}
		})
	}
}

func TestBarsAndHitTest(t *testing.T) {
	bars := Bars(Data(scenario(), ByMonth, nil, nil))
	if len(bars) != 2 || bars[0].Height != 1 || math.Abs(bars[1].Height-1.0/3) > 1e-9 {
		t.Fatalf("unexpected bars %+v", bars)
	}

	tests := []struct {
		x      float64
		want   int
		wantOK bool
	}{
		{0, 0, true},
		{99.9, 0, true},
		{100, 1, true},
		{199, 1, true},
		{200, 0, false},
		{-1, 0, false},
	}
	for _, tt := range tests {
		got, ok := BarHitTest(len(bars), tt.x, 200)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("BarHitTest(%v) = %d, %v; want %d, %v", tt.x, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestPersonData(t *testing.T) {
	data := Data(scenario(), ByPerson, map[string]string{"p1": "Ana"}, []string{"p1"})
	if len(data) != 2 {
		t.Fatalf("expected 2 people, got %d", len(data))
	}
	if data[0].Label != "Ana" || !data[0].Value.Equal(d("320")) || data[0].Color != "#4F46E5" {
		t.Errorf("unexpected first datum %+v", data[0])
	}
	if data[1].Key != "persona2" || !data[1].Value.Equal(d("80")) || data[1].Color != "#EC4899" {
		t.Errorf("unexpected counterparty datum %+v", data[1])
	}
}

func TestProject(t *testing.T) {
	base := scenario()
	draft := &core.Draft{Month: core.Abril, Description: "x", Amount: d("50"), PersonID: "p1"}
	got := Project(base, draft)
	if len(got) != 4 || got[3].ID != PreviewID || got[3].Pct1 != 100 {
		t.Fatalf("draft not projected: %+v", got)
	}
	if len(base) != 3 {
		t.Fatal("input was modified")
	}

	notReady := &core.Draft{Month: core.Abril, Amount: decimal.Zero, PersonID: "p1"}
	if got := Project(base, notReady); len(got) != 3 {
		t.Fatalf("zero-amount draft should not be projected")
	}
	if got := Project(base, nil); len(got) != 3 {
		t.Fatalf("nil draft should not be projected")
	}
}

func TestBreakdown(t *testing.T) {
	lines := Breakdown(scenario(), ByMonth, "enero")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if lines[0].Color == lines[1].Color {
		t.Errorf("expected distinct shades, got %s", lines[0].Color)
	}

	people := Breakdown(scenario(), ByPerson, "persona2")
	if len(people) != 1 || !people[0].Attributed.Equal(d("80")) {
		t.Fatalf("unexpected counterparty breakdown %+v", people)
	}
	if got := Breakdown(scenario(), ByMonth, "nope"); got != nil {
		t.Fatalf("expected nil for unknown month")
	}
}

func TestExpenseShade(t *testing.T) {
	tests := []struct {
		base string
		i, n int
		want string
	}{
		{"#FF6384", 0, 1, "#33141a"},
		{"#ffffff", 1, 2, "#808080"},
		{"nope", 0, 1, DefaultColor},
		{"#FF6384", 0, 0, DefaultColor},
	}
	for _, tt := range tests {
		if got := ExpenseShade(tt.base, tt.i, tt.n); got != tt.want {
			t.Errorf("ExpenseShade(%s, %d, %d) = %s, want %s", tt.base, tt.i, tt.n, got, tt.want)
		}
	}
}

func TestMonthColorRepeats(t *testing.T) {
	if MonthColor(core.Julio) != MonthColor(core.Enero) {
		t.Fatal("palette should repeat after six months")
	}
	if MonthColor("x") != DefaultColor {
		t.Fatal("unknown month should use the default colour")
	}
}
