package core

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.0", "1", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true}, // half-up rounding
		{" 2.50 ", "2.5", true},
		{"99999999.99", "99999999.99", true},
		{"100000000", "", false},
		{"-1", "", false},
		{"0", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}

func TestParseSalary(t *testing.T) {
	got, err := ParseSalary("0")
	if err != nil || !got.IsZero() {
		t.Fatalf("expected zero salary, got %s (err=%v)", got, err)
	}
	got, err = ParseSalary("3500,75")
	if err != nil || !got.Equal(decimal.RequireFromString("3500.75")) {
		t.Fatalf("expected 3500.75, got %s (err=%v)", got, err)
	}
	if _, err := ParseSalary("-10"); err == nil {
		t.Fatalf("expected error for negative salary")
	}
}

func TestCurrencyFormat(t *testing.T) {
	cases := []struct {
		c    Currency
		in   string
		want string
	}{
		{USD, "12.5", "$12.50"},
		{EUR, "3", "€3.00"},
		{BRL, "10.456", "R$10.46"},
		{JPY, "1500.4", "¥1500"},
		{Currency("XXX"), "1", "XXX1.00"},
	}
	for _, tc := range cases {
		if got := tc.c.Format(decimal.RequireFromString(tc.in)); got != tc.want {
			t.Errorf("%s.Format(%s) = %q, want %q", tc.c, tc.in, got, tc.want)
		}
	}
}

func TestPreferences(t *testing.T) {
	def := DefaultPreferences()
	if def.Currency != USD || def.Theme != ThemeLight || def.Language != "es" {
		t.Fatalf("unexpected defaults %+v", def)
	}
	if err := def.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
	filled := Preferences{Theme: ThemeDark}.WithDefaults()
	if filled.Currency != USD || filled.Theme != ThemeDark || filled.Language != "es" {
		t.Fatalf("unexpected filled prefs %+v", filled)
	}
	bad := []Preferences{
		{Currency: "BTC", Theme: ThemeLight, Language: "es"},
		{Currency: EUR, Theme: "neon", Language: "es"},
		{Currency: EUR, Theme: ThemeLight, Language: "not a language!"},
	}
	for i, p := range bad {
		if err := p.Validate(); err == nil {
			t.Fatalf("case %d expected error", i)
		}
	}
}
