package core

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

type (
	Currency string
	Theme    string

	// Preferences is the per-user settings blob.
	Preferences struct {
		Currency Currency `json:"currency" yaml:"currency"`
		Theme    Theme    `json:"theme" yaml:"theme"`
		Language string   `json:"language" yaml:"language"`
	}
)

const (
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	ARS Currency = "ARS"
	BRL Currency = "BRL"
	MXN Currency = "MXN"
	COP Currency = "COP"

	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

// PreferencesKey is the key the preferences blob is stored under.
const PreferencesKey = "user_preferences"

var currencySymbols = map[Currency]string{
	USD: "$",
	EUR: "€",
	GBP: "£",
	JPY: "¥",
	ARS: "$",
	BRL: "R$",
	MXN: "$",
	COP: "$",
}

var (
	ErrUnknownCurrency = errors.New("unknown currency")
	ErrUnknownTheme    = errors.New("unknown theme")
	ErrInvalidLanguage = errors.New("invalid language code")
)

// DefaultPreferences is what a user gets before saving any settings.
func DefaultPreferences() Preferences {
	return Preferences{Currency: USD, Theme: ThemeLight, Language: "es"}
}

// Currencies lists the supported currency codes.
func Currencies() []Currency {
	return []Currency{USD, EUR, GBP, JPY, ARS, BRL, MXN, COP}
}

func (c Currency) Valid() bool {
	_, ok := currencySymbols[c]
	return ok
}

// Symbol returns the display symbol, or the code itself for unknown currencies.
func (c Currency) Symbol() string {
	if s, ok := currencySymbols[c]; ok {
		return s
	}
	return string(c)
}

// Format renders an amount with the currency symbol. JPY has no minor unit.
func (c Currency) Format(d decimal.Decimal) string {
	places := int32(2)
	if c == JPY {
		places = 0
	}
	return c.Symbol() + d.StringFixed(places)
}

func (t Theme) Valid() bool {
	switch t {
	case ThemeLight, ThemeDark, ThemeSystem:
		return true
	}
	return false
}

// WithDefaults fills empty fields from DefaultPreferences.
func (p Preferences) WithDefaults() Preferences {
	def := DefaultPreferences()
	if p.Currency == "" {
		p.Currency = def.Currency
	}
	if p.Theme == "" {
		p.Theme = def.Theme
	}
	if p.Language == "" {
		p.Language = def.Language
	}
	return p
}

func (p Preferences) Validate() error {
	if !p.Currency.Valid() {
		return invalid("currency", fmt.Errorf("%w: %s", ErrUnknownCurrency, p.Currency))
	}
	if !p.Theme.Valid() {
		return invalid("theme", fmt.Errorf("%w: %s", ErrUnknownTheme, p.Theme))
	}
	if _, err := language.Parse(p.Language); err != nil {
		return invalid("language", fmt.Errorf("%w: %s", ErrInvalidLanguage, p.Language))
	}
	return nil
}
