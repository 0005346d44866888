// Package core provides money parsing and handling utilities.
//
// Amounts are decimal values with two fractional digits. Parsing accepts both
// dot (12.34) and comma (12,34) separators and rounds half-up on the third
// decimal place.
package core

import (
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// MaxAmount is the largest amount a single expense may carry.
var MaxAmount = decimal.RequireFromString("99999999.99")

// ParseAmount converts a user-entered decimal string to a positive amount.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,34")  -> 12.34
//	ParseAmount("12.345") -> 12.35 (half-up)
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseDecimal(s)
	if err != nil {
		return decimal.Zero, err
	}
	if err := ValidateAmount(d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// ParseSalary is like ParseAmount but allows zero and has no ceiling.
func ParseSalary(s string) (decimal.Decimal, error) {
	return parseDecimal(s)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, ErrInvalidAmount
	}
	if strings.Count(s, ".") > 1 || s == "." {
		return decimal.Zero, ErrInvalidAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrInvalidAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrInvalidAmount
	}
	return d.Round(2), nil
}

// ValidateAmount checks that an expense amount is positive and below MaxAmount.
func ValidateAmount(d decimal.Decimal) error {
	if !d.IsPositive() {
		return ErrInvalidAmount
	}
	if d.GreaterThan(MaxAmount) {
		return ErrAmountTooLarge
	}
	return nil
}
