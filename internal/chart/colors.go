package chart

import (
	"fmt"
	"math"
	"strconv"

	"gastos/internal/calculator"
	"gastos/internal/core"
)

// DefaultColor is used for keys without an assigned colour.
const DefaultColor = "#C9CBCF"

var monthPalette = []string{"#FF6384", "#FF9F40", "#FFCE56", "#4BC0C0", "#36A2EB", "#9966FF"}

// MonthColor returns the base colour of a month; the palette repeats every six months.
func MonthColor(m core.Month) string {
	n := m.Ordinal()
	if n == 0 {
		return DefaultColor
	}
	return monthPalette[(n-1)%len(monthPalette)]
}

// PersonColor returns the colour for a person key. The owner's people come
// first in ownKeys; the counterparty fallback key has its own colour.
func PersonColor(key string, ownKeys []string) string {
	if key == calculator.CounterpartyFallbackKey {
		return "#EC4899"
	}
	if len(ownKeys) > 0 && ownKeys[0] == key {
		return "#4F46E5"
	}
	return "#6B7280"
}

// ExpenseShade darkens base for the i-th of n expenses of a month, scaling
// each channel by a factor between 0.2 and 0.8.
func ExpenseShade(base string, i, n int) string {
	if len(base) != 7 || base[0] != '#' || n <= 0 {
		return DefaultColor
	}
	rgb, err := strconv.ParseUint(base[1:], 16, 32)
	if err != nil {
		return DefaultColor
	}
	factor := 0.2 + float64(i)/float64(n)*0.6
	scale := func(c uint64) uint64 { return uint64(math.Round(float64(c) * factor)) }
	r, g, b := scale(rgb>>16&0xFF), scale(rgb>>8&0xFF), scale(rgb&0xFF)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
