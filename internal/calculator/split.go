package calculator

import (
	"errors"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

// ErrNegativeSalary is returned by SplitFromSalaries for salaries below zero.
var ErrNegativeSalary = errors.New("salaries cannot be negative")

// SplitPercentage derives complementary integer percentages from two salaries.
// Two zero salaries split 50/50. Negative salaries count as zero. The second
// percentage is always 100 minus the first so the pair sums to exactly 100.
func SplitPercentage(salary1, salary2 decimal.Decimal) (int, int) {
	if salary1.IsNegative() {
		salary1 = decimal.Zero
	}
	if salary2.IsNegative() {
		salary2 = decimal.Zero
	}
	total := salary1.Add(salary2)
	if total.IsZero() {
		return 50, 50
	}
	pct1 := int(salary1.Div(total).Mul(hundred).Round(0).IntPart())
	return pct1, 100 - pct1
}

// SplitFromSalaries is SplitPercentage for two people, rejecting negative salaries.
func SplitFromSalaries(p1, p2 core.Person) (int, int, error) {
	if p1.Salary.IsNegative() || p2.Salary.IsNegative() {
		return 0, 0, ErrNegativeSalary
	}
	pct1, pct2 := SplitPercentage(p1.Salary, p2.Salary)
	return pct1, pct2, nil
}
