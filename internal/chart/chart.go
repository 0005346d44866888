// Package chart turns aggregated totals into pie and bar geometry and maps
// pointer positions back to the slice or bar under them.
package chart

import (
	"math"

	"github.com/shopspring/decimal"

	"gastos/internal/calculator"
	"gastos/internal/core"
)

// GroupBy selects the dimension a chart aggregates on.
type GroupBy string

const (
	ByMonth  GroupBy = "month"
	ByPerson GroupBy = "person"
)

// Datum is one labelled value fed to a chart.
type Datum struct {
	Key   string          `json:"key"`
	Label string          `json:"label"`
	Value decimal.Decimal `json:"value"`
	Color string          `json:"color"`
}

// Slice is a pie wedge. Angles are radians measured clockwise from
// 12 o'clock in screen coordinates (y grows downwards).
type Slice struct {
	Datum
	Percent float64 `json:"percent"`
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
}

// Bar is a bar of a bar chart; Height is relative to the tallest bar (0..1).
type Bar struct {
	Datum
	Height float64 `json:"height"`
}

// Data aggregates expenses by month or by person. names maps person keys to
// display labels; missing keys use the key itself.
func Data(expenses []core.Expense, by GroupBy, names map[string]string, ownKeys []string) []Datum {
	if by == ByPerson {
		totals := calculator.TotalByPerson(expenses)
		out := make([]Datum, 0, len(totals))
		for _, kt := range calculator.OrderedKeys(totals) {
			label := kt.Key
			if n, ok := names[kt.Key]; ok && n != "" {
				label = n
			}
			out = append(out, Datum{Key: kt.Key, Label: label, Value: kt.Total, Color: PersonColor(kt.Key, ownKeys)})
		}
		return out
	}

	totals := calculator.TotalByMonth(expenses)
	out := make([]Datum, 0, len(totals))
	for _, mt := range calculator.OrderedMonths(totals) {
		out = append(out, Datum{Key: string(mt.Month), Label: string(mt.Month), Value: mt.Total, Color: MonthColor(mt.Month)})
	}
	return out
}

// Pie lays out slices for data, skipping non-positive values. An empty
// result means there is nothing to draw.
func Pie(data []Datum) []Slice {
	totals := make(map[string]decimal.Decimal, len(data))
	for _, d := range data {
		if d.Value.IsPositive() {
			totals[d.Key] = d.Value
		}
	}
	pcts := calculator.PercentageOfTotal(totals)
	if len(pcts) == 0 {
		return nil
	}

	out := make([]Slice, 0, len(pcts))
	start := 0.0
	for _, d := range data {
		pct, ok := pcts[d.Key]
		if !ok {
			continue
		}
		end := start + pct/100*2*math.Pi
		out = append(out, Slice{Datum: d, Percent: pct, Start: start, End: end})
		start = end
	}
	// Absorb floating point drift so the last slice closes the circle.
	out[len(out)-1].End = 2 * math.Pi
	return out
}

// PieHitTest returns the slice under (x, y) for a pie centred on (cx, cy).
func PieHitTest(slices []Slice, x, y, cx, cy, radius float64) (Slice, bool) {
	dx, dy := x-cx, y-cy
	if math.Hypot(dx, dy) > radius {
		return Slice{}, false
	}
	angle := math.Atan2(dx, -dy)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	for _, s := range slices {
		if angle >= s.Start && angle < s.End {
			return s, true
		}
	}
	if n := len(slices); n > 0 && angle >= slices[n-1].Start {
		return slices[n-1], true
	}
	return Slice{}, false
}

// Bars scales data against its largest value.
func Bars(data []Datum) []Bar {
	maxValue := decimal.Zero
	for _, d := range data {
		if d.Value.GreaterThan(maxValue) {
			maxValue = d.Value
		}
	}
	out := make([]Bar, 0, len(data))
	for _, d := range data {
		h := 0.0
		if maxValue.IsPositive() {
			h = d.Value.Div(maxValue).InexactFloat64()
		}
		out = append(out, Bar{Datum: d, Height: h})
	}
	return out
}

// BarHitTest maps an x coordinate on a chart of the given width to the index
// of one of n equally wide bars.
func BarHitTest(n int, x, width float64) (int, bool) {
	if n <= 0 || width <= 0 || x < 0 || x >= width {
		return 0, false
	}
	idx := int(x / (width / float64(n)))
	if idx >= n {
		idx = n - 1
	}
	return idx, true
}
