// Package export writes expense lists as CSV, JSON or XLSX downloads.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"gastos/internal/calculator"
	"gastos/internal/core"
)

type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	XLSX Format = "xlsx"
)

var ErrUnknownFormat = errors.New("unknown export format")

const sheetName = "Gastos"

var header = []string{
	"Fecha", "Mes", "Descripción", "Monto", "Persona",
	"Compartido", "Porcentaje 1", "Porcentaje 2", "Email contraparte", "ID",
}

// ParseFormat accepts csv, json or xlsx in any case. Empty means csv.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return CSV, nil
	case CSV, JSON, XLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

func (f Format) ContentType() string {
	switch f {
	case JSON:
		return "application/json"
	case XLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// Filename is the download name for an export of this format.
func (f Format) Filename() string {
	return "gastos." + string(f)
}

// Write encodes expenses to w. names maps person ids to display names; ids
// without a name are written as is.
func Write(w io.Writer, f Format, expenses []core.Expense, names map[string]string) error {
	switch f {
	case CSV:
		return writeCSV(w, expenses, names)
	case JSON:
		return writeJSON(w, expenses)
	case XLSX:
		return writeXLSX(w, expenses, names)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFormat, f)
}

func record(e core.Expense, names map[string]string) []string {
	person := e.PersonID
	if n, ok := names[e.PersonID]; ok {
		person = n
	}
	shared := "no"
	if e.Shared {
		shared = "sí"
	}
	return []string{
		e.Date.Format("2006-01-02"),
		string(e.Month),
		e.Description,
		e.Amount.StringFixed(2),
		person,
		shared,
		strconv.Itoa(e.Pct1),
		strconv.Itoa(e.Pct2),
		e.CounterpartyEmail,
		e.ID,
	}
}

func writeCSV(w io.Writer, expenses []core.Expense, names map[string]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, e := range expenses {
		if err := cw.Write(record(e, names)); err != nil {
			return fmt.Errorf("write csv row %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

type document struct {
	Expenses []core.Expense `json:"expenses"`
	Total    string         `json:"total"`
	Count    int            `json:"count"`
}

func writeJSON(w io.Writer, expenses []core.Expense) error {
	if expenses == nil {
		expenses = []core.Expense{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(document{
		Expenses: expenses,
		Total:    calculator.Sum(expenses).StringFixed(2),
		Count:    len(expenses),
	})
}

func writeXLSX(w io.Writer, expenses []core.Expense, names map[string]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4F46E5"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{
		NumFmt:    4, // #,##0.00
		Alignment: &excelize.Alignment{Horizontal: "right"},
	})
	if err != nil {
		return fmt.Errorf("amount style: %w", err)
	}

	for i, h := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(header), 1)
	if err := f.SetCellStyle(sheetName, "A1", last, headerStyle); err != nil {
		return err
	}

	row := 2
	for _, e := range expenses {
		values := record(e, names)
		for i, v := range values {
			cell, _ := excelize.CoordinatesToCellName(i+1, row)
			var value any = v
			if i == 3 {
				value = e.Amount.InexactFloat64()
			}
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
		row++
	}

	totalLabel := fmt.Sprintf("C%d", row)
	totalCell := fmt.Sprintf("D%d", row)
	if err := f.SetCellValue(sheetName, totalLabel, "Total"); err != nil {
		return err
	}
	if err := f.SetCellFormula(sheetName, totalCell, fmt.Sprintf("SUM(D2:D%d)", max(row-1, 2))); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "D2", totalCell, amountStyle); err != nil {
		return err
	}

	widths := map[string]float64{"A": 12, "B": 12, "C": 32, "D": 14, "E": 18, "I": 28, "J": 38}
	for col, width := range widths {
		if err := f.SetColWidth(sheetName, col, col, width); err != nil {
			return err
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
