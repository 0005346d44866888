package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gastos/internal/core"
)

func sample() []core.Expense {
	return []core.Expense{
		{
			ID: "e1", Month: core.Enero, Description: "Super, leche",
			Amount: decimal.RequireFromString("100"), Date: core.NewDate(2024, 1, 5),
			PersonID: "p1", Pct1: 100,
		},
		{
			ID: "e2", Month: core.Enero, Description: "Alquiler",
			Amount: decimal.RequireFromString("200.5"), Date: core.NewDate(2024, 1, 1),
			PersonID: "p1", Shared: true, Pct1: 60, Pct2: 40, CounterpartyEmail: "bea@example.com",
		},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", CSV, false},
		{"CSV", CSV, false},
		{"json", JSON, false},
		{" xlsx ", XLSX, false},
		{"pdf", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			require.ErrorIs(t, err, ErrUnknownFormat)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, tt.want, got)
	}
}

func TestWrite_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, CSV, sample(), map[string]string{"p1": "Ana"}))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, header, rows[0])
	require.Equal(t, []string{"2024-01-05", "Enero", "Super, leche", "100.00", "Ana", "no", "100", "0", "", "e1"}, rows[1])
	require.Equal(t, "sí", rows[2][5])
	require.Equal(t, "bea@example.com", rows[2][8])
}

func TestWrite_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSON, sample(), nil))

	var doc struct {
		Expenses []core.Expense `json:"expenses"`
		Total    string         `json:"total"`
		Count    int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	require.Equal(t, 2, doc.Count)
	require.Equal(t, "300.50", doc.Total)
	require.Equal(t, "e2", doc.Expenses[1].ID)
}

func TestWrite_JSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, JSON, nil, nil))
	require.Contains(t, buf.String(), `"expenses": []`)
	require.Contains(t, buf.String(), `"total": "0.00"`)
}

func TestWrite_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, XLSX, sample(), map[string]string{"p1": "Ana"}))

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 4)
	require.Equal(t, "Descripción", rows[0][2])
	require.Equal(t, "Super, leche", rows[1][2])
	require.Equal(t, "Ana", rows[1][4])
	require.Equal(t, "Total", rows[3][2])

	formula, err := f.GetCellFormula(sheetName, "D4")
	require.NoError(t, err)
	require.Equal(t, "SUM(D2:D3)", formula)
}

func TestWrite_UnknownFormat(t *testing.T) {
	require.ErrorIs(t, Write(&bytes.Buffer{}, Format("pdf"), nil, nil), ErrUnknownFormat)
}
