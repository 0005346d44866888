package mail

import (
	"bytes"
	"fmt"
	"html/template"
)

var sharedExpenseTmpl = template.Must(template.New("shared").Parse(`<h2>{{.Title}}</h2>
<p>{{.Owner}} registró un gasto compartido contigo.</p>
<ul>
  <li>Descripción: {{.Description}}</li>
  <li>Mes: {{.Month}}</li>
  <li>Monto: {{.Amount}}</li>
  <li>Tu porcentaje: {{.Percent}}%</li>
  <li>Tu parte: {{.Share}}</li>
</ul>
`))

// SharedExpense is the data rendered into a shared expense email.
type SharedExpense struct {
	Title       string
	Owner       string
	Description string
	Month       string
	Amount      string
	Percent     int
	Share       string
}

// RenderSharedExpense builds the HTML body of a shared expense email.
func RenderSharedExpense(d SharedExpense) (string, error) {
	var buf bytes.Buffer
	if err := sharedExpenseTmpl.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render shared expense email: %w", err)
	}
	return buf.String(), nil
}
