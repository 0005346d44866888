package core

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// Month is one of the twelve fixed month categories an expense is filed under.
type Month string

const (
	Enero      Month = "Enero"
	Febrero    Month = "Febrero"
	Marzo      Month = "Marzo"
	Abril      Month = "Abril"
	Mayo       Month = "Mayo"
	Junio      Month = "Junio"
	Julio      Month = "Julio"
	Agosto     Month = "Agosto"
	Septiembre Month = "Septiembre"
	Octubre    Month = "Octubre"
	Noviembre  Month = "Noviembre"
	Diciembre  Month = "Diciembre"
)

// Months lists the month categories in calendar order.
var Months = []Month{
	Enero, Febrero, Marzo, Abril, Mayo, Junio,
	Julio, Agosto, Septiembre, Octubre, Noviembre, Diciembre,
}

const maxDescriptionLength = 200

type (
	Date struct {
		time.Time
	}

	Expense struct {
		ID                string          `json:"id"`
		Month             Month           `json:"month"`
		Description       string          `json:"description"`
		Amount            decimal.Decimal `json:"amount"`
		Date              Date            `json:"date"`
		PersonID          string          `json:"person_id"`
		Shared            bool            `json:"shared"`
		Pct1              int             `json:"pct1"`
		Pct2              int             `json:"pct2"`
		CounterpartyEmail string          `json:"counterparty_email,omitempty"`
		UserID            string          `json:"user_id"`
		CreatedAt         time.Time       `json:"created_at"`
		UpdatedAt         time.Time       `json:"updated_at"`
	}

	// Draft is an expense as entered in the form, before it has an id or owner.
	Draft struct {
		Month             Month           `json:"month"`
		Description       string          `json:"description"`
		Amount            decimal.Decimal `json:"amount"`
		Date              Date            `json:"date"`
		PersonID          string          `json:"person_id"`
		Shared            bool            `json:"shared"`
		Pct1              int             `json:"pct1"`
		Pct2              int             `json:"pct2"`
		CounterpartyEmail string          `json:"counterparty_email,omitempty"`
	}

	// User is an authenticated account. People and expenses hang off a user id.
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
	}

	Person struct {
		ID     string          `json:"id"`
		Name   string          `json:"name"`
		Salary decimal.Decimal `json:"salary"`
		Email  string          `json:"email"`
		UserID string          `json:"user_id"`
	}
)

var (
	ErrInvalidMonth        = errors.New("invalid month")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrAmountTooLarge      = errors.New("amount exceeds maximum")
	ErrEmptyDescription    = errors.New("empty description")
	ErrDescriptionTooLong  = errors.New("description too long (max 200 characters)")
	ErrMissingPerson       = errors.New("no person selected")
	ErrMissingCounterparty = errors.New("shared expense requires the other person's email")
	ErrInvalidEmail        = errors.New("invalid email address")
	ErrInvalidSplit        = errors.New("split percentages must sum to 100")
	ErrInvalidSalary       = errors.New("salary cannot be negative")
	ErrEmptyName           = errors.New("empty name")
)

// ValidationError ties a validation failure to the field that caused it.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ParseMonth accepts a month name in any letter case and returns its canonical value.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	for _, m := range Months {
		if strings.EqualFold(s, string(m)) {
			return m, nil
		}
	}
	return "", ErrInvalidMonth
}

// MonthFromTime maps a calendar month to its category.
func MonthFromTime(t time.Time) Month {
	return Months[int(t.Month())-1]
}

// Valid reports whether m is one of the twelve month categories.
func (m Month) Valid() bool {
	return m.Ordinal() > 0
}

// Ordinal returns 1 for Enero through 12 for Diciembre, 0 for anything else.
func (m Month) Ordinal() int {
	for i, v := range Months {
		if v == m {
			return i + 1
		}
	}
	return 0
}

func (d Date) Validate() error {
	if d.IsZero() {
		return errors.New("date cannot be zero")
	}
	return nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD form value.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Time: t}, nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + d.Format("2006-01-02") + `"`), nil
}

func (d *Date) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		d.Time = time.Time{}
		return nil
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		d.Time = t
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return fmt.Errorf("invalid date %q", s)
	}
	d.Time = t
	return nil
}

// Normalize trims text fields, lower-cases the counterparty email and clears
// split data on personal expenses, which always attribute 100% to the owning
// person.
func (d Draft) Normalize() Draft {
	d.Description = strings.TrimSpace(d.Description)
	d.PersonID = strings.TrimSpace(d.PersonID)
	d.CounterpartyEmail = strings.ToLower(strings.TrimSpace(d.CounterpartyEmail))
	if !d.Shared {
		d.Pct1, d.Pct2 = 100, 0
		d.CounterpartyEmail = ""
	}
	return d
}

// Validate checks the draft without touching any remote service.
func (d Draft) Validate() error {
	if !d.Month.Valid() {
		return invalid("month", ErrInvalidMonth)
	}
	desc := strings.TrimSpace(d.Description)
	if desc == "" {
		return invalid("description", ErrEmptyDescription)
	}
	if utf8.RuneCountInString(desc) > maxDescriptionLength {
		return invalid("description", ErrDescriptionTooLong)
	}
	if err := ValidateAmount(d.Amount); err != nil {
		return invalid("amount", err)
	}
	if strings.TrimSpace(d.PersonID) == "" {
		return invalid("person_id", ErrMissingPerson)
	}
	if d.Shared {
		email := strings.TrimSpace(d.CounterpartyEmail)
		if email == "" {
			return invalid("counterparty_email", ErrMissingCounterparty)
		}
		if err := ValidateEmail(email); err != nil {
			return invalid("counterparty_email", err)
		}
		if err := ValidateSplit(d.Pct1, d.Pct2); err != nil {
			return invalid("pct", err)
		}
	}
	return nil
}

// Previewable reports whether the draft carries enough to be projected onto charts.
func (d Draft) Previewable() bool {
	return d.Amount.IsPositive() && d.Month.Valid() && strings.TrimSpace(d.PersonID) != ""
}

// Expense turns a validated draft into a record owned by userID.
func (d Draft) Expense(id, userID string, now time.Time) Expense {
	d = d.Normalize()
	date := d.Date
	if date.IsZero() {
		date = Date{Time: now.UTC().Truncate(24 * time.Hour)}
	}
	return Expense{
		ID:                id,
		Month:             d.Month,
		Description:       d.Description,
		Amount:            d.Amount.Round(2),
		Date:              date,
		PersonID:          d.PersonID,
		Shared:            d.Shared,
		Pct1:              d.Pct1,
		Pct2:              d.Pct2,
		CounterpartyEmail: d.CounterpartyEmail,
		UserID:            userID,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Draft returns the form view of an expense.
func (e Expense) Draft() Draft {
	return Draft{
		Month:             e.Month,
		Description:       e.Description,
		Amount:            e.Amount,
		Date:              e.Date,
		PersonID:          e.PersonID,
		Shared:            e.Shared,
		Pct1:              e.Pct1,
		Pct2:              e.Pct2,
		CounterpartyEmail: e.CounterpartyEmail,
	}
}

func (e Expense) Validate() error {
	if strings.TrimSpace(e.ID) == "" {
		return invalid("id", errors.New("empty id"))
	}
	return e.Draft().Validate()
}

// VisibleTo reports whether the user identified by userID/email owns or shares the expense.
func (e Expense) VisibleTo(userID, email string) bool {
	if e.UserID == userID {
		return true
	}
	return e.Shared && email != "" && strings.EqualFold(e.CounterpartyEmail, email)
}

// ValidateSplit checks a pair of split percentages.
func ValidateSplit(pct1, pct2 int) error {
	if pct1 < 0 || pct1 > 100 || pct2 < 0 || pct2 > 100 {
		return ErrInvalidSplit
	}
	if pct1+pct2 != 100 {
		return ErrInvalidSplit
	}
	return nil
}

// ValidateEmail checks that s is a bare address like "ana@example.com".
func ValidateEmail(s string) error {
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return ErrInvalidEmail
	}
	return nil
}

func (p Person) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return invalid("name", ErrEmptyName)
	}
	if p.Salary.IsNegative() {
		return invalid("salary", ErrInvalidSalary)
	}
	return nil
}
