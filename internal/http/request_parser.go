// This file implements utilities for parsing request bodies. Bodies may be
// JSON or form encoded, so the same handlers serve API clients and HTMX forms.

package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"gastos/internal/core"
)

const maxBodyBytes = 64 << 10

// RequestBodyParser reads a JSON or form-encoded body once and exposes its
// fields as strings.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads the body of r, capped at maxBodyBytes.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	trimmed := strings.TrimSpace(string(p.body))
	if trimmed == "" {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		p.jsonData = make(map[string]any)
		if err := json.Unmarshal([]byte(trimmed), &p.jsonData); err != nil {
			p.err = err
			return err
		}
		return nil
	}

	p.formData, p.err = url.ParseQuery(trimmed)
	return p.err
}

// Has reports whether key was present in the body.
func (p *RequestBodyParser) Has(key string) bool {
	if p.jsonData != nil {
		_, ok := p.jsonData[key]
		return ok
	}
	if p.formData != nil {
		_, ok := p.formData[key]
		return ok
	}
	return false
}

// Get returns a string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return strings.TrimSpace(sanitizeInput(stringValue(val)))
		}
		return ""
	}
	if p.formData != nil {
		return strings.TrimSpace(sanitizeInput(p.formData.Get(key)))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	default:
		return ""
	}
}

// sanitizeInput drops control characters other than tab and newlines.
func sanitizeInput(s string) string {
	return strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, strings.TrimSpace(s))
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "on", "yes", "si", "sí":
		return true
	}
	return false
}

// DraftFromBody builds an expense draft. When strict is false, unparsable
// fields are left zero so an incomplete form can still be previewed.
func DraftFromBody(p *RequestBodyParser, strict bool) (core.Draft, error) {
	d := core.Draft{
		Description:       p.Get("description"),
		PersonID:          p.Get("person_id"),
		Shared:            parseBool(p.Get("shared")),
		CounterpartyEmail: p.Get("counterparty_email"),
	}
	invalid := func(field string, err error) error {
		if !strict {
			return nil
		}
		return &core.ValidationError{Field: field, Err: err}
	}

	if m, err := core.ParseMonth(p.Get("month")); err == nil {
		d.Month = m
	} else if err := invalid("month", core.ErrInvalidMonth); err != nil {
		return core.Draft{}, err
	}

	if amt, err := core.ParseAmount(p.Get("amount")); err == nil {
		d.Amount = amt
	} else if err := invalid("amount", err); err != nil {
		return core.Draft{}, err
	}

	if v := p.Get("date"); v != "" {
		if date, err := core.ParseDate(v); err == nil {
			d.Date = date
		} else if err := invalid("date", err); err != nil {
			return core.Draft{}, err
		}
	}

	if v := p.Get("pct1"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			d.Pct1 = n
		} else if err := invalid("pct", core.ErrInvalidSplit); err != nil {
			return core.Draft{}, err
		}
	}
	if v := p.Get("pct2"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			d.Pct2 = n
		} else if err := invalid("pct", core.ErrInvalidSplit); err != nil {
			return core.Draft{}, err
		}
	}
	return d, nil
}
