package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"gastos/internal/auth"
	"gastos/internal/core"
	"gastos/internal/dataservice"
	"gastos/internal/export"
)

func TestResponseBuilder_Basic(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		Status(http.StatusCreated).
		JSON(map[string]string{"id": "e1"}).
		Write(w)

	if w.Code != http.StatusCreated {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusCreated)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["id"] != "e1" {
		t.Errorf("body id = %q, want e1", body["id"])
	}
}

func TestResponseBuilder_NoBody(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().Status(http.StatusNoContent).Write(w)

	if w.Code != http.StatusNoContent {
		t.Errorf("Status code = %d, want %d", w.Code, http.StatusNoContent)
	}
	if w.Body.Len() != 0 {
		t.Errorf("Body = %q, want empty", w.Body.String())
	}
	if w.Header().Get("HX-Trigger") != "" {
		t.Error("HX-Trigger set without triggers")
	}
}

func TestResponseBuilder_Triggers(t *testing.T) {
	w := httptest.NewRecorder()

	NewResponse().
		TriggerEvents([]string{"expense:created", "totals:updated"}).
		Trigger("toast", map[string]string{"message": "saved"}).
		Header("X-Custom", "1").
		Write(w)

	trigger := w.Header().Get("HX-Trigger")
	if trigger == "" {
		t.Fatal("HX-Trigger header not set")
	}
	var triggers map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trigger), &triggers); err != nil {
		t.Fatalf("HX-Trigger is not JSON: %v", err)
	}
	for _, name := range []string{"expense:created", "totals:updated", "toast"} {
		if _, ok := triggers[name]; !ok {
			t.Errorf("missing trigger %q in %s", name, trigger)
		}
	}
	if string(triggers["expense:created"]) != "{}" {
		t.Errorf("empty trigger payload = %s, want {}", triggers["expense:created"])
	}
	if w.Header().Get("X-Custom") != "1" {
		t.Error("custom header not written")
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", &core.ValidationError{Field: "amount", Err: core.ErrInvalidAmount}, http.StatusBadRequest},
		{"bare month", core.ErrInvalidMonth, http.StatusBadRequest},
		{"format", fmt.Errorf("export: %w", export.ErrUnknownFormat), http.StatusBadRequest},
		{"token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"permission", dataservice.ErrPermissionDenied, http.StatusForbidden},
		{"not found", fmt.Errorf("delete: %w", dataservice.ErrNotFound), http.StatusNotFound},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StatusFor(tt.err); got != tt.want {
				t.Errorf("StatusFor(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestFromError(t *testing.T) {
	r := httptest.NewRequest(http.MethodPost, "/api/expenses", nil)

	t.Run("validation carries field", func(t *testing.T) {
		w := httptest.NewRecorder()
		FromError(r, &core.ValidationError{Field: "description", Err: core.ErrEmptyDescription}).Write(w)

		if w.Code != http.StatusBadRequest {
			t.Fatalf("Status code = %d", w.Code)
		}
		var body errorBody
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Field != "description" || body.Error != core.ErrEmptyDescription.Error() {
			t.Errorf("body = %+v", body)
		}
	})

	t.Run("server error is masked", func(t *testing.T) {
		w := httptest.NewRecorder()
		FromError(r, errors.New("sqlite: disk I/O error")).Write(w)

		if w.Code != http.StatusInternalServerError {
			t.Fatalf("Status code = %d", w.Code)
		}
		var body errorBody
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Error != "internal error" {
			t.Errorf("error = %q, want masked message", body.Error)
		}
	})
}
