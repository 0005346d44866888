package http

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gastos/internal/calculator"
	"gastos/internal/core"
	"gastos/internal/export"
	applog "gastos/internal/log"
)

func (s *Server) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	prefs := s.deps.Preferences.Get(r.Context(), sessionUser(r).ID)
	NewResponse().JSON(map[string]any{
		"preferences": prefs,
		"currencies":  core.Currencies(),
	}).Write(w)
}

func (s *Server) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	patch := core.Preferences{
		Currency: core.Currency(p.Get("currency")),
		Theme:    core.Theme(p.Get("theme")),
		Language: p.Get("language"),
	}
	prefs, err := s.deps.Preferences.Update(r.Context(), sessionUser(r).ID, patch)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().Trigger("preferences:updated", prefs).JSON(prefs).Write(w)
}

func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	list, err := s.deps.Notifications.ListNotifications(r.Context(), sessionUser(r).ID)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	if list == nil {
		list = []core.Notification{}
	}
	unread := 0
	for _, n := range list {
		if !n.Read {
			unread++
		}
	}
	NewResponse().JSON(map[string]any{"notifications": list, "unread": unread}).Write(w)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.deps.Notifications.MarkNotificationRead(r.Context(), sessionUser(r).ID, id); err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusNoContent).Trigger("notifications:updated", nil).Write(w)
}

// handleExport streams the visible expenses, optionally limited to one month,
// as a CSV, JSON or XLSX attachment.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	month, ok := monthFilter(r)
	if !ok {
		FromError(r, &core.ValidationError{Field: "month", Err: core.ErrInvalidMonth}).Write(w)
		return
	}
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}

	in := chartInputsFor(st)
	expenses := in.expenses
	if month != "" {
		expenses = calculator.FilterMonth(expenses, month)
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, expenses, in.names); err != nil {
		FromError(r, fmt.Errorf("export %s: %w", format, err)).Write(w)
		return
	}
	applog.FromContext(r.Context()).InfoContext(r.Context(), "Expenses exported",
		applog.FieldOperation, applog.OpExport, "format", string(format), "count", len(expenses))

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", format.Filename()))
	w.Header().Set("Content-Length", fmt.Sprint(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}
