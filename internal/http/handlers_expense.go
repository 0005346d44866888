package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gastos/internal/calculator"
	"gastos/internal/chart"
	"gastos/internal/core"
	"gastos/internal/events"
	applog "gastos/internal/log"
	"gastos/internal/store"
)

// recordEvents attaches a fresh recorder to the request context. Store
// operations run with the returned context record the events they publish,
// and only those.
func recordEvents(r *http.Request) (*events.Recorder, context.Context) {
	rec := &events.Recorder{}
	return rec, events.WithRecorder(r.Context(), rec)
}

func (s *Server) expenseOp(op string, err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ExpenseOp(op, err)
	}
}

// monthFilter parses the optional ?month= query. ok is false when a month was
// given but is not one of the twelve categories.
func monthFilter(r *http.Request) (m core.Month, ok bool) {
	v := r.URL.Query().Get("month")
	if v == "" {
		return "", true
	}
	m, err := core.ParseMonth(v)
	return m, err == nil
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	month, ok := monthFilter(r)
	if !ok {
		FromError(r, &core.ValidationError{Field: "month", Err: core.ErrInvalidMonth}).Write(w)
		return
	}

	snap := st.Snapshot()
	if month != "" {
		snap.Expenses = calculator.FilterMonth(snap.Expenses, month)
	}
	NewResponse().JSON(snap).Write(w)
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	draft, err := DraftFromBody(p, true)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}

	rec, ctx := recordEvents(r)
	saved, err := st.Add(ctx, draft)
	s.expenseOp(applog.OpCreate, err)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogExpenseCreated(r.Context(), st.User().ID, saved, rec.Names())

	NewResponse().
		Status(http.StatusCreated).
		TriggerEvents(rec.Names()).
		Trigger("form:reset", nil).
		JSON(saved).
		Write(w)
}

func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}

	rec, ctx := recordEvents(r)
	err := st.Remove(ctx, id)
	s.expenseOp(applog.OpDelete, err)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}

	applog.NewStructuredLogger(applog.FromContext(r.Context())).
		LogExpenseDeleted(r.Context(), st.User().ID, id)

	NewResponse().
		Status(http.StatusAccepted).
		TriggerEvents(rec.Names()).
		JSON(map[string]any{"id": id, "state": store.StatePending}).
		Write(w)
}

type previewResponse struct {
	Previewable bool          `json:"previewable"`
	Draft       core.Draft    `json:"draft"`
	ByMonth     []chart.Slice `json:"by_month"`
	ByPerson    []chart.Slice `json:"by_person"`
	Bars        []chart.Bar   `json:"bars"`
}

// handlePreview projects an unsaved draft onto the charts. Incomplete drafts
// are accepted; they simply do not change the projection.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	draft, _ := DraftFromBody(p, false)

	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}

	rec, ctx := recordEvents(r)
	st.Preview(ctx, draft)

	in := chartInputsFor(st)
	projected := chart.Project(in.expenses, &draft)
	NewResponse().
		TriggerEvents(rec.Names()).
		JSON(previewResponse{
			Previewable: draft.Previewable(),
			Draft:       draft.Normalize(),
			ByMonth:     chart.Pie(chart.Data(projected, chart.ByMonth, in.names, in.ownKeys)),
			ByPerson:    chart.Pie(chart.Data(projected, chart.ByPerson, in.names, in.ownKeys)),
			Bars:        chart.Bars(chart.Data(projected, chart.ByMonth, in.names, in.ownKeys)),
		}).
		Write(w)
}

// handleReload refetches from the data service. On failure the last known
// list is returned, marked stale, with 503.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}

	rec, ctx := recordEvents(r)
	err := st.Load(ctx)
	s.expenseOp(applog.OpReload, err)

	status := http.StatusOK
	if err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Reload failed, serving last known expenses", "error", err)
		status = http.StatusServiceUnavailable
	}
	NewResponse().Status(status).TriggerEvents(rec.Names()).JSON(st.Snapshot()).Write(w)
}
