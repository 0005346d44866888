package http

import (
	"errors"
	"net/http"
	"strconv"

	"gastos/internal/calculator"
	"gastos/internal/chart"
	"gastos/internal/core"
	"gastos/internal/store"
)

type chartInputs struct {
	expenses []core.Expense
	names    map[string]string
	ownKeys  []string
}

func chartInputsFor(st *store.Store) chartInputs {
	people := st.People()
	in := chartInputs{
		expenses: st.Expenses(),
		names:    make(map[string]string, len(people)),
		ownKeys:  make([]string, 0, len(people)),
	}
	for _, p := range people {
		in.names[p.ID] = p.Name
		in.ownKeys = append(in.ownKeys, p.ID)
	}
	return in
}

var errInvalidGroupBy = errors.New("by must be month or person")

func groupBy(r *http.Request) (chart.GroupBy, error) {
	switch v := chart.GroupBy(r.URL.Query().Get("by")); v {
	case "":
		return chart.ByMonth, nil
	case chart.ByMonth, chart.ByPerson:
		return v, nil
	}
	return "", &core.ValidationError{Field: "by", Err: errInvalidGroupBy}
}

type splitSuggestion struct {
	Pct1 int `json:"pct1"`
	Pct2 int `json:"pct2"`
}

type totalsResponse struct {
	store.Totals
	Currency  core.Currency    `json:"currency"`
	Formatted string           `json:"formatted"`
	Split     *splitSuggestion `json:"split,omitempty"`
}

func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	totals := st.Totals()
	resp := totalsResponse{Totals: totals, Currency: core.USD}
	if s.deps.Preferences != nil {
		resp.Currency = s.deps.Preferences.Get(r.Context(), st.User().ID).Currency
	}
	resp.Formatted = resp.Currency.Format(totals.Total)

	if people := st.People(); len(people) >= 2 {
		if p1, p2, err := calculator.SplitFromSalaries(people[0], people[1]); err == nil {
			resp.Split = &splitSuggestion{Pct1: p1, Pct2: p2}
		}
	}
	NewResponse().JSON(resp).Write(w)
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	u := st.User()
	balances := calculator.SharedBalances(st.Expenses(), u.ID, u.Email)
	if balances == nil {
		balances = []calculator.Balance{}
	}
	NewResponse().JSON(balances).Write(w)
}

func (s *Server) handlePie(w http.ResponseWriter, r *http.Request) {
	by, err := groupBy(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	in := chartInputsFor(st)
	slices := chart.Pie(chart.Data(in.expenses, by, in.names, in.ownKeys))
	if slices == nil {
		slices = []chart.Slice{}
	}
	NewResponse().JSON(slices).Write(w)
}

func (s *Server) handleBar(w http.ResponseWriter, r *http.Request) {
	by, err := groupBy(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	in := chartInputsFor(st)
	bars := chart.Bars(chart.Data(in.expenses, by, in.names, in.ownKeys))
	if bars == nil {
		bars = []chart.Bar{}
	}
	NewResponse().JSON(bars).Write(w)
}

type hitResponse struct {
	Hit   bool         `json:"hit"`
	Datum *chart.Datum `json:"datum,omitempty"`
	Lines []chart.Line `json:"lines,omitempty"`
}

// queryFloats reads the named float query parameters, failing on the first
// missing or malformed one.
func queryFloats(r *http.Request, names ...string) ([]float64, error) {
	q := r.URL.Query()
	out := make([]float64, len(names))
	for i, n := range names {
		v, err := strconv.ParseFloat(q.Get(n), 64)
		if err != nil {
			return nil, &core.ValidationError{Field: n, Err: errors.New("must be a number")}
		}
		out[i] = v
	}
	return out, nil
}

// handleHit maps a pointer position on a rendered chart back to the slice or
// bar under it and lists the expenses behind it.
func (s *Server) handleHit(w http.ResponseWriter, r *http.Request) {
	by, err := groupBy(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	in := chartInputsFor(st)
	data := chart.Data(in.expenses, by, in.names, in.ownKeys)

	var (
		datum chart.Datum
		hit   bool
	)
	switch r.URL.Query().Get("chart") {
	case "", "pie":
		v, err := queryFloats(r, "x", "y", "cx", "cy", "r")
		if err != nil {
			FromError(r, err).Write(w)
			return
		}
		var slice chart.Slice
		slice, hit = chart.PieHitTest(chart.Pie(data), v[0], v[1], v[2], v[3], v[4])
		datum = slice.Datum
	case "bar":
		v, err := queryFloats(r, "x", "width")
		if err != nil {
			FromError(r, err).Write(w)
			return
		}
		var idx int
		idx, hit = chart.BarHitTest(len(data), v[0], v[1])
		if hit {
			datum = data[idx]
		}
	default:
		FromError(r, &core.ValidationError{Field: "chart", Err: errors.New("chart must be pie or bar")}).Write(w)
		return
	}

	resp := hitResponse{Hit: hit}
	if hit {
		resp.Datum = &datum
		resp.Lines = chart.Breakdown(in.expenses, by, datum.Key)
	}
	NewResponse().JSON(resp).Write(w)
}

func (s *Server) handleBreakdown(w http.ResponseWriter, r *http.Request) {
	by, err := groupBy(r)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	key := r.URL.Query().Get("key")
	if key == "" {
		FromError(r, &core.ValidationError{Field: "key", Err: errors.New("key is required")}).Write(w)
		return
	}
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	lines := chart.Breakdown(st.Expenses(), by, key)
	if lines == nil {
		lines = []chart.Line{}
	}
	NewResponse().JSON(lines).Write(w)
}
