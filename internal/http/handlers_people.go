package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"gastos/internal/core"
)

func (s *Server) handleListPeople(w http.ResponseWriter, r *http.Request) {
	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	people := st.People()
	if people == nil {
		people = []core.Person{}
	}
	NewResponse().JSON(people).Write(w)
}

// handleCreatePerson adds a person to the caller. Salary is optional and
// defaults to zero.
func (s *Server) handleCreatePerson(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	person := core.Person{Name: p.Get("name"), Email: p.Get("email"), Salary: decimal.Zero}
	if v := p.Get("salary"); v != "" {
		salary, err := core.ParseSalary(v)
		if err != nil {
			FromError(r, &core.ValidationError{Field: "salary", Err: err}).Write(w)
			return
		}
		person.Salary = salary
	}

	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	rec, ctx := recordEvents(r)
	saved, err := st.AddPerson(ctx, person)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().Status(http.StatusCreated).TriggerEvents(rec.Names()).JSON(saved).Write(w)
}

func (s *Server) handleUpdateSalary(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}
	salary, err := core.ParseSalary(p.Get("salary"))
	if err != nil {
		FromError(r, &core.ValidationError{Field: "salary", Err: err}).Write(w)
		return
	}

	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	rec, ctx := recordEvents(r)
	person, err := st.UpdatePersonSalary(ctx, chi.URLParam(r, "id"), salary)
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().TriggerEvents(rec.Names()).JSON(person).Write(w)
}

func (s *Server) handleUpdateName(w http.ResponseWriter, r *http.Request) {
	p := NewRequestBodyParser(w, r)
	if err := p.Parse(); err != nil {
		BadRequestError("invalid request body").Write(w)
		return
	}

	st, ok := s.storeFor(w, r)
	if !ok {
		return
	}
	rec, ctx := recordEvents(r)
	person, err := st.UpdatePersonName(ctx, chi.URLParam(r, "id"), p.Get("name"))
	if err != nil {
		FromError(r, err).Write(w)
		return
	}
	NewResponse().TriggerEvents(rec.Names()).JSON(person).Write(w)
}
