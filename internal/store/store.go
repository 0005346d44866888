// Package store holds the expense list of one signed-in user and keeps it in
// step with the remote data service.
//
// Reads are served from memory. Additions are validated locally, persisted,
// and only then appended. Removals are optimistic: the record disappears
// immediately and is reconciled with the server if the remote delete fails.
// Every change is published on the event bus.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"gastos/internal/calculator"
	"gastos/internal/core"
	"gastos/internal/dataservice"
	"gastos/internal/events"
)

// RecordState tracks a record through an optimistic mutation.
type RecordState string

const (
	StateCommitted RecordState = "committed"
	StatePending   RecordState = "pending"
	StateFailed    RecordState = "failed"
)

// Remote is the part of the data service the store talks to.
type Remote interface {
	dataservice.ExpenseReader
	dataservice.ExpenseWriter
	dataservice.ExpenseDeleter
	dataservice.PersonRepository
	dataservice.EmailResolver
}

// Notifier tells the counterparty of a shared expense about it.
type Notifier interface {
	NotifyShared(ctx context.Context, e core.Expense, owner core.User) error
}

// Snapshot is an immutable view of the store.
type Snapshot struct {
	Expenses  []core.Expense         `json:"expenses"`
	People    []core.Person          `json:"people"`
	// Emails maps the person ids the expenses are booked under to their
	// account email, where one is known.
	Emails    map[string]string      `json:"emails,omitempty"`
	States    map[string]RecordState `json:"states,omitempty"`
	Stale     bool                   `json:"stale"`
	LastError string                 `json:"last_error,omitempty"`
	LoadedAt  time.Time              `json:"loaded_at"`
}

// Totals are the aggregates derived from the visible expenses.
type Totals struct {
	Total       decimal.Decimal                `json:"total"`
	ByMonth     map[core.Month]decimal.Decimal `json:"by_month"`
	ByPerson    map[string]decimal.Decimal     `json:"by_person"`
	MonthPct    map[core.Month]float64         `json:"month_pct"`
	PersonPct   map[string]float64             `json:"person_pct"`
	Months      []calculator.MonthTotal        `json:"months"`
	PeopleOrder []calculator.KeyTotal          `json:"people"`
}

// Hooks observe store internals, typically for metrics. Nil fields are skipped.
type Hooks struct {
	StaleLoad  func()
	Reconciled func()
}

// Store is the expense state of one user. It is safe for concurrent use.
type Store struct {
	user     core.User
	remote   Remote
	bus      *events.Bus
	notifier Notifier
	now      func() time.Time
	newID    func() string
	hooks    Hooks

	mu       sync.RWMutex
	expenses []core.Expense
	states   map[string]RecordState
	deleting map[string]struct{}
	// deleted maps ids removed remotely to the removal sequence, so a load
	// that fetched before the removal does not bring them back.
	deleted  map[string]uint64
	seq      uint64
	people   []core.Person
	emails   map[string]string
	stale    bool
	lastErr  error
	loadedAt time.Time

	loads   singleflight.Group
	pending sync.WaitGroup
}

// New creates an empty store for user. bus and notifier may be nil.
func New(user core.User, remote Remote, bus *events.Bus, notifier Notifier) *Store {
	return &Store{
		user:     user,
		remote:   remote,
		bus:      bus,
		notifier: notifier,
		now:      time.Now,
		newID:    uuid.NewString,
		states:   make(map[string]RecordState),
		deleting: make(map[string]struct{}),
		deleted:  make(map[string]uint64),
	}
}

func (s *Store) User() core.User { return s.user }

// SetHooks installs h. Call before the store is shared.
func (s *Store) SetHooks(h Hooks) { s.hooks = h }

// publish records e on the recorder of ctx, if any, and sends it on the bus.
func (s *Store) publish(ctx context.Context, e events.Event) {
	if rec := events.RecorderFrom(ctx); rec != nil {
		rec.Record(e)
	}
	if s.bus != nil {
		s.bus.Publish(e)
	}
}

// Load fetches owned and shared expenses plus people and replaces the
// in-memory state. Concurrent calls share one fetch. When the fetch fails
// the previous state is kept and marked stale. Expenses with a delete in
// flight stay hidden.
func (s *Store) Load(ctx context.Context) error {
	_, err, shared := s.loads.Do("load", func() (any, error) {
		return nil, s.load(ctx)
	})
	// Callers that joined another fetch still see its events.
	if rec := events.RecorderFrom(ctx); shared && rec != nil {
		rec.Record(events.ExpensesReloaded{})
		if err == nil {
			rec.Record(events.TotalsUpdated{})
		}
	}
	return err
}

func (s *Store) load(ctx context.Context) error {
	s.mu.RLock()
	startSeq := s.seq
	s.mu.RUnlock()

	var owned, shared []core.Expense
	var people []core.Person

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		owned, err = s.remote.ListOwned(gctx, s.user.ID)
		if err != nil {
			return fmt.Errorf("list owned expenses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if s.user.Email == "" {
			return nil
		}
		var err error
		shared, err = s.remote.ListSharedWith(gctx, s.user.Email)
		if err != nil {
			return fmt.Errorf("list shared expenses: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		people, err = s.remote.ListPeople(gctx, s.user.ID)
		if err != nil {
			return fmt.Errorf("list people: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		s.mu.Lock()
		s.stale = true
		s.lastErr = err
		count := len(s.expenses)
		s.mu.Unlock()

		if s.hooks.StaleLoad != nil {
			s.hooks.StaleLoad()
		}
		slog.WarnContext(ctx, "Expense load failed, keeping previous state",
			"user_id", s.user.ID, "error", err)
		s.publish(ctx, events.ExpensesReloaded{UserID: s.user.ID, Count: count, Stale: true, At: s.now()})
		return err
	}

	all := merge(owned, shared)
	emails := s.resolveEmails(ctx, all)

	s.mu.Lock()
	merged := make([]core.Expense, 0, len(all))
	for _, e := range all {
		if _, ok := s.deleting[e.ID]; ok {
			continue
		}
		if _, ok := s.deleted[e.ID]; ok {
			continue
		}
		merged = append(merged, e)
	}
	for id, at := range s.deleted {
		if at <= startSeq {
			delete(s.deleted, id)
		}
	}
	s.expenses = merged
	s.people = people
	s.emails = emails
	states := make(map[string]RecordState, len(merged)+len(s.deleting))
	for _, e := range merged {
		states[e.ID] = StateCommitted
	}
	for id := range s.deleting {
		states[id] = StatePending
	}
	s.states = states
	s.stale = false
	s.lastErr = nil
	s.loadedAt = s.now()
	at := s.loadedAt
	s.mu.Unlock()

	slog.DebugContext(ctx, "Expenses loaded", "user_id", s.user.ID, "count", len(merged))
	s.publish(ctx, events.ExpensesReloaded{UserID: s.user.ID, Count: len(merged), At: at})
	s.publishTotals(ctx)
	return nil
}

const emailLookups = 4

// resolveEmails looks up the email of every person the expenses are booked
// under. Lookup failures leave the person out; they never fail a load.
func (s *Store) resolveEmails(ctx context.Context, expenses []core.Expense) map[string]string {
	seen := make(map[string]struct{})
	var personIDs []string
	for _, e := range expenses {
		if _, ok := seen[e.PersonID]; ok || e.PersonID == "" {
			continue
		}
		seen[e.PersonID] = struct{}{}
		personIDs = append(personIDs, e.PersonID)
	}

	var mu sync.Mutex
	emails := make(map[string]string, len(personIDs))
	var g errgroup.Group
	g.SetLimit(emailLookups)
	for _, id := range personIDs {
		g.Go(func() error {
			email, err := s.remote.EmailForPerson(ctx, id)
			if err != nil {
				if !errors.Is(err, dataservice.ErrNotFound) {
					slog.WarnContext(ctx, "Email lookup failed", "person_id", id, "error", err)
				}
				return nil
			}
			mu.Lock()
			emails[id] = email
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return emails
}

// merge concatenates the lists keeping the first occurrence of each id.
func merge(lists ...[]core.Expense) []core.Expense {
	seen := make(map[string]struct{})
	var out []core.Expense
	for _, l := range lists {
		for _, e := range l {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			out = append(out, e)
		}
	}
	return out
}

// Add validates the draft, persists it and appends the stored expense.
// Nothing reaches the remote service when validation fails.
func (s *Store) Add(ctx context.Context, draft core.Draft) (core.Expense, error) {
	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return core.Expense{}, err
	}
	if err := s.ownsPerson(draft.PersonID); err != nil {
		return core.Expense{}, &core.ValidationError{Field: "person_id", Err: core.ErrMissingPerson}
	}

	e := draft.Expense(s.newID(), s.user.ID, s.now())
	saved, err := s.remote.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("create expense: %w", err)
	}

	s.mu.Lock()
	s.expenses = append(s.expenses, saved)
	s.states[saved.ID] = StateCommitted
	s.mu.Unlock()

	s.publish(ctx, events.ExpenseCreated{UserID: s.user.ID, Expense: saved})
	s.publishTotals(ctx)

	if saved.Shared && s.notifier != nil {
		if err := s.notifier.NotifyShared(ctx, saved, s.user); err != nil {
			slog.ErrorContext(ctx, "Failed to notify counterparty",
				"expense_id", saved.ID, "counterparty", saved.CounterpartyEmail, "error", err)
		}
	}
	return saved, nil
}

// Remove drops the expense from memory at once and deletes it remotely in
// the background. If the remote delete fails the store reloads from the
// server. Use Wait to block until background deletes finish.
func (s *Store) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	idx := -1
	for i, e := range s.expenses {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return dataservice.ErrNotFound
	}
	removed := s.expenses[idx]
	s.expenses = append(s.expenses[:idx:idx], s.expenses[idx+1:]...)
	s.states[id] = StatePending
	s.deleting[id] = struct{}{}
	s.mu.Unlock()

	s.publish(ctx, events.ExpenseDeleted{UserID: s.user.ID, ExpenseID: id})
	s.publishTotals(ctx)

	// The request context ends with the request; the delete must outlive it
	// and its events belong to no request.
	bg := events.WithRecorder(context.WithoutCancel(ctx), nil)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.finishRemove(bg, removed)
	}()
	return nil
}

func (s *Store) finishRemove(ctx context.Context, e core.Expense) {
	err := s.remote.DeleteExpense(ctx, s.user.ID, s.user.Email, e.ID)
	s.mu.Lock()
	delete(s.deleting, e.ID)
	if err == nil {
		s.seq++
		s.deleted[e.ID] = s.seq
		delete(s.states, e.ID)
		s.expenses = without(s.expenses, e.ID)
		s.mu.Unlock()
		slog.InfoContext(ctx, "Expense deleted", "expense_id", e.ID, "user_id", s.user.ID)
		return
	}

	s.states[e.ID] = StateFailed
	s.mu.Unlock()

	slog.ErrorContext(ctx, "Remote delete failed, reloading",
		"expense_id", e.ID, "user_id", s.user.ID, "error", err)

	if s.hooks.Reconciled != nil {
		s.hooks.Reconciled()
	}
	if err := s.Load(ctx); err != nil {
		slog.ErrorContext(ctx, "Reload after failed delete failed", "user_id", s.user.ID, "error", err)
	}
	s.mu.Lock()
	// A successful reload resets the states; keep the failure visible otherwise.
	if s.stale {
		s.states[e.ID] = StateFailed
	}
	s.mu.Unlock()
}

func without(list []core.Expense, id string) []core.Expense {
	for i, e := range list {
		if e.ID == id {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

// Wait blocks until every background delete has finished.
func (s *Store) Wait() {
	s.pending.Wait()
}

// AddPerson creates a person owned by the user and appends it to the cached
// people.
func (s *Store) AddPerson(ctx context.Context, p core.Person) (core.Person, error) {
	p.ID = s.newID()
	p.UserID = s.user.ID
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if err := p.Validate(); err != nil {
		return core.Person{}, err
	}
	if p.Email != "" {
		if err := core.ValidateEmail(p.Email); err != nil {
			return core.Person{}, &core.ValidationError{Field: "email", Err: err}
		}
	}

	saved, err := s.remote.CreatePerson(ctx, p)
	if err != nil {
		return core.Person{}, fmt.Errorf("create person: %w", err)
	}

	s.mu.Lock()
	s.people = append(s.people, saved)
	s.mu.Unlock()

	s.publish(ctx, events.PeopleUpdated{UserID: s.user.ID, Person: saved})
	return saved, nil
}

// UpdatePersonSalary persists a new salary and patches the cached person.
func (s *Store) UpdatePersonSalary(ctx context.Context, id string, salary decimal.Decimal) (core.Person, error) {
	if salary.IsNegative() {
		return core.Person{}, &core.ValidationError{Field: "salary", Err: core.ErrInvalidSalary}
	}
	if err := s.ownsPerson(id); err != nil {
		return core.Person{}, err
	}
	if err := s.remote.UpdatePersonSalary(ctx, id, salary); err != nil {
		return core.Person{}, fmt.Errorf("update salary: %w", err)
	}
	return s.patchPerson(ctx, id, func(p *core.Person) { p.Salary = salary })
}

// UpdatePersonName persists a new display name and patches the cached person.
func (s *Store) UpdatePersonName(ctx context.Context, id, name string) (core.Person, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Person{}, &core.ValidationError{Field: "name", Err: core.ErrEmptyName}
	}
	if err := s.ownsPerson(id); err != nil {
		return core.Person{}, err
	}
	if err := s.remote.UpdatePersonName(ctx, id, name); err != nil {
		return core.Person{}, fmt.Errorf("update name: %w", err)
	}
	return s.patchPerson(ctx, id, func(p *core.Person) { p.Name = name })
}

func (s *Store) ownsPerson(id string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.people {
		if p.ID == id {
			return nil
		}
	}
	return dataservice.ErrNotFound
}

func (s *Store) patchPerson(ctx context.Context, id string, patch func(p *core.Person)) (core.Person, error) {
	s.mu.Lock()
	var updated core.Person
	found := false
	for i := range s.people {
		if s.people[i].ID == id {
			patch(&s.people[i])
			updated = s.people[i]
			found = true
			break
		}
	}
	s.mu.Unlock()
	if !found {
		return core.Person{}, dataservice.ErrNotFound
	}
	s.publish(ctx, events.PeopleUpdated{UserID: s.user.ID, Person: updated})
	return updated, nil
}

// Preview publishes the draft for chart projection. Nothing is stored.
func (s *Store) Preview(ctx context.Context, draft core.Draft) {
	s.publish(ctx, events.ExpensePreview{UserID: s.user.ID, Draft: draft.Normalize()})
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Expenses: append([]core.Expense(nil), s.expenses...),
		People:   append([]core.Person(nil), s.people...),
		Emails:   make(map[string]string, len(s.emails)),
		States:   make(map[string]RecordState, len(s.states)),
		Stale:    s.stale,
		LoadedAt: s.loadedAt,
	}
	for k, v := range s.states {
		snap.States[k] = v
	}
	for k, v := range s.emails {
		snap.Emails[k] = v
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// Expenses returns a copy of the visible expenses.
func (s *Store) Expenses() []core.Expense {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Expense(nil), s.expenses...)
}

// People returns a copy of the user's people.
func (s *Store) People() []core.Person {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]core.Person(nil), s.people...)
}

// Totals computes the aggregates of the visible expenses.
func (s *Store) Totals() Totals {
	return ComputeTotals(s.Expenses())
}

// ComputeTotals derives Totals from an expense list.
func ComputeTotals(expenses []core.Expense) Totals {
	byMonth := calculator.TotalByMonth(expenses)
	byPerson := calculator.TotalByPerson(expenses)
	return Totals{
		Total:       calculator.Sum(expenses),
		ByMonth:     byMonth,
		ByPerson:    byPerson,
		MonthPct:    calculator.PercentageOfTotal(byMonth),
		PersonPct:   calculator.PercentageOfTotal(byPerson),
		Months:      calculator.OrderedMonths(byMonth),
		PeopleOrder: calculator.OrderedKeys(byPerson),
	}
}

func (s *Store) publishTotals(ctx context.Context) {
	if s.bus == nil && events.RecorderFrom(ctx) == nil {
		return
	}
	t := s.Totals()
	s.publish(ctx, events.TotalsUpdated{UserID: s.user.ID, Total: t.Total, ByMonth: t.ByMonth, ByPerson: t.ByPerson})
}

// IsNotFound reports whether err means the record does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, dataservice.ErrNotFound)
}

// Loaded reports whether a load has ever succeeded.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.loadedAt.IsZero()
}
