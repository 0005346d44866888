// Package memory is an in-process data service used by the memory backend and tests.
package memory

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"gastos/internal/core"
	"gastos/internal/dataservice"
)

// Op names a data service call that can be made to fail with FailOn.
type Op string

const (
	OpList          Op = "list"
	OpCreate        Op = "create"
	OpDelete        Op = "delete"
	OpUpdatePerson  Op = "update_person"
	OpNotify        Op = "notify"
	OpResolveEmail  Op = "resolve_email"
	OpSetPreference Op = "set_preference"
)

type Store struct {
	mu            sync.Mutex
	users         map[string]core.User
	people        []core.Person
	expenses      []core.Expense
	notifications []core.Notification
	prefs         map[string]core.Preferences
	outbox        []core.OutboxEmail
	failures      map[Op]error
	now           func() time.Time
}

var _ dataservice.Service = (*Store)(nil)

func New() *Store {
	return &Store{
		users:    make(map[string]core.User),
		prefs:    make(map[string]core.Preferences),
		failures: make(map[Op]error),
		now:      time.Now,
	}
}

// Seed is the YAML layout accepted by NewFromSeedFile.
type Seed struct {
	Users  []core.User `yaml:"users"`
	People []struct {
		ID     string `yaml:"id"`
		Name   string `yaml:"name"`
		Salary string `yaml:"salary"`
		Email  string `yaml:"email"`
		UserID string `yaml:"user_id"`
	} `yaml:"people"`
}

// NewFromSeedFile builds a store pre-populated with users and people.
// A missing file yields an empty store.
func NewFromSeedFile(path string) (*Store, error) {
	s := New()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	for _, u := range seed.Users {
		s.users[u.ID] = u
	}
	for _, p := range seed.People {
		salary := decimal.Zero
		if p.Salary != "" {
			if salary, err = core.ParseSalary(p.Salary); err != nil {
				return nil, fmt.Errorf("seed person %s: %w", p.Name, err)
			}
		}
		s.people = append(s.people, core.Person{ID: p.ID, Name: p.Name, Salary: salary, Email: p.Email, UserID: p.UserID})
	}
	return s, nil
}

// FailOn makes every call of op return err until cleared with a nil err.
func (s *Store) FailOn(op Op, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op Op) error {
	if err := s.failures[op]; err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *Store) ListOwned(_ context.Context, userID string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpList); err != nil {
		return nil, err
	}
	var out []core.Expense
	for _, e := range s.expenses {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) ListSharedWith(_ context.Context, email string) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpList); err != nil {
		return nil, err
	}
	var out []core.Expense
	if email == "" {
		return out, nil
	}
	for _, e := range s.expenses {
		if e.Shared && strings.EqualFold(e.CounterpartyEmail, email) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.expenses {
		if e.ID == id {
			return e, nil
		}
	}
	return core.Expense{}, dataservice.ErrNotFound
}

// ListAll returns every stored expense regardless of owner.
func (s *Store) ListAll(_ context.Context) ([]core.Expense, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpList); err != nil {
		return nil, err
	}
	return append([]core.Expense(nil), s.expenses...), nil
}

// Expenses returns every stored expense regardless of owner.
func (s *Store) Expenses() []core.Expense {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Expense(nil), s.expenses...)
}

func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpCreate); err != nil {
		return core.Expense{}, err
	}
	for _, existing := range s.expenses {
		if existing.ID == e.ID {
			return core.Expense{}, fmt.Errorf("expense %s already exists", e.ID)
		}
	}
	s.expenses = append(s.expenses, e)
	return e, nil
}

func (s *Store) DeleteExpense(_ context.Context, userID, email, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpDelete); err != nil {
		return err
	}
	for i, e := range s.expenses {
		if e.ID != id {
			continue
		}
		if !e.VisibleTo(userID, email) {
			return dataservice.ErrPermissionDenied
		}
		s.expenses = append(s.expenses[:i], s.expenses[i+1:]...)
		return nil
	}
	return nil
}

func (s *Store) ListPeople(_ context.Context, userID string) ([]core.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpList); err != nil {
		return nil, err
	}
	var out []core.Person
	for _, p := range s.people {
		if p.UserID == userID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) GetPerson(_ context.Context, id string) (core.Person, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.people {
		if p.ID == id {
			return p, nil
		}
	}
	return core.Person{}, dataservice.ErrNotFound
}

func (s *Store) CreatePerson(_ context.Context, p core.Person) (core.Person, error) {
	if err := p.Validate(); err != nil {
		return core.Person{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	s.people = append(s.people, p)
	return p, nil
}

func (s *Store) UpdatePersonSalary(_ context.Context, id string, salary decimal.Decimal) error {
	return s.updatePerson(id, func(p *core.Person) { p.Salary = salary })
}

func (s *Store) UpdatePersonName(_ context.Context, id, name string) error {
	return s.updatePerson(id, func(p *core.Person) { p.Name = name })
}

func (s *Store) updatePerson(id string, patch func(p *core.Person)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpUpdatePerson); err != nil {
		return err
	}
	for i := range s.people {
		if s.people[i].ID == id {
			patch(&s.people[i])
			return nil
		}
	}
	return dataservice.ErrNotFound
}

func (s *Store) EmailForPerson(_ context.Context, personID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpResolveEmail); err != nil {
		return "", err
	}
	for _, p := range s.people {
		if p.ID == personID {
			if p.Email == "" {
				return "", dataservice.ErrNotFound
			}
			return p.Email, nil
		}
	}
	return "", dataservice.ErrNotFound
}

func (s *Store) UserIDByEmail(_ context.Context, email string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpResolveEmail); err != nil {
		return "", err
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return u.ID, nil
		}
	}
	return "", dataservice.ErrNotFound
}

func (s *Store) UpsertUser(_ context.Context, u core.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, dataservice.ErrNotFound
	}
	return u, nil
}

func (s *Store) InsertNotification(_ context.Context, n core.Notification) (core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpNotify); err != nil {
		return core.Notification{}, err
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = s.now()
	}
	s.notifications = append(s.notifications, n)
	return n, nil
}

func (s *Store) ListNotifications(_ context.Context, userID string) ([]core.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.Notification
	for _, n := range s.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.notifications {
		if s.notifications[i].ID == id && s.notifications[i].UserID == userID {
			s.notifications[i].Read = true
			return nil
		}
	}
	return dataservice.ErrNotFound
}

func (s *Store) GetPreferences(_ context.Context, userID string) (core.Preferences, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.prefs[userID]
	if !ok {
		return core.DefaultPreferences(), false, nil
	}
	return p, true, nil
}

func (s *Store) SetPreferences(_ context.Context, userID string, p core.Preferences) error {
	if err := p.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail(OpSetPreference); err != nil {
		return err
	}
	s.prefs[userID] = p
	return nil
}

func (s *Store) EnqueueEmail(_ context.Context, e core.OutboxEmail) (core.OutboxEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := s.now()
	e.Status = core.EmailPending
	e.CreatedAt, e.UpdatedAt = now, now
	s.outbox = append(s.outbox, e)
	return e, nil
}

func (s *Store) PendingEmails(_ context.Context, limit, maxAttempts int) ([]core.OutboxEmail, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.OutboxEmail
	for _, e := range s.outbox {
		if len(out) >= limit {
			break
		}
		if e.Status == core.EmailPending || (e.Status == core.EmailFailed && e.Attempts < maxAttempts) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) MarkEmailSent(_ context.Context, id string) error {
	return s.updateEmail(id, func(e *core.OutboxEmail) {
		e.Status = core.EmailSent
		e.Attempts++
		e.LastError = ""
	})
}

func (s *Store) MarkEmailFailed(_ context.Context, id string, cause error) error {
	return s.updateEmail(id, func(e *core.OutboxEmail) {
		e.Status = core.EmailFailed
		e.Attempts++
		if cause != nil {
			e.LastError = cause.Error()
		}
	})
}

func (s *Store) updateEmail(id string, patch func(e *core.OutboxEmail)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].ID == id {
			patch(&s.outbox[i])
			s.outbox[i].UpdatedAt = s.now()
			return nil
		}
	}
	return dataservice.ErrNotFound
}

// Outbox returns a copy of every queued email.
func (s *Store) Outbox() []core.OutboxEmail {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.OutboxEmail(nil), s.outbox...)
}
