package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/dataservice"
)

// DefaultPeople are the two people a new user starts with. The first one is
// the user themselves.
func DefaultPeople(user core.User) []core.Person {
	name := strings.TrimSpace(user.Name)
	if name == "" {
		name = "Persona 1"
	}
	return []core.Person{
		{Name: name, Salary: decimal.Zero, Email: strings.ToLower(user.Email), UserID: user.ID},
		{Name: "Persona 2", Salary: decimal.Zero, UserID: user.ID},
	}
}

// EnsurePeople creates DefaultPeople for user when they have no people yet
// and returns the ones it created.
func EnsurePeople(ctx context.Context, repo dataservice.PersonRepository, user core.User) ([]core.Person, error) {
	existing, err := repo.ListPeople(ctx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("list people: %w", err)
	}
	if len(existing) > 0 {
		return nil, nil
	}

	var created []core.Person
	for _, p := range DefaultPeople(user) {
		saved, err := repo.CreatePerson(ctx, p)
		if err != nil {
			return created, fmt.Errorf("create person %q: %w", p.Name, err)
		}
		created = append(created, saved)
	}
	slog.InfoContext(ctx, "Created default people", "user_id", user.ID, "count", len(created))
	return created, nil
}
