package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/dataservice"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "gastos.db"))
	if err != nil {
		t.Fatalf("Failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func sharedExpense(id, userID, email string) core.Expense {
	return core.Expense{
		ID:                id,
		Month:             core.Febrero,
		Description:       "Cena",
		Amount:            decimal.RequireFromString("120.50"),
		Date:              core.NewDate(2025, 2, 14),
		PersonID:          "p1",
		Shared:            true,
		Pct1:              70,
		Pct2:              30,
		CounterpartyEmail: email,
		UserID:            userID,
	}
}

func TestSQLiteRepository_Expenses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	t.Run("create and read back", func(t *testing.T) {
		created, err := repo.CreateExpense(ctx, sharedExpense("e1", "u1", "ana@example.com"))
		if err != nil {
			t.Fatalf("CreateExpense failed: %v", err)
		}
		if created.CreatedAt.IsZero() {
			t.Error("Expected created_at to be set")
		}
		got, err := repo.GetExpense(ctx, "e1")
		if err != nil {
			t.Fatalf("GetExpense failed: %v", err)
		}
		if !got.Amount.Equal(decimal.RequireFromString("120.50")) || got.Month != core.Febrero || !got.Shared || got.Pct2 != 30 {
			t.Errorf("unexpected expense %+v", got)
		}
		if got.Date.Format("2006-01-02") != "2025-02-14" {
			t.Errorf("unexpected date %v", got.Date)
		}
	})

	t.Run("rejects invalid expense", func(t *testing.T) {
		bad := sharedExpense("e2", "u1", "")
		if _, err := repo.CreateExpense(ctx, bad); !errors.Is(err, core.ErrMissingCounterparty) {
			t.Fatalf("expected ErrMissingCounterparty, got %v", err)
		}
	})

	t.Run("owned and shared lists", func(t *testing.T) {
		owned, err := repo.ListOwned(ctx, "u1")
		if err != nil || len(owned) != 1 {
			t.Fatalf("expected 1 owned expense, got %d (err=%v)", len(owned), err)
		}
		shared, err := repo.ListSharedWith(ctx, "ANA@example.com")
		if err != nil || len(shared) != 1 {
			t.Fatalf("expected 1 shared expense, got %d (err=%v)", len(shared), err)
		}
	})

	t.Run("delete permissions", func(t *testing.T) {
		if err := repo.DeleteExpense(ctx, "u9", "x@example.com", "e1"); !errors.Is(err, dataservice.ErrPermissionDenied) {
			t.Fatalf("expected permission denied, got %v", err)
		}
		if err := repo.DeleteExpense(ctx, "u2", "ana@example.com", "e1"); err != nil {
			t.Fatalf("counterparty delete failed: %v", err)
		}
		if _, err := repo.GetExpense(ctx, "e1"); !errors.Is(err, dataservice.ErrNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
		if err := repo.DeleteExpense(ctx, "u1", "", "e1"); err != nil {
			t.Fatalf("deleting a missing expense should be a no-op, got %v", err)
		}
	})
}

func TestSQLiteRepository_PeopleAndUsers(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	p, err := repo.CreatePerson(ctx, core.Person{Name: "Ana", Email: "ana@example.com", UserID: "u1", Salary: decimal.NewFromInt(2000)})
	if err != nil {
		t.Fatalf("CreatePerson failed: %v", err)
	}
	if err := repo.UpdatePersonSalary(ctx, p.ID, decimal.RequireFromString("2500.25")); err != nil {
		t.Fatalf("UpdatePersonSalary failed: %v", err)
	}
	if err := repo.UpdatePersonName(ctx, p.ID, "Ana M."); err != nil {
		t.Fatalf("UpdatePersonName failed: %v", err)
	}
	if err := repo.UpdatePersonName(ctx, "nope", "x"); !errors.Is(err, dataservice.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	people, err := repo.ListPeople(ctx, "u1")
	if err != nil || len(people) != 1 {
		t.Fatalf("expected 1 person, got %d (err=%v)", len(people), err)
	}
	if people[0].Name != "Ana M." || !people[0].Salary.Equal(decimal.RequireFromString("2500.25")) {
		t.Errorf("unexpected person %+v", people[0])
	}

	email, err := repo.EmailForPerson(ctx, p.ID)
	if err != nil || email != "ana@example.com" {
		t.Fatalf("unexpected email %q (err=%v)", email, err)
	}

	if err := repo.UpsertUser(ctx, core.User{ID: "u2", Email: "ana@example.com", Name: "Ana"}); err != nil {
		t.Fatalf("UpsertUser failed: %v", err)
	}
	id, err := repo.UserIDByEmail(ctx, "Ana@Example.com")
	if err != nil || id != "u2" {
		t.Fatalf("unexpected user id %q (err=%v)", id, err)
	}
	if _, err := repo.UserIDByEmail(ctx, "nobody@example.com"); !errors.Is(err, dataservice.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSQLiteRepository_NotificationsAndPreferences(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if _, err := repo.InsertNotification(ctx, core.Notification{
			UserID: "u1", Title: "t", Message: "m", CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}); err != nil {
			t.Fatalf("InsertNotification failed: %v", err)
		}
	}
	list, err := repo.ListNotifications(ctx, "u1")
	if err != nil || len(list) != 3 {
		t.Fatalf("expected 3 notifications, got %d (err=%v)", len(list), err)
	}
	if !list[0].CreatedAt.Equal(base.Add(2 * time.Minute)) {
		t.Errorf("expected newest first, got %v", list[0].CreatedAt)
	}
	if err := repo.MarkNotificationRead(ctx, "u1", list[0].ID); err != nil {
		t.Fatalf("MarkNotificationRead failed: %v", err)
	}

	prefs, found, err := repo.GetPreferences(ctx, "u1")
	if err != nil || found || prefs != core.DefaultPreferences() {
		t.Fatalf("expected defaults, got %+v found=%v err=%v", prefs, found, err)
	}
	want := core.Preferences{Currency: core.ARS, Theme: core.ThemeSystem, Language: "es-AR"}
	if err := repo.SetPreferences(ctx, "u1", want); err != nil {
		t.Fatalf("SetPreferences failed: %v", err)
	}
	prefs, found, _ = repo.GetPreferences(ctx, "u1")
	if !found || prefs != want {
		t.Fatalf("expected %+v, got %+v", want, prefs)
	}
}

func TestSQLiteRepository_Outbox(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	e, err := repo.EnqueueEmail(ctx, core.OutboxEmail{To: "ana@example.com", Subject: "s", HTML: "<p>h</p>"})
	if err != nil {
		t.Fatalf("EnqueueEmail failed: %v", err)
	}
	pending, _ := repo.PendingEmails(ctx, 10, 3)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending email, got %d", len(pending))
	}
	for i := 0; i < 3; i++ {
		if err := repo.MarkEmailFailed(ctx, e.ID, errors.New("boom")); err != nil {
			t.Fatalf("MarkEmailFailed failed: %v", err)
		}
	}
	pending, _ = repo.PendingEmails(ctx, 10, 3)
	if len(pending) != 0 {
		t.Fatalf("expected exhausted email to be skipped, got %d", len(pending))
	}
}

func TestMigrationVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.db")
	repo, err := NewSQLiteRepository(path)
	if err != nil {
		t.Fatal(err)
	}
	repo.Close()
	v, dirty, err := MigrationVersion(path)
	if err != nil || dirty || v != 2 {
		t.Fatalf("expected clean version 2, got %d dirty=%v err=%v", v, dirty, err)
	}
}
