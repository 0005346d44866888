package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/amqp"
	"gastos/internal/core"
	"gastos/internal/dataservice/memory"
)

type fakeMirror struct {
	rows      map[string]core.Expense
	appendErr error
}

func newFakeMirror() *fakeMirror { return &fakeMirror{rows: make(map[string]core.Expense)} }

func (m *fakeMirror) Append(_ context.Context, e core.Expense) (string, error) {
	if m.appendErr != nil {
		return "", m.appendErr
	}
	m.rows[e.ID] = e
	return "Gastos!A2:K2", nil
}

func (m *fakeMirror) DeleteExpense(_ context.Context, id string) error {
	delete(m.rows, id)
	return nil
}

func (m *fakeMirror) ListExpenses(context.Context) ([]core.Expense, error) {
	out := make([]core.Expense, 0, len(m.rows))
	for _, e := range m.rows {
		out = append(out, e)
	}
	return out, nil
}

type fakeNotifier struct{ calls int }

func (n *fakeNotifier) NotifyShared(context.Context, core.Expense, core.User) error {
	n.calls++
	return nil
}

func seed(t *testing.T, m *memory.Store, id string) core.Expense {
	t.Helper()
	e := core.Draft{
		Month:       core.Enero,
		Description: "cena",
		Amount:      decimal.NewFromInt(10),
		PersonID:    "p1",
	}.Expense(id, "u1", time.Now())
	if _, err := m.CreateExpense(context.Background(), e); err != nil {
		t.Fatalf("CreateExpense: %v", err)
	}
	return e
}

func TestSyncWorker_SyncAndDelete(t *testing.T) {
	store := memory.New()
	seed(t, store, "e1")
	mirror := newFakeMirror()
	w := NewSyncWorker(store, mirror, nil)
	h := w.Handlers()

	if err := h.Sync(context.Background(), amqp.NewExpenseSyncMessage("e1", 1)); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if _, ok := mirror.rows["e1"]; !ok {
		t.Fatal("expense not mirrored")
	}

	if err := h.Sync(context.Background(), amqp.NewExpenseSyncMessage("gone", 1)); err != nil {
		t.Fatalf("sync of a deleted expense should be skipped, got %v", err)
	}

	if err := h.Delete(context.Background(), amqp.NewExpenseDeleteMessage("e1", "u1")); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(mirror.rows) != 0 {
		t.Fatal("mirror row not deleted")
	}
}

func TestSyncWorker_SyncFailureIsReturned(t *testing.T) {
	store := memory.New()
	seed(t, store, "e1")
	mirror := newFakeMirror()
	mirror.appendErr = errors.New("quota exceeded")

	err := NewSyncWorker(store, mirror, nil).HandleSyncMessage(context.Background(), amqp.NewExpenseSyncMessage("e1", 1))
	if err == nil {
		t.Fatal("expected error so the message is requeued")
	}
}

func TestSyncWorker_Shared(t *testing.T) {
	n := &fakeNotifier{}
	w := NewSyncWorker(memory.New(), nil, n)
	msg := amqp.NewSharedExpenseMessage(core.Expense{ID: "e1", Shared: true}, core.User{ID: "u1"})
	if err := w.HandleSharedMessage(context.Background(), msg); err != nil {
		t.Fatal(err)
	}
	if n.calls != 1 {
		t.Fatalf("expected one notification, got %d", n.calls)
	}
}

func TestSyncWorker_StartupSyncCheck(t *testing.T) {
	store := memory.New()
	e1 := seed(t, store, "e1")
	seed(t, store, "e2")
	mirror := newFakeMirror()
	mirror.rows["e1"] = e1

	if err := NewSyncWorker(store, mirror, nil).StartupSyncCheck(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(mirror.rows) != 2 {
		t.Fatalf("expected both expenses mirrored, got %d", len(mirror.rows))
	}
}

func TestSyncWorker_NoMirror(t *testing.T) {
	w := NewSyncWorker(memory.New(), nil, nil)
	if err := w.HandleSyncMessage(context.Background(), amqp.NewExpenseSyncMessage("e1", 1)); err != nil {
		t.Fatal(err)
	}
	if err := w.StartupSyncCheck(context.Background()); err != nil {
		t.Fatal(err)
	}
}
