package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"gastos/internal/core"
	"gastos/internal/dataservice/memory"
	"gastos/internal/mail"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, m mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, m)
	return nil
}

type fakePublisher struct {
	syncs, deletes, shared []string
	err                    error
}

func (f *fakePublisher) PublishExpenseSync(_ context.Context, id string, _ int64) error {
	f.syncs = append(f.syncs, id)
	return f.err
}

func (f *fakePublisher) PublishExpenseDelete(_ context.Context, id, _ string) error {
	f.deletes = append(f.deletes, id)
	return f.err
}

func (f *fakePublisher) PublishSharedExpense(_ context.Context, e core.Expense, _ core.User) error {
	f.shared = append(f.shared, e.ID)
	return f.err
}

var owner = core.User{ID: "u-ana", Email: "ana@example.com", Name: "Ana"}

func sharedExpense(t *testing.T) core.Expense {
	t.Helper()
	d := core.Draft{
		Month:             core.Enero,
		Description:       "super",
		Amount:            decimal.RequireFromString("200"),
		PersonID:          "p-ana",
		Shared:            true,
		Pct1:              60,
		Pct2:              40,
		CounterpartyEmail: "bea@example.com",
	}
	return d.Expense("e1", owner.ID, time.Now())
}

func newRepo(t *testing.T) *memory.Store {
	t.Helper()
	ctx := context.Background()
	m := memory.New()
	if err := m.UpsertUser(ctx, core.User{ID: "u-bea", Email: "bea@example.com"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if _, err := m.CreatePerson(ctx, core.Person{ID: "p-ana", Name: "Ana García", UserID: owner.ID}); err != nil {
		t.Fatalf("CreatePerson: %v", err)
	}
	return m
}

func TestNotifyShared(t *testing.T) {
	repo := newRepo(t)
	sender := &fakeSender{}
	svc := NewNotificationService(repo, sender)

	if err := svc.NotifyShared(context.Background(), sharedExpense(t), owner); err != nil {
		t.Fatalf("NotifyShared: %v", err)
	}

	ns, err := repo.ListNotifications(context.Background(), "u-bea")
	if err != nil || len(ns) != 1 {
		t.Fatalf("expected one notification, got %v (%v)", ns, err)
	}
	if ns[0].Title != "Nuevo gasto compartido de Ana García" {
		t.Errorf("unexpected title %q", ns[0].Title)
	}
	if ns[0].Message != "super - Monto: 200.00 - Tu porcentaje: 40%" {
		t.Errorf("unexpected message %q", ns[0].Message)
	}

	if len(sender.sent) != 1 || sender.sent[0].To != "bea@example.com" {
		t.Fatalf("expected one email to bea, got %+v", sender.sent)
	}
	if !strings.Contains(sender.sent[0].HTML, "80.00") {
		t.Errorf("email should carry the counterparty share: %s", sender.sent[0].HTML)
	}
	if out := repo.Outbox(); len(out) != 1 || out[0].Status != core.EmailSent {
		t.Fatalf("expected sent outbox email, got %+v", out)
	}
}

func TestNotifyShared_UnknownRecipientStillEmails(t *testing.T) {
	repo := newRepo(t)
	sender := &fakeSender{}
	svc := NewNotificationService(repo, sender)

	e := sharedExpense(t)
	e.CounterpartyEmail = "nobody@example.com"
	if err := svc.NotifyShared(context.Background(), e, owner); err != nil {
		t.Fatalf("NotifyShared: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected email to be sent")
	}
}

func TestNotifyShared_SendFailureQueuesForRetry(t *testing.T) {
	repo := newRepo(t)
	sender := &fakeSender{err: errors.New("smtp down")}
	svc := NewNotificationService(repo, sender)

	if err := svc.NotifyShared(context.Background(), sharedExpense(t), owner); err != nil {
		t.Fatalf("send failures are retried, not returned: %v", err)
	}
	out := repo.Outbox()
	if len(out) != 1 || out[0].Status != core.EmailFailed || out[0].Attempts != 1 {
		t.Fatalf("unexpected outbox %+v", out)
	}

	sender.err = nil
	p := NewEmailProcessor(repo, sender, DefaultEmailProcessorConfig())
	if sent := p.ProcessBatch(context.Background()); sent != 1 {
		t.Fatalf("expected 1 email sent on retry, got %d", sent)
	}
	if out := repo.Outbox(); out[0].Status != core.EmailSent {
		t.Fatalf("expected sent after retry, got %s", out[0].Status)
	}
}

func TestNotifyShared_SkipsPersonal(t *testing.T) {
	repo := newRepo(t)
	sender := &fakeSender{}
	e := sharedExpense(t)
	e.Shared = false
	if err := NewNotificationService(repo, sender).NotifyShared(context.Background(), e, owner); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 0 || len(repo.Outbox()) != 0 {
		t.Fatal("personal expenses must not notify")
	}
}

func TestNotifyShared_NotificationFailure(t *testing.T) {
	repo := newRepo(t)
	repo.FailOn(memory.OpNotify, errors.New("db down"))
	sender := &fakeSender{}

	err := NewNotificationService(repo, sender).NotifyShared(context.Background(), sharedExpense(t), owner)
	if err == nil || !strings.Contains(err.Error(), "insert notification") {
		t.Fatalf("expected insert error, got %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatal("email is sent even when the in-app notification fails")
	}
}

func TestEmailProcessor_GivesUpAfterMaxRetries(t *testing.T) {
	repo := newRepo(t)
	sender := &fakeSender{err: errors.New("down")}
	cfg := DefaultEmailProcessorConfig()
	cfg.MaxRetries = 2
	var failures int
	cfg.OnResult = func(sent bool) {
		if !sent {
			failures++
		}
	}

	if _, err := repo.EnqueueEmail(context.Background(), core.OutboxEmail{To: "a@b.c", Subject: "s", HTML: "h"}); err != nil {
		t.Fatal(err)
	}
	p := NewEmailProcessor(repo, sender, cfg)
	for i := 0; i < 4; i++ {
		p.ProcessBatch(context.Background())
	}
	if out := repo.Outbox(); out[0].Attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", out[0].Attempts)
	}
	if failures != 2 {
		t.Fatalf("expected 2 failed results, got %d", failures)
	}
}

func TestEmailProcessor_Lifecycle(t *testing.T) {
	cfg := DefaultEmailProcessorConfig()
	cfg.PollInterval = 10 * time.Millisecond
	p := NewEmailProcessor(newRepo(t), &fakeSender{}, cfg)

	if p.IsRunning() {
		t.Fatal("processor should not be running initially")
	}
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("stopping a stopped processor: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := p.Start(context.Background()); err == nil {
		t.Fatal("expected error when starting twice")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.IsRunning() {
		t.Fatal("processor should be stopped")
	}
}

func TestExpenseService_Publishes(t *testing.T) {
	repo := newRepo(t)
	pub := &fakePublisher{err: errors.New("broker down")}
	svc := NewExpenseService(repo, pub)

	e := sharedExpense(t)
	if _, err := svc.CreateExpense(context.Background(), e); err != nil {
		t.Fatalf("publish failures must not fail the write: %v", err)
	}
	if err := svc.DeleteExpense(context.Background(), owner.ID, owner.Email, e.ID); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if len(pub.syncs) != 1 || len(pub.deletes) != 1 {
		t.Fatalf("unexpected publishes %+v", pub)
	}
	if len(repo.Expenses()) != 0 {
		t.Fatal("expense should be deleted")
	}
}

func TestExpenseService_FailedWriteDoesNotPublish(t *testing.T) {
	repo := newRepo(t)
	repo.FailOn(memory.OpCreate, errors.New("offline"))
	pub := &fakePublisher{}

	if _, err := NewExpenseService(repo, pub).CreateExpense(context.Background(), sharedExpense(t)); err == nil {
		t.Fatal("expected error")
	}
	if len(pub.syncs) != 0 {
		t.Fatal("nothing should be published for a failed write")
	}
}

func TestAsyncNotifier_FallsBack(t *testing.T) {
	repo := newRepo(t)
	sender := &fakeSender{}
	pub := &fakePublisher{err: errors.New("broker down")}
	n := NewAsyncNotifier(pub, NewNotificationService(repo, sender))

	if err := n.NotifyShared(context.Background(), sharedExpense(t), owner); err != nil {
		t.Fatalf("NotifyShared: %v", err)
	}
	if len(pub.shared) != 1 || len(sender.sent) != 1 {
		t.Fatalf("expected publish attempt and inline email, got %d/%d", len(pub.shared), len(sender.sent))
	}

	pub.err = nil
	if err := n.NotifyShared(context.Background(), sharedExpense(t), owner); err != nil {
		t.Fatal(err)
	}
	if len(sender.sent) != 1 {
		t.Fatal("queued notifications must not be sent inline")
	}
}

func TestEnsurePeople(t *testing.T) {
	ctx := context.Background()
	m := memory.New()
	user := core.User{ID: "u-ana", Email: "Ana@Example.com", Name: "Ana"}

	created, err := EnsurePeople(ctx, m, user)
	if err != nil {
		t.Fatalf("EnsurePeople: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("expected two default people, got %d", len(created))
	}
	if created[0].Name != "Ana" || created[0].Email != "ana@example.com" {
		t.Errorf("first person = %+v, want the user", created[0])
	}
	if created[1].Name != "Persona 2" || created[1].Email != "" {
		t.Errorf("second person = %+v", created[1])
	}
	for _, p := range created {
		if p.ID == "" || p.UserID != user.ID {
			t.Errorf("person not owned or without id: %+v", p)
		}
	}

	again, err := EnsurePeople(ctx, m, user)
	if err != nil {
		t.Fatalf("second EnsurePeople: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected no people created on the second call, got %v", again)
	}
	people, _ := m.ListPeople(ctx, user.ID)
	if len(people) != 2 {
		t.Fatalf("expected 2 people stored, got %d", len(people))
	}
}

func TestEnsurePeople_ListFailure(t *testing.T) {
	m := memory.New()
	m.FailOn(memory.OpList, errors.New("offline"))
	if _, err := EnsurePeople(context.Background(), m, core.User{ID: "u1", Name: "X"}); err == nil {
		t.Fatal("expected an error when people cannot be listed")
	}
}
