package preferences

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gastos/internal/core"
)

func TestFileStore_DefaultsAndRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}

	p, found, err := s.GetPreferences(ctx, "u1")
	if err != nil || found || p != core.DefaultPreferences() {
		t.Fatalf("expected defaults, got %+v found=%v err=%v", p, found, err)
	}

	want := core.Preferences{Currency: core.EUR, Theme: core.ThemeDark, Language: "en"}
	if err := s.SetPreferences(ctx, "u1", want); err != nil {
		t.Fatalf("SetPreferences failed: %v", err)
	}
	p, found, err = s.GetPreferences(ctx, "u1")
	if err != nil || !found || p != want {
		t.Fatalf("expected %+v, got %+v found=%v err=%v", want, p, found, err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "u1.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if want := "user_preferences:"; string(b[:len(want)]) != want {
		t.Fatalf("expected document keyed by %s, got %q", want, b)
	}
}

func TestFileStore_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s, _ := NewFileStore(t.TempDir())
	if _, _, err := s.GetPreferences(ctx, "../etc/passwd"); !errors.Is(err, ErrInvalidUserID) {
		t.Fatalf("expected ErrInvalidUserID, got %v", err)
	}
	bad := core.Preferences{Currency: "DOGE", Theme: core.ThemeLight, Language: "es"}
	if err := s.SetPreferences(ctx, "u1", bad); !errors.Is(err, core.ErrUnknownCurrency) {
		t.Fatalf("expected ErrUnknownCurrency, got %v", err)
	}
}

func TestFileStore_PartialDocumentGetsDefaults(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, _ := NewFileStore(dir)
	doc := "user_preferences:\n  theme: dark\n"
	if err := os.WriteFile(filepath.Join(dir, "u1.yaml"), []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	p, found, err := s.GetPreferences(ctx, "u1")
	if err != nil || !found {
		t.Fatalf("expected stored prefs, err=%v", err)
	}
	if p.Theme != core.ThemeDark || p.Currency != core.USD || p.Language != "es" {
		t.Fatalf("unexpected prefs %+v", p)
	}
}

func TestService_Update(t *testing.T) {
	ctx := context.Background()
	fs, _ := NewFileStore(t.TempDir())
	svc := NewService(fs)

	got, err := svc.Update(ctx, "u1", core.Preferences{Currency: core.MXN})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got.Currency != core.MXN || got.Theme != core.ThemeLight || got.Language != "es" {
		t.Fatalf("unexpected merged prefs %+v", got)
	}
	if _, err := svc.Update(ctx, "u1", core.Preferences{Theme: "sepia"}); !core.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if svc.Get(ctx, "u1").Currency != core.MXN {
		t.Fatalf("expected saved currency to persist")
	}
}
