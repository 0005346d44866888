package mail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHTTPSender_Send(t *testing.T) {
	var got Message
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewHTTPSender(srv.URL, "secret", 0)
	msg := Message{To: "bea@example.com", Subject: "Hola", HTML: "<p>x</p>"}
	if err := s.Send(context.Background(), msg); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got != msg {
		t.Errorf("got %+v, want %+v", got, msg)
	}
	if auth != "Bearer secret" {
		t.Errorf("unexpected Authorization header %q", auth)
	}
}

func TestHTTPSender_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"Error sending email"}`))
	}))
	defer srv.Close()

	err := NewHTTPSender(srv.URL, "", 0).Send(context.Background(), Message{To: "a@b.c", Subject: "s", HTML: "h"})
	if err == nil || !strings.Contains(err.Error(), "502") || !strings.Contains(err.Error(), "Error sending email") {
		t.Fatalf("expected dispatch error, got %v", err)
	}
}

func TestSend_MissingFields(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	tests := []Message{
		{Subject: "s", HTML: "h"},
		{To: "a@b.c", HTML: "h"},
		{To: "a@b.c", Subject: "s", HTML: "  "},
	}
	for _, m := range tests {
		if err := NewHTTPSender(srv.URL, "", 0).Send(context.Background(), m); !errors.Is(err, ErrMissingField) {
			t.Errorf("Send(%+v) = %v, want ErrMissingField", m, err)
		}
		if err := (LogSender{}).Send(context.Background(), m); !errors.Is(err, ErrMissingField) {
			t.Errorf("LogSender.Send(%+v) = %v, want ErrMissingField", m, err)
		}
	}
	if called {
		t.Fatal("invalid messages must not reach the dispatch function")
	}
}

func TestRenderSharedExpense_Escapes(t *testing.T) {
	html, err := RenderSharedExpense(SharedExpense{Title: "t", Owner: "Ana", Description: "<script>", Percent: 40})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(html, "<script>") || !strings.Contains(html, "40%") {
		t.Fatalf("unexpected html: %s", html)
	}
}
