package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"gastos/internal/core"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.Generate(core.User{ID: "u1", Email: "ana@example.com", Name: "Ana"})
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	require.Equal(t, core.User{ID: "u1", Email: "ana@example.com", Name: "Ana"}, claims.User())
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager("secret", time.Hour)
	token, err := m.Generate(core.User{ID: "u1"})
	require.NoError(t, err)

	_, err = NewJWTManager("other", time.Hour).Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired := NewJWTManager("secret", time.Hour)
	expired.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = expired.Validate(token)
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Validate("not-a-token")
	require.ErrorIs(t, err, ErrInvalidToken)

	_, err = m.Generate(core.User{})
	require.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
		err    error
	}{
		{"", "", ErrMissingToken},
		{"Bearer abc", "abc", nil},
		{"bearer abc", "abc", nil},
		{"Basic abc", "", ErrInvalidToken},
		{"Bearer ", "", ErrInvalidToken},
	}
	for _, tt := range tests {
		r := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			r.Header.Set("Authorization", tt.header)
		}
		got, err := BearerToken(r)
		if !errors.Is(err, tt.err) || got != tt.want {
			t.Errorf("BearerToken(%q) = %q, %v; want %q, %v", tt.header, got, err, tt.want, tt.err)
		}
	}
}

func TestUserContext(t *testing.T) {
	_, ok := UserFrom(context.Background())
	require.False(t, ok)

	ctx := WithUser(context.Background(), core.User{ID: "u1"})
	u, ok := UserFrom(ctx)
	require.True(t, ok)
	require.Equal(t, "u1", u.ID)
}
