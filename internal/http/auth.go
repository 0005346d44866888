package http

import (
	"net/http"

	"gastos/internal/auth"
	"gastos/internal/core"
	applog "gastos/internal/log"
	"gastos/internal/services"
	"gastos/internal/store"
)

// requireAuth resolves the bearer token into the session user. The first
// request of each user registers them so shared expenses can find them by
// email, and gives them their default people.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.BearerToken(r)
		if err != nil {
			FromError(r, err).Header("WWW-Authenticate", "Bearer").Write(w)
			return
		}
		claims, err := s.deps.Auth.Validate(token)
		if err != nil {
			FromError(r, err).Header("WWW-Authenticate", "Bearer").Write(w)
			return
		}
		user := claims.User()
		s.register(r, user)

		ctx := auth.WithUser(r.Context(), user)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).WithUser(user.ID))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) register(r *http.Request, user core.User) {
	if s.deps.Users == nil {
		return
	}
	if _, loaded := s.seen.LoadOrStore(user.ID, struct{}{}); loaded {
		return
	}
	if err := s.deps.Users.UpsertUser(r.Context(), user); err != nil {
		s.seen.Delete(user.ID)
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to register user", "user_id", user.ID, "error", err)
		return
	}
	if s.deps.People == nil {
		return
	}
	if _, err := services.EnsurePeople(r.Context(), s.deps.People, user); err != nil {
		s.seen.Delete(user.ID)
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to create default people", "user_id", user.ID, "error", err)
	}
}

func sessionUser(r *http.Request) core.User {
	u, _ := auth.UserFrom(r.Context())
	return u
}

// storeFor returns the caller's expense store. When the store has never
// loaded successfully it writes 503 and returns false.
func (s *Server) storeFor(w http.ResponseWriter, r *http.Request) (*store.Store, bool) {
	st, err := s.deps.Stores.Get(r.Context(), sessionUser(r))
	if err != nil && !st.Loaded() {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Expense store unavailable", "error", err)
		ErrorResponse(http.StatusServiceUnavailable, "expenses are temporarily unavailable").Write(w)
		return nil, false
	}
	return st, true
}
