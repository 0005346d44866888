package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gastos/internal/auth"
	"gastos/internal/dataservice"
	"gastos/internal/events"
	applog "gastos/internal/log"
	"gastos/internal/metrics"
	"gastos/internal/middleware/ratelimit"
	"gastos/internal/middleware/security"
	"gastos/internal/middleware/trace"
	"gastos/internal/preferences"
	"gastos/internal/store"
)

// Deps are the collaborators the API needs. Metrics, Users and Ready are optional.
type Deps struct {
	Stores        *store.Registry
	Bus           *events.Bus
	Auth          *auth.JWTManager
	Preferences   *preferences.Service
	Notifications dataservice.NotificationRepository
	Users         dataservice.UserRepository
	// People, when set, gets the default people of users seen for the first time.
	People        dataservice.PersonRepository
	Metrics       *metrics.Metrics
	Logger        *applog.Logger
	// Ready reports whether the backend can serve requests.
	Ready func(ctx context.Context) error

	RateLimitRPM int
	// SSEKeepAlive is the interval between keep-alive comments on /api/events.
	SSEKeepAlive time.Duration
}

type Server struct {
	http.Server
	deps     Deps
	logger   *applog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	seen     sync.Map // user ids already registered with Users

	closing      chan struct{}
	shutdownOnce sync.Once
}

// NewServer wires the router. Call Shutdown to release background resources.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = applog.New(applog.DefaultConfig()).WithComponent(applog.ComponentHTTP)
	}
	if deps.SSEKeepAlive <= 0 {
		deps.SSEKeepAlive = 15 * time.Second
	}

	s := &Server{
		deps:     deps,
		logger:   deps.Logger,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitRPM}),
		detector: security.NewDetector(),
		closing:  make(chan struct{}),
	}
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	sl := applog.NewStructuredLogger(s.logger)
	observers := []func(trace.Completion){
		func(c trace.Completion) {
			sl.LogHTTPEnd(c.Request.Context(), c.Request, c.Status, c.Duration.Milliseconds(), s.detector.ExtractClientIP(c.Request))
		},
	}
	if s.deps.Metrics != nil {
		observers = append(observers, func(c trace.Completion) {
			s.deps.Metrics.ObserveRequest(c.Request.Method, routePattern(c.Request), c.Status, c.Duration)
		})
		s.detector.OnSuspicious = func(*http.Request, string) { s.deps.Metrics.Suspicious.Inc() }
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(trace.NewMiddleware(observers...).Handler)
	r.Use(applog.Middleware(s.logger, trace.RequestID))
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.detector.Middleware)

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(security.NoStore)
		r.Use(s.requireAuth)
		r.Use(s.limiter.Middleware(s.rateKey, s.onRateLimited))

		r.Get("/expenses", s.handleListExpenses)
		r.Post("/expenses", s.handleCreateExpense)
		r.Delete("/expenses/{id}", s.handleDeleteExpense)
		r.Post("/expenses/preview", s.handlePreview)
		r.Post("/expenses/reload", s.handleReload)

		r.Get("/people", s.handleListPeople)
		r.Post("/people", s.handleCreatePerson)
		r.Patch("/people/{id}/salary", s.handleUpdateSalary)
		r.Patch("/people/{id}/name", s.handleUpdateName)

		r.Get("/totals", s.handleTotals)
		r.Get("/balances", s.handleBalances)

		r.Route("/charts", func(r chi.Router) {
			r.Get("/pie", s.handlePie)
			r.Get("/bar", s.handleBar)
			r.Get("/hit", s.handleHit)
			r.Get("/breakdown", s.handleBreakdown)
		})

		r.Get("/preferences", s.handleGetPreferences)
		r.Put("/preferences", s.handlePutPreferences)

		r.Get("/notifications", s.handleListNotifications)
		r.Post("/notifications/{id}/read", s.handleMarkNotificationRead)

		r.Get("/export", s.handleExport)
		r.Get("/events", s.handleEvents)
	})
	return r
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// Shutdown ends open event streams, stops the rate limiter and drains the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		close(s.closing)
		s.limiter.Stop()
	})
	return s.Server.Shutdown(ctx)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewResponse().JSON(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.deps.Ready(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "Readiness check failed", "error", err)
			ErrorResponse(http.StatusServiceUnavailable, "not ready").Write(w)
			return
		}
	}
	NewResponse().JSON(map[string]string{"status": "ready"}).Write(w)
}

func (s *Server) rateKey(r *http.Request) string {
	if u, ok := auth.UserFrom(r.Context()); ok {
		return "user:" + u.ID
	}
	return "ip:" + s.detector.ExtractClientIP(r)
}

func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RateLimited.Inc()
	}
	ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
}
