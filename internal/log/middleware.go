package log

import (
	"context"
	"log/slog"
	"net/http"

	"gastos/internal/core"
)

type contextKey struct{}

// NewContext returns ctx carrying logger.
func NewContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, logger)
}

// FromContext extracts a logger from the context, falling back to the default logger.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(contextKey{}).(*Logger); ok {
		return logger
	}
	return &Logger{Logger: slog.Default(), component: "unknown"}
}

// Middleware adds logger to the request context, tagged with the request id
// extracted by requestID (which may be nil).
func Middleware(logger *Logger, requestID func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger
			if requestID != nil {
				if id := requestID(r); id != "" {
					l = l.With(FieldRequestID, id)
				}
			}
			next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), l)))
		})
	}
}

// StructuredLogger provides domain-specific log records.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPEnd logs the completion of an HTTP request at a level matching its status.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	switch {
	case statusCode >= 500:
		level = slog.LevelError
	case statusCode >= 400:
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.Header.Get("User-Agent")).
		WithHTTPResponse(statusCode, durationMs)
	fields[FieldClientIP] = clientIP

	sl.logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogExpenseCreated logs a committed expense and the events it produced.
func (sl *StructuredLogger) LogExpenseCreated(ctx context.Context, userID string, e core.Expense, events []string) {
	fields := NewFields().WithExpense(e).WithOperation(OpCreate)
	fields[FieldUserID] = userID
	fields[FieldEvents] = events
	sl.logger.InfoContext(ctx, "Expense created", fields.ToSlice()...)
}

// LogExpenseDeleted logs an optimistic removal.
func (sl *StructuredLogger) LogExpenseDeleted(ctx context.Context, userID, expenseID string) {
	sl.logger.InfoContext(ctx, "Expense removed",
		FieldUserID, userID,
		FieldExpenseID, expenseID,
		FieldOperation, OpDelete)
}
