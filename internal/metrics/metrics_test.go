package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestExpenseOp(t *testing.T) {
	m := New(nil)
	m.ExpenseOp("create", nil)
	m.ExpenseOp("create", nil)
	m.ExpenseOp("delete", errors.New("boom"))

	require.Equal(t, 2.0, testutil.ToFloat64(m.ExpenseOps.WithLabelValues("create", "ok")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.ExpenseOps.WithLabelValues("delete", "error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(func() float64 { return 3 })
	m.ObserveRequest("GET", "/api/expenses", 200, 15*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	require.Equal(t, 200, rec.Code)
	require.True(t, strings.Contains(string(body), "gastos_active_stores 3"))
	require.True(t, strings.Contains(string(body), `gastos_http_request_duration_seconds_count{method="GET",route="/api/expenses",status="200"} 1`))
}
