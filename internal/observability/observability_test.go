package observability

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger(t *testing.T) {
	t.Run("filters below the minimum level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger("test", LevelWarn)
		l.SetOutput(&buf)

		l.Info("hidden")
		l.Warn("shown")

		assert.NotContains(t, buf.String(), "hidden")
		assert.Contains(t, buf.String(), "[WARN]")
		assert.Contains(t, buf.String(), "shown")
	})

	t.Run("writes fields in key order", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger("test", LevelDebug)
		l.SetOutput(&buf)

		l.WithFields(map[string]interface{}{"table": "patients", "op_id": "abc"}).Info("queued")

		line := buf.String()
		assert.Less(t, strings.Index(line, "op_id=abc"), strings.Index(line, "table=patients"))
	})

	t.Run("derived loggers do not share fields", func(t *testing.T) {
		var buf bytes.Buffer
		base := NewLogger("test", LevelDebug)
		base.SetOutput(&buf)

		_ = base.WithField("table", "notes")
		base.Info("plain")

		assert.NotContains(t, buf.String(), "table=")
	})

	t.Run("ignores context without a span", func(t *testing.T) {
		l := NewLogger("test", LevelDebug)
		assert.Same(t, l, l.WithContext(context.Background()))
	})
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LevelWarn, ParseLevel("warning"))
	assert.Equal(t, LevelError, ParseLevel(" error "))
	assert.Equal(t, LevelInfo, ParseLevel(""))
	assert.Equal(t, LevelInfo, ParseLevel("verbose"))
}

func TestSyncCollector(t *testing.T) {
	pending, online, syncing := 2, true, false
	c := NewSyncCollector(func() (int, bool, bool) { return pending, online, syncing })

	expected := `
# HELP fonosync_online 1 when the remote service is reachable.
# TYPE fonosync_online gauge
fonosync_online 1
# HELP fonosync_queue_pending_operations Operations waiting to be replayed against the remote service.
# TYPE fonosync_queue_pending_operations gauge
fonosync_queue_pending_operations 2
# HELP fonosync_syncing 1 while the offline queue is being drained.
# TYPE fonosync_syncing gauge
fonosync_syncing 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))

	pending, syncing = 0, true
	expected = `
# HELP fonosync_queue_pending_operations Operations waiting to be replayed against the remote service.
# TYPE fonosync_queue_pending_operations gauge
fonosync_queue_pending_operations 0
# HELP fonosync_syncing 1 while the offline queue is being drained.
# TYPE fonosync_syncing gauge
fonosync_syncing 1
`
	assert.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"fonosync_queue_pending_operations", "fonosync_syncing"))
}

func TestMetricsHandler(t *testing.T) {
	reg, err := NewMetricsRegistry(func() (int, bool, bool) { return 5, false, false })
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	MetricsHandler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "fonosync_queue_pending_operations 5")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestTracingMiddleware_RecordsRoutePattern(t *testing.T) {
	metrics, err := NewHTTPMetrics()
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(TracingMiddleware())
	r.Use(MetricsMiddleware(metrics))
	var seen string
	r.Get("/api/tables/{table}", func(w http.ResponseWriter, r *http.Request) {
		seen = chi.URLParam(r, "table")
		w.WriteHeader(http.StatusTeapot)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tables/patients", nil))

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "patients", seen)
}
