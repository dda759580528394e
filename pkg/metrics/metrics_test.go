package metrics

import (
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

// TestNewMetrics проверяет создание системы метрик
func TestNewMetrics(t *testing.T) {
	m := NewMetrics("test-service")

	require.NotNil(t, m)
	assert.NotNil(t, m.RequestCount)
	assert.NotNil(t, m.RequestDuration)
	assert.NotNil(t, m.ErrorsCount)
	assert.NotNil(t, m.Tracer)

	// Отдельные реестры: повторное создание не паникует
	assert.NotPanics(t, func() { NewMetrics("test-service") })
}

// TestGetHandler проверяет обработчик метрик
func TestGetHandler(t *testing.T) {
	m := NewMetrics("test-service")
	m.ObserveRateLimit("global", true, nil)

	w := httptest.NewRecorder()
	m.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "text/plain"))
	assert.Contains(t, w.Body.String(), "test_service_ratelimit_decisions_total")
}

// TestMiddleware проверяет подсчет запросов и ошибок
func TestMiddleware(t *testing.T) {
	m := NewMetrics("test-service")

	ok := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	}))
	failing := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	w := httptest.NewRecorder()
	ok.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/posts/123", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())

	failing.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/posts/456", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCount.WithLabelValues(http.MethodGet, "/v1/posts", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestCount.WithLabelValues(http.MethodGet, "/v1/posts", "500")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsCount.WithLabelValues(http.MethodGet, "/v1/posts", "server_error")))
}

func TestRouteLabel_ChiPattern(t *testing.T) {
	var label string
	r := chi.NewRouter()
	r.Get("/api/posts/post/{id}", func(w http.ResponseWriter, req *http.Request) {
		label = RouteLabel(req)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/posts/post/42", nil))
	assert.Equal(t, "/api/posts/post/{id}", label)

	assert.Equal(t, "/health", RouteLabel(httptest.NewRequest(http.MethodGet, "/health", nil)))
}

func TestObservers(t *testing.T) {
	m := NewMetrics("test-service")

	m.ObserveRateLimit("global", false, nil)
	m.ObserveRateLimit("global", true, assert.AnError)
	m.ObserveCache("post", "get", "hit")
	m.ObserveEvent("post.created", "publish", "ok")
	m.SetUpstreamOpen("post-service", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("global", "rejected")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimitDecisions.WithLabelValues("global", "store_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheOperations.WithLabelValues("post", "get", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Events.WithLabelValues("post.created", "publish", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UpstreamState.WithLabelValues("post-service")))

	m.SetUpstreamOpen("post-service", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.UpstreamState.WithLabelValues("post-service")))
}

func TestInitializeOpenTelemetry(t *testing.T) {
	shutdown := InitializeOpenTelemetry("test-service", "test")
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}
