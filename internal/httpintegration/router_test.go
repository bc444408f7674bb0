package httpintegration

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealthzAlwaysOK(t *testing.T) {
	router := NewRouter(nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadyzReflectsReadinessFunc(t *testing.T) {
	ready := false
	router := NewRouter(nil, func() bool { return ready })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	router.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	ready = true
	rec = httptest.NewRecorder()
	router.Engine().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCorrelationIDEchoed(t *testing.T) {
	router := NewRouter(nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(HeaderXCorrelationID, "req-123")
	router.Engine().ServeHTTP(rec, req)

	assert.Equal(t, "req-123", rec.Header().Get(HeaderXCorrelationID))
}

func TestCorrelationIDGeneratedWhenAbsent(t *testing.T) {
	router := NewRouter(nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	router.Engine().ServeHTTP(rec, req)

	assert.NotEmpty(t, rec.Header().Get(HeaderXCorrelationID))
}

func TestMetricsEndpointServesPrometheusFormat(t *testing.T) {
	router := NewRouter(nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	router.Engine().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
}
