package security

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edu_portal_backend/internal/config"
	"edu_portal_backend/internal/util"
	"edu_portal_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func newTestEngine(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(handlers...)
	ok := func(c *gin.Context) { c.Status(http.StatusOK) }
	r.GET("/api/ping", ok)
	r.POST("/api/attempts/start", ok)
	return r
}

// withClaims stands in for the auth middleware.
func withClaims(c *gin.Context) {
	if email := c.GetHeader("X-Test-Email"); email != "" {
		c.Set("user", &util.Claims{UserID: "u-" + email, Email: email})
	}
	c.Next()
}

func startAs(r *gin.Engine, email, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/attempts/start", nil)
	if email != "" {
		req.Header.Set("X-Test-Email", email)
	}
	req.RemoteAddr = ip + ":40000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAttemptLimiterKeysOnStudentIdentity(t *testing.T) {
	counter := monitoring.AttemptRejections.WithLabelValues("start", "rate_limited")
	before := counterValue(t, counter)

	r := newTestEngine(withClaims, attemptLimiter(newLimiterStore(2, time.Hour), "start"))

	// 同一出口IP下的两个学生
	assert.Equal(t, http.StatusOK, startAs(r, "ada@example.com", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, startAs(r, "ADA@example.com", "10.0.0.1").Code)

	w := startAs(r, "ada@example.com", "10.0.0.1")
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	var body util.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.Equal(t, "too many requests", body.Error)
	assert.Equal(t, before+1, counterValue(t, counter))

	assert.Equal(t, http.StatusOK, startAs(r, "ben@example.com", "10.0.0.1").Code)

	// 不同IP也不能绕过
	assert.Equal(t, http.StatusTooManyRequests, startAs(r, "ada@example.com", "10.0.0.2").Code)
}

func TestAttemptLimiterFallsBackToClientIP(t *testing.T) {
	r := newTestEngine(withClaims, attemptLimiter(newLimiterStore(1, time.Hour), "start"))

	assert.Equal(t, http.StatusOK, startAs(r, "", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, startAs(r, "", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, startAs(r, "", "10.0.0.2").Code)
}

func TestAttemptLimiterDefaultsWhenUnset(t *testing.T) {
	r := newTestEngine(withClaims, AttemptLimiter(config.RateLimitConfig{}, "start"))

	for i := 0; i < defaultAttemptMaxRequests; i++ {
		require.Equal(t, http.StatusOK, startAs(r, "ada@example.com", "10.0.0.1").Code, "request %d", i)
	}
	assert.Equal(t, http.StatusTooManyRequests, startAs(r, "ada@example.com", "10.0.0.1").Code)
}

func TestRateLimiterPerIP(t *testing.T) {
	r := newTestEngine(RateLimiter(1, time.Hour))

	assert.Equal(t, http.StatusOK, startAs(r, "ada@example.com", "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, startAs(r, "ben@example.com", "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, startAs(r, "ada@example.com", "10.0.0.2").Code)
}

func preflight(r *gin.Engine, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodOptions, "/api/attempts/start", nil)
	req.Header.Set("Origin", origin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCORSPreflight(t *testing.T) {
	r := newTestEngine(CORS([]string{"https://portal.example.com/"}))

	w := preflight(r, "https://portal.example.com")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://portal.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)

	w = preflight(r, "https://evil.example.com")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	var body util.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "origin not allowed", body.Error)
}

func TestCORSSimpleRequestFromUnknownOrigin(t *testing.T) {
	r := newTestEngine(CORS([]string{"https://portal.example.com"}))

	req := httptest.NewRequest(http.MethodGet, "/api/ping", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSecureHeaders(t *testing.T) {
	r := newTestEngine(Secure())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ping", nil))

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Header().Get("Strict-Transport-Security"))
}
