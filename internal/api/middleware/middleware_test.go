package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/adamscao/captionapi/internal/auth"
	"github.com/adamscao/captionapi/internal/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func serve(r *gin.Engine, method, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	tokens := auth.NewTokenManager("middleware-secret-0123456789", "captionapi")

	r := gin.New()
	r.GET("/me", RequireAuth(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"email": CurrentEmail(c), "role": CurrentRole(c)})
	})
	r.GET("/admin", RequireAuth(tokens), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	session := func(role string) string {
		tok, err := tokens.Issue(auth.Claims{Email: "a@x.com", Role: role, Purpose: auth.PurposeSession}, time.Hour)
		require.NoError(t, err)
		return tok
	}
	expired, err := tokens.Issue(auth.Claims{Email: "a@x.com", Role: "user", Purpose: auth.PurposeSession}, -time.Minute)
	require.NoError(t, err)
	reset, err := tokens.Issue(auth.Claims{Email: "a@x.com", Purpose: auth.PurposeReset}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic " + session("user"), http.StatusUnauthorized},
		{"lowercase scheme", "/me", "bearer " + session("user"), http.StatusUnauthorized},
		{"malformed", "/me", "Bearer abc", http.StatusUnauthorized},
		{"expired", "/me", "Bearer " + expired, http.StatusUnauthorized},
		{"reset token", "/me", "Bearer " + reset, http.StatusUnauthorized},
		{"valid", "/me", "Bearer " + session("user"), http.StatusOK},
		{"admin as user", "/admin", "Bearer " + session("user"), http.StatusForbidden},
		{"admin", "/admin", "Bearer " + session("admin"), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.header != "" {
				header.Set("Authorization", tt.header)
			}
			w := serve(r, http.MethodGet, tt.path, header)
			assert.Equal(t, tt.want, w.Code)
		})
	}

	w := serve(r, http.MethodGet, "/me", http.Header{"Authorization": {"Bearer " + session("admin")}})
	assert.JSONEq(t, `{"email":"a@x.com","role":"admin"}`, w.Body.String())
}

func TestCurrentRoleWithoutAuth(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Equal(t, models.Role(""), CurrentRole(c))
	assert.Empty(t, CurrentEmail(c))
}

type recorder struct {
	mu   sync.Mutex
	hits []string
	err  error
}

func (r *recorder) RecordHit(_ context.Context, method, endpoint string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits = append(r.hits, method+" "+endpoint)
	return r.err
}

func TestTrackEndpointRunsBeforeAuth(t *testing.T) {
	ledger := &recorder{}
	tokens := auth.NewTokenManager("middleware-secret-0123456789", "captionapi")

	r := gin.New()
	r.Use(TrackEndpoint(ledger, zap.NewNop()))
	r.GET("/users/:id", RequireAuth(tokens), func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusUnauthorized, serve(r, http.MethodGet, "/users/42", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/missing", nil).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/missing/again", nil).Code)

	assert.Equal(t, []string{"GET /users/:id", "GET <unmatched>", "GET <unmatched>"}, ledger.hits)
}

func TestTrackEndpointFailureDoesNotFailRequest(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	ledger := &recorder{err: errors.New("database is locked")}

	r := gin.New()
	r.Use(TrackEndpoint(ledger, zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, serve(r, http.MethodGet, "/ok", nil).Code)
	assert.Equal(t, 1, logs.FilterMessage("failed to record endpoint hit").Len())
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(60, 2).WithClock(func() time.Time { return now })

	r := gin.New()
	r.POST("/login", limiter.Middleware(), func(c *gin.Context) { c.Status(http.StatusOK) })

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":5555"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code)

	w := hit("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))

	// Buckets are per IP.
	assert.Equal(t, http.StatusOK, hit("10.0.0.2").Code)

	// One token refills per second at 60/min.
	now = now.Add(time.Second)
	assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1").Code)
}

func TestRateLimiterSweepsIdleVisitors(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter := NewIPRateLimiter(60, 1).WithClock(func() time.Time { return now })

	ok, _ := limiter.allow("10.0.0.1")
	require.True(t, ok)

	now = now.Add(visitorTTL + sweepInterval)
	ok, _ = limiter.allow("10.0.0.2")
	require.True(t, ok)

	limiter.mu.Lock()
	defer limiter.mu.Unlock()
	assert.NotContains(t, limiter.visitors, "10.0.0.1")
	assert.Contains(t, limiter.visitors, "10.0.0.2")
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, GetRequestID(c)) })

	w := serve(r, http.MethodGet, "/", nil)
	generated := w.Header().Get("X-Request-ID")
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	w = serve(r, http.MethodGet, "/", http.Header{"X-Request-Id": {"abc-123"}})
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))
}

func TestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	r := gin.New()
	r.Use(RequestID(), Logger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/bad", func(c *gin.Context) { c.Status(http.StatusBadRequest) })
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusInternalServerError) })

	serve(r, http.MethodGet, "/ok", nil)
	serve(r, http.MethodGet, "/bad", nil)
	serve(r, http.MethodGet, "/boom", nil)

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, "192.0.*.*", entries[0].ContextMap()["client_ip"])
	assert.NotEmpty(t, entries[0].ContextMap()["request_id"])
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewHTTPMetrics(reg)
	require.NoError(t, err)

	again, err := NewHTTPMetrics(reg)
	require.NoError(t, err)
	assert.Same(t, metrics.Requests, again.Requests)

	r := gin.New()
	r.Use(metrics.Handler())
	r.GET("/items/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	serve(r, http.MethodGet, "/items/1", nil)
	serve(r, http.MethodGet, "/items/2", nil)
	serve(r, http.MethodGet, "/nope", nil)

	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.Requests.WithLabelValues("GET", "/items/:id", "200")))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.Requests.WithLabelValues("GET", "unmatched", "404")))
	assert.Equal(t, float64(0), testutil.ToFloat64(metrics.InFlight))
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://app.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, http.MethodGet, "/x", http.Header{"Origin": {"https://evil.example.com"}})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodGet, "/x", http.Header{"Origin": {"https://app.example.com"}})
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = serve(r, http.MethodOptions, "/x", http.Header{"Origin": {"https://app.example.com"}})
	assert.Equal(t, http.StatusNoContent, w.Code)
}
