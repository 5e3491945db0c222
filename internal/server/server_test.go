package server

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/cache"
	"opsdesk/internal/config"
	"opsdesk/internal/handlers"
	"opsdesk/internal/models"
	"opsdesk/internal/ratelimit"
	"opsdesk/internal/security"
	"opsdesk/internal/service"
	"opsdesk/internal/testutil"
)

func newTestServer(t *testing.T) *HTTPServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{
		Environment:      "test",
		HTTP:             config.HTTPConfig{Host: "127.0.0.1", Port: 0, ReadTimeout: time.Second},
		Security:         config.SecurityConfig{AccessSecret: "0123456789abcdef0123456789abcdef"},
		AllowCORSOrigins: []string{"https://ops.example.com"},
	}
	h := handlers.NewHandlerSet(zerolog.Nop(), cfg, nil, nil, handlers.HealthCheck{
		Name: "noop",
		Ping: func(context.Context) error { return nil },
	})
	srv, err := NewHTTPServer(cfg, zerolog.Nop(), h)
	require.NoError(t, err)
	return srv
}

// newAuthServer wires the real auth stack behind the server so client
// address resolution and rate limiting are exercised together.
func newAuthServer(t *testing.T, trustedProxies []string) *HTTPServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	_, rdb := testutil.NewRedis(t)
	cfg := &config.AppConfig{
		Environment: "test",
		HTTP:        config.HTTPConfig{Host: "127.0.0.1", TrustedProxies: trustedProxies},
		Security: config.SecurityConfig{
			AccessSecret:    "0123456789abcdef0123456789abcdef",
			AccessTokenTTL:  15 * time.Minute,
			RefreshTokenTTL: 7 * 24 * time.Hour,
		},
		RateLimit: config.RateLimitConfig{Window: 5 * time.Minute, MaxAttempts: 10},
	}
	hash, err := security.HashPassword("correct")
	require.NoError(t, err)
	admin := models.User{ID: "admin-1", Email: "a@x.com", PasswordHash: hash}

	recorder := testutil.NewAuditRecorder()
	authService := service.NewAuthService(
		testutil.NewUserStore(admin),
		testutil.NewSessionStore(),
		cache.NewChallengeStore(rdb),
		ratelimit.NewLimiter(rdb, cfg.RateLimit.Window, cfg.RateLimit.MaxAttempts),
		recorder,
		cfg,
		zerolog.Nop(),
	)
	shareService := service.NewShareLinkService(testutil.NewShareLinkStore(), recorder, cfg, zerolog.Nop())
	h := handlers.NewHandlerSet(zerolog.Nop(), cfg, authService, shareService)

	srv, err := NewHTTPServer(cfg, zerolog.Nop(), h)
	require.NoError(t, err)
	return srv
}

func failedLogin(srv *HTTPServer, remoteAddr, forwardedFor string) int {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@x.com","password":"wrong"}`))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w.Code
}

func TestHTTPServer_MountsUnderAPI(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/healthz", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestHTTPServer_CORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/auth/login", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestHTTPServer_CORSIgnoresUnknownOrigin(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTPServer_ProtectedRouteWithoutToken(t *testing.T) {
	srv := newTestServer(t)

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/share/list", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHTTPServer_ShutdownBeforeStart(t *testing.T) {
	srv := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, srv.Shutdown(ctx))
}

func TestHTTPServer_ForwardedForCannotDodgeRateLimit(t *testing.T) {
	srv := newAuthServer(t, nil)

	for i := 1; i <= 10; i++ {
		code := failedLogin(srv, "203.0.113.9:1234", fmt.Sprintf("198.51.100.%d", i))
		require.Equal(t, http.StatusUnauthorized, code, "attempt %d", i)
	}

	assert.Equal(t, http.StatusTooManyRequests, failedLogin(srv, "203.0.113.9:1234", "198.51.100.11"))
}

func TestHTTPServer_TrustedProxyForwardsClientAddress(t *testing.T) {
	srv := newAuthServer(t, []string{"10.0.0.0/8"})

	for i := 1; i <= 10; i++ {
		require.Equal(t, http.StatusUnauthorized, failedLogin(srv, "10.0.0.2:1234", "198.51.100.7"), "attempt %d", i)
	}

	assert.Equal(t, http.StatusTooManyRequests, failedLogin(srv, "10.0.0.3:1234", "198.51.100.7"))
	assert.Equal(t, http.StatusUnauthorized, failedLogin(srv, "10.0.0.2:1234", "198.51.100.8"))
}

func TestNewHTTPServer_RejectsBadTrustedProxy(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.AppConfig{
		Environment: "test",
		HTTP:        config.HTTPConfig{TrustedProxies: []string{"not-an-ip"}},
	}
	h := handlers.NewHandlerSet(zerolog.Nop(), cfg, nil, nil)

	_, err := NewHTTPServer(cfg, zerolog.Nop(), h)

	assert.Error(t, err)
}
