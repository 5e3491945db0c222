package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opsdesk/internal/security"
)

const secret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

func newRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery(zerolog.Nop()))
	protected := r.Group("/", Auth(secret, zerolog.Nop()), RequireRoles("admin"))
	protected.GET("/whoami", func(c *gin.Context) {
		claims, _ := CurrentClaims(c)
		c.String(http.StatusOK, claims.Subject)
	})
	r.GET("/panic", func(*gin.Context) { panic("boom") })
	return r
}

func token(t *testing.T, role, typ string) string {
	t.Helper()
	signed, err := security.SignToken(security.Claims{
		Role:             role,
		Type:             typ,
		RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"},
	}, secret, time.Minute)
	require.NoError(t, err)
	return signed
}

func get(r http.Handler, path, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_AcceptsAdminAccessToken(t *testing.T) {
	w := get(newRouter(), "/whoami", token(t, "admin", security.TokenTypeAccess))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-1", w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))
}

func TestAuth_Rejections(t *testing.T) {
	r := newRouter()

	missing := get(r, "/whoami", "")
	assert.Equal(t, http.StatusUnauthorized, missing.Code)
	assert.JSONEq(t, `{"error":"unauthorized","message":"Authentication required"}`, missing.Body.String())

	garbage := get(r, "/whoami", "not.a.token")
	assert.Equal(t, http.StatusUnauthorized, garbage.Code)

	wrongType := get(r, "/whoami", token(t, "admin", "refresh"))
	assert.Equal(t, http.StatusUnauthorized, wrongType.Code)

	viewer := get(r, "/whoami", token(t, "viewer", security.TokenTypeAccess))
	assert.Equal(t, http.StatusForbidden, viewer.Code)
	assert.JSONEq(t, `{"error":"forbidden","message":"Forbidden"}`, viewer.Body.String())
}

func TestRecovery_ConvertsPanics(t *testing.T) {
	w := get(newRouter(), "/panic", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"internal_error","message":"Internal server error"}`, w.Body.String())
}

func TestCORS_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"https://ops.example.com"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://ops.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_OpenWithoutCredentials(t *testing.T) {
	r := gin.New()
	r.Use(CORS(nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	cases := []struct {
		name     string
		incoming string
		kept     bool
	}{
		{name: "propagated", incoming: "req-123_abc.1", kept: true},
		{name: "missing", incoming: ""},
		{name: "too long", incoming: strings.Repeat("a", 65)},
		{name: "control characters", incoming: "abc\r\ninjected"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.incoming != "" {
				req.Header[requestIDHeader] = []string{tc.incoming}
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			got := w.Header().Get(requestIDHeader)
			require.NotEmpty(t, got)
			if tc.kept {
				assert.Equal(t, tc.incoming, got)
			} else {
				assert.NotEqual(t, tc.incoming, got)
			}
		})
	}
}

func TestLogger_OmitsQueryString(t *testing.T) {
	var buf bytes.Buffer
	r := gin.New()
	r.Use(RequestID(), Logger(zerolog.New(&buf)))
	r.GET("/api/v1/share/validate", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/share/validate?token=secret-token", nil))

	assert.Contains(t, buf.String(), `"path":"/api/v1/share/validate"`)
	assert.NotContains(t, buf.String(), "secret-token")
}
