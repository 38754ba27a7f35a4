package middlewares

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestRouter(auth Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(auth.Middleware())
	r.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func TestNewAuthenticator_EmptyKeyIsNoop(t *testing.T) {
	auth := NewAuthenticator("", nil, zap.NewNop())
	_, ok := auth.(*noopAuthenticator)
	require.True(t, ok)

	r := newTestRouter(auth)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaticAuthenticator_RejectsMissingKey(t *testing.T) {
	auth := NewAuthenticator("secret", nil, zap.NewNop())
	r := newTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaticAuthenticator_AcceptsHeaderKey(t *testing.T) {
	auth := NewAuthenticator("secret", nil, zap.NewNop())
	r := newTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Synapse-Api-Key", "secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaticAuthenticator_AcceptsBearerToken(t *testing.T) {
	auth := NewAuthenticator("secret", nil, zap.NewNop())
	r := newTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaticAuthenticator_RejectsWrongKey(t *testing.T) {
	auth := NewAuthenticator("secret", nil, zap.NewNop())
	r := newTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	req.Header.Set("X-Synapse-Api-Key", "wrong")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestStaticAuthenticator_AllowsCIDRWithoutKey(t *testing.T) {
	auth := NewAuthenticator("secret", []string{"127.0.0.1/32"}, zap.NewNop())
	r := newTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaticAuthenticator_AllowsUnixSocketPeer(t *testing.T) {
	auth := NewAuthenticator("secret", nil, zap.NewNop())
	r := newTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "@" // gin/http assigns this for unix socket peers
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStaticAuthenticator_IgnoresInvalidCIDR(t *testing.T) {
	auth := NewAuthenticator("secret", []string{"not-a-cidr"}, zap.NewNop())
	_, ok := auth.(*staticAuthenticator)
	require.True(t, ok)

	r := newTestRouter(auth)
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = "203.0.113.10:54321"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoggingMiddleware_SkipsHealthcheckWhenDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(LoggingMiddleware(zap.NewNop(), true))
	r.GET("/status", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
