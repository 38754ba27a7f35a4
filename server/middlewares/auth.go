// Package middlewares holds gin middleware shared by the A2A HTTP router:
// request logging and the static-secret authenticator.
package middlewares

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Authenticator gates requests behind a shared API key, the way spec.md §7
// describes ("Auth errors ... the localhost client may be allow-listed by
// config"). This system has no identity provider to federate against, so it
// uses a static shared secret rather than the OIDC scheme the teacher's
// multi-tenant gateway needs (see DESIGN.md).
type Authenticator interface {
	Middleware() gin.HandlerFunc
}

// NewAuthenticator builds an Authenticator from a shared API key and a list
// of CIDRs exempt from the check. An empty apiKey disables authentication
// entirely, matching the teacher's AuthConfig.Enable-gated noop pattern.
func NewAuthenticator(apiKey string, allowedCIDRs []string, logger *zap.Logger) Authenticator {
	if apiKey == "" {
		logger.Warn("no api key configured, authentication is disabled")
		return &noopAuthenticator{}
	}

	var nets []*net.IPNet
	for _, cidr := range allowedCIDRs {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			logger.Warn("ignoring invalid allowed cidr", zap.String("cidr", cidr), zap.Error(err))
			continue
		}
		nets = append(nets, n)
	}

	return &staticAuthenticator{apiKey: apiKey, allowed: nets, logger: logger}
}

type staticAuthenticator struct {
	apiKey  string
	allowed []*net.IPNet
	logger  *zap.Logger
}

// Middleware enforces the shared API key on every request except those from
// an allow-listed CIDR or arriving over the Unix-domain listener.
func (a *staticAuthenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.clientAllowed(c) {
			c.Next()
			return
		}

		key := c.GetHeader("X-Synapse-Api-Key")
		if key == "" {
			if auth := c.GetHeader("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		if key == "" || key != a.apiKey {
			a.logger.Warn("rejecting request with missing or invalid api key",
				zap.String("remote_addr", c.Request.RemoteAddr), zap.String("path", c.Request.URL.Path))
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "detail": "missing or invalid api key"})
			c.Abort()
			return
		}

		c.Next()
	}
}

// clientAllowed exempts Unix-domain-socket connections (whose RemoteAddr is
// empty or "@", never a host:port pair) on the theory that filesystem
// permissions on the socket already gate access, and any TCP client whose
// address falls within an allow-listed CIDR.
func (a *staticAuthenticator) clientAllowed(c *gin.Context) bool {
	addr := c.Request.RemoteAddr
	if addr == "" || addr == "@" || !strings.Contains(addr, ":") {
		return true
	}

	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range a.allowed {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

type noopAuthenticator struct{}

func (a *noopAuthenticator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}

// LoggingMiddleware logs each request at Info level, optionally suppressing
// health-check noise (ported from the teacher's request logger).
func LoggingMiddleware(logger *zap.Logger, disableHealthcheckLog bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		if disableHealthcheckLog && (path == "/status" || path == "/.well-known/agent.json") {
			return
		}

		logger.Info("handled request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("remote_addr", c.Request.RemoteAddr),
		)
	}
}
