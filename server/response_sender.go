package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResponseSender writes plain REST JSON responses, mapping the router's
// known error taxonomy (spec.md §7) onto HTTP status codes rather than an
// always-200 RPC envelope.
type ResponseSender interface {
	JSON(c *gin.Context, status int, body any)
	Error(c *gin.Context, err error)
}

// DefaultResponseSender implements ResponseSender over gin.
type DefaultResponseSender struct {
	logger *zap.Logger
}

// NewDefaultResponseSender creates a DefaultResponseSender.
func NewDefaultResponseSender(logger *zap.Logger) *DefaultResponseSender {
	return &DefaultResponseSender{logger: logger}
}

// JSON writes body with the given HTTP status.
func (rs *DefaultResponseSender) JSON(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// Error maps err to its HTTP status and a structured error body. Unknown
// error types are logged and reported as 500.
func (rs *DefaultResponseSender) Error(c *gin.Context, err error) {
	switch e := err.(type) {
	case *TaskNotFoundError:
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "detail": e.Error()})
	case *AmbiguousTaskError:
		c.JSON(http.StatusConflict, gin.H{"error": "ambiguous", "detail": e.Error(), "matches": e.Matches})
	case *TerminalStatusError:
		c.JSON(http.StatusConflict, gin.H{"error": "terminal_status", "detail": e.Error()})
	case *EmptyMessagePartsError:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_message", "detail": e.Error()})
	case *ValidationError:
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "detail": e.Error()})
	case *NotFoundError:
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "detail": e.Error()})
	case *FeatureDisabledError:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "disabled", "detail": e.Error()})
	case *NotReadyError:
		c.Header("Retry-After", "2")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "not_ready", "detail": e.Error()})
	default:
		rs.logger.Error("unhandled request error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "detail": err.Error()})
	}
}
