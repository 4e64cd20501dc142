package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cleanr/inboxengine/internal/tracing"
)

// APIKeyConfig mirrors the header-name/valid-key shape used across the
// façade: every route under /v1 requires a matching header.
type APIKeyConfig struct {
	HeaderName  string
	ValidAPIKey string
}

func apiKeyMiddleware(cfg APIKeyConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(cfg.HeaderName))
		if key == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing API key"})
			c.Abort()
			return
		}
		if key != cfg.ValidAPIKey {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid API key"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// requestIDMiddleware stamps every request with an X-Request-Id (echoing
// one supplied by the caller, minting one otherwise) so a line in the
// application log can be correlated back to a client-visible response.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-Id")
		if id == "" {
			id = uuid.New().String()
		}
		c.Writer.Header().Set("X-Request-Id", id)
		c.Set("request_id", id)
		c.Next()
	}
}

// tracingMiddleware opens one span per request tagged as the REST
// component, closing it once the handler chain returns.
func tracingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		span, ctx := tracing.StartTracerSpan(c.Request.Context(), c.Request.Method+" "+c.FullPath())
		defer span.Finish()
		tracing.TagComponentRest(span)
		if id := c.Param("id"); id != "" {
			tracing.TagJob(span, id)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		if c.Writer.Status() >= http.StatusInternalServerError {
			span.SetTag("error", true)
		}
	}
}
