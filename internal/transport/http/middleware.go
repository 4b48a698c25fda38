package http

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"samaquiz-service/internal/auth"
	"samaquiz-service/internal/domain"
)

const requesterKey = "requester"

// Authenticate resolves the optional bearer token into a request-scoped
// requester. Requests without a token continue anonymously; a token that
// fails verification is rejected.
func Authenticate(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Set(requesterKey, domain.Requester{})
			c.Next()
			return
		}
		token, ok := auth.BearerToken(header)
		if !ok {
			writeError(c, domain.InvalidAuth())
			return
		}
		requester, err := verifier.Parse(token)
		if err != nil {
			writeError(c, domain.InvalidAuth())
			return
		}
		c.Set(requesterKey, requester)
		c.Next()
	}
}

func requesterFrom(c *gin.Context) domain.Requester {
	if v, ok := c.Get(requesterKey); ok {
		if requester, ok := v.(domain.Requester); ok {
			return requester
		}
	}
	return domain.Requester{}
}

// RequestLogger logs one line per completed request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Info("request completed",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
