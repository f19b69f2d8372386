package server

import (
	"net/http"
	"regexp"
	"time"

	"github.com/harunnryd/splitkit/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

const (
	ClientIDHeader = "X-Client-ID"
	ClientIDCookie = "splitkit_client"

	clientIDKey = "clientID"
)

var validClientID = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)

// clientScope resolves the visitor's storage scope from the X-Client-ID
// header or the splitkit_client cookie, issuing a new id when neither is
// present or valid.
func clientScope() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(ClientIDHeader)
		if !validClientID.MatchString(id) {
			id = ""
			if cookie, err := c.Cookie(ClientIDCookie); err == nil && validClientID.MatchString(cookie) {
				id = cookie
			}
		}
		if id == "" {
			id = ulid.Make().String()
			c.SetSameSite(http.SameSiteLaxMode)
			c.SetCookie(ClientIDCookie, id, int((365 * 24 * time.Hour).Seconds()), "/", "", false, true)
		}

		c.Header(ClientIDHeader, id)
		c.Set(clientIDKey, id)
		c.Next()
	}
}

func clientID(c *gin.Context) string {
	return c.GetString(clientIDKey)
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		ctx := logger.WithClientID(c.Request.Context(), clientID(c))
		logger.FromContext(ctx).Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
