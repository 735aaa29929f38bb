package security

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// DefaultMaxBodyBytes matches the largest payload GitHub will deliver
const DefaultMaxBodyBytes int64 = 25 << 20

// Config holds HTTP hardening settings
type Config struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// DefaultConfig returns no cross-origin access and the GitHub payload ceiling
func DefaultConfig() Config {
	return Config{MaxBodyBytes: DefaultMaxBodyBytes}
}

// Headers sets response headers suited to a JSON-only API
func Headers() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "no-referrer")

		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// CORS returns the cross-origin middleware for the read endpoints. It
// reports false when no origins are configured, in which case nothing
// should be installed.
func CORS(origins []string) (gin.HandlerFunc, bool) {
	if len(origins) == 0 {
		return nil, false
	}

	cfg := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg), true
		}
	}
	cfg.AllowOrigins = origins
	return cors.New(cfg), true
}

// LimitBody caps how much of the request body handlers may read. Reads past
// the limit fail, which the webhook route reports as a malformed payload.
func LimitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}
