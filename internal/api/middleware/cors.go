package middleware

import (
	"slices"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORSConfig defines CORS configuration options.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	// AllowFileOrigins admits windows loaded from disk, which send
	// "Origin: null" or a file:// origin.
	AllowFileOrigins bool
	MaxAge           time.Duration
}

// DefaultCORSConfig returns a configuration for a host whose windows are
// served from startURL.
func DefaultCORSConfig(startURL string) CORSConfig {
	origins := []string{"http://localhost:3000", "http://127.0.0.1:3000"}
	if o := originOf(startURL); o != "" && !slices.Contains(origins, o) {
		origins = append(origins, o)
	}

	return CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{
			"Content-Type",
			"Content-Length",
			"Accept-Encoding",
			"Accept",
			"Origin",
			"Cache-Control",
			"X-Requested-With",
			"X-Trace-ID",
			"X-Span-ID",
		},
		ExposeHeaders:    []string{"X-Trace-ID", "X-Span-ID"},
		AllowCredentials: true,
		AllowFileOrigins: true,
		MaxAge:           12 * time.Hour,
	}
}

// CORS creates a CORS middleware with the provided configuration.
func CORS(cfg CORSConfig) gin.HandlerFunc {
	c := cors.Config{
		AllowMethods:     cfg.AllowMethods,
		AllowHeaders:     cfg.AllowHeaders,
		ExposeHeaders:    cfg.ExposeHeaders,
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	}

	if cfg.AllowFileOrigins {
		allowed := make(map[string]struct{}, len(cfg.AllowOrigins))
		for _, o := range cfg.AllowOrigins {
			allowed[o] = struct{}{}
		}
		_, wildcard := allowed["*"]
		c.AllowOriginFunc = func(origin string) bool {
			if wildcard || origin == "null" || strings.HasPrefix(origin, "file://") {
				return true
			}
			_, ok := allowed[origin]
			return ok
		}
	} else {
		c.AllowOrigins = cfg.AllowOrigins
	}

	return cors.New(c)
}

func originOf(rawURL string) string {
	scheme, rest, ok := strings.Cut(rawURL, "://")
	if !ok || (scheme != "http" && scheme != "https") {
		return ""
	}
	host, _, _ := strings.Cut(rest, "/")
	if host == "" {
		return ""
	}
	return scheme + "://" + host
}
