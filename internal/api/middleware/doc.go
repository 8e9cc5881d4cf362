// Package middleware provides the gin middleware of the host HTTP surface.
//
// CORS admits the dev server origin and windows loaded from disk, which
// send "Origin: null". RateLimit keeps a token bucket per client IP and
// evicts buckets of idle clients; GlobalRateLimit shares one bucket.
//
//	router.Use(middleware.CORS(middleware.DefaultCORSConfig(startURL)))
//	router.Use(middleware.RateLimit(middleware.DefaultRateLimitConfig()))
package middleware
