// Package config provides layered configuration for the host runtime.
//
// Values come from built-in defaults, then an optional TOML file, then
// environment variables. A variable only overrides when it is set.
//
// Configuration Sections:
//   - Server: HTTP server settings (port, host, enabled)
//   - Storage: default storage directory and batch parallelism
//   - Logging: level, format, session log files and retention
//   - RateLimit: per-IP rate limiting
//   - Updater: update feed, current version, download directory
//   - Window: start URL for window pages
//
// Example Usage:
//
//	cfg, err := config.Load("")
//	if err != nil {
//		return err
//	}
//	fmt.Printf("Serving on %s\n", cfg.Addr())
//
// Environment Variables:
//   - HOSTKIT_CONFIG (path to a TOML file)
//   - PORT, HOST, SERVER_ENABLED
//   - STORAGE_DIR, STORAGE_PARALLELISM
//   - LOG_LEVEL, LOG_DEV, LOG_TO_FILE, LOG_DIR, LOG_RETENTION_DAYS, LOG_FILE_HEADER
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - UPDATE_FEED_URL, APP_VERSION, UPDATE_DOWNLOAD_DIR, UPDATE_AUTO_DOWNLOAD
//   - WINDOW_START_URL, HOST_IS_DEV
package config
