// Package logging provides structured logging using uber/zap.
//
// This package offers production-ready logging with two modes:
//   - Production: JSON output for machine parsing
//   - Development: Colored console output for human readability
//
// When file output is enabled every entry is also written, JSON encoded, to
// a session file named "<2006-01-02_15-04-05>_log_<ulid>.log" in the log
// directory. The file starts with a header describing the host. Session files
// older than the retention period are removed by Cleanup.
//
// Example Usage:
//
//	logger, err := logging.New(logging.Config{
//		Level:       "info",
//		WriteToFile: true,
//		Dir:         dir,
//		FileHeader:  true,
//	})
//	defer logger.Close()
//	logger.Info("Server starting", zap.String("port", "8000"))
package logging
