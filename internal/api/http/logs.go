package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const maxLogEntries = 500

// LogEntry is a log line forwarded by a window
type LogEntry struct {
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context"`
	Timestamp string         `json:"timestamp"`
}

// LogStreamRequest is a batch of log lines from one window
type LogStreamRequest struct {
	Source  string     `json:"source"`
	Entries []LogEntry `json:"entries"`
}

// StreamLogs writes log lines forwarded by windows into the host log, so
// that a session file holds both sides.
func (h *Handlers) StreamLogs(c *gin.Context) {
	var req LogStreamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid log request format")
		return
	}
	if len(req.Entries) == 0 {
		badRequest(c, "no log entries provided")
		return
	}
	if len(req.Entries) > maxLogEntries {
		badRequest(c, "too many log entries")
		return
	}
	if req.Source == "" {
		req.Source = "window"
	}

	logger := h.logger.With(zap.String("source", req.Source))
	for _, entry := range req.Entries {
		writeLogEntry(logger, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"entries_received": len(req.Entries),
		"timestamp":        time.Now().Unix(),
	})
}

func writeLogEntry(logger *zap.Logger, entry LogEntry) {
	fields := make([]zap.Field, 0, len(entry.Context)+1)
	if entry.Timestamp != "" {
		fields = append(fields, zap.String("window_timestamp", entry.Timestamp))
	}
	for key, value := range entry.Context {
		switch v := value.(type) {
		case string:
			fields = append(fields, zap.String(key, v))
		case float64:
			fields = append(fields, zap.Float64(key, v))
		case bool:
			fields = append(fields, zap.Bool(key, v))
		default:
			fields = append(fields, zap.Any(key, v))
		}
	}

	switch entry.Level {
	case "error":
		logger.Error(entry.Message, fields...)
	case "warn":
		logger.Warn(entry.Message, fields...)
	case "debug", "verbose":
		logger.Debug(entry.Message, fields...)
	default:
		logger.Info(entry.Message, fields...)
	}
}
