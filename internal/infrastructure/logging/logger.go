package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/GriffinCanCode/hostkit/internal/shared/id"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// sessionTimeLayout prefixes session log file names.
const sessionTimeLayout = "2006-01-02_15-04-05"

// Logger wraps zap.Logger with an optional per-session log file.
type Logger struct {
	*zap.Logger

	file *os.File
	path string
}

// Config defines logger configuration.
type Config struct {
	Level       string // "debug", "info", "warn", "error"
	Development bool
	OutputPaths []string

	// WriteToFile tees every entry, JSON encoded, into a new session file
	// under Dir.
	WriteToFile   bool
	Dir           string
	RetentionDays int
	FileHeader    bool
}

// DefaultConfig returns production-ready logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:         "info",
		Development:   false,
		OutputPaths:   []string{"stdout"},
		RetentionDays: 30,
		FileHeader:    true,
	}
}

// DevelopmentConfig returns development logger configuration.
func DevelopmentConfig() Config {
	return Config{
		Level:         "debug",
		Development:   true,
		OutputPaths:   []string{"stdout"},
		RetentionDays: 30,
		FileHeader:    true,
	}
}

// New creates a new logger with the provided configuration.
func New(cfg Config) (*Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}

	zapCfg := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Development,
		Encoding:          encodingFormat(cfg.Development),
		EncoderConfig:     encoderConfig(cfg.Development),
		OutputPaths:       cfg.OutputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     false,
		DisableStacktrace: !cfg.Development,
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, err
	}
	if !cfg.WriteToFile {
		return &Logger{Logger: logger}, nil
	}

	file, path, err := openSessionFile(cfg.Dir, time.Now())
	if err != nil {
		_ = logger.Sync()
		return nil, err
	}
	if cfg.FileHeader {
		if err := WriteHeader(file, DefaultHeader()); err != nil {
			_ = file.Close()
			return nil, fmt.Errorf("write log header: %w", err)
		}
	}

	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig(false)),
		zapcore.AddSync(file),
		zapCfg.Level,
	)
	logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(core, fileCore)
	}))

	return &Logger{Logger: logger, file: file, path: path}, nil
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	logger, err := New(DefaultConfig())
	if err != nil {
		// Fallback to no-op logger
		return &Logger{Logger: zap.NewNop()}
	}
	return logger
}

// NewDevelopment creates a logger with development configuration.
func NewDevelopment() *Logger {
	logger, err := New(DevelopmentConfig())
	if err != nil {
		// Fallback to no-op logger
		return &Logger{Logger: zap.NewNop()}
	}
	return logger
}

// Path returns the session log file, or "" when file output is off.
func (l *Logger) Path() string {
	return l.path
}

// Close flushes buffered entries and closes the session file.
func (l *Logger) Close() error {
	_ = l.Sync()
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// SessionFileName returns the log file name for a session started at t.
func SessionFileName(t time.Time, session id.SessionID) string {
	return fmt.Sprintf("%s_%s.log", t.Format(sessionTimeLayout), session)
}

func openSessionFile(dir string, now time.Time) (*os.File, string, error) {
	if dir == "" {
		return nil, "", fmt.Errorf("log directory is required when writing to file")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(dir, SessionFileName(now, id.NewSessionID()))
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, "", fmt.Errorf("open log file: %w", err)
	}
	return file, path, nil
}

// parseLevel converts string level to zapcore.Level.
func parseLevel(level string) (zapcore.Level, error) {
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return zapcore.InfoLevel, err
	}
	return l, nil
}

// encodingFormat returns encoding format based on environment.
func encodingFormat(development bool) string {
	if development {
		return "console"
	}
	return "json"
}

// encoderConfig returns encoder configuration based on environment.
func encoderConfig(development bool) zapcore.EncoderConfig {
	if development {
		return zapcore.EncoderConfig{
			TimeKey:        "T",
			LevelKey:       "L",
			NameKey:        "N",
			CallerKey:      "C",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "M",
			StacktraceKey:  "S",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		}
	}

	return zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}
