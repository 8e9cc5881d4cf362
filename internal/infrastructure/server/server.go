package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/hostkit/internal/api/http"
	"github.com/GriffinCanCode/hostkit/internal/api/middleware"
	"github.com/GriffinCanCode/hostkit/internal/api/ws"
	"github.com/GriffinCanCode/hostkit/internal/domain/ipc"
	"github.com/GriffinCanCode/hostkit/internal/domain/storage"
	"github.com/GriffinCanCode/hostkit/internal/domain/updater"
	"github.com/GriffinCanCode/hostkit/internal/domain/window"
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/config"
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/logging"
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/tracing"
)

const shutdownTimeout = 10 * time.Second

// Server owns every host component and the HTTP surface over them.
type Server struct {
	config     *config.Config
	logger     *logging.Logger
	ownsLogger bool
	metrics    *monitoring.Metrics
	tracer     *tracing.Tracer

	storage *storage.Manager
	windows *window.Manager
	hub     *ipc.Hub
	updater *updater.Updater

	router *gin.Engine
}

// Option configures a Server.
type Option func(*options)

type options struct {
	opener    window.Opener
	installer updater.Installer
	logger    *logging.Logger
}

// WithOpener sets the desktop collaborator that shows windows.
func WithOpener(o window.Opener) Option {
	return func(opts *options) { opts.opener = o }
}

// WithInstaller sets the desktop collaborator that applies updates.
func WithInstaller(i updater.Installer) Option {
	return func(opts *options) { opts.installer = i }
}

// WithLogger uses logger instead of building one from the config. The
// server does not close it.
func WithLogger(l *logging.Logger) Option {
	return func(opts *options) { opts.logger = l }
}

// LoggingConfig maps the logging section of cfg onto the logger config.
func LoggingConfig(cfg *config.Config) logging.Config {
	return logging.Config{
		Level:         cfg.Logging.Level,
		Development:   cfg.Logging.Development,
		WriteToFile:   cfg.Logging.ToFile,
		Dir:           cfg.Logging.Dir,
		RetentionDays: cfg.Logging.RetentionDays,
		FileHeader:    cfg.Logging.FileHeader,
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger, ownsLogger := o.logger, false
	if logger == nil {
		lcfg := LoggingConfig(cfg)
		l, err := logging.New(lcfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		logger, ownsLogger = l, true
		logging.CleanupExpired(logger.Logger, lcfg)
	}

	logger.Info("Initializing host",
		zap.String("addr", cfg.Addr()),
		zap.String("storage_dir", cfg.Storage.Dir),
		zap.Bool("dev", cfg.IsDev),
		zap.String("log_file", logger.Path()),
	)

	metrics := monitoring.NewMetrics(nil)
	tracer := tracing.New("hostkit", logger.Logger)

	st, err := storage.NewManager(cfg.Storage.Dir,
		storage.WithLogger(logger.Logger),
		storage.WithObserver(metrics),
		storage.WithParallelism(cfg.Storage.Parallelism),
	)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to create storage manager: %w", err)
	}

	windowOpts := []window.Option{window.WithObserver(metrics), window.WithLogger(logger.Logger)}
	if o.opener != nil {
		windowOpts = append(windowOpts, window.WithOpener(o.opener))
	}
	windows := window.NewManager(window.Config{
		StartURL: cfg.Window.StartURL,
		IsDev:    cfg.IsDev,
	}, windowOpts...)

	hub := ipc.NewHub(logger.Logger, metrics)

	var up *updater.Updater
	if cfg.Updater.FeedURL != "" {
		updaterOpts := []updater.Option{
			updater.WithBroadcaster(hub),
			updater.WithObserver(metrics),
			updater.WithTracer(tracer),
			updater.WithLogger(logger.Logger),
		}
		if o.installer != nil {
			updaterOpts = append(updaterOpts, updater.WithInstaller(o.installer))
		}
		up, err = updater.New(updater.Config{
			FeedURL:        cfg.Updater.FeedURL,
			CurrentVersion: cfg.Updater.CurrentVersion,
			DownloadDir:    cfg.Updater.DownloadDir,
			IsDev:          cfg.IsDev,
		}, updaterOpts...)
		if err != nil {
			tracer.Close()
			return nil, fmt.Errorf("failed to create updater: %w", err)
		}
	} else {
		logger.Info("No update feed configured; updater disabled")
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Window.StartURL)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		rl.Exempt = []string{"/health", "/metrics", "/ipc"}
		router.Use(middleware.RateLimit(rl))
	}

	apihttp.NewHandlers(apihttp.Deps{
		Storage: st,
		Windows: windows,
		Hub:     hub,
		Updater: up,
		Metrics: metrics,
		Logger:  logger.Logger,
		Version: cfg.Updater.CurrentVersion,
	}).Register(router)

	wsHandler := ws.NewHandler(hub, ws.WithObserver(metrics), ws.WithLogger(logger.Logger))
	router.GET("/ipc", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	logger.Info("Host initialized successfully")

	return &Server{
		config:     cfg,
		logger:     logger,
		ownsLogger: ownsLogger,
		metrics:    metrics,
		tracer:     tracer,
		storage:    st,
		windows:    windows,
		hub:        hub,
		updater:    up,
		router:     router,
	}, nil
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.router }

// Storage returns the storage manager.
func (s *Server) Storage() *storage.Manager { return s.storage }

// Windows returns the window registry.
func (s *Server) Windows() *window.Manager { return s.windows }

// Hub returns the IPC hub.
func (s *Server) Hub() *ipc.Hub { return s.hub }

// Updater returns the updater, or nil when no feed is configured.
func (s *Server) Updater() *updater.Updater { return s.updater }

// Logger returns the host logger.
func (s *Server) Logger() *zap.Logger { return s.logger.Logger }

// Run listens on the configured address and serves until ctx is done.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.updater != nil && s.config.Updater.AutoDownload && !s.config.IsDev {
		go func() {
			if _, err := s.updater.EnableAuto(ctx); err != nil && !errors.Is(err, updater.ErrNoUpdate) {
				s.logger.Warn("Automatic update failed", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close releases every component. Pending storage operations that have
// not started are abandoned.
func (s *Server) Close() error {
	s.logger.Info("Shutting down host...")

	if s.updater != nil {
		s.updater.Close()
	}
	s.tracer.Close()

	_ = s.logger.Sync()
	if !s.ownsLogger {
		return nil
	}
	return s.logger.Close()
}
