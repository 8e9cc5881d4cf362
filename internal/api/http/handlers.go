package http

import (
	"net/http"

	"github.com/GriffinCanCode/hostkit/internal/domain/ipc"
	"github.com/GriffinCanCode/hostkit/internal/domain/storage"
	"github.com/GriffinCanCode/hostkit/internal/domain/updater"
	"github.com/GriffinCanCode/hostkit/internal/domain/window"
	"github.com/GriffinCanCode/hostkit/internal/infrastructure/monitoring"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Deps holds the components exposed over HTTP. Updater may be nil when no
// update feed is configured.
type Deps struct {
	Storage *storage.Manager
	Windows *window.Manager
	Hub     *ipc.Hub
	Updater *updater.Updater
	Metrics *monitoring.Metrics
	Logger  *zap.Logger
	Version string
}

// Handlers contains all HTTP handlers
type Handlers struct {
	storage *storage.Manager
	windows *window.Manager
	hub     *ipc.Hub
	updater *updater.Updater
	metrics *monitoring.Metrics
	logger  *zap.Logger
	version string
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		storage: deps.Storage,
		windows: deps.Windows,
		hub:     deps.Hub,
		updater: deps.Updater,
		metrics: deps.Metrics,
		logger:  logger,
		version: deps.Version,
	}
}

// Register mounts every route on r.
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	st := r.Group("/storage")
	st.GET("", h.ListStorage)
	st.POST("", h.CreateStorage)
	st.GET("/:name", h.ReadStorage)
	st.PUT("/:name", h.WriteStorage)

	win := r.Group("/windows")
	win.GET("", h.ListWindows)
	win.POST("", h.CreateWindow)
	win.GET("/names", h.ListWindowNames)
	win.GET("/:id", h.GetWindow)
	win.DELETE("/:id", h.CloseWindow)

	up := r.Group("/updates")
	up.GET("", h.UpdateStatus)
	up.POST("/check", h.CheckForUpdates)
	up.POST("/download", h.DownloadUpdate)
	up.POST("/cancel", h.CancelUpdate)
	up.POST("/install", h.InstallUpdate)
	up.POST("/auto", h.AutoUpdate)

	rpc := r.Group("/ipc")
	rpc.GET("/targets", h.ListTargets)
	rpc.POST("/invoke", h.Invoke)
	rpc.POST("/broadcast", h.Broadcast)

	r.POST("/logs", h.StreamLogs)
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "hostkit",
		"version": h.version,
	})
}

// Health handles the detailed health check
func (h *Handlers) Health(c *gin.Context) {
	body := gin.H{
		"status":  "healthy",
		"version": h.version,
		"storage": gin.H{
			"dir":       h.storage.Dir(),
			"resources": len(h.storage.Names()),
		},
		"windows":     h.windows.Count(),
		"ipc_targets": len(h.hub.Targets()),
	}
	if h.updater != nil {
		body["updater"] = h.updater.Status()
	}
	if h.metrics != nil {
		body["metrics"] = h.metrics.Snapshot()
	}
	c.JSON(http.StatusOK, body)
}
