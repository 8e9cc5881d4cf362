package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/GriffinCanCode/hostkit/internal/domain/updater"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *Handlers) requireUpdater(c *gin.Context) bool {
	if h.updater == nil {
		abort(c, ErrUpdaterUnavailable)
		return false
	}
	return true
}

// UpdateStatus reports the updater state
func (h *Handlers) UpdateStatus(c *gin.Context) {
	if !h.requireUpdater(c) {
		return
	}
	c.JSON(http.StatusOK, h.updater.Status())
}

// CheckForUpdates asks the feed for a newer release
func (h *Handlers) CheckForUpdates(c *gin.Context) {
	if !h.requireUpdater(c) {
		return
	}

	release, err := h.updater.Check(c.Request.Context())
	if errors.Is(err, updater.ErrNoUpdate) {
		c.JSON(http.StatusOK, gin.H{"available": false})
		return
	}
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"available": true, "release": release})
}

// DownloadUpdate downloads the latest release and waits for it to finish
func (h *Handlers) DownloadUpdate(c *gin.Context) {
	if !h.requireUpdater(c) {
		return
	}

	path, err := h.updater.Download(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"path": path})
}

// CancelUpdate stops a running download
func (h *Handlers) CancelUpdate(c *gin.Context) {
	if !h.requireUpdater(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": h.updater.Cancel()})
}

// InstallUpdate hands the downloaded release to the installer
func (h *Handlers) InstallUpdate(c *gin.Context) {
	if !h.requireUpdater(c) {
		return
	}

	if err := h.updater.Install(c.Request.Context()); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"installing": true})
}

// AutoUpdate enables automatic updates and starts a check in the
// background. Progress is reported through updater events.
func (h *Handlers) AutoUpdate(c *gin.Context) {
	if !h.requireUpdater(c) {
		return
	}

	ctx := context.WithoutCancel(c.Request.Context())
	go func() {
		if _, err := h.updater.EnableAuto(ctx); err != nil && !errors.Is(err, updater.ErrNoUpdate) {
			h.logger.Warn("Automatic update failed", zap.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"auto": true})
}
