package http

import (
	"fmt"
	"net/http"

	"github.com/GriffinCanCode/hostkit/internal/domain/window"
	"github.com/GriffinCanCode/hostkit/internal/shared/id"
	"github.com/gin-gonic/gin"
)

// ListWindows lists registered windows, optionally filtered by ?name=
func (h *Handlers) ListWindows(c *gin.Context) {
	var windows []*window.Window
	if name, ok := c.GetQuery("name"); ok {
		windows = h.windows.GetAll(name)
	} else {
		for _, wid := range h.windows.AllIDs() {
			if w, ok := h.windows.GetByID(wid); ok {
				windows = append(windows, w)
			}
		}
	}
	if windows == nil {
		windows = []*window.Window{}
	}

	c.JSON(http.StatusOK, gin.H{
		"windows": windows,
		"count":   len(windows),
	})
}

// ListWindowNames returns the name of every registered window
func (h *Handlers) ListWindowNames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"names": h.windows.Names()})
}

// CreateWindow registers and opens a window
func (h *Handlers) CreateWindow(c *gin.Context) {
	var opts window.Options
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&opts); err != nil {
			badRequest(c, "invalid window options")
			return
		}
	}

	w, err := h.windows.Create(c.Request.Context(), opts)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

// GetWindow returns one window by ID
func (h *Handlers) GetWindow(c *gin.Context) {
	wid := id.WindowID(c.Param("id"))

	w, ok := h.windows.GetByID(wid)
	if !ok {
		abort(c, fmt.Errorf("%w: %s", window.ErrWindowNotFound, wid))
		return
	}
	c.JSON(http.StatusOK, w)
}

// CloseWindow unregisters a window
func (h *Handlers) CloseWindow(c *gin.Context) {
	wid := id.WindowID(c.Param("id"))

	if err := h.windows.Close(wid); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"closed": wid})
}
