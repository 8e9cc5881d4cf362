/*
Package monitoring provides Prometheus metrics for the host runtime.

# Overview

Metrics track HTTP requests, storage operations, the window registry, IPC
relays, WebSocket connections and the updater. Every Metrics value owns its
registry, so tests can build as many as they need.

# Usage

	metrics := monitoring.NewMetrics(nil)

	// Add middleware to Gin router
	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	// Storage reports through the observer interface
	mgr, _ := storage.NewManager(dir, storage.WithObserver(metrics))
*/
package monitoring
