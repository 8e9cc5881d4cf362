// Package server wires the host together.
//
// New builds every component once from a config.Config: the logger, the
// prometheus metrics, the tracer, the storage manager, the window
// registry, the IPC hub and, when a feed is configured, the updater. It
// then mounts the REST API, the /ipc websocket and /metrics on one gin
// router with recovery, tracing, metrics, CORS and rate limiting.
//
//	srv, err := server.New(cfg, server.WithOpener(shell))
//	if err != nil { ... }
//	defer srv.Close()
//	err = srv.Run(ctx)
package server
