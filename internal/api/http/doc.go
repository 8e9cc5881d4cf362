// Package http exposes the host runtime over a local REST API built on gin.
//
// Endpoints:
//   - Health: / and /health
//   - Storage: /storage, /storage/:name
//   - Windows: /windows, /windows/:id
//   - Updates: /updates, /updates/{check,download,cancel,install,auto}
//   - IPC: /ipc/targets, /ipc/invoke, /ipc/broadcast
//   - Logs: /logs
//
// Domain errors are mapped to status codes in one place; error bodies are
// {"error": "...", "trace_id": "..."}.
//
//	h := http.NewHandlers(http.Deps{Storage: st, Windows: wins, Hub: hub})
//	h.Register(router)
package http
