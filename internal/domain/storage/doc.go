// Package storage provides per-file key-value storage for host applications.
//
// Each named resource is backed by one file at <location>/<name>.<extension>.
// All reads and writes for a resource pass through that resource's own FIFO
// queue, so at most one file operation per resource is in flight while
// distinct resources proceed independently. Writes are atomic: content goes
// to a sibling temp file, is synced, then renamed over the target.
//
// Formats:
//   - "json" extension: values are JSON-encoded. The first write of a new
//     file is pretty-printed with a 2-space indent; later writes are compact.
//   - any other extension: values are stored as raw bytes ([]byte or string).
//
// Pending operations are not flushed on process exit. An operation queued
// but not yet drained when the process stops is lost, and a crash between
// the temp write and its cleanup can leave an orphan temp file next to the
// target. Neither corrupts the target file.
//
// Example:
//
//	mgr, _ := storage.NewManager(dir, storage.WithLogger(logger))
//	_, err := mgr.CreateStorage(ctx, storage.Config{Name: "settings"})
//	_, err = mgr.Write(ctx, "settings", map[string]any{"address": "#66"})
//	value, err := mgr.Read(ctx, "settings")
package storage
