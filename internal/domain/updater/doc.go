// Package updater drives application updates from a static release feed.
//
// The feed is a directory served over HTTP containing latest.json:
//
//	{"version": "1.4.0", "url": "https://.../app-1.4.0.tar.gz", "sha256": "..."}
//
// Check compares the advertised version with the running one using semver.
// Download streams the artifact into the download directory through the
// storage package's atomic writer, so a partial or corrupt file is never
// left behind. Every step is reported as an Event to subscribers and, when
// a broadcaster is configured, to IPC targets on EventChannel.
//
// All operations are refused in development mode.
package updater
