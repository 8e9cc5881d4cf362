// Package ws connects windows to the IPC hub over WebSocket.
//
// Every connection becomes an ipc.Target. Frames are ipc.Message values
// encoded as JSON:
//   - invoke (server → client): answer with a reply carrying the same requestId
//   - invoke (client → server): relayed to every target; the first reply is
//     sent back to the caller under the caller's requestId
//   - event: broadcast to every target
//   - ping / pong: application keep-alive
//
//	router.GET("/ipc", ws.NewHandler(hub).HandleConnection)
package ws
