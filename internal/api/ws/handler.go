package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/GriffinCanCode/hostkit/internal/domain/ipc"
	"github.com/GriffinCanCode/hostkit/internal/shared/id"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ConnectedChannel is the event sent to a target right after it joins.
const ConnectedChannel = "ipc:connected"

const defaultInvokeTimeout = 30 * time.Second

// Observer receives websocket metrics.
type Observer interface {
	IncWSConnections()
	DecWSConnections()
	RecordWSMessage(direction, msgType string)
}

// Handler upgrades HTTP connections and registers them as IPC targets.
type Handler struct {
	hub           *ipc.Hub
	observer      Observer
	logger        *zap.Logger
	upgrader      websocket.Upgrader
	invokeTimeout time.Duration
}

// Option configures a Handler.
type Option func(*Handler)

// WithObserver sets the metrics observer.
func WithObserver(o Observer) Option {
	return func(h *Handler) { h.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithCheckOrigin restricts which origins may connect. By default every
// origin is accepted; the server only listens on loopback.
func WithCheckOrigin(fn func(r *http.Request) bool) Option {
	return func(h *Handler) { h.upgrader.CheckOrigin = fn }
}

// WithInvokeTimeout bounds invocations started by a connected target.
func WithInvokeTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.invokeTimeout = d
		}
	}
}

// NewHandler creates a new WebSocket handler
func NewHandler(hub *ipc.Hub, opts ...Option) *Handler {
	h := &Handler{
		hub:           hub,
		logger:        zap.NewNop(),
		invokeTimeout: defaultInvokeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleConnection upgrades the request and serves the connection until
// the peer goes away. ?target= names the target; otherwise one is assigned.
func (h *Handler) HandleConnection(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer ws.Close()

	targetID := c.Query("target")
	if targetID == "" {
		targetID = id.Default().GenerateWithPrefix("ws")
	}
	t := newConn(targetID, ws, h.observer)

	h.hub.Register(t)
	if h.observer != nil {
		h.observer.IncWSConnections()
	}
	h.logger.Info("IPC target connected", zap.String("target", targetID))

	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))
	defer func() {
		cancel()
		h.hub.Unregister(targetID)
		if h.observer != nil {
			h.observer.DecWSConnections()
		}
		h.logger.Info("IPC target disconnected", zap.String("target", targetID))
	}()

	if err := t.Send(ipc.Message{Type: ipc.TypeEvent, Channel: ConnectedChannel, Args: []any{targetID}}); err != nil {
		return
	}

	go h.keepAlive(ctx, t)
	h.readLoop(ctx, t)
}

func (h *Handler) keepAlive(ctx context.Context, t *conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := t.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) readLoop(ctx context.Context, t *conn) {
	t.ws.SetReadLimit(maxMessageSize)
	_ = t.ws.SetReadDeadline(time.Now().Add(pongWait))
	t.ws.SetPongHandler(func(string) error {
		return t.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg ipc.Message
		if err := t.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", zap.String("target", t.id), zap.Error(err))
			}
			return
		}
		_ = t.ws.SetReadDeadline(time.Now().Add(pongWait))
		if h.observer != nil {
			h.observer.RecordWSMessage("in", msg.Type)
		}

		switch msg.Type {
		case ipc.TypeReply:
			h.hub.Reply(msg.RequestID, msg.Error, msg.Result)
		case ipc.TypeInvoke:
			go h.relayInvoke(ctx, t, msg)
		case ipc.TypeEvent:
			h.hub.Broadcast(msg.Channel, msg.Args...)
		case ipc.TypePing:
			_ = t.Send(ipc.Message{Type: ipc.TypePong, RequestID: msg.RequestID})
		default:
			_ = t.Send(ipc.Message{Type: ipc.TypeError, RequestID: msg.RequestID, Error: "unknown message type"})
		}
	}
}

// relayInvoke forwards an invocation from t to every target, t included,
// and answers t under its own request ID.
func (h *Handler) relayInvoke(ctx context.Context, t *conn, msg ipc.Message) {
	ctx, cancel := context.WithTimeout(ctx, h.invokeTimeout)
	defer cancel()

	out := ipc.Message{Type: ipc.TypeReply, RequestID: msg.RequestID, Channel: msg.Channel}
	result, err := h.hub.Invoke(ctx, msg.Channel, msg.Args...)
	if err != nil {
		var remote *ipc.RemoteError
		if errors.As(err, &remote) {
			out.Error = remote.Message
		} else {
			out.Error = err.Error()
		}
	} else {
		out.Result = result
	}

	if err := t.Send(out); err != nil {
		h.logger.Debug("Failed to deliver reply", zap.String("target", t.id), zap.Error(err))
	}
}
