package ws

import (
	"sync"
	"time"

	"github.com/GriffinCanCode/hostkit/internal/domain/ipc"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 1 << 20
)

// conn adapts a websocket connection into an ipc.Target. Writes are
// serialized; gorilla allows one concurrent writer.
type conn struct {
	id       string
	ws       *websocket.Conn
	observer Observer

	mu sync.Mutex
}

func newConn(targetID string, ws *websocket.Conn, observer Observer) *conn {
	return &conn{id: targetID, ws: ws, observer: observer}
}

func (c *conn) ID() string { return c.id }

// Send writes msg as a JSON text frame.
func (c *conn) Send(msg ipc.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := c.ws.WriteJSON(msg); err != nil {
		return err
	}
	if c.observer != nil {
		c.observer.RecordWSMessage("out", msg.Type)
	}
	return nil
}

func (c *conn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
