package ws

import (
	"time"

	"github.com/gorilla/websocket"

	"mineduel/internal/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second

	maxMessageSize = 4096
	sendBuffer     = 256
)

// Client is one websocket connection on either channel. The read pump feeds
// the hub; the write pump drains Send and keeps the connection alive with
// pings.
type Client struct {
	ID      string
	IsAdmin bool
	Conn    *websocket.Conn
	Send    chan []byte

	hub *Hub
}

func newClient(id string, conn *websocket.Conn, hub *Hub, isAdmin bool) *Client {
	return &Client{
		ID:      id,
		IsAdmin: isAdmin,
		Conn:    conn,
		Send:    make(chan []byte, sendBuffer),
		hub:     hub,
	}
}

// Run starts the write pump and blocks on the read pump until the
// connection drops.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.OnDisconnect(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws read error", "conn", c.ID, "err", err)
			}
			return
		}
		c.hub.HandleMessage(c, msg)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// enqueue drops the message when the client's buffer is full rather than
// blocking the dispatcher.
func (c *Client) enqueue(data []byte) {
	select {
	case c.Send <- data:
	default:
		logger.Warn("ws send buffer full, dropping message", "conn", c.ID)
	}
}
