package ws

import (
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait = 10 * time.Second
)

// Config tunes the hub and every connection it serves.
type Config struct {
	GracePeriod    time.Duration
	HistoryLimit   int
	MaxMessageSize int64
	SendBuffer     int
	PongWait       time.Duration
	AllowedOrigins []string
}

func DefaultConfig() Config {
	return Config{
		GracePeriod:    60 * time.Second,
		HistoryLimit:   200,
		MaxMessageSize: 1024 * 1024,
		SendBuffer:     512,
		PongWait:       60 * time.Second,
	}
}

// Zero fields fall back to DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.GracePeriod <= 0 {
		c.GracePeriod = d.GracePeriod
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = d.MaxMessageSize
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = d.SendBuffer
	}
	if c.PongWait <= 0 {
		c.PongWait = d.PongWait
	}
	return c
}

func (c Config) pingPeriod() time.Duration {
	return (c.PongWait * 9) / 10
}

// Browsers always send Origin; other clients may omit it.
func (c Config) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(c.AllowedOrigins) == 0 {
		return true
	}
	return slices.Contains(c.AllowedOrigins, "*") || slices.Contains(c.AllowedOrigins, origin)
}

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	id        string
	closeOnce sync.Once
}

func newClient(hub *Hub, conn *websocket.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, hub.config.SendBuffer),
		id:   uuid.NewString(),
	}
}

func (c *Client) ID() string {
	return c.id
}

// Send queues msg without blocking. A full buffer means the peer is not keeping up, so
// the connection is closed and the read pump unregisters it.
func (c *Client) Send(msg []byte) bool {
	select {
	case c.send <- msg:
		return true
	default:
		c.hub.logger.Warn("send buffer full, closing connection", slog.String("conn", c.id))
		c.close()
		return false
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// ServeWs upgrades the request and attaches the connection to the hub. The client
// picks its room with a join-room message.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     hub.config.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", slog.Any("error", err))
		return
	}

	client := newClient(hub, conn)
	hub.post(hub.register, client)

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.post(c.hub.unregister, c)
		c.close()
	}()

	pongWait := c.hub.config.PongWait
	c.conn.SetReadLimit(c.hub.config.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("websocket read failed", slog.String("conn", c.id), slog.Any("error", err))
			}
			break
		}

		c.hub.deliver(&Message{Client: c, Data: message})
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.hub.config.pingPeriod())
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
