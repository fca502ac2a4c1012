package ws

import (
	"log"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/amjacademy/messaging-backend/internal/fanout"
	"github.com/amjacademy/messaging-backend/internal/metrics"
)

const (
	pingInterval = 30 * time.Second
	pongTimeout  = 90 * time.Second
)

// Client wraps one WebSocket connection and implements fanout.Sink so the
// broker can push events straight to the socket. All writes go through a
// mutex because Fiber's websocket connection is not safe for concurrent
// writers.
type Client struct {
	Conn         *websocket.Conn
	UserID       uint
	SupportsGzip bool

	writeMux   sync.Mutex
	pingTicker *time.Ticker
	closeChan  chan struct{}
	closeOnce  sync.Once
}

func NewClient(userID uint, conn *websocket.Conn, supportsGzip bool) *Client {
	c := &Client{
		Conn:         conn,
		UserID:       userID,
		SupportsGzip: supportsGzip,
		pingTicker:   time.NewTicker(pingInterval),
		closeChan:    make(chan struct{}),
	}

	conn.SetPongHandler(func(appData string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	conn.SetReadDeadline(time.Now().Add(pongTimeout))

	go c.pingRoutine()
	metrics.ConnectionsTotal.Inc()
	return c
}

// Deliver sends one fan-out event to the socket, gzipped as a binary frame
// when the client negotiated compression. An error here makes the broker
// drop the subscription and queue durable events instead.
func (c *Client) Deliver(ev *fanout.Event) error {
	frame, err := Serialize(&MessageEvent{Event: ev})
	if err != nil {
		return err
	}
	return c.WriteRaw(frame)
}

// WriteRaw sends a pre-serialized frame, applying gzip when negotiated.
func (c *Client) WriteRaw(frame []byte) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()

	if c.SupportsGzip {
		compressed, err := CompressMessage(frame)
		if err == nil && len(compressed) < len(frame) {
			return c.Conn.WriteMessage(websocket.BinaryMessage, compressed)
		}
	}
	return c.Conn.WriteMessage(websocket.TextMessage, frame)
}

// WriteJSON satisfies frame handlers that respond directly on the socket.
func (c *Client) WriteJSON(v interface{}) error {
	c.writeMux.Lock()
	defer c.writeMux.Unlock()
	return c.Conn.WriteJSON(v)
}

// Close stops the ping routine. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.pingTicker.Stop()
		close(c.closeChan)
		metrics.ConnectionsTotal.Dec()
	})
}

func (c *Client) pingRoutine() {
	for {
		select {
		case <-c.pingTicker.C:
			c.writeMux.Lock()
			err := c.Conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMux.Unlock()
			if err != nil {
				log.Printf("Ping failed for user %d: %v", c.UserID, err)
				c.Close()
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

// MessageEvent is the server-to-client envelope for broker events. Clients
// never send it; it exists so events travel in the same framed format as
// everything else.
type MessageEvent struct {
	Event *fanout.Event `json:"event"`
}

func (msg *MessageEvent) GetType() string {
	return "event"
}

func (msg *MessageEvent) Process(ctx *MessageContext) error {
	return nil
}
