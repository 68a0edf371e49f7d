package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"
)

// Connection limits.
const (
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
	pingInterval = idleTimeout * 9 / 10
	readLimit    = 4 << 10
	sendBuffer   = 64
)

// Client is one websocket connection attached to a hub.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte // closed by the hub when the client leaves
}

// NewClient attaches conn to h. A client created after the hub shut down
// is closed from the start and Run returns after sending a close frame.
func NewClient(h *Hub, conn *websocket.Conn) *Client {
	c := &Client{
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	if !h.join(c) {
		close(c.send)
	}
	return c
}

// Run serves the connection until either side closes it. It blocks, and
// does not return before the writer has stopped touching conn.
func (c *Client) Run() {
	written := make(chan struct{})
	go func() {
		defer close(written)
		c.writeLoop()
	}()

	c.readLoop()
	c.hub.leave(c)
	c.conn.Close()
	<-written
}

func (c *Client) readLoop() {
	c.conn.SetReadLimit(readLimit)
	c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if kind == websocket.TextMessage {
			c.hub.handle(c, data)
		}
	}
}

// writeLoop is the only writer on conn.
func (c *Client) writeLoop() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer c.conn.Close()

	for {
		var (
			kind    int
			payload []byte
		)
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			kind, payload = websocket.TextMessage, frame
		case <-ping.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(kind, payload); err != nil {
			return
		}
	}
}
