package hub

import (
	"time"

	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-ppe/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 256
)

// Client is one dashboard connection.
type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	camera string

	// send is closed by the hub.
	send chan Message

	// replies carries pongs from the read pump; never closed.
	replies chan Message
}

// NewClient registers a client with the hub. A non-empty camera limits
// the client to that camera's events plus unscoped messages.
func NewClient(hub *Hub, conn *websocket.Conn, camera string) *Client {
	client := &Client{
		hub:     hub,
		conn:    conn,
		camera:  camera,
		send:    make(chan Message, sendBuffer),
		replies: make(chan Message, 8),
	}
	select {
	case hub.register <- client:
	case <-hub.done:
		close(client.send)
	}
	return client
}

// Run pumps messages until the connection closes.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

func (c *Client) wants(m Message) bool {
	return c.camera == "" || m.Camera == "" || m.Camera == c.camera
}

// readPump detects disconnection and answers protocol pings.
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	msg, err := protocol.ParseMessage(data)
	if err != nil || msg.Type != protocol.TypePing {
		return
	}
	id := ""
	if ping, err := msg.GetPingData(); err == nil {
		id = ping.ID
	}
	pong, err := protocol.NewPongMessage(id, msg.Timestamp, time.Now().UnixMilli())
	if err != nil {
		return
	}
	reply, err := NewProtocolMessage(pong)
	if err != nil {
		return
	}
	select {
	case c.replies <- reply:
	default:
	}
}

// writePump is the only writer on the connection.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(message); err != nil {
				return
			}

		case reply := <-c.replies:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.write(reply); err != nil {
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

func (c *Client) write(m Message) error {
	wsType := websocket.TextMessage
	if m.Type == BinaryMessage {
		wsType = websocket.BinaryMessage
	}
	return c.conn.WriteMessage(wsType, m.Data)
}
