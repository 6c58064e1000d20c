package gateway

import (
	"encoding/json"
	"time"

	"taskchat-gateway/pkg/logger"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
)

// Client is one admitted connection. The connection ID is generated here and
// never reused; the user ID comes from the authenticator.
type Client struct {
	id     string
	userID string
	conn   *websocket.Conn
	send   chan []byte
	gw     *Gateway
}

func newClient(gw *Gateway, conn *websocket.Conn, userID string) *Client {
	return &Client{
		id:     uuid.NewString(),
		userID: userID,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		gw:     gw,
	}
}

// ID returns the opaque connection identifier.
func (c *Client) ID() string {
	return c.id
}

// commandFrame is the inbound wire format. Every command carries a type tag;
// the remaining fields are read per command and ignored otherwise.
type commandFrame struct {
	Type      string                `json:"type"`
	RoomID    string                `json:"roomId"`
	FullName  string                `json:"fullName"`
	IsTyping  bool                  `json:"isTyping"`
	Timestamp string                `json:"timestamp"`
	Message   map[string]any        `json:"message"`
	Refresh   *SilentRefreshPayload `json:"refresh"`
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.gw.unregister <- c:
		case <-c.gw.stop:
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
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Error("WebSocket read error (user %s): %v", c.userID, err)
			}
			break
		}

		var frame commandFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			// Best-effort protocol: bad frames are dropped, not answered.
			logger.Warn("Dropping malformed frame from user %s: %v", c.userID, err)
			continue
		}

		select {
		case c.gw.inbound <- inboundCommand{client: c, frame: frame}:
		case <-c.gw.stop:
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Error("Write error (user %s): %v", c.userID, err)
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
