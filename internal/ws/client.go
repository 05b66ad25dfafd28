package ws

import (
	"encoding/json"
	"sync"
	"time"

	"detective_game/internal/logger"
	"detective_game/internal/service"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	sendBuffer = 256
)

type Client struct {
	FID  int64
	Conn *websocket.Conn
	Send chan []byte
	Hub  *Hub
	Done chan struct{}

	mu     sync.Mutex
	closed bool
}

func NewClient(fid int64, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		FID:  fid,
		Conn: conn,
		Send: make(chan []byte, sendBuffer),
		Hub:  hub,
		Done: make(chan struct{}),
	}
}

// Run subscribes the client to the game channel and its own player channel
// and pumps frames until the connection drops.
func (c *Client) Run() {
	go c.writePump()

	ready, _ := json.Marshal(Envelope{Type: MsgReady})
	c.queue(ready)

	c.Hub.Subscribe(c, service.ChannelGame, service.PlayerChannel(c.FID))
	c.readPump()
}

// queue hands msg to the writer without blocking. It reports false when the
// client is closed or its buffer is full.
func (c *Client) queue(msg []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}

//read
func (c *Client) readPump() {
	defer func() {
		c.Hub.OnDisconnect(c)
		_ = c.Conn.Close()
		close(c.Done)
	}()

	c.Conn.SetReadLimit(4096)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("ws read error", "fid", c.FID, "error", err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.queueError("malformed message")
			continue
		}
		switch msg.Type {
		case MsgPing:
			pong, _ := json.Marshal(Envelope{Type: MsgPong})
			c.queue(pong)
		default:
			c.queueError("unknown message type")
		}
	}
}

func (c *Client) queueError(text string) {
	data, _ := json.Marshal(ErrorPayload{Message: text})
	frame, _ := json.Marshal(Envelope{Type: MsgError, Data: data})
	c.queue(frame)
}

//write
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				logger.Debug("ws write error", "fid", c.FID, "error", err)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
