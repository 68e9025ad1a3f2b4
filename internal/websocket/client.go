package websocket

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	// Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBuffer = 256
)

// ClientMessageHandler processes every event read from a client.
type ClientMessageHandler interface {
	HandleMessage(client *Client, msg *Message) error
}

type Client struct {
	ID uuid.UUID
	// Identity names the connection owner, e.g. "workspace-user:12" or
	// "guest:3". Evict matches on it.
	Identity string
	// Session carries whatever the handler attached on connect.
	Session any
	Conn    *websocket.Conn
	Send    chan []byte
	Rooms   map[string]bool
	Hub     *Hub
	mu      sync.RWMutex
}

func NewClient(hub *Hub, conn *websocket.Conn, identity string, session any) *Client {
	return &Client{
		ID:       uuid.New(),
		Identity: identity,
		Session:  session,
		Conn:     conn,
		Send:     make(chan []byte, sendBuffer),
		Rooms:    make(map[string]bool),
		Hub:      hub,
	}
}

func (c *Client) ReadPump(handler ClientMessageHandler) {
	defer func() {
		c.Hub.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var msg Message
		if err := c.Conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.log.Warn("websocket read", zap.String("client", c.ID.String()), zap.Error(err))
			}
			return
		}

		switch msg.Event {
		case "", "pong":
			continue
		}

		if handler != nil {
			if err := handler.HandleMessage(c, &msg); err != nil {
				c.Hub.log.Debug("socket event rejected",
					zap.String("client", c.ID.String()),
					zap.String("event", msg.Event),
					zap.Error(err))
			}
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// SendMessage queues an event for this client only.
func (c *Client) SendMessage(event string, data any) error {
	payload, err := Encode(event, data)
	if err != nil {
		return err
	}

	select {
	case c.Send <- payload:
		return nil
	default:
		return ErrClientQueueFull
	}
}

func (c *Client) SendError(event, errorMsg string, extra map[string]any) {
	body := map[string]any{"error": errorMsg}
	for k, v := range extra {
		body[k] = v
	}
	_ = c.SendMessage(event, body)
}

func (c *Client) IsInRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Rooms[room]
}

func (c *Client) GetRooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.Rooms))
	for room := range c.Rooms {
		rooms = append(rooms, room)
	}
	return rooms
}
