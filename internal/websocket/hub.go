package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/thereayou/bizdesk/pkg/logger"
	"github.com/thereayou/bizdesk/pkg/metrics"
	"go.uber.org/zap"
)

// relayChannel carries broadcasts between server instances.
const relayChannel = "bizdesk:socket"

// Message is the envelope exchanged with clients in both directions.
type Message struct {
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// BroadcastMessage is either a payload for Room or, when Evict is set, an
// order to unsubscribe that identity's clients from Room.
type BroadcastMessage struct {
	Room    string `json:"room"`
	Message []byte `json:"message,omitempty"`
	Evict   string `json:"evict,omitempty"`
}

type Hub struct {
	clients map[uuid.UUID]*Client

	// rooms maps a room key to the clients subscribed to it.
	rooms map[string]map[uuid.UUID]*Client

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage

	relay *redis.Client
	log   *logger.Logger

	mu sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

func NewHub(log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Global()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[uuid.UUID]*Client),
		rooms:      make(map[string]map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		log:        log.Named("hub"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// WithRelay fans broadcasts out through Redis so that every instance
// delivers them to its own sockets. Must be called before Run.
func (h *Hub) WithRelay(rdb *redis.Client) *Hub {
	h.relay = rdb
	return h
}

func (h *Hub) Run() {
	if h.relay != nil {
		go h.subscribe()
	}

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-h.ctx.Done():
			return

		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case message := <-h.broadcast:
			if message.Evict != "" {
				h.evict(message.Room, message.Evict)
				continue
			}
			h.SendToRoom(message.Room, message.Message)

		case <-ticker.C:
			h.ping()
		}
	}
}

func (h *Hub) Stop() {
	h.cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.Send)
		if client.Conn != nil {
			client.Conn.Close()
		}
		delete(h.clients, id)
		metrics.SocketConnections.Dec()
	}
	h.rooms = make(map[string]map[uuid.UUID]*Client)
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.ID] = client
	metrics.SocketConnections.Inc()

	h.log.Debug("client registered", zap.String("client", client.ID.String()), zap.String("identity", client.Identity))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	for _, room := range client.GetRooms() {
		h.removeFromRoomUnsafe(client, room)
	}
	delete(h.clients, client.ID)
	close(client.Send)
	metrics.SocketConnections.Dec()

	h.log.Debug("client unregistered", zap.String("client", client.ID.String()), zap.String("identity", client.Identity))
}

func (h *Hub) JoinRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.rooms[room]; !ok {
		h.rooms[room] = make(map[uuid.UUID]*Client)
	}
	h.rooms[room][client.ID] = client

	client.mu.Lock()
	client.Rooms[room] = true
	client.mu.Unlock()
}

func (h *Hub) LeaveRoom(client *Client, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.removeFromRoomUnsafe(client, room)
}

func (h *Hub) removeFromRoomUnsafe(client *Client, room string) {
	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, client.ID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}

	client.mu.Lock()
	delete(client.Rooms, room)
	client.mu.Unlock()
}

// Broadcast delivers event to every client in room. It never blocks the
// caller: when the queue is full the event is dropped and logged.
func (h *Hub) Broadcast(room, event string, data any) {
	payload, err := Encode(event, data)
	if err != nil {
		h.log.Error("encode broadcast", zap.String("event", event), zap.Error(err))
		return
	}

	h.deliver(&BroadcastMessage{Room: room, Message: payload}, event)
}

// Evict removes every client whose Identity is identity from room. It goes
// through the same queue as broadcasts, so events sent before it still
// reach those clients and events sent after it do not.
func (h *Hub) Evict(room, identity string) {
	h.deliver(&BroadcastMessage{Room: room, Evict: identity}, "evict")
}

func (h *Hub) deliver(bm *BroadcastMessage, event string) {
	if h.relay != nil {
		raw, _ := json.Marshal(bm)
		err := h.relay.Publish(h.ctx, relayChannel, raw).Err()
		if err == nil {
			return
		}
		h.log.Warn("relay publish failed, delivering locally", zap.Error(err))
	}

	select {
	case h.broadcast <- bm:
	default:
		h.log.Warn("broadcast queue full", zap.String("room", bm.Room), zap.String("event", event))
	}
}

func (h *Hub) evict(room, identity string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, client := range h.rooms[room] {
		if client.Identity == identity {
			h.removeFromRoomUnsafe(client, room)
		}
	}
}

func (h *Hub) subscribe() {
	sub := h.relay.Subscribe(h.ctx, relayChannel)
	defer sub.Close()

	for {
		select {
		case <-h.ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			var bm BroadcastMessage
			if err := json.Unmarshal([]byte(msg.Payload), &bm); err != nil {
				h.log.Warn("bad relay payload", zap.Error(err))
				continue
			}
			select {
			case h.broadcast <- &bm:
			default:
				h.log.Warn("broadcast queue full", zap.String("room", bm.Room))
			}
		}
	}
}

func (h *Hub) SendToRoom(room string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.broadcastToRoomExcept(room, message, uuid.Nil)
}

// SendToRoomExcept is used for typing indicators, which the sender does
// not need echoed back.
func (h *Hub) SendToRoomExcept(room string, message []byte, exclude uuid.UUID) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	h.broadcastToRoomExcept(room, message, exclude)
}

func (h *Hub) broadcastToRoomExcept(room string, message []byte, excludeID uuid.UUID) {
	for _, client := range h.rooms[room] {
		if client.ID == excludeID {
			continue
		}
		select {
		case client.Send <- message:
		default:
			h.log.Warn("client send channel full", zap.String("client", client.ID.String()))
		}
	}
}

func (h *Hub) ping() {
	h.mu.RLock()
	defer h.mu.RUnlock()

	data, err := Encode("ping", nil)
	if err != nil {
		return
	}
	for _, client := range h.clients {
		select {
		case client.Send <- data:
		default:
		}
	}
}

// RoomSize reports how many local clients are subscribed to room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Encode renders an envelope.
func Encode(event string, data any) ([]byte, error) {
	msg := Message{Event: event, Timestamp: time.Now()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return nil, err
		}
		msg.Data = raw
	}
	return json.Marshal(msg)
}
