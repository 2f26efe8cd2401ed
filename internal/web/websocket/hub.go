// Package websocket fans lifecycle events out to websocket subscribers.
// Clients join one room per resource they follow; the AllRooms room
// receives every event.
package websocket

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// AllRooms is the room of clients that follow every resource
const AllRooms = "*"

type roomMessage struct {
	room string
	data []byte
}

// Hub maintains the set of active clients and broadcasts messages to rooms
type Hub struct {
	clients map[*Client]struct{}
	rooms   map[string]map[*Client]struct{}
	mu      sync.RWMutex

	register   chan *Client
	unregister chan *Client
	broadcast  chan roomMessage

	logger *zap.Logger

	done     chan struct{}
	stopOnce sync.Once
	stopped  chan struct{}
}

// NewHub creates a new Hub. Call Run to start it.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		broadcast:  make(chan roomMessage, 1024),
		logger:     logger.Named("feed"),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
}

// Run is the hub's event loop. It returns when ctx is done or Shutdown is
// called, after closing every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	defer h.closeAll()
	defer h.stopOnce.Do(func() { close(h.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = struct{}{}
	for _, room := range client.Rooms {
		if h.rooms[room] == nil {
			h.rooms[room] = make(map[*Client]struct{})
		}
		h.rooms[room][client] = struct{}{}
	}
	h.logger.Debug("client registered",
		zap.String("client", client.ID),
		zap.Strings("rooms", client.Rooms),
		zap.Int("clients", len(h.clients)),
	)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	close(client.send)

	for _, room := range client.Rooms {
		if members, ok := h.rooms[room]; ok {
			delete(members, client)
			if len(members) == 0 {
				delete(h.rooms, room)
			}
		}
	}
	h.logger.Debug("client unregistered", zap.String("client", client.ID), zap.Int("clients", len(h.clients)))
}

// deliver sends a message to the room members and to AllRooms members. A
// client whose buffer is full misses the message.
func (h *Hub) deliver(msg roomMessage) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	for _, room := range []string{msg.room, AllRooms} {
		for client := range h.rooms[room] {
			if _, dup := seen[client]; dup {
				continue
			}
			seen[client] = struct{}{}

			select {
			case client.send <- msg.data:
			default:
				h.logger.Warn("dropping feed message for slow client",
					zap.String("client", client.ID),
					zap.String("room", msg.room),
				)
			}
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]struct{})
	h.rooms = make(map[string]map[*Client]struct{})
}

// Broadcast queues data for the clients of room. It never blocks the
// caller; when the queue is full the message is dropped.
func (h *Hub) Broadcast(room string, data []byte) {
	select {
	case <-h.done:
		return
	default:
	}

	select {
	case h.broadcast <- roomMessage{room: room, data: data}:
	default:
		h.logger.Warn("feed broadcast queue full, message dropped", zap.String("room", room))
	}
}

// Register adds a client. It reports false when the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomSize returns the number of clients in a room
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Shutdown stops the event loop and waits for it to close every client
func (h *Hub) Shutdown() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
	<-h.stopped
}
