package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"dispatch-backend/internal/events"
	"dispatch-backend/internal/models"
)

// TrackingRoom is joined by customers watching a tracking code
func TrackingRoom(code string) string { return "tracking:" + code }

// DriverWatchRoom is joined by anyone following a driver's position
func DriverWatchRoom(driverID string) string { return "driver-watch:" + driverID }

// Hub maintains active WebSocket connections and broadcasts messages
type Hub struct {
	// Registered clients by connection ID
	clients map[string]*Client

	// Room membership (room -> clients)
	rooms map[string]map[*Client]bool

	// Outbound messages waiting for fan-out
	broadcast chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Mutex for thread-safe client map access
	mu sync.RWMutex

	now func() time.Time
}

// Message is one payload and the audience it goes to. Empty targets are ignored.
// CloseRoom disconnects every client in Room once the payload has been queued to them.
type Message struct {
	UserID    string
	Role      string
	Room      string
	Data      interface{}
	CloseRoom bool
}

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		rooms:      make(map[string]map[*Client]bool),
		broadcast:  make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		now:        time.Now,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			for _, room := range client.rooms {
				if h.rooms[room] == nil {
					h.rooms[room] = make(map[*Client]bool)
				}
				h.rooms[room][client] = true
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("✅ [WEBSOCKET] Client CONNECTED (user: %q, role: %s, rooms: %v, total: %d)",
				client.UserID, client.UserRole, client.rooms, total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				h.remove(client)
				log.Printf("🔴 [WEBSOCKET] Client DISCONNECTED (user: %q, role: %s, remaining: %d)",
					client.UserID, client.UserRole, len(h.clients))
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			data, err := json.Marshal(message.Data)
			if err != nil {
				log.Printf("❌ Failed to marshal message: %v", err)
				continue
			}

			h.mu.Lock()
			now := h.now()
			for _, client := range h.audience(message) {
				if client.expired(now) {
					h.remove(client)
					log.Printf("⌛ [WEBSOCKET] Watcher session expired, disconnecting: %s", client.ID)
					continue
				}
				select {
				case client.send <- data:
				default:
					// Client buffer full, disconnect
					h.remove(client)
					log.Printf("⚠️ Client buffer full, disconnecting: %s", client.ID)
				}
			}
			if message.CloseRoom && message.Room != "" {
				closed := 0
				for client := range h.rooms[message.Room] {
					h.remove(client)
					closed++
				}
				log.Printf("🔒 [WEBSOCKET] Room %s closed (%d watchers disconnected)", message.Room, closed)
			}
			h.mu.Unlock()
		}
	}
}

// audience collects each target client once. Caller holds h.mu.
func (h *Hub) audience(message *Message) []*Client {
	seen := make(map[*Client]bool)
	var out []*Client
	add := func(c *Client) {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}

	for _, client := range h.clients {
		if (message.UserID != "" && client.UserID == message.UserID) ||
			(message.Role != "" && client.UserRole == message.Role) {
			add(client)
		}
	}
	if message.Room != "" {
		for client := range h.rooms[message.Room] {
			add(client)
		}
	}
	return out
}

// remove drops a client and closes its send channel. Caller holds h.mu.
func (h *Hub) remove(client *Client) {
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	for _, room := range client.rooms {
		delete(h.rooms[room], client)
		if len(h.rooms[room]) == 0 {
			delete(h.rooms, room)
		}
	}
	close(client.send)
}

// BroadcastToUser sends a message to every connection of a user
func (h *Hub) BroadcastToUser(userID string, data interface{}) {
	h.enqueue(&Message{UserID: userID, Data: data})
}

// BroadcastToRole sends a message to all users with a specific role
func (h *Hub) BroadcastToRole(role string, data interface{}) {
	h.enqueue(&Message{Role: role, Data: data})
}

// BroadcastToRoom sends a message to every client in a room
func (h *Hub) BroadcastToRoom(room string, data interface{}) {
	h.enqueue(&Message{Room: room, Data: data})
}

// enqueue hands a message to Run without waiting. A full queue drops the message.
func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		log.Printf("⚠️ [WEBSOCKET] Broadcast queue full, dropping message (user: %q, role: %q, room: %q)",
			message.UserID, message.Role, message.Room)
	}
}

// Notify implements events.Notifier by routing each event to its watchers:
// route events reach the driver and admins, status events also reach the delivery's
// tracking room, and location events reach admins and the driver's watch room.
// A terminal status closes the tracking room after it is sent.
func (h *Hub) Notify(_ context.Context, ev events.Event) {
	switch ev.Type {
	case events.RouteOptimized, events.RouteRefreshed:
		h.enqueue(&Message{UserID: ev.DriverID, Role: models.RoleAdmin, Data: ev})

	case events.StatusChanged:
		msg := &Message{UserID: ev.DriverID, Role: models.RoleAdmin, Data: ev}
		if ev.TrackingCode != "" {
			msg.Room = TrackingRoom(ev.TrackingCode)
			msg.CloseRoom = terminalStatus(ev.Data)
		}
		h.enqueue(msg)

	case events.LocationUpdated:
		h.enqueue(&Message{Role: models.RoleAdmin, Room: DriverWatchRoom(ev.DriverID), Data: ev})
	}
}

func terminalStatus(data interface{}) bool {
	switch d := data.(type) {
	case events.StatusData:
		return models.DeliveryStatus(d.Status).IsTerminal()
	case *events.StatusData:
		return d != nil && models.DeliveryStatus(d.Status).IsTerminal()
	}
	return false
}

// GetClientCount returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// IsUserConnected checks if a user is currently connected
func (h *Hub) IsUserConnected(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.UserID == userID {
			return true
		}
	}
	return false
}
