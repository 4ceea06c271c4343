package websocket

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"dispatch-backend/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 2048

	// RoleWatcher marks anonymous tracking-code connections
	RoleWatcher = "watcher"
)

// LocationSink receives driver positions sent over the socket
type LocationSink interface {
	Update(ctx context.Context, driverID string, req models.LocationUpdateRequest) (bool, error)
	Disconnect(ctx context.Context, driverID string)
}

// Client represents a WebSocket client connection
type Client struct {
	ID       string
	UserID   string
	UserRole string // "driver", "admin" or "watcher"
	rooms    []string
	conn     *websocket.Conn
	hub      *Hub
	send     chan []byte
	location LocationSink

	// expiresAt ends a watcher's access; zero never expires
	expiresAt time.Time
}

// IncomingMessage represents a message from the client
type IncomingMessage struct {
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewClient creates a new WebSocket client. location may be nil for clients that never
// report positions.
func NewClient(userID, userRole string, rooms []string, conn *websocket.Conn, hub *Hub, location LocationSink) *Client {
	return &Client{
		ID:       uuid.New().String(),
		UserID:   userID,
		UserRole: userRole,
		rooms:    rooms,
		conn:     conn,
		hub:      hub,
		send:     make(chan []byte, 256),
		location: location,
	}
}

// NewWatcher creates an anonymous tracking client that the hub drops after expiresAt
func NewWatcher(rooms []string, expiresAt time.Time, conn *websocket.Conn, hub *Hub) *Client {
	client := NewClient("", RoleWatcher, rooms, conn, hub, nil)
	client.expiresAt = expiresAt
	return client
}

func (c *Client) expired(now time.Time) bool {
	return !c.expiresAt.IsZero() && !now.Before(c.expiresAt)
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		if c.UserRole == models.RoleDriver && c.location != nil {
			c.location.Disconnect(context.Background(), c.UserID)
		}
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg IncomingMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Invalid message format: %v", err)
			continue
		}

		switch msg.Type {
		case "ping":
			response, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"timestamp": time.Now().Format(time.RFC3339),
			})
			select {
			case c.send <- response:
			default:
			}

		case "location_update":
			c.handleLocationUpdate(msg.Data)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
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
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// Add queued messages to the current WebSocket message
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
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

// handleLocationUpdate forwards a driver's position; the sink stores and broadcasts it
func (c *Client) handleLocationUpdate(data json.RawMessage) {
	if c.UserRole != models.RoleDriver || c.location == nil {
		return
	}

	var req models.LocationUpdateRequest
	if err := json.Unmarshal(data, &req); err != nil {
		log.Printf("❌ Invalid location update from driver %s: %v", c.UserID, err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := c.location.Update(ctx, c.UserID, req); err != nil {
		log.Printf("❌ Error saving location for driver %s: %v", c.UserID, err)
	}
}
