package websocket

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"dispatch-backend/internal/middleware"
	"dispatch-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients on other origins are expected; auth is by token
		return true
	},
}

// HandleWebSocket upgrades an authenticated driver or admin connection.
// The token comes from ?token= since browsers cannot set headers on WebSocket requests.
func HandleWebSocket(hub *Hub, jwtSecret string, location LocationSink) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userClaims, ok := middleware.GetUserFromContext(r)
		if tokenString := r.URL.Query().Get("token"); tokenString != "" {
			claims, err := middleware.ParseToken(jwtSecret, tokenString)
			if err != nil {
				log.Printf("❌ Invalid token in query parameter: %v", err)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			userClaims, ok = claims, true
		}
		if !ok {
			log.Println("❌ No user for WebSocket connection")
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(userClaims.UserID, userClaims.Role, nil, conn, hub, location)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()

		log.Printf("✅ WebSocket connection established for user: %s (%s)", userClaims.Email, userClaims.UserID)
	}
}

// HandleTrackingWebSocket lets a customer follow one delivery by its tracking code.
// The connection joins the code's room and the driver's watch room; it never sends positions.
func HandleTrackingWebSocket(hub *Hub, sessions *services.TrackingSessionManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code := strings.ToUpper(chi.URLParam(r, "code"))

		resolved, err := sessions.ResolveSession(r.Context(), code)
		if errors.Is(err, services.ErrSessionNotFound) {
			http.Error(w, "Invalid or expired tracking code", http.StatusNotFound)
			return
		}
		if err != nil {
			log.Printf("❌ Tracking lookup failed for %s: %v", code, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("❌ WebSocket upgrade failed: %v", err)
			return
		}

		rooms := []string{TrackingRoom(resolved.TrackingCode), DriverWatchRoom(resolved.DriverID)}
		client := NewWatcher(rooms, time.Unix(resolved.ExpiresAt, 0), conn, hub)
		hub.register <- client

		go client.WritePump()
		go client.ReadPump()

		log.Printf("👀 Tracking watcher joined for delivery %s", resolved.DeliveryID)
	}
}
