package chat

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"prompt-together/internal/middleware"
	"prompt-together/internal/room"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Options tunes per-connection behavior.
type Options struct {
	RateLimitBurst  int32
	RateLimitRefill time.Duration
}

// ServeWS upgrades the request and starts the connection's pumps.
func ServeWS(registry *room.Registry, opts Options) http.HandlerFunc {
	sup := NewSupervisor(registry)
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[WS] Upgrade error: %v", err)
			return
		}

		client := &Client{
			conn:     conn,
			send:     make(chan []byte, sendQueueSize),
			connID:   uuid.NewString(),
			registry: registry,
			limiter:  middleware.NewRateLimiter(opts.RateLimitBurst, opts.RateLimitRefill),
			sup:      sup,
		}

		log.Printf("[WS] %s: connected from %s", client.connID, r.RemoteAddr)

		go client.writePump()
		go client.readPump()
	}
}
