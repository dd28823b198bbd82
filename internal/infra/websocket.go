package infra

import (
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"quantforge.com/internal/domain"
)

// WsHub tracks open WebSocket connections per user and pushes job
// notifications to them. Polling remains the primary status channel; the hub
// only short-circuits the wait when a job reaches a terminal state.
type WsHub struct {
	mu sync.RWMutex

	// UserID -> set of connections
	userConns map[uint]map[*websocket.Conn]bool

	// Per-connection buffered send channel so one slow client cannot block
	// the notifying goroutine.
	sendChannels map[*websocket.Conn]chan interface{}

	Register   chan UserConnection
	Unregister chan UserConnection
}

type UserConnection struct {
	UserID uint
	Conn   *websocket.Conn
}

func NewWsHub() *WsHub {
	return &WsHub{
		userConns:    make(map[uint]map[*websocket.Conn]bool),
		sendChannels: make(map[*websocket.Conn]chan interface{}),
		Register:     make(chan UserConnection),
		Unregister:   make(chan UserConnection),
	}
}

// Start runs the hub loop. Call in its own goroutine.
func (h *WsHub) Start() {
	log.Println("Starting WebSocket hub...")
	for {
		select {
		case req := <-h.Register:
			h.mu.Lock()
			if h.userConns[req.UserID] == nil {
				h.userConns[req.UserID] = make(map[*websocket.Conn]bool)
			}
			h.userConns[req.UserID][req.Conn] = true

			sendCh := make(chan interface{}, 64)
			h.sendChannels[req.Conn] = sendCh
			h.mu.Unlock()

			// Dedicated writer goroutine per connection
			go func(conn *websocket.Conn, ch chan interface{}) {
				for msg := range ch {
					if err := conn.WriteJSON(msg); err != nil {
						// Let the read loop notice the broken connection
						// and unregister it.
						return
					}
				}
			}(req.Conn, sendCh)

		case req := <-h.Unregister:
			h.mu.Lock()
			if conns, ok := h.userConns[req.UserID]; ok {
				delete(conns, req.Conn)
				if len(conns) == 0 {
					delete(h.userConns, req.UserID)
				}
			}
			if ch, ok := h.sendChannels[req.Conn]; ok {
				close(ch)
				delete(h.sendChannels, req.Conn)
			}
			h.mu.Unlock()
		}
	}
}

// NotifyUser delivers payload to every open connection of a user. Messages
// to clients whose send buffer is full are dropped.
func (h *WsHub) NotifyUser(userID uint, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for conn := range h.userConns[userID] {
		if ch, ok := h.sendChannels[conn]; ok {
			select {
			case ch <- payload:
			default:
				log.Printf("WsHub: dropping message for user %d, send buffer full", userID)
			}
		}
	}
}

var _ domain.Notifier = (*WsHub)(nil)
