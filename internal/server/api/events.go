package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"convertly/internal/server/service"
)

const (
	eventBuffer  = 64
	writeTimeout = 5 * time.Second
)

// Hub fans history events out to connected websocket clients.
type Hub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	count      atomic.Int64
	upgrader   websocket.Upgrader
}

// NewHub creates a hub. Call Run to start delivering events.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, eventBuffer),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Run owns the client set until ctx is done, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for conn := range h.clients {
				h.drop(conn)
			}
			return
		case conn := <-h.register:
			h.clients[conn] = true
			h.count.Add(1)
			slog.Debug("event client connected", "clients", h.count.Load())
		case conn := <-h.unregister:
			if h.clients[conn] {
				h.drop(conn)
			}
		case msg := <-h.broadcast:
			for conn := range h.clients {
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					slog.Debug("dropping event client", "error", err)
					h.drop(conn)
				}
			}
		}
	}
}

func (h *Hub) drop(conn *websocket.Conn) {
	delete(h.clients, conn)
	h.count.Add(-1)
	conn.Close()
}

// Publish queues ev for delivery. Events are dropped when the buffer is
// full so conversions never wait on slow clients.
func (h *Hub) Publish(ev service.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		slog.Error("failed to encode event", "type", ev.Type, "error", err)
		return
	}

	select {
	case h.broadcast <- msg:
	default:
		slog.Warn("event buffer full, dropping event", "type", ev.Type, "id", ev.ID)
	}
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// HandleEvents handles GET /api/events.
// Upgrades to a websocket that receives history events until it closes.
func (h *Hub) HandleEvents(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return nil
	}

	ctx := c.Request().Context()
	select {
	case h.register <- conn:
	case <-h.done:
		conn.Close()
		return nil
	case <-ctx.Done():
		conn.Close()
		return nil
	}

	// Clients never send anything meaningful; reading detects the close.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	select {
	case h.unregister <- conn:
	case <-h.done:
	case <-ctx.Done():
	}
	return nil
}
