package webserver

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Hub fans live stats out to connected websocket clients. Slow clients
// are dropped rather than allowed to back-pressure the sampler.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*hubClient]bool
	upgrader websocket.Upgrader
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*hubClient]bool),
		upgrader: websocket.Upgrader{
			// Loopback-only server; the agent connects from browser
			// extension origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handle upgrades one request into a streaming client.
func (h *Hub) Handle(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := &hubClient{conn: conn, send: make(chan []byte, 16)}

	h.mu.Lock()
	h.clients[client] = true
	h.mu.Unlock()
	zap.L().Debug("websocket client connected")

	go h.writePump(client)
	go h.readPump(client)
	return nil
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- payload:
		default:
			// Client is not draining; close it out of band.
			go h.drop(client)
		}
	}
}

func (h *Hub) writePump(client *hubClient) {
	for payload := range client.send {
		if err := client.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.drop(client)
			return
		}
	}
}

func (h *Hub) readPump(client *hubClient) {
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			h.drop(client)
			return
		}
	}
}

func (h *Hub) drop(client *hubClient) {
	h.mu.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, client)
	h.mu.Unlock()
	close(client.send)
	_ = client.conn.Close()
	zap.L().Debug("websocket client disconnected")
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.Unlock()
	for _, client := range clients {
		h.drop(client)
	}
}
