package stream

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/engagement-bench/internal/domain"
	"github.com/blackmichael/engagement-bench/internal/metrics"
)

// Message types sent to subscribers.
const (
	TypeScore     = "score"
	TypePostTypes = "post_types"
	TypeComposite = "composite"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Message is one score update pushed to subscribers.
type Message struct {
	Type      string          `json:"type"`
	Platform  domain.Platform `json:"platform,omitempty"`
	Data      any             `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// Hub fans score updates out to websocket subscribers. Each subscriber has a
// bounded send buffer and is disconnected when it falls behind.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	buffer   int
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

type client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	platform domain.Platform // empty receives every platform
}

func NewHub(buffer int, logger *slog.Logger, m *metrics.Metrics) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	if m == nil {
		m = metrics.New()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		buffer:  buffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		logger:  logger,
		metrics: m,
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends msg to every subscriber interested in its platform. It never
// blocks on a slow subscriber.
func (h *Hub) Broadcast(msg Message) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("failed to marshal stream message", "type", msg.Type, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c.platform != "" && msg.Platform != "" && c.platform != msg.Platform {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.dropLocked(c)
			h.metrics.StreamDropped.Inc()
			h.logger.Warn("dropped slow stream subscriber", "platform", c.platform)
		}
	}
}

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.dropLocked(c)
	}
}

// ServeHTTP upgrades the request and registers the subscriber. The optional
// platform query parameter restricts updates to one platform.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var platform domain.Platform
	if v := r.URL.Query().Get("platform"); v != "" {
		p, err := domain.ParsePlatform(v)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		platform = p
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade stream connection", "error", err)
		return
	}

	c := &client{
		hub:      h,
		conn:     conn,
		send:     make(chan []byte, h.buffer),
		platform: platform,
	}
	h.add(c)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.metrics.StreamClients.Set(float64(n))
	h.logger.Info("stream subscriber connected", "clients", n, "platform", c.platform)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	h.dropLocked(c)
	h.mu.Unlock()
}

// dropLocked unregisters c. Closing send makes the write pump close the
// connection. Callers hold h.mu.
func (h *Hub) dropLocked(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.metrics.StreamClients.Set(float64(len(h.clients)))
}

// readPump discards inbound frames and detects disconnects.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("stream connection closed", "error", err)
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
