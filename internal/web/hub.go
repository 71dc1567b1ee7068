package web

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vadiminshakov/barreplay/internal/events"
	"github.com/vadiminshakov/barreplay/internal/metrics"
	"go.uber.org/zap"
)

const (
	clientSendBuffer = 64
	writeWait        = 10 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 30 * time.Second
)

// client is one websocket peer. Frames are queued on send; a peer whose
// queue is full is evicted rather than slowing down the replay.
type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	once sync.Once
}

// Hub fans session frames out to websocket clients.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	frames  *events.Broadcaster
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewHub creates a hub reading frames from b.
func NewHub(b *events.Broadcaster, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients: make(map[*client]struct{}),
		frames:  b,
		metrics: m,
		logger:  logger,
	}
}

// Run forwards frames until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	ch := h.frames.Subscribe()
	defer h.frames.Unsubscribe(ch)

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case f, ok := <-ch:
			if !ok {
				return
			}
			payload, err := json.Marshal(f)
			if err != nil {
				h.logger.Warn("failed to encode frame", zap.Error(err))
				continue
			}
			h.broadcast(payload)
		}
	}
}

func (h *Hub) broadcast(payload []byte) {
	var slow []*client

	h.mu.RLock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("evicting slow websocket client", zap.String("client", c.id))
		if h.metrics != nil {
			h.metrics.FramesDropped.Inc()
		}
		h.remove(c)
	}
}

// Clients returns the number of connected peers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// serve registers conn and blocks until the peer goes away.
func (h *Hub) serve(conn *websocket.Conn) {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
		hub:  h,
	}

	// a new peer starts from the latest state
	if f, ok := h.frames.Last(); ok {
		if payload, err := json.Marshal(f); err == nil {
			c.send <- payload
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	if h.metrics != nil {
		h.metrics.StreamClients.Inc()
	}
	h.logger.Debug("websocket client connected", zap.String("client", c.id))

	go c.writePump()
	c.readPump()
}

func (h *Hub) remove(c *client) {
	c.once.Do(func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		if h.metrics != nil {
			h.metrics.StreamClients.Dec()
		}
		h.logger.Debug("websocket client disconnected", zap.String("client", c.id))
	})
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		h.remove(c)
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
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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

// readPump discards inbound messages; commands go through the REST routes.
func (c *client) readPump() {
	defer func() {
		c.hub.remove(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
