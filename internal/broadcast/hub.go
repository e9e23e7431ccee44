package broadcast

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/quote-relay/internal/metrics"
	"github.com/rickgao/quote-relay/internal/model"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096

	// DefaultClientBuffer is the per-client queue length.
	DefaultClientBuffer = 256
)

// Client actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// Request is a client control message.
type Request struct {
	Action  string   `json:"action"`
	Symbols []string `json:"symbols"`
}

// Ack answers a Request. Symbols is the client's filter afterwards; an empty
// list means every symbol.
type Ack struct {
	Event   string   `json:"event"`
	Symbols []string `json:"symbols"`
	Error   string   `json:"error,omitempty"`
}

// Hub pushes changed quotes to connected websocket clients. Clients receive
// every symbol until they subscribe to a subset. A client whose queue is full
// misses that update.
type Hub struct {
	upgrader     websocket.Upgrader
	clientBuffer int
	metrics      *metrics.Metrics
	logger       *slog.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a Hub. A non-positive clientBuffer uses DefaultClientBuffer.
func NewHub(clientBuffer int, m *metrics.Metrics, logger *slog.Logger) *Hub {
	if clientBuffer <= 0 {
		clientBuffer = DefaultClientBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clientBuffer: clientBuffer,
		metrics:      m,
		logger:       logger,
		clients:      make(map[*client]struct{}),
	}
}

// Name implements Sink.
func (h *Hub) Name() string { return "websocket" }

// ServeHTTP upgrades the request and serves the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := newClient(conn, h.clientBuffer)
	if !h.register(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return
	}
	h.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	go c.writePump()
	h.readPump(c)

	h.unregister(c)
	h.logger.Debug("websocket client disconnected", "remote", r.RemoteAddr)
}

// Publish queues q for every interested client.
func (h *Hub) Publish(_ context.Context, q model.Quote) error {
	payload, err := json.Marshal(q)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.wants(q.Symbol) {
			continue
		}
		if !c.enqueue(payload) {
			h.metrics.MessageDropped("ws_slow_client")
			h.logger.Debug("websocket client queue full", "symbol", q.Symbol)
		}
	}
	return nil
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.metrics.SetWebSocketClients(len(h.clients))
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.metrics.SetWebSocketClients(len(h.clients))
	h.mu.Unlock()

	c.close()
}

// readPump applies control messages until the connection fails.
func (h *Hub) readPump(c *client) {
	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var req Request
		if err := json.Unmarshal(data, &req); err != nil {
			c.reply(Ack{Event: "error", Error: "invalid request"})
			continue
		}

		switch req.Action {
		case ActionSubscribe:
			c.reply(Ack{Event: "subscribed", Symbols: c.subscribe(req.Symbols)})
		case ActionUnsubscribe:
			c.reply(Ack{Event: "unsubscribed", Symbols: c.unsubscribe(req.Symbols)})
		default:
			c.reply(Ack{Event: "error", Error: "unknown action: " + req.Action})
		}
	}
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once

	mu      sync.RWMutex
	symbols map[string]struct{}
}

func newClient(conn *websocket.Conn, buffer int) *client {
	return &client{
		conn:    conn,
		send:    make(chan []byte, buffer),
		done:    make(chan struct{}),
		symbols: make(map[string]struct{}),
	}
}

func (c *client) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}
	_, ok := c.symbols[symbol]
	return ok
}

func (c *client) subscribe(symbols []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range symbols {
		if s != "" {
			c.symbols[s] = struct{}{}
		}
	}
	return c.filterLocked()
}

func (c *client) unsubscribe(symbols []string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(symbols) == 0 {
		clear(c.symbols)
	}
	for _, s := range symbols {
		delete(c.symbols, s)
	}
	return c.filterLocked()
}

func (c *client) filterLocked() []string {
	out := make([]string, 0, len(c.symbols))
	for s := range c.symbols {
		out = append(out, s)
	}
	return out
}

// enqueue reports false when the client's queue is full or it has gone.
func (c *client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) reply(a Ack) {
	payload, err := json.Marshal(a)
	if err != nil {
		return
	}
	c.enqueue(payload)
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// writePump is the only writer on conn.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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
