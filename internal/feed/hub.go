// Package feed streams trades and order events to websocket clients.
package feed

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
	sendBuffer     = 256

	// allSymbols subscribes a client to every symbol.
	allSymbols = "*"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced by the CORS middleware.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Message is the envelope written to clients.
type Message struct {
	Type   string `json:"type"`
	Symbol string `json:"symbol"`
	Data   any    `json:"data"`
}

// subscribeRequest is what clients send to change their subscriptions.
type subscribeRequest struct {
	Op      string   `json:"op"`
	Symbols []string `json:"symbols"`
}

// Hub tracks connected clients and fans out published messages to those
// subscribed to the message's symbol.
type Hub struct {
	logger      *slog.Logger
	subscribers prometheus.Gauge

	mu      sync.RWMutex
	clients map[*Client]struct{}
	closed  bool
}

// NewHub creates a Hub. subscribers may be nil.
func NewHub(logger *slog.Logger, subscribers prometheus.Gauge) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: subscribers,
		clients:     make(map[*Client]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client and
// refuses new ones.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	h.setGauge(0)
}

func (h *Hub) add(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.setGauge(n)
	h.logger.Debug("feed client connected", slog.String("client_id", c.id), slog.Int("clients", n))
	return true
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.setGauge(n)
		h.logger.Debug("feed client disconnected", slog.String("client_id", c.id), slog.Int("clients", n))
	}
}

func (h *Hub) setGauge(n int) {
	if h.subscribers != nil {
		h.subscribers.Set(float64(n))
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish sends a message to every client subscribed to symbol. Slow
// clients whose buffers are full miss the message rather than block the
// publisher.
func (h *Hub) Publish(msgType, symbol string, data any) {
	payload, err := json.Marshal(Message{Type: msgType, Symbol: symbol, Data: data})
	if err != nil {
		h.logger.Error("feed marshal failed", slog.String("type", msgType), slog.String("error", err.Error()))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.subscribed(symbol) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			h.logger.Warn("feed client lagging, message dropped", slog.String("client_id", c.id))
		}
	}
}

// ServeWS upgrades the request and registers a client. The optional
// symbol query parameter is a comma-separated initial subscription;
// without it the client receives every symbol.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("feed upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &Client{
		hub:           h,
		conn:          conn,
		send:          make(chan []byte, sendBuffer),
		id:            uuid.NewString(),
		subscriptions: make(map[string]struct{}),
	}
	symbols := splitSymbols(r.URL.Query().Get("symbol"))
	if len(symbols) == 0 {
		symbols = []string{allSymbols}
	}
	c.subscribe(symbols)

	if !h.add(c) {
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

func splitSymbols(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Client is one websocket connection.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	id   string

	subsMu        sync.RWMutex
	subscriptions map[string]struct{}
}

func (c *Client) subscribed(symbol string) bool {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	if _, ok := c.subscriptions[allSymbols]; ok {
		return true
	}
	_, ok := c.subscriptions[symbol]
	return ok
}

func (c *Client) subscribe(symbols []string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, s := range symbols {
		c.subscriptions[s] = struct{}{}
	}
}

func (c *Client) unsubscribe(symbols []string) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, s := range symbols {
		delete(c.subscriptions, s)
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("feed read failed", slog.String("client_id", c.id), slog.String("error", err.Error()))
			}
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			c.hub.logger.Debug("feed invalid message", slog.String("client_id", c.id), slog.String("error", err.Error()))
			continue
		}
		switch req.Op {
		case "subscribe":
			c.subscribe(req.Symbols)
		case "unsubscribe":
			c.unsubscribe(req.Symbols)
		default:
			c.hub.logger.Debug("feed unknown op", slog.String("client_id", c.id), slog.String("op", req.Op))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
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
