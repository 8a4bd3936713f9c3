package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/goran-ethernal/ChainReactor/internal/logger"
	"github.com/goran-ethernal/ChainReactor/internal/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 4 * 1024

	// Per-client buffer of outgoing messages. A client that falls this far
	// behind starts losing messages.
	clientSendBuffer = 64
)

// Envelope frames every message sent to a websocket client.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// Hub tracks connected websocket clients and pushes envelopes to them.
// Clients may scope themselves to one user at connect time; unscoped
// clients receive everything. Delivery is fire-and-forget: a client with a
// full buffer misses the message.
type Hub struct {
	log *logger.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	delivered uint64
	dropped   uint64
}

// NewHub builds an empty hub.
func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:     log,
		clients: make(map[*wsClient]struct{}),
	}
}

// HandleConn adopts an upgraded connection and pumps it until it drops.
// userID, when non-empty, scopes the client to that user's notifications.
// Blocks until the peer disconnects or ctx is done.
func (h *Hub) HandleConn(ctx context.Context, conn *websocket.Conn, userID string) {
	client := &wsClient{
		hub:    h,
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, clientSendBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClientsSet(count)
	h.log.Debugw("websocket client connected", "user", userID, "clients", count)

	go client.writePump(ctx)
	client.readPump(ctx)
}

// Broadcast pushes one envelope to every connected client, returning the
// number of clients that accepted it.
func (h *Hub) Broadcast(msgType string, data any) int {
	return h.push(msgType, data, "")
}

// DeliverRecord pushes a notification to the record's user. Clients with no
// user scope receive it as well.
func (h *Hub) DeliverRecord(rec *Record) int {
	return h.push("notification", rec, rec.UserID)
}

// push fans an envelope out to matching clients. An empty userID matches
// every client.
func (h *Hub) push(msgType string, data any, userID string) int {
	msg, err := json.Marshal(Envelope{
		Type:      msgType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	})
	if err != nil {
		h.log.Warnw("encoding websocket envelope failed", "type", msgType, "err", err)

		return 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	accepted := 0

	for client := range h.clients {
		if userID != "" && client.userID != "" && client.userID != userID {
			continue
		}

		select {
		case client.send <- msg:
			accepted++
			h.delivered++
		default:
			// Slow client, skip.
			h.dropped++
		}
	}

	return accepted
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

func (h *Hub) remove(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	count := len(h.clients)
	h.mu.Unlock()

	metrics.WebsocketClientsSet(count)
}

// Close disconnects every client.
func (h *Hub) Close() error {
	h.mu.Lock()
	clients := make([]*wsClient, 0, len(h.clients))

	for client := range h.clients {
		clients = append(clients, client)
	}

	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()

	for _, client := range clients {
		client.close()
	}

	metrics.WebsocketClientsSet(0)

	return nil
}

// wsClient is one websocket peer with its outgoing buffer.
type wsClient struct {
	hub    *Hub
	conn   *websocket.Conn
	userID string
	send   chan []byte
	done   chan struct{}

	closedMu sync.Mutex
	closed   bool
}

func (c *wsClient) close() {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()

		return
	}

	c.closed = true
	c.closedMu.Unlock()

	close(c.done)
	_ = c.conn.Close()
	c.hub.remove(c)
}

// readPump consumes inbound frames until the peer goes away. Inbound
// payloads are ignored; reading keeps pong handling alive and detects the
// close.
func (c *wsClient) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		default:
		}

		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump forwards buffered messages and keeps the connection alive with
// pings.
func (c *wsClient) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))

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

// WebSocketChannel adapts a Hub to the Channel interface. Delivery is
// best-effort: nobody listening is not a failure.
type WebSocketChannel struct {
	name string
	hub  *Hub
}

// NewWebSocketChannel wraps the hub as a delivery channel.
func NewWebSocketChannel(name string, hub *Hub) *WebSocketChannel {
	return &WebSocketChannel{name: name, hub: hub}
}

func (c *WebSocketChannel) Name() string {
	return c.name
}

// Hub exposes the underlying hub so the HTTP layer can attach connections
// and other components can broadcast.
func (c *WebSocketChannel) Hub() *Hub {
	return c.hub
}

func (c *WebSocketChannel) Deliver(_ context.Context, rec *Record) error {
	c.hub.DeliverRecord(rec)

	return nil
}

func (c *WebSocketChannel) Close() error {
	return c.hub.Close()
}
