// Package gateway fans pipeline events out to WebSocket subscribers.
//
// Delivery is fire-and-forget per live connection: a subscriber that
// reconnects receives a fresh welcome snapshot and future events only,
// never a replay of events delivered before the disconnect.
package gateway

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"signal-enginev1/internal/model"
)

const heartbeatPeriod = 30 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The dashboard is served from anywhere; auth is not this layer's job.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SignalSnapshotter supplies the active-signal snapshot sent to a
// freshly connected client.
type SignalSnapshotter interface {
	ActiveSignals(ctx context.Context, now time.Time) ([]model.Signal, error)
}

// Sink receives every published event in addition to the WebSocket
// fan-out (e.g. the Redis channel publisher). Must not block.
type Sink interface {
	PublishEvent(event model.Event)
}

// Hub manages WebSocket clients and event fan-out. It implements
// model.Publisher for the scorer and monitor.
type Hub struct {
	signals SignalSnapshotter // optional
	sink    Sink              // optional

	// OnPublish, when set, observes every published event type.
	// Must not block. Set before the first Publish.
	OnPublish func(eventType model.EventType)

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
}

// NewHub creates a hub. signals may be nil; clients then get a welcome
// event without a snapshot.
func NewHub(signals SignalSnapshotter, sink Sink) *Hub {
	return &Hub{
		signals: signals,
		sink:    sink,
		clients: make(map[*Client]bool),
	}
}

// Publish stamps the event with the next sequence number and fans it out
// to every connected client. A slow client's full buffer drops the
// event for that client only; Publish never blocks.
func (h *Hub) Publish(event model.Event) {
	h.mu.Lock()
	h.seq++
	event.Seq = h.seq
	if event.TS.IsZero() {
		event.TS = time.Now().UTC()
	}
	buf, err := encodeEvent(event)
	if err != nil {
		h.mu.Unlock()
		log.Printf("[gateway] dropping unencodable event type=%s: %v", event.Type, err)
		return
	}
	for client := range h.clients {
		select {
		case client.send <- buf:
		default:
			client.noteDrop()
		}
	}
	h.mu.Unlock()

	if h.sink != nil {
		h.sink.PublishEvent(event)
	}
	if h.OnPublish != nil {
		h.OnPublish(event.Type)
	}
}

// HandleWS upgrades the HTTP connection and registers the client.
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway] ws upgrade failed: %v", err)
		return
	}

	client := &Client{
		conn: conn,
		send: make(chan []byte, 64),
		hub:  h,
	}

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendWelcome()
	go client.writePump()
	go client.readPump()
}

// trySend queues buf for one client unless it has already been removed.
// The hub lock orders the send against the channel close on removal, so
// per-client writers (welcome, pong) never hit a closed channel.
func (h *Hub) trySend(c *Client, buf []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.clients[c] {
		return false
	}
	select {
	case c.send <- buf:
		return true
	default:
		c.noteDrop()
		return false
	}
}

// RemoveClient unregisters a client and releases its send queue.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RunHeartbeat publishes a heartbeat event on a fixed period so idle
// dashboards can tell a quiet pipeline from a dead one. Blocks until ctx
// is cancelled.
func (h *Hub) RunHeartbeat(ctx context.Context) {
	ticker := time.NewTicker(heartbeatPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			h.Publish(model.NewEvent(model.EventHeartbeat, map[string]interface{}{
				"server_ts": t.UTC().Format(time.RFC3339Nano),
				"clients":   h.ClientCount(),
			}))
		}
	}
}

// Close disconnects every client, typically at shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
}
