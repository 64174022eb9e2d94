// Package hub distributes canonical events to downstream WebSocket
// connections.
//
// The hub owns the connection registry: a map of connection id to client,
// guarded by a single mutex. Publish serializes an event once and attempts
// a non-blocking enqueue on every client's bounded channel; a full channel
// drops that one client's delivery and leaves everyone else unaffected. One
// stalled consumer must never stall the rest.
package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/solanastream/pumprelay/internal/event"
	"github.com/solanastream/pumprelay/internal/metrics"
)

const greeting = "Connected to Pump.fun token event relay"

// Hub maintains the registry of downstream connections and broadcasts
// serialized events to all of them.
type Hub struct {
	mu      sync.Mutex
	clients map[uint64]*Client
	closed  bool

	// nextID assigns connection ids; monotonically increasing, never
	// reused within a process lifetime.
	nextID atomic.Uint64

	buffer int
	logger *zerolog.Logger
}

// New creates a hub whose clients each get a send buffer of the given size.
func New(logger *zerolog.Logger, buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		clients: make(map[uint64]*Client),
		buffer:  buffer,
		logger:  logger,
	}
}

// Register adds a connection to the registry, assigns it the next
// connection id, and queues its welcome acknowledgment ahead of any
// broadcast events. Returns nil if the hub is already closed.
func (h *Hub) Register(conn wsConn, remoteAddr string) *Client {
	id := h.nextID.Add(1)
	client := &Client{
		id:         id,
		remoteAddr: remoteAddr,
		conn:       conn,
		send:       make(chan []byte, h.buffer),
		hub:        h,
	}

	welcome, err := json.Marshal(event.Welcome{
		Type:         event.ConnectionEstablished,
		ConnectionID: id,
		Message:      greeting,
	})
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to marshal welcome frame")
		return nil
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	// The channel is fresh, so the welcome always fits; enqueueing while
	// holding the lock guarantees it precedes any published event.
	client.send <- welcome
	h.clients[id] = client
	total := len(h.clients)
	h.mu.Unlock()

	metrics.ConnectedClients.Set(float64(total))
	h.logger.Info().
		Uint64("connection_id", id).
		Str("remote_addr", remoteAddr).
		Int("total_clients", total).
		Msg("Client connected")
	return client
}

// Deregister removes a connection from the registry and closes its
// channel. Idempotent: deregistering an absent id is a no-op, since
// disconnect detection can race with explicit cleanup.
func (h *Hub) Deregister(id uint64) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(client.send)
	}
	total := len(h.clients)
	h.mu.Unlock()

	if !ok {
		return
	}
	metrics.ConnectedClients.Set(float64(total))
	h.logger.Info().
		Uint64("connection_id", id).
		Str("remote_addr", client.remoteAddr).
		Int("total_clients", total).
		Msg("Client disconnected")
}

// Publish serializes the event once and enqueues it on every registered
// connection. Never blocks: a client whose buffer is full misses this
// event and is logged, delivery to the others proceeds.
func (h *Hub) Publish(ev event.TokenEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to serialize event")
		return
	}
	metrics.EventsPublished.Inc()

	h.mu.Lock()
	for id, client := range h.clients {
		select {
		case client.send <- payload:
		default:
			metrics.DeliveriesDropped.Inc()
			h.logger.Warn().
				Uint64("connection_id", id).
				Str("remote_addr", client.remoteAddr).
				Msg("Client buffer full, delivery dropped")
		}
	}
	h.mu.Unlock()

	h.logger.Debug().
		Str("event_type", ev.EventType).
		Str("signature", ev.TransactionSignature).
		Msg("Event broadcast")
}

// Close clears the registry, closing every client channel so their write
// pumps drain and shut their sockets. The hub accepts no registrations
// afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
	h.mu.Unlock()

	metrics.ConnectedClients.Set(0)
	h.logger.Info().Msg("Distribution hub closed")
}

// Len returns the current number of registered connections.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
