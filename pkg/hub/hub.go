package hub

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// queueSize bounds frames waiting for Run to fan them out.
const queueSize = 256

// ErrDropped is returned when a frame could not be queued: the queue is
// full or the hub has shut down.
var ErrDropped = errors.New("hub: frame dropped")

// Handler receives frames read from a client.
type Handler func(c *Client, data []byte)

// Option configures a Hub.
type Option func(*Hub)

// WithReplay makes the hub hand the most recent broadcast to every client
// as soon as it joins.
func WithReplay() Option {
	return func(h *Hub) { h.replay = true }
}

// Stats describes a hub's delivery counters.
type Stats struct {
	Name      string `json:"name"`
	Clients   int    `json:"clients"`
	Delivered uint64 `json:"delivered"`
	Dropped   uint64 `json:"dropped"` // slow clients disconnected + frames lost to a full queue
}

// Hub fans broadcast frames out to a set of websocket clients.
// Membership changes happen under mu; Run owns delivery.
type Hub struct {
	name   string
	logger *slog.Logger
	replay bool

	mu      sync.Mutex
	clients map[*Client]struct{}
	last    []byte
	closed  bool

	queue chan []byte

	handler   atomic.Pointer[Handler]
	running   atomic.Bool
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New creates a hub. name only appears in logs and Stats.
func New(name string, logger *slog.Logger, opts ...Option) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Hub{
		name:    name,
		logger:  logger.With("component", "hub", "hub", name),
		clients: make(map[*Client]struct{}),
		queue:   make(chan []byte, queueSize),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// OnMessage sets the handler for frames sent by clients.
func (h *Hub) OnMessage(fn Handler) {
	h.handler.Store(&fn)
}

// Run delivers queued broadcasts until ctx is cancelled, then disconnects
// every client. A hub cannot be restarted.
func (h *Hub) Run(ctx context.Context) {
	h.running.Store(true)
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case frame := <-h.queue:
			h.deliver(frame)
		}
	}
}

func (h *Hub) shutdown() {
	h.running.Store(false)
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

func (h *Hub) deliver(frame []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = frame
	for c := range h.clients {
		select {
		case c.send <- frame:
			h.delivered.Add(1)
		default:
			delete(h.clients, c)
			close(c.send)
			h.dropped.Add(1)
			h.logger.Warn("dropped slow client", "clients", len(h.clients))
		}
	}
}

// join adds c unless the hub has shut down.
func (h *Hub) join(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	if h.replay && h.last != nil {
		c.send <- h.last // fresh buffer, cannot block
	}
	h.logger.Info("client connected", "clients", len(h.clients))
	return true
}

// leave removes c if it is still a member.
func (h *Hub) leave(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.logger.Info("client disconnected", "clients", len(h.clients))
}

// Broadcast queues a frame for every client. It never blocks; it reports
// false when the frame was dropped because the queue is full or the hub
// has shut down.
func (h *Hub) Broadcast(data []byte) bool {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()
	if closed {
		h.dropped.Add(1)
		return false
	}

	select {
	case h.queue <- data:
		return true
	default:
		h.dropped.Add(1)
		h.logger.Warn("broadcast queue full, dropping frame")
		return false
	}
}

// BroadcastJSON encodes v and broadcasts it. A dropped frame returns
// ErrDropped.
func (h *Hub) BroadcastJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if !h.Broadcast(data) {
		return ErrDropped
	}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// IsRunning reports whether Run is active.
func (h *Hub) IsRunning() bool {
	return h.running.Load()
}

// Stats returns the current delivery counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Name:      h.name,
		Clients:   h.ClientCount(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

func (h *Hub) handle(c *Client, data []byte) {
	if fn := h.handler.Load(); fn != nil {
		(*fn)(c, data)
	}
}
