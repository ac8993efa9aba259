// Package realtime streams cache notifications to dashboard clients over
// Server-Sent Events, so an open view can re-render when its data is
// revalidated or invalidated instead of polling.
package realtime

import (
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/krisalay/clinic-swr-cache/key"
	"github.com/krisalay/clinic-swr-cache/refresh"
)

// EventType defines the type of real-time event
type EventType string

const (
	EventRevalidated      EventType = "cache.revalidated"
	EventRevalidateFailed EventType = "cache.revalidate_failed"
	EventInvalidated      EventType = "cache.invalidated"
	EventConnected        EventType = "connection.established"
	EventHeartbeat        EventType = "heartbeat"
)

// Event represents a real-time event to send to clients
type Event struct {
	Type      EventType      `json:"type"`
	ID        string         `json:"id"`
	Family    string         `json:"family,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

// Client represents a connected SSE client
type Client struct {
	ID       string
	Channel  chan *Event
	families map[string]bool // empty = every family
}

// NewClient creates a client interested in families (all when empty).
func NewClient(id string, buffer int, families ...string) *Client {
	c := &Client{
		ID:       id,
		Channel:  make(chan *Event, buffer),
		families: make(map[string]bool, len(families)),
	}
	for _, f := range families {
		if f = strings.TrimSpace(f); f != "" {
			c.families[f] = true
		}
	}
	return c
}

// Wants reports whether the client receives events of family.
func (c *Client) Wants(family string) bool {
	return family == "" || len(c.families) == 0 || c.families[family]
}

// Subscriber is the part of the cache the hub listens to.
type Subscriber interface {
	Subscribe(prefix string, hook func(refresh.Event)) (cancel func())
}

// EventHub manages SSE connections and event distribution
type EventHub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  *zap.Logger

	// Buffer is the per-client queue length. Events for a full queue are
	// dropped for that client.
	Buffer int
	// Heartbeat is the keep-alive interval of open streams.
	Heartbeat time.Duration
}

// NewEventHub creates a new event hub
func NewEventHub(logger *zap.Logger) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHub{
		clients:   make(map[string]*Client),
		logger:    logger,
		Buffer:    100,
		Heartbeat: 15 * time.Second,
	}
}

// Attach forwards the cache's notifications to connected clients. Raw
// request deduplication (the http family) is not forwarded.
func (h *EventHub) Attach(src Subscriber) (detach func()) {
	return src.Subscribe("", func(e refresh.Event) {
		if e.Family == key.HTTPFamily {
			return
		}
		h.Broadcast(fromRefresh(e))
	})
}

func fromRefresh(e refresh.Event) *Event {
	ev := &Event{
		ID:        ulid.Make().String(),
		Family:    e.Family,
		Timestamp: e.At,
		Data: map[string]any{
			"key":        e.Key,
			"generation": e.Generation,
			"background": e.Background,
		},
	}
	switch e.Kind {
	case refresh.Revalidated:
		ev.Type = EventRevalidated
	case refresh.Failed:
		ev.Type = EventRevalidateFailed
		if e.Err != nil {
			ev.Data["error"] = e.Err.Error()
		}
	case refresh.Invalidated:
		ev.Type = EventInvalidated
	}
	return ev
}

// RegisterClient registers a new client
func (h *EventHub) RegisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
	h.logger.Debug("sse client registered",
		zap.String("client", client.ID), zap.Int("clients", len(h.clients)))
}

// UnregisterClient removes a client
func (h *EventHub) UnregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.clients[clientID]; exists {
		close(client.Channel)
		delete(h.clients, clientID)
		h.logger.Debug("sse client unregistered",
			zap.String("client", clientID), zap.Int("clients", len(h.clients)))
	}
}

// Broadcast sends an event to every interested client without blocking.
func (h *EventHub) Broadcast(event *Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, client := range h.clients {
		if !client.Wants(event.Family) {
			continue
		}
		select {
		case client.Channel <- event:
		default:
			h.logger.Warn("sse client queue full, dropping event",
				zap.String("client", client.ID), zap.String("type", string(event.Type)))
		}
	}
}

// ClientCount returns the number of connected clients
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// HandleSSE streams events to one client. ?family=doctors,stats limits the
// stream to those families.
func (h *EventHub) HandleSSE(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache, no-transform")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	var families []string
	if f := c.Query("family"); f != "" {
		families = strings.Split(f, ",")
	}
	client := NewClient(ulid.Make().String(), h.Buffer, families...)

	h.RegisterClient(client)
	defer h.UnregisterClient(client.ID)

	c.SSEvent(string(EventConnected), &Event{
		Type:      EventConnected,
		ID:        client.ID,
		Timestamp: time.Now(),
		Data:      map[string]any{"client_id": client.ID},
	})
	c.Writer.Flush()

	ticker := time.NewTicker(h.Heartbeat)
	defer ticker.Stop()

	ctx := c.Request.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-client.Channel:
			if !ok {
				return
			}
			c.SSEvent(string(event.Type), event)
			c.Writer.Flush()
		case <-ticker.C:
			c.SSEvent(string(EventHeartbeat), gin.H{"timestamp": time.Now()})
			c.Writer.Flush()
		}
	}
}
