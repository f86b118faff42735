package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/port"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

// ErrSubscriptionDenied is returned when the topic policy rejects a subscribe.
var ErrSubscriptionDenied = errors.New("subscription denied")

// Reasons recorded when a connection leaves the hub.
const (
	CloseReasonClientClosed     = "client closed"
	CloseReasonTransportError   = "transport error"
	CloseReasonHeartbeatTimeout = "heartbeat timeout"
	CloseReasonSendBufferFull   = "send buffer full"
	CloseReasonShutdown         = "server shutdown"
)

const defaultHeartbeatTimeout = 30 * time.Second

// HubOption customizes a Hub.
type HubOption func(*Hub)

// WithClock replaces time.Now, used for heartbeat ages and message timestamps.
func WithClock(now func() time.Time) HubOption {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithHeartbeatTimeout sets the age after which a silent connection is evicted.
func WithHeartbeatTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		if d > 0 {
			h.heartbeatTimeout = d
		}
	}
}

// Hub owns the connection registry and the subscription index. A single mutex
// guards both so the index is always the exact inverse of client memberships.
type Hub struct {
	mu       sync.RWMutex
	registry *connectionRegistry
	index    *subscriptionIndex

	// publishMu serializes fan-out so each subscriber sees one topic's
	// messages in publish order.
	publishMu sync.Mutex

	// guarded by mu; set once by Shutdown
	closed bool

	now              func() time.Time
	heartbeatTimeout time.Duration

	statsMu   sync.Mutex
	lastReach map[string]int
	delivered atomic.Uint64
	failed    atomic.Uint64
	published atomic.Uint64
}

func NewHub(opts ...HubOption) *Hub {
	index := newSubscriptionIndex()
	h := &Hub{
		registry:         newConnectionRegistry(index),
		index:            index,
		now:              time.Now,
		heartbeatTimeout: defaultHeartbeatTimeout,
		lastReach:        make(map[string]int),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Now reads the hub clock.
func (h *Hub) Now() time.Time { return h.now() }

// Register admits an authenticated client. Its heartbeat clock starts now.
// After Shutdown the client is closed instead and Register reports false.
func (h *Hub) Register(c *Client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		c.beginClose()
		c.close(closeCodeFor(CloseReasonShutdown), CloseReasonShutdown)
		slog.Info("ws client refused after shutdown", c.logAttrs()...)
		return false
	}
	c.lastSeen = h.now()
	h.registry.add(c)
	total := h.registry.len()
	h.mu.Unlock()
	slog.Info("ws client registered", append(c.logAttrs(), slog.Int("connections", total))...)
	return true
}

// Remove detaches the connection, cascades its subscriptions and closes the
// socket. It is idempotent and reports whether this call removed the client.
func (h *Hub) Remove(connID string, reason string) bool {
	h.mu.Lock()
	c, ok := h.registry.remove(connID)
	if ok {
		c.beginClose()
	}
	h.mu.Unlock()
	if !ok {
		return false
	}
	c.close(closeCodeFor(reason), reason)
	level := slog.LevelInfo
	if reason == CloseReasonTransportError || reason == CloseReasonSendBufferFull {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "ws client detached", append(c.logAttrs(), slog.String("reason", reason))...)
	return true
}

// Get returns the live client for connID.
func (h *Hub) Get(connID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.get(connID)
}

// Subscribe adds topic to the client's memberships after the policy allows it.
func (h *Hub) Subscribe(c *Client, topic domain.Topic) error {
	if !domain.CanSubscribe(c.identity, topic) {
		return ErrSubscriptionDenied
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.registry.get(c.id); !ok || current != c || c.Status() != StatusOpen {
		return ErrClientClosing
	}
	h.index.subscribe(topic, c.id)
	c.topics[topic] = struct{}{}
	return nil
}

// Unsubscribe is a no-op when the client never joined topic.
func (h *Hub) Unsubscribe(c *Client, topic domain.Topic) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.topics[topic]; !ok {
		return false
	}
	delete(c.topics, topic)
	h.index.unsubscribe(topic, c.id)
	return true
}

// Heartbeat records a liveness signal from the client.
func (h *Hub) Heartbeat(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.registry.get(c.id); ok {
		c.lastSeen = h.now()
	}
}

// Topics lists the client's current memberships.
func (h *Hub) Topics(c *Client) []domain.Topic {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]domain.Topic, 0, len(c.topics))
	for topic := range c.topics {
		out = append(out, topic)
	}
	return out
}

// PublishToTopic delivers msg to every current subscriber of topic and
// returns how many connections accepted it.
func (h *Hub) PublishToTopic(topic domain.Topic, msg domain.Envelope) int {
	msg.Topic = topic.String()
	h.publishMu.Lock()
	defer h.publishMu.Unlock()

	h.mu.RLock()
	ids := h.index.subscribersOf(topic)
	clients := make([]*Client, 0, len(ids))
	for _, id := range ids {
		if c, ok := h.registry.get(id); ok {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	reached := h.deliver(clients, msg)
	h.recordReach(msg.Topic, reached)
	return reached
}

// PublishToUser delivers msg to every connection of userID.
func (h *Hub) PublishToUser(userID string, msg domain.Envelope) int {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	clients := h.snapshot(func(c *Client) bool { return c.identity.UserID == userID })
	reached := h.deliver(clients, msg)
	h.recordReach("user", reached)
	return reached
}

// PublishToAll delivers msg to every open connection.
func (h *Hub) PublishToAll(msg domain.Envelope) int {
	h.publishMu.Lock()
	defer h.publishMu.Unlock()
	clients := h.snapshot(func(*Client) bool { return true })
	reached := h.deliver(clients, msg)
	h.recordReach("*", reached)
	return reached
}

func (h *Hub) snapshot(match func(*Client) bool) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, h.registry.len())
	h.registry.forEach(func(c *Client) bool {
		if match(c) {
			clients = append(clients, c)
		}
		return true
	})
	return clients
}

func (h *Hub) deliver(clients []*Client, msg domain.Envelope) int {
	h.published.Add(1)
	if len(clients) == 0 {
		return 0
	}
	data, err := json.Marshal(msg.Stamped(h.now()))
	if err != nil {
		slog.Error("broadcast marshal error", slog.String("event", msg.Event), slog.String("topic", msg.Topic), slog.Any("error", err))
		return 0
	}

	reached := 0
	for _, c := range clients {
		err := c.enqueue(data)
		switch {
		case err == nil:
			reached++
			continue
		case errors.Is(err, ErrSendBufferFull):
			slog.Warn("broadcast delivery failed", append(c.logAttrs(), slog.String("event", msg.Event), slog.String("topic", msg.Topic), slog.Any("error", err))...)
			go h.Remove(c.id, CloseReasonSendBufferFull)
		default:
			slog.Debug("broadcast delivery skipped", append(c.logAttrs(), slog.String("event", msg.Event), slog.String("topic", msg.Topic), slog.Any("error", err))...)
		}
		h.failed.Add(1)
	}
	h.delivered.Add(uint64(reached))
	return reached
}

func (h *Hub) recordReach(target string, reached int) {
	h.statsMu.Lock()
	h.lastReach[target] = reached
	h.statsMu.Unlock()
	slog.Debug("broadcast published", slog.String("target", target), slog.Int("reached", reached))
}

// Sweep evicts every connection whose last heartbeat is older than the
// timeout. Selection and removal happen under one lock so a heartbeat cannot
// slip in between.
func (h *Hub) Sweep() int {
	now := h.now()
	h.mu.Lock()
	evicted := make([]*Client, 0)
	h.registry.forEach(func(c *Client) bool {
		if now.Sub(c.lastSeen) > h.heartbeatTimeout {
			evicted = append(evicted, c)
		}
		return true
	})
	for _, c := range evicted {
		h.registry.remove(c.id)
		c.beginClose()
	}
	h.mu.Unlock()

	for _, c := range evicted {
		c.close(closeCodeFor(CloseReasonHeartbeatTimeout), CloseReasonHeartbeatTimeout)
		slog.Info("ws client detached", append(c.logAttrs(), slog.String("reason", CloseReasonHeartbeatTimeout), slog.Duration("silence", now.Sub(c.lastSeen)))...)
	}
	return len(evicted)
}

// RunHeartbeatSweeper sweeps on every tick until ctx is cancelled.
func (h *Hub) RunHeartbeatSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	slog.Info("heartbeat sweeper starting", slog.Duration("interval", interval), slog.Duration("timeout", h.heartbeatTimeout))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("heartbeat sweeper stopping")
			return
		case <-ticker.C:
			if n := h.Sweep(); n > 0 {
				slog.Info("heartbeat sweep evicted connections", slog.Int("evicted", n))
			}
		}
	}
}

// Shutdown closes every connection and refuses later registrations.
// Subsequent publishes reach nobody.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, h.registry.len())
	h.registry.forEach(func(c *Client) bool {
		clients = append(clients, c)
		return true
	})
	for _, c := range clients {
		h.registry.remove(c.id)
		c.beginClose()
	}
	h.mu.Unlock()
	for _, c := range clients {
		c.close(closeCodeFor(CloseReasonShutdown), CloseReasonShutdown)
	}
	slog.Info("hub shut down", slog.Int("closed", len(clients)))
}

// Stats is the snapshot served to the administrative statistics route.
type Stats struct {
	TotalConnections  int            `json:"totalConnections"`
	ConnectionsByRole map[string]int `json:"connectionsByRole"`
	TopicSubscribers  map[string]int `json:"topicSubscribers"`
	ActiveTopics      int            `json:"activeTopics"`
	MessagesPublished uint64         `json:"messagesPublished"`
	Deliveries        uint64         `json:"deliveries"`
	DeliveryFailures  uint64         `json:"deliveryFailures"`
	LastReach         map[string]int `json:"lastReach"`
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	stats := Stats{
		TotalConnections:  h.registry.len(),
		ConnectionsByRole: make(map[string]int),
		TopicSubscribers:  h.index.counts(),
		ActiveTopics:      h.index.topicCount(),
	}
	h.registry.forEach(func(c *Client) bool {
		stats.ConnectionsByRole[string(c.identity.Role)]++
		return true
	})
	h.mu.RUnlock()

	stats.MessagesPublished = h.published.Load()
	stats.Deliveries = h.delivered.Load()
	stats.DeliveryFailures = h.failed.Load()

	h.statsMu.Lock()
	stats.LastReach = make(map[string]int, len(h.lastReach))
	for k, v := range h.lastReach {
		stats.LastReach[k] = v
	}
	h.statsMu.Unlock()
	return stats
}

func closeCodeFor(reason string) int {
	switch reason {
	case CloseReasonShutdown:
		return websocket.CloseGoingAway
	case CloseReasonHeartbeatTimeout, CloseReasonSendBufferFull:
		return websocket.ClosePolicyViolation
	case CloseReasonTransportError:
		return websocket.CloseInternalServerErr
	default:
		return websocket.CloseNormalClosure
	}
}

var _ port.Publisher = (*Hub)(nil)
