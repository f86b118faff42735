package infrastructure

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

var (
	// ErrClientClosing is returned when a message targets a connection that is
	// closing or closed. Delivery to such connections is skipped.
	ErrClientClosing = errors.New("websocket client closing")
	// ErrSendBufferFull is returned when the outbound buffer of a slow client is full.
	ErrSendBufferFull = errors.New("websocket send buffer full")
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ClientStatus is the lifecycle state of a connection.
type ClientStatus int32

const (
	StatusOpen ClientStatus = iota
	StatusClosing
	StatusClosed
)

func (s ClientStatus) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusClosing:
		return "closing"
	default:
		return "closed"
	}
}

// ClientConfig tunes buffering and inbound flood control per connection.
type ClientConfig struct {
	SendBuffer        int
	ReadLimit         int64
	MessagesPerSecond float64
	MessageBurst      int
}

func (cfg ClientConfig) withDefaults() ClientConfig {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 1 << 16
	}
	if cfg.MessagesPerSecond <= 0 {
		cfg.MessagesPerSecond = 20
	}
	if cfg.MessageBurst <= 0 {
		cfg.MessageBurst = 40
	}
	return cfg
}

// Client is one live websocket connection with an immutable identity.
type Client struct {
	id        string
	identity  domain.Identity
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	status    atomic.Int32
	readLimit int64
	limiter   *rate.Limiter
	commands  *CommandProcessor

	// guarded by Hub.mu
	topics   map[domain.Topic]struct{}
	lastSeen time.Time
}

// NewClient wraps an upgraded connection. conn may be nil in tests, in which
// case outbound frames stay in the send buffer.
func NewClient(hub *Hub, conn *websocket.Conn, identity domain.Identity, cfg ClientConfig) *Client {
	cfg = cfg.withDefaults()
	client := &Client{
		id:        uuid.NewString(),
		identity:  identity,
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, cfg.SendBuffer),
		done:      make(chan struct{}),
		readLimit: cfg.ReadLimit,
		limiter:   rate.NewLimiter(rate.Limit(cfg.MessagesPerSecond), cfg.MessageBurst),
		topics:    make(map[domain.Topic]struct{}),
	}
	client.commands = NewCommandProcessor(hub)
	return client
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() domain.Identity { return c.identity }

func (c *Client) Status() ClientStatus { return ClientStatus(c.status.Load()) }

// beginClose moves an open client to closing. It reports false when the client
// was already leaving.
func (c *Client) beginClose() bool {
	return c.status.CompareAndSwap(int32(StatusOpen), int32(StatusClosing))
}

// close is final. A closed client never reopens; a reconnect is a new Client.
func (c *Client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		c.status.Store(int32(StatusClosed))
		close(c.done)
		if c.conn == nil {
			return
		}
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.conn.Close()
	})
}

// SendEnvelope stamps msg with the server clock and queues it for this client only.
func (c *Client) SendEnvelope(msg domain.Envelope) error {
	data, err := json.Marshal(msg.Stamped(c.hub.now()))
	if err != nil {
		slog.Error("websocket marshal error", slog.String("connectionId", c.id), slog.Any("error", err))
		return err
	}
	return c.enqueue(data)
}

func (c *Client) enqueue(data []byte) error {
	if c.Status() != StatusOpen {
		return ErrClientClosing
	}
	select {
	case <-c.done:
		return ErrClientClosing
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) allowInbound() bool {
	return c.limiter.Allow()
}

func (c *Client) logAttrs() []any {
	return []any{
		slog.String("connectionId", c.id),
		slog.String("userId", c.identity.UserID),
		slog.String("role", string(c.identity.Role)),
		slog.Int64("storeId", c.identity.StoreID),
	}
}

// WritePump drains the send buffer to the socket and keeps the transport alive
// with control pings. It returns once the client is closed or a write fails.
func (c *Client) WritePump() {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Warn("websocket write error", append(c.logAttrs(), slog.Any("error", err))...)
				c.hub.Remove(c.id, CloseReasonTransportError)
				return
			}
		case <-ping.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				slog.Warn("websocket ping error", append(c.logAttrs(), slog.Any("error", err))...)
				c.hub.Remove(c.id, CloseReasonTransportError)
				return
			}
		}
	}
}

// ReadPump decodes inbound frames until the peer goes away, then removes the
// client from the hub with the matching reason.
func (c *Client) ReadPump() {
	c.conn.SetReadLimit(c.readLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	reason := CloseReasonClientClosed
	defer func() { c.hub.Remove(c.id, reason) }()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if c.Status() != StatusOpen {
				return
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				reason = CloseReasonTransportError
				slog.Warn("websocket read error", append(c.logAttrs(), slog.Any("error", err))...)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.commands.Process(c, data)
	}
}
