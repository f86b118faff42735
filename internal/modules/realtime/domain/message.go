package domain

import (
	"encoding/json"
	"time"
)

// MessageType is the envelope kind exchanged over a connection.
type MessageType string

const (
	MessageSubscribe     MessageType = "subscribe"
	MessageUnsubscribe   MessageType = "unsubscribe"
	MessageHeartbeatPing MessageType = "heartbeat-ping"
	MessageHeartbeatPong MessageType = "heartbeat-pong"
	MessageData          MessageType = "data"
)

// Event names carried by data messages.
const (
	EventWelcome            = "welcome"
	EventSubscribed         = "subscribed"
	EventUnsubscribed       = "unsubscribed"
	EventError              = "error"
	EventSalesDataUpdated   = "sales-data-updated"
	EventSalesDataCreated   = "sales-data-created"
	EventStoreUpdate        = "store-update"
	EventBatchSalesUpdate   = "batch-sales-update"
	EventSystemAnnouncement = "system-announcement"
	EventUserNotification   = "user-notification"
)

// Inbound is a message received from a client. Any timestamp the client sends
// is ignored.
type Inbound struct {
	Type    MessageType     `json:"type"`
	Topic   string          `json:"topic,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Envelope is a message sent to clients. Timestamp is always set by the
// server at send time.
type Envelope struct {
	Type      MessageType `json:"type"`
	Event     string      `json:"event,omitempty"`
	Topic     string      `json:"topic,omitempty"`
	Payload   any         `json:"payload,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewDataMessage builds a data envelope for event.
func NewDataMessage(event string, payload any) Envelope {
	return Envelope{Type: MessageData, Event: event, Payload: payload}
}

// NewPong builds the reply to a heartbeat-ping.
func NewPong() Envelope {
	return Envelope{Type: MessageHeartbeatPong}
}

// Stamped returns a copy of e carrying the server timestamp at.
func (e Envelope) Stamped(at time.Time) Envelope {
	e.Timestamp = at.UTC()
	return e
}
