package infrastructure

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

// Error codes carried in error data messages.
const (
	ErrorCodeInvalidTopic       = "invalid_topic"
	ErrorCodeSubscriptionDenied = "subscription_denied"
)

// CommandHandler processes one decoded inbound message.
type CommandHandler func(ctx context.Context, client *Client, msg domain.Inbound)

// CommandProcessor routes inbound messages by type. Malformed, rate-limited
// and unknown messages are logged and dropped; the connection stays open.
type CommandProcessor struct {
	hub      *Hub
	handlers map[domain.MessageType]CommandHandler
}

func NewCommandProcessor(hub *Hub) *CommandProcessor {
	processor := &CommandProcessor{
		hub:      hub,
		handlers: make(map[domain.MessageType]CommandHandler),
	}
	processor.Register(domain.MessageSubscribe, processor.handleSubscribe)
	processor.Register(domain.MessageUnsubscribe, processor.handleUnsubscribe)
	processor.Register(domain.MessageHeartbeatPing, processor.handleHeartbeat)
	return processor
}

func (p *CommandProcessor) Register(kind domain.MessageType, handler CommandHandler) {
	if handler == nil {
		return
	}
	key := normalizeType(string(kind))
	if key == "" {
		return
	}
	p.handlers[key] = handler
}

func (p *CommandProcessor) Process(client *Client, raw []byte) {
	if client == nil {
		return
	}
	if !client.allowInbound() {
		slog.Warn("ws message rate limited", client.logAttrs()...)
		return
	}

	var msg domain.Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		slog.Warn("ws malformed message", append(client.logAttrs(), slog.Int("bytes", len(raw)), slog.Any("error", err))...)
		return
	}

	kind := normalizeType(string(msg.Type))
	handler, ok := p.handlers[kind]
	if !ok {
		slog.Warn("ws unknown message type ignored", append(client.logAttrs(), slog.String("type", string(msg.Type)))...)
		return
	}
	handler(context.Background(), client, msg)
}

func (p *CommandProcessor) handleSubscribe(_ context.Context, client *Client, msg domain.Inbound) {
	topic, err := domain.ParseTopic(msg.Topic)
	if err != nil {
		slog.Debug("ws subscribe invalid topic", append(client.logAttrs(), slog.String("topic", msg.Topic), slog.Any("error", err))...)
		sendError(client, ErrorCodeInvalidTopic, msg.Topic, "unknown topic")
		return
	}

	if err := p.hub.Subscribe(client, topic); err != nil {
		switch {
		case errors.Is(err, ErrSubscriptionDenied):
			slog.Warn("ws subscribe denied", append(client.logAttrs(), slog.String("topic", topic.String()))...)
			sendError(client, ErrorCodeSubscriptionDenied, topic.String(), "not authorized for topic")
		default:
			slog.Debug("ws subscribe on closing client", append(client.logAttrs(), slog.String("topic", topic.String()))...)
		}
		return
	}

	slog.Debug("ws subscribe", append(client.logAttrs(), slog.String("topic", topic.String()))...)
	ack := domain.NewDataMessage(domain.EventSubscribed, map[string]string{"topic": topic.String()})
	ack.Topic = topic.String()
	_ = client.SendEnvelope(ack)
}

func (p *CommandProcessor) handleUnsubscribe(_ context.Context, client *Client, msg domain.Inbound) {
	topic, err := domain.ParseTopic(msg.Topic)
	if err != nil {
		sendError(client, ErrorCodeInvalidTopic, msg.Topic, "unknown topic")
		return
	}
	removed := p.hub.Unsubscribe(client, topic)
	slog.Debug("ws unsubscribe", append(client.logAttrs(), slog.String("topic", topic.String()), slog.Bool("wasSubscribed", removed))...)
	ack := domain.NewDataMessage(domain.EventUnsubscribed, map[string]string{"topic": topic.String()})
	ack.Topic = topic.String()
	_ = client.SendEnvelope(ack)
}

func (p *CommandProcessor) handleHeartbeat(_ context.Context, client *Client, _ domain.Inbound) {
	p.hub.Heartbeat(client)
	_ = client.SendEnvelope(domain.NewPong())
}

func sendError(client *Client, code, topic, reason string) {
	payload := map[string]string{"code": code, "message": reason}
	if strings.TrimSpace(topic) != "" {
		payload["topic"] = topic
	}
	_ = client.SendEnvelope(domain.NewDataMessage(domain.EventError, payload))
}

func normalizeType(kind string) domain.MessageType {
	return domain.MessageType(strings.ToLower(strings.TrimSpace(kind)))
}
