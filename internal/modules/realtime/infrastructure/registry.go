package infrastructure

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/port"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

// HandlerRegistry routes events consumed from a broker topic to the handler
// registered for that topic.
type HandlerRegistry struct {
	handlers map[string]port.TopicHandler
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{handlers: make(map[string]port.TopicHandler)}
}

func (r *HandlerRegistry) Register(h port.TopicHandler) {
	r.handlers[strings.TrimSpace(h.Topic())] = h
}

// Topics lists the broker topics with a registered handler.
func (r *HandlerRegistry) Topics() []string {
	out := make([]string, 0, len(r.handlers))
	for topic := range r.handlers {
		out = append(out, topic)
	}
	return out
}

// Dispatch hands evt to the handler for topic. Events on topics without a
// handler are dropped.
func (r *HandlerRegistry) Dispatch(ctx context.Context, topic string, evt *domain.Event) error {
	handler, ok := r.handlers[strings.TrimSpace(topic)]
	if !ok {
		slog.Debug("no handler for broker topic", slog.String("topic", topic), slog.String("type", string(evt.Type)))
		return nil
	}
	return handler.Handle(ctx, evt)
}
