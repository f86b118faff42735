package handler

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/application/port"
	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

// Translator is the subset of the event translator a handler depends on.
type Translator interface {
	Translate(ctx context.Context, evt domain.Event) error
}

// DomainEventHandler forwards events from one broker topic to the translator.
// An optional allow-list restricts which event types the topic may carry.
type DomainEventHandler struct {
	topic      string
	allowed    map[domain.EventType]struct{}
	translator Translator
}

func NewDomainEventHandler(topic string, translator Translator, allowed ...domain.EventType) *DomainEventHandler {
	set := make(map[domain.EventType]struct{}, len(allowed))
	for _, t := range allowed {
		if v := strings.TrimSpace(string(t)); v != "" {
			set[domain.EventType(v)] = struct{}{}
		}
	}
	return &DomainEventHandler{
		topic:      strings.TrimSpace(topic),
		allowed:    set,
		translator: translator,
	}
}

func (h *DomainEventHandler) Topic() string { return h.topic }

// Handle drops events outside the allow-list. Undecodable events are logged
// and not returned, so a poisoned message never stalls the consumer.
func (h *DomainEventHandler) Handle(ctx context.Context, evt *domain.Event) error {
	if evt == nil {
		return nil
	}
	if len(h.allowed) > 0 {
		if _, ok := h.allowed[domain.EventType(strings.TrimSpace(string(evt.Type)))]; !ok {
			slog.Debug("domain event filtered", slog.String("topic", h.topic), slog.String("type", string(evt.Type)))
			return nil
		}
	}
	if err := h.translator.Translate(ctx, *evt); err != nil {
		if errors.Is(err, domain.ErrUnsupportedEvent) || errors.Is(err, domain.ErrInvalidEvent) {
			slog.Warn("domain event skipped", slog.String("topic", h.topic), slog.String("type", string(evt.Type)), slog.Any("error", err))
			return nil
		}
		return err
	}
	return nil
}

var _ port.TopicHandler = (*DomainEventHandler)(nil)
