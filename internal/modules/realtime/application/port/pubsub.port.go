package port

import (
	"context"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

// Publisher is the fan-out surface the rest of the system publishes through.
// Delivery is best-effort: implementations never report per-connection failures.
type Publisher interface {
	PublishToTopic(topic domain.Topic, msg domain.Envelope) int
	PublishToUser(userID string, msg domain.Envelope) int
	PublishToAll(msg domain.Envelope) int
}

// TopicHandler handles domain events arriving on one broker topic.
type TopicHandler interface {
	Topic() string
	Handle(ctx context.Context, evt *domain.Event) error
}
