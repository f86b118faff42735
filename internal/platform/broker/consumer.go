package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ktg0215/Management-sub000/internal/modules/realtime/domain"
)

// ErrEmptyMessage is returned for records without a value.
var ErrEmptyMessage = errors.New("empty kafka message")

const (
	eventTypeHeader = "event-type"
	readBackoff     = time.Second
)

// Dispatcher routes a decoded event consumed from topic.
type Dispatcher interface {
	Dispatch(ctx context.Context, topic string, evt *domain.Event) error
}

type KafkaConsumer struct {
	reader *kafka.Reader
	topic  string
}

func NewKafkaConsumer(brokers []string, groupID string, topic string) *KafkaConsumer {
	return &KafkaConsumer{
		topic: topic,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}),
	}
}

// Consume reads until ctx is cancelled. Read errors back off and retry;
// handler errors are logged and the offset still advances.
func (c *KafkaConsumer) Consume(ctx context.Context, dispatcher Dispatcher) error {
	defer c.reader.Close()
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Warn("kafka read error", slog.String("topic", c.topic), slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(readBackoff):
			}
			continue
		}
		handleMessage(ctx, dispatcher, m)
	}
}

func handleMessage(ctx context.Context, dispatcher Dispatcher, m kafka.Message) {
	evt, err := decodeEvent(m)
	if err != nil {
		slog.Warn("kafka message dropped",
			slog.String("topic", m.Topic),
			slog.Int("partition", m.Partition),
			slog.Int64("offset", m.Offset),
			slog.Any("error", err),
		)
		return
	}
	slog.Info("kafka message consumed",
		slog.String("topic", m.Topic),
		slog.Int("partition", m.Partition),
		slog.Int64("offset", m.Offset),
		slog.String("type", string(evt.Type)),
	)
	if err := dispatcher.Dispatch(ctx, m.Topic, evt); err != nil {
		slog.Warn("kafka handler error", slog.String("topic", m.Topic), slog.String("type", string(evt.Type)), slog.Any("error", err))
	}
}

// decodeEvent accepts either the {type, payload} wrapper or a bare payload
// whose type travels in the event-type header.
func decodeEvent(m kafka.Message) (*domain.Event, error) {
	if len(m.Value) == 0 {
		return nil, ErrEmptyMessage
	}

	var evt domain.Event
	if err := json.Unmarshal(m.Value, &evt); err != nil {
		return nil, fmt.Errorf("decode kafka message: %w", err)
	}
	if strings.TrimSpace(string(evt.Type)) == "" || len(evt.Payload) == 0 {
		kind := headerValue(m.Headers, eventTypeHeader)
		if kind == "" {
			return nil, fmt.Errorf("%w: no event type in body or headers", domain.ErrInvalidEvent)
		}
		evt = domain.Event{Type: domain.EventType(kind), Payload: json.RawMessage(m.Value)}
	}
	if evt.OccurredAt.IsZero() {
		evt.OccurredAt = m.Time.UTC()
	}
	return &evt, nil
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Key, key) {
			return strings.TrimSpace(string(h.Value))
		}
	}
	return ""
}
