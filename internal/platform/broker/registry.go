package broker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// RunKafkaConsumers starts one reader per topic and blocks until ctx is
// cancelled. With no brokers configured it returns immediately.
func RunKafkaConsumers(
	ctx context.Context,
	dispatcher Dispatcher,
	brokers []string,
	groupID string,
	topics []string,
) error {
	if len(brokers) == 0 {
		// kafka.NewReader panics on an empty broker list.
		slog.Info("kafka consumers disabled, no brokers configured")
		return nil
	}
	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range topics {
		consumer := NewKafkaConsumer(brokers, groupID, topic)
		slog.Info("kafka consumer starting", slog.String("topic", topic), slog.String("group", groupID))
		g.Go(func() error {
			return consumer.Consume(ctx, dispatcher)
		})
	}
	return g.Wait()
}
