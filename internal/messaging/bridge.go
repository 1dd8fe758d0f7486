package messaging

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mkrell/gosolo/internal/miner"
	"github.com/mkrell/gosolo/pkg/log"
)

// publishTimeout bounds one event publication including retries.
const publishTimeout = 5 * time.Second

// EventBridge publishes engine lifecycle events to Kafka. The caller feeds
// it events as it consumes the engine's stream; the bridge never owns the
// stream so local consumers keep seeing every event.
type EventBridge struct {
	client *KafkaClient
	topic  string
	logger *log.Logger
}

// NewEventBridge creates a bridge publishing to the given topic.
func NewEventBridge(client *KafkaClient, topic string, logger *log.Logger) *EventBridge {
	if topic == "" {
		topic = TopicMinerEvents
	}
	return &EventBridge{
		client: client,
		topic:  topic,
		logger: logger.WithComponent("event_bridge"),
	}
}

// Publish sends one event, keyed by its type. Fire-and-forget: failures
// are logged and swallowed.
func (b *EventBridge) Publish(ev miner.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		b.logger.WithError(err).Warn("failed to encode event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := b.client.PublishJSON(ctx, b.topic, string(ev.Type), data); err != nil {
		b.logger.WithError(err).Warn("failed to publish event",
			"type", string(ev.Type))
	}
}

// Close releases the underlying producers.
func (b *EventBridge) Close() {
	if err := b.client.Close(); err != nil {
		b.logger.WithError(err).Warn("failed to close kafka client")
	}
}
