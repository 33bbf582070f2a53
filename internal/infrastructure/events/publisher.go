package events

import (
	"context"

	"github.com/google/uuid"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
	"github.com/shipstream-platform/batch-shipping-service/pkg/kafka"
)

const eventSource = "batch-shipping-service"

// KafkaPublisher publishes batch run lifecycle events to the run events
// topic. Publish failures are the caller's to handle; a lost event never
// affects the run itself.
type KafkaPublisher struct {
	producer *kafka.Producer
}

// NewKafkaPublisher builds a publisher over the shared producer
func NewKafkaPublisher(producer *kafka.Producer) *KafkaPublisher {
	return &KafkaPublisher{producer: producer}
}

// Publish sends one domain event wrapped in the standard envelope
func (p *KafkaPublisher) Publish(ctx context.Context, subject string, event domain.DomainEvent) error {
	return p.producer.PublishEvent(ctx, kafka.Topics.BatchRunEvents, &kafka.Event{
		ID:      uuid.NewString(),
		Type:    event.EventType(),
		Source:  eventSource,
		Subject: subject,
		Time:    event.OccurredAt(),
		Data:    event,
	})
}

// Close flushes and closes the underlying producer
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
