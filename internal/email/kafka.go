package email

import (
	"context"
	"fmt"

	pkgkafka "github.com/utafrali/authgate/pkg/kafka"
)

// TopicEmailRequested carries messages from the auth service to the mailer.
var TopicEmailRequested = pkgkafka.Topic("email", "requested")

const (
	aggregateTypeEmail = "email"
	sourceAuthService  = "authgate"
)

// Publisher writes an event envelope to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, event *pkgkafka.Event) error
}

// KafkaSender hands messages to the mailer through Kafka. Delivery happens
// asynchronously in cmd/mailer.
type KafkaSender struct {
	publisher Publisher
}

// NewKafkaSender creates a sender publishing to TopicEmailRequested.
func NewKafkaSender(publisher Publisher) *KafkaSender {
	return &KafkaSender{publisher: publisher}
}

func (s *KafkaSender) Name() string { return "kafka" }

func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	evt, err := pkgkafka.NewEvent(TopicEmailRequested, msg.To, aggregateTypeEmail, sourceAuthService, msg)
	if err != nil {
		return fmt.Errorf("create email event: %w", err)
	}
	evt.WithContext(ctx)

	if err := s.publisher.Publish(ctx, TopicEmailRequested, evt); err != nil {
		return fmt.Errorf("enqueue email: %w", err)
	}
	return nil
}

// DeliveryHandler returns a consumer handler that decodes email.requested
// events and delivers them through sender.
func DeliveryHandler(sender Sender) pkgkafka.Handler {
	return func(ctx context.Context, event *pkgkafka.Event) error {
		var msg Message
		if err := event.UnmarshalData(&msg); err != nil {
			return fmt.Errorf("decode email payload: %w", err)
		}
		if msg.To == "" {
			return fmt.Errorf("email event %s has no recipient", event.EventID)
		}
		return sender.Send(ctx, msg)
	}
}
