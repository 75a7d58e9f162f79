package rabbitmq

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/target/itinerary/internal/adapters/queuerunner"
	"github.com/target/itinerary/internal/domain/model"
)

// delivery adapts an amqp.Delivery to queuerunner.Delivery.
type delivery struct {
	d amqp.Delivery
}

var _ queuerunner.Delivery = delivery{}

// MessageType prefers the AMQP type property and falls back to the routing key.
func (d delivery) MessageType() model.MessageType {
	if d.d.Type != "" {
		return model.MessageType(d.d.Type)
	}
	return model.MessageType(d.d.RoutingKey)
}

func (d delivery) Body() []byte { return d.d.Body }

func (d delivery) MessageID() string { return d.d.MessageId }

func (d delivery) Ack(context.Context) error { return d.d.Ack(false) }

// Leave nacks the delivery. Non-retryable messages are not requeued, so the queue's
// dead-letter exchange (if any) receives them.
func (d delivery) Leave(_ context.Context, retryable bool) error {
	return d.d.Nack(false, retryable)
}
