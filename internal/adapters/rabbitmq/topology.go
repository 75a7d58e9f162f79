// Package rabbitmq connects the State service to RabbitMQ: a manual-ack delivery source for inbound
// commands and a confirm-mode publisher for outbound events.
package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/target/itinerary/internal/domain/model"
)

// Topology names the exchange, queue and bindings the State service relies on.
type Topology struct {
	Exchange string
	Queue    string
	// DeadLetterExchange receives messages left with retryable=false. Empty disables dead-lettering.
	DeadLetterExchange string
	Bindings           []model.MessageType
}

// declarer is the subset of *amqp.Channel used to declare topology.
type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func (t Topology) declareExchange(ch declarer) error {
	if t.Exchange == "" {
		return nil
	}
	if err := ch.ExchangeDeclare(t.Exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq exchange declare failed: %w", err)
	}
	return nil
}

// declare creates the exchange, the durable queue and one binding per message type.
func (t Topology) declare(ch declarer) error {
	if t.Queue == "" {
		return fmt.Errorf("rabbitmq queue name is required")
	}
	if err := t.declareExchange(ch); err != nil {
		return err
	}

	var args amqp.Table
	if t.DeadLetterExchange != "" {
		if err := ch.ExchangeDeclare(t.DeadLetterExchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
			return fmt.Errorf("rabbitmq dead-letter exchange declare failed: %w", err)
		}
		args = amqp.Table{"x-dead-letter-exchange": t.DeadLetterExchange}
	}
	if _, err := ch.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("rabbitmq queue declare failed: %w", err)
	}

	if t.Exchange == "" {
		return nil
	}
	for _, key := range t.Bindings {
		if err := ch.QueueBind(t.Queue, string(key), t.Exchange, false, nil); err != nil {
			return fmt.Errorf("rabbitmq bind %s failed: %w", key, err)
		}
	}
	return nil
}
