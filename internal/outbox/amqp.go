package outbox

import (
	"context"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPPublisher publishes outbox events over RabbitMQ, for subscribers that
// want a durable external transport. It is separate from the in-process bus
// and webhook POSTs: the outbox Dispatcher does not call it. Grounded on common/broker/broker.go's exchange
// declaration and dead-letter handling, trimmed to the fields the outbox
// dispatcher actually needs and re-pointed at event_type-named exchanges
// instead of the teacher's fixed order/payment/kitchen event constants.
type AMQPPublisher struct {
	channel *amqp.Channel
	logger  *slog.Logger
}

// DLXName is the dead-letter exchange Connect declares, mirroring
// common/broker/broker.go's DLX. This package declares no queue and binds
// nothing to it.
const DLXName = "stateset.dlx"

// MaxAMQPRetries bounds in-broker redelivery before a message is routed to
// its dead-letter queue.
const MaxAMQPRetries = 3

// Connect dials RabbitMQ and returns a channel plus a close function,
// ported directly from common/broker/broker.go's Connect.
func Connect(user, pass, host, port string) (*amqp.Channel, func() error, error) {
	address := fmt.Sprintf("amqp://%s:%s@%s:%s/", user, pass, host, port)

	conn, err := amqp.Dial(address)
	if err != nil {
		return nil, nil, fmt.Errorf("outbox: failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("outbox: failed to open channel: %w", err)
	}

	if err := declareDLX(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}

	closeFn := func() error {
		if err := ch.Close(); err != nil {
			return err
		}
		return conn.Close()
	}
	return ch, closeFn, nil
}

func declareDLX(ch *amqp.Channel) error {
	return ch.ExchangeDeclare(DLXName, "direct", true, false, false, false, nil)
}

// NewAMQPPublisher wraps an already-connected channel.
func NewAMQPPublisher(ch *amqp.Channel, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{channel: ch, logger: logger}
}

// EnsureExchange declares a durable direct exchange named eventType, the
// same per-event exchange topology common/broker/broker.go sets up for
// order.created/order.paid/etc. It declares no queue and no binding to the
// DLX.
func (p *AMQPPublisher) EnsureExchange(eventType string) error {
	if err := p.channel.ExchangeDeclare(eventType, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("outbox: failed to declare exchange %s: %w", eventType, err)
	}
	return nil
}

// Publish publishes event's payload to the exchange named after its event
// type, carrying the event id so consumers can dedupe (spec.md §4.2:
// "consumers must be idempotent; webhook signatures include a stable event
// id" — the same id is attached here for AMQP consumers).
func (p *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	if err := p.EnsureExchange(event.EventType); err != nil {
		return err
	}
	return p.channel.PublishWithContext(ctx, event.EventType, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         event.Payload,
		MessageId:    event.ID,
		DeliveryMode: amqp.Persistent,
		Headers:      amqp.Table{"x-retry-count": int64(0)},
	})
}

// HandleRetry increments a delivery's retry count and either republishes it
// or, past MaxAMQPRetries, nacks it without requeue so RabbitMQ's DLX
// routing takes over. Ported from common/broker/broker.go's HandleRetry.
func HandleRetry(ch *amqp.Channel, d *amqp.Delivery) error {
	if d.Headers == nil {
		d.Headers = amqp.Table{}
	}
	retryCount, _ := d.Headers["x-retry-count"].(int64)
	retryCount++
	d.Headers["x-retry-count"] = retryCount

	if retryCount >= MaxAMQPRetries {
		return d.Nack(false, false)
	}

	return ch.PublishWithContext(context.Background(), d.Exchange, d.RoutingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Headers:      d.Headers,
		Body:         d.Body,
		DeliveryMode: amqp.Persistent,
	})
}
